package engine

import (
	"sort"
)

// groupDecision is what the first event of a production decided; later
// dates replay it.
type groupDecision struct {
	manual        bool
	manualReason  string
	foh           *CrewMember
	fohSpecialist bool
	fohConflict   string
	stage         []*CrewMember
	stageConflict string
}

// productions indexes a batch by event group.
type productions struct {
	dates   map[string][]string
	flagged map[string]string
}

// indexProductions collects the sorted distinct dates of each event group and
// whether any member event was flagged for manual review.
func indexProductions(events []Event) *productions {
	p := &productions{
		dates:   make(map[string][]string),
		flagged: make(map[string]string),
	}
	seen := make(map[string]map[string]struct{})
	for i := range events {
		e := &events[i]
		if !e.Grouped() {
			continue
		}
		g := *e.EventGroup
		if seen[g] == nil {
			seen[g] = make(map[string]struct{})
		}
		if _, ok := seen[g][e.DateKey()]; !ok {
			seen[g][e.DateKey()] = struct{}{}
			p.dates[g] = append(p.dates[g], e.DateKey())
		}
		if e.NeedsManualReview {
			if _, ok := p.flagged[g]; !ok {
				p.flagged[g] = manualReason(e)
			}
		}
	}
	for g := range p.dates {
		sort.Strings(p.dates[g])
	}
	return p
}

// datesFor returns every date the event's crew must cover.
func (p *productions) datesFor(e *Event) []string {
	if e.Grouped() {
		return p.dates[*e.EventGroup]
	}
	return []string{e.DateKey()}
}

// manualReview reports whether the event, or any event of its production,
// needs manual review, with the reason to report.
func (p *productions) manualReview(e *Event) (bool, string) {
	if e.NeedsManualReview {
		return true, manualReason(e)
	}
	if e.Grouped() {
		if reason, ok := p.flagged[*e.EventGroup]; ok {
			return true, reason
		}
	}
	return false, ""
}

func manualReason(e *Event) string {
	if e.ManualFlagReason != "" {
		return e.ManualFlagReason
	}
	return "Flagged for manual review"
}

// sortForProcessing orders grouped events before ungrouped ones and each class
// by date. The sort is stable so equal keys keep load order.
func sortForProcessing(events []Event) []Event {
	sorted := make([]Event, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		gi, gj := sorted[i].Grouped(), sorted[j].Grouped()
		if gi != gj {
			return gi
		}
		return sorted[i].DateKey() < sorted[j].DateKey()
	})
	return sorted
}
