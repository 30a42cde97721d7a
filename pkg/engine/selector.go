package engine

import (
	"sort"
)

// runContext is the mutable state of one Run. It is discarded afterwards.
type runContext struct {
	batchID   string
	rules     Rules
	crew      []*CrewMember
	avail     *Availability
	ledger    *Ledger
	rotation  *Rotation
	prods     *productions
	decisions map[string]*groupDecision
	conflicts *conflictLog
}

func newRunContext(batchID string, rules Rules, crew []CrewMember, events []Event,
	unavailable []Unavailability, ledger *Ledger) *runContext {
	roster := make([]*CrewMember, len(crew))
	for i := range crew {
		roster[i] = &crew[i]
	}
	sort.SliceStable(roster, func(i, j int) bool { return roster[i].ID < roster[j].ID })

	return &runContext{
		batchID:   batchID,
		rules:     rules,
		crew:      roster,
		avail:     NewAvailability(unavailable),
		ledger:    ledger,
		rotation:  NewRotation(roster),
		prods:     indexProductions(events),
		decisions: make(map[string]*groupDecision),
		conflicts: newConflictLog(),
	}
}

// selectFOH tries the vertical's specialist rotation, then the best scored
// candidate. It returns nil when nobody qualifies.
func (rc *runContext) selectFOH(e *Event, dates []string) (pick *CrewMember, specialist bool, path string) {
	if c := rc.rotation.Next(e.Vertical, e.VenueNormalized, dates, rc.avail); c != nil {
		return c, true, PathRotation
	}

	bestScore := 0
	for _, c := range rc.crew {
		if c.Level == LevelHired {
			continue
		}
		if !rc.avail.IsAvailable(c.ID, dates) {
			continue
		}
		capability := CanDoFOH(c, e.VenueNormalized, e.Vertical, rc.rules.ExperimentalVenue)
		if !capability.Can {
			continue
		}
		score := rc.rules.fohScore(c.Level, rc.ledger.Rolling(c.ID))
		// crew is ordered by id, so a strict comparison keeps the lowest id on ties
		if pick == nil || score > bestScore {
			pick, bestScore, specialist = c, score, capability.IsSpecialist
		}
	}
	if pick == nil {
		return nil, false, ""
	}
	return pick, specialist, PathScored
}

type stageCandidate struct {
	crew  *CrewMember
	score int
}

// selectStage returns up to needed Stage picks, highest score first. Scores
// are computed once before any pick is booked.
func (rc *runContext) selectStage(dates []string, foh *CrewMember, needed int) []*CrewMember {
	candidates := make([]stageCandidate, 0, len(rc.crew))
	for _, c := range rc.crew {
		if !CanDoStage(c) {
			continue
		}
		if foh != nil && c.ID == foh.ID {
			continue
		}
		if !rc.avail.IsAvailable(c.ID, dates) {
			continue
		}
		candidates = append(candidates, stageCandidate{crew: c, score: rc.rules.stageScore(c, rc.ledger.Rolling(c.ID))})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].crew.ID < candidates[j].crew.ID
	})

	if len(candidates) > needed {
		candidates = candidates[:needed]
	}
	picks := make([]*CrewMember, len(candidates))
	for i, c := range candidates {
		picks[i] = c.crew
	}
	return picks
}

// book reserves crew across dates and charges the ledger for them.
func (rc *runContext) book(c *CrewMember, dates []string) {
	rc.avail.Reserve(c.ID, dates)
	rc.ledger.Add(c.ID, len(dates))
}
