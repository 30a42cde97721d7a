package engine

import (
	"sort"
	"time"
)

// Ledger holds rolling workload for one run. Rolling values include the
// in-run delta, so later events in the run see earlier picks.
type Ledger struct {
	month   string
	rolling map[int64]int
	current map[int64]int
	delta   map[int64]int
}

// WindowMonths returns the n ledger months ending at ref, oldest first.
func WindowMonths(ref time.Time, n int) []string {
	first := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, time.UTC)
	months := make([]string, 0, n)
	for i := n - 1; i >= 0; i-- {
		months = append(months, MonthOf(first.AddDate(0, -i, 0)))
	}
	return months
}

// NewLedger sums history rows falling inside months. month is the reference
// month deltas will be recorded against.
func NewLedger(month string, months []string, history []WorkloadHistory) *Ledger {
	window := make(map[string]struct{}, len(months))
	for _, m := range months {
		window[m] = struct{}{}
	}

	l := &Ledger{
		month:   month,
		rolling: make(map[int64]int),
		current: make(map[int64]int),
		delta:   make(map[int64]int),
	}
	for _, h := range history {
		if _, ok := window[h.Month]; !ok {
			continue
		}
		l.rolling[h.CrewID] += h.AssignmentCount
		if h.Month == month {
			l.current[h.CrewID] += h.AssignmentCount
		}
	}
	return l
}

// withoutBatch returns history with a batch's previously recorded deltas
// taken back out, floored at zero. The input slice is not modified.
func withoutBatch(history, prior []WorkloadHistory) []WorkloadHistory {
	if len(prior) == 0 {
		return history
	}
	type key struct {
		crew  int64
		month string
	}
	sub := make(map[key]int, len(prior))
	for _, p := range prior {
		sub[key{p.CrewID, p.Month}] += p.AssignmentCount
	}
	out := make([]WorkloadHistory, len(history))
	for i, h := range history {
		k := key{h.CrewID, h.Month}
		if n, ok := sub[k]; ok {
			h.AssignmentCount -= n
			if h.AssignmentCount < 0 {
				h.AssignmentCount = 0
			}
			delete(sub, k)
		}
		out[i] = h
	}
	return out
}

// Month returns the reference month.
func (l *Ledger) Month() string {
	return l.month
}

// Rolling returns the crew member's workload across the window plus this run.
func (l *Ledger) Rolling(crewID int64) int {
	return l.rolling[crewID]
}

// Add records n assigned dates for crewID.
func (l *Ledger) Add(crewID int64, n int) {
	if n == 0 {
		return
	}
	l.rolling[crewID] += n
	l.current[crewID] += n
	l.delta[crewID] += n
}

// Deltas returns a copy of the nonzero in-run increments.
func (l *Ledger) Deltas() map[int64]int {
	out := make(map[int64]int, len(l.delta))
	for id, n := range l.delta {
		if n != 0 {
			out[id] = n
		}
	}
	return out
}

// MonthTotals returns the post-run reference-month count for every crew id
// touched by this run.
func (l *Ledger) MonthTotals() map[int64]int {
	out := make(map[int64]int, len(l.delta))
	for id := range l.delta {
		out[id] = l.current[id]
	}
	return out
}

// touched returns crew ids with a delta, ascending.
func (l *Ledger) touched() []int64 {
	ids := make([]int64, 0, len(l.delta))
	for id := range l.delta {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
