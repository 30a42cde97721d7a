package engine

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// memRepo is an in-memory Repository for engine tests.
type memRepo struct {
	mu sync.Mutex

	events      []Event
	crew        []CrewMember
	unavailable []Unavailability
	workload    []WorkloadHistory
	assignments map[int64][]Assignment
	merges      []WorkloadMerge
	batchDeltas map[string][]WorkloadHistory

	cleared   [][]int64
	failWrite error
}

func newMemRepo() *memRepo {
	return &memRepo{
		assignments: make(map[int64][]Assignment),
		batchDeltas: make(map[string][]WorkloadHistory),
	}
}

func (r *memRepo) ListEventsByBatch(_ context.Context, batchID string) ([]Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.BatchID == batchID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *memRepo) GetEvent(_ context.Context, id int64) (*Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.events {
		if r.events[i].ID == id {
			e := r.events[i]
			return &e, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memRepo) ListCrew(context.Context) ([]CrewMember, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]CrewMember, len(r.crew))
	copy(out, r.crew)
	return out, nil
}

func (r *memRepo) ListUnavailability(_ context.Context, from, to time.Time) ([]Unavailability, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Unavailability
	for _, u := range r.unavailable {
		if u.Date.Before(from) || u.Date.After(to) {
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

func (r *memRepo) ListWorkload(_ context.Context, months []string) ([]WorkloadHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	want := make(map[string]bool, len(months))
	for _, m := range months {
		want[m] = true
	}
	var out []WorkloadHistory
	for _, w := range r.workload {
		if want[w.Month] {
			out = append(out, w)
		}
	}
	return out, nil
}

func (r *memRepo) DeleteAssignmentsForEvents(_ context.Context, eventIDs []int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleared = append(r.cleared, eventIDs)
	for _, id := range eventIDs {
		delete(r.assignments, id)
	}
	return nil
}

func (r *memRepo) InsertAssignments(_ context.Context, rows []Assignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWrite != nil {
		return r.failWrite
	}
	for _, row := range rows {
		r.assignments[row.EventID] = append(r.assignments[row.EventID], row)
	}
	return nil
}

func (r *memRepo) ReplaceEventAssignments(_ context.Context, eventID int64, rows []Assignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWrite != nil {
		return r.failWrite
	}
	r.assignments[eventID] = append([]Assignment(nil), rows...)
	return nil
}

func (r *memRepo) ListBatchDeltas(_ context.Context, batchID string) ([]WorkloadHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]WorkloadHistory(nil), r.batchDeltas[batchID]...), nil
}

func (r *memRepo) MergeWorkload(_ context.Context, merge WorkloadMerge) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.merges = append(r.merges, merge)

	switch merge.Mode {
	case MergeOverwrite:
		for id, n := range merge.Totals {
			r.setWorkload(id, merge.Month, func(int) int { return n })
		}
	case MergeBatchReplace:
		for _, d := range r.batchDeltas[merge.BatchID] {
			n := d.AssignmentCount
			r.setWorkload(d.CrewID, d.Month, func(cur int) int { return max(0, cur-n) })
		}
		recorded := make([]WorkloadHistory, 0, len(merge.Deltas))
		for id, n := range merge.Deltas {
			r.setWorkload(id, merge.Month, func(cur int) int { return cur + n })
			recorded = append(recorded, WorkloadHistory{CrewID: id, Month: merge.Month, AssignmentCount: n})
		}
		r.batchDeltas[merge.BatchID] = recorded
	default:
		for id, n := range merge.Deltas {
			r.setWorkload(id, merge.Month, func(cur int) int { return cur + n })
		}
	}
	return nil
}

// setWorkload rewrites the crew member's row for month, adding it if absent.
// Callers hold r.mu.
func (r *memRepo) setWorkload(crewID int64, month string, f func(int) int) {
	for i := range r.workload {
		if r.workload[i].CrewID == crewID && r.workload[i].Month == month {
			r.workload[i].AssignmentCount = f(r.workload[i].AssignmentCount)
			return
		}
	}
	r.workload = append(r.workload, WorkloadHistory{CrewID: crewID, Month: month, AssignmentCount: f(0)})
}

func (r *memRepo) rows(eventID int64) []Assignment {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Assignment(nil), r.assignments[eventID]...)
}

var errDiskFull = errors.New("disk full")

type fakeChecker struct {
	findings []PolicyFinding
	last     OverrideInput
}

func (c *fakeChecker) CheckOverride(_ context.Context, in OverrideInput) ([]PolicyFinding, error) {
	c.last = in
	return c.findings, nil
}

type countingRecorder struct {
	nopRecorder
	conflicts  map[ConflictType]int
	selections map[string]int
	overrides  map[string]int
	statuses   []string
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{
		conflicts:  make(map[ConflictType]int),
		selections: make(map[string]int),
		overrides:  make(map[string]int),
	}
}

func (r *countingRecorder) RecordRunCompleted(status string, _ time.Duration) {
	r.statuses = append(r.statuses, status)
}

func (r *countingRecorder) RecordSelection(role Role, path string) {
	r.selections[string(role)+"/"+path]++
}

func (r *countingRecorder) RecordConflict(typ ConflictType) {
	r.conflicts[typ]++
}

func (r *countingRecorder) RecordOverride(outcome string) {
	r.overrides[outcome]++
}

func day(s string) time.Time {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func group(name string) *string {
	return &name
}
