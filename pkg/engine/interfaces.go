package engine

import (
	"context"
	"time"
)

// Repository is the persistence the engine reads its inputs from and writes
// its results to. Implementations return ErrNotFound (possibly wrapped) for
// missing rows.
type Repository interface {
	// ListEventsByBatch returns the batch's events ordered by date, name, id.
	ListEventsByBatch(ctx context.Context, batchID string) ([]Event, error)

	// GetEvent returns a single event.
	GetEvent(ctx context.Context, id int64) (*Event, error)

	// ListCrew returns the full roster.
	ListCrew(ctx context.Context) ([]CrewMember, error)

	// ListUnavailability returns unavailability records dated within [from, to].
	ListUnavailability(ctx context.Context, from, to time.Time) ([]Unavailability, error)

	// ListWorkload returns ledger rows for the given months.
	ListWorkload(ctx context.Context, months []string) ([]WorkloadHistory, error)

	// ListBatchDeltas returns what batchID added to the ledger on its last
	// batch-replace run, one row per crew member and month.
	ListBatchDeltas(ctx context.Context, batchID string) ([]WorkloadHistory, error)

	// DeleteAssignmentsForEvents removes every assignment row for the events.
	DeleteAssignmentsForEvents(ctx context.Context, eventIDs []int64) error

	// InsertAssignments stores assignment rows.
	InsertAssignments(ctx context.Context, rows []Assignment) error

	// ReplaceEventAssignments deletes the event's rows and inserts rows.
	ReplaceEventAssignments(ctx context.Context, eventID int64, rows []Assignment) error

	// MergeWorkload writes end-of-run ledger deltas.
	MergeWorkload(ctx context.Context, merge WorkloadMerge) error
}

// OverrideInput is what an OverrideChecker evaluates.
type OverrideInput struct {
	Event             Event
	FOH               *CrewMember
	Stage             []CrewMember
	UnavailableCrew   []int64
	ExperimentalVenue string
}

// OverrideChecker reviews a manual override before it is written.
type OverrideChecker interface {
	CheckOverride(ctx context.Context, in OverrideInput) ([]PolicyFinding, error)
}

// Selection paths reported to a Recorder.
const (
	PathRotation = "rotation"
	PathScored   = "scored"
)

// Recorder receives engine measurements.
type Recorder interface {
	RecordRunStarted()
	RecordRunCompleted(status string, duration time.Duration)
	RecordSelection(role Role, path string)
	RecordConflict(typ ConflictType)
	RecordOverride(outcome string)
}

type nopRecorder struct{}

func (nopRecorder) RecordRunStarted() {}
func (nopRecorder) RecordRunCompleted(string, time.Duration) {}
func (nopRecorder) RecordSelection(Role, string) {}
func (nopRecorder) RecordConflict(ConflictType) {}
func (nopRecorder) RecordOverride(string) {}
