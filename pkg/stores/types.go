package stores

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/stagecrew/crewdesk/pkg/engine"
)

// ErrNotFound is returned when a requested row does not exist. It is the
// engine's sentinel so engine.IsNotFound recognizes store misses.
var ErrNotFound = engine.ErrNotFound

// ErrBatchLocked is returned when another run holds the batch lock.
var ErrBatchLocked = errors.New("batch is locked by another run")

// RunStatus represents the status of an engine run
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run records one invocation of the engine over a batch
type Run struct {
	ID            string     `json:"id"`
	BatchID       string     `json:"batch_id"`
	Status        RunStatus  `json:"status"`
	Month         string     `json:"month"`
	EventCount    int        `json:"event_count"`
	ConflictCount int        `json:"conflict_count"`
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	Error         *string    `json:"error,omitempty"`
	Metadata      string     `json:"metadata"` // JSON blob
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// RunOutcome is written when a run finishes
type RunOutcome struct {
	Status        RunStatus
	Month         string
	EventCount    int
	ConflictCount int
	Error         *string
	Metadata      string
}

// BatchLock is a held per-batch run lock
type BatchLock struct {
	BatchID    string    `json:"batch_id"`
	Owner      string    `json:"owner"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// BatchSummary describes one stored batch
type BatchSummary struct {
	BatchID    string `json:"batch_id"`
	EventCount int    `json:"event_count"`
	FirstDate  string `json:"first_date"`
	LastDate   string `json:"last_date"`
}

// AssignmentView is an assignment row joined with its event and crew member
type AssignmentView struct {
	EventID               int64        `json:"event_id"`
	EventName             string       `json:"event_name"`
	Date                  string       `json:"date"`
	Venue                 string       `json:"venue"`
	Vertical              string       `json:"vertical"`
	EventGroup            *string      `json:"event_group,omitempty"`
	CrewID                int64        `json:"crew_id"`
	CrewName              string       `json:"crew_name"`
	Level                 engine.Level `json:"level"`
	Role                  engine.Role  `json:"role"`
	WasManuallyOverridden bool         `json:"was_manually_overridden"`
}

// WorkloadRow is a crew member's ledger value for one month
type WorkloadRow struct {
	CrewID          int64        `json:"crew_id"`
	Name            string       `json:"name"`
	Level           engine.Level `json:"level"`
	Month           string       `json:"month"`
	AssignmentCount int          `json:"assignment_count"`
}

// Store defines the interface for the persistence layer
type Store interface {
	engine.Repository

	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Transaction support
	BeginTx(ctx context.Context) (*sql.Tx, error)
	CommitTx(tx *sql.Tx) error
	RollbackTx(tx *sql.Tx) error

	// Crew operations
	UpsertCrew(ctx context.Context, crew *engine.CrewMember) error
	GetCrew(ctx context.Context, id int64) (*engine.CrewMember, error)
	GetCrewByName(ctx context.Context, name string) (*engine.CrewMember, error)
	DeleteCrew(ctx context.Context, id int64) error

	// Event operations
	InsertEvents(ctx context.Context, events []engine.Event) ([]int64, error)
	UpdateStageCrewNeeded(ctx context.Context, eventID int64, n int) error
	ListBatches(ctx context.Context) ([]BatchSummary, error)
	DeleteBatch(ctx context.Context, batchID string) error

	// Unavailability operations
	AddUnavailability(ctx context.Context, records []engine.Unavailability) error
	RemoveUnavailability(ctx context.Context, crewID int64, dates []time.Time) (int64, error)
	ListUnavailabilityByMonth(ctx context.Context, month string) ([]engine.Unavailability, error)

	// Assignment and ledger views
	ListAssignmentsByBatch(ctx context.Context, batchID string) ([]AssignmentView, error)
	ListWorkloadByMonth(ctx context.Context, month string) ([]WorkloadRow, error)

	// Run operations
	CreateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	FinishRun(ctx context.Context, id string, outcome RunOutcome) error
	ListRuns(ctx context.Context, batchID string, limit int) ([]*Run, error)

	// Batch locks
	AcquireBatchLock(ctx context.Context, batchID, owner string) error
	ReleaseBatchLock(ctx context.Context, batchID, owner string) error
	GetBatchLock(ctx context.Context, batchID string) (*BatchLock, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
