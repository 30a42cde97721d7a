package engine

import (
	"fmt"
	"time"
)

// DateLayout is the calendar date format used for event dates and reservation keys.
const DateLayout = time.DateOnly

// MonthLayout is the format of workload ledger months.
const MonthLayout = "2006-01"

// Level is the seniority level of a crew member.
type Level string

const (
	LevelSenior Level = "Senior"
	LevelMid    Level = "Mid"
	LevelJunior Level = "Junior"
	LevelHired  Level = "Hired"
)

// Rank returns the seniority rank of the level: Senior 0, Mid 1, Junior 2, Hired 3.
// Unknown levels rank after Hired.
func (l Level) Rank() int {
	switch l {
	case LevelSenior:
		return 0
	case LevelMid:
		return 1
	case LevelJunior:
		return 2
	case LevelHired:
		return 3
	default:
		return 4
	}
}

// Valid reports whether l is one of the known levels.
func (l Level) Valid() bool {
	return l.Rank() <= 3
}

// Role is the seat a crew member fills on an event.
type Role string

const (
	RoleFOH   Role = "FOH"
	RoleStage Role = "Stage"
)

// CrewMember is a sound-crew member together with the capability matrices
// used to decide where they may run front-of-house.
type CrewMember struct {
	ID                   int64                 `json:"id"`
	Name                 string                `json:"name"`
	Level                Level                 `json:"level"`
	CanStage             bool                  `json:"can_stage"`
	StageOnlyIfUrgent    bool                  `json:"stage_only_if_urgent"`
	VenueCapabilities    map[string]Capability `json:"venue_capabilities"`
	VerticalCapabilities map[string]Capability `json:"vertical_capabilities"`
	SpecialNotes         string                `json:"special_notes,omitempty"`
}

// VenueCapability returns the capability for venue, CapabilityNone if absent.
func (c *CrewMember) VenueCapability(venue string) Capability {
	if c.VenueCapabilities == nil {
		return CapabilityNone
	}
	return c.VenueCapabilities[venue]
}

// VerticalCapability returns the capability for vertical, CapabilityNone if absent.
func (c *CrewMember) VerticalCapability(vertical string) Capability {
	if c.VerticalCapabilities == nil {
		return CapabilityNone
	}
	return c.VerticalCapabilities[vertical]
}

// Event is one dated performance in a batch, already normalized upstream.
type Event struct {
	ID                int64     `json:"id"`
	BatchID           string    `json:"batch_id"`
	Name              string    `json:"name"`
	Date              time.Time `json:"date"`
	Venue             string    `json:"venue"`
	VenueNormalized   string    `json:"venue_normalized"`
	Vertical          string    `json:"vertical"`
	StageCrewNeeded   int       `json:"stage_crew_needed"`
	EventGroup        *string   `json:"event_group,omitempty"`
	NeedsManualReview bool      `json:"needs_manual_review"`
	ManualFlagReason  string    `json:"manual_flag_reason,omitempty"`
}

// DateKey returns the event date formatted with DateLayout.
func (e *Event) DateKey() string {
	return e.Date.Format(DateLayout)
}

// Grouped reports whether the event belongs to a multi-day production.
func (e *Event) Grouped() bool {
	return e.EventGroup != nil && *e.EventGroup != ""
}

// Assignment is one persisted crew seat on an event.
type Assignment struct {
	EventID               int64 `json:"event_id"`
	CrewID                int64 `json:"crew_id"`
	Role                  Role  `json:"role"`
	WasManuallyOverridden bool  `json:"was_manually_overridden"`
}

// WorkloadHistory is a persisted ledger entry.
type WorkloadHistory struct {
	CrewID          int64  `json:"crew_id"`
	Month           string `json:"month"`
	AssignmentCount int    `json:"assignment_count"`
}

// Unavailability marks a crew member as unavailable on a date.
type Unavailability struct {
	CrewID int64     `json:"crew_id"`
	Date   time.Time `json:"date"`
	Reason string    `json:"reason,omitempty"`
}

// ConflictType classifies an unmet need.
type ConflictType string

const (
	ConflictManual ConflictType = "Manual"
	ConflictFOH    ConflictType = "FOH"
	ConflictStage  ConflictType = "Stage"
)

// Conflict is an advisory record of a need the engine could not satisfy.
type Conflict struct {
	EventID   int64        `json:"event_id"`
	EventName string       `json:"event_name"`
	Type      ConflictType `json:"type"`
	Reason    string       `json:"reason"`
}

// CrewRef identifies a selected crew member in run output.
type CrewRef struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Level Level  `json:"level"`
}

// EventAssignment is the per-event outcome of a run.
type EventAssignment struct {
	EventID       int64     `json:"event_id"`
	EventName     string    `json:"event_name"`
	Date          string    `json:"date"`
	Venue         string    `json:"venue"`
	Vertical      string    `json:"vertical"`
	EventGroup    string    `json:"event_group,omitempty"`
	FOH           *CrewRef  `json:"foh,omitempty"`
	FOHSpecialist bool      `json:"foh_specialist"`
	Stage         []CrewRef `json:"stage"`
	FOHConflict   bool      `json:"foh_conflict"`
	StageConflict bool      `json:"stage_conflict"`
	ManualReview  bool      `json:"manual_review"`
}

// RunResult is returned by Engine.Run.
type RunResult struct {
	BatchID     string            `json:"batch_id"`
	Month       string            `json:"month"`
	Assignments []EventAssignment `json:"assignments"`
	Conflicts   []Conflict        `json:"conflicts"`
	// Deltas holds the in-run workload added per crew id.
	Deltas map[int64]int `json:"deltas"`
}

// MergeMode selects how end-of-run workload deltas are written to the ledger.
type MergeMode string

const (
	// MergeAdditive adds the run's delta to the stored (crew, month) value.
	MergeAdditive MergeMode = "additive"

	// MergeOverwrite replaces the stored value with the run's post-run month total.
	MergeOverwrite MergeMode = "overwrite"

	// MergeBatchReplace adds the delta after reversing the delta the same batch
	// contributed on a previous run, making reruns idempotent for the ledger.
	MergeBatchReplace MergeMode = "batch-replace"
)

// Valid reports whether m is a known merge mode.
func (m MergeMode) Valid() bool {
	switch m {
	case MergeAdditive, MergeOverwrite, MergeBatchReplace:
		return true
	default:
		return false
	}
}

// WorkloadMerge carries the end-of-run ledger write.
type WorkloadMerge struct {
	BatchID string
	Month   string
	Mode    MergeMode
	// Deltas is the in-run increment per crew id. Only nonzero entries are present.
	Deltas map[int64]int
	// Totals is the post-run count for Month per crew id, used by MergeOverwrite.
	Totals map[int64]int
}

// OverrideRequest replaces one event's assignment wholesale.
type OverrideRequest struct {
	EventID  int64   `json:"event_id"`
	FOHID    *int64  `json:"foh_id,omitempty"`
	StageIDs []int64 `json:"stage_ids"`
}

// Rows expands the request into assignment rows flagged as overridden.
func (r OverrideRequest) Rows() []Assignment {
	rows := make([]Assignment, 0, len(r.StageIDs)+1)
	if r.FOHID != nil {
		rows = append(rows, Assignment{EventID: r.EventID, CrewID: *r.FOHID, Role: RoleFOH, WasManuallyOverridden: true})
	}
	for _, id := range r.StageIDs {
		rows = append(rows, Assignment{EventID: r.EventID, CrewID: id, Role: RoleStage, WasManuallyOverridden: true})
	}
	return rows
}

// OverrideResult reports non-blocking findings raised while checking an override.
type OverrideResult struct {
	EventID  int64           `json:"event_id"`
	Warnings []PolicyFinding `json:"warnings,omitempty"`
}

// PolicyFinding is a single result of an override check.
type PolicyFinding struct {
	Policy   string `json:"policy"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

// Blocking reports whether the finding must reject the override.
func (f PolicyFinding) Blocking() bool {
	return f.Severity == "error" || f.Severity == "critical"
}

func (f PolicyFinding) String() string {
	return fmt.Sprintf("[%s] %s: %s", f.Severity, f.Policy, f.Message)
}

// MonthOf returns the ledger month for t.
func MonthOf(t time.Time) string {
	return t.Format(MonthLayout)
}
