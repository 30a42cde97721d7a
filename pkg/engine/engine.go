package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Run statuses reported to a Recorder.
const (
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// Override outcomes reported to a Recorder.
const (
	OverrideApplied  = "applied"
	OverrideRejected = "rejected"
	OverrideFailed   = "failed"
)

// Engine assigns crew to a batch of events. An Engine holds no run state
// between calls; concurrent runs over the same batch must be serialized by
// the caller.
type Engine struct {
	// repo supplies inputs and receives assignment and ledger writes
	repo Repository

	// rules are the versioned scoring and capability tables
	rules Rules

	logger   zerolog.Logger
	recorder Recorder
	tracer   trace.Tracer
	checker  OverrideChecker
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.recorder = r
		}
	}
}

// WithTracer sets the tracer used for run spans.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

// WithOverrideChecker sets the checker consulted before overrides are written.
func WithOverrideChecker(c OverrideChecker) Option {
	return func(e *Engine) {
		e.checker = c
	}
}

// WithClock sets the clock used for the reference month of empty batches.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine creates an engine over repo with the given rules.
func NewEngine(repo Repository, rules Rules, opts ...Option) (*Engine, error) {
	if repo == nil {
		return nil, NewValidationError("repository is required", nil)
	}
	if err := rules.Validate(); err != nil {
		return nil, NewValidationError("invalid rules", err)
	}

	e := &Engine{
		repo:     repo,
		rules:    rules,
		logger:   zerolog.Nop(),
		recorder: nopRecorder{},
		tracer:   noop.NewTracerProvider().Tracer("crewdesk/engine"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Rules returns the rules the engine was constructed with.
func (e *Engine) Rules() Rules {
	return e.rules
}

// Run performs one allocation pass over the batch. Existing assignment rows for
// the batch are replaced and the run's workload deltas are merged into the
// ledger. A persistence failure aborts the run and leaves partial writes; the
// remedy is to run the batch again.
func (e *Engine) Run(ctx context.Context, batchID string) (*RunResult, error) {
	start := time.Now()
	e.recorder.RecordRunStarted()

	ctx, span := e.tracer.Start(ctx, "run.execute",
		trace.WithAttributes(attribute.String("batch.id", batchID)))
	defer span.End()

	result, err := e.run(ctx, batchID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.recorder.RecordRunCompleted(RunStatusFailed, time.Since(start))
		e.logger.Error().Err(err).Str("batch_id", batchID).Msg("Run failed")
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("run.events", len(result.Assignments)),
		attribute.Int("run.conflicts", len(result.Conflicts)),
	)
	e.recorder.RecordRunCompleted(RunStatusCompleted, time.Since(start))
	e.logger.Info().
		Str("batch_id", batchID).
		Str("month", result.Month).
		Int("events", len(result.Assignments)).
		Int("conflicts", len(result.Conflicts)).
		Dur("duration", time.Since(start)).
		Msg("Run completed")
	return result, nil
}

func (e *Engine) run(ctx context.Context, batchID string) (*RunResult, error) {
	events, err := e.repo.ListEventsByBatch(ctx, batchID)
	if err != nil {
		return nil, e.persistenceError("failed to load events", "load_events", batchID, err)
	}
	crew, err := e.repo.ListCrew(ctx)
	if err != nil {
		return nil, e.persistenceError("failed to load crew", "load_crew", batchID, err)
	}

	ref := e.now()
	var unavailable []Unavailability
	if len(events) > 0 {
		first, last := dateRange(events)
		ref = first
		unavailable, err = e.repo.ListUnavailability(ctx, first, last)
		if err != nil {
			return nil, e.persistenceError("failed to load unavailability", "load_unavailability", batchID, err)
		}
	}

	month := MonthOf(ref)
	months := WindowMonths(ref, e.rules.RollingWindowMonths)
	history, err := e.repo.ListWorkload(ctx, months)
	if err != nil {
		return nil, e.persistenceError("failed to load workload", "load_workload", batchID, err)
	}
	if e.rules.LedgerMerge == MergeBatchReplace {
		prior, err := e.repo.ListBatchDeltas(ctx, batchID)
		if err != nil {
			return nil, e.persistenceError("failed to load batch deltas", "load_batch_deltas", batchID, err)
		}
		history = withoutBatch(history, prior)
	}
	ledger := NewLedger(month, months, history)

	if len(events) > 0 {
		ids := make([]int64, len(events))
		for i := range events {
			ids[i] = events[i].ID
		}
		if err := e.repo.DeleteAssignmentsForEvents(ctx, ids); err != nil {
			return nil, e.persistenceError("failed to clear assignments", "clear_assignments", batchID, err)
		}
	}

	e.logger.Debug().
		Str("batch_id", batchID).
		Int("events", len(events)).
		Int("crew", len(crew)).
		Strs("window", months).
		Msg("Run context loaded")

	rc := newRunContext(batchID, e.rules, crew, events, unavailable, ledger)
	result := &RunResult{
		BatchID:     batchID,
		Month:       month,
		Assignments: make([]EventAssignment, 0, len(events)),
	}

	sorted := sortForProcessing(events)
	for i := range sorted {
		ev := &sorted[i]
		assignment, rows := e.assignEvent(ctx, rc, ev)
		if len(rows) > 0 {
			if err := e.repo.InsertAssignments(ctx, rows); err != nil {
				return nil, e.persistenceError("failed to insert assignments", "insert_assignments", batchID, err).
					WithDetail("event_id", ev.ID)
			}
		}
		result.Assignments = append(result.Assignments, assignment)
	}

	result.Conflicts = rc.conflicts.list()
	result.Deltas = ledger.Deltas()

	if len(result.Deltas) > 0 || e.rules.LedgerMerge == MergeBatchReplace {
		merge := WorkloadMerge{
			BatchID: batchID,
			Month:   month,
			Mode:    e.rules.LedgerMerge,
			Deltas:  result.Deltas,
			Totals:  ledger.MonthTotals(),
		}
		if err := e.repo.MergeWorkload(ctx, merge); err != nil {
			return nil, e.persistenceError("failed to merge workload", "merge_workload", batchID, err)
		}
	}

	for _, id := range ledger.touched() {
		e.logger.Debug().
			Int64("crew_id", id).
			Int("delta", result.Deltas[id]).
			Int("rolling", ledger.Rolling(id)).
			Msg("Workload updated")
	}
	return result, nil
}

// assignEvent resolves one event. The first event of a production decides for
// the whole production; later ones replay that decision.
func (e *Engine) assignEvent(ctx context.Context, rc *runContext, ev *Event) (EventAssignment, []Assignment) {
	var d *groupDecision
	if ev.Grouped() {
		d = rc.decisions[*ev.EventGroup]
	}
	if d == nil {
		d = e.decide(ctx, rc, ev)
		if ev.Grouped() {
			rc.decisions[*ev.EventGroup] = d
		}
	}
	return e.apply(rc, ev, d)
}

func (e *Engine) decide(ctx context.Context, rc *runContext, ev *Event) *groupDecision {
	dates := rc.prods.datesFor(ev)

	_, span := e.tracer.Start(ctx, "group.assign", trace.WithAttributes(
		attribute.Int64("event.id", ev.ID),
		attribute.String("event.vertical", ev.Vertical),
		attribute.String("event.venue", ev.VenueNormalized),
		attribute.Int("group.dates", len(dates)),
	))
	defer span.End()

	if manual, reason := rc.prods.manualReview(ev); manual {
		span.SetAttributes(attribute.Bool("manual_review", true))
		return &groupDecision{manual: true, manualReason: reason}
	}

	d := &groupDecision{}
	foh, specialist, path := rc.selectFOH(ev, dates)
	if foh == nil {
		d.fohConflict = reasonNoFOH
	} else {
		rc.book(foh, dates)
		d.foh, d.fohSpecialist = foh, specialist
		e.recorder.RecordSelection(RoleFOH, path)
		e.logger.Debug().
			Int64("event_id", ev.ID).
			Int64("crew_id", foh.ID).
			Str("role", string(RoleFOH)).
			Str("path", path).
			Bool("specialist", specialist).
			Msg("FOH selected")
	}

	needed := ev.StageCrewNeeded - 1
	if needed > 0 {
		d.stage = rc.selectStage(dates, foh, needed)
		for _, c := range d.stage {
			rc.book(c, dates)
			e.recorder.RecordSelection(RoleStage, PathScored)
			e.logger.Debug().
				Int64("event_id", ev.ID).
				Int64("crew_id", c.ID).
				Str("role", string(RoleStage)).
				Msg("Stage selected")
		}
		if len(d.stage) < needed {
			d.stageConflict = stageShortfallReason(len(d.stage), needed)
		}
	}
	return d
}

// apply materializes a decision for one event: its rows, its conflicts and a
// reservation on its own date.
func (e *Engine) apply(rc *runContext, ev *Event, d *groupDecision) (EventAssignment, []Assignment) {
	out := EventAssignment{
		EventID:   ev.ID,
		EventName: ev.Name,
		Date:      ev.DateKey(),
		Venue:     ev.Venue,
		Vertical:  ev.Vertical,
		Stage:     []CrewRef{},
	}
	if ev.Grouped() {
		out.EventGroup = *ev.EventGroup
	}

	if d.manual {
		out.ManualReview = true
		if rc.conflicts.record(ev, ConflictManual, d.manualReason) {
			e.recorder.RecordConflict(ConflictManual)
		}
		return out, nil
	}

	own := []string{ev.DateKey()}
	var rows []Assignment
	if d.foh != nil {
		rc.avail.Reserve(d.foh.ID, own)
		out.FOH = crewRef(d.foh)
		out.FOHSpecialist = d.fohSpecialist
		rows = append(rows, Assignment{EventID: ev.ID, CrewID: d.foh.ID, Role: RoleFOH})
	} else {
		out.FOHConflict = true
		if rc.conflicts.record(ev, ConflictFOH, d.fohConflict) {
			e.recorder.RecordConflict(ConflictFOH)
		}
	}

	for _, c := range d.stage {
		rc.avail.Reserve(c.ID, own)
		out.Stage = append(out.Stage, *crewRef(c))
		rows = append(rows, Assignment{EventID: ev.ID, CrewID: c.ID, Role: RoleStage})
	}
	if d.stageConflict != "" {
		out.StageConflict = true
		if rc.conflicts.record(ev, ConflictStage, d.stageConflict) {
			e.recorder.RecordConflict(ConflictStage)
		}
	}
	return out, rows
}

// Override replaces an event's assignment wholesale. It does not rescore and
// does not touch the workload ledger. When an OverrideChecker is configured,
// blocking findings reject the override and the rest come back as warnings.
func (e *Engine) Override(ctx context.Context, req OverrideRequest) (*OverrideResult, error) {
	result, err := e.override(ctx, req)
	switch {
	case err == nil:
		e.recorder.RecordOverride(OverrideApplied)
	case IsValidation(err):
		e.recorder.RecordOverride(OverrideRejected)
	default:
		e.recorder.RecordOverride(OverrideFailed)
	}
	return result, err
}

func (e *Engine) override(ctx context.Context, req OverrideRequest) (*OverrideResult, error) {
	seen := make(map[int64]bool, len(req.StageIDs))
	for _, id := range req.StageIDs {
		if seen[id] {
			return nil, NewValidationError(fmt.Sprintf("crew %d listed twice for stage", id), nil).
				WithCode(ErrCodeDuplicateCrew).
				WithOperation("override")
		}
		seen[id] = true
	}
	if req.FOHID != nil && seen[*req.FOHID] {
		return nil, NewValidationError(fmt.Sprintf("crew %d listed for both FOH and stage", *req.FOHID), nil).
			WithCode(ErrCodeDuplicateCrew).
			WithOperation("override")
	}

	ev, err := e.repo.GetEvent(ctx, req.EventID)
	if err != nil {
		if IsNotFound(err) {
			return nil, NewNotFoundError(fmt.Sprintf("event %d not found", req.EventID), err).WithOperation("override")
		}
		return nil, NewPersistenceError("failed to load event", err).WithOperation("override")
	}

	crew, err := e.repo.ListCrew(ctx)
	if err != nil {
		return nil, NewPersistenceError("failed to load crew", err).WithOperation("override")
	}
	byID := make(map[int64]*CrewMember, len(crew))
	for i := range crew {
		byID[crew[i].ID] = &crew[i]
	}

	in := OverrideInput{
		Event:             *ev,
		ExperimentalVenue: e.rules.ExperimentalVenue,
	}
	if req.FOHID != nil {
		c, ok := byID[*req.FOHID]
		if !ok {
			return nil, NewNotFoundError(fmt.Sprintf("crew %d not found", *req.FOHID), nil).WithOperation("override")
		}
		in.FOH = c
	}
	for _, id := range req.StageIDs {
		c, ok := byID[id]
		if !ok {
			return nil, NewNotFoundError(fmt.Sprintf("crew %d not found", id), nil).WithOperation("override")
		}
		in.Stage = append(in.Stage, *c)
	}

	result := &OverrideResult{EventID: req.EventID}
	if e.checker != nil {
		records, err := e.repo.ListUnavailability(ctx, ev.Date, ev.Date)
		if err != nil {
			return nil, NewPersistenceError("failed to load unavailability", err).WithOperation("override")
		}
		for _, r := range records {
			in.UnavailableCrew = append(in.UnavailableCrew, r.CrewID)
		}
		sort.Slice(in.UnavailableCrew, func(i, j int) bool { return in.UnavailableCrew[i] < in.UnavailableCrew[j] })

		findings, err := e.checker.CheckOverride(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("override check failed: %w", err)
		}
		var blocking []string
		for _, f := range findings {
			if f.Blocking() {
				blocking = append(blocking, f.String())
				continue
			}
			result.Warnings = append(result.Warnings, f)
		}
		if len(blocking) > 0 {
			return nil, NewValidationError("override rejected by policy", nil).
				WithCode(ErrCodePolicyRejected).
				WithOperation("override").
				WithDetail("violations", blocking)
		}
	}

	if err := e.repo.ReplaceEventAssignments(ctx, req.EventID, req.Rows()); err != nil {
		return nil, NewPersistenceError("failed to replace assignments", err).WithOperation("override")
	}

	e.logger.Info().
		Int64("event_id", req.EventID).
		Int("stage", len(req.StageIDs)).
		Bool("foh", req.FOHID != nil).
		Int("warnings", len(result.Warnings)).
		Msg("Override applied")
	return result, nil
}

func (e *Engine) persistenceError(msg, op, batchID string, err error) *EngineError {
	return NewPersistenceError(msg, err).WithBatch(batchID).WithOperation(op)
}

func dateRange(events []Event) (first, last time.Time) {
	first, last = events[0].Date, events[0].Date
	for _, ev := range events[1:] {
		if ev.Date.Before(first) {
			first = ev.Date
		}
		if ev.Date.After(last) {
			last = ev.Date
		}
	}
	return first, last
}

func crewRef(c *CrewMember) *CrewRef {
	return &CrewRef{ID: c.ID, Name: c.Name, Level: c.Level}
}
