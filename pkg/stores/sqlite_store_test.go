package stores

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/stagecrew/crewdesk/pkg/engine"
)

// setupTestStore creates a migrated SQLite store in a temporary directory
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{
		Path: filepath.Join(t.TempDir(), "crewdesk.db"),
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	t.Cleanup(func() { _ = store.Close() })
	return store
}

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse(engine.DateLayout, s)
	if err != nil {
		t.Fatalf("bad date %s: %v", s, err)
	}
	return d
}

func seedCrew(t *testing.T, store *SQLiteStore, names ...string) []int64 {
	t.Helper()
	ids := make([]int64, 0, len(names))
	for _, name := range names {
		c := &engine.CrewMember{
			Name:     name,
			Level:    engine.LevelMid,
			CanStage: true,
			VenueCapabilities: map[string]engine.Capability{
				"JBT": engine.CapabilityYes,
			},
			VerticalCapabilities: map[string]engine.Capability{
				"Dance": engine.CapabilitySpecialist,
			},
		}
		if err := store.UpsertCrew(context.Background(), c); err != nil {
			t.Fatalf("failed to upsert crew %s: %v", name, err)
		}
		ids = append(ids, c.ID)
	}
	return ids
}

// TestStoreLifecycle tests database initialization and closure
func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}

	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Error("expected error for empty path")
	}
}

// TestStoreMigrations tests database migrations
func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	tables := []string{
		"crew", "events", "crew_unavailability", "assignments",
		"workload_history", "workload_batch_deltas", "runs", "batch_locks",
	}
	for _, table := range tables {
		query := "SELECT COUNT(*) FROM " + table
		var count int
		if err := store.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}

	// running migrations twice is a no-op
	if err := store.Migrate(ctx); err != nil {
		t.Errorf("second migrate failed: %v", err)
	}
}

// TestCrewCRUD tests crew upsert and lookup
func TestCrewCRUD(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	crew := &engine.CrewMember{
		Name:              "Asha",
		Level:             engine.LevelSenior,
		CanStage:          false,
		StageOnlyIfUrgent: true,
		VenueCapabilities: map[string]engine.Capability{
			"JBT":          engine.CapabilitySpecialist,
			"Experimental": engine.CapabilityYes,
		},
		VerticalCapabilities: map[string]engine.Capability{
			"Theatre": engine.CapabilityExperimentalOnly,
			"Dance":   engine.CapabilityNo,
		},
		SpecialNotes: "prefers evenings",
	}
	if err := store.UpsertCrew(ctx, crew); err != nil {
		t.Fatalf("failed to upsert crew: %v", err)
	}
	if crew.ID == 0 {
		t.Fatal("expected crew ID to be set")
	}

	got, err := store.GetCrew(ctx, crew.ID)
	if err != nil {
		t.Fatalf("failed to get crew: %v", err)
	}
	if got.Name != "Asha" || got.Level != engine.LevelSenior {
		t.Errorf("unexpected crew: %+v", got)
	}
	if !got.StageOnlyIfUrgent || got.CanStage {
		t.Errorf("flags not round-tripped: %+v", got)
	}
	if got.VenueCapability("JBT") != engine.CapabilitySpecialist {
		t.Errorf("expected JBT Y*, got %v", got.VenueCapability("JBT"))
	}
	if got.VerticalCapability("Theatre") != engine.CapabilityExperimentalOnly {
		t.Errorf("expected Theatre Exp only, got %v", got.VerticalCapability("Theatre"))
	}
	if got.VerticalCapability("Dance") != engine.CapabilityNo {
		t.Errorf("expected Dance N, got %v", got.VerticalCapability("Dance"))
	}

	// upsert by name updates in place
	update := &engine.CrewMember{Name: "Asha", Level: engine.LevelMid, CanStage: true}
	if err := store.UpsertCrew(ctx, update); err != nil {
		t.Fatalf("failed to update crew: %v", err)
	}
	if update.ID != crew.ID {
		t.Errorf("expected upsert to keep id %d, got %d", crew.ID, update.ID)
	}

	byName, err := store.GetCrewByName(ctx, "Asha")
	if err != nil {
		t.Fatalf("failed to get crew by name: %v", err)
	}
	if byName.Level != engine.LevelMid || !byName.CanStage {
		t.Errorf("update not applied: %+v", byName)
	}

	all, err := store.ListCrew(ctx)
	if err != nil {
		t.Fatalf("failed to list crew: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("expected 1 crew member, got %d", len(all))
	}

	if err := store.UpsertCrew(ctx, &engine.CrewMember{Name: "Bad", Level: "Boss"}); err == nil {
		t.Error("expected error for invalid level")
	}

	if err := store.DeleteCrew(ctx, crew.ID); err != nil {
		t.Fatalf("failed to delete crew: %v", err)
	}
	if _, err := store.GetCrew(ctx, crew.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := store.DeleteCrew(ctx, crew.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

// TestEventOperations tests event insert, ordering and operator edits
func TestEventOperations(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	gala := "gala-1"
	events := []engine.Event{
		{BatchID: "b1", Name: "Zeta", Date: mustDate(t, "2024-03-02"), Venue: "JBT Main", VenueNormalized: "JBT", Vertical: "Dance", StageCrewNeeded: 2},
		{BatchID: "b1", Name: "Gala", Date: mustDate(t, "2024-03-02"), VenueNormalized: "Tata", Vertical: "Music", StageCrewNeeded: 3, EventGroup: &gala},
		{BatchID: "b1", Name: "Gala", Date: mustDate(t, "2024-03-01"), VenueNormalized: "Tata", Vertical: "Music", StageCrewNeeded: 3, EventGroup: &gala,
			NeedsManualReview: true, ManualFlagReason: "check venue"},
		{BatchID: "b2", Name: "Other", Date: mustDate(t, "2024-04-01"), VenueNormalized: "JBT", Vertical: "Dance", StageCrewNeeded: 1},
	}

	ids, err := store.InsertEvents(ctx, events)
	if err != nil {
		t.Fatalf("failed to insert events: %v", err)
	}
	if len(ids) != 4 || events[0].ID != ids[0] {
		t.Fatalf("expected ids set on events, got %v", ids)
	}

	listed, err := store.ListEventsByBatch(ctx, "b1")
	if err != nil {
		t.Fatalf("failed to list events: %v", err)
	}
	if len(listed) != 3 {
		t.Fatalf("expected 3 events, got %d", len(listed))
	}
	wantOrder := []int64{ids[2], ids[1], ids[0]}
	for i, e := range listed {
		if e.ID != wantOrder[i] {
			t.Errorf("position %d: expected event %d, got %d", i, wantOrder[i], e.ID)
		}
	}
	if listed[0].EventGroup == nil || *listed[0].EventGroup != gala {
		t.Errorf("expected event group %s, got %v", gala, listed[0].EventGroup)
	}
	if !listed[0].NeedsManualReview || listed[0].ManualFlagReason != "check venue" {
		t.Errorf("manual review flag not round-tripped: %+v", listed[0])
	}
	if listed[2].EventGroup != nil {
		t.Errorf("expected nil event group, got %v", *listed[2].EventGroup)
	}
	if listed[2].DateKey() != "2024-03-02" {
		t.Errorf("expected date 2024-03-02, got %s", listed[2].DateKey())
	}

	if err := store.UpdateStageCrewNeeded(ctx, ids[0], 4); err != nil {
		t.Fatalf("failed to update stage crew: %v", err)
	}
	got, err := store.GetEvent(ctx, ids[0])
	if err != nil {
		t.Fatalf("failed to get event: %v", err)
	}
	if got.StageCrewNeeded != 4 {
		t.Errorf("expected stage crew 4, got %d", got.StageCrewNeeded)
	}
	if err := store.UpdateStageCrewNeeded(ctx, ids[0], -1); err == nil {
		t.Error("expected error for negative stage crew")
	}
	if err := store.UpdateStageCrewNeeded(ctx, 9999, 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.GetEvent(ctx, 9999); !engine.IsNotFound(err) {
		t.Errorf("expected engine.IsNotFound for missing event, got %v", err)
	}

	batches, err := store.ListBatches(ctx)
	if err != nil {
		t.Fatalf("failed to list batches: %v", err)
	}
	if len(batches) != 2 || batches[0].BatchID != "b1" || batches[0].EventCount != 3 {
		t.Errorf("unexpected batches: %+v", batches)
	}
	if batches[0].FirstDate != "2024-03-01" || batches[0].LastDate != "2024-03-02" {
		t.Errorf("unexpected batch range: %+v", batches[0])
	}

	if err := store.DeleteBatch(ctx, "b2"); err != nil {
		t.Fatalf("failed to delete batch: %v", err)
	}
	if err := store.DeleteBatch(ctx, "b2"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// TestUnavailability tests unavailability add, range queries and removal
func TestUnavailability(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	ids := seedCrew(t, store, "Asha", "Bilal")

	records := []engine.Unavailability{
		{CrewID: ids[0], Date: mustDate(t, "2024-03-01"), Reason: "travel"},
		{CrewID: ids[0], Date: mustDate(t, "2024-03-15")},
		{CrewID: ids[1], Date: mustDate(t, "2024-04-02")},
	}
	if err := store.AddUnavailability(ctx, records); err != nil {
		t.Fatalf("failed to add unavailability: %v", err)
	}

	// re-adding updates the reason
	if err := store.AddUnavailability(ctx, []engine.Unavailability{
		{CrewID: ids[0], Date: mustDate(t, "2024-03-01"), Reason: "family"},
	}); err != nil {
		t.Fatalf("failed to re-add unavailability: %v", err)
	}

	inRange, err := store.ListUnavailability(ctx, mustDate(t, "2024-03-01"), mustDate(t, "2024-03-31"))
	if err != nil {
		t.Fatalf("failed to list unavailability: %v", err)
	}
	if len(inRange) != 2 {
		t.Fatalf("expected 2 records in March, got %d", len(inRange))
	}
	if inRange[0].Reason != "family" {
		t.Errorf("expected updated reason, got %q", inRange[0].Reason)
	}

	april, err := store.ListUnavailabilityByMonth(ctx, "2024-04")
	if err != nil {
		t.Fatalf("failed to list by month: %v", err)
	}
	if len(april) != 1 || april[0].CrewID != ids[1] {
		t.Errorf("unexpected April records: %+v", april)
	}

	removed, err := store.RemoveUnavailability(ctx, ids[0],
		[]time.Time{mustDate(t, "2024-03-01"), mustDate(t, "2024-03-20")})
	if err != nil {
		t.Fatalf("failed to remove unavailability: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 row removed, got %d", removed)
	}

	if err := store.AddUnavailability(ctx, []engine.Unavailability{
		{CrewID: 9999, Date: mustDate(t, "2024-03-01")},
	}); err == nil {
		t.Error("expected foreign key error for unknown crew")
	}
}

// TestAssignments tests the assignment write paths used by runs and overrides
func TestAssignments(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	crew := seedCrew(t, store, "Asha", "Bilal", "Chetan")

	events := []engine.Event{
		{BatchID: "b1", Name: "One", Date: mustDate(t, "2024-03-01"), VenueNormalized: "JBT", Vertical: "Dance", StageCrewNeeded: 2},
		{BatchID: "b1", Name: "Two", Date: mustDate(t, "2024-03-02"), VenueNormalized: "JBT", Vertical: "Dance", StageCrewNeeded: 2},
	}
	ids, err := store.InsertEvents(ctx, events)
	if err != nil {
		t.Fatalf("failed to insert events: %v", err)
	}

	rows := []engine.Assignment{
		{EventID: ids[0], CrewID: crew[1], Role: engine.RoleStage},
		{EventID: ids[0], CrewID: crew[0], Role: engine.RoleFOH},
		{EventID: ids[1], CrewID: crew[0], Role: engine.RoleFOH},
	}
	if err := store.InsertAssignments(ctx, rows); err != nil {
		t.Fatalf("failed to insert assignments: %v", err)
	}

	views, err := store.ListAssignmentsByBatch(ctx, "b1")
	if err != nil {
		t.Fatalf("failed to list assignments: %v", err)
	}
	if len(views) != 3 {
		t.Fatalf("expected 3 assignments, got %d", len(views))
	}
	if views[0].Role != engine.RoleFOH || views[0].CrewName != "Asha" {
		t.Errorf("expected FOH first, got %+v", views[0])
	}

	// one role per crew member per event
	dup := []engine.Assignment{{EventID: ids[0], CrewID: crew[0], Role: engine.RoleStage}}
	if err := store.InsertAssignments(ctx, dup); err == nil {
		t.Error("expected unique constraint error")
	}

	override := []engine.Assignment{
		{EventID: ids[1], CrewID: crew[2], Role: engine.RoleFOH, WasManuallyOverridden: true},
	}
	if err := store.ReplaceEventAssignments(ctx, ids[1], override); err != nil {
		t.Fatalf("failed to replace assignments: %v", err)
	}
	views, err = store.ListAssignmentsByBatch(ctx, "b1")
	if err != nil {
		t.Fatalf("failed to list assignments: %v", err)
	}
	last := views[len(views)-1]
	if last.CrewID != crew[2] || !last.WasManuallyOverridden {
		t.Errorf("expected overridden row for Chetan, got %+v", last)
	}

	if err := store.DeleteAssignmentsForEvents(ctx, ids); err != nil {
		t.Fatalf("failed to delete assignments: %v", err)
	}
	views, err = store.ListAssignmentsByBatch(ctx, "b1")
	if err != nil {
		t.Fatalf("failed to list assignments: %v", err)
	}
	if len(views) != 0 {
		t.Errorf("expected no assignments, got %d", len(views))
	}
}

func workloadFor(t *testing.T, store *SQLiteStore, month string) map[int64]int {
	t.Helper()
	rows, err := store.ListWorkload(context.Background(), []string{month})
	if err != nil {
		t.Fatalf("failed to list workload: %v", err)
	}
	out := make(map[int64]int)
	for _, r := range rows {
		out[r.CrewID] = r.AssignmentCount
	}
	return out
}

// TestMergeWorkload tests the three ledger merge modes
func TestMergeWorkload(t *testing.T) {
	ctx := context.Background()

	t.Run("additive", func(t *testing.T) {
		store := setupTestStore(t)
		ids := seedCrew(t, store, "Asha", "Bilal")

		merge := engine.WorkloadMerge{
			BatchID: "b1", Month: "2024-03", Mode: engine.MergeAdditive,
			Deltas: map[int64]int{ids[0]: 2, ids[1]: 1},
		}
		for i := 0; i < 2; i++ {
			if err := store.MergeWorkload(ctx, merge); err != nil {
				t.Fatalf("merge %d failed: %v", i, err)
			}
		}

		got := workloadFor(t, store, "2024-03")
		if got[ids[0]] != 4 || got[ids[1]] != 2 {
			t.Errorf("expected additive totals 4/2, got %v", got)
		}
	})

	t.Run("overwrite", func(t *testing.T) {
		store := setupTestStore(t)
		ids := seedCrew(t, store, "Asha")

		for _, total := range []int{5, 3} {
			merge := engine.WorkloadMerge{
				BatchID: "b1", Month: "2024-03", Mode: engine.MergeOverwrite,
				Deltas: map[int64]int{ids[0]: 1},
				Totals: map[int64]int{ids[0]: total},
			}
			if err := store.MergeWorkload(ctx, merge); err != nil {
				t.Fatalf("merge failed: %v", err)
			}
		}

		if got := workloadFor(t, store, "2024-03")[ids[0]]; got != 3 {
			t.Errorf("expected overwritten total 3, got %d", got)
		}
	})

	t.Run("batch-replace", func(t *testing.T) {
		store := setupTestStore(t)
		ids := seedCrew(t, store, "Asha", "Bilal")

		// history from an unrelated batch
		if err := store.MergeWorkload(ctx, engine.WorkloadMerge{
			BatchID: "older", Month: "2024-03", Mode: engine.MergeAdditive,
			Deltas: map[int64]int{ids[0]: 5},
		}); err != nil {
			t.Fatalf("seed merge failed: %v", err)
		}

		first := engine.WorkloadMerge{
			BatchID: "b1", Month: "2024-03", Mode: engine.MergeBatchReplace,
			Deltas: map[int64]int{ids[0]: 2, ids[1]: 3},
		}
		if err := store.MergeWorkload(ctx, first); err != nil {
			t.Fatalf("first merge failed: %v", err)
		}

		rerun := engine.WorkloadMerge{
			BatchID: "b1", Month: "2024-03", Mode: engine.MergeBatchReplace,
			Deltas: map[int64]int{ids[0]: 1},
		}
		if err := store.MergeWorkload(ctx, rerun); err != nil {
			t.Fatalf("rerun merge failed: %v", err)
		}

		got := workloadFor(t, store, "2024-03")
		if got[ids[0]] != 6 {
			t.Errorf("expected 5 + 1 for Asha, got %d", got[ids[0]])
		}
		if got[ids[1]] != 0 {
			t.Errorf("expected Bilal's previous delta reversed, got %d", got[ids[1]])
		}

		deltas, err := store.ListBatchDeltas(ctx, "b1")
		if err != nil {
			t.Fatalf("failed to list batch deltas: %v", err)
		}
		want := []engine.WorkloadHistory{{CrewID: ids[0], Month: "2024-03", AssignmentCount: 1}}
		if !reflect.DeepEqual(deltas, want) {
			t.Errorf("expected only the rerun's deltas recorded, got %+v", deltas)
		}
		if deltas, err := store.ListBatchDeltas(ctx, "older"); err != nil || len(deltas) != 0 {
			t.Errorf("expected no recorded deltas for an additive batch, got %+v (%v)", deltas, err)
		}
	})

	t.Run("invalid mode", func(t *testing.T) {
		store := setupTestStore(t)
		if err := store.MergeWorkload(ctx, engine.WorkloadMerge{Mode: "sideways"}); err == nil {
			t.Error("expected error for invalid merge mode")
		}
	})
}

// TestListWorkloadByMonth tests the zero-filled monthly ledger view
func TestListWorkloadByMonth(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	ids := seedCrew(t, store, "Asha", "Bilal")

	if err := store.MergeWorkload(ctx, engine.WorkloadMerge{
		Month: "2024-03", Mode: engine.MergeAdditive, Deltas: map[int64]int{ids[1]: 4},
	}); err != nil {
		t.Fatalf("merge failed: %v", err)
	}

	rows, err := store.ListWorkloadByMonth(ctx, "2024-03")
	if err != nil {
		t.Fatalf("failed to list workload: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].AssignmentCount != 0 || rows[1].AssignmentCount != 4 {
		t.Errorf("unexpected workload rows: %+v", rows)
	}
}

// TestRunCRUD tests run record creation and completion
func TestRunCRUD(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	run := &Run{BatchID: "b1"}
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}
	if run.ID == "" {
		t.Fatal("expected generated run ID")
	}

	retrieved, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if retrieved.Status != RunStatusRunning {
		t.Errorf("expected status running, got %s", retrieved.Status)
	}
	if retrieved.CompletedAt != nil {
		t.Error("expected nil CompletedAt for a running run")
	}

	errMsg := "disk full"
	if err := store.FinishRun(ctx, run.ID, RunOutcome{
		Status:        RunStatusFailed,
		Month:         "2024-03",
		EventCount:    3,
		ConflictCount: 1,
		Error:         &errMsg,
	}); err != nil {
		t.Fatalf("failed to finish run: %v", err)
	}

	finished, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if finished.Status != RunStatusFailed || finished.EventCount != 3 || finished.ConflictCount != 1 {
		t.Errorf("unexpected finished run: %+v", finished)
	}
	if finished.Error == nil || *finished.Error != errMsg {
		t.Errorf("expected error %q, got %v", errMsg, finished.Error)
	}
	if finished.CompletedAt == nil {
		t.Error("expected CompletedAt to be set")
	}

	runs, err := store.ListRuns(ctx, "b1", 10)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(runs) != 1 {
		t.Errorf("expected 1 run, got %d", len(runs))
	}

	if err := store.FinishRun(ctx, "missing", RunOutcome{Status: RunStatusCompleted}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// TestBatchLocks tests per-batch run serialization
func TestBatchLocks(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.AcquireBatchLock(ctx, "b1", "run-a"); err != nil {
		t.Fatalf("failed to acquire lock: %v", err)
	}

	err := store.AcquireBatchLock(ctx, "b1", "run-b")
	if !errors.Is(err, ErrBatchLocked) {
		t.Fatalf("expected ErrBatchLocked, got %v", err)
	}

	// other batches are independent
	if err := store.AcquireBatchLock(ctx, "b2", "run-b"); err != nil {
		t.Fatalf("failed to acquire lock on b2: %v", err)
	}

	lock, err := store.GetBatchLock(ctx, "b1")
	if err != nil {
		t.Fatalf("failed to get lock: %v", err)
	}
	if lock.Owner != "run-a" {
		t.Errorf("expected owner run-a, got %s", lock.Owner)
	}

	if err := store.ReleaseBatchLock(ctx, "b1", "run-b"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound releasing another owner's lock, got %v", err)
	}
	if err := store.ReleaseBatchLock(ctx, "b1", "run-a"); err != nil {
		t.Fatalf("failed to release lock: %v", err)
	}
	if err := store.AcquireBatchLock(ctx, "b1", "run-b"); err != nil {
		t.Errorf("expected lock to be free after release: %v", err)
	}
}
