package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagecrew/crewdesk/pkg/engine"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	eng, err := NewEngine(zerolog.Nop())
	require.NoError(t, err)
	return eng
}

func testEvent() engine.Event {
	return engine.Event{
		ID:              7,
		BatchID:         "2024-03-week1",
		Name:            "Nutcracker",
		Date:            time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
		VenueNormalized: "JBT",
		Vertical:        "Dance",
		StageCrewNeeded: 2,
	}
}

func capableFOH() *engine.CrewMember {
	return &engine.CrewMember{
		ID:                   1,
		Name:                 "Asha",
		Level:                engine.LevelSenior,
		VenueCapabilities:    map[string]engine.Capability{"JBT": engine.CapabilityYes},
		VerticalCapabilities: map[string]engine.Capability{"Dance": engine.CapabilitySpecialist},
	}
}

func stageHand(id int64, name string) engine.CrewMember {
	return engine.CrewMember{ID: id, Name: name, Level: engine.LevelJunior, CanStage: true}
}

func findingsByPolicy(findings []engine.PolicyFinding) map[string]engine.PolicyFinding {
	out := make(map[string]engine.PolicyFinding, len(findings))
	for _, f := range findings {
		out[f.Policy] = f
	}
	return out
}

func TestNewEngine_BuiltinPolicies(t *testing.T) {
	eng := newTestEngine(t)

	var names []string
	for _, p := range eng.ListPolicies() {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{
		PolicyFOHCapability,
		PolicyHiredFOH,
		PolicyRoleOverlap,
		PolicyStageEligibility,
		PolicyUnavailable,
	}, names)
}

func TestCheckOverride_Clean(t *testing.T) {
	eng := newTestEngine(t)

	findings, err := eng.CheckOverride(context.Background(), engine.OverrideInput{
		Event:             testEvent(),
		FOH:               capableFOH(),
		Stage:             []engine.CrewMember{stageHand(2, "Bilal")},
		ExperimentalVenue: "Experimental",
	})
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestCheckOverride_RoleOverlapBlocks(t *testing.T) {
	eng := newTestEngine(t)
	foh := capableFOH()
	foh.CanStage = true

	findings, err := eng.CheckOverride(context.Background(), engine.OverrideInput{
		Event:             testEvent(),
		FOH:               foh,
		Stage:             []engine.CrewMember{*foh},
		ExperimentalVenue: "Experimental",
	})
	require.NoError(t, err)

	got := findingsByPolicy(findings)
	require.Contains(t, got, PolicyRoleOverlap)
	assert.True(t, got[PolicyRoleOverlap].Blocking())
	assert.Contains(t, got[PolicyRoleOverlap].Message, "Asha")
}

func TestCheckOverride_Warnings(t *testing.T) {
	tests := []struct {
		name   string
		input  func() engine.OverrideInput
		policy string
	}{
		{
			name: "hired FOH",
			input: func() engine.OverrideInput {
				foh := capableFOH()
				foh.Level = engine.LevelHired
				return engine.OverrideInput{Event: testEvent(), FOH: foh, ExperimentalVenue: "Experimental"}
			},
			policy: PolicyHiredFOH,
		},
		{
			name: "FOH without venue capability",
			input: func() engine.OverrideInput {
				foh := capableFOH()
				foh.VenueCapabilities = map[string]engine.Capability{"Tata": engine.CapabilityYes}
				return engine.OverrideInput{Event: testEvent(), FOH: foh, ExperimentalVenue: "Experimental"}
			},
			policy: PolicyFOHCapability,
		},
		{
			name: "Exp only outside the experimental venue",
			input: func() engine.OverrideInput {
				foh := capableFOH()
				foh.VerticalCapabilities = map[string]engine.Capability{"Dance": engine.CapabilityExperimentalOnly}
				return engine.OverrideInput{Event: testEvent(), FOH: foh, ExperimentalVenue: "Experimental"}
			},
			policy: PolicyFOHCapability,
		},
		{
			name: "stage member without stage flag",
			input: func() engine.OverrideInput {
				s := stageHand(2, "Bilal")
				s.CanStage = false
				return engine.OverrideInput{Event: testEvent(), Stage: []engine.CrewMember{s}, ExperimentalVenue: "Experimental"}
			},
			policy: PolicyStageEligibility,
		},
		{
			name: "unavailable stage member",
			input: func() engine.OverrideInput {
				return engine.OverrideInput{
					Event:             testEvent(),
					FOH:               capableFOH(),
					Stage:             []engine.CrewMember{stageHand(2, "Bilal")},
					UnavailableCrew:   []int64{2},
					ExperimentalVenue: "Experimental",
				}
			},
			policy: PolicyUnavailable,
		},
		{
			name: "unavailable FOH",
			input: func() engine.OverrideInput {
				return engine.OverrideInput{
					Event:             testEvent(),
					FOH:               capableFOH(),
					UnavailableCrew:   []int64{1},
					ExperimentalVenue: "Experimental",
				}
			},
			policy: PolicyUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := newTestEngine(t)

			findings, err := eng.CheckOverride(context.Background(), tt.input())
			require.NoError(t, err)

			got := findingsByPolicy(findings)
			require.Contains(t, got, tt.policy)
			assert.Equal(t, string(SeverityWarning), got[tt.policy].Severity)
			assert.False(t, got[tt.policy].Blocking())
			for _, f := range findings {
				assert.False(t, f.Blocking(), "unexpected blocking finding %s", f)
			}
		})
	}
}

func TestCheckOverride_ExperimentalVenueAllowsExpOnly(t *testing.T) {
	eng := newTestEngine(t)

	ev := testEvent()
	ev.VenueNormalized = "Experimental"
	foh := capableFOH()
	foh.VenueCapabilities = map[string]engine.Capability{"Experimental": engine.CapabilityYes}
	foh.VerticalCapabilities = map[string]engine.Capability{"Dance": engine.CapabilityExperimentalOnly}

	findings, err := eng.CheckOverride(context.Background(), engine.OverrideInput{
		Event:             ev,
		FOH:               foh,
		ExperimentalVenue: "Experimental",
	})
	require.NoError(t, err)
	assert.NotContains(t, findingsByPolicy(findings), PolicyFOHCapability)
}

func TestEvaluate_ViolationFields(t *testing.T) {
	eng := newTestEngine(t)
	foh := capableFOH()
	foh.Level = engine.LevelHired

	result, err := eng.Evaluate(context.Background(), &PolicyInput{
		Override: NewOverrideDoc(engine.OverrideInput{Event: testEvent(), FOH: foh}),
		Context:  &PolicyContext{Timestamp: time.Now(), Operation: "override"},
	})
	require.NoError(t, err)

	assert.True(t, result.Allowed)
	assert.Empty(t, result.Violations)
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, PolicyHiredFOH, result.Warnings[0].Policy)
	assert.Equal(t, int64(1), result.Warnings[0].CrewID)
	assert.Len(t, result.EvaluatedPolicies, 5)
}

func TestDisablePolicy(t *testing.T) {
	eng := newTestEngine(t)
	foh := capableFOH()
	foh.Level = engine.LevelHired
	in := engine.OverrideInput{Event: testEvent(), FOH: foh, ExperimentalVenue: "Experimental"}

	require.NoError(t, eng.DisablePolicy(PolicyHiredFOH))
	findings, err := eng.CheckOverride(context.Background(), in)
	require.NoError(t, err)
	assert.NotContains(t, findingsByPolicy(findings), PolicyHiredFOH)

	require.NoError(t, eng.EnablePolicy(PolicyHiredFOH))
	findings, err = eng.CheckOverride(context.Background(), in)
	require.NoError(t, err)
	assert.Contains(t, findingsByPolicy(findings), PolicyHiredFOH)

	assert.Error(t, eng.DisablePolicy("no-such-policy"))
}

func TestLoadPolicies_CustomRego(t *testing.T) {
	eng := newTestEngine(t)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stage-size.rego"), []byte(`package crewdesk.local.stage_size

import rego.v1

deny contains violation if {
	count(input.override.stage) > 1
	violation := {"message": "at most one stage hand may be set by hand", "severity": "error"}
}
`), 0o644))

	require.NoError(t, eng.LoadPolicies(context.Background(), []string{dir}))

	p, err := eng.GetPolicy("stage-size")
	require.NoError(t, err)
	assert.Equal(t, SeverityWarning, p.Severity)

	findings, err := eng.CheckOverride(context.Background(), engine.OverrideInput{
		Event:             testEvent(),
		FOH:               capableFOH(),
		Stage:             []engine.CrewMember{stageHand(2, "Bilal"), stageHand(3, "Chen")},
		ExperimentalVenue: "Experimental",
	})
	require.NoError(t, err)

	got := findingsByPolicy(findings)
	require.Contains(t, got, "stage-size")
	assert.True(t, got["stage-size"].Blocking())

	require.NoError(t, eng.ReloadPolicies(context.Background()))
	_, err = eng.GetPolicy("stage-size")
	assert.Error(t, err)
}

func TestLoadPolicies_CompileError(t *testing.T) {
	eng := newTestEngine(t)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.rego"), []byte("package broken\n\ndeny contains"), 0o644))

	err := eng.LoadPolicies(context.Background(), []string{dir})
	assert.Error(t, err)
	assert.Len(t, eng.ListPolicies(), 5)
}

func TestEngine_ImplementsOverrideChecker(t *testing.T) {
	eng := newTestEngine(t)
	rules := engine.DefaultRules()

	repo := &stubRepo{
		event: testEvent(),
		crew:  []engine.CrewMember{*capableFOH(), stageHand(2, "Bilal")},
	}
	core, err := engine.NewEngine(repo, rules, engine.WithOverrideChecker(eng))
	require.NoError(t, err)

	fohID := int64(2)
	result, err := core.Override(context.Background(), engine.OverrideRequest{
		EventID:  7,
		FOHID:    &fohID,
		StageIDs: []int64{1},
	})
	require.NoError(t, err)
	assert.True(t, repo.written)

	byPolicy := findingsByPolicy(result.Warnings)
	assert.Contains(t, byPolicy, PolicyFOHCapability)
	assert.Contains(t, byPolicy, PolicyStageEligibility)
	assert.NotContains(t, byPolicy, PolicyRoleOverlap)
}

// stubRepo serves one event and a roster for override checks.
type stubRepo struct {
	event   engine.Event
	crew    []engine.CrewMember
	written bool
}

func (r *stubRepo) ListEventsByBatch(context.Context, string) ([]engine.Event, error) {
	return []engine.Event{r.event}, nil
}

func (r *stubRepo) GetEvent(_ context.Context, id int64) (*engine.Event, error) {
	if id != r.event.ID {
		return nil, engine.ErrNotFound
	}
	ev := r.event
	return &ev, nil
}

func (r *stubRepo) ListCrew(context.Context) ([]engine.CrewMember, error) {
	return r.crew, nil
}

func (r *stubRepo) ListUnavailability(context.Context, time.Time, time.Time) ([]engine.Unavailability, error) {
	return nil, nil
}

func (r *stubRepo) ListWorkload(context.Context, []string) ([]engine.WorkloadHistory, error) {
	return nil, nil
}

func (r *stubRepo) ListBatchDeltas(context.Context, string) ([]engine.WorkloadHistory, error) {
	return nil, nil
}

func (r *stubRepo) DeleteAssignmentsForEvents(context.Context, []int64) error {
	r.written = true
	return nil
}

func (r *stubRepo) InsertAssignments(context.Context, []engine.Assignment) error {
	r.written = true
	return nil
}

func (r *stubRepo) ReplaceEventAssignments(context.Context, int64, []engine.Assignment) error {
	r.written = true
	return nil
}

func (r *stubRepo) MergeWorkload(context.Context, engine.WorkloadMerge) error {
	r.written = true
	return nil
}
