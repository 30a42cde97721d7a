package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
	"github.com/open-policy-agent/opa/storage"
	"github.com/open-policy-agent/opa/storage/inmem"
	"github.com/rs/zerolog"

	"github.com/stagecrew/crewdesk/pkg/engine"
)

// Engine checks proposed overrides against the built-in policies plus any
// loaded from the policies directory. It implements engine.OverrideChecker
// and is safe for concurrent use.
type Engine struct {
	logger zerolog.Logger
	store  storage.Store
	now    func() time.Time

	mu       sync.RWMutex
	compiled map[string]*compiledPolicy
}

var _ engine.OverrideChecker = (*Engine)(nil)

type compiledPolicy struct {
	policy *Policy
	query  rego.PreparedEvalQuery
}

// NewEngine returns an engine holding the built-in policies.
func NewEngine(logger zerolog.Logger) (*Engine, error) {
	e := &Engine{
		logger: logger.With().Str("component", "policy-engine").Logger(),
		store:  inmem.New(),
		now:    time.Now,
	}
	if err := e.ReloadPolicies(context.Background()); err != nil {
		return nil, err
	}
	return e, nil
}

// CheckOverride evaluates the override and returns blocking findings first,
// then warnings.
func (e *Engine) CheckOverride(ctx context.Context, in engine.OverrideInput) ([]engine.PolicyFinding, error) {
	result, err := e.Evaluate(ctx, &PolicyInput{
		Override: NewOverrideDoc(in),
		Context:  &PolicyContext{Timestamp: e.now(), Operation: "override"},
	})
	if err != nil {
		return nil, err
	}

	findings := make([]engine.PolicyFinding, 0, len(result.Violations)+len(result.Warnings))
	for _, group := range [][]PolicyViolation{result.Violations, result.Warnings} {
		for _, v := range group {
			findings = append(findings, engine.PolicyFinding{
				Policy:   v.Policy,
				Message:  v.Message,
				Severity: string(v.Severity),
			})
		}
	}
	return findings, nil
}

// Evaluate runs every enabled policy in name order. An evaluation failure
// aborts the whole check, so an override is never applied half-checked.
func (e *Engine) Evaluate(ctx context.Context, input *PolicyInput) (*PolicyResult, error) {
	started := e.now()

	e.mu.RLock()
	defer e.mu.RUnlock()

	result := &PolicyResult{Allowed: true, EvaluatedPolicies: e.enabledNames()}
	for _, name := range result.EvaluatedPolicies {
		violations, err := e.evaluate(ctx, e.compiled[name], input)
		if err != nil {
			e.logger.Error().Err(err).Str("policy", name).Msg("Policy evaluation failed")
			return nil, fmt.Errorf("policy %s evaluation failed: %w", name, err)
		}
		for _, v := range violations {
			if v.Severity.Blocking() {
				result.Violations = append(result.Violations, v)
			} else {
				result.Warnings = append(result.Warnings, v)
			}
		}
	}
	result.Allowed = len(result.Violations) == 0
	result.EvaluatedAt = e.now()
	result.Duration = result.EvaluatedAt.Sub(started)

	ev := e.logger.Debug().
		Int("policies", len(result.EvaluatedPolicies)).
		Int("violations", len(result.Violations)).
		Int("warnings", len(result.Warnings)).
		Dur("duration", result.Duration)
	if input.Override != nil {
		ev = ev.Int64("event_id", input.Override.Event.ID)
	}
	ev.Msg("Override checked")

	return result, nil
}

func (e *Engine) enabledNames() []string {
	names := make([]string, 0, len(e.compiled))
	for name, cp := range e.compiled {
		if cp.policy.Enabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (e *Engine) evaluate(ctx context.Context, cp *compiledPolicy, input *PolicyInput) ([]PolicyViolation, error) {
	rs, err := cp.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, err
	}

	var out []PolicyViolation
	for _, r := range rs {
		if len(r.Expressions) == 0 {
			continue
		}
		// Rego sets come back as JSON arrays.
		entries, ok := r.Expressions[0].Value.([]interface{})
		if !ok {
			continue
		}
		for _, entry := range entries {
			out = append(out, e.violation(cp.policy, entry))
		}
	}
	return out, nil
}

// violation converts one deny entry. An entry is either a message string or
// an object with "message" and optional "severity" and "crew" keys.
func (e *Engine) violation(p *Policy, entry interface{}) PolicyViolation {
	v := PolicyViolation{Policy: p.Name, Severity: p.Severity, DetectedAt: e.now()}

	obj, ok := entry.(map[string]interface{})
	if !ok {
		if msg, isString := entry.(string); isString {
			v.Message = msg
		} else {
			v.Message = fmt.Sprint(entry)
		}
		return v
	}

	v.Message, _ = obj["message"].(string)
	if sev, ok := obj["severity"].(string); ok && Severity(sev).Valid() {
		v.Severity = Severity(sev)
	}
	if crew, ok := obj["crew"].(json.Number); ok {
		v.CrewID, _ = crew.Int64()
	}
	return v
}

// compile prepares a query for the deny set of the policy's package.
func (e *Engine) compile(ctx context.Context, p *Policy) (*compiledPolicy, error) {
	module, err := ast.ParseModule(p.Name, p.Rego)
	if err != nil {
		return nil, fmt.Errorf("failed to parse policy: %w", err)
	}
	pkg := module.Package.Path.String()

	query, err := rego.New(
		rego.ParsedModule(module),
		rego.Store(e.store),
		rego.Query(pkg+".deny"),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare query: %w", err)
	}

	e.logger.Debug().Str("policy", p.Name).Str("package", pkg).Msg("Policy compiled")
	return &compiledPolicy{policy: p, query: query}, nil
}

func (e *Engine) compileAll(ctx context.Context, policies []Policy) (map[string]*compiledPolicy, error) {
	out := make(map[string]*compiledPolicy, len(policies))
	for i := range policies {
		p := policies[i]
		cp, err := e.compile(ctx, &p)
		if err != nil {
			return nil, fmt.Errorf("failed to compile policy %s: %w", p.Name, err)
		}
		out[p.Name] = cp
	}
	return out, nil
}

// LoadPolicies adds the policies found under paths. A loaded policy named
// like a built-in replaces it. Nothing is added unless every policy
// compiles.
func (e *Engine) LoadPolicies(ctx context.Context, paths []string) error {
	policies, err := NewLoader(e.logger).LoadFromPaths(ctx, paths)
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}
	loaded, err := e.compileAll(ctx, policies)
	if err != nil {
		e.logger.Error().Err(err).Msg("Policy directory rejected")
		return err
	}

	e.mu.Lock()
	for name, cp := range loaded {
		e.compiled[name] = cp
	}
	e.mu.Unlock()

	e.logger.Info().Int("count", len(loaded)).Msg("Policies loaded")
	return nil
}

// ReloadPolicies drops every loaded policy and restores the built-in set.
func (e *Engine) ReloadPolicies(ctx context.Context) error {
	builtins, err := e.compileAll(ctx, GetBuiltinPolicies())
	if err != nil {
		return fmt.Errorf("built-in policies: %w", err)
	}

	e.mu.Lock()
	e.compiled = builtins
	e.mu.Unlock()
	return nil
}

func (e *Engine) GetPolicy(name string) (*Policy, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	cp, ok := e.compiled[name]
	if !ok {
		return nil, fmt.Errorf("policy not found: %s", name)
	}
	return cp.policy, nil
}

// ListPolicies returns copies of every policy, enabled or not, by name.
func (e *Engine) ListPolicies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Policy, 0, len(e.compiled))
	for _, cp := range e.compiled {
		out = append(out, *cp.policy)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (e *Engine) EnablePolicy(name string) error { return e.setEnabled(name, true) }

func (e *Engine) DisablePolicy(name string) error { return e.setEnabled(name, false) }

func (e *Engine) setEnabled(name string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cp, ok := e.compiled[name]
	if !ok {
		return fmt.Errorf("policy not found: %s", name)
	}
	cp.policy.Enabled = enabled
	e.logger.Info().Str("policy", name).Bool("enabled", enabled).Msg("Policy toggled")
	return nil
}
