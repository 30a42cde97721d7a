package config

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// SchemaRegistry manages CUE schemas for validation. Each schema is stored
// as the definition value it names, so unification enforces closedness.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a new schema registry with built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[string]cue.Value),
	}

	sr.registerBuiltInSchemas()

	return sr
}

func (sr *SchemaRegistry) registerBuiltInSchemas() {
	// Built-ins are constants; a compile failure is a programming error.
	if err := sr.RegisterSchema("rules", "#Rules", builtinRulesSchema); err != nil {
		panic(err)
	}
	if err := sr.RegisterSchema("app", "#App", builtinAppSchema); err != nil {
		panic(err)
	}
}

// Context returns the CUE context schemas are compiled in. Values unified
// with a registered schema must come from the same context.
func (sr *SchemaRegistry) Context() *cue.Context {
	return sr.ctx
}

// RegisterSchema compiles source and registers the definition found at
// definition (e.g. "#Rules") under name.
func (sr *SchemaRegistry) RegisterSchema(name, definition, source string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(source, cue.Filename(name+".cue"))
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	def := val.LookupPath(cue.ParsePath(definition))
	if !def.Exists() {
		return fmt.Errorf("schema %s has no definition %s", name, definition)
	}
	if err := def.Err(); err != nil {
		return fmt.Errorf("invalid definition %s in schema %s: %w", definition, name, err)
	}

	sr.schemas[name] = def
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// ValidateAgainstSchema validates data against a named schema.
func (sr *SchemaRegistry) ValidateAgainstSchema(ctx context.Context, schemaName string, data interface{}) error {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return fmt.Errorf("schema %s not found", schemaName)
	}

	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	unified := schema.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	return nil
}

// ListSchemas returns all registered schema names, sorted.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateAppConfig checks a loaded application config.
func (sr *SchemaRegistry) ValidateAppConfig(ctx context.Context, cfg *AppConfig) error {
	return sr.ValidateAgainstSchema(ctx, "app", cfg)
}

// Built-in schema definitions

const builtinRulesSchema = `
#Rules: {
	version:            string & !=""
	experimental_venue: string & !=""

	foh: {
		max_rank:         int & >=3 | *3
		level_weight:     int & >=0 | *100
		workload_penalty: int & >=0 | *5
	}

	stage: {
		base:             int | *500
		workload_penalty: int & >=0 | *20
		willing_bonus:    int & >=0 | *10
		hired_penalty:    int & >=0 | *300
	}

	rolling_window_months: int & >=1 & <=24 | *3
	ledger_merge:          *"additive" | "overwrite" | "batch-replace"

	venue_stage_defaults: {[string]: int & >=0}
	default_stage_crew:   int & >=0 | *1
}
`

const builtinAppSchema = `
#App: {
	data_dir: string & !=""
	database: path: string
	rules_path:   string
	policies_dir: string
	log: {
		level:  "trace" | "debug" | "info" | "warn" | "error"
		format: "json" | "console"
	}
	tracing: {
		enabled:  bool
		exporter: "" | "stdout" | "otlp"
		endpoint: string
	}
	metrics: textfile: string
}
`
