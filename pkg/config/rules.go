package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"github.com/go-playground/validator/v10"

	"github.com/stagecrew/crewdesk/pkg/engine"
)

// rulesField is the top-level field a rules source declares.
const rulesField = "rules"

// DefaultRulesCUE is the rules file written by `crewdesk init`.
const DefaultRulesCUE = `// Crew assignment rule tables.
rules: {
	version:            "2024.1"
	experimental_venue: "Experimental"

	// score = (max_rank - rank) * level_weight - workload * workload_penalty
	foh: {
		max_rank:         3
		level_weight:     100
		workload_penalty: 5
	}

	stage: {
		base:             500
		workload_penalty: 20
		willing_bonus:    10
		hired_penalty:    300
	}

	rolling_window_months: 3
	ledger_merge:          "additive"

	// Total crew per event, FOH seat included.
	venue_stage_defaults: {
		"JBT":            2
		"Tata":           2
		"Experimental":   1
		"Little Theatre": 1
		"Godrej Dance":   1
	}
	default_stage_crew: 1
}
`

// RulesParser parses CUE rule tables and validates them against the
// built-in #Rules schema.
type RulesParser struct {
	schemaRegistry *SchemaRegistry
	validate       *validator.Validate
}

// NewRulesParser creates a new rules parser.
func NewRulesParser() *RulesParser {
	return &RulesParser{
		schemaRegistry: NewSchemaRegistry(),
		validate:       validator.New(validator.WithRequiredStructEnabled()),
	}
}

// LoadRules returns the engine rules found at path. An empty path selects
// engine.DefaultRules.
func LoadRules(ctx context.Context, path string) (engine.Rules, error) {
	if path == "" {
		return engine.DefaultRules(), nil
	}

	parsed, err := NewRulesParser().Parse(ctx, path)
	if err != nil {
		return engine.Rules{}, err
	}
	if len(parsed.Errors) > 0 {
		return engine.Rules{}, FormatErrors(parsed.Errors)
	}

	rules := parsed.Rules.ToEngineRules()
	if err := rules.Validate(); err != nil {
		return engine.Rules{}, fmt.Errorf("invalid rules in %s: %w", path, err)
	}
	return rules, nil
}

// Parse parses a rules file or a directory holding a CUE package.
func (rp *RulesParser) Parse(ctx context.Context, source string) (*ParsedRules, error) {
	info, err := os.Stat(source)
	if err != nil {
		return nil, fmt.Errorf("failed to stat source %s: %w", source, err)
	}

	var (
		val         cue.Value
		sourceFiles []string
		errs        []ValidationError
	)
	if info.IsDir() {
		val, sourceFiles, errs = rp.loadDirectory(source)
	} else {
		val, errs = rp.loadFile(source)
		sourceFiles = []string{source}
	}

	if len(errs) > 0 {
		return &ParsedRules{
			SourceFiles: sourceFiles,
			ParsedAt:    time.Now(),
			Errors:      errs,
		}, nil
	}

	return rp.extractRules(val, sourceFiles), nil
}

// ParseInline parses inline CUE content.
func (rp *RulesParser) ParseInline(ctx context.Context, content string) (*ParsedRules, error) {
	val := rp.schemaRegistry.Context().CompileString(content, cue.Filename("inline"))
	if err := val.Err(); err != nil {
		return &ParsedRules{
			SourceFiles: []string{"inline"},
			ParsedAt:    time.Now(),
			Errors:      rp.convertCUEErrors(err),
		}, nil
	}

	return rp.extractRules(val, []string{"inline"}), nil
}

// loadDirectory loads a directory as a CUE package.
func (rp *RulesParser) loadDirectory(dir string) (cue.Value, []string, []ValidationError) {
	buildInstances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(buildInstances) == 0 {
		return cue.Value{}, nil, []ValidationError{{
			File:     dir,
			Message:  "no CUE files found",
			Severity: "error",
		}}
	}

	inst := buildInstances[0]
	if inst.Err != nil {
		return cue.Value{}, nil, rp.convertCUEErrors(inst.Err)
	}

	val := rp.schemaRegistry.Context().BuildInstance(inst)
	if err := val.Err(); err != nil {
		return cue.Value{}, nil, rp.convertCUEErrors(err)
	}

	var files []string
	for _, file := range inst.Files {
		if file.Filename != "" {
			files = append(files, file.Filename)
		}
	}

	return val, files, nil
}

// loadFile loads a single CUE file.
func (rp *RulesParser) loadFile(path string) (cue.Value, []ValidationError) {
	content, err := os.ReadFile(path)
	if err != nil {
		return cue.Value{}, []ValidationError{{
			File:     path,
			Message:  fmt.Sprintf("failed to read file: %v", err),
			Severity: "error",
		}}
	}

	val := rp.schemaRegistry.Context().CompileString(string(content), cue.Filename(path))
	if err := val.Err(); err != nil {
		return cue.Value{}, rp.convertCUEErrors(err)
	}

	return val, nil
}

// extractRules unifies the rules field with #Rules and decodes it.
func (rp *RulesParser) extractRules(val cue.Value, sourceFiles []string) *ParsedRules {
	parsed := &ParsedRules{
		SourceFiles: sourceFiles,
		ParsedAt:    time.Now(),
	}

	rulesVal := val.LookupPath(cue.ParsePath(rulesField))
	if !rulesVal.Exists() {
		parsed.Errors = []ValidationError{{
			File:     strings.Join(sourceFiles, ","),
			Path:     rulesField,
			Message:  "no rules field defined",
			Severity: "error",
		}}
		return parsed
	}

	schema, ok := rp.schemaRegistry.GetSchema("rules")
	if !ok {
		parsed.Errors = []ValidationError{{Message: "rules schema not registered", Severity: "error"}}
		return parsed
	}

	unified := schema.Unify(rulesVal)
	if err := unified.Validate(); err != nil {
		parsed.Errors = rp.convertCUEErrors(err)
		return parsed
	}

	var rf RulesFile
	if err := unified.Decode(&rf); err != nil {
		parsed.Errors = rp.convertCUEErrors(err)
		return parsed
	}

	if err := rp.validate.Struct(&rf); err != nil {
		parsed.Errors = convertValidatorErrors(err)
		return parsed
	}

	parsed.Rules = &rf
	return parsed
}

// convertCUEErrors converts CUE errors to ValidationError slice.
func (rp *RulesParser) convertCUEErrors(err error) []ValidationError {
	var validationErrors []ValidationError

	for _, e := range errors.Errors(err) {
		pos := errors.Positions(e)
		var file string
		var line, column int

		if len(pos) > 0 {
			file = pos[0].Filename()
			line = pos[0].Line()
			column = pos[0].Column()
		}

		validationErrors = append(validationErrors, ValidationError{
			File:     file,
			Line:     line,
			Column:   column,
			Path:     strings.Join(e.Path(), "."),
			Message:  errors.Details(e, nil),
			Severity: "error",
		})
	}

	return validationErrors
}

func convertValidatorErrors(err error) []ValidationError {
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []ValidationError{{Message: err.Error(), Severity: "error"}}
	}

	out := make([]ValidationError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, ValidationError{
			Path:     fe.Namespace(),
			Message:  fmt.Sprintf("failed %q check (param %q)", fe.Tag(), fe.Param()),
			Severity: "error",
		})
	}
	return out
}

// FormatErrors folds validation errors into a single error.
func FormatErrors(errs []ValidationError) error {
	if len(errs) == 0 {
		return nil
	}

	lines := make([]string, 0, len(errs))
	for _, e := range errs {
		var b strings.Builder
		if e.File != "" {
			b.WriteString(e.File)
			if e.Line > 0 {
				fmt.Fprintf(&b, ":%d:%d", e.Line, e.Column)
			}
			b.WriteString(": ")
		}
		if e.Path != "" {
			b.WriteString(e.Path)
			b.WriteString(": ")
		}
		b.WriteString(strings.TrimSpace(e.Message))
		lines = append(lines, b.String())
	}
	return fmt.Errorf("invalid rules:\n  %s", strings.Join(lines, "\n  "))
}
