package config

import (
	"path/filepath"
	"time"

	"github.com/stagecrew/crewdesk/pkg/engine"
)

// AppConfig is the application configuration loaded by Load.
type AppConfig struct {
	// DataDir holds the database and generated files.
	DataDir string `koanf:"data_dir" yaml:"data_dir" json:"data_dir" validate:"required"`

	Database DatabaseConfig `koanf:"database" yaml:"database" json:"database"`

	// RulesPath is a CUE file or directory. Empty selects the built-in tables.
	RulesPath string `koanf:"rules_path" yaml:"rules_path" json:"rules_path"`

	// PoliciesDir holds extra .rego override policies.
	PoliciesDir string `koanf:"policies_dir" yaml:"policies_dir" json:"policies_dir"`

	Log     LogConfig     `koanf:"log" yaml:"log" json:"log"`
	Tracing TracingConfig `koanf:"tracing" yaml:"tracing" json:"tracing"`
	Metrics MetricsConfig `koanf:"metrics" yaml:"metrics" json:"metrics"`
}

// DatabaseConfig configures the SQLite store.
type DatabaseConfig struct {
	// Path defaults to <data_dir>/crewdesk.db.
	Path string `koanf:"path" yaml:"path" json:"path"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level  string `koanf:"level" yaml:"level" json:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" yaml:"format" json:"format" validate:"oneof=json console"`
}

// TracingConfig configures span export.
type TracingConfig struct {
	Enabled  bool   `koanf:"enabled" yaml:"enabled" json:"enabled"`
	Exporter string `koanf:"exporter" yaml:"exporter" json:"exporter" validate:"omitempty,oneof=stdout otlp"`
	Endpoint string `koanf:"endpoint" yaml:"endpoint" json:"endpoint"`
}

// MetricsConfig configures the textfile metrics sink.
type MetricsConfig struct {
	// Textfile is written after every run when set.
	Textfile string `koanf:"textfile" yaml:"textfile" json:"textfile"`
}

// DatabasePath resolves the database file location.
func (c *AppConfig) DatabasePath() string {
	if c.Database.Path != "" {
		return c.Database.Path
	}
	return filepath.Join(c.DataDir, "crewdesk.db")
}

// RulesFile is the decoded form of a rules.cue file.
type RulesFile struct {
	Version             string         `json:"version" validate:"required"`
	ExperimentalVenue   string         `json:"experimental_venue" validate:"required"`
	FOH                 FOHRules       `json:"foh"`
	Stage               StageRules     `json:"stage"`
	RollingWindowMonths int            `json:"rolling_window_months" validate:"min=1,max=24"`
	LedgerMerge         string         `json:"ledger_merge" validate:"oneof=additive overwrite batch-replace"`
	VenueStageDefaults  map[string]int `json:"venue_stage_defaults" validate:"dive,keys,required,endkeys,min=0"`
	DefaultStageCrew    int            `json:"default_stage_crew" validate:"min=0"`
}

// FOHRules are the scored FOH fallback weights.
type FOHRules struct {
	MaxRank         int `json:"max_rank" validate:"min=3"`
	LevelWeight     int `json:"level_weight" validate:"min=0"`
	WorkloadPenalty int `json:"workload_penalty" validate:"min=0"`
}

// StageRules are the Stage scoring weights.
type StageRules struct {
	Base            int `json:"base"`
	WorkloadPenalty int `json:"workload_penalty" validate:"min=0"`
	WillingBonus    int `json:"willing_bonus" validate:"min=0"`
	HiredPenalty    int `json:"hired_penalty" validate:"min=0"`
}

// ParsedRules represents a parsed rules source.
type ParsedRules struct {
	// Rules is nil when Errors is non-empty.
	Rules *RulesFile `json:"rules,omitempty"`

	// SourceFiles are the CUE files that were parsed.
	SourceFiles []string `json:"source_files"`

	// ParsedAt is when the rules were parsed.
	ParsedAt time.Time `json:"parsed_at"`

	// Errors lists any validation errors.
	Errors []ValidationError `json:"errors,omitempty"`
}

// ValidationError represents a validation error with location information.
type ValidationError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed).
	Column int `json:"column,omitempty"`

	// Path is the field path to the error (e.g., "rules.foh.max_rank").
	Path string `json:"path,omitempty"`

	// Message is the error message.
	Message string `json:"message"`

	// Severity is the error severity (error, warning, info).
	Severity string `json:"severity" validate:"required,oneof=error warning info"`
}

// ToEngineRules converts the decoded file into engine.Rules.
func (rf *RulesFile) ToEngineRules() engine.Rules {
	defaults := make(map[string]int, len(rf.VenueStageDefaults))
	for venue, n := range rf.VenueStageDefaults {
		defaults[venue] = n
	}

	return engine.Rules{
		Version:           rf.Version,
		ExperimentalVenue: rf.ExperimentalVenue,
		FOH: engine.FOHWeights{
			MaxRank:         rf.FOH.MaxRank,
			LevelWeight:     rf.FOH.LevelWeight,
			WorkloadPenalty: rf.FOH.WorkloadPenalty,
		},
		Stage: engine.StageWeights{
			Base:            rf.Stage.Base,
			WorkloadPenalty: rf.Stage.WorkloadPenalty,
			WillingBonus:    rf.Stage.WillingBonus,
			HiredPenalty:    rf.Stage.HiredPenalty,
		},
		RollingWindowMonths: rf.RollingWindowMonths,
		LedgerMerge:         engine.MergeMode(rf.LedgerMerge),
		VenueStageDefaults:  defaults,
		DefaultStageCrew:    rf.DefaultStageCrew,
	}
}
