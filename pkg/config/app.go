package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"gopkg.in/yaml.v3"
)

const (
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "CREWDESK_"

	// EnvConfigPath names the config file when no path is passed to Load.
	EnvConfigPath = EnvPrefix + "CONFIG"

	// DefaultConfigFile is the file `crewdesk init` writes.
	DefaultConfigFile = "crewdesk.yaml"
)

// sections are the nested config blocks; CREWDESK_LOG_LEVEL maps to log.level.
var sections = []string{"database", "log", "tracing", "metrics"}

// Default returns the built-in application configuration.
func Default() *AppConfig {
	return &AppConfig{
		DataDir: ".crewdesk",
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Tracing: TracingConfig{
			Exporter: "stdout",
		},
	}
}

// Load builds an AppConfig. Later sources override earlier ones:
//
//  1. Default()
//  2. the YAML file at path; when path is empty, $CREWDESK_CONFIG, or
//     ./crewdesk.yaml if that exists
//  3. CREWDESK_ environment variables
func Load(path string) (*AppConfig, error) {
	base := Default()

	k := koanf.New(".")

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			path = DefaultConfigFile
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), kyaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps CREWDESK_DATABASE_PATH to database.path and CREWDESK_DATA_DIR
// to data_dir.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	for _, section := range sections {
		if rest, ok := strings.CutPrefix(s, section+"_"); ok {
			return section + "." + rest
		}
	}
	return s
}

// Validate checks field values.
func (c *AppConfig) Validate() error {
	if c.Tracing.Enabled && c.Tracing.Exporter == "otlp" && c.Tracing.Endpoint == "" {
		return errors.New("tracing.endpoint is required for the otlp exporter")
	}

	err := validator.New().Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return fmt.Errorf("invalid config value for %s: %v fails %s", fe.Namespace(), fe.Value(), fe.Tag())
	}
	return fmt.Errorf("invalid config: %w", err)
}

// Write stores cfg as YAML at path, creating parent directories.
func Write(path string, cfg *AppConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config %s: %w", path, err)
	}
	return nil
}
