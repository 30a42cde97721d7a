package telemetry

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/stagecrew/crewdesk/pkg/config"
)

// Config holds everything NewTelemetry needs. It is normally derived from
// the application configuration with FromAppConfig.
type Config struct {
	ServiceName    string
	ServiceVersion string

	Logging LoggingConfig
	Tracing TracingConfig
	Metrics MetricsConfig
}

type LoggingConfig struct {
	Level  string // trace, debug, info, warn or error
	Format string // console or json

	// Output is "stderr", "stdout" or a file path. Command results are
	// printed on stdout, so logs belong on stderr.
	Output string

	EnableCaller bool
	TimeFormat   string // rfc3339, unix or unixms
}

type TracingConfig struct {
	Enabled bool

	// Exporter is "stdout", "otlp" or "none". "none" still samples and
	// assigns trace ids, which end up in run metadata.
	Exporter      string
	Endpoint      string
	Insecure      bool
	SamplingRate  float64
	ExportTimeout time.Duration
}

type MetricsConfig struct {
	Enabled   bool
	Namespace string

	// Textfile receives the registry in text exposition format on
	// Shutdown, for a node_exporter textfile collector. Empty disables it.
	Textfile string

	// DefaultHistogramBuckets bound run_duration_seconds. Runs are short,
	// so the buckets start at 5ms.
	DefaultHistogramBuckets []float64
}

var (
	logLevels     = []string{"trace", "debug", "info", "warn", "error"}
	logFormats    = []string{"console", "json"}
	traceExporter = []string{"stdout", "otlp", "none"}
)

// DefaultConfig logs info to stderr on the console, keeps tracing off and
// collects metrics in memory.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "crewdesk",
		ServiceVersion: "dev",
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			Output:     "stderr",
			TimeFormat: "rfc3339",
		},
		Tracing: TracingConfig{
			Exporter:      "stdout",
			Insecure:      true,
			SamplingRate:  1.0,
			ExportTimeout: 10 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			Namespace:               "crewdesk",
			DefaultHistogramBuckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	}
}

// FromAppConfig copies the log, tracing and metrics sections of app over
// the defaults. Debug and trace levels also record the caller.
func FromAppConfig(app *config.AppConfig, version string) *Config {
	cfg := DefaultConfig()
	if version != "" {
		cfg.ServiceVersion = version
	}

	cfg.Logging.Level = app.Log.Level
	cfg.Logging.Format = app.Log.Format
	cfg.Logging.EnableCaller = app.Log.Level == "debug" || app.Log.Level == "trace"

	cfg.Tracing.Enabled = app.Tracing.Enabled
	cfg.Tracing.Endpoint = app.Tracing.Endpoint
	if app.Tracing.Exporter != "" {
		cfg.Tracing.Exporter = app.Tracing.Exporter
	}

	cfg.Metrics.Textfile = app.Metrics.Textfile
	return cfg
}

// Validate reports every problem with c at once.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...interface{}) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.ServiceName != "", "service name is required")
	check(c.ServiceVersion != "", "service version is required")
	check(slices.Contains(logLevels, c.Logging.Level), "invalid log level: %q", c.Logging.Level)
	check(slices.Contains(logFormats, c.Logging.Format), "invalid log format: %q (must be console or json)", c.Logging.Format)

	if c.Tracing.Enabled {
		check(slices.Contains(traceExporter, c.Tracing.Exporter), "invalid trace exporter: %q", c.Tracing.Exporter)
		check(c.Tracing.Exporter != "otlp" || c.Tracing.Endpoint != "", "trace endpoint is required for the otlp exporter")
	}
	check(c.Tracing.SamplingRate >= 0 && c.Tracing.SamplingRate <= 1,
		"trace sampling rate must be between 0 and 1, got %g", c.Tracing.SamplingRate)
	check(c.Metrics.Textfile == "" || c.Metrics.Enabled,
		"metrics textfile %s set while metrics are disabled", c.Metrics.Textfile)

	return errors.Join(errs...)
}
