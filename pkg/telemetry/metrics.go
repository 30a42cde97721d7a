package telemetry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/stagecrew/crewdesk/pkg/engine"
)

// Metrics records assignment runs on a private Prometheus registry and
// implements engine.Recorder. A disabled Metrics has nil collectors and every
// Record method is a no-op.
type Metrics struct {
	config   MetricsConfig
	registry *prometheus.Registry

	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	activeRuns    prometheus.Gauge

	selections *prometheus.CounterVec
	conflicts  *prometheus.CounterVec
	overrides  *prometheus.CounterVec

	errorsByClass *prometheus.CounterVec
	errorsByCode  *prometheus.CounterVec
}

var _ engine.Recorder = (*Metrics)(nil)

// NewMetrics registers the crewdesk collectors under cfg.Namespace.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	m := &Metrics{config: cfg}
	if !cfg.Enabled {
		return m, nil
	}

	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}
	counters := func(name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: cfg.Namespace, Name: name, Help: help}, labels)
	}

	m.runsStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: cfg.Namespace,
		Name:      "runs_started_total",
		Help:      "Assignment runs started",
	})
	m.runsCompleted = counters("runs_completed_total", "Assignment runs finished, by status", "status")
	m.runDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: cfg.Namespace,
		Name:      "run_duration_seconds",
		Help:      "Wall time of assignment runs",
		Buckets:   buckets,
	}, []string{"status"})
	m.activeRuns = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: cfg.Namespace,
		Name:      "active_runs",
		Help:      "Assignment runs in progress",
	})
	m.selections = counters("selections_total", "Crew picks, by role and selection path", "role", "path")
	m.conflicts = counters("conflicts_total", "Conflict records, by type", "type")
	m.overrides = counters("overrides_total", "Manual overrides, by outcome", "outcome")
	m.errorsByClass = counters("errors_by_class_total", "Command errors, by class", "class")
	m.errorsByCode = counters("errors_by_code_total", "Command errors, by code", "code")

	m.registry = prometheus.NewRegistry()
	if err := registerAll(m.registry,
		m.runsStarted, m.runsCompleted, m.runDuration, m.activeRuns,
		m.selections, m.conflicts, m.overrides,
		m.errorsByClass, m.errorsByCode,
	); err != nil {
		return nil, err
	}
	return m, nil
}

func registerAll(reg *prometheus.Registry, cs ...prometheus.Collector) error {
	for _, c := range cs {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("failed to register metric: %w", err)
		}
	}
	return nil
}

// Registry returns the private registry, nil when metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordRunStarted increments the counter for started runs.
func (m *Metrics) RecordRunStarted() {
	if m.runsStarted == nil {
		return
	}
	m.runsStarted.Inc()
	m.activeRuns.Inc()
}

// RecordRunCompleted records a finished run with its status and duration.
func (m *Metrics) RecordRunCompleted(status string, duration time.Duration) {
	if m.runsCompleted == nil {
		return
	}
	m.runsCompleted.WithLabelValues(status).Inc()
	m.runDuration.WithLabelValues(status).Observe(duration.Seconds())
	m.activeRuns.Dec()
}

// RecordSelection counts one crew pick.
func (m *Metrics) RecordSelection(role engine.Role, path string) {
	if m.selections == nil {
		return
	}
	m.selections.WithLabelValues(string(role), path).Inc()
}

// RecordConflict counts one conflict record.
func (m *Metrics) RecordConflict(typ engine.ConflictType) {
	if m.conflicts == nil {
		return
	}
	m.conflicts.WithLabelValues(string(typ)).Inc()
}

// RecordOverride counts one override attempt.
func (m *Metrics) RecordOverride(outcome string) {
	if m.overrides == nil {
		return
	}
	m.overrides.WithLabelValues(outcome).Inc()
}

// RecordError records an error by class and optionally by code.
func (m *Metrics) RecordError(errorClass, errorCode string) {
	if m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(errorClass).Inc()
	if errorCode != "" {
		m.errorsByCode.WithLabelValues(errorCode).Inc()
	}
}

// RecordEngineError classifies err and records it.
func (m *Metrics) RecordEngineError(err error) {
	if err == nil {
		return
	}
	class, code := "unknown", ""
	var ee *engine.EngineError
	switch {
	case errors.As(err, &ee):
		class, code = string(ee.Class), ee.Code
	case errors.Is(err, engine.ErrNotFound):
		class = string(engine.ErrorClassNotFound)
	}
	m.RecordError(class, code)
}

// WriteTextfile writes the registry in the text exposition format for a
// node_exporter textfile collector. It is a no-op when no textfile is
// configured.
func (m *Metrics) WriteTextfile() error {
	if m.registry == nil || m.config.Textfile == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(m.config.Textfile), 0o755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(m.config.Textfile, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
