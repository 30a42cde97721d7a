package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry is the logger, tracer and metrics registry of one crewdesk
// process.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Config  *Config
}

type telemetryKey struct{}

// NewTelemetry validates cfg and builds every component.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tel := &Telemetry{Config: cfg}
	var err error
	if tel.Logger, err = NewLogger(cfg.Logging); err != nil {
		return nil, err
	}
	if tel.Tracer, err = NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion); err != nil {
		return nil, err
	}
	if tel.Metrics, err = NewMetrics(cfg.Metrics); err != nil {
		return nil, err
	}
	return tel, nil
}

// WithContext stores t and its logger in ctx.
func (t *Telemetry) WithContext(ctx context.Context) context.Context {
	return t.Logger.WithContext(context.WithValue(ctx, telemetryKey{}, t))
}

// FromTelemetryContext returns the Telemetry stored in ctx, or nil.
func FromTelemetryContext(ctx context.Context) *Telemetry {
	t, _ := ctx.Value(telemetryKey{}).(*Telemetry)
	return t
}

// Shutdown exports pending spans and writes the metrics textfile. Both are
// attempted even if one fails.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return errors.Join(t.Tracer.Shutdown(ctx), t.Metrics.WriteTextfile())
}

// Operation is one traced unit of work, usually a CLI command. Ctx carries
// the span and a logger tagged with the operation name and trace ids.
type Operation struct {
	Ctx    context.Context
	Logger *Logger

	span    trace.Span
	started time.Time
}

// StartOperation opens a span for name. Without Telemetry in ctx the
// operation is still timed and logged but no span is opened.
func StartOperation(ctx context.Context, name string, attrs ...attribute.KeyValue) *Operation {
	op := &Operation{Ctx: ctx, started: time.Now()}

	tel := FromTelemetryContext(ctx)
	if tel == nil {
		op.Logger = FromContext(ctx)
		return op
	}

	ctx, op.span = tel.Tracer.StartSpan(ctx, name, attrs...)
	fields := map[string]interface{}{"operation": name}
	if sc := op.span.SpanContext(); sc.IsValid() {
		fields["trace_id"] = sc.TraceID().String()
		fields["span_id"] = sc.SpanID().String()
	}
	op.Logger = tel.Logger.WithFields(fields)
	op.Ctx = op.Logger.WithContext(ctx)
	return op
}

// End closes the span with err's status and counts err in the engine error
// metrics.
func (op *Operation) End(err error) {
	elapsed := time.Since(op.started)

	if op.span != nil {
		if err != nil {
			RecordError(op.span, err)
		} else {
			RecordSuccess(op.span)
		}
		op.span.End()
	}

	if err == nil {
		op.Logger.z.Debug().Dur("duration", elapsed).Msg("Operation completed")
		return
	}
	if tel := FromTelemetryContext(op.Ctx); tel != nil {
		tel.Metrics.RecordEngineError(err)
	}
	op.Logger.z.Debug().Err(err).Dur("duration", elapsed).Msg("Operation failed")
}
