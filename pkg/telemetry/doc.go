// Package telemetry provides the observability plumbing for crewdesk.
//
// It bundles three concerns behind a Telemetry value built from the
// application configuration:
//
//  1. Structured logging with zerolog, written to stderr so command output on
//     stdout stays machine-readable.
//  2. Tracing with OpenTelemetry, exported to stdout (pretty-printed on
//     stderr) or to an OTLP gRPC collector.
//  3. Prometheus metrics on a private registry. Metrics implements
//     engine.Recorder and can be dumped to a node_exporter textfile.
//
// # Usage
//
//	tel, err := telemetry.NewTelemetry(telemetry.FromAppConfig(appCfg, version))
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	eng, err := engine.NewEngine(store, rules,
//	    engine.WithLogger(tel.Logger.NewComponentLogger("engine").Zerolog()),
//	    engine.WithTracer(tel.Tracer.Tracer()),
//	    engine.WithRecorder(tel.Metrics),
//	)
//
// # Metrics
//
// All metrics carry the "crewdesk" namespace:
//
//   - runs_started_total, runs_completed_total{status}
//   - run_duration_seconds{status}, active_runs
//   - selections_total{role,path}: path is "rotation" or "scored"
//   - conflicts_total{type}: Manual, FOH or Stage
//   - overrides_total{outcome}: applied, rejected or failed
//   - errors_by_class_total{class}, errors_by_code_total{code}
//
// Shutdown writes the registry to metrics.textfile when one is configured.
//
// # Operations
//
// StartOperation opens a span, attaches a logger carrying trace and span ids,
// and starts a timer. End closes the span and counts classified errors:
//
//	op := telemetry.StartOperation(ctx, "override", telemetry.AttrEventID.Int64(id))
//	err := doOverride(op.Ctx)
//	op.End(err)
package telemetry
