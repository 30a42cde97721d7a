package telemetry

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is a zerolog logger carrying crewdesk's standard fields: component,
// run_id, batch_id, event_id and crew_id. Derived loggers never mutate their
// parent.
type Logger struct {
	z zerolog.Logger
}

type loggerKey struct{}

// NewLogger opens cfg.Output and returns a logger writing to it. Output is
// "stderr" (the default), "stdout" or a file path opened for append.
func NewLogger(cfg LoggingConfig) (*Logger, error) {
	w, err := openLogOutput(cfg.Output)
	if err != nil {
		return nil, err
	}
	return NewLoggerTo(w, cfg), nil
}

func openLogOutput(output string) (io.Writer, error) {
	switch output {
	case "", "stderr":
		return os.Stderr, nil
	case "stdout":
		return os.Stdout, nil
	}
	return os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

// NewLoggerTo returns a logger writing to w. cfg.Output is not consulted.
func NewLoggerTo(w io.Writer, cfg LoggingConfig) *Logger {
	zerolog.TimeFieldFormat = timeFieldFormat(cfg.TimeFormat)

	if cfg.Format == "console" {
		isTerminal := w == os.Stderr || w == os.Stdout
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen, NoColor: !isTerminal}
	}

	zctx := zerolog.New(w).With().Timestamp()
	if cfg.EnableCaller {
		zctx = zctx.Caller()
	}
	return &Logger{z: zctx.Logger().Level(levelOf(cfg.Level))}
}

// levelOf maps a configured level name to a zerolog level. Unknown or empty
// names log at info.
func levelOf(name string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(name)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

func timeFieldFormat(format string) string {
	switch format {
	case "unix":
		return zerolog.TimeFormatUnix
	case "unixms":
		return zerolog.TimeFormatUnixMs
	}
	return time.RFC3339
}

// Zerolog exposes the underlying logger to packages that accept a
// zerolog.Logger, such as engine.WithLogger and policy.NewEngine.
func (l *Logger) Zerolog() zerolog.Logger {
	return l.z
}

func (l *Logger) derive(fn func(zerolog.Context) zerolog.Context) *Logger {
	return &Logger{z: fn(l.z.With()).Logger()}
}

// NewComponentLogger tags every entry with component.
func (l *Logger) NewComponentLogger(component string) *Logger {
	return l.derive(func(c zerolog.Context) zerolog.Context { return c.Str("component", component) })
}

// WithContext stores l in ctx.
func (l *Logger) WithContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// FromContext returns the logger stored in ctx, or a bare stderr logger.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey{}).(*Logger); ok {
		return l
	}
	return &Logger{z: zerolog.New(os.Stderr).With().Timestamp().Logger()}
}

func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return l.derive(func(c zerolog.Context) zerolog.Context { return c.Fields(fields) })
}

func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.derive(func(c zerolog.Context) zerolog.Context { return c.Interface(key, value) })
}

func (l *Logger) WithRunID(runID string) *Logger {
	return l.derive(func(c zerolog.Context) zerolog.Context { return c.Str("run_id", runID) })
}

func (l *Logger) WithBatchID(batchID string) *Logger {
	return l.derive(func(c zerolog.Context) zerolog.Context { return c.Str("batch_id", batchID) })
}

func (l *Logger) WithEventID(eventID int64) *Logger {
	return l.derive(func(c zerolog.Context) zerolog.Context { return c.Int64("event_id", eventID) })
}

func (l *Logger) WithCrewID(crewID int64) *Logger {
	return l.derive(func(c zerolog.Context) zerolog.Context { return c.Int64("crew_id", crewID) })
}

func (l *Logger) WithError(err error) *Logger {
	return l.derive(func(c zerolog.Context) zerolog.Context { return c.Err(err) })
}

func (l *Logger) Debug(msg string) { l.z.Debug().Msg(msg) }
func (l *Logger) Debugf(format string, args ...interface{}) { l.z.Debug().Msgf(format, args...) }
func (l *Logger) Info(msg string) { l.z.Info().Msg(msg) }
func (l *Logger) Infof(format string, args ...interface{}) { l.z.Info().Msgf(format, args...) }
func (l *Logger) Warn(msg string) { l.z.Warn().Msg(msg) }
func (l *Logger) Error(msg string) { l.z.Error().Msg(msg) }
