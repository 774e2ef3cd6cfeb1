// Package logger provides structured logging for the EventLog service.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog with the service's event helpers.
type Logger struct {
	zlog zerolog.Logger
}

type Config struct {
	Level      string // debug, info, warn, error
	Pretty     bool
	Output     io.Writer
	WithCaller bool
}

func New(cfg Config) *Logger {
	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}

	zlog := zerolog.New(output).
		Level(ParseLevel(cfg.Level)).
		With().
		Timestamp().
		Str("service", "eventlog").
		Logger()
	if cfg.WithCaller {
		zlog = zlog.With().Caller().Logger()
	}
	return &Logger{zlog: zlog}
}

// Nop discards everything.
func Nop() *Logger {
	return &Logger{zlog: zerolog.Nop()}
}

func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Zerolog returns the underlying logger for packages that take one directly.
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zlog
}

func (l *Logger) Info() *zerolog.Event  { return l.zlog.Info() }
func (l *Logger) Debug() *zerolog.Event { return l.zlog.Debug() }
func (l *Logger) Warn() *zerolog.Event  { return l.zlog.Warn() }
func (l *Logger) Error() *zerolog.Event { return l.zlog.Error() }

// Component returns a sub-logger tagged with the component name.
func (l *Logger) Component(name string) *Logger {
	return &Logger{zlog: l.zlog.With().Str("component", name).Logger()}
}

// WithRecord returns a sub-logger tagged with an EventLog record id.
func (l *Logger) WithRecord(recordID string) *Logger {
	return &Logger{zlog: l.zlog.With().Str("record_id", recordID).Logger()}
}

// LogRequest writes one line per HTTP request.
func (l *Logger) LogRequest(requestID, method, path string, status int, duration time.Duration) {
	event := l.zlog.Info()
	if status >= 500 {
		event = l.zlog.Error()
	}
	event.
		Str("request_id", requestID).
		Str("method", method).
		Str("path", path).
		Int("status", status).
		Int64("duration_ms", duration.Milliseconds()).
		Msg("request")
}

// LogSync records the outcome of one sync direction for a record.
func (l *Logger) LogSync(direction, recordID string, blocks int, duration time.Duration, err error) {
	event := l.zlog.Info()
	if err != nil {
		event = l.zlog.Error().Err(err)
	}
	event.
		Str("event", "sync_"+direction).
		Str("record_id", recordID).
		Int("blocks", blocks).
		Int64("duration_ms", duration.Milliseconds()).
		Msg("sync completed")
}

// LogTimestampWarning reports a record whose content carries no usable
// instant. It is kept distinct from ordinary warnings so it can be alerted on.
func (l *Logger) LogTimestampWarning(recordID, shape string) {
	l.zlog.Warn().
		Str("event", "missing_timestamps").
		Str("record_id", recordID).
		Str("shape", shape).
		Msg("eventlog has no timestamp candidates")
}

func (l *Logger) LogServerStart(addr, backend string) {
	l.zlog.Info().
		Str("event", "server_start").
		Str("addr", addr).
		Str("store", backend).
		Msg("eventlog api starting")
}

func (l *Logger) LogServerShutdown() {
	l.zlog.Info().Str("event", "server_shutdown").Msg("eventlog api shutting down")
}
