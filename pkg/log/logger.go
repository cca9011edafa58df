// Package log is the structured logging library used by the wcnode peer transport.
//
// Loggers are key-value oriented: every call takes a message followed by an even
// number of arguments forming key-value pairs. A Logger can carry persistent pairs
// (WithKV) and a dotted component name (WithName).
//
// When a request is traced, SetContextLogger wraps the logger in a SpanLogger so
// that every log line is also recorded as an event on the active OpenTelemetry span
// and carries the trace and span identifiers.
package log

import "strings"

// Logger is the logging interface shared by all wcnode libraries.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
	// Fatal logs and terminates the process for backends that support it.
	Fatal(msg string, keysAndValues ...any)

	// WithKV returns a logger that adds the pair to every entry.
	WithKV(key string, value any) Logger
	// GetAllKV returns the persistent pairs accumulated through WithKV.
	GetAllKV() []any
	// WithName appends a component name, separated by a dot.
	WithName(name string) Logger
	Name() string
	// AddCallerSkip is used by wrappers so the reported caller is their caller.
	AddCallerSkip(skip int) Logger
}

// Level is the severity of a log entry.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
	LevelFatal Level = "fatal"
)

// ParseLevel maps a case-insensitive level name to a Level.
// Unknown names resolve to LevelInfo.
func ParseLevel(s string) Level {
	switch Level(strings.ToLower(strings.TrimSpace(s))) {
	case LevelDebug:
		return LevelDebug
	case LevelWarn, "warning":
		return LevelWarn
	case LevelError:
		return LevelError
	case LevelFatal:
		return LevelFatal
	default:
		return LevelInfo
	}
}

// SpanEventRecorder receives log entries as span events.
type SpanEventRecorder interface {
	TraceID() string
	SpanID() string

	RecordEvent(name string, keysAndValues ...any)
	// RecordError records the event and marks the span as failed.
	RecordError(name string, keysAndValues ...any)
}
