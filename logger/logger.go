// Package logger is the structured logging facade used by providers, signers
// and the CLI. Fields are passed as a map so callers never depend on a
// concrete backend.
package logger

import "strings"

type Logger interface {
	Debug(msg string, fields map[string]any)
	Info(msg string, fields map[string]any)
	Warn(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
}

// Level names accepted by the backends. Unknown names fall back to info.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

func normalizeLevel(level string) string {
	switch l := strings.ToLower(strings.TrimSpace(level)); l {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
		return l
	case "warning":
		return LevelWarn
	default:
		return LevelInfo
	}
}

type NoopLogger struct{}

func (NoopLogger) Debug(string, map[string]any) {}
func (NoopLogger) Info(string, map[string]any)  {}
func (NoopLogger) Warn(string, map[string]any)  {}
func (NoopLogger) Error(string, map[string]any) {}

// With returns a logger that adds fields to every entry.
func With(l Logger, fields map[string]any) Logger {
	if len(fields) == 0 {
		return l
	}
	return &withLogger{next: l, fields: fields}
}

type withLogger struct {
	next   Logger
	fields map[string]any
}

func (w *withLogger) merge(fields map[string]any) map[string]any {
	out := make(map[string]any, len(w.fields)+len(fields))
	for k, v := range w.fields {
		out[k] = v
	}
	for k, v := range fields {
		out[k] = v
	}
	return out
}

func (w *withLogger) Debug(msg string, fields map[string]any) { w.next.Debug(msg, w.merge(fields)) }
func (w *withLogger) Info(msg string, fields map[string]any)  { w.next.Info(msg, w.merge(fields)) }
func (w *withLogger) Warn(msg string, fields map[string]any)  { w.next.Warn(msg, w.merge(fields)) }
func (w *withLogger) Error(msg string, fields map[string]any) { w.next.Error(msg, w.merge(fields)) }
