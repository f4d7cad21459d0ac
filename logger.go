package lordn

import "context"

// Logger provides structured logging hooks. pslog.Logger and *slog.Logger satisfy it.
type Logger interface {
	// Debug logs a debug message.
	Debug(msg string, args ...any)
	// Info logs an informational message.
	Info(msg string, args ...any)
	// Warn logs a warning message.
	Warn(msg string, args ...any)
	// Error logs an error message.
	Error(msg string, args ...any)
}

// NopLogger is a no-op logger.
type NopLogger struct{}

// Debug implements Logger.
func (NopLogger) Debug(string, ...any) {}

// Info implements Logger.
func (NopLogger) Info(string, ...any) {}

// Warn implements Logger.
func (NopLogger) Warn(string, ...any) {}

// Error implements Logger.
func (NopLogger) Error(string, ...any) {}

// fieldLogger prepends fixed key/value pairs to every entry.
type fieldLogger struct {
	base   Logger
	fields []any
}

func withFields(base Logger, fields ...any) Logger {
	if len(fields) == 0 {
		return base
	}
	if fl, ok := base.(fieldLogger); ok {
		merged := make([]any, 0, len(fl.fields)+len(fields))
		merged = append(merged, fl.fields...)
		merged = append(merged, fields...)

		return fieldLogger{base: fl.base, fields: merged}
	}

	return fieldLogger{base: base, fields: fields}
}

func (l fieldLogger) args(args []any) []any {
	out := make([]any, 0, len(l.fields)+len(args))
	out = append(out, l.fields...)

	return append(out, args...)
}

func (l fieldLogger) Debug(msg string, args ...any) { l.base.Debug(msg, l.args(args)...) }
func (l fieldLogger) Info(msg string, args ...any)  { l.base.Info(msg, l.args(args)...) }
func (l fieldLogger) Warn(msg string, args ...any)  { l.base.Warn(msg, l.args(args)...) }
func (l fieldLogger) Error(msg string, args ...any) { l.base.Error(msg, l.args(args)...) }

type logFieldsKey struct{}

// ContextWithLogFields returns a context whose log fields are extended by
// keyvals. Components that log with their own Logger add these fields, so a
// run's correlation id reaches every line it causes.
func ContextWithLogFields(ctx context.Context, keyvals ...any) context.Context {
	if len(keyvals) == 0 {
		return ctx
	}
	prev := LogFields(ctx)
	merged := make([]any, 0, len(prev)+len(keyvals))
	merged = append(merged, prev...)
	merged = append(merged, keyvals...)

	return context.WithValue(ctx, logFieldsKey{}, merged)
}

// LogFields returns the log fields carried by ctx.
func LogFields(ctx context.Context) []any {
	fields, _ := ctx.Value(logFieldsKey{}).([]any)

	return fields
}

// loggerFor decorates base with the log fields carried by ctx.
func loggerFor(ctx context.Context, base Logger) Logger {
	return withFields(base, LogFields(ctx)...)
}
