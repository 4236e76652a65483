package zap

import (
	"context"
	"strings"

	"github.com/projectecosystemapp/lib-resilience/log"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// injectionReplacer escapes control characters that can forge log entries (CWE-117).
var injectionReplacer = strings.NewReplacer(
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

func sanitize(s string) string {
	return injectionReplacer.Replace(s)
}

func sanitizeArgs(args []any) []any {
	out := make([]any, len(args))
	for i, arg := range args {
		if s, ok := arg.(string); ok {
			out[i] = sanitize(s)
		} else {
			out[i] = arg
		}
	}

	return out
}

// ZapLogger is the go.uber.org/zap implementation of the log.Logger interface.
type ZapLogger struct {
	Logger *zap.SugaredLogger
	Level  log.LogLevel
}

// Compile-time assertion: *ZapLogger implements log.Logger.
var _ log.Logger = (*ZapLogger)(nil)

// InitializeLogger builds a production zap logger at the level named by the
// level argument ("debug", "info", "warn", "error", "fatal"). Unknown levels
// fall back to info.
func InitializeLogger(level string) *ZapLogger {
	parsed, err := log.ParseLevel(level)
	if err != nil {
		parsed = log.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(toZapLevel(parsed))
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		// Building a production config only fails on invalid output paths,
		// which we do not set. Fall back to a no-op core rather than panic.
		logger = zap.NewNop()
	}

	return &ZapLogger{
		Logger: logger.Sugar(),
		Level:  parsed,
	}
}

func toZapLevel(level log.LogLevel) zapcore.Level {
	switch level {
	case log.DebugLevel:
		return zapcore.DebugLevel
	case log.InfoLevel:
		return zapcore.InfoLevel
	case log.WarnLevel:
		return zapcore.WarnLevel
	case log.ErrorLevel:
		return zapcore.ErrorLevel
	case log.FatalLevel:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

func (l *ZapLogger) must() *zap.SugaredLogger {
	if l == nil || l.Logger == nil {
		return zap.NewNop().Sugar()
	}

	return l.Logger
}

// Info implements Info Logger interface function.
func (l *ZapLogger) Info(args ...any) { l.must().Info(sanitizeArgs(args)...) }

// Infof implements Infof Logger interface function.
func (l *ZapLogger) Infof(format string, args ...any) {
	l.must().Infof(sanitize(format), args...)
}

// Infoln implements Infoln Logger interface function.
func (l *ZapLogger) Infoln(args ...any) { l.must().Infoln(sanitizeArgs(args)...) }

// Error implements Error Logger interface function.
func (l *ZapLogger) Error(args ...any) { l.must().Error(sanitizeArgs(args)...) }

// Errorf implements Errorf Logger interface function.
func (l *ZapLogger) Errorf(format string, args ...any) {
	l.must().Errorf(sanitize(format), args...)
}

// Errorln implements Errorln Logger interface function.
func (l *ZapLogger) Errorln(args ...any) { l.must().Errorln(sanitizeArgs(args)...) }

// Warn implements Warn Logger interface function.
func (l *ZapLogger) Warn(args ...any) { l.must().Warn(sanitizeArgs(args)...) }

// Warnf implements Warnf Logger interface function.
func (l *ZapLogger) Warnf(format string, args ...any) {
	l.must().Warnf(sanitize(format), args...)
}

// Warnln implements Warnln Logger interface function.
func (l *ZapLogger) Warnln(args ...any) { l.must().Warnln(sanitizeArgs(args)...) }

// Debug implements Debug Logger interface function.
func (l *ZapLogger) Debug(args ...any) { l.must().Debug(sanitizeArgs(args)...) }

// Debugf implements Debugf Logger interface function.
func (l *ZapLogger) Debugf(format string, args ...any) {
	l.must().Debugf(sanitize(format), args...)
}

// Debugln implements Debugln Logger interface function.
func (l *ZapLogger) Debugln(args ...any) { l.must().Debugln(sanitizeArgs(args)...) }

// Fatal implements Fatal Logger interface function.
func (l *ZapLogger) Fatal(args ...any) { l.must().Fatal(sanitizeArgs(args)...) }

// Fatalf implements Fatalf Logger interface function.
func (l *ZapLogger) Fatalf(format string, args ...any) {
	l.must().Fatalf(sanitize(format), args...)
}

// Fatalln implements Fatalln Logger interface function.
func (l *ZapLogger) Fatalln(args ...any) { l.must().Fatalln(sanitizeArgs(args)...) }

// WithFields returns a child logger with additional structured fields.
// Fields are expected as alternating key/value pairs.
//
//nolint:ireturn
func (l *ZapLogger) WithFields(fields ...any) log.Logger {
	return &ZapLogger{
		Logger: l.must().With(sanitizeArgs(fields)...),
		Level:  l.level(),
	}
}

// WithTraceContext returns a child logger that carries trace_id and span_id
// fields from the active OpenTelemetry span in ctx, so log lines correlate
// with distributed traces. Without a valid span the logger is returned
// unchanged.
//
//nolint:ireturn
func (l *ZapLogger) WithTraceContext(ctx context.Context) log.Logger {
	if ctx == nil {
		return l
	}

	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return l
	}

	return &ZapLogger{
		Logger: l.must().With(
			"trace_id", sc.TraceID().String(),
			"span_id", sc.SpanID().String(),
		),
		Level: l.level(),
	}
}

// WithDefaultMessageTemplate returns a child logger that prefixes every
// message with the provided template.
//
//nolint:ireturn
func (l *ZapLogger) WithDefaultMessageTemplate(message string) log.Logger {
	return &ZapLogger{
		Logger: l.must().Named(sanitize(message)),
		Level:  l.level(),
	}
}

// Sync flushes any buffered log entries.
func (l *ZapLogger) Sync() error {
	return l.must().Sync()
}

func (l *ZapLogger) level() log.LogLevel {
	if l == nil {
		return log.InfoLevel
	}

	return l.Level
}
