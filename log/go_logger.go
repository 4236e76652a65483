package log

import (
	"fmt"
	"log"
	"strings"
)

// logControlCharReplacer escapes control characters that can be used for log
// injection (CWE-117): newlines, carriage returns, and tabs in log messages
// can forge fake log entries or mislead incident response.
var logControlCharReplacer = strings.NewReplacer(
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

// sanitizeLogString escapes control characters in a single string value.
func sanitizeLogString(s string) string {
	return logControlCharReplacer.Replace(s)
}

// sanitizeLogArgs escapes control characters in all string-typed arguments.
// Non-string arguments are passed through unchanged.
func sanitizeLogArgs(args []any) []any {
	sanitized := make([]any, len(args))
	for i, arg := range args {
		if s, ok := arg.(string); ok {
			sanitized[i] = sanitizeLogString(s)
		} else {
			sanitized[i] = arg
		}
	}

	return sanitized
}

// GoLogger is the standard-library implementation of the Logger interface,
// used as the fallback when no structured logger is injected. All string
// arguments are sanitized to prevent log injection (CWE-117).
type GoLogger struct {
	fields                 []any
	Level                  LogLevel
	defaultMessageTemplate string
}

// IsLevelEnabled checks if the given level is enabled.
func (l *GoLogger) IsLevelEnabled(level LogLevel) bool {
	if l == nil {
		return false
	}

	return l.Level >= level
}

// line assembles "[level] template [k=v, ...] msg" for one log entry.
func (l *GoLogger) line(level LogLevel, msg string) string {
	if l == nil {
		return msg
	}

	parts := make([]string, 0, 4)
	parts = append(parts, fmt.Sprintf("[%s]", level.String()))

	if l.defaultMessageTemplate != "" {
		parts = append(parts, l.defaultMessageTemplate)
	}

	if len(l.fields) > 0 {
		pairs := make([]string, 0, (len(l.fields)+1)/2)

		for i := 0; i < len(l.fields); i += 2 {
			if i+1 < len(l.fields) {
				pairs = append(pairs, fmt.Sprintf("%v=%v", l.fields[i], l.fields[i+1]))
			} else {
				pairs = append(pairs, fmt.Sprint(l.fields[i]))
			}
		}

		parts = append(parts, fmt.Sprintf("[%s]", strings.Join(pairs, ", ")))
	}

	parts = append(parts, msg)

	return strings.Join(parts, " ")
}

func (l *GoLogger) emit(level LogLevel, msg string) {
	if !l.IsLevelEnabled(level) {
		return
	}

	if level == FatalLevel {
		log.Fatal(l.line(level, msg))

		return
	}

	log.Print(l.line(level, msg))
}

func (l *GoLogger) emitArgs(level LogLevel, args []any) {
	if l.IsLevelEnabled(level) {
		l.emit(level, fmt.Sprint(sanitizeLogArgs(args)...))
	}
}

func (l *GoLogger) emitFormat(level LogLevel, format string, args []any) {
	if l.IsLevelEnabled(level) {
		l.emit(level, fmt.Sprintf(sanitizeLogString(format), args...))
	}
}

func (l *GoLogger) emitLine(level LogLevel, args []any) {
	if l.IsLevelEnabled(level) {
		l.emit(level, strings.TrimSuffix(fmt.Sprintln(sanitizeLogArgs(args)...), "\n"))
	}
}

// Info implements Info Logger interface function.
func (l *GoLogger) Info(args ...any) { l.emitArgs(InfoLevel, args) }

// Infof implements Infof Logger interface function.
func (l *GoLogger) Infof(format string, args ...any) { l.emitFormat(InfoLevel, format, args) }

// Infoln implements Infoln Logger interface function.
func (l *GoLogger) Infoln(args ...any) { l.emitLine(InfoLevel, args) }

// Error implements Error Logger interface function.
func (l *GoLogger) Error(args ...any) { l.emitArgs(ErrorLevel, args) }

// Errorf implements Errorf Logger interface function.
func (l *GoLogger) Errorf(format string, args ...any) { l.emitFormat(ErrorLevel, format, args) }

// Errorln implements Errorln Logger interface function.
func (l *GoLogger) Errorln(args ...any) { l.emitLine(ErrorLevel, args) }

// Warn implements Warn Logger interface function.
func (l *GoLogger) Warn(args ...any) { l.emitArgs(WarnLevel, args) }

// Warnf implements Warnf Logger interface function.
func (l *GoLogger) Warnf(format string, args ...any) { l.emitFormat(WarnLevel, format, args) }

// Warnln implements Warnln Logger interface function.
func (l *GoLogger) Warnln(args ...any) { l.emitLine(WarnLevel, args) }

// Debug implements Debug Logger interface function.
func (l *GoLogger) Debug(args ...any) { l.emitArgs(DebugLevel, args) }

// Debugf implements Debugf Logger interface function.
func (l *GoLogger) Debugf(format string, args ...any) { l.emitFormat(DebugLevel, format, args) }

// Debugln implements Debugln Logger interface function.
func (l *GoLogger) Debugln(args ...any) { l.emitLine(DebugLevel, args) }

// Fatal implements Fatal Logger interface function.
func (l *GoLogger) Fatal(args ...any) { l.emitArgs(FatalLevel, args) }

// Fatalf implements Fatalf Logger interface function.
func (l *GoLogger) Fatalf(format string, args ...any) { l.emitFormat(FatalLevel, format, args) }

// Fatalln implements Fatalln Logger interface function.
func (l *GoLogger) Fatalln(args ...any) { l.emitLine(FatalLevel, args) }

// WithFields returns a child logger with additional key/value pairs appended
// to every entry.
//
//nolint:ireturn
func (l *GoLogger) WithFields(fields ...any) Logger {
	if l == nil {
		return &GoLogger{}
	}

	combined := make([]any, 0, len(l.fields)+len(fields))
	combined = append(combined, l.fields...)
	combined = append(combined, fields...)

	return &GoLogger{
		Level:                  l.Level,
		fields:                 combined,
		defaultMessageTemplate: l.defaultMessageTemplate,
	}
}

// WithDefaultMessageTemplate sets a template prefix emitted before every message.
//
//nolint:ireturn
func (l *GoLogger) WithDefaultMessageTemplate(message string) Logger {
	if l == nil {
		return &GoLogger{}
	}

	return &GoLogger{
		Level:                  l.Level,
		fields:                 l.fields,
		defaultMessageTemplate: message,
	}
}

// Sync implements Sync Logger interface function.
func (l *GoLogger) Sync() error { return nil }
