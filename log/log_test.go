package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeLogString(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "clean string unchanged", input: "hello world", want: "hello world"},
		{name: "newline escaped", input: "line1\nline2", want: `line1\nline2`},
		{name: "carriage return escaped", input: "a\rb", want: `a\rb`},
		{name: "tab escaped", input: "a\tb", want: `a\tb`},
		{name: "forged entry neutralized", input: "user\n2026-01-01 INFO fake", want: `user\n2026-01-01 INFO fake`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeLogString(tt.input))
		})
	}
}

func TestSanitizeLogArgs(t *testing.T) {
	sanitized := sanitizeLogArgs([]any{"a\nb", 42, nil})

	assert.Equal(t, `a\nb`, sanitized[0])
	assert.Equal(t, 42, sanitized[1])
	assert.Nil(t, sanitized[2])
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  LogLevel
	}{
		{input: "debug", want: DebugLevel},
		{input: "info", want: InfoLevel},
		{input: "warn", want: WarnLevel},
		{input: "error", want: ErrorLevel},
		{input: "fatal", want: FatalLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			level, err := ParseLevel(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, level)
		})
	}
}

func TestParseLevel_Unknown(t *testing.T) {
	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestGoLogger_IsLevelEnabled(t *testing.T) {
	logger := &GoLogger{Level: InfoLevel}

	assert.True(t, logger.IsLevelEnabled(ErrorLevel))
	assert.True(t, logger.IsLevelEnabled(InfoLevel))
	assert.False(t, logger.IsLevelEnabled(DebugLevel))
}

func TestGoLogger_NilReceiver(t *testing.T) {
	var logger *GoLogger

	assert.False(t, logger.IsLevelEnabled(InfoLevel))
}

func TestGoLogger_LineFormat(t *testing.T) {
	logger := &GoLogger{Level: InfoLevel}

	withFields, ok := logger.WithFields("component", "breaker").(*GoLogger)
	require.True(t, ok)

	withTemplate, ok := withFields.WithDefaultMessageTemplate("resilience:").(*GoLogger)
	require.True(t, ok)

	assert.Equal(t, "[info] circuit opened", logger.line(InfoLevel, "circuit opened"))
	assert.Equal(t, "[info] [component=breaker] circuit opened", withFields.line(InfoLevel, "circuit opened"))
	assert.Equal(t, "[warn] resilience: [component=breaker] circuit opened", withTemplate.line(WarnLevel, "circuit opened"))
}

func TestGoLogger_LineWithDanglingFieldKey(t *testing.T) {
	logger, ok := (&GoLogger{Level: InfoLevel}).WithFields("orphan").(*GoLogger)
	require.True(t, ok)

	assert.Equal(t, "[info] [orphan] ready", logger.line(InfoLevel, "ready"))
}

func TestNopLogger_WithFieldsReturnsSelf(t *testing.T) {
	logger := &NopLogger{}

	assert.Same(t, Logger(logger), logger.WithFields("k", "v"))
	assert.NoError(t, logger.Sync())
}
