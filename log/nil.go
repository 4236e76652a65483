package log

// NopLogger is a no-op logger implementation.
type NopLogger struct{}

// NewNop creates a no-op logger implementation.
//
//nolint:ireturn
func NewNop() Logger {
	return &NopLogger{}
}

// Info drops the log event.
func (l *NopLogger) Info(_ ...any) {}

// Infof drops the log event.
func (l *NopLogger) Infof(_ string, _ ...any) {}

// Infoln drops the log event.
func (l *NopLogger) Infoln(_ ...any) {}

// Error drops the log event.
func (l *NopLogger) Error(_ ...any) {}

// Errorf drops the log event.
func (l *NopLogger) Errorf(_ string, _ ...any) {}

// Errorln drops the log event.
func (l *NopLogger) Errorln(_ ...any) {}

// Warn drops the log event.
func (l *NopLogger) Warn(_ ...any) {}

// Warnf drops the log event.
func (l *NopLogger) Warnf(_ string, _ ...any) {}

// Warnln drops the log event.
func (l *NopLogger) Warnln(_ ...any) {}

// Debug drops the log event.
func (l *NopLogger) Debug(_ ...any) {}

// Debugf drops the log event.
func (l *NopLogger) Debugf(_ string, _ ...any) {}

// Debugln drops the log event.
func (l *NopLogger) Debugln(_ ...any) {}

// Fatal drops the log event.
func (l *NopLogger) Fatal(_ ...any) {}

// Fatalf drops the log event.
func (l *NopLogger) Fatalf(_ string, _ ...any) {}

// Fatalln drops the log event.
func (l *NopLogger) Fatalln(_ ...any) {}

// WithFields returns the same no-op logger.
//
//nolint:ireturn
func (l *NopLogger) WithFields(_ ...any) Logger { return l }

// WithDefaultMessageTemplate returns the same no-op logger.
//
//nolint:ireturn
func (l *NopLogger) WithDefaultMessageTemplate(_ string) Logger { return l }

// Sync is a no-op and always returns nil.
func (l *NopLogger) Sync() error { return nil }
