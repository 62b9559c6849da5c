package log

// NoopLogger is the default Logger of every component.
type NoopLogger struct{}

var _ Logger = NoopLogger{}

func NewNoopLogger() NoopLogger {
	return NoopLogger{}
}

func (NoopLogger) Debug(string, ...Field) {}

func (NoopLogger) Info(string, ...Field) {}

func (NoopLogger) Warn(string, ...Field) {}

func (NoopLogger) Error(string, ...Field) {}

// With returns the receiver; there is nothing to attach fields to.
func (logger NoopLogger) With(...Field) Logger {
	return logger
}
