package snap

// Logger provides structured logging for the pipeline.
// The args follow slog conventions: alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NopLogger is a Logger that discards all output. Use in tests.
type NopLogger struct{}

func NewNopLogger() *NopLogger { return &NopLogger{} }

func (*NopLogger) Debug(string, ...any) {}
func (*NopLogger) Info(string, ...any)  {}
func (*NopLogger) Warn(string, ...any)  {}
func (*NopLogger) Error(string, ...any) {}

// detail logs a progress message that the operator only sees with verbose
// output enabled. It always reaches the log file at debug level.
func detail(l Logger, verbose bool, msg string, args ...any) {
	if verbose {
		l.Info(msg, args...)
		return
	}
	l.Debug(msg, args...)
}
