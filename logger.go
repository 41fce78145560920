package modloader

// Logger defines the interface for loader logging.
// The loader uses structured logging with key-value pairs so every
// registration, load and shutdown can be traced back to a module:
//
//	logger.Info("Module loaded", "module", "cache", "duration", d)
//
// The interface is compatible with slog, zap's SugaredLogger and similar
// libraries. NewZapLogger adapts a *zap.Logger.
type Logger interface {
	// Info logs an informational message with optional key-value pairs.
	Info(msg string, args ...any)

	// Error logs an error message with optional key-value pairs.
	// Used for failures that are isolated rather than propagated, such as a
	// module that fails during LoadAllEnabled or Shutdown.
	Error(msg string, args ...any)

	// Warn logs a warning message with optional key-value pairs.
	Warn(msg string, args ...any)

	// Debug logs a debug message with optional key-value pairs.
	Debug(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Debug(string, ...any) {}
