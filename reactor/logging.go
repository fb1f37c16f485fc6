package reactor

// Logger is the pluggable structured-logging seam for the reactor package.
// Grounded on eventloop/logging.go's SetStructuredLogger/getGlobalLogger
// global-with-default pattern, narrowed to instance-level injection via
// WithLogger instead of a package-level global, since a process may run
// more than one Base with different logging needs.
type Logger interface {
	Debugf(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// noopLogger discards everything; it is the default when no Logger is
// supplied via WithLogger.
type noopLogger struct{}

func (noopLogger) Debugf(string, ...any) {}
func (noopLogger) Warnf(string, ...any)  {}
func (noopLogger) Errorf(string, ...any) {}
