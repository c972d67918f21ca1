// Package monitoring carries the process-wide diagnostic logger. Every
// subsystem logs through Logf so tests can mute or capture output and
// the run logger can tee lines into the per-run log file.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to
// log.Printf but may be replaced by SetLogger.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op
// logger, which is how tests silence expected warnings.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Prefixed returns a logger that tags every line with a subsystem name,
// e.g. Prefixed("vision") writes "vision: ...". The returned function
// follows whatever logger is installed at call time.
func Prefixed(subsystem string) func(format string, v ...interface{}) {
	return func(format string, v ...interface{}) {
		Logf(subsystem+": "+format, v...)
	}
}
