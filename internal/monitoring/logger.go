// Package monitoring provides the shared diagnostic logger for the analysis
// pipeline. Stages log through a replaceable package-level function so tests
// and embedding callers can redirect or silence output.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf but
// may be replaced with SetLogger.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Stage returns a logger that prefixes every line with the pipeline stage
// name, e.g. "[chase] 12 events emitted".
func Stage(name string) func(format string, v ...interface{}) {
	return func(format string, v ...interface{}) {
		Logf("["+name+"] "+format, v...)
	}
}
