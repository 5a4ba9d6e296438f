// Package monitoring holds the diagnostic logger shared by the library
// packages and the signal plotter used for offline review of a session.
package monitoring

import "log"

// Logf receives every diagnostic line from the engine, the frame sources, the
// peripheral link and the pipeline. It is log.Printf unless replaced.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger swaps Logf. nil installs a logger that drops everything, which is
// what -quiet and most tests use.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		f = func(string, ...interface{}) {}
	}
	Logf = f
}
