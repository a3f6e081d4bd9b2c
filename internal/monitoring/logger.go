package monitoring

import (
	"io"
	"log"
)

// Logf is the process-wide diagnostic logger used by the HTTP middleware and
// the actuator. It defaults to log.Printf; SetLogger redirects or mutes it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Streams are the three log destinations each package accepts through its
// SetLogWriters: ops for actionable problems, diag for routine diagnostics
// and trace for per-frame detail. A nil writer disables the stream.
type Streams struct {
	Ops   io.Writer
	Diag  io.Writer
	Trace io.Writer
}

// NewStreams sends ops and diag to w. Trace is only enabled with debug, and
// quiet drops diag.
func NewStreams(w io.Writer, quiet, debug bool) Streams {
	s := Streams{Ops: w, Diag: w}
	if quiet {
		s.Diag = nil
	}
	if debug {
		s.Trace = w
	}
	return s
}

// Apply hands the streams to each package's SetLogWriters and points Logf at
// the diag stream.
func (s Streams) Apply(setters ...func(ops, diag, trace io.Writer)) {
	for _, set := range setters {
		set(s.Ops, s.Diag, s.Trace)
	}
	if s.Diag == nil {
		SetLogger(nil)
		return
	}
	SetLogger(log.New(s.Diag, "", log.LstdFlags|log.Lmicroseconds).Printf)
}
