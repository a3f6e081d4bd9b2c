package pipeline

import (
	"io"

	"github.com/banshee-data/lanepilot/internal/monitoring"
)

// ops: sink and detector failures. diag: stop events and run lifecycle.
// trace: per-frame perception, profiling and decisions.
var logs = monitoring.NewPackageLog("[pipeline] ")

// SetLogWriters routes the pipeline's log streams. Nil disables a stream.
func SetLogWriters(ops, diag, trace io.Writer) { logs.Set(ops, diag, trace) }

var (
	opsf   = logs.Opsf
	diagf  = logs.Diagf
	tracef = logs.Tracef
)
