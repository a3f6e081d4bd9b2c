package vision

import (
	"io"

	"github.com/banshee-data/lanepilot/internal/monitoring"
)

var logs = monitoring.NewPackageLog("[vision] ")

// SetLogWriters routes capture lifecycle messages to ops and per-frame
// detection summaries to trace. Vision has no diagnostic stream and ignores
// diag.
func SetLogWriters(ops, diag, trace io.Writer) { logs.Set(ops, nil, trace) }

var (
	opsf   = logs.Opsf
	tracef = logs.Tracef
)
