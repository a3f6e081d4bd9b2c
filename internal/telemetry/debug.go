package telemetry

import (
	"io"

	"github.com/banshee-data/lanepilot/internal/monitoring"
)

var logs = monitoring.NewPackageLog("[telemetry] ")

// SetLogWriters routes client connect/disconnect messages to diag and send
// failures to ops. Telemetry writes nothing per frame, so trace is unused.
func SetLogWriters(ops, diag, trace io.Writer) { logs.Set(ops, diag, nil) }

var (
	opsf  = logs.Opsf
	diagf = logs.Diagf
)
