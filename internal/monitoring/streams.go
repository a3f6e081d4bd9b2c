package monitoring

import (
	"io"
	"log"
	"sync/atomic"
)

// PackageLog holds one package's ops, diag and trace loggers. Packages keep
// one in a package variable and expose its Set as SetLogWriters.
type PackageLog struct {
	prefix string
	ops    atomic.Pointer[log.Logger]
	diag   atomic.Pointer[log.Logger]
	trace  atomic.Pointer[log.Logger]
}

// NewPackageLog returns a PackageLog with every stream disabled. prefix is
// prepended to each line, e.g. "[pipeline] ".
func NewPackageLog(prefix string) *PackageLog {
	return &PackageLog{prefix: prefix}
}

// Set routes the three streams. A nil writer disables that stream.
func (p *PackageLog) Set(ops, diag, trace io.Writer) {
	p.ops.Store(p.logger(ops))
	p.diag.Store(p.logger(diag))
	p.trace.Store(p.logger(trace))
}

func (p *PackageLog) logger(w io.Writer) *log.Logger {
	if w == nil {
		return nil
	}
	return log.New(w, p.prefix, log.LstdFlags|log.Lmicroseconds)
}

// Opsf logs an actionable problem.
func (p *PackageLog) Opsf(format string, args ...any) { printf(&p.ops, format, args) }

// Diagf logs a routine lifecycle event.
func (p *PackageLog) Diagf(format string, args ...any) { printf(&p.diag, format, args) }

// Tracef logs per-frame detail.
func (p *PackageLog) Tracef(format string, args ...any) { printf(&p.trace, format, args) }

// TraceEnabled reports whether Tracef writes anywhere, so callers can skip
// building expensive trace arguments.
func (p *PackageLog) TraceEnabled() bool { return p.trace.Load() != nil }

func printf(l *atomic.Pointer[log.Logger], format string, args []any) {
	if lg := l.Load(); lg != nil {
		lg.Printf(format, args...)
	}
}
