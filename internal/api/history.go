package api

import (
	"context"
	"sync"

	"github.com/banshee-data/lanepilot/internal/lane"
	"github.com/banshee-data/lanepilot/internal/pipeline"
)

// DefaultHistorySize is how many records History keeps for charts.
const DefaultHistorySize = 600

// History keeps the newest records in memory for the live endpoints. It
// implements pipeline.Sink and is safe for concurrent use.
type History struct {
	mu   sync.RWMutex
	buf  []pipeline.Record
	next int
	full bool
}

// NewHistory returns a History holding up to size records.
func NewHistory(size int) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &History{buf: make([]pipeline.Record, size)}
}

// Record stores r, evicting the oldest record when full.
func (h *History) Record(_ context.Context, r pipeline.Record) error {
	r.Lines = append([]lane.Segment(nil), r.Lines...)

	h.mu.Lock()
	h.buf[h.next] = r
	h.next = (h.next + 1) % len(h.buf)
	if h.next == 0 {
		h.full = true
	}
	h.mu.Unlock()
	return nil
}

// Latest returns the newest record.
func (h *History) Latest() (pipeline.Record, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.full && h.next == 0 {
		return pipeline.Record{}, false
	}
	i := h.next - 1
	if i < 0 {
		i = len(h.buf) - 1
	}
	return h.buf[i], true
}

// Recent returns up to limit records, oldest first. limit <= 0 returns all.
func (h *History) Recent(limit int) []pipeline.Record {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := h.next
	if h.full {
		n = len(h.buf)
	}
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]pipeline.Record, 0, limit)
	start := h.next - limit
	if start < 0 {
		start += len(h.buf)
	}
	for i := 0; i < limit; i++ {
		out = append(out, h.buf[(start+i)%len(h.buf)])
	}
	return out
}
