package api

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lanepilot/internal/lane"
	"github.com/banshee-data/lanepilot/internal/pipeline"
)

func seqs(recs []pipeline.Record) []uint64 {
	out := make([]uint64, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Seq)
	}
	return out
}

func TestHistory_Empty(t *testing.T) {
	t.Parallel()

	h := NewHistory(3)
	_, ok := h.Latest()
	assert.False(t, ok)
	assert.Empty(t, h.Recent(0))
}

func TestHistory_WrapsAround(t *testing.T) {
	t.Parallel()

	h := NewHistory(3)
	ctx := context.Background()
	for i := uint64(1); i <= 2; i++ {
		require.NoError(t, h.Record(ctx, pipeline.Record{Seq: i}))
	}
	assert.Equal(t, []uint64{1, 2}, seqs(h.Recent(0)))

	for i := uint64(3); i <= 5; i++ {
		require.NoError(t, h.Record(ctx, pipeline.Record{Seq: i}))
	}
	assert.Equal(t, []uint64{3, 4, 5}, seqs(h.Recent(0)))
	assert.Equal(t, []uint64{4, 5}, seqs(h.Recent(2)))
	assert.Equal(t, []uint64{3, 4, 5}, seqs(h.Recent(10)))

	latest, ok := h.Latest()
	require.True(t, ok)
	assert.Equal(t, uint64(5), latest.Seq)
}

func TestHistory_CopiesLines(t *testing.T) {
	t.Parallel()

	h := NewHistory(2)
	lines := []lane.Segment{{X1: 1, Y1: 2, X2: 3, Y2: 4}}
	require.NoError(t, h.Record(context.Background(), pipeline.Record{Seq: 1, Lines: lines}))
	lines[0].X1 = 99

	latest, _ := h.Latest()
	assert.Equal(t, 1.0, latest.Lines[0].X1)
}
