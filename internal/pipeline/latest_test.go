package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatest_OverwritesUntaken(t *testing.T) {
	t.Parallel()

	l := NewLatest[int]()
	_, ok := l.Take()
	assert.False(t, ok)

	l.Put(1)
	l.Put(2)
	l.Put(3)

	select {
	case <-l.Ready():
	default:
		t.Fatal("expected a ready signal")
	}

	v, ok := l.Take()
	require.True(t, ok)
	assert.Equal(t, 3, v)
	assert.Equal(t, uint64(2), l.Dropped())

	_, ok = l.Take()
	assert.False(t, ok)
}

func TestLatest_SignalDoesNotBlock(t *testing.T) {
	t.Parallel()

	l := NewLatest[string]()
	for i := 0; i < 100; i++ {
		l.Put("frame")
	}
	v, ok := l.Take()
	assert.True(t, ok)
	assert.Equal(t, "frame", v)
}

func TestCadence(t *testing.T) {
	t.Parallel()

	_, err := NewCadence(0)
	assert.Error(t, err)

	c, err := NewCadence(5)
	require.NoError(t, err)
	var admitted []uint64
	for i := 0; i < 12; i++ {
		if c.Admit() {
			admitted = append(admitted, c.Count())
		}
	}
	assert.Equal(t, []uint64{5, 10}, admitted)

	every, err := NewCadence(1)
	require.NoError(t, err)
	assert.True(t, every.Admit())
	assert.True(t, every.Admit())
}
