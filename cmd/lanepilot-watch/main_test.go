package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lanepilot/internal/decision"
	"github.com/banshee-data/lanepilot/internal/perception"
	"github.com/banshee-data/lanepilot/internal/pipeline"
	"github.com/banshee-data/lanepilot/internal/steering"
)

func sample() pipeline.Record {
	return pipeline.Record{
		Seq:   42,
		At:    time.Date(2026, 3, 1, 9, 15, 30, 250_000_000, time.UTC),
		State: decision.Stopped,
		Decision: decision.Decision{
			Action:    decision.Stop,
			Direction: steering.Straight,
		},
		StopSignStable: true,
		Light:          perception.LightRed,
	}
}

func TestPrintLine(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printLine(&buf, sample()))

	line := buf.String()
	assert.True(t, strings.HasPrefix(line, "09:15:30.250 #42"), line)
	assert.Contains(t, line, "stopped")
	assert.Contains(t, line, "stop-sign light=red no-lane")
	assert.NotContains(t, line, "skipped")
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printJSON(&buf, sample()))

	var got pipeline.Record
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, uint64(42), got.Seq)
	assert.Equal(t, perception.LightRed, got.Light)
}
