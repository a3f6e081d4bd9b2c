package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lanepilot/internal/actuator"
	"github.com/banshee-data/lanepilot/internal/config"
	"github.com/banshee-data/lanepilot/internal/db"
	"github.com/banshee-data/lanepilot/internal/decision"
	"github.com/banshee-data/lanepilot/internal/monitoring"
	"github.com/banshee-data/lanepilot/internal/pipeline"
	"github.com/banshee-data/lanepilot/internal/serialmux"
	"github.com/banshee-data/lanepilot/internal/steering"
	"github.com/banshee-data/lanepilot/internal/telemetry"
	"github.com/banshee-data/lanepilot/internal/testutil"
)

func record(seq uint64, action decision.Action, angle float64, dir steering.Direction, strength int) pipeline.Record {
	return pipeline.Record{
		Seq: seq,
		At:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(seq) * time.Second),
		Decision: decision.Decision{
			Action:        action,
			SteeringAngle: angle,
			Direction:     dir,
			Strength:      strength,
		},
		State:   decision.Normal,
		HasLane: true,
	}
}

func serve(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := testutil.NewTestRecorder()
	s.ServeMux().ServeHTTP(w, testutil.NewTestRequest(method, path))
	return w
}

func TestShowDecision(t *testing.T) {
	t.Parallel()

	h := NewHistory(10)
	s := NewServer(Options{History: h})

	w := serve(t, s, http.MethodGet, "/api/decision")
	testutil.AssertStatusCode(t, w.Code, http.StatusNotFound)

	require.NoError(t, h.Record(context.Background(), record(1, decision.Forward, 10, steering.Right, 22)))
	w = serve(t, s, http.MethodGet, "/api/decision")
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)

	var got pipeline.Record
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Equal(t, uint64(1), got.Seq)
	assert.Equal(t, steering.Right, got.Decision.Direction)
	assert.Equal(t, 22, got.Decision.Strength)

	w = serve(t, s, http.MethodPost, "/api/decision")
	testutil.AssertStatusCode(t, w.Code, http.StatusMethodNotAllowed)
}

func TestListDecisions_FromHistory(t *testing.T) {
	t.Parallel()

	h := NewHistory(10)
	for i := uint64(1); i <= 4; i++ {
		require.NoError(t, h.Record(context.Background(), record(i, decision.Forward, 0, steering.Straight, 0)))
	}
	s := NewServer(Options{History: h})

	w := serve(t, s, http.MethodGet, "/api/decisions?limit=2")
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	var got []pipeline.Record
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Equal(t, []uint64{4, 3}, seqs(got), "newest first")

	for _, bad := range []string{"0", "-1", "abc", "999999"} {
		w = serve(t, s, http.MethodGet, "/api/decisions?limit="+bad)
		testutil.AssertStatusCode(t, w.Code, http.StatusBadRequest)
	}
}

func TestJournalEndpoints(t *testing.T) {
	t.Parallel()

	database, err := db.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	ctx := context.Background()
	j, err := database.StartRun(ctx, "replay", nil, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	stop := record(2, decision.Stop, 0, steering.Straight, 0)
	stop.State = decision.Stopped
	stop.Transition = decision.StopStarted
	stop.StopTriggered = true
	for _, r := range []pipeline.Record{record(1, decision.Forward, -30, steering.Left, 67), stop} {
		require.NoError(t, j.Record(ctx, r))
	}

	s := NewServer(Options{DB: database})

	w := serve(t, s, http.MethodGet, "/api/decisions")
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	var rows []db.DecisionRow
	require.NoError(t, json.NewDecoder(w.Body).Decode(&rows))
	require.Len(t, rows, 2)
	assert.Equal(t, decision.Stop, rows[0].Action)

	w = serve(t, s, http.MethodGet, "/api/decisions?run="+j.RunID())
	require.NoError(t, json.NewDecoder(w.Body).Decode(&rows))
	assert.Equal(t, uint64(1), rows[0].Seq, "run order is frame order")

	w = serve(t, s, http.MethodGet, "/api/stops")
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	var stops []db.StopEvent
	require.NoError(t, json.NewDecoder(w.Body).Decode(&stops))
	require.Len(t, stops, 1)
	assert.Equal(t, uint64(2), stops[0].StartedSeq)

	w = serve(t, s, http.MethodGet, "/api/runs")
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	var runs []db.Run
	require.NoError(t, json.NewDecoder(w.Body).Decode(&runs))
	require.Len(t, runs, 1)
	assert.Equal(t, j.RunID(), runs[0].ID)
}

func TestJournalEndpoints_NoJournal(t *testing.T) {
	t.Parallel()

	s := NewServer(Options{})
	for _, path := range []string{"/api/stops", "/api/runs"} {
		w := serve(t, s, http.MethodGet, path)
		testutil.AssertStatusCode(t, w.Code, http.StatusServiceUnavailable)
	}
}

func TestShowTuning(t *testing.T) {
	t.Parallel()

	tuning := config.EmptyTuningConfig()
	s := NewServer(Options{Tuning: tuning})

	w := serve(t, s, http.MethodGet, "/api/tuning")
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)

	var got config.TuningConfig
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	require.NotNil(t, got.HistorySize, "defaults are filled in")
	assert.Equal(t, 5, *got.HistorySize)
	assert.Equal(t, "3s", got.GetStopDuration().String())
}

type fixedStats telemetry.PublisherStats

func (f fixedStats) Stats() telemetry.PublisherStats { return telemetry.PublisherStats(f) }

func TestShowTelemetry(t *testing.T) {
	t.Parallel()

	s := NewServer(Options{Telemetry: fixedStats{Published: 7, Clients: 2, Running: true}})
	w := serve(t, s, http.MethodGet, "/api/telemetry")
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)

	var got telemetry.PublisherStats
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Equal(t, uint64(7), got.Published)
	assert.Equal(t, 2, got.Clients)
}

func TestMetricsRoute(t *testing.T) {
	t.Parallel()

	metrics := monitoring.NewMetrics()
	metrics.ObserveStop()
	s := NewServer(Options{Metrics: metrics})

	w := serve(t, s, http.MethodGet, "/metrics")
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	assert.Contains(t, w.Body.String(), "lanepilot_stop_events_total 1")
}

func TestSteeringChart(t *testing.T) {
	t.Parallel()

	h := NewHistory(10)
	ctx := context.Background()
	require.NoError(t, h.Record(ctx, record(1, decision.Forward, 10, steering.Right, 22)))
	require.NoError(t, h.Record(ctx, record(2, decision.Forward, -30, steering.Left, 67)))
	s := NewServer(Options{History: h})

	w := serve(t, s, http.MethodGet, "/debug/charts/steering")
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/html"))
	assert.Contains(t, w.Body.String(), "strength (%)")

	w = serve(t, s, http.MethodGet, "/debug/charts/steering?points=x")
	testutil.AssertStatusCode(t, w.Code, http.StatusBadRequest)
}

func TestSignedStrength(t *testing.T) {
	t.Parallel()

	assert.Equal(t, -67, signedStrength(decision.Decision{Direction: steering.Left, Strength: 67}))
	assert.Equal(t, 22, signedStrength(decision.Decision{Direction: steering.Right, Strength: 22}))
	assert.Zero(t, signedStrength(decision.Decision{Direction: steering.Straight, Strength: 3}))
}

func TestLoggingMiddleware(t *testing.T) {
	var lines []string
	prev := monitoring.Logf
	monitoring.SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, format)
	})
	t.Cleanup(func() { monitoring.SetLogger(prev) })

	h := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/decisions?limit=5", nil))
	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Len(t, lines, 1)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/metrics", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/decision", nil))
	assert.Len(t, lines, 1, "polled paths are not logged")
}

type fixedCommand struct {
	cmd actuator.Command
	ok  bool
}

func (f fixedCommand) Last() (actuator.Command, bool) { return f.cmd, f.ok }

func TestShowDevice(t *testing.T) {
	t.Parallel()

	w := serve(t, NewServer(Options{}), http.MethodGet, "/api/device")
	testutil.AssertStatusCode(t, w.Code, http.StatusServiceUnavailable)

	dev := serialmux.NewDeviceState()
	require.NoError(t, dev.HandleEvent("OK THR 66"))
	require.NoError(t, dev.HandleEvent(`{"battery_v": 7.4}`))
	board := serialmux.NewDisabled()
	require.NoError(t, board.SendCommand("THR 66"))
	s := NewServer(Options{
		Device:   dev,
		Actuator: fixedCommand{cmd: actuator.Command{ThrottlePWM: 66, SteeringDuty: 55.5}, ok: true},
		Link:     board,
	})

	w = serve(t, s, http.MethodGet, "/api/device")
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	var got deviceResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	require.NotNil(t, got.Board)
	assert.Equal(t, "THR 66", got.Board.LastAck)
	assert.Equal(t, 7.4, got.Board.Telemetry["battery_v"])
	require.NotNil(t, got.Command)
	assert.Equal(t, 66, got.Command.ThrottlePWM)
	require.NotNil(t, got.Link)
	assert.Equal(t, uint64(1), got.Link.CommandsSent)

	s = NewServer(Options{Actuator: fixedCommand{}})
	w = serve(t, s, http.MethodGet, "/api/device")
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	assert.NotContains(t, w.Body.String(), "command")
}
