// Package api serves the vehicle's live state, its decision journal and
// debug charts over HTTP.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/banshee-data/lanepilot/internal/actuator"
	"github.com/banshee-data/lanepilot/internal/config"
	"github.com/banshee-data/lanepilot/internal/db"
	"github.com/banshee-data/lanepilot/internal/monitoring"
	"github.com/banshee-data/lanepilot/internal/serialmux"
	"github.com/banshee-data/lanepilot/internal/telemetry"
)

const (
	defaultDecisionLimit = 100
	maxDecisionLimit     = 5000
)

// TelemetryStats is the part of the telemetry publisher the API reports on.
type TelemetryStats interface {
	Stats() telemetry.PublisherStats
}

// CommandSource reports the last command sent to the actuators.
type CommandSource interface {
	Last() (actuator.Command, bool)
}

// LinkStats reports traffic on the actuator link.
type LinkStats interface {
	Stats() serialmux.LinkStats
}

// Options holds the Server's collaborators. Only History is required.
type Options struct {
	History   *History
	DB        *db.DB
	Tuning    *config.TuningConfig
	Metrics   *monitoring.Metrics
	Telemetry TelemetryStats
	Device    *serialmux.DeviceState
	Actuator  CommandSource
	Link      LinkStats
}

type Server struct {
	history   *History
	db        *db.DB
	tuning    *config.TuningConfig
	metrics   *monitoring.Metrics
	telemetry TelemetryStats
	device    *serialmux.DeviceState
	actuator  CommandSource
	link      LinkStats
}

func NewServer(opts Options) *Server {
	h := opts.History
	if h == nil {
		h = NewHistory(0)
	}
	tuning := opts.Tuning
	if tuning == nil {
		tuning = config.DefaultTuningConfig()
	}
	return &Server{
		history:   h,
		db:        opts.DB,
		tuning:    tuning,
		metrics:   opts.Metrics,
		telemetry: opts.Telemetry,
		device:    opts.Device,
		actuator:  opts.Actuator,
		link:      opts.Link,
	}
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/decision", s.showDecision)
	mux.HandleFunc("/api/decisions", s.listDecisions)
	mux.HandleFunc("/api/stops", s.listStops)
	mux.HandleFunc("/api/runs", s.listRuns)
	mux.HandleFunc("/api/tuning", s.showTuning)
	mux.HandleFunc("/api/telemetry", s.showTelemetry)
	mux.HandleFunc("/api/device", s.showDevice)
	mux.HandleFunc("/debug/charts/steering", s.handleSteeringChart)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}
	return mux
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		monitoring.Logf("failed to write response: %v", err)
	}
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) requireGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return false
	}
	return true
}

func (s *Server) showDecision(w http.ResponseWriter, r *http.Request) {
	if !s.requireGet(w, r) {
		return
	}
	rec, ok := s.history.Latest()
	if !ok {
		s.writeJSONError(w, http.StatusNotFound, "no decision yet")
		return
	}
	s.writeJSON(w, rec)
}

// listDecisions returns journalled decisions newest first, falling back to
// the in-memory history when no journal is attached.
func (s *Server) listDecisions(w http.ResponseWriter, r *http.Request) {
	if !s.requireGet(w, r) {
		return
	}
	limit := defaultDecisionLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		v, err := strconv.Atoi(l)
		if err != nil || v < 1 || v > maxDecisionLimit {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
			return
		}
		limit = v
	}

	if s.db == nil {
		recent := s.history.Recent(limit)
		for i, j := 0, len(recent)-1; i < j; i, j = i+1, j-1 {
			recent[i], recent[j] = recent[j], recent[i]
		}
		s.writeJSON(w, recent)
		return
	}

	var (
		rows []db.DecisionRow
		err  error
	)
	if run := r.URL.Query().Get("run"); run != "" {
		rows, err = s.db.RunDecisions(r.Context(), run)
	} else {
		rows, err = s.db.RecentDecisions(r.Context(), limit)
	}
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve decisions: %v", err))
		return
	}
	if rows == nil {
		rows = []db.DecisionRow{}
	}
	s.writeJSON(w, rows)
}

func (s *Server) listStops(w http.ResponseWriter, r *http.Request) {
	if !s.requireGet(w, r) {
		return
	}
	if s.db == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "no journal attached")
		return
	}
	events, err := s.db.StopEvents(r.Context(), r.URL.Query().Get("run"))
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve stop events: %v", err))
		return
	}
	if events == nil {
		events = []db.StopEvent{}
	}
	s.writeJSON(w, events)
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if !s.requireGet(w, r) {
		return
	}
	if s.db == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "no journal attached")
		return
	}
	runs, err := s.db.Runs(r.Context())
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve runs: %v", err))
		return
	}
	if runs == nil {
		runs = []db.Run{}
	}
	s.writeJSON(w, runs)
}

func (s *Server) showTuning(w http.ResponseWriter, r *http.Request) {
	if !s.requireGet(w, r) {
		return
	}
	s.writeJSON(w, s.tuning.Resolved())
}

func (s *Server) showTelemetry(w http.ResponseWriter, r *http.Request) {
	if !s.requireGet(w, r) {
		return
	}
	if s.telemetry == nil {
		s.writeJSON(w, telemetry.PublisherStats{})
		return
	}
	s.writeJSON(w, s.telemetry.Stats())
}

type deviceResponse struct {
	Board   *serialmux.DeviceSnapshot `json:"board,omitempty"`
	Command *actuator.Command         `json:"command,omitempty"`
	Link    *serialmux.LinkStats      `json:"link,omitempty"`
}

// showDevice reports what the actuator board has acknowledged, the last
// command sent to it and the link counters.
func (s *Server) showDevice(w http.ResponseWriter, r *http.Request) {
	if !s.requireGet(w, r) {
		return
	}
	if s.device == nil && s.actuator == nil && s.link == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "no actuator attached")
		return
	}
	var resp deviceResponse
	if s.device != nil {
		snap := s.device.Snapshot()
		resp.Board = &snap
	}
	if s.actuator != nil {
		if cmd, ok := s.actuator.Last(); ok {
			resp.Command = &cmd
		}
	}
	if s.link != nil {
		stats := s.link.Stats()
		resp.Link = &stats
	}
	s.writeJSON(w, resp)
}
