package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/lanepilot/internal/config"
	"github.com/banshee-data/lanepilot/internal/decision"
	"github.com/banshee-data/lanepilot/internal/perception"
	"github.com/banshee-data/lanepilot/internal/pipeline"
	"github.com/banshee-data/lanepilot/internal/steering"
)

// Run is one journalled pipeline run.
type Run struct {
	ID         string          `json:"run_id"`
	Source     string          `json:"source"`
	Tuning     json.RawMessage `json:"tuning"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
	Frames     int64           `json:"frames"`
}

// DecisionRow is one journalled tick.
type DecisionRow struct {
	RunID          string                `json:"run_id"`
	Seq            uint64                `json:"seq"`
	At             time.Time             `json:"at"`
	Action         decision.Action       `json:"action"`
	SteeringAngle  float64               `json:"steering_angle"`
	Direction      steering.Direction    `json:"direction"`
	Strength       int                   `json:"strength"`
	State          decision.State        `json:"state"`
	LaneAngle      float64               `json:"lane_angle"`
	RawAngle       float64               `json:"raw_angle"`
	HasLane        bool                  `json:"has_lane"`
	StopSignClose  bool                  `json:"stop_sign_close"`
	StopSignStable bool                  `json:"stop_sign_stable"`
	LightRaw       perception.LightColor `json:"light_raw,omitempty"`
	Light          perception.LightColor `json:"light,omitempty"`
	StopTriggered  bool                  `json:"stop_triggered"`
	Skipped        bool                  `json:"skipped"`
}

// StopEvent is one mandatory stop. ResumedAt is nil while the wait is still
// running or when the run ended mid-wait.
type StopEvent struct {
	ID         int64                 `json:"id"`
	RunID      string                `json:"run_id"`
	StartedSeq uint64                `json:"started_seq"`
	StartedAt  time.Time             `json:"started_at"`
	ResumedAt  *time.Time            `json:"resumed_at,omitempty"`
	StopSign   bool                  `json:"stop_sign"`
	Light      perception.LightColor `json:"light,omitempty"`
}

// Journal appends the records of a single run. It implements pipeline.Sink.
type Journal struct {
	db    *DB
	runID string
}

// StartRun registers a new run and returns its journal. tuning is stored
// fully resolved so later changes to the defaults do not rewrite history.
func (db *DB) StartRun(ctx context.Context, source string, tuning *config.TuningConfig, at time.Time) (*Journal, error) {
	if tuning == nil {
		tuning = config.DefaultTuningConfig()
	}
	tuningJSON, err := json.Marshal(tuning.Resolved())
	if err != nil {
		return nil, fmt.Errorf("encode tuning: %w", err)
	}
	id := uuid.NewString()
	if _, err := db.ExecContext(ctx,
		`INSERT INTO runs (run_id, source, tuning_json, started_at) VALUES (?, ?, ?, ?)`,
		id, source, string(tuningJSON), at.UnixNano(),
	); err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return &Journal{db: db, runID: id}, nil
}

// RunID returns the identifier of the run being journalled.
func (j *Journal) RunID() string { return j.runID }

// Record appends one tick and keeps stop_events in step with the decision
// machine's transitions.
func (j *Journal) Record(ctx context.Context, r pipeline.Record) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO decisions (
			run_id, seq, ts_unix_nanos, action, steering_angle, direction, strength, state,
			lane_angle, raw_angle, has_lane, stop_sign_close, stop_sign_stable,
			light_raw, light, stop_triggered, skipped
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.runID, int64(r.Seq), r.At.UnixNano(),
		string(r.Decision.Action), r.Decision.SteeringAngle, string(r.Decision.Direction), r.Decision.Strength,
		string(r.State), r.LaneAngle, r.RawAngle, r.HasLane, r.StopSignClose, r.StopSignStable,
		string(r.LightRaw), string(r.Light), r.StopTriggered, r.Skipped,
	); err != nil {
		return fmt.Errorf("insert decision %d: %w", r.Seq, err)
	}

	switch r.Transition {
	case decision.StopStarted:
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO stop_events (run_id, started_seq, started_at, stop_sign, light) VALUES (?, ?, ?, ?, ?)`,
			j.runID, int64(r.Seq), r.At.UnixNano(), r.StopSignStable, string(r.Light),
		); err != nil {
			return fmt.Errorf("insert stop event: %w", err)
		}
	case decision.StopResumed:
		if _, err := tx.ExecContext(ctx, `
			UPDATE stop_events SET resumed_at = ?
			WHERE event_id = (
				SELECT event_id FROM stop_events
				WHERE run_id = ? AND resumed_at IS NULL
				ORDER BY started_at DESC LIMIT 1
			)`,
			r.At.UnixNano(), j.runID,
		); err != nil {
			return fmt.Errorf("close stop event: %w", err)
		}
	}

	return tx.Commit()
}

// Finish stamps the run with its end time and frame count.
func (j *Journal) Finish(ctx context.Context, at time.Time) error {
	_, err := j.db.ExecContext(ctx, `
		UPDATE runs
		SET finished_at = ?, frames = (SELECT COUNT(*) FROM decisions WHERE run_id = ?)
		WHERE run_id = ?`,
		at.UnixNano(), j.runID, j.runID,
	)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", j.runID, err)
	}
	return nil
}

const decisionColumns = `
	run_id, seq, ts_unix_nanos, action, steering_angle, direction, strength, state,
	lane_angle, raw_angle, has_lane, stop_sign_close, stop_sign_stable,
	light_raw, light, stop_triggered, skipped`

// RecentDecisions returns up to limit of the newest ticks across all runs,
// newest first.
func (db *DB) RecentDecisions(ctx context.Context, limit int) ([]DecisionRow, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := db.QueryContext(ctx,
		`SELECT `+decisionColumns+` FROM decisions ORDER BY ts_unix_nanos DESC, seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent decisions: %w", err)
	}
	return scanDecisions(rows)
}

// RunDecisions returns every tick of a run in frame order.
func (db *DB) RunDecisions(ctx context.Context, runID string) ([]DecisionRow, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+decisionColumns+` FROM decisions WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("query run %s: %w", runID, err)
	}
	return scanDecisions(rows)
}

func scanDecisions(rows *sql.Rows) ([]DecisionRow, error) {
	defer rows.Close()

	var out []DecisionRow
	for rows.Next() {
		var (
			d                  DecisionRow
			seq, ts            int64
			action, dir, state string
			lightRaw, light    string
		)
		if err := rows.Scan(
			&d.RunID, &seq, &ts, &action, &d.SteeringAngle, &dir, &d.Strength, &state,
			&d.LaneAngle, &d.RawAngle, &d.HasLane, &d.StopSignClose, &d.StopSignStable,
			&lightRaw, &light, &d.StopTriggered, &d.Skipped,
		); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		d.Seq = uint64(seq)
		d.At = time.Unix(0, ts).UTC()
		d.Action = decision.Action(action)
		d.Direction = steering.Direction(dir)
		d.State = decision.State(state)
		d.LightRaw = perception.LightColor(lightRaw)
		d.Light = perception.LightColor(light)
		out = append(out, d)
	}
	return out, rows.Err()
}

// StopEvents returns the stops of a run in the order they started. An empty
// runID returns stops across all runs.
func (db *DB) StopEvents(ctx context.Context, runID string) ([]StopEvent, error) {
	query := `SELECT event_id, run_id, started_seq, started_at, resumed_at, stop_sign, light FROM stop_events`
	var args []any
	if runID != "" {
		query += ` WHERE run_id = ?`
		args = append(args, runID)
	}
	query += ` ORDER BY started_at, event_id`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query stop events: %w", err)
	}
	defer rows.Close()

	var out []StopEvent
	for rows.Next() {
		var (
			e            StopEvent
			seq, started int64
			resumed      sql.NullInt64
			light        string
		)
		if err := rows.Scan(&e.ID, &e.RunID, &seq, &started, &resumed, &e.StopSign, &light); err != nil {
			return nil, fmt.Errorf("scan stop event: %w", err)
		}
		e.StartedSeq = uint64(seq)
		e.StartedAt = time.Unix(0, started).UTC()
		if resumed.Valid {
			t := time.Unix(0, resumed.Int64).UTC()
			e.ResumedAt = &t
		}
		e.Light = perception.LightColor(light)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Runs lists journalled runs, newest first.
func (db *DB) Runs(ctx context.Context) ([]Run, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT run_id, source, tuning_json, started_at, finished_at, frames FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			r        Run
			tuning   string
			started  int64
			finished sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &r.Source, &tuning, &started, &finished, &r.Frames); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Tuning = json.RawMessage(tuning)
		r.StartedAt = time.Unix(0, started).UTC()
		if finished.Valid {
			t := time.Unix(0, finished.Int64).UTC()
			r.FinishedAt = &t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LatestRunID returns the most recently started run, or "" if there is none.
func (db *DB) LatestRunID(ctx context.Context) (string, error) {
	var id string
	err := db.QueryRowContext(ctx, `SELECT run_id FROM runs ORDER BY started_at DESC LIMIT 1`).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query latest run: %w", err)
	}
	return id, nil
}
