package db

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/banshee-data/drowsiness.report/internal/alertness"
)

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// RecordTransition appends an alert level change.
func (db *DB) RecordTransition(tr alertness.Transition) error {
	factors := tr.Factors
	if factors == nil {
		factors = []string{}
	}
	factorsJSON, err := json.Marshal(factors)
	if err != nil {
		return err
	}

	_, err = db.Exec(
		`INSERT INTO alert_transitions (
			session_id, frame, at_unix_ms, from_level, to_level, score,
			factors, sustained_anomaly, no_face, measurement_requested
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tr.SessionID, tr.Frame, toUnixMs(tr.At), int(tr.From), int(tr.To), tr.Score,
		string(factorsJSON), boolInt(tr.SustainedAnomaly), boolInt(tr.NoFace), boolInt(tr.MeasurementRequested),
	)
	if err != nil {
		return fmt.Errorf("record transition: %w", err)
	}
	return nil
}

// TransitionFilter narrows a Transitions query. Zero fields do not filter.
type TransitionFilter struct {
	SessionID string
	Since     time.Time
	Limit     int
}

// Transitions returns matching transitions oldest first. With a Limit, the
// newest Limit rows are kept.
func (db *DB) Transitions(f TransitionFilter) ([]alertness.Transition, error) {
	query := `SELECT session_id, frame, at_unix_ms, from_level, to_level, score,
		factors, sustained_anomaly, no_face, measurement_requested
		FROM alert_transitions WHERE 1=1`
	var args []any
	if f.SessionID != "" {
		query += ` AND session_id = ?`
		args = append(args, f.SessionID)
	}
	if !f.Since.IsZero() {
		query += ` AND at_unix_ms >= ?`
		args = append(args, toUnixMs(f.Since))
	}
	limit := f.Limit
	if limit <= 0 {
		limit = -1
	}
	query = `SELECT * FROM (` + query + ` ORDER BY transition_id DESC LIMIT ?) ORDER BY at_unix_ms ASC, frame ASC`
	args = append(args, limit)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []alertness.Transition{}
	for rows.Next() {
		var (
			tr                           alertness.Transition
			at                           int64
			from, to                     int
			factors                      string
			sustained, noFace, requested int
		)
		if err := rows.Scan(&tr.SessionID, &tr.Frame, &at, &from, &to, &tr.Score,
			&factors, &sustained, &noFace, &requested); err != nil {
			return nil, err
		}
		tr.At = fromUnixMs(at)
		tr.From = alertness.Level(from)
		tr.To = alertness.Level(to)
		if err := json.Unmarshal([]byte(factors), &tr.Factors); err != nil {
			return nil, fmt.Errorf("decode factors %q: %w", factors, err)
		}
		tr.SustainedAnomaly = sustained != 0
		tr.NoFace = noFace != 0
		tr.MeasurementRequested = requested != 0
		out = append(out, tr)
	}
	return out, rows.Err()
}

// LevelDwell is the total time spent at each level between consecutive
// transitions of one session, in seconds.
type LevelDwell map[alertness.Level]float64

// LevelDwellTimes folds a session's transitions into time spent per level,
// closing the last interval at until.
func (db *DB) LevelDwellTimes(sessionID string, until time.Time) (LevelDwell, error) {
	trs, err := db.Transitions(TransitionFilter{SessionID: sessionID})
	if err != nil {
		return nil, err
	}
	dwell := LevelDwell{}
	for i, tr := range trs {
		end := until
		if i+1 < len(trs) {
			end = trs[i+1].At
		}
		if d := end.Sub(tr.At).Seconds(); d > 0 {
			dwell[tr.To] += d
		}
	}
	return dwell, nil
}
