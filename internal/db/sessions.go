package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/drowsiness.report/internal/alertness"
)

var ErrSessionNotFound = errors.New("session not found")

// Session is a persisted monitoring session. EndedAt is zero while the
// session is still open.
type Session struct {
	SessionID         string    `json:"session_id"`
	StartedAt         time.Time `json:"started_at"`
	EndedAt           time.Time `json:"ended_at,omitempty"`
	FramesProcessed   int64     `json:"frames_processed"`
	DrowsyEpisodes    int64     `json:"drowsy_episodes"`
	SteeringAnomalies int64     `json:"steering_anomalies"`
	RuntimeSeconds    float64   `json:"runtime_seconds"`
	AverageFrameRate  float64   `json:"average_frame_rate"`
	FinalLevel        string    `json:"final_level,omitempty"`
}

// StartSession records a new open session.
func (db *DB) StartSession(id string, startedAt time.Time) error {
	_, err := db.Exec(
		`INSERT INTO sessions (session_id, started_unix_ms) VALUES (?, ?)
		 ON CONFLICT(session_id) DO NOTHING`,
		id, toUnixMs(startedAt),
	)
	if err != nil {
		return fmt.Errorf("start session %s: %w", id, err)
	}
	return nil
}

// FinishSession closes a session with its final statistics. A session that
// was never started is created on the fly.
func (db *DB) FinishSession(snap alertness.Snapshot, endedAt time.Time) error {
	_, err := db.Exec(
		`INSERT INTO sessions (
			session_id, started_unix_ms, ended_unix_ms, frames_processed,
			drowsy_episodes, steering_anomalies, runtime_seconds,
			average_frame_rate, final_level
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			ended_unix_ms = excluded.ended_unix_ms,
			frames_processed = excluded.frames_processed,
			drowsy_episodes = excluded.drowsy_episodes,
			steering_anomalies = excluded.steering_anomalies,
			runtime_seconds = excluded.runtime_seconds,
			average_frame_rate = excluded.average_frame_rate,
			final_level = excluded.final_level`,
		snap.SessionID, toUnixMs(snap.StartedAt), toUnixMs(endedAt), snap.FramesProcessed,
		snap.DrowsyEpisodes, snap.SteeringAnomalies, snap.RuntimeSeconds,
		snap.AverageFrameRate, snap.Level.String(),
	)
	if err != nil {
		return fmt.Errorf("finish session %s: %w", snap.SessionID, err)
	}
	return nil
}

const sessionColumns = `session_id, started_unix_ms, ended_unix_ms, frames_processed,
	drowsy_episodes, steering_anomalies, runtime_seconds, average_frame_rate, final_level`

func scanSession(row interface{ Scan(...any) error }) (Session, error) {
	var (
		s       Session
		started int64
		ended   sql.NullInt64
		level   sql.NullString
	)
	if err := row.Scan(&s.SessionID, &started, &ended, &s.FramesProcessed,
		&s.DrowsyEpisodes, &s.SteeringAnomalies, &s.RuntimeSeconds, &s.AverageFrameRate, &level); err != nil {
		return Session{}, err
	}
	s.StartedAt = fromUnixMs(started)
	if ended.Valid {
		s.EndedAt = fromUnixMs(ended.Int64)
	}
	s.FinalLevel = level.String
	return s, nil
}

// GetSession loads one session by ID.
func (db *DB) GetSession(id string) (Session, error) {
	s, err := scanSession(db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE session_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrSessionNotFound
	}
	return s, err
}

// Sessions returns the most recent sessions first. limit <= 0 means no limit.
func (db *DB) Sessions(limit int) ([]Session, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.Query(`SELECT `+sessionColumns+` FROM sessions ORDER BY started_unix_ms DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}
