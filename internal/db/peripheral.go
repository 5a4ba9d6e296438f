package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/banshee-data/drowsiness.report/internal/peripheral"
)

// PeripheralLine is a raw line read back from the peripheral.
type PeripheralLine struct {
	Kind       string    `json:"kind"`
	Payload    string    `json:"payload"`
	ReceivedAt time.Time `json:"received_at"`
}

// Measurement is a blood-pressure reading attributed to a session.
type Measurement struct {
	peripheral.Reading
	SessionID  string    `json:"session_id,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// RecordPeripheralLine stores one classified line from the device.
func (db *DB) RecordPeripheralLine(kind, payload string, at time.Time) error {
	_, err := db.Exec(
		`INSERT INTO peripheral_lines (kind, payload, received_unix_ms) VALUES (?, ?, ?)`,
		kind, payload, toUnixMs(at),
	)
	if err != nil {
		return fmt.Errorf("record peripheral line: %w", err)
	}
	return nil
}

// PeripheralLines returns the newest lines first.
func (db *DB) PeripheralLines(limit int) ([]PeripheralLine, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.Query(
		`SELECT kind, payload, received_unix_ms FROM peripheral_lines ORDER BY line_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := []PeripheralLine{}
	for rows.Next() {
		var l PeripheralLine
		var ms int64
		if err := rows.Scan(&l.Kind, &l.Payload, &ms); err != nil {
			return nil, err
		}
		l.ReceivedAt = fromUnixMs(ms)
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// RecordMeasurement stores a parsed reading.
func (db *DB) RecordMeasurement(m Measurement) error {
	var pulse sql.NullInt64
	if m.Pulse > 0 {
		pulse = sql.NullInt64{Int64: int64(m.Pulse), Valid: true}
	}
	var session sql.NullString
	if m.SessionID != "" {
		session = sql.NullString{String: m.SessionID, Valid: true}
	}
	_, err := db.Exec(
		`INSERT INTO measurements (session_id, systolic, diastolic, pulse, received_unix_ms)
		 VALUES (?, ?, ?, ?, ?)`,
		session, m.Systolic, m.Diastolic, pulse, toUnixMs(m.ReceivedAt),
	)
	if err != nil {
		return fmt.Errorf("record measurement: %w", err)
	}
	return nil
}

// Measurements returns the newest readings first.
func (db *DB) Measurements(limit int) ([]Measurement, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.Query(
		`SELECT session_id, systolic, diastolic, pulse, received_unix_ms
		 FROM measurements ORDER BY measurement_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Measurement{}
	for rows.Next() {
		var (
			m       Measurement
			session sql.NullString
			pulse   sql.NullInt64
			ms      int64
		)
		if err := rows.Scan(&session, &m.Systolic, &m.Diastolic, &pulse, &ms); err != nil {
			return nil, err
		}
		m.SessionID = session.String
		m.Pulse = int(pulse.Int64)
		m.ReceivedAt = fromUnixMs(ms)
		out = append(out, m)
	}
	return out, rows.Err()
}
