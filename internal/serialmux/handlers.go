package serialmux

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/drowsiness.report/internal/db"
	"github.com/banshee-data/drowsiness.report/internal/peripheral"
)

// DeviceState is what the host last heard from the peripheral.
type DeviceState struct {
	Ready       bool                `json:"ready"`
	LastAck     string              `json:"last_ack,omitempty"`
	LastError   string              `json:"last_error,omitempty"`
	LastReading *peripheral.Reading `json:"last_reading,omitempty"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

var (
	stateMu      sync.Mutex
	currentState DeviceState
)

// CurrentState returns a copy of the latest device state.
func CurrentState() DeviceState {
	stateMu.Lock()
	defer stateMu.Unlock()
	s := currentState
	if s.LastReading != nil {
		r := *s.LastReading
		s.LastReading = &r
	}
	return s
}

func updateState(at time.Time, fn func(*DeviceState)) {
	stateMu.Lock()
	defer stateMu.Unlock()
	fn(&currentState)
	currentState.UpdatedAt = at
}

func HandleReading(d *db.DB, sessionID, payload string, at time.Time) error {
	reading, err := peripheral.ParseReading(payload)
	if err != nil {
		return err
	}
	log.Printf("Measurement: %d/%d pulse=%d", reading.Systolic, reading.Diastolic, reading.Pulse)
	updateState(at, func(s *DeviceState) { s.LastReading = &reading })
	if d == nil {
		return nil
	}
	return d.RecordMeasurement(db.Measurement{Reading: reading, SessionID: sessionID, ReceivedAt: at})
}

// HandleEvent classifies one line from the peripheral, updates the device
// state and persists it. d may be nil when no database is configured.
func HandleEvent(d *db.DB, sessionID, payload string, at time.Time) error {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil
	}
	kind := ClassifyPayload(payload)

	switch kind {
	case EventTypeReading:
		if err := HandleReading(d, sessionID, payload, at); err != nil {
			return fmt.Errorf("failed to handle reading: %v", err)
		}
	case EventTypeAck:
		updateState(at, func(s *DeviceState) { s.LastAck = payload })
	case EventTypeError:
		log.Printf("peripheral error: %s", payload)
		updateState(at, func(s *DeviceState) { s.LastError = payload })
	case EventTypeReady:
		updateState(at, func(s *DeviceState) { s.Ready = true })
	case EventTypeSim:
		// echoes from the disabled mux are not device traffic
		return nil
	default:
		log.Printf("unknown peripheral line: %s", payload)
	}

	if d == nil {
		return nil
	}
	return d.RecordPeripheralLine(kind, payload, at)
}
