package serialmux

import (
	"strings"

	"github.com/banshee-data/drowsiness.report/internal/peripheral"
)

const (
	EventTypeReading = "reading"
	EventTypeAck     = "ack"
	EventTypeError   = "error"
	EventTypeReady   = "ready"
	EventTypeSim     = "sim"
	EventTypeUnknown = "unknown"
)

// ClassifyPayload inspects a line written by the peripheral and returns a
// simple event type token.
func ClassifyPayload(payload string) string {
	payload = strings.TrimSpace(payload)
	switch {
	case strings.HasPrefix(payload, peripheral.ReplyReading+":"):
		return EventTypeReading
	case strings.HasPrefix(payload, peripheral.ReplyAck):
		return EventTypeAck
	case strings.HasPrefix(payload, peripheral.ReplyError):
		return EventTypeError
	case payload == peripheral.ReplyReady:
		return EventTypeReady
	case strings.HasPrefix(payload, "SIM "):
		return EventTypeSim
	}
	return EventTypeUnknown
}
