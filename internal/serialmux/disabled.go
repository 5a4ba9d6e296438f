package serialmux

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/banshee-data/drowsiness.report/internal/monitoring"
	"github.com/banshee-data/drowsiness.report/internal/peripheral"
)

// DisabledSerialMux stands in for the peripheral when no hardware is
// attached (simulation mode). Commands are logged and echoed to subscribers
// as "SIM <command>" lines so the debug console still shows traffic.
// Subscriber channels are tracked so they close deterministically on
// Unsubscribe or Close.
type DisabledSerialMux struct {
	mu          sync.Mutex
	subscribers map[string]chan string
	closing     bool
	sent        []string
}

func NewDisabledSerialMux() *DisabledSerialMux {
	return &DisabledSerialMux{
		subscribers: make(map[string]chan string),
	}
}

func (d *DisabledSerialMux) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string, subscriberBuffer)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closing {
		// If already closing, return a closed channel so callers don't block.
		close(ch)
		return id, ch
	}
	d.subscribers[id] = ch
	return id, ch
}

func (d *DisabledSerialMux) Unsubscribe(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch, ok := d.subscribers[id]; ok {
		close(ch)
		delete(d.subscribers, id)
	}
}

func (d *DisabledSerialMux) SendCommand(command string) error {
	command = strings.TrimSpace(command)
	monitoring.Logf("[SIM] peripheral <- %s", command)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closing {
		return nil
	}
	d.sent = append(d.sent, command)
	for _, ch := range d.subscribers {
		select {
		case ch <- "SIM " + command:
		default:
		}
	}
	return nil
}

// Sent returns every command written so far, oldest first.
func (d *DisabledSerialMux) Sent() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.sent...)
}

func (d *DisabledSerialMux) Monitor(ctx context.Context) error { <-ctx.Done(); return ctx.Err() }

func (d *DisabledSerialMux) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closing {
		return nil
	}
	d.closing = true
	for id, ch := range d.subscribers {
		close(ch)
		delete(d.subscribers, id)
	}
	return nil
}

func (d *DisabledSerialMux) Initialize() error {
	return d.SendCommand(peripheral.Init().String())
}

func (d *DisabledSerialMux) AttachAdminRoutes(mux *http.ServeMux) {
	attachAdminRoutes(mux, d)
}
