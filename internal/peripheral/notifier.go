package peripheral

import (
	"context"
	"sync"

	"github.com/banshee-data/drowsiness.report/internal/monitoring"
)

// DefaultQueueDepth bounds the number of undelivered commands held by a
// Notifier before new ones are dropped.
const DefaultQueueDepth = 64

// Sender writes one command line to the device. serialmux.SerialMuxInterface
// satisfies it.
type Sender interface {
	SendCommand(string) error
}

// NotifierStats counts delivery outcomes.
type NotifierStats struct {
	Sent    int64 `json:"sent"`
	Failed  int64 `json:"failed"`
	Dropped int64 `json:"dropped"`
}

// Notifier delivers commands without ever blocking the caller. Send enqueues;
// Run drains the queue in order. Delivery failures are logged and counted,
// never returned to the caller.
type Notifier struct {
	sender Sender
	queue  chan Command

	mu    sync.Mutex
	stats NotifierStats
}

// NewNotifier returns a Notifier writing through sender. depth <= 0 uses
// DefaultQueueDepth.
func NewNotifier(sender Sender, depth int) *Notifier {
	if depth <= 0 {
		depth = DefaultQueueDepth
	}
	return &Notifier{
		sender: sender,
		queue:  make(chan Command, depth),
	}
}

// Send enqueues cmd for delivery. If the queue is full the command is
// dropped so the decision loop is never held up by a slow device.
func (n *Notifier) Send(cmd Command) {
	select {
	case n.queue <- cmd:
	default:
		n.mu.Lock()
		n.stats.Dropped++
		n.mu.Unlock()
		monitoring.Logf("peripheral queue full, dropping %s", cmd)
	}
}

// Run delivers queued commands until ctx is cancelled, then flushes whatever
// is still queued and returns.
func (n *Notifier) Run(ctx context.Context) {
	for {
		select {
		case cmd := <-n.queue:
			n.Deliver(cmd)
		case <-ctx.Done():
			n.flush()
			return
		}
	}
}

func (n *Notifier) flush() {
	for {
		select {
		case cmd := <-n.queue:
			n.Deliver(cmd)
		default:
			return
		}
	}
}

// Deliver writes cmd synchronously. It is used directly for INIT and
// SHUTDOWN, which bracket the queued traffic. The error is returned for
// callers that care but has already been logged and counted.
func (n *Notifier) Deliver(cmd Command) error {
	err := n.sender.SendCommand(cmd.String())

	n.mu.Lock()
	if err != nil {
		n.stats.Failed++
	} else {
		n.stats.Sent++
	}
	n.mu.Unlock()

	if err != nil {
		monitoring.Logf("failed to send %s to peripheral: %v", cmd, err)
	}
	return err
}

// Stats returns a copy of the delivery counters.
func (n *Notifier) Stats() NotifierStats {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.stats
}

// Pending returns the number of queued, undelivered commands.
func (n *Notifier) Pending() int {
	return len(n.queue)
}
