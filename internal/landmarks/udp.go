package landmarks

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/banshee-data/drowsiness.report/internal/monitoring"
	"github.com/banshee-data/drowsiness.report/internal/timeutil"
)

// UDPSource receives one JSON frame per datagram. Datagrams arrive in
// network order, which on a local link is capture order.
type UDPSource struct {
	address     string
	rcvBuf      int
	logInterval time.Duration
	clock       timeutil.Clock
	stats       Stats

	// ready is closed once the socket is bound; LocalAddr is valid after.
	ready chan struct{}
	conn  *net.UDPConn
}

// UDPSourceConfig contains configuration options for the UDP source.
type UDPSourceConfig struct {
	Address     string
	RcvBuf      int
	LogInterval time.Duration
	Clock       timeutil.Clock
}

// maxDatagram is the largest UDP payload accepted.
const maxDatagram = 65507

func NewUDPSource(cfg UDPSourceConfig) *UDPSource {
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &UDPSource{
		address:     cfg.Address,
		rcvBuf:      cfg.RcvBuf,
		logInterval: cfg.LogInterval,
		clock:       clock,
		ready:       make(chan struct{}),
	}
}

// Stats returns the live counters.
func (u *UDPSource) Stats() *Stats { return &u.stats }

// Ready is closed when the socket is listening.
func (u *UDPSource) Ready() <-chan struct{} { return u.ready }

// LocalAddr is the bound address, or nil before Ready.
func (u *UDPSource) LocalAddr() net.Addr {
	select {
	case <-u.ready:
		return u.conn.LocalAddr()
	default:
		return nil
	}
}

// Run listens until ctx is cancelled.
func (u *UDPSource) Run(ctx context.Context, out chan<- Frame) error {
	addr, err := net.ResolveUDPAddr("udp", u.address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	defer conn.Close()

	if u.rcvBuf > 0 {
		if err := conn.SetReadBuffer(u.rcvBuf); err != nil {
			monitoring.Logf("Warning: Failed to set UDP receive buffer size to %d: %v", u.rcvBuf, err)
		}
	}
	u.conn = conn
	close(u.ready)
	monitoring.Logf("landmark UDP source listening on %s", conn.LocalAddr())

	statsCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go logStatsEvery(statsCtx, "udp "+u.address, &u.stats, u.logInterval)

	buffer := make([]byte, maxDatagram)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		// a short deadline lets the loop notice cancellation
		conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))

		n, from, err := conn.ReadFromUDP(buffer)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			monitoring.Logf("UDP read error: %v", err)
			continue
		}

		frame, err := DecodeFrame(buffer[:n])
		if err != nil {
			u.stats.addMalformed(n)
			monitoring.Logf("dropping datagram from %v: %v", from, err)
			continue
		}
		if frame.Timestamp.IsZero() {
			frame.Timestamp = u.clock.Now()
		}
		u.stats.addFrame(n)
		if err := deliver(ctx, out, frame); err != nil {
			return err
		}
	}
}
