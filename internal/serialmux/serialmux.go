// Package serialmux owns the serial link to the alert peripheral (buzzer,
// display and blood-pressure cuff). Any number of subscribers can read the
// lines the device writes back while commands are serialised onto the single
// port.
package serialmux

import (
	"bufio"
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/drowsiness.report/internal/peripheral"
)

var ErrWriteFailed = errors.New("failed to write to serial port")

// subscriberBuffer is how many lines a subscriber may lag before lines are
// skipped for it.
const subscriberBuffer = 16

// SerialMuxInterface is what the rest of the program needs from the
// peripheral link. The real, emulated and disabled muxes all satisfy it.
type SerialMuxInterface interface {
	// Subscribe returns an ID and a channel receiving every line read from
	// the port. The channel is closed by Unsubscribe or Close.
	Subscribe() (string, chan string)
	Unsubscribe(string)
	// SendCommand writes one command line, appending the newline if needed.
	SendCommand(string) error
	// Monitor reads the port until ctx is done or the port fails.
	Monitor(context.Context) error
	Close() error
	// Initialize sends INIT so the peripheral leaves its idle state.
	Initialize() error
	// AttachAdminRoutes mounts the debug console under /debug/.
	AttachAdminRoutes(*http.ServeMux)
}

// SerialMux multiplexes one port of type T.
type SerialMux[T SerialPorter] struct {
	port    T
	writeMu sync.Mutex
	closing atomic.Bool

	mu          sync.Mutex
	subscribers map[string]chan string
}

func NewSerialMux[T SerialPorter](port T) *SerialMux[T] {
	return &SerialMux[T]{
		port:        port,
		subscribers: make(map[string]chan string),
	}
}

func randomID() string {
	var b [8]byte
	crand.Read(b[:])
	return hex.EncodeToString(b[:])
}

func (s *SerialMux[T]) Subscribe() (string, chan string) {
	id, ch := randomID(), make(chan string, subscriberBuffer)
	s.mu.Lock()
	s.subscribers[id] = ch
	s.mu.Unlock()
	return id, ch
}

func (s *SerialMux[T]) Unsubscribe(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

func (s *SerialMux[T]) Initialize() error {
	if err := s.SendCommand(peripheral.Init().String()); err != nil {
		return fmt.Errorf("failed to initialise peripheral: %w", err)
	}
	return nil
}

func (s *SerialMux[T]) SendCommand(command string) error {
	if !strings.HasSuffix(command, "\n") {
		command += "\n"
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	n, err := s.port.Write([]byte(command))
	if err != nil {
		return err
	}
	if n != len(command) {
		return ErrWriteFailed
	}
	return nil
}

// Monitor scans the port line by line and fans each line out to the
// subscribers. It returns nil once Close has been called.
func (s *SerialMux[T]) Monitor(ctx context.Context) error {
	lines := make(chan string)
	done := make(chan error, 1)

	// Scan blocks in Read, so it gets its own goroutine
	go func() {
		scan := bufio.NewScanner(s.port)
		for scan.Scan() {
			select {
			case lines <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		done <- scan.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-done:
			if s.closing.Load() {
				return nil
			}
			return err
		case line := <-lines:
			if s.closing.Load() {
				return nil
			}
			s.broadcast(line)
		}
	}
}

// broadcast never blocks: a subscriber whose buffer is full misses the line.
func (s *SerialMux[T]) broadcast(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- line:
		default:
		}
	}
}

func (s *SerialMux[T]) Close() error {
	s.closing.Store(true)
	s.mu.Lock()
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	s.mu.Unlock()
	return s.port.Close()
}

func (s *SerialMux[T]) AttachAdminRoutes(mux *http.ServeMux) {
	attachAdminRoutes(mux, s)
}
