package serialmux

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/drowsiness.report/internal/peripheral"
)

// EmulatedPort behaves like the alert peripheral firmware: it prints READY
// when opened, acknowledges every valid command, rejects unknown ones and
// answers BP_REQUEST with a reading.
type EmulatedPort struct {
	r *io.PipeReader
	w *io.PipeWriter

	mu       sync.Mutex
	pending  bytes.Buffer
	replies  chan string
	closed   bool
	requests int
	done     chan struct{}
}

// NewEmulatedPort starts the emulator. Replies are delivered asynchronously
// so a slow reader never blocks the command writer.
func NewEmulatedPort() *EmulatedPort {
	r, w := io.Pipe()
	p := &EmulatedPort{
		r:       r,
		w:       w,
		replies: make(chan string, 64),
		done:    make(chan struct{}),
	}
	go p.pump()
	p.reply(peripheral.ReplyReady)
	return p
}

func (p *EmulatedPort) pump() {
	defer p.w.Close()
	for {
		select {
		case line := <-p.replies:
			if _, err := io.WriteString(p.w, line+"\n"); err != nil {
				return
			}
		case <-p.done:
			return
		}
	}
}

func (p *EmulatedPort) reply(line string) {
	select {
	case p.replies <- line:
	default:
		// the real firmware drops output when its TX buffer is full too
	}
}

func (p *EmulatedPort) Read(b []byte) (int, error) { return p.r.Read(b) }

func (p *EmulatedPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, errors.New("serial port closed")
	}
	p.pending.Write(b)

	for {
		line, err := p.pending.ReadString('\n')
		if err != nil {
			// keep the partial line for the next Write
			p.pending.Reset()
			p.pending.WriteString(line)
			break
		}
		p.handle(strings.TrimSpace(line))
	}
	return len(b), nil
}

func (p *EmulatedPort) handle(line string) {
	if line == "" {
		return
	}
	cmd, err := peripheral.Parse(line)
	if err != nil {
		p.reply(fmt.Sprintf("%s:%s", peripheral.ReplyError, line))
		return
	}
	p.reply(fmt.Sprintf("%s:%s", peripheral.ReplyAck, cmd))
	if cmd.Name == peripheral.NameMeasurementRequest {
		p.requests++
		p.reply(emulatedReading(p.requests).String())
	}
}

// emulatedReading drifts gently so charts of repeated readings are not flat.
func emulatedReading(n int) peripheral.Reading {
	return peripheral.Reading{
		Systolic:  118 + n%7,
		Diastolic: 76 + n%5,
		Pulse:     68 + n%9,
	}
}

func (p *EmulatedPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.done)
	return p.r.Close()
}

// NewEmulatedSerialMux creates a SerialMux talking to an EmulatedPort.
func NewEmulatedSerialMux() *SerialMux[*EmulatedPort] {
	return NewSerialMux(NewEmulatedPort())
}

// TestableSerialPort implements SerialPorter with configurable behaviour for testing.
// It provides fine-grained control over reads, writes, errors, and latency.
type TestableSerialPort struct {
	mu sync.Mutex

	// ReadBuffer holds data to be returned by Read calls
	ReadBuffer *bytes.Buffer

	// WriteBuffer captures data written to the port
	WriteBuffer *bytes.Buffer

	// WriteLatency adds a delay to each Write call
	WriteLatency time.Duration

	// ReadError is returned by the next Read call if set
	ReadError error

	// WriteError is returned by the next Write call if set
	WriteError error

	// ShortWrite makes Write report one byte fewer than it was given
	ShortWrite bool

	// CloseError is returned by Close if set
	CloseError error

	// Closed indicates whether Close was called
	Closed bool

	WriteCalls int

	readCond *sync.Cond
}

// NewTestableSerialPort creates a new TestableSerialPort for testing. Reads
// block until data is added or the port is closed.
func NewTestableSerialPort() *TestableSerialPort {
	tsp := &TestableSerialPort{
		ReadBuffer:  bytes.NewBuffer(nil),
		WriteBuffer: bytes.NewBuffer(nil),
	}
	tsp.readCond = sync.NewCond(&tsp.mu)
	return tsp
}

func (t *TestableSerialPort) Read(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for {
		if t.ReadError != nil {
			err := t.ReadError
			t.ReadError = nil
			return 0, err
		}
		if t.Closed {
			return 0, io.EOF
		}
		if t.ReadBuffer.Len() > 0 {
			return t.ReadBuffer.Read(p)
		}
		t.readCond.Wait()
	}
}

func (t *TestableSerialPort) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.WriteCalls++
	if t.Closed {
		return 0, errors.New("serial port closed")
	}
	if t.WriteError != nil {
		err := t.WriteError
		t.WriteError = nil
		return 0, err
	}
	if t.WriteLatency > 0 {
		t.mu.Unlock()
		time.Sleep(t.WriteLatency)
		t.mu.Lock()
	}
	n, err := t.WriteBuffer.Write(p)
	if t.ShortWrite && n > 0 {
		n--
	}
	return n, err
}

// Close marks the port as closed and wakes blocked readers.
func (t *TestableSerialPort) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Closed = true
	t.readCond.Broadcast()
	return t.CloseError
}

// AddReadData adds data to be returned by subsequent Read calls.
func (t *TestableSerialPort) AddReadData(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ReadBuffer.Write(data)
	t.readCond.Broadcast()
}

// SetReadError makes the next Read fail and wakes blocked readers.
func (t *TestableSerialPort) SetReadError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ReadError = err
	t.readCond.Broadcast()
}

// WrittenLines returns every newline-terminated line written so far.
func (t *TestableSerialPort) WrittenLines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(t.WriteBuffer.Bytes()))
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines
}
