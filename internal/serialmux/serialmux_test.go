package serialmux

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNewSerialMux(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)

	if mux.port != port {
		t.Error("SerialMux port not set correctly")
	}
	if mux.subscribers == nil {
		t.Error("SerialMux subscribers map not initialized")
	}
}

func TestSerialMux_SubscribeUnsubscribe(t *testing.T) {
	mux := NewSerialMux(NewTestableSerialPort())

	id1, ch1 := mux.Subscribe()
	id2, _ := mux.Subscribe()
	if id1 == "" || id1 == id2 {
		t.Fatalf("subscription IDs should be unique and non-empty: %q %q", id1, id2)
	}

	mux.Unsubscribe(id1)
	if _, ok := <-ch1; ok {
		t.Error("channel should be closed after Unsubscribe")
	}
	// unknown IDs are ignored
	mux.Unsubscribe("nope")

	mux.mu.Lock()
	n := len(mux.subscribers)
	mux.mu.Unlock()
	if n != 1 {
		t.Errorf("subscribers = %d, want 1", n)
	}
}

func TestSerialMux_SendCommand(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)

	if err := mux.SendCommand("ALERT:2"); err != nil {
		t.Fatal(err)
	}
	if err := mux.SendCommand("BP_REQUEST:1\n"); err != nil {
		t.Fatal(err)
	}
	got := strings.Join(port.WrittenLines(), ",")
	if got != "ALERT:2,BP_REQUEST:1" {
		t.Errorf("written = %q", got)
	}

	port.WriteError = errors.New("unplugged")
	if err := mux.SendCommand("ALERT:0"); err == nil {
		t.Error("expected write error")
	}

	port.ShortWrite = true
	if err := mux.SendCommand("ALERT:0"); !errors.Is(err, ErrWriteFailed) {
		t.Errorf("short write err = %v, want ErrWriteFailed", err)
	}
}

func TestSerialMux_Initialize(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)

	if err := mux.Initialize(); err != nil {
		t.Fatal(err)
	}
	if lines := port.WrittenLines(); len(lines) != 1 || lines[0] != "INIT" {
		t.Errorf("Initialize wrote %q", lines)
	}

	port.WriteError = errors.New("unplugged")
	if err := mux.Initialize(); err == nil {
		t.Error("expected Initialize to surface write errors")
	}
}

func TestSerialMux_MonitorFansOut(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)

	_, ch1 := mux.Subscribe()
	_, ch2 := mux.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- mux.Monitor(ctx) }()

	port.AddReadData([]byte("ACK:ALERT:3\n"))

	for i, c := range []chan string{ch1, ch2} {
		select {
		case line := <-c:
			if line != "ACK:ALERT:3" {
				t.Errorf("subscriber %d got %q", i, line)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d got nothing", i)
		}
	}

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Monitor returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Monitor did not return after cancel")
	}
	mux.Close()
}

func TestSerialMux_MonitorReadError(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)

	errCh := make(chan error, 1)
	go func() { errCh <- mux.Monitor(context.Background()) }()

	readErr := errors.New("device reset")
	port.SetReadError(readErr)

	select {
	case err := <-errCh:
		if !errors.Is(err, readErr) {
			t.Errorf("Monitor returned %v, want %v", err, readErr)
		}
	case <-time.After(time.Second):
		t.Fatal("Monitor did not return on read error")
	}
}

func TestSerialMux_MonitorEOF(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)
	port.Close()

	if err := mux.Monitor(context.Background()); err != nil {
		t.Errorf("Monitor on closed port = %v, want nil", err)
	}
}

func TestSerialMux_Close(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)
	_, ch := mux.Subscribe()

	if err := mux.Close(); err != nil {
		t.Fatal(err)
	}
	if _, ok := <-ch; ok {
		t.Error("subscriber channel should be closed")
	}
	if !port.Closed {
		t.Error("port should be closed")
	}

	port2 := NewTestableSerialPort()
	port2.CloseError = errors.New("busy")
	if err := NewSerialMux(port2).Close(); err == nil {
		t.Error("expected close error to propagate")
	}
}

func TestEmulatedSerialMux(t *testing.T) {
	mux := NewEmulatedSerialMux()
	_, ch := mux.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mux.Monitor(ctx)

	next := func() string {
		t.Helper()
		select {
		case line := <-ch:
			return line
		case <-time.After(time.Second):
			t.Fatal("no line from emulator")
			return ""
		}
	}

	if got := next(); got != "READY" {
		t.Fatalf("first line = %q, want READY", got)
	}
	if err := mux.Initialize(); err != nil {
		t.Fatal(err)
	}
	if got := next(); got != "ACK:INIT" {
		t.Errorf("got %q", got)
	}
	if err := mux.SendCommand("BP_REQUEST:1"); err != nil {
		t.Fatal(err)
	}
	if got := next(); got != "ACK:BP_REQUEST:1" {
		t.Errorf("got %q", got)
	}
	if got := next(); ClassifyPayload(got) != EventTypeReading {
		t.Errorf("expected a reading, got %q", got)
	}
	if err := mux.SendCommand("BEEP"); err != nil {
		t.Fatal(err)
	}
	if got := next(); got != "ERR:BEEP" {
		t.Errorf("got %q", got)
	}

	if err := mux.Close(); err != nil {
		t.Fatal(err)
	}
}
