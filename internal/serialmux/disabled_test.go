package serialmux

import (
	"context"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/drowsiness.report/internal/monitoring"
)

func TestDisabledSerialMux(t *testing.T) {
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.SetLogger(log.Printf) })

	d := NewDisabledSerialMux()
	id, ch := d.Subscribe()

	if err := d.Initialize(); err != nil {
		t.Fatal(err)
	}
	if err := d.SendCommand("ALERT:1\n"); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"SIM INIT", "SIM ALERT:1"} {
		select {
		case got := <-ch:
			if got != want {
				t.Errorf("got %q, want %q", got, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("missing echo %q", want)
		}
	}
	if got := strings.Join(d.Sent(), ","); got != "INIT,ALERT:1" {
		t.Errorf("Sent() = %q", got)
	}

	d.Unsubscribe(id)
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after Unsubscribe")
	}

	_, ch2 := d.Subscribe()
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if _, ok := <-ch2; ok {
		t.Error("Close should close subscribers")
	}
	if err := d.Close(); err != nil {
		t.Error("second Close should be a no-op")
	}
	if _, ch3 := d.Subscribe(); ch3 != nil {
		if _, ok := <-ch3; ok {
			t.Error("Subscribe after Close should return a closed channel")
		}
	}
}

func TestDisabledSerialMux_MonitorBlocksUntilCancel(t *testing.T) {
	d := NewDisabledSerialMux()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := d.Monitor(ctx); err != context.DeadlineExceeded {
		t.Errorf("Monitor = %v, want DeadlineExceeded", err)
	}
}

func TestDisabledSerialMux_AdminRoutes(t *testing.T) {
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.SetLogger(log.Printf) })

	d := NewDisabledSerialMux()
	httpMux := http.NewServeMux()
	d.AttachAdminRoutes(httpMux)

	req := localHostRequest(http.MethodPost, "/debug/send-command-api", strings.NewReader("command=SHUTDOWN"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	httpMux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if sent := d.Sent(); len(sent) != 1 || sent[0] != "SHUTDOWN" {
		t.Errorf("Sent() = %q", sent)
	}
}
