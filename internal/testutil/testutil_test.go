package testutil

import (
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/banshee-data/drowsiness.report/internal/monitoring"
)

func TestAssertHelpersPass(t *testing.T) {
	fakeT := &testing.T{}
	AssertStatusCode(fakeT, http.StatusOK, http.StatusOK)
	AssertNoError(fakeT, nil)
	if fakeT.Failed() {
		t.Error("matching status and nil error should not fail")
	}
}

func TestNewFormRequest(t *testing.T) {
	req := NewFormRequest(http.MethodPost, "/api/command", url.Values{"command": {"ALERT:1"}})
	if got := req.FormValue("command"); got != "ALERT:1" {
		t.Errorf("command = %q, want ALERT:1", got)
	}
	if req.URL.Path != "/api/command" {
		t.Errorf("path = %s, want /api/command", req.URL.Path)
	}
}

func TestNewTestRecorder_InitialState(t *testing.T) {
	w := NewTestRecorder()
	if w.Code != http.StatusOK {
		t.Errorf("initial Code = %d, want %d", w.Code, http.StatusOK)
	}
	if NewTestRequest(http.MethodGet, "/api/stats").Method != http.MethodGet {
		t.Error("request method not set")
	}
}

func TestMuteLogs(t *testing.T) {
	called := false
	monitoring.SetLogger(func(string, ...interface{}) { called = true })

	t.Run("muted", func(t *testing.T) {
		MuteLogs(t)
		monitoring.Logf("hidden")
	})
	if called {
		t.Error("logger should have been muted")
	}
	// cleanup restores log.Printf
	if monitoring.Logf == nil {
		t.Error("logger not restored")
	}
}

func TestNewClock(t *testing.T) {
	c := NewClock()
	if !c.Now().Equal(Epoch) {
		t.Errorf("Now = %v, want %v", c.Now(), Epoch)
	}
	c.Advance(time.Second)
	if c.Since(Epoch) != time.Second {
		t.Errorf("Since = %v", c.Since(Epoch))
	}
}
