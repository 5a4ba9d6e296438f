package serialmux

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

// localHostRequest creates an httptest request that appears to come from localhost.
// This bypasses tsweb.AllowDebugAccess which checks for loopback IPs.
func localHostRequest(method, path string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

func TestAttachAdminRoutes_SendCommandAPI(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)

	httpMux := http.NewServeMux()
	mux.AttachAdminRoutes(httpMux)

	tests := []struct {
		name           string
		method         string
		formData       url.Values
		expectedStatus int
		bodyContains   string
	}{
		{"valid alert", http.MethodPost, url.Values{"command": {"ALERT:2"}}, http.StatusOK, "ALERT:2"},
		{"trimmed", http.MethodPost, url.Values{"command": {"  BP_REQUEST:1 "}}, http.StatusOK, "BP_REQUEST:1"},
		{"empty", http.MethodPost, url.Values{"command": {""}}, http.StatusBadRequest, "Missing command"},
		{"missing", http.MethodPost, url.Values{}, http.StatusBadRequest, "Missing command"},
		{"unknown command", http.MethodPost, url.Values{"command": {"OJ"}}, http.StatusBadRequest, "unknown peripheral command"},
		{"alert out of range", http.MethodPost, url.Values{"command": {"ALERT:9"}}, http.StatusBadRequest, "invalid alert level"},
		{"GET not allowed", http.MethodGet, nil, http.StatusMethodNotAllowed, "Method not allowed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body io.Reader
			if tt.formData != nil {
				body = strings.NewReader(tt.formData.Encode())
			}
			req := localHostRequest(tt.method, "/debug/send-command-api", body)
			if tt.formData != nil {
				req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			}
			rec := httptest.NewRecorder()
			httpMux.ServeHTTP(rec, req)

			if rec.Code != tt.expectedStatus {
				t.Errorf("status = %d, want %d (body %q)", rec.Code, tt.expectedStatus, rec.Body.String())
			}
			if !strings.Contains(rec.Body.String(), tt.bodyContains) {
				t.Errorf("body %q does not contain %q", rec.Body.String(), tt.bodyContains)
			}
		})
	}

	if got := strings.Join(port.WrittenLines(), ","); got != "ALERT:2,BP_REQUEST:1" {
		t.Errorf("port received %q", got)
	}
}

func TestAttachAdminRoutes_SendCommandPage(t *testing.T) {
	httpMux := http.NewServeMux()
	NewSerialMux(NewTestableSerialPort()).AttachAdminRoutes(httpMux)

	rec := httptest.NewRecorder()
	httpMux.ServeHTTP(rec, localHostRequest(http.MethodGet, "/debug/send-command", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	for _, want := range []string{"ALERT:3", "BP_REQUEST:1", "SHUTDOWN", "tail.js"} {
		if !strings.Contains(rec.Body.String(), want) {
			t.Errorf("page missing %q", want)
		}
	}

	rec = httptest.NewRecorder()
	httpMux.ServeHTTP(rec, localHostRequest(http.MethodGet, "/debug/tail.js", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "EventSource") {
		t.Errorf("tail.js status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/javascript" {
		t.Errorf("tail.js Content-Type = %q", ct)
	}
}

func TestAttachAdminRoutes_RejectsRemote(t *testing.T) {
	httpMux := http.NewServeMux()
	NewSerialMux(NewTestableSerialPort()).AttachAdminRoutes(httpMux)

	req := httptest.NewRequest(http.MethodPost, "/debug/send-command-api", strings.NewReader("command=INIT"))
	req.RemoteAddr = "203.0.113.9:4444"
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	httpMux.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("remote access status = %d, want 403", rec.Code)
	}
}

func TestAttachAdminRoutes_TailStreamsLines(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)
	httpMux := http.NewServeMux()
	mux.AttachAdminRoutes(httpMux)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mux.Monitor(ctx)

	srv := httptest.NewServer(httpMux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/debug/tail")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	ping, err := reader.ReadString('\n')
	if err != nil || ping != ": ping\n" {
		t.Fatalf("first line %q, %v", ping, err)
	}

	port.AddReadData([]byte("BP:120/80\n"))

	lineCh := make(chan string, 1)
	go func() {
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			if strings.HasPrefix(line, "data: ") {
				lineCh <- strings.TrimSpace(strings.TrimPrefix(line, "data: "))
				return
			}
		}
	}()
	select {
	case got := <-lineCh:
		if got != "BP:120/80" {
			t.Errorf("tail event = %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event from tail")
	}
}
