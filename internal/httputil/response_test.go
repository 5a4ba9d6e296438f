package httputil

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/banshee-data/drowsiness.report/internal/monitoring"
)

func TestErrorHelpers(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		write  func(http.ResponseWriter)
		status int
		msg    string
	}{
		{"method", MethodNotAllowed, http.StatusMethodNotAllowed, "method not allowed"},
		{"bad request", func(w http.ResponseWriter) { BadRequest(w, "Invalid 'limit' parameter") }, http.StatusBadRequest, "Invalid 'limit' parameter"},
		{"not found", func(w http.ResponseWriter) { NotFound(w, "session not found") }, http.StatusNotFound, "session not found"},
		{"unavailable", func(w http.ResponseWriter) { ServiceUnavailable(w, "no database configured") }, http.StatusServiceUnavailable, "no database configured"},
		{"internal", func(w http.ResponseWriter) { InternalServerError(w, "boom") }, http.StatusInternalServerError, "boom"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			tc.write(rec)

			if rec.Code != tc.status {
				t.Errorf("status = %d, want %d", rec.Code, tc.status)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("content-type = %s", ct)
			}
			var body map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body["error"] != tc.msg {
				t.Errorf("error = %q, want %q", body["error"], tc.msg)
			}
		})
	}
}

func TestWriteJSONOK(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteJSONOK(rec, map[string]any{"level": "WARNING", "score": 25})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Level string `json:"level"`
		Score int    `json:"score"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Level != "WARNING" || body.Score != 25 {
		t.Errorf("body = %+v", body)
	}
}

func TestWriteJSONEncodeFailure(t *testing.T) {
	original := monitoring.Logf
	t.Cleanup(func() { monitoring.SetLogger(original) })
	var logged bool
	monitoring.SetLogger(func(string, ...interface{}) { logged = true })

	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusOK, math.NaN())
	if !logged {
		t.Error("encode failure was not logged")
	}
}
