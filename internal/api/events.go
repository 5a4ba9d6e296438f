package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/banshee-data/drowsiness.report/internal/httputil"
)

// keepAliveInterval is how often an idle event stream gets a comment line.
const keepAliveInterval = 15 * time.Second

// streamEvents is a Server-Sent Events feed of per-frame updates. Updates
// that mark a level change are sent as "transition" events, the rest as
// "frame" events.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	b := s.runner.Broadcaster()
	if b == nil {
		httputil.ServiceUnavailable(w, "live updates disabled")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.InternalServerError(w, "Streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	id, updates := b.Subscribe()
	defer b.Unsubscribe(id)

	w.Write([]byte(": ping\n\n"))
	flusher.Flush()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case u, ok := <-updates:
			if !ok {
				return
			}
			data, err := json.Marshal(u)
			if err != nil {
				continue
			}
			event := "frame"
			if len(u.Transitions) > 0 {
				event = "transition"
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
				return
			}
			flusher.Flush()
		case <-keepAlive.C:
			if _, err := w.Write([]byte(": ping\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}
