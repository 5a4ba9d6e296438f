package api

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/drowsiness.report/internal/alertness"
	"github.com/banshee-data/drowsiness.report/internal/config"
	"github.com/banshee-data/drowsiness.report/internal/db"
	"github.com/banshee-data/drowsiness.report/internal/httputil"
	"github.com/banshee-data/drowsiness.report/internal/peripheral"
	"github.com/banshee-data/drowsiness.report/internal/pipeline"
	"github.com/banshee-data/drowsiness.report/internal/serialmux"
	"github.com/banshee-data/drowsiness.report/internal/timeutil"
	"github.com/banshee-data/drowsiness.report/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// defaultListLimit caps list endpoints when no limit is given.
const defaultListLimit = 100

// Server exposes session statistics, history and live updates over HTTP.
type Server struct {
	runner   *pipeline.Runner
	db       *db.DB
	m        serialmux.SerialMuxInterface
	notifier *peripheral.Notifier
	tuning   *config.TuningConfig
	clock    timeutil.Clock
}

// Options carries the optional collaborators of a Server. A nil DB disables
// the history endpoints; a nil Notifier disables manual commands.
type Options struct {
	DB       *db.DB
	Mux      serialmux.SerialMuxInterface
	Notifier *peripheral.Notifier
	Tuning   *config.TuningConfig
	Clock    timeutil.Clock
}

func NewServer(runner *pipeline.Runner, o Options) *Server {
	clock := o.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Server{
		runner:   runner,
		db:       o.DB,
		m:        o.Mux,
		notifier: o.Notifier,
		tuning:   o.Tuning,
		clock:    clock,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/stats", s.showStats)
	mux.HandleFunc("/api/stats/reset", s.resetStats)
	mux.HandleFunc("/api/transitions", s.listTransitions)
	mux.HandleFunc("/api/sessions", s.listSessions)
	mux.HandleFunc("/api/measurements", s.listMeasurements)
	mux.HandleFunc("/api/peripheral", s.showPeripheral)
	mux.HandleFunc("/api/command", s.sendCommandHandler)
	mux.HandleFunc("/api/events", s.streamEvents)
	mux.HandleFunc("/api/charts/levels", s.levelChart)
	mux.HandleFunc("/api/config", s.showConfig)
	mux.HandleFunc("/api/version", s.showVersion)
	return mux
}

// statsResponse is the body of GET /api/stats.
type statsResponse struct {
	Session  alertness.Snapshot        `json:"session"`
	Pipeline pipeline.RunnerStats      `json:"pipeline"`
	Notifier *peripheral.NotifierStats `json:"notifier,omitempty"`
}

func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	resp := statsResponse{
		Session:  s.runner.Engine().Snapshot(),
		Pipeline: s.runner.Stats(),
	}
	if s.notifier != nil {
		ns := s.notifier.Stats()
		resp.Notifier = &ns
	}
	httputil.WriteJSONOK(w, resp)
}

func (s *Server) resetStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	final, err := s.runner.Reset()
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to reset statistics: %v", err))
		return
	}
	httputil.WriteJSONOK(w, map[string]any{
		"previous": final,
		"current":  s.runner.Engine().Snapshot(),
	})
}

// parseLimit reads the optional "limit" query parameter.
func parseLimit(r *http.Request) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return defaultListLimit, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, errors.New("Invalid 'limit' parameter")
	}
	return n, nil
}

func (s *Server) requireDB(w http.ResponseWriter) bool {
	if s.db == nil {
		httputil.ServiceUnavailable(w, "no database configured")
		return false
	}
	return true
}

func (s *Server) listTransitions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if !s.requireDB(w) {
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	f := db.TransitionFilter{SessionID: r.URL.Query().Get("session_id"), Limit: limit}
	if v := r.URL.Query().Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httputil.BadRequest(w, "Invalid 'since' parameter, want RFC3339")
			return
		}
		f.Since = since
	}
	trs, err := s.db.Transitions(f)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve transitions: %v", err))
		return
	}
	httputil.WriteJSONOK(w, trs)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if !s.requireDB(w) {
		return
	}
	if id := r.URL.Query().Get("id"); id != "" {
		sess, err := s.db.GetSession(id)
		if errors.Is(err, db.ErrSessionNotFound) {
			httputil.NotFound(w, "session not found")
			return
		}
		if err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve session: %v", err))
			return
		}
		httputil.WriteJSONOK(w, sess)
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	sessions, err := s.db.Sessions(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve sessions: %v", err))
		return
	}
	httputil.WriteJSONOK(w, sessions)
}

func (s *Server) listMeasurements(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if !s.requireDB(w) {
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	ms, err := s.db.Measurements(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve measurements: %v", err))
		return
	}
	httputil.WriteJSONOK(w, ms)
}

func (s *Server) showPeripheral(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	_, simulated := s.m.(*serialmux.DisabledSerialMux)
	httputil.WriteJSONOK(w, map[string]any{
		"connected": s.m != nil && !simulated,
		"state":     serialmux.CurrentState(),
	})
}

// sendCommandHandler lets an operator push a protocol command by hand, for
// example to test the buzzer. It goes through the notifier so the delivery
// counters stay accurate.
func (s *Server) sendCommandHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.notifier == nil {
		httputil.ServiceUnavailable(w, "no peripheral configured")
		return
	}
	cmd, err := peripheral.Parse(r.FormValue("command"))
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if err := s.notifier.Deliver(cmd); err != nil {
		httputil.InternalServerError(w, "Failed to send command")
		return
	}
	io.WriteString(w, "Command sent successfully")
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	tuning := s.tuning
	if tuning == nil {
		tuning = config.DefaultTuningConfig()
	}
	httputil.WriteJSONOK(w, tuning)
}

func (s *Server) showVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, map[string]string{
		"version":    version.Version,
		"git_sha":    version.GitSHA,
		"build_time": version.BuildTime,
	})
}
