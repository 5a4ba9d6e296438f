package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/drowsiness.report/internal/alertness"
	"github.com/banshee-data/drowsiness.report/internal/db"
	"github.com/banshee-data/drowsiness.report/internal/httputil"
)

var levels = []alertness.Level{
	alertness.LevelNormal,
	alertness.LevelWarning,
	alertness.LevelCritical,
	alertness.LevelEmergency,
}

// sessionDwell returns seconds spent at each level for a session, counting
// the time before the first transition as NORMAL.
func (s *Server) sessionDwell(sessionID string, now time.Time) (db.LevelDwell, []alertness.Transition, error) {
	sess, err := s.db.GetSession(sessionID)
	if err != nil {
		return nil, nil, err
	}
	until := now
	if !sess.EndedAt.IsZero() {
		until = sess.EndedAt
	}
	dwell, err := s.db.LevelDwellTimes(sessionID, until)
	if err != nil {
		return nil, nil, err
	}
	trs, err := s.db.Transitions(db.TransitionFilter{SessionID: sessionID})
	if err != nil {
		return nil, nil, err
	}
	leadEnd := until
	if len(trs) > 0 {
		leadEnd = trs[0].At
	}
	if d := leadEnd.Sub(sess.StartedAt).Seconds(); d > 0 {
		dwell[alertness.LevelNormal] += d
	}
	return dwell, trs, nil
}

// levelChart renders time-at-level bars and a line of the level over
// time for one session (the current one by default).
func (s *Server) levelChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if !s.requireDB(w) {
		return
	}
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		sessionID = s.runner.Engine().Snapshot().SessionID
	}

	dwell, trs, err := s.sessionDwell(sessionID, s.clock.Now())
	if errors.Is(err, db.ErrSessionNotFound) {
		httputil.NotFound(w, "session not found")
		return
	}
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to load session: %v", err))
		return
	}

	x := make([]string, 0, len(levels))
	y := make([]opts.BarData, 0, len(levels))
	for _, l := range levels {
		x = append(x, l.String())
		y = append(y, opts.BarData{Value: dwell[l]})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Alert Levels", Width: "100%", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{Title: "Time at Level", Subtitle: "session " + sessionID}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "seconds"}),
	)
	bar.SetXAxis(x).
		AddSeries("dwell", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	times := make([]string, 0, len(trs))
	values := make([]opts.LineData, 0, len(trs))
	for _, tr := range trs {
		times = append(times, tr.At.Format("15:04:05.000"))
		values = append(values, opts.LineData{Value: int(tr.To), Name: tr.To.String()})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{Title: "Level Transitions", Subtitle: fmt.Sprintf("%d transitions", len(trs))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "level", Min: 0, Max: 3}),
	)
	line.SetXAxis(times).AddSeries("level", values)

	page := components.NewPage()
	page.AddCharts(bar, line)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render error: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
