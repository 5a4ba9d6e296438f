package db

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/drowsiness.report/internal/alertness"
	"github.com/banshee-data/drowsiness.report/internal/peripheral"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestNewDB_MigratesToLatest(t *testing.T) {
	d := newTestDB(t)

	migrations, err := MigrationsFS()
	if err != nil {
		t.Fatal(err)
	}
	version, dirty, err := d.MigrateVersion(migrations)
	if err != nil {
		t.Fatalf("MigrateVersion: %v", err)
	}
	latest, err := LatestMigrationVersion(migrations)
	if err != nil {
		t.Fatalf("LatestMigrationVersion: %v", err)
	}
	if version != latest || dirty {
		t.Errorf("version = %d dirty = %v, want %d clean", version, dirty, latest)
	}
	if latest != 3 {
		t.Errorf("latest = %d, want 3", latest)
	}

	for _, table := range []string{"sessions", "alert_transitions", "peripheral_lines", "measurements"} {
		var n int
		if err := d.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&n); err != nil {
			t.Fatal(err)
		}
		if n != 1 {
			t.Errorf("table %s missing", table)
		}
	}
}

func TestMigrateDownAndUp(t *testing.T) {
	d := newTestDB(t)
	migrations, _ := MigrationsFS()

	if err := d.MigrateDown(migrations); err != nil {
		t.Fatalf("MigrateDown: %v", err)
	}
	if v, _, _ := d.MigrateVersion(migrations); v != 2 {
		t.Errorf("after down version = %d, want 2", v)
	}
	if err := d.MigrateTo(migrations, 1); err != nil {
		t.Fatalf("MigrateTo(1): %v", err)
	}
	if err := d.MigrateUp(migrations); err != nil {
		t.Fatalf("MigrateUp: %v", err)
	}
	if v, _, _ := d.MigrateVersion(migrations); v != 3 {
		t.Errorf("after up version = %d, want 3", v)
	}
	// reopening an up-to-date database is a no-op
	if err := d.MigrateUp(migrations); err != nil {
		t.Errorf("second MigrateUp: %v", err)
	}
}

func TestSessions(t *testing.T) {
	d := newTestDB(t)
	start := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	if err := d.StartSession("s1", start); err != nil {
		t.Fatal(err)
	}
	if err := d.StartSession("s1", start.Add(time.Hour)); err != nil {
		t.Fatalf("duplicate StartSession should be ignored: %v", err)
	}
	open, err := d.GetSession("s1")
	if err != nil {
		t.Fatal(err)
	}
	if !open.EndedAt.IsZero() || !open.StartedAt.Equal(start) {
		t.Errorf("open session = %+v", open)
	}

	snap := alertness.Snapshot{
		SessionID:         "s1",
		StartedAt:         start,
		FramesProcessed:   300,
		RuntimeSeconds:    10,
		AverageFrameRate:  30,
		DrowsyEpisodes:    4,
		SteeringAnomalies: 1,
		Level:             alertness.LevelWarning,
	}
	if err := d.FinishSession(snap, start.Add(10*time.Second)); err != nil {
		t.Fatal(err)
	}
	// finishing an unknown session creates it
	snap2 := snap
	snap2.SessionID = "s2"
	snap2.StartedAt = start.Add(time.Minute)
	if err := d.FinishSession(snap2, start.Add(2*time.Minute)); err != nil {
		t.Fatal(err)
	}

	want := Session{
		SessionID:         "s1",
		StartedAt:         start,
		EndedAt:           start.Add(10 * time.Second),
		FramesProcessed:   300,
		DrowsyEpisodes:    4,
		SteeringAnomalies: 1,
		RuntimeSeconds:    10,
		AverageFrameRate:  30,
		FinalLevel:        "WARNING",
	}
	got, err := d.GetSession("s1")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("GetSession mismatch (-want +got):\n%s", diff)
	}

	all, err := d.Sessions(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || all[0].SessionID != "s2" {
		t.Errorf("Sessions order = %+v", all)
	}
	if _, err := d.GetSession("missing"); err != ErrSessionNotFound {
		t.Errorf("GetSession(missing) err = %v", err)
	}
}

func TestTransitions(t *testing.T) {
	d := newTestDB(t)
	t0 := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	trs := []alertness.Transition{
		{SessionID: "a", Frame: 1, At: t0, From: alertness.LevelNormal, To: alertness.LevelEmergency,
			Score: 65, Factors: []string{alertness.FactorEyeClosure, alertness.FactorYawning}, MeasurementRequested: true},
		{SessionID: "a", Frame: 40, At: t0.Add(4 * time.Second), From: alertness.LevelEmergency, To: alertness.LevelNormal,
			Factors: []string{}, NoFace: true},
		{SessionID: "b", Frame: 8, At: t0.Add(5 * time.Second), From: alertness.LevelNormal, To: alertness.LevelEmergency,
			Score: 20, Factors: []string{alertness.FactorHeadTilt}, SustainedAnomaly: true},
		{SessionID: "a", Frame: 60, At: t0.Add(6 * time.Second), From: alertness.LevelNormal, To: alertness.LevelWarning,
			Score: 25, Factors: []string{alertness.FactorYawning}},
	}
	for _, tr := range trs {
		if err := d.RecordTransition(tr); err != nil {
			t.Fatal(err)
		}
	}

	got, err := d.Transitions(TransitionFilter{SessionID: "a"})
	if err != nil {
		t.Fatal(err)
	}
	want := []alertness.Transition{trs[0], trs[1], trs[3]}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Transitions(a) mismatch (-want +got):\n%s", diff)
	}

	got, err = d.Transitions(TransitionFilter{Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].SessionID != "b" || got[1].Frame != 60 {
		t.Errorf("Transitions(limit 2) = %+v", got)
	}

	got, _ = d.Transitions(TransitionFilter{Since: t0.Add(5 * time.Second)})
	if len(got) != 2 {
		t.Errorf("Transitions(since) returned %d rows", len(got))
	}

	dwell, err := d.LevelDwellTimes("a", t0.Add(10*time.Second))
	if err != nil {
		t.Fatal(err)
	}
	wantDwell := LevelDwell{alertness.LevelEmergency: 4, alertness.LevelNormal: 2, alertness.LevelWarning: 4}
	if diff := cmp.Diff(wantDwell, dwell); diff != "" {
		t.Errorf("LevelDwellTimes mismatch (-want +got):\n%s", diff)
	}
}

func TestPeripheralLinesAndMeasurements(t *testing.T) {
	d := newTestDB(t)
	at := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	if err := d.RecordPeripheralLine("ack", "ACK:ALERT:3", at); err != nil {
		t.Fatal(err)
	}
	if err := d.RecordPeripheralLine("reading", "BP:120/80", at.Add(time.Second)); err != nil {
		t.Fatal(err)
	}
	lines, err := d.PeripheralLines(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 2 || lines[0].Payload != "BP:120/80" || !lines[1].ReceivedAt.Equal(at) {
		t.Errorf("PeripheralLines = %+v", lines)
	}

	ms := []Measurement{
		{Reading: peripheral.Reading{Systolic: 120, Diastolic: 80}, ReceivedAt: at},
		{Reading: peripheral.Reading{Systolic: 135, Diastolic: 88, Pulse: 90}, SessionID: "s1", ReceivedAt: at.Add(time.Second)},
	}
	for _, m := range ms {
		if err := d.RecordMeasurement(m); err != nil {
			t.Fatal(err)
		}
	}
	got, err := d.Measurements(0)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]Measurement{ms[1], ms[0]}, got); diff != "" {
		t.Errorf("Measurements mismatch (-want +got):\n%s", diff)
	}
}

func TestAttachAdminRoutes_Backup(t *testing.T) {
	d := newTestDB(t)
	if err := d.StartSession("s1", time.Now()); err != nil {
		t.Fatal(err)
	}

	mux := http.NewServeMux()
	d.AttachAdminRoutes(mux)

	req := httptest.NewRequest(http.MethodGet, "/debug/backup", nil)
	req.RemoteAddr = "127.0.0.1:12345"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	zr, err := gzip.NewReader(rec.Body)
	if err != nil {
		t.Fatalf("backup is not gzip: %v", err)
	}
	body, err := io.ReadAll(zr)
	if err != nil {
		t.Fatal(err)
	}
	if len(body) < 16 || string(body[:15]) != "SQLite format 3" {
		t.Errorf("backup does not look like a SQLite file")
	}
}
