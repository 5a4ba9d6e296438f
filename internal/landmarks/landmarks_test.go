package landmarks

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/drowsiness.report/internal/geometry"
	"github.com/banshee-data/drowsiness.report/internal/monitoring"
	"github.com/banshee-data/drowsiness.report/internal/timeutil"
)

func muteLogs(t *testing.T) {
	t.Helper()
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.SetLogger(log.Printf) })
}

func encodeFrame(t *testing.T, f Frame) string {
	t.Helper()
	b, err := json.Marshal(f)
	require.NoError(t, err)
	return string(b)
}

func TestDecodeFrame(t *testing.T) {
	face := geometry.SyntheticFace(geometry.FaceParams{EAR: 0.3, MAR: 0.3})
	ts := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	f, err := DecodeFrame([]byte(encodeFrame(t, Frame{Timestamp: ts, Faces: []geometry.LandmarkSet{face}})))
	require.NoError(t, err)
	assert.True(t, f.Timestamp.Equal(ts))
	require.Len(t, f.Faces, 1)
	assert.Len(t, f.Faces[0], geometry.NumLandmarks)

	f, err = DecodeFrame([]byte(`{"faces":[]}`))
	require.NoError(t, err)
	assert.True(t, f.Timestamp.IsZero())
	assert.Empty(t, f.Faces)

	_, err = DecodeFrame([]byte(`{"faces":`))
	assert.True(t, errors.Is(err, ErrMalformedFrame))
}

func TestStreamSource(t *testing.T) {
	muteLogs(t)
	face := geometry.SyntheticFace(geometry.FaceParams{EAR: 0.3, MAR: 0.3})
	ts := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	clock := timeutil.NewMockClock(ts.Add(time.Hour))

	input := strings.Join([]string{
		encodeFrame(t, Frame{Timestamp: ts, Faces: []geometry.LandmarkSet{face}}),
		"",
		"not json",
		`{"faces":[]}`,
		encodeFrame(t, Frame{Timestamp: ts.Add(time.Second), Faces: []geometry.LandmarkSet{face, face}}),
	}, "\n")

	src := NewStreamSource(StreamSourceConfig{Name: "test", Reader: strings.NewReader(input), Clock: clock})
	out := make(chan Frame, 10)
	require.NoError(t, src.Run(context.Background(), out))
	close(out)

	var frames []Frame
	for f := range out {
		frames = append(frames, f)
	}
	require.Len(t, frames, 3)
	assert.Len(t, frames[0].Faces, 1)
	assert.Empty(t, frames[1].Faces)
	// stamped with the read time
	assert.True(t, frames[1].Timestamp.Equal(clock.Now()))
	assert.Len(t, frames[2].Faces, 2)

	snap := src.Stats().Snapshot()
	assert.Equal(t, int64(3), snap.Frames)
	assert.Equal(t, int64(1), snap.Malformed)
	assert.Positive(t, snap.Bytes)
}

func TestStreamSourceSkipsOversizedLine(t *testing.T) {
	muteLogs(t)
	huge := `{"faces":[` + strings.Repeat(" ", 2*maxLineBytes) + `]}`
	input := strings.Join([]string{`{"faces":[]}`, huge, `{"faces":[]}`, `{"faces":[]}`}, "\n")

	src := NewStreamSource(StreamSourceConfig{Name: "big", Reader: strings.NewReader(input)})
	out := make(chan Frame, 10)
	require.NoError(t, src.Run(context.Background(), out))
	close(out)

	n := 0
	for range out {
		n++
	}
	assert.Equal(t, 3, n)

	snap := src.Stats().Snapshot()
	assert.Equal(t, int64(3), snap.Frames)
	assert.Equal(t, int64(1), snap.Malformed)
	assert.Greater(t, snap.Bytes, int64(2*maxLineBytes))
}

func TestStreamSourceOversizedFinalLine(t *testing.T) {
	muteLogs(t)
	input := `{"faces":[]}` + "\n" + strings.Repeat("x", maxLineBytes+10)

	src := NewStreamSource(StreamSourceConfig{Reader: strings.NewReader(input)})
	out := make(chan Frame, 10)
	require.NoError(t, src.Run(context.Background(), out))

	snap := src.Stats().Snapshot()
	assert.Equal(t, int64(1), snap.Frames)
	assert.Equal(t, int64(1), snap.Malformed)
}

func TestStreamSourceCancelled(t *testing.T) {
	muteLogs(t)
	input := strings.Repeat(`{"faces":[]}`+"\n", 5)
	src := NewStreamSource(StreamSourceConfig{Reader: strings.NewReader(input)})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// unbuffered and never read, so only cancellation can end Run
	err := src.Run(ctx, make(chan Frame))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUDPSource(t *testing.T) {
	muteLogs(t)
	clock := timeutil.NewMockClock(time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC))
	src := NewUDPSource(UDPSourceConfig{Address: "127.0.0.1:0", Clock: clock})
	assert.Nil(t, src.LocalAddr())

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan Frame, 4)
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx, out) }()

	select {
	case <-src.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("UDP source did not start")
	}

	conn, err := net.Dial("udp", src.LocalAddr().String())
	require.NoError(t, err)
	defer conn.Close()

	face := geometry.SyntheticFace(geometry.FaceParams{EAR: 0.2, MAR: 0.4})
	_, err = conn.Write([]byte("garbage"))
	require.NoError(t, err)
	_, err = conn.Write([]byte(encodeFrame(t, Frame{Faces: []geometry.LandmarkSet{face}})))
	require.NoError(t, err)

	select {
	case f := <-out:
		require.Len(t, f.Faces, 1)
		assert.True(t, f.Timestamp.Equal(clock.Now()))
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received")
	}
	assert.Equal(t, int64(1), src.Stats().Snapshot().Malformed)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("UDP source did not stop")
	}
}

func TestUDPSourceBadAddress(t *testing.T) {
	src := NewUDPSource(UDPSourceConfig{Address: "not-an-address"})
	assert.Error(t, src.Run(context.Background(), make(chan Frame)))
}

func TestSimulatorPhases(t *testing.T) {
	script := []Phase{
		{Name: "alert", Frames: 2, Face: geometry.FaceParams{EAR: 0.3, MAR: 0.3}},
		{Name: "gone", Frames: 1, NoFace: true},
		{Name: "yawn", Frames: 2, Face: geometry.FaceParams{EAR: 0.3, MAR: 0.7, AngleDeg: 12}},
	}
	sim := NewSimulator(SimulatorConfig{Script: script})

	names := make([]string, 0, 7)
	for i := 0; i < 7; i++ {
		names = append(names, sim.PhaseAt(i).Name)
	}
	assert.Equal(t, []string{"alert", "alert", "gone", "yawn", "yawn", "alert", "alert"}, names)

	ts := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	assert.Empty(t, sim.Frame(2, ts).Faces)

	f := sim.Frame(3, ts)
	require.Len(t, f.Faces, 1)
	m, err := geometry.Measure(f.Faces[0])
	require.NoError(t, err)
	assert.InDelta(t, 0.7, m.MAR, 1e-6)
	assert.InDelta(t, 12, m.HeadAngle, 1e-6)
}

func TestDefaultScriptMeasures(t *testing.T) {
	for _, p := range DefaultScript() {
		if p.NoFace {
			continue
		}
		m, err := geometry.Measure(geometry.SyntheticFace(p.Face))
		require.NoError(t, err, p.Name)
		assert.InDelta(t, p.Face.EAR, m.EAR, 1e-6, p.Name)
		assert.InDelta(t, p.Face.AngleDeg, m.HeadAngle, 1e-6, p.Name)
	}
}

func TestSimulatorRunOnce(t *testing.T) {
	script := []Phase{
		{Name: "alert", Frames: 3, Face: geometry.FaceParams{EAR: 0.3, MAR: 0.3}},
		{Name: "gone", Frames: 2, NoFace: true},
	}
	sim := NewSimulator(SimulatorConfig{Script: script, FPS: 500})

	out := make(chan Frame, 8)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, sim.Run(ctx, out))
	close(out)

	var faces []int
	var last time.Time
	for f := range out {
		faces = append(faces, len(f.Faces))
		assert.False(t, f.Timestamp.Before(last))
		last = f.Timestamp
	}
	assert.Equal(t, []int{1, 1, 1, 0, 0}, faces)
}
