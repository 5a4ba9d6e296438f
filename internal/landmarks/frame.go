// Package landmarks delivers per-frame face landmark sets from an upstream
// detector to the alertness engine. Frames arrive as JSON lines on a stream
// (stdin or a file), as UDP datagrams, or from the built-in simulator.
package landmarks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/banshee-data/drowsiness.report/internal/geometry"
	"github.com/banshee-data/drowsiness.report/internal/monitoring"
)

var ErrMalformedFrame = errors.New("malformed landmark frame")

// Frame is one camera frame's detections. An empty Faces slice is a frame in
// which no face was found.
type Frame struct {
	Timestamp time.Time              `json:"ts"`
	Faces     []geometry.LandmarkSet `json:"faces"`
}

// DecodeFrame parses one JSON-encoded frame. Face geometry is not validated
// here; the engine skips individual bad faces.
func DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return f, nil
}

// Source produces frames in capture order until ctx is cancelled or the input
// ends. Run closes nothing; the caller owns out.
type Source interface {
	Run(ctx context.Context, out chan<- Frame) error
}

// Stats counts what a source has seen.
type Stats struct {
	frames    atomic.Int64
	malformed atomic.Int64
	bytes     atomic.Int64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Frames    int64 `json:"frames"`
	Malformed int64 `json:"malformed"`
	Bytes     int64 `json:"bytes"`
}

func (s *Stats) addFrame(n int) {
	s.frames.Add(1)
	s.bytes.Add(int64(n))
}

func (s *Stats) addMalformed(n int) {
	s.malformed.Add(1)
	s.bytes.Add(int64(n))
}

func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Frames:    s.frames.Load(),
		Malformed: s.malformed.Load(),
		Bytes:     s.bytes.Load(),
	}
}

// logStatsEvery reports source statistics on interval until ctx ends.
func logStatsEvery(ctx context.Context, name string, s *Stats, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := s.Snapshot()
			monitoring.Logf("%s: %d frames, %d malformed, %d bytes", name, snap.Frames, snap.Malformed, snap.Bytes)
		}
	}
}

// deliver hands f to out unless ctx ends first.
func deliver(ctx context.Context, out chan<- Frame, f Frame) error {
	select {
	case out <- f:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
