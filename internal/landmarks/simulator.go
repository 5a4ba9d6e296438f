package landmarks

import (
	"context"
	"time"

	"github.com/banshee-data/drowsiness.report/internal/geometry"
	"github.com/banshee-data/drowsiness.report/internal/timeutil"
)

// Phase is one segment of a simulated drive.
type Phase struct {
	Name   string
	Frames int
	// NoFace drops the face for the whole phase.
	NoFace bool
	Face   geometry.FaceParams
}

// DefaultScript cycles through an alert driver, slow eye closure, a yawn, a
// long head tilt and a glance away from the camera.
func DefaultScript() []Phase {
	center := geometry.Point{X: 320, Y: 220}
	face := func(ear, mar, angle, dev float64) geometry.FaceParams {
		return geometry.FaceParams{EAR: ear, MAR: mar, AngleDeg: angle, Deviation: dev, Scale: 1.2, Center: center}
	}
	return []Phase{
		{Name: "alert", Frames: 90, Face: face(0.30, 0.30, 2, 0.05)},
		{Name: "eyes closing", Frames: 60, Face: face(0.15, 0.30, 3, 0.05)},
		{Name: "yawning", Frames: 45, Face: face(0.28, 0.70, 4, 0.08)},
		{Name: "drowsy yawn", Frames: 30, Face: face(0.16, 0.65, 5, 0.10)},
		{Name: "head drop", Frames: 45, Face: face(0.26, 0.30, 22, 0.12)},
		{Name: "looking away", Frames: 30, Face: face(0.27, 0.30, 3, 0.40)},
		{Name: "no face", Frames: 15, NoFace: true},
	}
}

// Simulator synthesises frames from a script at a fixed rate. It stands in
// for the camera and detector in development.
type Simulator struct {
	script []Phase
	fps    float64
	loop   bool
	clock  timeutil.Clock
}

// SimulatorConfig configures a Simulator. Zero values take the defaults: the
// DefaultScript at 15 frames per second, played once.
type SimulatorConfig struct {
	Script []Phase
	FPS    float64
	Loop   bool
	Clock  timeutil.Clock
}

func NewSimulator(cfg SimulatorConfig) *Simulator {
	s := &Simulator{
		script: cfg.Script,
		fps:    cfg.FPS,
		loop:   cfg.Loop,
		clock:  cfg.Clock,
	}
	if len(s.script) == 0 {
		s.script = DefaultScript()
	}
	if s.fps <= 0 {
		s.fps = 15
	}
	if s.clock == nil {
		s.clock = timeutil.RealClock{}
	}
	return s
}

// PhaseAt returns the phase that frame index i (0-based) falls in, wrapping
// around the script.
func (s *Simulator) PhaseAt(i int) Phase {
	total := 0
	for _, p := range s.script {
		total += p.Frames
	}
	if total <= 0 {
		return Phase{NoFace: true}
	}
	i %= total
	for _, p := range s.script {
		if i < p.Frames {
			return p
		}
		i -= p.Frames
	}
	return s.script[len(s.script)-1]
}

// Frame builds frame i as captured at ts.
func (s *Simulator) Frame(i int, ts time.Time) Frame {
	p := s.PhaseAt(i)
	f := Frame{Timestamp: ts, Faces: []geometry.LandmarkSet{}}
	if !p.NoFace {
		f.Faces = append(f.Faces, geometry.SyntheticFace(p.Face))
	}
	return f
}

func (s *Simulator) totalFrames() int {
	total := 0
	for _, p := range s.script {
		total += p.Frames
	}
	return total
}

// Run emits one frame per tick. Without Loop it returns nil after the last
// phase.
func (s *Simulator) Run(ctx context.Context, out chan<- Frame) error {
	interval := time.Duration(float64(time.Second) / s.fps)
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()

	total := s.totalFrames()
	for i := 0; s.loop || i < total; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ts := <-ticker.C():
			if err := deliver(ctx, out, s.Frame(i, ts)); err != nil {
				return err
			}
		}
	}
	return nil
}
