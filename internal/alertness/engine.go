// Package alertness fuses per-frame facial measurements into a driver
// alertness level. The Engine owns all temporal state (smoothing windows,
// debounce counters, current level, statistics) and is advanced one frame at
// a time by ProcessFrame.
package alertness

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/drowsiness.report/internal/geometry"
	"github.com/banshee-data/drowsiness.report/internal/monitoring"
	"github.com/banshee-data/drowsiness.report/internal/peripheral"
	"github.com/banshee-data/drowsiness.report/internal/smoothing"
	"github.com/banshee-data/drowsiness.report/internal/timeutil"
)

// Config gathers every tunable of the engine.
type Config struct {
	Scorer ScorerConfig
	Levels LevelThresholds

	SteeringDegrees   float64
	SteeringDeviation float64
	SteeringFrames    int

	// EyeClosureFrames consecutive frames with smoothed EAR under the
	// threshold count as a drowsy episode.
	EyeClosureFrames int

	EARWindow   int
	AngleWindow int

	// MeasurementInterval is the minimum spacing between BP_REQUEST commands.
	MeasurementInterval time.Duration
}

// DefaultConfig returns the standard engine tuning.
func DefaultConfig() Config {
	return Config{
		Scorer:              DefaultScorerConfig(),
		Levels:              DefaultLevelThresholds(),
		SteeringDegrees:     15,
		SteeringDeviation:   0.3,
		SteeringFrames:      8,
		EyeClosureFrames:    12,
		EARWindow:           15,
		AngleWindow:         10,
		MeasurementInterval: 2 * time.Second,
	}
}

// CommandSink receives commands for the peripheral. Implementations must not
// block; peripheral.Notifier is the production sink.
type CommandSink interface {
	Send(peripheral.Command)
}

// Transition records one change of the engine's level.
type Transition struct {
	SessionID            string    `json:"session_id"`
	Frame                int64     `json:"frame"`
	At                   time.Time `json:"at"`
	From                 Level     `json:"from"`
	To                   Level     `json:"to"`
	Score                int       `json:"score"`
	Factors              []string  `json:"factors"`
	SustainedAnomaly     bool      `json:"sustained_anomaly"`
	NoFace               bool      `json:"no_face"`
	MeasurementRequested bool      `json:"measurement_requested"`
}

// FaceResult carries the per-face diagnostics that used to be drawn as an
// overlay.
type FaceResult struct {
	Index            int                   `json:"index"`
	Metrics          geometry.FrameMetrics `json:"metrics"`
	SmoothedEAR      float64               `json:"smoothed_ear"`
	SmoothedAngle    float64               `json:"smoothed_angle"`
	Score            Score                 `json:"score"`
	SustainedAnomaly bool                  `json:"sustained_anomaly"`
	EyeClosureFrames int                   `json:"eye_closure_frames"`
	YawnFrames       int                   `json:"yawn_frames"`
	Level            Level                 `json:"level"`
	// Skipped faces did not contribute to any state.
	Skipped bool   `json:"skipped"`
	Error   string `json:"error,omitempty"`
}

// FrameResult is everything observable about one processed frame.
type FrameResult struct {
	Frame         int64                `json:"frame"`
	At            time.Time            `json:"at"`
	NoFace        bool                 `json:"no_face"`
	Faces         []FaceResult         `json:"faces"`
	PreviousLevel Level                `json:"previous_level"`
	Level         Level                `json:"level"`
	Transitions   []Transition         `json:"transitions,omitempty"`
	Commands      []peripheral.Command `json:"commands,omitempty"`
}

// Changed reports whether the level moved during this frame.
func (r FrameResult) Changed() bool { return len(r.Transitions) > 0 }

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the wall clock, for tests.
func WithClock(c timeutil.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithSink sets where commands are sent. Without a sink commands are only
// reported in FrameResult.
func WithSink(s CommandSink) Option {
	return func(e *Engine) { e.sink = s }
}

// Engine is the per-process alertness state. All methods are safe for
// concurrent use, but frames must be submitted in capture order for the
// smoothing windows to mean anything.
type Engine struct {
	mu sync.Mutex

	cfg    Config
	clock  timeutil.Clock
	sink   CommandSink
	scorer Scorer

	ear      *smoothing.Window
	angle    *smoothing.Window
	steering *SteeringDetector

	eyeClosureFrames int
	yawnFrames       int

	level           Level
	lastMeasurement time.Time
	measured        bool

	stats Stats
}

// NewEngine returns an Engine at LevelNormal with empty windows.
func NewEngine(cfg Config, opts ...Option) *Engine {
	e := &Engine{
		cfg:      cfg,
		clock:    timeutil.RealClock{},
		scorer:   NewScorer(cfg.Scorer),
		ear:      smoothing.New(cfg.EARWindow),
		angle:    smoothing.New(cfg.AngleWindow),
		steering: NewSteeringDetector(cfg.SteeringDegrees, cfg.SteeringDeviation, cfg.SteeringFrames),
		level:    LevelNormal,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.stats = Stats{SessionID: uuid.NewString(), StartedAt: e.clock.Now()}
	return e
}

// ProcessFrame advances the engine by one frame. faces may be empty, which
// is a neutral frame: the level is driven to NORMAL but windows and counters
// keep their evidence. Faces are processed in order.
func (e *Engine) ProcessFrame(faces []geometry.LandmarkSet) FrameResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	e.stats.FramesProcessed++
	res := FrameResult{
		Frame:         e.stats.FramesProcessed,
		At:            now,
		NoFace:        len(faces) == 0,
		Faces:         make([]FaceResult, 0, len(faces)),
		PreviousLevel: e.level,
	}

	if res.NoFace {
		e.applyLevel(&res, LevelNormal, Score{Factors: []string{}}, false)
		res.Level = e.level
		return res
	}

	for i, face := range faces {
		res.Faces = append(res.Faces, e.processFace(&res, i, face))
	}
	res.Level = e.level
	return res
}

func (e *Engine) processFace(res *FrameResult, index int, face geometry.LandmarkSet) FaceResult {
	fr := FaceResult{Index: index}

	m, err := geometry.Measure(face)
	if err != nil {
		monitoring.Logf("frame %d: skipping face %d: %v", res.Frame, index, err)
		fr.Skipped = true
		fr.Error = err.Error()
		fr.Level = e.level
		return fr
	}
	fr.Metrics = m

	e.ear.Push(m.EAR)
	e.angle.Push(m.HeadAngle)
	fr.SmoothedEAR = e.ear.Mean()
	fr.SmoothedAngle = e.angle.Mean()

	sustained, crossed := e.steering.Observe(m.HeadAngle, m.AttentionDeviation)
	if crossed {
		e.stats.SteeringAnomalies++
	}
	fr.SustainedAnomaly = sustained

	fr.Score = e.scorer.Score(ScoreInput{
		SmoothedEAR:        fr.SmoothedEAR,
		MAR:                m.MAR,
		SmoothedHeadAngle:  fr.SmoothedAngle,
		AttentionDeviation: m.AttentionDeviation,
	})
	newLevel := e.cfg.Levels.Determine(fr.Score.Value, sustained)

	if fr.SmoothedEAR < e.cfg.Scorer.EARThreshold {
		e.eyeClosureFrames++
	} else {
		e.eyeClosureFrames = 0
	}
	if m.MAR > e.cfg.Scorer.MARThreshold {
		e.yawnFrames++
	} else {
		e.yawnFrames = 0
	}
	fr.EyeClosureFrames = e.eyeClosureFrames
	fr.YawnFrames = e.yawnFrames

	// Coarse statistic: counts every qualifying frame, so one long episode
	// increments it repeatedly.
	if e.eyeClosureFrames >= e.cfg.EyeClosureFrames || newLevel >= LevelCritical {
		e.stats.DrowsyEpisodes++
	}

	e.applyLevel(res, newLevel, fr.Score, sustained)
	fr.Level = e.level
	return fr
}

// applyLevel commits newLevel and fires the transition side effects when it
// differs from the held level.
func (e *Engine) applyLevel(res *FrameResult, newLevel Level, score Score, sustained bool) {
	if newLevel == e.level {
		return
	}

	tr := Transition{
		SessionID:        e.stats.SessionID,
		Frame:            res.Frame,
		At:               res.At,
		From:             e.level,
		To:               newLevel,
		Score:            score.Value,
		Factors:          score.Factors,
		SustainedAnomaly: sustained,
		NoFace:           res.NoFace,
	}
	e.level = newLevel
	e.emit(res, peripheral.Alert(int(newLevel)))

	// no-face transitions never request a measurement
	if res.NoFace {
		res.Transitions = append(res.Transitions, tr)
		return
	}
	if !e.measured || res.At.Sub(e.lastMeasurement) >= e.cfg.MeasurementInterval {
		e.emit(res, peripheral.MeasurementRequest())
		e.lastMeasurement = res.At
		e.measured = true
		tr.MeasurementRequested = true
	}
	res.Transitions = append(res.Transitions, tr)
}

func (e *Engine) emit(res *FrameResult, cmd peripheral.Command) {
	res.Commands = append(res.Commands, cmd)
	if e.sink != nil {
		e.sink.Send(cmd)
	}
}

// Level returns the current alert level.
func (e *Engine) Level() Level {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.level
}

// Snapshot reports the session statistics.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats.snapshot(e.clock.Now(), e.level)
}

// ResetStatistics zeroes the session counters, clears both smoothing windows
// and the debounce counters, and starts a new session. The current level is
// kept. It returns the final snapshot of the session that just ended.
func (e *Engine) ResetStatistics() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	final := e.stats.snapshot(now, e.level)

	e.stats = Stats{SessionID: uuid.NewString(), StartedAt: now}
	e.ear.Reset()
	e.angle.Reset()
	e.steering.Reset()
	e.eyeClosureFrames = 0
	e.yawnFrames = 0

	monitoring.Logf("statistics reset, new session %s", e.stats.SessionID)
	return final
}

// SmoothingState returns copies of both windows, oldest first.
func (e *Engine) SmoothingState() (ear, angle []float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ear.Values(), e.angle.Values()
}
