// Package pipeline connects a landmark source to the alertness engine and
// fans the results out: transitions to the database and event publisher,
// live updates to subscribers, signals to the plotter and peripheral replies
// back into the database.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/drowsiness.report/internal/alertness"
	"github.com/banshee-data/drowsiness.report/internal/db"
	"github.com/banshee-data/drowsiness.report/internal/events"
	"github.com/banshee-data/drowsiness.report/internal/landmarks"
	"github.com/banshee-data/drowsiness.report/internal/monitoring"
	"github.com/banshee-data/drowsiness.report/internal/serialmux"
	"github.com/banshee-data/drowsiness.report/internal/timeutil"
)

// eventQueueDepth bounds transitions waiting for the publisher.
const eventQueueDepth = 64

// DefaultFlushTimeout bounds the whole shutdown flush of queued events.
const DefaultFlushTimeout = 5 * time.Second

var ErrNoEngine = errors.New("pipeline requires an engine")

// Config wires a Runner. Only Engine is required.
type Config struct {
	Engine      *alertness.Engine
	DB          *db.DB
	Publisher   events.Publisher
	Broadcaster *Broadcaster
	Plotter     *monitoring.SignalPlotter
	Clock       timeutil.Clock

	// FlushTimeout caps publishing of queued events once Run returns;
	// 0 means DefaultFlushTimeout.
	FlushTimeout time.Duration
}

// Runner drives the engine from a frame channel. Frames are handled strictly
// one at a time in arrival order.
type Runner struct {
	engine      *alertness.Engine
	db          *db.DB
	publisher   events.Publisher
	broadcaster *Broadcaster
	plotter     *monitoring.SignalPlotter
	clock       timeutil.Clock

	events       chan alertness.Transition
	flushTimeout time.Duration

	mu            sync.Mutex
	framesHandled int64
	eventsDropped int64
	lastFrameAt   time.Time
}

func New(cfg Config) (*Runner, error) {
	if cfg.Engine == nil {
		return nil, ErrNoEngine
	}
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	flush := cfg.FlushTimeout
	if flush <= 0 {
		flush = DefaultFlushTimeout
	}
	return &Runner{
		engine:       cfg.Engine,
		db:           cfg.DB,
		publisher:    cfg.Publisher,
		broadcaster:  cfg.Broadcaster,
		plotter:      cfg.Plotter,
		clock:        clock,
		events:       make(chan alertness.Transition, eventQueueDepth),
		flushTimeout: flush,
	}, nil
}

// Engine returns the engine being driven.
func (r *Runner) Engine() *alertness.Engine { return r.engine }

// Broadcaster returns the live update fan-out, which may be nil.
func (r *Runner) Broadcaster() *Broadcaster { return r.broadcaster }

// StartSession records the engine's current session in the database.
func (r *Runner) StartSession() error {
	if r.db == nil {
		return nil
	}
	snap := r.engine.Snapshot()
	return r.db.StartSession(snap.SessionID, snap.StartedAt)
}

// HandleFrame processes one frame and distributes the result.
func (r *Runner) HandleFrame(f landmarks.Frame) alertness.FrameResult {
	res := r.engine.ProcessFrame(f.Faces)

	r.mu.Lock()
	r.framesHandled++
	r.lastFrameAt = f.Timestamp
	r.mu.Unlock()

	for _, tr := range res.Transitions {
		monitoring.Logf("alert level %s -> %s (score %d, factors %v)", tr.From, tr.To, tr.Score, tr.Factors)
		if r.db != nil {
			if err := r.db.RecordTransition(tr); err != nil {
				monitoring.Logf("failed to record transition: %v", err)
			}
		}
		if r.publisher != nil {
			r.enqueue(tr)
		}
	}

	if r.broadcaster != nil {
		r.broadcaster.Publish(UpdateFromResult(res))
	}
	if r.plotter != nil {
		r.sample(res)
	}
	return res
}

func (r *Runner) enqueue(tr alertness.Transition) {
	select {
	case r.events <- tr:
	default:
		r.dropEvent(tr, "event queue full")
	}
}

func (r *Runner) dropEvent(tr alertness.Transition, reason string) {
	r.mu.Lock()
	r.eventsDropped++
	r.mu.Unlock()
	monitoring.Logf("%s, dropping transition at frame %d", reason, tr.Frame)
}

func (r *Runner) sample(res alertness.FrameResult) {
	if res.NoFace {
		r.plotter.Sample(monitoring.SignalSample{Frame: res.Frame, Level: int(res.Level)})
		return
	}
	for _, f := range res.Faces {
		if f.Skipped {
			continue
		}
		r.plotter.Sample(monitoring.SignalSample{
			Frame:         res.Frame,
			Face:          true,
			EAR:           f.Metrics.EAR,
			SmoothedEAR:   f.SmoothedEAR,
			MAR:           f.Metrics.MAR,
			SmoothedAngle: f.SmoothedAngle,
			Deviation:     f.Metrics.AttentionDeviation,
			Score:         f.Score.Value,
			Level:         int(f.Level),
		})
	}
}

// Run handles frames until the channel is closed, returning nil, or ctx is
// cancelled. Pending events are flushed to the publisher before it returns,
// for at most the configured flush timeout in total.
func (r *Runner) Run(ctx context.Context, frames <-chan landmarks.Frame) error {
	stop := make(chan struct{})
	sendCtx, cancelSend := context.WithCancel(context.Background())
	defer cancelSend()

	var wg sync.WaitGroup
	if r.publisher != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.publishLoop(sendCtx, stop)
		}()
	}
	defer func() {
		close(stop)
		deadline := time.AfterFunc(r.flushTimeout, cancelSend)
		defer deadline.Stop()
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f, ok := <-frames:
			if !ok {
				return nil
			}
			r.HandleFrame(f)
		}
	}
}

// publishLoop sends queued transitions until stop closes, then drains the
// queue. Once sendCtx is cancelled the rest of the queue is dropped.
func (r *Runner) publishLoop(sendCtx context.Context, stop <-chan struct{}) {
	for {
		select {
		case tr := <-r.events:
			r.publish(sendCtx, tr)
		case <-stop:
			for {
				select {
				case tr := <-r.events:
					if sendCtx.Err() != nil {
						r.dropEvent(tr, "flush deadline passed")
						continue
					}
					r.publish(sendCtx, tr)
				default:
					return
				}
			}
		}
	}
}

func (r *Runner) publish(ctx context.Context, tr alertness.Transition) {
	if err := r.publisher.Publish(ctx, tr); err != nil {
		monitoring.Logf("failed to publish transition: %v", err)
	}
}

// ConsumePeripheral records every line the peripheral sends until ctx is
// cancelled or the mux closes the subscription.
func (r *Runner) ConsumePeripheral(ctx context.Context, mux serialmux.SerialMuxInterface) {
	id, lines := mux.Subscribe()
	defer mux.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			session := r.engine.Snapshot().SessionID
			if err := serialmux.HandleEvent(r.db, session, line, r.clock.Now()); err != nil {
				monitoring.Logf("peripheral line %q: %v", line, err)
			}
		}
	}
}

// Reset ends the current session and starts a new one, persisting both. It
// returns the final snapshot of the session that ended.
func (r *Runner) Reset() (alertness.Snapshot, error) {
	final := r.engine.ResetStatistics()
	if r.db == nil {
		return final, nil
	}
	if err := r.db.FinishSession(final, r.clock.Now()); err != nil {
		return final, fmt.Errorf("failed to finish session: %w", err)
	}
	if err := r.StartSession(); err != nil {
		return final, fmt.Errorf("failed to start session: %w", err)
	}
	return final, nil
}

// Finish persists the current session's final statistics.
func (r *Runner) Finish() (alertness.Snapshot, error) {
	snap := r.engine.Snapshot()
	if r.db == nil {
		return snap, nil
	}
	if err := r.db.FinishSession(snap, r.clock.Now()); err != nil {
		return snap, fmt.Errorf("failed to finish session: %w", err)
	}
	return snap, nil
}

// RunnerStats are the pipeline's own counters.
type RunnerStats struct {
	FramesHandled int64     `json:"frames_handled"`
	EventsDropped int64     `json:"events_dropped"`
	EventsPending int       `json:"events_pending"`
	LastFrameAt   time.Time `json:"last_frame_at"`
}

func (r *Runner) Stats() RunnerStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RunnerStats{
		FramesHandled: r.framesHandled,
		EventsDropped: r.eventsDropped,
		EventsPending: len(r.events),
		LastFrameAt:   r.lastFrameAt,
	}
}
