package alertness

import "time"

// Stats are the cumulative counters for one session. A session starts when
// the engine is created and again on every ResetStatistics.
type Stats struct {
	SessionID         string
	StartedAt         time.Time
	FramesProcessed   int64
	DrowsyEpisodes    int64
	SteeringAnomalies int64
}

// Snapshot is the reporting view of Stats at a point in time.
type Snapshot struct {
	SessionID         string    `json:"session_id"`
	StartedAt         time.Time `json:"started_at"`
	FramesProcessed   int64     `json:"frames_processed"`
	RuntimeSeconds    float64   `json:"runtime_seconds"`
	AverageFrameRate  float64   `json:"average_frame_rate"`
	DrowsyEpisodes    int64     `json:"drowsy_episodes"`
	SteeringAnomalies int64     `json:"steering_anomalies"`
	Level             Level     `json:"level"`
}

func (s Stats) snapshot(now time.Time, level Level) Snapshot {
	runtime := now.Sub(s.StartedAt).Seconds()
	var rate float64
	if runtime > 0 {
		rate = float64(s.FramesProcessed) / runtime
	}
	return Snapshot{
		SessionID:         s.SessionID,
		StartedAt:         s.StartedAt,
		FramesProcessed:   s.FramesProcessed,
		RuntimeSeconds:    runtime,
		AverageFrameRate:  rate,
		DrowsyEpisodes:    s.DrowsyEpisodes,
		SteeringAnomalies: s.SteeringAnomalies,
		Level:             level,
	}
}
