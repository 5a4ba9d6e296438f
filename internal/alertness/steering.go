package alertness

import "math"

// SteeringDetector debounces head-pose anomalies: a tilt beyond MaxDegrees or
// a nose deviation beyond MaxDeviation must hold for Frames consecutive frames
// before it counts as a sustained steering anomaly.
type SteeringDetector struct {
	maxDegrees   float64
	maxDeviation float64
	frames       int
	counter      int
}

// NewSteeringDetector returns a detector with the given limits. frames < 1
// is treated as 1.
func NewSteeringDetector(maxDegrees, maxDeviation float64, frames int) *SteeringDetector {
	if frames < 1 {
		frames = 1
	}
	return &SteeringDetector{
		maxDegrees:   maxDegrees,
		maxDeviation: maxDeviation,
		frames:       frames,
	}
}

// Observe feeds one frame's raw head angle and attention deviation.
// sustained is true while the anomaly has held for at least the configured
// number of frames. crossed is true only on the frame where it first
// becomes sustained; it re-arms after a normal frame resets the counter.
func (d *SteeringDetector) Observe(headAngle, deviation float64) (sustained, crossed bool) {
	anomalous := math.Abs(headAngle) > d.maxDegrees || deviation > d.maxDeviation
	if !anomalous {
		d.counter = 0
		return false, false
	}
	d.counter++
	return d.counter >= d.frames, d.counter == d.frames
}

// Count returns the current consecutive anomalous frame count.
func (d *SteeringDetector) Count() int { return d.counter }

// Reset clears the consecutive frame count.
func (d *SteeringDetector) Reset() { d.counter = 0 }
