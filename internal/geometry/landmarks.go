// Package geometry computes per-frame facial measurements (eye and mouth
// aspect ratios, head pose) from a 68-point landmark set.
package geometry

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// Landmark indices in the conventional 68-point facial layout.
const (
	NumLandmarks = 68

	Chin          = 8
	NoseTip       = 30
	LeftEyeStart  = 36
	LeftEyeEnd    = 42
	RightEyeStart = 42
	RightEyeEnd   = 48
	MouthStart    = 48
	MouthEnd      = 68

	// Outer eye corners used for head pose.
	LeftEyeOuter  = 36
	RightEyeOuter = 45
)

var (
	ErrInvalidLandmarkCount = errors.New("invalid landmark count")
	ErrNonFiniteLandmark    = errors.New("non-finite landmark coordinate")
)

// Point is a 2D landmark in image pixel coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// UnmarshalJSON accepts either {"x":..,"y":..} or a two element [x, y] array,
// the latter being what most landmark exporters emit.
func (p *Point) UnmarshalJSON(data []byte) error {
	var pair []float64
	if err := json.Unmarshal(data, &pair); err == nil {
		if len(pair) != 2 {
			return fmt.Errorf("point array must have 2 elements, got %d", len(pair))
		}
		p.X, p.Y = pair[0], pair[1]
		return nil
	}
	type plain Point
	var v plain
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("failed to parse point: %w", err)
	}
	*p = Point(v)
	return nil
}

func (p Point) finite() bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}

// Distance returns the Euclidean distance between two points.
func Distance(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// LandmarkSet is one detected face. It is read-only once produced.
type LandmarkSet []Point

// Validate reports whether the set can be measured.
func (ls LandmarkSet) Validate() error {
	if len(ls) != NumLandmarks {
		return fmt.Errorf("%w: got %d, want %d", ErrInvalidLandmarkCount, len(ls), NumLandmarks)
	}
	for i, p := range ls {
		if !p.finite() {
			return fmt.Errorf("%w at index %d", ErrNonFiniteLandmark, i)
		}
	}
	return nil
}

// LeftEye returns a view of the six left-eye contour points.
func (ls LandmarkSet) LeftEye() []Point { return ls[LeftEyeStart:LeftEyeEnd] }

// RightEye returns a view of the six right-eye contour points.
func (ls LandmarkSet) RightEye() []Point { return ls[RightEyeStart:RightEyeEnd] }

// Mouth returns a view of the twenty mouth contour points.
func (ls LandmarkSet) Mouth() []Point { return ls[MouthStart:MouthEnd] }
