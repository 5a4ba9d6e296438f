package geometry

import (
	"errors"
	"fmt"
	"math"
)

// ErrDegenerateGeometry is returned by Measure when the eye contours have no
// measurable width, so an aspect ratio would be meaningless.
var ErrDegenerateGeometry = errors.New("degenerate eye geometry")

// FrameMetrics holds the raw single-frame measurements for one face.
type FrameMetrics struct {
	EAR                float64 `json:"ear"`
	MAR                float64 `json:"mar"`
	HeadAngle          float64 `json:"head_angle_deg"`
	AttentionDeviation float64 `json:"attention_deviation"`
}

// EyeAspectRatio computes (|p1-p5| + |p2-p4|) / (2|p0-p3|) over the six
// canonical eye contour points. ok is false when the shape is too short or the
// eye has zero width.
func EyeAspectRatio(eye []Point) (ear float64, ok bool) {
	if len(eye) < 6 {
		return math.NaN(), false
	}
	width := Distance(eye[0], eye[3])
	if width == 0 {
		return math.NaN(), false
	}
	a := Distance(eye[1], eye[5])
	b := Distance(eye[2], eye[4])
	return (a + b) / (2 * width), true
}

// MouthAspectRatio computes (|p2-p10| + |p4-p8|) / (2|p0-p6|) over the 20
// point mouth contour.
func MouthAspectRatio(mouth []Point) (mar float64, ok bool) {
	if len(mouth) < 11 {
		return math.NaN(), false
	}
	width := Distance(mouth[0], mouth[6])
	if width == 0 {
		return math.NaN(), false
	}
	a := Distance(mouth[2], mouth[10])
	b := Distance(mouth[4], mouth[8])
	return (a + b) / (2 * width), true
}

// HeadPose returns the roll angle between the outer eye corners in degrees and
// the horizontal offset of the nose tip from the eye midpoint, normalised by
// the inter-eye distance. Any degenerate input yields (0, 0): bad geometry is
// read as "no anomaly".
func HeadPose(ls LandmarkSet) (angleDeg, deviation float64) {
	if len(ls) <= RightEyeOuter || len(ls) <= NoseTip {
		return 0, 0
	}
	left := ls[LeftEyeOuter]
	right := ls[RightEyeOuter]
	nose := ls[NoseTip]
	if !left.finite() || !right.finite() || !nose.finite() {
		return 0, 0
	}

	interEye := Distance(left, right)
	if interEye == 0 {
		return 0, 0
	}

	angleDeg = math.Atan2(right.Y-left.Y, right.X-left.X) * 180 / math.Pi
	eyeCenterX := (left.X + right.X) / 2
	deviation = math.Abs(nose.X-eyeCenterX) / interEye
	return angleDeg, deviation
}

// Measure validates ls and computes its FrameMetrics. EAR is the mean of both
// eyes. A mouth that cannot be measured contributes MAR 0 (no yawn) rather
// than rejecting the whole face.
func Measure(ls LandmarkSet) (FrameMetrics, error) {
	if err := ls.Validate(); err != nil {
		return FrameMetrics{}, err
	}

	leftEAR, okL := EyeAspectRatio(ls.LeftEye())
	rightEAR, okR := EyeAspectRatio(ls.RightEye())
	if !okL || !okR {
		return FrameMetrics{}, fmt.Errorf("%w: left=%t right=%t", ErrDegenerateGeometry, okL, okR)
	}

	mar, ok := MouthAspectRatio(ls.Mouth())
	if !ok {
		mar = 0
	}

	angle, deviation := HeadPose(ls)
	return FrameMetrics{
		EAR:                (leftEAR + rightEAR) / 2,
		MAR:                mar,
		HeadAngle:          angle,
		AttentionDeviation: deviation,
	}, nil
}
