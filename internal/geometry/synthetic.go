package geometry

import "math"

// FaceParams describes a synthetic face in terms of the measurements it
// should produce. It drives the dev-mode frame simulator and tests.
type FaceParams struct {
	EAR       float64
	MAR       float64
	AngleDeg  float64
	Deviation float64
	// Scale multiplies every coordinate; 0 means 1.
	Scale float64
	// Center is where the eye midpoint lands in the image.
	Center Point
}

const (
	syntheticEyeWidth   = 30.0
	syntheticEyeOffset  = 50.0
	syntheticMouthWidth = 60.0
	syntheticMouthY     = 80.0
)

// SyntheticFace builds a 68-point LandmarkSet whose EAR, MAR, head angle and
// attention deviation match p exactly (up to float rounding).
func SyntheticFace(p FaceParams) LandmarkSet {
	scale := p.Scale
	if scale == 0 {
		scale = 1
	}
	ls := make(LandmarkSet, NumLandmarks)
	// jaw line: a parabola bottoming out at the chin
	for i := 0; i < 17; i++ {
		x := -90 + float64(i)*180/16
		ls[i] = Point{X: x, Y: 60 + 60*(1-(x/90)*(x/90))}
	}
	// nose bridge and brows are not measured; park them on the midline
	for i := 17; i < LeftEyeStart; i++ {
		ls[i] = Point{X: 0, Y: 20}
	}

	placeEye(ls[LeftEyeStart:LeftEyeEnd], -syntheticEyeOffset, p.EAR)
	placeEye(ls[RightEyeStart:RightEyeEnd], syntheticEyeOffset, p.EAR)
	placeMouth(ls[MouthStart:MouthEnd], p.MAR)

	theta := p.AngleDeg * math.Pi / 180
	sin, cos := math.Sincos(theta)
	for i := range ls {
		x, y := ls[i].X, ls[i].Y
		ls[i] = Point{X: x*cos - y*sin, Y: x*sin + y*cos}
	}

	// The nose is placed after rotation: deviation is measured along the
	// image x axis, not the face axis.
	interEye := 2 * (syntheticEyeOffset + syntheticEyeWidth/2)
	ls[NoseTip] = Point{X: p.Deviation * interEye, Y: 40}

	for i := range ls {
		ls[i] = Point{X: ls[i].X*scale + p.Center.X, Y: ls[i].Y*scale + p.Center.Y}
	}
	return ls
}

func placeEye(eye []Point, cx, ear float64) {
	h := ear * syntheticEyeWidth
	w := syntheticEyeWidth
	eye[0] = Point{X: cx - w/2, Y: 0}
	eye[1] = Point{X: cx - w/6, Y: -h / 2}
	eye[2] = Point{X: cx + w/6, Y: -h / 2}
	eye[3] = Point{X: cx + w/2, Y: 0}
	eye[4] = Point{X: cx + w/6, Y: h / 2}
	eye[5] = Point{X: cx - w/6, Y: h / 2}
}

func placeMouth(mouth []Point, mar float64) {
	v := mar * syntheticMouthWidth
	w := syntheticMouthWidth
	y := syntheticMouthY
	for i := range mouth {
		mouth[i] = Point{X: 0, Y: y}
	}
	mouth[0] = Point{X: -w / 2, Y: y}
	mouth[2] = Point{X: -w / 6, Y: y - v/2}
	mouth[4] = Point{X: w / 6, Y: y - v/2}
	mouth[6] = Point{X: w / 2, Y: y}
	mouth[8] = Point{X: w / 6, Y: y + v/2}
	mouth[10] = Point{X: -w / 6, Y: y + v/2}
}
