package monitoring

import (
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"sync"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

var ErrNoOutputDir = errors.New("no output directory configured")

// SignalSample is one face measurement as the engine saw it. Frames without
// a face are recorded with Face false so gaps show in the plots.
type SignalSample struct {
	Frame         int64
	Face          bool
	EAR           float64
	SmoothedEAR   float64
	MAR           float64
	SmoothedAngle float64
	Deviation     float64
	Score         int
	Level         int
}

// Reference lines drawn on the plots. Zero values are not drawn.
type SignalThresholds struct {
	EAR       float64
	MAR       float64
	Angle     float64
	Deviation float64
}

// SignalPlotter records per-frame signals for a session and renders them to
// PNG files for offline review.
type SignalPlotter struct {
	mu         sync.Mutex
	enabled    bool
	outputDir  string
	thresholds SignalThresholds
	samples    []SignalSample
}

func NewSignalPlotter(thresholds SignalThresholds) *SignalPlotter {
	return &SignalPlotter{thresholds: thresholds}
}

// Start enables recording into outputDir, discarding earlier samples.
func (sp *SignalPlotter) Start(outputDir string) error {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	sp.outputDir = outputDir
	sp.enabled = true
	sp.samples = nil
	return nil
}

func (sp *SignalPlotter) Stop() {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	sp.enabled = false
}

func (sp *SignalPlotter) IsEnabled() bool {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return sp.enabled
}

// Sample appends s if recording.
func (sp *SignalPlotter) Sample(s SignalSample) {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	if !sp.enabled {
		return
	}
	sp.samples = append(sp.samples, s)
}

// Len is the number of recorded samples.
func (sp *SignalPlotter) Len() int {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return len(sp.samples)
}

type signalSeries struct {
	label string
	value func(SignalSample) float64
	color color.Color
}

type signalChart struct {
	file      string
	title     string
	yLabel    string
	series    []signalSeries
	threshold float64
	// faceOnly skips samples from frames without a face.
	faceOnly bool
}

var (
	colorRaw      = color.RGBA{R: 160, G: 160, B: 160, A: 255}
	colorSmoothed = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	colorAlt      = color.RGBA{R: 44, G: 160, B: 44, A: 255}
	colorScore    = color.RGBA{R: 214, G: 39, B: 40, A: 255}
	colorLevel    = color.RGBA{R: 255, G: 127, B: 14, A: 255}
	colorLimit    = color.RGBA{R: 0, G: 0, B: 0, A: 255}
)

func (sp *SignalPlotter) charts() []signalChart {
	return []signalChart{
		{
			file:   "eyes.png",
			title:  "Eye Aspect Ratio",
			yLabel: "EAR",
			series: []signalSeries{
				{"raw", func(s SignalSample) float64 { return s.EAR }, colorRaw},
				{"smoothed", func(s SignalSample) float64 { return s.SmoothedEAR }, colorSmoothed},
			},
			threshold: sp.thresholds.EAR,
			faceOnly:  true,
		},
		{
			file:   "mouth.png",
			title:  "Mouth Aspect Ratio",
			yLabel: "MAR",
			series: []signalSeries{
				{"MAR", func(s SignalSample) float64 { return s.MAR }, colorSmoothed},
			},
			threshold: sp.thresholds.MAR,
			faceOnly:  true,
		},
		{
			file:   "head.png",
			title:  "Head Pose",
			yLabel: "degrees / ratio",
			series: []signalSeries{
				{"smoothed angle", func(s SignalSample) float64 { return s.SmoothedAngle }, colorSmoothed},
				{"deviation x100", func(s SignalSample) float64 { return s.Deviation * 100 }, colorAlt},
			},
			threshold: sp.thresholds.Angle,
			faceOnly:  true,
		},
		{
			file:   "score.png",
			title:  "Drowsiness Score and Level",
			yLabel: "score",
			series: []signalSeries{
				{"score", func(s SignalSample) float64 { return float64(s.Score) }, colorScore},
				{"level x25", func(s SignalSample) float64 { return float64(s.Level) * 25 }, colorLevel},
			},
		},
	}
}

// GeneratePlots writes one PNG per chart and returns how many were written.
func (sp *SignalPlotter) GeneratePlots() (int, error) {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	if sp.outputDir == "" {
		return 0, ErrNoOutputDir
	}
	if len(sp.samples) == 0 {
		return 0, nil
	}

	count := 0
	for _, c := range sp.charts() {
		if err := sp.renderChart(c); err != nil {
			return count, fmt.Errorf("%s: %w", c.file, err)
		}
		count++
	}
	return count, nil
}

func (sp *SignalPlotter) renderChart(c signalChart) error {
	p := plot.New()
	p.Title.Text = c.title
	p.X.Label.Text = "Frame"
	p.Y.Label.Text = c.yLabel

	first, last := sp.samples[0].Frame, sp.samples[len(sp.samples)-1].Frame
	for _, series := range c.series {
		pts := make(plotter.XYs, 0, len(sp.samples))
		for _, s := range sp.samples {
			if c.faceOnly && !s.Face {
				continue
			}
			pts = append(pts, plotter.XY{X: float64(s.Frame), Y: series.value(s)})
		}
		if len(pts) == 0 {
			continue
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return err
		}
		line.Color = series.color
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(series.label, line)
	}

	if c.threshold != 0 && last >= first {
		limit, err := plotter.NewLine(plotter.XYs{
			{X: float64(first), Y: c.threshold},
			{X: float64(last), Y: c.threshold},
		})
		if err != nil {
			return err
		}
		limit.Color = colorLimit
		limit.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
		p.Add(limit)
		p.Legend.Add("threshold", limit)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	file := filepath.Join(sp.outputDir, c.file)
	if err := p.Save(14*vg.Inch, 6*vg.Inch, file); err != nil {
		return fmt.Errorf("save plot: %w", err)
	}
	return nil
}
