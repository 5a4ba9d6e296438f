package monitoring

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

func TestSignalPlotterDisabledByDefault(t *testing.T) {
	sp := NewSignalPlotter(SignalThresholds{})
	assert.False(t, sp.IsEnabled())
	sp.Sample(SignalSample{Frame: 1, Face: true})
	assert.Zero(t, sp.Len())

	_, err := sp.GeneratePlots()
	assert.ErrorIs(t, err, ErrNoOutputDir)
}

func TestSignalPlotterGeneratePlots(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "plots")
	sp := NewSignalPlotter(SignalThresholds{EAR: 0.21, MAR: 0.5, Angle: 10})
	require.NoError(t, sp.Start(dir))

	n, err := sp.GeneratePlots()
	require.NoError(t, err)
	assert.Zero(t, n, "nothing recorded yet")

	for i := int64(1); i <= 30; i++ {
		s := SignalSample{Frame: i, Face: i%10 != 0, EAR: 0.3 - float64(i)*0.005, SmoothedEAR: 0.28, MAR: 0.3,
			SmoothedAngle: float64(i) / 2, Deviation: 0.1, Score: int(i), Level: int(i / 10)}
		sp.Sample(s)
	}
	assert.Equal(t, 30, sp.Len())

	n, err = sp.GeneratePlots()
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	for _, name := range []string{"eyes.png", "mouth.png", "head.png", "score.png"} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err, name)
		assert.True(t, bytes.HasPrefix(data, pngMagic), name)
	}

	sp.Stop()
	sp.Sample(SignalSample{Frame: 31})
	assert.Equal(t, 30, sp.Len())
}

func TestSignalPlotterNoFaceOnly(t *testing.T) {
	sp := NewSignalPlotter(SignalThresholds{EAR: 0.21})
	require.NoError(t, sp.Start(t.TempDir()))
	sp.Sample(SignalSample{Frame: 1})
	sp.Sample(SignalSample{Frame: 2})

	// face charts have no points but still render
	n, err := sp.GeneratePlots()
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}
