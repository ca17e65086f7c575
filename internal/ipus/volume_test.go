package ipus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeVolumes_Length(t *testing.T) {
	tests := []struct {
		name    string
		rate    int
		nframes int
		winLen  float64
	}{
		{"100Hz 20ms", 100, 1000, 0.02},
		{"16kHz 20ms with partial window", 16000, 16000*3 + 123, 0.02},
		{"8kHz 4ms", 8000, 8000, 0.004},
		{"shorter than a window", 16000, 100, 0.02},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := newTestChannel(tt.rate, span{tt.nframes, 250})

			vols, err := AnalyzeVolumes(ch, tt.winLen)
			require.NoError(t, err)

			perWin := durationToFrames(tt.winLen, tt.rate)
			assert.Equal(t, tt.nframes/perWin, vols.Len())
			assert.Equal(t, perWin, vols.FramesPerWindow())
			for i := 0; i < vols.Len(); i++ {
				assert.GreaterOrEqual(t, vols.At(i), 0)
			}
		})
	}
}

func TestAnalyzeVolumes_NoChannel(t *testing.T) {
	_, err := AnalyzeVolumes(nil, DefaultWinLen)
	assert.ErrorIs(t, err, ErrNoChannel)
}

func TestAnalyzeVolumes_Stats(t *testing.T) {
	// 50 windows at 100 then 50 windows at 300.
	ch := newTestChannel(100, span{100, 100}, span{100, 300})

	vols, err := AnalyzeVolumes(ch, 0.02)
	require.NoError(t, err)

	assert.Equal(t, 100, vols.Len())
	assert.Equal(t, 100, vols.Min())
	assert.Equal(t, 300, vols.Max())
	assert.InDelta(t, 200.0, vols.Mean(), 1e-9)
	assert.InDelta(t, 200.0, vols.Median(), 1e-9)
	assert.InDelta(t, 100.0, vols.StdDev(), 1e-9)
	assert.InDelta(t, 0.5, vols.CoefVariation(), 1e-9)
	assert.Equal(t, 100.0, vols.Quantile(0.5))
	assert.Equal(t, 300.0, vols.Quantile(0.85))
}

func TestVolumes_ClipAbove(t *testing.T) {
	ch := newTestChannel(100, span{100, 100}, span{100, 300})
	vols, err := AnalyzeVolumes(ch, 0.02)
	require.NoError(t, err)

	clipped := vols.ClipAbove(150)

	assert.Equal(t, 150, clipped.Max())
	assert.Equal(t, 300, vols.Max(), "original sequence is unchanged")
	assert.InDelta(t, 125.0, clipped.Mean(), 1e-9)
}

func TestRMS(t *testing.T) {
	assert.Equal(t, 0, RMS(nil))
	assert.Equal(t, 5, RMS([]int{5, -5, 5, -5}))
	assert.Equal(t, 3, RMS([]int{3, 4}), "sqrt(12.5) truncates")
}

func TestWindowRMS_DropsPartialWindow(t *testing.T) {
	out := windowRMS([]int{1, 1, 2, 2, 3}, 2)
	assert.Equal(t, []int{1, 2}, out)
}
