package audio

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/require"
)

// tone returns n samples of a 500 Hz sine at the given amplitude. At
// 16 kHz every 20 ms window holds a whole number of periods, so all
// windows share the same RMS.
func tone(n, rate int, amplitude float64) []int {
	out := make([]int, n)
	for i := range out {
		phase := (i * 500) % rate
		out[i] = int(amplitude * math.Sin(2*math.Pi*float64(phase)/float64(rate)))
	}
	return out
}

// speechAndPauses builds tone/silence/tone/silence/tone samples of one
// second each at rate.
func speechAndPauses(rate int) []int {
	var samples []int
	for i := range 5 {
		if i%2 == 0 {
			samples = append(samples, tone(rate, rate, 8000)...)
		} else {
			samples = append(samples, make([]int, rate)...)
		}
	}
	return samples
}

func writeTestWAV(t *testing.T, samples []int, rate int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.wav")
	require.NoError(t, WriteWAV(path, samples, rate, 16))
	return path
}

func writeStereoWAV(t *testing.T, rate int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stereo.wav")
	f, err := os.Create(path)
	require.NoError(t, err)

	enc := wav.NewEncoder(f, rate, 16, 2, 1)
	require.NoError(t, enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 2, SampleRate: rate},
		Data:           make([]int, 2*rate),
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())
	return path
}
