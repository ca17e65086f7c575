package main

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/ipusegment/internal/audio"
	"github.com/maauso/ipusegment/internal/ipus"
	"github.com/maauso/ipusegment/internal/job"
)

func writeSpeech(t *testing.T) string {
	t.Helper()
	const rate = 16000
	var samples []int
	for i := range 5 {
		if i%2 == 1 {
			samples = append(samples, make([]int, rate)...)
			continue
		}
		for k := range rate {
			phase := (k * 500) % rate
			samples = append(samples, int(8000*math.Sin(2*math.Pi*float64(phase)/rate)))
		}
	}
	path := filepath.Join(t.TempDir(), "speech.wav")
	require.NoError(t, audio.WriteWAV(path, samples, rate, 16))
	return path
}

func unset() *CLI {
	return &CLI{Threshold: -1, MinSil: -1, MinIPU: -1}
}

func TestCLI_Params(t *testing.T) {
	c := unset()
	p, err := c.params()
	require.NoError(t, err)
	assert.Equal(t, ipus.DefaultParams(), p)

	file := filepath.Join(t.TempDir(), "params.yaml")
	require.NoError(t, os.WriteFile(file, []byte("min_sil_dur: 0.4\nvol_threshold: 90\n"), 0o600))
	c = unset()
	c.Params = file
	c.MinIPU = 0.5
	p, err = c.params()
	require.NoError(t, err)
	assert.Equal(t, 0.4, p.MinSilDur)
	assert.Equal(t, 90, p.VolThreshold)
	assert.Equal(t, 0.5, p.MinIPUDur)

	c.Threshold = 0
	p, err = c.params()
	require.NoError(t, err)
	assert.Equal(t, 0, p.VolThreshold, "flag overrides the file")
}

func TestCLI_Segment(t *testing.T) {
	input := writeSpeech(t)

	t.Run("search with split", func(t *testing.T) {
		c := unset()
		c.Frames = true
		c.SplitDir = t.TempDir()

		var out bytes.Buffer
		require.NoError(t, c.segment(context.Background(), input, &out))

		assert.Contains(t, out.String(), "Tracks (3)")
		chunks, err := audio.ListChunks(filepath.Join(c.SplitDir, "speech"))
		require.NoError(t, err)
		assert.Len(t, chunks, 3)
	})

	t.Run("fit", func(t *testing.T) {
		c := unset()
		c.Units = "a b c"

		var out bytes.Buffer
		require.NoError(t, c.segment(context.Background(), input, &out))

		assert.Contains(t, out.String(), "converged")
		assert.Contains(t, out.String(), "3 of 3 expected")
	})

	t.Run("units without speech", func(t *testing.T) {
		c := unset()
		c.Units = "# #"

		err := c.segment(context.Background(), input, &bytes.Buffer{})
		assert.ErrorIs(t, err, job.ErrUnitsRequired)
	})

	t.Run("not a wav", func(t *testing.T) {
		bad := filepath.Join(t.TempDir(), "bad.wav")
		require.NoError(t, os.WriteFile(bad, []byte("nope"), 0o600))

		err := unset().segment(context.Background(), bad, &bytes.Buffer{})
		assert.ErrorIs(t, err, audio.ErrInvalidWAV)
	})
}
