package audio

import (
	"testing"

	"github.com/maauso/ipusegment/internal/ipus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPCMChannel_Seek(t *testing.T) {
	tests := []struct {
		name    string
		pos     int
		wantPos int
		wantErr bool
	}{
		{"start", 0, 0, false},
		{"middle", 50, 50, false},
		{"end", 100, 100, false},
		{"within tolerance past end", 110, 100, false},
		{"beyond tolerance", 111, 0, true},
		{"negative", -1, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := NewPCMChannel(make([]int, 100), 100, 16)

			err := ch.Seek(tt.pos)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrSeekOutOfRange)
				assert.ErrorIs(t, err, ipus.ErrPositionOutOfRange)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantPos, ch.Tell())
		})
	}
}

func TestPCMChannel_Frames(t *testing.T) {
	ch := NewPCMChannel([]int{1, 2, 3, 4, 5}, 5, 16)

	got, err := ch.Frames(2)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, got)

	got, err = ch.Frames(10)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4, 5}, got)

	got, err = ch.Frames(1)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = ch.Frames(-1)
	assert.ErrorIs(t, err, ErrNegativeRead)
}

func TestPCMChannel_FramesIsACopy(t *testing.T) {
	samples := []int{1, 2, 3}
	ch := NewPCMChannel(samples, 3, 16)

	got, err := ch.Frames(3)
	require.NoError(t, err)
	got[0] = 99

	assert.Equal(t, 1, samples[0])
}

func TestPCMChannel_Slice(t *testing.T) {
	ch := NewPCMChannel([]int{1, 2, 3, 4}, 4, 16)

	assert.Equal(t, []int{2, 3}, ch.Slice(1, 3))
	assert.Equal(t, []int{1, 2, 3, 4}, ch.Slice(-5, 50))
	assert.Nil(t, ch.Slice(3, 2))
	assert.InDelta(t, 1.0, ch.Duration(), 1e-9)
}

func TestPCMChannel_Segmentation(t *testing.T) {
	rate := 16000
	ch := NewPCMChannel(speechAndPauses(rate), rate, 16)

	s := ipus.NewSearcher(ch, ipus.DefaultParams())
	tracks, err := s.TimedTracks()
	require.NoError(t, err)

	require.Len(t, tracks, 3)
	for i, want := range []float64{0, 2, 4} {
		assert.InDelta(t, want, tracks[i].Start, 0.05, "track %d start", i)
		assert.InDelta(t, want+1, tracks[i].End, 0.05, "track %d end", i)
	}
}
