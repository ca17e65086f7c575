// Package audio decodes WAV files into mono PCM channels usable by the
// segmentation engine and writes detected tracks back to disk.
package audio

import (
	"errors"
	"fmt"

	"github.com/maauso/ipusegment/internal/ipus"
)

// seekTolerance is how many frames past the end a seek may land before
// being rejected. Such seeks are clamped to the last frame.
const seekTolerance = ipus.BoundaryTolerance

// ErrSeekOutOfRange is returned when seeking outside the channel.
var ErrSeekOutOfRange = fmt.Errorf("seek out of range: %w", ipus.ErrPositionOutOfRange)

// ErrNegativeRead is returned when a negative number of frames is requested.
var ErrNegativeRead = errors.New("negative frame count")

// PCMChannel is an in-memory mono channel of integer samples. It is not
// safe for concurrent use.
type PCMChannel struct {
	samples  []int
	rate     int
	bitDepth int
	pos      int
}

// NewPCMChannel wraps samples recorded at rate frames per second.
func NewPCMChannel(samples []int, rate, bitDepth int) *PCMChannel {
	return &PCMChannel{samples: samples, rate: rate, bitDepth: bitDepth}
}

// NFrames returns the number of frames.
func (c *PCMChannel) NFrames() int { return len(c.samples) }

// FrameRate returns the number of frames per second.
func (c *PCMChannel) FrameRate() int { return c.rate }

// BitDepth returns the sample width in bits.
func (c *PCMChannel) BitDepth() int { return c.bitDepth }

// Duration returns the channel length in seconds.
func (c *PCMChannel) Duration() float64 {
	if c.rate == 0 {
		return 0
	}
	return float64(len(c.samples)) / float64(c.rate)
}

// Tell returns the current read position.
func (c *PCMChannel) Tell() int { return c.pos }

// Seek moves the read position to pos. Positions up to seekTolerance
// frames past the end are clamped to the end.
func (c *PCMChannel) Seek(pos int) error {
	n := len(c.samples)
	if pos < 0 || pos > n+seekTolerance {
		return fmt.Errorf("%w: %d not in [0, %d]", ErrSeekOutOfRange, pos, n)
	}
	c.pos = min(pos, n)
	return nil
}

// Frames returns up to n samples from the current position and advances it.
// The returned slice is a copy.
func (c *PCMChannel) Frames(n int) ([]int, error) {
	if n < 0 {
		return nil, ErrNegativeRead
	}
	end := min(c.pos+n, len(c.samples))
	out := make([]int, end-c.pos)
	copy(out, c.samples[c.pos:end])
	c.pos = end
	return out, nil
}

// Slice returns the samples in [from, to), clamped to the channel.
func (c *PCMChannel) Slice(from, to int) []int {
	from = max(from, 0)
	to = min(to, len(c.samples))
	if to <= from {
		return nil
	}
	return c.samples[from:to]
}

var _ ipus.Channel = (*PCMChannel)(nil)
