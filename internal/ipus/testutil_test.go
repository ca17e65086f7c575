package ipus

// memChannel is an in-memory Channel for tests.
type memChannel struct {
	samples []int
	rate    int
	pos     int
}

func (c *memChannel) NFrames() int   { return len(c.samples) }
func (c *memChannel) FrameRate() int { return c.rate }

func (c *memChannel) Seek(pos int) error {
	if pos < 0 || pos > len(c.samples) {
		return ErrPositionOutOfRange
	}
	c.pos = pos
	return nil
}

func (c *memChannel) Frames(n int) ([]int, error) {
	end := min(c.pos+n, len(c.samples))
	out := make([]int, end-c.pos)
	copy(out, c.samples[c.pos:end])
	c.pos = end
	return out, nil
}

// span is a run of frames at a constant level.
type span struct {
	frames int
	level  int
}

// newTestChannel builds a channel whose RMS follows the given spans.
func newTestChannel(rate int, spans ...span) *memChannel {
	var samples []int
	for _, s := range spans {
		for i := 0; i < s.frames; i++ {
			samples = append(samples, s.level)
		}
	}
	return &memChannel{samples: samples, rate: rate}
}

// scenarioA is 10 s at 100 Hz, loud except frames [200,400).
func scenarioA() *memChannel {
	return newTestChannel(100,
		span{200, 1000},
		span{200, 10},
		span{600, 1000},
	)
}
