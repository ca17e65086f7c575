package ipus

import "errors"

var (
	// ErrNoChannel is returned when an operation needs a channel and none is set.
	ErrNoChannel = errors.New("ipus: no channel set")
	// ErrNoAudioData is returned when fitting is requested without audio.
	ErrNoAudioData = errors.New("ipus: no audio data")
	// ErrPositionOutOfRange is returned when a frame position lies beyond the channel.
	ErrPositionOutOfRange = errors.New("ipus: position out of range")
)

// Channel is a decoded mono PCM channel. Implementations are not required
// to be safe for concurrent use: callers serialise Seek/Frames on a single
// instance.
type Channel interface {
	// NFrames returns the number of frames in the channel.
	NFrames() int
	// FrameRate returns the number of frames per second.
	FrameRate() int
	// Seek moves the read position to pos.
	Seek(pos int) error
	// Frames reads up to n consecutive samples from the current position.
	Frames(n int) ([]int, error)
}

// Interval is a frame-indexed [From, To] pair.
type Interval struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// Duration returns the interval length in seconds.
func (i Interval) Duration(framerate int) float64 {
	return float64(i.To-i.From) / float64(framerate)
}

// Track is a detected speech interval in frames.
type Track = Interval

// TimedTrack is a speech interval in seconds.
type TimedTrack struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// ToTimed rescales frame tracks to seconds.
func ToTimed(tracks []Track, framerate int) []TimedTrack {
	out := make([]TimedTrack, len(tracks))
	fr := float64(framerate)
	for i, t := range tracks {
		out[i] = TimedTrack{Start: float64(t.From) / fr, End: float64(t.To) / fr}
	}
	return out
}

// readAt reads n frames starting at pos from ch.
func readAt(ch Channel, pos, n int) ([]int, error) {
	if err := ch.Seek(pos); err != nil {
		return nil, err
	}
	return ch.Frames(n)
}
