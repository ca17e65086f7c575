package audio

import (
	"errors"
	"fmt"
	"io"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

var (
	// ErrInvalidWAV is returned when the input is not a readable WAV file.
	ErrInvalidWAV = errors.New("not a valid WAV file")
	// ErrNotMono is returned when the input has more than one channel.
	ErrNotMono = errors.New("audio must be mono")
)

// DefaultBitDepth is used when writing tracks of a channel with unknown depth.
const DefaultBitDepth = 16

// Metadata describes a decoded WAV file.
type Metadata struct {
	SampleRate  int     `json:"sample_rate"`
	BitDepth    int     `json:"bit_depth"`
	NumChannels int     `json:"num_channels"`
	NFrames     int     `json:"nframes"`
	Duration    float64 `json:"duration"`
}

// DecodeWAV reads a mono PCM WAV stream into a channel.
func DecodeWAV(r io.ReadSeeker) (*PCMChannel, Metadata, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, Metadata{}, ErrInvalidWAV
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, Metadata{}, fmt.Errorf("read PCM buffer: %w", err)
	}
	if buf.Format == nil {
		return nil, Metadata{}, ErrInvalidWAV
	}
	if buf.Format.NumChannels != 1 {
		return nil, Metadata{}, fmt.Errorf("%w: got %d channels", ErrNotMono, buf.Format.NumChannels)
	}

	depth := int(dec.BitDepth)
	if depth == 0 {
		depth = DefaultBitDepth
	}
	ch := NewPCMChannel(buf.Data, buf.Format.SampleRate, depth)
	meta := Metadata{
		SampleRate:  buf.Format.SampleRate,
		BitDepth:    depth,
		NumChannels: buf.Format.NumChannels,
		NFrames:     ch.NFrames(),
		Duration:    ch.Duration(),
	}
	return ch, meta, nil
}

// OpenWAV decodes the WAV file at path.
func OpenWAV(path string) (*PCMChannel, Metadata, error) {
	f, err := os.Open(path) // #nosec G304 - path is provided by the caller
	if err != nil {
		return nil, Metadata{}, fmt.Errorf("open audio file: %w", err)
	}
	defer func() { _ = f.Close() }()
	return DecodeWAV(f)
}

// WriteWAV encodes mono samples as a PCM WAV file at path.
func WriteWAV(path string, samples []int, rate, bitDepth int) error {
	if bitDepth == 0 {
		bitDepth = DefaultBitDepth
	}
	f, err := os.Create(path) // #nosec G304 - path is provided by the caller
	if err != nil {
		return fmt.Errorf("create wav file: %w", err)
	}

	enc := wav.NewEncoder(f, rate, bitDepth, 1, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: rate},
		Data:           samples,
		SourceBitDepth: bitDepth,
	}
	if err := enc.Write(buf); err != nil {
		_ = f.Close()
		return fmt.Errorf("write samples: %w", err)
	}
	if err := enc.Close(); err != nil {
		_ = f.Close()
		return fmt.Errorf("close encoder: %w", err)
	}
	return f.Close()
}
