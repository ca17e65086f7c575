package audio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/maauso/ipusegment/internal/ipus"
)

// Splitter writes detected tracks of a channel to individual files.
type Splitter interface {
	// Split writes one file per track into outputDir and returns their paths
	// in track order. The caller is responsible for cleaning up the files.
	Split(ctx context.Context, ch *PCMChannel, tracks []ipus.Track, outputDir string) ([]string, error)
}

// WAVSplitter implements Splitter by encoding each track as a mono WAV file
// named chunk_NNN.wav.
type WAVSplitter struct{}

// NewWAVSplitter creates a new WAVSplitter.
func NewWAVSplitter() *WAVSplitter {
	return &WAVSplitter{}
}

// Split implements Splitter.
func (s *WAVSplitter) Split(ctx context.Context, ch *PCMChannel, tracks []ipus.Track, outputDir string) ([]string, error) {
	if err := os.MkdirAll(outputDir, 0750); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	chunks := make([]string, 0, len(tracks))
	for i, tr := range tracks {
		if err := ctx.Err(); err != nil {
			removeAll(chunks)
			return nil, fmt.Errorf("context cancelled: %w", err)
		}
		out := filepath.Join(outputDir, fmt.Sprintf("chunk_%03d.wav", i))
		if err := WriteWAV(out, ch.Slice(tr.From, tr.To), ch.FrameRate(), ch.BitDepth()); err != nil {
			removeAll(chunks)
			return nil, fmt.Errorf("write track %d: %w", i, err)
		}
		chunks = append(chunks, out)
	}
	return chunks, nil
}

func removeAll(paths []string) {
	for _, p := range paths {
		_ = os.Remove(p)
	}
}

// ListChunks lists all chunk files in a directory sorted by name.
func ListChunks(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var chunks []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasPrefix(entry.Name(), "chunk_") && strings.HasSuffix(entry.Name(), ".wav") {
			chunks = append(chunks, filepath.Join(dir, entry.Name()))
		}
	}

	sort.Strings(chunks)
	return chunks, nil
}

// Verify interface implementation at compile time.
var _ Splitter = (*WAVSplitter)(nil)
