package audio

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/maauso/ipusegment/internal/ipus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWAVSplitter_Split(t *testing.T) {
	rate := 8000
	ch := NewPCMChannel(speechAndPauses(rate), rate, 16)
	tracks := []ipus.Track{{From: 0, To: 8000}, {From: 16000, To: 24000}, {From: 32000, To: 36000}}
	outDir := filepath.Join(t.TempDir(), "chunks")

	chunks, err := NewWAVSplitter().Split(context.Background(), ch, tracks, outDir)
	require.NoError(t, err)

	require.Len(t, chunks, 3)
	assert.Equal(t, filepath.Join(outDir, "chunk_000.wav"), chunks[0])

	listed, err := ListChunks(outDir)
	require.NoError(t, err)
	assert.Equal(t, chunks, listed)

	last, meta, err := OpenWAV(chunks[2])
	require.NoError(t, err)
	assert.Equal(t, 4000, last.NFrames())
	assert.Equal(t, rate, meta.SampleRate)
}

func TestWAVSplitter_CancelledContext(t *testing.T) {
	ch := NewPCMChannel(make([]int, 100), 100, 16)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewWAVSplitter().Split(ctx, ch, []ipus.Track{{From: 0, To: 50}}, t.TempDir())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestListChunks_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"chunk_001.wav", "chunk_000.wav", "notes.txt", "chunk_002.mp3"} {
		require.NoError(t, WriteWAV(filepath.Join(dir, name), []int{0}, 8000, 16))
	}

	got, err := ListChunks(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "chunk_000.wav"), filepath.Join(dir, "chunk_001.wav")}, got)
}

func TestListChunks_MissingDir(t *testing.T) {
	_, err := ListChunks(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
