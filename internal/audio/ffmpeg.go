package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
)

// ErrFFmpegNotFound is returned when the ffmpeg binary cannot be located.
var ErrFFmpegNotFound = errors.New("ffmpeg not found")

var durationRe = regexp.MustCompile(`Duration:\s*(\d+):(\d+):(\d+)\.(\d+)`)

// FFmpegConverter normalises arbitrary audio input into mono PCM WAV using
// the ffmpeg CLI.
type FFmpegConverter struct {
	ffmpegPath string
}

// NewFFmpegConverter creates a new FFmpegConverter.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found in PATH).
func NewFFmpegConverter(ffmpegPath string) *FFmpegConverter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &FFmpegConverter{ffmpegPath: ffmpegPath}
}

// Available reports whether the ffmpeg binary can be executed.
func (c *FFmpegConverter) Available() bool {
	_, err := exec.LookPath(c.ffmpegPath)
	return err == nil
}

// ToMonoWAV converts input into a 16-bit mono WAV file at output. A
// positive rate resamples to that frame rate; zero keeps the source rate.
func (c *FFmpegConverter) ToMonoWAV(ctx context.Context, input, output string, rate int) error {
	if !c.Available() {
		return ErrFFmpegNotFound
	}
	if _, err := os.Stat(input); err != nil {
		return fmt.Errorf("input file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(output), 0750); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	args := []string{"-y", "-hide_banner", "-i", input, "-ac", "1"}
	if rate > 0 {
		args = append(args, "-ar", strconv.Itoa(rate))
	}
	args = append(args, "-c:a", "pcm_s16le", output)

	cmd := exec.CommandContext(ctx, c.ffmpegPath, args...) // #nosec G204 - binary path comes from configuration
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg error: %w, stderr: %s", err, stderr.String())
	}
	return nil
}

// Probe returns the duration of an audio file in seconds.
func (c *FFmpegConverter) Probe(ctx context.Context, input string) (float64, error) {
	if !c.Available() {
		return 0, ErrFFmpegNotFound
	}
	cmd := exec.CommandContext(ctx, c.ffmpegPath, "-hide_banner", "-i", input, "-f", "null", "-") // #nosec G204
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	// ffmpeg writes stream info to stderr and exits non-zero with a null output.
	_ = cmd.Run()
	return parseDuration(stderr.String())
}

// parseDuration extracts "Duration: HH:MM:SS.frac" from ffmpeg output.
func parseDuration(output string) (float64, error) {
	m := durationRe.FindStringSubmatch(output)
	if len(m) < 5 {
		return 0, fmt.Errorf("could not parse duration from ffmpeg output: %s", output)
	}

	hours, _ := strconv.ParseFloat(m[1], 64)
	minutes, _ := strconv.ParseFloat(m[2], 64)
	seconds, _ := strconv.ParseFloat(m[3], 64)
	frac, _ := strconv.ParseFloat(m[4], 64)

	divisor := 1.0
	for range len(m[4]) {
		divisor *= 10
	}
	return hours*3600 + minutes*60 + seconds + frac/divisor, nil
}
