package ipus

import (
	"fmt"
	"math"
)

// Direction selects the scan order of RefineBoundary.
type Direction int

const (
	// Backward scans from the end of the buffer and returns the end of the
	// last loud sub-window. It locates where speech stops.
	Backward Direction = -1
	// Forward scans from the start of the buffer and returns the start of
	// the first loud sub-window. It locates where speech resumes.
	Forward Direction = 1
)

// SilenceDetector finds silences in a channel by thresholding its volumes.
// The silence list is kept sorted and non-overlapping.
type SilenceDetector struct {
	ch        Channel
	winLen    float64
	vagueness float64
	volumes   *Volumes
	silences  []Interval
}

// NewSilenceDetector returns a detector over ch. ch may be nil and set later.
func NewSilenceDetector(ch Channel, winLen, vagueness float64) *SilenceDetector {
	d := &SilenceDetector{winLen: winLen}
	d.SetVagueness(vagueness)
	d.SetChannel(ch)
	return d
}

// SetChannel replaces the channel and resets every derived result.
func (d *SilenceDetector) SetChannel(ch Channel) {
	d.ch = ch
	d.volumes = nil
	d.silences = nil
}

// Channel returns the current channel, possibly nil.
func (d *SilenceDetector) Channel() Channel { return d.ch }

// SetWinLen changes the analysis window; volumes are recomputed on next use.
func (d *SilenceDetector) SetWinLen(winLen float64) {
	if winLen == d.winLen {
		return
	}
	d.winLen = winLen
	d.volumes = nil
	if d.vagueness > winLen {
		d.vagueness = winLen
	}
}

// SetVagueness sets the refinement resolution, capped at the window length.
func (d *SilenceDetector) SetVagueness(v float64) {
	d.vagueness = math.Min(v, d.winLen)
}

// Volumes returns the volume analysis of the channel, computing it if needed.
func (d *SilenceDetector) Volumes() (*Volumes, error) {
	if d.ch == nil {
		return nil, ErrNoChannel
	}
	if d.volumes == nil {
		v, err := AnalyzeVolumes(d.ch, d.winLen)
		if err != nil {
			return nil, err
		}
		d.volumes = v
	}
	return d.volumes, nil
}

// Silences returns a copy of the current silence list.
func (d *SilenceDetector) Silences() []Interval {
	out := make([]Interval, len(d.silences))
	copy(out, d.silences)
	return out
}

// EstimateThreshold derives an RMS threshold from the shape of the volume
// distribution. Energy distributions of recordings are rarely symmetric, so
// a skewed distribution has its loudest values clipped before the mean and
// median are used.
func (d *SilenceDetector) EstimateThreshold() (int, error) {
	vols, err := d.Volumes()
	if err != nil {
		return 0, err
	}
	return estimateThreshold(vols), nil
}

func estimateThreshold(vols *Volumes) int {
	if vols.Len() == 0 {
		return 0
	}
	vmin := math.Max(float64(vols.Min()), 0)
	vmean := vols.Mean()
	vmedian := vols.Median()
	vcvar := 1.5 * vols.CoefVariation()

	if vmedian > vmean {
		vols = vols.ClipAbove(int(vols.Quantile(0.85)))
		vmean = vols.Mean()
		vmedian = vols.Median()
		vcvar = 1.5 * vols.CoefVariation()
	}

	threshold := vmin + (vmean - vcvar)
	switch {
	case vmedian > vmean:
		threshold = vols.Quantile(0.55)
	case vcvar > vmean:
		if vmedian < 0.2*vmean {
			threshold = vmin + (vmean - vmedian)
		} else {
			threshold = vmin + 0.2*vmean
		}
	}

	if threshold < 0 {
		return 0
	}
	return int(threshold)
}

// Detect classifies every window with an RMS below threshold as silence
// and merges consecutive silent windows into frame intervals. Intervals
// shorter than two windows are discarded as noise.
func (d *SilenceDetector) Detect(threshold int) ([]Interval, error) {
	vols, err := d.Volumes()
	if err != nil {
		return nil, err
	}
	perWin := vols.FramesPerWindow()
	nframes := d.ch.NFrames()

	var found []Interval
	inside := false
	start := 0
	for i := 0; i < vols.Len(); i++ {
		if vols.At(i) < threshold {
			if !inside {
				start = i
				inside = true
			}
			continue
		}
		if inside {
			found = append(found, Interval{From: start * perWin, To: i * perWin})
			inside = false
		}
	}
	if inside {
		found = append(found, Interval{From: start * perWin, To: nframes})
	}

	d.silences = filterShorter(found, 2*d.winLen, d.ch.FrameRate(), false)
	return d.Silences(), nil
}

// RefineAndFilter moves the start of every detected silence to the exact
// end of speech, measured at vagueness resolution, then drops the silences
// lasting minSilDur seconds or less.
func (d *SilenceDetector) RefineAndFilter(threshold int, minSilDur float64) ([]Interval, error) {
	if d.ch == nil {
		return nil, ErrNoChannel
	}
	if d.vagueness > 0 && d.vagueness < d.winLen {
		prevTo := 0
		for i, s := range d.silences {
			from, err := d.refineStart(s, prevTo, threshold)
			if err != nil {
				return nil, fmt.Errorf("refine silence %d: %w", i, err)
			}
			d.silences[i].From = from
			prevTo = s.To
		}
	}
	d.silences = filterShorter(d.silences, minSilDur, d.ch.FrameRate(), true)
	return d.Silences(), nil
}

// refineStart re-reads a neighbourhood of 1.5 windows on each side of the
// silence start, bounded by the previous silence end and by the silence
// end, and returns the refined start.
func (d *SilenceDetector) refineStart(s Interval, lowest, threshold int) (int, error) {
	fr := d.ch.FrameRate()
	delta := durationToFrames(1.5*d.winLen, fr)
	from := max(s.From-delta, lowest, 0)
	to := min(s.From+delta, s.To)
	if to <= from {
		return s.From, nil
	}
	buf, err := readAt(d.ch, from, to-from)
	if err != nil {
		return 0, err
	}
	subWin := max(durationToFrames(d.vagueness, fr), 1)
	return RefineBoundary(buf, from, s.From, threshold, subWin, Backward), nil
}

// RefineBoundary locates a speech/silence boundary in samples, a buffer
// whose first sample is at frame offset. The buffer is cut into sub-windows
// of subWin frames; a sub-window is loud when its RMS reaches threshold.
// It returns approx when no sub-window is loud.
func RefineBoundary(samples []int, offset, approx, threshold, subWin int, dir Direction) int {
	vols := windowRMS(samples, subWin)
	switch dir {
	case Forward:
		for i, v := range vols {
			if v >= threshold {
				return offset + i*subWin
			}
		}
	case Backward:
		for i := len(vols) - 1; i >= 0; i-- {
			if vols[i] >= threshold {
				return offset + (i+1)*subWin
			}
		}
	}
	return approx
}

// filterShorter drops intervals shorter than minDur seconds, or not longer
// than minDur when inclusive is set.
func filterShorter(intervals []Interval, minDur float64, framerate int, inclusive bool) []Interval {
	out := intervals[:0:0]
	for _, s := range intervals {
		dur := s.Duration(framerate)
		if dur < minDur || (inclusive && dur <= minDur) {
			continue
		}
		out = append(out, s)
	}
	return out
}
