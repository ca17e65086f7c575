// Package ipus segments a mono audio channel into Inter-Pausal Units (IPUs):
// speech tracks bounded by silences longer than a minimum duration.
//
// The pipeline is VolumeAnalyzer (AnalyzeVolumes) → SilenceDetector →
// ExtractTracks, orchestrated by Searcher for a fixed parameter set and by
// Fitter when the number of expected IPUs is known in advance.
package ipus

import "math"

// Duration floors and ceilings, in seconds.
const (
	// MinSilDur is the smallest minimum silence duration the fitter may use.
	MinSilDur = 0.06
	// MinIPUDur is the smallest minimum IPU duration the fitter may use.
	MinIPUDur = 0.06
	// MaxSilDur bounds the fitter when it lengthens the minimum silence duration.
	MaxSilDur = 2.0
	// MaxIPUDur bounds the fitter when it lengthens the minimum IPU duration.
	MaxIPUDur = 2.0
)

// Default parameter values, in seconds.
const (
	DefaultWinLen     = 0.02
	DefaultVagueness  = 0.005
	DefaultMinSilDur  = 0.25
	DefaultMinIPUDur  = 0.30
	DefaultShiftStart = 0.02
	DefaultShiftEnd   = 0.02

	MinWinLen = 0.002
	MaxWinLen = 0.04
)

// BoundaryTolerance is the number of frames near the channel edges within
// which a track is considered to touch the edge.
const BoundaryTolerance = 10

// Params holds the segmentation parameters. Use DefaultParams and the
// setters; the setters keep the fields inside their accepted ranges.
type Params struct {
	WinLen       float64 `json:"win_len" yaml:"win_len"`
	Vagueness    float64 `json:"vagueness" yaml:"vagueness"`
	VolThreshold int     `json:"vol_threshold" yaml:"vol_threshold"` // 0 means auto
	MinSilDur    float64 `json:"min_sil_dur" yaml:"min_sil_dur"`
	MinIPUDur    float64 `json:"min_ipu_dur" yaml:"min_ipu_dur"`
	ShiftStart   float64 `json:"shift_start" yaml:"shift_start"`
	ShiftEnd     float64 `json:"shift_end" yaml:"shift_end"`
}

// DefaultParams returns the default segmentation parameters.
func DefaultParams() Params {
	return Params{
		WinLen:     DefaultWinLen,
		Vagueness:  DefaultVagueness,
		MinSilDur:  DefaultMinSilDur,
		MinIPUDur:  DefaultMinIPUDur,
		ShiftStart: DefaultShiftStart,
		ShiftEnd:   DefaultShiftEnd,
	}
}

// SetWinLen sets the analysis window length, clamped to [MinWinLen, MaxWinLen].
// The vagueness is lowered if it would exceed the new window.
func (p *Params) SetWinLen(v float64) {
	p.WinLen = math.Min(math.Max(v, MinWinLen), MaxWinLen)
	if p.Vagueness > p.WinLen {
		p.Vagueness = p.WinLen
	}
}

// SetVagueness sets the boundary refinement resolution, at most WinLen.
func (p *Params) SetVagueness(v float64) {
	if v <= 0 {
		return
	}
	p.Vagueness = math.Min(v, p.WinLen)
}

// SetVolThreshold sets a fixed RMS threshold; 0 (or less) selects auto-estimation.
func (p *Params) SetVolThreshold(v int) {
	if v < 0 {
		v = 0
	}
	p.VolThreshold = v
}

// SetMinSilDur sets the minimum silence duration, never below MinSilDur.
func (p *Params) SetMinSilDur(v float64) {
	p.MinSilDur = math.Max(v, MinSilDur)
}

// SetMinIPUDur sets the minimum IPU duration, never below MinIPUDur.
func (p *Params) SetMinIPUDur(v float64) {
	p.MinIPUDur = math.Max(v, MinIPUDur)
}

// SetShiftStart sets the shift applied to track starts. Values outside
// (-MinIPUDur, MinSilDur) are ignored and the previous value is kept.
// It reports whether the value was accepted.
func (p *Params) SetShiftStart(v float64) bool {
	if !p.shiftAccepted(v) {
		return false
	}
	p.ShiftStart = v
	return true
}

// SetShiftEnd sets the shift applied to track ends, with the same range
// rule as SetShiftStart.
func (p *Params) SetShiftEnd(v float64) bool {
	if !p.shiftAccepted(v) {
		return false
	}
	p.ShiftEnd = v
	return true
}

func (p *Params) shiftAccepted(v float64) bool {
	return v > -p.MinIPUDur && v < p.MinSilDur
}

// Normalize returns a copy of p with every field brought back into its
// accepted range, in the order the setters require.
func (p Params) Normalize() Params {
	out := DefaultParams()
	out.SetWinLen(p.WinLen)
	if p.Vagueness > 0 {
		out.SetVagueness(p.Vagueness)
	} else {
		out.SetVagueness(DefaultVagueness)
	}
	out.SetVolThreshold(p.VolThreshold)
	out.SetMinSilDur(p.MinSilDur)
	out.SetMinIPUDur(p.MinIPUDur)
	out.SetShiftStart(p.ShiftStart)
	out.SetShiftEnd(p.ShiftEnd)
	return out
}

// durationToFrames converts seconds into a frame count, truncating toward zero.
func durationToFrames(d float64, framerate int) int {
	f := d * float64(framerate)
	if f < 0 {
		return -int(math.Floor(-f + 1e-9))
	}
	return int(math.Floor(f + 1e-9))
}
