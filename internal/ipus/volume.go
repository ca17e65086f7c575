package ipus

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Volumes is the sequence of per-window RMS values of a channel together
// with its distribution statistics. It is immutable once built.
type Volumes struct {
	values []int
	winLen float64
	perWin int
	sorted []float64
	min    int
	max    int
	mean   float64
	median float64
	stdev  float64
}

// AnalyzeVolumes computes the RMS of every non-overlapping window of winLen
// seconds over ch. A trailing partial window is dropped.
func AnalyzeVolumes(ch Channel, winLen float64) (*Volumes, error) {
	if ch == nil {
		return nil, ErrNoChannel
	}
	perWin := durationToFrames(winLen, ch.FrameRate())
	if perWin < 1 {
		perWin = 1
	}
	count := ch.NFrames() / perWin

	var samples []int
	if count > 0 {
		var err error
		samples, err = readAt(ch, 0, count*perWin)
		if err != nil {
			return nil, fmt.Errorf("read channel: %w", err)
		}
	}
	return newVolumes(windowRMS(samples, perWin), winLen, perWin), nil
}

func newVolumes(values []int, winLen float64, perWin int) *Volumes {
	v := &Volumes{values: values, winLen: winLen, perWin: perWin}
	v.computeStats()
	return v
}

func (v *Volumes) computeStats() {
	if len(v.values) == 0 {
		return
	}
	xs := make([]float64, len(v.values))
	v.min, v.max = v.values[0], v.values[0]
	for i, x := range v.values {
		xs[i] = float64(x)
		if x < v.min {
			v.min = x
		}
		if x > v.max {
			v.max = x
		}
	}
	mean, variance := stat.PopMeanVariance(xs, nil)
	v.mean = mean
	v.stdev = math.Sqrt(variance)

	sort.Float64s(xs)
	v.sorted = xs
	n := len(xs)
	if n%2 == 1 {
		v.median = xs[n/2]
	} else {
		v.median = (xs[n/2-1] + xs[n/2]) / 2
	}
}

// Len returns the number of windows.
func (v *Volumes) Len() int { return len(v.values) }

// At returns the RMS of window i.
func (v *Volumes) At(i int) int { return v.values[i] }

// Values returns a copy of the RMS sequence.
func (v *Volumes) Values() []int {
	out := make([]int, len(v.values))
	copy(out, v.values)
	return out
}

// WinLen returns the window length in seconds.
func (v *Volumes) WinLen() float64 { return v.winLen }

// FramesPerWindow returns the number of frames in one window.
func (v *Volumes) FramesPerWindow() int { return v.perWin }

// Min returns the smallest RMS value.
func (v *Volumes) Min() int { return v.min }

// Max returns the largest RMS value.
func (v *Volumes) Max() int { return v.max }

// Mean returns the mean RMS value.
func (v *Volumes) Mean() float64 { return v.mean }

// Median returns the median RMS value.
func (v *Volumes) Median() float64 { return v.median }

// StdDev returns the population standard deviation of the RMS values.
func (v *Volumes) StdDev() float64 { return v.stdev }

// CoefVariation returns stdev/mean, or 0 for a zero mean.
func (v *Volumes) CoefVariation() float64 {
	if v.mean == 0 {
		return 0
	}
	return v.stdev / v.mean
}

// Quantile returns the empirical q-quantile of the volumes.
func (v *Volumes) Quantile(q float64) float64 {
	if len(v.sorted) == 0 {
		return 0
	}
	return stat.Quantile(q, stat.Empirical, v.sorted, nil)
}

// ClipAbove returns a new sequence where every value above ceil is replaced by ceil.
func (v *Volumes) ClipAbove(ceil int) *Volumes {
	clipped := make([]int, len(v.values))
	for i, x := range v.values {
		if x > ceil {
			x = ceil
		}
		clipped[i] = x
	}
	return newVolumes(clipped, v.winLen, v.perWin)
}

// RMS returns the root-mean-square of samples, truncated to an integer.
func RMS(samples []int) int {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		x := float64(s)
		sum += x * x
	}
	return int(math.Sqrt(sum / float64(len(samples))))
}

// windowRMS splits samples into consecutive windows of perWin frames and
// returns the RMS of each full window.
func windowRMS(samples []int, perWin int) []int {
	if perWin < 1 {
		return nil
	}
	n := len(samples) / perWin
	out := make([]int, n)
	for i := 0; i < n; i++ {
		out[i] = RMS(samples[i*perWin : (i+1)*perWin])
	}
	return out
}
