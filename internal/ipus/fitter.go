package ipus

import (
	"fmt"
	"log/slog"
)

// Phase identifies a step of the fitting state machine.
type Phase string

const (
	// PhaseDefault runs the search with the estimated threshold.
	PhaseDefault Phase = "default"
	// PhaseThreshold binary-searches the threshold.
	PhaseThreshold Phase = "threshold"
	// PhaseDuration adjusts the minimum durations, re-running the threshold search.
	PhaseDuration Phase = "duration"
	// PhaseGiveUp is reached when no phase matched the expected count.
	PhaseGiveUp Phase = "give-up"
)

// FitState is the parameter tuple perturbed by the fitter.
type FitState struct {
	Threshold  int     `json:"threshold"`
	MinSilDur  float64 `json:"min_sil_dur"`
	MinIPUDur  float64 `json:"min_ipu_dur"`
	ShiftStart float64 `json:"shift_start"`
	ShiftEnd   float64 `json:"shift_end"`
}

// FitResult reports the outcome of a fit. A fit that does not converge is
// not an error: State is the best state reached and Count its track count.
type FitResult struct {
	Expected    int      `json:"expected"`
	Count       int      `json:"count"`
	Converged   bool     `json:"converged"`
	Phase       Phase    `json:"phase"`
	State       FitState `json:"state"`
	Evaluations int      `json:"evaluations"`
}

// evaluation is the outcome of running the pipeline for one state.
type evaluation struct {
	state FitState
	count int
	ok    bool
}

// Fitter tunes the threshold and minimum durations until the number of
// tracks matches the number of expected IPUs. The search is bounded and
// best-effort.
type Fitter struct {
	search *Searcher
	units  Units
	logger *slog.Logger

	expected int
	evals    int
	best     *evaluation
	final    FitState
}

// FitterOption configures a Fitter.
type FitterOption func(*Fitter)

// WithLogger sets the logger used to trace the fitting phases.
func WithLogger(logger *slog.Logger) FitterOption {
	return func(f *Fitter) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewFitter returns a Fitter over ch for the given expected units.
func NewFitter(ch Channel, params Params, units Units, opts ...FitterOption) *Fitter {
	f := &Fitter{
		search: NewSearcher(ch, params),
		units:  units,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.final = f.initialState()
	return f
}

// SetChannel replaces the channel.
func (f *Fitter) SetChannel(ch Channel) { f.search.SetChannel(ch) }

// Threshold returns the threshold of the final state.
func (f *Fitter) Threshold() int { return f.final.Threshold }

// MinSilDur returns the minimum silence duration of the final state.
func (f *Fitter) MinSilDur() float64 { return f.final.MinSilDur }

// MinIPUDur returns the minimum IPU duration of the final state.
func (f *Fitter) MinIPUDur() float64 { return f.final.MinIPUDur }

// State returns the final state.
func (f *Fitter) State() FitState { return f.final }

// Tracks returns the tracks of the final state in frames. Before Fit, an
// automatic threshold is estimated from the channel.
func (f *Fitter) Tracks() ([]Track, error) {
	threshold := f.final.Threshold
	if threshold == 0 {
		if f.search.Channel() == nil {
			return nil, ErrNoChannel
		}
		est, err := f.search.detector.EstimateThreshold()
		if err != nil {
			return nil, err
		}
		threshold = est
	}
	return f.search.tracksWith(threshold, f.final.MinSilDur, f.final.MinIPUDur)
}

// TimedTracks returns the tracks of the final state in seconds.
func (f *Fitter) TimedTracks() ([]TimedTrack, error) {
	tracks, err := f.Tracks()
	if err != nil {
		return nil, err
	}
	return ToTimed(tracks, f.search.Channel().FrameRate()), nil
}

func (f *Fitter) initialState() FitState {
	p := f.search.Params()
	return FitState{
		Threshold:  p.VolThreshold,
		MinSilDur:  p.MinSilDur,
		MinIPUDur:  p.MinIPUDur,
		ShiftStart: p.ShiftStart,
		ShiftEnd:   p.ShiftEnd,
	}
}

// fitRun is the mutable state of one Fit call.
type fitRun struct {
	state FitState
	last  evaluation
	vmin  float64 // lower threshold bound of the search
	vmax  float64 // upper threshold bound of the search
	vstep float64
}

// Fit searches for a state producing the expected number of tracks. It
// returns ErrNoAudioData when no channel is set; failing to converge is
// reported through FitResult.Converged.
func (f *Fitter) Fit() (FitResult, error) {
	if f.search.Channel() == nil {
		return FitResult{}, ErrNoAudioData
	}
	vols, err := f.search.Volumes()
	if err != nil {
		return FitResult{}, fmt.Errorf("analyze volumes: %w", err)
	}

	f.expected = f.units.NbIPUs()
	f.evals = 0
	f.best = nil

	vstep := (vols.Mean() - float64(vols.Min())) / 20
	run := &fitRun{
		state: f.initialState(),
		vmin:  float64(vols.Min()) + vstep,
		vmax:  vols.Mean() - vstep,
		vstep: vstep,
	}

	phases := []struct {
		phase Phase
		step  func(*fitRun) (bool, error)
	}{
		{PhaseDefault, f.runDefault},
		{PhaseThreshold, f.runThreshold},
		{PhaseDuration, f.runDuration},
	}
	for _, p := range phases {
		matched, err := p.step(run)
		if err != nil {
			return FitResult{}, fmt.Errorf("fit phase %s: %w", p.phase, err)
		}
		f.logger.Debug("fit phase done",
			slog.String("phase", string(p.phase)),
			slog.Int("expected", f.expected),
			slog.Int("count", run.last.count),
			slog.Bool("boundaries_ok", run.last.ok),
			slog.Int("evaluations", f.evals),
		)
		if matched {
			return f.finish(p.phase, true), nil
		}
	}
	return f.finish(PhaseGiveUp, false), nil
}

func (f *Fitter) finish(phase Phase, converged bool) FitResult {
	best := *f.best
	f.final = best.state
	return FitResult{
		Expected:    f.expected,
		Count:       best.count,
		Converged:   converged,
		Phase:       phase,
		State:       best.state,
		Evaluations: f.evals,
	}
}

// evaluate runs the pipeline for state and records the best outcome so far.
func (f *Fitter) evaluate(state FitState) (evaluation, error) {
	tracks, err := f.search.tracksWith(state.Threshold, state.MinSilDur, state.MinIPUDur)
	if err != nil {
		return evaluation{}, err
	}
	f.evals++
	e := evaluation{
		state: state,
		count: len(tracks),
		ok:    checkBoundaries(tracks, f.search.Channel().NFrames(), f.units),
	}
	if f.best == nil || f.better(e, *f.best) {
		f.best = &e
	}
	return e, nil
}

func (f *Fitter) better(a, b evaluation) bool {
	da, db := abs(a.count-f.expected), abs(b.count-f.expected)
	if da != db {
		return da < db
	}
	return a.ok && !b.ok
}

func (f *Fitter) matches(e evaluation) bool {
	return e.count == f.expected && e.ok
}

// runDefault evaluates the configured threshold, estimating it when unset.
func (f *Fitter) runDefault(run *fitRun) (bool, error) {
	if run.state.Threshold == 0 {
		t, err := f.search.detector.EstimateThreshold()
		if err != nil {
			return false, err
		}
		run.state.Threshold = t
	}
	e, err := f.evaluate(run.state)
	if err != nil {
		return false, err
	}
	run.last = e
	return f.matches(e), nil
}

// runThreshold binary-searches the threshold between the volume bounds for
// the current durations. Too many tracks lower the ceiling, too few raise
// the floor; a matching count with invalid boundaries nudges the floor by
// one step. The range shrinks at every iteration, so the loop ends.
func (f *Fitter) runThreshold(run *fitRun) (bool, error) {
	if run.vstep <= 0 {
		e, err := f.evaluate(run.state)
		if err != nil {
			return false, err
		}
		run.last = e
		return f.matches(e), nil
	}

	lo, hi := run.vmin, run.vmax
	for hi-lo >= run.vstep {
		mid := (lo + hi) / 2
		st := run.state
		st.Threshold = int(mid)
		e, err := f.evaluate(st)
		if err != nil {
			return false, err
		}
		run.last = e
		if f.matches(e) {
			run.state = st
			return true, nil
		}
		switch {
		case e.count > f.expected:
			hi = mid
		case e.count < f.expected:
			lo = mid
		default:
			lo += run.vstep
		}
	}
	return false, nil
}

// runDuration adjusts the minimum durations by one window per step and
// re-runs the threshold search after each step. Over-segmentation lengthens
// both durations up to their ceilings. Under-segmentation shortens the
// silence duration, then the IPU duration, then both, down to their floors.
func (f *Fitter) runDuration(run *fitRun) (bool, error) {
	step := f.search.Params().WinLen

	if run.last.count > f.expected {
		for run.last.count > f.expected && (run.state.MinSilDur < MaxSilDur || run.state.MinIPUDur < MaxIPUDur) {
			run.state.MinSilDur = min(run.state.MinSilDur+step, MaxSilDur)
			run.state.MinIPUDur = min(run.state.MinIPUDur+step, MaxIPUDur)
			if matched, err := f.runThreshold(run); matched || err != nil {
				return matched, err
			}
		}
		return false, nil
	}

	if run.last.count >= f.expected {
		return false, nil
	}

	origin := run.state
	shorten := []func(*FitState) bool{
		func(s *FitState) bool { return shortenSil(s, step) },
		func(s *FitState) bool { return shortenIPU(s, step) },
		func(s *FitState) bool {
			sil := shortenSil(s, step)
			ipu := shortenIPU(s, step)
			return sil || ipu
		},
	}
	for _, shrink := range shorten {
		run.state = origin
		for run.last.count < f.expected && shrink(&run.state) {
			if matched, err := f.runThreshold(run); matched || err != nil {
				return matched, err
			}
		}
		if run.last.count >= f.expected {
			return false, nil
		}
	}
	return false, nil
}

// shortenSil lowers the minimum silence duration by step toward its floor.
// It reports whether the duration changed.
func shortenSil(s *FitState, step float64) bool {
	if s.MinSilDur <= MinSilDur {
		return false
	}
	s.MinSilDur = max(s.MinSilDur-step, MinSilDur)
	return true
}

// shortenIPU lowers the minimum IPU duration by step toward its floor.
func shortenIPU(s *FitState, step float64) bool {
	if s.MinIPUDur <= MinIPUDur {
		return false
	}
	s.MinIPUDur = max(s.MinIPUDur-step, MinIPUDur)
	return true
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
