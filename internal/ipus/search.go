package ipus

// Searcher runs the full segmentation pipeline with a fixed parameter set.
type Searcher struct {
	params    Params
	detector  *SilenceDetector
	threshold int
}

// NewSearcher returns a Searcher over ch. ch may be nil and set later with
// SetChannel; params are normalised into their accepted ranges.
func NewSearcher(ch Channel, params Params) *Searcher {
	p := params.Normalize()
	return &Searcher{
		params:   p,
		detector: NewSilenceDetector(ch, p.WinLen, p.Vagueness),
	}
}

// SetChannel replaces the channel and clears every derived result.
func (s *Searcher) SetChannel(ch Channel) {
	s.detector.SetChannel(ch)
	s.threshold = 0
}

// Channel returns the current channel, possibly nil.
func (s *Searcher) Channel() Channel { return s.detector.Channel() }

// Params returns the current parameters.
func (s *Searcher) Params() Params { return s.params }

// SetParams replaces the parameters after normalising them.
func (s *Searcher) SetParams(p Params) {
	s.params = p.Normalize()
	s.detector.SetWinLen(s.params.WinLen)
	s.detector.SetVagueness(s.params.Vagueness)
}

// Threshold returns the RMS threshold used by the last run, estimated or fixed.
func (s *Searcher) Threshold() int { return s.threshold }

// Volumes returns the volume analysis of the channel.
func (s *Searcher) Volumes() (*Volumes, error) { return s.detector.Volumes() }

// Silences returns the filtered silences of the last run.
func (s *Searcher) Silences() []Interval { return s.detector.Silences() }

// Tracks segments the channel and returns speech tracks in frames.
func (s *Searcher) Tracks() ([]Track, error) {
	threshold := s.params.VolThreshold
	if threshold == 0 {
		est, err := s.detector.EstimateThreshold()
		if err != nil {
			return nil, err
		}
		threshold = est
	}
	return s.tracksWith(threshold, s.params.MinSilDur, s.params.MinIPUDur)
}

// TimedTracks segments the channel and returns speech tracks in seconds.
func (s *Searcher) TimedTracks() ([]TimedTrack, error) {
	tracks, err := s.Tracks()
	if err != nil {
		return nil, err
	}
	return ToTimed(tracks, s.Channel().FrameRate()), nil
}

func (s *Searcher) tracksWith(threshold int, minSilDur, minIPUDur float64) ([]Track, error) {
	ch := s.detector.Channel()
	if ch == nil {
		return nil, ErrNoChannel
	}
	if _, err := s.detector.Detect(threshold); err != nil {
		return nil, err
	}
	silences, err := s.detector.RefineAndFilter(threshold, minSilDur)
	if err != nil {
		return nil, err
	}
	s.threshold = threshold
	return ExtractTracks(silences, ch.NFrames(), ch.FrameRate(), minIPUDur, s.params.ShiftStart, s.params.ShiftEnd), nil
}
