package ipus

import "math"

// ExtractTracks returns the speech tracks lying between silences, the
// complement of a sorted silence list over [0, nframes].
//
// A gap shorter than minTrackDur seconds is absorbed into the surrounding
// silence. Emitted tracks are widened by shiftStart/shiftEnd seconds
// (narrowed when negative), clamped to [0, nframes], and never overlap the
// previous track. A track narrowed to nothing is not emitted.
func ExtractTracks(silences []Interval, nframes, framerate int, minTrackDur, shiftStart, shiftEnd float64) []Track {
	if len(silences) == 0 {
		return []Track{{From: 0, To: nframes}}
	}

	minFrames := int(math.Ceil(minTrackDur*float64(framerate) - 1e-9))
	shiftFrom := durationToFrames(shiftStart, framerate)
	shiftTo := durationToFrames(shiftEnd, framerate)

	var tracks []Track
	emit := func(from, to int) {
		if to <= from || to-from < minFrames {
			return
		}
		lowest := 0
		if len(tracks) > 0 {
			lowest = tracks[len(tracks)-1].To
		}
		start := min(max(from-shiftFrom, lowest), nframes)
		end := min(to+shiftTo, nframes)
		if end <= start {
			return
		}
		tracks = append(tracks, Track{From: start, To: end})
	}

	from := 0
	for _, s := range silences {
		emit(from, s.From)
		from = s.To
	}
	emit(from, nframes)

	if tracks == nil {
		tracks = []Track{}
	}
	return tracks
}
