package ipus

import "strings"

// SilenceMarker is the unit label standing for a silence.
const SilenceMarker = "#"

// Units is the externally known sequence of expected unit labels. Every
// label other than SilenceMarker is one speech unit.
type Units []string

// ParseUnits splits a whitespace separated transcription into units.
func ParseUnits(s string) Units {
	return Units(strings.Fields(s))
}

// NbIPUs returns the number of speech units.
func (u Units) NbIPUs() int {
	n := 0
	for _, label := range u {
		if !isSilence(label) {
			n++
		}
	}
	return n
}

// StartsWithSilence reports whether the first unit is a silence.
func (u Units) StartsWithSilence() bool {
	return len(u) > 0 && isSilence(u[0])
}

// EndsWithSilence reports whether the last unit is a silence.
func (u Units) EndsWithSilence() bool {
	return len(u) > 0 && isSilence(u[len(u)-1])
}

func isSilence(label string) bool {
	return strings.TrimSpace(label) == SilenceMarker
}

// checkBoundaries reports whether tracks honour the expected leading and
// trailing silences: a track may not touch an edge where a silence is expected.
func checkBoundaries(tracks []Track, nframes int, u Units) bool {
	if len(tracks) == 0 {
		return true
	}
	if u.StartsWithSilence() && tracks[0].From < BoundaryTolerance {
		return false
	}
	if u.EndsWithSilence() && nframes-tracks[len(tracks)-1].To < BoundaryTolerance {
		return false
	}
	return true
}
