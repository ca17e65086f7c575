package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/maauso/ipusegment/internal/audio"
	"github.com/maauso/ipusegment/internal/ipus"
)

// Report is the outcome of segmenting one file.
type Report struct {
	File      string
	Audio     audio.Metadata
	Params    ipus.Params
	Threshold int
	Tracks    []ipus.TimedTrack
	// Frames is printed next to Tracks when ShowFrames is set.
	Frames     []ipus.Track
	ShowFrames bool
	Fit        *ipus.FitResult
	// SplitFiles lists the exported track files, if any.
	SplitFiles []string
}

// WriteReport renders r to w.
func WriteReport(w io.Writer, r Report) error {
	var sb strings.Builder

	sb.WriteString(TitleStyle.Render(r.File))
	sb.WriteString("\n")
	writePair(&sb, "Duration", fmt.Sprintf("%.3f s", r.Audio.Duration))
	writePair(&sb, "Sample rate", fmt.Sprintf("%d Hz, %d bit", r.Audio.SampleRate, r.Audio.BitDepth))
	writePair(&sb, "Threshold", fmt.Sprintf("%d", r.Threshold))
	writePair(&sb, "Min silence", fmt.Sprintf("%.3f s", r.Params.MinSilDur))
	writePair(&sb, "Min IPU", fmt.Sprintf("%.3f s", r.Params.MinIPUDur))

	if fit := r.Fit; fit != nil {
		sb.WriteString(SectionStyle.Render("Fit"))
		sb.WriteString("\n")
		outcome := ValueStyle.Render("converged")
		if !fit.Converged {
			outcome = WarnStyle.Render("not converged, closest state kept")
		}
		writePair(&sb, "Outcome", outcome)
		writePair(&sb, "Phase", string(fit.Phase))
		writePair(&sb, "Tracks", fmt.Sprintf("%d of %d expected", fit.Count, fit.Expected))
		writePair(&sb, "Evaluations", fmt.Sprintf("%d", fit.Evaluations))
	}

	sb.WriteString(SectionStyle.Render(fmt.Sprintf("Tracks (%d)", len(r.Tracks))))
	sb.WriteString("\n")
	for i, t := range r.Tracks {
		line := fmt.Sprintf("  %3d  %9.3f  %9.3f  %7.3f", i+1, t.Start, t.End, t.End-t.Start)
		if r.ShowFrames && i < len(r.Frames) {
			line += KeyStyle.Render(fmt.Sprintf("  [%d, %d)", r.Frames[i].From, r.Frames[i].To))
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}

	if len(r.SplitFiles) > 0 {
		sb.WriteString(SectionStyle.Render("Exported"))
		sb.WriteString("\n")
		for _, f := range r.SplitFiles {
			sb.WriteString("  " + f + "\n")
		}
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

func writePair(sb *strings.Builder, key, value string) {
	fmt.Fprintf(sb, "%s %s\n", KeyStyle.Render(fmt.Sprintf("%-12s", key+":")), value)
}
