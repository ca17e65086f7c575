package job

import (
	"slices"

	"github.com/maauso/ipusegment/internal/audio"
	"github.com/maauso/ipusegment/internal/ipus"
)

// Result is the document produced by a segmentation.
type Result struct {
	JobID     string            `json:"job_id,omitempty"`
	Mode      Mode              `json:"mode"`
	Audio     audio.Metadata    `json:"audio"`
	Params    ipus.Params       `json:"params"`
	Threshold int               `json:"threshold"`
	Tracks    []ipus.TimedTrack `json:"tracks"`
	Frames    []ipus.Track      `json:"frames"`
	Fit       *ipus.FitResult   `json:"fit,omitempty"`
}

// Clone returns a deep copy of r. A nil result clones to nil.
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	out := *r
	out.Tracks = slices.Clone(r.Tracks)
	out.Frames = slices.Clone(r.Frames)
	if r.Fit != nil {
		fit := *r.Fit
		out.Fit = &fit
	}
	return &out
}
