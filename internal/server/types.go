// Package server provides the HTTP server for the segmentation API.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import (
	"time"

	"github.com/maauso/ipusegment/internal/ipus"
	"github.com/maauso/ipusegment/internal/job"
)

// SegmentRequest is the HTTP request body of POST /segment and POST /jobs.
type SegmentRequest struct {
	// AudioBase64 is the base64-encoded audio, a mono WAV unless the
	// server converts its input.
	AudioBase64 string `json:"audio_base64" validate:"required,base64"`
	// Mode is "search" (default) or "fit".
	Mode string `json:"mode" validate:"omitempty,oneof=search fit"`
	// Units is the expected unit sequence, e.g. "# a b # c #". Required in fit mode.
	Units string `json:"units" validate:"required_if=Mode fit,max=10000"`
	// Params overrides the server default parameters field by field.
	Params *ParamsRequest `json:"params,omitempty"`
	// Publish stores the result document in the configured storage.
	Publish bool `json:"publish"`
	// ExportTracks stores one WAV file per detected track.
	ExportTracks bool `json:"export_tracks"`
}

// ParamsRequest carries optional parameter overrides, in seconds.
type ParamsRequest struct {
	WinLen       *float64 `json:"win_len,omitempty" validate:"omitempty,gte=0.002,lte=0.04"`
	Vagueness    *float64 `json:"vagueness,omitempty" validate:"omitempty,gt=0"`
	VolThreshold *int     `json:"vol_threshold,omitempty" validate:"omitempty,gte=0"`
	MinSilDur    *float64 `json:"min_sil_dur,omitempty" validate:"omitempty,gte=0"`
	MinIPUDur    *float64 `json:"min_ipu_dur,omitempty" validate:"omitempty,gte=0"`
	ShiftStart   *float64 `json:"shift_start,omitempty"`
	ShiftEnd     *float64 `json:"shift_end,omitempty"`
}

// apply overlays the set fields on base.
func (p *ParamsRequest) apply(base ipus.Params) ipus.Params {
	if p == nil {
		return base
	}
	if p.WinLen != nil {
		base.WinLen = *p.WinLen
	}
	if p.Vagueness != nil {
		base.Vagueness = *p.Vagueness
	}
	if p.VolThreshold != nil {
		base.VolThreshold = *p.VolThreshold
	}
	if p.MinSilDur != nil {
		base.MinSilDur = *p.MinSilDur
	}
	if p.MinIPUDur != nil {
		base.MinIPUDur = *p.MinIPUDur
	}
	if p.ShiftStart != nil {
		base.ShiftStart = *p.ShiftStart
	}
	if p.ShiftEnd != nil {
		base.ShiftEnd = *p.ShiftEnd
	}
	return base
}

// CreateJobResponse is the HTTP response after creating a job.
type CreateJobResponse struct {
	// ID is the unique identifier for the created job.
	ID string `json:"id"`
	// Status is the initial job status.
	Status string `json:"status"`
}

// JobResponse is the HTTP representation of a job.
type JobResponse struct {
	ID     string `json:"id"`
	Mode   string `json:"mode"`
	Status string `json:"status"`
	// Error contains any error message if the job failed.
	Error string `json:"error,omitempty"`

	Threshold int               `json:"threshold,omitempty"`
	Params    *ipus.Params      `json:"params,omitempty"`
	Tracks    []ipus.TimedTrack `json:"tracks,omitempty"`
	// Frames holds the tracks in frames, only when requested with ?frames=true.
	Frames   []ipus.Track    `json:"frames,omitempty"`
	Duration float64         `json:"duration,omitempty"`
	Fit      *ipus.FitResult `json:"fit,omitempty"`

	ResultURL string   `json:"result_url,omitempty"`
	TrackURLs []string `json:"track_urls,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// newJobResponse maps a job to its HTTP representation.
func newJobResponse(j *job.Job, withFrames bool) JobResponse {
	resp := JobResponse{
		ID:        j.ID,
		Mode:      string(j.Mode),
		Status:    string(j.Status),
		Error:     j.Error,
		ResultURL: j.ResultURL,
		TrackURLs: j.TrackURLs,
		CreatedAt: j.CreatedAt,
	}
	if !j.CompletedAt.IsZero() {
		completed := j.CompletedAt
		resp.CompletedAt = &completed
	}
	if r := j.Result; r != nil {
		params := r.Params
		resp.Threshold = r.Threshold
		resp.Params = &params
		resp.Tracks = r.Tracks
		resp.Duration = r.Audio.Duration
		resp.Fit = r.Fit
		if withFrames {
			resp.Frames = r.Frames
		}
	}
	return resp
}

// ListJobsResponse is the HTTP response of GET /jobs.
type ListJobsResponse struct {
	Jobs  []JobResponse `json:"jobs"`
	Count int           `json:"count"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}
