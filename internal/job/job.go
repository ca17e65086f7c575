// Package job provides the segmentation Job aggregate, its repository port
// and the SegmentService use case running IPU segmentation on uploaded audio.
package job

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/maauso/ipusegment/internal/ipus"
	"github.com/maauso/ipusegment/internal/job/id"
)

// Mode selects how a job segments its audio.
type Mode string

const (
	// ModeSearch segments with a fixed parameter set.
	ModeSearch Mode = "search"
	// ModeFit tunes the parameters to match a known unit sequence.
	ModeFit Mode = "fit"
)

// IsValid returns true if the mode is known.
func (m Mode) IsValid() bool {
	return m == ModeSearch || m == ModeFit
}

// Status represents the current state of a Job.
type Status string

const (
	// StatusInQueue indicates the job is waiting for a free worker slot.
	StatusInQueue Status = "IN_QUEUE"
	// StatusRunning indicates the job is being segmented.
	StatusRunning Status = "RUNNING"
	// StatusCompleted indicates the job finished successfully.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed indicates the job encountered an error.
	StatusFailed Status = "FAILED"
	// StatusCancelled indicates the job was cancelled before it finished.
	StatusCancelled Status = "CANCELLED"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

var validTransitions = map[Status][]Status{
	StatusInQueue:   {StatusRunning, StatusCancelled},
	StatusRunning:   {StatusCompleted, StatusFailed, StatusCancelled},
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCancelled: {},
}

func canTransition(from, to Status) bool {
	return slices.Contains(validTransitions[from], to)
}

// Job is a segmentation request and its outcome.
type Job struct {
	mu sync.RWMutex

	ID     string
	Mode   Mode
	Status Status
	// Params are the segmentation parameters requested for the job.
	Params ipus.Params
	// Units is the expected unit sequence, required in ModeFit.
	Units ipus.Units
	// InputPath is the temporary path of the uploaded audio.
	InputPath string
	// Publish requests the result document to be published to storage.
	Publish bool
	// ExportTracks requests one WAV file per track to be published.
	ExportTracks bool

	Result    *Result
	ResultURL string
	TrackURLs []string
	Error     string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
}

// New creates a new Job with a generated ID in IN_QUEUE status.
func New(mode Mode) *Job {
	return NewWithID(id.Generate(), mode)
}

// NewWithID creates a new Job with the specified ID in IN_QUEUE status.
func NewWithID(jobID string, mode Mode) *Job {
	now := time.Now()
	return &Job{
		ID:        jobID,
		Mode:      mode,
		Status:    StatusInQueue,
		Params:    ipus.DefaultParams(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo attempts to change the job status to the specified state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) TransitionTo(status Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !canTransition(j.Status, status) {
		return ErrInvalidTransition
	}

	j.Status = status
	j.UpdatedAt = time.Now()

	switch status {
	case StatusRunning:
		j.StartedAt = j.UpdatedAt
	case StatusCompleted, StatusFailed, StatusCancelled:
		j.CompletedAt = j.UpdatedAt
	}
	return nil
}

// Start transitions the job from IN_QUEUE to RUNNING.
func (j *Job) Start() error {
	return j.TransitionTo(StatusRunning)
}

// Complete transitions the job to COMPLETED.
func (j *Job) Complete() error {
	return j.TransitionTo(StatusCompleted)
}

// Fail transitions the job to FAILED with an error message.
func (j *Job) Fail(errMsg string) error {
	j.mu.Lock()
	j.Error = errMsg
	j.mu.Unlock()
	return j.TransitionTo(StatusFailed)
}

// Cancel transitions the job to CANCELLED.
func (j *Job) Cancel() error {
	return j.TransitionTo(StatusCancelled)
}

// GetStatus returns the current job status (thread-safe).
func (j *Job) GetStatus() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// SetResult stores the segmentation result.
func (j *Job) SetResult(r *Result) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Result = r
	j.UpdatedAt = time.Now()
}

// SetOutput records where the result and the exported tracks were published.
func (j *Job) SetOutput(resultURL string, trackURLs []string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.ResultURL = resultURL
	j.TrackURLs = trackURLs
	j.UpdatedAt = time.Now()
}

// IsTerminal returns true if the job is in a terminal state.
func (j *Job) IsTerminal() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(validTransitions[j.Status]) == 0
}

// Clone creates a deep copy of the job for safe reads.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return &Job{
		ID:           j.ID,
		Mode:         j.Mode,
		Status:       j.Status,
		Params:       j.Params,
		Units:        slices.Clone(j.Units),
		InputPath:    j.InputPath,
		Publish:      j.Publish,
		ExportTracks: j.ExportTracks,
		Result:       j.Result.Clone(),
		ResultURL:    j.ResultURL,
		TrackURLs:    slices.Clone(j.TrackURLs),
		Error:        j.Error,
		CreatedAt:    j.CreatedAt,
		UpdatedAt:    j.UpdatedAt,
		StartedAt:    j.StartedAt,
		CompletedAt:  j.CompletedAt,
	}
}
