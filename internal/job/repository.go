package job

import (
	"context"
	"errors"
)

// ErrJobNotFound is returned when a job cannot be found by ID.
var ErrJobNotFound = errors.New("job not found")

// ListFilter narrows the jobs returned by Repository.List. Zero fields
// match everything.
type ListFilter struct {
	Status Status
	Mode   Mode
	// Limit caps the number of jobs returned; 0 means no limit.
	Limit int
}

func (f ListFilter) matches(j *Job) bool {
	if f.Status != "" && j.Status != f.Status {
		return false
	}
	if f.Mode != "" && j.Mode != f.Mode {
		return false
	}
	return true
}

// Repository is the persistence port for jobs.
type Repository interface {
	// Save inserts or replaces a job.
	Save(ctx context.Context, job *Job) error

	// FindByID returns ErrJobNotFound if the job does not exist.
	FindByID(ctx context.Context, id string) (*Job, error)

	// List returns the jobs matching filter, newest first.
	List(ctx context.Context, filter ListFilter) ([]*Job, error)

	// Delete returns ErrJobNotFound if the job does not exist.
	Delete(ctx context.Context, id string) error
}
