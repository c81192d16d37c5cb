package jobs

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound     = errors.New("job not found")
	ErrUnknownUser  = errors.New("user does not exist")
	ErrInvalidInput = errors.New("invalid input")
)

const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 10000
)

// Job is a posting. Applicants holds user ids in the order they applied and
// never contains the same id twice.
type Job struct {
	ID          string
	Title       string
	Description string
	PostedBy    string
	Applicants  []string
	CreatedAt   time.Time
}

// Repository persists jobs.
//
// AddApplicant appends userID to the job's applicants unless it is already
// present, atomically with respect to concurrent calls for the same job. It
// reports whether the id was added and returns ErrNotFound for an unknown job.
type Repository interface {
	Create(ctx context.Context, job Job) error
	List(ctx context.Context) ([]Job, error)
	GetByID(ctx context.Context, id string) (*Job, error)
	AddApplicant(ctx context.Context, jobID, userID string) (bool, error)
}

// ApplyResult reports the outcome of an application.
type ApplyResult struct {
	JobID string
	Added bool
}
