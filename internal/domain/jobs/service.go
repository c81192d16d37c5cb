package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/jobboard/server/internal/domain/ids"
	"github.com/jobboard/server/internal/domain/users"
	"github.com/jobboard/server/internal/events"
	"github.com/jobboard/server/internal/sanitize"
	"github.com/rs/zerolog"
)

// UserLookup resolves user ids; users.Repository satisfies it.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*users.User, error)
}

type Service struct {
	repo      Repository
	users     UserLookup
	publisher events.Publisher
	timeout   time.Duration
	logger    zerolog.Logger
}

func NewService(repo Repository, userLookup UserLookup, publisher events.Publisher, timeout time.Duration, logger zerolog.Logger) *Service {
	if publisher == nil {
		publisher = events.Nop
	}
	return &Service{
		repo:      repo,
		users:     userLookup,
		publisher: publisher,
		timeout:   timeout,
		logger:    logger.With().Str("component", "jobs").Logger(),
	}
}

// Create stores a new job posted by postedBy. The title is reduced to plain
// text and the description keeps only safe formatting.
func (s *Service) Create(ctx context.Context, postedBy, title, description string) (Job, error) {
	title = sanitize.Title(title)
	description = sanitize.Description(description)

	if title == "" {
		return Job{}, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return Job{}, fmt.Errorf("%w: title must be at most %d characters", ErrInvalidInput, MaxTitleLength)
	}
	if utf8.RuneCountInString(description) > MaxDescriptionLength {
		return Job{}, fmt.Errorf("%w: description must be at most %d characters", ErrInvalidInput, MaxDescriptionLength)
	}

	storeCtx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.requireUser(storeCtx, postedBy); err != nil {
		return Job{}, err
	}

	id, err := ids.NewULID()
	if err != nil {
		return Job{}, fmt.Errorf("generate job id: %w", err)
	}

	job := Job{
		ID:          id,
		Title:       title,
		Description: description,
		PostedBy:    postedBy,
		Applicants:  []string{},
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.repo.Create(storeCtx, job); err != nil {
		if errors.Is(err, ErrUnknownUser) {
			return Job{}, ErrUnknownUser
		}
		return Job{}, fmt.Errorf("create job: %w", err)
	}

	s.logger.Info().Str("job_id", job.ID).Str("posted_by", postedBy).Msg("job posted")
	s.publish(ctx, events.Event{
		Type:       events.JobPosted,
		JobID:      job.ID,
		UserID:     postedBy,
		Title:      job.Title,
		OccurredAt: job.CreatedAt,
	})
	return job, nil
}

// List returns every job ordered by creation time.
func (s *Service) List(ctx context.Context) ([]Job, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	jobs, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	for i := range jobs {
		if jobs[i].Applicants == nil {
			jobs[i].Applicants = []string{}
		}
	}
	return jobs, nil
}

// Apply records userID as an applicant of jobID. Applying twice is not an
// error; the second call reports Added=false and leaves the job unchanged.
func (s *Service) Apply(ctx context.Context, jobID, userID string) (ApplyResult, error) {
	if !ids.IsULID(jobID) {
		return ApplyResult{}, ErrNotFound
	}
	jobID = ids.Normalize(jobID)

	storeCtx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.requireUser(storeCtx, userID); err != nil {
		return ApplyResult{}, err
	}

	added, err := s.repo.AddApplicant(storeCtx, jobID, userID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return ApplyResult{}, ErrNotFound
		case errors.Is(err, ErrUnknownUser):
			return ApplyResult{}, ErrUnknownUser
		}
		return ApplyResult{}, fmt.Errorf("add applicant: %w", err)
	}

	result := ApplyResult{JobID: jobID, Added: added}
	if !added {
		s.logger.Debug().Str("job_id", jobID).Str("user_id", userID).Msg("duplicate application ignored")
		return result, nil
	}

	s.logger.Info().Str("job_id", jobID).Str("user_id", userID).Msg("application recorded")
	s.publish(ctx, events.Event{
		Type:   events.JobApplied,
		JobID:  jobID,
		UserID: userID,
	})
	return result, nil
}

func (s *Service) requireUser(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrUnknownUser
	}
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return ErrUnknownUser
		}
		return fmt.Errorf("lookup user: %w", err)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn().Err(err).Str("event_type", string(event.Type)).Msg("publish event")
	}
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}
