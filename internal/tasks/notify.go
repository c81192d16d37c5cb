package tasks

import (
	"context"
	"errors"
	"fmt"
	"html"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/rs/zerolog"

	"github.com/jobboard/server/internal/domain/jobs"
	"github.com/jobboard/server/internal/domain/users"
	"github.com/jobboard/server/internal/email"
	"github.com/jobboard/server/internal/events"
)

// ApplicationNotifyArgs tells a job's poster that someone applied.
type ApplicationNotifyArgs struct {
	JobID       string `json:"job_id"`
	ApplicantID string `json:"applicant_id"`
}

func (ApplicationNotifyArgs) Kind() string { return KindApplicationNotify }

func (ApplicationNotifyArgs) InsertOpts() river.InsertOpts {
	return InsertOptsForKind(KindApplicationNotify)
}

type JobLookup interface {
	GetByID(ctx context.Context, id string) (*jobs.Job, error)
}

type UserLookup interface {
	GetByID(ctx context.Context, id string) (*users.User, error)
}

type ApplicationNotifyWorker struct {
	river.WorkerDefaults[ApplicationNotifyArgs]
	Jobs   JobLookup
	Users  UserLookup
	Sender email.Sender
	Logger zerolog.Logger
}

func (w *ApplicationNotifyWorker) Work(ctx context.Context, job *river.Job[ApplicationNotifyArgs]) error {
	if job == nil {
		return fmt.Errorf("application notify task missing")
	}
	args := job.Args

	posting, err := w.Jobs.GetByID(ctx, args.JobID)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			return river.JobCancel(fmt.Errorf("job %s: %w", args.JobID, err))
		}
		return fmt.Errorf("load job: %w", err)
	}

	poster, err := w.Users.GetByID(ctx, posting.PostedBy)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return river.JobCancel(fmt.Errorf("poster %s: %w", posting.PostedBy, err))
		}
		return fmt.Errorf("load poster: %w", err)
	}

	applicant := args.ApplicantID
	if u, err := w.Users.GetByID(ctx, args.ApplicantID); err == nil {
		applicant = u.Email
	} else if !errors.Is(err, users.ErrNotFound) {
		return fmt.Errorf("load applicant: %w", err)
	}

	msg := email.Message{
		To:      poster.Email,
		Subject: "New applicant for " + posting.Title,
		Text:    fmt.Sprintf("%s applied to your job posting %q.", applicant, posting.Title),
		HTML: fmt.Sprintf("<p>%s applied to your job posting <strong>%s</strong>.</p>",
			html.EscapeString(applicant), html.EscapeString(posting.Title)),
	}
	if err := w.Sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("send notification: %w", err)
	}

	w.Logger.Info().
		Str("job_id", posting.ID).
		Str("applicant_id", args.ApplicantID).
		Int("attempt", job.Attempt).
		Msg("applicant notification sent")
	return nil
}

// NewWorkers registers every worker this package provides.
func NewWorkers(jobLookup JobLookup, userLookup UserLookup, sender email.Sender, logger zerolog.Logger) *river.Workers {
	workers := river.NewWorkers()
	river.AddWorker(workers, &ApplicationNotifyWorker{
		Jobs:   jobLookup,
		Users:  userLookup,
		Sender: sender,
		Logger: logger.With().Str("component", "tasks").Logger(),
	})
	return workers
}

// Inserter is the part of a River client the enqueuer needs.
type Inserter interface {
	Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
}

// Enqueuer turns application events into notification tasks.
type Enqueuer struct {
	client Inserter
}

func NewEnqueuer(client Inserter) *Enqueuer {
	return &Enqueuer{client: client}
}

func (e *Enqueuer) Publish(ctx context.Context, event events.Event) error {
	if event.Type != events.JobApplied {
		return nil
	}
	_, err := e.client.Insert(ctx, ApplicationNotifyArgs{JobID: event.JobID, ApplicantID: event.UserID}, nil)
	if err != nil {
		return fmt.Errorf("enqueue application notification: %w", err)
	}
	return nil
}
