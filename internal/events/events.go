package events

import (
	"context"
	"sync"
	"time"

	"github.com/jobboard/server/internal/metrics"
	"github.com/rs/zerolog"
)

type Type string

const (
	JobPosted  Type = "job.posted"
	JobApplied Type = "job.applied"
)

// Event is a fact about the job board that other parts of the system may
// react to. UserID is the poster for JobPosted and the applicant for
// JobApplied.
type Event struct {
	Type       Type      `json:"type"`
	JobID      string    `json:"job_id"`
	UserID     string    `json:"user_id"`
	Title      string    `json:"title,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, event Event) error

func (f PublisherFunc) Publish(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Nop discards every event.
var Nop Publisher = PublisherFunc(func(context.Context, Event) error { return nil })

type sink struct {
	name      string
	publisher Publisher
}

// Fanout delivers each event to every registered sink. Delivery is best
// effort: a failing sink is logged and counted, and never fails the caller.
type Fanout struct {
	mu     sync.RWMutex
	sinks  []sink
	logger zerolog.Logger
}

func NewFanout(logger zerolog.Logger) *Fanout {
	return &Fanout{logger: logger.With().Str("component", "events").Logger()}
}

// Add registers a sink under name, used in logs and metrics.
func (f *Fanout) Add(name string, publisher Publisher) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinks = append(f.sinks, sink{name: name, publisher: publisher})
}

func (f *Fanout) Publish(ctx context.Context, event Event) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	f.mu.RLock()
	sinks := make([]sink, len(f.sinks))
	copy(sinks, f.sinks)
	f.mu.RUnlock()

	for _, s := range sinks {
		status := "ok"
		if err := s.publisher.Publish(ctx, event); err != nil {
			status = "error"
			f.logger.Warn().
				Err(err).
				Str("sink", s.name).
				Str("event_type", string(event.Type)).
				Str("job_id", event.JobID).
				Msg("event delivery failed")
		}
		metrics.DomainEvents.WithLabelValues(string(event.Type), s.name, status).Inc()
	}
	return nil
}

// LogPublisher writes every event to the logger.
type LogPublisher struct {
	logger zerolog.Logger
}

func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, event Event) error {
	p.logger.Info().
		Str("event_type", string(event.Type)).
		Str("job_id", event.JobID).
		Str("user_id", event.UserID).
		Time("occurred_at", event.OccurredAt).
		Msg("domain event")
	return nil
}
