package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

var (
	TasksQueued = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_queued_total",
			Help:      "Total number of background tasks queued",
		},
		[]string{"kind"},
	)

	TasksInFlight = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tasks_in_flight",
			Help:      "Current number of background tasks executing",
		},
		[]string{"kind"},
	)

	TaskDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Background task execution duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		},
		[]string{"kind"},
	)

	TasksCompleted = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_completed_total",
			Help:      "Total number of background tasks completed",
		},
		[]string{"kind", "result"}, // result: success, error
	)
)

// TaskMetricsHook is a river hook recording queue and execution metrics.
type TaskMetricsHook struct {
	river.HookDefaults

	mu      sync.Mutex
	started map[int64]time.Time
}

func NewTaskMetricsHook() *TaskMetricsHook {
	return &TaskMetricsHook{started: make(map[int64]time.Time)}
}

func (h *TaskMetricsHook) InsertBegin(_ context.Context, params *rivertype.JobInsertParams) error {
	TasksQueued.WithLabelValues(params.Kind).Inc()
	return nil
}

func (h *TaskMetricsHook) WorkBegin(_ context.Context, job *rivertype.JobRow) error {
	TasksInFlight.WithLabelValues(job.Kind).Inc()
	h.mu.Lock()
	h.started[job.ID] = time.Now()
	h.mu.Unlock()
	return nil
}

func (h *TaskMetricsHook) WorkEnd(_ context.Context, job *rivertype.JobRow, err error) error {
	TasksInFlight.WithLabelValues(job.Kind).Dec()

	h.mu.Lock()
	start, ok := h.started[job.ID]
	delete(h.started, job.ID)
	h.mu.Unlock()
	if ok {
		TaskDuration.WithLabelValues(job.Kind).Observe(time.Since(start).Seconds())
	}

	result := "success"
	if err != nil {
		result = "error"
	}
	TasksCompleted.WithLabelValues(job.Kind, result).Inc()
	return nil
}
