package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jobboard/server/internal/domain/jobs"
	"github.com/jobboard/server/internal/domain/users"
	"github.com/jobboard/server/internal/metrics"
)

const storeLabel = "memory"

// Store keeps users and jobs in process memory. All state is guarded by a
// single mutex, which also makes AddApplicant atomic.
type Store struct {
	mu      sync.RWMutex
	users   map[string]users.User
	byEmail map[string]string
	jobs    map[string]*jobs.Job
	order   []string
}

func New() *Store {
	return &Store{
		users:   make(map[string]users.User),
		byEmail: make(map[string]string),
		jobs:    make(map[string]*jobs.Job),
	}
}

func (s *Store) Users() users.Repository { return (*userRepo)(s) }

func (s *Store) Jobs() jobs.Repository { return (*jobRepo)(s) }

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close(context.Context) error { return nil }

type userRepo Store

func (r *userRepo) Create(ctx context.Context, user users.User) error {
	defer metrics.RecordQuery(storeLabel, "create_user", time.Now(), nil)
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := users.NormalizeEmail(user.Email)
	if _, exists := r.byEmail[key]; exists {
		return users.ErrEmailTaken
	}
	r.users[user.ID] = user
	r.byEmail[key] = user.ID
	return nil
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*users.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[users.NormalizeEmail(email)]
	if !ok {
		return nil, users.ErrNotFound
	}
	user := r.users[id]
	return &user, nil
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*users.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return nil, users.ErrNotFound
	}
	return &user, nil
}

type jobRepo Store

func (r *jobRepo) Create(ctx context.Context, job jobs.Job) error {
	defer metrics.RecordQuery(storeLabel, "create_job", time.Now(), nil)
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored := copyJob(job)
	r.jobs[job.ID] = &stored
	r.order = append(r.order, job.ID)
	return nil
}

func (r *jobRepo) List(ctx context.Context) ([]jobs.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]jobs.Job, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, copyJob(*r.jobs[id]))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *jobRepo) GetByID(ctx context.Context, id string) (*jobs.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[id]
	if !ok {
		return nil, jobs.ErrNotFound
	}
	out := copyJob(*job)
	return &out, nil
}

func (r *jobRepo) AddApplicant(ctx context.Context, jobID, userID string) (bool, error) {
	defer metrics.RecordQuery(storeLabel, "add_applicant", time.Now(), nil)
	if err := ctx.Err(); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return false, jobs.ErrNotFound
	}
	for _, existing := range job.Applicants {
		if existing == userID {
			return false, nil
		}
	}
	job.Applicants = append(job.Applicants, userID)
	return true, nil
}

func copyJob(job jobs.Job) jobs.Job {
	applicants := make([]string, len(job.Applicants))
	copy(applicants, job.Applicants)
	job.Applicants = applicants
	return job
}
