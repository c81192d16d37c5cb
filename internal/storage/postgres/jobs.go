package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jobboard/server/internal/domain/jobs"
)

type JobRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

// selectJobs aggregates applicants in application order; jobs without
// applicants get an empty array rather than NULL.
const selectJobs = `
SELECT j.id, j.title, j.description, j.posted_by, j.created_at,
       COALESCE(array_agg(a.user_id ORDER BY a.seq) FILTER (WHERE a.user_id IS NOT NULL), '{}') AS applicants
  FROM jobs j
  LEFT JOIN job_applicants a ON a.job_id = j.id
`

func (r *JobRepository) Create(ctx context.Context, job jobs.Job) (err error) {
	defer func(start time.Time) { observe("create_job", start, err) }(time.Now())

	_, err = pick(r.pool, r.tx).Exec(ctx, `
INSERT INTO jobs (id, title, description, posted_by, created_at)
VALUES ($1, $2, $3, $4, $5)
`, job.ID, job.Title, job.Description, job.PostedBy, job.CreatedAt)
	if err != nil {
		if pgErr, ok := pgError(err); ok && pgErr.Code == pgForeignKeyViolation {
			return jobs.ErrUnknownUser
		}
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (r *JobRepository) List(ctx context.Context) (_ []jobs.Job, err error) {
	defer func(start time.Time) { observe("list_jobs", start, err) }(time.Now())

	rows, err := pick(r.pool, r.tx).Query(ctx, selectJobs+`
 GROUP BY j.id
 ORDER BY j.created_at, j.id
`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	out := []jobs.Job{}
	for rows.Next() {
		job, scanErr := scanJob(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan job: %w", scanErr)
		}
		out = append(out, job)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return out, nil
}

func (r *JobRepository) GetByID(ctx context.Context, id string) (_ *jobs.Job, err error) {
	defer func(start time.Time) {
		if errors.Is(err, jobs.ErrNotFound) {
			observe("get_job", start, nil)
			return
		}
		observe("get_job", start, err)
	}(time.Now())

	row := pick(r.pool, r.tx).QueryRow(ctx, selectJobs+`
 WHERE j.id = $1
 GROUP BY j.id
`, id)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, jobs.ErrNotFound
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &job, nil
}

// AddApplicant relies on the (job_id, user_id) primary key: concurrent
// applications serialise on the index and duplicates are skipped.
func (r *JobRepository) AddApplicant(ctx context.Context, jobID, userID string) (_ bool, err error) {
	defer func(start time.Time) {
		if errors.Is(err, jobs.ErrNotFound) || errors.Is(err, jobs.ErrUnknownUser) {
			observe("add_applicant", start, nil)
			return
		}
		observe("add_applicant", start, err)
	}(time.Now())

	tag, err := pick(r.pool, r.tx).Exec(ctx, `
INSERT INTO job_applicants (job_id, user_id)
VALUES ($1, $2)
ON CONFLICT (job_id, user_id) DO NOTHING
`, jobID, userID)
	if err != nil {
		if pgErr, ok := pgError(err); ok && pgErr.Code == pgForeignKeyViolation {
			if pgErr.ConstraintName == "job_applicants_user_id_fkey" {
				return false, jobs.ErrUnknownUser
			}
			return false, jobs.ErrNotFound
		}
		return false, fmt.Errorf("add applicant: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func scanJob(row pgx.Row) (jobs.Job, error) {
	var job jobs.Job
	err := row.Scan(&job.ID, &job.Title, &job.Description, &job.PostedBy, &job.CreatedAt, &job.Applicants)
	if job.Applicants == nil {
		job.Applicants = []string{}
	}
	return job, err
}
