package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/jobboard/server/internal/domain/jobs"
)

// jobModel keeps the field names of the original document collection
// (postedBy, applicants) so existing data can be read.
type jobModel struct {
	ID          string    `bson:"_id"`
	Title       string    `bson:"title"`
	Description string    `bson:"description"`
	PostedBy    string    `bson:"postedBy"`
	Applicants  []string  `bson:"applicants"`
	CreatedAt   time.Time `bson:"createdAt"`
}

func (m jobModel) toJob() jobs.Job {
	applicants := m.Applicants
	if applicants == nil {
		applicants = []string{}
	}
	return jobs.Job{
		ID:          m.ID,
		Title:       m.Title,
		Description: m.Description,
		PostedBy:    m.PostedBy,
		Applicants:  applicants,
		CreatedAt:   m.CreatedAt.UTC(),
	}
}

type JobRepository struct {
	col *mongod.Collection
}

func (r *JobRepository) Create(ctx context.Context, job jobs.Job) (err error) {
	defer func(start time.Time) { observe("create_job", start, err) }(time.Now())

	applicants := job.Applicants
	if applicants == nil {
		applicants = []string{}
	}
	_, err = r.col.InsertOne(ctx, jobModel{
		ID:          job.ID,
		Title:       job.Title,
		Description: job.Description,
		PostedBy:    job.PostedBy,
		Applicants:  applicants,
		CreatedAt:   job.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("mongo: insert job: %w", err)
	}
	return nil
}

func (r *JobRepository) List(ctx context.Context) (_ []jobs.Job, err error) {
	defer func(start time.Time) { observe("list_jobs", start, err) }(time.Now())

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.col.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo: list jobs: %w", err)
	}

	var models []jobModel
	if err = cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("mongo: decode jobs: %w", err)
	}

	out := make([]jobs.Job, 0, len(models))
	for _, m := range models {
		out = append(out, m.toJob())
	}
	return out, nil
}

func (r *JobRepository) GetByID(ctx context.Context, id string) (*jobs.Job, error) {
	start := time.Now()

	var m jobModel
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&m); err != nil {
		if isNoDocuments(err) {
			observe("get_job", start, nil)
			return nil, jobs.ErrNotFound
		}
		observe("get_job", start, err)
		return nil, fmt.Errorf("mongo: get job: %w", err)
	}
	observe("get_job", start, nil)

	job := m.toJob()
	return &job, nil
}

// AddApplicant uses $addToSet so the check and the append happen in one
// document update.
func (r *JobRepository) AddApplicant(ctx context.Context, jobID, userID string) (_ bool, err error) {
	defer func(start time.Time) { observe("add_applicant", start, err) }(time.Now())

	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": jobID},
		bson.M{"$addToSet": bson.M{"applicants": userID}},
	)
	if err != nil {
		return false, fmt.Errorf("mongo: add applicant: %w", err)
	}
	if res.MatchedCount == 0 {
		return false, jobs.ErrNotFound
	}
	return res.ModifiedCount == 1, nil
}
