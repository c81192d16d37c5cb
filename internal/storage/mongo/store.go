package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/jobboard/server/internal/domain/jobs"
	"github.com/jobboard/server/internal/domain/users"
	"github.com/jobboard/server/internal/metrics"
)

const (
	colUsers = "users"
	colJobs  = "jobs"

	storeLabel = "mongo"
)

// Store keeps users and jobs as documents. Ids are ULID strings stored in _id.
type Store struct {
	client *mongod.Client
	db     *mongod.Database
	owned  bool
}

// Connect dials uri and returns a store over the named database. The
// returned store owns the client and disconnects it on Close.
func Connect(ctx context.Context, uri, database string, maxConns int) (*Store, error) {
	opts := options.Client().ApplyURI(uri).SetServerSelectionTimeout(10 * time.Second)
	if maxConns > 0 {
		opts.SetMaxPoolSize(uint64(maxConns))
	}

	client, err := mongod.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	store := New(client.Database(database))
	store.owned = true
	return store, nil
}

// New wraps an existing database handle. The caller keeps ownership of the
// client.
func New(db *mongod.Database) *Store {
	return &Store{client: db.Client(), db: db}
}

// Migrate creates the indexes the store relies on. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

func (s *Store) Users() users.Repository { return &UserRepository{col: s.db.Collection(colUsers)} }

func (s *Store) Jobs() jobs.Repository { return &JobRepository{col: s.db.Collection(colJobs)} }

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *Store) Close(ctx context.Context) error {
	if !s.owned {
		return nil
	}
	return s.client.Disconnect(ctx)
}

func migrationIndexes() map[string][]mongod.IndexModel {
	return map[string][]mongod.IndexModel{
		colUsers: {
			{
				Keys:    bson.D{{Key: "email_key", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		colJobs: {
			{Keys: bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}},
		},
	}
}

func isNoDocuments(err error) bool {
	return errors.Is(err, mongod.ErrNoDocuments)
}

func observe(operation string, start time.Time, err error) {
	metrics.RecordQuery(storeLabel, operation, start, err)
}
