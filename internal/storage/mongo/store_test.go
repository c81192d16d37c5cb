package mongo

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jobboard/server/internal/storage/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/v2/bson"
)

var (
	sharedOnce    sync.Once
	sharedInitErr error
	sharedURI     string
	dbCounter     atomic.Int64
)

const sharedContainerName = "jobboard-storage-mongo"

// setupMongo returns a migrated store over a database no other test uses.
func setupMongo(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping mongo integration test in short mode")
	}

	sharedOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		container, err := mongodb.Run(ctx, "mongo:7",
			testcontainers.WithReuseByName(sharedContainerName),
		)
		if err != nil {
			sharedInitErr = err
			return
		}
		sharedURI, sharedInitErr = container.ConnectionString(ctx)
	})
	require.NoError(t, sharedInitErr)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	name := fmt.Sprintf("jobboard_test_%d_%d", os.Getpid(), dbCounter.Add(1))
	store, err := Connect(ctx, sharedURI, name, 10)
	require.NoError(t, err)
	require.NoError(t, store.Migrate(ctx))

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = store.db.Drop(ctx)
		_ = store.Close(ctx)
	})
	return store
}

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Store {
		return setupMongo(t)
	}, storetest.Options{})
}

func TestMigrateIsIdempotent(t *testing.T) {
	store := setupMongo(t)
	require.NoError(t, store.Migrate(context.Background()))
}

func TestEmailLookupIsCaseInsensitive(t *testing.T) {
	store := setupMongo(t)
	storetest.SeedUser(t, store, "Mixed@Example.com")

	got, err := store.Users().GetByEmail(context.Background(), "mixed@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Mixed@Example.com", got.Email)
}

func TestListReadsMissingApplicantsAsEmpty(t *testing.T) {
	store := setupMongo(t)
	ctx := context.Background()

	_, err := store.db.Collection(colJobs).InsertOne(ctx, bson.M{
		"_id":         "01HZX5G7Q6N9V0M2T4K8R3B1CD",
		"title":       "Legacy",
		"description": "inserted without applicants",
		"postedBy":    "someone",
		"createdAt":   time.Now().UTC(),
	})
	require.NoError(t, err)

	list, err := store.Jobs().List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.NotNil(t, list[0].Applicants)
	assert.Empty(t, list[0].Applicants)
}

func TestCloseLeavesBorrowedClientOpen(t *testing.T) {
	owner := setupMongo(t)
	borrowed := New(owner.db)

	require.NoError(t, borrowed.Close(context.Background()))
	assert.NoError(t, owner.Ping(context.Background()))
}
