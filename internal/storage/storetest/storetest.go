// Package storetest holds the behaviour every store backend must share.
// Backend packages call Run from their own tests.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jobboard/server/internal/domain/ids"
	"github.com/jobboard/server/internal/domain/jobs"
	"github.com/jobboard/server/internal/domain/users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Store interface {
	Users() users.Repository
	Jobs() jobs.Repository
	Ping(ctx context.Context) error
}

type Options struct {
	// EnforcesReferences is set for backends that reject jobs and
	// applications naming users that do not exist.
	EnforcesReferences bool
}

// Run executes the contract against stores produced by newStore. Each
// subtest receives an empty store.
func Run(t *testing.T, newStore func(t *testing.T) Store, opts Options) {
	t.Run("Ping", func(t *testing.T) {
		require.NoError(t, newStore(t).Ping(context.Background()))
	})
	t.Run("UsersCreateAndLookup", func(t *testing.T) { testUsersCreateAndLookup(t, newStore(t)) })
	t.Run("UsersDuplicateEmail", func(t *testing.T) { testUsersDuplicateEmail(t, newStore(t)) })
	t.Run("JobsCreateAndList", func(t *testing.T) { testJobsCreateAndList(t, newStore(t)) })
	t.Run("JobsAddApplicant", func(t *testing.T) { testJobsAddApplicant(t, newStore(t)) })
	t.Run("JobsAddApplicantUnknownJob", func(t *testing.T) { testJobsAddApplicantUnknownJob(t, newStore(t)) })
	t.Run("JobsConcurrentApply", func(t *testing.T) { testJobsConcurrentApply(t, newStore(t)) })
	if opts.EnforcesReferences {
		t.Run("JobsRejectUnknownPoster", func(t *testing.T) { testJobsRejectUnknownPoster(t, newStore(t)) })
	}
}

func newID(t *testing.T) string {
	t.Helper()
	id, err := ids.NewULID()
	require.NoError(t, err)
	return id
}

// SeedUser stores a user with the given email and returns it.
func SeedUser(t *testing.T, store Store, email string) users.User {
	t.Helper()
	user := users.User{
		ID:           newID(t),
		Email:        email,
		PasswordHash: "$2a$04$placeholderplaceholderplaceholderplaceholderplace",
		CreatedAt:    time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, store.Users().Create(context.Background(), user))
	return user
}

// SeedJob stores a job posted by postedBy and returns it.
func SeedJob(t *testing.T, store Store, postedBy, title string, createdAt time.Time) jobs.Job {
	t.Helper()
	job := jobs.Job{
		ID:          newID(t),
		Title:       title,
		Description: "Description for " + title,
		PostedBy:    postedBy,
		Applicants:  []string{},
		CreatedAt:   createdAt.UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, store.Jobs().Create(context.Background(), job))
	return job
}

func testUsersCreateAndLookup(t *testing.T, store Store) {
	ctx := context.Background()
	user := SeedUser(t, store, "ada@example.com")

	byEmail, err := store.Users().GetByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byEmail.ID)
	assert.Equal(t, user.PasswordHash, byEmail.PasswordHash)

	byID, err := store.Users().GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", byID.Email)

	_, err = store.Users().GetByEmail(ctx, "missing@example.com")
	assert.ErrorIs(t, err, users.ErrNotFound)

	_, err = store.Users().GetByID(ctx, newID(t))
	assert.ErrorIs(t, err, users.ErrNotFound)
}

func testUsersDuplicateEmail(t *testing.T, store Store) {
	SeedUser(t, store, "dup@example.com")

	err := store.Users().Create(context.Background(), users.User{
		ID:           newID(t),
		Email:        "dup@example.com",
		PasswordHash: "other",
		CreatedAt:    time.Now().UTC(),
	})
	assert.ErrorIs(t, err, users.ErrEmailTaken)
}

func testJobsCreateAndList(t *testing.T, store Store) {
	ctx := context.Background()

	empty, err := store.Jobs().List(ctx)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	poster := SeedUser(t, store, "poster@example.com")
	base := time.Now().Add(-time.Hour)
	first := SeedJob(t, store, poster.ID, "First", base)
	second := SeedJob(t, store, poster.ID, "Second", base.Add(time.Minute))

	list, err := store.Jobs().List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)
	assert.Equal(t, poster.ID, list[0].PostedBy)
	assert.Equal(t, "Description for First", list[0].Description)
	assert.NotNil(t, list[0].Applicants)
	assert.Empty(t, list[0].Applicants)

	got, err := store.Jobs().GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "First", got.Title)

	_, err = store.Jobs().GetByID(ctx, newID(t))
	assert.ErrorIs(t, err, jobs.ErrNotFound)
}

func testJobsAddApplicant(t *testing.T, store Store) {
	ctx := context.Background()
	poster := SeedUser(t, store, "poster@example.com")
	alice := SeedUser(t, store, "alice@example.com")
	bob := SeedUser(t, store, "bob@example.com")
	job := SeedJob(t, store, poster.ID, "Engineer", time.Now())

	added, err := store.Jobs().AddApplicant(ctx, job.ID, alice.ID)
	require.NoError(t, err)
	assert.True(t, added)

	added, err = store.Jobs().AddApplicant(ctx, job.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, added)

	added, err = store.Jobs().AddApplicant(ctx, job.ID, alice.ID)
	require.NoError(t, err)
	assert.False(t, added, "second application must not be recorded")

	got, err := store.Jobs().GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{alice.ID, bob.ID}, got.Applicants)

	list, err := store.Jobs().List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, []string{alice.ID, bob.ID}, list[0].Applicants)
}

func testJobsAddApplicantUnknownJob(t *testing.T, store Store) {
	alice := SeedUser(t, store, "alice@example.com")

	_, err := store.Jobs().AddApplicant(context.Background(), newID(t), alice.ID)
	assert.ErrorIs(t, err, jobs.ErrNotFound)
}

func testJobsConcurrentApply(t *testing.T, store Store) {
	ctx := context.Background()
	poster := SeedUser(t, store, "poster@example.com")
	job := SeedJob(t, store, poster.ID, "Popular", time.Now())

	const applicants = 10
	userIDs := make([]string, applicants)
	for i := range userIDs {
		userIDs[i] = SeedUser(t, store, fmt.Sprintf("user%d@example.com", i)).ID
	}

	var wg sync.WaitGroup
	for _, id := range userIDs {
		for attempt := 0; attempt < 2; attempt++ {
			wg.Add(1)
			go func(userID string) {
				defer wg.Done()
				_, err := store.Jobs().AddApplicant(ctx, job.ID, userID)
				assert.NoError(t, err)
			}(id)
		}
	}
	wg.Wait()

	got, err := store.Jobs().GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, userIDs, got.Applicants)
}

func testJobsRejectUnknownPoster(t *testing.T, store Store) {
	err := store.Jobs().Create(context.Background(), jobs.Job{
		ID:        newID(t),
		Title:     "Orphan",
		PostedBy:  newID(t),
		CreatedAt: time.Now().UTC(),
	})
	assert.ErrorIs(t, err, jobs.ErrUnknownUser)

	poster := SeedUser(t, store, "poster@example.com")
	job := SeedJob(t, store, poster.ID, "Real", time.Now())
	_, err = store.Jobs().AddApplicant(context.Background(), job.ID, newID(t))
	assert.ErrorIs(t, err, jobs.ErrUnknownUser)
}
