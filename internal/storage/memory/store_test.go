package memory

import (
	"context"
	"testing"
	"time"

	"github.com/jobboard/server/internal/storage/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Store {
		return New()
	}, storetest.Options{})
}

func TestReturnedJobsAreCopies(t *testing.T) {
	store := New()
	poster := storetest.SeedUser(t, store, "poster@example.com")
	job := storetest.SeedJob(t, store, poster.ID, "Copy", time.Now())

	_, err := store.Jobs().AddApplicant(context.Background(), job.ID, "applicant-1")
	require.NoError(t, err)

	got, err := store.Jobs().GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	got.Applicants[0] = "tampered"

	again, err := store.Jobs().GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"applicant-1"}, again.Applicants)
}

func TestCanceledContext(t *testing.T) {
	store := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Jobs().List(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEmailLookupIsCaseInsensitive(t *testing.T) {
	store := New()
	storetest.SeedUser(t, store, "Mixed@Example.com")

	_, err := store.Users().GetByEmail(context.Background(), "mixed@example.com")
	assert.NoError(t, err)
}
