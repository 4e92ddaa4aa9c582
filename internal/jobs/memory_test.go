// internal/jobs/memory_test.go
package jobs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

func TestMemoryStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	rec := schemas.JobRecord{
		ID:    "job-1",
		Query: "usb-c hub",
		URL:   "https://shop.example/",
		State: schemas.JobPending,
	}
	require.NoError(t, store.Create(ctx, rec))

	err := store.Create(ctx, rec)
	require.Error(t, err, "duplicate IDs must be rejected")

	got, err := store.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, schemas.JobPending, got.State)
	assert.False(t, got.CreatedAt.IsZero())

	require.NoError(t, store.UpdateState(ctx, "job-1", schemas.JobRunning))
	got, err = store.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, schemas.JobRunning, got.State)

	payload := &schemas.ResultPayload{JobID: "job-1", Steps: 4, StopReason: "objective met"}
	require.NoError(t, store.SetResult(ctx, "job-1", payload))

	got, err = store.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, schemas.JobCompleted, got.State, "storing a result completes the job")
	require.NotNil(t, got.Result)
	assert.Equal(t, "objective met", got.Result.StopReason)
}

func TestMemoryStore_UnknownJob(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.UpdateState(ctx, "missing", schemas.JobRunning), ErrNotFound)
	assert.ErrorIs(t, store.SetResult(ctx, "missing", &schemas.ResultPayload{}), ErrNotFound)
	assert.ErrorIs(t, store.AppendEvent(ctx, "missing", schemas.StatusEvent{Event: "x"}), ErrNotFound)
	_, err = store.Events(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_EventReplayIsIsolated(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Create(ctx, schemas.JobRecord{ID: "job-1"}))

	require.NoError(t, store.AppendEvent(ctx, "job-1", schemas.StatusEvent{Event: "job_started"}))
	require.NoError(t, store.AppendEvent(ctx, "job-1", schemas.StatusEvent{Event: "navigating"}))

	events, err := store.Events(ctx, "job-1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "job_started", events[0].Event)

	// Mutating the returned slice must not affect the store.
	events[0].Event = "tampered"
	fresh, err := store.Events(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, "job_started", fresh[0].Event)
}
