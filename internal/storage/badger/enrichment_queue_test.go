package badger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/RBarbieri13/decant/internal/models"
)

func testQueue(t *testing.T) *EnrichmentQueue {
	t.Helper()
	queue, err := OpenEnrichmentQueue(arbor.NewLogger(), t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { queue.Close() })
	return queue
}

func TestEnrichmentQueue_EnqueueAndClaim(t *testing.T) {
	queue := testQueue(t)
	ctx := context.Background()

	for i, nodeID := range []string{"node-1", "node-2", "node-3"} {
		require.NoError(t, queue.Enqueue(ctx, &models.EnrichmentJob{
			NodeID:     nodeID,
			URL:        "https://example.com/" + nodeID,
			EnqueuedAt: time.Now().Add(time.Duration(i) * time.Millisecond),
		}))
	}

	claimed, err := queue.ClaimPending(ctx, 2)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	assert.Equal(t, "node-1", claimed[0].NodeID, "oldest first")
	assert.Equal(t, models.EnrichmentRunning, claimed[0].Status)
	assert.Equal(t, 1, claimed[0].Attempts)

	// Claimed jobs are no longer pending.
	remaining, err := queue.ClaimPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "node-3", remaining[0].NodeID)
}

func TestEnrichmentQueue_MarkDone(t *testing.T) {
	queue := testQueue(t)
	ctx := context.Background()

	job := &models.EnrichmentJob{NodeID: "node-1", URL: "https://example.com/1"}
	require.NoError(t, queue.Enqueue(ctx, job))

	claimed, err := queue.ClaimPending(ctx, 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	require.NoError(t, queue.MarkDone(ctx, claimed[0].ID))

	stats, err := queue.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats[models.EnrichmentDone])
	assert.Equal(t, 0, stats[models.EnrichmentPending])
}

func TestEnrichmentQueue_FailureRequeuesUntilExhausted(t *testing.T) {
	queue := testQueue(t)
	ctx := context.Background()

	require.NoError(t, queue.Enqueue(ctx, &models.EnrichmentJob{NodeID: "node-1", URL: "https://example.com/1"}))

	boom := errors.New("extractor exploded")
	for attempt := 1; attempt <= maxJobAttempts; attempt++ {
		claimed, err := queue.ClaimPending(ctx, 1)
		require.NoError(t, err)
		require.Len(t, claimed, 1, "attempt %d", attempt)
		require.NoError(t, queue.MarkFailed(ctx, claimed[0].ID, boom))
	}

	stats, err := queue.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats[models.EnrichmentFailed])
	assert.Equal(t, 0, stats[models.EnrichmentPending])
}

func TestEnrichmentQueue_ReenqueueIsUpsert(t *testing.T) {
	queue := testQueue(t)
	ctx := context.Background()

	job := &models.EnrichmentJob{ID: "job_fixed", NodeID: "node-1", URL: "https://example.com/1"}
	require.NoError(t, queue.Enqueue(ctx, job))
	require.NoError(t, queue.Enqueue(ctx, &models.EnrichmentJob{ID: "job_fixed", NodeID: "node-1", URL: "https://example.com/1"}))

	stats, err := queue.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats[models.EnrichmentPending])
}
