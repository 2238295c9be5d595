// Package badger implements the persistent Phase-2 enrichment queue on
// BadgerDB via badgerhold, so queued jobs survive restarts.
package badger

import (
	"context"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/RBarbieri13/decant/internal/common"
	"github.com/RBarbieri13/decant/internal/models"
)

// maxJobAttempts before a job is parked as failed.
const maxJobAttempts = 3

// EnrichmentQueue stores enrichment jobs keyed by job id with a status
// index for pending scans.
type EnrichmentQueue struct {
	store  *badgerhold.Store
	logger arbor.ILogger
}

// OpenEnrichmentQueue opens (creating if needed) the queue at path.
func OpenEnrichmentQueue(logger arbor.ILogger, path string) (*EnrichmentQueue, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, common.NewError(common.ErrInternal, "failed to create queue directory").WithCause(err)
	}

	options := badgerhold.DefaultOptions
	options.Options = badger.DefaultOptions(path).WithLogger(nil)

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, common.NewError(common.ErrInternal, "failed to open enrichment queue").WithCause(err)
	}

	logger.Info().Str("path", path).Msg("Enrichment queue opened")
	return &EnrichmentQueue{store: store, logger: logger}, nil
}

// Enqueue adds a pending job. Re-enqueueing an existing id is an upsert so
// re-imports refresh the pending job instead of duplicating it.
func (q *EnrichmentQueue) Enqueue(ctx context.Context, job *models.EnrichmentJob) error {
	if job.ID == "" {
		job.ID = common.NewJobID()
	}
	if job.Status == "" {
		job.Status = models.EnrichmentPending
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now()
	}

	if err := q.store.Upsert(job.ID, job); err != nil {
		return common.NewError(common.ErrInternal, "failed to enqueue job").WithCause(err)
	}

	q.logger.Debug().Str("job_id", job.ID).Str("node_id", job.NodeID).Msg("Enrichment job queued")
	return nil
}

// ClaimPending atomically flips up to limit pending jobs to running and
// returns them oldest first.
func (q *EnrichmentQueue) ClaimPending(ctx context.Context, limit int) ([]*models.EnrichmentJob, error) {
	if limit <= 0 {
		limit = 10
	}

	var pending []models.EnrichmentJob
	err := q.store.Find(&pending,
		badgerhold.Where("Status").Eq(models.EnrichmentPending).Index("Status").
			SortBy("EnqueuedAt").Limit(limit))
	if err != nil {
		return nil, common.NewError(common.ErrInternal, "failed to scan pending jobs").WithCause(err)
	}

	now := time.Now()
	claimed := make([]*models.EnrichmentJob, 0, len(pending))
	for i := range pending {
		job := pending[i]
		job.Status = models.EnrichmentRunning
		job.Attempts++
		job.StartedAt = &now
		if err := q.store.Update(job.ID, &job); err != nil {
			q.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to claim job, skipping")
			continue
		}
		claimed = append(claimed, &job)
	}
	return claimed, nil
}

// MarkDone finishes a job successfully.
func (q *EnrichmentQueue) MarkDone(ctx context.Context, jobID string) error {
	return q.finish(jobID, models.EnrichmentDone, "")
}

// MarkFailed records a failure. Jobs under the attempt cap go back to
// pending for a later drain; exhausted jobs are parked as failed.
func (q *EnrichmentQueue) MarkFailed(ctx context.Context, jobID string, cause error) error {
	var job models.EnrichmentJob
	if err := q.store.Get(jobID, &job); err != nil {
		return common.NewError(common.ErrNotFound, "job not found: "+jobID).WithCause(err)
	}

	message := ""
	if cause != nil {
		message = cause.Error()
	}

	if job.Attempts < maxJobAttempts {
		job.Status = models.EnrichmentPending
		job.LastError = message
		job.StartedAt = nil
		if err := q.store.Update(jobID, &job); err != nil {
			return common.NewError(common.ErrInternal, "failed to requeue job").WithCause(err)
		}
		q.logger.Warn().Str("job_id", jobID).Int("attempts", job.Attempts).Msg("Enrichment job requeued after failure")
		return nil
	}
	return q.finish(jobID, models.EnrichmentFailed, message)
}

func (q *EnrichmentQueue) finish(jobID, status, lastError string) error {
	var job models.EnrichmentJob
	if err := q.store.Get(jobID, &job); err != nil {
		return common.NewError(common.ErrNotFound, "job not found: "+jobID).WithCause(err)
	}

	now := time.Now()
	job.Status = status
	job.FinishedAt = &now
	if lastError != "" {
		job.LastError = lastError
	}
	if err := q.store.Update(jobID, &job); err != nil {
		return common.NewError(common.ErrInternal, "failed to update job").WithCause(err)
	}
	return nil
}

// Stats counts jobs per status.
func (q *EnrichmentQueue) Stats(ctx context.Context) (map[string]int, error) {
	stats := make(map[string]int, 4)
	for _, status := range []string{
		models.EnrichmentPending, models.EnrichmentRunning,
		models.EnrichmentDone, models.EnrichmentFailed,
	} {
		count, err := q.store.Count(&models.EnrichmentJob{},
			badgerhold.Where("Status").Eq(status).Index("Status"))
		if err != nil {
			return nil, common.NewError(common.ErrInternal, "failed to count jobs").WithCause(err)
		}
		stats[status] = int(count)
	}
	return stats, nil
}

// Close closes the underlying store.
func (q *EnrichmentQueue) Close() error {
	return q.store.Close()
}
