package enrichment

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/RBarbieri13/decant/internal/common"
	"github.com/RBarbieri13/decant/internal/interfaces"
	"github.com/RBarbieri13/decant/internal/models"
)

const (
	defaultSchedule          = "@every 30s"
	defaultRecomputeSchedule = "0 3 * * *"

	// claimBatch bounds how many jobs one drain cycle processes.
	claimBatch = 10

	// jobTimeout caps the outbound work of one job.
	jobTimeout = 2 * time.Minute
)

// Worker drains the Phase-2 queue on a cron schedule: re-extract with the
// premium path, refresh the node, mark it complete, refresh similarity.
type Worker struct {
	logger     arbor.ILogger
	config     *common.EnrichmentConfig
	queue      interfaces.EnrichmentQueue
	nodes      interfaces.NodeStorage
	trees      interfaces.TreeStorage
	extractors interfaces.ExtractorFactory
	similarity interfaces.SimilarityService
	cron       *cron.Cron
}

func NewWorker(
	logger arbor.ILogger,
	config *common.EnrichmentConfig,
	queue interfaces.EnrichmentQueue,
	nodes interfaces.NodeStorage,
	trees interfaces.TreeStorage,
	extractors interfaces.ExtractorFactory,
	similarity interfaces.SimilarityService,
) *Worker {
	return &Worker{
		logger:     logger,
		config:     config,
		queue:      queue,
		nodes:      nodes,
		trees:      trees,
		extractors: extractors,
		similarity: similarity,
		cron:       cron.New(),
	}
}

// Start registers the drain schedule and, when enabled, the nightly full
// similarity recompute, then starts the cron loop.
func (w *Worker) Start() error {
	schedule := w.config.Schedule
	if schedule == "" {
		schedule = defaultSchedule
	}
	if _, err := w.cron.AddFunc(schedule, w.Drain); err != nil {
		return err
	}

	if w.config.RecomputeEnabled {
		recompute := w.config.RecomputeSchedule
		if recompute == "" {
			recompute = defaultRecomputeSchedule
		}
		if _, err := w.cron.AddFunc(recompute, w.recomputeAll); err != nil {
			return err
		}
	}

	w.cron.Start()
	w.logger.Info().Str("schedule", schedule).Msg("Enrichment worker started")
	return nil
}

// Stop halts the cron loop and waits for running jobs.
func (w *Worker) Stop() {
	ctx := w.cron.Stop()
	<-ctx.Done()
	w.logger.Info().Msg("Enrichment worker stopped")
}

// Drain claims one batch of pending jobs and processes them sequentially.
func (w *Worker) Drain() {
	ctx := context.Background()

	jobs, err := w.queue.ClaimPending(ctx, claimBatch)
	if err != nil {
		w.logger.Warn().Err(err).Msg("Failed to claim enrichment jobs")
		return
	}

	for _, job := range jobs {
		if err := w.process(ctx, job); err != nil {
			w.logger.Warn().Err(err).Str("job_id", job.ID).Str("node_id", job.NodeID).Msg("Enrichment job failed")
			if markErr := w.queue.MarkFailed(ctx, job.ID, err); markErr != nil {
				w.logger.Warn().Err(markErr).Str("job_id", job.ID).Msg("Failed to mark job failed")
			}
			continue
		}
		if err := w.queue.MarkDone(ctx, job.ID); err != nil {
			w.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to mark job done")
		}
	}
}

// process runs Phase-2 for one node: premium re-extraction, node refresh,
// completeness flag, similarity update.
func (w *Worker) process(ctx context.Context, job *models.EnrichmentJob) error {
	ctx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	node, err := w.nodes.GetNode(ctx, job.NodeID)
	if err != nil {
		if common.CodeOf(err) == common.ErrNotFound {
			// Node deleted since enqueueing; the job is moot.
			w.logger.Debug().Str("node_id", job.NodeID).Msg("Enrichment target gone, dropping job")
			return nil
		}
		return err
	}

	extraction, err := w.extractors.Extract(ctx, node.URL)
	if err != nil {
		return err
	}
	if !extraction.Success && extraction.Error != nil && extraction.Error.Recoverable {
		return common.NewRecoverableError(common.ErrorCode(extraction.Error.Code), extraction.Error.Message)
	}

	patch := &models.NodePatch{HasCompleteMetadata: boolPtr(true)}
	if extraction.Success {
		fields := map[string]interface{}{"contentType": extraction.ContentType}
		for key, value := range extraction.Data {
			fields[key] = value
		}
		fields["phase2Completed"] = true
		patch.ExtractedFields = fields

		if summary, ok := extraction.Data["summary"].(string); ok && summary != "" {
			patch.AISummary = &summary
		}
		if title := extraction.Title(); title != "" && node.Title == node.SourceDomain {
			patch.Title = &title
		}
	}

	if _, err := w.nodes.UpdateNode(ctx, node.ID, patch); err != nil {
		return err
	}
	w.trees.InvalidateTree(models.HierarchyFunction, "")
	w.trees.InvalidateTree(models.HierarchyOrganization, "")

	if err := w.similarity.UpdateForNode(ctx, node.ID); err != nil {
		w.logger.Warn().Err(err).Str("node_id", node.ID).Msg("Similarity refresh failed during enrichment")
	}

	w.logger.Info().
		Str("node_id", node.ID).
		Str("method", string(extraction.Metadata.ExtractionMethod)).
		Msg("Enrichment complete")
	return nil
}

func (w *Worker) recomputeAll() {
	stats, err := w.similarity.RecomputeAll(context.Background())
	if err != nil {
		w.logger.Warn().Err(err).Msg("Nightly similarity recompute failed")
		return
	}
	w.logger.Info().
		Int("computed", stats.Computed).
		Int("stored", stats.Stored).
		Msg("Nightly similarity recompute finished")
}

func boolPtr(b bool) *bool { return &b }
