package enrichment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/RBarbieri13/decant/internal/common"
	"github.com/RBarbieri13/decant/internal/interfaces"
	"github.com/RBarbieri13/decant/internal/models"
)

type memQueue struct {
	pending []*models.EnrichmentJob
	done    []string
	failed  []string
}

func (q *memQueue) Enqueue(ctx context.Context, job *models.EnrichmentJob) error {
	q.pending = append(q.pending, job)
	return nil
}

func (q *memQueue) ClaimPending(ctx context.Context, limit int) ([]*models.EnrichmentJob, error) {
	if limit > len(q.pending) {
		limit = len(q.pending)
	}
	claimed := q.pending[:limit]
	q.pending = q.pending[limit:]
	return claimed, nil
}

func (q *memQueue) MarkDone(ctx context.Context, jobID string) error {
	q.done = append(q.done, jobID)
	return nil
}

func (q *memQueue) MarkFailed(ctx context.Context, jobID string, cause error) error {
	q.failed = append(q.failed, jobID)
	return nil
}

func (q *memQueue) Stats(ctx context.Context) (map[string]int, error) { return nil, nil }
func (q *memQueue) Close() error                                      { return nil }

type memNodes struct {
	nodes   map[string]*models.Node
	patches map[string]*models.NodePatch
}

func (m *memNodes) CreateNode(ctx context.Context, node *models.Node) error { return nil }

func (m *memNodes) CreateImportedNode(ctx context.Context, node *models.Node, entries []models.MetadataEntry, change *models.HierarchyCodeChange) error {
	return nil
}

func (m *memNodes) GetNode(ctx context.Context, id string) (*models.Node, error) {
	if node, ok := m.nodes[id]; ok {
		return node, nil
	}
	return nil, common.NewError(common.ErrNotFound, "no node "+id)
}

func (m *memNodes) GetNodeByURL(ctx context.Context, url string) (*models.Node, error) {
	return nil, common.NewError(common.ErrNotFound, "no node")
}

func (m *memNodes) ListNodes(ctx context.Context, limit, offset int) ([]*models.Node, int, error) {
	return nil, 0, nil
}

func (m *memNodes) UpdateNode(ctx context.Context, id string, patch *models.NodePatch) (*models.Node, error) {
	m.patches[id] = patch
	return m.nodes[id], nil
}

func (m *memNodes) DeleteNode(ctx context.Context, id string) error { return nil }

func (m *memNodes) MergeNodes(ctx context.Context, primaryID, secondaryID string, opts models.MergeOptions) (*models.Node, error) {
	return nil, nil
}

func (m *memNodes) MoveNode(ctx context.Context, id, targetParentID string, view models.HierarchyView) (*models.Node, error) {
	return nil, nil
}

func (m *memNodes) SiblingCodes(ctx context.Context, view models.HierarchyView, prefix string) ([]string, error) {
	return nil, nil
}

type memTrees struct{ invalidations int }

func (m *memTrees) GetTree(ctx context.Context, view models.HierarchyView) ([]*models.TreeNode, error) {
	return nil, nil
}

func (m *memTrees) GetSubtree(ctx context.Context, view models.HierarchyView, path string) (*models.TreeNode, error) {
	return nil, nil
}

func (m *memTrees) GetNodeByCode(ctx context.Context, view models.HierarchyView, code string) (*models.Node, error) {
	return nil, nil
}

func (m *memTrees) GetAncestryPath(ctx context.Context, view models.HierarchyView, nodeID string) ([]*models.Node, error) {
	return nil, nil
}

func (m *memTrees) InvalidateTree(view models.HierarchyView, prefix string) { m.invalidations++ }

type memExtractors struct {
	result *models.ExtractionResult
	err    error
}

func (m *memExtractors) DetectContentType(url string) string           { return models.ContentTypeArticle }
func (m *memExtractors) GetExtractor(url string) interfaces.Extractor  { return nil }

func (m *memExtractors) Extract(ctx context.Context, url string) (*models.ExtractionResult, error) {
	return m.result, m.err
}

func (m *memExtractors) ExtractBatch(ctx context.Context, urls []string) map[string]*models.ExtractionResult {
	return nil
}

type memSimilarity struct{ updated []string }

func (m *memSimilarity) ComputeFor(ctx context.Context, nodeID string) ([]*models.NodeSimilarity, error) {
	return nil, nil
}

func (m *memSimilarity) BatchCompute(ctx context.Context, nodeIDs []string) (*models.BatchComputeStats, error) {
	return &models.BatchComputeStats{}, nil
}

func (m *memSimilarity) RecomputeAll(ctx context.Context) (*models.BatchComputeStats, error) {
	return &models.BatchComputeStats{Computed: 1, Stored: 1}, nil
}

func (m *memSimilarity) UpdateForNode(ctx context.Context, nodeID string) error {
	m.updated = append(m.updated, nodeID)
	return nil
}

func (m *memSimilarity) GetSimilar(ctx context.Context, nodeID string, limit int) ([]*models.SimilarNode, error) {
	return nil, nil
}

func (m *memSimilarity) FindCommonSimilar(ctx context.Context, nodeIDs []string, minScore float64, limit int) ([]*models.CommonSimilarResult, error) {
	return nil, nil
}

type workerFixture struct {
	worker     *Worker
	queue      *memQueue
	nodes      *memNodes
	similarity *memSimilarity
	extractors *memExtractors
}

func newWorkerFixture() *workerFixture {
	f := &workerFixture{
		queue: &memQueue{},
		nodes: &memNodes{
			nodes:   map[string]*models.Node{},
			patches: map[string]*models.NodePatch{},
		},
		similarity: &memSimilarity{},
		extractors: &memExtractors{
			result: &models.ExtractionResult{
				Success:     true,
				ContentType: models.ContentTypeArticle,
				Data: map[string]interface{}{
					"title":   "Deep Title",
					"summary": "A deeper summary.",
				},
				Metadata: models.ExtractionMetadata{ExtractionMethod: models.MethodAPIPremium, Confidence: 1.0},
			},
		},
	}
	f.worker = NewWorker(arbor.NewLogger(), &common.EnrichmentConfig{}, f.queue, f.nodes,
		&memTrees{}, f.extractors, f.similarity)
	return f
}

func pendingJob(id, nodeID string) *models.EnrichmentJob {
	return &models.EnrichmentJob{ID: id, NodeID: nodeID, URL: "https://example.com/a", Status: models.EnrichmentPending}
}

func TestWorker_DrainCompletesJobs(t *testing.T) {
	f := newWorkerFixture()
	f.nodes.nodes["node-1"] = &models.Node{ID: "node-1", URL: "https://example.com/a", Title: "t", SourceDomain: "example.com"}
	f.queue.pending = []*models.EnrichmentJob{pendingJob("job-1", "node-1")}

	f.worker.Drain()

	assert.Equal(t, []string{"job-1"}, f.queue.done)
	assert.Empty(t, f.queue.failed)

	patch := f.nodes.patches["node-1"]
	require.NotNil(t, patch)
	require.NotNil(t, patch.HasCompleteMetadata)
	assert.True(t, *patch.HasCompleteMetadata)
	require.NotNil(t, patch.AISummary)
	assert.Equal(t, "A deeper summary.", *patch.AISummary)
	assert.Equal(t, true, patch.ExtractedFields["phase2Completed"])

	assert.Equal(t, []string{"node-1"}, f.similarity.updated)
}

func TestWorker_RecoverableFailureMarksFailed(t *testing.T) {
	f := newWorkerFixture()
	f.nodes.nodes["node-1"] = &models.Node{ID: "node-1", URL: "https://example.com/a"}
	f.extractors.result = &models.ExtractionResult{
		Success: false,
		Error:   &models.ExtractionError{Code: string(common.ErrNetworkTimeout), Message: "timeout", Recoverable: true},
	}
	f.queue.pending = []*models.EnrichmentJob{pendingJob("job-1", "node-1")}

	f.worker.Drain()

	assert.Empty(t, f.queue.done)
	assert.Equal(t, []string{"job-1"}, f.queue.failed)
}

func TestWorker_MissingNodeDropsJob(t *testing.T) {
	f := newWorkerFixture()
	f.queue.pending = []*models.EnrichmentJob{pendingJob("job-1", "node-gone")}

	f.worker.Drain()

	assert.Equal(t, []string{"job-1"}, f.queue.done, "a moot job completes without error")
	assert.Empty(t, f.queue.failed)
	assert.Empty(t, f.nodes.patches)
}

func TestWorker_NonRecoverableExtractionStillCompletes(t *testing.T) {
	f := newWorkerFixture()
	f.nodes.nodes["node-1"] = &models.Node{ID: "node-1", URL: "https://example.com/a"}
	f.extractors.result = &models.ExtractionResult{
		Success: false,
		Error:   &models.ExtractionError{Code: string(common.ErrContentNotFound), Message: "404", Recoverable: false},
	}
	f.queue.pending = []*models.EnrichmentJob{pendingJob("job-1", "node-1")}

	f.worker.Drain()

	// Retrying a 404 forever is pointless; the node is flagged complete
	// with what it has.
	assert.Equal(t, []string{"job-1"}, f.queue.done)
	patch := f.nodes.patches["node-1"]
	require.NotNil(t, patch)
	assert.Nil(t, patch.ExtractedFields, "failed extraction does not overwrite fields")
}
