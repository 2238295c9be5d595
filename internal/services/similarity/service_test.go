package similarity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/RBarbieri13/decant/internal/models"
)

// memMetadata serves canned junction rows.
type memMetadata struct {
	rows map[string][]models.NodeMetadataRow
}

func (m *memMetadata) SetNodeMetadata(ctx context.Context, nodeID string, entries []models.MetadataEntry) error {
	return nil
}

func (m *memMetadata) GetNodeMetadata(ctx context.Context, nodeID string) ([]models.NodeMetadataRow, error) {
	return m.rows[nodeID], nil
}

func (m *memMetadata) GetCodesForNodes(ctx context.Context, nodeIDs []string) (map[string][]models.NodeMetadataRow, error) {
	out := make(map[string][]models.NodeMetadataRow)
	for _, id := range nodeIDs {
		if rows, ok := m.rows[id]; ok {
			out[id] = rows
		}
	}
	return out, nil
}

func (m *memMetadata) NodesWithMetadata(ctx context.Context) ([]string, error) {
	var ids []string
	for id := range m.rows {
		ids = append(ids, id)
	}
	return ids, nil
}

// memEdges records upserts and deletes.
type memEdges struct {
	edges   map[[2]string]*models.NodeSimilarity
	deleted []string
}

func newMemEdges() *memEdges {
	return &memEdges{edges: make(map[[2]string]*models.NodeSimilarity)}
}

func (m *memEdges) UpsertSimilarity(ctx context.Context, edge *models.NodeSimilarity) error {
	return m.UpsertSimilarities(ctx, []*models.NodeSimilarity{edge})
}

func (m *memEdges) UpsertSimilarities(ctx context.Context, edges []*models.NodeSimilarity) error {
	for _, edge := range edges {
		m.edges[[2]string{edge.NodeAID, edge.NodeBID}] = edge
	}
	return nil
}

func (m *memEdges) DeleteForNode(ctx context.Context, nodeID string) error {
	m.deleted = append(m.deleted, nodeID)
	for key := range m.edges {
		if key[0] == nodeID || key[1] == nodeID {
			delete(m.edges, key)
		}
	}
	return nil
}

func (m *memEdges) DeleteForNodes(ctx context.Context, nodeIDs []string) error {
	for _, id := range nodeIDs {
		if err := m.DeleteForNode(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (m *memEdges) GetSimilar(ctx context.Context, nodeID string, limit int) ([]*models.SimilarNode, error) {
	return nil, nil
}

func (m *memEdges) FindCommonSimilar(ctx context.Context, nodeIDs []string, minScore float64, limit int) ([]*models.CommonSimilarResult, error) {
	return nil, nil
}

func rows(codes ...string) []models.NodeMetadataRow {
	var out []models.NodeMetadataRow
	for _, typed := range codes {
		mt, code, err := models.ParseTypedCode(typed)
		if err != nil {
			panic(err)
		}
		out = append(out, models.NodeMetadataRow{Type: mt, Code: code})
	}
	return out
}

func set(codes ...string) map[string]models.MetadataType {
	return codeSet(rows(codes...))
}

func TestScore_WeightedJaccard(t *testing.T) {
	// Shared ORG (2.0); unshared PRC on one side and LIC on the other
	// (0.5 each): 2.0 / (2.0 + 0.5 + 0.5) = 0.667.
	score, ok := Score(
		set("ORG:openai", "PRC:agile"),
		set("ORG:openai", "LIC:mit"),
	)
	require.True(t, ok)
	assert.InDelta(t, 2.0/3.0, score, 1e-9)
}

func TestScore_IdenticalSetsScoreOne(t *testing.T) {
	a := set("ORG:openai", "TEC:golang", "DOM:ml")
	score, ok := Score(a, a)
	require.True(t, ok)
	assert.InDelta(t, 1.0, score, 1e-9)
}

func TestScore_NullCases(t *testing.T) {
	_, ok := Score(nil, set("ORG:openai"))
	assert.False(t, ok, "empty left side yields no edge")

	_, ok = Score(set("ORG:openai"), nil)
	assert.False(t, ok, "empty right side yields no edge")

	_, ok = Score(set("ORG:openai"), set("ORG:anthropic"))
	assert.False(t, ok, "empty intersection yields no edge")
}

func TestService_ComputeFor(t *testing.T) {
	metadata := &memMetadata{rows: map[string][]models.NodeMetadataRow{
		"node-a": rows("ORG:openai", "TEC:golang"),
		"node-b": rows("ORG:openai", "TEC:golang"),
		"node-c": rows("ORG:anthropic"),
	}}
	edges := newMemEdges()
	service := NewService(arbor.NewLogger(), metadata, edges)

	computed, err := service.ComputeFor(context.Background(), "node-a")
	require.NoError(t, err)
	require.Len(t, computed, 1, "node-c shares nothing")
	assert.Equal(t, "node-a", computed[0].NodeAID)
	assert.Equal(t, "node-b", computed[0].NodeBID)
	assert.InDelta(t, 1.0, computed[0].Score, 1e-9)
	assert.Equal(t, models.SimilarityMethodJaccardWeighted, computed[0].Method)
	assert.Len(t, edges.edges, 1)
}

func TestService_BatchCompute(t *testing.T) {
	metadata := &memMetadata{rows: map[string][]models.NodeMetadataRow{
		"node-a": rows("ORG:openai", "PRC:agile"),
		"node-b": rows("ORG:openai", "LIC:mit"),
		"node-c": rows("ORG:anthropic"),
	}}
	edges := newMemEdges()
	service := NewService(arbor.NewLogger(), metadata, edges)

	stats, err := service.BatchCompute(context.Background(), []string{"node-a", "node-b", "node-c"})
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Computed)
	assert.Equal(t, 1, stats.Stored)
	assert.Equal(t, 2, stats.Skipped)
	assert.Equal(t, 0, stats.Errors)
	assert.Len(t, edges.edges, 1)
}

func TestService_UpdateForNodeClearsOldEdges(t *testing.T) {
	metadata := &memMetadata{rows: map[string][]models.NodeMetadataRow{
		"node-a": rows("ORG:openai"),
		"node-b": rows("ORG:openai"),
	}}
	edges := newMemEdges()
	edges.edges[[2]string{"node-a", "node-z"}] = &models.NodeSimilarity{NodeAID: "node-a", NodeBID: "node-z", Score: 0.5}
	service := NewService(arbor.NewLogger(), metadata, edges)

	require.NoError(t, service.UpdateForNode(context.Background(), "node-a"))
	assert.Contains(t, edges.deleted, "node-a")
	_, stale := edges.edges[[2]string{"node-a", "node-z"}]
	assert.False(t, stale, "old edge removed")
	_, fresh := edges.edges[[2]string{"node-a", "node-b"}]
	assert.True(t, fresh)
}

func TestService_RecomputeAll(t *testing.T) {
	metadata := &memMetadata{rows: map[string][]models.NodeMetadataRow{
		"node-a": rows("ORG:openai"),
		"node-b": rows("ORG:openai"),
	}}
	edges := newMemEdges()
	service := NewService(arbor.NewLogger(), metadata, edges)

	stats, err := service.RecomputeAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Computed)
	assert.Equal(t, 1, stats.Stored)
	assert.Len(t, edges.edges, 1)
}
