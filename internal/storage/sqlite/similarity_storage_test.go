package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/RBarbieri13/decant/internal/common"
	"github.com/RBarbieri13/decant/internal/models"
)

func similarityFixture(t *testing.T) (*SimilarityStore, *NodeStore, context.Context) {
	t.Helper()
	db := testDB(t)
	return NewSimilarityStore(db, arbor.NewLogger()), NewNodeStore(db, arbor.NewLogger()), context.Background()
}

func TestSimilarityStore_UpsertNormalizesPair(t *testing.T) {
	store, nodes, ctx := similarityFixture(t)

	a := testNode("A", "https://example.com/sim-a")
	b := testNode("B", "https://example.com/sim-b")
	require.NoError(t, nodes.CreateNode(ctx, a))
	require.NoError(t, nodes.CreateNode(ctx, b))

	// Insert in reverse order; the stored row is still normalized.
	require.NoError(t, store.UpsertSimilarity(ctx, &models.NodeSimilarity{
		NodeAID: maxID(a.ID, b.ID), NodeBID: minID(a.ID, b.ID), Score: 0.4,
	}))
	require.NoError(t, store.UpsertSimilarity(ctx, &models.NodeSimilarity{
		NodeAID: minID(a.ID, b.ID), NodeBID: maxID(a.ID, b.ID), Score: 0.7,
	}))

	similar, err := store.GetSimilar(ctx, a.ID, 10)
	require.NoError(t, err)
	require.Len(t, similar, 1, "both insert orders hit the same row")
	assert.InDelta(t, 0.7, similar[0].Score, 1e-9)
}

func TestSimilarityStore_RejectsSelfPairAndBadScore(t *testing.T) {
	store, nodes, ctx := similarityFixture(t)

	a := testNode("A", "https://example.com/self")
	require.NoError(t, nodes.CreateNode(ctx, a))

	err := store.UpsertSimilarity(ctx, &models.NodeSimilarity{NodeAID: a.ID, NodeBID: a.ID, Score: 0.5})
	assert.Equal(t, common.ErrValidationFailed, common.CodeOf(err))

	err = store.UpsertSimilarity(ctx, &models.NodeSimilarity{NodeAID: a.ID, NodeBID: "other", Score: 1.5})
	assert.Equal(t, common.ErrValidationFailed, common.CodeOf(err))
}

func TestSimilarityStore_GetSimilarOrdersByScore(t *testing.T) {
	store, nodes, ctx := similarityFixture(t)

	center := testNode("Center", "https://example.com/center")
	require.NoError(t, nodes.CreateNode(ctx, center))

	scores := map[string]float64{"near": 0.9, "mid": 0.5, "far": 0.1}
	for name, score := range scores {
		other := testNode(name, "https://example.com/"+name)
		require.NoError(t, nodes.CreateNode(ctx, other))
		require.NoError(t, store.UpsertSimilarity(ctx, &models.NodeSimilarity{
			NodeAID: center.ID, NodeBID: other.ID, Score: score,
		}))
	}

	similar, err := store.GetSimilar(ctx, center.ID, 2)
	require.NoError(t, err)
	require.Len(t, similar, 2)
	assert.Equal(t, "near", similar[0].Title)
	assert.Equal(t, "mid", similar[1].Title)
}

func TestSimilarityStore_GetSimilarHidesDeletedNeighbors(t *testing.T) {
	store, nodes, ctx := similarityFixture(t)

	center := testNode("Center", "https://example.com/center2")
	neighbor := testNode("Neighbor", "https://example.com/neighbor")
	require.NoError(t, nodes.CreateNode(ctx, center))
	require.NoError(t, nodes.CreateNode(ctx, neighbor))
	require.NoError(t, store.UpsertSimilarity(ctx, &models.NodeSimilarity{
		NodeAID: center.ID, NodeBID: neighbor.ID, Score: 0.8,
	}))

	require.NoError(t, nodes.DeleteNode(ctx, neighbor.ID))

	similar, err := store.GetSimilar(ctx, center.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, similar)
}

func TestSimilarityStore_FindCommonSimilar(t *testing.T) {
	store, nodes, ctx := similarityFixture(t)

	a := testNode("A", "https://example.com/common-a")
	b := testNode("B", "https://example.com/common-b")
	shared := testNode("Shared", "https://example.com/common-shared")
	single := testNode("Single", "https://example.com/common-single")
	for _, n := range []*models.Node{a, b, shared, single} {
		require.NoError(t, nodes.CreateNode(ctx, n))
	}

	require.NoError(t, store.UpsertSimilarities(ctx, []*models.NodeSimilarity{
		{NodeAID: a.ID, NodeBID: shared.ID, Score: 0.6},
		{NodeAID: b.ID, NodeBID: shared.ID, Score: 0.5},
		{NodeAID: a.ID, NodeBID: single.ID, Score: 0.9},
		{NodeAID: a.ID, NodeBID: b.ID, Score: 0.7},
	}))

	results, err := store.FindCommonSimilar(ctx, []string{a.ID, b.ID}, 0.1, 10)
	require.NoError(t, err)
	require.Len(t, results, 2, "input nodes are excluded from results")

	assert.Equal(t, shared.ID, results[0].NodeID, "two matches beat one higher score")
	assert.Equal(t, 2, results[0].MatchCount)
	assert.InDelta(t, 1.1, results[0].TotalScore, 1e-9)
	assert.Equal(t, single.ID, results[1].NodeID)
}

func TestSimilarityStore_DeleteForNode(t *testing.T) {
	store, nodes, ctx := similarityFixture(t)

	a := testNode("A", "https://example.com/del-a")
	b := testNode("B", "https://example.com/del-b")
	require.NoError(t, nodes.CreateNode(ctx, a))
	require.NoError(t, nodes.CreateNode(ctx, b))
	require.NoError(t, store.UpsertSimilarity(ctx, &models.NodeSimilarity{
		NodeAID: a.ID, NodeBID: b.ID, Score: 0.3,
	}))

	require.NoError(t, store.DeleteForNode(ctx, b.ID))

	similar, err := store.GetSimilar(ctx, a.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, similar)
}

func minID(a, b string) string {
	if a < b {
		return a
	}
	return b
}

func maxID(a, b string) string {
	if a > b {
		return a
	}
	return b
}
