package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/RBarbieri13/decant/internal/models"
)

func searchFixture(t *testing.T) (*SearchStore, *NodeStore, context.Context) {
	t.Helper()
	db := testDB(t)
	return NewSearchStore(db, arbor.NewLogger()), NewNodeStore(db, arbor.NewLogger()), context.Background()
}

func seedSearchNodes(t *testing.T, nodes *NodeStore, ctx context.Context) {
	t.Helper()

	langchain := testNode("LangChain agent framework", "https://example.com/langchain")
	langchain.ShortDescription = "Build LLM agents with composable chains"
	langchain.Company = "LangChain Inc"
	langchain.Segment = "A"
	langchain.ContentType = "a"
	require.NoError(t, nodes.CreateNode(ctx, langchain))

	postgres := testNode("Postgres indexing guide", "https://example.com/postgres")
	postgres.ShortDescription = "How btree indexes work"
	postgres.Company = "Crunchy Data"
	postgres.Segment = "D"
	postgres.ContentType = "b"
	require.NoError(t, nodes.CreateNode(ctx, postgres))

	deleted := testNode("Deleted langchain post", "https://example.com/deleted")
	deleted.ShortDescription = "langchain but gone"
	require.NoError(t, nodes.CreateNode(ctx, deleted))
	require.NoError(t, nodes.DeleteNode(ctx, deleted.ID))
}

func TestSearchStore_LikeFallback(t *testing.T) {
	search, nodes, ctx := searchFixture(t)
	seedSearchNodes(t, nodes, ctx)

	results, err := search.SearchNodes(ctx, "langchain", 10, 0)
	require.NoError(t, err)
	require.Len(t, results, 1, "deleted nodes are hidden")
	assert.Equal(t, "LangChain agent framework", results[0].Title)
}

func TestSearchStore_AdvancedRankedSearch(t *testing.T) {
	search, nodes, ctx := searchFixture(t)
	seedSearchNodes(t, nodes, ctx)

	results, err := search.SearchNodesAdvanced(ctx, "agents", nil, 1, 10)
	require.NoError(t, err)
	require.Len(t, results.Hits, 1)
	assert.Equal(t, 1, results.Total)

	hit := results.Hits[0]
	assert.Equal(t, "LangChain agent framework", hit.Node.Title)
	assert.Contains(t, hit.MatchedFields, "shortDescription")
	assert.Contains(t, hit.Snippet, highlightOpen)
}

func TestSearchStore_AdvancedFiltersAndTogether(t *testing.T) {
	search, nodes, ctx := searchFixture(t)
	seedSearchNodes(t, nodes, ctx)

	results, err := search.SearchNodesAdvanced(ctx, "", &models.SearchFilters{
		Segments:     []string{"A"},
		ContentTypes: []string{"a"},
	}, 1, 10)
	require.NoError(t, err)
	require.Len(t, results.Hits, 1)
	assert.Equal(t, "A", results.Hits[0].Node.Segment)

	// Conflicting filters match nothing.
	results, err = search.SearchNodesAdvanced(ctx, "", &models.SearchFilters{
		Segments:     []string{"A"},
		ContentTypes: []string{"b"},
	}, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, results.Hits)
	assert.Equal(t, 0, results.Total)
}

func TestSearchStore_OrganizationFilterIsSubstring(t *testing.T) {
	search, nodes, ctx := searchFixture(t)
	seedSearchNodes(t, nodes, ctx)

	results, err := search.SearchNodesAdvanced(ctx, "", &models.SearchFilters{
		Organizations: []string{"Crunchy"},
	}, 1, 10)
	require.NoError(t, err)
	require.Len(t, results.Hits, 1)
	assert.Equal(t, "Crunchy Data", results.Hits[0].Node.Company)
}

func TestSearchStore_Facets(t *testing.T) {
	search, nodes, ctx := searchFixture(t)
	seedSearchNodes(t, nodes, ctx)

	results, err := search.SearchNodesAdvanced(ctx, "", nil, 1, 10)
	require.NoError(t, err)
	require.NotNil(t, results.Facets)

	assert.Equal(t, 1, results.Facets.Segments["A"])
	assert.Equal(t, 1, results.Facets.Segments["D"])
	assert.Equal(t, 1, results.Facets.Organizations["LangChain Inc"])
	assert.Equal(t, 1, results.Facets.Organizations["Crunchy Data"])
}

func TestSearchStore_QuotedTokensDoNotBreakFTS(t *testing.T) {
	search, nodes, ctx := searchFixture(t)
	seedSearchNodes(t, nodes, ctx)

	// FTS5 operators and quotes in user input must not error out.
	for _, query := range []string{`AND OR NOT`, `"unbalanced`, `col:value`, `(parens)`} {
		_, err := search.SearchNodesAdvanced(ctx, query, nil, 1, 10)
		require.NoError(t, err, "query %q", query)
	}
}

func TestSearchStore_CountUnclamped(t *testing.T) {
	search, nodes, ctx := searchFixture(t)
	seedSearchNodes(t, nodes, ctx)

	total, err := search.CountSearchResults(ctx, "", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

func TestTopN(t *testing.T) {
	counts := map[string]int{"a": 5, "b": 3, "c": 3, "d": 1}
	top := topN(counts, 2)
	assert.Len(t, top, 2)
	assert.Equal(t, 5, top["a"])
	assert.Equal(t, 3, top["b"], "ties break lexicographically")
}
