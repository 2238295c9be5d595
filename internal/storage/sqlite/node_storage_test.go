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

func testNodeStore(t *testing.T) (*NodeStore, *DB) {
	t.Helper()
	db := testDB(t)
	return NewNodeStore(db, arbor.NewLogger()), db
}

func TestNodeStore_CreateAndGet(t *testing.T) {
	store, _ := testNodeStore(t)
	ctx := context.Background()

	node := testNode("LangChain Docs", "https://docs.langchain.com")
	node.KeyConcepts = []string{"agents", "chains"}
	node.MetadataTags = []string{"TEC:langchain", "DOM:ai"}

	require.NoError(t, store.CreateNode(ctx, node))

	got, err := store.GetNode(ctx, node.ID)
	require.NoError(t, err)
	assert.Equal(t, "LangChain Docs", got.Title)
	assert.Equal(t, []string{"agents", "chains"}, got.KeyConcepts)
	assert.Equal(t, []string{"TEC:langchain", "DOM:ai"}, got.MetadataTags)
	assert.Equal(t, "article", got.ExtractedFields["contentType"])
}

func TestNodeStore_DuplicateURLRejected(t *testing.T) {
	store, _ := testNodeStore(t)
	ctx := context.Background()

	first := testNode("First", "https://example.com/post")
	require.NoError(t, store.CreateNode(ctx, first))

	second := testNode("Second", "https://example.com/post")
	err := store.CreateNode(ctx, second)
	require.Error(t, err)
	assert.Equal(t, common.ErrDuplicateURL, common.CodeOf(err))
}

func TestNodeStore_DeletedURLCanBeReused(t *testing.T) {
	store, _ := testNodeStore(t)
	ctx := context.Background()

	first := testNode("First", "https://example.com/post")
	require.NoError(t, store.CreateNode(ctx, first))
	require.NoError(t, store.DeleteNode(ctx, first.ID))

	second := testNode("Second", "https://example.com/post")
	require.NoError(t, store.CreateNode(ctx, second))

	_, err := store.GetNode(ctx, first.ID)
	assert.Equal(t, common.ErrNotFound, common.CodeOf(err))
}

func TestNodeStore_GetNodeByURL(t *testing.T) {
	store, _ := testNodeStore(t)
	ctx := context.Background()

	node := testNode("Target", "https://example.com/target")
	require.NoError(t, store.CreateNode(ctx, node))

	got, err := store.GetNodeByURL(ctx, "https://example.com/target")
	require.NoError(t, err)
	assert.Equal(t, node.ID, got.ID)

	_, err = store.GetNodeByURL(ctx, "https://example.com/missing")
	assert.Equal(t, common.ErrNotFound, common.CodeOf(err))
}

func TestNodeStore_UpdatePatchesOnlyGivenFields(t *testing.T) {
	store, _ := testNodeStore(t)
	ctx := context.Background()

	node := testNode("Original", "https://example.com/patch")
	node.ShortDescription = "keep me"
	require.NoError(t, store.CreateNode(ctx, node))

	title := "Updated"
	complete := true
	updated, err := store.UpdateNode(ctx, node.ID, &models.NodePatch{
		Title:               &title,
		HasCompleteMetadata: &complete,
	})
	require.NoError(t, err)
	assert.Equal(t, "Updated", updated.Title)
	assert.Equal(t, "keep me", updated.ShortDescription)
	assert.True(t, updated.HasCompleteMetadata)
}

func TestNodeStore_ListNodesPagination(t *testing.T) {
	store, _ := testNodeStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		node := testNode("Node", "https://example.com/"+string(rune('a'+i)))
		require.NoError(t, store.CreateNode(ctx, node))
	}

	nodes, total, err := store.ListNodes(ctx, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Len(t, nodes, 2)

	nodes, total, err = store.ListNodes(ctx, 10, 4)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Len(t, nodes, 1)
}

func TestNodeStore_CreateImportedNodeAtomic(t *testing.T) {
	db := testDB(t)
	store := NewNodeStore(db, arbor.NewLogger())
	metadata := NewMetadataStore(db, arbor.NewLogger())
	audit := NewAuditStore(db, arbor.NewLogger())
	ctx := context.Background()

	node := testNode("Imported", "https://example.com/imported")
	node.FunctionHierarchyCode = "A.LLM.a.langchain"
	entries := []models.MetadataEntry{
		{Type: models.MetadataTech, Code: "langchain", Confidence: 0.9, Source: models.SourceAI},
		{Type: models.MetadataDomain, Code: "ai", Confidence: 0.8, Source: models.SourceAI},
	}
	change := &models.HierarchyCodeChange{
		ChangeType:    models.ChangeCreated,
		HierarchyType: models.HierarchyFunction,
		TriggeredBy:   models.TriggerImport,
		NewCode:       node.FunctionHierarchyCode,
		NodeID:        node.ID,
	}

	require.NoError(t, store.CreateImportedNode(ctx, node, entries, change))

	rows, err := metadata.GetNodeMetadata(ctx, node.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	changes, err := audit.ListChangesForNode(ctx, node.ID, 10)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, models.ChangeCreated, changes[0].ChangeType)
	assert.Equal(t, "A.LLM.a.langchain", changes[0].NewCode)
}

func TestNodeStore_MergeNodes(t *testing.T) {
	db := testDB(t)
	store := NewNodeStore(db, arbor.NewLogger())
	ctx := context.Background()

	primary := testNode("Primary", "https://example.com/primary")
	primary.AISummary = "primary summary"
	primary.FunctionHierarchyCode = "A.LLM.a.primary"
	require.NoError(t, store.CreateNode(ctx, primary))

	secondary := testNode("Secondary", "https://example.com/secondary")
	secondary.Company = "Acme"
	secondary.AISummary = "secondary summary"
	secondary.FunctionHierarchyCode = "A.LLM.a.secondary"
	secondary.KeyConcepts = []string{"extra"}
	require.NoError(t, store.CreateNode(ctx, secondary))

	child := testNode("Child", "https://example.com/child")
	child.FunctionParentID = secondary.ID
	child.FunctionHierarchyCode = "A.LLM.a.secondary.child"
	require.NoError(t, store.CreateNode(ctx, child))

	merged, err := store.MergeNodes(ctx, primary.ID, secondary.ID, models.MergeOptions{AppendSummary: true})
	require.NoError(t, err)

	assert.Equal(t, "Acme", merged.Company, "empty fields filled from secondary")
	assert.Equal(t, "primary summary\n\nsecondary summary", merged.AISummary)
	assert.Contains(t, merged.KeyConcepts, "extra")

	_, err = store.GetNode(ctx, secondary.ID)
	assert.Equal(t, common.ErrNotFound, common.CodeOf(err))

	movedChild, err := store.GetNode(ctx, child.ID)
	require.NoError(t, err)
	assert.Equal(t, primary.ID, movedChild.FunctionParentID)
	assert.Equal(t, "A.LLM.a.primary.child", movedChild.FunctionHierarchyCode)
}

func TestNodeStore_MoveNodeRewritesSubtree(t *testing.T) {
	store, _ := testNodeStore(t)
	ctx := context.Background()

	parent := testNode("Parent", "https://example.com/parent")
	parent.FunctionHierarchyCode = "A.LLM.a.parent"
	require.NoError(t, store.CreateNode(ctx, parent))

	node := testNode("Moving", "https://example.com/moving")
	node.FunctionHierarchyCode = "A.AGT.a.moving"
	require.NoError(t, store.CreateNode(ctx, node))

	grandchild := testNode("Grandchild", "https://example.com/grandchild")
	grandchild.FunctionParentID = node.ID
	grandchild.FunctionHierarchyCode = "A.AGT.a.moving.sub"
	require.NoError(t, store.CreateNode(ctx, grandchild))

	moved, err := store.MoveNode(ctx, node.ID, parent.ID, models.HierarchyFunction)
	require.NoError(t, err)
	assert.Equal(t, "A.LLM.a.parent.moving", moved.FunctionHierarchyCode)
	assert.Equal(t, parent.ID, moved.FunctionParentID)

	sub, err := store.GetNode(ctx, grandchild.ID)
	require.NoError(t, err)
	assert.Equal(t, "A.LLM.a.parent.moving.sub", sub.FunctionHierarchyCode)
}

func TestNodeStore_MoveNodeRejectsOwnSubtree(t *testing.T) {
	store, _ := testNodeStore(t)
	ctx := context.Background()

	node := testNode("Root", "https://example.com/root")
	node.FunctionHierarchyCode = "A.LLM.a.root"
	require.NoError(t, store.CreateNode(ctx, node))

	child := testNode("Child", "https://example.com/child2")
	child.FunctionParentID = node.ID
	child.FunctionHierarchyCode = "A.LLM.a.root.child"
	require.NoError(t, store.CreateNode(ctx, child))

	_, err := store.MoveNode(ctx, node.ID, child.ID, models.HierarchyFunction)
	require.Error(t, err)
	assert.Equal(t, common.ErrConflict, common.CodeOf(err))
}

func TestNodeStore_SiblingCodes(t *testing.T) {
	store, _ := testNodeStore(t)
	ctx := context.Background()

	for _, code := range []string{"A.LLM.a.alpha", "A.LLM.a.beta", "A.LLM.a.beta.nested", "A.AGT.a.other"} {
		node := testNode("Node "+code, "https://example.com/"+code)
		node.FunctionHierarchyCode = code
		require.NoError(t, store.CreateNode(ctx, node))
	}

	segments, err := store.SiblingCodes(ctx, models.HierarchyFunction, "A.LLM.a")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alpha", "beta"}, segments)
}
