package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/RBarbieri13/decant/internal/models"
)

func TestMetadataStore_SetReplacesAtomically(t *testing.T) {
	db := testDB(t)
	nodes := NewNodeStore(db, arbor.NewLogger())
	store := NewMetadataStore(db, arbor.NewLogger())
	ctx := context.Background()

	node := testNode("Tagged", "https://example.com/tagged")
	require.NoError(t, nodes.CreateNode(ctx, node))

	first := []models.MetadataEntry{
		{Type: models.MetadataTech, Code: "golang", Confidence: 0.9},
		{Type: models.MetadataDomain, Code: "backend", Confidence: 0.8},
	}
	require.NoError(t, store.SetNodeMetadata(ctx, node.ID, first))

	second := []models.MetadataEntry{
		{Type: models.MetadataTech, Code: "golang", Confidence: 0.95},
		{Type: models.MetadataConcept, Code: "concurrency", Confidence: 0.7},
	}
	require.NoError(t, store.SetNodeMetadata(ctx, node.ID, second))

	rows, err := store.GetNodeMetadata(ctx, node.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	codes := make(map[string]bool)
	for _, row := range rows {
		codes[string(row.Type)+":"+row.Code] = true
	}
	assert.True(t, codes["TEC:golang"])
	assert.True(t, codes["CON:concurrency"])
	assert.False(t, codes["DOM:backend"], "replaced set drops the old entry")
}

func TestMetadataStore_RegistryReuseAndUsageCount(t *testing.T) {
	db := testDB(t)
	nodes := NewNodeStore(db, arbor.NewLogger())
	store := NewMetadataStore(db, arbor.NewLogger())
	ctx := context.Background()

	a := testNode("A", "https://example.com/a")
	b := testNode("B", "https://example.com/b")
	require.NoError(t, nodes.CreateNode(ctx, a))
	require.NoError(t, nodes.CreateNode(ctx, b))

	entry := []models.MetadataEntry{{Type: models.MetadataTech, Code: "rust", Confidence: 1.0}}
	require.NoError(t, store.SetNodeMetadata(ctx, a.ID, entry))
	require.NoError(t, store.SetNodeMetadata(ctx, b.ID, entry))

	rowsA, err := store.GetNodeMetadata(ctx, a.ID)
	require.NoError(t, err)
	rowsB, err := store.GetNodeMetadata(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, rowsA, 1)
	require.Len(t, rowsB, 1)
	assert.Equal(t, rowsA[0].RegistryID, rowsB[0].RegistryID, "same (type, code) resolves to one registry row")

	var usage int
	err = db.db.QueryRow(`SELECT usage_count FROM metadata_code_registry WHERE id = ?`, rowsA[0].RegistryID).Scan(&usage)
	require.NoError(t, err)
	assert.Equal(t, 2, usage)
}

func TestMetadataStore_GetCodesForNodesBatches(t *testing.T) {
	db := testDB(t)
	nodes := NewNodeStore(db, arbor.NewLogger())
	store := NewMetadataStore(db, arbor.NewLogger())
	ctx := context.Background()

	a := testNode("A", "https://example.com/batch-a")
	b := testNode("B", "https://example.com/batch-b")
	require.NoError(t, nodes.CreateNode(ctx, a))
	require.NoError(t, nodes.CreateNode(ctx, b))

	require.NoError(t, store.SetNodeMetadata(ctx, a.ID, []models.MetadataEntry{
		{Type: models.MetadataTech, Code: "golang"},
	}))
	require.NoError(t, store.SetNodeMetadata(ctx, b.ID, []models.MetadataEntry{
		{Type: models.MetadataTech, Code: "golang"},
		{Type: models.MetadataDomain, Code: "backend"},
	}))

	byNode, err := store.GetCodesForNodes(ctx, []string{a.ID, b.ID, "missing"})
	require.NoError(t, err)
	assert.Len(t, byNode[a.ID], 1)
	assert.Len(t, byNode[b.ID], 2)
	assert.Empty(t, byNode["missing"])
}

func TestMetadataStore_NodesWithMetadataHidesDeleted(t *testing.T) {
	db := testDB(t)
	nodes := NewNodeStore(db, arbor.NewLogger())
	store := NewMetadataStore(db, arbor.NewLogger())
	ctx := context.Background()

	kept := testNode("Kept", "https://example.com/kept")
	gone := testNode("Gone", "https://example.com/gone")
	require.NoError(t, nodes.CreateNode(ctx, kept))
	require.NoError(t, nodes.CreateNode(ctx, gone))

	entry := []models.MetadataEntry{{Type: models.MetadataTech, Code: "golang"}}
	require.NoError(t, store.SetNodeMetadata(ctx, kept.ID, entry))
	require.NoError(t, store.SetNodeMetadata(ctx, gone.ID, entry))
	require.NoError(t, nodes.DeleteNode(ctx, gone.ID))

	ids, err := store.NodesWithMetadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{kept.ID}, ids)
}

func TestDisplayNameForCode(t *testing.T) {
	assert.Equal(t, "Machine Learning", displayNameForCode("machine_learning"))
	assert.Equal(t, "Open Source", displayNameForCode("open-source"))
	assert.Equal(t, "Golang", displayNameForCode("golang"))
}
