package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/google/uuid"

	"github.com/RBarbieri13/decant/internal/common"
	"github.com/RBarbieri13/decant/internal/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()

	config := &common.StorageConfig{
		DatabasePath:  filepath.Join(t.TempDir(), "decant_test.db"),
		WALMode:       true,
		CacheSizeMB:   8,
		BusyTimeoutMS: 1000,
	}

	db, err := Open(arbor.NewLogger(), config)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testNode(title, url string) *models.Node {
	return &models.Node{
		ID:    uuid.New().String(),
		Title: title,
		URL:   url,
		ExtractedFields: map[string]interface{}{
			"contentType": "article",
		},
		Segment:     "A",
		Category:    "LLM",
		ContentType: "a",
		DateAdded:   time.Now().UTC().Truncate(time.Second),
	}
}

func TestOpen_RunsMigrations(t *testing.T) {
	db := testDB(t)

	done, err := db.MigrationsApplied()
	require.NoError(t, err)
	require.True(t, done)

	require.NoError(t, db.Ping(context.Background()))
}

func TestMigrations_RollbackRefusedWhenLaterApplied(t *testing.T) {
	db := testDB(t)

	err := db.Rollback("001_create_nodes")
	require.Error(t, err)
	require.Contains(t, err.Error(), "later migration")
}

func TestMigrations_RollbackLatest(t *testing.T) {
	db := testDB(t)

	require.NoError(t, db.Rollback("004_add_has_complete_metadata"))

	done, err := db.MigrationsApplied()
	require.NoError(t, err)
	require.False(t, done)

	// Re-applying brings the schema back.
	require.NoError(t, db.Migrate())
	done, err = db.MigrationsApplied()
	require.NoError(t, err)
	require.True(t, done)
}
