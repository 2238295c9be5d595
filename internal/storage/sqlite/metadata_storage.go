package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/RBarbieri13/decant/internal/common"
	"github.com/RBarbieri13/decant/internal/models"
)

// MetadataStore manages the typed code registry and node metadata junction.
type MetadataStore struct {
	s      *DB
	logger arbor.ILogger
}

// NewMetadataStore creates a metadata store.
func NewMetadataStore(s *DB, logger arbor.ILogger) *MetadataStore {
	return &MetadataStore{s: s, logger: logger}
}

// SetNodeMetadata atomically replaces the node's metadata set.
func (m *MetadataStore) SetNodeMetadata(ctx context.Context, nodeID string, entries []models.MetadataEntry) error {
	tx, err := m.s.db.BeginTx(ctx, nil)
	if err != nil {
		return common.NewError(common.ErrDatabaseError, "failed to begin transaction").WithCause(err)
	}
	defer tx.Rollback()

	if err := setNodeMetadataTx(ctx, tx, nodeID, entries); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return common.NewError(common.ErrDatabaseError, "failed to commit metadata").WithCause(err)
	}

	m.logger.Debug().Str("node_id", nodeID).Int("entries", len(entries)).Msg("Node metadata replaced")
	return nil
}

// setNodeMetadataTx deletes the node's existing junction rows and inserts
// the new set, resolving (type, code) pairs to registry ids. Missing
// registry entries are created with the code as display name; usage_count
// counts attachments over time and is never decremented here.
func setNodeMetadataTx(ctx context.Context, tx *sql.Tx, nodeID string, entries []models.MetadataEntry) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM node_metadata WHERE node_id = ?`, nodeID); err != nil {
		return common.NewError(common.ErrDatabaseError, "failed to clear node metadata").WithCause(err)
	}

	for _, entry := range entries {
		registryID, err := resolveRegistryIDTx(ctx, tx, entry.Type, entry.Code)
		if err != nil {
			return err
		}

		confidence := entry.Confidence
		if confidence <= 0 || confidence > 1 {
			confidence = 1.0
		}
		source := entry.Source
		if source == "" {
			source = models.SourceAI
		}

		_, err = tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO node_metadata (node_id, registry_id, confidence, source)
			 VALUES (?, ?, ?, ?)`,
			nodeID, registryID, confidence, string(source))
		if err != nil {
			return common.NewError(common.ErrDatabaseError, "failed to insert node metadata").WithCause(err)
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE metadata_code_registry SET usage_count = usage_count + 1 WHERE id = ?`,
			registryID)
		if err != nil {
			return common.NewError(common.ErrDatabaseError, "failed to bump usage count").WithCause(err)
		}
	}
	return nil
}

func resolveRegistryIDTx(ctx context.Context, tx *sql.Tx, mt models.MetadataType, code string) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM metadata_code_registry WHERE type = ? AND code = ?`,
		string(mt), code).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, common.NewError(common.ErrDatabaseError, "registry lookup failed").WithCause(err)
	}

	result, err := tx.ExecContext(ctx,
		`INSERT INTO metadata_code_registry (type, code, display_name, usage_count)
		 VALUES (?, ?, ?, 0)`,
		string(mt), code, displayNameForCode(code))
	if err != nil {
		return 0, common.NewError(common.ErrDatabaseError, "failed to insert registry entry").WithCause(err)
	}
	return result.LastInsertId()
}

// displayNameForCode turns "machine_learning" into "Machine Learning".
func displayNameForCode(code string) string {
	words := strings.FieldsFunc(code, func(r rune) bool {
		return r == '_' || r == '-'
	})
	for i, word := range words {
		if word == "" {
			continue
		}
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	if len(words) == 0 {
		return code
	}
	return strings.Join(words, " ")
}

// GetNodeMetadata returns the node's junction rows joined with registry data.
func (m *MetadataStore) GetNodeMetadata(ctx context.Context, nodeID string) ([]models.NodeMetadataRow, error) {
	rows, err := m.s.db.QueryContext(ctx,
		`SELECT nm.node_id, nm.registry_id, r.type, r.code, nm.confidence, nm.source
		 FROM node_metadata nm
		 JOIN metadata_code_registry r ON r.id = nm.registry_id
		 WHERE nm.node_id = ?
		 ORDER BY r.type, r.code`, nodeID)
	if err != nil {
		return nil, common.NewError(common.ErrDatabaseError, "failed to read node metadata").WithCause(err)
	}
	defer rows.Close()

	return scanMetadataRows(rows)
}

// GetCodesForNodes returns junction rows grouped by node id, one query for
// the whole batch.
func (m *MetadataStore) GetCodesForNodes(ctx context.Context, nodeIDs []string) (map[string][]models.NodeMetadataRow, error) {
	result := make(map[string][]models.NodeMetadataRow, len(nodeIDs))
	if len(nodeIDs) == 0 {
		return result, nil
	}

	placeholders := strings.Repeat("?,", len(nodeIDs))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]interface{}, len(nodeIDs))
	for i, id := range nodeIDs {
		args[i] = id
	}

	rows, err := m.s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT nm.node_id, nm.registry_id, r.type, r.code, nm.confidence, nm.source
		 FROM node_metadata nm
		 JOIN metadata_code_registry r ON r.id = nm.registry_id
		 WHERE nm.node_id IN (%s)`, placeholders), args...)
	if err != nil {
		return nil, common.NewError(common.ErrDatabaseError, "failed to read batch metadata").WithCause(err)
	}
	defer rows.Close()

	entries, err := scanMetadataRows(rows)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		result[entry.NodeID] = append(result[entry.NodeID], entry)
	}
	return result, nil
}

// NodesWithMetadata lists ids of non-deleted nodes with at least one
// junction row.
func (m *MetadataStore) NodesWithMetadata(ctx context.Context) ([]string, error) {
	rows, err := m.s.db.QueryContext(ctx,
		`SELECT DISTINCT nm.node_id
		 FROM node_metadata nm
		 JOIN nodes n ON n.id = nm.node_id
		 WHERE n.is_deleted = 0`)
	if err != nil {
		return nil, common.NewError(common.ErrDatabaseError, "failed to list nodes with metadata").WithCause(err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, common.NewError(common.ErrDatabaseError, "failed to scan node id").WithCause(err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanMetadataRows(rows *sql.Rows) ([]models.NodeMetadataRow, error) {
	var entries []models.NodeMetadataRow
	for rows.Next() {
		var (
			row          models.NodeMetadataRow
			mtype, source string
		)
		if err := rows.Scan(&row.NodeID, &row.RegistryID, &mtype, &row.Code, &row.Confidence, &source); err != nil {
			return nil, common.NewError(common.ErrDatabaseError, "failed to scan metadata row").WithCause(err)
		}
		row.Type = models.MetadataType(mtype)
		row.Source = models.MetadataSource(source)
		entries = append(entries, row)
	}
	if err := rows.Err(); err != nil {
		return nil, common.NewError(common.ErrDatabaseError, "metadata iteration failed").WithCause(err)
	}
	return entries, nil
}
