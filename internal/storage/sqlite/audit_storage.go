package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/RBarbieri13/decant/internal/common"
	"github.com/RBarbieri13/decant/internal/models"
)

// AuditStore appends hierarchy code change rows. The table is append-only.
type AuditStore struct {
	s      *DB
	logger arbor.ILogger
}

// NewAuditStore creates an audit store.
func NewAuditStore(s *DB, logger arbor.ILogger) *AuditStore {
	return &AuditStore{s: s, logger: logger}
}

// RecordChange appends one audit row.
func (a *AuditStore) RecordChange(ctx context.Context, change *models.HierarchyCodeChange) error {
	tx, err := a.s.db.BeginTx(ctx, nil)
	if err != nil {
		return common.NewError(common.ErrDatabaseError, "failed to begin transaction").WithCause(err)
	}
	defer tx.Rollback()

	if err := recordChangeTx(ctx, tx, change); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return common.NewError(common.ErrDatabaseError, "failed to commit audit row").WithCause(err)
	}
	return nil
}

func recordChangeTx(ctx context.Context, tx *sql.Tx, change *models.HierarchyCodeChange) error {
	if change.CreatedAt.IsZero() {
		change.CreatedAt = time.Now()
	}

	var related, metadata interface{}
	if len(change.RelatedNodeIDs) > 0 {
		encoded, err := json.Marshal(change.RelatedNodeIDs)
		if err != nil {
			return common.NewError(common.ErrDatabaseError, "failed to encode related node ids").WithCause(err)
		}
		related = string(encoded)
	}
	if len(change.Metadata) > 0 {
		encoded, err := json.Marshal(change.Metadata)
		if err != nil {
			return common.NewError(common.ErrDatabaseError, "failed to encode change metadata").WithCause(err)
		}
		metadata = string(encoded)
	}

	_, err := tx.ExecContext(ctx,
		`INSERT INTO hierarchy_code_changes (
			change_type, hierarchy_type, triggered_by, old_code, new_code,
			node_id, related_node_ids, metadata, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(change.ChangeType), string(change.HierarchyType),
		string(change.TriggeredBy), change.OldCode, change.NewCode,
		change.NodeID, related, metadata, change.CreatedAt.Unix())
	if err != nil {
		return common.NewError(common.ErrDatabaseError, "failed to insert audit row").WithCause(err)
	}
	return nil
}

// ListChangesForNode returns a node's audit rows newest first.
func (a *AuditStore) ListChangesForNode(ctx context.Context, nodeID string, limit int) ([]*models.HierarchyCodeChange, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := a.s.db.QueryContext(ctx,
		`SELECT id, change_type, hierarchy_type, triggered_by, old_code,
		        new_code, node_id, related_node_ids, metadata, created_at
		 FROM hierarchy_code_changes
		 WHERE node_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`, nodeID, limit)
	if err != nil {
		return nil, common.NewError(common.ErrDatabaseError, "failed to list audit rows").WithCause(err)
	}
	defer rows.Close()

	var changes []*models.HierarchyCodeChange
	for rows.Next() {
		var (
			change             models.HierarchyCodeChange
			changeType         string
			hierarchyType      string
			triggeredBy        string
			oldCode, newCode   sql.NullString
			related, metadata  sql.NullString
			createdAt          int64
		)
		err := rows.Scan(&change.ID, &changeType, &hierarchyType, &triggeredBy,
			&oldCode, &newCode, &change.NodeID, &related, &metadata, &createdAt)
		if err != nil {
			return nil, common.NewError(common.ErrDatabaseError, "failed to scan audit row").WithCause(err)
		}

		change.ChangeType = models.HierarchyChangeType(changeType)
		change.HierarchyType = models.HierarchyView(hierarchyType)
		change.TriggeredBy = models.HierarchyTrigger(triggeredBy)
		change.OldCode = oldCode.String
		change.NewCode = newCode.String
		change.CreatedAt = time.Unix(createdAt, 0).UTC()

		if related.Valid && related.String != "" {
			if err := json.Unmarshal([]byte(related.String), &change.RelatedNodeIDs); err != nil {
				return nil, common.NewError(common.ErrDatabaseError, "corrupt related_node_ids").WithCause(err)
			}
		}
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &change.Metadata); err != nil {
				return nil, common.NewError(common.ErrDatabaseError, "corrupt change metadata").WithCause(err)
			}
		}
		changes = append(changes, &change)
	}
	return changes, rows.Err()
}
