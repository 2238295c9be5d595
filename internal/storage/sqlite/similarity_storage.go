package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/RBarbieri13/decant/internal/common"
	"github.com/RBarbieri13/decant/internal/models"
)

// SimilarityStore persists weighted-Jaccard edges. Pairs are normalized so
// node_a_id < node_b_id; the table has a CHECK enforcing it.
type SimilarityStore struct {
	s      *DB
	logger arbor.ILogger
}

// NewSimilarityStore creates a similarity store.
func NewSimilarityStore(s *DB, logger arbor.ILogger) *SimilarityStore {
	return &SimilarityStore{s: s, logger: logger}
}

// UpsertSimilarity writes one edge, replacing any previous score for the
// pair. Self-pairs and out-of-range scores are rejected.
func (ss *SimilarityStore) UpsertSimilarity(ctx context.Context, edge *models.NodeSimilarity) error {
	return ss.UpsertSimilarities(ctx, []*models.NodeSimilarity{edge})
}

// UpsertSimilarities writes a batch of edges in one transaction.
func (ss *SimilarityStore) UpsertSimilarities(ctx context.Context, edges []*models.NodeSimilarity) error {
	if len(edges) == 0 {
		return nil
	}

	tx, err := ss.s.db.BeginTx(ctx, nil)
	if err != nil {
		return common.NewError(common.ErrDatabaseError, "failed to begin transaction").WithCause(err)
	}
	defer tx.Rollback()

	for _, edge := range edges {
		a, b := models.NormalizeNodePair(edge.NodeAID, edge.NodeBID)
		if a == b {
			return common.NewError(common.ErrValidationFailed, "similarity edge cannot be a self-pair")
		}
		if edge.Score < 0 || edge.Score > 1 {
			return common.NewError(common.ErrValidationFailed,
				fmt.Sprintf("similarity score %f out of range", edge.Score))
		}

		method := edge.Method
		if method == "" {
			method = models.SimilarityMethodJaccardWeighted
		}
		computedAt := edge.ComputedAt
		if computedAt.IsZero() {
			computedAt = time.Now()
		}

		_, err := tx.ExecContext(ctx,
			`INSERT INTO node_similarity (node_a_id, node_b_id, score, method, computed_at)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(node_a_id, node_b_id)
			 DO UPDATE SET score = excluded.score, method = excluded.method, computed_at = excluded.computed_at`,
			a, b, edge.Score, method, computedAt.Unix())
		if err != nil {
			return common.NewError(common.ErrDatabaseError, "failed to upsert similarity edge").WithCause(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return common.NewError(common.ErrDatabaseError, "failed to commit similarity edges").WithCause(err)
	}
	return nil
}

// DeleteForNode removes every edge touching a node.
func (ss *SimilarityStore) DeleteForNode(ctx context.Context, nodeID string) error {
	return ss.DeleteForNodes(ctx, []string{nodeID})
}

// DeleteForNodes removes every edge touching any of the given nodes.
func (ss *SimilarityStore) DeleteForNodes(ctx context.Context, nodeIDs []string) error {
	if len(nodeIDs) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(nodeIDs)), ",")
	args := make([]interface{}, 0, len(nodeIDs)*2)
	for _, id := range nodeIDs {
		args = append(args, id)
	}
	for _, id := range nodeIDs {
		args = append(args, id)
	}

	_, err := ss.s.db.ExecContext(ctx, fmt.Sprintf(
		`DELETE FROM node_similarity WHERE node_a_id IN (%s) OR node_b_id IN (%s)`,
		placeholders, placeholders), args...)
	if err != nil {
		return common.NewError(common.ErrDatabaseError, "failed to delete similarity edges").WithCause(err)
	}
	return nil
}

// GetSimilar returns the node's strongest neighbors, score descending.
// Deleted neighbors are hidden.
func (ss *SimilarityStore) GetSimilar(ctx context.Context, nodeID string, limit int) ([]*models.SimilarNode, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := ss.s.db.QueryContext(ctx,
		`SELECT other_id, n.title, n.url, score, method FROM (
			SELECT node_b_id AS other_id, score, method FROM node_similarity WHERE node_a_id = ?
			UNION ALL
			SELECT node_a_id AS other_id, score, method FROM node_similarity WHERE node_b_id = ?
		 )
		 JOIN nodes n ON n.id = other_id AND n.is_deleted = 0
		 ORDER BY score DESC
		 LIMIT ?`, nodeID, nodeID, limit)
	if err != nil {
		return nil, common.NewError(common.ErrDatabaseError, "failed to read similar nodes").WithCause(err)
	}
	defer rows.Close()

	var similar []*models.SimilarNode
	for rows.Next() {
		var s models.SimilarNode
		if err := rows.Scan(&s.NodeID, &s.Title, &s.URL, &s.Score, &s.Method); err != nil {
			return nil, common.NewError(common.ErrDatabaseError, "failed to scan similar node").WithCause(err)
		}
		similar = append(similar, &s)
	}
	return similar, rows.Err()
}

// FindCommonSimilar aggregates neighbors across a set of input nodes,
// excluding the inputs themselves, ordered by total score then match count.
func (ss *SimilarityStore) FindCommonSimilar(ctx context.Context, nodeIDs []string, minScore float64, limit int) ([]*models.CommonSimilarResult, error) {
	if len(nodeIDs) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(nodeIDs)), ",")
	args := make([]interface{}, 0, len(nodeIDs)*3+3)
	for _, id := range nodeIDs {
		args = append(args, id)
	}
	for _, id := range nodeIDs {
		args = append(args, id)
	}
	args = append(args, minScore)
	for _, id := range nodeIDs {
		args = append(args, id)
	}
	args = append(args, limit)

	query := fmt.Sprintf(
		`SELECT other_id, n.title, SUM(score) AS total_score, COUNT(*) AS match_count
		 FROM (
			SELECT node_b_id AS other_id, score FROM node_similarity WHERE node_a_id IN (%s)
			UNION ALL
			SELECT node_a_id AS other_id, score FROM node_similarity WHERE node_b_id IN (%s)
		 )
		 JOIN nodes n ON n.id = other_id AND n.is_deleted = 0
		 WHERE score >= ? AND other_id NOT IN (%s)
		 GROUP BY other_id, n.title
		 ORDER BY total_score DESC, match_count DESC
		 LIMIT ?`, placeholders, placeholders, placeholders)

	rows, err := ss.s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, common.NewError(common.ErrDatabaseError, "failed to find common similar nodes").WithCause(err)
	}
	defer rows.Close()

	var results []*models.CommonSimilarResult
	for rows.Next() {
		var r models.CommonSimilarResult
		if err := rows.Scan(&r.NodeID, &r.Title, &r.TotalScore, &r.MatchCount); err != nil {
			return nil, common.NewError(common.ErrDatabaseError, "failed to scan common similar row").WithCause(err)
		}
		results = append(results, &r)
	}
	return results, rows.Err()
}
