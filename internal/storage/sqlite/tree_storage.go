package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/RBarbieri13/decant/internal/common"
	"github.com/RBarbieri13/decant/internal/models"
)

// TreeStore builds hierarchy-code trees in O(n) and caches whole views.
// Caches are invalidated on any hierarchy mutation.
type TreeStore struct {
	s      *DB
	logger arbor.ILogger

	mu    sync.RWMutex
	cache map[models.HierarchyView][]*models.TreeNode
}

// NewTreeStore creates a tree store with an empty cache.
func NewTreeStore(s *DB, logger arbor.ILogger) *TreeStore {
	return &TreeStore{
		s:      s,
		logger: logger,
		cache:  make(map[models.HierarchyView][]*models.TreeNode),
	}
}

// GetTree returns the full forest for a view, from cache when warm.
func (t *TreeStore) GetTree(ctx context.Context, view models.HierarchyView) ([]*models.TreeNode, error) {
	t.mu.RLock()
	if cached, ok := t.cache[view]; ok {
		t.mu.RUnlock()
		return cached, nil
	}
	t.mu.RUnlock()

	roots, err := t.buildTree(ctx, view, "")
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	t.cache[view] = roots
	t.mu.Unlock()

	t.logger.Debug().Str("view", string(view)).Int("roots", len(roots)).Msg("Tree rebuilt")
	return roots, nil
}

// GetSubtree returns the tree rooted at a hierarchy code path.
func (t *TreeStore) GetSubtree(ctx context.Context, view models.HierarchyView, path string) (*models.TreeNode, error) {
	if path == "" {
		return nil, common.NewError(common.ErrValidationFailed, "subtree path is required")
	}

	roots, err := t.buildTree(ctx, view, path)
	if err != nil {
		return nil, err
	}
	for _, root := range roots {
		if root.HierarchyCode == path {
			return root, nil
		}
	}
	return nil, common.NewError(common.ErrNotFound, fmt.Sprintf("no node at path %s", path))
}

// GetNodeByCode returns the non-deleted node at an exact hierarchy code.
func (t *TreeStore) GetNodeByCode(ctx context.Context, view models.HierarchyView, code string) (*models.Node, error) {
	codeCol := codeColumn(view)
	row := t.s.db.QueryRowContext(ctx,
		`SELECT `+nodeColumns+` FROM nodes WHERE `+codeCol+` = ? AND is_deleted = 0`, code)
	node, err := scanNode(row)
	if err == sql.ErrNoRows {
		return nil, common.NewError(common.ErrNotFound, fmt.Sprintf("no node with code %s", code))
	}
	if err != nil {
		return nil, common.NewError(common.ErrDatabaseError, "failed to read node by code").WithCause(err)
	}
	return node, nil
}

// GetAncestryPath returns the node's ancestors root-first, resolved in one
// batched query over the ancestor codes.
func (t *TreeStore) GetAncestryPath(ctx context.Context, view models.HierarchyView, nodeID string) ([]*models.Node, error) {
	codeCol := codeColumn(view)

	var code sql.NullString
	err := t.s.db.QueryRowContext(ctx,
		`SELECT `+codeCol+` FROM nodes WHERE id = ? AND is_deleted = 0`, nodeID).Scan(&code)
	if err == sql.ErrNoRows {
		return nil, common.NewError(common.ErrNotFound, fmt.Sprintf("node %s not found", nodeID))
	}
	if err != nil {
		return nil, common.NewError(common.ErrDatabaseError, "failed to read node code").WithCause(err)
	}
	if code.String == "" {
		return nil, nil
	}

	ancestors := models.AncestorCodes(code.String)
	if len(ancestors) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ancestors)), ",")
	args := make([]interface{}, len(ancestors))
	for i, ancestor := range ancestors {
		args[i] = ancestor
	}

	rows, err := t.s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT `+nodeColumns+` FROM nodes
		 WHERE `+codeCol+` IN (%s) AND is_deleted = 0`, placeholders), args...)
	if err != nil {
		return nil, common.NewError(common.ErrDatabaseError, "failed to read ancestry").WithCause(err)
	}
	defer rows.Close()

	nodes, err := collectNodes(rows)
	if err != nil {
		return nil, err
	}

	// Order root-first. Taxonomy roots have no node row; gaps are fine.
	byCode := make(map[string]*models.Node, len(nodes))
	for _, node := range nodes {
		byCode[node.HierarchyCode(view)] = node
	}
	path := make([]*models.Node, 0, len(nodes))
	for i := len(ancestors) - 1; i >= 0; i-- {
		if node, ok := byCode[ancestors[i]]; ok {
			path = append(path, node)
		}
	}
	return path, nil
}

// InvalidateTree drops the cached tree for a view. The prefix is accepted
// for targeted invalidation but whole-view invalidation is always safe.
func (t *TreeStore) InvalidateTree(view models.HierarchyView, prefix string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.cache, view)
	if prefix == "" {
		// A batch mutation may touch both views.
		delete(t.cache, models.HierarchyFunction)
		delete(t.cache, models.HierarchyOrganization)
	}
}

// buildTree loads rows sorted by code and assembles the forest in a single
// walk over a code -> node map. Rows without a code fall back to the legacy
// parent-id attachment.
func (t *TreeStore) buildTree(ctx context.Context, view models.HierarchyView, pathPrefix string) ([]*models.TreeNode, error) {
	codeCol := codeColumn(view)
	parentCol := parentColumn(view)

	query := `SELECT id, title, url, ` + codeCol + `, ` + parentCol + `, segment, category, content_type
		 FROM nodes WHERE is_deleted = 0`
	var args []interface{}
	if pathPrefix != "" {
		query += ` AND (` + codeCol + ` = ? OR ` + codeCol + ` LIKE ?)`
		args = append(args, pathPrefix, pathPrefix+".%")
	}
	query += ` ORDER BY ` + codeCol + ` ASC`

	rows, err := t.s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, common.NewError(common.ErrDatabaseError, "failed to load tree rows").WithCause(err)
	}
	defer rows.Close()

	type treeRow struct {
		node     *models.TreeNode
		parentID string
	}

	var coded []*models.TreeNode
	var legacy []treeRow
	byID := make(map[string]*models.TreeNode)

	for rows.Next() {
		var (
			id, title                      string
			url, code, parentID            sql.NullString
			segment, category, contentType sql.NullString
		)
		if err := rows.Scan(&id, &title, &url, &code, &parentID, &segment, &category, &contentType); err != nil {
			return nil, common.NewError(common.ErrDatabaseError, "failed to scan tree row").WithCause(err)
		}

		node := &models.TreeNode{
			ID:            id,
			Title:         title,
			URL:           url.String,
			HierarchyCode: code.String,
			Segment:       segment.String,
			Category:      category.String,
			ContentType:   contentType.String,
		}
		byID[id] = node
		if code.String != "" {
			coded = append(coded, node)
		} else {
			legacy = append(legacy, treeRow{node: node, parentID: parentID.String})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, common.NewError(common.ErrDatabaseError, "tree iteration failed").WithCause(err)
	}

	// Rows arrive sorted by code, so a parent always precedes its children.
	// Nodes whose parent code has no loaded row become roots; that covers
	// taxonomy-root prefixes and the subtree anchor alike.
	var roots []*models.TreeNode
	byCode := make(map[string]*models.TreeNode, len(coded))
	for _, node := range coded {
		byCode[node.HierarchyCode] = node
		if parent := models.ParentCode(node.HierarchyCode); parent != "" {
			if parentNode, ok := byCode[parent]; ok {
				parentNode.Children = append(parentNode.Children, node)
				continue
			}
		}
		roots = append(roots, node)
	}

	// Legacy rows attach by parent id when the parent is present, otherwise
	// they become roots.
	for _, row := range legacy {
		if row.parentID != "" {
			if parentNode, ok := byID[row.parentID]; ok {
				parentNode.Children = append(parentNode.Children, row.node)
				continue
			}
		}
		roots = append(roots, row.node)
	}

	sortTree(roots)
	return roots, nil
}

func sortTree(nodes []*models.TreeNode) {
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].HierarchyCode != nodes[j].HierarchyCode {
			return nodes[i].HierarchyCode < nodes[j].HierarchyCode
		}
		return nodes[i].Title < nodes[j].Title
	})
	for _, node := range nodes {
		if len(node.Children) > 0 {
			sortTree(node.Children)
		}
	}
}
