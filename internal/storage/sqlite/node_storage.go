package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/RBarbieri13/decant/internal/common"
	"github.com/RBarbieri13/decant/internal/models"
)

// nodeColumns is the canonical select list shared by every node read.
const nodeColumns = `id, title, url, source_domain, company, phrase_description,
	short_description, ai_summary, logo_url, extracted_fields, metadata_tags,
	segment, category, content_type,
	function_parent_id, function_hierarchy_code,
	organization_parent_id, organization_hierarchy_code,
	has_complete_metadata, is_deleted, date_added, date_modified`

// NodeStore implements node CRUD over the shared SQLite connection.
type NodeStore struct {
	s      *DB
	logger arbor.ILogger
}

// NewNodeStore creates a node store.
func NewNodeStore(s *DB, logger arbor.ILogger) *NodeStore {
	return &NodeStore{s: s, logger: logger}
}

// parentColumn and codeColumn resolve the per-view column names.
func parentColumn(view models.HierarchyView) string {
	if view == models.HierarchyOrganization {
		return "organization_parent_id"
	}
	return "function_parent_id"
}

func codeColumn(view models.HierarchyView) string {
	if view == models.HierarchyOrganization {
		return "organization_hierarchy_code"
	}
	return "function_hierarchy_code"
}

// CreateNode inserts the node and its key concepts in one transaction.
func (n *NodeStore) CreateNode(ctx context.Context, node *models.Node) error {
	tx, err := n.s.db.BeginTx(ctx, nil)
	if err != nil {
		return common.NewError(common.ErrDatabaseError, "failed to begin transaction").WithCause(err)
	}
	defer tx.Rollback()

	if err := insertNodeTx(ctx, tx, node); err != nil {
		return err
	}
	if err := insertKeyConceptsTx(ctx, tx, node.ID, node.KeyConcepts); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return common.NewError(common.ErrDatabaseError, "failed to commit node").WithCause(err)
	}

	n.logger.Debug().Str("node_id", node.ID).Str("url", node.URL).Msg("Node created")
	return nil
}

// CreateImportedNode persists the node, its metadata junction rows, and the
// hierarchy audit row in a single transaction.
func (n *NodeStore) CreateImportedNode(ctx context.Context, node *models.Node, entries []models.MetadataEntry, change *models.HierarchyCodeChange) error {
	tx, err := n.s.db.BeginTx(ctx, nil)
	if err != nil {
		return common.NewError(common.ErrDatabaseError, "failed to begin transaction").WithCause(err)
	}
	defer tx.Rollback()

	if err := insertNodeTx(ctx, tx, node); err != nil {
		return err
	}
	if err := insertKeyConceptsTx(ctx, tx, node.ID, node.KeyConcepts); err != nil {
		return err
	}
	if err := setNodeMetadataTx(ctx, tx, node.ID, entries); err != nil {
		return err
	}
	if change != nil {
		if err := recordChangeTx(ctx, tx, change); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return common.NewError(common.ErrDatabaseError, "failed to commit imported node").WithCause(err)
	}

	n.logger.Info().
		Str("node_id", node.ID).
		Str("url", node.URL).
		Str("function_code", node.FunctionHierarchyCode).
		Int("metadata_entries", len(entries)).
		Msg("Imported node persisted")
	return nil
}

func insertNodeTx(ctx context.Context, tx *sql.Tx, node *models.Node) error {
	var existing string
	err := tx.QueryRowContext(ctx, `SELECT id FROM nodes WHERE url = ? AND is_deleted = 0`, node.URL).Scan(&existing)
	if err == nil {
		return common.NewError(common.ErrDuplicateURL, fmt.Sprintf("a node for %s already exists", node.URL))
	}
	if err != sql.ErrNoRows {
		return common.NewError(common.ErrDatabaseError, "duplicate check failed").WithCause(err)
	}

	now := time.Now()
	if node.DateAdded.IsZero() {
		node.DateAdded = now
	}
	if node.DateModified.IsZero() {
		node.DateModified = now
	}

	extracted, err := json.Marshal(orEmptyMap(node.ExtractedFields))
	if err != nil {
		return common.NewError(common.ErrDatabaseError, "failed to encode extracted fields").WithCause(err)
	}
	tags, err := json.Marshal(orEmptySlice(node.MetadataTags))
	if err != nil {
		return common.NewError(common.ErrDatabaseError, "failed to encode metadata tags").WithCause(err)
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO nodes (
			id, title, url, source_domain, company, phrase_description,
			short_description, ai_summary, logo_url, extracted_fields,
			metadata_tags, segment, category, content_type,
			function_parent_id, function_hierarchy_code,
			organization_parent_id, organization_hierarchy_code,
			has_complete_metadata, is_deleted, date_added, date_modified
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		node.ID, node.Title, node.URL, node.SourceDomain, node.Company,
		node.PhraseDescription, node.ShortDescription, node.AISummary,
		node.LogoURL, string(extracted), string(tags),
		node.Segment, node.Category, node.ContentType,
		node.FunctionParentID, node.FunctionHierarchyCode,
		node.OrganizationParentID, node.OrganizationHierarchyCode,
		boolToInt(node.HasCompleteMetadata),
		node.DateAdded.Unix(), node.DateModified.Unix())
	if err != nil {
		return common.NewError(common.ErrDatabaseError, "failed to insert node").WithCause(err)
	}
	return nil
}

func insertKeyConceptsTx(ctx context.Context, tx *sql.Tx, nodeID string, concepts []string) error {
	for _, concept := range concepts {
		if strings.TrimSpace(concept) == "" {
			continue
		}
		_, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO key_concepts (node_id, concept) VALUES (?, ?)`,
			nodeID, concept)
		if err != nil {
			return common.NewError(common.ErrDatabaseError, "failed to insert key concept").WithCause(err)
		}
	}
	return nil
}

// GetNode returns a non-deleted node with JSON fields parsed and key
// concepts attached.
func (n *NodeStore) GetNode(ctx context.Context, id string) (*models.Node, error) {
	row := n.s.db.QueryRowContext(ctx,
		`SELECT `+nodeColumns+` FROM nodes WHERE id = ? AND is_deleted = 0`, id)
	node, err := scanNode(row)
	if err == sql.ErrNoRows {
		return nil, common.NewError(common.ErrNotFound, fmt.Sprintf("node %s not found", id))
	}
	if err != nil {
		return nil, common.NewError(common.ErrDatabaseError, "failed to read node").WithCause(err)
	}
	if err := n.loadKeyConcepts(ctx, node); err != nil {
		return nil, err
	}
	return node, nil
}

// GetNodeByURL returns the non-deleted node for a URL, or NOT_FOUND.
func (n *NodeStore) GetNodeByURL(ctx context.Context, url string) (*models.Node, error) {
	row := n.s.db.QueryRowContext(ctx,
		`SELECT `+nodeColumns+` FROM nodes WHERE url = ? AND is_deleted = 0`, url)
	node, err := scanNode(row)
	if err == sql.ErrNoRows {
		return nil, common.NewError(common.ErrNotFound, fmt.Sprintf("no node for url %s", url))
	}
	if err != nil {
		return nil, common.NewError(common.ErrDatabaseError, "failed to read node by url").WithCause(err)
	}
	if err := n.loadKeyConcepts(ctx, node); err != nil {
		return nil, err
	}
	return node, nil
}

// ListNodes pages non-deleted nodes newest first and reports the total.
func (n *NodeStore) ListNodes(ctx context.Context, limit, offset int) ([]*models.Node, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var total int
	if err := n.s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM nodes WHERE is_deleted = 0`).Scan(&total); err != nil {
		return nil, 0, common.NewError(common.ErrDatabaseError, "failed to count nodes").WithCause(err)
	}

	rows, err := n.s.db.QueryContext(ctx,
		`SELECT `+nodeColumns+` FROM nodes WHERE is_deleted = 0
		 ORDER BY date_added DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, common.NewError(common.ErrDatabaseError, "failed to list nodes").WithCause(err)
	}
	defer rows.Close()

	nodes, err := collectNodes(rows)
	if err != nil {
		return nil, 0, err
	}
	return nodes, total, nil
}

// UpdateNode applies a partial patch and returns the updated node.
func (n *NodeStore) UpdateNode(ctx context.Context, id string, patch *models.NodePatch) (*models.Node, error) {
	sets := []string{"date_modified = ?"}
	args := []interface{}{time.Now().Unix()}

	addString := func(column string, value *string) {
		if value != nil {
			sets = append(sets, column+" = ?")
			args = append(args, *value)
		}
	}
	addString("title", patch.Title)
	addString("company", patch.Company)
	addString("phrase_description", patch.PhraseDescription)
	addString("short_description", patch.ShortDescription)
	addString("ai_summary", patch.AISummary)
	addString("logo_url", patch.LogoURL)
	addString("segment", patch.Segment)
	addString("category", patch.Category)
	addString("content_type", patch.ContentType)

	if patch.ExtractedFields != nil {
		encoded, err := json.Marshal(patch.ExtractedFields)
		if err != nil {
			return nil, common.NewError(common.ErrDatabaseError, "failed to encode extracted fields").WithCause(err)
		}
		sets = append(sets, "extracted_fields = ?")
		args = append(args, string(encoded))
	}
	if patch.MetadataTags != nil {
		encoded, err := json.Marshal(patch.MetadataTags)
		if err != nil {
			return nil, common.NewError(common.ErrDatabaseError, "failed to encode metadata tags").WithCause(err)
		}
		sets = append(sets, "metadata_tags = ?")
		args = append(args, string(encoded))
	}
	if patch.HasCompleteMetadata != nil {
		sets = append(sets, "has_complete_metadata = ?")
		args = append(args, boolToInt(*patch.HasCompleteMetadata))
	}

	args = append(args, id)
	result, err := n.s.db.ExecContext(ctx,
		`UPDATE nodes SET `+strings.Join(sets, ", ")+` WHERE id = ? AND is_deleted = 0`, args...)
	if err != nil {
		return nil, common.NewError(common.ErrDatabaseError, "failed to update node").WithCause(err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return nil, common.NewError(common.ErrNotFound, fmt.Sprintf("node %s not found", id))
	}

	return n.GetNode(ctx, id)
}

// DeleteNode soft-deletes a node. Callers are responsible for invalidating
// the similarity edges and tree caches.
func (n *NodeStore) DeleteNode(ctx context.Context, id string) error {
	result, err := n.s.db.ExecContext(ctx,
		`UPDATE nodes SET is_deleted = 1, date_modified = ? WHERE id = ? AND is_deleted = 0`,
		time.Now().Unix(), id)
	if err != nil {
		return common.NewError(common.ErrDatabaseError, "failed to delete node").WithCause(err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return common.NewError(common.ErrNotFound, fmt.Sprintf("node %s not found", id))
	}

	n.logger.Info().Str("node_id", id).Msg("Node soft-deleted")
	return nil
}

// MergeNodes folds secondary into primary in one transaction: non-empty
// fields copied over empty ones, children re-parented, secondary
// soft-deleted.
func (n *NodeStore) MergeNodes(ctx context.Context, primaryID, secondaryID string, opts models.MergeOptions) (*models.Node, error) {
	if primaryID == secondaryID {
		return nil, common.NewError(common.ErrValidationFailed, "cannot merge a node with itself")
	}

	primary, err := n.GetNode(ctx, primaryID)
	if err != nil {
		return nil, err
	}
	secondary, err := n.GetNode(ctx, secondaryID)
	if err != nil {
		return nil, err
	}

	tx, err := n.s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, common.NewError(common.ErrDatabaseError, "failed to begin transaction").WithCause(err)
	}
	defer tx.Rollback()

	mergeScalars(primary, secondary, opts)

	extracted, _ := json.Marshal(orEmptyMap(primary.ExtractedFields))
	tags, _ := json.Marshal(orEmptySlice(primary.MetadataTags))
	_, err = tx.ExecContext(ctx, `UPDATE nodes SET
			title = ?, company = ?, phrase_description = ?, short_description = ?,
			ai_summary = ?, logo_url = ?, extracted_fields = ?, metadata_tags = ?,
			date_modified = ?
		WHERE id = ?`,
		primary.Title, primary.Company, primary.PhraseDescription,
		primary.ShortDescription, primary.AISummary, primary.LogoURL,
		string(extracted), string(tags), time.Now().Unix(), primaryID)
	if err != nil {
		return nil, common.NewError(common.ErrDatabaseError, "failed to update merged node").WithCause(err)
	}

	for _, concept := range secondary.KeyConcepts {
		_, err = tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO key_concepts (node_id, concept) VALUES (?, ?)`,
			primaryID, concept)
		if err != nil {
			return nil, common.NewError(common.ErrDatabaseError, "failed to merge key concepts").WithCause(err)
		}
	}

	if !opts.KeepMetadata {
		// Adopt the secondary's metadata rows where the primary has no row
		// for the same registry entry.
		_, err = tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO node_metadata (node_id, registry_id, confidence, source)
			 SELECT ?, registry_id, confidence, source FROM node_metadata WHERE node_id = ?`,
			primaryID, secondaryID)
		if err != nil {
			return nil, common.NewError(common.ErrDatabaseError, "failed to adopt metadata").WithCause(err)
		}
	}

	// Re-parent the secondary's children in both hierarchies and rewrite
	// their subtree codes onto the primary's codes.
	for _, view := range []models.HierarchyView{models.HierarchyFunction, models.HierarchyOrganization} {
		if err := reparentChildrenTx(ctx, tx, view, secondary, primary); err != nil {
			return nil, err
		}
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE nodes SET is_deleted = 1, date_modified = ? WHERE id = ?`,
		time.Now().Unix(), secondaryID)
	if err != nil {
		return nil, common.NewError(common.ErrDatabaseError, "failed to delete merged node").WithCause(err)
	}

	change := &models.HierarchyCodeChange{
		ChangeType:     models.ChangeUpdated,
		HierarchyType:  models.HierarchyFunction,
		TriggeredBy:    models.TriggerMerge,
		OldCode:        secondary.FunctionHierarchyCode,
		NewCode:        primary.FunctionHierarchyCode,
		NodeID:         primaryID,
		RelatedNodeIDs: []string{secondaryID},
		CreatedAt:      time.Now(),
	}
	if err := recordChangeTx(ctx, tx, change); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, common.NewError(common.ErrDatabaseError, "failed to commit merge").WithCause(err)
	}

	n.logger.Info().
		Str("primary_id", primaryID).
		Str("secondary_id", secondaryID).
		Msg("Nodes merged")
	return n.GetNode(ctx, primaryID)
}

func mergeScalars(primary, secondary *models.Node, opts models.MergeOptions) {
	fill := func(dst *string, src string) {
		if *dst == "" && src != "" {
			*dst = src
		}
	}
	fill(&primary.Company, secondary.Company)
	fill(&primary.PhraseDescription, secondary.PhraseDescription)
	fill(&primary.ShortDescription, secondary.ShortDescription)
	fill(&primary.LogoURL, secondary.LogoURL)

	if opts.AppendSummary && secondary.AISummary != "" {
		if primary.AISummary == "" {
			primary.AISummary = secondary.AISummary
		} else {
			primary.AISummary = primary.AISummary + "\n\n" + secondary.AISummary
		}
	} else {
		fill(&primary.AISummary, secondary.AISummary)
	}

	if primary.ExtractedFields == nil {
		primary.ExtractedFields = map[string]interface{}{}
	}
	for key, value := range secondary.ExtractedFields {
		if _, exists := primary.ExtractedFields[key]; !exists {
			primary.ExtractedFields[key] = value
		}
	}

	seen := make(map[string]bool, len(primary.MetadataTags))
	for _, tag := range primary.MetadataTags {
		seen[tag] = true
	}
	for _, tag := range secondary.MetadataTags {
		if !seen[tag] {
			primary.MetadataTags = append(primary.MetadataTags, tag)
			seen[tag] = true
		}
	}
}

func reparentChildrenTx(ctx context.Context, tx *sql.Tx, view models.HierarchyView, from, to *models.Node) error {
	parentCol := parentColumn(view)
	codeCol := codeColumn(view)

	_, err := tx.ExecContext(ctx,
		`UPDATE nodes SET `+parentCol+` = ? WHERE `+parentCol+` = ? AND is_deleted = 0`,
		to.ID, from.ID)
	if err != nil {
		return common.NewError(common.ErrDatabaseError, "failed to re-parent children").WithCause(err)
	}

	oldCode := from.HierarchyCode(view)
	newCode := to.HierarchyCode(view)
	if oldCode == "" || newCode == "" || oldCode == newCode {
		return nil
	}

	// Rewrite the dotted prefix of every descendant code in place.
	_, err = tx.ExecContext(ctx,
		`UPDATE nodes SET `+codeCol+` = ? || substr(`+codeCol+`, ?)
		 WHERE `+codeCol+` LIKE ? AND is_deleted = 0`,
		newCode, len(oldCode)+1, oldCode+".%")
	if err != nil {
		return common.NewError(common.ErrDatabaseError, "failed to rewrite descendant codes").WithCause(err)
	}
	return nil
}

// MoveNode re-parents a node within one hierarchy, rewriting the node's code
// and every descendant code in one transaction.
func (n *NodeStore) MoveNode(ctx context.Context, id, targetParentID string, view models.HierarchyView) (*models.Node, error) {
	node, err := n.GetNode(ctx, id)
	if err != nil {
		return nil, err
	}
	target, err := n.GetNode(ctx, targetParentID)
	if err != nil {
		return nil, err
	}

	oldCode := node.HierarchyCode(view)
	targetCode := target.HierarchyCode(view)
	if targetCode == "" {
		return nil, common.NewError(common.ErrValidationFailed, "target node has no hierarchy code in this view")
	}
	if oldCode != "" && (targetCode == oldCode || strings.HasPrefix(targetCode, oldCode+".")) {
		return nil, common.NewError(common.ErrConflict, "cannot move a node under its own subtree")
	}

	lastSegment := oldCode
	if idx := strings.LastIndex(oldCode, "."); idx >= 0 {
		lastSegment = oldCode[idx+1:]
	}
	if lastSegment == "" {
		lastSegment = node.ID[:8]
	}
	newCode := targetCode + "." + lastSegment

	tx, err := n.s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, common.NewError(common.ErrDatabaseError, "failed to begin transaction").WithCause(err)
	}
	defer tx.Rollback()

	parentCol := parentColumn(view)
	codeCol := codeColumn(view)
	now := time.Now()

	_, err = tx.ExecContext(ctx,
		`UPDATE nodes SET `+parentCol+` = ?, `+codeCol+` = ?, date_modified = ? WHERE id = ?`,
		targetParentID, newCode, now.Unix(), id)
	if err != nil {
		return nil, common.NewError(common.ErrDatabaseError, "failed to move node").WithCause(err)
	}

	if oldCode != "" {
		_, err = tx.ExecContext(ctx,
			`UPDATE nodes SET `+codeCol+` = ? || substr(`+codeCol+`, ?)
			 WHERE `+codeCol+` LIKE ? AND is_deleted = 0`,
			newCode, len(oldCode)+1, oldCode+".%")
		if err != nil {
			return nil, common.NewError(common.ErrDatabaseError, "failed to rewrite subtree codes").WithCause(err)
		}
	}

	change := &models.HierarchyCodeChange{
		ChangeType:    models.ChangeMoved,
		HierarchyType: view,
		TriggeredBy:   models.TriggerUserMove,
		OldCode:       oldCode,
		NewCode:       newCode,
		NodeID:        id,
		CreatedAt:     now,
	}
	if err := recordChangeTx(ctx, tx, change); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, common.NewError(common.ErrDatabaseError, "failed to commit move").WithCause(err)
	}

	n.logger.Info().
		Str("node_id", id).
		Str("view", string(view)).
		Str("old_code", oldCode).
		Str("new_code", newCode).
		Msg("Node moved")
	return n.GetNode(ctx, id)
}

// SiblingCodes returns the final code segments already used directly under a
// hierarchy prefix, for differentiator collision checks.
func (n *NodeStore) SiblingCodes(ctx context.Context, view models.HierarchyView, prefix string) ([]string, error) {
	codeCol := codeColumn(view)
	rows, err := n.s.db.QueryContext(ctx,
		`SELECT `+codeCol+` FROM nodes
		 WHERE `+codeCol+` LIKE ? AND `+codeCol+` NOT LIKE ? AND is_deleted = 0`,
		prefix+".%", prefix+".%.%")
	if err != nil {
		return nil, common.NewError(common.ErrDatabaseError, "failed to list sibling codes").WithCause(err)
	}
	defer rows.Close()

	var segments []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, common.NewError(common.ErrDatabaseError, "failed to scan sibling code").WithCause(err)
		}
		if idx := strings.LastIndex(code, "."); idx >= 0 {
			segments = append(segments, code[idx+1:])
		}
	}
	return segments, rows.Err()
}

func (n *NodeStore) loadKeyConcepts(ctx context.Context, node *models.Node) error {
	rows, err := n.s.db.QueryContext(ctx,
		`SELECT concept FROM key_concepts WHERE node_id = ? ORDER BY id`, node.ID)
	if err != nil {
		return common.NewError(common.ErrDatabaseError, "failed to load key concepts").WithCause(err)
	}
	defer rows.Close()

	for rows.Next() {
		var concept string
		if err := rows.Scan(&concept); err != nil {
			return common.NewError(common.ErrDatabaseError, "failed to scan key concept").WithCause(err)
		}
		node.KeyConcepts = append(node.KeyConcepts, concept)
	}
	return rows.Err()
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanNode(row rowScanner) (*models.Node, error) {
	var (
		node                                  models.Node
		sourceDomain, company, phrase         sql.NullString
		short, summary, logo                  sql.NullString
		extracted, tags                       string
		segment, category, contentType        sql.NullString
		fnParent, fnCode, orgParent, orgCode  sql.NullString
		hasCompleteMetadata, isDeleted        int
		dateAdded, dateModified               int64
	)

	err := row.Scan(&node.ID, &node.Title, &node.URL, &sourceDomain, &company,
		&phrase, &short, &summary, &logo, &extracted, &tags,
		&segment, &category, &contentType,
		&fnParent, &fnCode, &orgParent, &orgCode,
		&hasCompleteMetadata, &isDeleted, &dateAdded, &dateModified)
	if err != nil {
		return nil, err
	}

	node.SourceDomain = sourceDomain.String
	node.Company = company.String
	node.PhraseDescription = phrase.String
	node.ShortDescription = short.String
	node.AISummary = summary.String
	node.LogoURL = logo.String
	node.Segment = segment.String
	node.Category = category.String
	node.ContentType = contentType.String
	node.FunctionParentID = fnParent.String
	node.FunctionHierarchyCode = fnCode.String
	node.OrganizationParentID = orgParent.String
	node.OrganizationHierarchyCode = orgCode.String
	node.HasCompleteMetadata = hasCompleteMetadata != 0
	node.IsDeleted = isDeleted != 0
	node.DateAdded = time.Unix(dateAdded, 0).UTC()
	node.DateModified = time.Unix(dateModified, 0).UTC()

	if extracted != "" {
		if err := json.Unmarshal([]byte(extracted), &node.ExtractedFields); err != nil {
			return nil, fmt.Errorf("corrupt extracted_fields for node %s: %w", node.ID, err)
		}
	}
	if tags != "" {
		if err := json.Unmarshal([]byte(tags), &node.MetadataTags); err != nil {
			return nil, fmt.Errorf("corrupt metadata_tags for node %s: %w", node.ID, err)
		}
	}
	return &node, nil
}

func collectNodes(rows *sql.Rows) ([]*models.Node, error) {
	var nodes []*models.Node
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, common.NewError(common.ErrDatabaseError, "failed to scan node").WithCause(err)
		}
		nodes = append(nodes, node)
	}
	if err := rows.Err(); err != nil {
		return nil, common.NewError(common.ErrDatabaseError, "node iteration failed").WithCause(err)
	}
	return nodes, nil
}

func orEmptyMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	return m
}

func orEmptySlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
