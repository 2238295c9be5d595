package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/RBarbieri13/decant/internal/common"
	"github.com/RBarbieri13/decant/internal/models"
)

// facetCap bounds the rows scanned for facet aggregation.
const facetCap = 10000

// highlightOpen/Close are the FTS5 snippet markers used to detect which
// fields matched.
const (
	highlightOpen  = "<mark>"
	highlightClose = "</mark>"
)

// SearchStore provides LIKE fallback search and FTS5 ranked search with
// facet aggregation.
type SearchStore struct {
	s      *DB
	logger arbor.ILogger
}

// NewSearchStore creates a search store.
func NewSearchStore(s *DB, logger arbor.ILogger) *SearchStore {
	return &SearchStore{s: s, logger: logger}
}

// SearchNodes is the LIKE-based fallback, newest first.
func (ss *SearchStore) SearchNodes(ctx context.Context, query string, limit, offset int) ([]*models.Node, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	pattern := "%" + strings.TrimSpace(query) + "%"
	rows, err := ss.s.db.QueryContext(ctx,
		`SELECT `+nodeColumns+` FROM nodes
		 WHERE is_deleted = 0 AND (
			title LIKE ? OR source_domain LIKE ? OR company LIKE ?
			OR phrase_description LIKE ? OR short_description LIKE ?
			OR ai_summary LIKE ?
		 )
		 ORDER BY date_added DESC
		 LIMIT ? OFFSET ?`,
		pattern, pattern, pattern, pattern, pattern, pattern, limit, offset)
	if err != nil {
		return nil, common.NewError(common.ErrDatabaseError, "search query failed").WithCause(err)
	}
	defer rows.Close()

	return collectNodes(rows)
}

// SearchNodesAdvanced ranks with FTS5 when the query is non-empty, applies
// filters, and computes facets over the matching set.
func (ss *SearchStore) SearchNodesAdvanced(ctx context.Context, query string, filters *models.SearchFilters, page, limit int) (*models.SearchResults, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	offset := (page - 1) * limit

	query = strings.TrimSpace(query)
	filterSQL, filterArgs := buildFilterClause(filters)

	var hits []*models.SearchHit
	var err error
	if query != "" {
		hits, err = ss.ftsSearch(ctx, query, filterSQL, filterArgs, limit, offset)
	} else {
		hits, err = ss.filteredScan(ctx, filterSQL, filterArgs, limit, offset)
	}
	if err != nil {
		return nil, err
	}

	total, err := ss.CountSearchResults(ctx, query, filters)
	if err != nil {
		return nil, err
	}

	facets, err := ss.computeFacets(ctx, query, filterSQL, filterArgs)
	if err != nil {
		return nil, err
	}

	return &models.SearchResults{
		Hits:   hits,
		Facets: facets,
		Total:  total,
		Page:   page,
		Limit:  limit,
	}, nil
}

func (ss *SearchStore) ftsSearch(ctx context.Context, query, filterSQL string, filterArgs []interface{}, limit, offset int) ([]*models.SearchHit, error) {
	match := ftsMatchExpression(query)

	args := append([]interface{}{match}, filterArgs...)
	args = append(args, limit, offset)

	rows, err := ss.s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT %s,
			snippet(nodes_fts, 0, '%s', '%s', '…', 12),
			snippet(nodes_fts, 3, '%s', '%s', '…', 16),
			snippet(nodes_fts, 4, '%s', '%s', '…', 16),
			snippet(nodes_fts, 5, '%s', '%s', '…', 16)
		 FROM nodes_fts
		 JOIN nodes n ON n.rowid = nodes_fts.rowid
		 WHERE nodes_fts MATCH ? AND n.is_deleted = 0 %s
		 ORDER BY nodes_fts.rank
		 LIMIT ? OFFSET ?`,
		prefixedNodeColumns("n"),
		highlightOpen, highlightClose, highlightOpen, highlightClose,
		highlightOpen, highlightClose, highlightOpen, highlightClose,
		filterSQL), args...)
	if err != nil {
		// A malformed FTS expression should degrade, not fail the request.
		ss.logger.Warn().Err(err).Str("query", query).Msg("FTS search failed, falling back to LIKE")
		return ss.likeFallbackHits(ctx, query, filterSQL, filterArgs, limit, offset)
	}
	defer rows.Close()

	var hits []*models.SearchHit
	for rows.Next() {
		hit, err := scanSearchHit(rows)
		if err != nil {
			return nil, common.NewError(common.ErrDatabaseError, "failed to scan search hit").WithCause(err)
		}
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

func (ss *SearchStore) likeFallbackHits(ctx context.Context, query, filterSQL string, filterArgs []interface{}, limit, offset int) ([]*models.SearchHit, error) {
	pattern := "%" + query + "%"
	args := []interface{}{pattern, pattern, pattern, pattern, pattern, pattern}
	args = append(args, filterArgs...)
	args = append(args, limit, offset)

	rows, err := ss.s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT %s FROM nodes n
		 WHERE n.is_deleted = 0 AND (
			n.title LIKE ? OR n.source_domain LIKE ? OR n.company LIKE ?
			OR n.phrase_description LIKE ? OR n.short_description LIKE ?
			OR n.ai_summary LIKE ?
		 ) %s
		 ORDER BY n.date_added DESC
		 LIMIT ? OFFSET ?`, prefixedNodeColumns("n"), filterSQL), args...)
	if err != nil {
		return nil, common.NewError(common.ErrDatabaseError, "fallback search failed").WithCause(err)
	}
	defer rows.Close()

	var hits []*models.SearchHit
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, common.NewError(common.ErrDatabaseError, "failed to scan search hit").WithCause(err)
		}
		hits = append(hits, &models.SearchHit{Node: node, Snippet: node.ShortDescription})
	}
	return hits, rows.Err()
}

func (ss *SearchStore) filteredScan(ctx context.Context, filterSQL string, filterArgs []interface{}, limit, offset int) ([]*models.SearchHit, error) {
	args := append([]interface{}{}, filterArgs...)
	args = append(args, limit, offset)

	rows, err := ss.s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT %s FROM nodes n
		 WHERE n.is_deleted = 0 %s
		 ORDER BY n.date_added DESC
		 LIMIT ? OFFSET ?`, prefixedNodeColumns("n"), filterSQL), args...)
	if err != nil {
		return nil, common.NewError(common.ErrDatabaseError, "filtered scan failed").WithCause(err)
	}
	defer rows.Close()

	var hits []*models.SearchHit
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, common.NewError(common.ErrDatabaseError, "failed to scan node").WithCause(err)
		}
		hits = append(hits, &models.SearchHit{Node: node, Snippet: node.ShortDescription})
	}
	return hits, rows.Err()
}

// CountSearchResults returns the unclamped matching total.
func (ss *SearchStore) CountSearchResults(ctx context.Context, query string, filters *models.SearchFilters) (int, error) {
	query = strings.TrimSpace(query)
	filterSQL, filterArgs := buildFilterClause(filters)

	var total int
	var err error
	if query != "" {
		args := append([]interface{}{ftsMatchExpression(query)}, filterArgs...)
		err = ss.s.db.QueryRowContext(ctx, fmt.Sprintf(
			`SELECT COUNT(*) FROM nodes_fts
			 JOIN nodes n ON n.rowid = nodes_fts.rowid
			 WHERE nodes_fts MATCH ? AND n.is_deleted = 0 %s`, filterSQL), args...).Scan(&total)
		if err != nil {
			// Degrade in lockstep with ftsSearch.
			pattern := "%" + query + "%"
			likeArgs := []interface{}{pattern, pattern, pattern, pattern, pattern, pattern}
			likeArgs = append(likeArgs, filterArgs...)
			err = ss.s.db.QueryRowContext(ctx, fmt.Sprintf(
				`SELECT COUNT(*) FROM nodes n
				 WHERE n.is_deleted = 0 AND (
					n.title LIKE ? OR n.source_domain LIKE ? OR n.company LIKE ?
					OR n.phrase_description LIKE ? OR n.short_description LIKE ?
					OR n.ai_summary LIKE ?
				 ) %s`, filterSQL), likeArgs...).Scan(&total)
		}
	} else {
		err = ss.s.db.QueryRowContext(ctx, fmt.Sprintf(
			`SELECT COUNT(*) FROM nodes n WHERE n.is_deleted = 0 %s`, filterSQL), filterArgs...).Scan(&total)
	}
	if err != nil {
		return 0, common.NewError(common.ErrDatabaseError, "failed to count search results").WithCause(err)
	}
	return total, nil
}

// computeFacets aggregates counts in Go over the matching set, capped for
// cost. Organizations keep only the top 20.
func (ss *SearchStore) computeFacets(ctx context.Context, query, filterSQL string, filterArgs []interface{}) (*models.Facets, error) {
	var rows *sql.Rows
	var err error

	if query != "" {
		args := append([]interface{}{ftsMatchExpression(query)}, filterArgs...)
		args = append(args, facetCap)
		rows, err = ss.s.db.QueryContext(ctx, fmt.Sprintf(
			`SELECT n.segment, n.category, n.content_type, n.company
			 FROM nodes_fts
			 JOIN nodes n ON n.rowid = nodes_fts.rowid
			 WHERE nodes_fts MATCH ? AND n.is_deleted = 0 %s
			 LIMIT ?`, filterSQL), args...)
		if err != nil {
			// FTS degraded; facets degrade to the unfiltered scan below.
			rows = nil
		}
	}
	if rows == nil {
		args := append([]interface{}{}, filterArgs...)
		args = append(args, facetCap)
		rows, err = ss.s.db.QueryContext(ctx, fmt.Sprintf(
			`SELECT n.segment, n.category, n.content_type, n.company
			 FROM nodes n
			 WHERE n.is_deleted = 0 %s
			 LIMIT ?`, filterSQL), args...)
		if err != nil {
			return nil, common.NewError(common.ErrDatabaseError, "facet scan failed").WithCause(err)
		}
	}
	defer rows.Close()

	facets := &models.Facets{
		Segments:      map[string]int{},
		Categories:    map[string]int{},
		ContentTypes:  map[string]int{},
		Organizations: map[string]int{},
	}
	orgCounts := map[string]int{}

	for rows.Next() {
		var segment, category, contentType, company sql.NullString
		if err := rows.Scan(&segment, &category, &contentType, &company); err != nil {
			return nil, common.NewError(common.ErrDatabaseError, "failed to scan facet row").WithCause(err)
		}
		if segment.String != "" {
			facets.Segments[segment.String]++
		}
		if category.String != "" {
			facets.Categories[category.String]++
		}
		if contentType.String != "" {
			facets.ContentTypes[contentType.String]++
		}
		if company.String != "" {
			orgCounts[company.String]++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, common.NewError(common.ErrDatabaseError, "facet iteration failed").WithCause(err)
	}

	facets.Organizations = topN(orgCounts, 20)
	return facets, nil
}

func topN(counts map[string]int, n int) map[string]int {
	type pair struct {
		key   string
		count int
	}
	pairs := make([]pair, 0, len(counts))
	for key, count := range counts {
		pairs = append(pairs, pair{key, count})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].count != pairs[j].count {
			return pairs[i].count > pairs[j].count
		}
		return pairs[i].key < pairs[j].key
	})
	if len(pairs) > n {
		pairs = pairs[:n]
	}
	top := make(map[string]int, len(pairs))
	for _, p := range pairs {
		top[p.key] = p.count
	}
	return top
}

// buildFilterClause renders the AND-ed filter conditions against alias "n".
func buildFilterClause(filters *models.SearchFilters) (string, []interface{}) {
	if filters.IsEmpty() {
		return "", nil
	}

	var clauses []string
	var args []interface{}

	inClause := func(column string, values []string) {
		if len(values) == 0 {
			return
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(values)), ",")
		clauses = append(clauses, fmt.Sprintf("n.%s IN (%s)", column, placeholders))
		for _, v := range values {
			args = append(args, v)
		}
	}
	inClause("segment", filters.Segments)
	inClause("category", filters.Categories)
	inClause("content_type", filters.ContentTypes)

	if len(filters.Organizations) > 0 {
		var orClauses []string
		for _, org := range filters.Organizations {
			orClauses = append(orClauses, "n.company LIKE ?")
			args = append(args, "%"+org+"%")
		}
		clauses = append(clauses, "("+strings.Join(orClauses, " OR ")+")")
	}

	if filters.DateRange != nil {
		if !filters.DateRange.Start.IsZero() {
			clauses = append(clauses, "n.date_added >= ?")
			args = append(args, filters.DateRange.Start.Unix())
		}
		if !filters.DateRange.End.IsZero() {
			clauses = append(clauses, "n.date_added <= ?")
			args = append(args, filters.DateRange.End.Unix())
		}
	}

	if filters.HasCompleteMetadata != nil {
		clauses = append(clauses, "n.has_complete_metadata = ?")
		args = append(args, boolToInt(*filters.HasCompleteMetadata))
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " AND " + strings.Join(clauses, " AND "), args
}

// ftsMatchExpression quotes each token so user input cannot break FTS5
// query syntax. Tokens AND together.
func ftsMatchExpression(query string) string {
	fields := strings.Fields(query)
	quoted := make([]string, 0, len(fields))
	for _, field := range fields {
		quoted = append(quoted, `"`+strings.ReplaceAll(field, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, " ")
}

// prefixedNodeColumns qualifies the canonical column list with a table alias.
func prefixedNodeColumns(alias string) string {
	parts := strings.Split(nodeColumns, ",")
	for i, part := range parts {
		parts[i] = alias + "." + strings.TrimSpace(part)
	}
	return strings.Join(parts, ", ")
}

func scanSearchHit(rows *sql.Rows) (*models.SearchHit, error) {
	var (
		node                               models.Node
		sourceDomain, company, phrase      sql.NullString
		short, summary, logo               sql.NullString
		extracted, tags                    string
		segment, category, contentType     sql.NullString
		fnParent, fnCode, orgParent        sql.NullString
		orgCode                            sql.NullString
		hasCompleteMetadata, isDeleted     int
		dateAdded, dateModified            int64
		titleSnip, phraseSnip              string
		shortSnip, summarySnip             string
	)

	err := rows.Scan(&node.ID, &node.Title, &node.URL, &sourceDomain, &company,
		&phrase, &short, &summary, &logo, &extracted, &tags,
		&segment, &category, &contentType,
		&fnParent, &fnCode, &orgParent, &orgCode,
		&hasCompleteMetadata, &isDeleted, &dateAdded, &dateModified,
		&titleSnip, &phraseSnip, &shortSnip, &summarySnip)
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

	hit := &models.SearchHit{Node: &node}
	if strings.Contains(titleSnip, highlightOpen) {
		hit.MatchedFields = append(hit.MatchedFields, "title")
	}
	if strings.Contains(phraseSnip, highlightOpen) {
		hit.MatchedFields = append(hit.MatchedFields, "phraseDescription")
	}
	if strings.Contains(shortSnip, highlightOpen) {
		hit.MatchedFields = append(hit.MatchedFields, "shortDescription")
	}
	if strings.Contains(summarySnip, highlightOpen) {
		hit.MatchedFields = append(hit.MatchedFields, "aiSummary")
	}

	// First non-empty highlighted snippet, preferring the short forms.
	for _, snip := range []string{shortSnip, phraseSnip, summarySnip} {
		if strings.Contains(snip, highlightOpen) {
			hit.Snippet = snip
			break
		}
	}
	if hit.Snippet == "" {
		hit.Snippet = node.ShortDescription
	}
	return hit, nil
}
