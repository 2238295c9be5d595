package interfaces

import (
	"context"

	"github.com/RBarbieri13/decant/internal/models"
)

// NodeStorage is the node CRUD surface of the storage engine. All reads hide
// soft-deleted rows unless stated otherwise.
type NodeStorage interface {
	// CreateNode inserts the node and its key concepts in one transaction.
	// Fails with DUPLICATE_URL when the URL exists among non-deleted nodes.
	CreateNode(ctx context.Context, node *models.Node) error

	// CreateImportedNode persists a node, its metadata junction rows, and
	// the hierarchy audit row atomically. Either everything lands or
	// nothing does.
	CreateImportedNode(ctx context.Context, node *models.Node, entries []models.MetadataEntry, change *models.HierarchyCodeChange) error

	GetNode(ctx context.Context, id string) (*models.Node, error)
	GetNodeByURL(ctx context.Context, url string) (*models.Node, error)
	ListNodes(ctx context.Context, limit, offset int) ([]*models.Node, int, error)
	UpdateNode(ctx context.Context, id string, patch *models.NodePatch) (*models.Node, error)
	DeleteNode(ctx context.Context, id string) error

	// MergeNodes copies non-empty fields from secondary into primary,
	// soft-deletes secondary, and re-parents its children, atomically.
	MergeNodes(ctx context.Context, primaryID, secondaryID string, opts models.MergeOptions) (*models.Node, error)

	// MoveNode re-parents a node within one hierarchy and rewrites the
	// dotted codes of the node and its subtree.
	MoveNode(ctx context.Context, id, targetParentID string, view models.HierarchyView) (*models.Node, error)

	// SiblingCodes returns the final code segments already in use directly
	// under the given hierarchy prefix.
	SiblingCodes(ctx context.Context, view models.HierarchyView, prefix string) ([]string, error)
}

// SearchStorage provides the two search entry points plus result counting.
type SearchStorage interface {
	// SearchNodes is the LIKE-based fallback, sorted by date_added DESC.
	SearchNodes(ctx context.Context, query string, limit, offset int) ([]*models.Node, error)

	// SearchNodesAdvanced ranks with FTS5 when the query is non-empty and
	// computes facets over the matching set (capped at 10 000 rows).
	SearchNodesAdvanced(ctx context.Context, query string, filters *models.SearchFilters, page, limit int) (*models.SearchResults, error)

	// CountSearchResults returns the unclamped total for a query + filters.
	CountSearchResults(ctx context.Context, query string, filters *models.SearchFilters) (int, error)
}

// TreeStorage builds and caches hierarchy-code trees.
type TreeStorage interface {
	GetTree(ctx context.Context, view models.HierarchyView) ([]*models.TreeNode, error)
	GetSubtree(ctx context.Context, view models.HierarchyView, path string) (*models.TreeNode, error)
	GetNodeByCode(ctx context.Context, view models.HierarchyView, code string) (*models.Node, error)
	GetAncestryPath(ctx context.Context, view models.HierarchyView, nodeID string) ([]*models.Node, error)

	// InvalidateTree drops cached trees for the view; an empty prefix
	// invalidates the whole view.
	InvalidateTree(view models.HierarchyView, prefix string)
}

// MetadataStorage manages the typed code registry and node junction rows.
type MetadataStorage interface {
	// SetNodeMetadata atomically replaces the node's metadata set,
	// resolving (type, code) pairs to registry ids and inserting missing
	// registry entries.
	SetNodeMetadata(ctx context.Context, nodeID string, entries []models.MetadataEntry) error

	GetNodeMetadata(ctx context.Context, nodeID string) ([]models.NodeMetadataRow, error)

	// GetCodesForNodes returns "TYPE:CODE" sets per node id.
	GetCodesForNodes(ctx context.Context, nodeIDs []string) (map[string][]models.NodeMetadataRow, error)

	// NodesWithMetadata lists ids of non-deleted nodes that have at least
	// one junction row.
	NodesWithMetadata(ctx context.Context) ([]string, error)
}

// SimilarityStorage persists weighted-Jaccard edges with normalized pairs.
type SimilarityStorage interface {
	UpsertSimilarity(ctx context.Context, edge *models.NodeSimilarity) error
	UpsertSimilarities(ctx context.Context, edges []*models.NodeSimilarity) error
	DeleteForNode(ctx context.Context, nodeID string) error
	DeleteForNodes(ctx context.Context, nodeIDs []string) error
	GetSimilar(ctx context.Context, nodeID string, limit int) ([]*models.SimilarNode, error)
	FindCommonSimilar(ctx context.Context, nodeIDs []string, minScore float64, limit int) ([]*models.CommonSimilarResult, error)
}

// TaxonomyStorage reads segment and organization roots, seeding defaults on
// first read when empty.
type TaxonomyStorage interface {
	ListSegments(ctx context.Context) ([]*models.Segment, error)
	ListOrganizations(ctx context.Context) ([]*models.Organization, error)
	SegmentByCode(ctx context.Context, code string) (*models.Segment, error)
	OrganizationByCode(ctx context.Context, code string) (*models.Organization, error)
}

// AuditStorage appends hierarchy code change rows.
type AuditStorage interface {
	RecordChange(ctx context.Context, change *models.HierarchyCodeChange) error
	ListChangesForNode(ctx context.Context, nodeID string, limit int) ([]*models.HierarchyCodeChange, error)
}

// Keystore stores provider API keys encrypted at rest.
type Keystore interface {
	SetKey(ctx context.Context, provider, value string) error
	GetKey(ctx context.Context, provider string) (string, error)
	DeleteKey(ctx context.Context, provider string) error
	ListProviders(ctx context.Context) ([]string, error)
}

// EnrichmentQueue is the persistent Phase-2 job queue.
type EnrichmentQueue interface {
	Enqueue(ctx context.Context, job *models.EnrichmentJob) error
	ClaimPending(ctx context.Context, limit int) ([]*models.EnrichmentJob, error)
	MarkDone(ctx context.Context, jobID string) error
	MarkFailed(ctx context.Context, jobID string, cause error) error
	Stats(ctx context.Context) (map[string]int, error)
	Close() error
}
