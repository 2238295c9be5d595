package models

import (
	"time"
)

// HierarchyView selects one of the two orthogonal node hierarchies.
type HierarchyView string

const (
	HierarchyFunction     HierarchyView = "function"
	HierarchyOrganization HierarchyView = "organization"
)

// Node is the unit of curation: one imported URL with its extracted content,
// classification codes, and positions in both hierarchies.
type Node struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	URL          string `json:"url"`
	SourceDomain string `json:"sourceDomain,omitempty"`
	Company      string `json:"company,omitempty"`

	PhraseDescription string `json:"phraseDescription,omitempty"`
	ShortDescription  string `json:"shortDescription,omitempty"`
	AISummary         string `json:"aiSummary,omitempty"`
	LogoURL           string `json:"logoUrl,omitempty"`

	// ExtractedFields is the content-type specific payload produced by the
	// extractor (video stats, repo info, tweet data, ...).
	ExtractedFields map[string]interface{} `json:"extractedFields,omitempty"`

	// MetadataTags preserves the insertion order of suggested tags as
	// "TYPE:CODE" strings.
	MetadataTags []string `json:"metadataTags,omitempty"`
	KeyConcepts  []string `json:"keyConcepts,omitempty"`

	// Denormalized classification codes for fast filtering.
	Segment     string `json:"segment,omitempty"`
	Category    string `json:"category,omitempty"`
	ContentType string `json:"contentType,omitempty"`

	FunctionParentID          string `json:"functionParentId,omitempty"`
	FunctionHierarchyCode     string `json:"functionHierarchyCode,omitempty"`
	OrganizationParentID      string `json:"organizationParentId,omitempty"`
	OrganizationHierarchyCode string `json:"organizationHierarchyCode,omitempty"`

	HasCompleteMetadata bool `json:"hasCompleteMetadata"`
	IsDeleted           bool `json:"-"`

	DateAdded    time.Time `json:"dateAdded"`
	DateModified time.Time `json:"dateModified"`
}

// HierarchyCode returns the node's code for the given view.
func (n *Node) HierarchyCode(view HierarchyView) string {
	if view == HierarchyOrganization {
		return n.OrganizationHierarchyCode
	}
	return n.FunctionHierarchyCode
}

// NodePatch carries a partial node update. Nil fields are left unchanged.
type NodePatch struct {
	Title             *string                `json:"title,omitempty"`
	Company           *string                `json:"company,omitempty"`
	PhraseDescription *string                `json:"phraseDescription,omitempty"`
	ShortDescription  *string                `json:"shortDescription,omitempty"`
	AISummary         *string                `json:"aiSummary,omitempty"`
	LogoURL           *string                `json:"logoUrl,omitempty"`
	Segment           *string                `json:"segment,omitempty"`
	Category          *string                `json:"category,omitempty"`
	ContentType       *string                `json:"contentType,omitempty"`
	ExtractedFields   map[string]interface{} `json:"extractedFields,omitempty"`
	MetadataTags      []string               `json:"metadataTags,omitempty"`

	HasCompleteMetadata *bool `json:"hasCompleteMetadata,omitempty"`
}

// MergeOptions controls node merging behavior.
type MergeOptions struct {
	// KeepMetadata preserves the primary node's metadata junction rows
	// instead of adopting the secondary's.
	KeepMetadata bool `json:"keepMetadata"`
	// AppendSummary appends the secondary's AI summary to the primary's.
	AppendSummary bool `json:"appendSummary"`
}

// TreeNode is a node with resolved children, produced by the tree builder.
type TreeNode struct {
	ID            string      `json:"id"`
	Title         string      `json:"title"`
	URL           string      `json:"url,omitempty"`
	HierarchyCode string      `json:"hierarchyCode,omitempty"`
	Segment       string      `json:"segment,omitempty"`
	Category      string      `json:"category,omitempty"`
	ContentType   string      `json:"contentType,omitempty"`
	Children      []*TreeNode `json:"children,omitempty"`
}
