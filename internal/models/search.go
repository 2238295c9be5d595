package models

import (
	"time"
)

// SearchFilters AND together over the matching set.
type SearchFilters struct {
	Segments            []string   `json:"segments,omitempty"`
	Categories          []string   `json:"categories,omitempty"`
	ContentTypes        []string   `json:"contentTypes,omitempty"`
	Organizations       []string   `json:"organizations,omitempty"`
	DateRange           *DateRange `json:"dateRange,omitempty"`
	HasCompleteMetadata *bool      `json:"hasCompleteMetadata,omitempty"`
}

type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// IsEmpty reports whether no filter is set.
func (f *SearchFilters) IsEmpty() bool {
	if f == nil {
		return true
	}
	return len(f.Segments) == 0 && len(f.Categories) == 0 &&
		len(f.ContentTypes) == 0 && len(f.Organizations) == 0 &&
		f.DateRange == nil && f.HasCompleteMetadata == nil
}

// SearchHit is one ranked result with highlight context.
type SearchHit struct {
	Node          *Node    `json:"node"`
	MatchedFields []string `json:"matchedFields,omitempty"`
	Snippet       string   `json:"snippet,omitempty"`
}

// Facets are grouped counts over the matching set, used to drive UI filters.
type Facets struct {
	Segments      map[string]int `json:"segments"`
	Categories    map[string]int `json:"categories"`
	ContentTypes  map[string]int `json:"contentTypes"`
	Organizations map[string]int `json:"organizations"` // top 20
}

// SearchResults is the advanced-search response payload.
type SearchResults struct {
	Hits   []*SearchHit `json:"hits"`
	Facets *Facets      `json:"facets"`
	Total  int          `json:"total"`
	Page   int          `json:"page"`
	Limit  int          `json:"limit"`
}
