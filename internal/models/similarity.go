package models

import (
	"time"
)

// SimilarityMethodJaccardWeighted is the default similarity method tag.
const SimilarityMethodJaccardWeighted = "jaccard_weighted"

// NodeSimilarity is an undirected edge between two nodes. The pair is always
// normalized so NodeAID < NodeBID lexicographically.
type NodeSimilarity struct {
	NodeAID    string    `json:"nodeAId"`
	NodeBID    string    `json:"nodeBId"`
	Score      float64   `json:"score"`
	Method     string    `json:"method"`
	ComputedAt time.Time `json:"computedAt"`
}

// NormalizeNodePair orders a pair of node IDs lexicographically.
func NormalizeNodePair(a, b string) (string, string) {
	if a > b {
		return b, a
	}
	return a, b
}

// SimilarNode is a similarity edge resolved from the perspective of one node.
type SimilarNode struct {
	NodeID string  `json:"nodeId"`
	Title  string  `json:"title"`
	URL    string  `json:"url"`
	Score  float64 `json:"score"`
	Method string  `json:"method"`
}

// CommonSimilarResult aggregates similarity across a set of input nodes.
type CommonSimilarResult struct {
	NodeID     string  `json:"nodeId"`
	Title      string  `json:"title"`
	TotalScore float64 `json:"totalScore"`
	MatchCount int     `json:"matchCount"`
}

// BatchComputeStats summarizes a batch similarity computation.
type BatchComputeStats struct {
	Computed   int           `json:"computed"`
	Stored     int           `json:"stored"`
	Skipped    int           `json:"skipped"`
	Errors     int           `json:"errors"`
	DurationMs time.Duration `json:"durationMs"`
}
