package models

import (
	"strings"
	"time"
)

// HierarchyChangeType classifies an audit row.
type HierarchyChangeType string

const (
	ChangeCreated      HierarchyChangeType = "created"
	ChangeUpdated      HierarchyChangeType = "updated"
	ChangeMoved        HierarchyChangeType = "moved"
	ChangeRestructured HierarchyChangeType = "restructured"
)

// HierarchyTrigger records what caused a hierarchy code change.
type HierarchyTrigger string

const (
	TriggerImport      HierarchyTrigger = "import"
	TriggerUserMove    HierarchyTrigger = "user_move"
	TriggerRestructure HierarchyTrigger = "restructure"
	TriggerMerge       HierarchyTrigger = "merge"
)

// HierarchyCodeChange is an append-only audit row for hierarchy mutations.
type HierarchyCodeChange struct {
	ID             int64                  `json:"id"`
	ChangeType     HierarchyChangeType    `json:"changeType"`
	HierarchyType  HierarchyView          `json:"hierarchyType"`
	TriggeredBy    HierarchyTrigger       `json:"triggeredBy"`
	OldCode        string                 `json:"oldCode,omitempty"`
	NewCode        string                 `json:"newCode,omitempty"`
	NodeID         string                 `json:"nodeId"`
	RelatedNodeIDs []string               `json:"relatedNodeIds,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt      time.Time              `json:"createdAt"`
}

// ParentCode returns the prefix of a dotted hierarchy code up to the last
// ".", or "" for a single-segment code.
func ParentCode(code string) string {
	idx := strings.LastIndex(code, ".")
	if idx < 0 {
		return ""
	}
	return code[:idx]
}

// CodeDepth returns the number of dot-separated segments.
func CodeDepth(code string) int {
	if code == "" {
		return 0
	}
	return strings.Count(code, ".") + 1
}

// AncestorCodes returns every proper-prefix ancestor of a code, nearest
// first. "A.LLM.T.x" yields ["A.LLM.T", "A.LLM", "A"].
func AncestorCodes(code string) []string {
	var ancestors []string
	for parent := ParentCode(code); parent != ""; parent = ParentCode(parent) {
		ancestors = append(ancestors, parent)
	}
	return ancestors
}
