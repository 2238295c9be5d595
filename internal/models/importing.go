package models

import (
	"time"
)

// ImportRequest is the POST /api/import payload.
type ImportRequest struct {
	URL          string `json:"url" validate:"required"`
	ForceRefresh bool   `json:"forceRefresh,omitempty"`
	Priority     string `json:"priority,omitempty"`
}

// Phase2Status reports whether deeper enrichment was queued.
type Phase2Status struct {
	Queued bool   `json:"queued"`
	JobID  string `json:"jobId,omitempty"`
}

// ImportResult is the orchestrator's response for one import.
type ImportResult struct {
	NodeID         string              `json:"nodeId"`
	Cached         bool                `json:"cached"`
	Node           *Node               `json:"node,omitempty"`
	Classification *Classification     `json:"classification"`
	HierarchyCodes *HierarchyCodes     `json:"hierarchyCodes"`
	Metadata       *ExtractionMetadata `json:"metadata,omitempty"`
	Phase2         Phase2Status        `json:"phase2"`
}

// ImportCacheEntry is the in-process record of a successful import, used to
// short-circuit repeated imports of the same URL within the TTL.
type ImportCacheEntry struct {
	NodeID         string          `json:"nodeId"`
	Classification *Classification `json:"classification"`
	HierarchyCodes *HierarchyCodes `json:"hierarchyCodes"`
	CachedAt       time.Time       `json:"cachedAt"`
}

// EnrichmentStatus values for Phase-2 jobs.
const (
	EnrichmentPending = "pending"
	EnrichmentRunning = "running"
	EnrichmentDone    = "done"
	EnrichmentFailed  = "failed"
)

// EnrichmentJob is a queued Phase-2 deep-processing task.
type EnrichmentJob struct {
	ID         string     `json:"id" badgerhold:"key"`
	NodeID     string     `json:"nodeId"`
	URL        string     `json:"url"`
	Priority   string     `json:"priority,omitempty"`
	Status     string     `json:"status" badgerhold:"index"`
	Attempts   int        `json:"attempts"`
	LastError  string     `json:"lastError,omitempty"`
	EnqueuedAt time.Time  `json:"enqueuedAt"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}
