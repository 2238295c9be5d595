package interfaces

import (
	"context"

	"github.com/RBarbieri13/decant/internal/models"
)

// Extractor pulls structured content out of one class of URL.
type Extractor interface {
	// ContentType returns the extractor's tag ("youtube", "github", ...).
	ContentType() string

	// RequiresAPIKey reports whether the native API path needs credentials.
	RequiresAPIKey() bool

	// CanHandle reports whether this extractor claims the URL.
	CanHandle(url string) bool

	// Extract never returns a nil result alongside a nil error; failed
	// extractions return Success=false with fallback metadata.
	Extract(ctx context.Context, url string) (*models.ExtractionResult, error)
}

// ExtractorFactory dispatches URLs to extractors and fans out batches.
type ExtractorFactory interface {
	DetectContentType(url string) string
	GetExtractor(url string) Extractor
	Extract(ctx context.Context, url string) (*models.ExtractionResult, error)
	ExtractBatch(ctx context.Context, urls []string) map[string]*models.ExtractionResult
}

// Message is one chat turn sent to an LLM provider.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// CompletionOptions tune a single LLM call.
type CompletionOptions struct {
	Model       string
	Temperature float32
	MaxTokens   int
}

// Completion is a plain chat completion result.
type Completion struct {
	Content string `json:"content"`
	Model   string `json:"model"`
	Usage   Usage  `json:"usage"`
}

// Usage reports token accounting when the provider returns it.
type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

// SchemaCompletion is a structured JSON completion with the raw text kept
// for debugging.
type SchemaCompletion struct {
	Value map[string]interface{} `json:"value"`
	Raw   string                 `json:"raw"`
	Model string                 `json:"model"`
	Usage Usage                  `json:"usage"`
}

// LLMService is the provider-agnostic completion surface. Both operations
// are wrapped in retry (rate-limit preset) and a per-provider breaker.
type LLMService interface {
	Complete(ctx context.Context, messages []Message, opts CompletionOptions) (*Completion, error)
	CompleteWithSchema(ctx context.Context, messages []Message, schema map[string]interface{}, opts CompletionOptions) (*SchemaCompletion, error)
	Available() bool
}

// Classifier turns extracted content into a classification.
type Classifier interface {
	Classify(ctx context.Context, url string, extraction *models.ExtractionResult) (*models.Classification, error)
}

// SimilarityService computes and maintains weighted-Jaccard edges.
type SimilarityService interface {
	ComputeFor(ctx context.Context, nodeID string) ([]*models.NodeSimilarity, error)
	BatchCompute(ctx context.Context, nodeIDs []string) (*models.BatchComputeStats, error)
	RecomputeAll(ctx context.Context) (*models.BatchComputeStats, error)
	UpdateForNode(ctx context.Context, nodeID string) error
	GetSimilar(ctx context.Context, nodeID string, limit int) ([]*models.SimilarNode, error)
	FindCommonSimilar(ctx context.Context, nodeIDs []string, minScore float64, limit int) ([]*models.CommonSimilarResult, error)
}

// ImportService is the end-to-end import orchestrator.
type ImportService interface {
	Import(ctx context.Context, req *models.ImportRequest) (*models.ImportResult, error)
	CheckURL(ctx context.Context, url string) (exists bool, cached bool, entry *models.ImportCacheEntry, nodeID string, err error)
	InvalidateCache(url string) int
	CacheStats() map[string]interface{}
}
