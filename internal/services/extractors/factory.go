// Package extractors pulls structured content out of imported URLs, with a
// native-API path per platform and a scraping fallback for everything else.
package extractors

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/RBarbieri13/decant/internal/common"
	"github.com/RBarbieri13/decant/internal/interfaces"
	"github.com/RBarbieri13/decant/internal/models"
	"github.com/RBarbieri13/decant/internal/resilience"
)

// enhancementMinContent is the minimum extracted text length before the
// factory spends an LLM call on post-enhancement.
const enhancementMinContent = 100

// Factory owns the extractor registry and dispatches URLs by host.
type Factory struct {
	logger      arbor.ILogger
	extractors  map[string]interfaces.Extractor
	article     interfaces.Extractor
	llm         interfaces.LLMService
	concurrency int
}

// NewFactory wires the platform extractors plus the article fallback.
// llm may be nil; post-enhancement is skipped without it.
func NewFactory(logger arbor.ILogger, config *common.ExtractorConfig, breakers *resilience.BreakerRegistry, llm interfaces.LLMService) *Factory {
	concurrency := config.BatchConcurrency
	if concurrency <= 0 {
		concurrency = 5
	}

	article := NewArticleExtractor(logger, config, breakers)
	factory := &Factory{
		logger:      logger,
		extractors:  make(map[string]interfaces.Extractor),
		article:     article,
		llm:         llm,
		concurrency: concurrency,
	}

	factory.register(NewYouTubeExtractor(logger, config, breakers))
	factory.register(NewGitHubExtractor(logger, config, breakers))
	factory.register(NewTwitterExtractor(logger, config, breakers))
	factory.register(article)
	return factory
}

func (f *Factory) register(extractor interfaces.Extractor) {
	f.extractors[extractor.ContentType()] = extractor
}

// DetectContentType matches the URL host to a platform tag; unknown hosts
// are articles.
func (f *Factory) DetectContentType(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return models.ContentTypeArticle
	}
	host := strings.ToLower(strings.TrimPrefix(parsed.Hostname(), "www."))

	switch {
	case host == "youtube.com" || host == "youtu.be" || strings.HasSuffix(host, ".youtube.com"):
		return models.ContentTypeYouTube
	case host == "github.com" || host == "gist.github.com":
		return models.ContentTypeGitHub
	case host == "twitter.com" || host == "x.com" || strings.HasSuffix(host, ".twitter.com"):
		return models.ContentTypeTwitter
	default:
		return models.ContentTypeArticle
	}
}

// GetExtractor returns the detected extractor when it claims the URL, else
// the article fallback.
func (f *Factory) GetExtractor(rawURL string) interfaces.Extractor {
	tag := f.DetectContentType(rawURL)
	if extractor, ok := f.extractors[tag]; ok && extractor.CanHandle(rawURL) {
		return extractor
	}
	return f.article
}

// Extract runs the matching extractor and applies LLM post-enhancement on
// substantial content. Enhancement failures never fail the extraction.
func (f *Factory) Extract(ctx context.Context, rawURL string) (*models.ExtractionResult, error) {
	extractor := f.GetExtractor(rawURL)

	result, err := extractor.Extract(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	if result.Success {
		f.enhance(ctx, rawURL, result)
	}
	return result, nil
}

// ExtractBatch fans out over a bounded worker pool. Per-URL failures land in
// the result map as failed extractions, never abort the batch.
func (f *Factory) ExtractBatch(ctx context.Context, urls []string) map[string]*models.ExtractionResult {
	results := make(map[string]*models.ExtractionResult, len(urls))
	var mu sync.Mutex
	var wg sync.WaitGroup

	semaphore := make(chan struct{}, f.concurrency)
	for _, rawURL := range urls {
		wg.Add(1)
		go func(rawURL string) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			result, err := f.Extract(ctx, rawURL)
			if err != nil {
				result = FallbackResult(f.DetectContentType(rawURL), &models.ExtractionError{
					Code:        string(common.CodeOf(err)),
					Message:     err.Error(),
					Recoverable: common.IsRecoverable(err),
					Cause:       err,
				})
			}

			mu.Lock()
			results[rawURL] = result
			mu.Unlock()
		}(rawURL)
	}
	wg.Wait()
	return results
}

// enhance augments substantial extractions with an LLM summary, taxonomy
// suggestion, and key concepts, upgrading the method to api_premium.
func (f *Factory) enhance(ctx context.Context, rawURL string, result *models.ExtractionResult) {
	if f.llm == nil || !f.llm.Available() {
		return
	}
	content := result.TextContent()
	if len(content) <= enhancementMinContent {
		return
	}
	if len(content) > 4000 {
		content = content[:4000]
	}

	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"summary":     map[string]interface{}{"type": "string"},
			"taxonomy":    map[string]interface{}{"type": "string"},
			"keyConcepts": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
			"mermaid":     map[string]interface{}{"type": "string"},
		},
		"required": []string{"summary"},
	}
	messages := []interfaces.Message{
		{Role: "system", Content: "You summarize web content for a knowledge base. Answer in compact JSON."},
		{Role: "user", Content: fmt.Sprintf("Summarize this page (%s) in 2-3 sentences, suggest a taxonomy label, up to 5 key concepts, and a mermaid diagram if the content describes a process or architecture.\n\n%s", rawURL, content)},
	}

	completion, err := f.llm.CompleteWithSchema(ctx, messages, schema, interfaces.CompletionOptions{})
	if err != nil {
		f.logger.Debug().Err(err).Str("url", rawURL).Msg("LLM enhancement skipped")
		return
	}

	for _, key := range []string{"summary", "taxonomy", "mermaid"} {
		if value, ok := completion.Value[key].(string); ok && value != "" {
			result.Data[key] = value
		}
	}
	if concepts, ok := completion.Value["keyConcepts"].([]interface{}); ok && len(concepts) > 0 {
		result.Data["keyConcepts"] = concepts
	}

	result.Metadata.ExtractionMethod = models.MethodAPIPremium
	result.Metadata.Cost += 0.001
}

// FallbackResult builds the minimal failed-extraction payload that still
// lets the pipeline classify.
func FallbackResult(contentType string, extractionError *models.ExtractionError) *models.ExtractionResult {
	return &models.ExtractionResult{
		Success:     false,
		ContentType: contentType,
		Data:        map[string]interface{}{},
		Metadata: models.ExtractionMetadata{
			ExtractionMethod: models.MethodFallback,
			Confidence:       0.3,
			Timestamp:        time.Now(),
		},
		Error: extractionError,
	}
}
