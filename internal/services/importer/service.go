package importer

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/RBarbieri13/decant/internal/common"
	"github.com/RBarbieri13/decant/internal/interfaces"
	"github.com/RBarbieri13/decant/internal/models"
	"github.com/RBarbieri13/decant/internal/services/classify"
)

// CodeAssigner produces both hierarchy codes plus the import audit row.
type CodeAssigner interface {
	AssignCodes(ctx context.Context, node *models.Node, classification *models.Classification, extraction *models.ExtractionResult) (*models.HierarchyCodes, *models.HierarchyCodeChange, error)
}

// Service is the end-to-end import orchestrator: validate, cache check,
// extract, classify, assign codes, persist, prime similarity, enqueue
// enrichment.
type Service struct {
	logger     arbor.ILogger
	config     *common.ImportConfig
	nodes      interfaces.NodeStorage
	trees      interfaces.TreeStorage
	extractors interfaces.ExtractorFactory
	classifier interfaces.Classifier
	assigner   CodeAssigner
	similarity interfaces.SimilarityService
	queue      interfaces.EnrichmentQueue
	cache      *Cache
}

func NewService(
	logger arbor.ILogger,
	config *common.ImportConfig,
	nodes interfaces.NodeStorage,
	trees interfaces.TreeStorage,
	extractors interfaces.ExtractorFactory,
	classifier interfaces.Classifier,
	assigner CodeAssigner,
	similarity interfaces.SimilarityService,
	queue interfaces.EnrichmentQueue,
) *Service {
	ttl := defaultCacheTTL
	if config != nil && config.CacheTTL > 0 {
		ttl = config.CacheTTL
	}
	return &Service{
		logger:     logger,
		config:     config,
		nodes:      nodes,
		trees:      trees,
		extractors: extractors,
		classifier: classifier,
		assigner:   assigner,
		similarity: similarity,
		queue:      queue,
		cache:      NewCache(ttl),
	}
}

// Import runs the full pipeline for one URL.
func (s *Service) Import(ctx context.Context, req *models.ImportRequest) (*models.ImportResult, error) {
	started := time.Now()

	if err := ValidateURL(req.URL); err != nil {
		return nil, err
	}

	if !req.ForceRefresh {
		if result, ok := s.cachedResult(ctx, req.URL); ok {
			return result, nil
		}
	}

	// Duplicate check against non-deleted nodes.
	existing, err := s.nodes.GetNodeByURL(ctx, req.URL)
	if err != nil && common.CodeOf(err) != common.ErrNotFound {
		return nil, err
	}
	if existing != nil {
		entry := &models.ImportCacheEntry{
			NodeID: existing.ID,
			Classification: &models.Classification{
				Segment:      existing.Segment,
				Category:     existing.Category,
				ContentType:  existing.ContentType,
				Organization: existing.Company,
			},
			HierarchyCodes: &models.HierarchyCodes{
				Function:     existing.FunctionHierarchyCode,
				Organization: existing.OrganizationHierarchyCode,
			},
			CachedAt: time.Now(),
		}
		s.cache.Put(req.URL, entry)
		return &models.ImportResult{
			NodeID:         existing.ID,
			Cached:         true,
			Node:           existing,
			Classification: entry.Classification,
			HierarchyCodes: entry.HierarchyCodes,
		}, nil
	}

	extraction, err := s.extractors.Extract(ctx, req.URL)
	if err != nil {
		return nil, err
	}
	if !extraction.Success && extraction.Error != nil && !extraction.Error.Recoverable {
		return nil, common.NewError(common.ErrorCode(extraction.Error.Code), extraction.Error.Message)
	}

	classification, err := s.classifier.Classify(ctx, req.URL, extraction)
	if err != nil {
		// The classifier degrades internally; an error here is a bug, but
		// the import still lands with the fallback.
		s.logger.Warn().Err(err).Str("url", req.URL).Msg("Classifier returned an error, using fallback")
		classification = models.FallbackClassification()
	}

	node := s.buildNode(req.URL, extraction, classification)
	codes, change, err := s.assigner.AssignCodes(ctx, node, classification, extraction)
	if err != nil {
		return nil, err
	}
	node.FunctionHierarchyCode = codes.Function
	node.OrganizationHierarchyCode = codes.Organization
	s.attachParents(ctx, node)

	entries := metadataEntries(classification)
	if err := s.nodes.CreateImportedNode(ctx, node, entries, change); err != nil {
		return nil, err
	}
	s.trees.InvalidateTree(models.HierarchyFunction, "")
	s.trees.InvalidateTree(models.HierarchyOrganization, "")

	// A committed node with missing similarity is recoverable; Phase-2
	// re-runs it.
	if len(entries) > 0 {
		if err := s.similarity.UpdateForNode(ctx, node.ID); err != nil {
			s.logger.Warn().Err(err).Str("node_id", node.ID).Msg("Similarity priming failed")
		}
	}

	result := &models.ImportResult{
		NodeID:         node.ID,
		Cached:         false,
		Node:           node,
		Classification: classification,
		HierarchyCodes: codes,
		Metadata:       &extraction.Metadata,
	}
	result.Phase2 = s.enqueuePhase2(ctx, node, req)

	s.cache.Put(req.URL, &models.ImportCacheEntry{
		NodeID:         node.ID,
		Classification: classification,
		HierarchyCodes: codes,
		CachedAt:       time.Now(),
	})

	s.logger.Info().
		Str("node_id", node.ID).
		Str("url", req.URL).
		Str("function_code", codes.Function).
		Float64("confidence", classification.Confidence).
		Int64("duration_ms", time.Since(started).Milliseconds()).
		Msg("Import complete")
	return result, nil
}

// cachedResult resolves a cache entry, dropping it when the node has been
// deleted since it was cached.
func (s *Service) cachedResult(ctx context.Context, rawURL string) (*models.ImportResult, bool) {
	entry, ok := s.cache.Get(rawURL)
	if !ok {
		return nil, false
	}

	node, err := s.nodes.GetNode(ctx, entry.NodeID)
	if err != nil || node == nil {
		s.cache.Invalidate(rawURL)
		return nil, false
	}

	return &models.ImportResult{
		NodeID:         entry.NodeID,
		Cached:         true,
		Node:           node,
		Classification: entry.Classification,
		HierarchyCodes: entry.HierarchyCodes,
	}, true
}

func (s *Service) buildNode(rawURL string, extraction *models.ExtractionResult, classification *models.Classification) *models.Node {
	now := time.Now().UTC()
	node := &models.Node{
		ID:           common.NewNodeID(),
		URL:          rawURL,
		SourceDomain: hostnameOf(rawURL),
		Title:        extraction.Title(),
		AISummary:    classification.Summary,
		ExtractedFields: map[string]interface{}{
			"contentType": extraction.ContentType,
		},
		MetadataTags: classification.MetadataTags,
		KeyConcepts:  classification.KeyConcepts,
		Segment:      classification.Segment,
		Category:     classification.Category,
		ContentType:  classification.ContentType,
		DateAdded:    now,
		DateModified: now,
	}
	for key, value := range extraction.Data {
		node.ExtractedFields[key] = value
	}

	if node.Title == "" {
		node.Title = node.SourceDomain
	}
	if !strings.EqualFold(classification.Organization, "Uncategorized") {
		node.Company = classification.Organization
	}
	if description, ok := extraction.Data["description"].(string); ok {
		node.ShortDescription = description
	}
	node.LogoURL = firstString(extraction.Data, "image", "thumbnail", "avatar")

	return node
}

// attachParents resolves the parent node ids when a node already exists at
// the parent code. Taxonomy-root parents have no node and stay empty.
func (s *Service) attachParents(ctx context.Context, node *models.Node) {
	if parentCode := models.ParentCode(node.FunctionHierarchyCode); parentCode != "" {
		if parent, err := s.trees.GetNodeByCode(ctx, models.HierarchyFunction, parentCode); err == nil && parent != nil {
			node.FunctionParentID = parent.ID
		}
	}
	if parentCode := models.ParentCode(node.OrganizationHierarchyCode); parentCode != "" {
		if parent, err := s.trees.GetNodeByCode(ctx, models.HierarchyOrganization, parentCode); err == nil && parent != nil {
			node.OrganizationParentID = parent.ID
		}
	}
}

func (s *Service) enqueuePhase2(ctx context.Context, node *models.Node, req *models.ImportRequest) models.Phase2Status {
	if s.queue == nil {
		return models.Phase2Status{}
	}

	job := &models.EnrichmentJob{
		ID:         common.NewJobID(),
		NodeID:     node.ID,
		URL:        node.URL,
		Priority:   req.Priority,
		Status:     models.EnrichmentPending,
		EnqueuedAt: time.Now().UTC(),
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		s.logger.Warn().Err(err).Str("node_id", node.ID).Msg("Failed to enqueue enrichment job")
		return models.Phase2Status{}
	}
	return models.Phase2Status{Queued: true, JobID: job.ID}
}

// CheckURL reports whether a URL is already imported or cached without
// running the pipeline.
func (s *Service) CheckURL(ctx context.Context, rawURL string) (bool, bool, *models.ImportCacheEntry, string, error) {
	if err := ValidateURL(rawURL); err != nil {
		return false, false, nil, "", err
	}

	if entry, ok := s.cache.Get(rawURL); ok {
		return true, true, entry, entry.NodeID, nil
	}

	node, err := s.nodes.GetNodeByURL(ctx, rawURL)
	if err != nil {
		if common.CodeOf(err) == common.ErrNotFound {
			return false, false, nil, "", nil
		}
		return false, false, nil, "", err
	}
	if node == nil {
		return false, false, nil, "", nil
	}
	return true, false, nil, node.ID, nil
}

// InvalidateCache drops cache entries matching the pattern.
func (s *Service) InvalidateCache(pattern string) int {
	return s.cache.Invalidate(pattern)
}

// CacheStats exposes the import cache counters.
func (s *Service) CacheStats() map[string]interface{} {
	return s.cache.Stats()
}

// metadataEntries converts suggested tags into junction rows, one per tag,
// tagged as AI-sourced with the classification confidence.
func metadataEntries(classification *models.Classification) []models.MetadataEntry {
	var entries []models.MetadataEntry
	for _, tag := range classification.MetadataTags {
		mt, code, err := models.ParseTypedCode(tag)
		if err != nil {
			continue
		}
		entries = append(entries, models.MetadataEntry{
			Type:       mt,
			Code:       code,
			Confidence: classification.Confidence,
			Source:     models.SourceAI,
		})
	}
	return entries
}

func hostnameOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
}

func firstString(data map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if value, ok := data[key].(string); ok && value != "" {
			return value
		}
	}
	return ""
}

// interface conformance
var _ interfaces.ImportService = (*Service)(nil)
var _ CodeAssigner = (*classify.Assigner)(nil)
