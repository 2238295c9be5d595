package handlers

import (
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/RBarbieri13/decant/internal/common"
	"github.com/RBarbieri13/decant/internal/interfaces"
	"github.com/RBarbieri13/decant/internal/metrics"
	"github.com/RBarbieri13/decant/internal/models"
)

// ImportHandler serves the import pipeline endpoints.
type ImportHandler struct {
	logger     arbor.ILogger
	importer   interfaces.ImportService
	metrics    *metrics.Metrics
	production bool
}

func NewImportHandler(logger arbor.ILogger, importer interfaces.ImportService, m *metrics.Metrics, production bool) *ImportHandler {
	return &ImportHandler{logger: logger, importer: importer, metrics: m, production: production}
}

// Import handles POST /api/import.
func (h *ImportHandler) Import(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req models.ImportRequest
	if err := DecodeBody(r, &req); err != nil {
		WriteError(w, err, h.production)
		return
	}
	if req.URL == "" {
		WriteError(w, common.NewError(common.ErrURLRequired, "url is required"), h.production)
		return
	}

	started := time.Now()
	result, err := h.importer.Import(r.Context(), &req)
	if err != nil {
		h.logger.Warn().Err(err).Str("url", req.URL).Msg("Import failed")
		if h.metrics != nil {
			h.metrics.ImportsTotal.WithLabelValues("error").Inc()
		}
		WriteError(w, err, h.production)
		return
	}

	if h.metrics != nil {
		outcome := "created"
		if result.Cached {
			outcome = "cached"
			h.metrics.CacheHitsTotal.Inc()
		}
		h.metrics.ImportsTotal.WithLabelValues(outcome).Inc()
		h.metrics.ImportDuration.Observe(time.Since(started).Seconds())
		if result.Metadata != nil {
			h.metrics.ExtractionsTotal.WithLabelValues(
				result.Node.ContentType, string(result.Metadata.ExtractionMethod)).Inc()
		}
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":        true,
		"nodeId":         result.NodeID,
		"cached":         result.Cached,
		"node":           result.Node,
		"classification": result.Classification,
		"hierarchyCodes": result.HierarchyCodes,
		"metadata":       result.Metadata,
		"phase2":         result.Phase2,
	})
}

// Check handles GET /api/import/check?url=.
func (h *ImportHandler) Check(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	rawURL := r.URL.Query().Get("url")
	if rawURL == "" {
		WriteError(w, common.NewError(common.ErrURLRequired, "url query parameter is required"), h.production)
		return
	}

	exists, cached, entry, nodeID, err := h.importer.CheckURL(r.Context(), rawURL)
	if err != nil {
		WriteError(w, err, h.production)
		return
	}

	response := map[string]interface{}{
		"exists": exists,
		"cached": cached,
	}
	if nodeID != "" {
		response["nodeId"] = nodeID
	}
	if entry != nil {
		response["classification"] = entry.Classification
		response["cachedAt"] = entry.CachedAt.UTC().Format(time.RFC3339)
	}
	WriteJSON(w, http.StatusOK, response)
}

// InvalidateCache handles DELETE /api/import/cache?url=.
func (h *ImportHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodDelete) {
		return
	}

	pattern := r.URL.Query().Get("url")
	if pattern == "" {
		WriteError(w, common.NewError(common.ErrURLRequired, "url query parameter is required"), h.production)
		return
	}

	invalidated := h.importer.InvalidateCache(pattern)
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"invalidated": invalidated,
	})
}

// CacheStats handles GET /api/import/cache/stats.
func (h *ImportHandler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, h.importer.CacheStats())
}
