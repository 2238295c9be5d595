package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/RBarbieri13/decant/internal/interfaces"
	"github.com/RBarbieri13/decant/internal/metrics"
	"github.com/RBarbieri13/decant/internal/models"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 100
)

// SearchHandler serves the simple and filtered search endpoints.
type SearchHandler struct {
	logger     arbor.ILogger
	search     interfaces.SearchStorage
	metrics    *metrics.Metrics
	production bool
}

func NewSearchHandler(logger arbor.ILogger, search interfaces.SearchStorage, m *metrics.Metrics, production bool) *SearchHandler {
	return &SearchHandler{logger: logger, search: search, metrics: m, production: production}
}

// Simple handles GET /api/search?q=&limit=&offset=.
func (h *SearchHandler) Simple(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	query := r.URL.Query().Get("q")
	limit := clampLimit(QueryInt(r, "limit", defaultSearchLimit))
	offset := QueryInt(r, "offset", 0)

	nodes, err := h.search.SearchNodes(r.Context(), query, limit, offset)
	if err != nil {
		WriteError(w, err, h.production)
		return
	}
	if h.metrics != nil {
		h.metrics.SearchesTotal.Inc()
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"query":  query,
		"nodes":  nodes,
		"limit":  limit,
		"offset": offset,
	})
}

// Filtered handles POST /api/search/filtered.
func (h *SearchHandler) Filtered(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req struct {
		Query   string                `json:"query"`
		Filters *models.SearchFilters `json:"filters,omitempty"`
		Page    int                   `json:"page,omitempty"`
		Limit   int                   `json:"limit,omitempty"`
	}
	if err := DecodeBody(r, &req); err != nil {
		WriteError(w, err, h.production)
		return
	}

	page := req.Page
	if page < 1 {
		page = 1
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	limit = clampLimit(limit)

	results, err := h.search.SearchNodesAdvanced(r.Context(), req.Query, req.Filters, page, limit)
	if err != nil {
		WriteError(w, err, h.production)
		return
	}
	if h.metrics != nil {
		h.metrics.SearchesTotal.Inc()
	}

	WriteJSON(w, http.StatusOK, results)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultSearchLimit
	}
	if limit > maxSearchLimit {
		return maxSearchLimit
	}
	return limit
}
