package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/RBarbieri13/decant/internal/common"
	"github.com/RBarbieri13/decant/internal/interfaces"
	"github.com/RBarbieri13/decant/internal/models"
)

// TreeHandler serves the hierarchy tree endpoints.
type TreeHandler struct {
	logger     arbor.ILogger
	trees      interfaces.TreeStorage
	taxonomy   interfaces.TaxonomyStorage
	production bool
}

func NewTreeHandler(logger arbor.ILogger, trees interfaces.TreeStorage, taxonomy interfaces.TaxonomyStorage, production bool) *TreeHandler {
	return &TreeHandler{logger: logger, trees: trees, taxonomy: taxonomy, production: production}
}

// ParseView validates the :view path segment.
func ParseView(raw string) (models.HierarchyView, error) {
	view := models.HierarchyView(raw)
	if view != models.HierarchyFunction && view != models.HierarchyOrganization {
		return "", common.NewError(common.ErrValidationFailed,
			"view must be \"function\" or \"organization\", got "+raw)
	}
	return view, nil
}

// Tree handles GET /api/tree/{view}.
func (h *TreeHandler) Tree(w http.ResponseWriter, r *http.Request, rawView string) {
	view, err := ParseView(rawView)
	if err != nil {
		WriteError(w, err, h.production)
		return
	}

	tree, err := h.trees.GetTree(r.Context(), view)
	if err != nil {
		WriteError(w, err, h.production)
		return
	}

	response := map[string]interface{}{
		"view": view,
		"tree": tree,
	}
	// Taxonomy roots give the UI labels for top-level code segments.
	if view == models.HierarchyFunction {
		if segments, err := h.taxonomy.ListSegments(r.Context()); err == nil {
			response["segments"] = segments
		}
	} else {
		if organizations, err := h.taxonomy.ListOrganizations(r.Context()); err == nil {
			response["organizations"] = organizations
		}
	}
	WriteJSON(w, http.StatusOK, response)
}

// Subtree handles GET /api/tree/{view}/subtree/{path}.
func (h *TreeHandler) Subtree(w http.ResponseWriter, r *http.Request, rawView, path string) {
	view, err := ParseView(rawView)
	if err != nil {
		WriteError(w, err, h.production)
		return
	}
	if path == "" {
		WriteError(w, common.NewError(common.ErrValidationFailed, "subtree path is required"), h.production)
		return
	}

	subtree, err := h.trees.GetSubtree(r.Context(), view, path)
	if err != nil {
		WriteError(w, err, h.production)
		return
	}
	WriteJSON(w, http.StatusOK, subtree)
}

// NodeByCode handles GET /api/tree/{view}/node/{code}.
func (h *TreeHandler) NodeByCode(w http.ResponseWriter, r *http.Request, rawView, code string) {
	view, err := ParseView(rawView)
	if err != nil {
		WriteError(w, err, h.production)
		return
	}
	if code == "" {
		WriteError(w, common.NewError(common.ErrValidationFailed, "node code is required"), h.production)
		return
	}

	node, err := h.trees.GetNodeByCode(r.Context(), view, code)
	if err != nil {
		WriteError(w, err, h.production)
		return
	}
	WriteJSON(w, http.StatusOK, node)
}
