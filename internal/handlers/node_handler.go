package handlers

import (
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/RBarbieri13/decant/internal/common"
	"github.com/RBarbieri13/decant/internal/interfaces"
	"github.com/RBarbieri13/decant/internal/models"
)

// Backlink grouping thresholds.
const (
	backlinkSimilarScore = 0.8
	backlinkSiblingScore = 0.6
	backlinkSharedTags   = 3
	defaultRelatedLimit  = 10
)

// NodeHandler serves node CRUD, merge, move, and the similarity-derived
// read endpoints.
type NodeHandler struct {
	logger     arbor.ILogger
	nodes      interfaces.NodeStorage
	trees      interfaces.TreeStorage
	similarity interfaces.SimilarityService
	audit      interfaces.AuditStorage
	production bool
}

func NewNodeHandler(logger arbor.ILogger, nodes interfaces.NodeStorage, trees interfaces.TreeStorage, similarity interfaces.SimilarityService, audit interfaces.AuditStorage, production bool) *NodeHandler {
	return &NodeHandler{logger: logger, nodes: nodes, trees: trees, similarity: similarity, audit: audit, production: production}
}

// List handles GET /api/nodes. Without paging parameters the full list is
// returned.
func (h *NodeHandler) List(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	limit := QueryInt(r, "limit", 0)
	page := QueryInt(r, "page", 1)
	if page < 1 {
		page = 1
	}
	offset := 0
	if limit > 0 {
		offset = (page - 1) * limit
	}

	nodes, total, err := h.nodes.ListNodes(r.Context(), limit, offset)
	if err != nil {
		WriteError(w, err, h.production)
		return
	}

	response := map[string]interface{}{
		"nodes": nodes,
		"total": total,
	}
	if limit > 0 {
		response["page"] = page
		response["limit"] = limit
	}
	WriteJSON(w, http.StatusOK, response)
}

// Create handles POST /api/nodes for manual node creation.
func (h *NodeHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var node models.Node
	if err := DecodeBody(r, &node); err != nil {
		WriteError(w, err, h.production)
		return
	}
	if node.URL == "" {
		WriteError(w, common.NewError(common.ErrURLRequired, "url is required"), h.production)
		return
	}
	if node.ID == "" {
		node.ID = common.NewNodeID()
	}
	now := time.Now().UTC()
	node.DateAdded = now
	node.DateModified = now

	if err := h.nodes.CreateNode(r.Context(), &node); err != nil {
		WriteError(w, err, h.production)
		return
	}
	h.invalidateTrees()
	WriteJSON(w, http.StatusCreated, &node)
}

// Get handles GET /api/nodes/{id}.
func (h *NodeHandler) Get(w http.ResponseWriter, r *http.Request, id string) {
	node, err := h.nodes.GetNode(r.Context(), id)
	if err != nil {
		WriteError(w, err, h.production)
		return
	}
	WriteJSON(w, http.StatusOK, node)
}

// Update handles PUT /api/nodes/{id}.
func (h *NodeHandler) Update(w http.ResponseWriter, r *http.Request, id string) {
	var patch models.NodePatch
	if err := DecodeBody(r, &patch); err != nil {
		WriteError(w, err, h.production)
		return
	}

	node, err := h.nodes.UpdateNode(r.Context(), id, &patch)
	if err != nil {
		WriteError(w, err, h.production)
		return
	}
	h.invalidateTrees()
	WriteJSON(w, http.StatusOK, node)
}

// Delete handles DELETE /api/nodes/{id}: soft delete plus edge cleanup.
func (h *NodeHandler) Delete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.nodes.DeleteNode(r.Context(), id); err != nil {
		WriteError(w, err, h.production)
		return
	}
	if err := h.similarity.UpdateForNode(r.Context(), id); err != nil {
		h.logger.Warn().Err(err).Str("node_id", id).Msg("Similarity cleanup after delete failed")
	}
	h.invalidateTrees()
	WriteJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// Merge handles POST /api/nodes/{id}/merge.
func (h *NodeHandler) Merge(w http.ResponseWriter, r *http.Request, id string) {
	var req struct {
		SecondaryID string               `json:"secondaryId"`
		Options     *models.MergeOptions `json:"options,omitempty"`
	}
	if err := DecodeBody(r, &req); err != nil {
		WriteError(w, err, h.production)
		return
	}
	if req.SecondaryID == "" {
		WriteError(w, common.NewError(common.ErrValidationFailed, "secondaryId is required"), h.production)
		return
	}

	opts := models.MergeOptions{}
	if req.Options != nil {
		opts = *req.Options
	}

	merged, err := h.nodes.MergeNodes(r.Context(), id, req.SecondaryID, opts)
	if err != nil {
		WriteError(w, err, h.production)
		return
	}

	// The secondary's edges are stale and the primary's tag set changed.
	if err := h.similarity.UpdateForNode(r.Context(), id); err != nil {
		h.logger.Warn().Err(err).Str("node_id", id).Msg("Similarity refresh after merge failed")
	}
	h.invalidateTrees()
	WriteJSON(w, http.StatusOK, merged)
}

// Move handles POST /api/nodes/{id}/move.
func (h *NodeHandler) Move(w http.ResponseWriter, r *http.Request, id string) {
	var req struct {
		TargetParentID  string `json:"targetParentId,omitempty"`
		TargetHierarchy string `json:"targetHierarchy"`
	}
	if err := DecodeBody(r, &req); err != nil {
		WriteError(w, err, h.production)
		return
	}

	view := models.HierarchyView(req.TargetHierarchy)
	if view != models.HierarchyFunction && view != models.HierarchyOrganization {
		WriteError(w, common.NewError(common.ErrValidationFailed,
			"targetHierarchy must be \"function\" or \"organization\""), h.production)
		return
	}

	moved, err := h.nodes.MoveNode(r.Context(), id, req.TargetParentID, view)
	if err != nil {
		WriteError(w, err, h.production)
		return
	}
	h.invalidateTrees()
	WriteJSON(w, http.StatusOK, moved)
}

// Related handles GET /api/nodes/{id}/related?limit=.
func (h *NodeHandler) Related(w http.ResponseWriter, r *http.Request, id string) {
	limit := QueryInt(r, "limit", defaultRelatedLimit)

	similar, err := h.similarity.GetSimilar(r.Context(), id, limit)
	if err != nil {
		WriteError(w, err, h.production)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"nodeId":  id,
		"related": similar,
	})
}

// Backlinks handles GET /api/nodes/{id}/backlinks?limit=, grouping
// neighbors by reference strength.
func (h *NodeHandler) Backlinks(w http.ResponseWriter, r *http.Request, id string) {
	limit := QueryInt(r, "limit", 50)

	node, err := h.nodes.GetNode(r.Context(), id)
	if err != nil {
		WriteError(w, err, h.production)
		return
	}

	neighbors, err := h.similarity.GetSimilar(r.Context(), id, limit)
	if err != nil {
		WriteError(w, err, h.production)
		return
	}

	ownTags := make(map[string]bool, len(node.MetadataTags))
	for _, tag := range node.MetadataTags {
		ownTags[tag] = true
	}

	groups := map[string][]*models.SimilarNode{
		"similar": {},
		"sibling": {},
		"related": {},
	}
	for _, neighbor := range neighbors {
		switch {
		case neighbor.Score >= backlinkSimilarScore:
			groups["similar"] = append(groups["similar"], neighbor)
		case neighbor.Score >= backlinkSiblingScore && h.sharedTagCount(r, neighbor.NodeID, ownTags) >= backlinkSharedTags:
			groups["sibling"] = append(groups["sibling"], neighbor)
		default:
			groups["related"] = append(groups["related"], neighbor)
		}
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"nodeId":    id,
		"backlinks": groups,
	})
}

// History handles GET /api/nodes/{id}/history: the node's hierarchy code
// audit trail, newest first.
func (h *NodeHandler) History(w http.ResponseWriter, r *http.Request, id string) {
	limit := QueryInt(r, "limit", 50)

	changes, err := h.audit.ListChangesForNode(r.Context(), id, limit)
	if err != nil {
		WriteError(w, err, h.production)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"nodeId":  id,
		"changes": changes,
	})
}

func (h *NodeHandler) sharedTagCount(r *http.Request, neighborID string, ownTags map[string]bool) int {
	neighbor, err := h.nodes.GetNode(r.Context(), neighborID)
	if err != nil {
		return 0
	}
	shared := 0
	for _, tag := range neighbor.MetadataTags {
		if ownTags[tag] {
			shared++
		}
	}
	return shared
}

func (h *NodeHandler) invalidateTrees() {
	h.trees.InvalidateTree(models.HierarchyFunction, "")
	h.trees.InvalidateTree(models.HierarchyOrganization, "")
}
