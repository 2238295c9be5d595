package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/RBarbieri13/decant/internal/common"
	"github.com/RBarbieri13/decant/internal/interfaces"
)

// SettingsHandler manages provider API keys in the encrypted keystore.
type SettingsHandler struct {
	logger     arbor.ILogger
	keystore   interfaces.Keystore
	production bool
}

func NewSettingsHandler(logger arbor.ILogger, keystore interfaces.Keystore, production bool) *SettingsHandler {
	return &SettingsHandler{logger: logger, keystore: keystore, production: production}
}

// APIKey dispatches POST/GET/DELETE /api/settings/api-key.
func (h *SettingsHandler) APIKey(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.setKey(w, r)
	case http.MethodGet:
		h.listProviders(w, r)
	case http.MethodDelete:
		h.deleteKey(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *SettingsHandler) setKey(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Provider string `json:"provider"`
		APIKey   string `json:"apiKey"`
	}
	if err := DecodeBody(r, &req); err != nil {
		WriteError(w, err, h.production)
		return
	}
	if req.Provider == "" || req.APIKey == "" {
		WriteError(w, common.NewError(common.ErrValidationFailed, "provider and apiKey are required"), h.production)
		return
	}

	if err := h.keystore.SetKey(r.Context(), req.Provider, req.APIKey); err != nil {
		WriteError(w, err, h.production)
		return
	}
	h.logger.Info().Str("provider", req.Provider).Msg("API key stored")
	WriteJSON(w, http.StatusOK, map[string]interface{}{"success": true, "provider": req.Provider})
}

// listProviders never returns key material, only which providers have one.
func (h *SettingsHandler) listProviders(w http.ResponseWriter, r *http.Request) {
	providers, err := h.keystore.ListProviders(r.Context())
	if err != nil {
		WriteError(w, err, h.production)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"providers": providers})
}

func (h *SettingsHandler) deleteKey(w http.ResponseWriter, r *http.Request) {
	provider := r.URL.Query().Get("provider")
	if provider == "" {
		WriteError(w, common.NewError(common.ErrValidationFailed, "provider query parameter is required"), h.production)
		return
	}

	if err := h.keystore.DeleteKey(r.Context(), provider); err != nil {
		WriteError(w, err, h.production)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}
