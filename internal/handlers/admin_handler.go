package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
)

// AdminHandler handles retention and API key administration.
type AdminHandler struct {
	retention interfaces.RetentionService
	auth      interfaces.AuthService
	logger    arbor.ILogger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(retention interfaces.RetentionService, auth interfaces.AuthService, logger arbor.ILogger) *AdminHandler {
	return &AdminHandler{
		retention: retention,
		auth:      auth,
		logger:    logger,
	}
}

// RetentionHandler handles POST /api/admin/retention. dryRun previews the
// per-category counts without deleting anything.
func (h *AdminHandler) RetentionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req models.RetentionRequest
	if r.ContentLength > 0 {
		if err := DecodeJSON(r, &req); err != nil {
			WriteAppError(w, err)
			return
		}
	}

	result, err := h.retention.Run(r.Context(), &req)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// APIKeysHandler handles GET (list) and POST (create) /api/admin/apikeys
func (h *AdminHandler) APIKeysHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		keys, err := h.auth.ListAPIKeys(r.Context())
		if err != nil {
			WriteAppError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, keys)
	case "POST":
		var req models.CreateAPIKeyRequest
		if err := DecodeJSON(r, &req); err != nil {
			WriteAppError(w, err)
			return
		}
		response, err := h.auth.CreateAPIKey(r.Context(), &req, ActorFrom(r))
		if err != nil {
			WriteAppError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, response)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// RevokeAPIKeyHandler handles DELETE /api/admin/apikeys/{id}
func (h *AdminHandler) RevokeAPIKeyHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "DELETE") {
		return
	}
	id := PathTail(r, "/api/admin/apikeys/")
	if err := h.auth.RevokeAPIKey(r.Context(), id); err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "revoked", "id": id})
}
