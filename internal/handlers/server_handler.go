package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/common"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
)

// ServerHandler handles heartbeat and server query requests.
type ServerHandler struct {
	heartbeats interfaces.HeartbeatService
	logger     arbor.ILogger
}

// NewServerHandler creates a new ServerHandler.
func NewServerHandler(heartbeats interfaces.HeartbeatService, logger arbor.ILogger) *ServerHandler {
	return &ServerHandler{
		heartbeats: heartbeats,
		logger:     logger,
	}
}

// HeartbeatHandler handles POST /api/heartbeat
func (h *ServerHandler) HeartbeatHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req models.HeartbeatRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteAppError(w, err)
		return
	}

	// A server-scoped key may only assert its own liveness.
	if identity := IdentityFrom(r); identity != nil && identity.ServerName != "" && identity.ServerName != req.ServerName {
		WriteAppError(w, common.ForbiddenError("key is scoped to server %s", identity.ServerName))
		return
	}

	server, err := h.heartbeats.ProcessHeartbeat(r.Context(), &req)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, models.ServerStatusResponse{
		Server:     *server,
		StatusName: server.Status.String(),
	})
}

// ListServersHandler handles GET /api/servers
func (h *ServerHandler) ListServersHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	activeOnly := true
	if raw := r.URL.Query().Get("activeOnly"); raw != "" {
		activeOnly = QueryBool(r, "activeOnly")
	}

	servers, err := h.heartbeats.ListServers(r.Context(), activeOnly)
	if err != nil {
		WriteAppError(w, err)
		return
	}

	items := make([]models.ServerStatusResponse, 0, len(servers))
	for i := range servers {
		items = append(items, models.ServerStatusResponse{
			Server:     servers[i],
			StatusName: servers[i].Status.String(),
		})
	}
	WriteJSON(w, http.StatusOK, items)
}

// ItemHandler routes GET/DELETE /api/servers/{name}
func (h *ServerHandler) ItemHandler(w http.ResponseWriter, r *http.Request) {
	serverName := PathTail(r, "/api/servers/")

	switch r.Method {
	case "GET":
		server, err := h.heartbeats.GetServer(r.Context(), serverName)
		if err != nil {
			WriteAppError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, models.ServerStatusResponse{
			Server:     *server,
			StatusName: server.Status.String(),
		})
	case "DELETE":
		if err := h.heartbeats.DeactivateServer(r.Context(), serverName); err != nil {
			WriteAppError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]string{"status": "deactivated", "serverName": serverName})
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
