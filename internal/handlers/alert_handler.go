package handlers

import (
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/common"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
)

const defaultInstanceLimit = 100

// AlertHandler handles alert rule and instance requests.
type AlertHandler struct {
	alerts interfaces.AlertService
	logger arbor.ILogger
}

// NewAlertHandler creates a new AlertHandler.
func NewAlertHandler(alerts interfaces.AlertService, logger arbor.ILogger) *AlertHandler {
	return &AlertHandler{
		alerts: alerts,
		logger: logger,
	}
}

// CollectionHandler handles GET (list) and POST (create) /api/alerts
func (h *AlertHandler) CollectionHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		activeOnly := QueryBool(r, "activeOnly")
		alerts, err := h.alerts.ListAlerts(r.Context(), activeOnly)
		if err != nil {
			WriteAppError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, alerts)
	case "POST":
		var req models.UpsertAlertRequest
		if err := DecodeJSON(r, &req); err != nil {
			WriteAppError(w, err)
			return
		}
		alert, err := h.alerts.CreateAlert(r.Context(), &req)
		if err != nil {
			WriteAppError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, alert)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// ItemHandler routes /api/alerts/{id} and its enable/disable subpaths.
func (h *AlertHandler) ItemHandler(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	if strings.HasSuffix(path, "/enable") || strings.HasSuffix(path, "/disable") {
		h.setActive(w, r, strings.HasSuffix(path, "/enable"))
		return
	}

	id, err := PathID(r, "/api/alerts/")
	if err != nil {
		WriteAppError(w, err)
		return
	}

	switch r.Method {
	case "GET":
		alert, err := h.alerts.GetAlert(r.Context(), id)
		if err != nil {
			WriteAppError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, alert)
	case "PUT":
		var req models.UpsertAlertRequest
		if err := DecodeJSON(r, &req); err != nil {
			WriteAppError(w, err)
			return
		}
		alert, err := h.alerts.UpdateAlert(r.Context(), id, &req)
		if err != nil {
			WriteAppError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, alert)
	case "DELETE":
		if err := h.alerts.DeleteAlert(r.Context(), id); err != nil {
			WriteAppError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]interface{}{"status": "deleted", "id": id})
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *AlertHandler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	if !RequireMethod(w, r, "POST") {
		return
	}
	id, err := PathID(r, "/api/alerts/")
	if err != nil {
		WriteAppError(w, err)
		return
	}
	if err := h.alerts.SetAlertActive(r.Context(), id, active); err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"id": id, "isActive": active})
}

// ListInstancesHandler handles GET /api/alert-instances
func (h *AlertHandler) ListInstancesHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	var status *models.InstanceStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		value := models.InstanceStatus(QueryInt(r, "status", -1))
		status = &value
	}

	instances, err := h.alerts.ListInstances(r.Context(), status, QueryInt(r, "limit", defaultInstanceLimit))
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, instances)
}

// InstanceActionHandler routes /api/alert-instances/{id}/acknowledge and
// /api/alert-instances/{id}/resolve, plus the bulk variants without an id.
func (h *AlertHandler) InstanceActionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	path := r.URL.Path
	acknowledge := strings.HasSuffix(path, "/acknowledge")
	if !acknowledge && !strings.HasSuffix(path, "/resolve") {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	var req models.InstanceActionRequest
	if r.ContentLength > 0 {
		if err := DecodeJSON(r, &req); err != nil {
			WriteAppError(w, err)
			return
		}
	}

	actor := ActorFrom(r)
	idPath := strings.TrimSuffix(strings.TrimSuffix(path, "/acknowledge"), "/resolve")

	ids := req.IDs
	if id, err := pathIDFrom(idPath, "/api/alert-instances/"); err == nil {
		ids = []uint64{id}
	}
	if len(ids) == 0 {
		WriteAppError(w, common.ValidationError("no instance ids given"))
		return
	}

	for _, id := range ids {
		var err error
		if acknowledge {
			err = h.alerts.AcknowledgeInstance(r.Context(), id, actor, req.Note)
		} else {
			err = h.alerts.ResolveInstance(r.Context(), id, actor, req.Note)
		}
		if err != nil {
			WriteAppError(w, err)
			return
		}
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "ids": ids})
}
