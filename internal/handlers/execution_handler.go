package handlers

import (
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
)

// ExecutionHandler handles execution lifecycle requests.
type ExecutionHandler struct {
	executions interfaces.ExecutionService
	logger     arbor.ILogger
}

// NewExecutionHandler creates a new ExecutionHandler.
func NewExecutionHandler(executions interfaces.ExecutionService, logger arbor.ILogger) *ExecutionHandler {
	return &ExecutionHandler{
		executions: executions,
		logger:     logger,
	}
}

// StartHandler handles POST /api/executions
func (h *ExecutionHandler) StartHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req models.StartExecutionRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteAppError(w, err)
		return
	}

	result, err := h.executions.StartExecution(r.Context(), &req)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, result)
}

// ListHandler handles GET /api/executions
func (h *ExecutionHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	filter := &models.ExecutionListFilter{
		JobID:    r.URL.Query().Get("jobId"),
		Page:     QueryInt(r, "page", 1),
		PageSize: QueryInt(r, "pageSize", 50),
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := models.ExecutionStatus(QueryInt(r, "status", -1))
		if status.IsValid() {
			filter.Status = &status
		}
	}

	executions, total, err := h.executions.ListExecutions(r.Context(), filter)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"items":      executions,
		"totalCount": total,
		"page":       filter.Page,
		"pageSize":   filter.PageSize,
	})
}

// ItemHandler routes /api/executions/{id} and its complete/cancel subpaths.
func (h *ExecutionHandler) ItemHandler(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	switch {
	case strings.HasSuffix(path, "/complete"):
		h.complete(w, r, strings.TrimSuffix(path, "/complete"))
	case strings.HasSuffix(path, "/cancel"):
		h.cancel(w, r, strings.TrimSuffix(path, "/cancel"))
	default:
		h.get(w, r)
	}
}

func (h *ExecutionHandler) get(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	id, err := PathID(r, "/api/executions/")
	if err != nil {
		WriteAppError(w, err)
		return
	}
	execution, err := h.executions.GetExecution(r.Context(), id)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, execution)
}

func (h *ExecutionHandler) complete(w http.ResponseWriter, r *http.Request, idPath string) {
	if !RequireMethod(w, r, "POST") {
		return
	}
	id, err := pathIDFrom(idPath, "/api/executions/")
	if err != nil {
		WriteAppError(w, err)
		return
	}

	var req models.CompleteExecutionRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteAppError(w, err)
		return
	}

	execution, err := h.executions.CompleteExecution(r.Context(), id, &req)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, execution)
}

func (h *ExecutionHandler) cancel(w http.ResponseWriter, r *http.Request, idPath string) {
	if !RequireMethod(w, r, "POST") {
		return
	}
	id, err := pathIDFrom(idPath, "/api/executions/")
	if err != nil {
		WriteAppError(w, err)
		return
	}

	var req models.CancelExecutionRequest
	if r.ContentLength > 0 {
		if err := DecodeJSON(r, &req); err != nil {
			WriteAppError(w, err)
			return
		}
	}

	execution, err := h.executions.CancelExecution(r.Context(), id, req.Reason)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, execution)
}
