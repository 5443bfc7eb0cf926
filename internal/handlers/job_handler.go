package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
)

// JobHandler handles job registration and query requests.
type JobHandler struct {
	jobs   interfaces.JobService
	logger arbor.ILogger
}

// NewJobHandler creates a new JobHandler.
func NewJobHandler(jobs interfaces.JobService, logger arbor.ILogger) *JobHandler {
	return &JobHandler{
		jobs:   jobs,
		logger: logger,
	}
}

// ListJobsHandler handles GET /api/jobs
func (h *JobHandler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	filter := &models.JobListFilter{
		ServerName: r.URL.Query().Get("serverName"),
		Category:   r.URL.Query().Get("category"),
		Page:       QueryInt(r, "page", 1),
		PageSize:   QueryInt(r, "pageSize", 50),
	}
	if raw := r.URL.Query().Get("isActive"); raw != "" {
		active := QueryBool(r, "isActive")
		filter.IsActive = &active
	}

	jobs, total, err := h.jobs.ListJobs(r.Context(), filter)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"items":      jobs,
		"totalCount": total,
		"page":       filter.Page,
		"pageSize":   filter.PageSize,
	})
}

// UpsertJobHandler handles POST/PUT /api/jobs
func (h *JobHandler) UpsertJobHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" && r.Method != "PUT" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req models.UpsertJobRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteAppError(w, err)
		return
	}

	job, err := h.jobs.UpsertJob(r.Context(), &req, ActorFrom(r))
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

// GetJobHandler handles GET /api/jobs/{id}: the job with recent executions.
func (h *JobHandler) GetJobHandler(w http.ResponseWriter, r *http.Request) {
	jobID := PathTail(r, "/api/jobs/")
	detail, err := h.jobs.GetJobDetail(r.Context(), jobID)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, detail)
}

// DeactivateJobHandler handles DELETE /api/jobs/{id}
func (h *JobHandler) DeactivateJobHandler(w http.ResponseWriter, r *http.Request) {
	jobID := PathTail(r, "/api/jobs/")
	if err := h.jobs.DeactivateJob(r.Context(), jobID); err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "deactivated", "jobId": jobID})
}
