package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/interfaces"
)

// DashboardHandler serves the cached aggregate views.
type DashboardHandler struct {
	dashboard interfaces.DashboardService
	logger    arbor.ILogger
}

// NewDashboardHandler creates a new DashboardHandler.
func NewDashboardHandler(dashboard interfaces.DashboardService, logger arbor.ILogger) *DashboardHandler {
	return &DashboardHandler{
		dashboard: dashboard,
		logger:    logger,
	}
}

// SummaryHandler handles GET /api/dashboard/summary
func (h *DashboardHandler) SummaryHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	summary, err := h.dashboard.GetSummary(r.Context())
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, summary)
}

// TrendHandler handles GET /api/dashboard/trend
func (h *DashboardHandler) TrendHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	trend, err := h.dashboard.GetHourlyTrend(r.Context())
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, trend)
}

// TopExceptionsHandler handles GET /api/dashboard/exceptions
func (h *DashboardHandler) TopExceptionsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	items, err := h.dashboard.GetTopExceptions(r.Context())
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, items)
}

// ServerStatusHandler handles GET /api/dashboard/servers
func (h *DashboardHandler) ServerStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	items, err := h.dashboard.GetServerStatusList(r.Context())
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, items)
}
