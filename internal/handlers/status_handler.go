package handlers

import (
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/common"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
)

// StatusHandler reports process health and version information.
type StatusHandler struct {
	ingest      interfaces.IngestService
	storage     interfaces.StorageManager
	hub         *WSHandler
	clock       common.Clock
	logger      arbor.ILogger
	instanceID  string
	startedAt   time.Time
	maintenance func() bool
}

// NewStatusHandler creates a new StatusHandler. maintenance reports the
// current maintenance-mode flag.
func NewStatusHandler(ingest interfaces.IngestService, storage interfaces.StorageManager, hub *WSHandler, clock common.Clock, logger arbor.ILogger, instanceID string, startedAt time.Time, maintenance func() bool) *StatusHandler {
	return &StatusHandler{
		ingest:      ingest,
		storage:     storage,
		hub:         hub,
		clock:       clock,
		logger:      logger,
		instanceID:  instanceID,
		startedAt:   startedAt,
		maintenance: maintenance,
	}
}

// StatusHandler handles GET /api/status
func (h *StatusHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	status := models.SystemStatusResponse{
		Version:       common.GetVersion(),
		InstanceID:    h.instanceID,
		StartedAt:     h.startedAt,
		UptimeSeconds: int64(h.clock.Now().Sub(h.startedAt).Seconds()),
	}
	if h.ingest != nil {
		status.BufferDepth = h.ingest.BufferDepth()
		status.BufferCapacity = h.ingest.BufferCapacity()
	}
	if h.hub != nil {
		status.SubscriberCount = h.hub.SubscriberCount()
	}
	if h.maintenance != nil {
		status.MaintenanceMode = h.maintenance()
	}
	if h.storage != nil {
		partitions, err := h.storage.LogStorage().Partitions(r.Context())
		if err != nil {
			h.logger.Warn().Err(err).Msg("Failed to list log partitions")
		} else {
			status.LogPartitions = partitions
		}
	}
	WriteJSON(w, http.StatusOK, status)
}

// HealthHandler handles GET /api/health
func (h *StatusHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// VersionHandler handles GET /api/version
func (h *StatusHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.GetVersion(),
		"build":   common.GetBuild(),
		"commit":  common.GetGitCommit(),
	})
}
