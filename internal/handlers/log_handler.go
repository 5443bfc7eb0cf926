package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/common"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
)

const correlatedLimit = 200

// LogHandler handles log ingestion and search requests.
type LogHandler struct {
	ingest  interfaces.IngestService
	storage interfaces.StorageManager
	clock   common.Clock
	logger  arbor.ILogger
}

// NewLogHandler creates a new LogHandler.
func NewLogHandler(ingest interfaces.IngestService, storage interfaces.StorageManager, clock common.Clock, logger arbor.ILogger) *LogHandler {
	return &LogHandler{
		ingest:  ingest,
		storage: storage,
		clock:   clock,
		logger:  logger,
	}
}

// IngestHandler handles POST /api/logs
func (h *LogHandler) IngestHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req models.CreateLogRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteAppError(w, err)
		return
	}

	result, err := h.ingest.IngestLog(r.Context(), &req, ClientIP(r))
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusAccepted, result)
}

// IngestBatchHandler handles POST /api/logs/batch
func (h *LogHandler) IngestBatchHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var reqs []*models.CreateLogRequest
	if err := DecodeJSON(r, &reqs); err != nil {
		WriteAppError(w, err)
		return
	}

	result, err := h.ingest.IngestBatch(r.Context(), reqs, ClientIP(r))
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusAccepted, result)
}

// SearchHandler handles GET and POST /api/logs/search. GET takes query
// parameters; POST takes the filter as a JSON body.
func (h *LogHandler) SearchHandler(w http.ResponseWriter, r *http.Request) {
	var filter models.LogSearchFilter
	switch r.Method {
	case "POST":
		if err := DecodeJSON(r, &filter); err != nil {
			WriteAppError(w, err)
			return
		}
	case "GET":
		filter = h.filterFromQuery(r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	filter.Normalize(h.clock.Now())
	result, err := h.storage.LogStorage().Search(r.Context(), &filter)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Log search failed")
		WriteAppError(w, common.InternalError("log search failed"))
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// GetLogHandler handles GET /api/logs/{id}: the entry plus its correlated
// siblings.
func (h *LogHandler) GetLogHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	id, err := PathID(r, "/api/logs/")
	if err != nil {
		WriteAppError(w, err)
		return
	}

	entry, err := h.storage.LogStorage().GetLog(r.Context(), id)
	if err != nil {
		WriteAppError(w, common.NotFoundError("log %d not found", id))
		return
	}

	response := models.LogDetailResponse{Entry: *entry}
	if entry.CorrelationID != "" {
		correlated, err := h.storage.LogStorage().GetByCorrelationID(r.Context(), entry.CorrelationID, correlatedLimit)
		if err == nil {
			for i := range correlated {
				if correlated[i].ID == entry.ID {
					continue
				}
				response.Correlated = append(response.Correlated, correlated[i])
			}
		}
	}
	WriteJSON(w, http.StatusOK, response)
}

func (h *LogHandler) filterFromQuery(r *http.Request) models.LogSearchFilter {
	filter := models.LogSearchFilter{
		Start:         QueryTime(r, "start"),
		End:           QueryTime(r, "end"),
		JobID:         r.URL.Query().Get("jobId"),
		ServerName:    r.URL.Query().Get("serverName"),
		MinLevel:      QueryLevel(r, "minLevel"),
		MaxLevel:      QueryLevel(r, "maxLevel"),
		SearchText:    r.URL.Query().Get("searchText"),
		ExceptionType: r.URL.Query().Get("exceptionType"),
		CorrelationID: r.URL.Query().Get("correlationId"),
		Tag:           r.URL.Query().Get("tag"),
		Page:          QueryInt(r, "page", 0),
		PageSize:      QueryInt(r, "pageSize", 0),
		SortColumn:    r.URL.Query().Get("sortColumn"),
		SortDirection: r.URL.Query().Get("sortDirection"),
	}
	if raw := r.URL.Query().Get("jobExecutionId"); raw != "" {
		filter.JobExecutionID = uint64(QueryInt(r, "jobExecutionId", 0))
	}
	if raw := r.URL.Query().Get("hasException"); raw != "" {
		value := QueryBool(r, "hasException")
		filter.HasException = &value
	}
	return filter
}
