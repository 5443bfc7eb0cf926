package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/common"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// Service accepts log entries from agents, validates them, autovivifies
// referenced jobs and servers, and hands entries to the buffered pipeline.
type Service struct {
	storage  interfaces.StorageManager
	events   interfaces.EventService
	logger   arbor.ILogger
	clock    common.Clock
	validate *validator.Validate
	pipeline *pipeline

	maxBatchSize int

	knownJobs    *knownSet
	knownServers *knownSet
}

// NewService creates the ingestion service and its pipeline.
func NewService(storage interfaces.StorageManager, events interfaces.EventService, logger arbor.ILogger, clock common.Clock, cfg *common.IngestionConfig) *Service {
	maxBatch := cfg.MaxBatchSize
	if maxBatch <= 0 || maxBatch > common.MaxBatchCap {
		maxBatch = 1000
	}

	s := &Service{
		storage:      storage,
		events:       events,
		logger:       logger,
		clock:        clock,
		validate:     validator.New(),
		maxBatchSize: maxBatch,
		knownJobs:    newKnownSet(),
		knownServers: newKnownSet(),
	}
	s.pipeline = newPipeline(s, logger, cfg)
	return s
}

// Start launches the flush workers.
func (s *Service) Start() error {
	return s.pipeline.start()
}

// Stop drains the buffer and stops the flush workers.
func (s *Service) Stop() error {
	return s.pipeline.stop()
}

// BufferDepth reports the number of buffered, not yet flushed entries.
func (s *Service) BufferDepth() int {
	return s.pipeline.depth()
}

// BufferCapacity reports the configured buffer capacity.
func (s *Service) BufferCapacity() int {
	return s.pipeline.capacity()
}

// Flush drains the buffer synchronously.
func (s *Service) Flush(ctx context.Context) error {
	return s.pipeline.flushAll(ctx)
}

// IngestLog accepts a single entry. Blocks up to the enqueue deadline for
// buffer space; past the deadline returns OVERLOADED.
func (s *Service) IngestLog(ctx context.Context, req *models.CreateLogRequest, clientIP string) (*models.LogIngestionResult, error) {
	entry, err := s.prepare(ctx, req, clientIP)
	if err != nil {
		return nil, err
	}

	entry.ID = s.storage.LogStorage().AllocateIDs(1)

	if err := s.pipeline.enqueue(ctx, entry); err != nil {
		return nil, err
	}
	return &models.LogIngestionResult{ID: entry.ID, ReceivedAt: entry.ReceivedAt}, nil
}

// IngestBatch accepts up to maxBatchSize entries. Invalid entries are
// rejected per item; when the buffer fills mid-batch the remaining entries
// are rejected and the accepted prefix stands.
func (s *Service) IngestBatch(ctx context.Context, reqs []*models.CreateLogRequest, clientIP string) (*models.BatchLogResult, error) {
	if len(reqs) == 0 {
		return nil, common.ValidationError("batch is empty")
	}
	if len(reqs) > s.maxBatchSize {
		return nil, common.ValidationError("batch size %d exceeds maximum %d", len(reqs), s.maxBatchSize)
	}

	result := &models.BatchLogResult{}
	bufferFull := false

	for i, req := range reqs {
		if bufferFull {
			result.RejectedCount++
			result.Rejections = append(result.Rejections, models.BatchRejection{
				Index: i, Reason: "ingestion buffer full",
			})
			continue
		}

		entry, err := s.prepare(ctx, req, clientIP)
		if err != nil {
			result.RejectedCount++
			result.Rejections = append(result.Rejections, models.BatchRejection{
				Index: i, Reason: err.Error(),
			})
			continue
		}

		entry.ID = s.storage.LogStorage().AllocateIDs(1)

		if ok := s.pipeline.tryEnqueue(entry); !ok {
			bufferFull = true
			result.RejectedCount++
			result.Rejections = append(result.Rejections, models.BatchRejection{
				Index: i, Reason: "ingestion buffer full",
			})
			continue
		}
		result.AcceptedCount++
	}

	return result, nil
}

// prepare validates the request, stamps server fields and autovivifies
// referenced entities.
func (s *Service) prepare(ctx context.Context, req *models.CreateLogRequest, clientIP string) (*models.LogEntry, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, common.ValidationError("invalid log entry: %s", validationSummary(err))
	}
	if !req.Level.IsValid() {
		return nil, common.ValidationError("level %d out of range 0..5", req.Level)
	}
	if strings.TrimSpace(req.Message) == "" {
		return nil, common.ValidationError("message is required")
	}
	if len(req.Properties) > 0 && !isJSONObject(req.Properties) {
		return nil, common.ValidationError("properties must be a JSON object")
	}

	now := s.clock.Now()
	timestamp := now
	if req.Timestamp != nil {
		timestamp = req.Timestamp.UTC()
	}

	entry := &models.LogEntry{
		Timestamp:          timestamp,
		Partition:          models.PartitionOf(timestamp),
		Level:              req.Level,
		Message:            req.Message,
		JobID:              req.JobID,
		JobExecutionID:     req.JobExecutionID,
		ServerName:         req.ServerName,
		Category:           req.Category,
		SourceContext:      req.SourceContext,
		CorrelationID:      req.CorrelationID,
		TraceID:            req.TraceID,
		SpanID:             req.SpanID,
		ParentSpanID:       req.ParentSpanID,
		Properties:         req.Properties,
		Tags:               req.Tags,
		Environment:        req.Environment,
		ApplicationVersion: req.AppVersion,
		ReceivedAt:         now,
		ClientIP:           clientIP,
	}
	if req.Exception != nil {
		entry.ExceptionType = req.Exception.Type
		entry.ExceptionMessage = req.Exception.Message
		entry.ExceptionStackTrace = req.Exception.StackTrace
		entry.ExceptionSource = req.Exception.Source
	}

	if err := s.ensureJob(ctx, entry.JobID); err != nil {
		return nil, err
	}
	if err := s.ensureServer(ctx, entry.ServerName); err != nil {
		return nil, err
	}

	return entry, nil
}

func isJSONObject(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return json.Valid(raw) && strings.HasPrefix(trimmed, "{")
}

func validationSummary(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		parts := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			parts = append(parts, fmt.Sprintf("%s fails %s", fe.Field(), fe.Tag()))
		}
		return strings.Join(parts, "; ")
	}
	return err.Error()
}

// ensureJob creates a stub job when the id is unknown.
func (s *Service) ensureJob(ctx context.Context, jobID string) error {
	if jobID == "" || s.knownJobs.has(jobID) {
		return nil
	}
	_, err := s.storage.JobStorage().GetJob(ctx, jobID)
	if err == nil {
		s.knownJobs.add(jobID)
		return nil
	}
	if err != badgerhold.ErrNotFound {
		return common.InternalError("failed to check job %s", jobID)
	}

	now := s.clock.Now()
	stub := &models.Job{
		JobID:           jobID,
		DisplayName:     jobID,
		JobType:         models.JobTypeUnknown,
		IsActive:        true,
		AllowConcurrent: true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.storage.JobStorage().Upsert(ctx, stub); err != nil {
		return common.InternalError("failed to create stub job %s", jobID)
	}
	s.knownJobs.add(jobID)
	return nil
}

// ensureServer creates a stub server when the name is unknown.
func (s *Service) ensureServer(ctx context.Context, serverName string) error {
	if serverName == "" || s.knownServers.has(serverName) {
		return nil
	}
	_, err := s.storage.ServerStorage().GetServer(ctx, serverName)
	if err == nil {
		s.knownServers.add(serverName)
		return nil
	}
	if err != badgerhold.ErrNotFound {
		return common.InternalError("failed to check server %s", serverName)
	}

	now := s.clock.Now()
	stub := &models.Server{
		ServerName:               serverName,
		Status:                   models.ServerOnline,
		LastHeartbeat:            &now,
		HeartbeatIntervalSeconds: models.DefaultHeartbeatIntervalSeconds,
		IsActive:                 true,
		CreatedAt:                now,
		UpdatedAt:                now,
	}
	if err := s.storage.ServerStorage().Upsert(ctx, stub); err != nil {
		return common.InternalError("failed to create stub server %s", serverName)
	}
	s.knownServers.add(serverName)
	return nil
}
