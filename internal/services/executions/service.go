package executions

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/common"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// Service drives the execution lifecycle and the atomic statistics rollup
// onto the parent job.
type Service struct {
	storage  interfaces.StorageManager
	events   interfaces.EventService
	logger   arbor.ILogger
	clock    common.Clock
	validate *validator.Validate
}

// NewService creates the execution service.
func NewService(storage interfaces.StorageManager, events interfaces.EventService, logger arbor.ILogger, clock common.Clock) *Service {
	return &Service{
		storage:  storage,
		events:   events,
		logger:   logger,
		clock:    clock,
		validate: validator.New(),
	}
}

// StartExecution begins a run. The execution insert and the parent job's
// last-execution fields and totals commit in one transaction.
func (s *Service) StartExecution(ctx context.Context, req *models.StartExecutionRequest) (*models.StartExecutionResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, common.ValidationError("invalid start request: %v", err)
	}

	now := s.clock.Now()
	job, err := s.ensureJob(ctx, req.JobID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureServer(ctx, req.ServerName); err != nil {
		return nil, err
	}

	if !job.AllowConcurrent {
		active, err := s.storage.ExecutionStorage().HasActiveExecution(ctx, req.JobID)
		if err != nil {
			return nil, common.InternalError("failed to check active executions for %s", req.JobID)
		}
		if active {
			return nil, common.ConflictError("job %s already has a running execution", req.JobID)
		}
	}

	correlationID := req.CorrelationID
	if correlationID == "" {
		correlationID = common.NewCorrelationID()
	}

	execution := &models.JobExecution{
		ID:            s.storage.ExecutionStorage().AllocateID(),
		JobID:         req.JobID,
		StartedAt:     now,
		Status:        models.ExecutionRunning,
		ServerName:    req.ServerName,
		TriggerType:   req.TriggerType,
		TriggeredBy:   req.TriggeredBy,
		CorrelationID: correlationID,
		Parameters:    req.Parameters,
	}

	job.LastExecutionID = execution.ID
	job.LastExecutionAt = &now
	job.LastExecutionStatus = models.ExecutionRunning
	job.TotalExecutions++
	job.UpdatedAt = now

	if err := s.storage.ExecutionStorage().InsertWithJobUpdate(ctx, execution, job); err != nil {
		return nil, common.InternalError("failed to start execution for %s", req.JobID)
	}

	s.publishRunning(ctx, execution)

	return &models.StartExecutionResult{
		ExecutionID:   execution.ID,
		CorrelationID: correlationID,
		JobID:         req.JobID,
		ServerName:    req.ServerName,
		StartedAt:     now,
	}, nil
}

// CompleteExecution applies a terminal transition. Terminal states are
// one-shot; completing a terminal execution fails with ILLEGAL_TRANSITION.
func (s *Service) CompleteExecution(ctx context.Context, executionID uint64, req *models.CompleteExecutionRequest) (*models.JobExecution, error) {
	if !req.Status.IsValid() || !req.Status.Terminal() {
		return nil, common.ValidationError("status %d is not a terminal execution status", req.Status)
	}
	return s.finish(ctx, executionID, req)
}

// CancelExecution aborts a pending or running execution.
func (s *Service) CancelExecution(ctx context.Context, executionID uint64, reason string) (*models.JobExecution, error) {
	return s.finish(ctx, executionID, &models.CompleteExecutionRequest{
		Status:       models.ExecutionCancelled,
		ErrorMessage: reason,
	})
}

func (s *Service) finish(ctx context.Context, executionID uint64, req *models.CompleteExecutionRequest) (*models.JobExecution, error) {
	execution, err := s.storage.ExecutionStorage().GetExecution(ctx, executionID)
	if err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, common.NotFoundError("execution %d not found", executionID)
		}
		return nil, common.InternalError("failed to load execution %d", executionID)
	}
	if execution.Status.Terminal() {
		return nil, common.IllegalTransitionError("execution %d already %s", executionID, execution.Status)
	}

	now := s.clock.Now()
	if now.Before(execution.StartedAt) {
		now = execution.StartedAt
	}
	durationMs := now.Sub(execution.StartedAt).Milliseconds()

	execution.Status = req.Status
	execution.CompletedAt = &now
	execution.DurationMs = durationMs
	execution.ResultSummary = req.ResultSummary
	execution.ResultCode = req.ResultCode
	execution.ErrorMessage = req.ErrorMessage
	execution.ErrorCategory = req.ErrorCategory

	job, err := s.storage.JobStorage().GetJob(ctx, execution.JobID)
	if err != nil {
		return nil, common.InternalError("failed to load job %s", execution.JobID)
	}

	job.LastExecutionStatus = req.Status
	job.LastExecutionDurationMs = durationMs
	job.UpdatedAt = now
	if req.Status == models.ExecutionCompleted {
		job.SuccessCount++
	}
	if req.Status.CountsAsFailure() {
		job.FailureCount++
	}
	if req.Status.HasMeasuredDuration() {
		// Running mean over executions with a measured duration; cancelled
		// runs do not move the average.
		job.AvgDurationMs = (job.AvgDurationMs*job.CompletedExecutions + durationMs) / (job.CompletedExecutions + 1)
		job.CompletedExecutions++
	}

	if err := s.storage.ExecutionStorage().CompleteWithJobUpdate(ctx, execution, job); err != nil {
		return nil, common.InternalError("failed to complete execution %d", executionID)
	}

	s.publishRunning(ctx, execution)

	return execution, nil
}

func (s *Service) GetExecution(ctx context.Context, executionID uint64) (*models.JobExecution, error) {
	execution, err := s.storage.ExecutionStorage().GetExecution(ctx, executionID)
	if err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, common.NotFoundError("execution %d not found", executionID)
		}
		return nil, common.InternalError("failed to load execution %d", executionID)
	}
	return execution, nil
}

func (s *Service) ListExecutions(ctx context.Context, filter *models.ExecutionListFilter) ([]models.JobExecution, int64, error) {
	executions, total, err := s.storage.ExecutionStorage().ListExecutions(ctx, filter)
	if err != nil {
		return nil, 0, common.InternalError("failed to list executions")
	}
	return executions, total, nil
}

// SweepTimeouts transitions running executions past their job's
// maxDurationMs to Timeout.
func (s *Service) SweepTimeouts(ctx context.Context) (int, error) {
	running, err := s.storage.ExecutionStorage().RunningExecutions(ctx)
	if err != nil {
		return 0, err
	}

	now := s.clock.Now()
	transitioned := 0
	for i := range running {
		execution := &running[i]
		job, err := s.storage.JobStorage().GetJob(ctx, execution.JobID)
		if err != nil {
			continue
		}
		if job.MaxDurationMs <= 0 {
			continue
		}
		runtime := now.Sub(execution.StartedAt).Milliseconds()
		if runtime <= job.MaxDurationMs {
			continue
		}

		if _, err := s.CompleteExecution(ctx, execution.ID, &models.CompleteExecutionRequest{
			Status:       models.ExecutionTimeout,
			ErrorMessage: "Exceeded maximum duration",
		}); err != nil {
			s.logger.Warn().Err(err).Int64("execution_id", int64(execution.ID)).Msg("Failed to time out execution")
			continue
		}
		transitioned++
		s.logger.Info().
			Int64("execution_id", int64(execution.ID)).
			Str("job_id", execution.JobID).
			Int64("runtime_ms", runtime).
			Msg("Execution timed out")
	}
	return transitioned, nil
}

func (s *Service) publishRunning(ctx context.Context, execution *models.JobExecution) {
	if s.events == nil {
		return
	}
	_ = s.events.Publish(ctx, interfaces.Event{
		Type:    interfaces.EventExecutionsRunning,
		Payload: execution,
	})
}

// ensureJob returns the job, creating a stub on first reference.
func (s *Service) ensureJob(ctx context.Context, jobID string) (*models.Job, error) {
	job, err := s.storage.JobStorage().GetJob(ctx, jobID)
	if err == nil {
		return job, nil
	}
	if err != badgerhold.ErrNotFound {
		return nil, common.InternalError("failed to load job %s", jobID)
	}

	ts := s.clock.Now()
	stub := &models.Job{
		JobID:           jobID,
		DisplayName:     jobID,
		JobType:         models.JobTypeUnknown,
		IsActive:        true,
		AllowConcurrent: true,
		CreatedAt:       ts,
		UpdatedAt:       ts,
	}
	if err := s.storage.JobStorage().Upsert(ctx, stub); err != nil {
		return nil, common.InternalError("failed to create stub job %s", jobID)
	}
	return stub, nil
}

func (s *Service) ensureServer(ctx context.Context, serverName string) error {
	if strings.TrimSpace(serverName) == "" {
		return common.ValidationError("server name is required")
	}
	_, err := s.storage.ServerStorage().GetServer(ctx, serverName)
	if err == nil {
		return nil
	}
	if err != badgerhold.ErrNotFound {
		return common.InternalError("failed to load server %s", serverName)
	}

	ts := s.clock.Now()
	stub := &models.Server{
		ServerName:               serverName,
		Status:                   models.ServerOnline,
		LastHeartbeat:            &ts,
		HeartbeatIntervalSeconds: models.DefaultHeartbeatIntervalSeconds,
		IsActive:                 true,
		CreatedAt:                ts,
		UpdatedAt:                ts,
	}
	if err := s.storage.ServerStorage().Upsert(ctx, stub); err != nil {
		return common.InternalError("failed to create stub server %s", serverName)
	}
	return nil
}
