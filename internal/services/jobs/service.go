package jobs

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/common"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

const recentExecutionLimit = 10

// Service manages job definitions. Rollup statistics are owned by the
// execution service; upserts never touch them.
type Service struct {
	storage  interfaces.StorageManager
	logger   arbor.ILogger
	clock    common.Clock
	validate *validator.Validate
}

// NewService creates the job service.
func NewService(storage interfaces.StorageManager, logger arbor.ILogger, clock common.Clock) *Service {
	return &Service{
		storage:  storage,
		logger:   logger,
		clock:    clock,
		validate: validator.New(),
	}
}

// UpsertJob registers or updates a job definition. Idempotent: repeating the
// same request leaves the job unchanged apart from UpdatedAt/UpdatedBy.
func (s *Service) UpsertJob(ctx context.Context, req *models.UpsertJobRequest, actor string) (*models.Job, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, common.ValidationError("invalid job request: %v", err)
	}

	now := s.clock.Now()
	job, err := s.storage.JobStorage().GetJob(ctx, req.JobID)
	if err == badgerhold.ErrNotFound {
		job = &models.Job{
			JobID:           req.JobID,
			IsActive:        true,
			AllowConcurrent: true,
			CreatedAt:       now,
			CreatedBy:       actor,
		}
	} else if err != nil {
		return nil, common.InternalError("failed to load job %s", req.JobID)
	}

	if req.DisplayName != "" {
		job.DisplayName = req.DisplayName
	}
	if job.DisplayName == "" {
		job.DisplayName = req.JobID
	}
	if req.Description != "" {
		job.Description = req.Description
	}
	if req.Category != "" {
		job.Category = req.Category
	}
	if len(req.Tags) > 0 {
		job.Tags = req.Tags
	}
	if req.JobType != models.JobTypeUnknown {
		job.JobType = req.JobType
	}
	if req.ServerName != "" {
		job.ServerName = req.ServerName
	}
	if req.ExecutablePath != "" {
		job.ExecutablePath = req.ExecutablePath
	}
	if req.Schedule != "" {
		job.Schedule = req.Schedule
	}
	if req.IsActive != nil {
		job.IsActive = *req.IsActive
	}
	if req.IsCritical != nil {
		job.IsCritical = *req.IsCritical
	}
	if req.AllowConcurrent != nil {
		job.AllowConcurrent = *req.AllowConcurrent
	}
	if req.ExpectedDurationMs > 0 {
		job.ExpectedDurationMs = req.ExpectedDurationMs
	}
	if req.MaxDurationMs > 0 {
		job.MaxDurationMs = req.MaxDurationMs
	}
	if len(req.Configuration) > 0 {
		job.Configuration = req.Configuration
	}
	job.UpdatedAt = now
	job.UpdatedBy = actor

	if err := s.storage.JobStorage().Upsert(ctx, job); err != nil {
		return nil, common.InternalError("failed to upsert job %s", req.JobID)
	}
	return job, nil
}

func (s *Service) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	job, err := s.storage.JobStorage().GetJob(ctx, jobID)
	if err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, common.NotFoundError("job %s not found", jobID)
		}
		return nil, common.InternalError("failed to load job %s", jobID)
	}
	return job, nil
}

// GetJobDetail returns the job with its most recent executions.
func (s *Service) GetJobDetail(ctx context.Context, jobID string) (*models.JobDetailResponse, error) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	executions, err := s.storage.ExecutionStorage().RecentExecutions(ctx, jobID, recentExecutionLimit)
	if err != nil {
		return nil, common.InternalError("failed to load executions for %s", jobID)
	}
	return &models.JobDetailResponse{
		Job:              *job,
		RecentExecutions: executions,
	}, nil
}

func (s *Service) ListJobs(ctx context.Context, filter *models.JobListFilter) ([]models.Job, int64, error) {
	jobs, total, err := s.storage.JobStorage().ListJobs(ctx, filter)
	if err != nil {
		return nil, 0, common.InternalError("failed to list jobs")
	}
	return jobs, total, nil
}

// DeactivateJob soft-deletes the job. History is preserved.
func (s *Service) DeactivateJob(ctx context.Context, jobID string) error {
	if err := s.storage.JobStorage().SetActive(ctx, jobID, false); err != nil {
		if err == badgerhold.ErrNotFound {
			return common.NotFoundError("job %s not found", jobID)
		}
		return common.InternalError("failed to deactivate job %s", jobID)
	}
	return nil
}
