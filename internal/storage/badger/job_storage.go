package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// JobStorage implements the JobStorage interface for Badger
type JobStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewJobStorage creates a new JobStorage instance
func NewJobStorage(db *BadgerDB, logger arbor.ILogger) interfaces.JobStorage {
	return &JobStorage{
		db:     db,
		logger: logger,
	}
}

func (s *JobStorage) Upsert(ctx context.Context, job *models.Job) error {
	if job.JobID == "" {
		return fmt.Errorf("job id is required")
	}
	if err := s.db.Store().Upsert(job.JobID, job); err != nil {
		return fmt.Errorf("failed to upsert job: %w", err)
	}
	return nil
}

func (s *JobStorage) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	var job models.Job
	if err := s.db.Store().Get(jobID, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, badgerhold.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

func (s *JobStorage) ListJobs(ctx context.Context, filter *models.JobListFilter) ([]models.Job, int64, error) {
	query := badgerhold.Where("JobID").Ne("")

	if filter != nil {
		if filter.ServerName != "" {
			query = query.And("ServerName").Eq(filter.ServerName)
		}
		if filter.Category != "" {
			query = query.And("Category").Eq(filter.Category)
		}
		if filter.IsActive != nil {
			query = query.And("IsActive").Eq(*filter.IsActive)
		}
		if filter.JobType != nil {
			query = query.And("JobType").Eq(*filter.JobType)
		}
	}

	count, err := s.db.Store().Count(&models.Job{}, query)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count jobs: %w", err)
	}

	query = query.SortBy("JobID")
	if filter != nil {
		page := filter.Page
		pageSize := filter.PageSize
		if page < 1 {
			page = 1
		}
		if pageSize < 1 {
			pageSize = 50
		}
		query = query.Skip((page - 1) * pageSize).Limit(pageSize)
	}

	var jobs []models.Job
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, 0, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, int64(count), nil
}

func (s *JobStorage) SetActive(ctx context.Context, jobID string, active bool) error {
	var job models.Job
	if err := s.db.Store().Get(jobID, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return badgerhold.ErrNotFound
		}
		return fmt.Errorf("failed to get job: %w", err)
	}
	job.IsActive = active
	if err := s.db.Store().Update(jobID, &job); err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	return nil
}

func (s *JobStorage) CountJobs(ctx context.Context, activeOnly bool) (int64, error) {
	var query *badgerhold.Query
	if activeOnly {
		query = badgerhold.Where("IsActive").Eq(true)
	}
	count, err := s.db.Store().Count(&models.Job{}, query)
	if err != nil {
		return 0, fmt.Errorf("failed to count jobs: %w", err)
	}
	return int64(count), nil
}
