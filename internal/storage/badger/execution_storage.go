package badger

import (
	"context"
	"fmt"
	"sort"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// ExecutionStorage implements the ExecutionStorage interface for Badger
type ExecutionStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
	seq    sequence
}

// NewExecutionStorage creates a new ExecutionStorage instance
func NewExecutionStorage(db *BadgerDB, logger arbor.ILogger) (interfaces.ExecutionStorage, error) {
	s := &ExecutionStorage{
		db:     db,
		logger: logger,
	}

	var max uint64
	err := db.Store().ForEach(&badgerhold.Query{}, func(execution *models.JobExecution) error {
		if execution.ID > max {
			max = execution.ID
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to seed execution id sequence: %w", err)
	}
	s.seq.seed(max)

	return s, nil
}

// AllocateID reserves the next sequential execution id.
func (s *ExecutionStorage) AllocateID() uint64 {
	return s.seq.next()
}

// InsertWithJobUpdate inserts the execution and updates the parent job's
// last-execution fields and totals in one transaction.
func (s *ExecutionStorage) InsertWithJobUpdate(ctx context.Context, execution *models.JobExecution, job *models.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if execution.ID == 0 {
		execution.ID = s.AllocateID()
	}

	err := s.db.Update(func(txn *badgerdb.Txn) error {
		if err := s.db.Store().TxInsert(txn, execution.ID, execution); err != nil {
			return fmt.Errorf("failed to insert execution: %w", err)
		}
		if err := s.db.Store().TxUpsert(txn, job.JobID, job); err != nil {
			return fmt.Errorf("failed to update job: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to commit execution start: %w", err)
	}
	return nil
}

// CompleteWithJobUpdate writes the terminal execution state and the parent
// job rollup in one transaction.
func (s *ExecutionStorage) CompleteWithJobUpdate(ctx context.Context, execution *models.JobExecution, job *models.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badgerdb.Txn) error {
		if err := s.db.Store().TxUpdate(txn, execution.ID, execution); err != nil {
			return fmt.Errorf("failed to update execution: %w", err)
		}
		if err := s.db.Store().TxUpsert(txn, job.JobID, job); err != nil {
			return fmt.Errorf("failed to update job: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to commit execution completion: %w", err)
	}
	return nil
}

func (s *ExecutionStorage) GetExecution(ctx context.Context, id uint64) (*models.JobExecution, error) {
	var execution models.JobExecution
	if err := s.db.Store().Get(id, &execution); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, badgerhold.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get execution: %w", err)
	}
	return &execution, nil
}

func (s *ExecutionStorage) ListExecutions(ctx context.Context, filter *models.ExecutionListFilter) ([]models.JobExecution, int64, error) {
	query := badgerhold.Where("ID").Gt(uint64(0))

	if filter != nil {
		if filter.JobID != "" {
			query = query.And("JobID").Eq(filter.JobID)
		}
		if filter.Status != nil {
			query = query.And("Status").Eq(*filter.Status)
		}
	}

	count, err := s.db.Store().Count(&models.JobExecution{}, query)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count executions: %w", err)
	}

	query = query.SortBy("StartedAt").Reverse()
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

	var executions []models.JobExecution
	if err := s.db.Store().Find(&executions, query); err != nil {
		return nil, 0, fmt.Errorf("failed to list executions: %w", err)
	}
	return executions, int64(count), nil
}

func (s *ExecutionStorage) RecentExecutions(ctx context.Context, jobID string, limit int) ([]models.JobExecution, error) {
	if limit <= 0 {
		limit = 10
	}
	var executions []models.JobExecution
	query := badgerhold.Where("JobID").Eq(jobID).Index("JobID").SortBy("StartedAt").Reverse().Limit(limit)
	if err := s.db.Store().Find(&executions, query); err != nil {
		return nil, fmt.Errorf("failed to get recent executions: %w", err)
	}
	return executions, nil
}

func (s *ExecutionStorage) RunningExecutions(ctx context.Context) ([]models.JobExecution, error) {
	var executions []models.JobExecution
	query := badgerhold.Where("Status").Eq(models.ExecutionRunning).Index("Status")
	if err := s.db.Store().Find(&executions, query); err != nil {
		return nil, fmt.Errorf("failed to get running executions: %w", err)
	}
	return executions, nil
}

func (s *ExecutionStorage) HasActiveExecution(ctx context.Context, jobID string) (bool, error) {
	query := badgerhold.Where("JobID").Eq(jobID).
		And("Status").In(models.ExecutionPending, models.ExecutionRunning)
	count, err := s.db.Store().Count(&models.JobExecution{}, query)
	if err != nil {
		return false, fmt.Errorf("failed to check active executions: %w", err)
	}
	return count > 0, nil
}

// ConsecutiveFailures counts the unbroken run of Failed executions at the
// head of the job's history, newest first.
func (s *ExecutionStorage) ConsecutiveFailures(ctx context.Context, jobID string) (int, error) {
	executions, err := s.RecentExecutions(ctx, jobID, 50)
	if err != nil {
		return 0, err
	}
	sort.Slice(executions, func(i, j int) bool {
		return executions[i].StartedAt.After(executions[j].StartedAt)
	})
	streak := 0
	for _, execution := range executions {
		if !execution.Status.Terminal() {
			continue
		}
		if execution.Status != models.ExecutionFailed {
			break
		}
		streak++
	}
	return streak, nil
}

func (s *ExecutionStorage) CountByStatus(ctx context.Context, status models.ExecutionStatus) (int64, error) {
	count, err := s.db.Store().Count(&models.JobExecution{}, badgerhold.Where("Status").Eq(status))
	if err != nil {
		return 0, fmt.Errorf("failed to count executions: %w", err)
	}
	return int64(count), nil
}

func (s *ExecutionStorage) CountCompletedSince(ctx context.Context, since time.Time) (succeeded, failed int64, err error) {
	query := badgerhold.Where("StartedAt").Ge(since)
	ferr := s.db.Store().ForEach(query, func(execution *models.JobExecution) error {
		switch execution.Status {
		case models.ExecutionCompleted, models.ExecutionWarning:
			succeeded++
		case models.ExecutionFailed, models.ExecutionTimeout:
			failed++
		}
		return nil
	})
	if ferr != nil {
		return 0, 0, fmt.Errorf("failed to count completed executions: %w", ferr)
	}
	return succeeded, failed, nil
}
