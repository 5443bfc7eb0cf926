package executions

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/common"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
	"github.com/ternarybob/vigil/internal/storage/badger"
)

func newTestService(t *testing.T) (*Service, interfaces.StorageManager, *common.ManualClock) {
	t.Helper()

	storage, err := badger.NewManager(arbor.NewLogger(), &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close() })

	clock := common.NewManualClock(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	return NewService(storage, nil, arbor.NewLogger(), clock), storage, clock
}

func TestStartAndCompleteRollsUpJobStats(t *testing.T) {
	svc, storage, clock := newTestService(t)
	ctx := context.Background()

	started, err := svc.StartExecution(ctx, &models.StartExecutionRequest{
		JobID:       "nightly-etl",
		ServerName:  "batch-01",
		TriggerType: "Scheduled",
	})
	require.NoError(t, err)
	require.NotZero(t, started.ExecutionID)
	require.NotEmpty(t, started.CorrelationID)

	clock.Advance(2 * time.Second)
	execution, err := svc.CompleteExecution(ctx, started.ExecutionID, &models.CompleteExecutionRequest{
		Status: models.ExecutionCompleted,
	})
	require.NoError(t, err)
	require.Equal(t, models.ExecutionCompleted, execution.Status)
	require.Equal(t, int64(2000), execution.DurationMs)
	require.NotNil(t, execution.CompletedAt)

	job, err := storage.JobStorage().GetJob(ctx, "nightly-etl")
	require.NoError(t, err)
	require.Equal(t, int64(1), job.TotalExecutions)
	require.Equal(t, int64(1), job.SuccessCount)
	require.Equal(t, int64(0), job.FailureCount)
	require.Equal(t, int64(1), job.CompletedExecutions)
	require.Equal(t, int64(2000), job.AvgDurationMs)
	require.Equal(t, models.ExecutionCompleted, job.LastExecutionStatus)
	require.Equal(t, int64(2000), job.LastExecutionDurationMs)

	// Second run fails after 4s; the running mean moves to 3000.
	started, err = svc.StartExecution(ctx, &models.StartExecutionRequest{
		JobID:      "nightly-etl",
		ServerName: "batch-01",
	})
	require.NoError(t, err)
	clock.Advance(4 * time.Second)
	_, err = svc.CompleteExecution(ctx, started.ExecutionID, &models.CompleteExecutionRequest{
		Status:       models.ExecutionFailed,
		ErrorMessage: "exit code 1",
	})
	require.NoError(t, err)

	job, err = storage.JobStorage().GetJob(ctx, "nightly-etl")
	require.NoError(t, err)
	require.Equal(t, int64(2), job.TotalExecutions)
	require.Equal(t, int64(1), job.SuccessCount)
	require.Equal(t, int64(1), job.FailureCount)
	require.Equal(t, int64(2), job.CompletedExecutions)
	require.Equal(t, int64(3000), job.AvgDurationMs)
}

func TestCancelledExecutionDoesNotMoveAverage(t *testing.T) {
	svc, storage, clock := newTestService(t)
	ctx := context.Background()

	started, err := svc.StartExecution(ctx, &models.StartExecutionRequest{
		JobID:      "report-gen",
		ServerName: "batch-02",
	})
	require.NoError(t, err)
	clock.Advance(2 * time.Second)
	_, err = svc.CompleteExecution(ctx, started.ExecutionID, &models.CompleteExecutionRequest{
		Status: models.ExecutionCompleted,
	})
	require.NoError(t, err)

	started, err = svc.StartExecution(ctx, &models.StartExecutionRequest{
		JobID:      "report-gen",
		ServerName: "batch-02",
	})
	require.NoError(t, err)
	clock.Advance(10 * time.Second)
	execution, err := svc.CancelExecution(ctx, started.ExecutionID, "operator abort")
	require.NoError(t, err)
	require.Equal(t, models.ExecutionCancelled, execution.Status)
	require.Equal(t, "operator abort", execution.ErrorMessage)

	job, err := storage.JobStorage().GetJob(ctx, "report-gen")
	require.NoError(t, err)
	require.Equal(t, int64(1), job.CompletedExecutions)
	require.Equal(t, int64(2000), job.AvgDurationMs)
	require.Equal(t, int64(0), job.FailureCount)
	require.Equal(t, models.ExecutionCancelled, job.LastExecutionStatus)
}

func TestCompleteIsOneShot(t *testing.T) {
	svc, _, clock := newTestService(t)
	ctx := context.Background()

	started, err := svc.StartExecution(ctx, &models.StartExecutionRequest{
		JobID:      "oneshot",
		ServerName: "batch-01",
	})
	require.NoError(t, err)
	clock.Advance(time.Second)
	_, err = svc.CompleteExecution(ctx, started.ExecutionID, &models.CompleteExecutionRequest{
		Status: models.ExecutionCompleted,
	})
	require.NoError(t, err)

	_, err = svc.CompleteExecution(ctx, started.ExecutionID, &models.CompleteExecutionRequest{
		Status: models.ExecutionFailed,
	})
	appErr := common.AsAppError(err)
	require.Equal(t, common.CodeIllegalTransition, appErr.Code)

	_, err = svc.CancelExecution(ctx, started.ExecutionID, "too late")
	appErr = common.AsAppError(err)
	require.Equal(t, common.CodeIllegalTransition, appErr.Code)
}

func TestCompleteRejectsNonTerminalStatus(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	started, err := svc.StartExecution(ctx, &models.StartExecutionRequest{
		JobID:      "validate",
		ServerName: "batch-01",
	})
	require.NoError(t, err)

	for _, status := range []models.ExecutionStatus{models.ExecutionPending, models.ExecutionRunning, models.ExecutionStatus(99)} {
		_, err = svc.CompleteExecution(ctx, started.ExecutionID, &models.CompleteExecutionRequest{Status: status})
		appErr := common.AsAppError(err)
		require.Equal(t, common.CodeValidation, appErr.Code)
	}
}

func TestConcurrencyGuard(t *testing.T) {
	svc, storage, clock := newTestService(t)
	ctx := context.Background()

	now := clock.Now()
	require.NoError(t, storage.JobStorage().Upsert(ctx, &models.Job{
		JobID:           "serial-job",
		DisplayName:     "serial-job",
		IsActive:        true,
		AllowConcurrent: false,
		CreatedAt:       now,
		UpdatedAt:       now,
	}))

	first, err := svc.StartExecution(ctx, &models.StartExecutionRequest{
		JobID:      "serial-job",
		ServerName: "batch-01",
	})
	require.NoError(t, err)

	_, err = svc.StartExecution(ctx, &models.StartExecutionRequest{
		JobID:      "serial-job",
		ServerName: "batch-02",
	})
	appErr := common.AsAppError(err)
	require.Equal(t, common.CodeConflict, appErr.Code)

	clock.Advance(time.Second)
	_, err = svc.CompleteExecution(ctx, first.ExecutionID, &models.CompleteExecutionRequest{
		Status: models.ExecutionCompleted,
	})
	require.NoError(t, err)

	_, err = svc.StartExecution(ctx, &models.StartExecutionRequest{
		JobID:      "serial-job",
		ServerName: "batch-01",
	})
	require.NoError(t, err)
}

func TestStartAutovivifiesJobAndServer(t *testing.T) {
	svc, storage, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.StartExecution(ctx, &models.StartExecutionRequest{
		JobID:      "never-registered",
		ServerName: "new-host",
	})
	require.NoError(t, err)

	job, err := storage.JobStorage().GetJob(ctx, "never-registered")
	require.NoError(t, err)
	require.Equal(t, "never-registered", job.DisplayName)
	require.True(t, job.IsActive)
	require.True(t, job.AllowConcurrent)

	server, err := storage.ServerStorage().GetServer(ctx, "new-host")
	require.NoError(t, err)
	require.Equal(t, models.ServerOnline, server.Status)
	require.True(t, server.IsActive)
}

func TestSweepTimeouts(t *testing.T) {
	svc, storage, clock := newTestService(t)
	ctx := context.Background()

	now := clock.Now()
	require.NoError(t, storage.JobStorage().Upsert(ctx, &models.Job{
		JobID:           "bounded",
		DisplayName:     "bounded",
		IsActive:        true,
		AllowConcurrent: true,
		MaxDurationMs:   1000,
		CreatedAt:       now,
		UpdatedAt:       now,
	}))

	bounded, err := svc.StartExecution(ctx, &models.StartExecutionRequest{
		JobID:      "bounded",
		ServerName: "batch-01",
	})
	require.NoError(t, err)

	// No max duration configured; never swept.
	unbounded, err := svc.StartExecution(ctx, &models.StartExecutionRequest{
		JobID:      "unbounded",
		ServerName: "batch-01",
	})
	require.NoError(t, err)

	transitioned, err := svc.SweepTimeouts(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, transitioned)

	clock.Advance(2 * time.Second)
	transitioned, err = svc.SweepTimeouts(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, transitioned)

	execution, err := svc.GetExecution(ctx, bounded.ExecutionID)
	require.NoError(t, err)
	require.Equal(t, models.ExecutionTimeout, execution.Status)
	require.Equal(t, "Exceeded maximum duration", execution.ErrorMessage)

	still, err := svc.GetExecution(ctx, unbounded.ExecutionID)
	require.NoError(t, err)
	require.Equal(t, models.ExecutionRunning, still.Status)

	job, err := storage.JobStorage().GetJob(ctx, "bounded")
	require.NoError(t, err)
	require.Equal(t, int64(1), job.FailureCount)
}

func TestGetExecutionNotFound(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.GetExecution(context.Background(), 424242)
	appErr := common.AsAppError(err)
	require.Equal(t, common.CodeNotFound, appErr.Code)
}
