package jobs

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
	return NewService(storage, arbor.NewLogger(), clock), storage, clock
}

func TestUpsertCreatesWithDefaults(t *testing.T) {
	svc, _, _ := newTestService(t)

	job, err := svc.UpsertJob(context.Background(), &models.UpsertJobRequest{
		JobID: "nightly-etl",
	}, "agent:batch-01")
	require.NoError(t, err)
	require.Equal(t, "nightly-etl", job.JobID)
	require.Equal(t, "nightly-etl", job.DisplayName)
	require.True(t, job.IsActive)
	require.True(t, job.AllowConcurrent)
	require.False(t, job.IsCritical)
	require.Equal(t, "agent:batch-01", job.CreatedBy)
}

func TestUpsertIsIdempotent(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	req := &models.UpsertJobRequest{
		JobID:       "nightly-etl",
		DisplayName: "Nightly ETL",
		Category:    "warehouse",
		Schedule:    "0 2 * * *",
	}
	first, err := svc.UpsertJob(ctx, req, "operator")
	require.NoError(t, err)

	second, err := svc.UpsertJob(ctx, req, "operator")
	require.NoError(t, err)
	require.Equal(t, first.DisplayName, second.DisplayName)
	require.Equal(t, first.Category, second.Category)
	require.Equal(t, first.Schedule, second.Schedule)
	require.Equal(t, first.CreatedAt, second.CreatedAt)
	require.True(t, second.IsActive)
}

func TestUpsertMergesPartialUpdate(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	critical := true
	_, err := svc.UpsertJob(ctx, &models.UpsertJobRequest{
		JobID:       "nightly-etl",
		DisplayName: "Nightly ETL",
		Description: "extract, transform, load",
		IsCritical:  &critical,
	}, "operator")
	require.NoError(t, err)

	// Category only; everything else keeps its value.
	updated, err := svc.UpsertJob(ctx, &models.UpsertJobRequest{
		JobID:    "nightly-etl",
		Category: "warehouse",
	}, "operator")
	require.NoError(t, err)
	require.Equal(t, "Nightly ETL", updated.DisplayName)
	require.Equal(t, "extract, transform, load", updated.Description)
	require.Equal(t, "warehouse", updated.Category)
	require.True(t, updated.IsCritical)
}

func TestUpsertPreservesRollupStats(t *testing.T) {
	svc, storage, clock := newTestService(t)
	ctx := context.Background()

	_, err := svc.UpsertJob(ctx, &models.UpsertJobRequest{JobID: "nightly-etl"}, "operator")
	require.NoError(t, err)

	// Simulate rollups written by the execution lifecycle.
	job, err := storage.JobStorage().GetJob(ctx, "nightly-etl")
	require.NoError(t, err)
	job.TotalExecutions = 12
	job.SuccessCount = 10
	job.FailureCount = 2
	job.CompletedExecutions = 12
	job.AvgDurationMs = 4321
	require.NoError(t, storage.JobStorage().Upsert(ctx, job))

	clock.Advance(time.Minute)
	updated, err := svc.UpsertJob(ctx, &models.UpsertJobRequest{
		JobID:       "nightly-etl",
		Description: "re-registered on agent restart",
	}, "agent:batch-01")
	require.NoError(t, err)
	require.Equal(t, int64(12), updated.TotalExecutions)
	require.Equal(t, int64(10), updated.SuccessCount)
	require.Equal(t, int64(2), updated.FailureCount)
	require.Equal(t, int64(4321), updated.AvgDurationMs)
	require.Equal(t, "agent:batch-01", updated.UpdatedBy)
}

func TestUpsertRequiresJobID(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.UpsertJob(context.Background(), &models.UpsertJobRequest{}, "operator")
	appErr := common.AsAppError(err)
	require.Equal(t, common.CodeValidation, appErr.Code)
}

func TestDeactivatePreservesJob(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.UpsertJob(ctx, &models.UpsertJobRequest{JobID: "retired"}, "operator")
	require.NoError(t, err)

	require.NoError(t, svc.DeactivateJob(ctx, "retired"))

	job, err := svc.GetJob(ctx, "retired")
	require.NoError(t, err)
	require.False(t, job.IsActive)

	err = svc.DeactivateJob(ctx, "never-existed")
	appErr := common.AsAppError(err)
	require.Equal(t, common.CodeNotFound, appErr.Code)
}

func TestListJobsFilters(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	for _, spec := range []struct{ id, category string }{
		{"etl-a", "warehouse"},
		{"etl-b", "warehouse"},
		{"report-c", "reporting"},
	} {
		_, err := svc.UpsertJob(ctx, &models.UpsertJobRequest{JobID: spec.id, Category: spec.category}, "operator")
		require.NoError(t, err)
	}
	require.NoError(t, svc.DeactivateJob(ctx, "etl-b"))

	all, total, err := svc.ListJobs(ctx, &models.JobListFilter{})
	require.NoError(t, err)
	require.Equal(t, int64(3), total)
	require.Len(t, all, 3)

	active := true
	warehouse, total, err := svc.ListJobs(ctx, &models.JobListFilter{Category: "warehouse", IsActive: &active})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	require.Equal(t, "etl-a", warehouse[0].JobID)
}
