package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/common"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
)

func newTestManager(t *testing.T) interfaces.StorageManager {
	t.Helper()
	storage, err := NewManager(arbor.NewLogger(), &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close() })
	return storage
}

func seedExecution(t *testing.T, storage interfaces.StorageManager, jobID string, startedAt time.Time) uint64 {
	t.Helper()
	execution := &models.JobExecution{
		ID:         storage.ExecutionStorage().AllocateID(),
		JobID:      jobID,
		ServerName: "batch-01",
		Status:     models.ExecutionRunning,
		StartedAt:  startedAt,
	}
	job := &models.Job{JobID: jobID, DisplayName: jobID, IsActive: true}
	require.NoError(t, storage.ExecutionStorage().InsertWithJobUpdate(context.Background(), execution, job))
	return execution.ID
}

func batchEntry(ts time.Time, level models.LogLevel, message string, executionID uint64) *models.LogEntry {
	return &models.LogEntry{
		Timestamp:      ts,
		ReceivedAt:     ts,
		Level:          level,
		Message:        message,
		ServerName:     "batch-01",
		JobExecutionID: executionID,
	}
}

func TestInsertBatchRollsUpExecutionLogCounts(t *testing.T) {
	storage := newTestManager(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	firstID := seedExecution(t, storage, "nightly-etl", now)
	secondID := seedExecution(t, storage, "hourly-sync", now)
	unknownID := firstID + secondID + 100

	batch := []*models.LogEntry{
		batchEntry(now, models.LevelInfo, "step 1 done", firstID),
		batchEntry(now, models.LevelInfo, "step 2 done", firstID),
		batchEntry(now, models.LevelError, "step 3 failed", firstID),
		batchEntry(now, models.LevelWarning, "slow query", secondID),
		batchEntry(now, models.LevelInfo, "orphan entry", unknownID),
		batchEntry(now, models.LevelDebug, "no execution", 0),
	}
	require.NoError(t, storage.LogStorage().InsertBatch(ctx, batch))

	first, err := storage.ExecutionStorage().GetExecution(ctx, firstID)
	require.NoError(t, err)
	require.Equal(t, int64(2), first.InfoLogCount)
	require.Equal(t, int64(1), first.ErrorLogCount)
	require.Equal(t, int64(3), first.LogCount)

	second, err := storage.ExecutionStorage().GetExecution(ctx, secondID)
	require.NoError(t, err)
	require.Equal(t, int64(1), second.WarningLogCount)
	require.Equal(t, int64(1), second.LogCount)

	// Entries carrying an unknown or zero execution id land as log rows
	// without touching any counters.
	total, err := storage.LogStorage().CountAll(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(6), total)
}

func TestPartitionsListsMonthsOldestFirst(t *testing.T) {
	storage := newTestManager(t)
	ctx := context.Background()

	for _, ts := range []time.Time{
		time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		time.Date(2026, 6, 15, 8, 0, 0, 0, time.UTC),
		time.Date(2026, 7, 20, 23, 0, 0, 0, time.UTC),
		time.Date(2026, 8, 2, 9, 0, 0, 0, time.UTC),
	} {
		require.NoError(t, storage.LogStorage().InsertBatch(ctx, []*models.LogEntry{
			batchEntry(ts, models.LevelInfo, "entry", 0),
		}))
	}

	partitions, err := storage.LogStorage().Partitions(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"2026-06", "2026-07", "2026-08"}, partitions)
}

func TestInsertBatchAccumulatesAcrossFlushes(t *testing.T) {
	storage := newTestManager(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	executionID := seedExecution(t, storage, "nightly-etl", now)

	require.NoError(t, storage.LogStorage().InsertBatch(ctx, []*models.LogEntry{
		batchEntry(now, models.LevelInfo, "first flush", executionID),
	}))
	require.NoError(t, storage.LogStorage().InsertBatch(ctx, []*models.LogEntry{
		batchEntry(now.Add(time.Second), models.LevelCritical, "second flush", executionID),
	}))

	execution, err := storage.ExecutionStorage().GetExecution(ctx, executionID)
	require.NoError(t, err)
	require.Equal(t, int64(1), execution.InfoLogCount)
	require.Equal(t, int64(1), execution.CriticalLogCount)
	require.Equal(t, int64(2), execution.LogCount)
}
