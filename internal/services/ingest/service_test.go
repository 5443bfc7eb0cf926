package ingest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/common"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
	"github.com/ternarybob/vigil/internal/storage/badger"
)

func newTestService(t *testing.T, cfg *common.IngestionConfig) (*Service, interfaces.StorageManager, *common.ManualClock) {
	t.Helper()

	storage, err := badger.NewManager(arbor.NewLogger(), &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close() })

	if cfg == nil {
		cfg = &common.IngestionConfig{
			MaxBatchSize:         100,
			MaxQueueSize:         100,
			ProcessingIntervalMs: 50,
			EnqueueDeadlineMs:    20,
			FlushWorkers:         1,
		}
	}
	clock := common.NewManualClock(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	return NewService(storage, nil, arbor.NewLogger(), clock, cfg), storage, clock
}

func searchAll(t *testing.T, storage interfaces.StorageManager, now time.Time) *models.LogSearchResult {
	t.Helper()
	filter := &models.LogSearchFilter{}
	filter.Normalize(now)
	result, err := storage.LogStorage().Search(context.Background(), filter)
	require.NoError(t, err)
	return result
}

func TestIngestFlushSearch(t *testing.T) {
	svc, storage, clock := newTestService(t, nil)
	ctx := context.Background()

	ack, err := svc.IngestLog(ctx, &models.CreateLogRequest{
		Level:      models.LevelError,
		Message:    "connection refused",
		JobID:      "nightly-etl",
		ServerName: "batch-01",
		Exception: &models.ExceptionInfo{
			Type:    "System.Net.Sockets.SocketException",
			Message: "connection refused",
		},
	}, "10.0.0.5")
	require.NoError(t, err)
	require.NotZero(t, ack.ID)
	require.Equal(t, clock.Now(), ack.ReceivedAt)
	require.Equal(t, 1, svc.BufferDepth())

	require.NoError(t, svc.Flush(ctx))
	require.Equal(t, 0, svc.BufferDepth())

	result := searchAll(t, storage, clock.Now())
	require.Equal(t, int64(1), result.TotalCount)
	entry := result.Items[0]
	require.Equal(t, ack.ID, entry.ID)
	require.Equal(t, models.LevelError, entry.Level)
	require.Equal(t, "connection refused", entry.Message)
	require.Equal(t, "batch-01", entry.ServerName)
	require.Equal(t, "10.0.0.5", entry.ClientIP)
	require.True(t, entry.HasException())
}

func TestIngestAutovivifiesJobAndServer(t *testing.T) {
	svc, storage, _ := newTestService(t, nil)
	ctx := context.Background()

	_, err := svc.IngestLog(ctx, &models.CreateLogRequest{
		Level:      models.LevelInfo,
		Message:    "starting",
		JobID:      "brand-new-job",
		ServerName: "brand-new-host",
	}, "")
	require.NoError(t, err)

	job, err := storage.JobStorage().GetJob(ctx, "brand-new-job")
	require.NoError(t, err)
	require.Equal(t, "brand-new-job", job.DisplayName)
	require.True(t, job.IsActive)

	server, err := storage.ServerStorage().GetServer(ctx, "brand-new-host")
	require.NoError(t, err)
	require.Equal(t, models.ServerOnline, server.Status)
}

func TestAgentTimestampPreserved(t *testing.T) {
	svc, storage, clock := newTestService(t, nil)
	ctx := context.Background()

	sent := clock.Now().Add(-time.Hour)
	_, err := svc.IngestLog(ctx, &models.CreateLogRequest{
		Timestamp:  &sent,
		Level:      models.LevelWarning,
		Message:    "buffered on the agent",
		ServerName: "batch-01",
	}, "")
	require.NoError(t, err)
	require.NoError(t, svc.Flush(ctx))

	result := searchAll(t, storage, clock.Now())
	require.Equal(t, int64(1), result.TotalCount)
	require.Equal(t, sent, result.Items[0].Timestamp)
	require.Equal(t, clock.Now(), result.Items[0].ReceivedAt)
}

func TestIngestValidation(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	ctx := context.Background()

	cases := []struct {
		name string
		req  *models.CreateLogRequest
	}{
		{"missing message", &models.CreateLogRequest{Level: models.LevelInfo, ServerName: "batch-01"}},
		{"blank message", &models.CreateLogRequest{Level: models.LevelInfo, Message: "   ", ServerName: "batch-01"}},
		{"missing server", &models.CreateLogRequest{Level: models.LevelInfo, Message: "hello"}},
		{"level out of range", &models.CreateLogRequest{Level: 9, Message: "hello", ServerName: "batch-01"}},
		{"properties not an object", &models.CreateLogRequest{
			Level: models.LevelInfo, Message: "hello", ServerName: "batch-01",
			Properties: json.RawMessage(`[1,2]`),
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.IngestLog(ctx, tc.req, "")
			appErr := common.AsAppError(err)
			require.Equal(t, common.CodeValidation, appErr.Code)
		})
	}
}

func TestBatchRejectsInvalidEntriesPerItem(t *testing.T) {
	svc, storage, clock := newTestService(t, nil)
	ctx := context.Background()

	result, err := svc.IngestBatch(ctx, []*models.CreateLogRequest{
		{Level: models.LevelInfo, Message: "first", ServerName: "batch-01"},
		{Level: models.LevelInfo, ServerName: "batch-01"}, // no message
		{Level: models.LevelInfo, Message: "third", ServerName: "batch-01"},
	}, "")
	require.NoError(t, err)
	require.Equal(t, 2, result.AcceptedCount)
	require.Equal(t, 1, result.RejectedCount)
	require.Len(t, result.Rejections, 1)
	require.Equal(t, 1, result.Rejections[0].Index)

	require.NoError(t, svc.Flush(ctx))
	stored := searchAll(t, storage, clock.Now())
	require.Equal(t, int64(2), stored.TotalCount)
}

func TestBatchSizeLimit(t *testing.T) {
	svc, _, _ := newTestService(t, &common.IngestionConfig{MaxBatchSize: 2, MaxQueueSize: 10})
	ctx := context.Background()

	_, err := svc.IngestBatch(ctx, []*models.CreateLogRequest{
		{Level: models.LevelInfo, Message: "a", ServerName: "s"},
		{Level: models.LevelInfo, Message: "b", ServerName: "s"},
		{Level: models.LevelInfo, Message: "c", ServerName: "s"},
	}, "")
	appErr := common.AsAppError(err)
	require.Equal(t, common.CodeValidation, appErr.Code)

	_, err = svc.IngestBatch(ctx, nil, "")
	appErr = common.AsAppError(err)
	require.Equal(t, common.CodeValidation, appErr.Code)
}

func TestSingleIngestOverloaded(t *testing.T) {
	// Workers never started; the two-slot buffer fills and stays full.
	svc, _, _ := newTestService(t, &common.IngestionConfig{
		MaxBatchSize:      100,
		MaxQueueSize:      2,
		EnqueueDeadlineMs: 10,
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := svc.IngestLog(ctx, &models.CreateLogRequest{
			Level: models.LevelInfo, Message: "fill", ServerName: "batch-01",
		}, "")
		require.NoError(t, err)
	}

	_, err := svc.IngestLog(ctx, &models.CreateLogRequest{
		Level: models.LevelInfo, Message: "overflow", ServerName: "batch-01",
	}, "")
	appErr := common.AsAppError(err)
	require.Equal(t, common.CodeOverloaded, appErr.Code)
	require.Contains(t, appErr.Message, "ingestion buffer full")
}

func TestBatchPrefixAcceptOnFullBuffer(t *testing.T) {
	svc, _, _ := newTestService(t, &common.IngestionConfig{
		MaxBatchSize:      100,
		MaxQueueSize:      2,
		EnqueueDeadlineMs: 10,
	})
	ctx := context.Background()

	reqs := make([]*models.CreateLogRequest, 4)
	for i := range reqs {
		reqs[i] = &models.CreateLogRequest{Level: models.LevelInfo, Message: "entry", ServerName: "batch-01"}
	}

	result, err := svc.IngestBatch(ctx, reqs, "")
	require.NoError(t, err)
	require.Equal(t, 2, result.AcceptedCount)
	require.Equal(t, 2, result.RejectedCount)
	require.Len(t, result.Rejections, 2)
	require.Equal(t, 2, result.Rejections[0].Index)
	require.Equal(t, 3, result.Rejections[1].Index)
	for _, rejection := range result.Rejections {
		require.Equal(t, "ingestion buffer full", rejection.Reason)
	}
}

func TestPipelineStartStopDrains(t *testing.T) {
	svc, storage, clock := newTestService(t, &common.IngestionConfig{
		MaxBatchSize:         100,
		MaxQueueSize:         100,
		ProcessingIntervalMs: 10,
		EnqueueDeadlineMs:    20,
		FlushWorkers:         2,
	})
	ctx := context.Background()

	require.NoError(t, svc.Start())
	for i := 0; i < 5; i++ {
		_, err := svc.IngestLog(ctx, &models.CreateLogRequest{
			Level: models.LevelInfo, Message: "entry", ServerName: "batch-01",
		}, "")
		require.NoError(t, err)
	}
	require.NoError(t, svc.Stop())

	stored := searchAll(t, storage, clock.Now())
	require.Equal(t, int64(5), stored.TotalCount)
}
