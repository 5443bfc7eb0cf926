package dashboard

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
	cfg := &common.DashboardConfig{StatsCacheTtlSeconds: 30}
	return NewService(storage, nil, arbor.NewLogger(), clock, cfg), storage, clock
}

func seedLog(t *testing.T, storage interfaces.StorageManager, ts time.Time, level models.LogLevel, message string) {
	t.Helper()
	entry := &models.LogEntry{
		ID:         storage.LogStorage().AllocateIDs(1),
		Timestamp:  ts,
		Partition:  models.PartitionOf(ts),
		Level:      level,
		Message:    message,
		ServerName: "batch-01",
		ReceivedAt: ts,
	}
	require.NoError(t, storage.LogStorage().InsertBatch(context.Background(), []*models.LogEntry{entry}))
}

func TestSummaryComputesAndCaches(t *testing.T) {
	svc, storage, clock := newTestService(t)
	ctx := context.Background()
	now := clock.Now()

	require.NoError(t, storage.JobStorage().Upsert(ctx, &models.Job{JobID: "nightly-etl", DisplayName: "nightly-etl", IsActive: true}))
	require.NoError(t, storage.JobStorage().Upsert(ctx, &models.Job{JobID: "retired-sync", DisplayName: "retired-sync", IsActive: false}))
	seedLog(t, storage, now.Add(-10*time.Minute), models.LevelError, "boom")

	summary, err := svc.GetSummary(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), summary.TotalJobs)
	require.Equal(t, int64(1), summary.ActiveJobs)
	require.Equal(t, int64(1), summary.LogsLastHour)
	require.Equal(t, int64(1), summary.ErrorsLast24h)
	require.True(t, summary.ComputedAt.Equal(now))

	// A second read inside the TTL serves the cached snapshot.
	seedLog(t, storage, now.Add(-5*time.Minute), models.LevelError, "boom again")
	cached, err := svc.GetSummary(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), cached.ErrorsLast24h)

	clock.Advance(31 * time.Second)
	fresh, err := svc.GetSummary(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), fresh.ErrorsLast24h)
}

func TestServerStatusListClassifiesStaleHeartbeats(t *testing.T) {
	svc, storage, clock := newTestService(t)
	ctx := context.Background()
	now := clock.Now()

	freshBeat := now.Add(-30 * time.Second)
	staleBeat := now.Add(-10 * time.Minute)
	require.NoError(t, storage.ServerStorage().Upsert(ctx, &models.Server{
		ServerName: "batch-01", LastHeartbeat: &freshBeat, HeartbeatIntervalSeconds: 60, IsActive: true,
	}))
	require.NoError(t, storage.ServerStorage().Upsert(ctx, &models.Server{
		ServerName: "batch-02", LastHeartbeat: &staleBeat, HeartbeatIntervalSeconds: 60, IsActive: true,
	}))

	items, err := svc.GetServerStatusList(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)

	byName := map[string]models.ServerStatus{}
	for _, item := range items {
		byName[item.ServerName] = item.Status
	}
	require.Equal(t, models.ServerOnline, byName["batch-01"])
	require.Equal(t, models.ServerOffline, byName["batch-02"])
}

func TestRefreshPrimesEveryView(t *testing.T) {
	svc, storage, clock := newTestService(t)
	ctx := context.Background()
	now := clock.Now()

	require.NoError(t, svc.Refresh(ctx))

	for _, key := range []string{keySummary, keyHourlyTrend, keyTopExceptions, keyServerStatus} {
		entry, err := storage.CacheStorage().Get(ctx, key)
		require.NoError(t, err, "cache key %s not primed", key)
		require.True(t, entry.ComputedAt.Equal(now))
		require.True(t, entry.ExpiresAt.Equal(now.Add(30*time.Second)))
	}
}
