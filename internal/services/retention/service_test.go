package retention

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
	cfg := common.RetentionConfig{
		DefaultDays:    90,
		ErrorDays:      180,
		CriticalDays:   365,
		CleanupTimeUtc: "02:00",
		BatchSize:      100,
		BatchPauseMs:   0,
	}
	return NewService(storage, nil, arbor.NewLogger(), clock, cfg), storage, clock
}

func seedLog(t *testing.T, storage interfaces.StorageManager, ts time.Time, level models.LogLevel) {
	t.Helper()
	entry := &models.LogEntry{
		ID:         storage.LogStorage().AllocateIDs(1),
		Timestamp:  ts,
		Partition:  models.PartitionOf(ts),
		Level:      level,
		Message:    "retention seed",
		ServerName: "batch-01",
		ReceivedAt: ts,
	}
	require.NoError(t, storage.LogStorage().InsertBatch(context.Background(), []*models.LogEntry{entry}))
}

func seedTieredLogs(t *testing.T, storage interfaces.StorageManager, now time.Time) {
	// Expired in their tier:
	seedLog(t, storage, now.AddDate(0, 0, -10), models.LevelDebug)      // Trace/Debug > 7d
	seedLog(t, storage, now.AddDate(0, 0, -100), models.LevelInfo)      // Info > 90d
	seedLog(t, storage, now.AddDate(0, 0, -200), models.LevelError)     // Warning/Error > 180d
	seedLog(t, storage, now.AddDate(0, 0, -400), models.LevelCritical)  // Critical > 365d
	// Still retained:
	seedLog(t, storage, now.AddDate(0, 0, -1), models.LevelDebug)
	seedLog(t, storage, now.AddDate(0, 0, -30), models.LevelInfo)
	seedLog(t, storage, now.AddDate(0, 0, -100), models.LevelError)
	seedLog(t, storage, now.AddDate(0, 0, -300), models.LevelCritical)
}

func TestDryRunCountsWithoutDeleting(t *testing.T) {
	svc, storage, clock := newTestService(t)
	ctx := context.Background()
	seedTieredLogs(t, storage, clock.Now())

	result, err := svc.Run(ctx, &models.RetentionRequest{DryRun: true})
	require.NoError(t, err)
	require.True(t, result.DryRun)
	require.Equal(t, int64(1), result.CategoryCounts["Trace/Debug (>7 days)"])
	require.Equal(t, int64(1), result.CategoryCounts["Information (>90 days)"])
	require.Equal(t, int64(1), result.CategoryCounts["Warning/Error (>180 days)"])
	require.Equal(t, int64(1), result.CategoryCounts["Critical (>365 days)"])
	require.Equal(t, int64(4), result.DeletedCount)

	total, err := storage.LogStorage().CountAll(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(8), total)
}

func TestDryRunCountsAuditAndTokenPurges(t *testing.T) {
	svc, storage, clock := newTestService(t)
	ctx := context.Background()
	now := clock.Now()

	require.NoError(t, storage.AuthStorage().AppendAudit(ctx, &models.AuditLog{
		Timestamp: now.AddDate(0, 0, -200), Actor: "admin", Action: "login",
	}))
	require.NoError(t, storage.AuthStorage().AppendAudit(ctx, &models.AuditLog{
		Timestamp: now.AddDate(0, 0, -10), Actor: "admin", Action: "login",
	}))
	require.NoError(t, storage.AuthStorage().StoreRefreshToken(ctx, &models.RefreshToken{
		TokenHash: "expired-hash", UserID: "u1",
		ExpiresAt: now.AddDate(0, 0, -1), CreatedAt: now.AddDate(0, 0, -8),
	}))
	require.NoError(t, storage.AuthStorage().StoreRefreshToken(ctx, &models.RefreshToken{
		TokenHash: "live-hash", UserID: "u1",
		ExpiresAt: now.AddDate(0, 0, 7), CreatedAt: now,
	}))

	result, err := svc.Run(ctx, &models.RetentionRequest{DryRun: true})
	require.NoError(t, err)
	require.Equal(t, int64(1), result.CategoryCounts["Audit log (>180 days)"])
	require.Equal(t, int64(1), result.CategoryCounts["Expired refresh tokens"])
	require.Equal(t, int64(2), result.DeletedCount)

	// The preview deletes nothing.
	_, err = storage.AuthStorage().GetRefreshToken(ctx, "expired-hash")
	require.NoError(t, err)
	audit, err := storage.AuthStorage().CountAuditBefore(ctx, now)
	require.NoError(t, err)
	require.Equal(t, int64(2), audit)
}

func TestLiveRunDeletesExpiredTiers(t *testing.T) {
	svc, storage, clock := newTestService(t)
	ctx := context.Background()
	seedTieredLogs(t, storage, clock.Now())

	result, err := svc.Run(ctx, nil)
	require.NoError(t, err)
	require.False(t, result.DryRun)
	require.Equal(t, int64(4), result.DeletedCount)

	total, err := storage.LogStorage().CountAll(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(4), total)

	// Surviving entries are the in-window ones.
	filter := &models.LogSearchFilter{}
	start := clock.Now().AddDate(-2, 0, 0)
	filter.Start = &start
	filter.Normalize(clock.Now())
	remaining, err := storage.LogStorage().Search(ctx, filter)
	require.NoError(t, err)
	require.Equal(t, int64(4), remaining.TotalCount)
	for _, entry := range remaining.Items {
		switch entry.Level {
		case models.LevelDebug:
			require.True(t, entry.Timestamp.After(clock.Now().AddDate(0, 0, -7)))
		case models.LevelInfo:
			require.True(t, entry.Timestamp.After(clock.Now().AddDate(0, 0, -90)))
		case models.LevelError:
			require.True(t, entry.Timestamp.After(clock.Now().AddDate(0, 0, -180)))
		case models.LevelCritical:
			require.True(t, entry.Timestamp.After(clock.Now().AddDate(0, 0, -365)))
		}
	}
}

func TestLiveRunPrunesResolvedInstances(t *testing.T) {
	svc, storage, clock := newTestService(t)
	ctx := context.Background()

	now := clock.Now()
	alert := &models.Alert{
		Name:      "old rule",
		AlertType: models.AlertErrorThreshold,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, storage.AlertStorage().InsertAlert(ctx, alert))

	staleResolved := now.AddDate(0, 0, -120)
	freshResolved := now.AddDate(0, 0, -10)
	for _, resolvedAt := range []time.Time{staleResolved, freshResolved} {
		at := resolvedAt
		instance := &models.AlertInstance{
			AlertID:     alert.ID,
			TriggeredAt: at.AddDate(0, 0, -1),
			Message:     "fired",
			Status:      models.InstanceResolved,
			ResolvedAt:  &at,
		}
		require.NoError(t, storage.AlertStorage().FireAlert(ctx, alert, instance))
	}

	result, err := svc.Run(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, int64(1), result.CategoryCounts["Resolved alert instances (>90 days)"])

	remaining, err := storage.AlertStorage().ListInstances(ctx, nil, 0)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	require.Equal(t, freshResolved, *remaining[0].ResolvedAt)
}

func TestRunRespectsBatchSizeOverride(t *testing.T) {
	svc, storage, clock := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		seedLog(t, storage, clock.Now().AddDate(0, 0, -100), models.LevelInfo)
	}

	// Batch size 2 forces multiple deletion passes over the tier.
	result, err := svc.Run(ctx, &models.RetentionRequest{BatchSize: 2})
	require.NoError(t, err)
	require.Equal(t, int64(5), result.DeletedCount)

	total, err := storage.LogStorage().CountAll(ctx)
	require.NoError(t, err)
	require.Zero(t, total)
}
