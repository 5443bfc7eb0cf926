package alerts

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

func newTestService(t *testing.T) (*Service, interfaces.StorageManager, *common.ManualClock) {
	t.Helper()

	storage, err := badger.NewManager(arbor.NewLogger(), &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close() })

	clock := common.NewManualClock(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	cfg := &common.AlertConfig{EvaluationIntervalSeconds: 30, DefaultThrottleMinutes: 15}
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

func TestCreateAlertAppliesDefaults(t *testing.T) {
	svc, _, _ := newTestService(t)

	alert, err := svc.CreateAlert(context.Background(), &models.UpsertAlertRequest{
		Name:      "error spike",
		AlertType: models.AlertErrorThreshold,
		Severity:  models.SeverityHigh,
		Condition: json.RawMessage(`{"threshold":5,"windowMinutes":10,"level":4}`),
	})
	require.NoError(t, err)
	require.NotZero(t, alert.ID)
	require.True(t, alert.IsActive)
	require.Equal(t, 15, alert.ThrottleMinutes)
	require.Zero(t, alert.TriggerCount)
}

func TestCreateAlertRejectsBadCondition(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name      string
		alertType models.AlertType
		condition string
	}{
		{"threshold missing", models.AlertErrorThreshold, `{"windowMinutes":10}`},
		{"window missing", models.AlertErrorThreshold, `{"threshold":5}`},
		{"bad regex", models.AlertPatternMatch, `{"regex":"(unclosed","windowMinutes":10}`},
		{"performance without bound", models.AlertPerformanceWarning, `{}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateAlert(ctx, &models.UpsertAlertRequest{
				Name:      tc.name,
				AlertType: tc.alertType,
				Condition: json.RawMessage(tc.condition),
			})
			appErr := common.AsAppError(err)
			require.Equal(t, common.CodeValidation, appErr.Code)
		})
	}
}

func TestErrorThresholdFiresAndThrottles(t *testing.T) {
	svc, storage, clock := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		seedLog(t, storage, clock.Now(), models.LevelError, "boom")
	}
	_, err := svc.CreateAlert(ctx, &models.UpsertAlertRequest{
		Name:      "error spike",
		AlertType: models.AlertErrorThreshold,
		Severity:  models.SeverityHigh,
		Condition: json.RawMessage(`{"threshold":3,"windowMinutes":60,"level":4}`),
	})
	require.NoError(t, err)

	fired, err := svc.EvaluateAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, fired)

	instances, err := svc.ListInstances(ctx, nil, 0)
	require.NoError(t, err)
	require.Len(t, instances, 1)
	require.Equal(t, models.InstanceNew, instances[0].Status)
	require.Equal(t, models.SeverityHigh, instances[0].Severity)

	rules, err := svc.ListAlerts(ctx, true)
	require.NoError(t, err)
	require.Equal(t, int64(1), rules[0].TriggerCount)
	require.NotNil(t, rules[0].LastTriggeredAt)

	// Inside the throttle window nothing fires again.
	clock.Advance(5 * time.Minute)
	fired, err = svc.EvaluateAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, fired)

	// Past the window the rule re-fires while the logs stay in range.
	clock.Advance(11 * time.Minute)
	fired, err = svc.EvaluateAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, fired)

	instances, err = svc.ListInstances(ctx, nil, 0)
	require.NoError(t, err)
	require.Len(t, instances, 2)
}

func TestErrorThresholdBelowCountDoesNotFire(t *testing.T) {
	svc, storage, clock := newTestService(t)
	ctx := context.Background()

	seedLog(t, storage, clock.Now(), models.LevelError, "single failure")
	seedLog(t, storage, clock.Now(), models.LevelInfo, "info noise")

	_, err := svc.CreateAlert(ctx, &models.UpsertAlertRequest{
		Name:      "error spike",
		AlertType: models.AlertErrorThreshold,
		Condition: json.RawMessage(`{"threshold":2,"windowMinutes":60,"level":4}`),
	})
	require.NoError(t, err)

	fired, err := svc.EvaluateAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, fired)
}

func TestServerOfflineConditionFires(t *testing.T) {
	svc, storage, clock := newTestService(t)
	ctx := context.Background()

	stale := clock.Now().Add(-10 * time.Minute)
	require.NoError(t, storage.ServerStorage().Upsert(ctx, &models.Server{
		ServerName:               "batch-01",
		Status:                   models.ServerOnline,
		LastHeartbeat:            &stale,
		HeartbeatIntervalSeconds: 60,
		IsActive:                 true,
		CreatedAt:                stale,
		UpdatedAt:                stale,
	}))

	_, err := svc.CreateAlert(ctx, &models.UpsertAlertRequest{
		Name:       "batch-01 offline",
		AlertType:  models.AlertServerOffline,
		Severity:   models.SeverityCritical,
		Condition:  json.RawMessage(`{}`),
		ServerName: "batch-01",
	})
	require.NoError(t, err)

	fired, err := svc.EvaluateAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, fired)

	instances, err := svc.ListInstances(ctx, nil, 0)
	require.NoError(t, err)
	require.Len(t, instances, 1)
	require.Equal(t, "batch-01", instances[0].ServerName)
}

func TestJobFailureConsecutiveStreak(t *testing.T) {
	svc, storage, clock := newTestService(t)
	ctx := context.Background()

	now := clock.Now()
	job := &models.Job{
		JobID:       "flaky-job",
		DisplayName: "flaky-job",
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, storage.JobStorage().Upsert(ctx, job))

	for i := 0; i < 2; i++ {
		startedAt := now.Add(time.Duration(i) * time.Minute)
		completedAt := startedAt.Add(30 * time.Second)
		execution := &models.JobExecution{
			ID:          storage.ExecutionStorage().AllocateID(),
			JobID:       "flaky-job",
			StartedAt:   startedAt,
			CompletedAt: &completedAt,
			DurationMs:  30000,
			Status:      models.ExecutionFailed,
			ServerName:  "batch-01",
		}
		require.NoError(t, storage.ExecutionStorage().InsertWithJobUpdate(ctx, execution, job))
	}

	_, err := svc.CreateAlert(ctx, &models.UpsertAlertRequest{
		Name:      "flaky-job failing",
		AlertType: models.AlertJobFailure,
		Condition: json.RawMessage(`{"consecutive":2}`),
		JobID:     "flaky-job",
	})
	require.NoError(t, err)

	fired, err := svc.EvaluateAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, fired)
}

func TestInstanceLifecycle(t *testing.T) {
	svc, storage, clock := newTestService(t)
	ctx := context.Background()

	alert, err := svc.CreateAlert(ctx, &models.UpsertAlertRequest{
		Name:      "lifecycle",
		AlertType: models.AlertErrorThreshold,
		Condition: json.RawMessage(`{"threshold":1,"windowMinutes":10,"level":4}`),
	})
	require.NoError(t, err)

	now := clock.Now()
	instance := &models.AlertInstance{
		AlertID:     alert.ID,
		TriggeredAt: now,
		Message:     "fired",
		Severity:    alert.Severity,
		Status:      models.InstanceNew,
	}
	alert.LastTriggeredAt = &now
	alert.TriggerCount++
	require.NoError(t, storage.AlertStorage().FireAlert(ctx, alert, instance))

	require.NoError(t, svc.AcknowledgeInstance(ctx, instance.ID, "operator", "looking into it"))

	loaded, err := storage.AlertStorage().GetInstance(ctx, instance.ID)
	require.NoError(t, err)
	require.Equal(t, models.InstanceAcknowledged, loaded.Status)
	require.Equal(t, "operator", loaded.AcknowledgedBy)
	require.NotNil(t, loaded.AcknowledgedAt)

	// Repeated ack is a no-op.
	require.NoError(t, svc.AcknowledgeInstance(ctx, instance.ID, "operator", "again"))

	require.NoError(t, svc.ResolveInstance(ctx, instance.ID, "operator", "fixed upstream"))
	loaded, err = storage.AlertStorage().GetInstance(ctx, instance.ID)
	require.NoError(t, err)
	require.Equal(t, models.InstanceResolved, loaded.Status)
	require.Equal(t, "fixed upstream", loaded.ResolveNote)

	// Repeated resolve is a no-op; ack after resolve is illegal.
	require.NoError(t, svc.ResolveInstance(ctx, instance.ID, "operator", ""))
	err = svc.AcknowledgeInstance(ctx, instance.ID, "operator", "")
	appErr := common.AsAppError(err)
	require.Equal(t, common.CodeIllegalTransition, appErr.Code)
}

func TestInstanceActionsRequireExistingInstance(t *testing.T) {
	svc, _, _ := newTestService(t)

	err := svc.AcknowledgeInstance(context.Background(), 424242, "operator", "")
	appErr := common.AsAppError(err)
	require.Equal(t, common.CodeNotFound, appErr.Code)
}

func TestDisabledRuleIsSkipped(t *testing.T) {
	svc, storage, clock := newTestService(t)
	ctx := context.Background()

	seedLog(t, storage, clock.Now(), models.LevelError, "boom")
	alert, err := svc.CreateAlert(ctx, &models.UpsertAlertRequest{
		Name:      "disabled",
		AlertType: models.AlertErrorThreshold,
		Condition: json.RawMessage(`{"threshold":1,"windowMinutes":60,"level":4}`),
	})
	require.NoError(t, err)
	require.NoError(t, svc.SetAlertActive(ctx, alert.ID, false))

	fired, err := svc.EvaluateAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, fired)
}
