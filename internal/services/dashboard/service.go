package dashboard

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/common"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
	"github.com/timshannon/badgerhold/v4"
	"golang.org/x/sync/singleflight"
)

// Cache keys, one per dashboard view.
const (
	keySummary       = "dashboard:summary"
	keyHourlyTrend   = "dashboard:hourly-trend"
	keyTopExceptions = "dashboard:top-exceptions"
	keyServerStatus  = "dashboard:server-status"
)

const topExceptionLimit = 10

// Service serves the aggregate dashboard views. Each view is computed on
// demand, cached in the store with a short TTL, and deduplicated across
// concurrent callers with singleflight.
type Service struct {
	storage interfaces.StorageManager
	events  interfaces.EventService
	logger  arbor.ILogger
	clock   common.Clock
	ttl     time.Duration
	group   singleflight.Group
}

// NewService creates the dashboard service.
func NewService(storage interfaces.StorageManager, events interfaces.EventService, logger arbor.ILogger, clock common.Clock, cfg *common.DashboardConfig) *Service {
	ttlSeconds := cfg.StatsCacheTtlSeconds
	if ttlSeconds <= 0 {
		ttlSeconds = 30
	}
	return &Service{
		storage: storage,
		events:  events,
		logger:  logger,
		clock:   clock,
		ttl:     time.Duration(ttlSeconds) * time.Second,
	}
}

func (s *Service) GetSummary(ctx context.Context) (*models.DashboardSummary, error) {
	var summary models.DashboardSummary
	if err := s.cached(ctx, keySummary, &summary, func() (interface{}, error) {
		return s.computeSummary(ctx)
	}); err != nil {
		return nil, err
	}
	return &summary, nil
}

func (s *Service) GetHourlyTrend(ctx context.Context) ([]models.HourlyTrendPoint, error) {
	var trend []models.HourlyTrendPoint
	if err := s.cached(ctx, keyHourlyTrend, &trend, func() (interface{}, error) {
		return s.storage.LogStorage().HourlyTrend(ctx, s.clock.Now().Add(-24*time.Hour))
	}); err != nil {
		return nil, err
	}
	return trend, nil
}

func (s *Service) GetTopExceptions(ctx context.Context) ([]models.TopException, error) {
	var items []models.TopException
	if err := s.cached(ctx, keyTopExceptions, &items, func() (interface{}, error) {
		return s.storage.LogStorage().TopExceptions(ctx, s.clock.Now().Add(-24*time.Hour), topExceptionLimit)
	}); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Service) GetServerStatusList(ctx context.Context) ([]models.ServerStatusItem, error) {
	var items []models.ServerStatusItem
	if err := s.cached(ctx, keyServerStatus, &items, func() (interface{}, error) {
		return s.computeServerStatusList(ctx)
	}); err != nil {
		return nil, err
	}
	return items, nil
}

// Refresh recomputes and recaches every view, then announces the new summary.
func (s *Service) Refresh(ctx context.Context) error {
	summary, err := s.computeSummary(ctx)
	if err != nil {
		return err
	}
	if err := s.put(ctx, keySummary, summary); err != nil {
		return err
	}

	trend, err := s.storage.LogStorage().HourlyTrend(ctx, s.clock.Now().Add(-24*time.Hour))
	if err != nil {
		return err
	}
	if err := s.put(ctx, keyHourlyTrend, trend); err != nil {
		return err
	}

	exceptions, err := s.storage.LogStorage().TopExceptions(ctx, s.clock.Now().Add(-24*time.Hour), topExceptionLimit)
	if err != nil {
		return err
	}
	if err := s.put(ctx, keyTopExceptions, exceptions); err != nil {
		return err
	}

	servers, err := s.computeServerStatusList(ctx)
	if err != nil {
		return err
	}
	if err := s.put(ctx, keyServerStatus, servers); err != nil {
		return err
	}

	if s.events != nil {
		_ = s.events.Publish(ctx, interfaces.Event{
			Type:    interfaces.EventDashboardSummary,
			Payload: summary,
		})
	}
	return nil
}

// cached resolves a view from the store cache, recomputing it through
// singleflight when the row is missing or past its TTL.
func (s *Service) cached(ctx context.Context, key string, out interface{}, compute func() (interface{}, error)) error {
	now := s.clock.Now()
	entry, err := s.storage.CacheStorage().Get(ctx, key)
	if err == nil && !entry.Expired(now) {
		return json.Unmarshal(entry.Payload, out)
	}
	if err != nil && err != badgerhold.ErrNotFound {
		s.logger.Warn().Err(err).Str("key", key).Msg("Dashboard cache read failed")
	}

	payload, err, _ := s.group.Do(key, func() (interface{}, error) {
		value, err := compute()
		if err != nil {
			return nil, err
		}
		if err := s.put(ctx, key, value); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("Dashboard cache write failed")
		}
		return json.Marshal(value)
	})
	if err != nil {
		return common.InternalError("failed to compute dashboard view %s", key)
	}
	return json.Unmarshal(payload.([]byte), out)
}

func (s *Service) put(ctx context.Context, key string, value interface{}) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	now := s.clock.Now()
	return s.storage.CacheStorage().Put(ctx, &models.DashboardCacheEntry{
		Key:        key,
		Payload:    payload,
		ComputedAt: now,
		ExpiresAt:  now.Add(s.ttl),
	})
}

func (s *Service) computeSummary(ctx context.Context) (*models.DashboardSummary, error) {
	now := s.clock.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	totalJobs, err := s.storage.JobStorage().CountJobs(ctx, false)
	if err != nil {
		return nil, err
	}
	activeJobs, err := s.storage.JobStorage().CountJobs(ctx, true)
	if err != nil {
		return nil, err
	}
	running, err := s.storage.ExecutionStorage().CountByStatus(ctx, models.ExecutionRunning)
	if err != nil {
		return nil, err
	}
	succeeded, failed, err := s.storage.ExecutionStorage().CountCompletedSince(ctx, midnight)
	if err != nil {
		return nil, err
	}
	serverCounts, err := s.storage.ServerStorage().CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	openInstances, err := s.storage.AlertStorage().CountOpenInstances(ctx)
	if err != nil {
		return nil, err
	}
	logsLastHour, err := s.storage.LogStorage().CountSince(ctx, now.Add(-time.Hour), models.LevelTrace)
	if err != nil {
		return nil, err
	}
	errorsLast24h, err := s.storage.LogStorage().CountSince(ctx, now.Add(-24*time.Hour), models.LevelError)
	if err != nil {
		return nil, err
	}

	var totalServers int64
	for _, count := range serverCounts {
		totalServers += count
	}

	return &models.DashboardSummary{
		TotalJobs:          totalJobs,
		ActiveJobs:         activeJobs,
		RunningExecutions:  running,
		ExecutionsToday:    succeeded + failed,
		FailedToday:        failed,
		SucceededToday:     succeeded,
		TotalServers:       totalServers,
		OnlineServers:      serverCounts[models.ServerOnline],
		OfflineServers:     serverCounts[models.ServerOffline],
		DegradedServers:    serverCounts[models.ServerDegraded],
		OpenAlertInstances: openInstances,
		LogsLastHour:       logsLastHour,
		ErrorsLast24h:      errorsLast24h,
		ComputedAt:         now,
	}, nil
}

func (s *Service) computeServerStatusList(ctx context.Context) ([]models.ServerStatusItem, error) {
	servers, err := s.storage.ServerStorage().ListServers(ctx, true)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	items := make([]models.ServerStatusItem, 0, len(servers))
	for i := range servers {
		server := &servers[i]
		status := models.ClassifyServer(server.LastHeartbeat, server.HeartbeatIntervalSeconds, now)
		items = append(items, models.ServerStatusItem{
			ServerName:    server.ServerName,
			DisplayName:   server.DisplayName,
			Status:        status,
			StatusName:    status.String(),
			LastHeartbeat: server.LastHeartbeat,
			AgentVersion:  server.AgentVersion,
		})
	}
	return items, nil
}
