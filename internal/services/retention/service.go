package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/common"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
)

// Fixed retention windows not exposed through config.
const (
	traceDebugDays        = 7
	resolvedInstanceDays  = 90
	auditLogDays          = 180
	revokedTokenGraceDays = 30
)

// tier is one age-based deletion bracket over the log store.
type tier struct {
	name     string
	minLevel models.LogLevel
	maxLevel models.LogLevel
	days     int
}

// Service deletes expired data in batches and runs the nightly maintenance
// chores: resolved-instance and audit pruning, token cleanup, dashboard
// refresh and value-log garbage collection.
type Service struct {
	storage   interfaces.StorageManager
	dashboard interfaces.DashboardService
	logger    arbor.ILogger
	clock     common.Clock
	cfg       common.RetentionConfig
}

// NewService creates the retention service.
func NewService(storage interfaces.StorageManager, dashboard interfaces.DashboardService, logger arbor.ILogger, clock common.Clock, cfg common.RetentionConfig) *Service {
	return &Service{
		storage:   storage,
		dashboard: dashboard,
		logger:    logger,
		clock:     clock,
		cfg:       cfg,
	}
}

func (s *Service) tiers() []tier {
	return []tier{
		{
			name:     fmt.Sprintf("Trace/Debug (>%d days)", traceDebugDays),
			minLevel: models.LevelTrace,
			maxLevel: models.LevelDebug,
			days:     traceDebugDays,
		},
		{
			name:     fmt.Sprintf("Information (>%d days)", s.cfg.DefaultDays),
			minLevel: models.LevelInfo,
			maxLevel: models.LevelInfo,
			days:     s.cfg.DefaultDays,
		},
		{
			name:     fmt.Sprintf("Warning/Error (>%d days)", s.cfg.ErrorDays),
			minLevel: models.LevelWarning,
			maxLevel: models.LevelError,
			days:     s.cfg.ErrorDays,
		},
		{
			name:     fmt.Sprintf("Critical (>%d days)", s.cfg.CriticalDays),
			minLevel: models.LevelCritical,
			maxLevel: models.LevelCritical,
			days:     s.cfg.CriticalDays,
		},
	}
}

// Run executes one maintenance pass. With DryRun set, nothing is deleted;
// the result carries per-category counts of what a live run would remove.
func (s *Service) Run(ctx context.Context, req *models.RetentionRequest) (*models.RetentionResult, error) {
	if req == nil {
		req = &models.RetentionRequest{}
	}
	batchSize := req.BatchSize
	if batchSize <= 0 {
		batchSize = s.cfg.BatchSize
	}

	now := s.clock.Now()
	result := &models.RetentionResult{
		DryRun:         req.DryRun,
		CategoryCounts: make(map[string]int64),
		StartedAt:      now,
	}

	if req.DryRun {
		if err := s.dryRun(ctx, now, result); err != nil {
			return nil, err
		}
		result.FinishedAt = s.clock.Now()
		return result, nil
	}

	for _, t := range s.tiers() {
		cutoff := now.AddDate(0, 0, -t.days)
		deleted, err := s.deleteLogs(ctx, cutoff, t, batchSize)
		if err != nil {
			return nil, common.InternalError("retention failed for %s: %v", t.name, err)
		}
		result.CategoryCounts[t.name] = deleted
		result.DeletedCount += deleted
	}

	instances, err := s.storage.AlertStorage().DeleteResolvedBefore(ctx, now.AddDate(0, 0, -resolvedInstanceDays))
	if err != nil {
		return nil, common.InternalError("failed to prune resolved instances: %v", err)
	}
	result.CategoryCounts[instanceCategory()] = instances
	result.DeletedCount += instances

	audit, err := s.storage.AuthStorage().DeleteAuditBefore(ctx, now.AddDate(0, 0, -auditLogDays))
	if err != nil {
		return nil, common.InternalError("failed to prune audit log: %v", err)
	}
	result.CategoryCounts[auditCategory()] = audit
	result.DeletedCount += audit

	tokens, err := s.storage.AuthStorage().DeleteExpiredTokens(ctx, now, now.AddDate(0, 0, -revokedTokenGraceDays))
	if err != nil {
		return nil, common.InternalError("failed to prune refresh tokens: %v", err)
	}
	result.CategoryCounts["Expired refresh tokens"] = tokens
	result.DeletedCount += tokens

	if s.dashboard != nil {
		if err := s.dashboard.Refresh(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("Dashboard refresh after retention failed")
		}
	}
	if err := s.storage.RunValueLogGC(); err != nil {
		s.logger.Warn().Err(err).Msg("Value log GC after retention failed")
	}

	result.FinishedAt = s.clock.Now()
	s.logger.Info().
		Int64("deleted", result.DeletedCount).
		Dur("elapsed", result.FinishedAt.Sub(result.StartedAt)).
		Msg("Retention run complete")
	return result, nil
}

// deleteLogs drains one tier in batches, pausing between batches so the
// store keeps serving ingestion.
func (s *Service) deleteLogs(ctx context.Context, cutoff time.Time, t tier, batchSize int) (int64, error) {
	var total int64
	pause := time.Duration(s.cfg.BatchPauseMs) * time.Millisecond
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		deleted, err := s.storage.LogStorage().DeleteOlderThan(ctx, cutoff, t.minLevel, t.maxLevel, batchSize)
		if err != nil {
			return total, err
		}
		total += deleted
		if deleted < int64(batchSize) {
			return total, nil
		}
		if pause > 0 {
			select {
			case <-time.After(pause):
			case <-ctx.Done():
				return total, ctx.Err()
			}
		}
	}
}

func (s *Service) dryRun(ctx context.Context, now time.Time, result *models.RetentionResult) error {
	for _, t := range s.tiers() {
		cutoff := now.AddDate(0, 0, -t.days)
		count, err := s.storage.LogStorage().CountOlderThan(ctx, cutoff, t.minLevel, t.maxLevel)
		if err != nil {
			return common.InternalError("retention count failed for %s: %v", t.name, err)
		}
		result.CategoryCounts[t.name] = count
		result.DeletedCount += count
	}

	resolved := models.InstanceResolved
	instances, err := s.storage.AlertStorage().ListInstances(ctx, &resolved, 0)
	if err != nil {
		return common.InternalError("failed to count resolved instances: %v", err)
	}
	cutoff := now.AddDate(0, 0, -resolvedInstanceDays)
	var stale int64
	for i := range instances {
		if instances[i].ResolvedAt != nil && instances[i].ResolvedAt.Before(cutoff) {
			stale++
		}
	}
	result.CategoryCounts[instanceCategory()] = stale
	result.DeletedCount += stale

	audit, err := s.storage.AuthStorage().CountAuditBefore(ctx, now.AddDate(0, 0, -auditLogDays))
	if err != nil {
		return common.InternalError("failed to count audit log: %v", err)
	}
	result.CategoryCounts[auditCategory()] = audit
	result.DeletedCount += audit

	tokens, err := s.storage.AuthStorage().CountExpiredTokens(ctx, now, now.AddDate(0, 0, -revokedTokenGraceDays))
	if err != nil {
		return common.InternalError("failed to count refresh tokens: %v", err)
	}
	result.CategoryCounts["Expired refresh tokens"] = tokens
	result.DeletedCount += tokens
	return nil
}

func instanceCategory() string {
	return fmt.Sprintf("Resolved alert instances (>%d days)", resolvedInstanceDays)
}

func auditCategory() string {
	return fmt.Sprintf("Audit log (>%d days)", auditLogDays)
}
