package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

const patternScanLimit = 1000

// evaluation is the outcome of checking one rule.
type evaluation struct {
	fired       bool
	message     string
	context     map[string]interface{}
	executionID uint64
}

// EvaluateAll runs one evaluation pass over active rules. Throttled rules and
// rules whose condition no longer decodes are skipped. Returns the number of
// instances fired.
func (s *Service) EvaluateAll(ctx context.Context) (int, error) {
	rules, err := s.storage.AlertStorage().ListAlerts(ctx, true)
	if err != nil {
		return 0, err
	}

	now := s.clock.Now()
	fired := 0
	for i := range rules {
		rule := &rules[i]
		if rule.Throttled(now) {
			continue
		}

		condition, err := models.DecodeCondition(rule.AlertType, rule.Condition)
		if err != nil {
			s.logger.Warn().Err(err).Int64("alert_id", int64(rule.ID)).Str("name", rule.Name).Msg("Skipping alert with undecodable condition")
			continue
		}

		result, err := s.evaluate(ctx, rule, condition, now)
		if err != nil {
			s.logger.Warn().Err(err).Int64("alert_id", int64(rule.ID)).Str("name", rule.Name).Msg("Alert evaluation failed")
			continue
		}
		if !result.fired {
			continue
		}

		if err := s.fire(ctx, rule, result, now); err != nil {
			s.logger.Error().Err(err).Int64("alert_id", int64(rule.ID)).Msg("Failed to fire alert")
			continue
		}
		fired++
	}
	return fired, nil
}

func (s *Service) evaluate(ctx context.Context, rule *models.Alert, condition *models.AlertCondition, now time.Time) (*evaluation, error) {
	switch {
	case condition.ErrorThreshold != nil:
		return s.evaluateErrorThreshold(ctx, rule, condition.ErrorThreshold, now)
	case condition.JobFailure != nil:
		return s.evaluateJobFailure(ctx, rule, condition.JobFailure)
	case condition.ServerOffline != nil:
		return s.evaluateServerOffline(ctx, rule, now)
	case condition.PerformanceWarning != nil:
		return s.evaluatePerformanceWarning(ctx, rule, condition.PerformanceWarning)
	case condition.CustomQuery != nil:
		return s.evaluateCustomQuery(ctx, rule, condition.CustomQuery, now)
	case condition.PatternMatch != nil:
		return s.evaluatePatternMatch(ctx, rule, condition.PatternMatch, now)
	}
	return &evaluation{}, nil
}

func (s *Service) evaluateErrorThreshold(ctx context.Context, rule *models.Alert, cond *models.ErrorThresholdCondition, now time.Time) (*evaluation, error) {
	start := now.Add(-time.Duration(cond.WindowMinutes) * time.Minute)
	filter := &models.LogSearchFilter{
		Start:      &start,
		End:        &now,
		JobID:      rule.JobID,
		ServerName: rule.ServerName,
		MinLevel:   &cond.Level,
		PageSize:   1,
	}
	filter.Normalize(now)

	result, err := s.storage.LogStorage().Search(ctx, filter)
	if err != nil {
		return nil, err
	}
	if result.TotalCount < cond.Threshold {
		return &evaluation{}, nil
	}
	return &evaluation{
		fired: true,
		message: fmt.Sprintf("%d logs at level %s or above in the last %dm (threshold %d)",
			result.TotalCount, cond.Level, cond.WindowMinutes, cond.Threshold),
		context: map[string]interface{}{
			"count":         result.TotalCount,
			"threshold":     cond.Threshold,
			"windowMinutes": cond.WindowMinutes,
			"level":         cond.Level.String(),
		},
	}, nil
}

func (s *Service) evaluateJobFailure(ctx context.Context, rule *models.Alert, cond *models.JobFailureCondition) (*evaluation, error) {
	if rule.JobID == "" {
		return &evaluation{}, nil
	}

	if cond.Consecutive > 1 {
		streak, err := s.storage.ExecutionStorage().ConsecutiveFailures(ctx, rule.JobID)
		if err != nil {
			return nil, err
		}
		if streak < cond.Consecutive {
			return &evaluation{}, nil
		}
		return &evaluation{
			fired:   true,
			message: fmt.Sprintf("Job %s has failed %d times in a row", rule.JobID, streak),
			context: map[string]interface{}{
				"jobId":       rule.JobID,
				"streak":      streak,
				"consecutive": cond.Consecutive,
			},
		}, nil
	}

	recent, err := s.storage.ExecutionStorage().RecentExecutions(ctx, rule.JobID, 1)
	if err != nil {
		return nil, err
	}
	if len(recent) == 0 || !recent[0].Status.CountsAsFailure() {
		return &evaluation{}, nil
	}
	latest := &recent[0]
	return &evaluation{
		fired:       true,
		message:     fmt.Sprintf("Job %s execution %d ended %s", rule.JobID, latest.ID, latest.Status),
		executionID: latest.ID,
		context: map[string]interface{}{
			"jobId":        rule.JobID,
			"executionId":  latest.ID,
			"status":       latest.Status.String(),
			"errorMessage": latest.ErrorMessage,
		},
	}, nil
}

func (s *Service) evaluateServerOffline(ctx context.Context, rule *models.Alert, now time.Time) (*evaluation, error) {
	if rule.ServerName == "" {
		return &evaluation{}, nil
	}
	server, err := s.storage.ServerStorage().GetServer(ctx, rule.ServerName)
	if err != nil {
		if err == badgerhold.ErrNotFound {
			return &evaluation{}, nil
		}
		return nil, err
	}
	status := models.ClassifyServer(server.LastHeartbeat, server.HeartbeatIntervalSeconds, now)
	if status != models.ServerOffline {
		return &evaluation{}, nil
	}
	return &evaluation{
		fired:   true,
		message: fmt.Sprintf("Server %s is offline", rule.ServerName),
		context: map[string]interface{}{
			"serverName":    rule.ServerName,
			"lastHeartbeat": server.LastHeartbeat,
		},
	}, nil
}

func (s *Service) evaluatePerformanceWarning(ctx context.Context, rule *models.Alert, cond *models.PerformanceWarningCondition) (*evaluation, error) {
	if rule.JobID == "" {
		return &evaluation{}, nil
	}
	job, err := s.storage.JobStorage().GetJob(ctx, rule.JobID)
	if err != nil {
		if err == badgerhold.ErrNotFound {
			return &evaluation{}, nil
		}
		return nil, err
	}
	recent, err := s.storage.ExecutionStorage().RecentExecutions(ctx, rule.JobID, 1)
	if err != nil {
		return nil, err
	}
	if len(recent) == 0 || !recent[0].Status.HasMeasuredDuration() {
		return &evaluation{}, nil
	}
	latest := &recent[0]

	var bound int64
	switch {
	case cond.DurationMs > 0:
		bound = cond.DurationMs
	case cond.PercentOfAvg > 0 && job.AvgDurationMs > 0:
		bound = job.AvgDurationMs * int64(cond.PercentOfAvg) / 100
	default:
		return &evaluation{}, nil
	}
	if latest.DurationMs <= bound {
		return &evaluation{}, nil
	}
	return &evaluation{
		fired:       true,
		message:     fmt.Sprintf("Job %s execution %d ran %dms, over the %dms bound", rule.JobID, latest.ID, latest.DurationMs, bound),
		executionID: latest.ID,
		context: map[string]interface{}{
			"jobId":       rule.JobID,
			"executionId": latest.ID,
			"durationMs":  latest.DurationMs,
			"boundMs":     bound,
			"avgMs":       job.AvgDurationMs,
		},
	}, nil
}

func (s *Service) evaluateCustomQuery(ctx context.Context, rule *models.Alert, cond *models.CustomQueryCondition, now time.Time) (*evaluation, error) {
	filter := cond.Query
	filter.PageSize = 1
	filter.Normalize(now)

	result, err := s.storage.LogStorage().Search(ctx, &filter)
	if err != nil {
		return nil, err
	}
	if result.TotalCount == 0 {
		return &evaluation{}, nil
	}
	return &evaluation{
		fired:   true,
		message: fmt.Sprintf("Query matched %d log entries", result.TotalCount),
		context: map[string]interface{}{
			"count": result.TotalCount,
		},
	}, nil
}

func (s *Service) evaluatePatternMatch(ctx context.Context, rule *models.Alert, cond *models.PatternMatchCondition, now time.Time) (*evaluation, error) {
	// Validated at rule-write time; a compile failure here means the stored
	// payload was corrupted.
	pattern, err := regexp.Compile(cond.Regex)
	if err != nil {
		return nil, err
	}

	start := now.Add(-time.Duration(cond.WindowMinutes) * time.Minute)
	filter := &models.LogSearchFilter{
		Start:      &start,
		End:        &now,
		JobID:      rule.JobID,
		ServerName: rule.ServerName,
		MinLevel:   cond.Level,
		PageSize:   patternScanLimit,
	}
	filter.Normalize(now)

	result, err := s.storage.LogStorage().Search(ctx, filter)
	if err != nil {
		return nil, err
	}
	for i := range result.Items {
		entry := &result.Items[i]
		if !pattern.MatchString(entry.Message) {
			continue
		}
		return &evaluation{
			fired:   true,
			message: fmt.Sprintf("Log %d matched pattern %q", entry.ID, cond.Regex),
			context: map[string]interface{}{
				"logId":   entry.ID,
				"regex":   cond.Regex,
				"message": entry.Message,
			},
		}, nil
	}
	return &evaluation{}, nil
}

// fire creates the instance and stamps the rule's trigger bookkeeping in one
// transaction, then announces the new instance.
func (s *Service) fire(ctx context.Context, rule *models.Alert, result *evaluation, now time.Time) error {
	contextJSON, err := json.Marshal(result.context)
	if err != nil {
		contextJSON = nil
	}

	instance := &models.AlertInstance{
		AlertID:        rule.ID,
		TriggeredAt:    now,
		Message:        result.message,
		Context:        contextJSON,
		JobID:          rule.JobID,
		JobExecutionID: result.executionID,
		ServerName:     rule.ServerName,
		Severity:       rule.Severity,
		Status:         models.InstanceNew,
	}

	rule.LastTriggeredAt = &now
	rule.TriggerCount++

	if err := s.storage.AlertStorage().FireAlert(ctx, rule, instance); err != nil {
		return err
	}

	s.logger.Info().
		Int64("alert_id", int64(rule.ID)).
		Int64("instance_id", int64(instance.ID)).
		Str("name", rule.Name).
		Str("severity", rule.Severity.String()).
		Msg("Alert fired")

	if s.events != nil {
		_ = s.events.Publish(ctx, interfaces.Event{
			Type:    interfaces.EventAlertsNew,
			Payload: instance,
		})
	}
	return nil
}
