package alerts

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/common"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// Service manages alert rules, evaluates them on a fixed cadence, and
// drives the instance lifecycle New -> Acknowledged -> Resolved.
type Service struct {
	storage  interfaces.StorageManager
	events   interfaces.EventService
	logger   arbor.ILogger
	clock    common.Clock
	validate *validator.Validate

	defaultThrottleMinutes int
}

// NewService creates the alert service.
func NewService(storage interfaces.StorageManager, events interfaces.EventService, logger arbor.ILogger, clock common.Clock, cfg *common.AlertConfig) *Service {
	throttle := cfg.DefaultThrottleMinutes
	if throttle < 0 {
		throttle = 0
	}
	return &Service{
		storage:                storage,
		events:                 events,
		logger:                 logger,
		clock:                  clock,
		validate:               validator.New(),
		defaultThrottleMinutes: throttle,
	}
}

// CreateAlert validates the rule and its typed condition payload and stores it.
func (s *Service) CreateAlert(ctx context.Context, req *models.UpsertAlertRequest) (*models.Alert, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, common.ValidationError("invalid alert request: %v", err)
	}
	if _, err := models.DecodeCondition(req.AlertType, req.Condition); err != nil {
		return nil, common.ValidationError("invalid alert condition: %v", err)
	}

	now := s.clock.Now()
	alert := &models.Alert{
		Name:                 req.Name,
		Description:          req.Description,
		AlertType:            req.AlertType,
		Severity:             req.Severity,
		Condition:            req.Condition,
		IsActive:             true,
		ThrottleMinutes:      s.defaultThrottleMinutes,
		NotificationChannels: req.NotificationChannels,
		JobID:                req.JobID,
		ServerName:           req.ServerName,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if req.IsActive != nil {
		alert.IsActive = *req.IsActive
	}
	if req.ThrottleMinutes != nil && *req.ThrottleMinutes >= 0 {
		alert.ThrottleMinutes = *req.ThrottleMinutes
	}

	if err := s.storage.AlertStorage().InsertAlert(ctx, alert); err != nil {
		return nil, common.InternalError("failed to create alert %s", req.Name)
	}
	s.logger.Info().Int64("alert_id", int64(alert.ID)).Str("name", alert.Name).Msg("Alert rule created")
	return alert, nil
}

// UpdateAlert rewrites the rule definition. Trigger bookkeeping is preserved.
func (s *Service) UpdateAlert(ctx context.Context, id uint64, req *models.UpsertAlertRequest) (*models.Alert, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, common.ValidationError("invalid alert request: %v", err)
	}
	if _, err := models.DecodeCondition(req.AlertType, req.Condition); err != nil {
		return nil, common.ValidationError("invalid alert condition: %v", err)
	}

	alert, err := s.loadAlert(ctx, id)
	if err != nil {
		return nil, err
	}

	alert.Name = req.Name
	alert.Description = req.Description
	alert.AlertType = req.AlertType
	alert.Severity = req.Severity
	alert.Condition = req.Condition
	alert.NotificationChannels = req.NotificationChannels
	alert.JobID = req.JobID
	alert.ServerName = req.ServerName
	if req.IsActive != nil {
		alert.IsActive = *req.IsActive
	}
	if req.ThrottleMinutes != nil && *req.ThrottleMinutes >= 0 {
		alert.ThrottleMinutes = *req.ThrottleMinutes
	}
	alert.UpdatedAt = s.clock.Now()

	if err := s.storage.AlertStorage().UpdateAlert(ctx, alert); err != nil {
		return nil, common.InternalError("failed to update alert %d", id)
	}
	return alert, nil
}

// DeleteAlert removes the rule and all of its instances.
func (s *Service) DeleteAlert(ctx context.Context, id uint64) error {
	if err := s.storage.AlertStorage().DeleteAlert(ctx, id); err != nil {
		if err == badgerhold.ErrNotFound {
			return common.NotFoundError("alert %d not found", id)
		}
		return common.InternalError("failed to delete alert %d", id)
	}
	return nil
}

func (s *Service) GetAlert(ctx context.Context, id uint64) (*models.Alert, error) {
	return s.loadAlert(ctx, id)
}

func (s *Service) ListAlerts(ctx context.Context, activeOnly bool) ([]models.Alert, error) {
	alerts, err := s.storage.AlertStorage().ListAlerts(ctx, activeOnly)
	if err != nil {
		return nil, common.InternalError("failed to list alerts")
	}
	return alerts, nil
}

func (s *Service) SetAlertActive(ctx context.Context, id uint64, active bool) error {
	alert, err := s.loadAlert(ctx, id)
	if err != nil {
		return err
	}
	if alert.IsActive == active {
		return nil
	}
	alert.IsActive = active
	alert.UpdatedAt = s.clock.Now()
	if err := s.storage.AlertStorage().UpdateAlert(ctx, alert); err != nil {
		return common.InternalError("failed to update alert %d", id)
	}
	return nil
}

func (s *Service) ListInstances(ctx context.Context, status *models.InstanceStatus, limit int) ([]models.AlertInstance, error) {
	instances, err := s.storage.AlertStorage().ListInstances(ctx, status, limit)
	if err != nil {
		return nil, common.InternalError("failed to list alert instances")
	}
	return instances, nil
}

// AcknowledgeInstance marks a New instance as acknowledged. Acknowledging an
// already-acknowledged instance is a no-op; resolved instances cannot move
// backwards.
func (s *Service) AcknowledgeInstance(ctx context.Context, id uint64, actor, note string) error {
	instance, err := s.loadInstance(ctx, id)
	if err != nil {
		return err
	}
	switch instance.Status {
	case models.InstanceAcknowledged:
		return nil
	case models.InstanceResolved, models.InstanceSuppressed:
		return common.IllegalTransitionError("instance %d is %s", id, instance.Status)
	}

	now := s.clock.Now()
	instance.Status = models.InstanceAcknowledged
	instance.AcknowledgedAt = &now
	instance.AcknowledgedBy = actor
	instance.AcknowledgeNote = note
	if err := s.storage.AlertStorage().UpdateInstance(ctx, instance); err != nil {
		return common.InternalError("failed to acknowledge instance %d", id)
	}
	s.publishUpdate(ctx, instance)
	return nil
}

// ResolveInstance closes a New or Acknowledged instance. Resolving an
// already-resolved instance is a no-op.
func (s *Service) ResolveInstance(ctx context.Context, id uint64, actor, note string) error {
	instance, err := s.loadInstance(ctx, id)
	if err != nil {
		return err
	}
	switch instance.Status {
	case models.InstanceResolved:
		return nil
	case models.InstanceSuppressed:
		return common.IllegalTransitionError("instance %d is %s", id, instance.Status)
	}

	now := s.clock.Now()
	instance.Status = models.InstanceResolved
	instance.ResolvedAt = &now
	instance.ResolvedBy = actor
	instance.ResolveNote = note
	if err := s.storage.AlertStorage().UpdateInstance(ctx, instance); err != nil {
		return common.InternalError("failed to resolve instance %d", id)
	}
	s.publishUpdate(ctx, instance)
	return nil
}

func (s *Service) loadAlert(ctx context.Context, id uint64) (*models.Alert, error) {
	alert, err := s.storage.AlertStorage().GetAlert(ctx, id)
	if err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, common.NotFoundError("alert %d not found", id)
		}
		return nil, common.InternalError("failed to load alert %d", id)
	}
	return alert, nil
}

func (s *Service) loadInstance(ctx context.Context, id uint64) (*models.AlertInstance, error) {
	instance, err := s.storage.AlertStorage().GetInstance(ctx, id)
	if err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, common.NotFoundError("alert instance %d not found", id)
		}
		return nil, common.InternalError("failed to load alert instance %d", id)
	}
	return instance, nil
}

func (s *Service) publishUpdate(ctx context.Context, instance *models.AlertInstance) {
	if s.events == nil {
		return
	}
	_ = s.events.Publish(ctx, interfaces.Event{
		Type:    interfaces.EventAlertsUpdates,
		Payload: instance,
	})
}
