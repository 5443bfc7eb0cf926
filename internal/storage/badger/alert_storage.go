package badger

import (
	"context"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// AlertStorage implements the AlertStorage interface for Badger
type AlertStorage struct {
	db          *BadgerDB
	logger      arbor.ILogger
	alertSeq    sequence
	instanceSeq sequence
}

// NewAlertStorage creates a new AlertStorage instance
func NewAlertStorage(db *BadgerDB, logger arbor.ILogger) (interfaces.AlertStorage, error) {
	s := &AlertStorage{
		db:     db,
		logger: logger,
	}

	var maxAlert uint64
	err := db.Store().ForEach(&badgerhold.Query{}, func(alert *models.Alert) error {
		if alert.ID > maxAlert {
			maxAlert = alert.ID
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to seed alert id sequence: %w", err)
	}
	s.alertSeq.seed(maxAlert)

	var maxInstance uint64
	err = db.Store().ForEach(&badgerhold.Query{}, func(instance *models.AlertInstance) error {
		if instance.ID > maxInstance {
			maxInstance = instance.ID
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to seed alert instance id sequence: %w", err)
	}
	s.instanceSeq.seed(maxInstance)

	return s, nil
}

func (s *AlertStorage) InsertAlert(ctx context.Context, alert *models.Alert) error {
	if alert.ID == 0 {
		alert.ID = s.alertSeq.next()
	}
	if err := s.db.Store().Insert(alert.ID, alert); err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

func (s *AlertStorage) UpdateAlert(ctx context.Context, alert *models.Alert) error {
	if err := s.db.Store().Update(alert.ID, alert); err != nil {
		if err == badgerhold.ErrNotFound {
			return badgerhold.ErrNotFound
		}
		return fmt.Errorf("failed to update alert: %w", err)
	}
	return nil
}

func (s *AlertStorage) GetAlert(ctx context.Context, id uint64) (*models.Alert, error) {
	var alert models.Alert
	if err := s.db.Store().Get(id, &alert); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, badgerhold.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	return &alert, nil
}

func (s *AlertStorage) ListAlerts(ctx context.Context, activeOnly bool) ([]models.Alert, error) {
	query := badgerhold.Where("ID").Gt(uint64(0))
	if activeOnly {
		query = query.And("IsActive").Eq(true)
	}
	var alerts []models.Alert
	if err := s.db.Store().Find(&alerts, query.SortBy("ID")); err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	return alerts, nil
}

// DeleteAlert removes the rule and all of its instances.
func (s *AlertStorage) DeleteAlert(ctx context.Context, id uint64) error {
	if err := s.db.Store().Delete(id, &models.Alert{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return badgerhold.ErrNotFound
		}
		return fmt.Errorf("failed to delete alert: %w", err)
	}
	if err := s.db.Store().DeleteMatching(&models.AlertInstance{}, badgerhold.Where("AlertID").Eq(id)); err != nil {
		return fmt.Errorf("failed to delete alert instances: %w", err)
	}
	return nil
}

// FireAlert inserts the instance and stamps the rule's trigger bookkeeping
// in one transaction.
func (s *AlertStorage) FireAlert(ctx context.Context, alert *models.Alert, instance *models.AlertInstance) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if instance.ID == 0 {
		instance.ID = s.instanceSeq.next()
	}
	instance.AlertID = alert.ID

	err := s.db.Update(func(txn *badgerdb.Txn) error {
		if err := s.db.Store().TxInsert(txn, instance.ID, instance); err != nil {
			return fmt.Errorf("failed to insert alert instance: %w", err)
		}
		if err := s.db.Store().TxUpdate(txn, alert.ID, alert); err != nil {
			return fmt.Errorf("failed to update alert rule: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to commit alert fire: %w", err)
	}
	return nil
}

func (s *AlertStorage) GetInstance(ctx context.Context, id uint64) (*models.AlertInstance, error) {
	var instance models.AlertInstance
	if err := s.db.Store().Get(id, &instance); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, badgerhold.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get alert instance: %w", err)
	}
	return &instance, nil
}

func (s *AlertStorage) UpdateInstance(ctx context.Context, instance *models.AlertInstance) error {
	if err := s.db.Store().Update(instance.ID, instance); err != nil {
		if err == badgerhold.ErrNotFound {
			return badgerhold.ErrNotFound
		}
		return fmt.Errorf("failed to update alert instance: %w", err)
	}
	return nil
}

func (s *AlertStorage) ListInstances(ctx context.Context, status *models.InstanceStatus, limit int) ([]models.AlertInstance, error) {
	query := badgerhold.Where("ID").Gt(uint64(0))
	if status != nil {
		query = query.And("Status").Eq(*status)
	}
	query = query.SortBy("TriggeredAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}
	var instances []models.AlertInstance
	if err := s.db.Store().Find(&instances, query); err != nil {
		return nil, fmt.Errorf("failed to list alert instances: %w", err)
	}
	return instances, nil
}

func (s *AlertStorage) CountOpenInstances(ctx context.Context) (int64, error) {
	query := badgerhold.Where("Status").In(models.InstanceNew, models.InstanceAcknowledged)
	count, err := s.db.Store().Count(&models.AlertInstance{}, query)
	if err != nil {
		return 0, fmt.Errorf("failed to count open instances: %w", err)
	}
	return int64(count), nil
}

func (s *AlertStorage) DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var resolved []models.AlertInstance
	query := badgerhold.Where("Status").Eq(models.InstanceResolved)
	if err := s.db.Store().Find(&resolved, query); err != nil {
		return 0, fmt.Errorf("failed to find resolved instances: %w", err)
	}

	var victims []uint64
	for i := range resolved {
		if resolved[i].ResolvedAt != nil && resolved[i].ResolvedAt.Before(cutoff) {
			victims = append(victims, resolved[i].ID)
		}
	}
	if len(victims) == 0 {
		return 0, nil
	}

	err := s.db.Update(func(txn *badgerdb.Txn) error {
		for _, id := range victims {
			if err := s.db.Store().TxDelete(txn, id, &models.AlertInstance{}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete resolved instances: %w", err)
	}
	return int64(len(victims)), nil
}
