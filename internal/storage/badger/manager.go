package badger

import (
	"fmt"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/common"
	"github.com/ternarybob/vigil/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db        *BadgerDB
	logs      interfaces.LogStorage
	jobs      interfaces.JobStorage
	execution interfaces.ExecutionStorage
	servers   interfaces.ServerStorage
	alerts    interfaces.AlertStorage
	cache     interfaces.CacheStorage
	auth      interfaces.AuthStorage
	logger    arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	logs, err := NewLogStorage(db, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize log storage: %w", err)
	}
	execution, err := NewExecutionStorage(db, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize execution storage: %w", err)
	}
	alerts, err := NewAlertStorage(db, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize alert storage: %w", err)
	}
	auth, err := NewAuthStorage(db, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize auth storage: %w", err)
	}

	manager := &Manager{
		db:        db,
		logs:      logs,
		jobs:      NewJobStorage(db, logger),
		execution: execution,
		servers:   NewServerStorage(db, logger),
		alerts:    alerts,
		cache:     NewCacheStorage(db, logger),
		auth:      auth,
		logger:    logger,
	}

	logger.Info().Msg("Badger storage manager initialized")

	return manager, nil
}

// LogStorage returns the Log storage interface
func (m *Manager) LogStorage() interfaces.LogStorage {
	return m.logs
}

// JobStorage returns the Job storage interface
func (m *Manager) JobStorage() interfaces.JobStorage {
	return m.jobs
}

// ExecutionStorage returns the Execution storage interface
func (m *Manager) ExecutionStorage() interfaces.ExecutionStorage {
	return m.execution
}

// ServerStorage returns the Server storage interface
func (m *Manager) ServerStorage() interfaces.ServerStorage {
	return m.servers
}

// AlertStorage returns the Alert storage interface
func (m *Manager) AlertStorage() interfaces.AlertStorage {
	return m.alerts
}

// CacheStorage returns the dashboard cache storage interface
func (m *Manager) CacheStorage() interfaces.CacheStorage {
	return m.cache
}

// AuthStorage returns the Auth storage interface
func (m *Manager) AuthStorage() interfaces.AuthStorage {
	return m.auth
}

// RunValueLogGC reclaims badger value-log space. Called by the nightly
// maintenance run; a rewrite threshold of 0.5 matches the badger docs.
func (m *Manager) RunValueLogGC() error {
	for {
		err := m.db.Badger().RunValueLogGC(0.5)
		if err == badgerdb.ErrNoRewrite {
			return nil
		}
		if err != nil {
			return fmt.Errorf("value log gc: %w", err)
		}
	}
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
