package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// ServerStorage implements the ServerStorage interface for Badger
type ServerStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewServerStorage creates a new ServerStorage instance
func NewServerStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ServerStorage {
	return &ServerStorage{
		db:     db,
		logger: logger,
	}
}

func (s *ServerStorage) Upsert(ctx context.Context, server *models.Server) error {
	if server.ServerName == "" {
		return fmt.Errorf("server name is required")
	}
	if err := s.db.Store().Upsert(server.ServerName, server); err != nil {
		return fmt.Errorf("failed to upsert server: %w", err)
	}
	return nil
}

func (s *ServerStorage) GetServer(ctx context.Context, serverName string) (*models.Server, error) {
	var server models.Server
	if err := s.db.Store().Get(serverName, &server); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, badgerhold.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get server: %w", err)
	}
	return &server, nil
}

func (s *ServerStorage) ListServers(ctx context.Context, activeOnly bool) ([]models.Server, error) {
	query := badgerhold.Where("ServerName").Ne("")
	if activeOnly {
		query = query.And("IsActive").Eq(true)
	}
	var servers []models.Server
	if err := s.db.Store().Find(&servers, query.SortBy("ServerName")); err != nil {
		return nil, fmt.Errorf("failed to list servers: %w", err)
	}
	return servers, nil
}

func (s *ServerStorage) UpdateStatus(ctx context.Context, serverName string, status models.ServerStatus) error {
	var server models.Server
	if err := s.db.Store().Get(serverName, &server); err != nil {
		if err == badgerhold.ErrNotFound {
			return badgerhold.ErrNotFound
		}
		return fmt.Errorf("failed to get server: %w", err)
	}
	server.Status = status
	if err := s.db.Store().Update(serverName, &server); err != nil {
		return fmt.Errorf("failed to update server status: %w", err)
	}
	return nil
}

func (s *ServerStorage) SetActive(ctx context.Context, serverName string, active bool) error {
	var server models.Server
	if err := s.db.Store().Get(serverName, &server); err != nil {
		if err == badgerhold.ErrNotFound {
			return badgerhold.ErrNotFound
		}
		return fmt.Errorf("failed to get server: %w", err)
	}
	server.IsActive = active
	if err := s.db.Store().Update(serverName, &server); err != nil {
		return fmt.Errorf("failed to update server: %w", err)
	}
	return nil
}

func (s *ServerStorage) CountByStatus(ctx context.Context) (map[models.ServerStatus]int64, error) {
	counts := make(map[models.ServerStatus]int64)
	query := badgerhold.Where("IsActive").Eq(true)
	err := s.db.Store().ForEach(query, func(server *models.Server) error {
		counts[server.Status]++
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to count servers by status: %w", err)
	}
	return counts, nil
}
