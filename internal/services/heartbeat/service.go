package heartbeat

import (
	"context"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/common"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// Service processes agent heartbeats and periodically classifies servers
// as Online/Degraded/Offline from heartbeat recency.
type Service struct {
	storage  interfaces.StorageManager
	events   interfaces.EventService
	logger   arbor.ILogger
	clock    common.Clock
	validate *validator.Validate

	sweepInterval time.Duration
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

// NewService creates the heartbeat service.
func NewService(storage interfaces.StorageManager, events interfaces.EventService, logger arbor.ILogger, clock common.Clock, cfg *common.HeartbeatConfig) *Service {
	sweepSeconds := cfg.SweepIntervalSeconds
	if sweepSeconds <= 0 {
		sweepSeconds = 30
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		storage:       storage,
		events:        events,
		logger:        logger,
		clock:         clock,
		validate:      validator.New(),
		sweepInterval: time.Duration(sweepSeconds) * time.Second,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Start launches the periodic status sweep.
func (s *Service) Start() error {
	s.wg.Add(1)
	go s.sweepLoop()
	s.logger.Info().Dur("interval", s.sweepInterval).Msg("Heartbeat status sweeper started")
	return nil
}

// Stop halts the sweep loop.
func (s *Service) Stop() error {
	s.cancel()
	s.wg.Wait()
	return nil
}

// ProcessHeartbeat upserts the server: lastHeartbeat=now, status=Online,
// other fields null-coalesced into their existing values.
func (s *Service) ProcessHeartbeat(ctx context.Context, req *models.HeartbeatRequest) (*models.Server, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, common.ValidationError("invalid heartbeat: %v", err)
	}

	now := s.clock.Now()
	server, err := s.storage.ServerStorage().GetServer(ctx, req.ServerName)
	if err == badgerhold.ErrNotFound {
		server = &models.Server{
			ServerName:               req.ServerName,
			HeartbeatIntervalSeconds: models.DefaultHeartbeatIntervalSeconds,
			IsActive:                 true,
			CreatedAt:                now,
		}
	} else if err != nil {
		return nil, common.InternalError("failed to load server %s", req.ServerName)
	}

	server.LastHeartbeat = &now
	server.Status = models.ServerOnline
	server.UpdatedAt = now
	if req.IPAddress != "" {
		server.IPAddress = req.IPAddress
	}
	if req.AgentVersion != "" {
		server.AgentVersion = req.AgentVersion
	}
	if req.AgentType != "" {
		server.AgentType = req.AgentType
	}
	if req.HeartbeatIntervalSeconds > 0 {
		server.HeartbeatIntervalSeconds = req.HeartbeatIntervalSeconds
	}
	if len(req.Metadata) > 0 {
		server.Metadata = req.Metadata
	}

	if err := s.storage.ServerStorage().Upsert(ctx, server); err != nil {
		return nil, common.InternalError("failed to upsert server %s", req.ServerName)
	}

	return server, nil
}

func (s *Service) GetServer(ctx context.Context, serverName string) (*models.Server, error) {
	server, err := s.storage.ServerStorage().GetServer(ctx, serverName)
	if err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, common.NotFoundError("server %s not found", serverName)
		}
		return nil, common.InternalError("failed to load server %s", serverName)
	}
	return server, nil
}

func (s *Service) ListServers(ctx context.Context, activeOnly bool) ([]models.Server, error) {
	servers, err := s.storage.ServerStorage().ListServers(ctx, activeOnly)
	if err != nil {
		return nil, common.InternalError("failed to list servers")
	}
	return servers, nil
}

func (s *Service) DeactivateServer(ctx context.Context, serverName string) error {
	if err := s.storage.ServerStorage().SetActive(ctx, serverName, false); err != nil {
		if err == badgerhold.ErrNotFound {
			return common.NotFoundError("server %s not found", serverName)
		}
		return common.InternalError("failed to deactivate server %s", serverName)
	}
	return nil
}

// Sweep reclassifies all active servers and emits a status-change event for
// each transition. Returns the number of servers whose status changed.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	servers, err := s.storage.ServerStorage().ListServers(ctx, true)
	if err != nil {
		return 0, err
	}

	now := s.clock.Now()
	changed := 0
	for i := range servers {
		server := &servers[i]
		newStatus := models.ClassifyServer(server.LastHeartbeat, server.HeartbeatIntervalSeconds, now)
		if newStatus == server.Status {
			continue
		}

		oldStatus := server.Status
		if err := s.storage.ServerStorage().UpdateStatus(ctx, server.ServerName, newStatus); err != nil {
			s.logger.Warn().Err(err).Str("server", server.ServerName).Msg("Failed to update server status")
			continue
		}
		changed++

		s.logger.Info().
			Str("server", server.ServerName).
			Str("old_status", oldStatus.String()).
			Str("new_status", newStatus.String()).
			Msg("Server status changed")

		if s.events != nil {
			_ = s.events.Publish(ctx, interfaces.Event{
				Type: interfaces.EventServersStatus,
				Payload: map[string]interface{}{
					"serverName": server.ServerName,
					"oldStatus":  oldStatus.String(),
					"newStatus":  newStatus.String(),
					"at":         now,
				},
			})
		}
	}
	return changed, nil
}

func (s *Service) sweepLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.Sweep(s.ctx); err != nil {
				s.logger.Warn().Err(err).Msg("Server status sweep failed")
			}
		case <-s.ctx.Done():
			return
		}
	}
}
