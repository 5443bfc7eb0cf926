package executions

import (
	"context"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
)

// Sweeper periodically times out stuck executions.
type Sweeper struct {
	service  *Service
	logger   arbor.ILogger
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewSweeper creates the timeout sweeper.
func NewSweeper(service *Service, logger arbor.ILogger, intervalSeconds int) *Sweeper {
	if intervalSeconds <= 0 {
		intervalSeconds = 60
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Sweeper{
		service:  service,
		logger:   logger,
		interval: time.Duration(intervalSeconds) * time.Second,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the sweep loop.
func (s *Sweeper) Start() error {
	s.wg.Add(1)
	go s.loop()
	s.logger.Info().Dur("interval", s.interval).Msg("Execution timeout sweeper started")
	return nil
}

// Stop halts the sweep loop.
func (s *Sweeper) Stop() error {
	s.cancel()
	s.wg.Wait()
	return nil
}

func (s *Sweeper) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n, err := s.service.SweepTimeouts(s.ctx); err != nil {
				s.logger.Warn().Err(err).Msg("Execution timeout sweep failed")
			} else if n > 0 {
				s.logger.Info().Int("timed_out", n).Msg("Execution timeout sweep complete")
			}
		case <-s.ctx.Done():
			return
		}
	}
}
