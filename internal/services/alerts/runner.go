package alerts

import (
	"context"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
)

// Runner drives the evaluation loop on a fixed cadence.
type Runner struct {
	service  *Service
	logger   arbor.ILogger
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewRunner creates the evaluation runner.
func NewRunner(service *Service, logger arbor.ILogger, intervalSeconds int) *Runner {
	if intervalSeconds <= 0 {
		intervalSeconds = 30
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		service:  service,
		logger:   logger,
		interval: time.Duration(intervalSeconds) * time.Second,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (r *Runner) Start() error {
	r.wg.Add(1)
	go r.loop()
	r.logger.Info().Dur("interval", r.interval).Msg("Alert evaluation runner started")
	return nil
}

func (r *Runner) Stop() error {
	r.cancel()
	r.wg.Wait()
	return nil
}

func (r *Runner) loop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if fired, err := r.service.EvaluateAll(r.ctx); err != nil {
				r.logger.Warn().Err(err).Msg("Alert evaluation pass failed")
			} else if fired > 0 {
				r.logger.Info().Int("fired", fired).Msg("Alert evaluation pass fired instances")
			}
		case <-r.ctx.Done():
			return
		}
	}
}
