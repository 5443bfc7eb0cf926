package retention

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/models"
)

// Scheduler runs the nightly maintenance pass at the configured UTC wall time.
type Scheduler struct {
	service  *Service
	logger   arbor.ILogger
	cronSpec string
	cron     *cron.Cron
}

// NewScheduler creates the nightly scheduler. cronSpec is a standard
// five-field expression, typically derived from retention.cleanup_time_utc.
func NewScheduler(service *Service, logger arbor.ILogger, cronSpec string) *Scheduler {
	return &Scheduler{
		service:  service,
		logger:   logger,
		cronSpec: cronSpec,
		cron:     cron.New(cron.WithLocation(time.UTC)),
	}
}

func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(s.cronSpec, func() {
		if _, err := s.service.Run(context.Background(), &models.RetentionRequest{}); err != nil {
			s.logger.Error().Err(err).Msg("Nightly retention run failed")
		}
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info().Str("schedule", s.cronSpec).Msg("Retention scheduler started")
	return nil
}

func (s *Scheduler) Stop() error {
	ctx := s.cron.Stop()
	<-ctx.Done()
	return nil
}
