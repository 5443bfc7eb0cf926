package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/common"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
)

// pipeline is the bounded buffer between ingest acceptance and store
// commits. Producers block up to the enqueue deadline; flush workers drain
// up to maxBatchSize entries per pass, triggered by a half-capacity kick or
// the processing interval tick, whichever first.
type pipeline struct {
	svc    *Service
	logger arbor.ILogger

	buffer chan *models.LogEntry
	kick   chan struct{}

	maxBatchSize    int
	enqueueDeadline time.Duration
	interval        time.Duration
	workers         int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool
}

func newPipeline(svc *Service, logger arbor.ILogger, cfg *common.IngestionConfig) *pipeline {
	queueSize := cfg.MaxQueueSize
	if queueSize <= 0 {
		queueSize = 50000
	}
	maxBatch := cfg.MaxBatchSize
	if maxBatch <= 0 || maxBatch > common.MaxBatchCap {
		maxBatch = 1000
	}
	workers := cfg.FlushWorkers
	if workers <= 0 {
		workers = 1
	}
	interval := time.Duration(cfg.ProcessingIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	deadline := time.Duration(cfg.EnqueueDeadlineMs) * time.Millisecond
	if deadline <= 0 {
		deadline = 100 * time.Millisecond
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &pipeline{
		svc:             svc,
		logger:          logger,
		buffer:          make(chan *models.LogEntry, queueSize),
		kick:            make(chan struct{}, 1),
		maxBatchSize:    maxBatch,
		enqueueDeadline: deadline,
		interval:        interval,
		workers:         workers,
		ctx:             ctx,
		cancel:          cancel,
	}
}

func (p *pipeline) start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return nil
	}
	p.started = true

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.logger.Info().Int("workers", p.workers).Int("capacity", cap(p.buffer)).Msg("Ingestion pipeline started")
	return nil
}

func (p *pipeline) stop() error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	// Final drain before the workers exit
	drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.flushAll(drainCtx); err != nil {
		p.logger.Warn().Err(err).Msg("Final buffer drain failed")
	}

	p.cancel()
	p.wg.Wait()
	p.logger.Info().Msg("Ingestion pipeline stopped")
	return nil
}

func (p *pipeline) depth() int {
	return len(p.buffer)
}

func (p *pipeline) capacity() int {
	return cap(p.buffer)
}

// enqueue blocks up to the enqueue deadline for buffer space.
func (p *pipeline) enqueue(ctx context.Context, entry *models.LogEntry) error {
	select {
	case p.buffer <- entry:
		p.maybeKick()
		return nil
	default:
	}

	timer := time.NewTimer(p.enqueueDeadline)
	defer timer.Stop()

	select {
	case p.buffer <- entry:
		p.maybeKick()
		return nil
	case <-timer.C:
		return common.OverloadedError("ingestion buffer full")
	case <-ctx.Done():
		return common.TimeoutError("ingest cancelled")
	}
}

// tryEnqueue is the non-blocking variant used by batch prefix-accept.
func (p *pipeline) tryEnqueue(entry *models.LogEntry) bool {
	select {
	case p.buffer <- entry:
		p.maybeKick()
		return true
	default:
		return false
	}
}

// maybeKick wakes a worker early once the buffer crosses half capacity.
func (p *pipeline) maybeKick() {
	if len(p.buffer) < cap(p.buffer)/2 {
		return
	}
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

func (p *pipeline) worker(id int) {
	defer p.wg.Done()

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().
				Str("panic", fmt.Sprintf("%v", r)).
				Int("worker", id).
				Msg("Flush worker panic recovered")
		}
	}()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.flushOnce(p.ctx)
		case <-p.kick:
			p.flushOnce(p.ctx)
		case <-p.ctx.Done():
			return
		}
	}
}

// flushOnce drains up to maxBatchSize entries and commits them in one
// store transaction.
func (p *pipeline) flushOnce(ctx context.Context) {
	batch := p.take(p.maxBatchSize)
	if len(batch) == 0 {
		return
	}

	if err := p.commit(ctx, batch); err != nil {
		p.logger.Warn().
			Err(err).
			Int("batch_size", len(batch)).
			Msg("Failed to commit log batch")
	}
}

// flushAll drains the buffer completely.
func (p *pipeline) flushAll(ctx context.Context) error {
	for {
		batch := p.take(p.maxBatchSize)
		if len(batch) == 0 {
			return nil
		}
		if err := p.commit(ctx, batch); err != nil {
			return err
		}
	}
}

func (p *pipeline) take(max int) []*models.LogEntry {
	var batch []*models.LogEntry
	for len(batch) < max {
		select {
		case entry := <-p.buffer:
			batch = append(batch, entry)
		default:
			return batch
		}
	}
	return batch
}

func (p *pipeline) commit(ctx context.Context, batch []*models.LogEntry) error {
	if err := p.svc.storage.LogStorage().InsertBatch(ctx, batch); err != nil {
		return err
	}
	p.publish(ctx, batch)
	return nil
}

// publish pushes committed entries onto the fan-out topics.
func (p *pipeline) publish(ctx context.Context, batch []*models.LogEntry) {
	if p.svc.events == nil {
		return
	}
	for _, entry := range batch {
		payload := entry

		_ = p.svc.events.Publish(ctx, interfaces.Event{Type: interfaces.EventLogsAll, Payload: payload})
		if entry.Level >= models.LevelError {
			_ = p.svc.events.Publish(ctx, interfaces.Event{Type: interfaces.EventLogsErrors, Payload: payload})
		}
		if entry.JobID != "" {
			_ = p.svc.events.Publish(ctx, interfaces.Event{Type: interfaces.TopicLogsJob(entry.JobID), Payload: payload})
		}
		if entry.JobExecutionID != 0 {
			_ = p.svc.events.Publish(ctx, interfaces.Event{
				Type:    interfaces.TopicLogsExecution(fmt.Sprintf("%d", entry.JobExecutionID)),
				Payload: payload,
			})
		}
	}
}

// knownSet is a small concurrent membership cache for autovivification.
type knownSet struct {
	mu  sync.RWMutex
	set map[string]struct{}
}

func newKnownSet() *knownSet {
	return &knownSet{set: make(map[string]struct{})}
}

func (k *knownSet) has(key string) bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	_, ok := k.set[key]
	return ok
}

func (k *knownSet) add(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.set[key] = struct{}{}
}
