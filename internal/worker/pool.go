package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/iconidentify/vidshelf/internal/domain"
)

// ErrShutdownTimeout is returned when workers don't stop within timeout.
var ErrShutdownTimeout = errors.New("worker pool shutdown timed out")

// Recorder folds a stored video into the statistic.
type Recorder interface {
	RecordByKey(ctx context.Context, key domain.VideoKey) error
}

// Pool records ingestion notifications with a fixed number of workers.
type Pool struct {
	workers  int
	keys     <-chan domain.VideoKey
	recorder Recorder
	logger   *slog.Logger

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// Config holds worker pool configuration.
type Config struct {
	Workers int
}

// NewPool creates a new worker pool reading keys.
func NewPool(
	cfg Config,
	keys <-chan domain.VideoKey,
	recorder Recorder,
	logger *slog.Logger,
) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		workers:  cfg.Workers,
		keys:     keys,
		recorder: recorder,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches all workers.
func (p *Pool) Start() {
	p.logger.Info("starting worker pool", "workers", p.workers)

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop stops taking new keys and waits for in-flight records.
func (p *Pool) Stop(timeout time.Duration) error {
	p.logger.Info("stopping worker pool")
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
		return nil
	case <-time.After(timeout):
		return ErrShutdownTimeout
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	logger := p.logger.With("worker_id", id)
	logger.Info("worker started")

	for {
		select {
		case <-p.ctx.Done():
			logger.Info("worker stopping")
			return
		case key, ok := <-p.keys:
			if !ok {
				logger.Info("key channel closed, worker stopping")
				return
			}
			p.process(logger, key)
		}
	}
}

// process records one key. A record already under way finishes even when
// the pool is stopping.
func (p *Pool) process(logger *slog.Logger, key domain.VideoKey) {
	logger = logger.With("video", key.String())

	err := p.recorder.RecordByKey(context.WithoutCancel(p.ctx), key)
	switch {
	case err == nil:
		logger.Debug("video recorded")
	case errors.Is(err, domain.ErrVideoNotFound):
		logger.Warn("notified video not in catalog")
	default:
		logger.Error("failed to record video", "error", err)
	}
}
