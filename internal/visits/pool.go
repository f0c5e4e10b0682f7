package visits

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Siddarth2230/shortlink/internal/models"
	"github.com/Siddarth2230/shortlink/pkg/metrics"
)

// Handler processes one job. Its error is logged and otherwise ignored.
type Handler func(ctx context.Context, job Job) error

type PoolConfig struct {
	Workers   int
	QueueSize int
	// Timeout bounds each job; jobs never inherit the request's context.
	Timeout time.Duration
}

// Pool runs visit jobs on a fixed set of workers fed by a bounded queue.
// Submit never blocks: when the queue is full the job is dropped.
type Pool struct {
	handler Handler
	timeout time.Duration
	logger  *zap.Logger

	mu     sync.RWMutex
	closed bool
	jobs   chan Job
	wg     sync.WaitGroup
}

func NewPool(cfg PoolConfig, handler Handler, logger *zap.Logger) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Pool{
		handler: handler,
		timeout: cfg.Timeout,
		logger:  logger,
		jobs:    make(chan Job, cfg.QueueSize),
	}

	p.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go p.worker()
	}
	return p
}

// Submit queues a visit for code. It reports false if the visit was dropped.
func (p *Pool) Submit(code string, rc *models.RequestContext) bool {
	job := Job{Code: code, RequestContext: rc, At: time.Now().UTC()}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.drop(job, "pool closed")
		return false
	}

	select {
	case p.jobs <- job:
		metrics.VisitQueueDepth.Set(float64(len(p.jobs)))
		return true
	default:
		p.drop(job, "queue full")
		return false
	}
}

// Close stops accepting jobs and waits for queued ones to finish or ctx to end.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for job := range p.jobs {
		metrics.VisitQueueDepth.Set(float64(len(p.jobs)))
		p.run(job)
	}
}

func (p *Pool) run(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("visit handler panicked", zap.String("code", job.Code), zap.Any("panic", r))
		}
	}()

	if err := p.handler(ctx, job); err != nil {
		p.logger.Error("visit handler failed", zap.String("code", job.Code), zap.Error(err))
	}
}

func (p *Pool) drop(job Job, reason string) {
	metrics.VisitsDropped.Inc()
	p.logger.Warn("visit dropped", zap.String("code", job.Code), zap.String("reason", reason))
}
