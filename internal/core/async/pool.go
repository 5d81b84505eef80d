package async

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrQueueClosed is returned by Submit after Shutdown.
var ErrQueueClosed = errors.New("worker pool is shut down")

// Task is one unit of page work. It receives the worker context, bounded by
// the task timeout when one is configured.
type Task func(ctx context.Context)

// Executor accepts tasks for background execution.
type Executor interface {
	Submit(ctx context.Context, task Task) error
}

// Pool is a bounded worker pool with blocking backpressure.
type Pool struct {
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan Task
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.RWMutex
	closed bool
}

type Option func(*Pool)

func WithWorkers(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}
func WithQueueSize(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.ch = make(chan Task, n)
		}
	}
}

// WithTaskTimeout bounds every task. Zero (the default) means no timeout.
func WithTaskTimeout(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.timeout = d
		}
	}
}

func NewPool(logger *slog.Logger, opts ...Option) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{
		logger:  logger,
		workers: 4,
		ch:      make(chan Task, 256),
	}
	for _, o := range opts {
		o(p)
	}
	p.start()
	return p
}

func (p *Pool) start() {
	p.once.Do(func() {
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go func(workerID int) {
				defer p.wg.Done()
				p.logger.Debug("worker started", "worker_id", workerID)

				for task := range p.ch {
					p.run(workerID, task)
				}

				p.logger.Debug("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (p *Pool) run(workerID int, task Task) {
	ctx := context.Background()
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("task panicked", "worker_id", workerID, "panic", fmt.Sprint(r))
		}
	}()
	task(ctx)
}

// Submit enqueues task, blocking while the queue is full. It returns early
// when ctx ends or after Shutdown.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrQueueClosed
	}
	select {
	case p.ch <- task:
		return nil
	default:
	}
	p.logger.Warn("queue full, applying backpressure", "queued", len(p.ch))
	select {
	case p.ch <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting tasks and waits for queued ones to finish.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.ch)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); p.wg.Wait() }()

	select {
	case <-ctx.Done():
		p.logger.Warn("shutdown interrupted by context")
		return ctx.Err()
	case <-done:
		p.logger.Info("queue drained, shutdown complete")
		return nil
	}
}
