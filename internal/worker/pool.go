// Package worker runs detached follow-up work off the serial queues.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

// Status describes the pool's current load.
type Status struct {
	Capacity int
	Running  int
	Free     int
}

// Pool is a bounded goroutine pool. Jobs posted while the pool is stopped or
// saturated run on their own goroutine instead of being dropped.
type Pool struct {
	mu      sync.RWMutex
	pool    *ants.Pool
	size    int
	expiry  time.Duration
	logger  *zap.Logger
	pending sync.WaitGroup
}

// New creates a pool with room for size concurrent jobs. Call Start before use.
func New(size int, logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	if size <= 0 {
		size = 64
	}
	return &Pool{
		size:   size,
		expiry: 60 * time.Second,
		logger: logger,
	}
}

// Start allocates the underlying pool.
func (p *Pool) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pool != nil {
		p.logger.Warn("worker pool already started")
		return nil
	}

	pool, err := ants.NewPool(p.size,
		ants.WithExpiryDuration(p.expiry),
		ants.WithNonblocking(true),
	)
	if err != nil {
		return fmt.Errorf("pool init failed: %w", err)
	}
	p.pool = pool
	p.logger.Info("worker pool started", zap.Int("size", p.size))
	return nil
}

// Stop waits up to timeout for posted jobs and releases the pool.
func (p *Pool) Stop(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		p.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		p.logger.Warn("worker pool stop timed out", zap.Duration("timeout", timeout))
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pool != nil {
		running := p.pool.Running()
		p.pool.Release()
		p.pool = nil
		p.logger.Info("worker pool stopped", zap.Int("running", running))
	}
}

// Status returns the current capacity and load.
func (p *Pool) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.pool == nil {
		return Status{}
	}
	capacity := p.pool.Cap()
	running := p.pool.Running()
	free := capacity - running
	if free < 0 {
		free = 0
	}
	return Status{Capacity: capacity, Running: running, Free: free}
}

// Post runs job in the background.
func (p *Pool) Post(job func()) {
	p.PostCtx(context.Background(), job)
}

// PostCtx runs job in the background unless ctx is already done.
func (p *Pool) PostCtx(ctx context.Context, job func()) {
	if ctx.Err() != nil {
		return
	}
	p.pending.Add(1)
	run := func() {
		defer p.pending.Done()
		p.safeRun(ctx, job)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.pool == nil || p.pool.IsClosed() {
		p.fallback(run, "pool not started or closed")
		return
	}
	if err := p.pool.Submit(run); err != nil {
		p.fallback(run, err.Error())
	}
}

// Wait blocks until every posted job has finished.
func (p *Pool) Wait() {
	p.pending.Wait()
}

func (p *Pool) fallback(run func(), reason string) {
	p.logger.Warn("worker pool fallback", zap.String("reason", reason))
	go run()
}

func (p *Pool) safeRun(ctx context.Context, job func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("worker job panicked",
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
		}
	}()
	if ctx.Err() == nil {
		job()
	}
}
