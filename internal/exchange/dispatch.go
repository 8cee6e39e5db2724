package exchange

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrQueueFull is returned when a sweep task cannot be queued. The task is
// picked up by the next Reconcile.
var ErrQueueFull = errors.New("sweep queue is full")

// ErrPoolClosed is returned by Pool.Dispatch after Close.
var ErrPoolClosed = errors.New("sweep pool is closed")

// Dispatcher hands sweep tasks to whatever runs them.
type Dispatcher interface {
	Dispatch(ctx context.Context, task SweepTask) error
}

// Inline runs each task synchronously in the caller's goroutine.
type Inline struct {
	Sweeper *Sweeper
}

// Dispatch runs the sweep immediately.
func (d Inline) Dispatch(ctx context.Context, task SweepTask) error {
	return d.Sweeper.Sweep(ctx, task)
}

// Pool runs sweep tasks on a fixed set of worker goroutines.
type Pool struct {
	sweeper *Sweeper
	workers int

	mu     sync.RWMutex
	tasks  chan SweepTask
	closed bool
	wg     sync.WaitGroup
}

// NewPool creates a pool with the given number of workers and queue size.
func NewPool(s *Sweeper, workers, queue int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queue <= 0 {
		queue = 256
	}
	return &Pool{sweeper: s, workers: workers, tasks: make(chan SweepTask, queue)}
}

// Start launches the workers. Tasks run with ctx, not the context passed to
// Dispatch, since the request that enqueued them is usually done by then.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for task := range p.tasks {
				if err := p.sweeper.Sweep(ctx, task); err != nil {
					slog.Error("sweep failed", "item", task.ItemID, "offer", task.OfferID, "error", err)
				}
			}
		}()
	}
}

// Dispatch queues a task without blocking.
func (p *Pool) Dispatch(_ context.Context, task SweepTask) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.tasks <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting tasks and waits for queued ones to finish.
func (p *Pool) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.tasks)
	}
	p.mu.Unlock()
	p.wg.Wait()
}
