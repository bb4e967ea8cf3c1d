// Package pool runs block searches concurrently with a fixed number of worker
// slots. It offers the operations the scheduler needs from a process pool:
// submit, wait with a timeout, read results and cancel outstanding work.
package pool

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/me/worksizing/pkg/model"
	"golang.org/x/sync/semaphore"
)

// SearchFunc searches one block. It must return promptly once ctx is cancelled.
type SearchFunc func(ctx context.Context, b model.Block) (int64, bool, error)

// Config configures a Pool.
type Config struct {
	// MaxWorkers limits how many searches run at the same time.
	// Default: runtime.NumCPU()
	MaxWorkers int
}

// DefaultConfig returns the default pool configuration.
func DefaultConfig() Config {
	return Config{MaxWorkers: runtime.NumCPU()}
}

// Pool dispatches block searches onto goroutines gated by a weighted semaphore.
// Tasks submitted beyond MaxWorkers wait for a slot.
type Pool struct {
	search     SearchFunc
	maxWorkers int
	sem        *semaphore.Weighted
	logger     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup

	// notify carries a coalesced "some task finished" signal to Wait.
	notify chan struct{}

	running     atomic.Int64
	outstanding atomic.Int64
}

// New creates a pool whose tasks inherit ctx. Call Shutdown to release it.
func New(ctx context.Context, cfg Config, search SearchFunc, logger *slog.Logger) *Pool {
	n := cfg.MaxWorkers
	if n < 1 {
		n = DefaultConfig().MaxWorkers
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Pool{
		search:     search,
		maxWorkers: n,
		sem:        semaphore.NewWeighted(int64(n)),
		logger:     logger.With("component", "pool"),
		ctx:        ctx,
		cancel:     cancel,
		notify:     make(chan struct{}, 1),
	}
}

// Submit schedules a search of b and returns its handle immediately.
func (p *Pool) Submit(b model.Block) (*Task, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, model.ErrPoolClosed
	}

	tctx, cancel := context.WithCancel(p.ctx)
	t := newTask(b, cancel)

	p.outstanding.Add(1)
	p.wg.Add(1)
	go p.run(tctx, t)
	return t, nil
}

func (p *Pool) run(ctx context.Context, t *Task) {
	defer p.wg.Done()
	defer p.signal()
	defer p.outstanding.Add(-1)

	if err := p.sem.Acquire(ctx, 1); err != nil {
		t.finish(model.TaskStateCancelled, 0, false, err)
		return
	}
	defer p.sem.Release(1)

	if err := ctx.Err(); err != nil {
		t.finish(model.TaskStateCancelled, 0, false, err)
		return
	}
	if err := t.start(); err != nil {
		t.finish(model.TaskStateCancelled, 0, false, err)
		return
	}

	p.running.Add(1)
	value, found, err := p.search(ctx, t.Block)
	p.running.Add(-1)

	switch {
	case err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
		t.finish(model.TaskStateCancelled, 0, false, err)
	case err != nil:
		t.finish(model.TaskStateFailed, 0, false, err)
	case found:
		t.finish(model.TaskStateFound, value, true, nil)
	default:
		t.finish(model.TaskStateEmpty, 0, false, nil)
	}
}

func (p *Pool) signal() {
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

// Wait blocks until tasks satisfy mode or timeout elapses, whichever comes
// first, and splits tasks into done and pending. A timeout is not an error.
// A timeout <= 0 waits without a time limit.
//
// In WaitFirstCompleted mode every task that is already done is returned,
// not just the first one.
func (p *Pool) Wait(ctx context.Context, tasks []*Task, timeout time.Duration, mode model.WaitMode) (done, pending []*Task, err error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		done, pending = partition(tasks)
		if len(pending) == 0 || (mode != model.WaitAllCompleted && len(done) > 0) {
			return done, pending, nil
		}

		select {
		case <-p.notify:
		case <-expired:
			done, pending = partition(tasks)
			return done, pending, nil
		case <-ctx.Done():
			return done, pending, ctx.Err()
		}
	}
}

func partition(tasks []*Task) (done, pending []*Task) {
	for _, t := range tasks {
		if t.IsDone() {
			done = append(done, t)
		} else {
			pending = append(pending, t)
		}
	}
	return done, pending
}

// Shutdown stops the pool. Outstanding tasks are cancelled, not drained.
// With wait set it also blocks until every task goroutine has returned.
// Calling Shutdown more than once is safe.
func (p *Pool) Shutdown(wait bool) {
	p.mu.Lock()
	first := !p.closed
	p.closed = true
	p.mu.Unlock()

	p.cancel()
	if first {
		p.logger.Debug("worker pool shut down",
			"outstanding", p.outstanding.Load(),
			"running", p.running.Load())
	}
	if wait {
		p.wg.Wait()
	}
}

// MaxWorkers returns the number of worker slots.
func (p *Pool) MaxWorkers() int {
	return p.maxWorkers
}

// Running returns the number of searches currently holding a worker slot.
func (p *Pool) Running() int {
	return int(p.running.Load())
}

// Outstanding returns the number of submitted tasks that have not finished.
func (p *Pool) Outstanding() int {
	return int(p.outstanding.Load())
}
