package jobs

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// DefaultPoolSize is the number of runs the scheduler executes at once
const DefaultPoolSize = 5

// WorkerPool bounds how many scheduled runs execute concurrently. Callers that
// find the pool saturated wait for a slot; nothing is dropped.
type WorkerPool struct {
	sem      *semaphore.Weighted
	size     int64
	inFlight atomic.Int64
	waiting  atomic.Int64
}

// NewWorkerPool creates a pool with size slots
func NewWorkerPool(size int) *WorkerPool {
	if size <= 0 {
		size = DefaultPoolSize
	}
	return &WorkerPool{
		sem:  semaphore.NewWeighted(int64(size)),
		size: int64(size),
	}
}

// Do runs fn on the calling goroutine once a slot is free. It returns ctx's
// error without running fn if ctx ends while waiting.
func (p *WorkerPool) Do(ctx context.Context, fn func()) error {
	p.waiting.Add(1)
	err := p.sem.Acquire(ctx, 1)
	p.waiting.Add(-1)
	if err != nil {
		return err
	}

	p.inFlight.Add(1)
	defer func() {
		p.inFlight.Add(-1)
		p.sem.Release(1)
	}()

	fn()
	return nil
}

// Size returns the number of slots
func (p *WorkerPool) Size() int { return int(p.size) }

// InFlight returns the number of runs currently holding a slot
func (p *WorkerPool) InFlight() int { return int(p.inFlight.Load()) }

// Waiting returns the number of fires queued for a slot
func (p *WorkerPool) Waiting() int { return int(p.waiting.Load()) }
