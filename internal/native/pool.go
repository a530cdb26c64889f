package native

import (
	"context"
	"runtime"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// WorkerPool is a bounded goroutine pool shared by the backends.
type WorkerPool struct {
	sem    *semaphore.Weighted
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    zerolog.Logger
}

// NewWorkerPool creates a pool running at most threads callbacks at once.
// threads <= 0 selects GOMAXPROCS.
func NewWorkerPool(threads int, log zerolog.Logger) *WorkerPool {
	if threads <= 0 {
		threads = runtime.GOMAXPROCS(0)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		sem:    semaphore.NewWeighted(int64(threads)),
		ctx:    ctx,
		cancel: cancel,
		log:    log,
	}
}

// Submit runs fn on a worker and waits for it.
func (p *WorkerPool) Submit(fn func()) error {
	if err := p.ctx.Err(); err != nil {
		return err
	}
	if err := p.sem.Acquire(p.ctx, 1); err != nil {
		return err
	}
	done := make(chan struct{})
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer close(done)
		defer p.sem.Release(1)
		p.run(fn)
	}()
	<-done
	return nil
}

// Emplace runs fn on a worker without waiting.
func (p *WorkerPool) Emplace(fn func()) error {
	if err := p.ctx.Err(); err != nil {
		return err
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.sem.Acquire(p.ctx, 1); err != nil {
			return
		}
		defer p.sem.Release(1)
		p.run(fn)
	}()
	return nil
}

// Close stops accepting work and waits for running callbacks.
func (p *WorkerPool) Close() {
	p.cancel()
	p.wg.Wait()
}

func (p *WorkerPool) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Interface("panic", r).Msg("pool callback panicked")
		}
	}()
	fn()
}
