// Package tasks runs host callbacks posted through the native UI thread or
// worker pool, in submission order per queue.
package tasks

import (
	"sync"

	"github.com/grafana/sobek"
	"github.com/rs/zerolog"

	"github.com/crgimenes/glazejs/internal/fifo"
	"github.com/crgimenes/glazejs/internal/host"
	"github.com/crgimenes/glazejs/internal/native"
)

// Poster schedules work on the native UI thread.
type Poster interface {
	Post(fn func()) error
}

type task struct {
	inv      *host.Invoker
	deferred *host.Deferred
}

// queue pairs a FIFO with the lock that makes pop+dispatch atomic, so tasks
// reach the host loop in the order they were submitted even when several
// native threads drain concurrently.
type queue struct {
	mu    sync.Mutex
	items fifo.Queue[*task]
}

// Scheduler owns the post, dispatch and pool queues of one application.
type Scheduler struct {
	loop *host.Loop
	ui   Poster
	pool native.Pool
	log  zerolog.Logger

	post     queue
	dispatch queue
	workers  queue
}

// New creates a scheduler.
func New(loop *host.Loop, ui Poster, pool native.Pool, log zerolog.Logger) *Scheduler {
	return &Scheduler{loop: loop, ui: ui, pool: pool, log: log}
}

// Post queues fn to run on the host loop after a round trip through the UI
// thread. It runs on the loop goroutine.
func (s *Scheduler) Post(fn sobek.Value) error {
	t, err := s.newTask(fn, nil)
	if err != nil {
		return err
	}
	return s.submit(&s.post, t, s.ui.Post)
}

// Dispatch is Post with a promise for fn's result.
func (s *Scheduler) Dispatch(rt *sobek.Runtime, fn sobek.Value) (*sobek.Promise, error) {
	d, p := host.NewDeferred(s.loop, rt)
	t, err := s.newTask(fn, d)
	if err != nil {
		return nil, err
	}
	if err := s.submit(&s.dispatch, t, s.ui.Post); err != nil {
		return nil, err
	}
	return p, nil
}

// PoolSubmit runs fn after a round trip through a native worker and returns
// a promise for its result.
func (s *Scheduler) PoolSubmit(rt *sobek.Runtime, fn sobek.Value) (*sobek.Promise, error) {
	d, p := host.NewDeferred(s.loop, rt)
	t, err := s.newTask(fn, d)
	if err != nil {
		return nil, err
	}
	submit := func(drain func()) error {
		go func() {
			if err := s.pool.Submit(drain); err != nil {
				s.abandon(&s.workers, t, err)
			}
		}()
		return nil
	}
	if err := s.submit(&s.workers, t, submit); err != nil {
		return nil, err
	}
	return p, nil
}

// PoolEmplace runs fn after a fire-and-forget round trip through a worker.
func (s *Scheduler) PoolEmplace(fn sobek.Value) error {
	t, err := s.newTask(fn, nil)
	if err != nil {
		return err
	}
	return s.submit(&s.workers, t, s.pool.Emplace)
}

// Pending reports the number of queued tasks across all queues.
func (s *Scheduler) Pending() int {
	return s.post.items.Len() + s.dispatch.items.Len() + s.workers.items.Len()
}

func (s *Scheduler) newTask(fn sobek.Value, d *host.Deferred) (*task, error) {
	inv, err := host.NewInvoker(s.loop, fn)
	if err != nil {
		return nil, err
	}
	return &task{inv: inv, deferred: d}, nil
}

// submit enqueues t and asks native to drain q once.
func (s *Scheduler) submit(q *queue, t *task, schedule func(func()) error) error {
	q.items.Push(t)
	if err := schedule(func() { s.drain(q) }); err != nil {
		if q.items.Remove(func(x *task) bool { return x == t }) {
			t.inv.Release()
		}
		return err
	}
	return nil
}

// drain runs on a native thread: it pops one task and hands it to the loop.
func (s *Scheduler) drain(q *queue) {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.items.Pop()
	if !ok {
		return
	}
	err := t.inv.InvokeAsync(func(rt *sobek.Runtime, fn sobek.Callable) error {
		defer t.inv.Release()
		v, err := fn(sobek.Undefined())
		if t.deferred == nil {
			return err
		}
		if err != nil {
			t.deferred.Reject(host.Thrown(rt, err))
			return nil
		}
		t.deferred.Resolve(v)
		return nil
	})
	if err != nil {
		t.inv.Release()
		s.log.Debug().Err(err).Msg("task dropped: host loop unavailable")
	}
}

// abandon removes t after its native scheduling failed late, rejecting its
// promise while the loop still runs.
func (s *Scheduler) abandon(q *queue, t *task, cause error) {
	if !q.items.Remove(func(x *task) bool { return x == t }) {
		return
	}
	t.inv.Release()
	if t.deferred == nil {
		return
	}
	if err := t.deferred.Settle(func(*sobek.Runtime) (sobek.Value, error) { return nil, cause }); err != nil {
		s.log.Debug().Err(err).Msg("task promise dropped")
	}
}
