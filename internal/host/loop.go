// Package host owns the JavaScript runtime and the single goroutine allowed
// to touch it. Every other goroutine reaches the runtime by enqueuing jobs.
package host

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/grafana/sobek"
	"github.com/rs/zerolog"

	"github.com/crgimenes/glazejs/internal/fifo"
)

var (
	// ErrClosed is returned when a job is submitted to a stopped loop.
	ErrClosed = errors.New("host: loop closed")

	// ErrReleased is returned when dispatching through a released invoker.
	ErrReleased = errors.New("host: invoker released")

	// ErrNotCallable is returned when wrapping a value that is not a function.
	ErrNotCallable = errors.New("host: value is not callable")
)

// Job runs on the loop goroutine with exclusive access to the runtime.
type Job func(rt *sobek.Runtime) error

// ErrorHandler receives errors reported to the loop's top-level channel. It
// runs on the loop goroutine.
type ErrorHandler func(rt *sobek.Runtime, err error)

type task struct {
	job  Job
	done chan error
}

// Loop serializes all access to one sobek runtime.
type Loop struct {
	rt  *sobek.Runtime
	log zerolog.Logger

	queue fifo.Queue[task]
	wake  chan struct{}

	mu      sync.Mutex
	closed  bool
	onError ErrorHandler

	running atomic.Bool
	stopped chan struct{}
	once    sync.Once
}

// Option configures a Loop.
type Option func(*Loop)

// WithLogger sets the logger used for reported errors.
func WithLogger(log zerolog.Logger) Option {
	return func(l *Loop) { l.log = log }
}

// WithRuntime uses rt instead of a fresh runtime.
func WithRuntime(rt *sobek.Runtime) Option {
	return func(l *Loop) { l.rt = rt }
}

// New creates a loop. It does not start processing until Run is called, but
// jobs may be enqueued beforehand.
func New(opts ...Option) *Loop {
	l := &Loop{
		log:     zerolog.Nop(),
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.rt == nil {
		l.rt = sobek.New()
		l.rt.SetFieldNameMapper(sobek.TagFieldNameMapper("json", true))
	}
	return l
}

// Run processes jobs on the calling goroutine until Stop is called or ctx is
// cancelled. Jobs still queued at that point are abandoned: blocking callers
// receive ErrClosed.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return errors.New("host: loop already running")
	}
	defer l.shutdown()

	for {
		for {
			t, ok := l.queue.Pop()
			if !ok {
				break
			}
			l.exec(t)
			if l.isClosed() {
				return nil
			}
		}
		if l.isClosed() {
			return nil
		}
		select {
		case <-ctx.Done():
			l.Stop()
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// Stop closes the loop. It is safe to call from any goroutine and more than once.
func (l *Loop) Stop() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.signal()
	if !l.running.Load() {
		l.shutdown()
	}
}

// Done is closed once the loop has stopped and released pending callers.
func (l *Loop) Done() <-chan struct{} { return l.stopped }

// Enqueue schedules job without waiting for it. Errors returned by the job are
// reported to the top-level error channel.
func (l *Loop) Enqueue(job Job) error {
	return l.push(task{job: job})
}

// Do schedules job and waits until it has run, returning its error. It must
// not be called from the loop goroutine.
func (l *Loop) Do(job Job) error {
	done := make(chan error, 1)
	if err := l.push(task{job: job, done: done}); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-l.stopped:
		select {
		case err := <-done:
			return err
		default:
			return ErrClosed
		}
	}
}

// OnError installs the top-level error handler.
func (l *Loop) OnError(h ErrorHandler) {
	l.mu.Lock()
	l.onError = h
	l.mu.Unlock()
}

// ReportError logs err and forwards it to the top-level error handler on the
// loop goroutine. Safe from any goroutine.
func (l *Loop) ReportError(err error) {
	if err == nil {
		return
	}
	l.log.Error().Err(err).Msg("uncaught error in host callback")

	l.mu.Lock()
	h := l.onError
	l.mu.Unlock()
	if h == nil {
		return
	}
	_ = l.push(task{job: func(rt *sobek.Runtime) error {
		defer func() {
			if r := recover(); r != nil {
				l.log.Error().Interface("panic", r).Msg("error handler panicked")
			}
		}()
		h(rt, err)
		return nil
	}, done: discard})
}

// Logger returns the loop's logger.
func (l *Loop) Logger() zerolog.Logger { return l.log }

// discard marks a task whose error is neither returned nor reported.
var discard = make(chan error, 1)

func (l *Loop) push(t task) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	l.queue.Push(t)
	l.mu.Unlock()
	l.signal()
	return nil
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func (l *Loop) exec(t task) {
	err := l.safe(t.job)
	switch {
	case t.done == discard:
	case t.done != nil:
		t.done <- err
	case err != nil:
		l.ReportError(err)
	}
}

// safe runs job under the loop's error boundary.
func (l *Loop) safe(job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			switch v := r.(type) {
			case *sobek.Exception:
				err = v
			case sobek.Value:
				err = fmt.Errorf("host: job threw %s", v.String())
			case error:
				err = fmt.Errorf("host: job panicked: %w", v)
			default:
				err = fmt.Errorf("host: job panicked: %v", v)
			}
		}
	}()
	return job(l.rt)
}

func (l *Loop) shutdown() {
	l.once.Do(func() {
		l.mu.Lock()
		l.closed = true
		l.mu.Unlock()
		for _, t := range l.queue.Drain() {
			if t.done != nil && t.done != discard {
				t.done <- ErrClosed
			}
		}
		close(l.stopped)
	})
}
