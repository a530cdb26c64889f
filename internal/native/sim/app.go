// Package sim is an in-process webview toolkit. It has its own UI goroutine,
// a worker pool and a script runtime per document, and raises events, policy
// requests, page calls and scheme requests from those goroutines the way a
// real toolkit does. It renders nothing.
package sim

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/rs/zerolog"

	"github.com/crgimenes/glazejs/internal/fifo"
	"github.com/crgimenes/glazejs/internal/native"
)

// ErrQuit is returned when posting to an application that has quit.
var ErrQuit = errors.New("sim: application has quit")

// Options configures the simulated toolkit.
type Options struct {
	// Threads bounds the worker pool; zero selects GOMAXPROCS.
	Threads int
	Logger  zerolog.Logger
}

// App is a simulated toolkit instance.
type App struct {
	log  zerolog.Logger
	pool *native.WorkerPool

	ui   fifo.Queue[func()]
	wake chan struct{}

	mu     sync.Mutex
	quit   bool
	quitCh chan struct{}
	views  map[native.Handle]*Webview

	nextHandle atomic.Uint64
}

// New creates a toolkit. Its UI goroutine starts with Run.
func New(opts Options) *App {
	return &App{
		log:    opts.Logger,
		pool:   native.NewWorkerPool(opts.Threads, opts.Logger),
		wake:   make(chan struct{}, 1),
		quitCh: make(chan struct{}),
		views:  make(map[native.Handle]*Webview),
	}
}

// Run is the UI goroutine. It returns after Quit or when ctx is done.
func (a *App) Run(ctx context.Context) error {
	for {
		for {
			fn, ok := a.ui.Pop()
			if !ok {
				break
			}
			a.exec(fn)
		}
		select {
		case <-ctx.Done():
			a.Quit()
			return ctx.Err()
		case <-a.quitCh:
			return nil
		case <-a.wake:
		}
	}
}

// Quit stops Run. Posting afterwards fails.
func (a *App) Quit() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.quit {
		a.quit = true
		close(a.quitCh)
	}
}

// Post schedules fn on the UI goroutine.
func (a *App) Post(fn func()) error {
	a.mu.Lock()
	if a.quit {
		a.mu.Unlock()
		return ErrQuit
	}
	a.ui.Push(fn)
	a.mu.Unlock()

	select {
	case a.wake <- struct{}{}:
	default:
	}
	return nil
}

// Flush waits until every job posted before the call has run.
func (a *App) Flush(ctx context.Context) error {
	done := make(chan struct{})
	if err := a.Post(func() { close(done) }); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pool returns the worker pool.
func (a *App) Pool() native.Pool { return a.pool }

// NativeHandle returns nil: there is no native object behind the simulation.
func (a *App) NativeHandle() unsafe.Pointer { return nil }

// Close quits and waits for pool workers.
func (a *App) Close() error {
	a.Quit()
	a.pool.Close()
	return nil
}

// NewWebview creates a simulated window showing about:blank.
func (a *App) NewWebview(opts native.Options, sink native.Sink) (native.Webview, error) {
	a.mu.Lock()
	if a.quit {
		a.mu.Unlock()
		return nil, ErrQuit
	}
	h := native.Handle(a.nextHandle.Add(1))
	w := newWebview(a, h, opts, sink)
	a.views[h] = w
	a.mu.Unlock()

	a.log.Debug().Uint64("handle", uint64(h)).Str("title", opts.Title).Msg("webview created")
	return w, nil
}

// Webviews returns the live webviews.
func (a *App) Webviews() []*Webview {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]*Webview, 0, len(a.views))
	for _, w := range a.views {
		out = append(out, w)
	}
	return out
}

func (a *App) forget(h native.Handle) {
	a.mu.Lock()
	delete(a.views, h)
	a.mu.Unlock()
}

func (a *App) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Error().Interface("panic", r).Msg("ui callback panicked")
		}
	}()
	fn()
}
