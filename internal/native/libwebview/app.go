// Package libwebview drives the webview C library through purego. The
// library owns one window per process; capabilities it lacks report
// native.ErrUnsupported.
package libwebview

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	"github.com/rs/zerolog"

	"github.com/crgimenes/glazejs/internal/fifo"
	"github.com/crgimenes/glazejs/internal/native"
)

// ErrSingleWindow is returned when a second webview is requested.
var ErrSingleWindow = fmt.Errorf("libwebview: only one window per process: %w", native.ErrUnsupported)

// ErrQuit is returned when posting to an application that has quit.
var ErrQuit = errors.New("libwebview: application has quit")

// Options configures the backend.
type Options struct {
	// LibraryPath overrides the library search.
	LibraryPath string
	Threads     int
	Logger      zerolog.Logger
}

// App is the libwebview toolkit. Run must be called on the main goroutine
// with its OS thread locked.
type App struct {
	log  zerolog.Logger
	pool *native.WorkerPool

	// Jobs posted before the window exists run on Run's thread.
	early fifo.Queue[func()]
	wake  chan struct{}

	mu     sync.Mutex
	view   *Webview
	quit   bool
	quitCh chan struct{}
}

var _ native.App = (*App)(nil)

// New loads the library and returns an application without a window.
func New(opts Options) (*App, error) {
	if err := Load(opts.LibraryPath); err != nil {
		return nil, err
	}
	return &App{
		log:    opts.Logger,
		pool:   native.NewWorkerPool(opts.Threads, opts.Logger),
		wake:   make(chan struct{}, 1),
		quitCh: make(chan struct{}),
	}, nil
}

// Run pumps early jobs until a window is created, then runs the native loop
// until Quit.
func (a *App) Run(ctx context.Context) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	stop := context.AfterFunc(ctx, a.Quit)
	defer stop()

	for {
		for {
			fn, ok := a.early.Pop()
			if !ok {
				break
			}
			fn()
		}

		a.mu.Lock()
		view, quit := a.view, a.quit
		a.mu.Unlock()
		if quit {
			return ctx.Err()
		}
		if view != nil {
			view.h.run()
			view.h.destroy()
			a.Quit()
			return ctx.Err()
		}

		select {
		case <-a.quitCh:
		case <-a.wake:
		}
	}
}

// Quit terminates the native loop.
func (a *App) Quit() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.quit {
		return
	}
	a.quit = true
	close(a.quitCh)
	if a.view != nil {
		a.view.h.terminate()
	}
}

// Post runs fn on the UI thread.
func (a *App) Post(fn func()) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.quit {
		return ErrQuit
	}
	if a.view != nil {
		a.view.h.dispatch(fn)
		return nil
	}
	a.early.Push(fn)
	select {
	case a.wake <- struct{}{}:
	default:
	}
	return nil
}

// Pool returns the worker pool.
func (a *App) Pool() native.Pool { return a.pool }

// NativeHandle returns the window pointer (GtkWindow, NSWindow or HWND).
func (a *App) NativeHandle() unsafe.Pointer {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.view == nil {
		return nil
	}
	return a.view.h.window()
}

// Close quits and waits for pool workers.
func (a *App) Close() error {
	a.Quit()
	a.pool.Close()
	return nil
}

// NewWebview creates the process window. It blocks until Run's thread has
// created it, so it must not be called from that thread.
func (a *App) NewWebview(opts native.Options, sink native.Sink) (native.Webview, error) {
	a.mu.Lock()
	if a.view != nil {
		a.mu.Unlock()
		return nil, ErrSingleWindow
	}
	a.mu.Unlock()

	type result struct {
		h   handle
		err error
	}
	done := make(chan result, 1)
	if err := a.Post(func() {
		h, err := create(opts.Debug)
		done <- result{h, err}
	}); err != nil {
		return nil, err
	}

	var r result
	select {
	case r = <-done:
	case <-a.quitCh:
		return nil, ErrQuit
	}
	if r.err != nil {
		return nil, r.err
	}

	w := newWebview(a, r.h, opts, sink)
	a.mu.Lock()
	a.view = w
	a.mu.Unlock()
	a.log.Debug().Str("title", opts.Title).Msg("webview created")

	select {
	case a.wake <- struct{}{}:
	default:
	}
	return w, nil
}
