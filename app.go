// Package glazejs bridges a native webview toolkit and an embedded
// JavaScript host runtime. The host runtime is owned by a single loop
// goroutine; the toolkit raises events, page calls and scheme requests from
// its own threads, and the bridge carries them across in both directions.
package glazejs

import (
	"context"
	"errors"
	"fmt"
	"unsafe"

	"github.com/grafana/sobek"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/crgimenes/glazejs/internal/handles"
	"github.com/crgimenes/glazejs/internal/host"
	"github.com/crgimenes/glazejs/internal/logging"
	"github.com/crgimenes/glazejs/internal/native"
	"github.com/crgimenes/glazejs/internal/native/libwebview"
	"github.com/crgimenes/glazejs/internal/native/sim"
	"github.com/crgimenes/glazejs/internal/tasks"
)

// Backend names accepted by Options.Backend.
const (
	BackendSim     = "sim"
	BackendWebview = "webview"
)

// Options configures an App.
type Options struct {
	// Backend selects the toolkit; empty means BackendSim.
	Backend string

	// LibraryPath overrides the webview library search.
	LibraryPath string

	// Threads bounds the toolkit worker pool; zero selects GOMAXPROCS.
	Threads int

	Logger zerolog.Logger

	// Native, when set, is used instead of constructing a backend.
	Native native.App

	// Runtime, when set, is the host runtime driven by the loop.
	Runtime *sobek.Runtime

	// Defaults fills in the title, size and debug flag of webviews
	// created without them.
	Defaults WebviewOptions
}

// App is one application: a host loop, a toolkit and the webviews created
// through it.
type App struct {
	loop   *host.Loop
	native native.App
	views  *handles.Registry[native.Handle, *Webview]
	tasks  *tasks.Scheduler
	log    zerolog.Logger

	defaults WebviewOptions
	schemes  []string
}

var _ native.Sink = (*App)(nil)

// New builds an application. Nothing runs until Run.
func New(opts Options) (*App, error) {
	log := opts.Logger

	nat := opts.Native
	if nat == nil {
		var err error
		nat, err = newBackend(opts, logging.Component(log, "native"))
		if err != nil {
			return nil, err
		}
	}

	loopOpts := []host.Option{host.WithLogger(logging.Component(log, "host"))}
	if opts.Runtime != nil {
		loopOpts = append(loopOpts, host.WithRuntime(opts.Runtime))
	}
	loop := host.New(loopOpts...)

	return &App{
		loop:   loop,
		native: nat,
		views:  handles.New[native.Handle, *Webview](),
		tasks:  tasks.New(loop, nat, nat.Pool(), logging.Component(log, "tasks")),
		log:    logging.Component(log, "app"),

		defaults: opts.Defaults,
	}, nil
}

func newBackend(opts Options, log zerolog.Logger) (native.App, error) {
	switch opts.Backend {
	case "", BackendSim:
		return sim.New(sim.Options{Threads: opts.Threads, Logger: log}), nil
	case BackendWebview:
		return libwebview.New(libwebview.Options{
			LibraryPath: opts.LibraryPath,
			Threads:     opts.Threads,
			Logger:      log,
		})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
}

// Loop returns the host loop. Jobs enqueued on it own the runtime.
func (a *App) Loop() *host.Loop { return a.loop }

// Native returns the toolkit.
func (a *App) Native() native.App { return a.native }

// Logger returns the application logger.
func (a *App) Logger() zerolog.Logger { return a.log }

// Run drives the toolkit on the calling goroutine and the host loop on
// another until either stops or ctx is done. Backends that need the main
// thread require Run to be called from main.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer a.native.Quit()
		return ignoreCanceled(a.loop.Run(gctx))
	})

	err := ignoreCanceled(a.native.Run(gctx))
	a.loop.Stop()
	if werr := g.Wait(); err == nil {
		err = werr
	}
	return err
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Quit stops the toolkit, which in turn ends Run.
func (a *App) Quit() { a.native.Quit() }

// Close destroys every webview and releases the toolkit.
func (a *App) Close() error {
	for _, w := range a.views.Each() {
		w.Destroy()
	}
	a.loop.Stop()
	return a.native.Close()
}

// Do runs job on the host loop and waits for it.
func (a *App) Do(job host.Job) error { return a.loop.Do(job) }

// Enqueue runs job on the host loop without waiting.
func (a *App) Enqueue(job host.Job) error { return a.loop.Enqueue(job) }

// Webviews returns the live webviews.
func (a *App) Webviews() []*Webview { return a.views.Values() }

// Post runs fn on the host loop after a round trip through the UI thread.
func (a *App) Post(fn sobek.Value) error { return a.tasks.Post(fn) }

// Dispatch is Post with a promise for fn's result.
func (a *App) Dispatch(rt *sobek.Runtime, fn sobek.Value) (*sobek.Promise, error) {
	return a.tasks.Dispatch(rt, fn)
}

// PoolSubmit runs fn on the host loop from a worker-pool thread and returns
// a promise for its result.
func (a *App) PoolSubmit(rt *sobek.Runtime, fn sobek.Value) (*sobek.Promise, error) {
	return a.tasks.PoolSubmit(rt, fn)
}

// PoolEmplace is PoolSubmit without a result.
func (a *App) PoolEmplace(fn sobek.Value) error { return a.tasks.PoolEmplace(fn) }

// IsThreadSafe reports whether the caller may touch the toolkit directly.
// The host loop never runs on the UI thread, so it is always false there.
func (a *App) IsThreadSafe() bool { return false }

// NativeHandle returns the backend's native pointer, or nil.
func (a *App) NativeHandle() unsafe.Pointer { return a.native.NativeHandle() }

// RegisterScheme validates name and records it as a custom scheme of the
// application. The bundled backends accept handlers for any valid scheme, so
// registration is a declaration only; AppWindow declares its scheme here.
func (a *App) RegisterScheme(name string) error {
	if !validScheme(name) {
		return fmt.Errorf("%w: %q", ErrSchemeName, name)
	}
	for _, s := range a.schemes {
		if s == name {
			return nil
		}
	}
	a.schemes = append(a.schemes, name)
	a.log.Debug().Str("scheme", name).Msg("scheme registered")
	return nil
}

// Schemes returns the registered scheme names.
func (a *App) Schemes() []string { return append([]string(nil), a.schemes...) }

func validScheme(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
		case i > 0 && (r >= '0' && r <= '9' || r == '+' || r == '-' || r == '.'):
		default:
			return false
		}
	}
	return true
}

// Event implements native.Sink.
func (a *App) Event(h native.Handle, ev native.Event) {
	if w, ok := a.views.Lookup(h); ok {
		w.events.Emit(ev)
	}
}

// Policy implements native.Sink. Events for unknown handles are allowed.
func (a *App) Policy(h native.Handle, ev native.Event) bool {
	w, ok := a.views.Lookup(h)
	if !ok {
		return true
	}
	return w.events.Evaluate(ev)
}

// Message implements native.Sink.
func (a *App) Message(h native.Handle, msg string) bool {
	w, ok := a.views.Lookup(h)
	if !ok {
		return false
	}
	return w.deliver(msg)
}
