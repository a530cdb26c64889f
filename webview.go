package glazejs

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/grafana/sobek"
	"github.com/rs/zerolog"

	"github.com/crgimenes/glazejs/internal/events"
	"github.com/crgimenes/glazejs/internal/host"
	"github.com/crgimenes/glazejs/internal/jsonv"
	"github.com/crgimenes/glazejs/internal/logging"
	"github.com/crgimenes/glazejs/internal/native"
	"github.com/crgimenes/glazejs/internal/rpc"
	"github.com/crgimenes/glazejs/internal/scheme"
)

// WebviewOptions configures a new webview.
type WebviewOptions struct {
	Title  string `json:"title"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Debug  bool   `json:"debug"`
	Hidden bool   `json:"hidden"`

	// Preload is injected at creation time into every page.
	Preload string `json:"preload"`
}

// Webview is a window hosting a web page, bound to the application's host
// loop.
type Webview struct {
	app *App
	nv  native.Webview
	h   native.Handle
	log zerolog.Logger

	events  *events.Registry
	rpc     *rpc.Table
	schemes *scheme.Handlers

	mu        sync.Mutex
	onMessage *host.Invoker
	typed     *RPC
	destroyed bool
}

// NewWebview creates a window and registers it with the application.
func (a *App) NewWebview(opts WebviewOptions) (*Webview, error) {
	d := a.defaults
	if opts.Title == "" {
		opts.Title = d.Title
	}
	if opts.Width <= 0 {
		opts.Width = cmp.Or(max(d.Width, 0), 800)
	}
	if opts.Height <= 0 {
		opts.Height = cmp.Or(max(d.Height, 0), 600)
	}
	opts.Debug = opts.Debug || d.Debug
	nv, err := a.native.NewWebview(native.Options{
		Title:  opts.Title,
		Width:  opts.Width,
		Height: opts.Height,
		Debug:  opts.Debug,
		Hidden: opts.Hidden,
	}, a)
	if err != nil {
		return nil, fmt.Errorf("new webview: %w", err)
	}

	h := nv.Handle()
	log := a.log.With().Uint64("handle", uint64(h)).Logger()
	w := &Webview{
		app:     a,
		nv:      nv,
		h:       h,
		log:     log,
		events:  events.New(a.loop, nv, logging.Component(log, "events")),
		rpc:     rpc.NewTable(a.loop, logging.Component(log, "rpc")),
		schemes: scheme.New(logging.Component(log, "scheme")),
	}
	if !a.views.Add(h, w) {
		nv.Destroy()
		return nil, fmt.Errorf("new webview: handle %d already registered", h)
	}
	if opts.Preload != "" {
		nv.Inject(native.Script{Code: opts.Preload, Time: native.InjectCreation, Permanent: true})
	}
	log.Debug().Str("title", opts.Title).Msg("webview ready")
	return w, nil
}

// Handle returns the native handle.
func (w *Webview) Handle() native.Handle { return w.h }

// Native returns the toolkit webview.
func (w *Webview) Native() native.Webview { return w.nv }

// App returns the owning application.
func (w *Webview) App() *App { return w.app }

// Destroyed reports whether Destroy has run.
func (w *Webview) Destroyed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.destroyed
}

func (w *Webview) check() error {
	if w.Destroyed() {
		return ErrDestroyed
	}
	return nil
}

// Get reads a window or webview property.
func (w *Webview) Get(p native.Property) (any, error) {
	if err := w.check(); err != nil {
		return nil, err
	}
	return w.nv.Get(p)
}

// Set writes a window or webview property.
func (w *Webview) Set(p native.Property, v any) error {
	if err := w.check(); err != nil {
		return err
	}
	return w.nv.Set(p, v)
}

// SetTitle sets the window title.
func (w *Webview) SetTitle(title string) error { return w.Set(native.PropTitle, title) }

// SetSize sets the window size.
func (w *Webview) SetSize(width, height int) error {
	return w.Set(native.PropSize, native.Size{Width: width, Height: height})
}

// SetIcon sets the window icon from encoded image data.
func (w *Webview) SetIcon(icon []byte) error { return w.Set(native.PropIcon, icon) }

// URL returns the current page URL.
func (w *Webview) URL() (string, error) {
	v, err := w.Get(native.PropURL)
	if err != nil {
		return "", err
	}
	s, _ := v.(string)
	return s, nil
}

// act runs a native action unless the webview is gone.
func (w *Webview) act(fn func(native.Webview)) error {
	if err := w.check(); err != nil {
		return err
	}
	fn(w.nv)
	return nil
}

func (w *Webview) Show() error  { return w.act(native.Webview.Show) }
func (w *Webview) Hide() error  { return w.act(native.Webview.Hide) }
func (w *Webview) Focus() error { return w.act(native.Webview.Focus) }

// Close asks the window to close. Close handlers may veto it.
func (w *Webview) Close() error { return w.act(native.Webview.Close) }

// StartDrag lets the pointer move the window. Call it while a button is
// held, as a custom title bar does.
func (w *Webview) StartDrag() error {
	if err := w.check(); err != nil {
		return err
	}
	return w.nv.StartDrag()
}

// StartResize lets the pointer resize the window from edge. Zero selects the
// bottom-right corner.
func (w *Webview) StartResize(edge native.Edge) error {
	if edge == 0 {
		edge = native.EdgeDefault
	}
	if !edge.Valid() {
		return fmt.Errorf("%w: %d", ErrResizeEdge, int(edge))
	}
	if err := w.check(); err != nil {
		return err
	}
	return w.nv.StartResize(edge)
}

func (w *Webview) Reload() error  { return w.act(native.Webview.Reload) }
func (w *Webview) Back() error    { return w.act(native.Webview.Back) }
func (w *Webview) Forward() error { return w.act(native.Webview.Forward) }

// Navigate loads url.
func (w *Webview) Navigate(url string) error {
	return w.act(func(nv native.Webview) { nv.Navigate(url) })
}

// SetFile loads a local file.
func (w *Webview) SetFile(path string) error {
	if err := w.check(); err != nil {
		return err
	}
	return w.nv.SetFile(path)
}

// LoadHTML loads html as a data URL.
func (w *Webview) LoadHTML(html string) error {
	return w.act(func(nv native.Webview) { nv.LoadHTML(html) })
}

// On subscribes fn to the named event. It runs on the loop goroutine.
func (w *Webview) On(name string, fn sobek.Value) error {
	if err := w.check(); err != nil {
		return err
	}
	return w.events.Register(name, fn, false)
}

// Once subscribes fn for a single occurrence.
func (w *Webview) Once(name string, fn sobek.Value) error {
	if err := w.check(); err != nil {
		return err
	}
	return w.events.Register(name, fn, true)
}

// Off removes fn from name, or every subscription when fn is undefined.
func (w *Webview) Off(name string, fn sobek.Value) int {
	if fn == nil || sobek.IsUndefined(fn) {
		n := w.events.Len(name)
		w.events.OffAll(name)
		return n
	}
	return w.events.Off(name, fn)
}

// Expose makes a host function callable from the page as name.
func (w *Webview) Expose(name string, fn sobek.Value) error {
	if err := w.check(); err != nil {
		return err
	}
	if err := w.rpc.Expose(name, fn); err != nil {
		return err
	}
	return w.bind(name)
}

// ExposeFunc makes a Go function callable from the page as name. Its
// arguments are decoded from JSON and it may return a value, an error or
// both.
func (w *Webview) ExposeFunc(name string, f any) error {
	if err := w.check(); err != nil {
		return err
	}
	if err := w.rpc.ExposeFunc(name, f); err != nil {
		return err
	}
	return w.bind(name)
}

func (w *Webview) bind(name string) error {
	if err := w.nv.Expose(name, w.rpc.Handler(name)); err != nil {
		w.rpc.Clear(name)
		return fmt.Errorf("expose %s: %w", name, err)
	}
	return nil
}

// ClearExposed removes name, or everything when name is empty.
func (w *Webview) ClearExposed(name string) {
	if name == "" {
		for _, n := range w.rpc.ClearAll() {
			w.nv.Unexpose(n)
		}
		return
	}
	if w.rpc.Clear(name) > 0 {
		w.nv.Unexpose(name)
	}
}

// Execute runs code in the page. Each arg is a JSON value substituted for
// the matching {} placeholder.
func (w *Webview) Execute(code string, args ...json.RawMessage) error {
	src, err := format(code, args)
	if err != nil {
		return err
	}
	return w.act(func(nv native.Webview) { nv.Execute(src) })
}

// Evaluate runs code in the page and returns the future JSON of its value.
func (w *Webview) Evaluate(code string, args ...json.RawMessage) (*native.Future, error) {
	src, err := format(code, args)
	if err != nil {
		return nil, err
	}
	if err := w.check(); err != nil {
		return nil, err
	}
	return w.nv.Evaluate(src), nil
}

// EvaluateValue is Evaluate that waits and decodes the result into out.
func (w *Webview) EvaluateValue(ctx context.Context, out any, code string, args ...json.RawMessage) error {
	f, err := w.Evaluate(code, args...)
	if err != nil {
		return err
	}
	raw, err := f.Await(ctx)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

// evaluatePromise bridges Evaluate to a host promise. It runs on the loop
// goroutine; the result is parsed back on the loop.
func (w *Webview) evaluatePromise(rt *sobek.Runtime, code string, args []json.RawMessage) (*sobek.Promise, error) {
	f, err := w.Evaluate(code, args...)
	if err != nil {
		return nil, err
	}
	d, p := host.NewDeferred(w.app.loop, rt)
	go func() {
		<-f.Done()
		raw, ferr := f.Await(context.Background())
		err := d.Settle(func(rt *sobek.Runtime) (sobek.Value, error) {
			if ferr != nil {
				return nil, ferr
			}
			return jsonv.Parse(rt, raw)
		})
		if err != nil {
			w.log.Debug().Err(err).Msg("evaluation result dropped")
		}
	}()
	return p, nil
}

func format(code string, args []json.RawMessage) (string, error) {
	if len(args) > native.MaxScriptArgs {
		return "", native.ErrTooManyArgs
	}
	strs := make([]string, len(args))
	for i, a := range args {
		strs[i] = string(a)
	}
	return native.Format(code, strs...)
}

// HandleScheme serves the name scheme with a host callback.
func (w *Webview) HandleScheme(name string, fn sobek.Value, policy native.LaunchPolicy) error {
	if err := w.check(); err != nil {
		return err
	}
	h, err := scheme.NewJSHandler(w.app.loop, fn)
	if err != nil {
		return err
	}
	return w.HandleSchemeWith(name, h, policy)
}

// HandleSchemeWith serves the name scheme with a Go handler.
func (w *Webview) HandleSchemeWith(name string, h scheme.Handler, policy native.LaunchPolicy) error {
	if !validScheme(name) {
		h.Release()
		return fmt.Errorf("%w: %q", ErrSchemeName, name)
	}
	if err := w.check(); err != nil {
		h.Release()
		return err
	}
	if !w.schemes.Add(name, h) {
		h.Release()
		return ErrDestroyed
	}
	if err := w.nv.HandleScheme(name, w.schemes.Serve, policy); err != nil {
		w.schemes.Remove(name)
		return fmt.Errorf("handle scheme %s: %w", name, err)
	}
	return nil
}

// RemoveScheme stops serving name.
func (w *Webview) RemoveScheme(name string) {
	if w.schemes.Remove(name) > 0 {
		w.nv.RemoveScheme(name)
	}
}

// Inject adds a script run on every page load.
func (w *Webview) Inject(s native.Script) error {
	return w.act(func(nv native.Webview) { nv.Inject(s) })
}

// ClearScripts removes injected scripts that are not permanent.
func (w *Webview) ClearScripts() error { return w.act(native.Webview.ClearScripts) }

// Embed makes files servable to the page.
func (w *Webview) Embed(files map[string]native.EmbeddedFile, policy native.LaunchPolicy) error {
	if err := w.check(); err != nil {
		return err
	}
	return w.nv.Embed(files, policy)
}

// Serve navigates to an embedded file.
func (w *Webview) Serve(name string) error {
	if err := w.check(); err != nil {
		return err
	}
	return w.nv.Serve(name)
}

// ClearEmbedded removes an embedded file, or all of them when name is empty.
func (w *Webview) ClearEmbedded(name string) error {
	return w.act(func(nv native.Webview) { nv.ClearEmbedded(name) })
}

// OnMessage installs the handler for page messages, replacing any previous
// one. An undefined fn removes it.
func (w *Webview) OnMessage(fn sobek.Value) error {
	if err := w.check(); err != nil {
		return err
	}
	var inv *host.Invoker
	if fn != nil && !sobek.IsUndefined(fn) && !sobek.IsNull(fn) {
		var err error
		if inv, err = host.NewInvoker(w.app.loop, fn); err != nil {
			return err
		}
	}
	w.mu.Lock()
	old := w.onMessage
	w.onMessage = inv
	w.mu.Unlock()
	if old != nil {
		old.Release()
	}
	return nil
}

// deliver hands a page message to the host without waiting. It reports
// whether the message was dispatched.
func (w *Webview) deliver(msg string) bool {
	w.mu.Lock()
	inv := w.onMessage
	w.mu.Unlock()
	if inv == nil {
		return false
	}
	err := inv.CallAsync(func(rt *sobek.Runtime) []sobek.Value {
		return []sobek.Value{rt.ToValue(msg)}
	})
	return err == nil
}

// Destroy tears the webview down: the handle is unregistered first so no new
// native traffic reaches it, then every host callback is released and pending
// page calls are rejected.
func (w *Webview) Destroy() {
	w.mu.Lock()
	if w.destroyed {
		w.mu.Unlock()
		return
	}
	w.destroyed = true
	msg := w.onMessage
	w.onMessage = nil
	w.mu.Unlock()

	w.app.views.Remove(w.h)
	w.events.Close()
	for _, name := range w.rpc.ClearAll() {
		w.nv.Unexpose(name)
	}
	w.rpc.Close()
	w.schemes.Close()
	if msg != nil {
		msg.Release()
	}
	w.nv.Destroy()
	w.log.Debug().Msg("webview destroyed")
}
