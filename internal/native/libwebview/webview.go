package libwebview

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/crgimenes/glazejs/internal/jsonv"
	"github.com/crgimenes/glazejs/internal/native"
)

// pageEvents are the events the bootstrap script can report.
var pageEvents = map[native.Name]bool{
	native.EventDOMReady:  true,
	native.EventNavigated: true,
	native.EventTitle:     true,
	native.EventLoad:      true,
}

// Webview is the single libwebview window.
type Webview struct {
	app  *App
	h    handle
	sink native.Sink
	log  zerolog.Logger

	subs native.Subscriptions

	mu        sync.Mutex
	title     string
	size      native.Size
	url       string
	pageTitle string
	bound     map[string]uintptr
	embedded  map[string]native.EmbeddedFile
	destroyed bool

	evalID  atomic.Uint64
	evalMu  sync.Mutex
	pending map[uint64]*native.Future
}

var _ native.Webview = (*Webview)(nil)

func newWebview(a *App, h handle, opts native.Options, sink native.Sink) *Webview {
	w := &Webview{
		app:      a,
		h:        h,
		sink:     sink,
		log:      a.log,
		title:    opts.Title,
		size:     native.Size{Width: opts.Width, Height: opts.Height},
		url:      "about:blank",
		bound:    make(map[string]uintptr),
		embedded: make(map[string]native.EmbeddedFile),
		pending:  make(map[uint64]*native.Future),
	}

	internal := map[string]uintptr{
		bindEvent:   register(w.onPageEvent),
		bindMessage: register(w.onMessage),
		bindResult:  register(w.onResult),
	}
	h.dispatch(func() {
		for name, key := range internal {
			h.bind(name, key)
		}
		h.init(bootstrap)
		if opts.Title != "" {
			h.setTitle(opts.Title)
		}
		if opts.Width > 0 && opts.Height > 0 {
			h.setSize(opts.Width, opts.Height, HintNone)
		}
	})
	return w
}

// Handle implements native.Webview. There is only ever one window.
func (w *Webview) Handle() native.Handle { return 1 }

// Subscribe implements native.Subscriber.
func (w *Webview) Subscribe(name native.Name, once bool) (uint64, error) {
	if !pageEvents[name] {
		return 0, fmt.Errorf("%s: %w", name, native.ErrUnsupported)
	}
	return w.subs.Subscribe(name, once)
}

// Unsubscribe implements native.Subscriber.
func (w *Webview) Unsubscribe(name native.Name, id uint64) { w.subs.Unsubscribe(name, id) }

// ClearEvent implements native.Subscriber.
func (w *Webview) ClearEvent(name native.Name) { w.subs.ClearEvent(name) }

// Get implements native.Webview.
func (w *Webview) Get(p native.Property) (any, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.destroyed {
		return nil, native.ErrDestroyed
	}
	switch p {
	case native.PropTitle:
		return w.title, nil
	case native.PropSize:
		return w.size, nil
	case native.PropURL:
		return w.url, nil
	case native.PropPageTitle:
		return w.pageTitle, nil
	case native.PropVisible:
		return true, nil
	default:
		return nil, fmt.Errorf("get %s: %w", p, native.ErrUnsupported)
	}
}

// Set implements native.Webview.
func (w *Webview) Set(p native.Property, v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.destroyed {
		return native.ErrDestroyed
	}

	switch p {
	case native.PropTitle:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("set %s: want string, got %T", p, v)
		}
		w.title = s
		w.h.dispatch(func() { w.h.setTitle(s) })
	case native.PropSize, native.PropMinSize, native.PropMaxSize:
		s, ok := v.(native.Size)
		if !ok {
			return fmt.Errorf("set %s: want Size, got %T", p, v)
		}
		hint := map[native.Property]Hint{
			native.PropSize:    HintNone,
			native.PropMinSize: HintMin,
			native.PropMaxSize: HintMax,
		}[p]
		if p == native.PropSize {
			w.size = s
		}
		w.h.dispatch(func() { w.h.setSize(s.Width, s.Height, hint) })
	case native.PropResizable:
		b, ok := v.(bool)
		if !ok {
			return fmt.Errorf("set %s: want bool, got %T", p, v)
		}
		hint, size := HintNone, w.size
		if !b {
			hint = HintFixed
		}
		w.h.dispatch(func() { w.h.setSize(size.Width, size.Height, hint) })
	default:
		return fmt.Errorf("set %s: %w", p, native.ErrUnsupported)
	}
	return nil
}

// Show implements native.Webview. The window is always shown.
func (w *Webview) Show() {}

// Hide implements native.Webview.
func (w *Webview) Hide() { w.log.Debug().Msg("hide is not supported by libwebview") }

// Focus implements native.Webview.
func (w *Webview) Focus() {}

// StartDrag implements native.Webview. The C library has no pointer grab.
func (w *Webview) StartDrag() error {
	return fmt.Errorf("start drag: %w", native.ErrUnsupported)
}

// StartResize implements native.Webview.
func (w *Webview) StartResize(native.Edge) error {
	return fmt.Errorf("start resize: %w", native.ErrUnsupported)
}

// Close implements native.Webview. Closing the only window ends the loop.
func (w *Webview) Close() { w.app.Quit() }

// Navigate implements native.Webview.
func (w *Webview) Navigate(url string) {
	w.post(func() { w.h.navigate(url) })
}

// SetFile implements native.Webview.
func (w *Webview) SetFile(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(abs); err != nil {
		return fmt.Errorf("set file: %w", err)
	}
	w.Navigate("file://" + filepath.ToSlash(abs))
	return nil
}

// LoadHTML implements native.Webview.
func (w *Webview) LoadHTML(html string) {
	w.Navigate("data:text/html;base64," + base64.StdEncoding.EncodeToString([]byte(html)))
}

// Reload implements native.Webview.
func (w *Webview) Reload() { w.Execute("location.reload()") }

// Back implements native.Webview.
func (w *Webview) Back() { w.Execute("history.back()") }

// Forward implements native.Webview.
func (w *Webview) Forward() { w.Execute("history.forward()") }

// Execute implements native.Webview.
func (w *Webview) Execute(code string) {
	w.post(func() { w.h.eval(code) })
}

// Evaluate implements native.Webview.
func (w *Webview) Evaluate(code string) *native.Future {
	f := native.NewFuture()
	id := w.evalID.Add(1)

	w.evalMu.Lock()
	w.pending[id] = f
	w.evalMu.Unlock()

	if !w.post(func() { w.h.eval(evaluateScript(id, code)) }) {
		w.settle(id, nil, native.ErrDestroyed)
	}
	return f
}

// Inject implements native.Webview. Frame selection is not available.
func (w *Webview) Inject(s native.Script) {
	code := s.Code
	if s.Time == native.InjectReady {
		code = readyScript(code)
	}
	w.post(func() { w.h.init(code) })
}

// ClearScripts implements native.Webview. Injected scripts cannot be removed
// from the C library, so this only logs.
func (w *Webview) ClearScripts() {
	w.log.Debug().Msg("clear scripts is not supported by libwebview")
}

// Embed implements native.Webview. Only HTML files can be served.
func (w *Webview) Embed(files map[string]native.EmbeddedFile, _ native.LaunchPolicy) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for name, f := range files {
		w.embedded[name] = f
	}
	return nil
}

// Serve implements native.Webview by loading the file's HTML directly.
func (w *Webview) Serve(name string) error {
	w.mu.Lock()
	f, ok := w.embedded[name]
	w.mu.Unlock()
	if !ok {
		return fmt.Errorf("serve %q: %w", name, os.ErrNotExist)
	}
	if f.Mime != "" && !strings.HasPrefix(f.Mime, "text/html") {
		return fmt.Errorf("serve %q (%s): %w", name, f.Mime, native.ErrUnsupported)
	}
	html := string(f.Content)
	w.post(func() { w.h.setHTML(html) })
	return nil
}

// ClearEmbedded implements native.Webview.
func (w *Webview) ClearEmbedded(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if name == "" {
		clear(w.embedded)
		return
	}
	delete(w.embedded, name)
}

// Expose implements native.Webview.
func (w *Webview) Expose(name string, fn native.RPCFunc) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.destroyed {
		return native.ErrDestroyed
	}
	old, rebind := w.bound[name]
	key := register(func(id, req string) {
		fn(json.RawMessage(req), &executor{h: w.h, id: id})
	})
	w.bound[name] = key
	w.h.dispatch(func() {
		if rebind {
			w.h.unbind(name, old)
		}
		w.h.bind(name, key)
	})
	return nil
}

// Unexpose implements native.Webview.
func (w *Webview) Unexpose(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if key, ok := w.bound[name]; ok {
		delete(w.bound, name)
		w.h.dispatch(func() { w.h.unbind(name, key) })
	}
}

// HandleScheme implements native.Webview.
func (w *Webview) HandleScheme(name string, _ native.SchemeFunc, _ native.LaunchPolicy) error {
	return fmt.Errorf("scheme %q: %w", name, native.ErrUnsupported)
}

// RemoveScheme implements native.Webview.
func (w *Webview) RemoveScheme(string) {}

// Destroy implements native.Webview. The window itself is destroyed when the
// native loop returns.
func (w *Webview) Destroy() {
	w.mu.Lock()
	if w.destroyed {
		w.mu.Unlock()
		return
	}
	w.destroyed = true
	bound := w.bound
	w.bound = make(map[string]uintptr)
	w.h.dispatch(func() {
		for name, key := range bound {
			w.h.unbind(name, key)
		}
	})
	w.mu.Unlock()

	w.evalMu.Lock()
	pending := w.pending
	w.pending = make(map[uint64]*native.Future)
	w.evalMu.Unlock()
	for _, f := range pending {
		f.Complete(nil, native.ErrDestroyed)
	}
	w.app.Quit()
}

func (w *Webview) isDestroyed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.destroyed
}

func (w *Webview) post(fn func()) bool {
	if w.isDestroyed() {
		return false
	}
	return w.app.Post(fn) == nil
}

func (w *Webview) onPageEvent(id, req string) {
	w.h.complete(id, 0, string(jsonv.Null))
	ev, err := pageEvent(req)
	if err != nil {
		w.log.Debug().Err(err).Msg("bad page event")
		return
	}

	w.mu.Lock()
	switch e := ev.(type) {
	case native.Navigated:
		w.url = e.URL
	case native.Title:
		w.pageTitle = e.Title
	}
	w.mu.Unlock()

	if !w.isDestroyed() && w.subs.Fire(ev.Name()) {
		w.sink.Event(w.Handle(), ev)
	}
}

func (w *Webview) onMessage(id, req string) {
	ok := !w.isDestroyed() && w.sink.Message(w.Handle(), message(req))
	w.h.complete(id, 0, fmt.Sprint(ok))
}

func (w *Webview) onResult(id, req string) {
	w.h.complete(id, 0, string(jsonv.Null))
	evalID, ok, text, err := evalResult(req)
	if err != nil {
		w.log.Debug().Err(err).Msg("bad evaluation result")
		return
	}
	if ok {
		w.settle(evalID, json.RawMessage(text), nil)
		return
	}
	w.settle(evalID, nil, errors.New(text))
}

func (w *Webview) settle(id uint64, v json.RawMessage, err error) {
	w.evalMu.Lock()
	f := w.pending[id]
	delete(w.pending, id)
	w.evalMu.Unlock()
	if f != nil {
		f.Complete(v, err)
	}
}

// executor answers one bound call through webview_return.
type executor struct {
	h    handle
	id   string
	once sync.Once
}

func (e *executor) Resolve(result json.RawMessage) {
	e.once.Do(func() { e.h.complete(e.id, 0, string(result)) })
}

func (e *executor) Reject(reason string) {
	e.once.Do(func() { e.h.complete(e.id, 1, reason) })
}
