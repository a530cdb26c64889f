package sim

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/rs/zerolog"

	"github.com/crgimenes/glazejs/internal/native"
)

type schemeEntry struct {
	name   string
	fn     native.SchemeFunc
	policy native.LaunchPolicy
}

type state struct {
	visible      bool
	focused      bool
	minimized    bool
	maximized    bool
	resizable    bool
	decorations  bool
	alwaysOnTop  bool
	clickThrough bool
	fullscreen   bool
	devTools     bool
	contextMenu  bool
	forceDark    bool
	title        string
	size         native.Size
	maxSize      native.Size
	minSize      native.Size
	position     native.Point
	zoom         float64
	url          string
	pageTitle    string
	favicon      []byte
	icon         []byte
	background   native.Color
}

// errNotResizable rejects resizes of a fixed-size window.
var errNotResizable = errors.New("sim: window is not resizable")

// errPageUnloaded fails evaluations whose page was replaced before they
// settled.
var errPageUnloaded = errors.New("sim: page unloaded before the evaluation settled")

var (
	_ native.App     = (*App)(nil)
	_ native.Webview = (*Webview)(nil)
)

// Webview is a simulated window/webview pair.
type Webview struct {
	app  *App
	h    native.Handle
	sink native.Sink
	log  zerolog.Logger

	subs native.Subscriptions

	mu        sync.Mutex
	st        state
	exposed   map[string]native.RPCFunc
	schemes   []schemeEntry
	scripts   []native.Script
	embedded  map[string]native.EmbeddedFile
	history   []string
	pos       int
	destroyed bool

	// drags and resizes record pointer grabs; the simulated window has no
	// pointer to follow.
	drags   int
	resizes []native.Edge

	// evals maps pending evaluations to the page awaiting them, nil until
	// the code has run.
	evals map[*native.Future]*page

	// UI goroutine only.
	page       *page
	navigation uint64
}

func newWebview(a *App, h native.Handle, opts native.Options, sink native.Sink) *Webview {
	w := &Webview{
		app:      a,
		h:        h,
		sink:     sink,
		log:      a.log.With().Uint64("handle", uint64(h)).Logger(),
		exposed:  make(map[string]native.RPCFunc),
		embedded: make(map[string]native.EmbeddedFile),
		evals:    make(map[*native.Future]*page),
		pos:      -1,
		st: state{
			visible:     !opts.Hidden,
			resizable:   true,
			decorations: true,
			contextMenu: true,
			devTools:    opts.Debug,
			title:       opts.Title,
			size:        native.Size{Width: opts.Width, Height: opts.Height},
			zoom:        1,
			url:         "about:blank",
			background:  native.Color{R: 255, G: 255, B: 255, A: 255},
		},
	}
	return w
}

// Handle implements native.Webview.
func (w *Webview) Handle() native.Handle { return w.h }

// Subscribe implements native.Subscriber.
func (w *Webview) Subscribe(name native.Name, once bool) (uint64, error) {
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
	st := &w.st
	switch p {
	case native.PropVisible:
		return st.visible, nil
	case native.PropFocused:
		return st.focused, nil
	case native.PropMinimized:
		return st.minimized, nil
	case native.PropMaximized:
		return st.maximized, nil
	case native.PropResizable:
		return st.resizable, nil
	case native.PropDecorations:
		return st.decorations, nil
	case native.PropAlwaysOnTop:
		return st.alwaysOnTop, nil
	case native.PropClickThrough:
		return st.clickThrough, nil
	case native.PropFullscreen:
		return st.fullscreen, nil
	case native.PropDevTools:
		return st.devTools, nil
	case native.PropContextMenu:
		return st.contextMenu, nil
	case native.PropForceDarkMode:
		return st.forceDark, nil
	case native.PropTitle:
		return st.title, nil
	case native.PropSize:
		return st.size, nil
	case native.PropMaxSize:
		return st.maxSize, nil
	case native.PropMinSize:
		return st.minSize, nil
	case native.PropPosition:
		return st.position, nil
	case native.PropZoom:
		return st.zoom, nil
	case native.PropURL:
		return st.url, nil
	case native.PropPageTitle:
		return st.pageTitle, nil
	case native.PropFavicon:
		return slices.Clone(st.favicon), nil
	case native.PropIcon:
		return slices.Clone(st.icon), nil
	case native.PropBackgroundColor:
		return st.background, nil
	default:
		return nil, fmt.Errorf("get %s: %w", p, native.ErrUnsupported)
	}
}

// Set implements native.Webview. State changes are visible immediately; the
// events they cause are raised from the UI goroutine.
func (w *Webview) Set(p native.Property, v any) error {
	w.mu.Lock()
	if w.destroyed {
		w.mu.Unlock()
		return native.ErrDestroyed
	}
	ev, err := w.apply(p, v)
	w.mu.Unlock()
	if err != nil {
		return err
	}
	if ev != nil {
		return w.app.Post(func() { w.fire(ev) })
	}
	return nil
}

// apply stores v and returns the event the change raises. Must be called
// with w.mu held.
//
//nolint:cyclop,funlen
func (w *Webview) apply(p native.Property, v any) (native.Event, error) {
	st := &w.st
	setBool := func(dst *bool) (bool, error) {
		b, ok := v.(bool)
		if !ok {
			return false, fmt.Errorf("set %s: want bool, got %T", p, v)
		}
		changed := *dst != b
		*dst = b
		return changed, nil
	}

	switch p {
	case native.PropMinimized:
		changed, err := setBool(&st.minimized)
		if err != nil || !changed {
			return nil, err
		}
		return native.Minimize{Minimized: st.minimized}, nil
	case native.PropMaximized:
		changed, err := setBool(&st.maximized)
		if err != nil || !changed {
			return nil, err
		}
		return native.Maximize{Maximized: st.maximized}, nil
	case native.PropDecorations:
		changed, err := setBool(&st.decorations)
		if err != nil || !changed {
			return nil, err
		}
		return native.Decorated{Decorated: st.decorations}, nil
	case native.PropVisible:
		_, err := setBool(&st.visible)
		return nil, err
	case native.PropResizable:
		_, err := setBool(&st.resizable)
		return nil, err
	case native.PropAlwaysOnTop:
		_, err := setBool(&st.alwaysOnTop)
		return nil, err
	case native.PropClickThrough:
		_, err := setBool(&st.clickThrough)
		return nil, err
	case native.PropFullscreen:
		_, err := setBool(&st.fullscreen)
		return nil, err
	case native.PropDevTools:
		_, err := setBool(&st.devTools)
		return nil, err
	case native.PropContextMenu:
		_, err := setBool(&st.contextMenu)
		return nil, err
	case native.PropForceDarkMode:
		_, err := setBool(&st.forceDark)
		return nil, err
	case native.PropTitle:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("set %s: want string, got %T", p, v)
		}
		st.title = s
		return nil, nil
	case native.PropSize:
		s, ok := v.(native.Size)
		if !ok {
			return nil, fmt.Errorf("set %s: want Size, got %T", p, v)
		}
		s = clampSize(s, st.minSize, st.maxSize)
		if s == st.size {
			return nil, nil
		}
		st.size = s
		return native.Resize{Width: s.Width, Height: s.Height}, nil
	case native.PropMaxSize, native.PropMinSize:
		s, ok := v.(native.Size)
		if !ok {
			return nil, fmt.Errorf("set %s: want Size, got %T", p, v)
		}
		if p == native.PropMaxSize {
			st.maxSize = s
		} else {
			st.minSize = s
		}
		return nil, nil
	case native.PropPosition:
		pt, ok := v.(native.Point)
		if !ok {
			return nil, fmt.Errorf("set %s: want Point, got %T", p, v)
		}
		st.position = pt
		return nil, nil
	case native.PropZoom:
		z, ok := v.(float64)
		if !ok || z <= 0 {
			return nil, fmt.Errorf("set %s: want positive float64, got %v", p, v)
		}
		st.zoom = z
		return nil, nil
	case native.PropBackgroundColor:
		c, ok := v.(native.Color)
		if !ok {
			return nil, fmt.Errorf("set %s: want Color, got %T", p, v)
		}
		st.background = c
		return nil, nil
	case native.PropIcon:
		b, ok := v.([]byte)
		if !ok {
			return nil, fmt.Errorf("set %s: want []byte, got %T", p, v)
		}
		st.icon = slices.Clone(b)
		return nil, nil
	default:
		return nil, fmt.Errorf("set %s: %w", p, native.ErrUnsupported)
	}
}

func clampSize(s, lo, hi native.Size) native.Size {
	if lo.Width > 0 && s.Width < lo.Width {
		s.Width = lo.Width
	}
	if lo.Height > 0 && s.Height < lo.Height {
		s.Height = lo.Height
	}
	if hi.Width > 0 && s.Width > hi.Width {
		s.Width = hi.Width
	}
	if hi.Height > 0 && s.Height > hi.Height {
		s.Height = hi.Height
	}
	return s
}

// Show implements native.Webview.
func (w *Webview) Show() { _ = w.Set(native.PropVisible, true) }

// Hide implements native.Webview.
func (w *Webview) Hide() { _ = w.Set(native.PropVisible, false) }

// Focus implements native.Webview.
func (w *Webview) Focus() {
	w.ui(func() {
		w.mu.Lock()
		changed := !w.st.focused
		w.st.focused = true
		w.mu.Unlock()
		if changed {
			w.fire(native.Focus{Focused: true})
		}
	})
}

// StartDrag implements native.Webview.
func (w *Webview) StartDrag() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.destroyed {
		return native.ErrDestroyed
	}
	w.drags++
	return nil
}

// StartResize implements native.Webview.
func (w *Webview) StartResize(edge native.Edge) error {
	if !edge.Valid() {
		return fmt.Errorf("sim: invalid resize edge %d", int(edge))
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.destroyed {
		return native.ErrDestroyed
	}
	if !w.st.resizable {
		return errNotResizable
	}
	w.resizes = append(w.resizes, edge)
	return nil
}

// Close implements native.Webview. The close policy decides whether the
// window actually closes.
func (w *Webview) Close() { w.ui(w.requestClose) }

func (w *Webview) requestClose() {
	if !w.policy(native.Close{}) {
		w.log.Debug().Msg("close vetoed")
		return
	}
	w.mu.Lock()
	w.st.visible = false
	w.st.focused = false
	w.mu.Unlock()
	w.fire(native.Closed{})
}

// Navigate implements native.Webview.
func (w *Webview) Navigate(url string) {
	w.ui(func() { w.navigate(native.Navigation{URL: url}, true) })
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
func (w *Webview) Reload() {
	w.ui(func() {
		w.mu.Lock()
		url := w.st.url
		w.mu.Unlock()
		w.load(url, false)
	})
}

// Back implements native.Webview.
func (w *Webview) Back() { w.ui(func() { w.step(-1) }) }

// Forward implements native.Webview.
func (w *Webview) Forward() { w.ui(func() { w.step(1) }) }

func (w *Webview) step(delta int) {
	w.mu.Lock()
	next := w.pos + delta
	if next < 0 || next >= len(w.history) {
		w.mu.Unlock()
		return
	}
	w.pos = next
	url := w.history[next]
	w.mu.Unlock()
	w.load(url, false)
}

// Execute implements native.Webview.
func (w *Webview) Execute(code string) {
	w.ui(func() {
		if _, err := w.currentPage().rt.RunString(code); err != nil {
			w.log.Warn().Err(err).Msg("page script failed")
		}
	})
}

// Evaluate implements native.Webview.
func (w *Webview) Evaluate(code string) *native.Future {
	f := native.NewFuture()
	w.mu.Lock()
	if w.destroyed {
		w.mu.Unlock()
		f.Complete(nil, native.ErrDestroyed)
		return f
	}
	w.evals[f] = nil
	w.mu.Unlock()

	if !w.ui(func() { w.currentPage().evaluate(code, f) }) {
		w.settle(f, nil, native.ErrDestroyed)
	}
	return f
}

// settle completes a pending evaluation.
func (w *Webview) settle(f *native.Future, raw json.RawMessage, err error) {
	w.mu.Lock()
	delete(w.evals, f)
	w.mu.Unlock()
	f.Complete(raw, err)
}

// awaiting records that f waits on a promise of p.
func (w *Webview) awaiting(f *native.Future, p *page) {
	w.mu.Lock()
	if _, ok := w.evals[f]; ok {
		w.evals[f] = p
	}
	w.mu.Unlock()
}

// abandon fails the evaluations waiting on p, or every pending evaluation
// when p is nil.
func (w *Webview) abandon(p *page, err error) {
	w.mu.Lock()
	var stale []*native.Future
	for f, owner := range w.evals {
		if p == nil || owner == p {
			stale = append(stale, f)
			delete(w.evals, f)
		}
	}
	w.mu.Unlock()

	for _, f := range stale {
		f.Complete(nil, err)
	}
}

// Inject implements native.Webview.
func (w *Webview) Inject(s native.Script) {
	w.mu.Lock()
	w.scripts = append(w.scripts, s)
	w.mu.Unlock()
}

// ClearScripts implements native.Webview. Permanent scripts stay.
func (w *Webview) ClearScripts() {
	w.mu.Lock()
	kept := w.scripts[:0]
	for _, s := range w.scripts {
		if s.Permanent {
			kept = append(kept, s)
		}
	}
	w.scripts = kept
	w.mu.Unlock()
}

// Embed implements native.Webview.
func (w *Webview) Embed(files map[string]native.EmbeddedFile, _ native.LaunchPolicy) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for name, f := range files {
		w.embedded[name] = native.EmbeddedFile{Content: slices.Clone(f.Content), Mime: f.Mime}
	}
	return nil
}

// Serve implements native.Webview.
func (w *Webview) Serve(name string) error {
	w.mu.Lock()
	_, ok := w.embedded[name]
	w.mu.Unlock()
	if !ok {
		return fmt.Errorf("serve %q: %w", name, os.ErrNotExist)
	}
	w.Navigate(native.EmbeddedURL(name))
	return nil
}

// ClearEmbedded implements native.Webview. An empty name clears all files.
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
	w.exposed[name] = fn
	return nil
}

// Unexpose implements native.Webview.
func (w *Webview) Unexpose(name string) {
	w.mu.Lock()
	delete(w.exposed, name)
	w.mu.Unlock()
}

// HandleScheme implements native.Webview.
func (w *Webview) HandleScheme(name string, fn native.SchemeFunc, policy native.LaunchPolicy) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.destroyed {
		return native.ErrDestroyed
	}
	w.schemes = append(w.schemes, schemeEntry{name: name, fn: fn, policy: policy})
	return nil
}

// RemoveScheme implements native.Webview.
func (w *Webview) RemoveScheme(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.schemes = slices.DeleteFunc(w.schemes, func(e schemeEntry) bool { return e.name == name })
}

// Destroy implements native.Webview.
func (w *Webview) Destroy() {
	w.mu.Lock()
	if w.destroyed {
		w.mu.Unlock()
		return
	}
	w.destroyed = true
	clear(w.exposed)
	w.schemes = nil
	w.mu.Unlock()
	w.abandon(nil, native.ErrDestroyed)

	w.app.forget(w.h)
	_ = w.app.Post(func() {
		w.page = nil
		w.navigation++
	})
	w.log.Debug().Msg("webview destroyed")
}

func (w *Webview) isDestroyed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.destroyed
}

// ui posts fn unless the webview is gone.
func (w *Webview) ui(fn func()) bool {
	if w.isDestroyed() {
		return false
	}
	return w.app.Post(func() {
		if !w.isDestroyed() {
			fn()
		}
	}) == nil
}

// fire raises ev if anything subscribed to it. UI goroutine only.
func (w *Webview) fire(ev native.Event) {
	if w.isDestroyed() || !w.subs.Fire(ev.Name()) {
		return
	}
	w.sink.Event(w.h, ev)
}

// policy asks the host for a verdict. Unsubscribed events are allowed.
func (w *Webview) policy(ev native.Event) bool {
	if w.isDestroyed() || !w.subs.Fire(ev.Name()) {
		return true
	}
	return w.sink.Policy(w.h, ev)
}

func (w *Webview) currentPage() *page {
	if w.page == nil {
		w.page = newPage(w, "about:blank")
	}
	return w.page
}

func (w *Webview) exposedFunc(name string) (native.RPCFunc, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fn, ok := w.exposed[name]
	return fn, ok
}

func (w *Webview) message(msg string) bool {
	if w.isDestroyed() {
		return false
	}
	return w.sink.Message(w.h, msg)
}
