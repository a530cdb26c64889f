package sim

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/grafana/sobek"
	"github.com/rs/zerolog"

	"github.com/crgimenes/glazejs/internal/jsonv"
	"github.com/crgimenes/glazejs/internal/native"
)

// page is one loaded document and its script runtime. It is only touched on
// the UI goroutine.
type page struct {
	w   *Webview
	rt  *sobek.Runtime
	url string
	log zerolog.Logger

	timers    map[int64]*time.Timer
	nextTimer int64
}

func newPage(w *Webview, url string) *page {
	p := &page{
		w:      w,
		rt:     sobek.New(),
		url:    url,
		log:    w.log.With().Str("component", "page").Logger(),
		timers: make(map[int64]*time.Timer),
	}
	p.install()
	return p
}

func (p *page) current() bool { return p.w.page == p && !p.w.isDestroyed() }

// run executes code, logging uncaught exceptions the way a console would.
func (p *page) run(code string) {
	if _, err := p.rt.RunString(code); err != nil {
		p.log.Warn().Err(err).Msg("uncaught exception")
	}
}

func (p *page) install() {
	rt := p.rt
	global := rt.GlobalObject()
	_ = global.Set("window", global)
	_ = global.Set("self", global)

	glaze := rt.NewObject()
	_ = glaze.Set("call", p.call)
	_ = glaze.Set("postMessage", func(c sobek.FunctionCall) sobek.Value {
		msg := c.Argument(0)
		text := msg.String()
		if sobek.IsUndefined(msg) {
			text = ""
		}
		return rt.ToValue(p.w.message(text))
	})
	_ = global.Set("glaze", glaze)

	document := rt.NewObject()
	_ = document.DefineAccessorProperty("title",
		rt.ToValue(func(sobek.FunctionCall) sobek.Value { return rt.ToValue(p.title()) }),
		rt.ToValue(func(c sobek.FunctionCall) sobek.Value {
			p.setTitle(c.Argument(0).String())
			return sobek.Undefined()
		}),
		sobek.FLAG_FALSE, sobek.FLAG_TRUE)
	_ = document.DefineAccessorProperty("URL",
		rt.ToValue(func(sobek.FunctionCall) sobek.Value { return rt.ToValue(p.url) }),
		nil, sobek.FLAG_FALSE, sobek.FLAG_TRUE)
	_ = global.Set("document", document)

	location := rt.NewObject()
	_ = location.DefineAccessorProperty("href",
		rt.ToValue(func(sobek.FunctionCall) sobek.Value { return rt.ToValue(p.url) }),
		rt.ToValue(func(c sobek.FunctionCall) sobek.Value {
			p.open(c.Argument(0).String(), false)
			return sobek.Undefined()
		}),
		sobek.FLAG_FALSE, sobek.FLAG_TRUE)
	_ = location.Set("assign", func(c sobek.FunctionCall) sobek.Value {
		p.open(c.Argument(0).String(), false)
		return sobek.Undefined()
	})
	_ = location.Set("reload", func(sobek.FunctionCall) sobek.Value {
		p.w.load(p.url, false)
		return sobek.Undefined()
	})
	_ = global.Set("location", location)

	_ = global.Set("open", func(c sobek.FunctionCall) sobek.Value {
		p.open(c.Argument(0).String(), true)
		return sobek.Null()
	})
	_ = global.Set("close", func(sobek.FunctionCall) sobek.Value {
		p.w.requestClose()
		return sobek.Undefined()
	})

	_ = global.Set("setTimeout", p.setTimeout)
	_ = global.Set("clearTimeout", func(c sobek.FunctionCall) sobek.Value {
		id := c.Argument(0).ToInteger()
		if t, ok := p.timers[id]; ok {
			t.Stop()
			delete(p.timers, id)
		}
		return sobek.Undefined()
	})
	_ = global.Set("fetch", p.fetch)
	_ = global.Set("console", p.console())
}

func (p *page) title() string {
	p.w.mu.Lock()
	defer p.w.mu.Unlock()
	return p.w.st.pageTitle
}

// setTitle stores the document title and raises the title event on change.
func (p *page) setTitle(title string) {
	if !p.current() {
		return
	}
	p.w.mu.Lock()
	changed := p.w.st.pageTitle != title
	p.w.st.pageTitle = title
	p.w.mu.Unlock()
	if changed {
		p.w.fire(native.Title{Title: title})
	}
}

// open starts a page-initiated navigation.
func (p *page) open(target string, newWindow bool) {
	if !p.current() {
		return
	}
	p.w.navigate(native.Navigation{
		URL:           resolveURL(p.url, target),
		NewWindow:     newWindow,
		UserInitiated: true,
	}, true)
}

// call implements glaze.call(name, ...args).
func (p *page) call(c sobek.FunctionCall) sobek.Value {
	rt := p.rt
	promise, resolve, reject := rt.NewPromise()

	name := c.Argument(0).String()
	fn, ok := p.w.exposedFunc(name)
	if !ok {
		reject(rt.NewTypeError(fmt.Sprintf("%s is not exposed", name)))
		return rt.ToValue(promise)
	}

	var args []sobek.Value
	if len(c.Arguments) > 1 {
		args = c.Arguments[1:]
	}
	params, err := jsonv.Stringify(rt, rt.NewArray(toAny(args)...))
	if err != nil {
		reject(rt.NewTypeError(err.Error()))
		return rt.ToValue(promise)
	}

	exec := &pageExecutor{
		p:       p,
		resolve: func(v any) { resolve(v) },
		reject:  func(v any) { reject(v) },
	}
	fn(params, exec)
	return rt.ToValue(promise)
}

func toAny(values []sobek.Value) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

// pageExecutor settles a glaze.call promise on the UI goroutine.
type pageExecutor struct {
	p       *page
	once    sync.Once
	resolve func(any)
	reject  func(any)
}

func (e *pageExecutor) Resolve(result json.RawMessage) {
	e.settle(result, e.resolve)
}

func (e *pageExecutor) Reject(reason string) {
	e.settle(json.RawMessage(reason), e.reject)
}

func (e *pageExecutor) settle(raw json.RawMessage, fn func(any)) {
	e.once.Do(func() {
		_ = e.p.w.app.Post(func() {
			if !e.p.current() {
				return
			}
			v, err := jsonv.Parse(e.p.rt, raw)
			if err != nil {
				e.p.log.Warn().Err(err).Msg("malformed call result")
				e.reject(e.p.rt.NewTypeError(err.Error()))
				return
			}
			fn(v)
		})
	})
}

// evaluate runs code and completes f with the JSON of its result, waiting
// for a returned promise to settle.
func (p *page) evaluate(code string, f *native.Future) {
	v, err := p.rt.RunString(code)
	if err != nil {
		p.w.settle(f, nil, scriptError(err))
		return
	}
	obj, isObj := v.(*sobek.Object)
	if !isObj {
		p.complete(v, f)
		return
	}
	then, ok := sobek.AssertFunction(obj.Get("then"))
	if !ok {
		p.complete(v, f)
		return
	}
	p.w.awaiting(f, p)
	onFulfilled := p.rt.ToValue(func(c sobek.FunctionCall) sobek.Value {
		p.complete(c.Argument(0), f)
		return sobek.Undefined()
	})
	onRejected := p.rt.ToValue(func(c sobek.FunctionCall) sobek.Value {
		p.w.settle(f, nil, errors.New(reasonText(c.Argument(0))))
		return sobek.Undefined()
	})
	if _, err := then(obj, onFulfilled, onRejected); err != nil {
		p.w.settle(f, nil, scriptError(err))
	}
}

func (p *page) complete(v sobek.Value, f *native.Future) {
	raw, err := jsonv.Stringify(p.rt, v)
	p.w.settle(f, raw, err)
}

func scriptError(err error) error {
	var ex *sobek.Exception
	if errors.As(err, &ex) {
		return errors.New(reasonText(ex.Value()))
	}
	return err
}

func reasonText(v sobek.Value) string {
	if obj, ok := v.(*sobek.Object); ok {
		if msg := obj.Get("message"); msg != nil && !sobek.IsUndefined(msg) {
			return msg.String()
		}
	}
	if v == nil {
		return "undefined"
	}
	return v.String()
}

func (p *page) setTimeout(c sobek.FunctionCall) sobek.Value {
	fn, ok := sobek.AssertFunction(c.Argument(0))
	if !ok {
		panic(p.rt.NewTypeError("setTimeout: callback is not a function"))
	}
	delay := time.Duration(c.Argument(1).ToInteger()) * time.Millisecond
	var extra []sobek.Value
	if len(c.Arguments) > 2 {
		extra = c.Arguments[2:]
	}

	p.nextTimer++
	id := p.nextTimer
	p.timers[id] = time.AfterFunc(delay, func() {
		_ = p.w.app.Post(func() {
			if _, pending := p.timers[id]; !pending {
				return
			}
			delete(p.timers, id)
			if !p.current() {
				return
			}
			if _, err := fn(sobek.Undefined(), extra...); err != nil {
				p.log.Warn().Err(err).Msg("uncaught exception in timer")
			}
		})
	})
	return p.rt.ToValue(id)
}

// fetch implements a minimal fetch over the webview's loaders.
func (p *page) fetch(c sobek.FunctionCall) sobek.Value {
	rt := p.rt
	promise, resolve, reject := rt.NewPromise()

	req := &native.SchemeRequest{
		URL:     resolveURL(p.url, c.Argument(0).String()),
		Method:  "GET",
		Headers: map[string]string{},
	}
	if init, ok := c.Argument(1).(*sobek.Object); ok {
		if m := init.Get("method"); m != nil && !sobek.IsUndefined(m) {
			req.Method = m.String()
		}
		if b := init.Get("body"); b != nil && !sobek.IsUndefined(b) && !sobek.IsNull(b) {
			req.Content = bodyBytes(b)
		}
		if h, ok := init.Get("headers").(*sobek.Object); ok {
			for _, k := range h.Keys() {
				req.Headers[k] = h.Get(k).String()
			}
		}
	}

	p.w.fetch(req, func(res resource, err error) {
		if !p.current() {
			return
		}
		if err != nil {
			reject(rt.NewTypeError(fmt.Sprintf("fetch %s: %v", req.URL, err)))
			return
		}
		resolve(p.response(res))
	})
	return rt.ToValue(promise)
}

func bodyBytes(v sobek.Value) []byte {
	switch x := v.Export().(type) {
	case sobek.ArrayBuffer:
		return x.Bytes()
	case []byte:
		return x
	}
	// Typed arrays are views into their buffer.
	if o, ok := v.(*sobek.Object); ok {
		if buf := o.Get("buffer"); buf != nil {
			if ab, ok := buf.Export().(sobek.ArrayBuffer); ok {
				off, n := o.Get("byteOffset").ToInteger(), o.Get("byteLength").ToInteger()
				return ab.Bytes()[off : off+n]
			}
		}
	}
	return []byte(v.String())
}

func (p *page) response(res resource) *sobek.Object {
	rt := p.rt
	obj := rt.NewObject()
	_ = obj.Set("status", res.status)
	_ = obj.Set("ok", res.status >= 200 && res.status < 300)
	headers := rt.NewObject()
	lower := map[string]string{"content-type": res.mime}
	_ = headers.Set("content-type", res.mime)
	for k, v := range res.headers {
		_ = headers.Set(k, v)
		lower[strings.ToLower(k)] = v
	}
	_ = headers.Set("get", func(c sobek.FunctionCall) sobek.Value {
		if v, ok := lower[strings.ToLower(c.Argument(0).String())]; ok {
			return rt.ToValue(v)
		}
		return sobek.Null()
	})
	_ = obj.Set("headers", headers)

	settled := func(v any, err error) sobek.Value {
		promise, resolve, reject := rt.NewPromise()
		if err != nil {
			reject(rt.NewTypeError(err.Error()))
		} else {
			resolve(v)
		}
		return rt.ToValue(promise)
	}
	_ = obj.Set("text", func(sobek.FunctionCall) sobek.Value {
		return settled(string(res.data), nil)
	})
	_ = obj.Set("arrayBuffer", func(sobek.FunctionCall) sobek.Value {
		return settled(rt.NewArrayBuffer(res.data), nil)
	})
	_ = obj.Set("json", func(sobek.FunctionCall) sobek.Value {
		v, err := jsonv.Parse(rt, res.data)
		return settled(v, err)
	})
	return obj
}

func (p *page) console() *sobek.Object {
	obj := p.rt.NewObject()
	levels := map[string]zerolog.Level{
		"debug": zerolog.DebugLevel,
		"log":   zerolog.InfoLevel,
		"info":  zerolog.InfoLevel,
		"warn":  zerolog.WarnLevel,
		"error": zerolog.ErrorLevel,
	}
	for name, level := range levels {
		_ = obj.Set(name, func(c sobek.FunctionCall) sobek.Value {
			parts := make([]any, len(c.Arguments))
			for i, a := range c.Arguments {
				parts[i] = a.String()
			}
			p.log.WithLevel(level).Str("url", p.url).Msg(fmt.Sprint(parts...))
			return sobek.Undefined()
		})
	}
	return obj
}
