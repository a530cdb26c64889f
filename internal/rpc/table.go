package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/grafana/sobek"
	"github.com/rs/zerolog"

	"github.com/crgimenes/glazejs/internal/host"
	"github.com/crgimenes/glazejs/internal/jsonv"
	"github.com/crgimenes/glazejs/internal/native"
)

// ErrClosed is returned when exposing on a closed table.
var ErrClosed = errors.New("rpc: table closed")

type entry struct {
	name  string
	inv   *host.Invoker
	fn    GoFunc
	check func(json.RawMessage) error
}

// ExposeOption configures an exposed function.
type ExposeOption func(*entry)

// WithCheck validates the parameters of every call before dispatch. A
// failing check rejects the call with the error text.
func WithCheck(check func(json.RawMessage) error) ExposeOption {
	return func(e *entry) { e.check = check }
}

func (e *entry) release() {
	if e.inv != nil {
		e.inv.Release()
	}
}

// Table holds the functions a webview exposes to its page. Entries are kept
// in exposure order; a later entry shadows an earlier one with the same name.
type Table struct {
	loop *host.Loop
	log  zerolog.Logger

	// ctx is handed to Go functions and canceled by Close.
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	entries []*entry
	pending map[*onceExecutor]struct{}
	closed  bool
}

// NewTable returns an empty table.
func NewTable(loop *host.Loop, log zerolog.Logger) *Table {
	ctx, cancel := context.WithCancel(context.Background())
	return &Table{
		loop:    loop,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
		pending: make(map[*onceExecutor]struct{}),
	}
}

// Expose registers a host function. It runs on the loop goroutine.
func (t *Table) Expose(name string, fn sobek.Value, opts ...ExposeOption) error {
	inv, err := host.NewInvoker(t.loop, fn)
	if err != nil {
		return err
	}
	e := &entry{name: name, inv: inv}
	for _, opt := range opts {
		opt(e)
	}
	if err := t.add(e); err != nil {
		inv.Release()
		return err
	}
	return nil
}

// ExposeFunc registers a Go function, wrapped by WrapFunc. Each call runs on
// its own goroutine.
func (t *Table) ExposeFunc(name string, f any, opts ...ExposeOption) error {
	fn, err := WrapFunc(f)
	if err != nil {
		return fmt.Errorf("expose %s: %w", name, err)
	}
	e := &entry{name: name, fn: fn}
	for _, opt := range opts {
		opt(e)
	}
	return t.add(e)
}

// Handler returns the native entry point for name.
func (t *Table) Handler(name string) native.RPCFunc {
	return func(params json.RawMessage, exec native.Executor) {
		t.Call(name, params, exec)
	}
}

// Call executes name with params and completes exec exactly once on every
// path. It may be called from any goroutine.
func (t *Table) Call(name string, params json.RawMessage, exec native.Executor) {
	o := t.track(exec)
	if o == nil {
		return
	}
	e := t.lookup(name)
	if e == nil {
		o.Reject(ReasonUnknownFunction)
		return
	}
	if e.check != nil {
		if err := e.check(params); err != nil {
			o.Reject(jsonv.Quote(err.Error()))
			return
		}
	}

	if e.fn != nil {
		go func() {
			res, err := e.fn(t.ctx, params)
			if err != nil {
				o.Reject(jsonv.Quote(err.Error()))
				return
			}
			o.Resolve(res)
		}()
		return
	}

	err := e.inv.InvokeAsync(func(rt *sobek.Runtime, fn sobek.Callable) error {
		t.run(rt, fn, params, o)
		return nil
	})
	if err != nil {
		t.log.Debug().Err(err).Str("function", name).Msg("rpc dispatch failed")
		o.Reject(ReasonDispatchFailed)
	}
}

// Clear removes every entry called name and releases it.
func (t *Table) Clear(name string) int {
	t.mu.Lock()
	kept := t.entries[:0]
	var removed []*entry
	for _, e := range t.entries {
		if e.name == name {
			removed = append(removed, e)
			continue
		}
		kept = append(kept, e)
	}
	clear(t.entries[len(kept):])
	t.entries = kept
	t.mu.Unlock()

	for _, e := range removed {
		e.release()
	}
	return len(removed)
}

// ClearAll removes and releases every entry.
func (t *Table) ClearAll() []string {
	t.mu.Lock()
	all := t.entries
	t.entries = nil
	t.mu.Unlock()

	names := make([]string, 0, len(all))
	for _, e := range all {
		e.release()
		names = append(names, e.name)
	}
	return names
}

// Has reports whether name is exposed.
func (t *Table) Has(name string) bool {
	return t.lookup(name) != nil
}

// Close releases every entry and rejects calls still in flight. Calls that
// arrive afterwards are rejected immediately.
func (t *Table) Close() {
	t.mu.Lock()
	t.closed = true
	all := t.entries
	t.entries = nil
	pending := make([]*onceExecutor, 0, len(t.pending))
	for o := range t.pending {
		pending = append(pending, o)
	}
	t.mu.Unlock()

	t.cancel()
	for _, e := range all {
		e.release()
	}
	for _, o := range pending {
		o.Reject(ReasonDestroyed)
	}
}

func (t *Table) add(e *entry) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}
	t.entries = append(t.entries, e)
	return nil
}

func (t *Table) lookup(name string) *entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := len(t.entries) - 1; i >= 0; i-- {
		if t.entries[i].name == name {
			return t.entries[i]
		}
	}
	return nil
}

func (t *Table) track(exec native.Executor) *onceExecutor {
	o := &onceExecutor{exec: exec, log: t.log}
	o.onDone = func() {
		t.mu.Lock()
		delete(t.pending, o)
		t.mu.Unlock()
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		o.Reject(ReasonDestroyed)
		return nil
	}
	t.pending[o] = struct{}{}
	t.mu.Unlock()
	return o
}

// run executes one call on the loop goroutine.
func (t *Table) run(rt *sobek.Runtime, fn sobek.Callable, params json.RawMessage, o *onceExecutor) {
	args, err := jsonv.Spread(rt, params)
	if err != nil {
		o.Reject(jsonv.Quote(err.Error()))
		return
	}

	v, err := fn(sobek.Undefined(), args...)
	if err != nil {
		o.Reject(Reason(rt, host.Thrown(rt, err)))
		return
	}

	then, ok := host.Thenable(v)
	if !ok {
		resolveValue(rt, v, o)
		return
	}
	onFulfilled := rt.ToValue(func(call sobek.FunctionCall) sobek.Value {
		resolveValue(rt, call.Argument(0), o)
		return sobek.Undefined()
	})
	onRejected := rt.ToValue(func(call sobek.FunctionCall) sobek.Value {
		o.Reject(Reason(rt, call.Argument(0)))
		return sobek.Undefined()
	})
	if _, err := then(v, onFulfilled, onRejected); err != nil {
		o.Reject(Reason(rt, host.Thrown(rt, err)))
	}
}

func resolveValue(rt *sobek.Runtime, v sobek.Value, o *onceExecutor) {
	raw, err := jsonv.Stringify(rt, v)
	if err != nil {
		o.Reject(jsonv.Quote(err.Error()))
		return
	}
	o.Resolve(raw)
}

// Reason renders a rejection value as JSON text. Objects carrying a string
// message contribute only the message.
func Reason(rt *sobek.Runtime, v sobek.Value) string {
	if obj, ok := v.(*sobek.Object); ok {
		if msg := obj.Get("message"); msg != nil {
			if _, isString := msg.Export().(string); isString {
				v = msg
			}
		}
	}
	raw, err := jsonv.Stringify(rt, v)
	if err != nil {
		return jsonv.Quote(v.String())
	}
	return string(raw)
}
