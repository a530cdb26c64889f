package host

import (
	"sync/atomic"

	"github.com/grafana/sobek"
)

// ArgsBuilder produces callback arguments. It runs on the loop goroutine so
// payloads are only turned into runtime values once they have crossed over.
type ArgsBuilder func(rt *sobek.Runtime) []sobek.Value

// InvokeFunc is a custom job executed with the invoker's callable.
type InvokeFunc func(rt *sobek.Runtime, fn sobek.Callable) error

// Invoker makes one host callback callable from any goroutine. The callback
// itself only ever runs on the loop goroutine.
//
// An invoker starts with a single owner reference. Every dispatch takes an
// extra reference for as long as its job is queued or running. Release drops
// the owner reference; it is idempotent, and once it has happened no new
// dispatch succeeds. A job that was already queued still runs once.
type Invoker struct {
	loop  *Loop
	value sobek.Value
	fn    sobek.Callable

	refs     atomic.Int32
	released atomic.Bool
}

// NewInvoker wraps v, which must be a function. Call it on the loop goroutine.
func NewInvoker(loop *Loop, v sobek.Value) (*Invoker, error) {
	fn, ok := sobek.AssertFunction(v)
	if !ok {
		return nil, ErrNotCallable
	}
	inv := &Invoker{loop: loop, value: v, fn: fn}
	inv.refs.Store(1)
	return inv, nil
}

// Value returns the wrapped function value.
func (i *Invoker) Value() sobek.Value { return i.value }

// Same reports whether v is strictly the wrapped callback.
func (i *Invoker) Same(v sobek.Value) bool {
	return v != nil && i.value.StrictEquals(v)
}

// Retain takes a reference unless the invoker is already dead.
func (i *Invoker) Retain() bool {
	for {
		n := i.refs.Load()
		if n <= 0 {
			return false
		}
		if i.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// Unref drops a reference taken by Retain.
func (i *Invoker) Unref() {
	i.refs.Add(-1)
}

// Release drops the owner reference. Safe from any goroutine, any number of times.
func (i *Invoker) Release() {
	if i.released.CompareAndSwap(false, true) {
		i.Unref()
	}
}

// Released reports whether Release has been called.
func (i *Invoker) Released() bool { return i.released.Load() }

// Call invokes the callback and waits for it to finish. An exception thrown
// by the callback goes to the loop's top-level error channel; the returned
// error only describes dispatch failures.
func (i *Invoker) Call(args ArgsBuilder) error {
	return i.Invoke(i.callJob(args))
}

// CallAsync invokes the callback without waiting.
func (i *Invoker) CallAsync(args ArgsBuilder) error {
	return i.InvokeAsync(i.callJob(args))
}

// Invoke runs job with the callable and waits for it. The job owns error
// handling: whatever it returns is handed back to the caller.
func (i *Invoker) Invoke(job InvokeFunc) error {
	if !i.acquire() {
		return ErrReleased
	}
	defer i.Unref()
	return i.loop.Do(func(rt *sobek.Runtime) error {
		return job(rt, i.fn)
	})
}

// InvokeAsync queues job without waiting. A job error is reported to the
// top-level error channel.
func (i *Invoker) InvokeAsync(job InvokeFunc) error {
	if !i.acquire() {
		return ErrReleased
	}
	err := i.loop.Enqueue(func(rt *sobek.Runtime) error {
		defer i.Unref()
		return job(rt, i.fn)
	})
	if err != nil {
		i.Unref()
		return err
	}
	return nil
}

// acquire takes a dispatch reference, failing once the owner has released.
func (i *Invoker) acquire() bool {
	if i.released.Load() || !i.Retain() {
		return false
	}
	if i.released.Load() {
		i.Unref()
		return false
	}
	return true
}

func (i *Invoker) callJob(args ArgsBuilder) InvokeFunc {
	return func(rt *sobek.Runtime, fn sobek.Callable) error {
		var argv []sobek.Value
		if args != nil {
			argv = args(rt)
		}
		if _, err := fn(sobek.Undefined(), argv...); err != nil {
			i.loop.ReportError(err)
		}
		return nil
	}
}
