package host

import (
	"sync/atomic"

	"github.com/grafana/sobek"
)

// Deferred is a promise created on the loop whose completion may be decided
// on any goroutine. It settles at most once.
type Deferred struct {
	loop    *Loop
	resolve func(any)
	reject  func(any)
	settled atomic.Bool
}

// NewDeferred creates a pending promise. Call it on the loop goroutine.
func NewDeferred(loop *Loop, rt *sobek.Runtime) (*Deferred, *sobek.Promise) {
	p, resolve, reject := rt.NewPromise()
	return &Deferred{
		loop:    loop,
		resolve: func(v any) { resolve(v) },
		reject:  func(v any) { reject(v) },
	}, p
}

// Resolve fulfills the promise. Call it on the loop goroutine.
func (d *Deferred) Resolve(v any) bool {
	if !d.settled.CompareAndSwap(false, true) {
		return false
	}
	d.resolve(v)
	return true
}

// Reject rejects the promise. Call it on the loop goroutine.
func (d *Deferred) Reject(reason any) bool {
	if !d.settled.CompareAndSwap(false, true) {
		return false
	}
	d.reject(reason)
	return true
}

// Settled reports whether the promise has been completed.
func (d *Deferred) Settled() bool { return d.settled.Load() }

// Settle schedules completion from any goroutine. produce runs on the loop;
// a returned error rejects the promise with an Error carrying its text.
func (d *Deferred) Settle(produce func(rt *sobek.Runtime) (sobek.Value, error)) error {
	return d.loop.Enqueue(func(rt *sobek.Runtime) error {
		v, err := produce(rt)
		if err != nil {
			d.Reject(ErrorValue(rt, err))
			return nil
		}
		d.Resolve(v)
		return nil
	})
}
