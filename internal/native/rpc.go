package native

import (
	"context"
	"encoding/json"
	"sync"
)

// Executor completes one pending page-side call. Implementations must
// tolerate being completed from any goroutine.
type Executor interface {
	// Resolve fulfills the call with a JSON-encoded result.
	Resolve(result json.RawMessage)

	// Reject fails the call. reason is JSON text, usually a string literal.
	Reject(reason string)
}

// RPCFunc handles a page-side call with its JSON-encoded argument array.
type RPCFunc func(params json.RawMessage, exec Executor)

// Future is the result of a page evaluation.
type Future struct {
	once  sync.Once
	done  chan struct{}
	value json.RawMessage
	err   error
}

// NewFuture returns a pending future.
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Complete settles the future. Later calls are ignored.
func (f *Future) Complete(value json.RawMessage, err error) {
	f.once.Do(func() {
		f.value = value
		f.err = err
		close(f.done)
	})
}

// Done is closed once the future is settled.
func (f *Future) Done() <-chan struct{} { return f.done }

// Await blocks until the future settles or ctx is done.
func (f *Future) Await(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
