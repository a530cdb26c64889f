// Package events keeps the per-webview event subscriptions and delivers
// native events to them on the host loop.
package events

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/grafana/sobek"
	"github.com/rs/zerolog"

	"github.com/crgimenes/glazejs/internal/host"
	"github.com/crgimenes/glazejs/internal/native"
)

// ErrUnsupportedEvent is returned for names outside the known event set.
var ErrUnsupportedEvent = errors.New("events: unsupported event")

type entry struct {
	inv   *host.Invoker
	id    uint64
	once  bool
	fired atomic.Bool
}

// Registry maps event names to their ordered subscriptions. Its lock is
// never held while host callbacks run, so handlers may subscribe and
// unsubscribe freely.
type Registry struct {
	loop *host.Loop
	sub  native.Subscriber
	log  zerolog.Logger

	mu      sync.Mutex
	entries map[native.Name][]*entry
	closed  bool
}

// New creates a registry whose native subscriptions go through sub.
func New(loop *host.Loop, sub native.Subscriber, log zerolog.Logger) *Registry {
	return &Registry{
		loop:    loop,
		sub:     sub,
		log:     log,
		entries: make(map[native.Name][]*entry),
	}
}

// Register subscribes fn to name. It runs on the loop goroutine.
func (r *Registry) Register(name string, fn sobek.Value, once bool) error {
	n, _, ok := native.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedEvent, name)
	}
	inv, err := host.NewInvoker(r.loop, fn)
	if err != nil {
		return err
	}

	e := &entry{inv: inv, once: once}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		inv.Release()
		return native.ErrDestroyed
	}
	r.entries[n] = append(r.entries[n], e)
	r.mu.Unlock()

	id, err := r.sub.Subscribe(n, once)
	if err != nil {
		r.remove(n, e)
		inv.Release()
		return fmt.Errorf("subscribe %s: %w", n, err)
	}

	// An Off during Subscribe already dropped e; its subscription goes too.
	r.mu.Lock()
	live := slices.Contains(r.entries[n], e)
	if live {
		e.id = id
	}
	r.mu.Unlock()
	if !live && id != 0 {
		r.sub.Unsubscribe(n, id)
	}

	r.log.Debug().Str("event", string(n)).Bool("once", once).Uint64("id", id).Msg("registered")
	return nil
}

// Emit delivers ev to every subscriber in registration order, waiting for
// each handler. One-shot subscribers fire at most once and are pruned.
func (r *Registry) Emit(ev native.Event) {
	name := ev.Name()
	args := Args(ev)
	for _, e := range r.snapshot(name) {
		if !e.claim() {
			continue
		}
		if err := e.inv.Call(args); err != nil {
			r.log.Debug().Err(err).Str("event", string(name)).Msg("handler not dispatched")
		}
	}
	r.prune(name)
}

// Off removes every subscription of name whose callback is strictly fn. It
// returns the number removed.
func (r *Registry) Off(name string, fn sobek.Value) int {
	n := native.Name(name)
	r.mu.Lock()
	list := r.entries[n]
	kept := make([]*entry, 0, len(list))
	var removed []*entry
	var ids []uint64
	for _, e := range list {
		if e.inv.Same(fn) {
			removed = append(removed, e)
			if e.id != 0 {
				ids = append(ids, e.id)
			}
			continue
		}
		kept = append(kept, e)
	}
	r.set(n, kept)
	r.mu.Unlock()

	for _, e := range removed {
		e.inv.Release()
	}
	for _, id := range ids {
		r.sub.Unsubscribe(n, id)
	}
	return len(removed)
}

// OffAll removes every subscription of name.
func (r *Registry) OffAll(name string) {
	n := native.Name(name)
	r.mu.Lock()
	list := r.entries[n]
	delete(r.entries, n)
	r.mu.Unlock()

	for _, e := range list {
		e.inv.Release()
	}
	if n.Category() != 0 {
		r.sub.ClearEvent(n)
	}
}

// Has reports whether name has subscribers.
func (r *Registry) Has(name string) bool {
	return r.Len(name) > 0
}

// Len returns the number of subscriptions for name.
func (r *Registry) Len(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries[native.Name(name)])
}

// Close releases every subscription. Later registrations fail.
func (r *Registry) Close() {
	r.mu.Lock()
	all := r.entries
	r.entries = make(map[native.Name][]*entry)
	r.closed = true
	r.mu.Unlock()

	for _, list := range all {
		for _, e := range list {
			e.inv.Release()
		}
	}
}

func (r *Registry) snapshot(n native.Name) []*entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.entries[n]
	out := make([]*entry, len(list))
	copy(out, list)
	return out
}

// prune drops one-shot entries that have fired.
func (r *Registry) prune(n native.Name) {
	r.mu.Lock()
	list := r.entries[n]
	kept := make([]*entry, 0, len(list))
	var fired []*entry
	for _, e := range list {
		if e.once && e.fired.Load() {
			fired = append(fired, e)
			continue
		}
		kept = append(kept, e)
	}
	r.set(n, kept)
	r.mu.Unlock()

	for _, e := range fired {
		e.inv.Release()
	}
}

func (r *Registry) remove(n native.Name, target *entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.entries[n]
	for i, e := range list {
		if e == target {
			r.set(n, append(list[:i:i], list[i+1:]...))
			return
		}
	}
}

// set stores list for n. Must be called with r.mu held.
func (r *Registry) set(n native.Name, list []*entry) {
	if len(list) == 0 {
		delete(r.entries, n)
		return
	}
	r.entries[n] = list
}

// claim reports whether the entry may fire now.
func (e *entry) claim() bool {
	if !e.once {
		return true
	}
	return e.fired.CompareAndSwap(false, true)
}
