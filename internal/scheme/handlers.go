// Package scheme routes custom URL scheme requests to host or Go handlers.
package scheme

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/crgimenes/glazejs/internal/native"
)

// Handler serves one scheme request and completes exec exactly once.
type Handler interface {
	ServeScheme(req *native.SchemeRequest, exec native.SchemeExecutor)
	Release()
}

type entry struct {
	name    string
	handler Handler
}

// Handlers is an ordered list of scheme handlers. The first entry whose name
// prefixes a request URL wins.
type Handlers struct {
	log zerolog.Logger

	mu      sync.Mutex
	entries []entry
	closed  bool
}

// New returns an empty handler list.
func New(log zerolog.Logger) *Handlers {
	return &Handlers{log: log}
}

// Add appends h under name. It reports false once the list is closed.
func (s *Handlers) Add(name string, h Handler) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	s.entries = append(s.entries, entry{name: name, handler: h})
	return true
}

// Remove drops and releases every handler registered under name.
func (s *Handlers) Remove(name string) int {
	s.mu.Lock()
	kept := s.entries[:0]
	var removed []Handler
	for _, e := range s.entries {
		if e.name == name {
			removed = append(removed, e.handler)
			continue
		}
		kept = append(kept, e)
	}
	clear(s.entries[len(kept):])
	s.entries = kept
	s.mu.Unlock()

	for _, h := range removed {
		h.Release()
	}
	return len(removed)
}

// Match returns the first handler whose scheme name prefixes url.
func (s *Handlers) Match(url string) (Handler, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.entries {
		if native.SchemeMatches(e.name, url) {
			return e.handler, true
		}
	}
	return nil, false
}

// Names lists the registered scheme names in order.
func (s *Handlers) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.name
	}
	return out
}

// Serve dispatches req. Without a matching handler the request is rejected
// with not-found on the calling goroutine.
func (s *Handlers) Serve(req *native.SchemeRequest, exec native.SchemeExecutor) {
	once := Once(exec)
	h, ok := s.Match(req.URL)
	if !ok {
		s.log.Debug().Str("url", req.URL).Msg("no scheme handler")
		once.Reject(native.SchemeNotFound)
		return
	}
	h.ServeScheme(req, once)
}

// Close releases every handler. Later additions fail.
func (s *Handlers) Close() {
	s.mu.Lock()
	all := s.entries
	s.entries = nil
	s.closed = true
	s.mu.Unlock()

	for _, e := range all {
		e.handler.Release()
	}
}

type onceExecutor struct {
	exec native.SchemeExecutor
	done atomic.Bool
}

// Once wraps exec so that only the first completion reaches it.
func Once(exec native.SchemeExecutor) native.SchemeExecutor {
	if o, ok := exec.(*onceExecutor); ok {
		return o
	}
	return &onceExecutor{exec: exec}
}

func (o *onceExecutor) Resolve(resp native.SchemeResponse) {
	if o.done.CompareAndSwap(false, true) {
		o.exec.Resolve(resp)
	}
}

func (o *onceExecutor) Reject(code native.SchemeError) {
	if o.done.CompareAndSwap(false, true) {
		o.exec.Reject(code)
	}
}
