package glazejs

import (
	"slices"
	"sync"
)

// Stash is a reference-counted byte buffer. An owned stash holds its own
// copy; a view aliases the caller's slice.
type Stash struct {
	mu    sync.RWMutex
	data  []byte
	owned bool
	refs  int
}

// StashFrom copies b into a new owned stash.
func StashFrom(b []byte) *Stash {
	return &Stash{data: slices.Clone(b), owned: true, refs: 1}
}

// StashView wraps b without copying. The caller must not modify b while the
// view is alive.
func StashView(b []byte) *Stash {
	return &Stash{data: b, refs: 1}
}

// Bytes returns the payload. After the last release it is empty.
func (s *Stash) Bytes() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data
}

// Len returns the payload size.
func (s *Stash) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Owned reports whether the stash holds its own copy.
func (s *Stash) Owned() bool { return s.owned }

// Retain adds a reference. It fails once the stash has been released.
func (s *Stash) Retain() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refs == 0 {
		return false
	}
	s.refs++
	return true
}

// Release drops a reference. Releasing a dead stash is a no-op.
func (s *Stash) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refs == 0 {
		return
	}
	s.refs--
	if s.refs == 0 {
		s.data = nil
	}
}

// Released reports whether the last reference is gone.
func (s *Stash) Released() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refs == 0
}
