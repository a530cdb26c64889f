package native

import "sync"

type subscription struct {
	id   uint64
	once bool
}

// Subscriptions tracks which events a backend should raise. A backend raises
// an event once per occurrence when at least one subscription is armed.
type Subscriptions struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[Name][]subscription
}

// Subscribe arms name. Persistent subscriptions get a non-zero id.
func (s *Subscriptions) Subscribe(name Name, once bool) (uint64, error) {
	if name.Category() == 0 {
		return 0, ErrUnsupported
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.subs == nil {
		s.subs = make(map[Name][]subscription)
	}
	var id uint64
	if !once {
		s.nextID++
		id = s.nextID
	}
	s.subs[name] = append(s.subs[name], subscription{id: id, once: once})
	return id, nil
}

// Unsubscribe drops the persistent subscription id.
func (s *Subscriptions) Unsubscribe(name Name, id uint64) {
	if id == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.subs[name]
	for i, sub := range list {
		if sub.id == id {
			s.subs[name] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// ClearEvent drops every subscription for name.
func (s *Subscriptions) ClearEvent(name Name) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, name)
}

// Fire reports whether an occurrence of name should be raised and disarms
// the one-shot subscriptions it consumes.
func (s *Subscriptions) Fire(name Name) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.subs[name]
	if len(list) == 0 {
		return false
	}
	kept := list[:0]
	for _, sub := range list {
		if !sub.once {
			kept = append(kept, sub)
		}
	}
	clear(list[len(kept):])
	s.subs[name] = kept
	return true
}

// Armed reports whether any subscription for name exists.
func (s *Subscriptions) Armed(name Name) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs[name]) > 0
}
