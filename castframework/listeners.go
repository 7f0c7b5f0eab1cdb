package castframework

import "sync"

// listenerSet holds listeners in registration order. Adding a listener
// that is already present does nothing.
type listenerSet[T comparable] struct {
	mu    sync.Mutex
	items []T
}

func (s *listenerSet[T]) add(l T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, item := range s.items {
		if item == l {
			return false
		}
	}
	s.items = append(s.items, l)
	return true
}

func (s *listenerSet[T]) remove(l T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, item := range s.items {
		if item == l {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return true
		}
	}
	return false
}

func (s *listenerSet[T]) snapshot() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]T(nil), s.items...)
}

func (s *listenerSet[T]) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
