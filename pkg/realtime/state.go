package realtime

import "sync"

// StateStore holds one adapter's mutable State and fans out change
// notifications. Mutations run under the lock; listeners are invoked after
// the lock is released so no partial state is ever observable.
type StateStore struct {
	mu        sync.Mutex
	state     State
	listeners map[int]func()
	nextID    int
}

// NewStateStore creates an empty store.
func NewStateStore() *StateStore {
	return &StateStore{listeners: make(map[int]func())}
}

// Snapshot returns a copy of the current state. The chat slice is copied so
// callers cannot observe later mutations.
func (s *StateStore) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLocked()
}

func (s *StateStore) copyLocked() State {
	chat := make([]ChatMessage, len(s.state.Chat))
	copy(chat, s.state.Chat)
	return State{Active: s.state.Active, Chat: chat, Err: s.state.Err}
}

// Update applies fn to the state under the lock, then notifies every
// listener. Listeners run without the lock and in no guaranteed order.
func (s *StateStore) Update(fn func(*State)) {
	s.mu.Lock()
	fn(&s.state)
	fns := make([]func(), 0, len(s.listeners))
	for _, l := range s.listeners {
		fns = append(fns, l)
	}
	s.mu.Unlock()

	for _, l := range fns {
		l()
	}
}

// Subscribe registers a listener and returns its remove function.
func (s *StateStore) Subscribe(fn func()) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Active reports the active flag without copying the transcript.
func (s *StateStore) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Active
}
