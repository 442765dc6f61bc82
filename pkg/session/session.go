// Package session holds the one live realtime session and switches it
// between providers. Callers never touch an adapter directly; the facade
// constructs, subscribes to, and tears down adapters as the provider
// selection changes.
package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/voicedeck/voicedeck/pkg/realtime"
)

// Factory constructs a fresh adapter for its provider. Factories run once
// per Start after a provider switch; adapters are never reused across
// switches.
type Factory func() realtime.Adapter

// Session is the facade over the current adapter. At most one adapter
// exists at a time.
type Session struct {
	factories map[realtime.Provider]Factory
	logger    *slog.Logger
	state     *realtime.StateStore

	mu          sync.Mutex
	provider    realtime.Provider
	adapter     realtime.Adapter
	unsubscribe func()
}

// New creates a session with no adapter constructed yet.
func New(provider realtime.Provider, factories map[realtime.Provider]Factory, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		factories: factories,
		logger:    logger.With("component", "session"),
		state:     realtime.NewStateStore(),
		provider:  provider,
	}
}

// Provider returns the currently selected provider tag.
func (s *Session) Provider() realtime.Provider {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.provider
}

// SetProvider switches the session to another provider. A no-op when
// unchanged. Any current adapter is stopped and discarded before the tag
// switches; the next Start constructs the new provider's adapter.
func (s *Session) SetProvider(p realtime.Provider) {
	s.mu.Lock()
	if p == s.provider {
		s.mu.Unlock()
		return
	}
	adapter := s.adapter
	unsubscribe := s.unsubscribe
	s.adapter = nil
	s.unsubscribe = nil
	s.provider = p
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if adapter != nil {
		adapter.Stop()
	}
	s.state.Update(func(st *realtime.State) {
		st.Active = false
		st.Chat = nil
		st.Err = nil
	})
	s.logger.Info("provider switched", "provider", p)
}

// Start lazily constructs the selected provider's adapter and starts it.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.adapter == nil {
		factory, ok := s.factories[s.provider]
		if !ok {
			s.mu.Unlock()
			return realtime.ErrNotActive
		}
		s.adapter = factory()
		s.unsubscribe = s.adapter.Subscribe(s.mirror)
	}
	adapter := s.adapter
	s.mu.Unlock()

	err := adapter.Start(ctx)
	s.mirror()
	return err
}

// Stop stops the current adapter, if any.
func (s *Session) Stop() {
	s.mu.Lock()
	adapter := s.adapter
	s.mu.Unlock()
	if adapter != nil {
		adapter.Stop()
	}
}

// Reset clears the current adapter's conversation, if any.
func (s *Session) Reset() {
	s.mu.Lock()
	adapter := s.adapter
	s.mu.Unlock()
	if adapter != nil {
		adapter.Reset()
	}
}

// SendUserText forwards a typed turn to the current adapter, if any.
func (s *Session) SendUserText(text string) {
	s.mu.Lock()
	adapter := s.adapter
	s.mu.Unlock()
	if adapter != nil {
		adapter.SendUserText(text)
	}
}

// SendUserAudioChunk forwards captured PCM16 to the current adapter, if any.
func (s *Session) SendUserAudioChunk(pcm []int16) {
	s.mu.Lock()
	adapter := s.adapter
	s.mu.Unlock()
	if adapter != nil {
		adapter.SendUserAudioChunk(pcm)
	}
}

// State returns the mirrored session state.
func (s *Session) State() realtime.State { return s.state.Snapshot() }

// Subscribe registers a state listener, returning its remove func.
func (s *Session) Subscribe(fn func()) func() { return s.state.Subscribe(fn) }

// Capabilities reports the current adapter's surface, or all-false before
// the first construction.
func (s *Session) Capabilities() realtime.Capabilities {
	s.mu.Lock()
	adapter := s.adapter
	s.mu.Unlock()
	if adapter == nil {
		return realtime.Capabilities{}
	}
	return adapter.Capabilities()
}

// mirror copies the current adapter's state into the session store.
func (s *Session) mirror() {
	s.mu.Lock()
	adapter := s.adapter
	s.mu.Unlock()
	if adapter == nil {
		return
	}
	snap := adapter.State()
	s.state.Update(func(st *realtime.State) {
		st.Active = snap.Active
		st.Chat = snap.Chat
		st.Err = snap.Err
	})
}
