package audio

import (
	"context"
	"sync"
	"time"
)

// MockSource is an in-memory Source for tests and headless runs.
// Frames are injected with Push.
type MockSource struct {
	mu         sync.Mutex
	sampleRate int
	frames     chan []float32
	running    bool
	closed     bool
}

// NewMockSource creates a mock source at the given sample rate.
func NewMockSource(sampleRate int) *MockSource {
	return &MockSource{
		sampleRate: sampleRate,
		frames:     make(chan []float32, 64),
	}
}

// Start implements Source.
func (m *MockSource) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrDeviceClosed
	}
	m.running = true
	return nil
}

// Stop implements Source.
func (m *MockSource) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		m.running = false
		close(m.frames)
	}
	return nil
}

// Frames implements Source.
func (m *MockSource) Frames() <-chan []float32 { return m.frames }

// SampleRate implements Source.
func (m *MockSource) SampleRate() int { return m.sampleRate }

// Name implements Source.
func (m *MockSource) Name() string { return "mock" }

// Close implements Source.
func (m *MockSource) Close() error {
	_ = m.Stop()
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Push injects a captured frame. Returns false if the source is stopped.
func (m *MockSource) Push(frame []float32) bool {
	m.mu.Lock()
	running := m.running
	m.mu.Unlock()
	if !running {
		return false
	}
	select {
	case m.frames <- frame:
		return true
	default:
		return false
	}
}

// ScheduledChunk records one Play call on a MockSink.
type ScheduledChunk struct {
	Chunk Chunk
	At    time.Time
}

// MockSink is an in-memory Sink that records scheduled chunks.
type MockSink struct {
	mu     sync.Mutex
	played []ScheduledChunk
	closed bool
}

// NewMockSink creates a mock sink.
func NewMockSink() *MockSink { return &MockSink{} }

// Play implements Sink.
func (m *MockSink) Play(chunk Chunk, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrDeviceClosed
	}
	m.played = append(m.played, ScheduledChunk{Chunk: chunk, At: at})
	return nil
}

// Name implements Sink.
func (m *MockSink) Name() string { return "mock" }

// Close implements Sink.
func (m *MockSink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Played returns a copy of everything scheduled so far.
func (m *MockSink) Played() []ScheduledChunk {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ScheduledChunk, len(m.played))
	copy(out, m.played)
	return out
}
