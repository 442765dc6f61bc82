package audio

import (
	"log/slog"
	"sync"
	"time"
)

// GapTolerance is how far the cursor may lag behind the clock before it is
// snapped forward. Without the snap, a long silence would make every chunk
// after it schedule in the past and play in a catch-up stutter.
const GapTolerance = 100 * time.Millisecond

// Scheduler plays decoded PCM chunks back-to-back on a time cursor.
// Chunks arrive at irregular real-world intervals; each is scheduled at
// max(now, cursor) and the cursor advances by the chunk's duration, so
// consecutive chunks never gap or overlap.
type Scheduler struct {
	mu         sync.Mutex
	sink       Sink
	clock      Clock
	sampleRate int
	cursor     time.Time
	logger     *slog.Logger
}

// NewScheduler creates a playback scheduler writing to sink at the given
// output sample rate.
func NewScheduler(sink Sink, sampleRate int, clock Clock, logger *slog.Logger) *Scheduler {
	if clock == nil {
		clock = SystemClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		sink:       sink,
		clock:      clock,
		sampleRate: sampleRate,
		logger:     logger.With("component", "audio.scheduler"),
	}
}

// Schedule queues PCM16 samples for playback and returns the start time
// chosen for them. A cursor more than GapTolerance behind the clock snaps
// to now first.
func (s *Scheduler) Schedule(samples []int16) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if s.cursor.Before(now.Add(-GapTolerance)) {
		s.cursor = now
	}

	start := s.cursor
	if start.Before(now) {
		start = now
	}

	chunk := Chunk{Samples: samples, SampleRate: s.sampleRate}
	if err := s.sink.Play(chunk, start); err != nil {
		// Playback hiccups are absorbed; the cursor still advances so the
		// stream stays aligned for later chunks.
		s.logger.Warn("sink rejected chunk", "error", err)
		s.cursor = start.Add(chunk.Duration())
		return start, err
	}

	s.cursor = start.Add(chunk.Duration())
	return start, nil
}

// Reset clears the cursor. The next chunk scheduled starts at the current
// time. Called on interruption and on session reset.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor = time.Time{}
}

// SampleRate returns the output sample rate.
func (s *Scheduler) SampleRate() int {
	return s.sampleRate
}
