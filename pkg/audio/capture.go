package audio

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Capture frame timing defaults.
const (
	// QuietFlushAfter is how long capture may sit without a frame before an
	// explicit stream-end signal is sent. Guards against vendor-side VAD
	// never firing on very quiet input.
	QuietFlushAfter = 1200 * time.Millisecond

	// flushCheckEvery is the silence-flush timer interval.
	flushCheckEvery = 400 * time.Millisecond
)

// FrameSink receives encoded capture output. Implemented by each provider
// adapter to relay frames onto its transport.
type FrameSink interface {
	// SendAudioFrame relays one PCM16 frame at the capture sample rate.
	SendAudioFrame(pcm []int16, sampleRate int) error

	// SendStreamEnd signals that the audio stream has gone quiet.
	SendStreamEnd() error
}

// Capture pumps fixed-size float frames from a Source, converts them to
// PCM16, and hands them to a FrameSink. A periodic timer emits one explicit
// stream-end signal after QuietFlushAfter of silence.
type Capture struct {
	source Source
	sink   FrameSink
	clock  Clock
	logger *slog.Logger

	// quietAfter and checkEvery are overridable for tests.
	quietAfter time.Duration
	checkEvery time.Duration

	// activeFn is checked before every frame and flush. Capture callbacks
	// can fire after the owning adapter began tearing down; the guard keeps
	// them from touching a dead transport.
	activeFn func() bool

	mu         sync.Mutex
	running    bool
	lastFrame  time.Time
	flushed    bool
	frameCount int
	done       chan struct{}
	wg         sync.WaitGroup
}

// NewCapture creates a capture pump. activeFn may be nil, meaning always
// active.
func NewCapture(source Source, sink FrameSink, clock Clock, activeFn func() bool, logger *slog.Logger) *Capture {
	if clock == nil {
		clock = SystemClock()
	}
	if activeFn == nil {
		activeFn = func() bool { return true }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Capture{
		source:     source,
		sink:       sink,
		clock:      clock,
		activeFn:   activeFn,
		quietAfter: QuietFlushAfter,
		checkEvery: flushCheckEvery,
		logger:     logger.With("component", "audio.capture"),
	}
}

// Start begins capture. The source is started and two goroutines run until
// Stop: the frame pump and the silence-flush timer.
func (c *Capture) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = true
	c.done = make(chan struct{})
	c.flushed = true // nothing captured yet, nothing to flush
	c.mu.Unlock()

	if err := c.source.Start(ctx); err != nil {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		return err
	}

	c.wg.Add(2)
	go c.pump()
	go c.flushLoop()
	return nil
}

// Stop halts capture and releases the source. Safe to call multiple times
// and when never started.
func (c *Capture) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	close(c.done)
	c.mu.Unlock()

	_ = c.source.Stop()
	c.wg.Wait()
}

func (c *Capture) pump() {
	defer c.wg.Done()
	rate := c.source.SampleRate()

	for frame := range c.source.Frames() {
		if !c.activeFn() {
			continue
		}

		rms := RMS(frame)
		pcm := FloatToPCM16(frame)
		if err := c.sink.SendAudioFrame(pcm, rate); err != nil {
			c.logger.Warn("frame send failed", "error", err)
			continue
		}

		c.mu.Lock()
		c.lastFrame = c.clock.Now()
		c.flushed = false
		c.frameCount++
		n := c.frameCount
		c.mu.Unlock()

		if n%10 == 0 {
			c.logger.Debug("captured frame", "count", n, "rms", rms, "sample_rate", rate)
		}
	}
}

func (c *Capture) flushLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.checkEvery)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if !c.activeFn() {
				continue
			}
			c.mu.Lock()
			quiet := !c.flushed && !c.lastFrame.IsZero() &&
				c.clock.Now().Sub(c.lastFrame) > c.quietAfter
			if quiet {
				c.flushed = true
			}
			c.mu.Unlock()

			if quiet {
				if err := c.sink.SendStreamEnd(); err != nil {
					c.logger.Warn("stream end send failed", "error", err)
				} else {
					c.logger.Debug("silence flush sent")
				}
			}
		}
	}
}

// FrameCount returns how many frames have been relayed.
func (c *Capture) FrameCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frameCount
}
