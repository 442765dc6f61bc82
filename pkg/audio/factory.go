package audio

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"
)

// Backend selects the capture/playback implementation.
type Backend string

const (
	// BackendAuto picks the best backend for the platform.
	BackendAuto Backend = "auto"
	// BackendALSA uses Linux ALSA devices.
	BackendALSA Backend = "alsa"
	// BackendCoreAudio uses macOS CoreAudio devices.
	BackendCoreAudio Backend = "coreaudio"
	// BackendMock uses in-memory devices for tests and CI.
	BackendMock Backend = "mock"
)

// DeviceConfig holds device selection and framing parameters.
type DeviceConfig struct {
	Backend        Backend
	SampleRate     int
	BufferDuration time.Duration
	Device         string
}

// DefaultDeviceConfig returns mono 24kHz with 20ms buffers on the
// auto-detected backend.
func DefaultDeviceConfig() DeviceConfig {
	return DeviceConfig{
		Backend:        BackendAuto,
		SampleRate:     24000,
		BufferDuration: 20 * time.Millisecond,
	}
}

func (c *DeviceConfig) validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.BufferDuration <= 0 {
		return fmt.Errorf("buffer_duration must be positive, got %v", c.BufferDuration)
	}
	return nil
}

// BufferSize returns the number of samples per buffer.
func (c DeviceConfig) BufferSize() int {
	return int(float64(c.SampleRate) * c.BufferDuration.Seconds())
}

// NewSource creates a capture source for the configured backend.
func NewSource(cfg DeviceConfig, logger *slog.Logger) (Source, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid device config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	backend := cfg.Backend
	if backend == BackendAuto {
		backend = detectBestBackend()
	}
	logger.Info("creating audio source",
		"backend", backend,
		"sample_rate", cfg.SampleRate,
		"buffer_ms", cfg.BufferDuration.Milliseconds(),
	)

	switch backend {
	case BackendMock:
		return NewMockSource(cfg.SampleRate), nil
	case BackendALSA, BackendCoreAudio:
		return newDeviceSource(cfg, string(backend), logger), nil
	default:
		return nil, fmt.Errorf("unsupported audio backend: %s", backend)
	}
}

// NewSink creates a playback sink for the configured backend.
func NewSink(cfg DeviceConfig, logger *slog.Logger) (Sink, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid device config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	backend := cfg.Backend
	if backend == BackendAuto {
		backend = detectBestBackend()
	}

	switch backend {
	case BackendMock:
		return NewMockSink(), nil
	case BackendALSA, BackendCoreAudio:
		return &deviceSink{name: string(backend), logger: logger}, nil
	default:
		return nil, fmt.Errorf("unsupported audio backend: %s", backend)
	}
}

func detectBestBackend() Backend {
	switch runtime.GOOS {
	case "linux":
		return BackendALSA
	case "darwin":
		return BackendCoreAudio
	default:
		return BackendMock
	}
}

// deviceSource reads from the platform device at real-time cadence.
type deviceSource struct {
	cfg    DeviceConfig
	name   string
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	closed  bool
	frames  chan []float32
	stop    chan struct{}
}

func newDeviceSource(cfg DeviceConfig, name string, logger *slog.Logger) *deviceSource {
	return &deviceSource{
		cfg:    cfg,
		name:   name,
		logger: logger,
		frames: make(chan []float32, 10),
		stop:   make(chan struct{}),
	}
}

func (s *deviceSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrDeviceClosed
	}
	if s.running {
		return nil
	}

	// TODO: open the real device handle (CGO ALSA on Linux, CoreAudio on
	// macOS). The read loop below keeps real-time cadence with silence
	// until bindings land.
	s.running = true
	s.stop = make(chan struct{})
	s.frames = make(chan []float32, 10)
	go s.captureLoop(ctx)

	s.logger.Info("audio source started", "backend", s.name, "device", s.cfg.Device)
	return nil
}

func (s *deviceSource) captureLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.BufferDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Stop()
			return
		case <-s.stop:
			return
		case <-ticker.C:
			frame := make([]float32, s.cfg.BufferSize())
			select {
			case s.frames <- frame:
			default:
				s.logger.Debug("capture buffer full, dropping frame")
			}
		}
	}
}

func (s *deviceSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	s.running = false
	close(s.stop)
	close(s.frames)
	return nil
}

func (s *deviceSource) Frames() <-chan []float32 { return s.frames }

func (s *deviceSource) SampleRate() int { return s.cfg.SampleRate }

func (s *deviceSource) Name() string { return s.name }

func (s *deviceSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.Stop()
}

// deviceSink plays to the platform device.
type deviceSink struct {
	name   string
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

func (d *deviceSink) Play(chunk Chunk, at time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDeviceClosed
	}
	// TODO: enqueue on the real device ring buffer at the scheduled time.
	d.logger.Debug("playback chunk",
		"samples", len(chunk.Samples),
		"at", at.Format(time.RFC3339Nano),
	)
	return nil
}

func (d *deviceSink) Name() string { return d.name }

func (d *deviceSink) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}
