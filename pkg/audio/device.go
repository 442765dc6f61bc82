// Package audio provides the capture and playback pipeline shared by all
// realtime providers: PCM16 codec helpers, microphone frame capture with
// silence flushing, and gapless playback scheduling on a time cursor.
package audio

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrDeviceClosed indicates the device was closed and cannot be used again.
var ErrDeviceClosed = errors.New("audio: device closed")

// Chunk is an ephemeral buffer of PCM16 audio plus its sample rate.
// Chunks are produced by capture or decoded from a transport and consumed
// immediately; they are never persisted.
type Chunk struct {
	Samples    []int16
	SampleRate int
}

// Bytes returns the chunk as raw PCM16 little-endian bytes.
func (c Chunk) Bytes() []byte {
	return SamplesToBytes(c.Samples)
}

// Duration returns the play time of the chunk.
func (c Chunk) Duration() time.Duration {
	if c.SampleRate == 0 {
		return 0
	}
	return time.Duration(float64(len(c.Samples)) / float64(c.SampleRate) * float64(time.Second))
}

// Source captures audio from a microphone or other input device.
// Frames are mono 32-bit float PCM at the device's native sample rate.
type Source interface {
	// Start begins audio capture. The device is requested mono with echo
	// cancellation and noise suppression where the backend supports it.
	Start(ctx context.Context) error

	// Stop halts audio capture. Safe to call multiple times.
	Stop() error

	// Frames returns the channel of fixed-size float frames.
	// The channel is closed when the source is stopped.
	Frames() <-chan []float32

	// SampleRate returns the device's native sample rate in Hz.
	SampleRate() int

	// Name returns the backend name (e.g. "mock").
	Name() string

	// Close releases all resources. After Close the source cannot restart.
	io.Closer
}

// Sink plays scheduled audio to a speaker or other output device.
// The Scheduler decides start times; the sink honors them.
type Sink interface {
	// Play queues a chunk to begin at the given time.
	Play(chunk Chunk, at time.Time) error

	// Name returns the backend name.
	Name() string

	io.Closer
}

// Clock abstracts time for the scheduler and the capture flush timer so
// tests can drive them deterministically.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall clock.
func SystemClock() Clock { return realClock{} }
