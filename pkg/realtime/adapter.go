// Package realtime defines the provider-agnostic session contract that every
// vendor integration implements, plus the shared transcript state store and
// error taxonomy. The session facade and the UI only ever see this package;
// the structurally different vendor protocols live behind it.
package realtime

import "context"

// Adapter is the uniform session contract both vendor integrations satisfy.
//
// Lifecycle: adapters are constructed fresh for every session or provider
// switch and carry no state across instances. Stop is the only cancellation
// primitive; it must be safe from any state, never panic, and release every
// owned resource (transport, microphone, playback).
type Adapter interface {
	// Start is idempotent when already active. Otherwise it obtains a vendor
	// credential, opens the vendor transport with tool declarations attached,
	// marks the session active, and begins microphone capture. Any failure
	// records the error in State, leaves the session inactive, and is
	// returned to the caller.
	Start(ctx context.Context) error

	// Stop tears down the transport, releases capture and playback, clears
	// the transcript, and marks the session inactive. Safe to call multiple
	// times and when never started.
	Stop()

	// Reset clears the transcript and playback timing mid-session without
	// closing the transport.
	Reset()

	// SendUserText appends an optimistic local user message and forwards the
	// text as a completed turn. No-op when inactive or when text is blank.
	SendUserText(text string)

	// SendUserAudioChunk relays externally captured PCM16 frames. Optional
	// capability; no-op when inactive or unsupported.
	SendUserAudioChunk(pcm []int16)

	// State returns a synchronous snapshot.
	State() State

	// Subscribe registers a change listener and returns its remove function.
	// Listeners receive no payload; they re-read State on notification.
	Subscribe(fn func()) (unsubscribe func())

	// Capabilities is pure and side-effect free.
	Capabilities() Capabilities
}
