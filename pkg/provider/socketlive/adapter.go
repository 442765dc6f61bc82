// Package socketlive implements the persistent-socket voice provider. The
// server keeps the authoritative conversation; this adapter mirrors its item
// list and rebuilds the chat transcript from it on every change.
package socketlive

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/voicedeck/voicedeck/internal/config"
	"github.com/voicedeck/voicedeck/pkg/audio"
	"github.com/voicedeck/voicedeck/pkg/creds"
	"github.com/voicedeck/voicedeck/pkg/flashcards"
	"github.com/voicedeck/voicedeck/pkg/realtime"
)

const (
	sessionVoice       = "alloy"
	transcriptionModel = "whisper-1"
	outputSampleRate   = 24000

	sessionInstructions = "You are a helpful language learning assistant. " +
		"Please respond only in English. Keep your responses conversational " +
		"and encouraging for language learners. You have access to flashcard " +
		"tools to help with practice sessions - you can get the current " +
		"flashcard, flip it to show the answer, advance to the next card, or " +
		"restart the deck."

	greetingText = "Hello! Please introduce yourself and let me know how " +
		"you can help me with my language learning and flashcards."
)

// Options configures an Adapter. Zero values fall back to the environment
// defaults; tests inject mock devices and a local key service.
type Options struct {
	URL    string
	Creds  *creds.Client
	Store  *flashcards.Store
	Device audio.DeviceConfig
	Clock  audio.Clock
	Logger *slog.Logger
}

// Adapter implements realtime.Adapter over the socket vendor.
type Adapter struct {
	url     string
	creds   *creds.Client
	toolset *flashcards.ToolSet
	device  audio.DeviceConfig
	clock   audio.Clock
	logger  *slog.Logger
	state   *realtime.StateStore

	mu        sync.Mutex
	client    *Client
	capture   *audio.Capture
	source    audio.Source
	sink      audio.Sink
	scheduler *audio.Scheduler
}

// New creates an inactive adapter. Nothing connects until Start.
func New(opts Options) *Adapter {
	if opts.URL == "" {
		opts.URL = config.SocketRealtimeURL()
	}
	if opts.Creds == nil {
		opts.Creds = creds.NewClient(config.KeyServiceURL(), nil)
	}
	if opts.Store == nil {
		opts.Store = flashcards.NewStore(flashcards.DemoDeck()...)
	}
	if opts.Device == (audio.DeviceConfig{}) {
		opts.Device = audio.DefaultDeviceConfig()
		opts.Device.SampleRate = outputSampleRate
	}
	if opts.Clock == nil {
		opts.Clock = audio.SystemClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	logger := opts.Logger.With("provider", "socket")
	return &Adapter{
		url:     opts.URL,
		creds:   opts.Creds,
		toolset: flashcards.NewToolSet(flashcards.Tools(opts.Store), logger),
		device:  opts.Device,
		clock:   opts.Clock,
		logger:  logger,
		state:   realtime.NewStateStore(),
	}
}

// Start connects, configures the session, and begins capture. Idempotent
// while a session is up. On failure the error is recorded in the adapter
// state and everything the attempt acquired is released, so a later Start
// retries from scratch instead of reporting success against dead transport.
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.client != nil && a.client.IsConnected() {
		return nil
	}

	apiKey, err := a.creds.SocketKey(ctx)
	if err != nil {
		a.failStartLocked(err)
		return err
	}

	client := NewClient(a.url, apiKey, a.toolset, a.logger)
	client.OnConversationChanged = func() { a.refreshChatFrom(client) }
	client.OnAudioDelta = a.playAudioChunk
	client.OnInterrupted = a.onInterrupted
	client.OnError = a.onTransportError

	if err := client.Connect(ctx); err != nil {
		a.failStartLocked(err)
		return err
	}
	a.client = client

	if err := client.ConfigureSession(sessionInstructions, sessionVoice, transcriptionModel); err != nil {
		a.failStartLocked(err)
		return err
	}
	if err := client.WaitReady(ctx); err != nil {
		a.failStartLocked(err)
		return err
	}

	sink, err := audio.NewSink(a.device, a.logger)
	if err != nil {
		devErr := realtime.NewDeviceError("playback device", err)
		a.failStartLocked(devErr)
		return devErr
	}
	a.sink = sink
	a.scheduler = audio.NewScheduler(sink, a.device.SampleRate, a.clock, a.logger)

	source, err := audio.NewSource(a.device, a.logger)
	if err != nil {
		devErr := realtime.NewDeviceError("capture device", err)
		a.failStartLocked(devErr)
		return devErr
	}
	a.source = source

	capture := audio.NewCapture(source, a, a.clock, a.state.Active, a.logger)
	if err := capture.Start(ctx); err != nil {
		devErr := realtime.NewDeviceError("capture start", err)
		a.failStartLocked(devErr)
		return devErr
	}
	a.capture = capture

	a.state.Update(func(s *realtime.State) {
		s.Active = true
		s.Err = nil
		s.Chat = mapItemsToChat(client.Items())
	})

	if err := client.CreateUserMessage(newMessageID(), greetingText); err != nil {
		a.logger.Warn("greeting send failed", "error", err)
	}

	a.logger.Info("session started")
	return nil
}

// Stop tears everything down. Safe from any state and safe to repeat.
func (a *Adapter) Stop() {
	a.mu.Lock()
	client := a.client
	capture := a.capture
	source := a.source
	sink := a.sink
	scheduler := a.scheduler
	a.client = nil
	a.capture = nil
	a.source = nil
	a.sink = nil
	a.scheduler = nil
	a.mu.Unlock()

	a.state.Update(func(s *realtime.State) {
		s.Active = false
		s.Chat = nil
	})

	if capture != nil {
		capture.Stop()
	}
	if client != nil {
		client.Close()
	}
	if source != nil {
		_ = source.Close()
	}
	if sink != nil {
		_ = sink.Close()
	}
	if scheduler != nil {
		scheduler.Reset()
	}
}

// Reset deletes every conversation item and rewinds playback timing. The
// transport stays connected.
func (a *Adapter) Reset() {
	a.mu.Lock()
	client := a.client
	scheduler := a.scheduler
	a.mu.Unlock()

	if client != nil {
		for _, item := range client.Items() {
			if err := client.DeleteItem(item.ID); err != nil {
				a.logger.Warn("item delete failed", "id", item.ID, "error", err)
			}
		}
		a.refreshChatFrom(client)
	}
	if scheduler != nil {
		scheduler.Reset()
	}
}

// SendUserText forwards a typed turn. A no-op while inactive.
func (a *Adapter) SendUserText(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	a.mu.Lock()
	client := a.client
	a.mu.Unlock()
	if client == nil || !client.IsConnected() {
		return
	}
	if err := client.CreateUserMessage(newMessageID(), text); err != nil {
		a.logger.Warn("user text send failed", "error", err)
	}
}

// SendUserAudioChunk forwards externally captured PCM16. A no-op while
// inactive.
func (a *Adapter) SendUserAudioChunk(pcm []int16) {
	a.mu.Lock()
	client := a.client
	a.mu.Unlock()
	if client == nil || !client.IsConnected() {
		return
	}
	if err := client.SendAudio(audio.SamplesToBytes(pcm)); err != nil {
		a.logger.Warn("audio chunk send failed", "error", err)
	}
}

// State returns a snapshot of the adapter state.
func (a *Adapter) State() realtime.State { return a.state.Snapshot() }

// Subscribe registers a state listener, returning its remove func.
func (a *Adapter) Subscribe(fn func()) func() { return a.state.Subscribe(fn) }

// Capabilities reports the vendor surface.
func (a *Adapter) Capabilities() realtime.Capabilities {
	return realtime.Capabilities{
		AudioIn:          true,
		AudioOut:         true,
		ToolCalls:        true,
		TranscriptionIn:  true,
		TranscriptionOut: true,
	}
}

// SendAudioFrame implements audio.FrameSink for the capture pump.
func (a *Adapter) SendAudioFrame(pcm []int16, sampleRate int) error {
	a.mu.Lock()
	client := a.client
	a.mu.Unlock()
	if client == nil {
		return realtime.ErrNotActive
	}
	return client.SendAudio(audio.SamplesToBytes(pcm))
}

// SendStreamEnd implements audio.FrameSink. It commits the input buffer so
// the server finalizes the turn even when its voice detection stays quiet.
func (a *Adapter) SendStreamEnd() error {
	a.mu.Lock()
	client := a.client
	a.mu.Unlock()
	if client == nil {
		return realtime.ErrNotActive
	}
	return client.CommitAudio()
}

// refreshChatFrom rebuilds the transcript from the mirrored item list. The
// item list is the single source of truth; partial updates are never
// applied. The client is passed in so conversation callbacks never contend
// with Start's lock.
func (a *Adapter) refreshChatFrom(client *Client) {
	chat := mapItemsToChat(client.Items())
	a.state.Update(func(s *realtime.State) {
		s.Chat = chat
	})
}

func mapItemsToChat(items []Item) []realtime.ChatMessage {
	out := make([]realtime.ChatMessage, 0, len(items))
	for _, item := range items {
		if item.Type != "message" {
			continue
		}
		if item.Role != "user" && item.Role != "assistant" {
			continue
		}
		var text string
		for _, c := range item.Content {
			switch c.Type {
			case "input_text", "text":
				text = c.Text
			case "input_audio", "audio":
				if c.Transcript != "" {
					text = c.Transcript
				}
			}
		}
		out = append(out, realtime.ChatMessage{
			ID:        item.ID,
			Role:      realtime.Role(item.Role),
			Text:      text,
			Streaming: item.Status == "in_progress",
		})
	}
	return out
}

func (a *Adapter) playAudioChunk(pcm []int16) {
	if !a.state.Active() {
		return
	}
	a.mu.Lock()
	scheduler := a.scheduler
	a.mu.Unlock()
	if scheduler == nil {
		return
	}
	if _, err := scheduler.Schedule(pcm); err != nil {
		a.logger.Warn("audio chunk playback failed", "error", err)
	}
}

func (a *Adapter) onInterrupted() {
	a.mu.Lock()
	scheduler := a.scheduler
	a.mu.Unlock()
	if scheduler != nil {
		scheduler.Reset()
	}
}

func (a *Adapter) onTransportError(err error) {
	a.logger.Error("transport error", "error", err)
	a.state.Update(func(s *realtime.State) {
		s.Err = err
	})
}

// failStartLocked records a start failure and releases whatever the failed
// attempt acquired, restoring the pre-Start shape so a retry reconnects
// instead of short-circuiting on a dead transport. The capture pump is never
// running on this path; stopping one here would deadlock on the adapter lock.
func (a *Adapter) failStartLocked(err error) {
	client := a.client
	source := a.source
	sink := a.sink
	a.client = nil
	a.capture = nil
	a.source = nil
	a.sink = nil
	a.scheduler = nil

	if client != nil {
		client.Close()
	}
	if source != nil {
		_ = source.Close()
	}
	if sink != nil {
		_ = sink.Close()
	}
	a.state.Update(func(s *realtime.State) {
		s.Active = false
		s.Err = err
	})
}

func newMessageID() string {
	return "user_" + uuid.NewString()
}
