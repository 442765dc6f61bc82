// Package rtclive implements the duplex media-channel voice provider. The
// adapter owns the protocol directly: a peer connection carries opus audio
// both ways and a data channel carries JSON events, negotiated by posting an
// SDP offer to the vendor's signaling endpoint.
package rtclive

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
	opus "gopkg.in/hraban/opus.v2"

	"github.com/voicedeck/voicedeck/internal/config"
	"github.com/voicedeck/voicedeck/internal/httpc"
	"github.com/voicedeck/voicedeck/pkg/audio"
	"github.com/voicedeck/voicedeck/pkg/creds"
	"github.com/voicedeck/voicedeck/pkg/flashcards"
	"github.com/voicedeck/voicedeck/pkg/realtime"
)

const (
	trackSampleRate  = 48000 // opus over the peer connection
	outputSampleRate = 24000 // vendor's PCM rate behind the opus leg
	frameSamples     = 960   // 20ms at 48kHz
	frameDuration    = 20 * time.Millisecond

	sessionVoice = "alloy"

	sessionInstructions = "You are a helpful language learning assistant. " +
		"Please respond only in English. Keep your responses conversational " +
		"and encouraging for language learners. You have access to flashcard " +
		"tools to help with practice sessions - you can get the current " +
		"flashcard, flip it to show the answer, advance to the next card, or " +
		"restart the deck."
)

// transcriptionModels is tried in order at session-configuration time. When
// the vendor's session.updated comes back without transcription enabled the
// next identifier is sent. The empty terminal entry means "no model
// specified" and is always accepted.
var transcriptionModels = []string{"gpt-4o-transcribe", "whisper-1", ""}

// Options configures an Adapter. Zero values fall back to the environment
// defaults.
type Options struct {
	SignalURL string
	Creds     *creds.Client
	Store     *flashcards.Store
	Device    audio.DeviceConfig
	Clock     audio.Clock
	HTTP      *http.Client
	Logger    *slog.Logger
}

// Adapter implements realtime.Adapter over the WebRTC vendor.
type Adapter struct {
	signalURL string
	creds     *creds.Client
	toolset   *flashcards.ToolSet
	device    audio.DeviceConfig
	clock     audio.Clock
	hc        *http.Client
	logger    *slog.Logger
	state     *realtime.StateStore

	mu        sync.Mutex
	pc        *webrtc.PeerConnection
	dc        *webrtc.DataChannel
	outTrack  *webrtc.TrackLocalStaticSample
	encoder   *opus.Encoder
	pending   []int16 // 48kHz samples awaiting a full opus frame
	capture   *audio.Capture
	source    audio.Source
	sink      audio.Sink
	scheduler *audio.Scheduler
	tr        *transcripts
	attempt   int
}

// New creates an inactive adapter. Nothing connects until Start.
func New(opts Options) *Adapter {
	if opts.SignalURL == "" {
		opts.SignalURL = config.RTCSignalURL()
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
	if opts.HTTP == nil {
		opts.HTTP = httpc.Client
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	logger := opts.Logger.With("provider", "rtc")
	return &Adapter{
		signalURL: opts.SignalURL,
		creds:     opts.Creds,
		toolset:   flashcards.NewToolSet(flashcards.Tools(opts.Store), logger),
		device:    opts.Device,
		clock:     opts.Clock,
		hc:        opts.HTTP,
		logger:    logger,
		state:     realtime.NewStateStore(),
		tr:        newTranscripts(),
	}
}

// Start mints an ephemeral key, negotiates the peer connection, and begins
// capture. The session only reports active once the data channel opens and
// the configuration event has been sent. A failed attempt releases
// everything it acquired, so the next Start negotiates from scratch; the
// peer connection only survives this call on success.
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pc != nil {
		return nil
	}

	ephemeralKey, _, err := a.creds.RTCKey(ctx)
	if err != nil {
		a.failStartLocked(err)
		return err
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		terr := realtime.NewTransportError("peer connection", err)
		a.failStartLocked(terr)
		return terr
	}
	a.pc = pc

	outTrack, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{
		MimeType:  webrtc.MimeTypeOpus,
		ClockRate: trackSampleRate,
		Channels:  1,
	}, "mic-audio", "voicedeck")
	if err != nil {
		terr := realtime.NewTransportError("local track", err)
		a.failStartLocked(terr)
		return terr
	}
	if _, err := pc.AddTrack(outTrack); err != nil {
		terr := realtime.NewTransportError("add track", err)
		a.failStartLocked(terr)
		return terr
	}
	a.outTrack = outTrack

	encoder, err := opus.NewEncoder(trackSampleRate, 1, opus.AppVoIP)
	if err != nil {
		terr := realtime.NewTransportError("opus encoder", err)
		a.failStartLocked(terr)
		return terr
	}
	a.encoder = encoder

	dc, err := pc.CreateDataChannel("events", nil)
	if err != nil {
		terr := realtime.NewTransportError("data channel", err)
		a.failStartLocked(terr)
		return terr
	}
	a.dc = dc

	dc.OnOpen(func() { a.dataChannelOpened(pc) })
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		a.dataChannelMessage(pc, msg.Data)
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if track.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		a.logger.Info("remote track", "codec", track.Codec().MimeType)
		go a.playRemoteTrack(track)
	})
	pc.OnConnectionStateChange(func(cs webrtc.PeerConnectionState) {
		a.logger.Debug("peer connection state", "state", cs.String())
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		terr := realtime.NewTransportError("create offer", err)
		a.failStartLocked(terr)
		return terr
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		terr := realtime.NewTransportError("local description", err)
		a.failStartLocked(terr)
		return terr
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		terr := realtime.NewTransportError("ice gathering", ctx.Err())
		a.failStartLocked(terr)
		return terr
	}

	answerSDP, err := exchangeOffer(ctx, a.hc, a.signalURL, ephemeralKey,
		pc.LocalDescription().SDP)
	if err != nil {
		a.failStartLocked(err)
		return err
	}
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answerSDP,
	}); err != nil {
		terr := realtime.NewTransportError("remote description", err)
		a.failStartLocked(terr)
		return terr
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

	a.logger.Info("session negotiated")
	return nil
}

// Stop closes the data channel, the peer connection, and every device, and
// clears all accumulation buffers. Safe from any state and safe to repeat.
func (a *Adapter) Stop() {
	a.mu.Lock()
	dc := a.dc
	pc := a.pc
	capture := a.capture
	source := a.source
	sink := a.sink
	scheduler := a.scheduler
	a.dc = nil
	a.pc = nil
	a.outTrack = nil
	a.encoder = nil
	a.capture = nil
	a.source = nil
	a.sink = nil
	a.scheduler = nil
	a.pending = nil
	a.tr.reset()
	a.mu.Unlock()

	a.state.Update(func(s *realtime.State) {
		s.Active = false
		s.Chat = nil
	})

	if capture != nil {
		capture.Stop()
	}
	if dc != nil {
		_ = dc.Close()
	}
	if pc != nil {
		_ = pc.Close()
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

// Reset clears the locally accumulated transcript and rewinds playback. The
// peer connection stays up.
func (a *Adapter) Reset() {
	a.mu.Lock()
	a.tr.reset()
	scheduler := a.scheduler
	a.mu.Unlock()

	if scheduler != nil {
		scheduler.Reset()
	}
	a.state.Update(func(s *realtime.State) {
		s.Chat = nil
	})
}

// SendUserText appends the turn locally under a generated id and forwards it
// with that same id, so the server's item-created echo dedupes instead of
// doubling the message. A no-op while inactive.
func (a *Adapter) SendUserText(text string) {
	text = strings.TrimSpace(text)
	if text == "" || !a.state.Active() {
		return
	}
	id := "user_" + uuid.NewString()
	a.appendChat(realtime.ChatMessage{ID: id, Role: realtime.RoleUser, Text: text})

	if err := a.sendEvent(map[string]any{
		"type": "conversation.item.create",
		"item": map[string]any{
			"id":   id,
			"type": "message",
			"role": "user",
			"content": []map[string]any{
				{"type": "input_text", "text": text},
			},
		},
	}); err != nil {
		a.logger.Warn("user text send failed", "error", err)
		return
	}
	if err := a.sendEvent(map[string]string{"type": "response.create"}); err != nil {
		a.logger.Warn("response trigger send failed", "error", err)
	}
}

// SendUserAudioChunk forwards externally captured 24kHz PCM16. A no-op while
// inactive.
func (a *Adapter) SendUserAudioChunk(pcm []int16) {
	if !a.state.Active() {
		return
	}
	if err := a.writeAudio(pcm, outputSampleRate); err != nil {
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
	if !a.state.Active() {
		return realtime.ErrNotActive
	}
	return a.writeAudio(pcm, sampleRate)
}

// SendStreamEnd implements audio.FrameSink. The quiet-input flush commits
// the turn explicitly in case server-side voice detection never fires.
func (a *Adapter) SendStreamEnd() error {
	if !a.state.Active() {
		return realtime.ErrNotActive
	}
	return a.sendEvent(map[string]string{"type": "input_audio_buffer.commit"})
}

// writeAudio resamples to the track rate, buffers, and writes whole opus
// frames to the outbound track.
func (a *Adapter) writeAudio(pcm []int16, sampleRate int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.outTrack == nil || a.encoder == nil {
		return realtime.ErrNotActive
	}

	if sampleRate != trackSampleRate {
		pcm = audio.Resample(pcm, sampleRate, trackSampleRate)
	}
	a.pending = append(a.pending, pcm...)

	opusBuf := make([]byte, 4000)
	for len(a.pending) >= frameSamples {
		frame := a.pending[:frameSamples]
		n, err := a.encoder.Encode(frame, opusBuf)
		if err != nil {
			return realtime.NewTransportError("opus encode", err)
		}
		if n > 0 {
			pkt := make([]byte, n)
			copy(pkt, opusBuf[:n])
			if err := a.outTrack.WriteSample(media.Sample{
				Data:     pkt,
				Duration: frameDuration,
			}); err != nil {
				return realtime.NewTransportError("track write", err)
			}
		}
		a.pending = a.pending[frameSamples:]
	}
	return nil
}

// playRemoteTrack decodes inbound opus to PCM and hands it to the playback
// scheduler after downmixing to mono and downsampling to the vendor's PCM
// rate.
func (a *Adapter) playRemoteTrack(track *webrtc.TrackRemote) {
	channels := int(track.Codec().Channels)
	if channels < 1 {
		channels = 1
	}
	decoder, err := opus.NewDecoder(trackSampleRate, channels)
	if err != nil {
		a.logger.Error("opus decoder", "error", err)
		return
	}
	// 120ms at 48kHz is the longest legal opus frame.
	frameBuf := make([]int16, 5760*channels)

	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			return
		}
		if !a.state.Active() {
			continue
		}
		samples, err := decodePacket(decoder, channels, pkt, frameBuf)
		if err != nil {
			a.logger.Debug("opus decode failed", "error", err)
			continue
		}
		if channels == 2 {
			samples = audio.StereoToMono(samples)
		}
		a.logger.Debug("remote audio frame",
			"samples", len(samples), "rms", audio.RMSInt16(samples))

		a.mu.Lock()
		scheduler := a.scheduler
		a.mu.Unlock()
		if scheduler == nil {
			continue
		}
		pcm := audio.Resample(samples, trackSampleRate, a.device.SampleRate)
		if _, err := scheduler.Schedule(pcm); err != nil {
			a.logger.Warn("remote audio playback failed", "error", err)
		}
	}
}

// decodePacket decodes one RTP payload into interleaved PCM16. The decoder
// reports samples per channel.
func decodePacket(decoder *opus.Decoder, channels int, pkt *rtp.Packet, frameBuf []int16) ([]int16, error) {
	n, err := decoder.Decode(pkt.Payload, frameBuf)
	if err != nil {
		return nil, err
	}
	out := make([]int16, n*channels)
	copy(out, frameBuf[:n*channels])
	return out, nil
}

// sendSessionConfig sends the session-configuration event for the given
// trial index. An empty model identifier omits transcription config.
func (a *Adapter) sendSessionConfig(attempt int) error {
	apiTools := make([]map[string]any, 0, len(a.toolset.List()))
	for _, tool := range a.toolset.List() {
		apiTools = append(apiTools, map[string]any{
			"type":        "function",
			"name":        tool.Name,
			"description": tool.Description,
			"parameters":  tool.Parameters,
		})
	}

	session := map[string]any{
		"modalities":   []string{"text", "audio"},
		"instructions": sessionInstructions,
		"voice":        sessionVoice,
		"turn_detection": map[string]any{
			"type": "server_vad",
		},
		"tools":       apiTools,
		"tool_choice": "auto",
	}
	if model := transcriptionModels[attempt]; model != "" {
		session["input_audio_transcription"] = map[string]any{"model": model}
	}

	a.logger.Info("sending session config",
		"attempt", attempt, "transcription_model", transcriptionModels[attempt])
	return a.sendEvent(map[string]any{
		"type":    "session.update",
		"session": session,
	})
}

func (a *Adapter) handleEvent(data []byte) {
	env, err := decode[envelope](data)
	if err != nil {
		a.logger.Warn("unparseable event", "error", err)
		return
	}

	switch env.Type {
	case evSessionUpdated:
		a.onSessionUpdated(data)
	case evItemCreated:
		a.onItemCreated(data)
	case evInputTranscriptDelta:
		a.onInputDelta(data)
	case evInputTranscriptDone:
		a.onInputDone(data)
	case evInputTranscriptFailed:
		a.onInputFailed(data)
	case evOutputTranscriptDelta:
		a.onOutputDelta(data)
	case evOutputTranscriptDone:
		a.onOutputDone(data)
	case evFunctionCallDone:
		a.onFunctionCall(data)
	case evError:
		ev, err := decode[errorEvent](data)
		if err != nil {
			a.logger.Warn("malformed error event", "error", err)
			return
		}
		serr := realtime.NewTransportError("server",
			fmt.Errorf("%s: %s", ev.Error.Code, ev.Error.Message))
		a.logger.Error("server error", "error", serr)
		a.state.Update(func(s *realtime.State) { s.Err = serr })
	default:
		a.logger.Debug("unhandled event kind", "type", env.Type)
	}
}

// onSessionUpdated advances the transcription model trial when the server
// accepted the update but quietly dropped the transcription config.
func (a *Adapter) onSessionUpdated(data []byte) {
	ev, err := decode[sessionUpdatedEvent](data)
	if err != nil {
		a.logger.Warn("malformed session event", "error", err)
		return
	}
	if ev.Session.InputAudioTranscription != nil {
		a.logger.Info("transcription enabled",
			"model", ev.Session.InputAudioTranscription.Model)
		return
	}

	a.mu.Lock()
	next := a.attempt + 1
	if next >= len(transcriptionModels) {
		a.mu.Unlock()
		return
	}
	a.attempt = next
	a.mu.Unlock()

	a.logger.Info("transcription model rejected, trying next", "attempt", next)
	if err := a.sendSessionConfig(next); err != nil {
		a.logger.Warn("session config resend failed", "error", err)
	}
}

func (a *Adapter) onItemCreated(data []byte) {
	ev, err := decode[itemCreatedEvent](data)
	if err != nil {
		a.logger.Warn("malformed item event", "error", err)
		return
	}
	item := ev.Item
	if item.Type != "message" || item.ID == "" {
		return
	}
	if item.Role != "user" && item.Role != "assistant" {
		return
	}

	text := ""
	if len(item.Content) > 0 {
		c := item.Content[0]
		switch c.Type {
		case "input_text", "text":
			text = c.Text
		case "input_audio", "audio":
			if c.Transcript != "" {
				text = c.Transcript
			} else {
				text = pendingTranscript
			}
		}
	}
	if text == noiseToken {
		return
	}
	a.appendChat(realtime.ChatMessage{
		ID:   item.ID,
		Role: realtime.Role(item.Role),
		Text: text,
	})
}

func (a *Adapter) onInputDelta(data []byte) {
	ev, err := decode[transcriptEvent](data)
	if err != nil || ev.ItemID == "" {
		return
	}
	if ev.Delta == noiseToken {
		return
	}
	a.mu.Lock()
	a.tr.input[ev.ItemID] += ev.Delta
	text := a.tr.input[ev.ItemID]
	a.mu.Unlock()
	a.patchChat(ev.ItemID, text, true)
}

func (a *Adapter) onInputDone(data []byte) {
	ev, err := decode[transcriptEvent](data)
	if err != nil || ev.ItemID == "" {
		return
	}
	a.mu.Lock()
	text := ev.Transcript
	if text == "" {
		text = a.tr.input[ev.ItemID]
	}
	delete(a.tr.input, ev.ItemID)
	a.mu.Unlock()
	a.patchChat(ev.ItemID, text, false)
}

func (a *Adapter) onInputFailed(data []byte) {
	ev, err := decode[transcriptEvent](data)
	if err != nil || ev.ItemID == "" {
		return
	}
	a.mu.Lock()
	delete(a.tr.input, ev.ItemID)
	a.mu.Unlock()
	a.patchChat(ev.ItemID, failedTranscript, false)
}

// onOutputDelta accumulates assistant speech. The first delta of a turn
// creates one shared streaming entry that later deltas update in place.
func (a *Adapter) onOutputDelta(data []byte) {
	ev, err := decode[transcriptEvent](data)
	if err != nil || ev.ItemID == "" {
		return
	}
	if ev.Delta == noiseToken {
		return
	}

	a.mu.Lock()
	merged, changed := mergeDelta(a.tr.output[ev.ItemID], ev.Delta)
	if !changed {
		a.mu.Unlock()
		return
	}
	a.tr.output[ev.ItemID] = merged
	first := !a.tr.streaming
	a.tr.streaming = true
	a.mu.Unlock()

	if first {
		a.appendChat(realtime.ChatMessage{
			ID:        streamingPlaceholderID,
			Role:      realtime.RoleAssistant,
			Text:      merged,
			Streaming: true,
		})
		return
	}
	a.patchChat(streamingPlaceholderID, merged, true)
}

// onOutputDone finalizes the turn: the placeholder entry is rekeyed to the
// real item id. A turn that produced audio but no transcript is kept as a
// fixed audio-only entry.
func (a *Adapter) onOutputDone(data []byte) {
	ev, err := decode[transcriptEvent](data)
	if err != nil || ev.ItemID == "" {
		return
	}

	a.mu.Lock()
	text := ev.Transcript
	if text == "" {
		text = a.tr.output[ev.ItemID]
	}
	if text == "" {
		text = audioOnlyText
	}
	wasStreaming := a.tr.streaming
	a.tr.streaming = false
	delete(a.tr.output, ev.ItemID)
	a.mu.Unlock()

	if wasStreaming {
		a.replaceChat(streamingPlaceholderID, realtime.ChatMessage{
			ID:   ev.ItemID,
			Role: realtime.RoleAssistant,
			Text: text,
		})
		return
	}
	a.appendChat(realtime.ChatMessage{
		ID:   ev.ItemID,
		Role: realtime.RoleAssistant,
		Text: text,
	})
}

func (a *Adapter) onFunctionCall(data []byte) {
	ev, err := decode[functionCallEvent](data)
	if err != nil {
		a.logger.Warn("malformed function call event", "error", err)
		return
	}
	args := map[string]any{}
	if ev.Arguments != "" {
		if parsed, perr := decode[map[string]any]([]byte(ev.Arguments)); perr == nil {
			args = parsed
		}
	}

	a.logger.Info("tool call received", "name", ev.Name, "call_id", ev.CallID)
	output := a.toolset.DispatchJSON(ev.Name, args)

	if err := a.sendEvent(map[string]any{
		"type": "conversation.item.create",
		"item": map[string]any{
			"type":    "function_call_output",
			"call_id": ev.CallID,
			"output":  output,
		},
	}); err != nil {
		a.logger.Warn("tool result send failed", "error", err)
		return
	}
	if err := a.sendEvent(map[string]string{"type": "response.create"}); err != nil {
		a.logger.Warn("response trigger send failed", "error", err)
	}
}

// appendChat adds a message unless an entry with that id already exists.
func (a *Adapter) appendChat(msg realtime.ChatMessage) {
	a.state.Update(func(s *realtime.State) {
		for _, existing := range s.Chat {
			if existing.ID == msg.ID {
				return
			}
		}
		s.Chat = append(s.Chat, msg)
	})
}

// patchChat rewrites the text of the entry with the given id, if present.
func (a *Adapter) patchChat(id, text string, streaming bool) {
	a.state.Update(func(s *realtime.State) {
		for i := range s.Chat {
			if s.Chat[i].ID == id {
				s.Chat[i].Text = text
				s.Chat[i].Streaming = streaming
				return
			}
		}
	})
}

// replaceChat swaps the entry with the given id for a new one in place.
func (a *Adapter) replaceChat(id string, msg realtime.ChatMessage) {
	a.state.Update(func(s *realtime.State) {
		for i := range s.Chat {
			if s.Chat[i].ID == id {
				s.Chat[i] = msg
				return
			}
		}
		s.Chat = append(s.Chat, msg)
	})
}

func (a *Adapter) sendEvent(v any) error {
	a.mu.Lock()
	dc := a.dc
	a.mu.Unlock()
	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return realtime.ErrNotActive
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := dc.SendText(string(b)); err != nil {
		return realtime.NewTransportError("data channel send", err)
	}
	return nil
}

// dataChannelOpened marks the session live once the events channel opens.
// The owning peer connection is checked first: a failed or stopped Start has
// already discarded its connection, and a late open on that connection must
// not resurrect the session.
func (a *Adapter) dataChannelOpened(pc *webrtc.PeerConnection) {
	a.mu.Lock()
	if a.pc != pc {
		a.mu.Unlock()
		return
	}
	a.attempt = 0
	a.mu.Unlock()

	a.logger.Info("data channel open")
	if err := a.sendSessionConfig(0); err != nil {
		a.logger.Warn("session config send failed", "error", err)
	}
	a.state.Update(func(s *realtime.State) {
		s.Active = true
		s.Err = nil
	})
}

// dataChannelMessage drops events from a discarded peer connection.
func (a *Adapter) dataChannelMessage(pc *webrtc.PeerConnection, data []byte) {
	a.mu.Lock()
	live := a.pc == pc
	a.mu.Unlock()
	if !live {
		return
	}
	a.handleEvent(data)
}

// failStartLocked records a start failure and releases everything the failed
// attempt acquired, so a later Start negotiates from scratch. Closing the
// peer connection also abandons any in-flight negotiation, backstopping the
// ownership check in dataChannelOpened. The capture pump is never running on
// this path; stopping one here would deadlock on the adapter lock.
func (a *Adapter) failStartLocked(err error) {
	dc := a.dc
	pc := a.pc
	source := a.source
	sink := a.sink
	a.dc = nil
	a.pc = nil
	a.outTrack = nil
	a.encoder = nil
	a.capture = nil
	a.source = nil
	a.sink = nil
	a.scheduler = nil
	a.pending = nil
	a.tr.reset()

	if dc != nil {
		_ = dc.Close()
	}
	if pc != nil {
		_ = pc.Close()
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
