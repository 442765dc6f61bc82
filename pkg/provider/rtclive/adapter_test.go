package rtclive

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	opus "gopkg.in/hraban/opus.v2"

	"github.com/voicedeck/voicedeck/pkg/audio"
	"github.com/voicedeck/voicedeck/pkg/creds"
	"github.com/voicedeck/voicedeck/pkg/realtime"
)

func mockDevice() audio.DeviceConfig {
	return audio.DeviceConfig{
		Backend:        audio.BackendMock,
		SampleRate:     24000,
		BufferDuration: 20 * time.Millisecond,
	}
}

// testAdapter builds an adapter whose event handling can be driven directly
// with raw JSON frames, without a peer connection.
func testAdapter(t *testing.T) *Adapter {
	t.Helper()
	return New(Options{Device: mockDevice()})
}

func chatByID(state realtime.State, id string) *realtime.ChatMessage {
	for i := range state.Chat {
		if state.Chat[i].ID == id {
			return &state.Chat[i]
		}
	}
	return nil
}

func TestHandleEvent_ItemCreated(t *testing.T) {
	a := testAdapter(t)

	a.handleEvent([]byte(`{
		"type": "conversation.item.created",
		"item": {
			"id": "item_1", "type": "message", "role": "user",
			"content": [{"type": "input_text", "text": "hola"}]
		}
	}`))

	msg := chatByID(a.State(), "item_1")
	if msg == nil {
		t.Fatal("Expected chat entry for item_1")
	}
	if msg.Text != "hola" || msg.Role != realtime.RoleUser {
		t.Errorf("Unexpected entry: %+v", msg)
	}

	// The same id again must not duplicate.
	a.handleEvent([]byte(`{
		"type": "conversation.item.created",
		"item": {
			"id": "item_1", "type": "message", "role": "user",
			"content": [{"type": "input_text", "text": "hola"}]
		}
	}`))
	if got := len(a.State().Chat); got != 1 {
		t.Errorf("Expected 1 entry after duplicate, got %d", got)
	}
}

func TestHandleEvent_ItemCreatedAudioPending(t *testing.T) {
	a := testAdapter(t)

	a.handleEvent([]byte(`{
		"type": "conversation.item.created",
		"item": {
			"id": "item_2", "type": "message", "role": "user",
			"content": [{"type": "input_audio"}]
		}
	}`))

	msg := chatByID(a.State(), "item_2")
	if msg == nil || msg.Text != pendingTranscript {
		t.Errorf("Expected pending placeholder, got %+v", msg)
	}
}

func TestHandleEvent_ItemCreatedFiltersRoles(t *testing.T) {
	a := testAdapter(t)

	a.handleEvent([]byte(`{
		"type": "conversation.item.created",
		"item": {"id": "s1", "type": "message", "role": "system",
			"content": [{"type": "text", "text": "internal"}]}
	}`))
	a.handleEvent([]byte(`{
		"type": "conversation.item.created",
		"item": {"id": "f1", "type": "function_call", "role": "assistant"}
	}`))

	if got := len(a.State().Chat); got != 0 {
		t.Errorf("Expected non-message and system items filtered, got %d entries", got)
	}
}

func TestHandleEvent_InputTranscriptLifecycle(t *testing.T) {
	a := testAdapter(t)
	a.handleEvent([]byte(`{
		"type": "conversation.item.created",
		"item": {"id": "item_3", "type": "message", "role": "user",
			"content": [{"type": "input_audio"}]}
	}`))

	a.handleEvent([]byte(`{
		"type": "conversation.item.input_audio_transcription.delta",
		"item_id": "item_3", "delta": "como"
	}`))
	a.handleEvent([]byte(`{
		"type": "conversation.item.input_audio_transcription.delta",
		"item_id": "item_3", "delta": " estas"
	}`))

	if msg := chatByID(a.State(), "item_3"); msg == nil || msg.Text != "como estas" {
		t.Fatalf("Expected accumulated input transcript, got %+v", msg)
	}

	a.handleEvent([]byte(`{
		"type": "conversation.item.input_audio_transcription.completed",
		"item_id": "item_3", "transcript": "¿Cómo estás?"
	}`))

	msg := chatByID(a.State(), "item_3")
	if msg.Text != "¿Cómo estás?" {
		t.Errorf("Expected final transcript to replace buffer, got %q", msg.Text)
	}
	if msg.Streaming {
		t.Error("Expected streaming cleared on completion")
	}
}

func TestHandleEvent_InputTranscriptCompletedKeepsBuffer(t *testing.T) {
	a := testAdapter(t)
	a.handleEvent([]byte(`{
		"type": "conversation.item.created",
		"item": {"id": "item_4", "type": "message", "role": "user",
			"content": [{"type": "input_audio"}]}
	}`))
	a.handleEvent([]byte(`{
		"type": "conversation.item.input_audio_transcription.delta",
		"item_id": "item_4", "delta": "buenos dias"
	}`))
	a.handleEvent([]byte(`{
		"type": "conversation.item.input_audio_transcription.completed",
		"item_id": "item_4"
	}`))

	if msg := chatByID(a.State(), "item_4"); msg.Text != "buenos dias" {
		t.Errorf("Expected accumulated buffer kept when no final transcript, got %q", msg.Text)
	}
}

func TestHandleEvent_InputTranscriptFailed(t *testing.T) {
	a := testAdapter(t)
	a.handleEvent([]byte(`{
		"type": "conversation.item.created",
		"item": {"id": "item_5", "type": "message", "role": "user",
			"content": [{"type": "input_audio"}]}
	}`))
	a.handleEvent([]byte(`{
		"type": "conversation.item.input_audio_transcription.failed",
		"item_id": "item_5"
	}`))

	if msg := chatByID(a.State(), "item_5"); msg.Text != failedTranscript {
		t.Errorf("Expected failure placeholder, got %q", msg.Text)
	}
}

func TestHandleEvent_OutputTranscriptStreaming(t *testing.T) {
	a := testAdapter(t)

	a.handleEvent([]byte(`{
		"type": "response.audio_transcript.delta",
		"item_id": "resp_1", "delta": "I can"
	}`))

	msg := chatByID(a.State(), streamingPlaceholderID)
	if msg == nil {
		t.Fatal("Expected shared streaming placeholder on first delta")
	}
	if !msg.Streaming || msg.Role != realtime.RoleAssistant {
		t.Errorf("Unexpected placeholder: %+v", msg)
	}

	a.handleEvent([]byte(`{
		"type": "response.audio_transcript.delta",
		"item_id": "resp_1", "delta": " help"
	}`))
	// Duplicate delivery of the same delta is dropped.
	a.handleEvent([]byte(`{
		"type": "response.audio_transcript.delta",
		"item_id": "resp_1", "delta": " help"
	}`))

	msg = chatByID(a.State(), streamingPlaceholderID)
	if msg.Text != "I can help" {
		t.Errorf("Expected deduplicated accumulation, got %q", msg.Text)
	}
	if got := len(a.State().Chat); got != 1 {
		t.Errorf("Expected one shared streaming entry, got %d", got)
	}

	a.handleEvent([]byte(`{
		"type": "response.audio_transcript.done",
		"item_id": "resp_1", "transcript": "I can help with that."
	}`))

	if placeholder := chatByID(a.State(), streamingPlaceholderID); placeholder != nil {
		t.Error("Expected placeholder replaced by real item id")
	}
	final := chatByID(a.State(), "resp_1")
	if final == nil {
		t.Fatal("Expected finalized entry under real item id")
	}
	if final.Text != "I can help with that." || final.Streaming {
		t.Errorf("Unexpected final entry: %+v", final)
	}
}

func TestHandleEvent_OutputDoneWithoutTranscriptIsAudioOnly(t *testing.T) {
	a := testAdapter(t)

	a.handleEvent([]byte(`{
		"type": "response.audio_transcript.done",
		"item_id": "resp_2"
	}`))

	msg := chatByID(a.State(), "resp_2")
	if msg == nil || msg.Text != audioOnlyText {
		t.Errorf("Expected audio-only fallback entry, got %+v", msg)
	}
}

func TestHandleEvent_NoiseTokenSkipped(t *testing.T) {
	a := testAdapter(t)

	a.handleEvent([]byte(fmt.Sprintf(`{
		"type": "response.audio_transcript.delta",
		"item_id": "resp_3", "delta": %q
	}`, noiseToken)))

	if got := len(a.State().Chat); got != 0 {
		t.Errorf("Expected noise token dropped, got %d entries", got)
	}
}

func TestHandleEvent_SessionUpdatedAdvancesTrial(t *testing.T) {
	a := testAdapter(t)

	// No transcription config in the ack: try the next model.
	a.handleEvent([]byte(`{"type": "session.updated", "session": {}}`))

	a.mu.Lock()
	attempt := a.attempt
	a.mu.Unlock()
	if attempt != 1 {
		t.Errorf("Expected attempt advanced to 1, got %d", attempt)
	}

	// Rejected again: fall back to the terminal no-model entry.
	a.handleEvent([]byte(`{"type": "session.updated", "session": {}}`))
	a.mu.Lock()
	attempt = a.attempt
	a.mu.Unlock()
	if attempt != 2 {
		t.Errorf("Expected attempt advanced to 2, got %d", attempt)
	}

	// The list is exhausted; the index must not run past the end.
	a.handleEvent([]byte(`{"type": "session.updated", "session": {}}`))
	a.mu.Lock()
	attempt = a.attempt
	a.mu.Unlock()
	if attempt != 2 {
		t.Errorf("Expected attempt capped at 2, got %d", attempt)
	}
}

func TestHandleEvent_SessionUpdatedAcceptedStopsTrial(t *testing.T) {
	a := testAdapter(t)

	a.handleEvent([]byte(`{
		"type": "session.updated",
		"session": {"input_audio_transcription": {"model": "whisper-1"}}
	}`))

	a.mu.Lock()
	attempt := a.attempt
	a.mu.Unlock()
	if attempt != 0 {
		t.Errorf("Expected attempt unchanged when accepted, got %d", attempt)
	}
}

func TestHandleEvent_MalformedEventIsIgnored(t *testing.T) {
	a := testAdapter(t)

	a.handleEvent([]byte(`not json at all`))
	a.handleEvent([]byte(`{"type": "something.unknown", "payload": 42}`))

	state := a.State()
	if state.Err != nil {
		t.Errorf("Expected anomalies absorbed, got error %v", state.Err)
	}
	if len(state.Chat) != 0 {
		t.Errorf("Expected no chat entries, got %d", len(state.Chat))
	}
}

func TestHandleEvent_ServerErrorSetsState(t *testing.T) {
	a := testAdapter(t)

	a.handleEvent([]byte(`{
		"type": "error",
		"error": {"code": "session_expired", "message": "ephemeral key expired"}
	}`))

	if a.State().Err == nil {
		t.Error("Expected server error surfaced in state")
	}
}

func TestAdapter_SendUserTextInactiveIsNoop(t *testing.T) {
	a := testAdapter(t)

	a.SendUserText("hello")
	a.SendUserAudioChunk([]int16{1, 2, 3})

	if got := len(a.State().Chat); got != 0 {
		t.Errorf("Expected no chat entries while inactive, got %d", got)
	}
}

func TestAdapter_StopTwiceIsSafe(t *testing.T) {
	a := testAdapter(t)

	a.Stop()
	a.Stop()

	state := a.State()
	if state.Active || len(state.Chat) != 0 {
		t.Errorf("Expected inactive empty state, got %+v", state)
	}
}

func TestAdapter_StopClearsBuffers(t *testing.T) {
	a := testAdapter(t)

	a.handleEvent([]byte(`{
		"type": "response.audio_transcript.delta",
		"item_id": "resp_9", "delta": "partial"
	}`))
	a.Stop()

	a.mu.Lock()
	outputs := len(a.tr.output)
	streaming := a.tr.streaming
	a.mu.Unlock()
	if outputs != 0 || streaming {
		t.Error("Expected accumulation buffers cleared on stop")
	}
}

func TestAdapter_ResetClearsChatKeepsAttempt(t *testing.T) {
	a := testAdapter(t)

	a.handleEvent([]byte(`{
		"type": "conversation.item.created",
		"item": {"id": "item_9", "type": "message", "role": "user",
			"content": [{"type": "input_text", "text": "hola"}]}
	}`))
	a.Reset()

	if got := len(a.State().Chat); got != 0 {
		t.Errorf("Expected empty chat after reset, got %d", got)
	}
}

func TestAdapter_StartCredentialFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"not configured"}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	a := New(Options{
		Creds:  creds.NewClient(srv.URL, srv.Client()),
		Device: mockDevice(),
	})

	err := a.Start(context.Background())
	if err == nil {
		t.Fatal("Expected Start to fail")
	}
	if !realtime.IsCredentialError(err) {
		t.Errorf("Expected CredentialError, got %T: %v", err, err)
	}
	if a.State().Active {
		t.Error("Expected inactive state after failed start")
	}
}

func TestAdapter_Capabilities(t *testing.T) {
	caps := testAdapter(t).Capabilities()
	if !caps.AudioIn || !caps.AudioOut || !caps.ToolCalls ||
		!caps.TranscriptionIn || !caps.TranscriptionOut {
		t.Errorf("Expected full capability surface, got %+v", caps)
	}
}

func TestAdapter_StartRetryAfterSignalFailure(t *testing.T) {
	keys := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ephemeralKey":"ek-test","expiresAt":123}`))
	}))
	defer keys.Close()
	signals := 0
	signal := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		signals++
		http.Error(w, "no capacity", http.StatusServiceUnavailable)
	}))
	defer signal.Close()

	a := New(Options{
		SignalURL: signal.URL,
		Creds:     creds.NewClient(keys.URL, keys.Client()),
		Device:    mockDevice(),
	})
	defer a.Stop()

	err := a.Start(context.Background())
	if err == nil {
		t.Fatal("Expected Start to fail")
	}
	if !realtime.IsTransportError(err) {
		t.Errorf("Expected TransportError, got %T: %v", err, err)
	}
	a.mu.Lock()
	pc := a.pc
	a.mu.Unlock()
	if pc != nil {
		t.Fatal("Expected peer connection released after failed start")
	}

	// The retry must negotiate from scratch and report the failure again
	// instead of returning nil while the session stays inactive.
	err = a.Start(context.Background())
	if err == nil {
		t.Fatal("Expected retry to fail, got nil")
	}
	if signals != 2 {
		t.Errorf("Expected a second signaling attempt, got %d", signals)
	}
	state := a.State()
	if state.Active {
		t.Error("Expected inactive state after failed retry")
	}
	if state.Err == nil {
		t.Error("Expected error recorded in state")
	}
}

func TestAdapter_FailedStartClosesPeerConnection(t *testing.T) {
	a := testAdapter(t)
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		t.Fatalf("peer connection: %v", err)
	}

	a.mu.Lock()
	a.pc = pc
	a.failStartLocked(realtime.NewDeviceError("playback device", errors.New("no device")))
	released := a.pc
	a.mu.Unlock()

	if released != nil {
		t.Error("Expected peer connection field cleared")
	}
	if pc.ConnectionState() != webrtc.PeerConnectionStateClosed {
		t.Errorf("Expected abandoned peer connection closed, got %s", pc.ConnectionState())
	}
	state := a.State()
	if state.Active {
		t.Error("Expected inactive state")
	}
	if !realtime.IsDeviceError(state.Err) {
		t.Errorf("Expected DeviceError in state, got %v", state.Err)
	}
}

func TestAdapter_StaleDataChannelOpenIgnored(t *testing.T) {
	a := testAdapter(t)
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		t.Fatalf("peer connection: %v", err)
	}
	defer pc.Close()

	// The adapter no longer owns this connection; a late open or message on
	// its data channel must not mark the session active or mutate the chat.
	a.dataChannelOpened(pc)
	a.dataChannelMessage(pc, []byte(`{
		"type": "conversation.item.created",
		"item": {"id": "stale", "type": "message", "role": "user",
			"content": [{"type": "input_text", "text": "stale"}]}
	}`))

	state := a.State()
	if state.Active {
		t.Error("Expected session to stay inactive on stale open")
	}
	if len(state.Chat) != 0 {
		t.Errorf("Expected stale events dropped, got %d entries", len(state.Chat))
	}
}

func TestDecodePacket_MonoRoundTrip(t *testing.T) {
	enc, err := opus.NewEncoder(trackSampleRate, 1, opus.AppVoIP)
	if err != nil {
		t.Fatalf("encoder: %v", err)
	}
	dec, err := opus.NewDecoder(trackSampleRate, 1)
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	frame := make([]int16, frameSamples)
	buf := make([]byte, 4000)
	n, err := enc.Encode(frame, buf)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	frameBuf := make([]int16, 5760)
	samples, err := decodePacket(dec, 1, &rtp.Packet{Payload: buf[:n]}, frameBuf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(samples) != frameSamples {
		t.Errorf("Expected %d samples, got %d", frameSamples, len(samples))
	}
}

func TestDecodePacket_StereoDownmix(t *testing.T) {
	enc, err := opus.NewEncoder(trackSampleRate, 2, opus.AppVoIP)
	if err != nil {
		t.Fatalf("encoder: %v", err)
	}
	dec, err := opus.NewDecoder(trackSampleRate, 2)
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	frame := make([]int16, frameSamples*2)
	buf := make([]byte, 4000)
	n, err := enc.Encode(frame, buf)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	frameBuf := make([]int16, 5760*2)
	samples, err := decodePacket(dec, 2, &rtp.Packet{Payload: buf[:n]}, frameBuf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(samples) != frameSamples*2 {
		t.Fatalf("Expected %d interleaved samples, got %d", frameSamples*2, len(samples))
	}
	mono := audio.StereoToMono(samples)
	if len(mono) != frameSamples {
		t.Errorf("Expected %d mono samples, got %d", frameSamples, len(mono))
	}
}
