package socketlive

import "encoding/json"

// Inbound event kinds. The set is closed; anything else is a protocol
// anomaly and is dropped.
const (
	evSessionCreated   = "session.created"
	evSessionUpdated   = "session.updated"
	evItemCreated      = "conversation.item.created"
	evItemUpdated      = "conversation.item.updated"
	evItemDeleted      = "conversation.item.deleted"
	evAudioDelta       = "response.audio.delta"
	evAudioDone        = "response.audio.done"
	evSpeechStarted    = "input_audio_buffer.speech_started"
	evSpeechStopped    = "input_audio_buffer.speech_stopped"
	evInterrupted      = "conversation.interrupted"
	evFunctionCallDone = "response.function_call_arguments.done"
	evError            = "error"
)

// envelope carries the discriminating type tag; the payload is decoded
// per-kind afterwards.
type envelope struct {
	Type string `json:"type"`
}

// ContentPart is one block of an item's content.
type ContentPart struct {
	// Type is "input_text", "text", "input_audio", or "audio".
	Type string `json:"type"`

	// Text carries plain text content.
	Text string `json:"text,omitempty"`

	// Transcript carries the recognized text of audio content.
	Transcript string `json:"transcript,omitempty"`
}

// Item is one entry in the server's conversation, mirrored client-side.
// The mirrored list is authoritative for transcript derivation.
type Item struct {
	ID      string        `json:"id"`
	Type    string        `json:"type"`
	Role    string        `json:"role,omitempty"`
	Status  string        `json:"status,omitempty"`
	Content []ContentPart `json:"content,omitempty"`
}

// itemEvent wraps events that carry a full item.
type itemEvent struct {
	Item Item `json:"item"`
}

// itemRefEvent wraps events that carry only an item id.
type itemRefEvent struct {
	ItemID string `json:"item_id"`
}

// audioDeltaEvent carries a base64 PCM16 chunk.
type audioDeltaEvent struct {
	Delta string `json:"delta"`
}

// functionCallEvent carries a completed tool invocation.
type functionCallEvent struct {
	CallID    string `json:"call_id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// errorEvent carries a server-reported failure.
type errorEvent struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decode[T any](data []byte) (T, error) {
	var v T
	err := json.Unmarshal(data, &v)
	return v, err
}
