package rtclive

import "encoding/json"

// Data-channel event kinds. The set is closed; anything else is logged and
// dropped.
const (
	evSessionUpdated        = "session.updated"
	evItemCreated           = "conversation.item.created"
	evInputTranscriptDelta  = "conversation.item.input_audio_transcription.delta"
	evInputTranscriptDone   = "conversation.item.input_audio_transcription.completed"
	evInputTranscriptFailed = "conversation.item.input_audio_transcription.failed"
	evOutputTranscriptDelta = "response.audio_transcript.delta"
	evOutputTranscriptDone  = "response.audio_transcript.done"
	evFunctionCallDone      = "response.function_call_arguments.done"
	evError                 = "error"
)

type envelope struct {
	Type string `json:"type"`
}

type contentPart struct {
	Type       string `json:"type"`
	Text       string `json:"text,omitempty"`
	Transcript string `json:"transcript,omitempty"`
}

type conversationItem struct {
	ID      string        `json:"id"`
	Type    string        `json:"type"`
	Role    string        `json:"role,omitempty"`
	Content []contentPart `json:"content,omitempty"`
}

type sessionUpdatedEvent struct {
	Session struct {
		InputAudioTranscription *struct {
			Model string `json:"model"`
		} `json:"input_audio_transcription"`
	} `json:"session"`
}

type itemCreatedEvent struct {
	Item conversationItem `json:"item"`
}

type transcriptEvent struct {
	ItemID     string `json:"item_id"`
	Delta      string `json:"delta,omitempty"`
	Transcript string `json:"transcript,omitempty"`
}

type functionCallEvent struct {
	CallID    string `json:"call_id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

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
