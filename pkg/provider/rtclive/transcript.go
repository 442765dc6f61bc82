package rtclive

import "strings"

// This vendor streams transcripts as loose deltas instead of maintaining a
// server-side item list, so the adapter accumulates text itself. Assistant
// deltas arrive before the real item id is known; they share one synthetic
// placeholder entry until the done event names the item.
const (
	streamingPlaceholderID = "assistant-streaming"

	pendingTranscript = "(transcribing...)"
	failedTranscript  = "(transcription failed)"
	audioOnlyText     = "[audio response]"

	// noiseToken marks non-speech input; the vendor emits it as a literal
	// delta and it never belongs in the transcript.
	noiseToken = "<noise>"
)

// mergeDelta appends delta to the accumulated buffer unless the transport
// already delivered it. Retransmitted frames surface as a delta that is a
// suffix of, or wholly contained in, the buffer; those are skipped. A model
// genuinely repeating a short token back to back is indistinguishable from a
// retransmit and gets dropped too.
func mergeDelta(accum, delta string) (string, bool) {
	if delta == "" {
		return accum, false
	}
	if accum != "" && (strings.HasSuffix(accum, delta) || strings.Contains(accum, delta)) {
		return accum, false
	}
	return accum + delta, true
}

// transcripts holds the per-item accumulation buffers for one session.
type transcripts struct {
	input     map[string]string
	output    map[string]string
	streaming bool // a shared placeholder entry is live
}

func newTranscripts() *transcripts {
	return &transcripts{
		input:  make(map[string]string),
		output: make(map[string]string),
	}
}

func (t *transcripts) reset() {
	t.input = make(map[string]string)
	t.output = make(map[string]string)
	t.streaming = false
}
