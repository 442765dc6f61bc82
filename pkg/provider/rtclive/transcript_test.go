package rtclive

import "testing"

func TestMergeDelta(t *testing.T) {
	tests := []struct {
		name    string
		accum   string
		delta   string
		want    string
		changed bool
	}{
		{"first delta", "", "Hello", "Hello", true},
		{"normal append", "Hello", " world", "Hello world", true},
		{"empty delta", "Hello", "", "Hello", false},
		{"duplicate suffix", "Hello world", " world", "Hello world", false},
		{"contained delta", "Hello world", "lo wo", "Hello world", false},
		{"full retransmit", "Hello world", "Hello world", "Hello world", false},
		{"new text resembling old", "go north", " east", "go north east", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, changed := mergeDelta(tt.accum, tt.delta)
			if got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
			if changed != tt.changed {
				t.Errorf("Expected changed=%v, got %v", tt.changed, changed)
			}
		})
	}
}

func TestMergeDelta_IdempotentUnderDuplicateDelivery(t *testing.T) {
	deltas := []string{"The", " quick", " quick", " brown", " brown", " fox"}

	accum := ""
	for _, d := range deltas {
		accum, _ = mergeDelta(accum, d)
	}
	if accum != "The quick brown fox" {
		t.Errorf("Expected duplicates dropped, got %q", accum)
	}
}

func TestTranscripts_Reset(t *testing.T) {
	tr := newTranscripts()
	tr.input["i1"] = "partial"
	tr.output["o1"] = "reply"
	tr.streaming = true

	tr.reset()

	if len(tr.input) != 0 || len(tr.output) != 0 || tr.streaming {
		t.Errorf("Expected cleared buffers, got %+v", tr)
	}
}
