package realtime

// Role identifies who produced a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ChatMessage is one entry in a session transcript. Messages are owned by
// the active adapter and rebuilt or patched as transcript events arrive.
// At most one message per role is streaming at a time; once a turn
// finalizes, Streaming is false and the ID is stable for that turn.
type ChatMessage struct {
	ID        string `json:"id"`
	Role      Role   `json:"role"`
	Text      string `json:"text"`
	Streaming bool   `json:"streaming"`
}

// State is the single mutable snapshot per adapter instance.
type State struct {
	// Active reports whether the session transport is open.
	Active bool

	// Chat is the ordered transcript derived from session events.
	Chat []ChatMessage

	// Err is the last fatal error, or nil.
	Err error
}

// Capabilities describes a provider's static feature flags.
// Never mutates after construction.
type Capabilities struct {
	AudioIn          bool
	AudioOut         bool
	ToolCalls        bool
	TranscriptionIn  bool
	TranscriptionOut bool
}

// Provider tags the available adapter implementations.
type Provider string

const (
	// ProviderSocket is the persistent-socket streaming-session vendor.
	ProviderSocket Provider = "socket"

	// ProviderRTC is the WebRTC media-channel vendor.
	ProviderRTC Provider = "rtc"
)
