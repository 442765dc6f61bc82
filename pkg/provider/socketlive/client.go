package socketlive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voicedeck/voicedeck/pkg/audio"
	"github.com/voicedeck/voicedeck/pkg/flashcards"
	"github.com/voicedeck/voicedeck/pkg/realtime"
)

// Client speaks the socket vendor's send/receive event protocol and mirrors
// the server's conversation item list. It owns tool registration and relays
// audio both ways; transcript derivation is left to the adapter, which reads
// Items() on every conversation change.
type Client struct {
	url     string
	apiKey  string
	logger  *slog.Logger
	toolset *flashcards.ToolSet

	wsMu sync.Mutex // serializes writes
	conn *websocket.Conn

	mu        sync.Mutex
	connected bool
	closed    bool
	items     []Item
	ready     chan struct{}
	readyOnce sync.Once

	// Callbacks. Set before Connect; invoked from the read goroutine.
	OnConversationChanged func()
	OnAudioDelta          func(pcm []int16)
	OnInterrupted         func()
	OnError               func(err error)
}

// Timeouts for the websocket session.
const (
	handshakeTimeout = 10 * time.Second
	readTimeout      = 120 * time.Second
	writeTimeout     = 10 * time.Second
	keepAliveEvery   = 30 * time.Second
	readyTimeout     = 15 * time.Second
)

// NewClient creates a client for the given realtime URL and credential.
func NewClient(url, apiKey string, toolset *flashcards.ToolSet, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		url:     url,
		apiKey:  apiKey,
		toolset: toolset,
		logger:  logger.With("component", "socketlive.client"),
		ready:   make(chan struct{}),
	}
}

// Connect dials the vendor websocket and starts the read loop.
func (c *Client) Connect(ctx context.Context) error {
	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+c.apiKey)

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, c.url, headers)
	if err != nil {
		if resp != nil {
			return realtime.NewTransportError(
				fmt.Sprintf("dial (status %d)", resp.StatusCode), err)
		}
		return realtime.NewTransportError("dial", err)
	}

	conn.SetPingHandler(func(appData string) error {
		c.wsMu.Lock()
		defer c.wsMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(appData),
			time.Now().Add(writeTimeout))
	})

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	go c.readLoop()
	go c.keepAlive()

	c.logger.Info("connected", "url", c.url)
	return nil
}

// WaitReady blocks until the server confirms the session, the context is
// done, or the ready timeout expires.
func (c *Client) WaitReady(ctx context.Context) error {
	select {
	case <-c.ready:
		return nil
	case <-ctx.Done():
		return realtime.NewTransportError("session ready", ctx.Err())
	case <-time.After(readyTimeout):
		return realtime.NewTransportError("session ready", errors.New("timed out"))
	}
}

// IsConnected reports whether the socket is open.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected && !c.closed
}

// ConfigureSession declares audio formats, voice, turn detection, input
// transcription, and the registered tool set.
func (c *Client) ConfigureSession(instructions, voice, transcriptionModel string) error {
	apiTools := make([]map[string]any, 0, len(c.toolset.List()))
	for _, tool := range c.toolset.List() {
		apiTools = append(apiTools, map[string]any{
			"type":        "function",
			"name":        tool.Name,
			"description": tool.Description,
			"parameters":  tool.Parameters,
		})
	}

	return c.sendJSON(map[string]any{
		"type": "session.update",
		"session": map[string]any{
			"modalities":          []string{"text", "audio"},
			"instructions":        instructions,
			"voice":               voice,
			"input_audio_format":  "pcm16",
			"output_audio_format": "pcm16",
			"input_audio_transcription": map[string]any{
				"model": transcriptionModel,
			},
			"turn_detection": map[string]any{
				"type": "server_vad",
			},
			"tools":       apiTools,
			"tool_choice": "auto",
		},
	})
}

// SendAudio relays one PCM16 frame, base64-wrapped.
func (c *Client) SendAudio(pcm16 []byte) error {
	if !c.IsConnected() {
		return realtime.ErrNotActive
	}
	return c.sendJSON(map[string]any{
		"type":  "input_audio_buffer.append",
		"audio": audio.EncodeBase64(pcm16),
	})
}

// CommitAudio signals end of the input audio stream.
func (c *Client) CommitAudio() error {
	if !c.IsConnected() {
		return realtime.ErrNotActive
	}
	return c.sendJSON(map[string]string{"type": "input_audio_buffer.commit"})
}

// CreateUserMessage inserts an optimistic local item under the given id and
// forwards it as a completed turn. The server's own item-created echo
// carries the same id and is recognized as a duplicate, not a second
// message.
func (c *Client) CreateUserMessage(id, text string) error {
	item := Item{
		ID:     id,
		Type:   "message",
		Role:   "user",
		Status: "completed",
		Content: []ContentPart{
			{Type: "input_text", Text: text},
		},
	}

	c.mu.Lock()
	c.upsertLocked(item)
	c.mu.Unlock()
	c.notifyConversation()

	if err := c.sendJSON(map[string]any{
		"type": "conversation.item.create",
		"item": item,
	}); err != nil {
		return err
	}
	return c.sendJSON(map[string]string{"type": "response.create"})
}

// DeleteItem removes an item locally and asks the server to delete it.
func (c *Client) DeleteItem(id string) error {
	c.mu.Lock()
	c.removeLocked(id)
	c.mu.Unlock()

	return c.sendJSON(map[string]any{
		"type":    "conversation.item.delete",
		"item_id": id,
	})
}

// Items returns a snapshot of the mirrored conversation.
func (c *Client) Items() []Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Item, len(c.items))
	copy(out, c.items)
	return out
}

// Close shuts the socket down. Safe to call multiple times.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.connected = false
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = conn.Close()
	}
	c.logger.Info("disconnected")
}

func (c *Client) keepAlive() {
	ticker := time.NewTicker(keepAliveEvery)
	defer ticker.Stop()

	for range ticker.C {
		c.mu.Lock()
		conn := c.conn
		closed := c.closed
		c.mu.Unlock()
		if closed || conn == nil {
			return
		}

		c.wsMu.Lock()
		err := conn.WriteControl(websocket.PingMessage, []byte{},
			time.Now().Add(writeTimeout))
		c.wsMu.Unlock()
		if err != nil {
			return
		}
	}
}

func (c *Client) readLoop() {
	for {
		c.mu.Lock()
		conn := c.conn
		closed := c.closed
		c.mu.Unlock()
		if closed || conn == nil {
			return
		}

		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			wasClosed := c.closed
			c.connected = false
			c.mu.Unlock()
			if !wasClosed &&
				!websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.emitError(realtime.NewTransportError("read", err))
			}
			return
		}

		c.handleEvent(data)
	}
}

func (c *Client) handleEvent(data []byte) {
	env, err := decode[envelope](data)
	if err != nil {
		c.logger.Warn("unparseable event", "error", err)
		return
	}

	switch env.Type {
	case evSessionCreated:
		c.readyOnce.Do(func() { close(c.ready) })
		c.logger.Info("session created")

	case evSessionUpdated:
		c.logger.Debug("session updated")

	case evItemCreated, evItemUpdated:
		ev, err := decode[itemEvent](data)
		if err != nil {
			c.logger.Warn("malformed item event", "error", err)
			return
		}
		c.mu.Lock()
		c.upsertLocked(ev.Item)
		c.mu.Unlock()
		c.notifyConversation()

	case evItemDeleted:
		ev, err := decode[itemRefEvent](data)
		if err != nil {
			c.logger.Warn("malformed item ref event", "error", err)
			return
		}
		c.mu.Lock()
		c.removeLocked(ev.ItemID)
		c.mu.Unlock()
		c.notifyConversation()

	case evAudioDelta:
		ev, err := decode[audioDeltaEvent](data)
		if err != nil {
			c.logger.Warn("malformed audio delta", "error", err)
			return
		}
		pcm, err := audio.DecodeBase64PCM16(ev.Delta)
		if err != nil {
			c.logger.Warn("undecodable audio delta", "error", err)
			return
		}
		if fn := c.OnAudioDelta; fn != nil {
			fn(pcm)
		}

	case evAudioDone, evSpeechStopped:
		// No action needed; turn boundaries arrive via item events.

	case evSpeechStarted, evInterrupted:
		if fn := c.OnInterrupted; fn != nil {
			fn()
		}

	case evFunctionCallDone:
		ev, err := decode[functionCallEvent](data)
		if err != nil {
			c.logger.Warn("malformed function call event", "error", err)
			return
		}
		c.handleFunctionCall(ev)

	case evError:
		ev, err := decode[errorEvent](data)
		if err != nil {
			c.logger.Warn("malformed error event", "error", err)
			return
		}
		c.emitError(realtime.NewTransportError("server",
			fmt.Errorf("%s: %s", ev.Error.Code, ev.Error.Message)))

	default:
		c.logger.Debug("unhandled event kind", "type", env.Type)
	}
}

func (c *Client) handleFunctionCall(ev functionCallEvent) {
	args := map[string]any{}
	if ev.Arguments != "" {
		if parsed, err := decode[map[string]any]([]byte(ev.Arguments)); err == nil {
			args = parsed
		}
	}

	c.logger.Info("tool call received", "name", ev.Name, "call_id", ev.CallID)
	output := c.toolset.DispatchJSON(ev.Name, args)

	if err := c.sendJSON(map[string]any{
		"type": "conversation.item.create",
		"item": map[string]any{
			"type":    "function_call_output",
			"call_id": ev.CallID,
			"output":  output,
		},
	}); err != nil {
		c.logger.Warn("tool result send failed", "error", err)
		return
	}
	if err := c.sendJSON(map[string]string{"type": "response.create"}); err != nil {
		c.logger.Warn("response trigger send failed", "error", err)
	}
}

func (c *Client) upsertLocked(item Item) {
	for i, existing := range c.items {
		if existing.ID == item.ID {
			c.items[i] = item
			return
		}
	}
	c.items = append(c.items, item)
}

func (c *Client) removeLocked(id string) {
	for i, existing := range c.items {
		if existing.ID == id {
			c.items = append(c.items[:i], c.items[i+1:]...)
			return
		}
	}
}

func (c *Client) notifyConversation() {
	if fn := c.OnConversationChanged; fn != nil {
		fn()
	}
}

func (c *Client) emitError(err error) {
	if fn := c.OnError; fn != nil {
		fn(err)
	}
}

func (c *Client) sendJSON(v any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return realtime.ErrNotActive
	}

	c.wsMu.Lock()
	defer c.wsMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(v); err != nil {
		return realtime.NewTransportError("send", err)
	}
	return nil
}
