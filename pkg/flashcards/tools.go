package flashcards

import (
	"encoding/json"
	"fmt"
	"log/slog"
)

// Tool describes one function the model can invoke during conversation.
// The same four descriptors are shared by value across every provider
// adapter so the model's capability surface is provider-independent.
type Tool struct {
	// Name is the unique identifier for the tool.
	Name string `json:"name"`

	// Description explains what the tool does, helping the model decide
	// when to use it.
	Description string `json:"description"`

	// Parameters is the JSON schema for the tool's arguments.
	Parameters map[string]any `json:"parameters"`

	// Handler is called when the model invokes this tool. The result is
	// sent back to the model to continue the conversation.
	Handler func(args map[string]any) (map[string]any, error) `json:"-"`
}

func emptySchema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}
}

// Tools returns the four flashcard tool descriptors bound to store.
func Tools(store *Store) []Tool {
	return []Tool{
		{
			Name:        "get_current_flashcard",
			Description: "Get information about the current flashcard being studied",
			Parameters:  emptySchema(),
			Handler: func(_ map[string]any) (map[string]any, error) {
				return snapshotResult(store.Snapshot()), nil
			},
		},
		{
			Name:        "flip_flashcard",
			Description: "Flip the current flashcard to show/hide the answer",
			Parameters:  emptySchema(),
			Handler: func(_ map[string]any) (map[string]any, error) {
				store.Flip()
				snap := store.Snapshot()
				result := snapshotResult(snap)
				result["flipped"] = true
				return result, nil
			},
		},
		{
			Name:        "next_flashcard",
			Description: "Advance to the next flashcard in the deck",
			Parameters:  emptySchema(),
			Handler: func(_ map[string]any) (map[string]any, error) {
				store.Next()
				return snapshotResult(store.Snapshot()), nil
			},
		},
		{
			Name:        "restart_flashcards",
			Description: "Restart the flashcard deck from the beginning",
			Parameters:  emptySchema(),
			Handler: func(_ map[string]any) (map[string]any, error) {
				store.Restart()
				snap := store.Snapshot()
				result := snapshotResult(snap)
				result["restarted"] = true
				return result, nil
			},
		},
	}
}

func snapshotResult(snap Snapshot) map[string]any {
	return map[string]any{
		"card":        snap.Card,
		"showingBack": snap.ShowBack,
		"index":       snap.Index,
		"total":       snap.Total,
		"completed":   snap.Completed,
	}
}

// ToolSet dispatches model tool calls against a fixed descriptor list.
type ToolSet struct {
	tools  []Tool
	byName map[string]Tool
	logger *slog.Logger
}

// NewToolSet builds a dispatcher over the given tools.
func NewToolSet(tools []Tool, logger *slog.Logger) *ToolSet {
	if logger == nil {
		logger = slog.Default()
	}
	byName := make(map[string]Tool, len(tools))
	for _, t := range tools {
		byName[t.Name] = t
	}
	return &ToolSet{
		tools:  tools,
		byName: byName,
		logger: logger.With("component", "flashcards.tools"),
	}
}

// List returns the descriptors in registration order.
func (ts *ToolSet) List() []Tool { return ts.tools }

// Dispatch runs the named tool and returns its result. Unknown names and
// handler failures become error-shaped results; Dispatch never panics and
// never returns nil, so a bad tool call cannot crash the session.
func (ts *ToolSet) Dispatch(name string, args map[string]any) map[string]any {
	tool, ok := ts.byName[name]
	if !ok {
		ts.logger.Warn("unknown tool requested", "name", name)
		return map[string]any{"error": fmt.Sprintf("Unknown tool: %s", name)}
	}

	result, err := func() (result map[string]any, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("tool panicked: %v", r)
			}
		}()
		return tool.Handler(args)
	}()
	if err != nil {
		ts.logger.Warn("tool execution failed", "name", name, "error", err)
		return map[string]any{"error": err.Error()}
	}

	ts.logger.Debug("tool dispatched", "name", name)
	return map[string]any{"output": result}
}

// DispatchJSON runs Dispatch and marshals the result for transports that
// carry tool output as a string.
func (ts *ToolSet) DispatchJSON(name string, args map[string]any) string {
	result := ts.Dispatch(name, args)
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprintf(`{"error":%q}`, err.Error())
	}
	return string(data)
}
