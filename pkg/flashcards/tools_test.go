package flashcards

import (
	"encoding/json"
	"strings"
	"testing"
)

func newTestToolSet() (*ToolSet, *Store) {
	store := NewStore(testDeck()...)
	return NewToolSet(Tools(store), nil), store
}

func TestToolSet_DescriptorNames(t *testing.T) {
	ts, _ := newTestToolSet()

	expected := []string{
		"get_current_flashcard",
		"flip_flashcard",
		"next_flashcard",
		"restart_flashcards",
	}
	tools := ts.List()
	if len(tools) != len(expected) {
		t.Fatalf("Expected %d tools, got %d", len(expected), len(tools))
	}
	for i, name := range expected {
		if tools[i].Name != name {
			t.Errorf("Tool %d: expected %q, got %q", i, name, tools[i].Name)
		}
		if tools[i].Description == "" {
			t.Errorf("Tool %q has no description", name)
		}
	}
}

func TestToolSet_DispatchGetCurrent(t *testing.T) {
	ts, _ := newTestToolSet()

	result := ts.Dispatch("get_current_flashcard", nil)
	output, ok := result["output"].(map[string]any)
	if !ok {
		t.Fatalf("Expected output map, got %+v", result)
	}
	if output["index"] != 0 {
		t.Errorf("Expected index 0, got %v", output["index"])
	}
	if output["total"] != 3 {
		t.Errorf("Expected total 3, got %v", output["total"])
	}
}

func TestToolSet_DispatchMutations(t *testing.T) {
	ts, store := newTestToolSet()

	result := ts.Dispatch("flip_flashcard", nil)
	output := result["output"].(map[string]any)
	if output["flipped"] != true {
		t.Error("Expected flipped true")
	}
	if !store.Snapshot().ShowBack {
		t.Error("Expected store flipped")
	}

	ts.Dispatch("next_flashcard", nil)
	if store.Snapshot().Index != 1 {
		t.Errorf("Expected index 1, got %d", store.Snapshot().Index)
	}

	result = ts.Dispatch("restart_flashcards", nil)
	output = result["output"].(map[string]any)
	if output["restarted"] != true {
		t.Error("Expected restarted true")
	}
	if store.Snapshot().Index != 0 {
		t.Errorf("Expected index 0 after restart, got %d", store.Snapshot().Index)
	}
}

func TestToolSet_UnknownTool(t *testing.T) {
	ts, _ := newTestToolSet()

	result := ts.Dispatch("foo", nil)
	if result["error"] != "Unknown tool: foo" {
		t.Errorf("Expected error-shaped result, got %+v", result)
	}
}

func TestToolSet_PanickingHandlerIsAbsorbed(t *testing.T) {
	ts := NewToolSet([]Tool{{
		Name:        "explode",
		Description: "always panics",
		Parameters:  emptySchema(),
		Handler: func(map[string]any) (map[string]any, error) {
			panic("kaboom")
		},
	}}, nil)

	result := ts.Dispatch("explode", nil)
	errText, ok := result["error"].(string)
	if !ok || !strings.Contains(errText, "kaboom") {
		t.Errorf("Expected panic converted to error result, got %+v", result)
	}
}

func TestToolSet_DispatchJSON(t *testing.T) {
	ts, _ := newTestToolSet()

	raw := ts.DispatchJSON("foo", nil)
	var decoded map[string]any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		t.Fatalf("DispatchJSON produced invalid JSON: %v", err)
	}
	if decoded["error"] != "Unknown tool: foo" {
		t.Errorf("Expected error payload, got %q", raw)
	}
}
