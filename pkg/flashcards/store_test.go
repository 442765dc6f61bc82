package flashcards

import "testing"

func testDeck() []Card {
	return []Card{
		{ID: "1", Front: "a", Back: "A"},
		{ID: "2", Front: "b", Back: "B"},
		{ID: "3", Front: "c", Back: "C"},
	}
}

func TestStore_FlipToggles(t *testing.T) {
	s := NewStore(testDeck()...)

	if s.Snapshot().ShowBack {
		t.Error("Expected front side initially")
	}
	s.Flip()
	if !s.Snapshot().ShowBack {
		t.Error("Expected back side after flip")
	}
	s.Flip()
	if s.Snapshot().ShowBack {
		t.Error("Expected front side after second flip")
	}
}

func TestStore_NextAdvancesAndResetsFlip(t *testing.T) {
	s := NewStore(testDeck()...)
	s.Flip()
	s.Next()

	snap := s.Snapshot()
	if snap.Index != 1 {
		t.Errorf("Expected index 1, got %d", snap.Index)
	}
	if snap.ShowBack {
		t.Error("Expected flip state cleared after advancing")
	}
	if snap.Completed {
		t.Error("Expected not completed mid-deck")
	}
}

func TestStore_NextOnLastCardCompletesWithoutAdvancing(t *testing.T) {
	s := NewStore(testDeck()...)
	s.Next()
	s.Next()

	// Now on the last card.
	s.Next()
	snap := s.Snapshot()
	if snap.Index != 2 {
		t.Errorf("Expected index to stay 2, got %d", snap.Index)
	}
	if !snap.Completed {
		t.Error("Expected completed on last card")
	}
	if snap.Card == nil || snap.Card.ID != "3" {
		t.Error("Expected current card to remain the last card")
	}
}

func TestStore_Restart(t *testing.T) {
	s := NewStore(testDeck()...)
	s.Next()
	s.Flip()
	s.Next()
	s.Next()
	s.Restart()

	snap := s.Snapshot()
	if snap.Index != 0 || snap.ShowBack || snap.Completed {
		t.Errorf("Expected pristine state after restart, got %+v", snap)
	}
}

func TestStore_EmptyDeck(t *testing.T) {
	s := NewStore()

	snap := s.Snapshot()
	if snap.Card != nil {
		t.Error("Expected nil card for empty deck")
	}
	if snap.Total != 0 {
		t.Errorf("Expected total 0, got %d", snap.Total)
	}

	// None of these may panic.
	s.Flip()
	s.Next()
	s.Restart()
}

func TestDemoDeck(t *testing.T) {
	deck := DemoDeck()
	if len(deck) != 5 {
		t.Fatalf("Expected 5 demo cards, got %d", len(deck))
	}
	if deck[0].Front != "Hola" {
		t.Errorf("Expected first card Hola, got %q", deck[0].Front)
	}
}
