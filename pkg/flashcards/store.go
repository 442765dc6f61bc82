// Package flashcards provides the in-memory study deck and the tool set the
// model uses to drive it. The store lives for the whole application
// lifetime, independent of any realtime session.
package flashcards

import "sync"

// Card is one flashcard with a prompt side and an answer side.
type Card struct {
	ID    string `json:"id"`
	Front string `json:"front"`
	Back  string `json:"back"`
}

// Store holds the deck and a cursor over it. Safe for concurrent use; tool
// dispatch may arrive on transport goroutines.
type Store struct {
	mu        sync.Mutex
	cards     []Card
	index     int
	showBack  bool
	completed bool
}

// DemoDeck returns the default starter deck.
func DemoDeck() []Card {
	return []Card{
		{ID: "1", Front: "Hola", Back: "Hello"},
		{ID: "2", Front: "Gracias", Back: "Thank you"},
		{ID: "3", Front: "¿Cómo estás?", Back: "How are you?"},
		{ID: "4", Front: "Adiós", Back: "Goodbye"},
		{ID: "5", Front: "Por favor", Back: "Please"},
	}
}

// NewStore creates a store over the given cards, or the demo deck when none
// are provided.
func NewStore(cards ...Card) *Store {
	if len(cards) == 0 {
		cards = DemoDeck()
	}
	return &Store{cards: cards}
}

// Current returns the card under the cursor, or nil for an empty deck.
func (s *Store) Current() *Card {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentLocked()
}

func (s *Store) currentLocked() *Card {
	if s.index < 0 || s.index >= len(s.cards) {
		return nil
	}
	c := s.cards[s.index]
	return &c
}

// Flip toggles between the front and back of the current card.
func (s *Store) Flip() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.showBack = !s.showBack
}

// Next advances the cursor. On the last card it marks the deck completed
// without moving past the end.
func (s *Store) Next() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index >= len(s.cards)-1 {
		s.completed = true
		return
	}
	s.index++
	s.showBack = false
	s.completed = false
}

// Restart rewinds to the first card, front side up.
func (s *Store) Restart() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index = 0
	s.showBack = false
	s.completed = false
}

// Snapshot describes store state after an action, in the shape the tool
// contract promises the model.
type Snapshot struct {
	Card      *Card `json:"card"`
	ShowBack  bool  `json:"showingBack"`
	Index     int   `json:"index"`
	Total     int   `json:"total"`
	Completed bool  `json:"completed"`
}

// Snapshot returns the current store state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Card:      s.currentLocked(),
		ShowBack:  s.showBack,
		Index:     s.index,
		Total:     len(s.cards),
		Completed: s.completed,
	}
}
