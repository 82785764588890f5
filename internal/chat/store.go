package chat

import (
	"slices"
	"sync"

	"github.com/bdintelligence20/triggr4-hub/internal/domain"
)

// Store is the ordered, append-only message log. Messages keep insertion
// order; Replace edits in place and never reorders.
type Store struct {
	mu       sync.RWMutex
	messages []domain.Message
	onChange func()
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{}
}

// SetOnChange registers fn to run after every mutation. fn runs without the
// store lock held.
func (s *Store) SetOnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

func (s *Store) notify() {
	s.mu.RLock()
	fn := s.onChange
	s.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// Append adds a message at the end of the log.
func (s *Store) Append(msg domain.Message) {
	s.mu.Lock()
	s.messages = append(s.messages, cloneMessage(msg))
	s.mu.Unlock()
	s.notify()
}

// Replace applies patch to the message with the given id. It returns false
// if no such message exists.
func (s *Store) Replace(id string, patch func(*domain.Message)) bool {
	s.mu.Lock()
	idx := slices.IndexFunc(s.messages, func(m domain.Message) bool { return m.ID == id })
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	patch(&s.messages[idx])
	s.mu.Unlock()
	s.notify()
	return true
}

// Find returns the message with the given id.
func (s *Store) Find(id string) (domain.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.messages {
		if m.ID == id {
			return cloneMessage(m), true
		}
	}
	return domain.Message{}, false
}

// All returns a copy of every message in insertion order.
func (s *Store) All() []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Message, len(s.messages))
	for i, m := range s.messages {
		out[i] = cloneMessage(m)
	}
	return out
}

// ByCategory returns the messages of one conversation in insertion order.
func (s *Store) ByCategory(category string) []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Message
	for _, m := range s.messages {
		if m.Category == category {
			out = append(out, cloneMessage(m))
		}
	}
	return out
}

// ReplaceCategory drops the messages of category and appends msgs in its place.
func (s *Store) ReplaceCategory(category string, msgs []domain.Message) {
	s.mu.Lock()
	kept := s.messages[:0:0]
	for _, m := range s.messages {
		if m.Category != category {
			kept = append(kept, m)
		}
	}
	for _, m := range msgs {
		m.Category = category
		kept = append(kept, cloneMessage(m))
	}
	s.messages = kept
	s.mu.Unlock()
	s.notify()
}

// Reset empties the store.
func (s *Store) Reset() {
	s.mu.Lock()
	s.messages = nil
	s.mu.Unlock()
	s.notify()
}

// Len returns the number of messages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

func cloneMessage(m domain.Message) domain.Message {
	m.Sources = slices.Clone(m.Sources)
	return m
}
