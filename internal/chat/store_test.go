package chat

import (
	"testing"

	"github.com/bdintelligence20/triggr4-hub/internal/domain"
)

func TestStoreAppendReplaceKeepsOrder(t *testing.T) {
	s := NewStore()
	changes := 0
	s.SetOnChange(func() { changes++ })

	s.Append(domain.Message{ID: "1", Content: "a", Category: "hr"})
	s.Append(domain.Message{ID: "2", Content: "b", Category: "fin", IsStreaming: true})
	s.Append(domain.Message{ID: "3", Content: "c", Category: "hr"})

	if !s.Replace("2", func(m *domain.Message) { m.Content = "B"; m.IsStreaming = false }) {
		t.Fatal("expected replace to find message 2")
	}
	if s.Replace("missing", func(*domain.Message) {}) {
		t.Fatal("expected replace of unknown id to fail")
	}

	all := s.All()
	if len(all) != 3 || all[1].Content != "B" || all[1].IsStreaming {
		t.Fatalf("unexpected store contents: %+v", all)
	}
	if changes != 4 {
		t.Errorf("expected 4 change notifications, got %d", changes)
	}

	hr := s.ByCategory("hr")
	if len(hr) != 2 || hr[0].ID != "1" || hr[1].ID != "3" {
		t.Errorf("unexpected hr view: %+v", hr)
	}
}

func TestStoreReplaceCategory(t *testing.T) {
	s := NewStore()
	s.Append(domain.Message{ID: "1", Category: "hr"})
	s.Append(domain.Message{ID: "2", Category: "fin"})

	s.ReplaceCategory("hr", []domain.Message{{ID: "a"}, {ID: "b"}})

	if s.Len() != 3 {
		t.Fatalf("expected 3 messages, got %d", s.Len())
	}
	hr := s.ByCategory("hr")
	if len(hr) != 2 || hr[0].ID != "a" {
		t.Errorf("unexpected hr view: %+v", hr)
	}
	if _, ok := s.Find("1"); ok {
		t.Error("expected old hr message to be dropped")
	}
}

func TestStoreReturnsCopies(t *testing.T) {
	s := NewStore()
	s.Append(domain.Message{ID: "1", Sources: []domain.Source{{ID: "doc"}}})

	all := s.All()
	all[0].Sources[0].ID = "mutated"

	got, _ := s.Find("1")
	if got.Sources[0].ID != "doc" {
		t.Errorf("store leaked internal slice: %+v", got)
	}
}
