package chat

import (
	"slices"
	"strings"
	"sync"

	"github.com/samber/lo"

	"github.com/bdintelligence20/triggr4-hub/internal/domain"
	"github.com/bdintelligence20/triggr4-hub/internal/shared"
)

const threadTitleRunes = 40

// Directory is the thread list shown to the user. It is a projection of the
// message store and the session history; it never owns message content.
type Directory struct {
	mu      sync.RWMutex
	threads []domain.Thread
}

// NewDirectory returns a directory holding only the bootstrap thread.
func NewDirectory() *Directory {
	d := &Directory{}
	d.Reset()
	return d
}

// Reset drops every thread and restores the bootstrap thread.
func (d *Directory) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.threads = []domain.Thread{{ID: domain.DefaultThreadID}}
}

// Threads returns a copy of the directory in display order.
func (d *Directory) Threads() []domain.Thread {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(d.threads)
}

// Get returns the thread with the given id.
func (d *Directory) Get(id string) (domain.Thread, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return lo.Find(d.threads, func(t domain.Thread) bool { return t.ID == id })
}

// Upsert updates the thread with the same id, or appends it.
func (d *Directory) Upsert(thread domain.Thread) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.upsertLocked(thread)
}

func (d *Directory) upsertLocked(thread domain.Thread) {
	if idx := d.indexLocked(thread.ID); idx >= 0 {
		d.threads[idx] = thread
		return
	}
	d.threads = append(d.threads, thread)
}

func (d *Directory) indexLocked(id string) int {
	return slices.IndexFunc(d.threads, func(t domain.Thread) bool { return t.ID == id })
}

// Remove deletes a thread. The bootstrap thread comes back if nothing is left.
func (d *Directory) Remove(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.threads = slices.DeleteFunc(d.threads, func(t domain.Thread) bool { return t.ID == id })
	d.ensureDefaultLocked()
}

// Bind attaches a category to a thread, creating the thread if needed.
func (d *Directory) Bind(id, category string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if idx := d.indexLocked(id); idx >= 0 {
		d.threads[idx].Category = category
		return
	}
	d.threads = append(d.threads, domain.Thread{ID: id, Category: category})
}

// Promote rebinds the thread oldID to the server-assigned newID. The old
// entry disappears; if newID is already listed the two are merged.
func (d *Directory) Promote(oldID, newID, title string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	oldIdx := d.indexLocked(oldID)
	if oldIdx < 0 {
		if d.indexLocked(newID) < 0 {
			d.threads = append(d.threads, domain.Thread{ID: newID, Title: title})
		}
		return
	}

	promoted := d.threads[oldIdx]
	promoted.ID = newID
	if title != "" {
		promoted.Title = title
	}
	d.threads = slices.Delete(d.threads, oldIdx, oldIdx+1)
	d.upsertLocked(promoted)
}

// MergeSummaries upserts one thread per persisted session.
func (d *Directory) MergeSummaries(summaries []domain.SessionSummary) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range summaries {
		if s.SessionID == "" {
			continue
		}
		thread := domain.Thread{
			ID:          s.SessionID,
			Title:       s.Title,
			Category:    s.Category,
			LastMessage: s.LastMessage,
		}
		if ts, ok := parseTimestamp(s.UpdatedAt); ok {
			thread.Timestamp = ts
		}
		if idx := d.indexLocked(s.SessionID); idx >= 0 {
			thread.UnreadCount = d.threads[idx].UnreadCount
			if thread.Category == "" {
				thread.Category = d.threads[idx].Category
			}
		}
		if thread.Category == "" {
			thread.Category = s.SessionID
		}
		d.upsertLocked(thread)
	}
}

// Recompute refreshes previews from messages. Messages are grouped by
// category; each group updates the thread bound to that category, preferring
// activeID, or adds a new thread keyed by the category.
func (d *Directory) Recompute(messages []domain.Message, activeID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	groups := lo.GroupBy(messages, func(m domain.Message) string { return m.Category })
	order := lo.Uniq(lo.Map(messages, func(m domain.Message, _ int) string { return m.Category }))

	for _, category := range order {
		group := groups[category]
		first, last := group[0], group[len(group)-1]

		idx := d.boundIndexLocked(category, activeID)
		if idx < 0 {
			d.threads = append(d.threads, domain.Thread{ID: category, Category: category})
			idx = len(d.threads) - 1
		}

		thread := &d.threads[idx]
		if thread.Title == "" {
			thread.Title = deriveTitle(first.Content)
		}
		thread.LastMessage = last.Content
		thread.Timestamp = last.Timestamp
	}
	d.ensureDefaultLocked()
}

func (d *Directory) boundIndexLocked(category, activeID string) int {
	if idx := d.indexLocked(activeID); idx >= 0 && d.threads[idx].Category == category {
		return idx
	}
	return slices.IndexFunc(d.threads, func(t domain.Thread) bool { return t.Category == category })
}

func (d *Directory) ensureDefaultLocked() {
	if len(d.threads) == 0 {
		d.threads = []domain.Thread{{ID: domain.DefaultThreadID}}
	}
}

func deriveTitle(content string) string {
	return shared.TruncateRunes(strings.TrimSpace(content), threadTitleRunes)
}
