// Package chat implements the hub chat session engine: the message store,
// the request lifecycle controller, session persistence and the thread
// directory, composed by Manager.
package chat

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bep/debounce"

	"github.com/bdintelligence20/triggr4-hub/internal/domain"
)

// DefaultAutosaveDelay is the quiet period before local changes are saved.
const DefaultAutosaveDelay = 2 * time.Second

const autosaveTimeout = 30 * time.Second

// Options configures a Manager. API is required; everything else has a default.
type Options struct {
	API           API
	Live          LiveDialer
	Categories    CategoryResolver
	IDs           IDGenerator
	Logger        *slog.Logger
	HistoryWindow int
	AutosaveDelay time.Duration
	CourtesyDelay time.Duration
}

// Manager owns the chat state of one app instance. UI code reads the derived
// views and dispatches intents; every mutation goes through the manager.
type Manager struct {
	api    API
	store  *Store
	dir    *Directory
	ctrl   *Controller
	now    func() time.Time
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	org          domain.Organization
	activeThread string
	chatCategory string
	autosave     func(func())
	autosaveGen  uint64
	orgEpoch     uint64
	closed       bool

	saveMu sync.Mutex
}

// NewManager creates a manager with the bootstrap thread active and no
// organization context.
func NewManager(opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	autosaveDelay := opts.AutosaveDelay
	if autosaveDelay <= 0 {
		autosaveDelay = DefaultAutosaveDelay
	}
	courtesyDelay := opts.CourtesyDelay
	if courtesyDelay == 0 {
		courtesyDelay = DefaultCourtesyDelay
	}

	store := NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		api:          opts.API,
		store:        store,
		dir:          NewDirectory(),
		now:          time.Now,
		logger:       logger,
		ctx:          ctx,
		cancel:       cancel,
		activeThread: domain.DefaultThreadID,
		autosave:     debounce.New(autosaveDelay),
	}
	m.ctrl = NewController(store, opts.API, opts.Live, opts.Categories, opts.IDs, ControllerConfig{
		HistoryWindow: opts.HistoryWindow,
		CourtesyDelay: courtesyDelay,
	}, logger)
	store.SetOnChange(m.onMessagesChanged)
	return m
}

// Send posts text to the selected category. It is a no-op for blank text or
// when no category is selected.
func (m *Manager) Send(ctx context.Context, text string) bool {
	m.mu.Lock()
	category := m.chatCategory
	closed := m.closed
	current := m.sameTenantLocked()
	m.mu.Unlock()
	if closed {
		return false
	}
	return m.ctrl.SendIf(ctx, text, category, current)
}

// sameTenantLocked returns a check that fails once the organization changes
// or the manager closes.
func (m *Manager) sameTenantLocked() func() bool {
	epoch := m.orgEpoch
	return func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.orgEpoch == epoch && !m.closed
	}
}

// SelectCategory makes category the active conversation. An unbound active
// thread adopts the category; otherwise the thread bound to it becomes active,
// created if needed.
func (m *Manager) SelectCategory(category string) {
	if category == "" {
		return
	}
	m.mu.Lock()
	active, ok := m.dir.Get(m.activeThread)
	switch {
	case ok && (active.Category == "" || active.Category == category):
		m.dir.Bind(active.ID, category)
	default:
		thread, found := m.findByCategory(category)
		if !found {
			thread = domain.Thread{ID: category, Category: category}
			m.dir.Upsert(thread)
		}
		m.activeThread = thread.ID
	}
	m.chatCategory = category
	m.mu.Unlock()
}

func (m *Manager) findByCategory(category string) (domain.Thread, bool) {
	for _, t := range m.dir.Threads() {
		if t.Category == category {
			return t, true
		}
	}
	return domain.Thread{}, false
}

// CreateThread adds a new conversation and makes it active.
func (m *Manager) CreateThread(title string) domain.Thread {
	id := NewThreadID()
	thread := domain.Thread{ID: id, Title: title, Category: id, Timestamp: m.now()}
	m.dir.Upsert(thread)

	m.mu.Lock()
	m.activeThread = id
	m.chatCategory = id
	m.mu.Unlock()
	return thread
}

// SwitchThread activates an existing thread.
func (m *Manager) SwitchThread(id string) bool {
	thread, ok := m.dir.Get(id)
	if !ok {
		return false
	}
	m.mu.Lock()
	m.activeThread = thread.ID
	m.chatCategory = thread.Category
	m.mu.Unlock()
	return true
}

// SetOrganization switches tenant context. A different organization resets
// every thread, message and pending timer, then reloads history.
func (m *Manager) SetOrganization(ctx context.Context, org domain.Organization) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	if org.ID == m.org.ID {
		m.org.Role = org.Role
		m.mu.Unlock()
		return
	}
	m.org = org
	m.orgEpoch++
	m.activeThread = domain.DefaultThreadID
	m.chatCategory = ""
	m.cancelAutosaveLocked()
	m.mu.Unlock()

	m.ctrl.CancelInFlight()
	m.ctrl.CancelPending()
	m.dir.Reset()
	m.store.Reset()

	m.mu.Lock()
	m.cancelAutosaveLocked()
	m.mu.Unlock()

	m.logger.Info("Chat organization changed", "organization_id", org.ID)
	if !org.IsZero() {
		m.LoadHistory(ctx)
	}
}

// Organization returns the current tenant context.
func (m *Manager) Organization() domain.Organization {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.org
}

// ActiveThread returns the id of the active thread.
func (m *Manager) ActiveThread() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeThread
}

// Category returns the selected conversation category.
func (m *Manager) Category() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chatCategory
}

// Messages returns the active conversation's messages.
func (m *Manager) Messages() []domain.Message {
	return m.store.ByCategory(m.Category())
}

// AllMessages returns every message in the store.
func (m *Manager) AllMessages() []domain.Message {
	return m.store.All()
}

// Threads returns the thread directory.
func (m *Manager) Threads() []domain.Thread {
	return m.dir.Threads()
}

// State returns the lifecycle state of the most recent send.
func (m *Manager) State() State {
	return m.ctrl.State()
}

// Close stops in-flight, scheduled and debounced work.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.cancelAutosaveLocked()
	m.mu.Unlock()

	m.ctrl.Close()
	m.cancel()
}

func (m *Manager) onMessagesChanged() {
	m.mu.Lock()
	active := m.activeThread
	orgKnown := !m.org.IsZero()
	closed := m.closed
	m.mu.Unlock()

	m.dir.Recompute(m.store.All(), active)

	if active != "" && orgKnown && !closed {
		m.scheduleAutosave()
	}
}

func (m *Manager) scheduleAutosave() {
	m.mu.Lock()
	defer m.mu.Unlock()
	gen := m.autosaveGen
	m.autosave(func() {
		m.mu.Lock()
		stale := gen != m.autosaveGen || m.closed
		m.mu.Unlock()
		if stale {
			return
		}
		ctx, cancel := context.WithTimeout(m.ctx, autosaveTimeout)
		defer cancel()
		if err := m.SaveSession(ctx, ""); err != nil {
			m.logger.Warn("Autosave failed", "error", err)
		}
	})
}

// cancelAutosaveLocked invalidates any pending debounced save.
func (m *Manager) cancelAutosaveLocked() {
	m.autosaveGen++
	m.autosave(func() {})
}
