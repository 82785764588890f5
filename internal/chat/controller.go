package chat

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bdintelligence20/triggr4-hub/internal/domain"
)

// Fixed texts shown in place of, or after, an assistant answer.
const (
	SearchingText = "Searching knowledge base..."
	ApologyText   = "I'm sorry, I encountered an error while processing your request. Please try again."
	FallbackText  = "I couldn't find an answer to your question in the knowledge base."
	CourtesyText  = "That completes my answer. Let me know if you have any other questions."
)

// DefaultCourtesyDelay is how long after a successful answer the courtesy
// message is appended.
const DefaultCourtesyDelay = time.Second

// State is the lifecycle position of the most recent send.
type State int

const (
	StateIdle State = iota
	StateSending
	StateAwaitingResponse
	StateReconciled
)

func (s State) String() string {
	switch s {
	case StateSending:
		return "sending"
	case StateAwaitingResponse:
		return "awaiting_response"
	case StateReconciled:
		return "reconciled"
	default:
		return "idle"
	}
}

// CategoryResolver maps a category id to its display name.
type CategoryResolver interface {
	CategoryName(id string) (string, bool)
}

// ControllerConfig tunes a Controller.
type ControllerConfig struct {
	HistoryWindow int
	CourtesyDelay time.Duration
}

// Controller runs send operations against a Store with at most one request
// in flight. A new send supersedes the previous one.
type Controller struct {
	store      *Store
	api        API
	live       LiveDialer
	categories CategoryResolver
	ids        IDGenerator
	now        func() time.Time
	cfg        ControllerConfig
	logger     *slog.Logger

	mu       sync.Mutex
	inflight *request
	state    State
	courtesy map[*time.Timer]struct{}
	closed   bool
}

type request struct {
	id            string
	placeholderID string
	cancel        context.CancelFunc
	live          LiveChannel
}

func (r *request) closeLive() {
	if r.live != nil {
		_ = r.live.Close()
		r.live = nil
	}
}

// NewController creates a controller. live and categories may be nil.
func NewController(store *Store, api API, live LiveDialer, categories CategoryResolver, ids IDGenerator, cfg ControllerConfig, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if ids == nil {
		ids = NewClockIDs()
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = DefaultHistoryWindow
	}
	if cfg.CourtesyDelay < 0 {
		cfg.CourtesyDelay = DefaultCourtesyDelay
	}
	return &Controller{
		store:      store,
		api:        api,
		live:       live,
		categories: categories,
		ids:        ids,
		now:        time.Now,
		cfg:        cfg,
		logger:     logger,
		courtesy:   make(map[*time.Timer]struct{}),
	}
}

// State returns the lifecycle state of the most recent send.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// InFlight reports whether a request is awaiting its response.
func (c *Controller) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inflight != nil
}

// Send posts text to the conversation category and blocks until the
// placeholder answer is reconciled. Blank text or an empty category is
// ignored and Send returns false without touching the store.
func (c *Controller) Send(ctx context.Context, text, category string) bool {
	return c.SendIf(ctx, text, category, nil)
}

// SendIf is Send gated by current, which is checked under the controller
// lock before anything is appended. A false result drops the send.
func (c *Controller) SendIf(ctx context.Context, text, category string, current func() bool) bool {
	text = strings.TrimSpace(text)
	if text == "" || category == "" {
		return false
	}

	c.mu.Lock()
	if c.closed || (current != nil && !current()) {
		c.mu.Unlock()
		return false
	}
	c.supersedeLocked()
	c.state = StateSending

	history := BuildHistory(c.store.All(), c.cfg.HistoryWindow)

	now := c.now()
	userID, placeholderID := c.ids.NextPair()
	c.store.Append(domain.Message{
		ID:        formatID(userID),
		Content:   text,
		Sender:    domain.SenderUser,
		Timestamp: now,
		Category:  category,
	})
	c.store.Append(domain.Message{
		ID:          formatID(placeholderID),
		Content:     SearchingText,
		Sender:      domain.SenderAssistant,
		Timestamp:   now,
		Category:    category,
		IsStreaming: true,
	})

	reqCtx, cancel := context.WithCancel(ctx)
	req := &request{
		id:            uuid.NewString(),
		placeholderID: formatID(placeholderID),
		cancel:        cancel,
	}
	c.inflight = req
	c.state = StateAwaitingResponse
	c.mu.Unlock()

	if c.live != nil {
		go c.followLive(reqCtx, req)
	}

	resp, err := c.api.Query(reqCtx, QueryRequest{
		Query:     text,
		Category:  c.categoryName(category),
		Stream:    true,
		History:   history,
		RequestID: req.id,
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inflight != req {
		// Superseded or closed; the placeholder was already resolved.
		return true
	}
	c.inflight = nil
	req.closeLive()
	cancel()

	switch {
	case err != nil:
		c.logger.Warn("Chat query failed", "request_id", req.id, "error", err)
		c.resolveLocked(req.placeholderID, ApologyText, nil)
	case resp.Error != "":
		c.logger.Warn("Chat query returned error", "request_id", req.id, "error", resp.Error)
		c.resolveLocked(req.placeholderID, ApologyText, nil)
	default:
		answer := resp.Response
		if strings.TrimSpace(answer) == "" {
			answer = FallbackText
		}
		c.resolveLocked(req.placeholderID, answer, resp.Sources)
		c.scheduleCourtesyLocked(category)
	}
	c.state = StateReconciled
	return true
}

func (c *Controller) categoryName(id string) string {
	if c.categories == nil {
		return ""
	}
	name, ok := c.categories.CategoryName(id)
	if !ok || name == domain.AllItemsCategory {
		return ""
	}
	return name
}

func (c *Controller) resolveLocked(placeholderID, content string, sources []domain.Source) {
	c.store.Replace(placeholderID, func(m *domain.Message) {
		m.Content = content
		m.IsStreaming = false
		if len(sources) > 0 {
			m.Sources = sources
		}
	})
}

// supersedeLocked cancels the in-flight request, closes its live channel and
// resolves its placeholder. Messages already appended stay in the store.
func (c *Controller) supersedeLocked() {
	req := c.inflight
	if req == nil {
		return
	}
	c.inflight = nil
	req.cancel()
	req.closeLive()
	c.resolveLocked(req.placeholderID, ApologyText, nil)
	c.logger.Info("Superseded in-flight chat request", "request_id", req.id)
}

// followLive opens the request's live channel and mirrors progress updates
// into the placeholder while it is still unresolved.
func (c *Controller) followLive(ctx context.Context, req *request) {
	ch, err := c.live.Open(ctx, req.id)
	if err != nil {
		if ctx.Err() == nil {
			c.logger.Debug("Live channel unavailable", "request_id", req.id, "error", err)
		}
		return
	}

	c.mu.Lock()
	if c.inflight != req {
		c.mu.Unlock()
		_ = ch.Close()
		return
	}
	req.live = ch
	c.mu.Unlock()

	for ev := range ch.Events() {
		if ev.Message == "" {
			continue
		}
		c.mu.Lock()
		if c.inflight == req {
			c.store.Replace(req.placeholderID, func(m *domain.Message) {
				if m.IsStreaming {
					m.Content = ev.Message
				}
			})
		}
		c.mu.Unlock()
	}
}

// scheduleCourtesyLocked appends the courtesy message after the configured
// delay. A later send or thread switch does not cancel it.
func (c *Controller) scheduleCourtesyLocked(category string) {
	var timer *time.Timer
	timer = time.AfterFunc(c.cfg.CourtesyDelay, func() {
		c.mu.Lock()
		if _, pending := c.courtesy[timer]; !pending {
			c.mu.Unlock()
			return
		}
		delete(c.courtesy, timer)
		c.store.Append(domain.Message{
			ID:        formatID(c.ids.Next()),
			Content:   CourtesyText,
			Sender:    domain.SenderAssistant,
			Timestamp: c.now(),
			Category:  category,
		})
		c.mu.Unlock()
	})
	c.courtesy[timer] = struct{}{}
}

// PendingCourtesy returns the number of courtesy messages not yet appended.
func (c *Controller) PendingCourtesy() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.courtesy)
}

// CancelPending stops every scheduled courtesy message.
func (c *Controller) CancelPending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for timer := range c.courtesy {
		timer.Stop()
		delete(c.courtesy, timer)
	}
}

// CancelInFlight supersedes the in-flight request without starting a new one.
func (c *Controller) CancelInFlight() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.supersedeLocked()
}

// Close cancels in-flight and scheduled work. Later sends are ignored.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.supersedeLocked()
	c.mu.Unlock()
	c.CancelPending()
}
