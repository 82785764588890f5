// Package live pushes query progress events to websocket subscribers.
package live

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/bdintelligence20/triggr4-hub/internal/domain"
)

const publishTimeout = 5 * time.Second

// Hub tracks one live connection per organization and request id.
type Hub struct {
	mu     sync.RWMutex
	active map[string]map[string]*websocket.Conn
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		active: make(map[string]map[string]*websocket.Conn),
	}
}

// GetActive returns the connection registered for an organization and request.
func (h *Hub) GetActive(orgID, requestID string) *websocket.Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if requests, ok := h.active[orgID]; ok {
		return requests[requestID]
	}
	return nil
}

// Register adds a connection. A connection already registered for the same
// request is closed.
func (h *Hub) Register(orgID, requestID string, conn *websocket.Conn) {
	h.mu.Lock()
	if _, exists := h.active[orgID]; !exists {
		h.active[orgID] = make(map[string]*websocket.Conn)
	}
	existing := h.active[orgID][requestID]
	h.active[orgID][requestID] = conn
	h.mu.Unlock()

	// The close handshake waits on the peer, so it runs outside the lock.
	if existing != nil && existing != conn {
		go func() { _ = existing.Close(websocket.StatusNormalClosure, "subscription replaced") }()
	}
	slog.Debug("Live subscription registered", "organization_id", orgID, "request_id", requestID)
}

// Unregister removes conn if it is still the registered connection.
func (h *Hub) Unregister(orgID, requestID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if requests, ok := h.active[orgID]; ok {
		if current, exists := requests[requestID]; exists && current == conn {
			delete(requests, requestID)
			if len(requests) == 0 {
				delete(h.active, orgID)
			}
			slog.Debug("Live subscription unregistered", "organization_id", orgID, "request_id", requestID)
		}
	}
}

// Publish sends ev to the subscriber of ev.RequestID. It reports whether a
// subscriber received the event.
func (h *Hub) Publish(ctx context.Context, orgID string, ev domain.LiveEvent) bool {
	conn := h.GetActive(orgID, ev.RequestID)
	if conn == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, conn, ev); err != nil {
		slog.Debug("Live publish failed", "organization_id", orgID, "request_id", ev.RequestID, "error", err)
		return false
	}
	return true
}

// Close terminates every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	active := h.active
	h.active = make(map[string]map[string]*websocket.Conn)
	h.mu.Unlock()

	var wg sync.WaitGroup
	for orgID, requests := range active {
		for requestID, conn := range requests {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
				slog.Debug("Live subscription closed", "organization_id", orgID, "request_id", requestID)
			}()
		}
	}
	wg.Wait()
}
