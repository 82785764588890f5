package live

import (
	"log/slog"
	"net/http"
	"regexp"

	"github.com/coder/websocket"

	"github.com/bdintelligence20/triggr4-hub/internal/identity"
)

var requestIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// WebSocketHandler upgrades GET /chat/live and keeps the subscription open
// until the client goes away.
type WebSocketHandler struct {
	hub            *Hub
	originPatterns []string
}

// NewWebSocketHandler creates a handler. originPatterns follow
// websocket.AcceptOptions; "*" allows any origin.
func NewWebSocketHandler(hub *Hub, originPatterns []string) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, originPatterns: originPatterns}
}

// ServeHTTP implements http.Handler for the websocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	orgID := identity.OrganizationIDFromContext(r.Context())
	requestID := r.URL.Query().Get("request_id")
	if orgID == "" {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	if !requestIDPattern.MatchString(requestID) {
		http.Error(w, `{"error":"invalid request_id"}`, http.StatusBadRequest)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		slog.Error("Failed to accept live websocket", "error", err, "organization_id", orgID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "subscription ended"); closeErr != nil {
			slog.Debug("Failed to close live websocket", "error", closeErr, "request_id", requestID)
		}
	}()

	h.hub.Register(orgID, requestID, ws)
	defer h.hub.Unregister(orgID, requestID, ws)

	slog.Info("Live subscription opened", "organization_id", orgID, "request_id", requestID, "ip", identity.IPFromRequest(r))

	// Clients never send; CloseRead handles control frames until the peer leaves.
	<-ws.CloseRead(r.Context()).Done()
}
