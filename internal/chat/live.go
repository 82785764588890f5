package chat

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/bdintelligence20/triggr4-hub/internal/domain"
)

// LiveChannel is an open progress feed for one request. Close must be safe to
// call more than once.
type LiveChannel interface {
	Events() <-chan domain.LiveEvent
	Close() error
}

// LiveDialer opens live channels.
type LiveDialer interface {
	Open(ctx context.Context, requestID string) (LiveChannel, error)
}

// WebsocketDialer opens live channels on GET /chat/live.
type WebsocketDialer struct {
	baseURL string
	tokens  TokenSource
	logger  *slog.Logger
}

// NewWebsocketDialer creates a dialer for the hub at baseURL.
func NewWebsocketDialer(baseURL string, tokens TokenSource, logger *slog.Logger) *WebsocketDialer {
	if logger == nil {
		logger = slog.Default()
	}
	if tokens == nil {
		tokens = StaticToken("")
	}
	return &WebsocketDialer{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		logger:  logger,
	}
}

// Open dials the live endpoint for requestID.
func (d *WebsocketDialer) Open(ctx context.Context, requestID string) (LiveChannel, error) {
	target := d.baseURL + "/chat/live?request_id=" + url.QueryEscape(requestID)

	header := http.Header{}
	if token := d.tokens.Token(); token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, _, err := websocket.Dial(ctx, target, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return nil, fmt.Errorf("dial live channel: %w", err)
	}

	// The read loop outlives the dial context; Close ends it.
	readCtx, cancel := context.WithCancel(context.Background())
	ch := &wsLiveChannel{
		conn:   conn,
		events: make(chan domain.LiveEvent, 16),
		cancel: cancel,
	}
	go ch.readLoop(readCtx, d.logger)
	return ch, nil
}

type wsLiveChannel struct {
	conn      *websocket.Conn
	events    chan domain.LiveEvent
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func (c *wsLiveChannel) Events() <-chan domain.LiveEvent {
	return c.events
}

func (c *wsLiveChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		err = c.conn.Close(websocket.StatusNormalClosure, "request finished")
	})
	return err
}

func (c *wsLiveChannel) readLoop(ctx context.Context, logger *slog.Logger) {
	defer close(c.events)
	for {
		var ev domain.LiveEvent
		if err := wsjson.Read(ctx, c.conn, &ev); err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && ctx.Err() == nil {
				logger.Debug("Live channel read ended", "error", err)
			}
			return
		}
		select {
		case c.events <- ev:
		case <-ctx.Done():
			return
		}
	}
}
