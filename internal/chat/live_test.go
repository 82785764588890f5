package chat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/bdintelligence20/triggr4-hub/internal/domain"
)

func TestWebsocketDialerReceivesEvents(t *testing.T) {
	var auth, requestID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		requestID = r.URL.Query().Get("request_id")
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		ctx := r.Context()
		_ = wsjson.Write(ctx, conn, domain.LiveEvent{RequestID: requestID, Stage: domain.StageSearching, Message: "Searching 4 items"})
		_ = wsjson.Write(ctx, conn, domain.LiveEvent{RequestID: requestID, Stage: domain.StageRanking, Message: "Ranking"})
		_, _, _ = conn.Read(ctx)
	}))
	defer srv.Close()

	dialer := NewWebsocketDialer(srv.URL, StaticToken("tok"), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ch, err := dialer.Open(ctx, "req-1")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	var got []domain.LiveEvent
	for len(got) < 2 {
		select {
		case ev := <-ch.Events():
			got = append(got, ev)
		case <-ctx.Done():
			t.Fatal("timed out waiting for events")
		}
	}
	if got[0].Message != "Searching 4 items" || got[1].Stage != domain.StageRanking {
		t.Errorf("unexpected events: %+v", got)
	}
	if auth != "Bearer tok" || requestID != "req-1" {
		t.Errorf("unexpected handshake auth=%q request_id=%q", auth, requestID)
	}

	if err := ch.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	_ = ch.Close()
	select {
	case _, ok := <-ch.Events():
		for ok {
			_, ok = <-ch.Events()
		}
	case <-time.After(time.Second):
		t.Error("expected events channel to close")
	}
}

func TestWebsocketDialerFailsWithoutServer(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	if _, err := NewWebsocketDialer(srv.URL, nil, nil).Open(context.Background(), "req"); err == nil {
		t.Error("expected dial error")
	}
}
