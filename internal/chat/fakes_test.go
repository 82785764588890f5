package chat

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bdintelligence20/triggr4-hub/internal/domain"
)

type fakeAPI struct {
	mu           sync.Mutex
	queryFn      func(ctx context.Context, req QueryRequest) (*QueryResponse, error)
	queries      []QueryRequest
	saves        []SaveRequest
	saveTimes    []time.Time
	saved        map[string]SaveRequest
	sessions     map[string]*RemoteSession
	historyErr   error
	historyCalls int
	nextSession  int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		saved:    make(map[string]SaveRequest),
		sessions: make(map[string]*RemoteSession),
	}
}

func (f *fakeAPI) Query(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	f.mu.Lock()
	f.queries = append(f.queries, req)
	fn := f.queryFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, req)
	}
	return &QueryResponse{Response: "answer to " + req.Query}, nil
}

func (f *fakeAPI) History(_ context.Context) ([]domain.SessionSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.historyCalls++
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	var out []domain.SessionSummary
	for id, req := range f.saved {
		last := ""
		if n := len(req.Messages); n > 0 {
			last = req.Messages[n-1].Content
		}
		out = append(out, domain.SessionSummary{
			SessionID:    id,
			Title:        req.Title,
			LastMessage:  last,
			Category:     req.Category,
			MessageCount: len(req.Messages),
		})
	}
	return out, nil
}

func (f *fakeAPI) Session(_ context.Context, sessionID string) (*RemoteSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok {
		return nil, &StatusError{StatusCode: 404, Body: `{"error":"session not found"}`}
	}
	return s, nil
}

func (f *fakeAPI) Save(_ context.Context, req SaveRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves = append(f.saves, req)
	f.saveTimes = append(f.saveTimes, time.Now())
	id := req.SessionID
	if id == "" {
		f.nextSession++
		id = fmt.Sprintf("sess-%d", f.nextSession)
	}
	f.saved[id] = req
	return id, nil
}

func (f *fakeAPI) saveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saves)
}

func (f *fakeAPI) lastQuery() QueryRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries[len(f.queries)-1]
}

func (f *fakeAPI) queryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

type fakeCategories map[string]string

func (f fakeCategories) CategoryName(id string) (string, bool) {
	name, ok := f[id]
	return name, ok
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func streamingCount(msgs []domain.Message) int {
	n := 0
	for _, m := range msgs {
		if m.IsStreaming {
			n++
		}
	}
	return n
}
