//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bdintelligence20/triggr4-hub/internal/catalog"
	"github.com/bdintelligence20/triggr4-hub/internal/config"
	"github.com/bdintelligence20/triggr4-hub/internal/domain"
	"github.com/bdintelligence20/triggr4-hub/internal/identity"
	"github.com/bdintelligence20/triggr4-hub/internal/knowledge"
	"github.com/bdintelligence20/triggr4-hub/internal/store"
)

type fakeRepo struct {
	mu       sync.Mutex
	tokens   map[string]*domain.APIToken
	sessions map[string]*domain.Session
	items    []*domain.KnowledgeItem
	pingErr  error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		tokens: map[string]*domain.APIToken{
			"token-org-1": {Token: "token-org-1", OrganizationID: "org-1", Role: "admin"},
			"token-org-2": {Token: "token-org-2", OrganizationID: "org-2", Role: "member"},
		},
		sessions: make(map[string]*domain.Session),
	}
}

func (f *fakeRepo) GetToken(_ context.Context, token string) (*domain.APIToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokens[token], nil
}

func (f *fakeRepo) UpsertToken(_ context.Context, token *domain.APIToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copy := *token
	f.tokens[token.Token] = &copy
	return nil
}

func (f *fakeRepo) ListSessions(_ context.Context, organizationID string) ([]*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Session
	for _, s := range f.sessions {
		if s.OrganizationID == organizationID {
			copy := *s
			out = append(out, &copy)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (f *fakeRepo) GetSession(_ context.Context, organizationID, sessionID string) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.sessions[sessionID]
	if s == nil || s.OrganizationID != organizationID {
		return nil, nil
	}
	copy := *s
	return &copy, nil
}

func (f *fakeRepo) UpsertSession(_ context.Context, session *domain.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing := f.sessions[session.SessionID]; existing != nil {
		if existing.OrganizationID != session.OrganizationID {
			return store.ErrNotFound
		}
		session.CreatedAt = existing.CreatedAt
	}
	copy := *session
	f.sessions[session.SessionID] = &copy
	return nil
}

func (f *fakeRepo) AddKnowledgeItem(_ context.Context, item *domain.KnowledgeItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copy := *item
	f.items = append(f.items, &copy)
	return nil
}

func (f *fakeRepo) ListKnowledgeItems(_ context.Context, organizationID, category string) ([]*domain.KnowledgeItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.KnowledgeItem
	for _, item := range f.items {
		if item.OrganizationID == organizationID && (category == "" || item.Category == category) {
			copy := *item
			out = append(out, &copy)
		}
	}
	return out, nil
}

func (f *fakeRepo) Ping(_ context.Context) error { return f.pingErr }
func (f *fakeRepo) Close() error                 { return nil }

type testServer struct {
	repo   *fakeRepo
	router http.Handler
}

func newTestServer(t *testing.T, cfg *config.Config) *testServer {
	t.Helper()
	repo := newFakeRepo()
	cat, err := catalog.New([]domain.Category{
		{ID: "hr", Name: "HR Policies"},
		{ID: "fin", Name: "Finance"},
	})
	if err != nil {
		t.Fatal(err)
	}
	h := NewHandler(repo, cat, knowledge.NewEngine(repo, nil), nil, cfg, nil)
	t.Cleanup(h.Close)

	r := chi.NewRouter()
	NewHealthHandler(repo).RegisterHealth(r)
	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(repo))
		h.RegisterRoutes(r)
	})
	return &testServer{repo: repo, router: r}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return v
}

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected JSON content type, got %q", ct)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

func TestRoutesRequireToken(t *testing.T) {
	s := newTestServer(t, nil)
	for _, path := range []string{"/chat/history", "/categories", "/items"} {
		if rr := s.do(t, http.MethodGet, path, "", nil); rr.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", path, rr.Code)
		}
	}
}

func TestCategoriesListsSentinelFirst(t *testing.T) {
	s := newTestServer(t, nil)
	rr := s.do(t, http.MethodGet, "/categories", "token-org-1", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	got := decode[struct {
		Categories []domain.Category `json:"categories"`
	}](t, rr)
	if len(got.Categories) != 3 || got.Categories[0].Name != domain.AllItemsCategory {
		t.Errorf("unexpected categories: %+v", got.Categories)
	}
}

func TestAddItemValidatesCategory(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		name string
		body addItemRequest
		want int
	}{
		{"by id", addItemRequest{Category: "hr", Title: "Leave", Content: "20 days"}, http.StatusCreated},
		{"by name", addItemRequest{Category: "finance", Title: "Claims", Content: "30 days"}, http.StatusCreated},
		{"sentinel", addItemRequest{Category: "all", Content: "x"}, http.StatusBadRequest},
		{"unknown", addItemRequest{Category: "legal", Content: "x"}, http.StatusBadRequest},
		{"empty content", addItemRequest{Category: "hr", Content: "  "}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rr := s.do(t, http.MethodPost, "/items", "token-org-1", tt.body); rr.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, rr.Code, rr.Body.String())
			}
		})
	}

	rr := s.do(t, http.MethodGet, "/items?category=hr", "token-org-1", nil)
	got := decode[struct {
		Items []domain.KnowledgeItem `json:"items"`
	}](t, rr)
	if len(got.Items) != 1 || got.Items[0].Category != "HR Policies" {
		t.Errorf("expected one HR item stored by name, got %+v", got.Items)
	}
}

func TestQueryAnswersFromKnowledge(t *testing.T) {
	s := newTestServer(t, nil)
	s.do(t, http.MethodPost, "/items", "token-org-1", addItemRequest{Category: "hr", Title: "Annual leave", Content: "Staff receive 20 days of annual leave."})
	s.do(t, http.MethodPost, "/items", "token-org-2", addItemRequest{Category: "hr", Title: "Annual leave", Content: "Other org gets 25 days."})

	rr := s.do(t, http.MethodPost, "/query", "token-org-1", queryRequest{Query: "annual leave days", Category: domain.AllItemsCategory, Stream: true})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	got := decode[queryResponse](t, rr)
	if got.Response != "Annual leave: Staff receive 20 days of annual leave." {
		t.Errorf("unexpected response %q", got.Response)
	}
	if len(got.Sources) != 1 {
		t.Errorf("expected a single source from the caller's organization, got %+v", got.Sources)
	}
}

func TestQueryNoMatchReturnsEmptyAnswer(t *testing.T) {
	s := newTestServer(t, nil)
	rr := s.do(t, http.MethodPost, "/query", "token-org-1", queryRequest{Query: "parking", Category: "Finance"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(rr.Body).Decode(&raw); err != nil {
		t.Fatal(err)
	}
	if string(raw["sources"]) != "[]" || string(raw["response"]) != `""` {
		t.Errorf("expected empty response and sources, got %s / %s", raw["response"], raw["sources"])
	}
}

func TestQueryValidationAndRateLimit(t *testing.T) {
	cfg := &config.Config{RateLimit: config.RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute}}
	s := newTestServer(t, cfg)

	if rr := s.do(t, http.MethodPost, "/query", "token-org-1", queryRequest{Query: "   "}); rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for blank query, got %d", rr.Code)
	}
	if rr := s.do(t, http.MethodPost, "/query", "token-org-1", queryRequest{Query: "leave"}); rr.Code != http.StatusOK {
		t.Errorf("expected first query to pass, got %d", rr.Code)
	}
	if rr := s.do(t, http.MethodPost, "/query", "token-org-1", queryRequest{Query: "leave"}); rr.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", rr.Code)
	}
	if rr := s.do(t, http.MethodPost, "/query", "token-org-2", queryRequest{Query: "leave"}); rr.Code != http.StatusOK {
		t.Errorf("expected other organization to keep its own budget, got %d", rr.Code)
	}
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestServer(t, nil)
	messages := []domain.StoredMessage{
		{ID: "1", Content: "How much leave?", Sender: "user", Timestamp: "2026-01-02T03:04:05Z"},
		{ID: "2", Content: "20 days.", Sender: "assistant", Timestamp: "2026-01-02T03:04:06Z", Sources: []domain.Source{{ID: "doc", RelevanceScore: 0.5}}},
	}

	rr := s.do(t, http.MethodPost, "/chat/save", "token-org-1", saveRequest{Title: "Leave", Messages: messages, Category: "hr"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	created := decode[map[string]string](t, rr)
	id := created["session_id"]
	if id == "" {
		t.Fatal("expected a session id")
	}

	rr = s.do(t, http.MethodPost, "/chat/save", "token-org-1", saveRequest{SessionID: id, Messages: messages[:1], Category: "hr"})
	if rr.Code != http.StatusOK || decode[map[string]string](t, rr)["session_id"] != id {
		t.Fatalf("expected update of %s, got %d", id, rr.Code)
	}

	rr = s.do(t, http.MethodGet, "/chat/history", "token-org-1", nil)
	history := decode[struct {
		Sessions []domain.SessionSummary `json:"sessions"`
	}](t, rr)
	if len(history.Sessions) != 1 {
		t.Fatalf("expected one session, got %+v", history.Sessions)
	}
	summary := history.Sessions[0]
	if summary.SessionID != id || summary.Title != defaultSessionTitle || summary.MessageCount != 1 || summary.LastMessage != "How much leave?" {
		t.Errorf("unexpected summary: %+v", summary)
	}

	rr = s.do(t, http.MethodGet, "/chat/session/"+id, "token-org-1", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	session := decode[sessionResponse](t, rr)
	if session.Category != "hr" || len(session.Messages) != 1 || session.Messages[0].Sender != "user" {
		t.Errorf("unexpected session: %+v", session)
	}
}

func TestSessionsAreScopedToOrganization(t *testing.T) {
	s := newTestServer(t, nil)
	rr := s.do(t, http.MethodPost, "/chat/save", "token-org-1", saveRequest{Title: "Private", Category: "hr"})
	id := decode[map[string]string](t, rr)["session_id"]

	if rr := s.do(t, http.MethodGet, "/chat/session/"+id, "token-org-2", nil); rr.Code != http.StatusNotFound {
		t.Errorf("expected 404 for another organization, got %d", rr.Code)
	}
	if rr := s.do(t, http.MethodPost, "/chat/save", "token-org-2", saveRequest{SessionID: id, Title: "Hijack"}); rr.Code != http.StatusNotFound {
		t.Errorf("expected 404 when saving over another organization's session, got %d", rr.Code)
	}
	rr = s.do(t, http.MethodGet, "/chat/history", "token-org-2", nil)
	history := decode[struct {
		Sessions []domain.SessionSummary `json:"sessions"`
	}](t, rr)
	if len(history.Sessions) != 0 {
		t.Errorf("expected empty history for org-2, got %+v", history.Sessions)
	}
}

func TestSaveRejectsInvalidInput(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/chat/save", bytes.NewBufferString("{not json"))
	req.Header.Set("Authorization", "Bearer token-org-1")
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed body, got %d", rr.Code)
	}

	if rr := s.do(t, http.MethodPost, "/chat/save", "token-org-1", saveRequest{SessionID: "bad id!"}); rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid session id, got %d", rr.Code)
	}
}

func TestReadyReportsDatabase(t *testing.T) {
	s := newTestServer(t, nil)
	if rr := s.do(t, http.MethodGet, "/ready", "", nil); rr.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rr.Code)
	}

	s.repo.pingErr = errors.New("disk gone")
	rr := s.do(t, http.MethodGet, "/ready", "", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	got := decode[map[string]interface{}](t, rr)
	if got["status"] != "degraded" {
		t.Errorf("expected degraded status, got %v", got["status"])
	}
}

func TestRateLimiterWindow(t *testing.T) {
	rl := NewRateLimiter(2, 50*time.Millisecond)
	defer rl.Stop()

	if !rl.Allow("org") || !rl.Allow("org") {
		t.Fatal("expected first two requests to pass")
	}
	if rl.Allow("org") {
		t.Fatal("expected third request to be limited")
	}
	time.Sleep(60 * time.Millisecond)
	if !rl.Allow("org") {
		t.Error("expected window to reset")
	}
}
