package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/bdintelligence20/triggr4-hub/internal/domain"
)

// maxResponseBodySize bounds how much of a hub response is read (4MB).
const maxResponseBodySize = 4 << 20

// QueryRequest is the body of POST /query.
type QueryRequest struct {
	Query     string `json:"query"`
	Category  string `json:"category"`
	Stream    bool   `json:"stream"`
	History   string `json:"history"`
	RequestID string `json:"request_id,omitempty"`
}

// QueryResponse is the decoded answer of POST /query.
type QueryResponse struct {
	Response string
	Sources  []domain.Source
	Error    string
}

// RemoteSession is the decoded body of GET /chat/session/{id}.
type RemoteSession struct {
	Category    string
	Title       string
	LastMessage string
	UpdatedAt   string
	Messages    []domain.StoredMessage
}

// SaveRequest is the body of POST /chat/save.
type SaveRequest struct {
	SessionID string                 `json:"session_id,omitempty"`
	Title     string                 `json:"title"`
	Messages  []domain.StoredMessage `json:"messages"`
	Category  string                 `json:"category"`
}

// API is the hub backend used by the session engine.
type API interface {
	Query(ctx context.Context, req QueryRequest) (*QueryResponse, error)
	History(ctx context.Context) ([]domain.SessionSummary, error)
	Session(ctx context.Context, sessionID string) (*RemoteSession, error)
	Save(ctx context.Context, req SaveRequest) (string, error)
}

// TokenSource supplies the bearer token. An empty token omits the header.
type TokenSource interface {
	Token() string
}

// StaticToken is a fixed TokenSource.
type StaticToken string

// Token returns the token.
func (t StaticToken) Token() string { return string(t) }

// StatusError reports a non-2xx hub response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("hub returned status %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// HTTPClient talks to the hub API over HTTP.
type HTTPClient struct {
	baseURL string
	tokens  TokenSource
	http    *http.Client
}

// NewHTTPClient creates a client for the hub at baseURL.
func NewHTTPClient(baseURL string, tokens TokenSource, httpClient *http.Client) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if tokens == nil {
		tokens = StaticToken("")
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		http:    httpClient,
	}
}

// Query sends a question to the hub.
func (c *HTTPClient) Query(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	body, err := c.do(ctx, http.MethodPost, "/query", req)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("decode query response: invalid JSON")
	}

	res := gjson.ParseBytes(body)
	out := &QueryResponse{
		Response: res.Get("response").String(),
		Sources:  decodeSources(res.Get("sources")),
	}
	out.Error = errorField(res.Get("error"))
	return out, nil
}

// errorField reports a truthy "error" value. Empty strings, false, zero and
// null mean success.
func errorField(e gjson.Result) string {
	switch e.Type {
	case gjson.String:
		return e.Str
	case gjson.True:
		return "unknown error"
	case gjson.Number:
		if e.Num != 0 {
			return e.Raw
		}
	case gjson.JSON:
		return e.Raw
	}
	return ""
}

// History lists the caller's persisted sessions.
func (c *HTTPClient) History(ctx context.Context) ([]domain.SessionSummary, error) {
	body, err := c.do(ctx, http.MethodGet, "/chat/history", nil)
	if err != nil {
		return nil, err
	}
	var payload struct {
		Sessions []domain.SessionSummary `json:"sessions"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode history response: %w", err)
	}
	return payload.Sessions, nil
}

// Session fetches one session with its messages. Message fields are read
// leniently: a timestamp may be a string or a number and is returned as text.
func (c *HTTPClient) Session(ctx context.Context, sessionID string) (*RemoteSession, error) {
	body, err := c.do(ctx, http.MethodGet, "/chat/session/"+url.PathEscape(sessionID), nil)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("decode session response: invalid JSON")
	}

	res := gjson.ParseBytes(body)
	session := &RemoteSession{
		Category:    res.Get("category").String(),
		Title:       res.Get("title").String(),
		LastMessage: res.Get("last_message").String(),
		UpdatedAt:   res.Get("updated_at").String(),
	}
	res.Get("messages").ForEach(func(_, m gjson.Result) bool {
		session.Messages = append(session.Messages, domain.StoredMessage{
			ID:        m.Get("id").String(),
			Content:   m.Get("content").String(),
			Sender:    m.Get("sender").String(),
			Timestamp: m.Get("timestamp").String(),
			Sources:   decodeSources(m.Get("sources")),
		})
		return true
	})
	return session, nil
}

// Save creates or updates a session and returns its durable id.
func (c *HTTPClient) Save(ctx context.Context, req SaveRequest) (string, error) {
	body, err := c.do(ctx, http.MethodPost, "/chat/save", req)
	if err != nil {
		return "", err
	}
	id := gjson.GetBytes(body, "session_id").String()
	if id == "" {
		return "", fmt.Errorf("decode save response: missing session_id")
	}
	return id, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.tokens.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

func decodeSources(res gjson.Result) []domain.Source {
	if !res.IsArray() {
		return nil
	}
	var sources []domain.Source
	res.ForEach(func(_, s gjson.Result) bool {
		sources = append(sources, domain.Source{
			ID:             s.Get("id").String(),
			RelevanceScore: s.Get("relevance_score").Float(),
		})
		return true
	})
	return sources
}
