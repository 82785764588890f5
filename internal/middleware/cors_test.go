package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	called := false
	h := CORS([]string{"https://hub.example.com"})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/chat/history", nil)
	req.Header.Set("Origin", "https://hub.example.com")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if !called {
		t.Fatal("expected handler to run")
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://hub.example.com" {
		t.Errorf("unexpected allow origin %q", got)
	}
	if got := rr.Header().Get("Access-Control-Allow-Headers"); got != "Authorization, Content-Type" {
		t.Errorf("expected Authorization to be allowed, got %q", got)
	}
	if rr.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Error("expected credentials for explicit origin")
	}
}

func TestCORSWildcardOmitsCredentials(t *testing.T) {
	h := CORS([]string{"*"})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://elsewhere.example.com")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Header().Get("Access-Control-Allow-Origin") != "https://elsewhere.example.com" {
		t.Error("expected wildcard to echo origin")
	}
	if rr.Header().Get("Access-Control-Allow-Credentials") != "" {
		t.Error("wildcard match must not allow credentials")
	}
}

func TestCORSPreflightShortCircuits(t *testing.T) {
	called := false
	h := CORS([]string{"https://hub.example.com"})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodOptions, "/query", nil)
	req.Header.Set("Origin", "https://other.example.com")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if called {
		t.Error("preflight must not reach the handler")
	}
	if rr.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("unlisted origin must not be allowed")
	}
}

func TestCORSIgnoresRequestsWithoutOrigin(t *testing.T) {
	h := CORS([]string{"*"})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/categories", nil))

	if rr.Header().Get("Access-Control-Allow-Origin") != "" || rr.Header().Get("Vary") != "" {
		t.Errorf("expected no CORS headers for same-origin requests, got %v", rr.Header())
	}
}
