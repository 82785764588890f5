// Package identity resolves the calling organization from a bearer token.
package identity

import (
	"context"
	"net"
	"net/http"
	"regexp"
	"strings"

	"github.com/bdintelligence20/triggr4-hub/internal/domain"
	"github.com/bdintelligence20/triggr4-hub/internal/store"
)

const (
	AuthorizationHeader = "Authorization"
	bearerPrefix        = "Bearer "
	// AccessTokenParam carries the token for websocket upgrades from browsers,
	// which cannot set request headers.
	AccessTokenParam = "access_token"
)

type contextKey int

const (
	organizationIDKey contextKey = iota
	roleKey
)

var tokenPattern = regexp.MustCompile(`^[A-Za-z0-9._~+/=-]{1,256}$`)

// OrganizationIDFromContext extracts the organization ID from the request context.
func OrganizationIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(organizationIDKey).(string); ok {
		return v
	}
	return ""
}

// RoleFromContext extracts the caller's role from the request context.
func RoleFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(roleKey).(string); ok {
		return v
	}
	return ""
}

// WithOrganization returns a context carrying org as the caller.
func WithOrganization(ctx context.Context, org domain.Organization) context.Context {
	ctx = context.WithValue(ctx, organizationIDKey, org.ID)
	return context.WithValue(ctx, roleKey, org.Role)
}

func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get(AuthorizationHeader); h != "" {
		if len(h) > len(bearerPrefix) && strings.EqualFold(h[:len(bearerPrefix)], bearerPrefix) {
			return strings.TrimSpace(h[len(bearerPrefix):])
		}
		return ""
	}
	return strings.TrimSpace(r.URL.Query().Get(AccessTokenParam))
}

// Middleware rejects requests without a known bearer token and injects the
// token's organization into the request context.
func Middleware(repo store.Repository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := tokenFromRequest(r)
			if token == "" {
				http.Error(w, `{"error":"missing bearer token"}`, http.StatusUnauthorized)
				return
			}
			if !tokenPattern.MatchString(token) {
				http.Error(w, `{"error":"invalid bearer token"}`, http.StatusUnauthorized)
				return
			}

			bound, err := repo.GetToken(r.Context(), token)
			if err != nil {
				http.Error(w, `{"error":"failed to resolve organization"}`, http.StatusInternalServerError)
				return
			}
			if bound == nil {
				http.Error(w, `{"error":"invalid bearer token"}`, http.StatusUnauthorized)
				return
			}

			ctx := WithOrganization(r.Context(), domain.Organization{ID: bound.OrganizationID, Role: bound.Role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IPFromRequest returns a normalized remote IP for request tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
