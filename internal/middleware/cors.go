// Package middleware provides HTTP middleware for the hub API.
package middleware

import (
	"net/http"
	"strconv"

	"github.com/samber/lo"
)

const (
	corsMethods = "GET, POST, OPTIONS"
	corsHeaders = "Authorization, Content-Type"
	corsMaxAge  = 10 * 60
)

// CORS lets the dashboard call the hub from the configured origins. A "*"
// entry echoes any origin but never grants credentials; bearer tokens are
// only trusted from origins listed by name.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	anyOrigin := lo.Contains(allowedOrigins, "*")
	named := lo.SliceToMap(lo.Without(allowedOrigins, "*"), func(o string) (string, struct{}) {
		return o, struct{}{}
	})

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if origin := r.Header.Get("Origin"); origin != "" {
				_, listed := named[origin]
				if listed || anyOrigin {
					h := w.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Set("Access-Control-Allow-Methods", corsMethods)
					h.Set("Access-Control-Allow-Headers", corsHeaders)
					h.Set("Access-Control-Max-Age", strconv.Itoa(corsMaxAge))
					h.Add("Vary", "Origin")
					if listed {
						h.Set("Access-Control-Allow-Credentials", "true")
					}
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
