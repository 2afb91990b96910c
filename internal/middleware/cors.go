// Package middleware provides HTTP middleware for the codeoracle API.
package middleware

import (
	"net/http"
	"strings"
)

// CORS returns middleware that handles CORS headers for the given origins.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			allowed, explicit := matchOrigin(allowedOrigins, origin)
			if allowed && origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Oracle-Session-ID")
				w.Header().Add("Vary", "Origin")
				// Credentials only for explicitly listed origins.
				if explicit {
					w.Header().Set("Access-Control-Allow-Credentials", "true")
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

// matchOrigin reports whether origin is allowed and whether it matched an
// explicit entry rather than the wildcard.
func matchOrigin(allowedOrigins []string, origin string) (allowed, explicit bool) {
	for _, o := range allowedOrigins {
		o = strings.TrimRight(o, "/")
		if o == origin && o != "*" {
			return true, true
		}
		if o == "*" {
			allowed = true
		}
	}
	return allowed, false
}

// Origins builds the allowed origin list from the configured frontend URL.
// An empty or relative URL means the frontend is served by this process and
// any origin is accepted without credentials.
func Origins(frontendURL string) []string {
	if frontendURL == "" || strings.HasPrefix(frontendURL, "/") {
		return []string{"*"}
	}
	return []string{frontendURL}
}
