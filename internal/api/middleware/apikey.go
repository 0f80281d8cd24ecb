package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/bmcp/codegraph/pkg/apierr"
)

// RequireAPIKey guards a route with a static X-API-Key header check.
func RequireAPIKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := r.Header.Get("X-API-Key")
			if provided == "" {
				writeError(w, apierr.MissingAPIKey())
				return
			}
			if subtle.ConstantTimeCompare([]byte(provided), []byte(key)) != 1 {
				writeError(w, apierr.InvalidAPIKey())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, e *apierr.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Status())
	json.NewEncoder(w).Encode(e.Response())
}
