package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func protected(key string) http.Handler {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return RequireAPIKey(key)(ok)
}

func TestRequireAPIKey(t *testing.T) {
	h := protected("secret")

	tests := []struct {
		name       string
		key        string
		wantStatus int
		wantCode   string
	}{
		{"valid key", "secret", http.StatusOK, ""},
		{"missing key", "", http.StatusUnauthorized, "MISSING_API_KEY"},
		{"wrong key", "nope", http.StatusUnauthorized, "INVALID_API_KEY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/query", nil)
			if tt.key != "" {
				req.Header.Set("X-API-Key", tt.key)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantCode != "" && !strings.Contains(rec.Body.String(), tt.wantCode) {
				t.Errorf("body = %s, want code %s", rec.Body.String(), tt.wantCode)
			}
		})
	}
}
