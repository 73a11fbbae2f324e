package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assistant-backend/internal/auth"
)

const middlewareSecret = "middleware-secret"

func protected(t *testing.T) http.Handler {
	t.Helper()
	return JwtAuthMiddleware(middlewareSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		email, ok := auth.GetEmailFromContext(r.Context())
		require.True(t, ok)
		w.Write([]byte(email))
	}))
}

func TestJwtAuthMiddleware(t *testing.T) {
	token, err := auth.NewAccessToken(uuid.New(), "alice@example.com", middlewareSecret, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name       string
		header     string
		query      string
		wantStatus int
	}{
		{name: "bearer header", header: "Bearer " + token, wantStatus: http.StatusOK},
		{name: "scheme is case insensitive", header: "bearer " + token, wantStatus: http.StatusOK},
		{name: "query parameter", query: "?access_token=" + token, wantStatus: http.StatusOK},
		{name: "missing", wantStatus: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic " + token, wantStatus: http.StatusUnauthorized},
		{name: "empty bearer", header: "Bearer ", wantStatus: http.StatusUnauthorized},
		{name: "garbage token", header: "Bearer not-a-jwt", wantStatus: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/providers"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			protected(t).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, "alice@example.com", rec.Body.String())
			}
		})
	}
}

func TestJwtAuthMiddlewareExpired(t *testing.T) {
	token, err := auth.NewAccessToken(uuid.New(), "alice@example.com", middlewareSecret, -time.Minute)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/v1/providers", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	protected(t).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Token has expired")
}
