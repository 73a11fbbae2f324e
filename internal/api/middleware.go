package api

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"assistant-backend/internal/auth"
	"assistant-backend/pkg/httputil"
)

// accessTokenParam lets EventSource clients, which cannot set headers, pass the token.
const accessTokenParam = "access_token"

var (
	errMissingToken   = errors.New("authorization header required")
	errMalformedToken = errors.New("malformed Authorization header (expected: Bearer <token>)")
)

// bearerToken extracts the token from the Authorization header, falling back
// to the access_token query parameter when the header is absent.
func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		if token := r.URL.Query().Get(accessTokenParam); token != "" {
			return token, nil
		}
		return "", errMissingToken
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
		return "", errMalformedToken
	}
	return strings.TrimSpace(token), nil
}

// JwtAuthMiddleware verifies the access token and injects the user's identity
// into the request context. Every failure is a 401.
func JwtAuthMiddleware(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := bearerToken(r)
			if err != nil {
				log.Printf("[Auth] %s %s rejected: %v", r.Method, r.URL.Path, err)
				httputil.RespondError(w, http.StatusUnauthorized, err.Error())
				return
			}

			claims, err := auth.ParseAccessToken(token, jwtSecret)
			if err != nil {
				log.Printf("[Auth] %s %s rejected: %v", r.Method, r.URL.Path, err)
				switch {
				case errors.Is(err, jwt.ErrTokenExpired):
					httputil.RespondError(w, http.StatusUnauthorized, "Token has expired")
				case errors.Is(err, jwt.ErrTokenMalformed):
					httputil.RespondError(w, http.StatusUnauthorized, "Malformed token")
				default:
					httputil.RespondError(w, http.StatusUnauthorized, "Invalid token")
				}
				return
			}

			ctx := auth.WithIdentity(r.Context(), claims.UserID, claims.Email)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
