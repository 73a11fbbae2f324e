package handlers

import (
	"encoding/json"
	"net/http"

	"assistant-backend/internal/auth"
	"assistant-backend/pkg/httputil"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// decodeBody decodes a JSON request body into dst, responding 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request payload")
		return false
	}
	return true
}

// requireOwner returns the authenticated user's email, responding 401 when absent.
func requireOwner(w http.ResponseWriter, r *http.Request) (string, bool) {
	email, ok := auth.GetEmailFromContext(r.Context())
	if !ok {
		httputil.RespondError(w, http.StatusUnauthorized, "Unauthorized")
		return "", false
	}
	return email, true
}
