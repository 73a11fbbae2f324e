package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assistant-backend/internal/auth"
	"assistant-backend/internal/chat"
	"assistant-backend/internal/models"
	"assistant-backend/internal/retrieval"
	"assistant-backend/internal/services"
)

type stubConversations struct {
	err       error
	fragments []string
	category  string
	owner     string
	ended     []string
}

func (s *stubConversations) Converse(_ context.Context, category, owner string, _ models.ConversationRequest) (*services.Turn, error) {
	s.category, s.owner = category, owner
	if s.err != nil {
		return nil, s.err
	}
	return &services.Turn{SessionKey: category + "-1", Fragments: slices.Values(s.fragments)}, nil
}

func (s *stubConversations) Transcript(key, owner string) string {
	return fmt.Sprintf("%s for %s", key, owner)
}

func (s *stubConversations) End(key, owner string) error {
	s.ended = append(s.ended, key)
	return s.err
}

func newConversationRouter(stub *stubConversations) http.Handler {
	h := NewConversationHandlers(stub)
	r := chi.NewRouter()
	r.Post("/conversations/{category}", h.HandleConverse)
	r.Get("/conversations/{sessionKey}/transcript", h.HandleTranscript)
	r.Delete("/conversations/{sessionKey}", h.HandleEnd)
	return r
}

func authed(req *http.Request) *http.Request {
	return req.WithContext(auth.WithIdentity(req.Context(), uuid.New(), "alice@example.com"))
}

func TestHandleConverseStreams(t *testing.T) {
	stub := &stubConversations{fragments: []string{"Hi", " there"}}
	rec := httptest.NewRecorder()
	req := authed(httptest.NewRequest(http.MethodPost, "/conversations/chat", strings.NewReader(`{"message":"Hello"}`)))

	newConversationRouter(stub).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Hi there", rec.Body.String())
	assert.Equal(t, "chat-1", rec.Header().Get(SessionKeyHeader))
	assert.Equal(t, "keep-alive", rec.Header().Get("Connection"))
	assert.True(t, rec.Flushed)
	assert.Equal(t, "chat", stub.category)
	assert.Equal(t, "alice@example.com", stub.owner)
}

func TestHandleConverseErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		code int
		body string
	}{
		{fmt.Errorf("%w: chat-x", chat.ErrSessionNotFound), http.StatusNotFound, sessionExpiredMessage},
		{fmt.Errorf("%w: message cannot be empty", services.ErrValidation), http.StatusBadRequest, "message cannot be empty"},
		{fmt.Errorf("%w: x", retrieval.ErrUnknownDocument), http.StatusBadRequest, "unknown document key"},
		{services.ErrRetrievalDisabled, http.StatusServiceUnavailable, "retrieval is not configured"},
		{errors.New("boom"), http.StatusInternalServerError, "Failed to start conversation"},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := authed(httptest.NewRequest(http.MethodPost, "/conversations/chat", strings.NewReader(`{"message":"q"}`)))

			newConversationRouter(&stubConversations{err: tt.err}).ServeHTTP(rec, req)

			assert.Equal(t, tt.code, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.body)
		})
	}
}

func TestHandleConverseRejectsBadPayload(t *testing.T) {
	rec := httptest.NewRecorder()
	req := authed(httptest.NewRequest(http.MethodPost, "/conversations/chat", strings.NewReader(`{`)))

	newConversationRouter(&stubConversations{}).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleConverseNeedsIdentity(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/conversations/chat", strings.NewReader(`{"message":"q"}`))

	newConversationRouter(&stubConversations{}).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleTranscriptAndEnd(t *testing.T) {
	stub := &stubConversations{}
	router := newConversationRouter(stub)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authed(httptest.NewRequest(http.MethodGet, "/conversations/chat-1/transcript", nil)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "chat-1 for alice@example.com", rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, authed(httptest.NewRequest(http.MethodDelete, "/conversations/chat-1", nil)))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"chat-1"}, stub.ended)

	stub.err = chat.ErrSessionNotFound
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, authed(httptest.NewRequest(http.MethodDelete, "/conversations/chat-1", nil)))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
