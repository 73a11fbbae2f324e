package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"assistant-backend/internal/chat"
	"assistant-backend/internal/models"
	"assistant-backend/internal/services"
	"assistant-backend/pkg/httputil"
)

// SessionKeyHeader carries the session key of a streamed turn.
const SessionKeyHeader = "X-Session-Key"

const sessionExpiredMessage = "Session expired, please start a new conversation"

// ConversationService defines what the conversation handlers need from the chat service.
type ConversationService interface {
	Converse(ctx context.Context, category, owner string, req models.ConversationRequest) (*services.Turn, error)
	Transcript(key, owner string) string
	End(key, owner string) error
}

// ConversationHandlers handles HTTP requests related to conversations.
type ConversationHandlers struct {
	chatService ConversationService
}

// NewConversationHandlers creates a new ConversationHandlers instance.
func NewConversationHandlers(chatService ConversationService) *ConversationHandlers {
	return &ConversationHandlers{chatService: chatService}
}

// HandleConverse handles POST /v1/conversations/{category} and streams the reply.
func (h *ConversationHandlers) HandleConverse(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	var req models.ConversationRequest
	if !decodeBody(w, r, &req) {
		return
	}

	turn, err := h.chatService.Converse(r.Context(), chi.URLParam(r, "category"), owner, req)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrSessionNotFound):
			httputil.RespondError(w, http.StatusNotFound, sessionExpiredMessage)
		case services.IsClientError(err):
			httputil.RespondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, services.ErrRetrievalDisabled):
			httputil.RespondError(w, http.StatusServiceUnavailable, err.Error())
		default:
			log.Printf("ERROR [ConversationHandlers] HandleConverse: %v", err)
			httputil.RespondError(w, http.StatusInternalServerError, "Failed to start conversation")
		}
		return
	}

	stream := httputil.StartStream(w, map[string]string{SessionKeyHeader: turn.SessionKey})
	for fragment := range turn.Fragments {
		if err := stream.Write(fragment); err != nil {
			// Client went away; breaking stops the upstream read.
			log.Printf("WARN [ConversationHandlers] Stream for %s aborted: %v", turn.SessionKey, err)
			break
		}
	}
}

// HandleTranscript handles GET /v1/conversations/{sessionKey}/transcript.
func (h *ConversationHandlers) HandleTranscript(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	httputil.RespondText(w, http.StatusOK, h.chatService.Transcript(chi.URLParam(r, "sessionKey"), owner))
}

// HandleEnd handles DELETE /v1/conversations/{sessionKey}.
func (h *ConversationHandlers) HandleEnd(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	if err := h.chatService.End(chi.URLParam(r, "sessionKey"), owner); err != nil {
		if errors.Is(err, chat.ErrSessionNotFound) {
			httputil.RespondError(w, http.StatusNotFound, "Session not found")
			return
		}
		log.Printf("ERROR [ConversationHandlers] HandleEnd: %v", err)
		httputil.RespondError(w, http.StatusInternalServerError, "Failed to end conversation")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
