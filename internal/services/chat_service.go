package services

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log"
	"regexp"
	"strings"

	"assistant-backend/internal/chat"
	"assistant-backend/internal/knowledge"
	"assistant-backend/internal/models"
	"assistant-backend/internal/providers"
	"assistant-backend/internal/retrieval"
)

var categoryPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_]{0,31}$`)

// ChatService glues sessions, providers and the knowledge catalog together.
type ChatService struct {
	sessions  *chat.SessionStore
	providers *providers.Registry
	catalog   *knowledge.Catalog
	retrieval *RetrievalService
}

// NewChatService creates a new ChatService. A nil catalog means no contexts.
func NewChatService(sessions *chat.SessionStore, registry *providers.Registry, catalog *knowledge.Catalog, retrievalService *RetrievalService) *ChatService {
	if catalog == nil {
		catalog = knowledge.Empty()
	}
	return &ChatService{
		sessions:  sessions,
		providers: registry,
		catalog:   catalog,
		retrieval: retrievalService,
	}
}

// Turn is one conversation turn ready to be streamed.
type Turn struct {
	SessionKey string
	Fragments  iter.Seq[string]
}

// Converse resolves or creates the session and prepares the turn. Nothing is
// sent to the provider until Fragments is ranged over.
func (s *ChatService) Converse(ctx context.Context, category, owner string, req models.ConversationRequest) (*Turn, error) {
	if !categoryPattern.MatchString(category) {
		return nil, fmt.Errorf("%w: invalid category '%s'", ErrValidation, category)
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, fmt.Errorf("%w: message cannot be empty", ErrValidation)
	}

	if req.SessionKey != "" {
		if entry, ok := s.sessions.Lookup(req.SessionKey); ok && entry.Owner != owner {
			log.Printf("WARN [ChatService] Converse: %s tried to continue session %s owned by someone else", owner, req.SessionKey)
			return nil, fmt.Errorf("%w: %s", chat.ErrSessionNotFound, req.SessionKey)
		}
	}

	key, conv, err := s.sessions.CreateOrGet(category, req.SessionKey, owner, s.conversationFactory(req))
	if err != nil {
		return nil, err
	}
	return &Turn{SessionKey: key, Fragments: conv.Run(ctx, message)}, nil
}

// conversationFactory builds the conversation for a new session from the first request.
func (s *ChatService) conversationFactory(req models.ConversationRequest) chat.Factory {
	return func() (chat.Conversation, error) {
		client, err := s.providers.Get(req.Provider)
		if err != nil {
			return nil, err
		}
		knowledgeText, err := s.catalog.AggregateContexts(req.Contexts, req.UserContext)
		if err != nil {
			return nil, err
		}
		system := chat.BuildSystemMessage(s.catalog.BaseSystemMessage(), knowledgeText)

		switch req.Format {
		case models.FormatJSON:
			if len(req.Documents) > 0 {
				return nil, fmt.Errorf("%w: documents are only supported with the text format", ErrValidation)
			}
			return chat.NewJSONConversation(client, system), nil
		case models.FormatText, "":
			var opts []chat.TextOption
			if len(req.Documents) > 0 {
				merger, err := s.documentMerger(req.Documents)
				if err != nil {
					return nil, err
				}
				opts = append(opts, chat.WithDocuments(merger, req.Documents, s.retrieval.TopK(), req.ScoreThreshold))
			}
			return chat.NewTextConversation(client, system, opts...), nil
		default:
			return nil, fmt.Errorf("%w: unsupported format '%s'", ErrValidation, req.Format)
		}
	}
}

// documentMerger checks that every requested document is indexed.
func (s *ChatService) documentMerger(keys []string) (*retrieval.Merger, error) {
	if s.retrieval == nil || s.retrieval.Merger() == nil {
		return nil, ErrRetrievalDisabled
	}
	merger := s.retrieval.Merger()
	for _, key := range keys {
		if _, ok := merger.Document(key); !ok {
			return nil, fmt.Errorf("%w: %s", retrieval.ErrUnknownDocument, key)
		}
	}
	return merger, nil
}

// Transcript renders the session history for its owner.
func (s *ChatService) Transcript(key, owner string) string {
	return s.sessions.DumpText(key, owner)
}

// End deletes a session. Unknown keys are ignored; sessions of other owners are not found.
func (s *ChatService) End(key, owner string) error {
	entry, ok := s.sessions.Lookup(key)
	if !ok {
		return nil
	}
	if entry.Owner != owner {
		return fmt.Errorf("%w: %s", chat.ErrSessionNotFound, key)
	}
	s.sessions.Delete(key)
	log.Printf("[ChatService] Session %s ended by %s", key, owner)
	return nil
}

// Contexts lists the selectable knowledge contexts.
func (s *ChatService) Contexts() []models.ContextResponse {
	ctxs := s.catalog.Contexts()
	out := make([]models.ContextResponse, 0, len(ctxs))
	for _, c := range ctxs {
		out = append(out, models.ContextResponse{Name: c.Name, Description: c.Description})
	}
	return out
}

// Providers lists the configured providers.
func (s *ChatService) Providers() models.ProvidersResponse {
	return models.ProvidersResponse{Default: s.providers.DefaultName(), Providers: s.providers.Names()}
}

// IsClientError reports whether err stems from the request rather than the server.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, providers.ErrUnknownProvider) ||
		errors.Is(err, knowledge.ErrUnknownContext) ||
		errors.Is(err, retrieval.ErrUnknownDocument)
}
