package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assistant-backend/internal/chat"
	"assistant-backend/internal/knowledge"
	"assistant-backend/internal/models"
	"assistant-backend/internal/providers"
	"assistant-backend/internal/retrieval"
)

const testCatalog = `
base_system_message: You are the team assistant.
contexts:
  - name: hr
    description: HR policies
    text: Vacation is 25 days.
`

func newChatService(t *testing.T, client providers.Client, rs *RetrievalService) *ChatService {
	t.Helper()
	registry := providers.NewRegistry("fake")
	registry.Register("fake", client)
	catalog, err := knowledge.Parse([]byte(testCatalog))
	require.NoError(t, err)
	return NewChatService(chat.NewSessionStore(time.Minute, nil), registry, catalog, rs)
}

func collectTurn(turn *Turn) string {
	var b strings.Builder
	for frag := range turn.Fragments {
		b.WriteString(frag)
	}
	return b.String()
}

func TestConverseCreatesThenContinues(t *testing.T) {
	client := &replyClient{replies: [][]string{{"Hi", " there"}, {"Again"}}}
	svc := newChatService(t, client, nil)
	ctx := context.Background()

	turn, err := svc.Converse(ctx, "chat", "alice@example.com", models.ConversationRequest{
		Message: "Hello", Contexts: []string{"hr"}, UserContext: "I am in Berlin",
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(turn.SessionKey, "chat-"))
	assert.Equal(t, "Hi there", collectTurn(turn))

	system := client.prompts[0][0].Content
	assert.Contains(t, system, "You are the team assistant.")
	assert.Contains(t, system, "Vacation is 25 days.")
	assert.Contains(t, system, "I am in Berlin")

	next, err := svc.Converse(ctx, "chat", "alice@example.com", models.ConversationRequest{
		SessionKey: turn.SessionKey, Message: "More",
	})
	require.NoError(t, err)
	assert.Equal(t, turn.SessionKey, next.SessionKey)
	assert.Equal(t, "Again", collectTurn(next))
	assert.Len(t, client.prompts[1], 4)

	transcript := svc.Transcript(turn.SessionKey, "alice@example.com")
	assert.Contains(t, transcript, "user: Hello")
	assert.Contains(t, transcript, "assistant: Again")
}

func TestConverseJSONFormat(t *testing.T) {
	svc := newChatService(t, &replyClient{replies: [][]string{{"A"}}}, nil)

	turn, err := svc.Converse(context.Background(), "json", "", models.ConversationRequest{Message: "q", Format: models.FormatJSON})
	require.NoError(t, err)
	assert.Equal(t, "data: {\"data\":\"A\"}\n\n", collectTurn(turn))
}

func TestConverseRejectsBadRequests(t *testing.T) {
	svc := newChatService(t, &replyClient{}, nil)
	ctx := context.Background()

	cases := map[string]models.ConversationRequest{
		"empty message":    {Message: "  "},
		"unknown context":  {Message: "q", Contexts: []string{"legal"}},
		"unknown provider": {Message: "q", Provider: "nope"},
		"bad format":       {Message: "q", Format: "xml"},
		"json documents":   {Message: "q", Format: models.FormatJSON, Documents: []string{"faq"}},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Converse(ctx, "chat", "", req)
			require.Error(t, err)
			assert.True(t, IsClientError(err), err.Error())
		})
	}

	_, err := svc.Converse(ctx, "Bad Category!", "", models.ConversationRequest{Message: "q"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestConverseDocumentsNeedRetrieval(t *testing.T) {
	svc := newChatService(t, &replyClient{}, nil)

	_, err := svc.Converse(context.Background(), "docs", "", models.ConversationRequest{Message: "q", Documents: []string{"faq"}})
	assert.ErrorIs(t, err, ErrRetrievalDisabled)
}

func TestConverseDocumentGrounded(t *testing.T) {
	s := newMemStore()
	s.addDocument("base", "faq", 0.1)
	rs := newRetrieval(t, s, &countingEmbedder{})
	client := &replyClient{replies: [][]string{{"Query: remote work"}, {"Yes."}}}
	svc := newChatService(t, client, rs)

	_, err := svc.Converse(context.Background(), "docs", "", models.ConversationRequest{Message: "q", Documents: []string{"missing"}})
	assert.ErrorIs(t, err, retrieval.ErrUnknownDocument)

	turn, err := svc.Converse(context.Background(), "docs", "", models.ConversationRequest{
		Message: "Can I work remotely?", Documents: []string{"faq"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Yes.\n\nSources:\n- Doc faq (faq.pdf)\n", collectTurn(turn))
}

func TestConverseSessionOwnership(t *testing.T) {
	svc := newChatService(t, &replyClient{replies: [][]string{{"x"}}}, nil)
	ctx := context.Background()

	turn, err := svc.Converse(ctx, "chat", "bob@example.com", models.ConversationRequest{Message: "q"})
	require.NoError(t, err)
	collectTurn(turn)

	_, err = svc.Converse(ctx, "chat", "alice@example.com", models.ConversationRequest{SessionKey: turn.SessionKey, Message: "q"})
	assert.ErrorIs(t, err, chat.ErrSessionNotFound)

	assert.Contains(t, svc.Transcript(turn.SessionKey, "alice@example.com"), "not found for this user")

	assert.ErrorIs(t, svc.End(turn.SessionKey, "alice@example.com"), chat.ErrSessionNotFound)
	require.NoError(t, svc.End(turn.SessionKey, "bob@example.com"))
	require.NoError(t, svc.End(turn.SessionKey, "bob@example.com"))

	_, err = svc.Converse(ctx, "chat", "bob@example.com", models.ConversationRequest{SessionKey: turn.SessionKey, Message: "q"})
	assert.ErrorIs(t, err, chat.ErrSessionNotFound)
}

func TestContextsAndProviders(t *testing.T) {
	svc := newChatService(t, &replyClient{}, nil)

	assert.Equal(t, []models.ContextResponse{{Name: "hr", Description: "HR policies"}}, svc.Contexts())
	assert.Equal(t, models.ProvidersResponse{Default: "fake", Providers: []string{"fake"}}, svc.Providers())
}
