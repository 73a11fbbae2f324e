package chat

import (
	"context"
	"fmt"
	"iter"
	"regexp"
	"strings"

	"assistant-backend/internal/models"
	"assistant-backend/internal/providers"
)

const (
	// Histories longer than maxWindowTurns are cut to the first windowHead and last windowTail turns.
	maxWindowTurns = 5
	windowHead     = 2
	windowTail     = 4

	noRetrievalToken = "none"
)

var queryMarker = regexp.MustCompile(`(?i)query:`)

const reformulationInstruction = `You rewrite chat messages into search queries for a document knowledge base.
Given the conversation so far and the newest user message, reply with a single standalone search query
in the form "Query: <search query>" that captures what the user is looking for.
If the newest message does not need any information from the documents (greetings, thanks, small talk),
reply with the single word "none".`

// reformulationWindow returns the non-system turns used as reformulation context.
func reformulationWindow(history []models.Message) []models.Message {
	turns := make([]models.Message, 0, len(history))
	for _, m := range history {
		if m.Role != models.RoleSystem {
			turns = append(turns, m)
		}
	}
	if len(turns) <= maxWindowTurns {
		return turns
	}
	window := make([]models.Message, 0, windowHead+windowTail)
	window = append(window, turns[:windowHead]...)
	return append(window, turns[len(turns)-windowTail:]...)
}

// buildReformulationPrompt assembles the hidden request sent to the model.
func buildReformulationPrompt(history []models.Message, userMessage string) []models.Message {
	var b strings.Builder
	window := reformulationWindow(history)
	if len(window) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, m := range window {
			fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Newest user message: %s", userMessage)

	return []models.Message{
		{Role: models.RoleSystem, Content: reformulationInstruction},
		{Role: models.RoleUser, Content: b.String()},
	}
}

// ParseReformulation interprets the model's reply. A reply mentioning "none"
// anywhere (any case) means no retrieval. Otherwise the text after the last
// "query:" marker is used, or the whole reply when there is no marker.
func ParseReformulation(response string) (string, bool) {
	if strings.Contains(strings.ToLower(response), noRetrievalToken) {
		return "", false
	}
	query := response
	if loc := queryMarker.FindAllStringIndex(response, -1); len(loc) > 0 {
		query = response[loc[len(loc)-1][1]:]
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return "", false
	}
	return query, true
}

// reformulateQuery makes one non-streamed, non-user-visible call and parses the
// reply. A provider panic comes back as an error.
func reformulateQuery(ctx context.Context, client providers.Client, history []models.Message, userMessage string) (string, bool, error) {
	next, stop := iter.Pull2(client.Stream(ctx, buildReformulationPrompt(history, userMessage)))
	defer stop()

	var reply strings.Builder
	for {
		unit, err, ok := pullUnit(next)
		if !ok {
			break
		}
		if err != nil {
			return "", false, fmt.Errorf("query reformulation failed: %w", err)
		}
		if ev, ok := Classify(unit); ok {
			if content, isContent := ev.(ContentEvent); isContent {
				reply.WriteString(content.Text)
			}
		}
	}
	query, ok := ParseReformulation(reply.String())
	return query, ok, nil
}
