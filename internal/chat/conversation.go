package chat

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"sync"

	"assistant-backend/internal/models"
	"assistant-backend/internal/providers"
	"assistant-backend/internal/retrieval"
)

// Conversation holds a message history bound to one provider client.
type Conversation interface {
	// Run appends userMessage and streams the exchange as wire-ready fragments.
	// The returned sequence can be ranged over once.
	Run(ctx context.Context, userMessage string) iter.Seq[string]
	// Messages returns a copy of the history.
	Messages() []models.Message
	// DumpText renders the history as plain text.
	DumpText() string
}

// BuildSystemMessage joins the base system text with the aggregated knowledge
// text, which already carries any free-text user context.
func BuildSystemMessage(base, knowledge string) string {
	parts := []string{strings.TrimSpace(base)}
	if k := strings.TrimSpace(knowledge); k != "" {
		parts = append(parts, k)
	}
	return strings.Join(parts, "\n\n")
}

// base is the state shared by both conversation variants.
type base struct {
	mu       sync.Mutex
	client   providers.Client
	messages []models.Message
	protocol Protocol
}

func newBase(client providers.Client, systemMessage string, protocol Protocol) *base {
	return &base{
		client:   client,
		messages: []models.Message{{Role: models.RoleSystem, Content: systemMessage}},
		protocol: protocol,
	}
}

func (c *base) Messages() []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

func (c *base) DumpText() string {
	var b strings.Builder
	for i, m := range c.Messages() {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "%s: %s", m.Role, m.Content)
	}
	return b.String()
}

// appendUser appends the user message and returns the history including it.
func (c *base) appendUser(content string) []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, models.Message{Role: models.RoleUser, Content: content})
	out := make([]models.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// appendAssistant opens the assistant message on the first content unit and
// concatenates every later unit into it.
func (c *base) appendAssistant(text string, started *bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !*started {
		*started = true
		c.messages = append(c.messages, models.Message{Role: models.RoleAssistant})
	}
	c.messages[len(c.messages)-1].Content += text
}

// exchangeOutcome reports how a provider stream ended.
type exchangeOutcome int

const (
	exchangeCompleted exchangeOutcome = iota
	exchangeFailed
	exchangeAbandoned
)

// stream drives one provider exchange, yielding formatted fragments. It
// returns exchangeFailed after emitting the terminal error fragment and
// exchangeAbandoned when the consumer stopped pulling.
func (c *base) stream(ctx context.Context, prompt []models.Message, yield func(string) bool) exchangeOutcome {
	next, stop := iter.Pull2(c.client.Stream(ctx, prompt))
	defer stop()

	started := false
	for {
		unit, err, ok := pullUnit(next)
		if !ok {
			return exchangeCompleted
		}
		if err != nil {
			yield(Format(ErrorEvent{Message: err.Error()}, c.protocol))
			return exchangeFailed
		}

		ev, known := Classify(unit)
		if !known {
			continue
		}
		if content, isContent := ev.(ContentEvent); isContent {
			c.appendAssistant(content.Text, &started)
		}
		if !yield(Format(ev, c.protocol)) {
			return exchangeAbandoned
		}
	}
}

// fail emits a terminal error fragment for failures outside the provider stream.
func (c *base) fail(err error, yield func(string) bool) {
	yield(Format(ErrorEvent{Message: err.Error()}, c.protocol))
}

// pullUnit reads one unit, converting a provider panic into an error.
func pullUnit(next func() (providers.RawUnit, error, bool)) (unit providers.RawUnit, err error, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			unit, err, ok = providers.RawUnit{}, fmt.Errorf("provider stream panicked: %v", r), true
		}
	}()
	return next()
}

// once wraps a sequence so that only the first range over it produces values.
func once(seq iter.Seq[string]) iter.Seq[string] {
	var mu sync.Mutex
	used := false
	return func(yield func(string) bool) {
		mu.Lock()
		if used {
			mu.Unlock()
			return
		}
		used = true
		mu.Unlock()
		seq(yield)
	}
}

// TextConversation streams plain text and can ground answers in documents.
type TextConversation struct {
	*base
	docs *documentGrounding
}

type documentGrounding struct {
	merger         *retrieval.Merger
	keys           []string
	k              int
	scoreThreshold *float64
}

// TextOption configures a TextConversation.
type TextOption func(*TextConversation)

// WithDocuments enables document-grounded mode over the given document keys.
func WithDocuments(merger *retrieval.Merger, keys []string, k int, scoreThreshold *float64) TextOption {
	return func(c *TextConversation) {
		if merger == nil || len(keys) == 0 {
			return
		}
		c.docs = &documentGrounding{merger: merger, keys: keys, k: k, scoreThreshold: scoreThreshold}
	}
}

// NewTextConversation creates a plain-text conversation.
func NewTextConversation(client providers.Client, systemMessage string, opts ...TextOption) *TextConversation {
	c := &TextConversation{base: newBase(client, systemMessage, ProtocolText)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DocumentGrounded reports whether answers are grounded in documents.
func (c *TextConversation) DocumentGrounded() bool {
	return c.docs != nil
}

// Run implements Conversation.
func (c *TextConversation) Run(ctx context.Context, userMessage string) iter.Seq[string] {
	return once(func(yield func(string) bool) {
		history := c.appendUser(userMessage)
		if c.docs == nil {
			c.stream(ctx, history, yield)
			return
		}

		// Reformulation sees the history before the newest message.
		query, needed, err := reformulateQuery(ctx, c.client, history[:len(history)-1], userMessage)
		if err != nil {
			c.fail(err, yield)
			return
		}

		var result *retrieval.Result
		if needed {
			result, err = c.docs.merger.SimilaritySearchOnDocuments(ctx, query, c.docs.keys, c.docs.k, c.docs.scoreThreshold)
			if err != nil {
				c.fail(err, yield)
				return
			}
			history[len(history)-1].Content = groundedPrompt(retrieval.BuildContext(result.Chunks), userMessage)
		}

		if c.stream(ctx, history, yield) != exchangeCompleted {
			return
		}
		if result != nil {
			if footer := retrieval.CitationFooter(result.Sources); footer != "" {
				yield(footer)
			}
		}
	})
}

// groundedPrompt folds retrieved excerpts into the prompt for one provider call.
func groundedPrompt(excerpts, userMessage string) string {
	if excerpts == "" {
		return userMessage
	}
	return "Use the following excerpts from the selected documents to answer. " +
		"If they do not contain the answer, say so.\n\n" +
		excerpts + "\n\n## Question:\n" + userMessage
}

// JSONConversation wraps every fragment in a JSON envelope.
type JSONConversation struct {
	*base
}

// NewJSONConversation creates a JSON-protocol conversation.
func NewJSONConversation(client providers.Client, systemMessage string) *JSONConversation {
	return &JSONConversation{base: newBase(client, systemMessage, ProtocolJSON)}
}

// Run implements Conversation.
func (c *JSONConversation) Run(ctx context.Context, userMessage string) iter.Seq[string] {
	return once(func(yield func(string) bool) {
		c.stream(ctx, c.appendUser(userMessage), yield)
	})
}
