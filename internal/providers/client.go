package providers

import (
	"context"
	"iter"

	"assistant-backend/internal/models"
)

// Client is the provider-facing side of a conversation. Stream sends the ordered
// message history to a model and returns the raw output units lazily; each pull
// performs at most one read from the underlying response body.
//
// A failure mid-stream is delivered as a non-nil error, after which the sequence ends.
type Client interface {
	Stream(ctx context.Context, messages []models.Message) iter.Seq2[RawUnit, error]
}

// RawUnit is one unit of provider output before normalization. Exactly one of
// Content, Metadata or Usage is expected to be set; units carrying none of them
// are dropped by the normalizer.
type RawUnit struct {
	Content  *string
	Encoded  bool // Content is already a protocol envelope produced by the adapter
	Metadata *RawMetadata
	Usage    *RawUsage
}

// RawMetadata carries provider-supplied metadata, currently citation lists.
type RawMetadata struct {
	Citations []string       `json:"citations"`
	Extra     map[string]any `json:"-"`
}

// RawUsage carries token counters reported by the provider.
type RawUsage struct {
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	Model            string `json:"model"`
}

// TextUnit builds a content unit.
func TextUnit(text string) RawUnit {
	return RawUnit{Content: &text}
}

// EncodedUnit builds a content unit the adapter has already wrapped in the wire envelope.
func EncodedUnit(envelope string) RawUnit {
	return RawUnit{Content: &envelope, Encoded: true}
}

// UsageUnit builds a token-usage unit.
func UsageUnit(prompt, completion int, model string) RawUnit {
	return RawUnit{Usage: &RawUsage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
		Model:            model,
	}}
}

// CitationsUnit builds a metadata unit carrying citations.
func CitationsUnit(citations []string) RawUnit {
	return RawUnit{Metadata: &RawMetadata{Citations: citations}}
}
