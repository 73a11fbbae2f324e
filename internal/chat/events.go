package chat

import (
	"encoding/json"
	"fmt"
	"strings"

	"assistant-backend/internal/providers"
)

// Protocol selects the wire encoding of emitted fragments.
type Protocol int

const (
	ProtocolText Protocol = iota
	ProtocolJSON
)

// ErrorPrefix marks an inline error in the output stream.
const ErrorPrefix = "[ERROR]: "

// TokenUsageEventName labels the framed token usage event.
const TokenUsageEventName = "token_usage"

// Event is a normalized unit of streamed output.
type Event interface {
	isEvent()
}

// ContentEvent carries a piece of assistant text. Encoded reports that the
// provider adapter delivered it already wrapped in the data envelope.
type ContentEvent struct {
	Text    string
	Encoded bool
}

// MetadataEvent carries provider-supplied metadata such as citations.
type MetadataEvent struct {
	Citations []string
	Extra     map[string]any
}

// TokenUsageEvent carries token counters for the exchange.
type TokenUsageEvent struct {
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	Model            string `json:"model"`
}

// ErrorEvent terminates a run.
type ErrorEvent struct {
	Message string
}

func (ContentEvent) isEvent()    {}
func (MetadataEvent) isEvent()   {}
func (TokenUsageEvent) isEvent() {}
func (ErrorEvent) isEvent()      {}

// Classify maps a raw provider unit to an event. Shapes are checked in order
// content, metadata, usage; the first present wins. Units with none of them
// report false and are dropped.
func Classify(unit providers.RawUnit) (Event, bool) {
	switch {
	case unit.Content != nil:
		if unit.Encoded {
			if text, ok := DecodeDataFrame(*unit.Content); ok {
				return ContentEvent{Text: text, Encoded: true}, true
			}
		}
		return ContentEvent{Text: *unit.Content}, true
	case unit.Metadata != nil:
		return MetadataEvent{Citations: unit.Metadata.Citations, Extra: unit.Metadata.Extra}, true
	case unit.Usage != nil:
		return TokenUsageEvent{
			PromptTokens:     unit.Usage.PromptTokens,
			CompletionTokens: unit.Usage.CompletionTokens,
			TotalTokens:      unit.Usage.TotalTokens,
			Model:            unit.Usage.Model,
		}, true
	default:
		return nil, false
	}
}

// Format serializes an event for the given protocol.
func Format(ev Event, protocol Protocol) string {
	switch e := ev.(type) {
	case ContentEvent:
		if protocol == ProtocolJSON {
			return dataFrame("", map[string]string{"data": e.Text})
		}
		return e.Text
	case MetadataEvent:
		meta := make(map[string]any, len(e.Extra)+1)
		for k, v := range e.Extra {
			meta[k] = v
		}
		citations := e.Citations
		if citations == nil {
			citations = []string{}
		}
		meta["citations"] = citations
		return dataFrame("", map[string]any{"metadata": meta})
	case TokenUsageEvent:
		return dataFrame(TokenUsageEventName, e)
	case ErrorEvent:
		if protocol == ProtocolJSON {
			return dataFrame("", map[string]string{"data": ErrorPrefix + e.Message})
		}
		return ErrorPrefix + e.Message
	default:
		return ""
	}
}

// dataFrame renders an event-stream frame with an optional event label.
func dataFrame(event string, payload any) string {
	body, err := json.Marshal(payload)
	if err != nil {
		// Payloads are plain maps and structs of strings and ints.
		body = []byte(fmt.Sprintf(`{"data":%q}`, ErrorPrefix+err.Error()))
	}
	if event != "" {
		return "event: " + event + "\ndata: " + string(body) + "\n\n"
	}
	return "data: " + string(body) + "\n\n"
}

// DecodeDataFrame extracts the text from a {"data": "<text>"} envelope. Both
// historically used encodings are accepted: a framed "data: {...}" line and the
// bare JSON body. Anything other than an object with exactly one string "data"
// field reports false.
func DecodeDataFrame(fragment string) (string, bool) {
	body := strings.TrimSpace(fragment)
	if rest, ok := strings.CutPrefix(body, "data:"); ok {
		body = strings.TrimSpace(rest)
	}
	if !strings.HasPrefix(body, "{") {
		return "", false
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &envelope); err != nil || len(envelope) != 1 {
		return "", false
	}
	raw, ok := envelope["data"]
	if !ok {
		return "", false
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return "", false
	}
	return text, true
}
