package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"

	"assistant-backend/internal/models"
)

const defaultOpenAIURL = "https://api.openai.com/v1"

// OpenAIClient streams chat completions from any OpenAI-compatible endpoint.
type OpenAIClient struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewOpenAIClient creates a new OpenAI-compatible client.
func NewOpenAIClient(baseURL, apiKey, model string) *OpenAIClient {
	if baseURL == "" {
		baseURL = defaultOpenAIURL
	}
	return &OpenAIClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{},
	}
}

type openAIChatRequest struct {
	Model         string          `json:"model"`
	Messages      []openAIMessage `json:"messages"`
	Stream        bool            `json:"stream"`
	StreamOptions struct {
		IncludeUsage bool `json:"include_usage"`
	} `json:"stream_options"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// openAIChunk is the payload of one `data:` line of a streamed completion.
type openAIChunk struct {
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	// Some compatible providers (e.g. search-grounded models) attach citations.
	Citations []string `json:"citations,omitempty"`
}

// Stream implements Client.
func (c *OpenAIClient) Stream(ctx context.Context, messages []models.Message) iter.Seq2[RawUnit, error] {
	return func(yield func(RawUnit, error) bool) {
		resp, err := c.openCompletion(ctx, messages)
		if err != nil {
			yield(RawUnit{}, err)
			return
		}
		defer resp.Body.Close()

		citationsSent := false
		reader := bufio.NewReader(resp.Body)
		for {
			line, err := reader.ReadString('\n')
			if err != nil && err != io.EOF {
				yield(RawUnit{}, fmt.Errorf("failed to read stream: %w", err))
				return
			}

			payload, ok := strings.CutPrefix(strings.TrimSpace(line), "data:")
			payload = strings.TrimSpace(payload)
			if ok && payload == "[DONE]" {
				return
			}
			if ok && payload != "" {
				for _, unit := range c.unitsFromChunk(payload, &citationsSent) {
					if !yield(unit, nil) {
						return
					}
				}
			}

			if err == io.EOF {
				return
			}
		}
	}
}

// unitsFromChunk converts one SSE payload into raw units. Malformed payloads produce none.
func (c *OpenAIClient) unitsFromChunk(payload string, citationsSent *bool) []RawUnit {
	var chunk openAIChunk
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		return nil
	}

	var units []RawUnit
	if len(chunk.Citations) > 0 && !*citationsSent {
		*citationsSent = true
		units = append(units, CitationsUnit(chunk.Citations))
	}
	for _, choice := range chunk.Choices {
		if choice.Delta.Content != "" {
			units = append(units, TextUnit(choice.Delta.Content))
		}
	}
	if chunk.Usage != nil {
		model := chunk.Model
		if model == "" {
			model = c.model
		}
		units = append(units, RawUnit{Usage: &RawUsage{
			PromptTokens:     chunk.Usage.PromptTokens,
			CompletionTokens: chunk.Usage.CompletionTokens,
			TotalTokens:      chunk.Usage.TotalTokens,
			Model:            model,
		}})
	}
	return units
}

func (c *OpenAIClient) openCompletion(ctx context.Context, messages []models.Message) (*http.Response, error) {
	req := openAIChatRequest{
		Model:    c.model,
		Messages: make([]openAIMessage, 0, len(messages)),
		Stream:   true,
	}
	req.StreamOptions.IncludeUsage = true
	for _, m := range messages {
		req.Messages = append(req.Messages, openAIMessage{Role: string(m.Role), Content: m.Content})
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return nil, &APIError{Provider: "openai", StatusCode: resp.StatusCode, Body: string(body)}
	}
	return resp, nil
}
