package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"time"

	"assistant-backend/internal/models"
)

const defaultOllamaURL = "http://localhost:11434"

// OllamaClient streams chat completions from an Ollama server.
type OllamaClient struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewOllamaClient creates a new Ollama client.
func NewOllamaClient(baseURL, model string) *OllamaClient {
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	return &OllamaClient{
		baseURL: baseURL,
		model:   model,
		// No overall timeout: streams are bounded by the request context.
		httpClient: &http.Client{},
	}
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ollamaChatChunk is one NDJSON line of a streaming /api/chat response.
type ollamaChatChunk struct {
	Model     string        `json:"model"`
	CreatedAt time.Time     `json:"created_at"`
	Message   ollamaMessage `json:"message"`
	Done      bool          `json:"done"`
	Error     string        `json:"error,omitempty"`

	PromptEvalCount int `json:"prompt_eval_count,omitempty"`
	EvalCount       int `json:"eval_count,omitempty"`
}

// Stream implements Client.
func (c *OllamaClient) Stream(ctx context.Context, messages []models.Message) iter.Seq2[RawUnit, error] {
	return func(yield func(RawUnit, error) bool) {
		resp, err := c.openChat(ctx, messages)
		if err != nil {
			yield(RawUnit{}, err)
			return
		}
		defer resp.Body.Close()

		decoder := json.NewDecoder(resp.Body)
		for {
			var chunk ollamaChatChunk
			if err := decoder.Decode(&chunk); err != nil {
				if errors.Is(err, io.EOF) {
					return
				}
				yield(RawUnit{}, fmt.Errorf("failed to decode response: %w", err))
				return
			}
			if chunk.Error != "" {
				yield(RawUnit{}, fmt.Errorf("ollama stream error: %s", chunk.Error))
				return
			}

			if chunk.Message.Content != "" {
				if !yield(TextUnit(chunk.Message.Content), nil) {
					return
				}
			}

			// The final line carries the token statistics.
			if chunk.Done {
				model := chunk.Model
				if model == "" {
					model = c.model
				}
				yield(UsageUnit(chunk.PromptEvalCount, chunk.EvalCount, model), nil)
				return
			}
		}
	}
}

func (c *OllamaClient) openChat(ctx context.Context, messages []models.Message) (*http.Response, error) {
	req := ollamaChatRequest{
		Model:    c.model,
		Messages: make([]ollamaMessage, 0, len(messages)),
		Stream:   true,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, ollamaMessage{Role: string(m.Role), Content: m.Content})
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return nil, &APIError{Provider: "ollama", StatusCode: resp.StatusCode, Body: string(body)}
	}
	return resp, nil
}
