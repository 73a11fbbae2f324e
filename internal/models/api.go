package models

import (
	"github.com/google/uuid"
)

// --- Request Structs ---

// SignupRequest defines the expected body for the signup endpoint.
type SignupRequest struct {
	Email       string  `json:"email"`
	Password    string  `json:"password"`
	DisplayName *string `json:"display_name,omitempty"`
}

// LoginRequest defines the expected body for the login endpoint.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ConversationFormat selects the streamed wire protocol.
type ConversationFormat string

const (
	FormatText ConversationFormat = "text"
	FormatJSON ConversationFormat = "json"
)

// ConversationRequest is the body of a conversation turn. SessionKey is empty
// on the first turn; the remaining fields other than Message only apply then.
type ConversationRequest struct {
	SessionKey     string             `json:"session_key,omitempty"`
	Message        string             `json:"message"`
	Contexts       []string           `json:"contexts,omitempty"`
	UserContext    string             `json:"user_context,omitempty"`
	Documents      []string           `json:"documents,omitempty"`
	Format         ConversationFormat `json:"format,omitempty"`
	Provider       string             `json:"provider,omitempty"`
	ScoreThreshold *float64           `json:"score_threshold,omitempty"`
}

// SearchRequest is the body of a knowledge search.
type SearchRequest struct {
	Query          string   `json:"query"`
	Context        string   `json:"context,omitempty"`
	K              *int     `json:"k,omitempty"`
	ScoreThreshold *float64 `json:"score_threshold,omitempty"`
}

// --- Response Structs ---

// UserResponse defines the user information returned by the API.
// Avoid returning sensitive info like HashedPassword.
type UserResponse struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	DisplayName *string   `json:"display_name,omitempty"`
}

// AuthResponse defines the response body for successful authentication.
type AuthResponse struct {
	AccessToken string       `json:"access_token"`
	User        UserResponse `json:"user"`
}

// ErrorResponse defines the standard structure for API errors.
type ErrorResponse struct {
	Error string `json:"error"`
}

// DocumentResponse describes an indexed document.
type DocumentResponse struct {
	Key            string `json:"key"`
	Title          string `json:"title"`
	Source         string `json:"source"`
	Description    string `json:"description,omitempty"`
	SampleQuestion string `json:"sample_question,omitempty"`
}

// StoreResponse lists the documents of one embedding store.
type StoreResponse struct {
	Name      string             `json:"name"`
	Documents []DocumentResponse `json:"documents"`
}

// SearchChunk is one ranked excerpt. Lower scores are more relevant.
type SearchChunk struct {
	Content     string  `json:"content"`
	Score       float64 `json:"score"`
	DocumentKey string  `json:"document_key,omitempty"`
}

// SearchResponse is the merged result of a knowledge search.
type SearchResponse struct {
	Chunks  []SearchChunk      `json:"chunks"`
	Sources []DocumentResponse `json:"sources"`
}

// ContextResponse describes a selectable knowledge context.
type ContextResponse struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// ProvidersResponse lists the configured model providers.
type ProvidersResponse struct {
	Default   string   `json:"default"`
	Providers []string `json:"providers"`
}
