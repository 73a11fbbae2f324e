package models

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message represents a single message in a conversation.
// A conversation's history is an ordered slice of these, always starting with one system message.
type Message struct {
	Role    Role   `json:"role"`    // system, user or assistant
	Content string `json:"content"` // The text content of the message
}
