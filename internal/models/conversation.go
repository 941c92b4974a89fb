package models

import (
	"time"
)

// Conversation represents a persistent chat session owned by one user.
type Conversation struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	Title     string    `json:"title"`
	Model     ModelName `json:"model"`
	Language  string    `json:"language"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ConversationSummary is a conversation as listed by the history browser.
type ConversationSummary struct {
	Conversation
	MessageCount int `json:"messageCount"`
}

// ConversationInput holds the fields supplied when creating a conversation.
// An empty Title is replaced by Model.DefaultTitle().
type ConversationInput struct {
	Title    string    `json:"title,omitempty"`
	Model    ModelName `json:"model"`
	Language string    `json:"language"`
}

// Message represents a single chat message within a conversation.
// Messages are never mutated after creation.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Content        string    `json:"content"`
	Transcript     *string   `json:"transcript,omitempty"`
	AudioURL       *string   `json:"audioUrl,omitempty"`
	IsUser         bool      `json:"isUser"`
	LatencyMs      *float64  `json:"latencyMs,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// MessageInput holds the fields supplied when creating a message.
type MessageInput struct {
	ConversationID string   `json:"conversationId"`
	Content        string   `json:"content"`
	Transcript     *string  `json:"transcript,omitempty"`
	AudioURL       *string  `json:"audioUrl,omitempty"`
	IsUser         bool     `json:"isUser"`
	LatencyMs      *float64 `json:"latencyMs,omitempty"`
}
