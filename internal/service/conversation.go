package service

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/raphaelgruber/voxchat/internal/models"
)

// Exchange is what one successful gateway call contributes to a conversation.
type Exchange struct {
	Transcript string
	// Reply is the assistant's text. When empty the transcript is used.
	Reply     string
	AudioURL  string
	LatencyMs float64
}

// ConversationManager owns the active conversation id and its ordered messages.
//
// The in-memory message list only ever contains records returned by the
// store, in the order the store created them.
type ConversationManager struct {
	store  Store
	owner  string
	logger *slog.Logger

	mu       sync.Mutex
	activeID string
	messages []models.Message
}

// NewConversationManager creates a manager for owner with no active conversation.
func NewConversationManager(store Store, owner string, logger *slog.Logger) *ConversationManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConversationManager{store: store, owner: owner, logger: logger}
}

// EnsureConversation returns the active conversation id, creating and
// activating a new conversation when none is active. On failure the active id
// stays unset.
func (m *ConversationManager) EnsureConversation(ctx context.Context, model models.ModelName, language string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.activeID != "" {
		return m.activeID, nil
	}

	conv, err := m.store.CreateConversation(ctx, m.owner, models.ConversationInput{
		Title:    model.DefaultTitle(),
		Model:    model,
		Language: language,
	})
	if err != nil {
		m.logger.Error("create conversation failed", "model", model, "error", err)
		return "", persistenceError("create conversation", err)
	}

	m.activeID = conv.ID
	m.messages = nil
	m.logger.Info("conversation created", "conversation_id", conv.ID, "model", model, "language", language)
	return conv.ID, nil
}

// RecordExchange creates the user message and then the assistant message.
// If the assistant message fails the user message stays persisted; the
// failure is reported as a *PersistenceError.
func (m *ConversationManager) RecordExchange(ctx context.Context, conversationID string, ex Exchange) error {
	transcript := ex.Transcript
	user, err := m.store.CreateMessage(ctx, m.owner, models.MessageInput{
		ConversationID: conversationID,
		Content:        transcript,
		Transcript:     &transcript,
		IsUser:         true,
	})
	if err != nil {
		m.logger.Error("create user message failed", "conversation_id", conversationID, "error", err)
		return persistenceError("create user message", err)
	}
	m.appendIfActive(conversationID, *user)

	content := ex.Reply
	if content == "" {
		content = ex.Transcript
	}
	audioURL := ex.AudioURL
	latency := ex.LatencyMs
	assistant, err := m.store.CreateMessage(ctx, m.owner, models.MessageInput{
		ConversationID: conversationID,
		Content:        content,
		AudioURL:       &audioURL,
		IsUser:         false,
		LatencyMs:      &latency,
	})
	if err != nil {
		m.logger.Error("create assistant message failed; user message kept",
			"conversation_id", conversationID, "user_message_id", user.ID, "error", err)
		return persistenceError("create assistant message", err)
	}
	m.appendIfActive(conversationID, *assistant)
	return nil
}

func (m *ConversationManager) appendIfActive(conversationID string, msg models.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.activeID == conversationID {
		m.messages = append(m.messages, msg)
	}
}

// SwitchTo makes conversationID active and reloads its messages in creation
// order. On failure the previous state is kept.
func (m *ConversationManager) SwitchTo(ctx context.Context, conversationID string) error {
	msgs, err := m.store.ListMessages(ctx, m.owner, conversationID)
	if err != nil {
		m.logger.Error("load messages failed", "conversation_id", conversationID, "error", err)
		return persistenceError("list messages", err)
	}
	sortMessages(msgs)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.activeID = conversationID
	m.messages = msgs
	return nil
}

// StartNew clears the active conversation without deleting anything.
func (m *ConversationManager) StartNew() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activeID = ""
	m.messages = nil
}

// ActiveID returns the active conversation id, or "".
func (m *ConversationManager) ActiveID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeID
}

// Messages returns a copy of the active conversation's messages.
func (m *ConversationManager) Messages() []models.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.messages)
}

// sortMessages orders by creation time; the stable sort keeps store order for ties.
func sortMessages(msgs []models.Message) {
	slices.SortStableFunc(msgs, func(a, b models.Message) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
}
