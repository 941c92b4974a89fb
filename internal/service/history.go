package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/raphaelgruber/voxchat/internal/models"
)

// HistoryBrowser lists, opens and deletes past conversations.
type HistoryBrowser struct {
	store   Store
	manager *ConversationManager
	owner   string
	logger  *slog.Logger
}

// NewHistoryBrowser creates a browser acting for owner on manager's conversations.
func NewHistoryBrowser(store Store, manager *ConversationManager, owner string, logger *slog.Logger) *HistoryBrowser {
	if logger == nil {
		logger = slog.Default()
	}
	return &HistoryBrowser{store: store, manager: manager, owner: owner, logger: logger}
}

// List returns ownerID's conversations newest first with message counts.
func (h *HistoryBrowser) List(ctx context.Context, ownerID string) ([]models.ConversationSummary, error) {
	list, err := h.store.ListConversations(ctx, ownerID)
	if err != nil {
		h.logger.Error("list conversations failed", "error", err)
		return nil, persistenceError("list conversations", err)
	}
	return list, nil
}

// Delete removes a conversation and its messages. Deleting the active
// conversation resets the manager. Ownership violations surface as
// models.ErrNotFound or models.ErrForbidden.
func (h *HistoryBrowser) Delete(ctx context.Context, conversationID string) error {
	if err := h.store.DeleteConversation(ctx, h.owner, conversationID); err != nil {
		h.logger.Error("delete conversation failed", "conversation_id", conversationID, "error", err)
		if errors.Is(err, models.ErrNotFound) || errors.Is(err, models.ErrForbidden) {
			return fmt.Errorf("delete conversation %s: %w", conversationID, err)
		}
		return persistenceError("delete conversation", err)
	}

	if h.manager != nil && h.manager.ActiveID() == conversationID {
		h.manager.StartNew()
	}
	h.logger.Info("conversation deleted", "conversation_id", conversationID)
	return nil
}

// Open switches the manager to conversationID.
func (h *HistoryBrowser) Open(ctx context.Context, conversationID string) error {
	return h.manager.SwitchTo(ctx, conversationID)
}
