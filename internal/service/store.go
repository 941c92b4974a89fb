// Package service holds the client-side orchestration of a voice chat:
// conversation state, performance statistics, history browsing and the
// exchange session that ties recording, the gateway and persistence together.
package service

import (
	"context"
	"errors"

	"github.com/raphaelgruber/voxchat/internal/models"
)

// Store is the owner-scoped persistence API. Implementations must enforce
// ownership themselves: a record held by another owner fails with
// models.ErrForbidden, a missing one with models.ErrNotFound.
type Store interface {
	CreateConversation(ctx context.Context, ownerID string, input models.ConversationInput) (*models.Conversation, error)
	ListConversations(ctx context.Context, ownerID string) ([]models.ConversationSummary, error)
	DeleteConversation(ctx context.Context, ownerID, id string) error

	CreateMessage(ctx context.Context, ownerID string, input models.MessageInput) (*models.Message, error)
	ListMessages(ctx context.Context, ownerID, conversationID string) ([]models.Message, error)

	CreatePerformance(ctx context.Context, ownerID string, input models.PerformanceInput) (*models.PerformanceRecord, error)
	ListPerformance(ctx context.Context, ownerID string) ([]models.PerformanceRecord, error)
}

var (
	// ErrPersistence matches every *PersistenceError via errors.Is.
	ErrPersistence = errors.New("persistence error")

	// ErrInvalidScore indicates a quality or expressivity score outside [0,5].
	ErrInvalidScore = errors.New("invalid score")

	// ErrInvalidLatency indicates a negative or NaN latency.
	ErrInvalidLatency = errors.New("invalid latency")

	// ErrBusy is returned while a submit is outstanding.
	ErrBusy = errors.New("session busy")

	// ErrNotRecording is returned by StopAndSubmit when nothing was recorded.
	ErrNotRecording = errors.New("not recording")
)

// PersistenceError reports a failed store operation.
// errors.Is still matches the wrapped store error.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return "persistence error: " + e.Op + ": " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Is reports ErrPersistence as a match.
func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

func persistenceError(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}
