package db

import (
	"context"
	"fmt"
	"time"

	"github.com/raphaelgruber/voxchat/internal/models"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

type conversationRow struct {
	ID           surrealmodels.RecordID `json:"id"`
	Owner        string                 `json:"owner"`
	Title        string                 `json:"title"`
	Model        string                 `json:"model"`
	Language     string                 `json:"language"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
	MessageCount int                    `json:"message_count,omitempty"`
}

func (r conversationRow) toModel() (models.Conversation, error) {
	id, err := recordIDString(r.ID)
	if err != nil {
		return models.Conversation{}, err
	}
	return models.Conversation{
		ID:        id,
		OwnerID:   r.Owner,
		Title:     r.Title,
		Model:     models.ModelName(r.Model),
		Language:  r.Language,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}, nil
}

type messageRow struct {
	ID           surrealmodels.RecordID `json:"id"`
	Conversation surrealmodels.RecordID `json:"conversation"`
	Content      string                 `json:"content"`
	Transcript   *string                `json:"transcript,omitempty"`
	AudioURL     *string                `json:"audio_url,omitempty"`
	IsUser       bool                   `json:"is_user"`
	LatencyMs    *float64               `json:"latency_ms,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}

func (r messageRow) toModel() (models.Message, error) {
	id, err := recordIDString(r.ID)
	if err != nil {
		return models.Message{}, err
	}
	convID, err := recordIDString(r.Conversation)
	if err != nil {
		return models.Message{}, err
	}
	return models.Message{
		ID:             id,
		ConversationID: convID,
		Content:        r.Content,
		Transcript:     r.Transcript,
		AudioURL:       r.AudioURL,
		IsUser:         r.IsUser,
		LatencyMs:      r.LatencyMs,
		CreatedAt:      r.CreatedAt,
	}, nil
}

type performanceRow struct {
	ID                surrealmodels.RecordID `json:"id"`
	Owner             string                 `json:"owner"`
	Model             string                 `json:"model"`
	Language          string                 `json:"language"`
	LatencyMs         float64                `json:"latency_ms"`
	QualityScore      float64                `json:"quality_score"`
	ExpressivityScore float64                `json:"expressivity_score"`
	CreatedAt         time.Time              `json:"created_at"`
}

func (r performanceRow) toModel() (models.PerformanceRecord, error) {
	id, err := recordIDString(r.ID)
	if err != nil {
		return models.PerformanceRecord{}, err
	}
	return models.PerformanceRecord{
		ID:                id,
		OwnerID:           r.Owner,
		Model:             models.ModelName(r.Model),
		Language:          r.Language,
		LatencyMs:         r.LatencyMs,
		QualityScore:      r.QualityScore,
		ExpressivityScore: r.ExpressivityScore,
		CreatedAt:         r.CreatedAt,
	}, nil
}

// =============================================================================
// CONVERSATIONS
// =============================================================================

// CreateConversation creates a conversation owned by ownerID.
// An empty title defaults to the model's display title.
func (c *Client) CreateConversation(ctx context.Context, ownerID string, input models.ConversationInput) (*models.Conversation, error) {
	model, err := models.ParseModelName(string(input.Model))
	if err != nil {
		return nil, err
	}
	title := input.Title
	if title == "" {
		title = model.DefaultTitle()
	}

	results, err := query[[]conversationRow](ctx, c, `
		CREATE type::record("conversation", $id) SET
			owner = $owner,
			title = $title,
			model = $model,
			language = $language
		RETURN AFTER
	`, map[string]any{
		"id":       newRecordKey(),
		"owner":    ownerID,
		"title":    title,
		"model":    string(model),
		"language": input.Language,
	})
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}

	rows := firstResult(results)
	if len(rows) == 0 {
		return nil, fmt.Errorf("create conversation: no result returned")
	}
	conv, err := rows[0].toModel()
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return &conv, nil
}

// GetConversation returns a conversation owned by ownerID.
// Returns ErrNotFound if it does not exist and ErrForbidden if another owner holds it.
func (c *Client) GetConversation(ctx context.Context, ownerID, id string) (*models.Conversation, error) {
	results, err := query[[]conversationRow](ctx, c, `
		SELECT * FROM type::record("conversation", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}

	rows := firstResult(results)
	if len(rows) == 0 {
		return nil, fmt.Errorf("get conversation %s: %w", id, ErrNotFound)
	}
	if rows[0].Owner != ownerID {
		return nil, fmt.Errorf("get conversation %s: %w", id, ErrForbidden)
	}
	conv, err := rows[0].toModel()
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return &conv, nil
}

// ListConversations returns the owner's conversations newest first,
// each with the number of messages it holds.
func (c *Client) ListConversations(ctx context.Context, ownerID string) ([]models.ConversationSummary, error) {
	results, err := query[[]conversationRow](ctx, c, `
		SELECT *,
			array::len((SELECT VALUE id FROM message WHERE conversation = $parent.id)) AS message_count
		FROM conversation
		WHERE owner = $owner
		ORDER BY created_at DESC
	`, map[string]any{"owner": ownerID})
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	rows := firstResult(results)
	out := make([]models.ConversationSummary, 0, len(rows))
	for _, r := range rows {
		conv, err := r.toModel()
		if err != nil {
			return nil, fmt.Errorf("list conversations: %w", err)
		}
		out = append(out, models.ConversationSummary{Conversation: conv, MessageCount: r.MessageCount})
	}
	return out, nil
}

// DeleteConversation removes a conversation and all of its messages in one transaction.
// Returns ErrNotFound if it does not exist and ErrForbidden if another owner holds it.
func (c *Client) DeleteConversation(ctx context.Context, ownerID, id string) error {
	if _, err := c.GetConversation(ctx, ownerID, id); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}

	_, err := query[any](ctx, c, `
		BEGIN TRANSACTION;
		LET $conv = type::record("conversation", $id);
		DELETE message WHERE conversation = $conv;
		DELETE conversation WHERE id = $conv AND owner = $owner;
		COMMIT TRANSACTION;
	`, map[string]any{"id": id, "owner": ownerID})
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return nil
}

// =============================================================================
// MESSAGES
// =============================================================================

// CreateMessage appends a message to a conversation owned by ownerID and
// bumps the conversation's updated_at.
func (c *Client) CreateMessage(ctx context.Context, ownerID string, input models.MessageInput) (*models.Message, error) {
	if _, err := c.GetConversation(ctx, ownerID, input.ConversationID); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}

	results, err := query[[]messageRow](ctx, c, `
		CREATE type::record("message", $id) SET
			conversation = type::record("conversation", $conversation),
			content = $content,
			transcript = $transcript,
			audio_url = $audio_url,
			is_user = $is_user,
			latency_ms = $latency_ms
		RETURN AFTER
	`, map[string]any{
		"id":           newRecordKey(),
		"conversation": input.ConversationID,
		"content":      input.Content,
		"transcript":   input.Transcript,
		"audio_url":    input.AudioURL,
		"is_user":      input.IsUser,
		"latency_ms":   input.LatencyMs,
	})
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}

	rows := firstResult(results)
	if len(rows) == 0 {
		return nil, fmt.Errorf("create message: no result returned")
	}
	msg, err := rows[0].toModel()
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}

	if _, err := query[any](ctx, c, `
		UPDATE type::record("conversation", $id) SET updated_at = time::now() RETURN NONE
	`, map[string]any{"id": input.ConversationID}); err != nil {
		return nil, fmt.Errorf("touch conversation: %w", err)
	}
	return &msg, nil
}

// ListMessages returns a conversation's messages in creation order.
func (c *Client) ListMessages(ctx context.Context, ownerID, conversationID string) ([]models.Message, error) {
	if _, err := c.GetConversation(ctx, ownerID, conversationID); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	results, err := query[[]messageRow](ctx, c, `
		SELECT * FROM message
		WHERE conversation = type::record("conversation", $conversation)
		ORDER BY created_at ASC, id ASC
	`, map[string]any{"conversation": conversationID})
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	rows := firstResult(results)
	out := make([]models.Message, 0, len(rows))
	for _, r := range rows {
		msg, err := r.toModel()
		if err != nil {
			return nil, fmt.Errorf("list messages: %w", err)
		}
		out = append(out, msg)
	}
	return out, nil
}

// =============================================================================
// PERFORMANCE
// =============================================================================

// CreatePerformance appends a performance record for ownerID.
func (c *Client) CreatePerformance(ctx context.Context, ownerID string, input models.PerformanceInput) (*models.PerformanceRecord, error) {
	results, err := query[[]performanceRow](ctx, c, `
		CREATE type::record("performance", $id) SET
			owner = $owner,
			model = $model,
			language = $language,
			latency_ms = <float> $latency_ms,
			quality_score = <float> $quality_score,
			expressivity_score = <float> $expressivity_score
		RETURN AFTER
	`, map[string]any{
		"id":                 newRecordKey(),
		"owner":              ownerID,
		"model":              string(input.Model),
		"language":           input.Language,
		"latency_ms":         input.LatencyMs,
		"quality_score":      input.QualityScore,
		"expressivity_score": input.ExpressivityScore,
	})
	if err != nil {
		return nil, fmt.Errorf("create performance: %w", err)
	}

	rows := firstResult(results)
	if len(rows) == 0 {
		return nil, fmt.Errorf("create performance: no result returned")
	}
	rec, err := rows[0].toModel()
	if err != nil {
		return nil, fmt.Errorf("create performance: %w", err)
	}
	return &rec, nil
}

// ListPerformance returns every performance record of ownerID, oldest first.
func (c *Client) ListPerformance(ctx context.Context, ownerID string) ([]models.PerformanceRecord, error) {
	results, err := query[[]performanceRow](ctx, c, `
		SELECT * FROM performance WHERE owner = $owner ORDER BY created_at ASC, id ASC
	`, map[string]any{"owner": ownerID})
	if err != nil {
		return nil, fmt.Errorf("list performance: %w", err)
	}

	rows := firstResult(results)
	out := make([]models.PerformanceRecord, 0, len(rows))
	for _, r := range rows {
		rec, err := r.toModel()
		if err != nil {
			return nil, fmt.Errorf("list performance: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}
