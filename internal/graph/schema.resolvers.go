package graph

import (
	"context"
	"fmt"

	"github.com/raphaelgruber/voxchat/internal/events"
	"github.com/raphaelgruber/voxchat/internal/models"
	"github.com/raphaelgruber/voxchat/internal/service"
)

// Query returns the query resolver.
func (r *Resolver) Query() QueryResolver { return &queryResolver{r} }

// Mutation returns the mutation resolver.
func (r *Resolver) Mutation() MutationResolver { return &mutationResolver{r} }

// Subscription returns the subscription resolver.
func (r *Resolver) Subscription() SubscriptionResolver { return &subscriptionResolver{r} }

type queryResolver struct{ *Resolver }
type mutationResolver struct{ *Resolver }
type subscriptionResolver struct{ *Resolver }

// =============================================================================
// QUERIES
// =============================================================================

// Conversations is the resolver for the conversations field.
func (r *queryResolver) Conversations(ctx context.Context) ([]models.ConversationSummary, error) {
	owner, err := ownerFrom(ctx)
	if err != nil {
		return nil, err
	}
	list, err := r.store.ListConversations(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	if list == nil {
		list = []models.ConversationSummary{}
	}
	return list, nil
}

// Messages is the resolver for the messages field.
func (r *queryResolver) Messages(ctx context.Context, conversationID string) ([]models.Message, error) {
	owner, err := ownerFrom(ctx)
	if err != nil {
		return nil, err
	}
	msgs, err := r.store.ListMessages(ctx, owner, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	return msgs, nil
}

// Performance is the resolver for the performance field.
func (r *queryResolver) Performance(ctx context.Context) ([]models.PerformanceRecord, error) {
	owner, err := ownerFrom(ctx)
	if err != nil {
		return nil, err
	}
	recs, err := r.store.ListPerformance(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("list performance: %w", err)
	}
	if recs == nil {
		recs = []models.PerformanceRecord{}
	}
	return recs, nil
}

// Stats is the resolver for the stats field.
func (r *queryResolver) Stats(ctx context.Context) ([]models.ModelStats, error) {
	owner, err := ownerFrom(ctx)
	if err != nil {
		return nil, err
	}
	recs, err := r.store.ListPerformance(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	return service.FoldStats(recs), nil
}

// ServerStats is the resolver for the serverStats field.
func (r *queryResolver) ServerStats(ctx context.Context) (*ServerStats, error) {
	if _, err := ownerFrom(ctx); err != nil {
		return nil, err
	}
	return serverStatsToGraphQL(r.metrics.Snapshot()), nil
}

// =============================================================================
// MUTATIONS
// =============================================================================

// CreateConversation is the resolver for the createConversation field.
func (r *mutationResolver) CreateConversation(ctx context.Context, input models.ConversationInput) (*models.ConversationSummary, error) {
	owner, err := ownerFrom(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := models.ParseModelName(string(input.Model)); err != nil {
		return nil, err
	}
	if input.Language == "" {
		input.Language = models.DefaultLanguage
	}

	conv, err := r.store.CreateConversation(ctx, owner, input)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	summary := &models.ConversationSummary{Conversation: *conv}
	r.hub.Publish(owner, events.Event{Type: events.ConversationCreated, ConversationID: conv.ID, Conversation: summary})
	return summary, nil
}

// DeleteConversation is the resolver for the deleteConversation field.
func (r *mutationResolver) DeleteConversation(ctx context.Context, id string) (bool, error) {
	owner, err := ownerFrom(ctx)
	if err != nil {
		return false, err
	}
	if err := r.store.DeleteConversation(ctx, owner, id); err != nil {
		return false, fmt.Errorf("delete conversation: %w", err)
	}
	r.hub.Publish(owner, events.Event{Type: events.ConversationDeleted, ConversationID: id})
	return true, nil
}

// CreateMessage is the resolver for the createMessage field.
func (r *mutationResolver) CreateMessage(ctx context.Context, input models.MessageInput) (*models.Message, error) {
	owner, err := ownerFrom(ctx)
	if err != nil {
		return nil, err
	}
	if input.ConversationID == "" {
		return nil, fmt.Errorf("%w: conversationId is required", ErrBadInput)
	}

	msg, err := r.store.CreateMessage(ctx, owner, input)
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	r.hub.Publish(owner, events.Event{Type: events.MessageCreated, ConversationID: msg.ConversationID, Message: msg})
	return msg, nil
}

// RecordPerformance is the resolver for the recordPerformance field.
func (r *mutationResolver) RecordPerformance(ctx context.Context, input models.PerformanceInput) (*models.PerformanceRecord, error) {
	owner, err := ownerFrom(ctx)
	if err != nil {
		return nil, err
	}
	if err := validatePerformance(input); err != nil {
		return nil, err
	}

	rec, err := r.store.CreatePerformance(ctx, owner, input)
	if err != nil {
		return nil, fmt.Errorf("record performance: %w", err)
	}
	r.hub.Publish(owner, events.Event{Type: events.PerformanceRecorded, Performance: rec})
	return rec, nil
}

func validatePerformance(in models.PerformanceInput) error {
	if _, err := models.ParseModelName(string(in.Model)); err != nil {
		return err
	}
	if !models.ValidScore(in.QualityScore) || !models.ValidScore(in.ExpressivityScore) {
		return fmt.Errorf("%w: scores must be within [%v,%v]", service.ErrInvalidScore, models.MinScore, models.MaxScore)
	}
	if in.LatencyMs < 0 {
		return fmt.Errorf("%w: %v", service.ErrInvalidLatency, in.LatencyMs)
	}
	return nil
}

// =============================================================================
// SUBSCRIPTIONS
// =============================================================================

// Changes is the resolver for the changes field. The channel closes when ctx
// ends.
func (r *subscriptionResolver) Changes(ctx context.Context) (<-chan *events.Event, error) {
	owner, err := ownerFrom(ctx)
	if err != nil {
		return nil, err
	}

	sub := r.hub.Subscribe(owner)
	out := make(chan *events.Event, 1)
	go func() {
		defer close(out)
		defer sub.Close()
		r.logger.Debug("change subscriber connected", "owner", owner)
		for {
			select {
			case <-ctx.Done():
				r.logger.Debug("change subscriber disconnected", "owner", owner)
				return
			case ev, ok := <-sub.C:
				if !ok {
					return
				}
				select {
				case out <- &ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
