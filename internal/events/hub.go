// Package events fans change notifications out to an owner's open
// subscriptions, so clients can refresh their view after another session
// writes to the same account.
package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/raphaelgruber/voxchat/internal/models"
)

// Type names a change.
type Type string

// Event types.
const (
	ConversationCreated Type = "conversation.created"
	ConversationDeleted Type = "conversation.deleted"
	MessageCreated      Type = "message.created"
	PerformanceRecorded Type = "performance.recorded"
)

// Event is one change notification. At most one of the record fields is
// set, matching Type; deletions carry only the conversation id.
type Event struct {
	Type           Type                        `json:"type"`
	ConversationID string                      `json:"conversationId,omitempty"`
	At             time.Time                   `json:"at"`
	Conversation   *models.ConversationSummary `json:"conversation,omitempty"`
	Message        *models.Message             `json:"message,omitempty"`
	Performance    *models.PerformanceRecord   `json:"performance,omitempty"`
}

const subscriberBuffer = 32

// Subscription receives the events published for one owner.
type Subscription struct {
	C <-chan Event

	hub   *Hub
	owner string
	ch    chan Event
	once  sync.Once
}

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() { s.hub.remove(s) })
}

// Hub tracks subscriptions per owner.
// It is safe for concurrent use.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[*Subscription]struct{}
	logger *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:   make(map[string]map[*Subscription]struct{}),
		logger: logger,
	}
}

// Subscribe registers a subscription for owner.
func (h *Hub) Subscribe(owner string) *Subscription {
	ch := make(chan Event, subscriberBuffer)
	s := &Subscription{C: ch, hub: h, owner: owner, ch: ch}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[owner] == nil {
		h.subs[owner] = make(map[*Subscription]struct{})
	}
	h.subs[owner][s] = struct{}{}
	return s
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[s.owner]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(h.subs, s.owner)
		}
	}
	close(s.ch)
}

// Publish delivers ev to every subscription of owner. A subscriber whose
// buffer is full misses the event rather than blocking the publisher.
func (h *Hub) Publish(owner string, ev Event) {
	if h == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs[owner] {
		select {
		case s.ch <- ev:
		default:
			h.logger.Warn("dropping event for slow subscriber", "owner", owner, "type", ev.Type)
		}
	}
}

// Subscribers returns the number of open subscriptions for owner.
func (h *Hub) Subscribers(owner string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[owner])
}
