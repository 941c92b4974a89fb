package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/raphaelgruber/voxchat/internal/audio"
	"github.com/raphaelgruber/voxchat/internal/client"
	"github.com/raphaelgruber/voxchat/internal/models"
)

var errStoreDown = errors.New("store down")

// memStore is an in-memory Store that enforces ownership like the real ones.
type memStore struct {
	mu    sync.Mutex
	seq   int
	clock time.Time

	convs map[string]models.Conversation
	msgs  []models.Message
	perf  []models.PerformanceRecord

	// Failure injection.
	failCreateConversation bool
	failMessageAt          int // 1-based index of the CreateMessage call to fail; 0 disables
	messageCalls           int
	failListMessages       bool
	failCreatePerformance  bool
	failListPerformance    bool
	failListConversations  bool
	failDelete             error
}

func newMemStore() *memStore {
	return &memStore{
		clock: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
		convs: make(map[string]models.Conversation),
	}
}

func (s *memStore) next(prefix string) (string, time.Time) {
	s.seq++
	s.clock = s.clock.Add(time.Millisecond)
	return fmt.Sprintf("%s-%d", prefix, s.seq), s.clock
}

func (s *memStore) owned(ownerID, id string) error {
	c, ok := s.convs[id]
	if !ok {
		return models.ErrNotFound
	}
	if c.OwnerID != ownerID {
		return models.ErrForbidden
	}
	return nil
}

func (s *memStore) CreateConversation(_ context.Context, ownerID string, in models.ConversationInput) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreateConversation {
		return nil, errStoreDown
	}
	id, now := s.next("conv")
	c := models.Conversation{ID: id, OwnerID: ownerID, Title: in.Title, Model: in.Model, Language: in.Language, CreatedAt: now, UpdatedAt: now}
	s.convs[id] = c
	return &c, nil
}

func (s *memStore) ListConversations(_ context.Context, ownerID string) ([]models.ConversationSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failListConversations {
		return nil, errStoreDown
	}
	var out []models.ConversationSummary
	for _, c := range s.convs {
		if c.OwnerID != ownerID {
			continue
		}
		n := 0
		for _, m := range s.msgs {
			if m.ConversationID == c.ID {
				n++
			}
		}
		out = append(out, models.ConversationSummary{Conversation: c, MessageCount: n})
	}
	// newest first
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].CreatedAt.After(out[i].CreatedAt) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (s *memStore) DeleteConversation(_ context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failDelete != nil {
		return s.failDelete
	}
	if err := s.owned(ownerID, id); err != nil {
		return err
	}
	delete(s.convs, id)
	kept := s.msgs[:0]
	for _, m := range s.msgs {
		if m.ConversationID != id {
			kept = append(kept, m)
		}
	}
	s.msgs = kept
	return nil
}

func (s *memStore) CreateMessage(_ context.Context, ownerID string, in models.MessageInput) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messageCalls++
	if s.failMessageAt == s.messageCalls {
		return nil, errStoreDown
	}
	if err := s.owned(ownerID, in.ConversationID); err != nil {
		return nil, err
	}
	id, now := s.next("msg")
	m := models.Message{
		ID: id, ConversationID: in.ConversationID, Content: in.Content, Transcript: in.Transcript,
		AudioURL: in.AudioURL, IsUser: in.IsUser, LatencyMs: in.LatencyMs, CreatedAt: now,
	}
	s.msgs = append(s.msgs, m)
	return &m, nil
}

func (s *memStore) ListMessages(_ context.Context, ownerID, conversationID string) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failListMessages {
		return nil, errStoreDown
	}
	if err := s.owned(ownerID, conversationID); err != nil {
		return nil, err
	}
	var out []models.Message
	for _, m := range s.msgs {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memStore) CreatePerformance(_ context.Context, ownerID string, in models.PerformanceInput) (*models.PerformanceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreatePerformance {
		return nil, errStoreDown
	}
	id, now := s.next("perf")
	r := models.PerformanceRecord{
		ID: id, OwnerID: ownerID, Model: in.Model, Language: in.Language, LatencyMs: in.LatencyMs,
		QualityScore: in.QualityScore, ExpressivityScore: in.ExpressivityScore, CreatedAt: now,
	}
	s.perf = append(s.perf, r)
	return &r, nil
}

func (s *memStore) ListPerformance(_ context.Context, ownerID string) ([]models.PerformanceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failListPerformance {
		return nil, errStoreDown
	}
	var out []models.PerformanceRecord
	for _, r := range s.perf {
		if r.OwnerID == ownerID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memStore) messagesFor(conversationID string) []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Message
	for _, m := range s.msgs {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	return out
}

// fakeRecorder hands out a fixed clip. When startBlock is set, Start
// signals startEntered and waits for startBlock to close.
type fakeRecorder struct {
	mu        sync.Mutex
	recording bool
	startErr  error
	clip      *audio.Clip

	startBlock   chan struct{}
	startEntered chan struct{}
}

func (r *fakeRecorder) Start(context.Context) error {
	if r.startBlock != nil {
		r.startEntered <- struct{}{}
		<-r.startBlock
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.startErr != nil {
		return r.startErr
	}
	r.recording = true
	return nil
}

func (r *fakeRecorder) Stop() (*audio.Clip, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording {
		return nil, nil
	}
	r.recording = false
	return r.clip, nil
}

func (r *fakeRecorder) IsRecording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// fakeGateway returns a canned result, optionally blocking until released.
type fakeGateway struct {
	mu      sync.Mutex
	calls   int
	err     error
	result  client.SubmitResult
	block   chan struct{}
	entered chan struct{}
}

func (g *fakeGateway) Submit(ctx context.Context, _ *audio.Clip, model, language string) (*client.SubmitResult, error) {
	g.mu.Lock()
	g.calls++
	block, entered := g.block, g.entered
	g.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if g.err != nil {
		return nil, g.err
	}
	res := g.result
	res.Model = models.ModelName(model)
	res.Language = language
	return &res, nil
}

type fixedScorer Scores

func (f fixedScorer) Score(context.Context, models.ModelName, float64) Scores {
	return Scores(f)
}
