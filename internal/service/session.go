package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/raphaelgruber/voxchat/internal/audio"
	"github.com/raphaelgruber/voxchat/internal/client"
	"github.com/raphaelgruber/voxchat/internal/models"
)

// Recorder captures one utterance at a time.
type Recorder interface {
	Start(ctx context.Context) error
	Stop() (*audio.Clip, error)
	IsRecording() bool
}

// Gateway submits a recording to the inference gateway.
type Gateway interface {
	Submit(ctx context.Context, clip *audio.Clip, model, language string) (*client.SubmitResult, error)
}

// ExchangeResult describes one completed exchange. The exchange itself is
// persisted whenever StopAndSubmit returns a nil error; OutcomeErr and
// StatsErr report the follow-up steps that do not fail it.
type ExchangeResult struct {
	ConversationID string
	Submit         *client.SubmitResult
	Scores         Scores
	Record         *models.PerformanceRecord
	Stats          []models.ModelStats
	OutcomeErr     error
	StatsErr       error
}

// SessionDeps are the collaborators of a Session.
type SessionDeps struct {
	Recorder   Recorder
	Gateway    Gateway
	Manager    *ConversationManager
	Aggregator *Aggregator
	Scorer     Scorer
	Logger     *slog.Logger
}

// Session drives record → submit → persist → score for one user.
// At most one submit is outstanding at a time.
type Session struct {
	deps  SessionDeps
	owner string

	busy atomic.Bool

	mu       sync.Mutex
	model    models.ModelName
	language string
	stats    []models.ModelStats
}

// NewSession creates a session for owner using model and language until changed.
func NewSession(deps SessionDeps, owner string, model models.ModelName, language string) *Session {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Scorer == nil {
		deps.Scorer = PlaceholderScorer{}
	}
	if language == "" {
		language = models.DefaultLanguage
	}
	return &Session{deps: deps, owner: owner, model: model, language: language}
}

// SetModel changes the model used for the next exchange.
func (s *Session) SetModel(model string) error {
	name, err := models.ParseModelName(model)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.model = name
	return nil
}

// SetLanguage changes the language used for the next exchange.
func (s *Session) SetLanguage(language string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.language = language
}

// Settings returns the current model and language.
func (s *Session) Settings() (models.ModelName, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model, s.language
}

// Stats returns a copy of the statistics from the last successful refresh.
func (s *Session) Stats() []models.ModelStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.stats)
}

// Busy reports whether a submit is outstanding.
func (s *Session) Busy() bool {
	return s.busy.Load()
}

// StartRecording begins capturing. It fails with ErrBusy while a submit is
// outstanding; the session is busy while the device is being acquired.
func (s *Session) StartRecording(ctx context.Context) error {
	if !s.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer s.busy.Store(false)

	if err := s.deps.Recorder.Start(ctx); err != nil {
		s.deps.Logger.Error("start recording failed", "error", err)
		return err
	}
	return nil
}

// CancelRecording stops capturing and discards the audio.
func (s *Session) CancelRecording() {
	if _, err := s.deps.Recorder.Stop(); err != nil {
		s.deps.Logger.Warn("cancel recording", "error", err)
	}
}

// RefreshStats refolds the owner's statistics.
func (s *Session) RefreshStats(ctx context.Context) ([]models.ModelStats, error) {
	stats, err := s.deps.Aggregator.ComputeStats(ctx, s.owner)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.stats = stats
	s.mu.Unlock()
	return stats, nil
}

// StopAndSubmit ends the recording and runs one exchange. Failures of the
// gateway, of creating the conversation or of recording the messages are
// returned; nothing is retried and the session stays usable.
func (s *Session) StopAndSubmit(ctx context.Context) (*ExchangeResult, error) {
	if !s.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer s.busy.Store(false)

	log := s.deps.Logger
	clip, err := s.deps.Recorder.Stop()
	if err != nil {
		log.Error("stop recording failed", "error", err)
		return nil, err
	}
	if clip == nil {
		return nil, ErrNotRecording
	}

	model, language := s.Settings()
	log.Info("submitting recording", "model", model, "language", language, "duration", clip.Duration)

	res, err := s.deps.Gateway.Submit(ctx, clip, string(model), language)
	if err != nil {
		log.Error("submit failed", "model", model, "error", err)
		return nil, err
	}

	convID, err := s.deps.Manager.EnsureConversation(ctx, model, language)
	if err != nil {
		return nil, err
	}

	if err := s.deps.Manager.RecordExchange(ctx, convID, Exchange{
		Transcript: res.Transcript,
		Reply:      res.Reply,
		AudioURL:   res.AudioURL,
		LatencyMs:  res.LatencyMs,
	}); err != nil {
		return nil, fmt.Errorf("record exchange: %w", err)
	}

	result := &ExchangeResult{ConversationID: convID, Submit: res}

	result.Scores = s.deps.Scorer.Score(ctx, model, res.LatencyMs)
	result.Record, result.OutcomeErr = s.deps.Aggregator.RecordOutcome(ctx, model, language,
		res.LatencyMs, result.Scores.Quality, result.Scores.Expressivity)
	if result.OutcomeErr != nil {
		log.Warn("performance not recorded", "error", result.OutcomeErr)
	}

	result.Stats, result.StatsErr = s.RefreshStats(ctx)
	if result.StatsErr != nil {
		log.Warn("stats refresh failed", "error", result.StatsErr)
	}

	log.Info("exchange complete",
		"conversation_id", convID,
		"model", model,
		"latency_ms", res.LatencyMs)
	return result, nil
}
