package speech

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/raphaelgruber/voxchat/internal/audio"
	"github.com/raphaelgruber/voxchat/internal/models"
	"github.com/raphaelgruber/voxchat/internal/storage"
)

// Synthesized audio format for placeholder tones.
var stubFormat = audio.L16Mono24K

// StubConfig configures the stub backends.
type StubConfig struct {
	MinDelay time.Duration
	MaxDelay time.Duration
}

// Stub is a Backend that fabricates output from a Voice.
type Stub struct {
	name  models.ModelName
	voice Voice
	store *storage.AudioStore
	cfg   StubConfig

	// randN returns a value in [0, n). Replaced in tests.
	randN func(n int64) int64
}

// NewStub creates a stub backend for name using the voice from catalog.
func NewStub(name models.ModelName, catalog *Catalog, store *storage.AudioStore, cfg StubConfig) (*Stub, error) {
	voice, ok := catalog.Voice(name)
	if !ok {
		return nil, fmt.Errorf("stub %s: %w: not in catalog", name, models.ErrUnsupportedModel)
	}
	if cfg.MaxDelay < cfg.MinDelay {
		cfg.MaxDelay = cfg.MinDelay
	}
	return &Stub{name: name, voice: voice, store: store, cfg: cfg, randN: rand.Int64N}, nil
}

// NewStubRegistry registers a stub for every model in catalog.
func NewStubRegistry(catalog *Catalog, store *storage.AudioStore, cfg StubConfig) (*Registry, error) {
	r := NewRegistry()
	for _, name := range models.ModelNames() {
		if _, ok := catalog.Voice(name); !ok {
			continue
		}
		s, err := NewStub(name, catalog, store, cfg)
		if err != nil {
			return nil, err
		}
		r.Register(s)
	}
	return r, nil
}

// Name returns the model this stub answers for.
func (s *Stub) Name() models.ModelName {
	return s.name
}

// Process waits a randomized delay, picks canned lines for language and
// stores a placeholder tone. The audio payload is not inspected.
func (s *Stub) Process(ctx context.Context, _ []byte, language string) (*Output, error) {
	start := time.Now()

	if err := sleep(ctx, s.delay()); err != nil {
		return nil, fmt.Errorf("%s: %w", s.name, err)
	}

	lines, lang := s.voice.Lookup(language)
	i := s.pick(len(lines.Transcripts))
	transcript := lines.Transcripts[i]
	reply := lines.Replies[i%len(lines.Replies)]

	wav := audio.EncodeWAV(audio.Tone(stubFormat, s.voice.ToneHz, s.voice.Duration(), 0.3), stubFormat)
	_, url, err := s.store.Save(ctx, storage.PrefixSynthesized, ".wav", wav, audio.MIMETypeWAV)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.name, err)
	}

	return &Output{
		Transcript: transcript,
		Reply:      reply,
		AudioURL:   url,
		Language:   lang,
		Latency:    time.Since(start),
	}, nil
}

func (s *Stub) delay() time.Duration {
	span := s.cfg.MaxDelay - s.cfg.MinDelay
	if span <= 0 {
		return s.cfg.MinDelay
	}
	return s.cfg.MinDelay + time.Duration(s.randN(int64(span)+1))
}

func (s *Stub) pick(n int) int {
	if n <= 1 {
		return 0
	}
	return int(s.randN(int64(n)))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Compile-time interface check.
var _ Backend = (*Stub)(nil)
