// Package speech implements the inference gateway: request validation, model
// dispatch and the speech backends themselves.
//
// The backends shipped here are stubs. They wait a randomized delay, return a
// canned transcript and reply for the requested language, and store a
// placeholder tone as the synthesized audio. They perform no recognition or
// synthesis; they exist so the rest of the system can be exercised end to end.
package speech

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/raphaelgruber/voxchat/internal/models"
)

// Output is the result of processing one utterance.
type Output struct {
	Transcript string
	Reply      string
	AudioURL   string
	// Language is the language actually used after fallback.
	Language string
	// Latency is backend processing time only.
	Latency time.Duration
}

// Backend processes one utterance for a single model.
type Backend interface {
	Name() models.ModelName
	Process(ctx context.Context, audio []byte, language string) (*Output, error)
}

// Registry maps model names to backends.
// It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	backends map[models.ModelName]Backend
}

// NewRegistry creates a registry holding backends.
func NewRegistry(backends ...Backend) *Registry {
	r := &Registry{backends: make(map[models.ModelName]Backend)}
	for _, b := range backends {
		r.Register(b)
	}
	return r
}

// Register adds or replaces the backend for b.Name().
func (r *Registry) Register(b Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[b.Name()] = b
}

// Get returns the backend for name.
// Returns an error wrapping models.ErrUnsupportedModel if none is registered.
func (r *Registry) Get(name models.ModelName) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[name]
	if !ok {
		return nil, fmt.Errorf("%w: no backend for %q", models.ErrUnsupportedModel, name)
	}
	return b, nil
}

// Names returns the registered model names, sorted.
func (r *Registry) Names() []models.ModelName {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]models.ModelName, 0, len(r.backends))
	for n := range r.backends {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
