package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/raphaelgruber/voxchat/internal/audio"
	"github.com/raphaelgruber/voxchat/internal/metrics"
	"github.com/raphaelgruber/voxchat/internal/models"
	"github.com/raphaelgruber/voxchat/internal/storage"
)

// ErrMissingParameter is returned when audio, model or language is absent.
var ErrMissingParameter = errors.New("missing parameter")

// GatewayPath is the route of the inference gateway function.
const GatewayPath = "/functions/process-speech"

// Multipart field names of a gateway request.
const (
	FieldAudio    = "audio"
	FieldModel    = "model"
	FieldLanguage = "language"
)

// Request is one decoded gateway call.
type Request struct {
	Audio     []byte
	AudioType string
	Model     string
	Language  string
}

// Response is the JSON body of a successful gateway call.
type Response struct {
	Transcript string  `json:"transcript"`
	AudioURL   string  `json:"audioUrl"`
	Latency    float64 `json:"latency"`
	Model      string  `json:"model"`
	Language   string  `json:"language"`
	Reply      string  `json:"reply,omitempty"`
	Success    bool    `json:"success"`
}

// ErrorResponse is the JSON body of a failed gateway call.
type ErrorResponse struct {
	Error   string `json:"error"`
	Success bool   `json:"success"`
}

// Gateway validates requests and dispatches them to the registered backend.
type Gateway struct {
	registry *Registry
	store    *storage.AudioStore
	metrics  *metrics.Collector
	logger   *slog.Logger
}

// NewGateway creates a gateway. store may be nil to skip keeping uploads.
func NewGateway(registry *Registry, store *storage.AudioStore, mc *metrics.Collector, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{registry: registry, store: store, metrics: mc, logger: logger}
}

// Process validates req, keeps the upload and runs the selected backend.
// Parameters are checked before any model logic runs: a missing field fails
// with ErrMissingParameter, an unknown model with models.ErrUnsupportedModel.
func (g *Gateway) Process(ctx context.Context, req Request) (resp *Response, err error) {
	done := g.metrics.Track(metrics.OpGateway)
	defer func() { done(err) }()

	if err := validate(req); err != nil {
		return nil, err
	}
	model, err := models.ParseModelName(req.Model)
	if err != nil {
		return nil, err
	}
	backend, err := g.registry.Get(model)
	if err != nil {
		return nil, err
	}

	if g.store != nil {
		key, _, err := g.store.Save(ctx, storage.PrefixUploads, uploadExt(req.AudioType), req.Audio, req.AudioType)
		if err != nil {
			return nil, fmt.Errorf("store upload: %w", err)
		}
		g.logger.Debug("stored upload", "key", key, "bytes", len(req.Audio))
	}

	start := time.Now()
	out, err := backend.Process(ctx, req.Audio, req.Language)
	g.metrics.RecordResult(metrics.OpBackend(string(model)), time.Since(start), err)
	if err != nil {
		g.logger.Error("backend failed", "model", model, "error", err)
		return nil, fmt.Errorf("process speech: %w", err)
	}

	g.logger.Info("processed speech",
		"model", model,
		"language", out.Language,
		"requested_language", req.Language,
		"latency_ms", out.Latency.Milliseconds())

	return &Response{
		Transcript: out.Transcript,
		AudioURL:   out.AudioURL,
		Latency:    float64(out.Latency) / float64(time.Millisecond),
		Model:      string(model),
		Language:   out.Language,
		Reply:      out.Reply,
		Success:    true,
	}, nil
}

func validate(req Request) error {
	var missing []string
	if len(req.Audio) == 0 {
		missing = append(missing, FieldAudio)
	}
	if strings.TrimSpace(req.Model) == "" {
		missing = append(missing, FieldModel)
	}
	if strings.TrimSpace(req.Language) == "" {
		missing = append(missing, FieldLanguage)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingParameter, strings.Join(missing, ", "))
	}
	return nil
}

func uploadExt(contentType string) string {
	switch {
	case strings.HasPrefix(contentType, audio.MIMETypeWAV), strings.HasPrefix(contentType, "audio/x-wav"):
		return ".wav"
	case strings.HasPrefix(contentType, "audio/webm"):
		return ".webm"
	case strings.HasPrefix(contentType, "audio/ogg"):
		return ".ogg"
	default:
		return ".bin"
	}
}
