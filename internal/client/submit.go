package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"github.com/raphaelgruber/voxchat/internal/audio"
	"github.com/raphaelgruber/voxchat/internal/models"
	"github.com/raphaelgruber/voxchat/internal/speech"
)

// GatewayPath is the inference gateway function route.
const GatewayPath = speech.GatewayPath

// ErrProcessing matches every *ProcessingError via errors.Is.
var ErrProcessing = errors.New("processing error")

// ProcessingError reports a failed gateway call. The caller must not assume
// any partial result.
type ProcessingError struct {
	Message string
	Err     error
}

func (e *ProcessingError) Error() string {
	return "processing error: " + e.Message
}

// Is reports ErrProcessing as a match.
func (e *ProcessingError) Is(target error) bool {
	return target == ErrProcessing
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

func processingError(err error, format string, args ...any) *ProcessingError {
	return &ProcessingError{Message: fmt.Sprintf(format, args...), Err: err}
}

// SubmitResult is the outcome of one gateway round-trip.
type SubmitResult struct {
	Transcript string
	Reply      string
	AudioURL   string
	Model      models.ModelName
	Language   string
	// LatencyMs is client-measured wall-clock time from dispatch to receipt.
	LatencyMs float64
	// BackendLatencyMs is the processing time reported by the backend.
	BackendLatencyMs float64
}

// Submit sends one recording to the gateway. Unknown models fail with
// models.ErrUnsupportedModel before any network call; every other failure is
// a *ProcessingError. There is no retry.
func (c *Client) Submit(ctx context.Context, clip *audio.Clip, model, language string) (*SubmitResult, error) {
	name, err := models.ParseModelName(model)
	if err != nil {
		return nil, err
	}
	if clip == nil || len(clip.Data) == 0 {
		return nil, processingError(nil, "empty recording")
	}

	body, contentType, err := encodeSubmit(clip, name, language)
	if err != nil {
		return nil, processingError(err, "encode request: %v", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.submitTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+GatewayPath, body)
	if err != nil {
		return nil, processingError(err, "create request: %v", err)
	}
	req.Header.Set("Content-Type", contentType)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, processingError(err, "gateway timed out after %s", c.submitTimeout)
		}
		return nil, processingError(err, "gateway unreachable: %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	latency := time.Since(start)
	if err != nil {
		return nil, processingError(err, "read response: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		var cause error
		if resp.StatusCode == http.StatusUnauthorized {
			cause = ErrUnauthorized
		}
		var eb speech.ErrorResponse
		if json.Unmarshal(data, &eb) == nil && eb.Error != "" {
			return nil, processingError(cause, "%s", eb.Error)
		}
		return nil, processingError(cause, "gateway returned %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	var out speech.Response
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, processingError(err, "decode response: %v", err)
	}
	if !out.Success {
		return nil, processingError(nil, "gateway reported failure")
	}
	if out.Transcript == "" {
		return nil, processingError(nil, "gateway returned an empty transcript")
	}

	return &SubmitResult{
		Transcript:       out.Transcript,
		Reply:            out.Reply,
		AudioURL:         out.AudioURL,
		Model:            name,
		Language:         out.Language,
		LatencyMs:        float64(latency) / float64(time.Millisecond),
		BackendLatencyMs: out.Latency,
	}, nil
}

func encodeSubmit(clip *audio.Clip, model models.ModelName, language string) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	mimeType := clip.MIMEType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename="recording%s"`, speech.FieldAudio, extFor(mimeType)))
	h.Set("Content-Type", mimeType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(clip.Data); err != nil {
		return nil, "", err
	}
	if err := w.WriteField(speech.FieldModel, string(model)); err != nil {
		return nil, "", err
	}
	if err := w.WriteField(speech.FieldLanguage, language); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func extFor(mimeType string) string {
	if mimeType == audio.MIMETypeWAV {
		return ".wav"
	}
	return ""
}
