package storage

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/voxchat/internal/metrics"
)

// Key prefixes for the two kinds of audio blobs.
const (
	PrefixUploads     = "uploads"
	PrefixSynthesized = "synthesized"
)

// AudioRoute is the server path under which blobs are served.
const AudioRoute = "/audio/"

// AudioStore names audio blobs and turns their keys into public URLs.
type AudioStore struct {
	blobs   BlobStore
	baseURL string
	metrics *metrics.Collector
	now     func() time.Time
}

// NewAudioStore wraps blobs. baseURL is the externally reachable server URL.
func NewAudioStore(blobs BlobStore, baseURL string, mc *metrics.Collector) *AudioStore {
	return &AudioStore{
		blobs:   blobs,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		metrics: mc,
		now:     time.Now,
	}
}

// Blobs returns the underlying blob store.
func (a *AudioStore) Blobs() BlobStore {
	return a.blobs
}

// Save stores data under prefix/YYYY/MM/DD/<uuid><ext> and returns the key and its URL.
func (a *AudioStore) Save(ctx context.Context, prefix, ext string, data []byte, contentType string) (key, audioURL string, err error) {
	key = path.Join(prefix, a.now().UTC().Format("2006/01/02"), uuid.NewString()+ext)

	done := a.metrics.Track(metrics.OpStorageWrite)
	err = a.blobs.Put(ctx, key, data, contentType)
	done(err)
	if err != nil {
		return "", "", fmt.Errorf("save audio: %w", err)
	}
	return key, a.URL(key), nil
}

// URL returns the public URL for key.
func (a *AudioStore) URL(key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return a.baseURL + AudioRoute + strings.Join(segments, "/")
}
