// Package storage holds audio blobs: uploaded recordings and the placeholder
// audio produced by the speech backends. Blobs are addressed by
// forward-slash keys and served back through the server's /audio/ route.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

// ErrInvalidKey is returned for keys that are empty, absolute or escape the store root.
var ErrInvalidKey = errors.New("storage: invalid key")

// Object is an open blob.
type Object struct {
	Body        io.ReadCloser
	ContentType string
	Size        int64
}

// BlobStore is a minimal interface for key-addressed blob storage.
//
// Keys are forward-slash separated and relative to the store root.
// Implementations must be safe for concurrent use.
type BlobStore interface {
	// Put stores data under key, replacing any existing blob.
	Put(ctx context.Context, key string, data []byte, contentType string) error

	// Open returns the blob for reading. The caller must close Body.
	// If the blob does not exist, an error wrapping os.ErrNotExist is returned.
	Open(ctx context.Context, key string) (*Object, error)

	// Delete removes the blob. Deleting a missing blob returns nil.
	Delete(ctx context.Context, key string) error

	// Exists reports whether a blob is stored under key.
	Exists(ctx context.Context, key string) (bool, error)
}

// CleanKey validates key and returns its canonical form.
func CleanKey(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return cleaned, nil
}
