package models

import "errors"

// Sentinel errors shared by the persistence implementations and their callers.
// Use errors.Is() to check for these errors.
var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrForbidden indicates the record exists but belongs to another owner.
	ErrForbidden = errors.New("forbidden")

	// ErrUnsupportedModel indicates a model name outside the fixed set.
	ErrUnsupportedModel = errors.New("unsupported model")
)
