// Package capture records one utterance at a time from an audio input device.
package capture

import (
	"context"
	"errors"

	"github.com/raphaelgruber/voxchat/internal/audio"
)

var (
	// ErrPermissionDenied indicates the device exists but access was refused.
	ErrPermissionDenied = errors.New("microphone permission denied")

	// ErrDeviceUnavailable indicates no usable input device.
	ErrDeviceUnavailable = errors.New("audio input device unavailable")

	// ErrAlreadyRecording is returned by Start while a recording is active.
	ErrAlreadyRecording = errors.New("already recording")
)

// Source hands out exclusive access to an input device.
type Source interface {
	// Acquire opens the device. It fails with ErrPermissionDenied or
	// ErrDeviceUnavailable (possibly wrapped).
	Acquire(ctx context.Context) (Stream, error)
}

// Stream is an open input device.
type Stream interface {
	// Format describes the PCM bytes delivered on Chunks.
	Format() audio.Format
	// Chunks delivers PCM in arrival order. It is closed when the stream ends.
	Chunks() <-chan []byte
	// Close stops capture and releases the device.
	Close() error
}
