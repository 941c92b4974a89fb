package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/raphaelgruber/voxchat/internal/audio"
)

// Recorder buffers one recording at a time from a Source.
// The device is acquired by Start and released by Stop, exactly once each.
// A new recording cannot start until the previous device has been released.
type Recorder struct {
	source Source
	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	active *recording
}

// recording is one acquire/release cycle. buf is written only by the
// collector goroutine and read by Stop after done is closed.
type recording struct {
	stream   Stream
	started  time.Time
	buf      []byte
	stop     chan struct{}
	done     chan struct{}
	stopping bool
}

// NewRecorder creates an idle recorder.
func NewRecorder(source Source, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{source: source, logger: logger, now: time.Now}
}

// Start acquires the device and begins buffering. It fails with
// ErrAlreadyRecording while a recording is active or still being stopped,
// leaving that recording untouched.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active != nil {
		return ErrAlreadyRecording
	}

	stream, err := r.source.Acquire(ctx)
	if err != nil {
		r.logger.Error("acquire input device failed", "error", err)
		return fmt.Errorf("acquire device: %w", err)
	}

	rec := &recording{
		stream:  stream,
		started: r.now(),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	r.active = rec
	go rec.collect()

	r.logger.Debug("recording started", "format", stream.Format())
	return nil
}

func (rec *recording) collect() {
	defer close(rec.done)
	chunks := rec.stream.Chunks()
	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				return
			}
			rec.buf = append(rec.buf, chunk...)
		case <-rec.stop:
			// Keep what the device had already delivered.
			for {
				select {
				case chunk, ok := <-chunks:
					if !ok {
						return
					}
					rec.buf = append(rec.buf, chunk...)
				default:
					return
				}
			}
		}
	}
}

// Stop releases the device and returns the recording as a WAV clip.
// When no recording is active, or another Stop is already releasing it,
// it returns nil, nil.
func (r *Recorder) Stop() (*audio.Clip, error) {
	r.mu.Lock()
	rec := r.active
	if rec == nil || rec.stopping {
		r.mu.Unlock()
		return nil, nil
	}
	rec.stopping = true
	r.mu.Unlock()

	closeErr := rec.stream.Close()
	close(rec.stop)
	<-rec.done

	r.mu.Lock()
	r.active = nil
	r.mu.Unlock()

	pcm := rec.buf
	format := rec.stream.Format()
	// Drop a trailing partial frame.
	if n := format.BytesPerFrame(); n > 0 {
		pcm = pcm[:len(pcm)-len(pcm)%n]
	}
	clip := audio.NewWAVClip(pcm, format)

	if closeErr != nil {
		r.logger.Warn("release input device", "error", closeErr)
	}
	r.logger.Debug("recording stopped", "bytes", len(pcm), "duration", clip.Duration)
	return clip, nil
}

// IsRecording reports whether the device is held, including while a Stop
// is releasing it.
func (r *Recorder) IsRecording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active != nil
}

// Elapsed returns how long the active recording has been running, or 0.
func (r *Recorder) Elapsed() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil || r.active.stopping {
		return 0
	}
	return r.now().Sub(r.active.started)
}
