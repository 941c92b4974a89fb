// Package portaudio captures microphone input through PortAudio.
package portaudio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/raphaelgruber/voxchat/internal/audio"
	"github.com/raphaelgruber/voxchat/internal/capture"
)

const framesPerBuffer = 1024

// Source opens the default input device at 16 kHz mono.
type Source struct {
	logger *slog.Logger
}

// New initializes PortAudio. Call Terminate when done.
func New(logger *slog.Logger) (*Source, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: %v", capture.ErrDeviceUnavailable, err)
	}
	return &Source{logger: logger}, nil
}

// Terminate releases PortAudio.
func (s *Source) Terminate() error {
	return portaudio.Terminate()
}

// Acquire opens and starts the default input stream.
func (s *Source) Acquire(ctx context.Context) (capture.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := portaudio.DefaultInputDevice(); err != nil {
		return nil, fmt.Errorf("%w: %v", capture.ErrDeviceUnavailable, err)
	}

	format := audio.L16Mono16K
	st := &stream{
		format: format,
		buf:    make([]float32, framesPerBuffer),
		chunks: make(chan []byte, 64),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
		logger: s.logger,
	}

	pa, err := portaudio.OpenDefaultStream(format.Channels, 0, float64(format.SampleRate), framesPerBuffer, st.buf)
	if err != nil {
		return nil, mapError(err)
	}
	if err := pa.Start(); err != nil {
		pa.Close()
		return nil, mapError(err)
	}
	st.pa = pa

	go st.readLoop()
	return st, nil
}

func mapError(err error) error {
	var paErr portaudio.Error
	if errors.As(err, &paErr) && (paErr == portaudio.DeviceUnavailable || paErr == portaudio.InvalidDevice) {
		return fmt.Errorf("%w: %v", capture.ErrDeviceUnavailable, err)
	}
	return fmt.Errorf("open input stream: %w", err)
}

type stream struct {
	format audio.Format
	pa     *portaudio.Stream
	buf    []float32
	chunks chan []byte
	quit   chan struct{}
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger
}

func (s *stream) Format() audio.Format  { return s.format }
func (s *stream) Chunks() <-chan []byte { return s.chunks }

// readLoop polls so that Close never waits on a blocking Read.
func (s *stream) readLoop() {
	defer close(s.done)
	defer close(s.chunks)
	for {
		select {
		case <-s.quit:
			return
		default:
		}

		available, err := s.pa.AvailableToRead()
		if err != nil || available < len(s.buf) {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		if err := s.pa.Read(); err != nil {
			s.logger.Debug("portaudio read", "error", err)
			continue
		}

		select {
		case s.chunks <- audio.Float32ToL16(s.buf):
		case <-s.quit:
			return
		}
	}
}

// Close stops the read loop, then stops and closes the PortAudio stream.
func (s *stream) Close() error {
	var err error
	s.once.Do(func() {
		close(s.quit)
		<-s.done
		err = errors.Join(s.pa.Stop(), s.pa.Close())
	})
	return err
}
