package capture

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/voxchat/internal/audio"
)

type fakeStream struct {
	format audio.Format
	chunks chan []byte
	closed atomic.Int32
	once   sync.Once

	// closing and release, when set, hold Close until release is closed.
	closing chan struct{}
	release chan struct{}
}

func (s *fakeStream) Format() audio.Format  { return s.format }
func (s *fakeStream) Chunks() <-chan []byte { return s.chunks }
func (s *fakeStream) Close() error {
	if s.closing != nil {
		close(s.closing)
		<-s.release
	}
	s.closed.Add(1)
	s.once.Do(func() { close(s.chunks) })
	return nil
}

type fakeSource struct {
	mu       sync.Mutex
	err      error
	acquired int
	open     int
	maxOpen  int
	streams  []*fakeStream
	// slowRelease makes the next stream's Close block until released.
	slowRelease bool
}

func (s *fakeSource) Acquire(context.Context) (Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.acquired++
	s.open++
	s.maxOpen = max(s.maxOpen, s.open)
	st := &fakeStream{format: audio.L16Mono16K, chunks: make(chan []byte, 16)}
	if s.slowRelease {
		st.closing = make(chan struct{})
		st.release = make(chan struct{})
		s.slowRelease = false
	}
	s.streams = append(s.streams, st)
	return &trackedStream{fakeStream: st, src: s}, nil
}

// trackedStream counts open device handles on its source.
type trackedStream struct {
	*fakeStream
	src *fakeSource
}

func (t *trackedStream) Close() error {
	err := t.fakeStream.Close()
	t.src.mu.Lock()
	t.src.open--
	t.src.mu.Unlock()
	return err
}

func (s *fakeSource) last() *fakeStream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streams[len(s.streams)-1]
}

func TestRecorderBuffersChunksInOrder(t *testing.T) {
	src := &fakeSource{}
	r := NewRecorder(src, nil)

	require.NoError(t, r.Start(context.Background()))
	assert.True(t, r.IsRecording())

	st := src.last()
	st.chunks <- []byte{1, 0, 2, 0}
	st.chunks <- []byte{3, 0}
	st.chunks <- []byte{4, 0, 5, 0}

	clip, err := r.Stop()
	require.NoError(t, err)
	require.NotNil(t, clip)
	assert.False(t, r.IsRecording())
	assert.Equal(t, audio.MIMETypeWAV, clip.MIMEType)

	f, pcm, err := audio.ParseWAV(clip.Data)
	require.NoError(t, err)
	assert.Equal(t, audio.L16Mono16K, f)
	assert.Equal(t, []byte{1, 0, 2, 0, 3, 0, 4, 0, 5, 0}, pcm)
	assert.Equal(t, int32(1), st.closed.Load(), "device released exactly once")
}

func TestRecorderStopWhenIdle(t *testing.T) {
	r := NewRecorder(&fakeSource{}, nil)
	clip, err := r.Stop()
	assert.NoError(t, err)
	assert.Nil(t, clip)
}

func TestRecorderRejectsOverlappingStart(t *testing.T) {
	src := &fakeSource{}
	r := NewRecorder(src, nil)

	require.NoError(t, r.Start(context.Background()))
	err := r.Start(context.Background())
	require.ErrorIs(t, err, ErrAlreadyRecording)
	assert.Equal(t, 1, src.acquired, "no second device handle")

	_, err = r.Stop()
	require.NoError(t, err)
	assert.Equal(t, int32(1), src.last().closed.Load())

	// A fresh start after stop acquires again.
	require.NoError(t, r.Start(context.Background()))
	assert.Equal(t, 2, src.acquired)
	clip, err := r.Stop()
	require.NoError(t, err)
	assert.Zero(t, clip.Duration, "buffer does not carry over between recordings")
}

func TestRecorderAcquireFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"permission", ErrPermissionDenied},
		{"unavailable", ErrDeviceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRecorder(&fakeSource{err: tt.err}, nil)
			err := r.Start(context.Background())
			require.ErrorIs(t, err, tt.err)
			assert.False(t, r.IsRecording())

			clip, err := r.Stop()
			assert.NoError(t, err)
			assert.Nil(t, clip)
		})
	}
}

func TestRecorderDropsPartialFrame(t *testing.T) {
	src := &fakeSource{}
	r := NewRecorder(src, nil)
	require.NoError(t, r.Start(context.Background()))
	src.last().chunks <- []byte{1, 0, 2}

	clip, err := r.Stop()
	require.NoError(t, err)
	_, pcm, err := audio.ParseWAV(clip.Data)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 0}, pcm)
}

func TestRecorderElapsed(t *testing.T) {
	src := &fakeSource{}
	r := NewRecorder(src, nil)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := base
	r.now = func() time.Time { return now }

	assert.Zero(t, r.Elapsed())
	require.NoError(t, r.Start(context.Background()))
	now = base.Add(1500 * time.Millisecond)
	assert.Equal(t, 1500*time.Millisecond, r.Elapsed())

	_, err := r.Stop()
	require.NoError(t, err)
	assert.Zero(t, r.Elapsed())
}

func TestRecorderDuration(t *testing.T) {
	src := &fakeSource{}
	r := NewRecorder(src, nil)
	require.NoError(t, r.Start(context.Background()))
	src.last().chunks <- make([]byte, audio.L16Mono16K.BytesFor(250*time.Millisecond))

	clip, err := r.Stop()
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, clip.Duration)
}

func TestRecorderStartWaitsForRelease(t *testing.T) {
	src := &fakeSource{slowRelease: true}
	r := NewRecorder(src, nil)

	require.NoError(t, r.Start(context.Background()))
	first := src.last()
	first.chunks <- []byte{1, 0}

	type result struct {
		clip *audio.Clip
		err  error
	}
	stopped := make(chan result, 1)
	go func() {
		clip, err := r.Stop()
		stopped <- result{clip, err}
	}()
	<-first.closing

	// The first device is still being released.
	require.ErrorIs(t, r.Start(context.Background()), ErrAlreadyRecording)
	assert.Equal(t, 1, src.acquired)
	clip, err := r.Stop()
	assert.NoError(t, err)
	assert.Nil(t, clip, "a concurrent stop does not steal the recording")

	close(first.release)
	res := <-stopped
	require.NoError(t, res.err)
	_, pcm, err := audio.ParseWAV(res.clip.Data)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 0}, pcm)

	require.NoError(t, r.Start(context.Background()))
	src.last().chunks <- []byte{9, 0}
	clip, err = r.Stop()
	require.NoError(t, err)
	_, pcm, err = audio.ParseWAV(clip.Data)
	require.NoError(t, err)
	assert.Equal(t, []byte{9, 0}, pcm)

	src.mu.Lock()
	defer src.mu.Unlock()
	assert.Equal(t, 1, src.maxOpen, "never two devices open at once")
	assert.Zero(t, src.open)
}
