package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// apiError implements smithy.APIError for test assertions.
type apiError struct {
	code string
	msg  string
}

func (e *apiError) Error() string                 { return e.msg }
func (e *apiError) ErrorCode() string             { return e.code }
func (e *apiError) ErrorMessage() string          { return e.msg }
func (e *apiError) ErrorFault() smithy.ErrorFault { return smithy.FaultClient }

var errNoSuchKey = &apiError{code: "NoSuchKey", msg: "no such key"}
var errNotFound = &apiError{code: "NotFound", msg: "not found"}

type mockObject struct {
	data        []byte
	contentType string
}

// mockS3 is a thread-safe in-memory S3 backend.
type mockS3 struct {
	mu      sync.Mutex
	objects map[string]mockObject

	getErr    error
	putErr    error
	deleteErr error
	headErr   error
}

func newMockS3() *mockS3 {
	return &mockS3{objects: make(map[string]mockObject)}
}

func (m *mockS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[*in.Key]
	if !ok {
		return nil, errNoSuchKey
	}
	out := &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(obj.data)),
		ContentLength: aws.Int64(int64(len(obj.data))),
	}
	if obj.contentType != "" {
		out.ContentType = aws.String(obj.contentType)
	}
	return out, nil
}

func (m *mockS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[*in.Key] = mockObject{data: data, contentType: aws.ToString(in.ContentType)}
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if m.deleteErr != nil {
		return nil, m.deleteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (m *mockS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if m.headErr != nil {
		return nil, m.headErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[*in.Key]; !ok {
		return nil, errNotFound
	}
	return &s3.HeadObjectOutput{}, nil
}

func TestS3PutAndOpen(t *testing.T) {
	mock := newMockS3()
	store := NewS3(mock, "bucket", "voxchat")
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "synthesized/x.wav", []byte("wav"), "audio/wav"))

	mock.mu.Lock()
	stored, ok := mock.objects["voxchat/synthesized/x.wav"]
	mock.mu.Unlock()
	require.True(t, ok, "object stored under prefixed key")
	assert.Equal(t, "audio/wav", stored.contentType)

	obj, err := store.Open(ctx, "synthesized/x.wav")
	require.NoError(t, err)
	assert.Equal(t, "audio/wav", obj.ContentType)
	assert.Equal(t, int64(3), obj.Size)
	assert.Equal(t, "wav", readAll(t, obj))
}

func TestS3OpenFallsBackToExtensionContentType(t *testing.T) {
	mock := newMockS3()
	store := NewS3(mock, "bucket", "")
	mock.objects["a.wav"] = mockObject{data: []byte("x")}

	obj, err := store.Open(context.Background(), "a.wav")
	require.NoError(t, err)
	assert.Equal(t, "audio/wav", obj.ContentType)
	obj.Body.Close()
}

func TestS3OpenNotExist(t *testing.T) {
	store := NewS3(newMockS3(), "bucket", "")
	_, err := store.Open(context.Background(), "missing")
	assert.True(t, errors.Is(err, os.ErrNotExist), "got %v", err)
}

func TestS3OpenOtherError(t *testing.T) {
	mock := newMockS3()
	mock.getErr = errors.New("network timeout")
	store := NewS3(mock, "bucket", "pfx")

	_, err := store.Open(context.Background(), "x")
	require.Error(t, err)
	assert.False(t, errors.Is(err, os.ErrNotExist))
}

func TestS3PutError(t *testing.T) {
	mock := newMockS3()
	mock.putErr = errors.New("upload failed")
	store := NewS3(mock, "bucket", "")

	err := store.Put(context.Background(), "obj", []byte("data"), "")
	assert.ErrorIs(t, err, mock.putErr)
}

func TestS3ExistsAndDelete(t *testing.T) {
	mock := newMockS3()
	store := NewS3(mock, "bucket", "")
	ctx := context.Background()

	ok, err := store.Exists(ctx, "tmp")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Put(ctx, "tmp", []byte("x"), ""))
	ok, err = store.Exists(ctx, "tmp")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, store.Delete(ctx, "tmp"))
	require.NoError(t, store.Delete(ctx, "tmp"), "delete is idempotent")

	ok, err = store.Exists(ctx, "tmp")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestS3ExistsOtherError(t *testing.T) {
	mock := newMockS3()
	mock.headErr = errors.New("network failure")
	store := NewS3(mock, "bucket", "")

	_, err := store.Exists(context.Background(), "x")
	assert.EqualError(t, err, "network failure")
}

func TestS3RejectsInvalidKey(t *testing.T) {
	store := NewS3(newMockS3(), "bucket", "p")
	err := store.Put(context.Background(), "../escape", []byte("x"), "")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestIsS3NotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"NoSuchKey", errNoSuchKey, true},
		{"NotFound", errNotFound, true},
		{"other api error", &apiError{code: "AccessDenied", msg: "denied"}, false},
		{"plain error", errors.New("timeout"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isS3NotFound(tt.err))
		})
	}
}
