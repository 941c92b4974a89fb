package audio

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"
	"time"
)

func TestFormatDuration(t *testing.T) {
	f := L16Mono16K
	if got := f.BytesRate(); got != 32000 {
		t.Fatalf("BytesRate() = %d, want 32000", got)
	}
	if got := f.Duration(32000); got != time.Second {
		t.Errorf("Duration(32000) = %v, want 1s", got)
	}
	if got := f.BytesFor(250 * time.Millisecond); got != 8000 {
		t.Errorf("BytesFor(250ms) = %d, want 8000", got)
	}
	if got := (Format{}).Duration(100); got != 0 {
		t.Errorf("zero format Duration = %v, want 0", got)
	}
}

func TestFloat32ToL16(t *testing.T) {
	out := Float32ToL16([]float32{0, 1, -1, 2, -2})
	want := []int16{0, math.MaxInt16, -math.MaxInt16, math.MaxInt16, -math.MaxInt16}
	for i, w := range want {
		got := int16(binary.LittleEndian.Uint16(out[i*2:]))
		if got != w {
			t.Errorf("sample %d = %d, want %d", i, got, w)
		}
	}
}

func TestToneLength(t *testing.T) {
	pcm := Tone(L16Mono24K, 440, 500*time.Millisecond, 0.3)
	if got, want := len(pcm), L16Mono24K.BytesFor(500*time.Millisecond); got != want {
		t.Fatalf("Tone length = %d, want %d", got, want)
	}
	if first := int16(binary.LittleEndian.Uint16(pcm[:2])); first != 0 {
		t.Errorf("tone should fade in from silence, first sample = %d", first)
	}
}

func TestWAVRoundTrip(t *testing.T) {
	pcm := Tone(L16Mono16K, 220, 100*time.Millisecond, 0.5)
	wav := EncodeWAV(pcm, L16Mono16K)

	if len(wav) != wavHeaderSize+len(pcm) {
		t.Fatalf("wav size = %d, want %d", len(wav), wavHeaderSize+len(pcm))
	}
	f, data, err := ParseWAV(wav)
	if err != nil {
		t.Fatalf("ParseWAV() error = %v", err)
	}
	if f != L16Mono16K {
		t.Errorf("format = %+v, want %+v", f, L16Mono16K)
	}
	if len(data) != len(pcm) {
		t.Errorf("data length = %d, want %d", len(data), len(pcm))
	}
}

func TestParseWAVInvalid(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"not riff", make([]byte, 64)},
		{"truncated", EncodeWAV(make([]byte, 100), L16Mono16K)[:60]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := ParseWAV(tt.data); !errors.Is(err, ErrInvalidWAV) {
				t.Errorf("ParseWAV() error = %v, want ErrInvalidWAV", err)
			}
		})
	}
}

func TestNewWAVClip(t *testing.T) {
	pcm := make([]byte, L16Mono16K.BytesFor(time.Second))
	clip := NewWAVClip(pcm, L16Mono16K)

	if clip.MIMEType != MIMETypeWAV {
		t.Errorf("MIMEType = %q", clip.MIMEType)
	}
	if clip.Duration != time.Second {
		t.Errorf("Duration = %v, want 1s", clip.Duration)
	}
	if len(clip.Data) != wavHeaderSize+len(pcm) {
		t.Errorf("Data length = %d", len(clip.Data))
	}
}
