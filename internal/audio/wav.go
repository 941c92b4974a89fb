package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// MIMETypeWAV is the content type of EncodeWAV output.
const MIMETypeWAV = "audio/wav"

const wavHeaderSize = 44

// ErrInvalidWAV is returned by ParseWAV for data that is not a PCM WAV file.
var ErrInvalidWAV = errors.New("audio: invalid wav")

// EncodeWAV wraps raw PCM in a canonical 44-byte RIFF/WAVE header.
func EncodeWAV(pcm []byte, f Format) []byte {
	var buf bytes.Buffer
	buf.Grow(wavHeaderSize + len(pcm))

	le := binary.LittleEndian
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, le, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	_ = binary.Write(&buf, le, uint32(16))
	_ = binary.Write(&buf, le, uint16(1)) // PCM
	_ = binary.Write(&buf, le, uint16(f.Channels))
	_ = binary.Write(&buf, le, uint32(f.SampleRate))
	_ = binary.Write(&buf, le, uint32(f.BytesRate()))
	_ = binary.Write(&buf, le, uint16(f.BytesPerFrame()))
	_ = binary.Write(&buf, le, uint16(f.BitDepth))

	buf.WriteString("data")
	_ = binary.Write(&buf, le, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}

// ParseWAV reads the format of a canonical PCM WAV file and returns its sample data.
// Only the layout written by EncodeWAV (fmt chunk immediately followed by data) is accepted.
func ParseWAV(data []byte) (Format, []byte, error) {
	if len(data) < wavHeaderSize || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return Format{}, nil, ErrInvalidWAV
	}
	if string(data[12:16]) != "fmt " || string(data[36:40]) != "data" {
		return Format{}, nil, fmt.Errorf("%w: unsupported chunk layout", ErrInvalidWAV)
	}
	le := binary.LittleEndian
	if le.Uint16(data[20:22]) != 1 {
		return Format{}, nil, fmt.Errorf("%w: not PCM", ErrInvalidWAV)
	}
	f := Format{
		Channels:   int(le.Uint16(data[22:24])),
		SampleRate: int(le.Uint32(data[24:28])),
		BitDepth:   int(le.Uint16(data[34:36])),
	}
	size := int(le.Uint32(data[40:44]))
	if size > len(data)-wavHeaderSize {
		return Format{}, nil, fmt.Errorf("%w: truncated data chunk", ErrInvalidWAV)
	}
	return f, data[wavHeaderSize : wavHeaderSize+size], nil
}
