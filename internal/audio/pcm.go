// Package audio describes PCM formats and wraps raw samples in WAV containers.
//
// Capture produces raw 16-bit little-endian PCM; the stub speech backends
// synthesize placeholder tones in the same representation. Both are shipped
// as WAV because every browser and player accepts it without a codec.
package audio

import (
	"encoding/binary"
	"math"
	"time"
)

// Format describes interleaved little-endian PCM.
type Format struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// Common formats.
var (
	// L16Mono16K is audio/L16; rate=16000; channels=1.
	L16Mono16K = Format{SampleRate: 16000, Channels: 1, BitDepth: 16}
	// L16Mono24K is audio/L16; rate=24000; channels=1.
	L16Mono24K = Format{SampleRate: 24000, Channels: 1, BitDepth: 16}
)

// BytesPerFrame returns the size of one sample across all channels.
func (f Format) BytesPerFrame() int {
	return f.Channels * f.BitDepth / 8
}

// BytesRate returns the number of bytes per second.
func (f Format) BytesRate() int {
	return f.SampleRate * f.BytesPerFrame()
}

// Duration returns the playback duration of n bytes.
func (f Format) Duration(n int64) time.Duration {
	rate := f.BytesRate()
	if rate == 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(rate)
}

// BytesFor returns the number of bytes needed for d, rounded down to whole frames.
func (f Format) BytesFor(d time.Duration) int {
	frames := int(d * time.Duration(f.SampleRate) / time.Second)
	return frames * f.BytesPerFrame()
}

// Float32ToL16 converts normalized float samples in [-1, 1] to 16-bit PCM.
// Out-of-range samples are clipped.
func Float32ToL16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := float64(s)
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(math.Round(v*math.MaxInt16))))
	}
	return out
}

// Tone generates a mono sine tone with a short linear fade at both ends.
func Tone(f Format, freq float64, d time.Duration, amplitude float64) []byte {
	n := f.BytesFor(d) / f.BytesPerFrame()
	fade := f.SampleRate / 100 // 10ms
	samples := make([]float32, n)
	for i := range samples {
		gain := amplitude
		if i < fade {
			gain *= float64(i) / float64(fade)
		} else if n-i < fade {
			gain *= float64(n-i) / float64(fade)
		}
		samples[i] = float32(gain * math.Sin(2*math.Pi*freq*float64(i)/float64(f.SampleRate)))
	}
	if f.Channels == 1 {
		return Float32ToL16(samples)
	}
	inter := make([]float32, 0, n*f.Channels)
	for _, s := range samples {
		for c := 0; c < f.Channels; c++ {
			inter = append(inter, s)
		}
	}
	return Float32ToL16(inter)
}
