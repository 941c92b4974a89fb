package audio

import "time"

// Clip is a finished recording ready to upload.
type Clip struct {
	Data     []byte
	MIMEType string
	Duration time.Duration
}

// NewWAVClip encodes pcm as a WAV clip.
func NewWAVClip(pcm []byte, f Format) *Clip {
	return &Clip{
		Data:     EncodeWAV(pcm, f),
		MIMEType: MIMETypeWAV,
		Duration: f.Duration(int64(len(pcm))),
	}
}
