package record

import (
	"fmt"
	"time"
)

// Clip is the immutable result of one recording session: the finished audio
// payload plus the metadata the upload and validation paths need. A Clip is
// produced exactly once per session.
type Clip struct {
	// Bytes is the complete encoded audio.
	Bytes []byte

	// MIMEType identifies the container/codec (e.g. "audio/wav").
	MIMEType string

	// Duration is the captured audio length, derived from the sample count.
	Duration time.Duration
}

// Size returns the payload size in bytes.
func (c Clip) Size() int { return len(c.Bytes) }

// MinClip holds the validation thresholds a clip must meet before upload.
// The duration bound is inclusive: a clip of exactly MinDuration passes.
type MinClip struct {
	Bytes    int
	Duration time.Duration
}

// DefaultMinClip returns the default validation thresholds.
func DefaultMinClip() MinClip {
	return MinClip{Bytes: 2048, Duration: 700 * time.Millisecond}
}

// Validate reports whether the clip is healthy enough to upload. Undersized
// clips come from accidental taps or encoder hiccups; they are rejected here
// so they never reach the transcription service.
func (c Clip) Validate(min MinClip) error {
	if c.Size() < min.Bytes {
		return fmt.Errorf("%w: %d bytes < %d", ErrClipTooShort, c.Size(), min.Bytes)
	}
	if c.Duration < min.Duration {
		return fmt.Errorf("%w: %v < %v", ErrClipTooShort, c.Duration, min.Duration)
	}
	return nil
}
