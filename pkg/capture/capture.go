// Package capture defines the Source interface for microphone capture backends.
//
// A capture source wraps a platform audio input (an ffmpeg subprocess, a test
// script, or any other PCM producer) and surfaces it as a stream of fixed-size
// mono sample buffers. Each Stream is exclusively owned by the component that
// opened it; no other component may read from it while it is live.
//
// Implementations must be safe for concurrent use at the Source level: multiple
// goroutines may call Probe simultaneously. A Stream belongs to a single reader.
package capture

import (
	"context"
	"time"
)

// Frame is one buffer of mono PCM samples delivered by a Stream.
type Frame struct {
	// Samples holds normalised mono samples in the range [-1, 1].
	Samples []float32

	// Timestamp is the stream-relative time at which the first sample of this
	// frame was captured, derived from the sample count. Components that need
	// deterministic timing (VAD hangover windows, clip duration) must use this
	// clock rather than wall time.
	Timestamp time.Duration
}

// StreamConfig describes the capture format requested from a Source.
type StreamConfig struct {
	// SampleRate is the capture sample rate in Hz. Common values: 16000, 48000.
	SampleRate int

	// FrameSize is the number of samples per delivered Frame (e.g. 2048).
	FrameSize int

	// Device identifies the input device. Empty selects the platform default.
	Device string
}

// Stream is an open microphone capture session.
//
// The Frames channel is closed when the stream ends, either because Close was
// called or because the underlying device failed. After the channel closes,
// Err reports the failure cause, if any.
type Stream interface {
	// Frames returns the channel on which capture buffers are delivered.
	Frames() <-chan Frame

	// Err reports the terminal error of the stream, or nil for a clean close.
	// Only valid after the Frames channel has been closed.
	Err() error

	// Close stops capture and releases the device. Closing more than once is
	// safe and returns nil. Close never blocks on the Frames channel; pending
	// frames are dropped.
	Close() error
}

// Source is the abstraction over a microphone capture backend.
type Source interface {
	// Probe verifies that the capture device is present and accessible without
	// opening a long-lived stream. Failures are reported as typed errors
	// (*Error) so callers can surface kind-specific remediation hints.
	Probe(ctx context.Context) error

	// Start opens a capture stream with the given format. The returned Stream
	// is exclusively owned by the caller, which must Close it on every exit
	// path. Returns a typed *Error when the device cannot be opened.
	Start(ctx context.Context, cfg StreamConfig) (Stream, error)
}
