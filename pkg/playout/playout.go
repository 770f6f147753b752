// Package playout defines the Sink interface for audio output backends.
//
// A sink accepts one encoded audio payload at a time and plays it to
// completion. The Playback handle reports the end of playback exactly once on
// its Done channel, which is what sequencing code keys off — never the network
// fetch that produced the bytes.
package playout

import "context"

// Playback is a handle to one in-flight playback.
type Playback interface {
	// Done returns a channel that receives exactly one value when playback
	// ends: nil for a clean end-of-audio, a non-nil error for a decode or
	// device failure, and context.Canceled when the playback was stopped.
	Done() <-chan error

	// Stop halts playback immediately. Safe to call more than once; Done still
	// fires exactly once.
	Stop()
}

// Sink is the abstraction over an audio output backend.
//
// Implementations must be safe for concurrent use, but callers are expected to
// hold at most one active Playback per sink.
type Sink interface {
	// Play begins playing the encoded audio (e.g. WAV or Opus bytes, as
	// indicated by mimeType) and returns immediately with a Playback handle.
	// Returns an error if playback cannot start at all; failures during
	// playback are reported via the handle.
	Play(ctx context.Context, audio []byte, mimeType string) (Playback, error)
}
