// Package mock provides test doubles for the capture package interfaces.
//
// Use Source to verify that streams are opened with the expected StreamConfig
// and to script the frames a test recording should observe.
//
// Example:
//
//	src := &mock.Source{Script: mock.Tone(0.05, 1*time.Second, cfg)}
//	stream, _ := src.Start(ctx, cfg)
//	for f := range stream.Frames() { … }
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/voxterview/voxterview/pkg/capture"
)

// StartCall records a single invocation of Source.Start.
type StartCall struct {
	// Cfg is the StreamConfig passed to Start.
	Cfg capture.StreamConfig
}

// Source is a mock implementation of capture.Source. Frames are scripted up
// front; each Start call replays the script on a fresh Stream.
type Source struct {
	mu sync.Mutex

	// Script is the sequence of frames delivered by streams opened from this
	// source. The stream's channel closes after the last frame.
	Script []capture.Frame

	// ProbeErr, if non-nil, is returned by Probe.
	ProbeErr error

	// StartErr, if non-nil, is returned by Start.
	StartErr error

	// StreamErr, if non-nil, is reported by Stream.Err after the script ends.
	StreamErr error

	// Hold, when true, keeps the stream open after the script is exhausted
	// until Close is called. Use this to test manual-stop paths.
	Hold bool

	// ProbeCallCount is the number of times Probe was called.
	ProbeCallCount int

	// StartCalls records every call to Start in order.
	StartCalls []StartCall

	// streams holds every stream handed out, for teardown assertions.
	streams []*Stream
}

// Probe records the call and returns ProbeErr.
func (s *Source) Probe(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ProbeCallCount++
	return s.ProbeErr
}

// Start records the call and returns a Stream that replays Script.
func (s *Source) Start(ctx context.Context, cfg capture.StreamConfig) (capture.Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StartCalls = append(s.StartCalls, StartCall{Cfg: cfg})
	if s.StartErr != nil {
		return nil, s.StartErr
	}
	st := &Stream{
		frames: make(chan capture.Frame),
		done:   make(chan struct{}),
		err:    s.StreamErr,
	}
	s.streams = append(s.streams, st)
	go st.replay(ctx, s.Script, s.Hold)
	return st, nil
}

// Streams returns every stream opened from this source, in order.
func (s *Source) Streams() []*Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Stream, len(s.streams))
	copy(out, s.streams)
	return out
}

// Ensure Source implements capture.Source at compile time.
var _ capture.Source = (*Source)(nil)

// Stream is the mock capture.Stream returned by Source.Start.
type Stream struct {
	frames chan capture.Frame
	done   chan struct{}
	err    error

	closeOnce sync.Once
	mu        sync.Mutex
	closed    bool
}

// replay delivers the scripted frames, then either closes the channel or, when
// hold is set, waits for Close.
func (st *Stream) replay(ctx context.Context, script []capture.Frame, hold bool) {
	defer close(st.frames)
	for _, f := range script {
		select {
		case st.frames <- f:
		case <-st.done:
			return
		case <-ctx.Done():
			return
		}
	}
	if hold {
		select {
		case <-st.done:
		case <-ctx.Done():
		}
	}
}

// Frames returns the scripted frame channel.
func (st *Stream) Frames() <-chan capture.Frame { return st.frames }

// Err returns the configured terminal error.
func (st *Stream) Err() error { return st.err }

// Close records the close and unblocks the replay goroutine.
func (st *Stream) Close() error {
	st.closeOnce.Do(func() {
		st.mu.Lock()
		st.closed = true
		st.mu.Unlock()
		close(st.done)
	})
	return nil
}

// Closed reports whether Close has been called. Used by tests to assert that
// every opened stream was released.
func (st *Stream) Closed() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.closed
}

// Ensure Stream implements capture.Stream at compile time.
var _ capture.Stream = (*Stream)(nil)

// Tone builds a script of frames with constant amplitude rms lasting dur.
// Frame timestamps follow the stream clock implied by cfg. A square-ish tone
// alternating ±rms gives both the requested RMS and a high zero-crossing rate;
// pass a negative zcrEvery to Alternate for voiced-speech-like low ZCR.
func Tone(amplitude float64, dur time.Duration, cfg capture.StreamConfig) []capture.Frame {
	return Alternate(amplitude, dur, cfg, 1)
}

// Voiced builds a script like Tone but with a low zero-crossing rate,
// resembling voiced speech: the sign flips only every flipEvery samples.
func Voiced(amplitude float64, dur time.Duration, cfg capture.StreamConfig) []capture.Frame {
	return Alternate(amplitude, dur, cfg, 64)
}

// Alternate builds constant-amplitude frames whose samples flip sign every
// flipEvery samples. flipEvery 1 yields zcr ≈ 1.0; large values yield low zcr.
func Alternate(amplitude float64, dur time.Duration, cfg capture.StreamConfig, flipEvery int) []capture.Frame {
	if flipEvery < 1 {
		flipEvery = 1
	}
	frameDur := time.Duration(cfg.FrameSize) * time.Second / time.Duration(cfg.SampleRate)
	n := int(dur / frameDur)
	if n == 0 {
		n = 1
	}
	frames := make([]capture.Frame, 0, n)
	for i := 0; i < n; i++ {
		samples := make([]float32, cfg.FrameSize)
		for j := range samples {
			v := float32(amplitude)
			if (j/flipEvery)%2 == 1 {
				v = -v
			}
			samples[j] = v
		}
		frames = append(frames, capture.Frame{
			Samples:   samples,
			Timestamp: time.Duration(i) * frameDur,
		})
	}
	return frames
}

// Concat joins several scripts into one, rewriting timestamps so the combined
// script advances a single monotonic stream clock.
func Concat(cfg capture.StreamConfig, scripts ...[]capture.Frame) []capture.Frame {
	frameDur := time.Duration(cfg.FrameSize) * time.Second / time.Duration(cfg.SampleRate)
	var out []capture.Frame
	for _, s := range scripts {
		for _, f := range s {
			f.Timestamp = time.Duration(len(out)) * frameDur
			out = append(out, f)
		}
	}
	return out
}
