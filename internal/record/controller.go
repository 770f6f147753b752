// Package record owns the microphone recording lifecycle: permission probing,
// encoder selection, chunk accumulation, VAD-driven auto-stop, and assembly of
// the finished Clip.
//
// At most one recording session exists at a time; Start refuses while one is
// active. Every exit path — auto-stop, manual stop, skip, or Dispose —
// releases the capture stream.
package record

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/voxterview/voxterview/internal/meter"
	"github.com/voxterview/voxterview/pkg/capture"
)

const (
	defaultChunkInterval = 250 * time.Millisecond

	// finalDrainWait bounds how long Stop waits for buffered frames still in
	// flight from the capture backend before assembling the clip.
	finalDrainWait = 250 * time.Millisecond
)

// defaultEncodings prefers the widely-decodable container first.
var defaultEncodings = []string{"wav", "opus"}

// Config tunes a Controller. Zero values select defaults.
type Config struct {
	// Stream is the capture format requested from the source.
	Stream capture.StreamConfig

	// Meter holds the VAD thresholds.
	Meter meter.Config

	// ChunkInterval is the boundary at which encoded audio is cut into
	// accumulated chunks. Larger intervals trade latency for fewer, larger
	// fragments.
	ChunkInterval time.Duration

	// Encodings is the ordered encoder preference list. Selection happens at
	// Start; unavailable encodings fall through to the next entry.
	Encodings []string

	// Min holds the clip validation thresholds.
	Min MinClip
}

// Result is delivered to the completion callback exactly once per session.
type Result struct {
	// Clip is the assembled recording. Valid only when Err is nil.
	Clip Clip

	// Reason explains why the session stopped.
	Reason StopReason

	// Err is non-nil when the clip failed validation (ErrClipTooShort) or the
	// capture stream failed mid-session.
	Err error
}

// Option is a functional option for New.
type Option func(*Controller)

// WithLevelFunc registers a callback invoked with every meter update, at the
// capture buffer rate. The callback runs on the session goroutine and must
// return quickly.
func WithLevelFunc(fn func(meter.Update)) Option {
	return func(c *Controller) { c.onLevel = fn }
}

// WithResultFunc registers the completion callback. It fires exactly once per
// session, on every stop path except Dispose.
func WithResultFunc(fn func(Result)) Option {
	return func(c *Controller) { c.onResult = fn }
}

// Controller manages microphone recording sessions.
// All exported methods are safe for concurrent use.
type Controller struct {
	cfg    Config
	source capture.Source

	onLevel  func(meter.Update)
	onResult func(Result)

	mu        sync.Mutex
	recording bool
	probed    bool
	disposed  bool
	sess      *recSession
}

// recSession is the per-recording state handed to the session goroutine.
type recSession struct {
	stream  capture.Stream
	stopCh  chan StopReason
	done    chan struct{}
	discard atomic.Bool
}

// New creates a Controller reading from source.
func New(source capture.Source, cfg Config, opts ...Option) *Controller {
	if cfg.ChunkInterval == 0 {
		cfg.ChunkInterval = defaultChunkInterval
	}
	if len(cfg.Encodings) == 0 {
		cfg.Encodings = defaultEncodings
	}
	if cfg.Min == (MinClip{}) {
		cfg.Min = DefaultMinClip()
	}
	if cfg.Stream.SampleRate == 0 {
		cfg.Stream.SampleRate = 16000
	}
	if cfg.Stream.FrameSize == 0 {
		cfg.Stream.FrameSize = 2048
	}
	c := &Controller{cfg: cfg, source: source}
	for _, o := range opts {
		o(c)
	}
	return c
}

// EnsureMic verifies microphone access, probing the device on first call and
// reusing the cached result afterwards. Returns a typed *capture.Error with a
// remediation hint on failure.
func (c *Controller) EnsureMic(ctx context.Context) error {
	c.mu.Lock()
	if c.probed {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if err := c.source.Probe(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	c.probed = true
	c.mu.Unlock()
	return nil
}

// Recording reports whether a session is currently active.
func (c *Controller) Recording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recording
}

// Start opens the capture stream and begins a recording session. It refuses
// with ErrAlreadyRecording while a session is active and with
// ErrNoSupportedFormat when no configured encoding matches the capture format.
func (c *Controller) Start(ctx context.Context) error {
	if err := c.EnsureMic(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return ErrDisposed
	}
	if c.recording {
		c.mu.Unlock()
		return ErrAlreadyRecording
	}

	enc, err := selectEncoder(c.cfg.Encodings, c.cfg.Stream.SampleRate)
	if err != nil {
		c.mu.Unlock()
		return err
	}

	stream, err := c.source.Start(ctx, c.cfg.Stream)
	if err != nil {
		c.mu.Unlock()
		return err
	}

	sess := &recSession{
		stream: stream,
		stopCh: make(chan StopReason, 1),
		done:   make(chan struct{}),
	}
	c.recording = true
	c.sess = sess
	c.mu.Unlock()

	slog.Debug("recording started",
		"encoding", enc.Name(),
		"sample_rate", c.cfg.Stream.SampleRate,
		"chunk_interval", c.cfg.ChunkInterval,
	)

	go c.run(sess, enc)
	return nil
}

// Stop requests the end of the active session with the given reason. It is
// idempotent: when no session is active, or one is already stopping, the call
// is a no-op and no callback fires.
func (c *Controller) Stop(reason StopReason) {
	c.mu.Lock()
	sess := c.sess
	active := c.recording
	c.mu.Unlock()
	if !active || sess == nil {
		return
	}
	select {
	case sess.stopCh <- reason:
	default:
		// A stop is already pending.
	}
}

// Dispose tears down any active session without firing the completion
// callback and marks the controller unusable. It never fails and may be
// called multiple times. Intended for page-unload/shutdown paths.
func (c *Controller) Dispose() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true
	sess := c.sess
	c.mu.Unlock()

	if sess == nil {
		return
	}
	sess.discard.Store(true)
	select {
	case sess.stopCh <- ReasonDisposed:
	default:
	}
	select {
	case <-sess.done:
	case <-time.After(time.Second):
		slog.Warn("recording session did not stop within dispose timeout")
	}
}

// run is the session goroutine: it pumps frames through the meter and
// encoder until an auto-stop trigger, a stop request, or stream failure, then
// finalizes the clip.
func (c *Controller) run(sess *recSession, enc Encoder) {
	defer close(sess.done)

	m := meter.New(c.cfg.Meter)

	var (
		chunks       [][]byte
		pending      []byte
		totalSamples int64
		lastCut      time.Duration
		reason       StopReason
		streamErr    error
	)

	frameDur := time.Duration(c.cfg.Stream.FrameSize) * time.Second /
		time.Duration(c.cfg.Stream.SampleRate)

	encode := func(f capture.Frame) bool {
		out, err := enc.Encode(f.Samples)
		if err != nil {
			streamErr = err
			return false
		}
		pending = append(pending, out...)
		totalSamples += int64(len(f.Samples))

		end := f.Timestamp + frameDur
		if end-lastCut >= c.cfg.ChunkInterval && len(pending) > 0 {
			chunks = append(chunks, pending)
			pending = nil
			lastCut = end
		}

		u := m.Process(f.Samples, f.Timestamp)
		if c.onLevel != nil {
			c.onLevel(u)
		}
		switch u.Stop {
		case meter.TriggerSilence:
			reason = ReasonSilence
			return false
		case meter.TriggerNoise:
			reason = ReasonNoise
			return false
		}
		return true
	}

loop:
	for {
		select {
		case r := <-sess.stopCh:
			reason = r
			break loop
		case f, ok := <-sess.stream.Frames():
			if !ok {
				streamErr = sess.stream.Err()
				reason = ReasonManual
				break loop
			}
			if !encode(f) {
				break loop
			}
		}
	}

	// Brief drain so buffered-but-undelivered audio makes it into the clip.
	if streamErr == nil {
		deadline := time.After(finalDrainWait)
	drain:
		for {
			select {
			case f, ok := <-sess.stream.Frames():
				if !ok {
					break drain
				}
				_ = encode(f)
			case <-deadline:
				break drain
			}
		}
	}

	if err := sess.stream.Close(); err != nil {
		slog.Warn("capture stream close failed", "err", err)
	}

	if tail, err := enc.Flush(); err == nil && len(tail) > 0 {
		pending = append(pending, tail...)
	}
	if len(pending) > 0 {
		chunks = append(chunks, pending)
	}

	c.mu.Lock()
	c.recording = false
	if c.sess == sess {
		c.sess = nil
	}
	c.mu.Unlock()

	if sess.discard.Load() || reason == ReasonDisposed {
		return
	}

	result := Result{Reason: reason, Err: streamErr}
	if streamErr == nil {
		bytes, err := enc.Assemble(chunks)
		if err != nil {
			result.Err = err
		} else {
			result.Clip = Clip{
				Bytes:    bytes,
				MIMEType: enc.MIMEType(),
				Duration: time.Duration(totalSamples) * time.Second /
					time.Duration(c.cfg.Stream.SampleRate),
			}
			// Skipped recordings are discarded without upload; validating
			// them would only misreport a user action as a failure.
			if reason != ReasonSkip {
				result.Err = result.Clip.Validate(c.cfg.Min)
			}
		}
	}

	slog.Debug("recording stopped",
		"reason", reason,
		"duration", result.Clip.Duration,
		"bytes", result.Clip.Size(),
		"err", result.Err,
	)

	if c.onResult != nil {
		c.onResult(result)
	}
}
