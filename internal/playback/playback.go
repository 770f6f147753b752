// Package playback drives question-audio playback for an interview session.
//
// The controller fetches synthesized speech for a question's text and plays it
// through a playout.Sink, holding at most one active playback at a time.
// Starting a new playback releases the previous one first. When a playback
// reaches the natural end of its audio the ended callback fires exactly once;
// stopped or superseded playbacks never fire it, so downstream sequencing only
// reacts to questions the candidate actually heard out.
package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/voxterview/voxterview/pkg/playout"
)

// Synthesizer turns question text into playable audio bytes.
type Synthesizer interface {
	// Synthesize returns the encoded audio for text spoken in the given voice,
	// along with its MIME type.
	Synthesize(ctx context.Context, text, voice string) ([]byte, string, error)
}

// Config carries the collaborators and settings for a Controller.
type Config struct {
	// Synth produces the audio for each question.
	Synth Synthesizer

	// Sink is the primary audio output backend.
	Sink playout.Sink

	// Fallback, when non-nil, is tried if the primary sink refuses to start or
	// fails mid-playback.
	Fallback playout.Sink

	// Voice is the synthesis voice identifier, e.g. "en_US-amy-medium".
	Voice string
}

// Option customizes a Controller.
type Option func(*Controller)

// WithEndedFunc registers fn to be called when a playback reaches the natural
// end of its audio. err is nil for a clean end, non-nil when the audio could
// not be played on any available sink. fn is never called for playbacks that
// were stopped or replaced.
func WithEndedFunc(fn func(err error)) Option {
	return func(c *Controller) { c.onEnded = fn }
}

// Controller plays synthesized question audio, one playback at a time.
type Controller struct {
	cfg     Config
	onEnded func(error)

	mu      sync.Mutex
	current playout.Playback
	gen     int
}

// New returns a Controller using cfg.
func New(cfg Config, opts ...Option) *Controller {
	c := &Controller{cfg: cfg}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Play fetches synthesized audio for text and starts playing it, stopping and
// releasing any previous playback first. It returns once playback has started;
// completion is reported through the ended callback. A synthesis failure or a
// refusal by every sink is returned immediately.
func (c *Controller) Play(ctx context.Context, text string) error {
	c.Stop()

	audio, mimeType, err := c.cfg.Synth.Synthesize(ctx, text, c.cfg.Voice)
	if err != nil {
		return fmt.Errorf("playback: synthesize question audio: %w", err)
	}

	pb, usedFallback, err := c.start(ctx, audio, mimeType, false)
	if err != nil {
		return err
	}

	gen := c.register(pb)
	go c.watch(ctx, gen, pb, audio, mimeType, usedFallback)
	return nil
}

// Playing reports whether a playback is currently active.
func (c *Controller) Playing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil
}

// Stop halts any in-flight playback. The ended callback does not fire for a
// stopped playback. Safe to call at any time.
func (c *Controller) Stop() {
	c.mu.Lock()
	pb := c.current
	c.current = nil
	c.gen++
	c.mu.Unlock()

	if pb != nil {
		pb.Stop()
	}
}

// start attempts the primary sink, then the fallback. It reports which sink
// accepted the payload so a later mid-playback failure knows whether a
// fallback attempt is still available.
func (c *Controller) start(ctx context.Context, audio []byte, mimeType string, fallbackOnly bool) (playout.Playback, bool, error) {
	if !fallbackOnly {
		pb, err := c.cfg.Sink.Play(ctx, audio, mimeType)
		if err == nil {
			return pb, false, nil
		}
		if c.cfg.Fallback == nil {
			return nil, false, fmt.Errorf("playback: start playback: %w", err)
		}
		slog.Warn("primary playback sink refused payload, trying fallback",
			"mime_type", mimeType,
			"error", err)
	}

	if c.cfg.Fallback == nil {
		return nil, true, errors.New("playback: no fallback sink configured")
	}
	pb, err := c.cfg.Fallback.Play(ctx, audio, mimeType)
	if err != nil {
		return nil, true, fmt.Errorf("playback: start fallback playback: %w", err)
	}
	return pb, true, nil
}

// register installs pb as the current playback and returns its generation.
// A watcher whose generation has been superseded must stay silent.
func (c *Controller) register(pb playout.Playback) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.current = pb
	return c.gen
}

func (c *Controller) watch(ctx context.Context, gen int, pb playout.Playback, audio []byte, mimeType string, usedFallback bool) {
	err := <-pb.Done()

	c.mu.Lock()
	stale := gen != c.gen
	if !stale {
		c.current = nil
	}
	c.mu.Unlock()

	if stale || errors.Is(err, context.Canceled) {
		return
	}

	if err != nil && !usedFallback && c.cfg.Fallback != nil {
		slog.Warn("playback failed mid-stream, retrying on fallback sink",
			"mime_type", mimeType,
			"error", err)
		retry, _, startErr := c.start(ctx, audio, mimeType, true)
		if startErr == nil {
			gen = c.register(retry)
			go c.watch(ctx, gen, retry, audio, mimeType, true)
			return
		}
		err = errors.Join(err, startErr)
	}

	if c.onEnded != nil {
		c.onEnded(err)
	}
}
