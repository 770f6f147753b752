// Package mock provides test doubles for the playout package interfaces.
//
// Use Sink to capture the payloads handed to Play and to control when each
// playback "ends" from the test body:
//
//	sink := &mock.Sink{}
//	// … code under test calls sink.Play …
//	sink.Playbacks()[0].Finish(nil) // simulate end of audio
package mock

import (
	"context"
	"sync"

	"github.com/voxterview/voxterview/pkg/playout"
)

// PlayCall records a single invocation of Sink.Play.
type PlayCall struct {
	// Audio is a copy of the bytes passed to Play.
	Audio []byte

	// MIMEType is the declared payload type.
	MIMEType string
}

// Sink is a mock implementation of playout.Sink.
type Sink struct {
	mu sync.Mutex

	// PlayErr, if non-nil, is returned by every Play call (the "playback
	// engine refused to start" case).
	PlayErr error

	// AutoFinish, when true, completes each playback immediately with
	// AutoFinishErr. When false, the test must call Finish on the handle.
	AutoFinish    bool
	AutoFinishErr error

	// PlayCalls records every call to Play in order.
	PlayCalls []PlayCall

	playbacks []*Playback
}

// Play records the call and returns a controllable Playback handle.
func (s *Sink) Play(ctx context.Context, audio []byte, mimeType string) (playout.Playback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := make([]byte, len(audio))
	copy(cp, audio)
	s.PlayCalls = append(s.PlayCalls, PlayCall{Audio: cp, MIMEType: mimeType})

	if s.PlayErr != nil {
		return nil, s.PlayErr
	}

	p := &Playback{done: make(chan error, 1)}
	s.playbacks = append(s.playbacks, p)
	if s.AutoFinish {
		p.Finish(s.AutoFinishErr)
	}
	return p, nil
}

// Playbacks returns every handle issued so far, in order.
func (s *Sink) Playbacks() []*Playback {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Playback, len(s.playbacks))
	copy(out, s.playbacks)
	return out
}

// Ensure Sink implements playout.Sink at compile time.
var _ playout.Sink = (*Sink)(nil)

// Playback is the controllable handle issued by Sink.Play.
type Playback struct {
	done chan error

	mu        sync.Mutex
	finished  bool
	stopCount int
}

// Finish completes the playback with err. Subsequent calls are no-ops, so a
// test may race Finish against Stop without double-firing Done.
func (p *Playback) Finish(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.finished {
		return
	}
	p.finished = true
	p.done <- err
}

// Done returns the single-shot completion channel.
func (p *Playback) Done() <-chan error { return p.done }

// Stop records the stop and completes the playback with context.Canceled.
func (p *Playback) Stop() {
	p.mu.Lock()
	p.stopCount++
	p.mu.Unlock()
	p.Finish(context.Canceled)
}

// StopCount reports how many times Stop was called.
func (p *Playback) StopCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopCount
}

// Ensure Playback implements playout.Playback at compile time.
var _ playout.Playback = (*Playback)(nil)
