package playback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/voxterview/voxterview/pkg/playout/mock"
)

// stubSynth returns canned audio and records the texts it was asked for.
type stubSynth struct {
	mu    sync.Mutex
	audio []byte
	mime  string
	err   error
	texts []string
	voice string
}

func (s *stubSynth) Synthesize(ctx context.Context, text, voice string) ([]byte, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, text)
	s.voice = voice
	if s.err != nil {
		return nil, "", s.err
	}
	return s.audio, s.mime, nil
}

// endedCollector gathers ended-callback invocations behind a channel so tests
// can wait without sleeping.
type endedCollector struct {
	mu   sync.Mutex
	errs []error
	ch   chan struct{}
}

func newEndedCollector() *endedCollector {
	return &endedCollector{ch: make(chan struct{}, 8)}
}

func (e *endedCollector) fn(err error) {
	e.mu.Lock()
	e.errs = append(e.errs, err)
	e.mu.Unlock()
	e.ch <- struct{}{}
}

func (e *endedCollector) wait(t *testing.T) error {
	t.Helper()
	select {
	case <-e.ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for ended callback")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.errs[len(e.errs)-1]
}

func (e *endedCollector) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.errs)
}

func TestPlaySynthesizesAndPlays(t *testing.T) {
	synth := &stubSynth{audio: []byte("wav-bytes"), mime: "audio/wav"}
	sink := &mock.Sink{}
	ended := newEndedCollector()

	c := New(Config{Synth: synth, Sink: sink, Voice: "en_US-amy-medium"}, WithEndedFunc(ended.fn))
	if err := c.Play(context.Background(), "Tell me about yourself"); err != nil {
		t.Fatalf("Play: %v", err)
	}

	if len(sink.PlayCalls) != 1 {
		t.Fatalf("Play calls = %d, want 1", len(sink.PlayCalls))
	}
	if got := string(sink.PlayCalls[0].Audio); got != "wav-bytes" {
		t.Errorf("played audio = %q", got)
	}
	if sink.PlayCalls[0].MIMEType != "audio/wav" {
		t.Errorf("mime type = %q", sink.PlayCalls[0].MIMEType)
	}
	if synth.voice != "en_US-amy-medium" {
		t.Errorf("voice = %q", synth.voice)
	}
	if !c.Playing() {
		t.Error("Playing() = false during playback")
	}

	sink.Playbacks()[0].Finish(nil)
	if err := ended.wait(t); err != nil {
		t.Errorf("ended callback err = %v", err)
	}
	if c.Playing() {
		t.Error("Playing() = true after playback ended")
	}
}

func TestPlayStopsPreviousPlaybackFirst(t *testing.T) {
	synth := &stubSynth{audio: []byte("a"), mime: "audio/wav"}
	sink := &mock.Sink{}
	ended := newEndedCollector()

	c := New(Config{Synth: synth, Sink: sink}, WithEndedFunc(ended.fn))
	if err := c.Play(context.Background(), "first"); err != nil {
		t.Fatalf("Play first: %v", err)
	}
	if err := c.Play(context.Background(), "second"); err != nil {
		t.Fatalf("Play second: %v", err)
	}

	playbacks := sink.Playbacks()
	if len(playbacks) != 2 {
		t.Fatalf("playbacks = %d, want 2", len(playbacks))
	}
	if playbacks[0].StopCount() == 0 {
		t.Error("first playback was not stopped")
	}

	// Only the second playback's natural end reaches the callback.
	playbacks[1].Finish(nil)
	ended.wait(t)
	if n := ended.count(); n != 1 {
		t.Errorf("ended callbacks = %d, want 1", n)
	}
}

func TestStopSuppressesEndedCallback(t *testing.T) {
	synth := &stubSynth{audio: []byte("a"), mime: "audio/wav"}
	sink := &mock.Sink{}
	ended := newEndedCollector()

	c := New(Config{Synth: synth, Sink: sink}, WithEndedFunc(ended.fn))
	if err := c.Play(context.Background(), "q"); err != nil {
		t.Fatalf("Play: %v", err)
	}
	c.Stop()

	select {
	case <-ended.ch:
		t.Fatal("ended callback fired for a stopped playback")
	case <-time.After(100 * time.Millisecond):
	}
	if c.Playing() {
		t.Error("Playing() = true after Stop")
	}
}

func TestSynthesisErrorReturnedImmediately(t *testing.T) {
	wantErr := errors.New("tts down")
	synth := &stubSynth{err: wantErr}
	sink := &mock.Sink{}

	c := New(Config{Synth: synth, Sink: sink})
	err := c.Play(context.Background(), "q")
	if !errors.Is(err, wantErr) {
		t.Fatalf("Play err = %v, want wrapped %v", err, wantErr)
	}
	if len(sink.PlayCalls) != 0 {
		t.Error("sink was called despite synthesis failure")
	}
}

func TestFallbackOnStartRefusal(t *testing.T) {
	synth := &stubSynth{audio: []byte("a"), mime: "audio/wav"}
	primary := &mock.Sink{PlayErr: errors.New("device busy")}
	fallback := &mock.Sink{}
	ended := newEndedCollector()

	c := New(Config{Synth: synth, Sink: primary, Fallback: fallback}, WithEndedFunc(ended.fn))
	if err := c.Play(context.Background(), "q"); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if len(fallback.PlayCalls) != 1 {
		t.Fatalf("fallback Play calls = %d, want 1", len(fallback.PlayCalls))
	}

	fallback.Playbacks()[0].Finish(nil)
	if err := ended.wait(t); err != nil {
		t.Errorf("ended callback err = %v", err)
	}
}

func TestFallbackOnMidPlaybackFailure(t *testing.T) {
	synth := &stubSynth{audio: []byte("a"), mime: "audio/wav"}
	primary := &mock.Sink{}
	fallback := &mock.Sink{}
	ended := newEndedCollector()

	c := New(Config{Synth: synth, Sink: primary, Fallback: fallback}, WithEndedFunc(ended.fn))
	if err := c.Play(context.Background(), "q"); err != nil {
		t.Fatalf("Play: %v", err)
	}

	primary.Playbacks()[0].Finish(errors.New("decode failure"))

	deadline := time.After(2 * time.Second)
	for len(fallback.Playbacks()) == 0 {
		select {
		case <-deadline:
			t.Fatal("fallback sink never engaged after mid-playback failure")
		case <-time.After(5 * time.Millisecond):
		}
	}

	fallback.Playbacks()[0].Finish(nil)
	if err := ended.wait(t); err != nil {
		t.Errorf("ended callback err = %v", err)
	}
	if n := ended.count(); n != 1 {
		t.Errorf("ended callbacks = %d, want 1", n)
	}
}

func TestBothSinksFailingSurfacesError(t *testing.T) {
	synth := &stubSynth{audio: []byte("a"), mime: "audio/wav"}
	primary := &mock.Sink{}
	fallback := &mock.Sink{PlayErr: errors.New("no audio device")}
	ended := newEndedCollector()

	c := New(Config{Synth: synth, Sink: primary, Fallback: fallback}, WithEndedFunc(ended.fn))
	if err := c.Play(context.Background(), "q"); err != nil {
		t.Fatalf("Play: %v", err)
	}

	primary.Playbacks()[0].Finish(errors.New("decode failure"))
	if err := ended.wait(t); err == nil {
		t.Error("ended callback err = nil, want combined failure")
	}
}

func TestNoFallbackConfiguredStartError(t *testing.T) {
	synth := &stubSynth{audio: []byte("a"), mime: "audio/wav"}
	primary := &mock.Sink{PlayErr: errors.New("refused")}

	c := New(Config{Synth: synth, Sink: primary})
	if err := c.Play(context.Background(), "q"); err == nil {
		t.Fatal("Play succeeded with no working sink")
	}
}
