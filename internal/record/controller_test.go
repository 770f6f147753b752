package record

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/voxterview/voxterview/internal/meter"
	"github.com/voxterview/voxterview/pkg/capture"
	capmock "github.com/voxterview/voxterview/pkg/capture/mock"
)

var testStream = capture.StreamConfig{SampleRate: 16000, FrameSize: 2048}

// collector gathers results from the completion callback.
type collector struct {
	mu      sync.Mutex
	results []Result
	ch      chan Result
}

func newCollector() *collector {
	return &collector{ch: make(chan Result, 4)}
}

func (c *collector) fn(r Result) {
	c.mu.Lock()
	c.results = append(c.results, r)
	c.mu.Unlock()
	c.ch <- r
}

func (c *collector) wait(t *testing.T) Result {
	t.Helper()
	select {
	case r := <-c.ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for recording result")
		return Result{}
	}
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.results)
}

func testConfig() Config {
	return Config{
		Stream: testStream,
		Meter: meter.Config{
			SilenceHangover: 900 * time.Millisecond,
		},
	}
}

func TestStart_RefusesWhileRecording(t *testing.T) {
	src := &capmock.Source{Hold: true}
	col := newCollector()
	c := New(src, testConfig(), WithResultFunc(col.fn))

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if !c.Recording() {
		t.Fatal("Recording() = false after Start")
	}

	if err := c.Start(context.Background()); !errors.Is(err, ErrAlreadyRecording) {
		t.Fatalf("second Start err = %v, want ErrAlreadyRecording", err)
	}

	c.Stop(ReasonManual)
	col.wait(t)
	if c.Recording() {
		t.Error("Recording() = true after stop completed")
	}
}

func TestStart_PropagatesProbeError(t *testing.T) {
	src := &capmock.Source{ProbeErr: capture.NewError(capture.KindPermissionDenied, nil)}
	c := New(src, testConfig())

	err := c.Start(context.Background())
	if !errors.Is(err, capture.ErrPermissionDenied) {
		t.Fatalf("err = %v, want ErrPermissionDenied", err)
	}
	var cerr *capture.Error
	if !errors.As(err, &cerr) || cerr.Hint == "" {
		t.Error("permission error carries no remediation hint")
	}
}

func TestEnsureMic_ProbesOnce(t *testing.T) {
	src := &capmock.Source{Hold: true}
	col := newCollector()
	c := New(src, testConfig(), WithResultFunc(col.fn))

	for i := 0; i < 3; i++ {
		if err := c.EnsureMic(context.Background()); err != nil {
			t.Fatalf("EnsureMic: %v", err)
		}
	}
	if src.ProbeCallCount != 1 {
		t.Errorf("Probe called %d times, want 1", src.ProbeCallCount)
	}
}

func TestStop_Idempotent(t *testing.T) {
	src := &capmock.Source{Hold: true}
	col := newCollector()
	c := New(src, testConfig(), WithResultFunc(col.fn))

	// Stop before any recording: no-op, no callback.
	c.Stop(ReasonManual)
	if col.count() != 0 {
		t.Fatal("callback fired for Stop with no active recording")
	}

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	c.Stop(ReasonManual)
	c.Stop(ReasonManual)
	c.Stop(ReasonManual)

	col.wait(t)
	// Give any spurious second callback a moment to appear.
	time.Sleep(50 * time.Millisecond)
	if n := col.count(); n != 1 {
		t.Errorf("callback fired %d times, want exactly 1", n)
	}
}

func TestManualStop_AssemblesValidClip(t *testing.T) {
	// 2 s of speech-level audio, then the stream holds for a manual stop.
	src := &capmock.Source{
		Script: capmock.Voiced(0.05, 2*time.Second, testStream),
		Hold:   true,
	}
	col := newCollector()
	c := New(src, testConfig(), WithResultFunc(col.fn))

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// Let the script play out, then stop.
	time.Sleep(100 * time.Millisecond)
	c.Stop(ReasonManual)
	r := col.wait(t)

	if r.Err != nil {
		t.Fatalf("result err = %v", r.Err)
	}
	if r.Reason != ReasonManual {
		t.Errorf("reason = %q, want manual", r.Reason)
	}
	if r.Clip.MIMEType != "audio/wav" {
		t.Errorf("mime = %q, want audio/wav", r.Clip.MIMEType)
	}
	if r.Clip.Duration < 700*time.Millisecond {
		t.Errorf("duration = %v, want ≥ 700ms", r.Clip.Duration)
	}

	streams := src.Streams()
	if len(streams) != 1 {
		t.Fatalf("opened %d streams, want 1", len(streams))
	}
	if !streams[0].Closed() {
		t.Error("capture stream not released after stop")
	}
}

func TestSilenceAutoStop(t *testing.T) {
	// 1 s of speech then 2 s of near-silence: the 900 ms hangover fires.
	script := capmock.Concat(testStream,
		capmock.Voiced(0.05, 1*time.Second, testStream),
		capmock.Voiced(0.005, 2*time.Second, testStream),
	)
	src := &capmock.Source{Script: script, Hold: true}
	col := newCollector()
	c := New(src, testConfig(), WithResultFunc(col.fn))

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	r := col.wait(t)

	if r.Reason != ReasonSilence {
		t.Errorf("reason = %q, want silence", r.Reason)
	}
	if r.Err != nil {
		t.Errorf("result err = %v", r.Err)
	}
	time.Sleep(50 * time.Millisecond)
	if n := col.count(); n != 1 {
		t.Errorf("callback fired %d times, want exactly 1", n)
	}
}

func TestNoiseAutoStop(t *testing.T) {
	cfg := testConfig()
	cfg.Meter.NoiseDuration = 1 * time.Second
	// Loud, dense sign flips: classified noise, sustained past the window.
	script := capmock.Tone(0.4, 3*time.Second, testStream)
	src := &capmock.Source{Script: script, Hold: true}
	col := newCollector()
	c := New(src, cfg, WithResultFunc(col.fn))

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	r := col.wait(t)
	if r.Reason != ReasonNoise {
		t.Errorf("reason = %q, want noise", r.Reason)
	}
}

func TestShortClip_FailsValidation(t *testing.T) {
	// 300 ms of audio then end-of-stream.
	src := &capmock.Source{Script: capmock.Voiced(0.05, 300*time.Millisecond, testStream)}
	col := newCollector()
	c := New(src, testConfig(), WithResultFunc(col.fn))

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	r := col.wait(t)
	if !errors.Is(r.Err, ErrClipTooShort) {
		t.Fatalf("result err = %v, want ErrClipTooShort", r.Err)
	}
}

func TestSkipStop_SkipsValidation(t *testing.T) {
	src := &capmock.Source{Hold: true}
	col := newCollector()
	c := New(src, testConfig(), WithResultFunc(col.fn))

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	c.Stop(ReasonSkip)
	r := col.wait(t)

	if r.Reason != ReasonSkip {
		t.Errorf("reason = %q, want skip", r.Reason)
	}
	// A skipped take is discarded, not validated: no too-short error even
	// though nothing was captured.
	if r.Err != nil {
		t.Errorf("result err = %v, want nil for skip", r.Err)
	}
}

func TestLevelCallback(t *testing.T) {
	src := &capmock.Source{Script: capmock.Voiced(0.05, 500*time.Millisecond, testStream), Hold: true}
	col := newCollector()

	var mu sync.Mutex
	var updates []meter.Update
	c := New(src, testConfig(),
		WithResultFunc(col.fn),
		WithLevelFunc(func(u meter.Update) {
			mu.Lock()
			updates = append(updates, u)
			mu.Unlock()
		}),
	)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	c.Stop(ReasonManual)
	col.wait(t)

	mu.Lock()
	defer mu.Unlock()
	if len(updates) == 0 {
		t.Fatal("no level updates delivered")
	}
	if updates[0].Level <= 0 {
		t.Errorf("level = %v, want > 0 for speech-level audio", updates[0].Level)
	}
}

func TestDispose_NoCallbackAndReleasesStream(t *testing.T) {
	src := &capmock.Source{Hold: true}
	col := newCollector()
	c := New(src, testConfig(), WithResultFunc(col.fn))

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	c.Dispose()

	if col.count() != 0 {
		t.Error("completion callback fired for a disposed session")
	}
	streams := src.Streams()
	if len(streams) != 1 || !streams[0].Closed() {
		t.Error("capture stream not released by Dispose")
	}
	if err := c.Start(context.Background()); !errors.Is(err, ErrDisposed) {
		t.Errorf("Start after Dispose err = %v, want ErrDisposed", err)
	}

	// Dispose is re-entrant.
	c.Dispose()
}
