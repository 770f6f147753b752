// Package ffplay implements playout.Sink using an ffplay subprocess.
//
// Each Play call streams the encoded audio to ffplay over stdin and waits for
// process exit to signal the end of playback. ffplay handles container and
// codec detection itself, so the sink accepts any format the local ffmpeg
// build can decode.
package ffplay

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/voxterview/voxterview/pkg/playout"
)

// Sink plays audio through an ffplay subprocess.
type Sink struct {
	// Path is the ffplay executable. Defaults to "ffplay" on PATH.
	Path string
}

// Ensure Sink implements playout.Sink at compile time.
var _ playout.Sink = (*Sink)(nil)

// New creates a Sink using the ffplay binary on PATH.
func New() *Sink { return &Sink{Path: "ffplay"} }

func (s *Sink) path() string {
	if s.Path == "" {
		return "ffplay"
	}
	return s.Path
}

// Play starts an ffplay subprocess and feeds it the audio bytes.
func (s *Sink) Play(ctx context.Context, audio []byte, mimeType string) (playout.Playback, error) {
	if _, err := exec.LookPath(s.path()); err != nil {
		return nil, fmt.Errorf("ffplay: executable not found: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(runCtx, s.path(),
		"-nodisp",
		"-autoexit",
		"-hide_banner",
		"-loglevel", "error",
		"-i", "pipe:0",
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("ffplay: stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("ffplay: start: %w", err)
	}

	p := &playback{
		done:   make(chan error, 1),
		cancel: cancel,
	}
	go p.run(runCtx, cmd, stdin, &stderr, audio)
	return p, nil
}

// playback is the handle returned by Play, exported only through the
// playout.Playback interface.
type playback struct {
	done     chan error
	cancel   context.CancelFunc
	stopOnce sync.Once
}

// run feeds the audio and waits for the player to exit.
func (p *playback) run(ctx context.Context, cmd *exec.Cmd, stdin io.WriteCloser, stderr *bytes.Buffer, audio []byte) {
	_, writeErr := stdin.Write(audio)
	_ = stdin.Close()

	waitErr := cmd.Wait()
	switch {
	case ctx.Err() != nil:
		p.done <- context.Canceled
	case waitErr != nil:
		p.done <- fmt.Errorf("ffplay: %v: %s", waitErr, stderr.String())
	case writeErr != nil:
		p.done <- fmt.Errorf("ffplay: write audio: %w", writeErr)
	default:
		p.done <- nil
	}
}

// Done returns the single-shot completion channel.
func (p *playback) Done() <-chan error { return p.done }

// Stop kills the player. Done fires with context.Canceled.
func (p *playback) Stop() {
	p.stopOnce.Do(p.cancel)
}
