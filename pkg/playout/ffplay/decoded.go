package ffplay

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"github.com/voxterview/voxterview/pkg/playout"
)

// decodeSampleRate is the intermediate PCM rate used by DecodedSink.
const decodeSampleRate = 48000

// DecodedSink is the fallback playback path: the payload is first decoded to
// raw PCM by an ffmpeg subprocess and the buffered result is then played as
// s16le. This sidesteps container damage that trips up ffplay's own demuxer
// probing on short clips.
type DecodedSink struct {
	// FFmpegPath is the ffmpeg executable used for decoding. Defaults to "ffmpeg".
	FFmpegPath string

	// Player is the sink used to play the decoded PCM. Defaults to a plain Sink.
	Player *Sink
}

// NewDecoded creates a DecodedSink using binaries on PATH.
func NewDecoded() *DecodedSink {
	return &DecodedSink{FFmpegPath: "ffmpeg", Player: New()}
}

func (s *DecodedSink) ffmpegPath() string {
	if s.FFmpegPath == "" {
		return "ffmpeg"
	}
	return s.FFmpegPath
}

// Ensure DecodedSink implements playout.Sink at compile time.
var _ playout.Sink = (*DecodedSink)(nil)

// Play decodes the audio fully, then hands raw PCM to the player.
func (s *DecodedSink) Play(ctx context.Context, audio []byte, mimeType string) (playout.Playback, error) {
	cmd := exec.CommandContext(ctx, s.ffmpegPath(),
		"-nostdin",
		"-hide_banner",
		"-loglevel", "error",
		"-i", "pipe:0",
		"-f", "s16le",
		"-ac", "1",
		"-ar", fmt.Sprintf("%d", decodeSampleRate),
		"pipe:1",
	)
	cmd.Stdin = bytes.NewReader(audio)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	pcm, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffplay: decode fallback: %v: %s", err, stderr.String())
	}
	if len(pcm) == 0 {
		return nil, fmt.Errorf("ffplay: decode fallback produced no audio")
	}
	return s.playRaw(ctx, pcm)
}

// playRaw plays buffered s16le PCM through an ffplay subprocess.
func (s *DecodedSink) playRaw(ctx context.Context, pcm []byte) (playout.Playback, error) {
	player := s.Player
	if player == nil {
		player = New()
	}

	runCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(runCtx, player.path(),
		"-nodisp",
		"-autoexit",
		"-hide_banner",
		"-loglevel", "error",
		"-f", "s16le",
		"-ac", "1",
		"-ar", fmt.Sprintf("%d", decodeSampleRate),
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

	p := &playback{done: make(chan error, 1), cancel: cancel}
	go p.run(runCtx, cmd, stdin, &stderr, pcm)
	return p, nil
}
