// Package ffmpeg implements capture.Source by reading raw PCM from an ffmpeg
// subprocess attached to the platform's microphone input.
//
// ffmpeg is asked for mono s16le at the requested sample rate on stdout; the
// source converts each read into normalised float32 frames. Device selection
// and the input format flag are platform-specific (pulse on Linux,
// avfoundation on macOS, dshow on Windows).
package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/voxterview/voxterview/pkg/capture"
)

// probeTimeout bounds the short capture run used by Probe.
const probeTimeout = 3 * time.Second

// Source captures microphone audio via an ffmpeg subprocess.
type Source struct {
	// Path is the ffmpeg executable. Defaults to "ffmpeg" on PATH.
	Path string

	// InputFormat overrides the platform input format flag (-f). Empty selects
	// the platform default.
	InputFormat string
}

// Ensure Source implements capture.Source at compile time.
var _ capture.Source = (*Source)(nil)

// New creates a Source using the ffmpeg binary on PATH.
func New() *Source { return &Source{Path: "ffmpeg"} }

func (s *Source) path() string {
	if s.Path == "" {
		return "ffmpeg"
	}
	return s.Path
}

func (s *Source) inputFormat() string {
	if s.InputFormat != "" {
		return s.InputFormat
	}
	return platformInputFormat()
}

// captureArgs builds the ffmpeg argument list for a mono capture run.
func (s *Source) captureArgs(cfg capture.StreamConfig) []string {
	device := cfg.Device
	if device == "" {
		device = platformDefaultDevice()
	}
	return []string{
		"-f", s.inputFormat(),
		"-i", device,
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-vn",
		"-f", "s16le",
		"-ac", "1",
		"-ar", fmt.Sprintf("%d", cfg.SampleRate),
		"pipe:1",
	}
}

// Probe opens the device for a moment and classifies any failure. A successful
// probe reads at least one PCM buffer before terminating the subprocess.
func (s *Source) Probe(ctx context.Context) error {
	if _, err := exec.LookPath(s.path()); err != nil {
		return capture.NewError(capture.KindUnsupported, err)
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	cfg := capture.StreamConfig{SampleRate: 16000, FrameSize: 2048}
	cmd := exec.CommandContext(ctx, s.path(), s.captureArgs(cfg)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return capture.NewError(capture.KindUnsupported, err)
	}
	if err := cmd.Start(); err != nil {
		return capture.NewError(capture.KindUnsupported, err)
	}

	buf := make([]byte, cfg.FrameSize*2)
	_, readErr := bufio.NewReader(stdout).Read(buf)
	cancel()
	_ = cmd.Wait()

	if readErr != nil && ctx.Err() == nil {
		return classify(stderr.String(), readErr)
	}
	return nil
}

// Start opens a long-lived capture stream.
func (s *Source) Start(ctx context.Context, cfg capture.StreamConfig) (capture.Stream, error) {
	if _, err := exec.LookPath(s.path()); err != nil {
		return nil, capture.NewError(capture.KindUnsupported, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(runCtx, s.path(), s.captureArgs(cfg)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, capture.NewError(capture.KindUnsupported, err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, capture.NewError(capture.KindUnsupported, err)
	}

	st := &stream{
		frames: make(chan capture.Frame, 4),
		cancel: cancel,
	}
	go st.read(cmd, bufio.NewReaderSize(stdout, cfg.FrameSize*4), &stderr, cfg)
	return st, nil
}

// stream wraps the subprocess and frame pump for one capture run.
type stream struct {
	frames chan capture.Frame
	cancel context.CancelFunc

	mu        sync.Mutex
	err       error
	closed    bool
	closeOnce sync.Once
}

// read pumps s16le PCM from the subprocess stdout into float32 frames.
func (st *stream) read(cmd *exec.Cmd, r *bufio.Reader, stderr *bytes.Buffer, cfg capture.StreamConfig) {
	defer close(st.frames)

	buf := make([]byte, cfg.FrameSize*2)
	var samplesRead int64
	for {
		if _, err := readFull(r, buf); err != nil {
			_ = cmd.Wait()
			st.mu.Lock()
			if !st.closed {
				st.err = classify(stderr.String(), err)
			}
			st.mu.Unlock()
			return
		}

		samples := make([]float32, cfg.FrameSize)
		for i := range samples {
			samples[i] = float32(int16(binary.LittleEndian.Uint16(buf[i*2:]))) / 32768.0
		}
		frame := capture.Frame{
			Samples:   samples,
			Timestamp: time.Duration(samplesRead) * time.Second / time.Duration(cfg.SampleRate),
		}
		samplesRead += int64(cfg.FrameSize)

		st.frames <- frame
	}
}

func (st *stream) Frames() <-chan capture.Frame { return st.frames }

func (st *stream) Err() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.err
}

func (st *stream) Close() error {
	st.closeOnce.Do(func() {
		st.mu.Lock()
		st.closed = true
		st.mu.Unlock()
		st.cancel()
		// Drain so the reader goroutine can exit even if nobody is consuming.
		go func() {
			for range st.frames {
			}
		}()
	})
	return nil
}

// readFull fills buf completely or returns the first error.
func readFull(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// classify maps ffmpeg stderr output to a typed capture error.
func classify(stderr string, err error) error {
	low := strings.ToLower(stderr)
	switch {
	case strings.Contains(low, "permission denied") || strings.Contains(low, "access denied") || strings.Contains(low, "not authorized"):
		return capture.NewError(capture.KindPermissionDenied, err)
	case strings.Contains(low, "no such") || strings.Contains(low, "not found") || strings.Contains(low, "cannot find"):
		return capture.NewError(capture.KindDeviceNotFound, err)
	case strings.Contains(low, "busy") || strings.Contains(low, "in use") || strings.Contains(low, "resource temporarily unavailable"):
		return capture.NewError(capture.KindDeviceBusy, err)
	default:
		return capture.NewError(capture.KindUnsupported, err)
	}
}
