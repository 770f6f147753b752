// Command voxterview runs a voice interview session from the terminal.
//
// It connects to the interview backend, plays each question aloud via the
// synthesis service, records the candidate's answer from the default
// microphone, and walks the submit/redo/skip decision for every transcript.
// A local feed server exposes live level, state and transcript events over
// WebSocket plus Prometheus metrics and health endpoints for an external UI.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/voxterview/voxterview/internal/config"
	"github.com/voxterview/voxterview/internal/feed"
	"github.com/voxterview/voxterview/internal/gateway"
	"github.com/voxterview/voxterview/internal/health"
	"github.com/voxterview/voxterview/internal/meter"
	"github.com/voxterview/voxterview/internal/observe"
	"github.com/voxterview/voxterview/internal/playback"
	"github.com/voxterview/voxterview/internal/record"
	"github.com/voxterview/voxterview/internal/sequence"
	"github.com/voxterview/voxterview/pkg/capture"
	"github.com/voxterview/voxterview/pkg/capture/ffmpeg"
	"github.com/voxterview/voxterview/pkg/playout/ffplay"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	candidate := flag.String("candidate", "", "candidate name for a new session")
	role := flag.String("role", "", "job role the interview is for")
	questions := flag.Int("questions", 0, "number of questions to generate (0 uses the backend default)")
	sessionID := flag.String("session", "", "resume an existing session by ID instead of starting a new one")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voxterview: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voxterview: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	slog.Info("voxterview starting",
		"version", version,
		"config", *configPath,
		"backend", cfg.Backend.URL,
		"log_level", cfg.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// runCtx additionally ends when the interview itself completes.
	runCtx, finish := context.WithCancel(ctx)
	defer finish()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Component wiring ──────────────────────────────────────────────────────
	client := gateway.New(cfg.Backend.URL,
		gateway.WithTimeout(cfg.Backend.Timeout()),
		gateway.WithTranscribeTimeout(cfg.Backend.TranscribeTimeout()),
	)

	source := ffmpeg.New()
	hub := feed.NewHub()
	defer hub.Close()

	// The sequencer is created after recorder and player, but its callbacks
	// below capture the variable; by the time any completion fires it is set.
	var seq *sequence.Sequencer

	recorder := record.New(source, record.Config{
		Stream: capture.StreamConfig{
			SampleRate: cfg.Audio.SampleRate,
			FrameSize:  cfg.Audio.FrameSize,
			Device:     cfg.Audio.Device,
		},
		Meter:         cfg.VAD.MeterConfig(),
		ChunkInterval: cfg.Recording.ChunkInterval(),
		Encodings:     cfg.Recording.Encodings,
		Min:           cfg.Recording.MinClip(),
	},
		record.WithLevelFunc(func(u meter.Update) {
			hub.Publish(feed.LevelEvent(u.RMS, u.Level, u.Speaking))
		}),
		record.WithResultFunc(func(res record.Result) {
			seq.RecordingResult(res)
		}),
	)

	player := playback.New(playback.Config{
		Synth:    client,
		Sink:     ffplay.New(),
		Fallback: ffplay.NewDecoded(),
		Voice:    cfg.Playback.Voice,
	}, playback.WithEndedFunc(func(err error) {
		seq.PlaybackEnded(err)
	}))

	// Sequencer callbacks run on its internal lock, so they only forward into
	// buffered channels; the UI loop consumes them and is free to call back.
	states := make(chan sequence.State, 16)
	banners := make(chan sequence.Banner, 16)
	transcripts := make(chan string, 16)

	seq = sequence.New(sequence.Config{
		Player:          player,
		Recorder:        recorder,
		Transcriber:     client,
		Store:           client,
		RecordDelay:     cfg.Playback.RecordDelay(),
		MaxShortRetries: cfg.Recording.MaxShortRetries,
		Detailed:        cfg.Backend.DetailedFeedback,
	},
		sequence.WithStateFunc(func(st sequence.State) {
			select {
			case states <- st:
			default:
			}
		}),
		sequence.WithBannerFunc(func(b sequence.Banner) {
			select {
			case banners <- b:
			default:
			}
		}),
		sequence.WithTranscriptFunc(func(text string) {
			select {
			case transcripts <- text:
			default:
			}
		}),
	)
	defer seq.Dispose()

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	// ── Start the session ─────────────────────────────────────────────────────
	if err := client.Health(runCtx); err != nil {
		slog.Error("interview backend is not reachable", "url", cfg.Backend.URL, "err", err)
		return 1
	}

	if *sessionID != "" {
		err = seq.Resume(runCtx, *sessionID)
	} else {
		err = seq.Begin(runCtx, gateway.StartSessionRequest{
			CandidateName: *candidate,
			JobRole:       *role,
			NumQuestions:  *questions,
		})
	}
	if err != nil {
		slog.Error("failed to start interview", "err", err)
		return 1
	}

	// ── Run loops ─────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(runCtx)

	if *cfg.Feed.Enabled {
		srv := feed.NewServer(cfg.Feed.ListenAddr, hub, observe.DefaultMetrics(),
			health.Backend(client),
			health.Microphone(source),
		)
		g.Go(func() error { return srv.Run(gctx) })
	}

	ui := &terminal{seq: seq, hub: hub, finish: finish}
	g.Go(func() error {
		ui.loop(gctx, states, banners, transcripts)
		return nil
	})
	g.Go(func() error {
		ui.readCommands(gctx, os.Stdin)
		return nil
	})

	slog.Info("interview running — type \"help\" for commands")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	slog.Info("goodbye")
	return 0
}

// ── Terminal UI ───────────────────────────────────────────────────────────────

// terminal renders sequencer events to stdout and maps typed commands onto
// sequencer actions. It runs outside the sequencer lock and may call any of
// its methods.
type terminal struct {
	seq    *sequence.Sequencer
	hub    *feed.Hub
	finish context.CancelFunc
}

func (t *terminal) loop(ctx context.Context, states <-chan sequence.State, banners <-chan sequence.Banner, transcripts <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case st := <-states:
			t.onState(ctx, st)
			if st == sequence.StateCompleted {
				return
			}
		case b := <-banners:
			t.hub.Publish(feed.BannerEvent(b.Text, b.Severity.String()))
			fmt.Printf("[%s] %s\n", b.Severity, b.Text)
		case text := <-transcripts:
			t.hub.Publish(feed.TranscriptEvent(text, t.seq.Index()))
			fmt.Printf("\n--- transcript ---\n%s\n------------------\n", text)
		}
	}
}

func (t *terminal) onState(ctx context.Context, st sequence.State) {
	idx := t.seq.Index()
	t.hub.Publish(feed.StateEvent(st.String(), idx))

	switch st {
	case sequence.StateQuestionReady:
		q := t.seq.Question()
		t.hub.Publish(feed.QuestionEvent(q, idx))
		fmt.Printf("\nQuestion %d: %s\n", idx+1, q)
	case sequence.StateRecording:
		fmt.Println("recording — speak now, \"stop\" to finish early")
	case sequence.StateAwaitingDecision:
		fmt.Println("your answer is above — \"submit\", \"redo\" or \"skip\"?")
	case sequence.StateCompleted:
		t.printResults(ctx)
		t.finish()
	}
}

// printResults waits briefly for the best-effort results fetch to land.
func (t *terminal) printResults(ctx context.Context) {
	fmt.Println("\ninterview complete")
	deadline := time.Now().Add(3 * time.Second)
	for t.seq.Results() == nil && time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return
		case <-time.After(100 * time.Millisecond):
		}
	}
	if res := t.seq.Results(); res != nil {
		fmt.Printf("average score: %.1f\n", res.AverageScore)
		if res.Summary != "" {
			fmt.Printf("summary: %s\n", res.Summary)
		}
	}
}

func (t *terminal) readCommands(ctx context.Context, in *os.File) {
	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- strings.TrimSpace(sc.Text()):
			case <-ctx.Done():
				return
			}
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			t.dispatch(line)
		}
	}
}

func (t *terminal) dispatch(line string) {
	var err error
	switch strings.ToLower(line) {
	case "":
		return
	case "play", "p":
		err = t.seq.Play()
	case "stop":
		t.seq.StopRecording()
	case "submit", "s":
		err = t.seq.Submit()
	case "redo", "r":
		err = t.seq.Redo()
	case "skip", "k":
		err = t.seq.Skip()
	case "quit", "q":
		t.finish()
	case "help", "h", "?":
		fmt.Println("commands: play, stop, submit, redo, skip, quit")
	default:
		fmt.Printf("unknown command %q — type \"help\"\n", line)
		return
	}
	if err != nil {
		if errors.Is(err, sequence.ErrInvalidState) {
			fmt.Printf("not now — current state is %s\n", t.seq.State())
		} else {
			fmt.Printf("error: %v\n", err)
		}
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║       Voxterview — startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printSetting("Backend", cfg.Backend.URL)
	printSetting("Voice", cfg.Playback.Voice)
	device := cfg.Audio.Device
	if device == "" {
		device = "(default)"
	}
	printSetting("Microphone", device)
	printSetting("Encodings", strings.Join(cfg.Recording.Encodings, ", "))
	if *cfg.Feed.Enabled {
		printSetting("Feed", cfg.Feed.ListenAddr)
	} else {
		printSetting("Feed", "(disabled)")
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printSetting(name, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-14s  : %-19s ║\n", name, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level.Slog()}))
}
