// Package sequence orchestrates an interview session end to end.
//
// The Sequencer owns the interview state machine and is the only component
// that decides transitions. Collaborators (question playback, answer
// recording, transcription, the backend store) report completions into it as
// events; the Sequencer checks the current state before acting on each one,
// so late or superseded completions fall through harmlessly.
//
// The flow for one question: play the synthesized question audio, wait a
// short delay after the audio ends, record the answer until the level meter
// or the candidate stops it, transcribe the clip, then hold the transcript
// until the candidate submits, redoes, or skips. Too-short clips replay the
// question automatically a bounded number of times. Network failures raise a
// banner and wait for an explicit retry; only the short-clip loop retries on
// its own.
package sequence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/voxterview/voxterview/internal/gateway"
	"github.com/voxterview/voxterview/internal/observe"
	"github.com/voxterview/voxterview/internal/record"
)

// ErrInvalidState is returned when a user action is not legal in the current
// state, e.g. submitting while no transcript is pending.
var ErrInvalidState = errors.New("sequence: action not valid in current state")

// Player plays synthesized question audio. Implemented by the playback
// controller; completion arrives via [Sequencer.PlaybackEnded].
type Player interface {
	Play(ctx context.Context, text string) error
	Stop()
}

// Recorder captures one answer clip at a time. Implemented by the recording
// controller; results arrive via [Sequencer.RecordingResult].
type Recorder interface {
	EnsureMic(ctx context.Context) error
	Start(ctx context.Context) error
	Stop(reason record.StopReason)
	Dispose()
}

// Transcriber uploads a validated clip and returns its transcript.
type Transcriber interface {
	Transcribe(ctx context.Context, clip record.Clip, ref gateway.AnswerRef) (gateway.Transcription, error)
}

// Store persists session state on the interview backend.
type Store interface {
	StartSession(ctx context.Context, req gateway.StartSessionRequest) (*gateway.Session, error)
	Session(ctx context.Context, sessionID string) (*gateway.Session, error)
	SubmitAnswer(ctx context.Context, sessionID string, questionIndex int, transcriptID string) error
	Results(ctx context.Context, sessionID string) (*gateway.Results, error)
}

// Config carries the collaborators and tunables for a Sequencer.
type Config struct {
	Player      Player
	Recorder    Recorder
	Transcriber Transcriber
	Store       Store

	// RecordDelay is the pause between question audio ending and the
	// microphone opening, keeping the playback tail out of the capture.
	// Default 500ms.
	RecordDelay time.Duration

	// MaxShortRetries caps the automatic replay-and-rerecord loop for
	// too-short clips, per question. Default 2.
	MaxShortRetries int

	// Detailed requests per-answer feedback with each transcription.
	Detailed bool

	// Metrics defaults to [observe.DefaultMetrics] when nil.
	Metrics *observe.Metrics
}

// Option customizes a Sequencer.
type Option func(*Sequencer)

// WithStateFunc registers fn to be called on every state change. fn runs on
// the sequencer's internal lock and must not call back into the Sequencer.
func WithStateFunc(fn func(State)) Option {
	return func(s *Sequencer) { s.onState = fn }
}

// WithBannerFunc registers fn for user-facing status messages. Same
// re-entrancy rule as [WithStateFunc].
func WithBannerFunc(fn func(Banner)) Option {
	return func(s *Sequencer) { s.onBanner = fn }
}

// WithTranscriptFunc registers fn to receive each pending transcript as it
// becomes available for a submit/redo decision.
func WithTranscriptFunc(fn func(text string)) Option {
	return func(s *Sequencer) { s.onTranscript = fn }
}

// Sequencer drives one interview session through the state machine.
type Sequencer struct {
	cfg          Config
	onState      func(State)
	onBanner     func(Banner)
	onTranscript func(string)

	mu       sync.Mutex
	ctx      context.Context
	state    State
	sess     *gateway.Session
	index    int
	pending  *gateway.Transcription
	retries  map[int]int
	results   *gateway.Results
	delay     *time.Timer
	epoch     int
	recActive bool
	disposed  bool
}

// New returns a Sequencer in [StateSetup].
func New(cfg Config, opts ...Option) *Sequencer {
	if cfg.RecordDelay <= 0 {
		cfg.RecordDelay = 500 * time.Millisecond
	}
	if cfg.MaxShortRetries <= 0 {
		cfg.MaxShortRetries = 2
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	s := &Sequencer{
		cfg:     cfg,
		state:   StateSetup,
		retries: make(map[int]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ─── session lifecycle ───

// Begin creates a new session on the backend, verifies microphone access, and
// starts playing the first question. ctx outlives the call: it bounds every
// async operation the sequencer performs for this session.
func (s *Sequencer) Begin(ctx context.Context, req gateway.StartSessionRequest) error {
	sess, err := s.cfg.Store.StartSession(ctx, req)
	if err != nil {
		return fmt.Errorf("sequence: start session: %w", err)
	}
	return s.install(ctx, sess)
}

// Resume fetches an existing session by ID and continues from its first
// question.
func (s *Sequencer) Resume(ctx context.Context, sessionID string) error {
	sess, err := s.cfg.Store.Session(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("sequence: fetch session: %w", err)
	}
	return s.install(ctx, sess)
}

func (s *Sequencer) install(ctx context.Context, sess *gateway.Session) error {
	if len(sess.Questions) == 0 {
		return fmt.Errorf("sequence: %w", gateway.ErrNoQuestions)
	}
	if err := s.cfg.Recorder.EnsureMic(ctx); err != nil {
		return fmt.Errorf("sequence: microphone unavailable: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateSetup {
		return fmt.Errorf("%w: session already started", ErrInvalidState)
	}
	s.ctx = ctx
	s.sess = sess
	s.index = 0

	slog.Info("interview session ready",
		"session_id", sess.ID,
		"questions", len(sess.Questions))

	s.setState(StateQuestionReady)
	s.startPlayback()
	return nil
}

// Dispose tears the session down unconditionally: playback stops, any active
// recording is discarded, the microphone is released. Safe to call at any
// time and never fails.
func (s *Sequencer) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	s.epoch++
	s.cancelDelay()
	if s.recActive {
		s.cfg.Metrics.ActiveRecordings.Add(s.baseCtx(), -1)
		s.recActive = false
	}
	s.mu.Unlock()

	s.cfg.Player.Stop()
	s.cfg.Recorder.Dispose()
}

// ─── user actions ───

// Play starts question playback from an idle question. Used for the explicit
// replay action; advancing to a new question plays it automatically.
func (s *Sequencer) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed || s.state != StateQuestionReady {
		return fmt.Errorf("%w: play from %s", ErrInvalidState, s.state)
	}
	s.startPlayback()
	return nil
}

// StopRecording ends the active recording on the candidate's request. No-op
// when nothing is recording.
func (s *Sequencer) StopRecording() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed || s.state != StateRecording {
		return
	}
	s.cfg.Recorder.Stop(record.ReasonManual)
}

// Submit persists the pending transcript as the answer for the current
// question and advances. On a network failure the transcript is kept and the
// decision state is restored so the candidate can retry.
func (s *Sequencer) Submit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed || s.state != StateAwaitingDecision || s.pending == nil {
		return fmt.Errorf("%w: submit from %s", ErrInvalidState, s.state)
	}
	s.setState(StateSubmitting)

	epoch, idx, transcriptID := s.epoch, s.index, s.pending.TranscriptID
	go s.submitAnswer(epoch, idx, transcriptID)
	return nil
}

// Redo discards the pending transcript and returns to the idle question so
// the candidate can replay and re-record. No network call is made; the same
// question index is reused.
func (s *Sequencer) Redo() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed || s.state != StateAwaitingDecision {
		return fmt.Errorf("%w: redo from %s", ErrInvalidState, s.state)
	}
	s.pending = nil
	s.banner("Answer discarded. Play the question to record again.", SeverityInfo)
	s.setState(StateQuestionReady)
	return nil
}

// Skip abandons the current question: playback and recording are halted, no
// transcription happens, and a skip marker is submitted before advancing.
func (s *Sequencer) Skip() error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return fmt.Errorf("%w: session disposed", ErrInvalidState)
	}
	switch s.state {
	case StateQuestionReady, StatePlayingQuestion, StateAwaitingRecording, StateRecording, StateAwaitingDecision:
	default:
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: skip from %s", ErrInvalidState, st)
	}

	s.epoch++
	s.cancelDelay()
	wasRecording := s.state == StateRecording
	s.pending = nil
	s.setState(StateSkipping)
	epoch, idx := s.epoch, s.index
	s.mu.Unlock()

	s.cfg.Player.Stop()
	if wasRecording {
		s.cfg.Recorder.Stop(record.ReasonSkip)
	}

	go s.submitSkip(epoch, idx)
	return nil
}

// ─── collaborator events ───

// PlaybackEnded is the playback controller's completion event. err is non-nil
// when the audio could not be played on any sink.
func (s *Sequencer) PlaybackEnded(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed || s.state != StatePlayingQuestion {
		return
	}
	if err != nil {
		s.banner("Could not play the question audio. Press play to try again.", SeverityError)
		slog.Error("question playback failed", "question", s.index, "error", err)
		s.setState(StateQuestionReady)
		return
	}

	s.setState(StateAwaitingRecording)
	epoch := s.epoch
	s.delay = time.AfterFunc(s.cfg.RecordDelay, func() { s.beginRecording(epoch) })
}

// beginRecording opens the microphone once the post-playback delay elapses.
func (s *Sequencer) beginRecording(epoch int) {
	s.mu.Lock()
	if epoch != s.epoch || s.state != StateAwaitingRecording {
		s.mu.Unlock()
		return
	}
	ctx := s.ctx
	s.mu.Unlock()

	err := s.cfg.Recorder.Start(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch || s.state != StateAwaitingRecording {
		if err == nil {
			// The question was skipped or torn down while the recorder was
			// opening; release the capture without reporting a result.
			s.cfg.Recorder.Stop(record.ReasonSkip)
		}
		return
	}
	if err != nil {
		s.banner("Could not start recording. Press play to try again.", SeverityError)
		slog.Error("recording start failed", "question", s.index, "error", err)
		s.setState(StateQuestionReady)
		return
	}

	s.cfg.Metrics.RecordingsStarted.Add(ctx, 1)
	s.cfg.Metrics.ActiveRecordings.Add(ctx, 1)
	s.recActive = true
	s.setState(StateRecording)
}

// RecordingResult is the recording controller's completion event, fired once
// per recording session.
func (s *Sequencer) RecordingResult(res record.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.recActive {
		s.cfg.Metrics.ActiveRecordings.Add(s.baseCtx(), -1)
		s.recActive = false
	}

	// Skip results are handled by the skip flow and disposal needs nothing.
	if res.Reason == record.ReasonSkip || res.Reason == record.ReasonDisposed {
		return
	}
	if s.disposed || s.state != StateRecording {
		return
	}

	if res.Reason == record.ReasonSilence || res.Reason == record.ReasonNoise {
		s.cfg.Metrics.RecordAutoStop(s.baseCtx(), string(res.Reason))
	}

	if res.Err != nil {
		if errors.Is(res.Err, record.ErrClipTooShort) {
			s.handleShortClip()
			return
		}
		s.banner("Recording failed. Press play to try again.", SeverityError)
		slog.Error("recording failed", "question", s.index, "error", res.Err)
		s.setState(StateQuestionReady)
		return
	}

	s.cfg.Metrics.RecordingDuration.Record(s.baseCtx(), res.Clip.Duration.Seconds())
	slog.Info("answer recorded",
		"question", s.index,
		"reason", res.Reason,
		"duration", res.Clip.Duration,
		"bytes", res.Clip.Size())

	s.setState(StateProcessingTranscript)
	epoch := s.epoch
	go s.transcribe(epoch, s.index, res.Clip)
}

// handleShortClip runs the bounded auto-retry loop for clips that failed
// minimum size/duration validation. Called with the lock held.
func (s *Sequencer) handleShortClip() {
	s.cfg.Metrics.ClipRejections.Add(s.baseCtx(), 1)
	s.retries[s.index]++
	if s.retries[s.index] <= s.cfg.MaxShortRetries {
		s.banner("That was too short. Listen to the question again.", SeverityWarning)
		slog.Warn("clip too short, replaying question",
			"question", s.index,
			"attempt", s.retries[s.index])
		s.startPlayback()
		return
	}
	s.banner("Recording was too short. Press play when you are ready to answer.", SeverityError)
	slog.Warn("clip too short, retry budget exhausted", "question", s.index)
	s.setState(StateQuestionReady)
}

// ─── async operations ───

// startPlayback transitions into playback and spawns the play call. Called
// with the lock held.
func (s *Sequencer) startPlayback() {
	s.setState(StatePlayingQuestion)
	epoch, text := s.epoch, s.sess.Questions[s.index]
	go s.playQuestion(epoch, text)
}

func (s *Sequencer) playQuestion(epoch int, text string) {
	start := time.Now()
	err := s.cfg.Player.Play(s.baseCtx(), text)
	s.cfg.Metrics.SynthesisDuration.Record(s.baseCtx(), time.Since(start).Seconds())

	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch {
		if err == nil {
			// Superseded while synthesizing; don't leave stale audio playing.
			s.cfg.Player.Stop()
		}
		return
	}
	if err != nil {
		s.banner("Could not fetch the question audio. Press play to try again.", SeverityError)
		slog.Error("question synthesis failed", "question", s.index, "error", err)
		s.setState(StateQuestionReady)
	}
	// On success the state stays StatePlayingQuestion until PlaybackEnded.
}

func (s *Sequencer) transcribe(epoch, idx int, clip record.Clip) {
	ctx := s.baseCtx()
	ref := gateway.AnswerRef{
		SessionID:     s.sessionID(),
		QuestionIndex: idx,
		Detailed:      s.cfg.Detailed,
	}

	start := time.Now()
	tr, err := s.cfg.Transcriber.Transcribe(ctx, clip, ref)
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.cfg.Metrics.RecordTranscription(ctx, time.Since(start), status)

	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch || s.state != StateProcessingTranscript {
		return
	}
	if err != nil {
		if errors.Is(err, gateway.ErrEmptyTranscript) {
			s.banner("No speech was recognized. Play the question and try again.", SeverityWarning)
			slog.Warn("empty transcript", "question", idx)
		} else {
			s.banner("Transcription failed. Press play to try again.", SeverityError)
			slog.Error("transcription failed", "question", idx, "error", err)
		}
		s.setState(StateQuestionReady)
		return
	}

	s.pending = &tr
	s.setState(StateAwaitingDecision)
	if s.onTranscript != nil {
		s.onTranscript(tr.Text)
	}
}

func (s *Sequencer) submitAnswer(epoch, idx int, transcriptID string) {
	ctx := s.baseCtx()
	err := s.cfg.Store.SubmitAnswer(ctx, s.sessionID(), idx, transcriptID)
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.cfg.Metrics.RecordBackendRequest(ctx, "submit", status)

	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch || s.state != StateSubmitting {
		return
	}
	if err != nil {
		s.banner("Could not submit the answer. Check your connection and submit again.", SeverityError)
		slog.Error("answer submit failed", "question", idx, "error", err)
		s.setState(StateAwaitingDecision)
		return
	}

	s.pending = nil
	s.cfg.Metrics.RecordQuestionCompleted(ctx, "submitted")
	slog.Info("answer submitted", "question", idx)
	s.advance()
}

func (s *Sequencer) submitSkip(epoch, idx int) {
	ctx := s.baseCtx()
	err := s.cfg.Store.SubmitAnswer(ctx, s.sessionID(), idx, "")
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.cfg.Metrics.RecordBackendRequest(ctx, "submit", status)

	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch || s.state != StateSkipping {
		return
	}
	if err != nil {
		s.banner("Could not record the skip. Check your connection and try again.", SeverityError)
		slog.Error("skip submit failed", "question", idx, "error", err)
		s.setState(StateQuestionReady)
		return
	}

	s.cfg.Metrics.RecordQuestionCompleted(ctx, "skipped")
	slog.Info("question skipped", "question", idx)
	s.advance()
}

// advance moves to the next question or completes the interview. Called with
// the lock held.
func (s *Sequencer) advance() {
	s.index++
	if s.index >= len(s.sess.Questions) {
		s.setState(StateCompleted)
		s.banner("Interview complete. Thank you!", SeverityInfo)
		go s.finalize(s.epoch)
		return
	}
	s.setState(StateQuestionReady)
	s.startPlayback()
}

// finalize fetches aggregate results once, best-effort. Failure is logged but
// never surfaced; the completed state stands regardless.
func (s *Sequencer) finalize(epoch int) {
	ctx := s.baseCtx()
	res, err := s.cfg.Store.Results(ctx, s.sessionID())
	if err != nil {
		slog.Warn("results fetch failed", "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch {
		return
	}
	s.results = res
	slog.Info("interview results",
		"average_score", res.AverageScore,
		"summary", res.Summary)
}

// ─── accessors ───

// State returns the current state.
func (s *Sequencer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Index returns the current question index.
func (s *Sequencer) Index() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

// Question returns the current question text, or "" when none is current.
func (s *Sequencer) Question() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess == nil || s.index >= len(s.sess.Questions) {
		return ""
	}
	return s.sess.Questions[s.index]
}

// Pending returns the transcript awaiting a submit/redo decision, or nil.
func (s *Sequencer) Pending() *gateway.Transcription {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return nil
	}
	cp := *s.pending
	return &cp
}

// Results returns the aggregate results once finalization has fetched them.
func (s *Sequencer) Results() *gateway.Results {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.results
}

// ─── helpers ───

// setState updates the state and notifies the observer. Called with the lock
// held.
func (s *Sequencer) setState(st State) {
	if s.state == st {
		return
	}
	s.state = st
	if s.onState != nil {
		s.onState(st)
	}
}

func (s *Sequencer) banner(text string, sev Severity) {
	if s.onBanner != nil {
		s.onBanner(Banner{Text: text, Severity: sev})
	}
}

func (s *Sequencer) cancelDelay() {
	if s.delay != nil {
		s.delay.Stop()
		s.delay = nil
	}
}

// baseCtx returns the session context, falling back to Background before a
// session is installed.
func (s *Sequencer) baseCtx() context.Context {
	if s.ctx != nil {
		return s.ctx
	}
	return context.Background()
}

func (s *Sequencer) sessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess == nil {
		return ""
	}
	return s.sess.ID
}
