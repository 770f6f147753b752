package record

import "errors"

var (
	// ErrAlreadyRecording is returned by Start while a recording session is
	// active. At most one session may exist at a time.
	ErrAlreadyRecording = errors.New("record: a recording is already active")

	// ErrDisposed is returned by Start after the controller has been torn
	// down with Dispose.
	ErrDisposed = errors.New("record: controller disposed")

	// ErrNoSupportedFormat is returned when no encoder in the configured
	// preference list supports the capture format.
	ErrNoSupportedFormat = errors.New("record: no supported recording format")

	// ErrClipTooShort marks a clip that failed minimum size or duration
	// validation. Such clips are never uploaded; the sequencer auto-retries
	// the question a bounded number of times.
	ErrClipTooShort = errors.New("record: recording too short")
)

// StopReason explains why a recording session ended.
type StopReason string

const (
	// ReasonManual is an explicit user stop.
	ReasonManual StopReason = "manual"

	// ReasonSilence is the VAD silence auto-stop.
	ReasonSilence StopReason = "silence"

	// ReasonNoise is the VAD sustained-noise auto-stop.
	ReasonNoise StopReason = "noise"

	// ReasonSkip is a stop caused by the user skipping the question. Clips
	// stopped for this reason are discarded without upload.
	ReasonSkip StopReason = "skip"

	// ReasonDisposed is a forced teardown stop (navigation away, shutdown).
	// No completion callback fires for disposed sessions.
	ReasonDisposed StopReason = "disposed"
)
