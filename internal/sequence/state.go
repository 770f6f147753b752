package sequence

// State is one phase of the interview flow. The sequencer owns a single State
// value and every event handler checks it before acting, so overlapping async
// completions (playback end, recording result, network responses) cannot
// double-drive the flow.
type State int

const (
	// StateSetup is the initial state before a session is loaded.
	StateSetup State = iota

	// StateQuestionReady means a question is current and idle, waiting for
	// playback to begin.
	StateQuestionReady

	// StatePlayingQuestion means question audio is being synthesized or played.
	StatePlayingQuestion

	// StateAwaitingRecording is the short gap between playback end and
	// recording start that keeps the playback tail out of the capture.
	StateAwaitingRecording

	// StateRecording means the microphone is live.
	StateRecording

	// StateProcessingTranscript means a clip is being transcribed.
	StateProcessingTranscript

	// StateAwaitingDecision means a transcript is pending and the candidate
	// decides to submit or redo.
	StateAwaitingDecision

	// StateSubmitting means the answer is being persisted.
	StateSubmitting

	// StateSkipping means a skip marker is being persisted.
	StateSkipping

	// StateCompleted is terminal; every question was submitted or skipped.
	StateCompleted
)

var stateNames = map[State]string{
	StateSetup:                "setup",
	StateQuestionReady:        "question_ready",
	StatePlayingQuestion:      "playing_question",
	StateAwaitingRecording:    "awaiting_recording",
	StateRecording:            "recording",
	StateProcessingTranscript: "processing_transcript",
	StateAwaitingDecision:     "awaiting_decision",
	StateSubmitting:           "submitting",
	StateSkipping:             "skipping",
	StateCompleted:            "completed",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

// Severity grades a banner message.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "info"
	}
}

// Banner is one user-facing status message. The sequencer is the only
// component that emits banners; collaborator errors all funnel through it.
type Banner struct {
	Text     string
	Severity Severity
}
