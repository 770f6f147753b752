// Package meter turns raw PCM buffers into loudness levels and voice-activity
// signals that drive recording auto-stop.
//
// The meter computes two statistics per buffer: RMS (loudness) and the
// zero-crossing rate (noisiness). A small per-recording state machine decides
// when the speaker has started talking, when they have gone silent long enough
// to stop, and when the signal is sustained noise (static, feedback) rather
// than speech.
//
// The meter is driven by the stream clock carried on each buffer, never by
// wall time, so its behaviour is fully deterministic under test.
//
// A Meter belongs to a single recording session and is not safe for concurrent
// use; create a fresh one (or call Reset) per session.
package meter

import (
	"math"
	"time"
)

// Trigger identifies which auto-stop condition fired.
type Trigger int

const (
	// TriggerNone means no auto-stop condition is met.
	TriggerNone Trigger = iota

	// TriggerSilence means the speaker stayed quiet for the full hangover
	// window after having spoken.
	TriggerSilence

	// TriggerNoise means the signal was sustained loud noise for the full
	// noise window, independent of the silence path.
	TriggerNoise
)

// String returns the reason label used in logs and stop callbacks.
func (t Trigger) String() string {
	switch t {
	case TriggerSilence:
		return "silence"
	case TriggerNoise:
		return "noise"
	default:
		return "none"
	}
}

// Config holds the VAD thresholds. All values are tunable; the defaults come
// from observed behaviour of real interview recordings.
type Config struct {
	// SilenceRMS is the loudness below which a buffer counts as silence.
	SilenceRMS float64

	// SpeechStartRMS is the higher bar a buffer must clear before the session
	// counts as "speaking" at all. Separating this from SilenceRMS prevents
	// room noise from arming the silence timer before the candidate has said
	// anything.
	SpeechStartRMS float64

	// SilenceHangover is how long continuous near-silence must last, after
	// speech has started, before the silence trigger fires. Larger values
	// tolerate natural pauses at the cost of responsiveness.
	SilenceHangover time.Duration

	// NoiseRMS and NoiseZCR together classify a buffer as noise: loud and
	// dense with sign changes (static or feedback rather than voiced speech).
	NoiseRMS float64
	NoiseZCR float64

	// NoiseDuration is how long sustained noise must last before the noise
	// trigger fires.
	NoiseDuration time.Duration

	// LevelScale multiplies the raw RMS for the display level so the visual
	// meter reacts visibly to normal speech. 0 means no scaling.
	LevelScale float64
}

// DefaultConfig returns the thresholds used when none are configured.
func DefaultConfig() Config {
	return Config{
		SilenceRMS:      0.012,
		SpeechStartRMS:  0.03,
		SilenceHangover: 3 * time.Second,
		NoiseRMS:        0.3,
		NoiseZCR:        0.5,
		NoiseDuration:   5 * time.Second,
		LevelScale:      2.5,
	}
}

// Update is the result of processing one buffer.
type Update struct {
	// RMS is the root-mean-square loudness of the buffer.
	RMS float64

	// ZCR is the fraction of consecutive sample pairs that changed sign.
	ZCR float64

	// Level is RMS scaled for display, clamped to [0, 1].
	Level float64

	// Speaking reports whether speech has been detected at any point in the
	// session so far.
	Speaking bool

	// Stop is the auto-stop trigger that fired on this buffer, if any. A
	// trigger fires at most once per session.
	Stop Trigger
}

// Meter is the per-recording VAD state machine.
type Meter struct {
	cfg Config

	hasSpoken    bool
	silenceSince time.Duration
	silenceOpen  bool
	noiseSince   time.Duration
	noiseOpen    bool
	fired        bool
}

// New creates a Meter. Zero thresholds in cfg are replaced with defaults.
func New(cfg Config) *Meter {
	def := DefaultConfig()
	if cfg.SilenceRMS == 0 {
		cfg.SilenceRMS = def.SilenceRMS
	}
	if cfg.SpeechStartRMS == 0 {
		cfg.SpeechStartRMS = def.SpeechStartRMS
	}
	if cfg.SilenceHangover == 0 {
		cfg.SilenceHangover = def.SilenceHangover
	}
	if cfg.NoiseRMS == 0 {
		cfg.NoiseRMS = def.NoiseRMS
	}
	if cfg.NoiseZCR == 0 {
		cfg.NoiseZCR = def.NoiseZCR
	}
	if cfg.NoiseDuration == 0 {
		cfg.NoiseDuration = def.NoiseDuration
	}
	if cfg.LevelScale == 0 {
		cfg.LevelScale = def.LevelScale
	}
	return &Meter{cfg: cfg}
}

// Reset clears all session state so the meter can serve a new recording.
func (m *Meter) Reset() {
	m.hasSpoken = false
	m.silenceOpen = false
	m.noiseOpen = false
	m.fired = false
}

// Process analyses one buffer captured at stream time `at` and returns the
// level plus any auto-stop trigger. Once a trigger has fired the meter goes
// quiet; callers are expected to stop the recording.
func (m *Meter) Process(samples []float32, at time.Duration) Update {
	rms := RMS(samples)
	zcr := ZCR(samples)

	u := Update{
		RMS:   rms,
		ZCR:   zcr,
		Level: math.Min(rms*m.cfg.LevelScale, 1),
	}

	if m.fired {
		u.Speaking = m.hasSpoken
		return u
	}

	// Noise path: independent of speech detection.
	if rms > m.cfg.NoiseRMS && zcr > m.cfg.NoiseZCR {
		if !m.noiseOpen {
			m.noiseOpen = true
			m.noiseSince = at
		} else if at-m.noiseSince >= m.cfg.NoiseDuration {
			m.fired = true
			u.Stop = TriggerNoise
		}
	} else {
		m.noiseOpen = false
	}

	// Silence path: armed only once speech has been confirmed.
	if !m.hasSpoken {
		if rms > m.cfg.SpeechStartRMS {
			m.hasSpoken = true
		}
	} else if rms < m.cfg.SilenceRMS {
		if !m.silenceOpen {
			m.silenceOpen = true
			m.silenceSince = at
		} else if u.Stop == TriggerNone && at-m.silenceSince >= m.cfg.SilenceHangover {
			m.fired = true
			u.Stop = TriggerSilence
		}
	} else {
		// Any non-silent buffer clears the hangover timer.
		m.silenceOpen = false
	}

	u.Speaking = m.hasSpoken
	return u
}

// RMS computes the root-mean-square loudness of a sample buffer.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// ZCR computes the zero-crossing rate: the fraction of consecutive sample
// pairs whose signs differ.
func ZCR(samples []float32) float64 {
	if len(samples) < 2 {
		return 0
	}
	crossings := 0
	for i := 1; i < len(samples); i++ {
		if (samples[i-1] >= 0) != (samples[i] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(samples))
}
