// Package config provides the configuration schema and loader for the
// Voxterview interview client.
package config

import (
	"cmp"
	"log/slog"
	"time"

	"github.com/voxterview/voxterview/internal/meter"
	"github.com/voxterview/voxterview/internal/record"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure. It is typically loaded from a
// YAML file using [Load] or [LoadFromReader]. Durations are expressed as
// integer milliseconds so the YAML stays plain numbers.
type Config struct {
	LogLevel  LogLevel        `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
	Backend   BackendConfig   `yaml:"backend"`
	Audio     AudioConfig     `yaml:"audio"`
	VAD       VADConfig       `yaml:"vad"`
	Recording RecordingConfig `yaml:"recording"`
	Playback  PlaybackConfig  `yaml:"playback"`
	Feed      FeedConfig      `yaml:"feed"`
}

// BackendConfig points at the interview service.
type BackendConfig struct {
	// URL is the service base URL, e.g. "http://localhost:8000".
	URL string `yaml:"url" validate:"required,url"`

	// TimeoutMs bounds generic API calls. Default 15000.
	TimeoutMs int64 `yaml:"timeout_ms" validate:"omitempty,gt=0"`

	// TranscribeTimeoutMs bounds clip uploads, which run through a full
	// speech-to-text pass server-side. Default 120000.
	TranscribeTimeoutMs int64 `yaml:"transcribe_timeout_ms" validate:"omitempty,gt=0"`

	// DetailedFeedback requests per-answer feedback with each transcription.
	DetailedFeedback bool `yaml:"detailed_feedback"`
}

// AudioConfig describes the capture device.
type AudioConfig struct {
	// Device is the capture device name. Empty selects the platform default.
	Device string `yaml:"device"`

	// SampleRate in Hz. Default 48000.
	SampleRate int `yaml:"sample_rate" validate:"omitempty,min=8000,max=192000"`

	// FrameSize is the number of samples per analysis buffer. Default 2048.
	FrameSize int `yaml:"frame_size" validate:"omitempty,min=128,max=16384"`
}

// VADConfig tunes the level meter thresholds.
type VADConfig struct {
	// SilenceRMS is the loudness below which a buffer counts as silence.
	SilenceRMS float64 `yaml:"silence_rms" validate:"omitempty,gt=0,lt=1"`

	// SpeechStartRMS is the higher bar confirming the candidate has started
	// speaking.
	SpeechStartRMS float64 `yaml:"speech_start_rms" validate:"omitempty,gt=0,lt=1"`

	// SilenceHangoverMs is how long continuous silence after speech must last
	// before the recording auto-stops. Default 3000.
	SilenceHangoverMs int64 `yaml:"silence_hangover_ms" validate:"omitempty,gt=0"`

	// NoiseRMS and NoiseZCR together classify a buffer as noise rather than
	// voiced speech.
	NoiseRMS float64 `yaml:"noise_rms" validate:"omitempty,gt=0,lt=1"`
	NoiseZCR float64 `yaml:"noise_zcr" validate:"omitempty,gt=0,lt=1"`

	// NoiseDurationMs is how long sustained noise must last before the
	// recording auto-stops. Default 5000.
	NoiseDurationMs int64 `yaml:"noise_duration_ms" validate:"omitempty,gt=0"`

	// LevelScale multiplies RMS for the displayed level. Default 2.5.
	LevelScale float64 `yaml:"level_scale" validate:"omitempty,gt=0"`
}

// RecordingConfig tunes clip capture and validation.
type RecordingConfig struct {
	// ChunkIntervalMs is the encoded-chunk boundary interval. Default 250.
	ChunkIntervalMs int64 `yaml:"chunk_interval_ms" validate:"omitempty,gte=100,lte=500"`

	// Encodings is the ordered encoder preference list. Default ["wav","opus"].
	Encodings []string `yaml:"encodings" validate:"omitempty,dive,oneof=wav opus"`

	// MinBytes rejects clips smaller than this. Default 2048.
	MinBytes int `yaml:"min_bytes" validate:"omitempty,gt=0"`

	// MinDurationMs rejects clips shorter than this. Default 700.
	MinDurationMs int64 `yaml:"min_duration_ms" validate:"omitempty,gt=0"`

	// MaxShortRetries caps the automatic replay loop for too-short clips.
	// Default 2.
	MaxShortRetries int `yaml:"max_short_retries" validate:"omitempty,gte=0,lte=10"`
}

// PlaybackConfig tunes question playback.
type PlaybackConfig struct {
	// Voice is the synthesis voice identifier. Default "en_US-amy-medium".
	Voice string `yaml:"voice"`

	// RecordDelayMs is the pause between playback end and recording start.
	// Default 500.
	RecordDelayMs int64 `yaml:"record_delay_ms" validate:"omitempty,gte=0"`
}

// FeedConfig controls the live feed server.
type FeedConfig struct {
	// Enabled turns the feed server on. Default true.
	Enabled *bool `yaml:"enabled"`

	// ListenAddr is the feed server address. Default "127.0.0.1:8090".
	ListenAddr string `yaml:"listen_addr" validate:"omitempty,hostname_port"`
}

// ApplyDefaults fills unset fields with their defaults.
func (c *Config) ApplyDefaults() {
	c.LogLevel = LogLevel(cmp.Or(string(c.LogLevel), string(LogInfo)))

	c.Backend.TimeoutMs = cmp.Or(c.Backend.TimeoutMs, 15000)
	c.Backend.TranscribeTimeoutMs = cmp.Or(c.Backend.TranscribeTimeoutMs, 120000)

	c.Audio.SampleRate = cmp.Or(c.Audio.SampleRate, 48000)
	c.Audio.FrameSize = cmp.Or(c.Audio.FrameSize, 2048)

	def := meter.DefaultConfig()
	c.VAD.SilenceRMS = cmp.Or(c.VAD.SilenceRMS, def.SilenceRMS)
	c.VAD.SpeechStartRMS = cmp.Or(c.VAD.SpeechStartRMS, def.SpeechStartRMS)
	c.VAD.SilenceHangoverMs = cmp.Or(c.VAD.SilenceHangoverMs, def.SilenceHangover.Milliseconds())
	c.VAD.NoiseRMS = cmp.Or(c.VAD.NoiseRMS, def.NoiseRMS)
	c.VAD.NoiseZCR = cmp.Or(c.VAD.NoiseZCR, def.NoiseZCR)
	c.VAD.NoiseDurationMs = cmp.Or(c.VAD.NoiseDurationMs, def.NoiseDuration.Milliseconds())
	c.VAD.LevelScale = cmp.Or(c.VAD.LevelScale, def.LevelScale)

	minClip := record.DefaultMinClip()
	c.Recording.ChunkIntervalMs = cmp.Or(c.Recording.ChunkIntervalMs, 250)
	if len(c.Recording.Encodings) == 0 {
		c.Recording.Encodings = []string{"wav", "opus"}
	}
	c.Recording.MinBytes = cmp.Or(c.Recording.MinBytes, minClip.Bytes)
	c.Recording.MinDurationMs = cmp.Or(c.Recording.MinDurationMs, minClip.Duration.Milliseconds())
	c.Recording.MaxShortRetries = cmp.Or(c.Recording.MaxShortRetries, 2)

	c.Playback.Voice = cmp.Or(c.Playback.Voice, "en_US-amy-medium")
	c.Playback.RecordDelayMs = cmp.Or(c.Playback.RecordDelayMs, int64(500))

	if c.Feed.Enabled == nil {
		enabled := true
		c.Feed.Enabled = &enabled
	}
	c.Feed.ListenAddr = cmp.Or(c.Feed.ListenAddr, "127.0.0.1:8090")
}

// MeterConfig converts the VAD section into level meter settings.
func (v VADConfig) MeterConfig() meter.Config {
	return meter.Config{
		SilenceRMS:      v.SilenceRMS,
		SpeechStartRMS:  v.SpeechStartRMS,
		SilenceHangover: time.Duration(v.SilenceHangoverMs) * time.Millisecond,
		NoiseRMS:        v.NoiseRMS,
		NoiseZCR:        v.NoiseZCR,
		NoiseDuration:   time.Duration(v.NoiseDurationMs) * time.Millisecond,
		LevelScale:      v.LevelScale,
	}
}

// MinClip converts the recording section into clip validation thresholds.
func (r RecordingConfig) MinClip() record.MinClip {
	return record.MinClip{
		Bytes:    r.MinBytes,
		Duration: time.Duration(r.MinDurationMs) * time.Millisecond,
	}
}

// ChunkInterval returns the chunk boundary interval as a duration.
func (r RecordingConfig) ChunkInterval() time.Duration {
	return time.Duration(r.ChunkIntervalMs) * time.Millisecond
}

// Timeout returns the generic API timeout as a duration.
func (b BackendConfig) Timeout() time.Duration {
	return time.Duration(b.TimeoutMs) * time.Millisecond
}

// TranscribeTimeout returns the clip upload timeout as a duration.
func (b BackendConfig) TranscribeTimeout() time.Duration {
	return time.Duration(b.TranscribeTimeoutMs) * time.Millisecond
}

// RecordDelay returns the post-playback pause as a duration.
func (p PlaybackConfig) RecordDelay() time.Duration {
	return time.Duration(p.RecordDelayMs) * time.Millisecond
}

// Slog maps the configured level onto slog's leveling.
func (l LogLevel) Slog() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
