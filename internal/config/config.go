// Package config provides the configuration schema and loader for the
// speechstate service.
package config

import (
	"time"

	"github.com/voxkit/speechstate/pkg/session"
)

// LogLevel controls log verbosity for the speechstate server.
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

// Config is the root configuration structure for speechstate.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Audio   AudioConfig   `yaml:"audio"`
	Session SessionConfig `yaml:"session"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// AudioConfig describes the frame geometry of the incoming decision stream.
// The session machine derives its frame duration from these two values.
type AudioConfig struct {
	// HopSize is the number of samples per frame. Must be positive.
	HopSize int `yaml:"hop_size"`

	// SampleRate is the audio sample rate in Hz. Must be positive.
	SampleRate int `yaml:"sample_rate"`
}

// SessionConfig holds the debouncing thresholds of the session state machine.
// Durations are expressed in milliseconds to match how detector frame timing
// is usually quoted.
type SessionConfig struct {
	// SpeechStartFrames is the number of consecutive voiced frames required
	// to declare a speech onset.
	SpeechStartFrames int `yaml:"speech_start_frames"`

	// SpeechEndFrames is the number of consecutive silent frames required,
	// during an onset, to abandon or close the utterance.
	SpeechEndFrames int `yaml:"speech_end_frames"`

	// PauseFrames is the number of consecutive silent frames required,
	// during continuous speech, to declare a pause.
	PauseFrames int `yaml:"pause_frames"`

	// PauseResumeFrames is the number of consecutive voiced frames required,
	// while paused, to resume continuous speech.
	PauseResumeFrames int `yaml:"pause_resume_frames"`

	// MinSpeechDurationMS is the minimum onset duration in milliseconds
	// below which a would-be end is discarded as a false trigger.
	MinSpeechDurationMS float64 `yaml:"min_speech_duration_ms"`

	// MaxPauseDurationMS is the maximum pause duration in milliseconds
	// before the utterance is declared ended.
	MaxPauseDurationMS float64 `yaml:"max_pause_duration_ms"`
}

// Default returns the configuration used when no file is supplied: a server
// on :8080 at info level, the common 16kHz/256-sample frame geometry, and the
// session machine defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":8080",
			LogLevel:   LogInfo,
		},
		Audio: AudioConfig{
			HopSize:    256,
			SampleRate: 16000,
		},
		Session: fromSession(session.DefaultConfig()),
	}
}

// ToSession converts c into the session package's Config.
func (c SessionConfig) ToSession() session.Config {
	return session.Config{
		SpeechStartFrames: c.SpeechStartFrames,
		SpeechEndFrames:   c.SpeechEndFrames,
		PauseFrames:       c.PauseFrames,
		PauseResumeFrames: c.PauseResumeFrames,
		MinSpeechDuration: time.Duration(c.MinSpeechDurationMS * float64(time.Millisecond)),
		MaxPauseDuration:  time.Duration(c.MaxPauseDurationMS * float64(time.Millisecond)),
	}
}

// fromSession converts a session.Config into the YAML-facing schema.
func fromSession(sc session.Config) SessionConfig {
	return SessionConfig{
		SpeechStartFrames:   sc.SpeechStartFrames,
		SpeechEndFrames:     sc.SpeechEndFrames,
		PauseFrames:         sc.PauseFrames,
		PauseResumeFrames:   sc.PauseResumeFrames,
		MinSpeechDurationMS: float64(sc.MinSpeechDuration) / float64(time.Millisecond),
		MaxPauseDurationMS:  float64(sc.MaxPauseDuration) / float64(time.Millisecond),
	}
}
