package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, fills unset fields with the
// defaults from [Default], and validates the result. Useful in tests where
// configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills zero-valued fields with the values from [Default].
// Partial configs are the norm: a file that only tunes session thresholds
// should not have to restate the server address.
func applyDefaults(cfg *Config) {
	def := Default()

	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = def.Server.ListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = def.Server.LogLevel
	}
	if cfg.Audio.HopSize == 0 {
		cfg.Audio.HopSize = def.Audio.HopSize
	}
	if cfg.Audio.SampleRate == 0 {
		cfg.Audio.SampleRate = def.Audio.SampleRate
	}
	if cfg.Session.SpeechStartFrames == 0 {
		cfg.Session.SpeechStartFrames = def.Session.SpeechStartFrames
	}
	if cfg.Session.SpeechEndFrames == 0 {
		cfg.Session.SpeechEndFrames = def.Session.SpeechEndFrames
	}
	if cfg.Session.PauseFrames == 0 {
		cfg.Session.PauseFrames = def.Session.PauseFrames
	}
	if cfg.Session.PauseResumeFrames == 0 {
		cfg.Session.PauseResumeFrames = def.Session.PauseResumeFrames
	}
	if cfg.Session.MinSpeechDurationMS == 0 {
		cfg.Session.MinSpeechDurationMS = def.Session.MinSpeechDurationMS
	}
	if cfg.Session.MaxPauseDurationMS == 0 {
		cfg.Session.MaxPauseDurationMS = def.Session.MaxPauseDurationMS
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Audio.HopSize <= 0 {
		errs = append(errs, fmt.Errorf("audio.hop_size %d must be positive", cfg.Audio.HopSize))
	}
	if cfg.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must be positive", cfg.Audio.SampleRate))
	}

	if cfg.Session.SpeechStartFrames < 1 {
		errs = append(errs, fmt.Errorf("session.speech_start_frames %d must be at least 1", cfg.Session.SpeechStartFrames))
	}
	if cfg.Session.SpeechEndFrames < 1 {
		errs = append(errs, fmt.Errorf("session.speech_end_frames %d must be at least 1", cfg.Session.SpeechEndFrames))
	}
	if cfg.Session.PauseFrames < 1 {
		errs = append(errs, fmt.Errorf("session.pause_frames %d must be at least 1", cfg.Session.PauseFrames))
	}
	if cfg.Session.PauseResumeFrames < 1 {
		errs = append(errs, fmt.Errorf("session.pause_resume_frames %d must be at least 1", cfg.Session.PauseResumeFrames))
	}
	if cfg.Session.MinSpeechDurationMS < 0 {
		errs = append(errs, fmt.Errorf("session.min_speech_duration_ms %.1f must not be negative", cfg.Session.MinSpeechDurationMS))
	}
	if cfg.Session.MaxPauseDurationMS < 0 {
		errs = append(errs, fmt.Errorf("session.max_pause_duration_ms %.1f must not be negative", cfg.Session.MaxPauseDurationMS))
	}

	// A pause limit below the pause threshold means every pause ends the
	// utterance immediately. Legal, but almost certainly a tuning mistake.
	if cfg.Audio.HopSize > 0 && cfg.Audio.SampleRate > 0 {
		frameMS := float64(cfg.Audio.HopSize) * 1000 / float64(cfg.Audio.SampleRate)
		if pauseMS := float64(cfg.Session.PauseFrames) * frameMS; cfg.Session.MaxPauseDurationMS > 0 && cfg.Session.MaxPauseDurationMS <= pauseMS {
			slog.Warn("max pause duration does not exceed the pause threshold; pauses will end utterances immediately",
				"max_pause_duration_ms", cfg.Session.MaxPauseDurationMS,
				"pause_threshold_ms", pauseMS,
			)
		}
	}

	return errors.Join(errs...)
}
