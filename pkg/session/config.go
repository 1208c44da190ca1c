package session

import (
	"fmt"
	"time"
)

// Config holds the debouncing thresholds of a [Machine]. All frame counts
// refer to consecutive frames of the same classification (run-lengths); both
// durations are compared against elapsed frame time derived from the
// machine's hop size and sample rate.
//
// A Config is immutable once a machine has been created with it.
type Config struct {
	// SpeechStartFrames is the number of consecutive voiced frames required
	// to leave silence and declare a speech onset.
	SpeechStartFrames int

	// SpeechEndFrames is the number of consecutive silent frames required,
	// while in the onset state, to abandon or close the utterance.
	SpeechEndFrames int

	// PauseFrames is the number of consecutive silent frames required, during
	// continuous speech, to declare a mid-utterance pause.
	PauseFrames int

	// PauseResumeFrames is the number of consecutive voiced frames required,
	// while paused, to resume continuous speech.
	PauseResumeFrames int

	// MinSpeechDuration is the minimum time spent in the onset state below
	// which a would-be speech end is treated as a false trigger and the
	// machine collapses back to silence instead of reporting an end.
	MinSpeechDuration time.Duration

	// MaxPauseDuration is the maximum silent time tolerated while paused.
	// Once exceeded the utterance is declared ended.
	MaxPauseDuration time.Duration
}

// DefaultConfig returns the documented default thresholds: 3 frames to start,
// 10 silent frames to end an onset, 5 frames to pause, 2 frames to resume,
// 200ms minimum speech, and a 1s maximum pause.
//
// At the common 16kHz/256-sample frame geometry (16ms frames) this means
// speech starts after 48ms of voiced audio and pauses after 80ms of silence.
func DefaultConfig() Config {
	return Config{
		SpeechStartFrames: 3,
		SpeechEndFrames:   10,
		PauseFrames:       5,
		PauseResumeFrames: 2,
		MinSpeechDuration: 200 * time.Millisecond,
		MaxPauseDuration:  time.Second,
	}
}

// validate reports the first problem with c, or nil when all thresholds are
// usable.
func (c Config) validate() error {
	if c.SpeechStartFrames < 1 {
		return fmt.Errorf("%w: speech start frames %d must be at least 1", ErrInvalidConfig, c.SpeechStartFrames)
	}
	if c.SpeechEndFrames < 1 {
		return fmt.Errorf("%w: speech end frames %d must be at least 1", ErrInvalidConfig, c.SpeechEndFrames)
	}
	if c.PauseFrames < 1 {
		return fmt.Errorf("%w: pause frames %d must be at least 1", ErrInvalidConfig, c.PauseFrames)
	}
	if c.PauseResumeFrames < 1 {
		return fmt.Errorf("%w: pause resume frames %d must be at least 1", ErrInvalidConfig, c.PauseResumeFrames)
	}
	if c.MinSpeechDuration < 0 {
		return fmt.Errorf("%w: min speech duration %s must not be negative", ErrInvalidConfig, c.MinSpeechDuration)
	}
	if c.MaxPauseDuration < 0 {
		return fmt.Errorf("%w: max pause duration %s must not be negative", ErrInvalidConfig, c.MaxPauseDuration)
	}
	return nil
}
