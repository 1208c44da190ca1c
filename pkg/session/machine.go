package session

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidConfig is returned by [New] when the hop size, sample rate,
	// or a configured threshold makes the machine's timing arithmetic
	// meaningless.
	ErrInvalidConfig = errors.New("session: invalid configuration")

	// ErrClosed is returned by [Machine.Process] after [Machine.Close]. A
	// closed machine never reports a valid-looking state for new frames, so
	// caller bugs surface instead of being masked.
	ErrClosed = errors.New("session: machine is closed")
)

// noFrame is the sentinel value of the diagnostic frame indices before any
// voiced frame has been seen.
const noFrame = -1

// TransitionFunc is invoked synchronously from [Machine.Process] whenever the
// session state actually changes. It runs on the caller's goroutine, before
// Process returns, and must not call Process or Reset on the same machine.
//
// Context a caller would have passed through a C-style user-data pointer is
// instead captured by the closure.
type TransitionFunc func(old, new State)

// Option configures a [Machine] at creation time.
type Option func(*Machine)

// WithConfig replaces the default thresholds. The supplied Config is
// validated by [New].
func WithConfig(cfg Config) Option {
	return func(m *Machine) { m.cfg = cfg }
}

// WithTransitionFunc registers fn to be called on every state change.
func WithTransitionFunc(fn TransitionFunc) Option {
	return func(m *Machine) { m.onTransition = fn }
}

// Machine classifies a stream of per-frame voice-activity decisions into
// session states. It is purely reactive: state only advances when a frame is
// fed through [Machine.Process], and at most one transition occurs per frame.
//
// A Machine is not safe for concurrent use. Callers dispatching frames from
// multiple goroutines must serialise access themselves; the internal counters
// have no atomicity.
type Machine struct {
	cfg        Config
	hopSize    int
	sampleRate int

	// frameDurationMS is hopSize * 1000 / sampleRate, fixed for the
	// machine's lifetime. Kept in float64 milliseconds so fractional frame
	// durations (e.g. 480 samples at 44.1kHz) do not accumulate rounding
	// error in the duration comparisons.
	frameDurationMS float64

	onTransition TransitionFunc

	current  State
	previous State

	// speechFrames and silenceFrames are the current unbroken run-lengths.
	// Exactly one of them grows per frame; the other is zeroed.
	speechFrames  int
	silenceFrames int

	// totalFrames counts every frame processed since creation or Reset.
	totalFrames int

	// stateFrames counts frames since the last transition.
	stateFrames int

	// speechStartFrame is the index of the first voiced frame of the run
	// that triggered the current onset; lastSpeechFrame is the most recent
	// voiced frame seen. Both are noFrame until speech occurs.
	speechStartFrame int
	lastSpeechFrame  int

	closed bool
}

// New creates a machine for frames of hopSize samples at sampleRate Hz,
// starting in [StateSilence]. Without [WithConfig] the thresholds from
// [DefaultConfig] apply.
//
// Returns [ErrInvalidConfig] when hopSize or sampleRate is not positive
// (the frame duration would be undefined) or when a supplied Config fails
// validation.
func New(hopSize, sampleRate int, opts ...Option) (*Machine, error) {
	if hopSize <= 0 {
		return nil, fmt.Errorf("%w: hop size %d must be positive", ErrInvalidConfig, hopSize)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate %d must be positive", ErrInvalidConfig, sampleRate)
	}

	m := &Machine{
		cfg:             DefaultConfig(),
		hopSize:         hopSize,
		sampleRate:      sampleRate,
		frameDurationMS: float64(hopSize) * 1000 / float64(sampleRate),
	}
	for _, opt := range opts {
		opt(m)
	}
	if err := m.cfg.validate(); err != nil {
		return nil, err
	}

	m.reset()
	return m, nil
}

// Process feeds one frame decision into the machine and returns the resulting
// session state. Frames must be fed strictly in order, one call per frame.
//
// probability is the detector's speech probability for the frame. It is
// accepted for observability and future use but plays no role in any
// transition decision; only voiced does.
//
// When the frame completes a transition, the registered [TransitionFunc] is
// invoked before Process returns.
func (m *Machine) Process(voiced bool, probability float64) (State, error) {
	if m.closed {
		return StateSilence, ErrClosed
	}
	_ = probability

	m.totalFrames++
	m.stateFrames++

	if voiced {
		m.speechFrames++
		m.silenceFrames = 0
		m.lastSpeechFrame = m.totalFrames
	} else {
		m.silenceFrames++
		m.speechFrames = 0
	}

	next, changed := m.next(voiced)
	if changed {
		if next == StateSpeechStart {
			// Backdate the onset to the first voiced frame of the run that
			// triggered it.
			m.speechStartFrame = m.totalFrames - m.speechFrames + 1
		}
		m.transition(next)
	}
	return m.current, nil
}

// next evaluates the transition table for the current state against the
// already-updated run-length counters. Conditions are checked top to bottom;
// the first satisfied condition wins and no further conditions are evaluated
// for this frame.
func (m *Machine) next(voiced bool) (State, bool) {
	switch m.current {
	case StateSilence:
		if m.speechFrames >= m.cfg.SpeechStartFrames {
			return StateSpeechStart, true
		}

	case StateSpeechStart:
		if voiced {
			// Any further voiced frame promotes the onset to continuous
			// speech immediately.
			return StateSpeechContinue, true
		}
		if m.silenceFrames >= m.cfg.SpeechEndFrames {
			if float64(m.stateFrames)*m.frameDurationMS < millis(m.cfg.MinSpeechDuration) {
				// Too short to be real speech: false trigger, collapse back
				// to silence rather than reporting an end.
				return StateSilence, true
			}
			return StateSpeechEnd, true
		}

	case StateSpeechContinue:
		if m.silenceFrames >= m.cfg.PauseFrames {
			return StateSpeechPause, true
		}

	case StateSpeechPause:
		// Resume takes priority over the max-pause check.
		if m.speechFrames >= m.cfg.PauseResumeFrames {
			return StateSpeechContinue, true
		}
		if float64(m.silenceFrames)*m.frameDurationMS >= millis(m.cfg.MaxPauseDuration) {
			return StateSpeechEnd, true
		}

	case StateSpeechEnd:
		if m.speechFrames >= m.cfg.SpeechStartFrames {
			return StateSpeechStart, true
		}
		return StateSilence, true
	}

	return m.current, false
}

// transition records a state change and notifies the registered callback.
// A resolved next state equal to the current one is a no-op and does not
// invoke the callback.
func (m *Machine) transition(next State) {
	if next == m.current {
		return
	}
	old := m.current
	m.previous = old
	m.current = next
	if m.onTransition != nil {
		m.onTransition(old, next)
	}
	m.stateFrames = 0
}

// CurrentState returns the session state after the most recent frame. Pure
// read, no side effects.
func (m *Machine) CurrentState() State {
	return m.current
}

// PreviousState returns the state before the most recent transition. Before
// the first transition it is [StateSilence].
func (m *Machine) PreviousState() State {
	return m.previous
}

// CurrentStateDuration returns how long the machine has been in its current
// state, i.e. frames since the last transition times the frame duration.
func (m *Machine) CurrentStateDuration() time.Duration {
	return time.Duration(float64(m.stateFrames) * m.frameDurationMS * float64(time.Millisecond))
}

// FrameDuration returns the fixed duration of one frame, derived from the hop
// size and sample rate at creation.
func (m *Machine) FrameDuration() time.Duration {
	return time.Duration(m.frameDurationMS * float64(time.Millisecond))
}

// TotalFrames returns the number of frames processed since creation or the
// last [Machine.Reset]. It increases monotonically.
func (m *Machine) TotalFrames() int {
	return m.totalFrames
}

// SpeechFrames returns the length of the current unbroken run of voiced
// frames. Zero while the most recent frame was silent.
func (m *Machine) SpeechFrames() int {
	return m.speechFrames
}

// SilenceFrames returns the length of the current unbroken run of silent
// frames. Zero while the most recent frame was voiced.
func (m *Machine) SilenceFrames() int {
	return m.silenceFrames
}

// SpeechStartFrame returns the 1-based index of the first voiced frame of the
// run that triggered the current or most recent onset, or -1 when no onset
// has occurred yet. Diagnostic only.
func (m *Machine) SpeechStartFrame() int {
	return m.speechStartFrame
}

// LastSpeechFrame returns the 1-based index of the most recent voiced frame,
// or -1 when none has been seen. Diagnostic only.
func (m *Machine) LastSpeechFrame() int {
	return m.lastSpeechFrame
}

// Reset returns all mutable session state to its creation-time values:
// [StateSilence], all counters zero, frame-index sentinels restored. The
// configuration and frame duration are untouched and the transition callback
// is not invoked. Resetting an already-reset machine is a no-op.
func (m *Machine) Reset() {
	if m.closed {
		return
	}
	m.reset()
}

// reset restores initial session state. Shared by New and Reset.
func (m *Machine) reset() {
	m.current = StateSilence
	m.previous = StateSilence
	m.speechFrames = 0
	m.silenceFrames = 0
	m.totalFrames = 0
	m.stateFrames = 0
	m.speechStartFrame = noFrame
	m.lastSpeechFrame = noFrame
}

// Close marks the machine as unusable. Subsequent [Machine.Process] calls
// return [ErrClosed]. Calling Close more than once is safe and returns nil;
// there are no resources to reclaim beyond the machine's own memory.
func (m *Machine) Close() error {
	m.closed = true
	return nil
}

// millis converts d to float64 milliseconds, preserving sub-millisecond
// precision.
func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
