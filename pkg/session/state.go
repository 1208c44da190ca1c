// Package session implements the speech-session state machine that turns a
// stream of per-frame voice-activity decisions into debounced, hysteresis-
// protected session states.
//
// A frame-level detector (see the vad package) classifies each fixed-size
// audio frame as voiced or silent and attaches a speech probability. Raw
// frame decisions flicker; consumers such as transcription or conferencing
// pipelines want stable boundaries instead: silence, speech onset, continuous
// speech, a mid-utterance pause, and speech end. The [Machine] applies
// minimum run-lengths and duration limits so that a single stray frame never
// flips the session state.
//
// The machine is synchronous and single-threaded by design: [Machine.Process]
// must be called once per frame, in frame order, from one goroutine (or under
// external serialisation). Each machine is independent; no synchronisation is
// needed between machines.
package session

// State is the debounced speech-session state reported by a [Machine].
//
// The zero value is [StateSilence], which is also the initial state of every
// machine.
type State int

const (
	// StateSilence means no speech activity is in progress.
	StateSilence State = iota

	// StateSpeechStart means enough consecutive voiced frames arrived to
	// declare a speech onset, but the utterance is not yet confirmed as
	// continuous speech.
	StateSpeechStart

	// StateSpeechContinue means the speaker is actively talking.
	StateSpeechContinue

	// StateSpeechPause means a short silent gap was detected inside an
	// utterance. The session resumes on renewed speech or ends when the
	// pause outlasts the configured maximum.
	StateSpeechPause

	// StateSpeechEnd means the utterance has ended. The machine leaves this
	// state on the very next frame, either back to silence or into a new
	// onset.
	StateSpeechEnd
)

// String returns the stable label for s: "SILENCE", "SPEECH_START",
// "SPEECH_CONTINUE", "SPEECH_PAUSE", or "SPEECH_END". Out-of-range values
// yield "UNKNOWN"; this is defensive only and unreachable for states produced
// by a [Machine].
func (s State) String() string {
	switch s {
	case StateSilence:
		return "SILENCE"
	case StateSpeechStart:
		return "SPEECH_START"
	case StateSpeechContinue:
		return "SPEECH_CONTINUE"
	case StateSpeechPause:
		return "SPEECH_PAUSE"
	case StateSpeechEnd:
		return "SPEECH_END"
	}
	return "UNKNOWN"
}

// IsValid reports whether s is one of the five defined session states.
func (s State) IsValid() bool {
	return s >= StateSilence && s <= StateSpeechEnd
}

// Active reports whether s belongs to an utterance in progress, i.e. onset,
// continuous speech, or a mid-utterance pause.
func (s State) Active() bool {
	switch s {
	case StateSpeechStart, StateSpeechContinue, StateSpeechPause:
		return true
	}
	return false
}
