// Package vad defines the boundary contract with frame-level voice-activity
// detectors.
//
// A detector is the algorithmic black box that classifies one fixed-size
// audio frame at a time: it emits a boolean voiced flag plus a speech
// probability. The session state machine (pkg/session) consumes exactly those
// two outputs and nothing else — how a backend computes them (Silero, WebRTC
// VAD, an energy gate) is out of scope for this module.
//
// Detection is synchronous by design: DetectFrame returns immediately with a
// [Decision], making it suitable for low-latency pipeline stages. A single
// [Detector] maintains per-stream state and must not be shared across
// goroutines unless the implementation documents otherwise; an [Engine] must
// be safe for concurrent NewDetector calls.
package vad

// Decision is the per-frame output of a detector: the pair the session state
// machine consumes.
type Decision struct {
	// Voiced reports whether the frame was classified as speech.
	Voiced bool

	// Probability is the detector's speech probability for the frame, in
	// [0, 1]. The state machine accepts it for observability but bases no
	// transition on it.
	Probability float64
}

// DetectorConfig holds the parameters for a detector instance.
type DetectorConfig struct {
	// SampleRate is the audio sample rate in Hz. Must match the rate of the
	// PCM frames passed to DetectFrame. Common values: 8000, 16000, 48000.
	SampleRate int

	// HopSize is the number of samples per frame. Detectors operate on fixed
	// frame sizes; DetectFrame returns an error when a supplied frame does
	// not match.
	HopSize int

	// Threshold is the probability above which a frame is classified as
	// voiced, in [0, 1]. Typical: 0.5.
	Threshold float64
}

// Detector is an active frame-level detector for a single audio stream. It is
// an interface so test code can supply scripted doubles without a live
// backend.
type Detector interface {
	// DetectFrame classifies a single audio frame and returns the decision.
	// The frame must be raw little-endian 16-bit PCM matching the configured
	// sample rate and hop size. It must not block.
	DetectFrame(frame []byte) (Decision, error)

	// Reset clears accumulated detection state (smoothing history, ring
	// buffers) without closing the detector. Use when the audio stream is
	// interrupted or restarted.
	Reset()

	// Close releases the detector's resources. Calling Close more than once
	// is safe and returns nil.
	Close() error
}

// Engine creates detectors. It is the top-level interface implemented by each
// detection backend and must be safe for concurrent use.
type Engine interface {
	// NewDetector creates a detector with the given configuration, ready to
	// accept frames. Returns an error when the configuration is invalid or
	// resources cannot be allocated.
	NewDetector(cfg DetectorConfig) (Detector, error)
}
