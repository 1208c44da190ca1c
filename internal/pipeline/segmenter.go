// Package pipeline couples a frame-level voice-activity detector with the
// session state machine and surfaces the combined result to the rest of the
// service: debounced states, utterance boundaries, logs, and metrics.
//
// A [Segmenter] follows the same single-goroutine discipline as the machine
// it wraps: feed frames from one goroutine only, strictly in order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/voxkit/speechstate/internal/observe"
	"github.com/voxkit/speechstate/pkg/session"
	"github.com/voxkit/speechstate/pkg/vad"
)

// ErrNoDetector is returned by [Segmenter.ProcessFrame] when the segmenter
// was built without a detector. Decision-only callers use
// [Segmenter.ProcessDecision] instead.
var ErrNoDetector = errors.New("pipeline: no detector configured")

// Utterance describes one completed utterance, reported when the session
// reaches SPEECH_END.
type Utterance struct {
	// StartFrame is the 1-based index of the first voiced frame of the
	// utterance's onset run.
	StartFrame int

	// EndFrame is the 1-based index of the last voiced frame before the
	// utterance ended.
	EndFrame int

	// Duration spans StartFrame through EndFrame inclusive.
	Duration time.Duration
}

// UtteranceFunc receives completed utterances. It is invoked synchronously
// from ProcessFrame/ProcessDecision and must not feed frames back into the
// same segmenter.
type UtteranceFunc func(Utterance)

// Option configures a [Segmenter].
type Option func(*Segmenter)

// WithDetector attaches a frame-level detector, enabling
// [Segmenter.ProcessFrame] on raw PCM frames.
func WithDetector(d vad.Detector) Option {
	return func(s *Segmenter) { s.detector = d }
}

// WithMetrics overrides the metrics instance. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Segmenter) { s.metrics = m }
}

// WithLogger overrides the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(s *Segmenter) { s.log = l }
}

// WithUtteranceFunc registers fn to be called for every completed utterance.
func WithUtteranceFunc(fn UtteranceFunc) Option {
	return func(s *Segmenter) { s.onUtterance = fn }
}

// pendingTransition is a state change noted by the machine callback, drained
// after Process returns so metrics and logs carry the caller's context.
type pendingTransition struct {
	old, new session.State

	// oldStateDuration is how long the previous state lasted, captured
	// inside the callback while the machine still reports it.
	oldStateDuration time.Duration
}

// Segmenter feeds voice-activity decisions through a session machine and
// reports debounced states, transitions, and utterance boundaries.
type Segmenter struct {
	detector vad.Detector
	machine  *session.Machine
	metrics  *observe.Metrics
	log      *slog.Logger

	onUtterance UtteranceFunc
	pending     []pendingTransition
}

// New creates a segmenter for frames of hopSize samples at sampleRate Hz,
// classifying with the given session thresholds.
func New(hopSize, sampleRate int, cfg session.Config, opts ...Option) (*Segmenter, error) {
	s := &Segmenter{log: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}

	m, err := session.New(hopSize, sampleRate,
		session.WithConfig(cfg),
		session.WithTransitionFunc(s.noteTransition),
	)
	if err != nil {
		return nil, fmt.Errorf("pipeline: create machine: %w", err)
	}
	s.machine = m
	return s, nil
}

// noteTransition runs inside Machine.Process. It only records the change;
// metrics and logging happen when the pending list is drained, where the
// caller's context is available.
func (s *Segmenter) noteTransition(old, new session.State) {
	s.pending = append(s.pending, pendingTransition{
		old:              old,
		new:              new,
		oldStateDuration: s.machine.CurrentStateDuration(),
	})
}

// ProcessFrame runs the configured detector on one raw PCM frame and feeds
// the resulting decision into the session machine. Returns [ErrNoDetector]
// when the segmenter was created without [WithDetector].
func (s *Segmenter) ProcessFrame(ctx context.Context, frame []byte) (session.State, error) {
	if s.detector == nil {
		return session.StateSilence, ErrNoDetector
	}
	d, err := s.detector.DetectFrame(frame)
	if err != nil {
		return session.StateSilence, fmt.Errorf("pipeline: detect frame: %w", err)
	}
	return s.ProcessDecision(ctx, d)
}

// ProcessDecision feeds one already-made decision into the session machine.
// Use this when the detector runs elsewhere (e.g. on the client side of a
// stream) and only the (voiced, probability) pair reaches this process.
func (s *Segmenter) ProcessDecision(ctx context.Context, d vad.Decision) (session.State, error) {
	st, err := s.machine.Process(d.Voiced, d.Probability)
	if err != nil {
		return st, fmt.Errorf("pipeline: process decision: %w", err)
	}
	s.metrics.RecordFrame(ctx, d.Voiced)
	s.drainTransitions(ctx)
	return st, nil
}

// drainTransitions emits metrics, logs, and utterance callbacks for every
// state change noted during the last Process call. At most one entry exists
// per frame.
func (s *Segmenter) drainTransitions(ctx context.Context) {
	for _, tr := range s.pending {
		s.metrics.RecordTransition(ctx, tr.old.String(), tr.new.String())
		s.log.DebugContext(ctx, "session transition",
			"from", tr.old.String(),
			"to", tr.new.String(),
			"frame", s.machine.TotalFrames(),
		)

		switch {
		case tr.old == session.StateSpeechStart && tr.new == session.StateSilence:
			s.metrics.FalseTriggers.Add(ctx, 1)

		case tr.old == session.StateSpeechPause && tr.new == session.StateSpeechContinue:
			s.metrics.PauseDuration.Record(ctx, tr.oldStateDuration.Seconds())

		case tr.new == session.StateSpeechEnd:
			s.finishUtterance(ctx)
		}
	}
	s.pending = s.pending[:0]
}

// finishUtterance builds the Utterance record from the machine's diagnostic
// frame indices and reports it.
func (s *Segmenter) finishUtterance(ctx context.Context) {
	start := s.machine.SpeechStartFrame()
	end := s.machine.LastSpeechFrame()
	if start < 0 || end < start {
		return
	}
	u := Utterance{
		StartFrame: start,
		EndFrame:   end,
		Duration:   time.Duration(end-start+1) * s.machine.FrameDuration(),
	}
	s.metrics.UtteranceDuration.Record(ctx, u.Duration.Seconds())
	s.log.InfoContext(ctx, "utterance completed",
		"start_frame", u.StartFrame,
		"end_frame", u.EndFrame,
		"duration", u.Duration,
	)
	if s.onUtterance != nil {
		s.onUtterance(u)
	}
}

// State returns the current debounced session state.
func (s *Segmenter) State() session.State {
	return s.machine.CurrentState()
}

// StateDuration returns how long the session has been in its current state.
func (s *Segmenter) StateDuration() time.Duration {
	return s.machine.CurrentStateDuration()
}

// Machine exposes the underlying state machine for read-only inspection.
func (s *Segmenter) Machine() *session.Machine {
	return s.machine
}

// Reset restores the segmenter to its initial silent state, clearing both
// the machine and, when present, the detector's smoothing state.
func (s *Segmenter) Reset() {
	s.machine.Reset()
	if s.detector != nil {
		s.detector.Reset()
	}
	s.pending = s.pending[:0]
}

// Close releases the machine and the detector, if any. Safe to call more
// than once.
func (s *Segmenter) Close() error {
	errs := []error{s.machine.Close()}
	if s.detector != nil {
		errs = append(errs, s.detector.Close())
	}
	return errors.Join(errs...)
}
