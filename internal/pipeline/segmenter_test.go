package pipeline_test

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/voxkit/speechstate/internal/observe"
	"github.com/voxkit/speechstate/internal/pipeline"
	"github.com/voxkit/speechstate/pkg/session"
	"github.com/voxkit/speechstate/pkg/vad"
	vadmock "github.com/voxkit/speechstate/pkg/vad/mock"
)

// newTestMetrics builds an isolated Metrics instance with a manual reader so
// tests can assert recorded values.
func newTestMetrics(t *testing.T) (*observe.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func findMetric(t *testing.T, reader *sdkmetric.ManualReader, name string) *metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// decisions builds a scripted decision sequence: n entries with the given
// voiced flag.
func decisions(voiced bool, n int) []vad.Decision {
	prob := 0.1
	if voiced {
		prob = 0.9
	}
	out := make([]vad.Decision, n)
	for i := range out {
		out[i] = vad.Decision{Voiced: voiced, Probability: prob}
	}
	return out
}

func TestProcessFrame_DetectorDrivesStates(t *testing.T) {
	t.Parallel()
	metrics, _ := newTestMetrics(t)
	det := &vadmock.Detector{Decisions: decisions(true, 3)}

	seg, err := pipeline.New(256, 16000, session.DefaultConfig(),
		pipeline.WithDetector(det),
		pipeline.WithMetrics(metrics),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	frame := make([]byte, 512)
	var st session.State
	for i := 0; i < 3; i++ {
		st, err = seg.ProcessFrame(ctx, frame)
		if err != nil {
			t.Fatalf("ProcessFrame %d: %v", i+1, err)
		}
	}
	if st != session.StateSpeechStart {
		t.Fatalf("state = %v, want SPEECH_START", st)
	}
	if got := len(det.DetectFrameCalls); got != 3 {
		t.Errorf("detector received %d frames, want 3", got)
	}
}

func TestProcessFrame_NoDetector(t *testing.T) {
	t.Parallel()
	metrics, _ := newTestMetrics(t)
	seg, err := pipeline.New(256, 16000, session.DefaultConfig(), pipeline.WithMetrics(metrics))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := seg.ProcessFrame(context.Background(), make([]byte, 512)); !errors.Is(err, pipeline.ErrNoDetector) {
		t.Fatalf("err = %v, want ErrNoDetector", err)
	}
}

func TestProcessFrame_WrapsDetectorError(t *testing.T) {
	t.Parallel()
	metrics, _ := newTestMetrics(t)
	detErr := errors.New("model load failed")
	det := &vadmock.Detector{DetectFrameErr: detErr}

	seg, err := pipeline.New(256, 16000, session.DefaultConfig(),
		pipeline.WithDetector(det),
		pipeline.WithMetrics(metrics),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := seg.ProcessFrame(context.Background(), nil); !errors.Is(err, detErr) {
		t.Fatalf("err = %v, want wrapped detector error", err)
	}
}

func TestUtteranceReported(t *testing.T) {
	t.Parallel()
	metrics, reader := newTestMetrics(t)

	cfg := session.Config{
		SpeechStartFrames: 2,
		SpeechEndFrames:   3,
		PauseFrames:       2,
		PauseResumeFrames: 2,
		MinSpeechDuration: 0,
		MaxPauseDuration:  100 * time.Millisecond,
	}

	var got []pipeline.Utterance
	seg, err := pipeline.New(256, 16000, cfg, // 16ms frames
		pipeline.WithMetrics(metrics),
		pipeline.WithUtteranceFunc(func(u pipeline.Utterance) { got = append(got, u) }),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	script := append(decisions(true, 4), decisions(false, 7)...)
	for i, d := range script {
		if _, err := seg.ProcessDecision(ctx, d); err != nil {
			t.Fatalf("ProcessDecision %d: %v", i+1, err)
		}
	}

	// 4 voiced frames then 7 silent: pause after 2 silent frames, speech end
	// once the 7th silent frame crosses the 100ms pause limit.
	if st := seg.State(); st != session.StateSpeechEnd {
		t.Fatalf("state = %v, want SPEECH_END", st)
	}
	if len(got) != 1 {
		t.Fatalf("got %d utterances, want 1", len(got))
	}
	want := pipeline.Utterance{StartFrame: 1, EndFrame: 4, Duration: 64 * time.Millisecond}
	if got[0] != want {
		t.Errorf("utterance = %+v, want %+v", got[0], want)
	}

	hist := findMetric(t, reader, "speechstate.utterance.duration")
	if hist == nil {
		t.Fatal("utterance duration histogram not recorded")
	}
	data, ok := hist.Data.(metricdata.Histogram[float64])
	if !ok || len(data.DataPoints) != 1 || data.DataPoints[0].Count != 1 {
		t.Errorf("unexpected histogram data: %+v", hist.Data)
	}
}

func TestFalseTriggerCounted(t *testing.T) {
	t.Parallel()
	metrics, reader := newTestMetrics(t)

	cfg := session.DefaultConfig()
	cfg.SpeechEndFrames = 2
	cfg.MinSpeechDuration = 10 * time.Second // everything is too short

	seg, err := pipeline.New(256, 16000, cfg, pipeline.WithMetrics(metrics))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	for _, d := range append(decisions(true, 3), decisions(false, 2)...) {
		if _, err := seg.ProcessDecision(ctx, d); err != nil {
			t.Fatalf("ProcessDecision: %v", err)
		}
	}

	if st := seg.State(); st != session.StateSilence {
		t.Fatalf("state = %v, want SILENCE after false trigger", st)
	}
	counter := findMetric(t, reader, "speechstate.session.false_triggers")
	if counter == nil {
		t.Fatal("false trigger counter not recorded")
	}
	sum, ok := counter.Data.(metricdata.Sum[int64])
	if !ok || len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != 1 {
		t.Errorf("unexpected counter data: %+v", counter.Data)
	}
}

func TestPauseDurationRecorded(t *testing.T) {
	t.Parallel()
	metrics, reader := newTestMetrics(t)

	seg, err := pipeline.New(256, 16000, session.DefaultConfig(), pipeline.WithMetrics(metrics))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	script := append(decisions(true, 4), decisions(false, 5)...) // continue, then pause
	script = append(script, decisions(true, 2)...)               // resume
	for _, d := range script {
		if _, err := seg.ProcessDecision(ctx, d); err != nil {
			t.Fatalf("ProcessDecision: %v", err)
		}
	}

	if st := seg.State(); st != session.StateSpeechContinue {
		t.Fatalf("state = %v, want SPEECH_CONTINUE after resume", st)
	}
	hist := findMetric(t, reader, "speechstate.pause.duration")
	if hist == nil {
		t.Fatal("pause duration histogram not recorded")
	}
	data, ok := hist.Data.(metricdata.Histogram[float64])
	if !ok || len(data.DataPoints) != 1 || data.DataPoints[0].Count != 1 {
		t.Fatalf("unexpected histogram data: %+v", hist.Data)
	}
	// The pause state lasted the two voiced frames that triggered the
	// resume.
	if got, want := data.DataPoints[0].Sum, (32 * time.Millisecond).Seconds(); got != want {
		t.Errorf("pause duration sum = %v, want %v", got, want)
	}
}

func TestReset_ClearsMachineAndDetector(t *testing.T) {
	t.Parallel()
	metrics, _ := newTestMetrics(t)
	det := &vadmock.Detector{Decisions: decisions(true, 10)}

	seg, err := pipeline.New(256, 16000, session.DefaultConfig(),
		pipeline.WithDetector(det),
		pipeline.WithMetrics(metrics),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := seg.ProcessFrame(ctx, make([]byte, 512)); err != nil {
			t.Fatalf("ProcessFrame: %v", err)
		}
	}

	seg.Reset()
	if st := seg.State(); st != session.StateSilence {
		t.Errorf("state after reset = %v, want SILENCE", st)
	}
	if seg.Machine().TotalFrames() != 0 {
		t.Errorf("TotalFrames after reset = %d, want 0", seg.Machine().TotalFrames())
	}
	if det.ResetCallCount != 1 {
		t.Errorf("detector Reset called %d times, want 1", det.ResetCallCount)
	}
}

func TestClose_PropagatesDetectorError(t *testing.T) {
	t.Parallel()
	metrics, _ := newTestMetrics(t)
	closeErr := errors.New("native handle already freed")
	det := &vadmock.Detector{CloseErr: closeErr}

	seg, err := pipeline.New(256, 16000, session.DefaultConfig(),
		pipeline.WithDetector(det),
		pipeline.WithMetrics(metrics),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := seg.Close(); !errors.Is(err, closeErr) {
		t.Fatalf("Close err = %v, want detector close error", err)
	}
	if _, err := seg.ProcessDecision(context.Background(), vad.Decision{Voiced: true}); !errors.Is(err, session.ErrClosed) {
		t.Fatalf("ProcessDecision after Close: err = %v, want ErrClosed", err)
	}
}
