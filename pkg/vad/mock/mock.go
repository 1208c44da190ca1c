// Package mock provides test doubles for the vad package interfaces.
//
// Use Engine to verify that detectors are created with the expected
// DetectorConfig. Use Detector to script per-frame decisions and inspect the
// frames submitted for detection.
//
// Example:
//
//	det := &mock.Detector{
//	    Decisions: []vad.Decision{
//	        {Voiced: true, Probability: 0.9},
//	        {Voiced: false, Probability: 0.1},
//	    },
//	}
//	eng := &mock.Engine{Detector: det}
//	d, _ := eng.NewDetector(cfg)
package mock

import (
	"sync"

	"github.com/voxkit/speechstate/pkg/vad"
)

// NewDetectorCall records a single invocation of Engine.NewDetector.
type NewDetectorCall struct {
	// Cfg is the DetectorConfig passed to NewDetector.
	Cfg vad.DetectorConfig
}

// Engine is a mock implementation of vad.Engine.
type Engine struct {
	mu sync.Mutex

	// Detector is returned by NewDetector. If nil, NewDetector returns a new
	// default Detector.
	Detector vad.Detector

	// NewDetectorErr, if non-nil, is returned as the error from NewDetector.
	NewDetectorErr error

	// NewDetectorCalls records every call to NewDetector in order.
	NewDetectorCalls []NewDetectorCall
}

// NewDetector records the call and returns Detector, NewDetectorErr.
func (e *Engine) NewDetector(cfg vad.DetectorConfig) (vad.Detector, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.NewDetectorCalls = append(e.NewDetectorCalls, NewDetectorCall{Cfg: cfg})
	if e.NewDetectorErr != nil {
		return nil, e.NewDetectorErr
	}
	if e.Detector != nil {
		return e.Detector, nil
	}
	return &Detector{}, nil
}

// ResetCalls clears all recorded calls. Thread-safe.
func (e *Engine) ResetCalls() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.NewDetectorCalls = nil
}

// Ensure Engine implements vad.Engine at compile time.
var _ vad.Engine = (*Engine)(nil)

// DetectFrameCall records a single invocation of Detector.DetectFrame.
type DetectFrameCall struct {
	// Frame is a copy of the bytes passed to DetectFrame.
	Frame []byte
}

// Detector is a mock implementation of vad.Detector. Each DetectFrame call
// consumes the next entry from Decisions; once the script is exhausted the
// last decision repeats (or a zero Decision when the script is empty).
type Detector struct {
	mu sync.Mutex

	// Decisions is the scripted sequence of per-frame decisions.
	Decisions []vad.Decision

	// DetectFrameErr, if non-nil, is returned by every DetectFrame call.
	DetectFrameErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// --- Call records ---

	// DetectFrameCalls records every call to DetectFrame in order.
	DetectFrameCalls []DetectFrameCall

	// ResetCallCount is the number of times Reset was called.
	ResetCallCount int

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int

	next int
}

// DetectFrame records the call and returns the next scripted decision.
func (d *Detector) DetectFrame(frame []byte) (vad.Decision, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := make([]byte, len(frame))
	copy(cp, frame)
	d.DetectFrameCalls = append(d.DetectFrameCalls, DetectFrameCall{Frame: cp})
	if d.DetectFrameErr != nil {
		return vad.Decision{}, d.DetectFrameErr
	}
	if len(d.Decisions) == 0 {
		return vad.Decision{}, nil
	}
	dec := d.Decisions[min(d.next, len(d.Decisions)-1)]
	d.next++
	return dec, nil
}

// Reset records the call by incrementing ResetCallCount and rewinds the
// decision script.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ResetCallCount++
	d.next = 0
}

// Close records the call and returns CloseErr.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CloseCallCount++
	return d.CloseErr
}

// ResetCalls clears all recorded call history and rewinds the script.
// Thread-safe.
func (d *Detector) ResetCalls() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.DetectFrameCalls = nil
	d.ResetCallCount = 0
	d.CloseCallCount = 0
	d.next = 0
}

// Ensure Detector implements vad.Detector at compile time.
var _ vad.Detector = (*Detector)(nil)
