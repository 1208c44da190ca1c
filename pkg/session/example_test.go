package session_test

import (
	"fmt"
	"time"

	"github.com/voxkit/speechstate/pkg/session"
)

// ExampleMachine feeds a synthetic conversation through the machine: silence,
// an utterance with a short mid-sentence pause, and trailing silence.
func ExampleMachine() {
	cfg := session.Config{
		SpeechStartFrames: 3,
		SpeechEndFrames:   15,
		PauseFrames:       8,
		PauseResumeFrames: 2,
		MinSpeechDuration: 300 * time.Millisecond,
		MaxPauseDuration:  1500 * time.Millisecond,
	}

	m, err := session.New(256, 16000, // 16ms frames
		session.WithConfig(cfg),
		session.WithTransitionFunc(func(old, new session.State) {
			fmt.Printf("%s -> %s\n", old, new)
		}),
	)
	if err != nil {
		fmt.Println("create:", err)
		return
	}

	scenario := []struct {
		voiced bool
		frames int
	}{
		{false, 5}, // leading silence
		{true, 25}, // speech
		{false, 8}, // short pause
		{true, 10}, // resumed speech
		{false, 20}, // trailing silence, shorter than the 1.5s pause limit
	}
	for _, seg := range scenario {
		for i := 0; i < seg.frames; i++ {
			prob := 0.1
			if seg.voiced {
				prob = 0.92
			}
			if _, err := m.Process(seg.voiced, prob); err != nil {
				fmt.Println("process:", err)
				return
			}
		}
	}

	fmt.Println("final state:", m.CurrentState())
	// Output:
	// SILENCE -> SPEECH_START
	// SPEECH_START -> SPEECH_CONTINUE
	// SPEECH_CONTINUE -> SPEECH_PAUSE
	// SPEECH_PAUSE -> SPEECH_CONTINUE
	// SPEECH_CONTINUE -> SPEECH_PAUSE
	// final state: SPEECH_PAUSE
}
