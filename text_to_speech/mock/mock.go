// Package mock provides a test double for text_to_speech.Interface.
package mock

import (
	"context"
	"sync"
	"time"

	"opsdroid-audio/audio"
	"opsdroid-audio/text_to_speech"
)

// Synthesizer is a mock implementation of text_to_speech.Interface.
type Synthesizer struct {
	mu sync.Mutex

	// Clip is returned by every successful call.
	Clip audio.Clip

	// Err, if non-nil, is returned by every call.
	Err error

	// Delay is how long each call takes.
	Delay time.Duration

	// Texts records the text of every call in order.
	Texts []string
}

func (s *Synthesizer) Synthesize(ctx context.Context, text string) (audio.Clip, error) {
	s.mu.Lock()
	s.Texts = append(s.Texts, text)
	delay, clip, err := s.Delay, s.Clip, s.Err
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return audio.Clip{}, ctx.Err()
		}
	}

	if err != nil {
		return audio.Clip{}, err
	}
	return clip, nil
}

// Calls returns a copy of the synthesized texts.
func (s *Synthesizer) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.Texts...)
}

var _ text_to_speech.Interface = (*Synthesizer)(nil)
