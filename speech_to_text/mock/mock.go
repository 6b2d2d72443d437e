// Package mock provides a test double for speech_to_text.Interface.
package mock

import (
	"context"
	"sync"

	"opsdroid-audio/audio"
	"opsdroid-audio/speech_to_text"
)

// RecognizeCall records a single invocation of Recognizer.Recognize.
type RecognizeCall struct {
	PCM    []byte
	Format audio.Format
}

// Recognizer is a mock implementation of speech_to_text.Interface.
type Recognizer struct {
	mu sync.Mutex

	// Texts are returned in order, one per call. Once exhausted, Text is
	// returned.
	Texts []string

	// Text is returned when Texts is empty.
	Text string

	// Err, if non-nil, is returned by every call.
	Err error

	// Fn, if set, replaces the scripted results.
	Fn func(ctx context.Context, pcm []byte) (string, error)

	// RecognizeCalls records every call in order.
	RecognizeCalls []RecognizeCall
}

func (r *Recognizer) Recognize(ctx context.Context, pcm []byte, format audio.Format) (string, error) {
	r.mu.Lock()
	cp := make([]byte, len(pcm))
	copy(cp, pcm)
	r.RecognizeCalls = append(r.RecognizeCalls, RecognizeCall{PCM: cp, Format: format})
	fn := r.Fn
	if fn != nil {
		r.mu.Unlock()
		return fn(ctx, pcm)
	}
	defer r.mu.Unlock()

	if r.Err != nil {
		return "", r.Err
	}
	if len(r.Texts) > 0 {
		text := r.Texts[0]
		r.Texts = r.Texts[1:]
		return text, nil
	}
	return r.Text, nil
}

// Calls returns a copy of the recorded calls.
func (r *Recognizer) Calls() []RecognizeCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RecognizeCall(nil), r.RecognizeCalls...)
}

var _ speech_to_text.Interface = (*Recognizer)(nil)
