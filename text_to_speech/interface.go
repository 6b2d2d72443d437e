package text_to_speech

import (
	"context"
	"errors"

	"opsdroid-audio/audio"
)

// ErrSynthesisUnavailable means the speech generator could not be run at
// all, as opposed to producing no audio.
var ErrSynthesisUnavailable = errors.New("speech synthesis unavailable")

type Interface interface {
	Synthesize(ctx context.Context, text string) (audio.Clip, error)
}
