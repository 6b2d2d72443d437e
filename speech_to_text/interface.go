package speech_to_text

import (
	"context"

	"opsdroid-audio/audio"
)

// Interface turns recorded speech into text. An empty string with a nil
// error means nothing was understood.
type Interface interface {
	Recognize(ctx context.Context, pcm []byte, format audio.Format) (string, error)
}
