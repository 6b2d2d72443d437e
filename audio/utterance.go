package audio

import (
	"time"

	"github.com/google/uuid"
)

// Utterance is one recorded span of speech between wake detection and the
// endpoint, handed to recognition exactly once.
type Utterance struct {
	ID         string
	Audio      []byte
	Format     Format
	Hotword    int
	DetectedAt time.Time
}

// NewUtterance stamps pcm with a fresh ID.
func NewUtterance(pcm []byte, format Format, hotword int, detectedAt time.Time) Utterance {
	return Utterance{
		ID:         uuid.NewString(),
		Audio:      pcm,
		Format:     format,
		Hotword:    hotword,
		DetectedAt: detectedAt,
	}
}

func (u Utterance) Duration() time.Duration {
	return u.Format.Duration(len(u.Audio))
}
