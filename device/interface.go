package device

import (
	"context"
	"errors"

	"opsdroid-audio/audio"
)

// ErrDevice marks failures of the sound hardware itself. Loops treat it as
// fatal.
var ErrDevice = errors.New("audio device failure")

// Input is a blocking capture source. Each Read returns one frame of
// little-endian int16 PCM.
type Input interface {
	Read() ([]byte, error)
	Close() error
}

// Output plays whole clips. Play blocks until the clip has been written or
// ctx is done.
type Output interface {
	Play(ctx context.Context, clip audio.Clip) error
	Close() error
}
