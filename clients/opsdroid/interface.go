package opsdroid

import (
	"context"
	"errors"
)

// ErrNotConnected is returned by Send while no backend session is open.
var ErrNotConnected = errors.New("not connected to opsdroid")

type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
	Closing
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Closing:
		return "closing"
	}
	return "unknown"
}

// BotAPI is the part of the backend connection the rest of the program
// talks to.
type BotAPI interface {
	Send(ctx context.Context, text string) error
	State() State
	Close() error
}
