package listener

import "errors"

// ErrCallbackMismatch means the wake callbacks cannot be paired with the
// classifier's hotwords.
var ErrCallbackMismatch = errors.New("number of wake callbacks does not match number of hotwords")

type State int32

const (
	Idle State = iota
	Recording
)

func (s State) String() string {
	if s == Recording {
		return "recording"
	}
	return "idle"
}

type Interface interface {
	// Run captures until the interrupt is set or the input device fails.
	Run() error
	State() State
}
