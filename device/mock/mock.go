// Package mock provides test doubles for the device package interfaces.
//
// Input replays scripted frames and then keeps returning empty reads like an
// idle microphone until Close is called. Output records when each clip started and finished so
// tests can check that playback never overlaps.
package mock

import (
	"context"
	"errors"
	"sync"
	"time"

	"opsdroid-audio/audio"
	"opsdroid-audio/device"
)

// ErrClosed is returned by Input.Read once the input has been closed.
var ErrClosed = errors.New("mock input closed")

// Input is a mock implementation of device.Input.
type Input struct {
	mu sync.Mutex

	// Frames are returned by Read in order, one per call.
	Frames [][]byte

	// Interval is how long each Read waits before returning a frame.
	Interval time.Duration

	// Err, if non-nil, is returned by Read once Frames is exhausted. If nil,
	// Read waits Interval (at least a millisecond) and returns no data.
	Err error

	// ReadCallCount is the number of times Read was called.
	ReadCallCount int

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int

	closed chan struct{}
}

func (i *Input) doneLocked() chan struct{} {
	if i.closed == nil {
		i.closed = make(chan struct{})
	}
	return i.closed
}

// Read returns the next scripted frame.
func (i *Input) Read() ([]byte, error) {
	i.mu.Lock()
	done := i.doneLocked()
	i.ReadCallCount++

	interval := i.Interval

	if len(i.Frames) == 0 {
		err := i.Err
		i.mu.Unlock()
		if err != nil {
			return nil, err
		}

		select {
		case <-time.After(max(interval, time.Millisecond)):
			return nil, nil
		case <-done:
			return nil, ErrClosed
		}
	}

	frame := i.Frames[0]
	i.Frames = i.Frames[1:]
	i.mu.Unlock()

	if interval > 0 {
		select {
		case <-time.After(interval):
		case <-done:
			return nil, ErrClosed
		}
	}

	cp := make([]byte, len(frame))
	copy(cp, frame)
	return cp, nil
}

// Remaining reports how many scripted frames have not been read yet.
func (i *Input) Remaining() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.Frames)
}

// Close unblocks any pending Read. Safe to call more than once.
func (i *Input) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.CloseCallCount++
	done := i.doneLocked()
	select {
	case <-done:
	default:
		close(done)
	}
	return nil
}

var _ device.Input = (*Input)(nil)

// Play records one call to Output.Play.
type Play struct {
	Clip  audio.Clip
	Start time.Time
	End   time.Time
}

// Output is a mock implementation of device.Output.
type Output struct {
	mu sync.Mutex

	// Delay is how long each Play takes.
	Delay time.Duration

	// PlayErr, if non-nil, is returned by every Play call.
	PlayErr error

	// Plays records every completed call to Play in completion order.
	Plays []Play

	// Overlaps counts Play calls that started while another was running.
	Overlaps int

	active int
}

// Play records the call, waits Delay and returns PlayErr.
func (o *Output) Play(ctx context.Context, clip audio.Clip) error {
	o.mu.Lock()
	o.active++
	if o.active > 1 {
		o.Overlaps++
	}
	delay := o.Delay
	o.mu.Unlock()

	start := time.Now()

	var err error
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			err = ctx.Err()
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.active--
	o.Plays = append(o.Plays, Play{Clip: clip, Start: start, End: time.Now()})
	if err != nil {
		return err
	}
	return o.PlayErr
}

// Recorded returns a copy of the plays so far.
func (o *Output) Recorded() []Play {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Play(nil), o.Plays...)
}

func (o *Output) Close() error {
	return nil
}

var _ device.Output = (*Output)(nil)
