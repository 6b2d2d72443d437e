// Package interrupt provides the process-wide shutdown flag shared by every
// long-running loop. The flag is one-way: once set it stays set.
package interrupt

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Signal is a monotonic shutdown flag. The zero value is not usable; create
// one with [New] and hand the same pointer to every loop at construction.
type Signal struct {
	set  atomic.Bool
	once sync.Once
	done chan struct{}
}

func New() *Signal {
	return &Signal{done: make(chan struct{})}
}

// Set raises the flag. It reports true only for the call that actually
// raised it; later calls are no-ops.
func (s *Signal) Set() bool {
	first := false
	s.once.Do(func() {
		s.set.Store(true)
		close(s.done)
		first = true
	})
	return first
}

func (s *Signal) IsSet() bool {
	return s.set.Load()
}

// Done is closed when the flag is raised.
func (s *Signal) Done() <-chan struct{} {
	return s.done
}

// Sleep waits for d or until the flag is raised, whichever is first, and
// returns the flag state on waking.
func (s *Signal) Sleep(d time.Duration) bool {
	if d <= 0 {
		return s.IsSet()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
	case <-s.done:
	}
	return s.IsSet()
}

// Context returns a child of parent that is cancelled once the flag is raised.
func (s *Signal) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		select {
		case <-s.done:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
