package ring_buffer

import "sync"

// Buffer is a byte FIFO that overwrites its oldest bytes once capacity is
// reached. A capacity of zero or less means the buffer never drops data.
//
// Extend may be called from a producer goroutine while Get and Len are
// called from a consumer; every operation holds the lock for its full
// duration so reads never observe a partial write.
type Buffer struct {
	mu       sync.Mutex
	buffer   []byte
	head     int
	length   int
	capacity int
}

func New(capacity int) *Buffer {
	if capacity <= 0 {
		return &Buffer{}
	}

	return &Buffer{
		buffer:   make([]byte, capacity),
		capacity: capacity,
	}
}

// Extend appends p and returns the number of old bytes it had to discard.
func (r *Buffer) Extend(p []byte) int {
	if len(p) == 0 {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.capacity <= 0 {
		r.buffer = append(r.buffer, p...)
		r.length = len(r.buffer)
		return 0
	}

	dropped := 0
	if over := r.length + len(p) - r.capacity; over > 0 {
		dropped = over
	}

	// only the newest capacity bytes of p can survive
	if len(p) >= r.capacity {
		copy(r.buffer, p[len(p)-r.capacity:])
		r.head = 0
		r.length = r.capacity
		return dropped
	}

	tail := (r.head + r.length) % r.capacity
	n := copy(r.buffer[tail:], p)
	copy(r.buffer, p[n:])

	r.length += len(p)
	if r.length > r.capacity {
		r.head = (r.head + r.length - r.capacity) % r.capacity
		r.length = r.capacity
	}

	return dropped
}

// Get returns every held byte in arrival order and empties the buffer.
func (r *Buffer) Get() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.length == 0 {
		return nil
	}

	if r.capacity <= 0 {
		out := r.buffer
		r.buffer = nil
		r.length = 0
		return out
	}

	out := r.snapshot()

	r.head = 0
	r.length = 0

	return out
}

// Peek returns a copy of the held bytes without consuming them.
func (r *Buffer) Peek() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.length == 0 {
		return nil
	}

	if r.capacity <= 0 {
		return append([]byte(nil), r.buffer...)
	}

	return r.snapshot()
}

func (r *Buffer) snapshot() []byte {
	out := make([]byte, r.length)
	n := copy(out, r.buffer[r.head:min(r.head+r.length, r.capacity)])
	copy(out[n:], r.buffer[:r.length-n])
	return out
}

func (r *Buffer) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.length
}

// Cap returns the configured capacity, or 0 for an unbounded buffer.
func (r *Buffer) Cap() int {
	return r.capacity
}
