package speaker

import "sync"

// Queue is an unbounded FIFO of texts waiting to be spoken.
type Queue struct {
	mu    sync.Mutex
	items []string
}

func NewQueue() *Queue {
	return &Queue{}
}

func (q *Queue) Push(text string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = append(q.items, text)
}

// Pop removes the oldest text. ok is false when the queue is empty.
func (q *Queue) Pop() (text string, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return "", false
	}

	text = q.items[0]
	q.items[0] = ""
	q.items = q.items[1:]

	return text, true
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.items)
}
