// Package mock provides a test double for hotword.Interface.
package mock

import (
	"sync"

	"opsdroid-audio/hotword"
)

// Result is one scripted outcome of Classify.
type Result struct {
	Index int
	Err   error
}

// Classifier is a mock implementation of hotword.Interface.
type Classifier struct {
	mu sync.Mutex

	// Hotwords is returned by NumHotwords.
	Hotwords int

	// Results are returned in order, one per call. Once exhausted, Classify
	// returns hotword.NoDetection.
	Results []Result

	// Match, if set, decides the result from the chunk contents instead of
	// Results.
	Match func(chunk []byte) (int, error)

	// Chunks records a copy of every chunk passed to Classify.
	Chunks [][]byte
}

func (c *Classifier) Classify(chunk []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	c.Chunks = append(c.Chunks, cp)

	if c.Match != nil {
		return c.Match(chunk)
	}

	if len(c.Results) == 0 {
		return hotword.NoDetection, nil
	}

	r := c.Results[0]
	c.Results = c.Results[1:]
	return r.Index, r.Err
}

func (c *Classifier) NumHotwords() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Hotwords
}

// Calls returns how many chunks have been classified.
func (c *Classifier) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Chunks)
}

var _ hotword.Interface = (*Classifier)(nil)
