package speech_extraction

import (
	"errors"
	"fmt"

	"opsdroid-audio/audio"
	"opsdroid-audio/ring_buffer"
)

const (
	DefaultStartDelay = 3
	DefaultThreshold  = 3000
	DefaultRequired   = 4
)

type Config struct {
	// StartDelay is how many frames after detection are never counted as
	// silence.
	StartDelay int
	// Threshold is the peak amplitude below which a frame is silent.
	Threshold int
	// Required is how many consecutive silent frames end the utterance.
	Required int
}

func DefaultConfig() Config {
	return Config{
		StartDelay: DefaultStartDelay,
		Threshold:  DefaultThreshold,
		Required:   DefaultRequired,
	}
}

func (c Config) Validate() error {
	var errs []error
	if c.StartDelay < 0 {
		errs = append(errs, fmt.Errorf("silence start delay %d must not be negative", c.StartDelay))
	}
	if c.Threshold <= 0 || c.Threshold > 32768 {
		errs = append(errs, fmt.Errorf("silence threshold %d must be in 1..32768", c.Threshold))
	}
	if c.Required <= 0 {
		errs = append(errs, fmt.Errorf("required silent frames %d must be positive", c.Required))
	}
	return errors.Join(errs...)
}

type endpointerImpl struct {
	cfg Config

	recording        bool
	buffer           *ring_buffer.Buffer
	framesSinceStart int
	silentFrames     int
	lastFrameSilent  bool
}

// New returns an amplitude endpointer. A nil cfg uses the defaults.
// Endpointers are owned by a single capture loop and are not safe for
// concurrent use.
func New(cfg *Config) (Interface, error) {
	c := DefaultConfig()
	if cfg != nil {
		c = *cfg
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("speech_extraction: %w", err)
	}

	return &endpointerImpl{
		cfg:    c,
		buffer: ring_buffer.New(0),
	}, nil
}

func (e *endpointerImpl) Start() {
	e.reset()
	e.recording = true
}

func (e *endpointerImpl) Push(frame []byte) ([]byte, bool) {
	if !e.recording {
		return nil, false
	}

	e.buffer.Extend(frame)
	e.framesSinceStart++

	peak := audio.Peak(frame)

	if e.framesSinceStart > e.cfg.StartDelay && peak < e.cfg.Threshold && e.lastFrameSilent {
		e.silentFrames++
	} else {
		e.silentFrames = 0
	}

	e.lastFrameSilent = peak <= e.cfg.Threshold

	if e.silentFrames >= e.cfg.Required {
		utterance := e.buffer.Get()
		e.reset()
		return utterance, true
	}

	return nil, false
}

func (e *endpointerImpl) Recording() bool {
	return e.recording
}

func (e *endpointerImpl) Reset() []byte {
	pending := e.buffer.Get()
	e.reset()
	return pending
}

func (e *endpointerImpl) reset() {
	e.buffer.Get()
	e.recording = false
	e.framesSinceStart = 0
	e.silentFrames = 0
	e.lastFrameSilent = false
}

func (e *endpointerImpl) FramesSinceStart() int {
	return e.framesSinceStart
}

func (e *endpointerImpl) SilentFrames() int {
	return e.silentFrames
}
