package hotword

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"opsdroid-audio/audio"
	"opsdroid-audio/interrupt"
	"opsdroid-audio/ring_buffer"
	"opsdroid-audio/speech_to_text"
	"opsdroid-audio/voice_activity_detection"
)

const (
	EngineWhisperPhrase = "whisper-phrase"

	DefaultWindow      = 2 * time.Second
	DefaultStride      = 500 * time.Millisecond
	DefaultSensitivity = 0.5
)

type Phrase struct {
	Text string
	// Sensitivity in [0, 1]; higher accepts transcripts that contain fewer
	// of the phrase's words.
	Sensitivity float64
}

type Config struct {
	Recognizer speech_to_text.Interface
	Phrases    []Phrase
	Format     audio.Format
	// Window is how much recent audio is transcribed on each attempt.
	Window time.Duration
	// Stride is how much new audio must arrive between attempts.
	Stride time.Duration
	// VAD gates transcription; nil transcribes every stride.
	VAD voice_activity_detection.Interface
	// Timeout bounds a single transcription.
	Timeout time.Duration
	// Interrupt, if set, abandons a transcription in progress on shutdown.
	Interrupt *interrupt.Signal
}

type phraseImpl struct {
	recognizer  speech_to_text.Interface
	phrases     [][]string
	required    []int
	format      audio.Format
	window      *ring_buffer.Buffer
	strideBytes int
	pending     int
	vad         voice_activity_detection.Interface
	voiced      bool
	timeout     time.Duration
	interrupt   *interrupt.Signal
}

// New builds a classifier that transcribes a rolling window of audio and
// looks for the configured phrases in the text.
func New(cfg *Config) (Interface, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.Recognizer == nil {
		return nil, fmt.Errorf("recognizer is nil")
	}

	if len(cfg.Phrases) == 0 {
		return nil, fmt.Errorf("no hotword phrases")
	}

	if err := cfg.Format.Validate(); err != nil {
		return nil, err
	}

	window := cfg.Window
	if window <= 0 {
		window = DefaultWindow
	}

	stride := cfg.Stride
	if stride <= 0 {
		stride = DefaultStride
	}

	if stride > window {
		return nil, fmt.Errorf("stride %v is longer than window %v", stride, window)
	}

	c := &phraseImpl{
		recognizer:  cfg.Recognizer,
		format:      cfg.Format,
		window:      ring_buffer.New(bytesFor(cfg.Format, window)),
		strideBytes: bytesFor(cfg.Format, stride),
		vad:         cfg.VAD,
		timeout:     cfg.Timeout,
		interrupt:   cfg.Interrupt,
	}

	var errs []error
	for i, p := range cfg.Phrases {
		words := normalize(p.Text)
		if len(words) == 0 {
			errs = append(errs, fmt.Errorf("phrase %d %q has no words", i, p.Text))
			continue
		}

		if p.Sensitivity < 0 || p.Sensitivity > 1 {
			errs = append(errs, fmt.Errorf("phrase %d %q: sensitivity %v must be within [0, 1]", i, p.Text, p.Sensitivity))
			continue
		}

		c.phrases = append(c.phrases, words)
		c.required = append(c.required, requiredWords(len(words), p.Sensitivity))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	return c, nil
}

func bytesFor(format audio.Format, d time.Duration) int {
	frames := int(d * time.Duration(format.SampleRate) / time.Second)
	return frames * format.FrameBytes()
}

func (c *phraseImpl) NumHotwords() int {
	return len(c.phrases)
}

func (c *phraseImpl) Classify(chunk []byte) (int, error) {
	if len(chunk) == 0 {
		return NoDetection, nil
	}

	c.window.Extend(chunk)
	c.pending += len(chunk)

	if c.vad == nil || c.vad.Active(audio.Samples(chunk)) {
		c.voiced = true
	}

	if c.pending < c.strideBytes || !c.voiced {
		return NoDetection, nil
	}

	c.pending = 0
	c.voiced = false

	ctx := context.Background()
	if c.interrupt != nil {
		var cancel context.CancelFunc
		ctx, cancel = c.interrupt.Context(ctx)
		defer cancel()
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	text, err := c.recognizer.Recognize(ctx, c.window.Peek(), c.format)
	if err != nil {
		return NoDetection, fmt.Errorf("hotword: %w", err)
	}

	heard := normalize(text)
	if len(heard) == 0 {
		return NoDetection, nil
	}

	for i, words := range c.phrases {
		if matchInOrder(words, heard) >= c.required[i] {
			// the same words must not fire again on the next stride
			c.window.Get()
			if c.vad != nil {
				c.vad.Reset()
			}
			return i, nil
		}
	}

	return NoDetection, nil
}

// normalize lowercases text and keeps only letters, digits and spaces.
func normalize(text string) []string {
	text = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		case r == ' ', r == '-', r == '\t', r == '\n':
			return ' '
		}
		return -1
	}, text)

	return strings.Fields(text)
}

func requiredWords(words int, sensitivity float64) int {
	n := int(math.Ceil(float64(words) * (1 - sensitivity)))
	return max(1, min(n, words))
}

// matchInOrder returns how many words of phrase appear in heard in the same
// relative order (longest common subsequence).
func matchInOrder(phrase, heard []string) int {
	prev := make([]int, len(heard)+1)
	cur := make([]int, len(heard)+1)

	for i := 1; i <= len(phrase); i++ {
		for j := 1; j <= len(heard); j++ {
			switch {
			case phrase[i-1] == heard[j-1]:
				cur[j] = prev[j-1] + 1
			case prev[j] >= cur[j-1]:
				cur[j] = prev[j]
			default:
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}

	return prev[len(heard)]
}
