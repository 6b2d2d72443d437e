package speaker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"opsdroid-audio/interrupt"
	"opsdroid-audio/observe"
	"opsdroid-audio/text_to_speech"
)

const DefaultPollInterval = 100 * time.Millisecond

type PlaybackConfig struct {
	Queue        *Queue
	Synthesizer  text_to_speech.Interface
	Speaker      *Speaker
	Interrupt    *interrupt.Signal
	PollInterval time.Duration
	// DrainOnShutdown keeps speaking until the queue is empty after an
	// interrupt. Otherwise queued speech is dropped and playback in progress
	// is cut short.
	DrainOnShutdown bool
	Metrics         *observe.Metrics
	Logger          *slog.Logger
}

// PlaybackLoop speaks queued backend responses one at a time.
type PlaybackLoop struct {
	queue        *Queue
	synthesizer  text_to_speech.Interface
	speaker      *Speaker
	interrupt    *interrupt.Signal
	pollInterval time.Duration
	drain        bool
	metrics      *observe.Metrics
	logger       *slog.Logger
}

func NewPlayback(cfg *PlaybackConfig) (*PlaybackLoop, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.Queue == nil {
		return nil, fmt.Errorf("queue is nil")
	}

	if cfg.Synthesizer == nil {
		return nil, fmt.Errorf("synthesizer is nil")
	}

	if cfg.Speaker == nil {
		return nil, fmt.Errorf("speaker is nil")
	}

	if cfg.Interrupt == nil {
		return nil, fmt.Errorf("interrupt is nil")
	}

	p := &PlaybackLoop{
		queue:        cfg.Queue,
		synthesizer:  cfg.Synthesizer,
		speaker:      cfg.Speaker,
		interrupt:    cfg.Interrupt,
		pollInterval: cfg.PollInterval,
		drain:        cfg.DrainOnShutdown,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger,
	}

	if p.pollInterval <= 0 {
		p.pollInterval = DefaultPollInterval
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}

	return p, nil
}

// Run returns nil after an interrupt, or an error wrapping device.ErrDevice
// when the output device fails.
func (p *PlaybackLoop) Run() error {
	ctx := context.Background()
	if !p.drain {
		var cancel context.CancelFunc
		ctx, cancel = p.interrupt.Context(ctx)
		defer cancel()
	}

	for {
		if p.interrupt.IsSet() && (!p.drain || p.queue.Len() == 0) {
			if n := p.queue.Len(); n > 0 {
				p.logger.Info("dropping queued speech on shutdown", "items", n)
			}
			return nil
		}

		text, ok := p.queue.Pop()
		if !ok {
			p.interrupt.Sleep(p.pollInterval)
			continue
		}

		if err := p.speak(ctx, text); err != nil {
			return err
		}
	}
}

func (p *PlaybackLoop) speak(ctx context.Context, text string) error {
	start := time.Now()

	clip, err := p.synthesizer.Synthesize(ctx, text)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Warn("synthesis failed, dropping response", "err", err)
		}
		return nil
	}

	p.metrics.RecordSynthesis(ctx, time.Since(start))

	if clip.Empty() {
		return nil
	}

	p.logger.Debug("speaking", "text", text, "duration", clip.Duration())

	if err = p.speaker.Play(ctx, clip); err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("speaker: %w", err)
	}

	return nil
}
