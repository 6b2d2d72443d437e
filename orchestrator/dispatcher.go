package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"opsdroid-audio/audio"
	"opsdroid-audio/clients/opsdroid"
	"opsdroid-audio/interrupt"
	"opsdroid-audio/observe"
	"opsdroid-audio/speaker"
	"opsdroid-audio/speech_extraction"
	"opsdroid-audio/speech_to_text"
)

const pendingUtterances = 4

// QueueSpeech returns a handler that queues text for the playback loop.
// It is the connection's OnMessage hook and the echo path of the dispatcher.
func QueueSpeech(queue *speaker.Queue, metrics *observe.Metrics, logger *slog.Logger) func(string) {
	if logger == nil {
		logger = slog.Default()
	}

	return func(text string) {
		text = strings.TrimSpace(text)
		if text == "" {
			return
		}

		logger.Info("bot says", "text", text)
		queue.Push(text)
		metrics.RecordSpeechQueued(context.Background())
	}
}

type DispatcherConfig struct {
	Recognizer speech_to_text.Interface
	// Bot receives recognized text. Nil echoes the text back through Speak,
	// which is handy for testing a microphone without a bot.
	Bot       opsdroid.BotAPI
	Speak     func(text string)
	Interrupt *interrupt.Signal
	// DeliverOnShutdown recognizes utterances that are still pending when
	// the interrupt is set instead of dropping them.
	DeliverOnShutdown bool
	// Archiver, if set, keeps a WAV copy of every utterance.
	Archiver speech_extraction.ArchiveInterface
	Metrics  *observe.Metrics
	Logger   *slog.Logger
}

// Dispatcher takes finished utterances from the capture loop, recognizes
// them and forwards the text to the bot.
type Dispatcher struct {
	recognizer speech_to_text.Interface
	bot        opsdroid.BotAPI
	speak      func(string)
	interrupt  *interrupt.Signal
	deliver    bool
	archiver   speech_extraction.ArchiveInterface
	metrics    *observe.Metrics
	logger     *slog.Logger

	utterances chan audio.Utterance
	closeOnce  sync.Once
}

func NewDispatcher(cfg *DispatcherConfig) (*Dispatcher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.Recognizer == nil {
		return nil, fmt.Errorf("recognizer is nil")
	}

	if cfg.Bot == nil && cfg.Speak == nil {
		return nil, fmt.Errorf("either bot or speak must be set")
	}

	if cfg.Interrupt == nil {
		return nil, fmt.Errorf("interrupt is nil")
	}

	d := &Dispatcher{
		recognizer: cfg.Recognizer,
		bot:        cfg.Bot,
		speak:      cfg.Speak,
		interrupt:  cfg.Interrupt,
		deliver:    cfg.DeliverOnShutdown,
		archiver:   cfg.Archiver,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
		utterances: make(chan audio.Utterance, pendingUtterances),
	}

	if d.logger == nil {
		d.logger = slog.Default()
	}

	return d, nil
}

// Submit hands utt to the dispatcher. It blocks while the dispatcher is
// behind; after an interrupt the utterance is dropped unless
// DeliverOnShutdown is set. Submit must not be called after Close.
func (d *Dispatcher) Submit(utt audio.Utterance) {
	select {
	case d.utterances <- utt:
		return
	case <-d.interrupt.Done():
	}

	if !d.deliver {
		d.logger.Info("dropping utterance on shutdown", "utterance", utt.ID)
		d.metrics.RecordDropped(context.Background(), "shutdown")
		return
	}

	d.utterances <- utt
}

// Close tells Run that no more utterances will be submitted.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.utterances)
	})
}

// Run handles utterances until Close is called and the backlog is settled.
func (d *Dispatcher) Run() error {
	ctx := context.Background()
	if !d.deliver {
		var cancel context.CancelFunc
		ctx, cancel = d.interrupt.Context(ctx)
		defer cancel()
	}

	for utt := range d.utterances {
		if d.interrupt.IsSet() && !d.deliver {
			d.metrics.RecordDropped(ctx, "shutdown")
			continue
		}

		d.handle(ctx, utt)
	}

	return nil
}

func (d *Dispatcher) handle(ctx context.Context, utt audio.Utterance) {
	start := time.Now()
	logger := d.logger.With("utterance", utt.ID)

	if d.archiver != nil {
		if path, err := d.archiver.Archive(utt); err != nil {
			logger.Warn("archiving utterance", "err", err)
		} else {
			logger.Debug("archived utterance", "path", path)
		}
	}

	logger.Debug("recognizing speech", "duration", utt.Duration())

	text, err := d.recognizer.Recognize(ctx, utt.Audio, utt.Format)
	d.metrics.RecordRecognition(ctx, time.Since(start))
	if err != nil {
		if ctx.Err() == nil {
			logger.Warn("speech recognition failed", "err", err)
		}
		d.metrics.RecordDropped(ctx, "recognition_error")
		return
	}

	text = strings.TrimSpace(text)
	if text == "" {
		logger.Info("no speech recognized")
		d.metrics.RecordDropped(ctx, "empty")
		return
	}

	logger.Info("user said", "text", text)

	if d.bot == nil {
		d.speak(text)
	} else if err = d.bot.Send(ctx, text); err != nil {
		reason := "send_error"
		if errors.Is(err, opsdroid.ErrNotConnected) {
			reason = "not_connected"
		}
		logger.Warn("sending to opsdroid failed", "err", err, "text", text)
		d.metrics.RecordDropped(ctx, reason)
		return
	}

	logger.Info("response took",
		"seconds", time.Since(start).Seconds(),
		"since_wake", time.Since(utt.DetectedAt).Round(time.Millisecond),
	)
}
