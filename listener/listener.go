package listener

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"opsdroid-audio/audio"
	"opsdroid-audio/device"
	"opsdroid-audio/hotword"
	"opsdroid-audio/interrupt"
	"opsdroid-audio/observe"
	"opsdroid-audio/ring_buffer"
	"opsdroid-audio/speech_extraction"
)

const (
	DefaultBufferSeconds = 5
	DefaultPollInterval  = 30 * time.Millisecond

	inputCloseGrace = 500 * time.Millisecond
)

type Config struct {
	Input      device.Input
	Classifier hotword.Interface
	Endpointer speech_extraction.Interface
	Format     audio.Format
	// BufferSeconds sizes the rolling capture buffer.
	BufferSeconds int
	PollInterval  time.Duration
	// OnDetected holds one callback per hotword, or a single callback used
	// for all of them. Callbacks run on the capture loop and must not block.
	OnDetected []func(hotword int)
	// OnRecorded receives each finished utterance exactly once.
	OnRecorded func(utt audio.Utterance)
	Interrupt  *interrupt.Signal
	// DeliverOnShutdown hands an utterance still being recorded at shutdown
	// to OnRecorded instead of dropping it.
	DeliverOnShutdown bool
	Metrics           *observe.Metrics
	Logger            *slog.Logger
}

type listenerImpl struct {
	input        device.Input
	classifier   hotword.Interface
	endpointer   speech_extraction.Interface
	format       audio.Format
	bufferBytes  int
	pollInterval time.Duration
	onDetected   []func(int)
	onRecorded   func(audio.Utterance)
	interrupt    *interrupt.Signal
	deliver      bool
	metrics      *observe.Metrics
	logger       *slog.Logger

	state      atomic.Int32
	hotword    int
	detectedAt time.Time
}

func New(cfg *Config) (Interface, error) {
	return newListener(cfg)
}

func newListener(cfg *Config) (*listenerImpl, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.Input == nil {
		return nil, fmt.Errorf("input is nil")
	}

	if cfg.Classifier == nil {
		return nil, fmt.Errorf("classifier is nil")
	}

	if cfg.Endpointer == nil {
		return nil, fmt.Errorf("endpointer is nil")
	}

	if cfg.OnRecorded == nil {
		return nil, fmt.Errorf("onRecorded is nil")
	}

	if cfg.Interrupt == nil {
		return nil, fmt.Errorf("interrupt is nil")
	}

	if err := cfg.Format.Validate(); err != nil {
		return nil, err
	}

	onDetected, err := pairCallbacks(cfg.OnDetected, cfg.Classifier.NumHotwords())
	if err != nil {
		return nil, err
	}

	l := &listenerImpl{
		input:        cfg.Input,
		classifier:   cfg.Classifier,
		endpointer:   cfg.Endpointer,
		format:       cfg.Format,
		pollInterval: cfg.PollInterval,
		onDetected:   onDetected,
		onRecorded:   cfg.OnRecorded,
		interrupt:    cfg.Interrupt,
		deliver:      cfg.DeliverOnShutdown,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger,
	}

	seconds := cfg.BufferSeconds
	if seconds <= 0 {
		seconds = DefaultBufferSeconds
	}
	l.bufferBytes = seconds * cfg.Format.BytesPerSecond()

	if l.pollInterval <= 0 {
		l.pollInterval = DefaultPollInterval
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}

	return l, nil
}

// pairCallbacks gives every hotword a callback. A single callback is shared
// by all hotwords; no callbacks at all is allowed.
func pairCallbacks(callbacks []func(int), hotwords int) ([]func(int), error) {
	switch {
	case len(callbacks) == 0:
		return make([]func(int), hotwords), nil
	case len(callbacks) == 1 && hotwords > 1:
		out := make([]func(int), hotwords)
		for i := range out {
			out[i] = callbacks[0]
		}
		return out, nil
	case len(callbacks) != hotwords:
		return nil, fmt.Errorf("%w: %d callbacks for %d hotwords", ErrCallbackMismatch, len(callbacks), hotwords)
	}

	return callbacks, nil
}

func (l *listenerImpl) State() State {
	return State(l.state.Load())
}

// Run starts a producer goroutine that only moves device reads into the
// rolling buffer, and consumes that buffer every poll interval on the
// calling goroutine.
func (l *listenerImpl) Run() error {
	ringBuffer := ring_buffer.New(l.bufferBytes)

	var (
		stop         atomic.Bool
		producerDone = make(chan struct{})
		producerErr  = make(chan error, 1)
	)

	go func() {
		defer close(producerDone)

		for !stop.Load() {
			frame, err := l.input.Read()
			if err != nil {
				if !stop.Load() {
					producerErr <- err
				}
				return
			}

			if dropped := ringBuffer.Extend(frame); dropped > 0 {
				l.metrics.RecordCaptureDropped(context.Background(), dropped)
			}
		}
	}()

	l.logger.Info("listening for hotwords", "format", l.format.String(), "hotwords", len(l.onDetected))

	var runErr error

	for {
		if l.interrupt.IsSet() {
			break
		}

		select {
		case err := <-producerErr:
			runErr = fmt.Errorf("listener: capture: %w", err)
		default:
		}
		if runErr != nil {
			break
		}

		frame := ringBuffer.Get()
		if len(frame) == 0 {
			l.interrupt.Sleep(l.pollInterval)
			continue
		}

		l.handleFrame(frame)
	}

	stop.Store(true)

	// A read normally returns within one device buffer. Closing the device
	// under a read is only done when that read has stalled.
	select {
	case <-producerDone:
		l.closeInput()
	case <-time.After(inputCloseGrace):
		l.logger.Warn("input read stalled, closing the device to unblock it")
		l.closeInput()
		<-producerDone
	}

	if runErr != nil {
		l.abandon("device_error")
		return runErr
	}

	l.shutdown(ringBuffer)

	return nil
}

func (l *listenerImpl) closeInput() {
	if err := l.input.Close(); err != nil {
		l.logger.Warn("closing input", "err", err)
	}
}

func (l *listenerImpl) handleFrame(frame []byte) {
	if l.endpointer.Recording() {
		l.record(frame)
		return
	}

	index, err := l.classifier.Classify(frame)
	if err != nil {
		l.logger.Warn("hotword classifier failed", "err", err)
		return
	}

	if index == hotword.NoDetection {
		return
	}

	if index < 0 || index >= len(l.onDetected) {
		l.logger.Warn("classifier returned unknown hotword", "hotword", index)
		return
	}

	l.logger.Info("hotword detected", "hotword", index)
	l.metrics.RecordDetection(context.Background(), index)

	l.hotword = index
	l.detectedAt = time.Now()
	l.endpointer.Start()
	l.state.Store(int32(Recording))

	// the triggering frame is the first frame of the utterance
	l.record(frame)

	if cb := l.onDetected[index]; cb != nil {
		cb(index)
	}
}

func (l *listenerImpl) record(frame []byte) {
	pcm, done := l.endpointer.Push(frame)
	if !done {
		return
	}

	l.deliverUtterance(pcm)
}

func (l *listenerImpl) deliverUtterance(pcm []byte) {
	l.state.Store(int32(Idle))

	utt := audio.NewUtterance(pcm, l.format, l.hotword, l.detectedAt)

	l.logger.Info("recording finished", "utterance", utt.ID, "duration", utt.Duration())
	l.metrics.RecordUtterance(context.Background())

	l.onRecorded(utt)
}

// shutdown settles a recording still in progress once capture has stopped.
func (l *listenerImpl) shutdown(ringBuffer *ring_buffer.Buffer) {
	if !l.endpointer.Recording() {
		return
	}

	if !l.deliver {
		l.abandon("shutdown")
		return
	}

	if rest := ringBuffer.Get(); len(rest) > 0 {
		l.record(rest)
	}

	if l.endpointer.Recording() {
		l.deliverUtterance(l.endpointer.Reset())
	}
}

func (l *listenerImpl) abandon(reason string) {
	if !l.endpointer.Recording() {
		return
	}

	pending := l.endpointer.Reset()
	l.state.Store(int32(Idle))

	l.logger.Info("dropping unfinished recording", "reason", reason, "bytes", len(pending))
	l.metrics.RecordDropped(context.Background(), reason)
}
