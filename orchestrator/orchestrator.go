// Package orchestrator runs the capture, dispatch, playback and backend
// connection loops side by side and shuts them all down together.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"opsdroid-audio/interrupt"
)

// Loop is a long-running unit that returns once the shared interrupt is
// set, or early with an error.
type Loop interface {
	Run() error
}

// Connection is a loop holding a connection that may block in a read.
type Connection interface {
	Loop
	Close() error
}

type Config struct {
	Listener   Loop
	Playback   Loop
	Dispatcher *Dispatcher
	// Connection is nil in echo mode.
	Connection Connection
	Interrupt  *interrupt.Signal
	Logger     *slog.Logger
}

type Orchestrator struct {
	listener   Loop
	playback   Loop
	dispatcher *Dispatcher
	connection Connection
	interrupt  *interrupt.Signal
	logger     *slog.Logger

	shutdownOnce sync.Once
}

func New(cfg *Config) (*Orchestrator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.Listener == nil {
		return nil, fmt.Errorf("listener is nil")
	}

	if cfg.Playback == nil {
		return nil, fmt.Errorf("playback is nil")
	}

	if cfg.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is nil")
	}

	if cfg.Interrupt == nil {
		return nil, fmt.Errorf("interrupt is nil")
	}

	o := &Orchestrator{
		listener:   cfg.Listener,
		playback:   cfg.Playback,
		dispatcher: cfg.Dispatcher,
		connection: cfg.Connection,
		interrupt:  cfg.Interrupt,
		logger:     cfg.Logger,
	}

	if o.logger == nil {
		o.logger = slog.Default()
	}

	return o, nil
}

// Run starts every loop and blocks until all of them have returned. A loop
// failing, or ctx ending, shuts the others down. The first loop error is
// returned.
func (o *Orchestrator) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	stop := context.AfterFunc(gctx, o.RequestShutdown)
	defer stop()

	g.Go(func() error {
		// the listener is the only caller of Submit
		defer o.dispatcher.Close()

		if err := o.listener.Run(); err != nil {
			return fmt.Errorf("capture loop: %w", err)
		}
		return nil
	})

	g.Go(o.dispatcher.Run)

	g.Go(func() error {
		if err := o.playback.Run(); err != nil {
			return fmt.Errorf("playback loop: %w", err)
		}
		return nil
	})

	if o.connection != nil {
		g.Go(func() error {
			if err := o.connection.Run(); err != nil {
				return fmt.Errorf("connection loop: %w", err)
			}
			return nil
		})
	}

	err := g.Wait()
	o.RequestShutdown()

	o.logger.Info("all loops stopped")

	return err
}

// RequestShutdown sets the interrupt and closes the backend connection so
// its loop is not left blocked in a read. Only the first call has an
// effect; later calls wait for it to finish.
func (o *Orchestrator) RequestShutdown() {
	o.shutdownOnce.Do(func() {
		if o.interrupt.Set() {
			o.logger.Info("shutdown requested")
		}

		if o.connection != nil {
			if err := o.connection.Close(); err != nil {
				o.logger.Debug("closing connection", "err", err)
			}
		}
	})
}
