package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/spf13/afero"

	"opsdroid-audio/audio"
	"opsdroid-audio/clients/opsdroid"
	"opsdroid-audio/config"
	"opsdroid-audio/device"
	"opsdroid-audio/hotword"
	"opsdroid-audio/interrupt"
	"opsdroid-audio/listener"
	"opsdroid-audio/observe"
	"opsdroid-audio/orchestrator"
	"opsdroid-audio/speaker"
	"opsdroid-audio/speech_extraction"
	"opsdroid-audio/speech_to_text"
	"opsdroid-audio/text_to_speech"
	"opsdroid-audio/voice_activity_detection"
)

var version = "dev"

func main() {
	configFlag := flag.String("c", "", "path to configuration.yaml")
	modelFlag := flag.String("m", "", "model file for whisper, overrides speech.recognizer.model")

	flag.Parse()

	if err := run(*configFlag, *modelFlag); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(configPath, modelOverride string) error {
	fs := afero.NewOsFs()

	cfg, err := config.Load(fs, configPath)
	if err != nil {
		return err
	}

	if modelOverride != "" {
		if cfg.Hotword.Model == cfg.Speech.Recognizer.Model {
			cfg.Hotword.Model = modelOverride
		}
		cfg.Speech.Recognizer.Model = modelOverride
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	ctx := context.Background()

	metrics, shutdownMetrics, err := observe.InitProvider(ctx, version)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(shutdownCtx); err != nil {
			logger.Warn("metrics shutdown", "err", err)
		}
	}()

	if cfg.Metrics.ListenAddr != "" {
		srv := &http.Server{Addr: cfg.Metrics.ListenAddr, Handler: observe.Handler()}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("metrics server stopped", "err", err)
			}
		}()
		defer srv.Close()
		logger.Info("serving metrics", "addr", cfg.Metrics.ListenAddr)
	}

	format := audio.Format{
		SampleRate: cfg.Audio.SampleRate,
		BitDepth:   cfg.Audio.BitDepth,
		Channels:   cfg.Audio.Channels,
	}
	if err = format.Validate(); err != nil {
		return err
	}

	// Load models. The classifier gets its own copy so wake detection never
	// waits for an utterance to be transcribed.
	var models []whisper.Model
	loadModel := func(name string) (whisper.Model, error) {
		path, err := config.ResolveModel(fs, cfg.Dir, name)
		if err != nil {
			return nil, err
		}
		model, err := whisper.New(path)
		if err != nil {
			return nil, fmt.Errorf("error loading model %s: %w", path, err)
		}
		logger.Info("loaded model", "path", path)
		models = append(models, model)
		return model, nil
	}
	defer func() {
		for _, model := range models {
			model.Close()
		}
	}()

	recognizerCfg := &speech_to_text.Config{
		Name:     cfg.Speech.Recognizer.Name,
		BaseURL:  cfg.Speech.Recognizer.BaseURL,
		Language: cfg.Speech.Recognizer.Language,
	}
	if recognizerCfg.Name == speech_to_text.NameWhisper {
		if recognizerCfg.Model, err = loadModel(cfg.Speech.Recognizer.Model); err != nil {
			return err
		}
	}
	recognizer, err := speech_to_text.New(recognizerCfg)
	if err != nil {
		return fmt.Errorf("error with speech_to_text.New: %w", err)
	}

	hotwordModel, err := loadModel(cfg.Hotword.Model)
	if err != nil {
		return err
	}
	hotwordRecognizer, err := speech_to_text.New(&speech_to_text.Config{
		Name:     speech_to_text.NameWhisper,
		Model:    hotwordModel,
		Language: cfg.Hotword.Language,
	})
	if err != nil {
		return fmt.Errorf("error with speech_to_text.New: %w", err)
	}

	intr := interrupt.New()

	phrases := make([]hotword.Phrase, 0, len(cfg.Hotword.Phrases))
	for _, p := range cfg.Hotword.Phrases {
		phrases = append(phrases, hotword.Phrase{Text: p.Phrase, Sensitivity: p.Sensitivity})
	}
	classifier, err := hotword.New(&hotword.Config{
		Recognizer: hotwordRecognizer,
		Phrases:    phrases,
		Format:     format,
		Window:     cfg.Hotword.Window,
		Stride:     cfg.Hotword.Stride,
		Timeout:    cfg.Hotword.Timeout,
		Interrupt:  intr,
		VAD:        voice_activity_detection.New(cfg.Audio.FramesPerBuffer),
	})
	if err != nil {
		return fmt.Errorf("error with hotword.New: %w", err)
	}

	endpointer, err := speech_extraction.New(&speech_extraction.Config{
		StartDelay: cfg.Recording.SilenceStartDelay,
		Threshold:  cfg.Recording.SilenceThreshold,
		Required:   cfg.Recording.SilenceRequired,
	})
	if err != nil {
		return fmt.Errorf("error with speech_extraction.New: %w", err)
	}

	var archiver speech_extraction.ArchiveInterface
	if cfg.Recording.ArchiveDir != "" {
		archiver, err = speech_extraction.NewArchiver(&speech_extraction.ArchiveConfig{
			FileSys: fs,
			Dir:     cfg.Recording.ArchiveDir,
		})
		if err != nil {
			return fmt.Errorf("error with speech_extraction.NewArchiver: %w", err)
		}
	}

	synthesizer, err := text_to_speech.New(&text_to_speech.Config{
		Name:       cfg.Speech.Generator.Name,
		Voice:      cfg.Speech.Generator.Voice,
		Rate:       cfg.Speech.Generator.Rate,
		SampleRate: format.SampleRate,
		FileSys:    fs,
	})
	if err != nil {
		return fmt.Errorf("error with text_to_speech.New: %w", err)
	}

	host, err := device.Initialize()
	if err != nil {
		return err
	}
	defer host.Close()

	host.LogDevices(logger)

	input, err := device.NewInput(&device.InputConfig{
		Format:          format,
		FramesPerBuffer: cfg.Audio.FramesPerBuffer,
		Device:          cfg.Audio.Device,
	})
	if err != nil {
		return err
	}

	output := device.NewOutput(cfg.Audio.FramesPerBuffer)
	defer output.Close()

	spk := speaker.New(output)

	cues, err := speaker.NewCues(&speaker.CuesConfig{
		Speaker:  spk,
		FileSys:  fs,
		WakePath: cfg.Cues.Wake,
		DonePath: cfg.Cues.Done,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("error with speaker.NewCues: %w", err)
	}
	defer cues.Wait()

	queue := speaker.NewQueue()
	speak := orchestrator.QueueSpeech(queue, metrics, logger)

	playback, err := speaker.NewPlayback(&speaker.PlaybackConfig{
		Queue:           queue,
		Synthesizer:     synthesizer,
		Speaker:         spk,
		Interrupt:       intr,
		PollInterval:    cfg.Playback.PollInterval,
		DrainOnShutdown: cfg.Playback.DrainOnShutdown,
		Metrics:         metrics,
		Logger:          logger,
	})
	if err != nil {
		return fmt.Errorf("error with speaker.NewPlayback: %w", err)
	}

	var (
		connection *opsdroid.Connection
		bot        opsdroid.BotAPI
		loop       orchestrator.Connection
	)
	if cfg.Backend.URL != "" {
		connection, err = opsdroid.New(&opsdroid.Config{
			BaseURL:        cfg.Backend.URL,
			OnMessage:      speak,
			Interrupt:      intr,
			ReconnectDelay: cfg.Backend.ReconnectDelay,
			Metrics:        metrics,
			Logger:         logger,
		})
		if err != nil {
			return fmt.Errorf("error with opsdroid.New: %w", err)
		}
		bot, loop = connection, connection
	} else {
		logger.Warn("no backend configured, echoing recognized speech")
	}

	dispatcher, err := orchestrator.NewDispatcher(&orchestrator.DispatcherConfig{
		Recognizer:        recognizer,
		Bot:               bot,
		Speak:             speak,
		Interrupt:         intr,
		DeliverOnShutdown: cfg.Recording.DeliverOnShutdown,
		Archiver:          archiver,
		Metrics:           metrics,
		Logger:            logger,
	})
	if err != nil {
		return fmt.Errorf("error with orchestrator.NewDispatcher: %w", err)
	}

	capture, err := listener.New(&listener.Config{
		Input:         input,
		Classifier:    classifier,
		Endpointer:    endpointer,
		Format:        format,
		BufferSeconds: cfg.Audio.BufferSeconds,
		PollInterval:  cfg.Audio.PollInterval,
		OnDetected:    []func(int){cues.Wake},
		OnRecorded: func(utt audio.Utterance) {
			cues.Done()
			dispatcher.Submit(utt)
		},
		Interrupt:         intr,
		DeliverOnShutdown: cfg.Recording.DeliverOnShutdown,
		Metrics:           metrics,
		Logger:            logger,
	})
	if err != nil {
		input.Close()
		return fmt.Errorf("error with listener.New: %w", err)
	}

	orch, err := orchestrator.New(&orchestrator.Config{
		Listener:   capture,
		Playback:   playback,
		Dispatcher: dispatcher,
		Connection: loop,
		Interrupt:  intr,
		Logger:     logger,
	})
	if err != nil {
		input.Close()
		return fmt.Errorf("error with orchestrator.New: %w", err)
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signals)
	go func() {
		sig := <-signals
		logger.Info("received signal", "signal", sig)
		orch.RequestShutdown()
	}()

	logger.Info("listening, press Ctrl+C to exit", "hotwords", classifier.NumHotwords())

	return orch.Run(ctx)
}

func logLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	}
	return slog.LevelInfo
}
