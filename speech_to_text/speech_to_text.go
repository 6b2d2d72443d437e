package speech_to_text

import (
	"fmt"
	"net/http"
	"time"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

const (
	NameWhisper       = "whisper"
	NameWhisperServer = "whisper-server"
)

type Config struct {
	// Name picks the recognizer: "whisper" runs Model in-process,
	// "whisper-server" uploads to BaseURL.
	Name       string
	Model      whisper.Model
	BaseURL    string
	Language   string
	HTTPClient *http.Client
}

func New(cfg *Config) (Interface, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	switch cfg.Name {
	case NameWhisper, "":
		if cfg.Model == nil {
			return nil, fmt.Errorf("model is nil")
		}

		return &whisperImpl{
			model:    cfg.Model,
			sem:      lockFor(cfg.Model),
			language: cfg.Language,
		}, nil

	case NameWhisperServer:
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("baseURL is empty")
		}

		httpClient := cfg.HTTPClient
		if httpClient == nil {
			httpClient = &http.Client{Timeout: 30 * time.Second}
		}

		return &serverImpl{
			baseURL:    cfg.BaseURL,
			language:   cfg.Language,
			httpClient: httpClient,
		}, nil
	}

	return nil, fmt.Errorf("unknown recognizer %q", cfg.Name)
}
