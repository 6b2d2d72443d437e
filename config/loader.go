package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

const FileName = "configuration.yaml"

// ErrNotFound is returned by Load when no configuration file exists.
var ErrNotFound = errors.New("config: no configuration file found")

// ValidNames lists the implementations selectable by name.
var ValidNames = map[string][]string{
	"hotword.engine":         {"whisper-phrase"},
	"speech.recognizer.name": {"whisper", "whisper-server"},
	"speech.generator.name":  {"say", "espeak"},
}

// SearchPaths returns the locations Load tries, in order.
func SearchPaths() []string {
	paths := []string{filepath.Join(".", FileName)}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".opsdroidaudio", FileName))
	}
	return append(paths, filepath.Join("/etc/opsdroidaudio", FileName))
}

// Load reads the configuration at path, or the first file found in
// SearchPaths when path is empty.
func Load(fs afero.Fs, path string) (*Config, error) {
	if path == "" {
		for _, candidate := range SearchPaths() {
			ok, err := afero.Exists(fs, candidate)
			if err != nil || !ok {
				slog.Debug("config file not found", "path", candidate)
				continue
			}
			path = candidate
			break
		}
		if path == "" {
			return nil, ErrNotFound
		}
	}

	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}

	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	cfg.Dir = filepath.Dir(path)

	slog.Info("loaded config", "path", path)

	return cfg, nil
}

// LoadFromReader decodes YAML from r, fills in defaults and validates the
// result.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}

	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills every unset field.
func ApplyDefaults(cfg *Config) {
	setDefault(&cfg.LogLevel, LogInfo)

	setDefault(&cfg.Audio.SampleRate, 16000)
	setDefault(&cfg.Audio.BitDepth, 16)
	setDefault(&cfg.Audio.Channels, 1)
	setDefault(&cfg.Audio.FramesPerBuffer, 2048)
	setDefault(&cfg.Audio.BufferSeconds, 5)
	setDefault(&cfg.Audio.PollInterval, 30*time.Millisecond)

	setDefault(&cfg.Hotword.Engine, "whisper-phrase")
	setDefault(&cfg.Hotword.Window, 2*time.Second)
	setDefault(&cfg.Hotword.Stride, 500*time.Millisecond)
	setDefault(&cfg.Hotword.Timeout, 3*time.Second)
	setDefault(&cfg.Hotword.Sensitivity, 0.5)
	for i := range cfg.Hotword.Phrases {
		setDefault(&cfg.Hotword.Phrases[i].Sensitivity, cfg.Hotword.Sensitivity)
	}

	setDefault(&cfg.Recording.SilenceThreshold, 3000)
	setDefault(&cfg.Recording.SilenceStartDelay, 3)
	setDefault(&cfg.Recording.SilenceRequired, 4)

	setDefault(&cfg.Speech.Recognizer.Name, "whisper")
	setDefault(&cfg.Speech.Generator.Name, "say")
	setDefault(&cfg.Hotword.Model, cfg.Speech.Recognizer.Model)
	setDefault(&cfg.Hotword.Language, cfg.Speech.Recognizer.Language)

	setDefault(&cfg.Playback.PollInterval, 100*time.Millisecond)
	setDefault(&cfg.Backend.ReconnectDelay, 5*time.Second)
}

func setDefault[T comparable](field *T, value T) {
	var zero T
	if *field == zero {
		*field = value
	}
}

// Validate checks cfg after defaults are applied. It returns every problem
// found, joined.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}

	if cfg.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate must be positive, got %d", cfg.Audio.SampleRate))
	}
	if cfg.Audio.BitDepth != 16 {
		errs = append(errs, fmt.Errorf("audio.bit_depth %d is unsupported; only 16 is", cfg.Audio.BitDepth))
	}
	if cfg.Audio.Channels <= 0 {
		errs = append(errs, fmt.Errorf("audio.channels must be positive, got %d", cfg.Audio.Channels))
	}
	if cfg.Audio.FramesPerBuffer <= 0 {
		errs = append(errs, fmt.Errorf("audio.frames_per_buffer must be positive, got %d", cfg.Audio.FramesPerBuffer))
	}
	if cfg.Audio.BufferSeconds <= 0 {
		errs = append(errs, fmt.Errorf("audio.buffer_seconds must be positive, got %d", cfg.Audio.BufferSeconds))
	}
	if cfg.Audio.PollInterval < 0 {
		errs = append(errs, fmt.Errorf("audio.poll_interval must not be negative"))
	}
	if cfg.Audio.Device != "" {
		if n, err := strconv.Atoi(cfg.Audio.Device); err != nil || n < 0 {
			errs = append(errs, fmt.Errorf("audio.device %q is not a device index", cfg.Audio.Device))
		}
	}

	errs = append(errs, validateName("hotword.engine", cfg.Hotword.Engine))
	if len(cfg.Hotword.Phrases) == 0 {
		errs = append(errs, fmt.Errorf("hotword.phrases needs at least one phrase"))
	}
	for i, p := range cfg.Hotword.Phrases {
		prefix := fmt.Sprintf("hotword.phrases[%d]", i)
		if p.Phrase == "" {
			errs = append(errs, fmt.Errorf("%s.phrase is required", prefix))
		}
		if p.Sensitivity < 0 || p.Sensitivity > 1 {
			errs = append(errs, fmt.Errorf("%s.sensitivity %.2f is out of range [0, 1]", prefix, p.Sensitivity))
		}
	}
	if cfg.Hotword.Window <= 0 || cfg.Hotword.Stride <= 0 {
		errs = append(errs, fmt.Errorf("hotword.window and hotword.stride must be positive"))
	}
	if cfg.Hotword.Timeout < 0 {
		errs = append(errs, fmt.Errorf("hotword.timeout must not be negative"))
	}
	if cfg.Hotword.Model == "" {
		errs = append(errs, fmt.Errorf("hotword.model is required when speech.recognizer.model is not set"))
	}

	if cfg.Recording.SilenceThreshold <= 0 {
		errs = append(errs, fmt.Errorf("recording.silence_threshold must be positive, got %d", cfg.Recording.SilenceThreshold))
	}
	if cfg.Recording.SilenceStartDelay < 0 {
		errs = append(errs, fmt.Errorf("recording.silence_start_delay must not be negative"))
	}
	if cfg.Recording.SilenceRequired <= 0 {
		errs = append(errs, fmt.Errorf("recording.silence_required must be positive, got %d", cfg.Recording.SilenceRequired))
	}

	errs = append(errs, validateName("speech.recognizer.name", cfg.Speech.Recognizer.Name))
	switch cfg.Speech.Recognizer.Name {
	case "whisper":
		if cfg.Speech.Recognizer.Model == "" {
			errs = append(errs, fmt.Errorf("speech.recognizer.model is required for whisper"))
		}
	case "whisper-server":
		if err := validateURL(cfg.Speech.Recognizer.BaseURL, "http", "https"); err != nil {
			errs = append(errs, fmt.Errorf("speech.recognizer.base_url: %w", err))
		}
	}

	errs = append(errs, validateName("speech.generator.name", cfg.Speech.Generator.Name))
	if cfg.Speech.Generator.Rate < 0 {
		errs = append(errs, fmt.Errorf("speech.generator.rate must not be negative"))
	}

	if cfg.Backend.URL != "" {
		if err := validateURL(cfg.Backend.URL, "http", "https"); err != nil {
			errs = append(errs, fmt.Errorf("backend.url: %w", err))
		}
	}
	if cfg.Backend.ReconnectDelay < 0 {
		errs = append(errs, fmt.Errorf("backend.reconnect_delay must not be negative"))
	}

	return errors.Join(errs...)
}

func validateName(field, name string) error {
	if slices.Contains(ValidNames[field], name) {
		return nil
	}
	return fmt.Errorf("%s %q is invalid; valid values: %v", field, name, ValidNames[field])
}

func validateURL(raw string, schemes ...string) error {
	if raw == "" {
		return fmt.Errorf("is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if !slices.Contains(schemes, u.Scheme) || u.Host == "" {
		return fmt.Errorf("%q must be an absolute %v URL", raw, schemes)
	}
	return nil
}

// ResolveModel finds the whisper model file for name. A name that is not an
// existing file is looked up as <dir>/models/<name>.bin.
func ResolveModel(fs afero.Fs, dir, name string) (string, error) {
	if ok, _ := afero.Exists(fs, name); ok {
		return name, nil
	}

	path := filepath.Join(dir, "models", name+".bin")
	if ok, _ := afero.Exists(fs, path); ok {
		return path, nil
	}

	return "", fmt.Errorf("config: unable to find model %q at %s", name, path)
}
