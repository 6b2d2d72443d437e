// Package config holds the configuration schema and loader for
// opsdroid-audio.
package config

import "time"

type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root of configuration.yaml.
type Config struct {
	LogLevel  LogLevel        `yaml:"log_level"`
	Audio     AudioConfig     `yaml:"audio"`
	Hotword   HotwordConfig   `yaml:"hotword"`
	Recording RecordingConfig `yaml:"recording"`
	Cues      CuesConfig      `yaml:"cues"`
	Speech    SpeechConfig    `yaml:"speech"`
	Playback  PlaybackConfig  `yaml:"playback"`
	Backend   BackendConfig   `yaml:"backend"`
	Metrics   MetricsConfig   `yaml:"metrics"`

	// Dir is the directory the configuration was loaded from. Relative
	// model names are resolved against it.
	Dir string `yaml:"-"`
}

type AudioConfig struct {
	SampleRate      int `yaml:"sample_rate"`
	BitDepth        int `yaml:"bit_depth"`
	Channels        int `yaml:"channels"`
	FramesPerBuffer int `yaml:"frames_per_buffer"`
	// BufferSeconds sizes the capture ring buffer.
	BufferSeconds int           `yaml:"buffer_seconds"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	// Device is a PortAudio device index. Empty means the default input.
	Device string `yaml:"device"`
}

type HotwordConfig struct {
	Engine string `yaml:"engine"`
	// Model defaults to the recognizer model.
	Model    string        `yaml:"model"`
	Language string        `yaml:"language"`
	Window   time.Duration `yaml:"window"`
	Stride   time.Duration `yaml:"stride"`
	// Timeout bounds one transcription of the window.
	Timeout time.Duration `yaml:"timeout"`
	// Sensitivity applies to every phrase that does not set its own.
	Sensitivity float64  `yaml:"sensitivity"`
	Phrases     []Phrase `yaml:"phrases"`
}

type Phrase struct {
	Phrase      string  `yaml:"phrase"`
	Sensitivity float64 `yaml:"sensitivity"`
}

type RecordingConfig struct {
	SilenceThreshold  int  `yaml:"silence_threshold"`
	SilenceStartDelay int  `yaml:"silence_start_delay"`
	SilenceRequired   int  `yaml:"silence_required"`
	DeliverOnShutdown bool `yaml:"deliver_on_shutdown"`
	// ArchiveDir keeps a WAV of every utterance when set.
	ArchiveDir string `yaml:"archive_dir"`
}

// CuesConfig names the WAV files played on wake and after recording.
type CuesConfig struct {
	Wake string `yaml:"wake"`
	Done string `yaml:"done"`
}

type SpeechConfig struct {
	Recognizer RecognizerConfig `yaml:"recognizer"`
	Generator  GeneratorConfig  `yaml:"generator"`
}

type RecognizerConfig struct {
	Name     string `yaml:"name"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Language string `yaml:"language"`
}

type GeneratorConfig struct {
	Name  string `yaml:"name"`
	Voice string `yaml:"voice"`
	Rate  int    `yaml:"rate"`
}

type PlaybackConfig struct {
	PollInterval    time.Duration `yaml:"poll_interval"`
	DrainOnShutdown bool          `yaml:"drain_on_shutdown"`
}

// BackendConfig points at opsdroid. An empty URL echoes recognized speech
// back instead.
type BackendConfig struct {
	URL            string        `yaml:"url"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
}

type MetricsConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}
