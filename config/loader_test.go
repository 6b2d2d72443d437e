package config_test

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"

	"opsdroid-audio/config"
)

const minimal = `
hotword:
  phrases:
    - phrase: hey opsdroid
speech:
  recognizer:
    model: base.en
`

func TestLoadFromReader_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(minimal))
	if err != nil {
		t.Fatalf("LoadFromReader() error = %v", err)
	}

	if cfg.LogLevel != config.LogInfo {
		t.Errorf("log_level = %q", cfg.LogLevel)
	}
	if cfg.Audio.SampleRate != 16000 || cfg.Audio.BitDepth != 16 || cfg.Audio.Channels != 1 {
		t.Errorf("audio = %+v", cfg.Audio)
	}
	if cfg.Audio.PollInterval != 30*time.Millisecond {
		t.Errorf("audio.poll_interval = %v", cfg.Audio.PollInterval)
	}
	if r := cfg.Recording; r.SilenceThreshold != 3000 || r.SilenceStartDelay != 3 || r.SilenceRequired != 4 {
		t.Errorf("recording = %+v", r)
	}
	if cfg.Hotword.Model != "base.en" {
		t.Errorf("hotword.model = %q, want the recognizer model", cfg.Hotword.Model)
	}
	if cfg.Hotword.Timeout != 3*time.Second {
		t.Errorf("hotword.timeout = %v", cfg.Hotword.Timeout)
	}
	if cfg.Hotword.Phrases[0].Sensitivity != 0.5 {
		t.Errorf("phrase sensitivity = %v", cfg.Hotword.Phrases[0].Sensitivity)
	}
	if cfg.Speech.Recognizer.Name != "whisper" || cfg.Speech.Generator.Name != "say" {
		t.Errorf("speech = %+v", cfg.Speech)
	}
	if cfg.Backend.URL != "" || cfg.Backend.ReconnectDelay != 5*time.Second {
		t.Errorf("backend = %+v", cfg.Backend)
	}
	if cfg.Playback.DrainOnShutdown || cfg.Recording.DeliverOnShutdown {
		t.Error("shutdown flushing should default to off")
	}
}

func TestLoadFromReader_Overrides(t *testing.T) {
	t.Parallel()

	yaml := `
log_level: debug
audio:
  poll_interval: 10ms
  device: "2"
hotword:
  model: tiny.en
  timeout: 1500ms
  sensitivity: 0.8
  phrases:
    - phrase: hey opsdroid
    - phrase: computer
      sensitivity: 0.2
recording:
  silence_threshold: 1500
  deliver_on_shutdown: true
speech:
  recognizer:
    name: whisper-server
    base_url: http://localhost:8081
  generator:
    name: espeak
    voice: en-gb
backend:
  url: http://localhost:8080
  reconnect_delay: 2s
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader() error = %v", err)
	}

	if cfg.Audio.PollInterval != 10*time.Millisecond || cfg.Audio.Device != "2" {
		t.Errorf("audio = %+v", cfg.Audio)
	}
	if cfg.Hotword.Timeout != 1500*time.Millisecond {
		t.Errorf("hotword.timeout = %v", cfg.Hotword.Timeout)
	}
	if got := cfg.Hotword.Phrases; got[0].Sensitivity != 0.8 || got[1].Sensitivity != 0.2 {
		t.Errorf("sensitivities = %v, %v; want 0.8, 0.2", got[0].Sensitivity, got[1].Sensitivity)
	}
	if cfg.Recording.SilenceThreshold != 1500 || !cfg.Recording.DeliverOnShutdown {
		t.Errorf("recording = %+v", cfg.Recording)
	}
	if cfg.Backend.ReconnectDelay != 2*time.Second {
		t.Errorf("backend.reconnect_delay = %v", cfg.Backend.ReconnectDelay)
	}
}

func TestLoadFromReader_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		yaml string
		want []string
	}{
		{
			name: "unknown field",
			yaml: minimal + "bogus: true\n",
			want: []string{"bogus"},
		},
		{
			name: "no phrases",
			yaml: "speech:\n  recognizer:\n    model: base.en\n",
			want: []string{"hotword.phrases"},
		},
		{
			name: "several problems at once",
			yaml: `
log_level: loud
audio:
  bit_depth: 24
hotword:
  phrases:
    - phrase: hey opsdroid
      sensitivity: 1.5
speech:
  recognizer:
    name: cloud
    model: base.en
backend:
  url: ws://localhost
`,
			want: []string{"log_level", "bit_depth", "sensitivity", "speech.recognizer.name", "backend.url"},
		},
		{
			name: "whisper server without url",
			yaml: `
hotword:
  model: tiny.en
  phrases:
    - phrase: hey opsdroid
speech:
  recognizer:
    name: whisper-server
`,
			want: []string{"base_url"},
		},
		{
			name: "bad device index",
			yaml: minimal + "audio:\n  device: usb\n",
			want: []string{"audio.device"},
		},
		{
			name: "bad duration",
			yaml: minimal + "backend:\n  reconnect_delay: soon\n",
			want: []string{"decode"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := config.LoadFromReader(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatal("LoadFromReader() error = nil")
			}
			for _, want := range tt.want {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("error %q does not mention %q", err, want)
				}
			}
		})
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()

	t.Run("explicit path", func(t *testing.T) {
		t.Parallel()

		fs := afero.NewMemMapFs()
		path := "/srv/audio/custom.yaml"
		if err := afero.WriteFile(fs, path, []byte(minimal), 0o644); err != nil {
			t.Fatal(err)
		}

		cfg, err := config.Load(fs, path)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.Dir != "/srv/audio" {
			t.Errorf("Dir = %q", cfg.Dir)
		}
	})

	t.Run("search paths", func(t *testing.T) {
		t.Parallel()

		fs := afero.NewMemMapFs()
		path := "/etc/opsdroidaudio/configuration.yaml"
		if err := afero.WriteFile(fs, path, []byte(minimal), 0o644); err != nil {
			t.Fatal(err)
		}

		cfg, err := config.Load(fs, "")
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.Dir != "/etc/opsdroidaudio" {
			t.Errorf("Dir = %q", cfg.Dir)
		}
	})

	t.Run("nothing found", func(t *testing.T) {
		t.Parallel()

		_, err := config.Load(afero.NewMemMapFs(), "")
		if !errors.Is(err, config.ErrNotFound) {
			t.Errorf("Load() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("missing explicit path", func(t *testing.T) {
		t.Parallel()

		if _, err := config.Load(afero.NewMemMapFs(), "/nope.yaml"); err == nil {
			t.Error("Load() error = nil")
		}
	})
}

func TestResolveModel(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	for _, p := range []string{"/models/ggml-base.bin", "/etc/opsdroidaudio/models/base.en.bin"} {
		if err := afero.WriteFile(fs, p, []byte("model"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name    string
		model   string
		want    string
		wantErr bool
	}{
		{"existing file", "/models/ggml-base.bin", "/models/ggml-base.bin", false},
		{"name in config dir", "base.en", filepath.Join("/etc/opsdroidaudio", "models", "base.en.bin"), false},
		{"missing", "large", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := config.ResolveModel(fs, "/etc/opsdroidaudio", tt.model)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ResolveModel() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ResolveModel() = %q, want %q", got, tt.want)
			}
			if tt.wantErr && !strings.Contains(err.Error(), "models/large.bin") {
				t.Errorf("error %q does not name the path", err)
			}
		})
	}
}
