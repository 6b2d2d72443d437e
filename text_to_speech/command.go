package text_to_speech

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"opsdroid-audio/audio"
)

const (
	NameSay    = "say"
	NameEspeak = "espeak"
)

// RunFunc runs an external program to completion.
type RunFunc func(ctx context.Context, name string, args ...string) error

type Config struct {
	// Name is the generator binary: "say" (macOS) or "espeak".
	Name  string
	Voice string
	// Rate is words per minute; zero keeps the program default.
	Rate int
	// SampleRate asks say for output at this rate; espeak always uses its
	// native rate.
	SampleRate int
	FileSys    afero.Fs
	TempDir    string
	Run        RunFunc
}

type commandImpl struct {
	name       string
	voice      string
	rate       int
	sampleRate int
	fileSys    afero.Fs
	tempDir    string
	run        RunFunc
}

// New returns a synthesizer that shells out to a speech program and reads
// back the WAV file it writes.
func New(cfg *Config) (Interface, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.Name != NameSay && cfg.Name != NameEspeak {
		return nil, fmt.Errorf("unknown speech generator %q", cfg.Name)
	}

	if cfg.Rate < 0 {
		return nil, fmt.Errorf("rate %d must not be negative", cfg.Rate)
	}

	c := &commandImpl{
		name:       cfg.Name,
		voice:      cfg.Voice,
		rate:       cfg.Rate,
		sampleRate: cfg.SampleRate,
		fileSys:    cfg.FileSys,
		tempDir:    cfg.TempDir,
		run:        cfg.Run,
	}

	if c.sampleRate <= 0 {
		c.sampleRate = audio.DefaultFormat.SampleRate
	}
	if c.fileSys == nil {
		c.fileSys = afero.NewOsFs()
	}
	if c.tempDir == "" {
		c.tempDir = os.TempDir()
	}
	if c.run == nil {
		c.run = runCommand
	}

	return c, nil
}

func runCommand(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%w: %s", err, msg)
		}
		return err
	}

	return nil
}

func (c *commandImpl) Synthesize(ctx context.Context, text string) (audio.Clip, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return audio.Clip{}, nil
	}

	path := filepath.Join(c.tempDir, "opsdroid-audio-"+uuid.NewString()+".wav")
	defer c.fileSys.Remove(path)

	if err := c.run(ctx, c.name, c.args(path, text)...); err != nil {
		if ctx.Err() != nil {
			return audio.Clip{}, ctx.Err()
		}
		return audio.Clip{}, fmt.Errorf("%w: %s: %v", ErrSynthesisUnavailable, c.name, err)
	}

	clip, err := audio.LoadWAV(c.fileSys, path)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("%w: %s: %v", ErrSynthesisUnavailable, c.name, err)
	}

	return clip, nil
}

func (c *commandImpl) args(path, text string) []string {
	switch c.name {
	case NameSay:
		args := []string{"-o", path, "--data-format=LEI16@" + strconv.Itoa(c.sampleRate)}
		if c.voice != "" {
			args = append(args, "-v", c.voice)
		}
		if c.rate > 0 {
			args = append(args, "-r", strconv.Itoa(c.rate))
		}
		return append(args, text)

	default:
		args := []string{"-w", path}
		if c.voice != "" {
			args = append(args, "-v", c.voice)
		}
		if c.rate > 0 {
			args = append(args, "-s", strconv.Itoa(c.rate))
		}
		return append(args, text)
	}
}
