// Package speaker owns the output device. Every sound, whether a cue from
// the capture loop or synthesized speech from the playback loop, goes
// through one Speaker so at most one clip plays at a time.
package speaker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/spf13/afero"

	"opsdroid-audio/audio"
	"opsdroid-audio/device"
)

type Speaker struct {
	mu     sync.Mutex
	output device.Output
}

func New(output device.Output) *Speaker {
	return &Speaker{output: output}
}

// Play holds the output lock for the duration of the clip.
func (s *Speaker) Play(ctx context.Context, clip audio.Clip) error {
	if clip.Empty() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.output.Play(ctx, clip)
}

// Cues are the short sounds played when a hotword is heard and when the
// recording ends.
type Cues struct {
	speaker *Speaker
	logger  *slog.Logger
	wake    audio.Clip
	done    audio.Clip
	wg      sync.WaitGroup
}

type CuesConfig struct {
	Speaker  *Speaker
	FileSys  afero.Fs
	WakePath string
	DonePath string
	Logger   *slog.Logger
}

// NewCues loads the cue files. An empty path leaves that cue silent.
func NewCues(cfg *CuesConfig) (*Cues, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.Speaker == nil {
		return nil, fmt.Errorf("speaker is nil")
	}

	if cfg.FileSys == nil && (cfg.WakePath != "" || cfg.DonePath != "") {
		return nil, fmt.Errorf("fileSys is nil")
	}

	c := &Cues{
		speaker: cfg.Speaker,
		logger:  cfg.Logger,
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}

	var err error
	if cfg.WakePath != "" {
		if c.wake, err = audio.LoadWAV(cfg.FileSys, cfg.WakePath); err != nil {
			return nil, fmt.Errorf("wake cue: %w", err)
		}
	}
	if cfg.DonePath != "" {
		if c.done, err = audio.LoadWAV(cfg.FileSys, cfg.DonePath); err != nil {
			return nil, fmt.Errorf("done cue: %w", err)
		}
	}

	return c, nil
}

// Wake plays the wake cue without blocking the caller.
func (c *Cues) Wake(hotword int) {
	c.logger.Debug("playing wake cue", "hotword", hotword)
	c.play("wake", c.wake)
}

// Done plays the recording-finished cue without blocking the caller.
func (c *Cues) Done() {
	c.play("done", c.done)
}

func (c *Cues) play(name string, clip audio.Clip) {
	if clip.Empty() {
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		if err := c.speaker.Play(context.Background(), clip); err != nil {
			c.logger.Warn("playing cue", "cue", name, "err", err)
		}
	}()
}

// Wait blocks until every cue started so far has finished.
func (c *Cues) Wait() {
	c.wg.Wait()
}
