package speech_extraction

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/afero"
	"github.com/zenwerk/go-wave"

	"opsdroid-audio/audio"
)

type archiverImpl struct {
	fileSys afero.Fs
	dir     string
}

type ArchiveConfig struct {
	FileSys afero.Fs
	Dir     string
}

// NewArchiver keeps a WAV copy of every recorded utterance under Dir.
func NewArchiver(cfg *ArchiveConfig) (ArchiveInterface, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.FileSys == nil {
		return nil, fmt.Errorf("fileSys is nil")
	}

	if cfg.Dir == "" {
		return nil, fmt.Errorf("dir is empty")
	}

	if err := cfg.FileSys.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("speech_extraction: create archive dir: %w", err)
	}

	return &archiverImpl{
		fileSys: cfg.FileSys,
		dir:     cfg.Dir,
	}, nil
}

// Archive writes utt as <unix>-<id>.wav and returns the path.
func (a *archiverImpl) Archive(utt audio.Utterance) (string, error) {
	name := strconv.FormatInt(utt.DetectedAt.Unix(), 10) + "-" + utt.ID + ".wav"
	path := filepath.Join(a.dir, name)

	waveFile, err := a.fileSys.Create(path)
	if err != nil {
		return "", fmt.Errorf("speech_extraction: archive: %w", err)
	}

	param := wave.WriterParam{
		Out:           waveFile,
		Channel:       utt.Format.Channels,
		SampleRate:    utt.Format.SampleRate,
		BitsPerSample: utt.Format.BitDepth,
	}

	waveWriter, err := wave.NewWriter(param)
	if err != nil {
		waveFile.Close()
		return "", fmt.Errorf("speech_extraction: archive: %w", err)
	}

	if _, err = waveWriter.WriteSample16(audio.Samples(utt.Audio)); err != nil {
		waveWriter.Close()
		return "", fmt.Errorf("speech_extraction: archive: %w", err)
	}

	// closes waveFile too
	if err = waveWriter.Close(); err != nil {
		return "", fmt.Errorf("speech_extraction: archive: %w", err)
	}

	return path, nil
}
