package audio

import (
	"bytes"
	"fmt"
	"io"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/spf13/afero"
	"github.com/zenwerk/go-wave"
)

// Clip is a complete piece of playable 16-bit PCM.
type Clip struct {
	Data   []byte
	Format Format
}

func (c Clip) Duration() time.Duration {
	return c.Format.Duration(len(c.Data))
}

// Empty reports whether there is nothing to play.
func (c Clip) Empty() bool {
	return len(c.Data) == 0
}

// DecodeWAV reads a RIFF/WAVE stream and converts it to a 16-bit clip,
// keeping the source sample rate and channel count.
func DecodeWAV(r io.ReadSeeker) (Clip, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return Clip{}, fmt.Errorf("audio: decode wav: not a valid wav stream")
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return Clip{}, fmt.Errorf("audio: decode wav: %w", err)
	}

	return clipFromIntBuffer(buf, int(d.BitDepth))
}

// LoadWAV decodes the WAV file at path on fs.
func LoadWAV(fs afero.Fs, path string) (Clip, error) {
	f, err := fs.Open(path)
	if err != nil {
		return Clip{}, fmt.Errorf("audio: open %q: %w", path, err)
	}
	defer f.Close()

	clip, err := DecodeWAV(f)
	if err != nil {
		return Clip{}, fmt.Errorf("audio: %q: %w", path, err)
	}
	return clip, nil
}

func clipFromIntBuffer(buf *goaudio.IntBuffer, bitDepth int) (Clip, error) {
	if buf == nil || buf.Format == nil {
		return Clip{}, fmt.Errorf("audio: decode wav: missing format")
	}
	if bitDepth == 0 {
		bitDepth = buf.SourceBitDepth
	}

	samples := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		switch bitDepth {
		case 8:
			samples[i] = int16((v - 128) << 8)
		case 16:
			samples[i] = int16(v)
		case 24:
			samples[i] = int16(v >> 8)
		case 32:
			samples[i] = int16(v >> 16)
		default:
			return Clip{}, fmt.Errorf("audio: decode wav: unsupported bit depth %d", bitDepth)
		}
	}

	return Clip{
		Data: PCM(samples),
		Format: Format{
			SampleRate: buf.Format.SampleRate,
			BitDepth:   16,
			Channels:   buf.Format.NumChannels,
		},
	}, nil
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

// EncodeWAV wraps 16-bit pcm in a RIFF/WAVE container.
func EncodeWAV(pcm []byte, format Format) ([]byte, error) {
	var buf bytes.Buffer

	waveWriter, err := wave.NewWriter(wave.WriterParam{
		Out:           nopCloser{&buf},
		Channel:       format.Channels,
		SampleRate:    format.SampleRate,
		BitsPerSample: 16,
	})
	if err != nil {
		return nil, fmt.Errorf("audio: encode wav: %w", err)
	}

	if _, err = waveWriter.WriteSample16(Samples(pcm)); err != nil {
		return nil, fmt.Errorf("audio: encode wav: %w", err)
	}

	if err = waveWriter.Close(); err != nil {
		return nil, fmt.Errorf("audio: encode wav: %w", err)
	}

	return buf.Bytes(), nil
}
