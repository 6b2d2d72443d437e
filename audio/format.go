// Package audio holds the PCM types shared by capture, recording and playback:
// the negotiated stream [Format], playable [Clip] values and recorded
// [Utterance] values, plus the little-endian int16 helpers they rely on.
package audio

import (
	"errors"
	"fmt"
	"time"
)

// Format describes an interleaved little-endian PCM stream. It is negotiated
// once at startup and shared by every stage of the pipeline.
type Format struct {
	SampleRate int
	BitDepth   int
	Channels   int
}

// DefaultFormat is 16 kHz mono 16-bit, the format whisper.cpp expects.
var DefaultFormat = Format{SampleRate: 16000, BitDepth: 16, Channels: 1}

// Validate reports whether the pipeline can process f. Only 16-bit samples
// are supported because amplitude analysis works on int16 values.
func (f Format) Validate() error {
	var errs []error
	if f.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio: sample rate %d must be positive", f.SampleRate))
	}
	if f.BitDepth != 16 {
		errs = append(errs, fmt.Errorf("audio: bit depth %d is unsupported; only 16 is supported", f.BitDepth))
	}
	if f.Channels <= 0 {
		errs = append(errs, fmt.Errorf("audio: channel count %d must be positive", f.Channels))
	}
	return errors.Join(errs...)
}

// FrameBytes is the size of one sample across all channels.
func (f Format) FrameBytes() int {
	return f.Channels * f.BitDepth / 8
}

func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.FrameBytes()
}

// Duration returns how long n bytes of PCM in this format last.
func (f Format) Duration(n int) time.Duration {
	bps := f.BytesPerSecond()
	if bps <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(bps)
}

func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dbit/%dch", f.SampleRate, f.BitDepth, f.Channels)
}
