package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/gordonklaus/portaudio"

	"opsdroid-audio/audio"
)

// Host owns the PortAudio library lifetime. Streams must be closed before
// the host.
type Host struct {
	closeOnce sync.Once
}

func Initialize() (*Host, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: initialize portaudio: %v", ErrDevice, err)
	}

	return &Host{}, nil
}

func (h *Host) Close() error {
	var err error
	h.closeOnce.Do(func() {
		err = portaudio.Terminate()
	})
	return err
}

// LogDevices lists every device PortAudio can see, with the index that
// audio.device in the configuration refers to.
func (h *Host) LogDevices(logger *slog.Logger) {
	devices, err := portaudio.Devices()
	if err != nil {
		logger.Warn("listing audio devices", "err", err)
		return
	}

	logger.Info("audio devices", "count", len(devices))

	for i, d := range devices {
		logger.Info("audio device",
			"index", i,
			"name", d.Name,
			"inputs", d.MaxInputChannels,
			"outputs", d.MaxOutputChannels,
			"default_sample_rate", d.DefaultSampleRate,
		)
	}
}

type InputConfig struct {
	Format          audio.Format
	FramesPerBuffer int
	// Device is a PortAudio device index; empty selects the default input.
	Device string
}

type inputImpl struct {
	stream *portaudio.Stream
	in     []int16
}

// NewInput opens and starts a blocking capture stream.
func NewInput(cfg *InputConfig) (Input, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if err := cfg.Format.Validate(); err != nil {
		return nil, err
	}

	if cfg.FramesPerBuffer <= 0 {
		return nil, fmt.Errorf("framesPerBuffer must be positive")
	}

	in := make([]int16, cfg.FramesPerBuffer*cfg.Format.Channels)

	var (
		stream *portaudio.Stream
		err    error
	)

	if cfg.Device == "" {
		stream, err = portaudio.OpenDefaultStream(cfg.Format.Channels, 0, float64(cfg.Format.SampleRate), cfg.FramesPerBuffer, in)
	} else {
		var dev *portaudio.DeviceInfo
		dev, err = inputDevice(cfg.Device)
		if err != nil {
			return nil, err
		}

		params := portaudio.LowLatencyParameters(dev, nil)
		params.Input.Channels = cfg.Format.Channels
		params.SampleRate = float64(cfg.Format.SampleRate)
		params.FramesPerBuffer = cfg.FramesPerBuffer

		stream, err = portaudio.OpenStream(params, in)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: open input stream: %v", ErrDevice, err)
	}

	if err = stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("%w: start input stream: %v", ErrDevice, err)
	}

	return &inputImpl{
		stream: stream,
		in:     in,
	}, nil
}

func inputDevice(index string) (*portaudio.DeviceInfo, error) {
	i, err := strconv.Atoi(index)
	if err != nil {
		return nil, fmt.Errorf("device index %q: %w", index, err)
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("%w: list devices: %v", ErrDevice, err)
	}

	if i < 0 || i >= len(devices) {
		return nil, fmt.Errorf("%w: device index %d out of range (%d devices)", ErrDevice, i, len(devices))
	}

	if devices[i].MaxInputChannels == 0 {
		return nil, fmt.Errorf("%w: device %d (%s) has no inputs", ErrDevice, i, devices[i].Name)
	}

	return devices[i], nil
}

// Read blocks until the next buffer is captured. An input overflow means
// PortAudio dropped samples before we read; the buffer itself is still good.
func (i *inputImpl) Read() ([]byte, error) {
	err := i.stream.Read()
	if err != nil && !errors.Is(err, portaudio.InputOverflowed) {
		return nil, fmt.Errorf("%w: read: %v", ErrDevice, err)
	}

	return audio.PCM(i.in), nil
}

// Close aborts rather than stops the stream so a Read still waiting on the
// device returns.
func (i *inputImpl) Close() error {
	stopErr := i.stream.Abort()
	closeErr := i.stream.Close()
	return errors.Join(stopErr, closeErr)
}

type outputImpl struct {
	framesPerBuffer int
}

// NewOutput plays clips on the default output device, opening a stream
// sized to each clip's format.
func NewOutput(framesPerBuffer int) Output {
	if framesPerBuffer <= 0 {
		framesPerBuffer = 1024
	}

	return &outputImpl{framesPerBuffer: framesPerBuffer}
}

func (o *outputImpl) Play(ctx context.Context, clip audio.Clip) error {
	if clip.Empty() {
		return nil
	}

	out := make([]int16, o.framesPerBuffer*clip.Format.Channels)

	stream, err := portaudio.OpenDefaultStream(0, clip.Format.Channels, float64(clip.Format.SampleRate), o.framesPerBuffer, out)
	if err != nil {
		return fmt.Errorf("%w: open output stream: %v", ErrDevice, err)
	}

	defer stream.Close()

	if err = stream.Start(); err != nil {
		return fmt.Errorf("%w: start output stream: %v", ErrDevice, err)
	}

	for _, chunk := range chunks(audio.Samples(clip.Data), len(out)) {
		if ctx.Err() != nil {
			stream.Abort()
			return ctx.Err()
		}

		copy(out, chunk)
		clear(out[len(chunk):])

		err = stream.Write()
		if err != nil && !errors.Is(err, portaudio.OutputUnderflowed) {
			stream.Abort()
			return fmt.Errorf("%w: write: %v", ErrDevice, err)
		}
	}

	if err = stream.Stop(); err != nil {
		return fmt.Errorf("%w: stop output stream: %v", ErrDevice, err)
	}

	return nil
}

func (o *outputImpl) Close() error {
	return nil
}

func chunks(samples []int16, size int) [][]int16 {
	var out [][]int16
	for len(samples) > 0 {
		n := min(size, len(samples))
		out = append(out, samples[:n])
		samples = samples[n:]
	}
	return out
}
