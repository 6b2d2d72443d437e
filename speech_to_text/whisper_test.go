package speech_to_text

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"opsdroid-audio/audio"
)

// fakeModel keeps the last result on the model, like whisper.cpp does, so
// overlapping runs would read each other's text.
type fakeModel struct {
	whisper.Model

	text          string
	active        atomic.Int32
	maxActive     atomic.Int32
	beforeProcess func()
}

func (m *fakeModel) NewContext() (whisper.Context, error) {
	return &fakeContext{model: m}, nil
}

type fakeContext struct {
	whisper.Context

	model *fakeModel
	read  bool
}

func (c *fakeContext) SetLanguage(string) error { return nil }

func (c *fakeContext) Process(data []float32, encoderBegin whisper.EncoderBeginCallback, _ whisper.SegmentCallback, _ whisper.ProgressCallback) error {
	m := c.model

	n := m.active.Add(1)
	defer m.active.Add(-1)
	for {
		prev := m.maxActive.Load()
		if n <= prev || m.maxActive.CompareAndSwap(prev, n) {
			break
		}
	}

	if m.beforeProcess != nil {
		m.beforeProcess()
	}
	if encoderBegin != nil && !encoderBegin() {
		return errors.New("whisper_full failed")
	}

	m.text = fmt.Sprintf("samples %d", len(data))
	time.Sleep(time.Millisecond)
	return nil
}

func (c *fakeContext) NextSegment() (whisper.Segment, error) {
	if c.read {
		return whisper.Segment{}, io.EOF
	}
	c.read = true
	time.Sleep(time.Millisecond)
	return whisper.Segment{Text: c.model.text}, nil
}

func newWhisper(t *testing.T, model whisper.Model) *whisperImpl {
	t.Helper()

	stt, err := New(&Config{Name: NameWhisper, Model: model})
	if err != nil {
		t.Fatal(err)
	}
	return stt.(*whisperImpl)
}

func TestWhisper_SharedModel(t *testing.T) {
	t.Run("recognizers on one model share a lock", func(t *testing.T) {
		model, other := &fakeModel{}, &fakeModel{}

		a, b, c := newWhisper(t, model), newWhisper(t, model), newWhisper(t, other)

		if a.sem != b.sem {
			t.Error("recognizers on the same model got different locks")
		}
		if a.sem == c.sem {
			t.Error("recognizers on different models share a lock")
		}
	})

	t.Run("concurrent runs never overlap", func(t *testing.T) {
		model := &fakeModel{}
		hotword, dispatcher := newWhisper(t, model), newWhisper(t, model)

		var wg sync.WaitGroup
		errs := make(chan error, 16)

		for i := range 8 {
			stt := hotword
			if i%2 == 1 {
				stt = dispatcher
			}

			wg.Add(1)
			go func() {
				defer wg.Done()

				samples := (i + 1) * 160
				want := fmt.Sprintf("samples %d", samples)
				for range 5 {
					got, err := stt.Recognize(context.Background(), make([]byte, samples*2), audio.DefaultFormat)
					if err != nil {
						errs <- err
						return
					}
					if got != want {
						errs <- fmt.Errorf("got %q, want %q", got, want)
						return
					}
				}
			}()
		}

		wg.Wait()
		close(errs)

		for err := range errs {
			t.Error(err)
		}
		if got := model.maxActive.Load(); got != 1 {
			t.Errorf("%d runs overlapped on one model", got)
		}
	})
}

func TestWhisper_Cancellation(t *testing.T) {
	t.Run("cancelled before the run", func(t *testing.T) {
		stt := newWhisper(t, &fakeModel{})

		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		if _, err := stt.Recognize(ctx, make([]byte, 320), audio.DefaultFormat); !errors.Is(err, context.Canceled) {
			t.Errorf("Recognize() error = %v, want context.Canceled", err)
		}
	})

	t.Run("cancelled before encoding", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		defer cancel()

		stt := newWhisper(t, &fakeModel{beforeProcess: cancel})

		if _, err := stt.Recognize(ctx, make([]byte, 320), audio.DefaultFormat); !errors.Is(err, context.Canceled) {
			t.Errorf("Recognize() error = %v, want context.Canceled", err)
		}
	})

	t.Run("gives up waiting for a busy model", func(t *testing.T) {
		model := &fakeModel{}
		busy, waiting := newWhisper(t, model), newWhisper(t, model)

		release := make(chan struct{})
		started := make(chan struct{})
		model.beforeProcess = func() {
			close(started)
			<-release
		}

		done := make(chan struct{})
		go func() {
			defer close(done)
			busy.Recognize(context.Background(), make([]byte, 320), audio.DefaultFormat)
		}()
		<-started

		ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
		defer cancel()

		_, err := waiting.Recognize(ctx, make([]byte, 320), audio.DefaultFormat)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("Recognize() error = %v, want DeadlineExceeded", err)
		}

		close(release)
		<-done
	})

	t.Run("wrong sample rate", func(t *testing.T) {
		stt := newWhisper(t, &fakeModel{})
		format := audio.DefaultFormat
		format.SampleRate = 44100

		if _, err := stt.Recognize(t.Context(), make([]byte, 320), format); err == nil {
			t.Error("Recognize() error = nil")
		}
	})
}
