package listener

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"opsdroid-audio/audio"
	"opsdroid-audio/device"
	devicemock "opsdroid-audio/device/mock"
	"opsdroid-audio/hotword"
	hotwordmock "opsdroid-audio/hotword/mock"
	"opsdroid-audio/interrupt"
	"opsdroid-audio/speech_extraction"
)

// frame builds 32 samples tagged with n so frames are distinguishable.
func frame(n int, peak int16) []byte {
	samples := make([]int16, 32)
	for i := range samples {
		samples[i] = int16(n)
	}
	samples[1] = peak
	return audio.PCM(samples)
}

func loud(n int) []byte  { return frame(n, 9000) }
func quiet(n int) []byte { return frame(n, 50) }

type recorder struct {
	mu         sync.Mutex
	utterances []audio.Utterance
	detected   []int
}

func (r *recorder) onRecorded(utt audio.Utterance) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.utterances = append(r.utterances, utt)
}

func (r *recorder) onDetected(h int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detected = append(r.detected, h)
}

func (r *recorder) recorded() []audio.Utterance {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]audio.Utterance(nil), r.utterances...)
}

func newTestListener(t *testing.T, input device.Input, classifier hotword.Interface, rec *recorder, deliver bool) (*listenerImpl, *interrupt.Signal) {
	t.Helper()

	endpointer, err := speech_extraction.New(nil)
	if err != nil {
		t.Fatal(err)
	}

	intr := interrupt.New()
	l, err := newListener(&Config{
		Input:             input,
		Classifier:        classifier,
		Endpointer:        endpointer,
		Format:            audio.DefaultFormat,
		PollInterval:      2 * time.Millisecond,
		OnDetected:        []func(int){rec.onDetected},
		OnRecorded:        rec.onRecorded,
		Interrupt:         intr,
		DeliverOnShutdown: deliver,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	return l, intr
}

func TestListener_WakeThenSilence(t *testing.T) {
	classifier := &hotwordmock.Classifier{
		Hotwords: 1,
		Results:  []hotwordmock.Result{{Index: -1}, {Index: -1}, {Index: -1}, {Index: -1}, {Index: 0}},
	}
	rec := &recorder{}
	l, _ := newTestListener(t, &devicemock.Input{}, classifier, rec, false)

	var want []byte
	for n := 1; n <= 12; n++ {
		f := quiet(n)
		if n >= 5 && n <= 7 {
			f = loud(n)
		}
		if n >= 5 {
			want = append(want, f...)
		}

		l.handleFrame(f)

		switch {
		case n < 5 && l.State() != Idle:
			t.Fatalf("frame %d: state = %v before detection", n, l.State())
		case n >= 5 && n < 12 && l.State() != Recording:
			t.Fatalf("frame %d: state = %v, want recording", n, l.State())
		case n < 12 && len(rec.recorded()) != 0:
			t.Fatalf("utterance delivered early at frame %d", n)
		}
	}

	utts := rec.recorded()
	if len(utts) != 1 {
		t.Fatalf("got %d utterances, want 1", len(utts))
	}
	if !bytes.Equal(utts[0].Audio, want) {
		t.Errorf("utterance has %d bytes, want frames 5-12 (%d bytes)", len(utts[0].Audio), len(want))
	}
	if utts[0].Hotword != 0 || utts[0].ID == "" || utts[0].Format != audio.DefaultFormat {
		t.Errorf("unexpected utterance metadata %+v", utts[0])
	}
	if len(rec.detected) != 1 || rec.detected[0] != 0 {
		t.Errorf("wake callbacks = %v, want [0]", rec.detected)
	}
	if l.State() != Idle {
		t.Errorf("state = %v after utterance, want idle", l.State())
	}
	if classifier.Calls() != 5 {
		t.Errorf("classifier saw %d frames, want 5 (none while recording)", classifier.Calls())
	}
}

func TestListener_ClassifierErrorIsNoMatch(t *testing.T) {
	classifier := &hotwordmock.Classifier{
		Hotwords: 1,
		Results:  []hotwordmock.Result{{Index: 0, Err: errors.New("model hiccup")}, {Index: 0}},
	}
	rec := &recorder{}
	l, _ := newTestListener(t, &devicemock.Input{}, classifier, rec, false)

	l.handleFrame(loud(1))
	if l.State() != Idle {
		t.Fatal("classifier error started a recording")
	}

	l.handleFrame(loud(2))
	if l.State() != Recording {
		t.Error("next chunk did not detect")
	}
}

// stalledInput never returns from Read until it is closed.
type stalledInput struct {
	once   sync.Once
	closed chan struct{}
	closes int
	mu     sync.Mutex
}

func (s *stalledInput) Read() ([]byte, error) {
	<-s.closed
	return nil, errors.New("stream closed")
}

func (s *stalledInput) Close() error {
	s.mu.Lock()
	s.closes++
	s.mu.Unlock()
	s.once.Do(func() { close(s.closed) })
	return nil
}

func TestListener_Run(t *testing.T) {
	marker := loud(1)
	matchMarker := func(chunk []byte) (int, error) {
		if bytes.Contains(chunk, marker) {
			return 0, nil
		}
		return hotword.NoDetection, nil
	}

	newInput := func() (*devicemock.Input, []byte) {
		in := &devicemock.Input{Interval: time.Millisecond}
		var all []byte
		for n := 1; n <= 40; n++ {
			f := loud(n)
			in.Frames = append(in.Frames, f)
			all = append(all, f...)
		}
		return in, all
	}

	run := func(l *listenerImpl) <-chan error {
		errc := make(chan error, 1)
		go func() { errc <- l.Run() }()
		return errc
	}

	waitDrained := func(t *testing.T, in *devicemock.Input, l *listenerImpl) {
		t.Helper()
		deadline := time.Now().Add(2 * time.Second)
		for in.Remaining() > 0 || l.State() != Recording {
			if time.Now().After(deadline) {
				t.Fatal("timed out waiting for capture")
			}
			time.Sleep(2 * time.Millisecond)
		}
	}

	t.Run("every frame is recorded exactly once", func(t *testing.T) {
		in, all := newInput()
		rec := &recorder{}
		l, intr := newTestListener(t, in, &hotwordmock.Classifier{Hotwords: 1, Match: matchMarker}, rec, true)

		errc := run(l)
		waitDrained(t, in, l)
		time.Sleep(20 * time.Millisecond)
		intr.Set()

		if err := <-errc; err != nil {
			t.Fatalf("Run() = %v", err)
		}

		utts := rec.recorded()
		if len(utts) != 1 {
			t.Fatalf("got %d utterances, want 1", len(utts))
		}
		if !bytes.Equal(utts[0].Audio, all) {
			t.Errorf("utterance has %d bytes, want all %d captured bytes in order", len(utts[0].Audio), len(all))
		}
		if in.CloseCallCount != 1 {
			t.Errorf("input closed %d times, want 1", in.CloseCallCount)
		}
	})

	t.Run("shutdown while recording delivers nothing", func(t *testing.T) {
		in, _ := newInput()
		rec := &recorder{}
		l, intr := newTestListener(t, in, &hotwordmock.Classifier{Hotwords: 1, Match: matchMarker}, rec, false)

		errc := run(l)
		waitDrained(t, in, l)
		intr.Set()

		select {
		case err := <-errc:
			if err != nil {
				t.Fatalf("Run() = %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("Run() did not return after interrupt")
		}

		if n := len(rec.recorded()); n != 0 {
			t.Errorf("delivered %d utterances after shutdown", n)
		}
		if l.State() != Idle {
			t.Errorf("state = %v, want idle", l.State())
		}
	})

	t.Run("device failure ends the loop", func(t *testing.T) {
		in := &devicemock.Input{
			Frames: [][]byte{quiet(1), quiet(2)},
			Err:    fmt.Errorf("%w: stream stopped", device.ErrDevice),
		}
		rec := &recorder{}
		l, _ := newTestListener(t, in, &hotwordmock.Classifier{Hotwords: 1}, rec, false)

		select {
		case err := <-run(l):
			if !errors.Is(err, device.ErrDevice) {
				t.Errorf("Run() = %v, want ErrDevice", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("Run() did not return after device failure")
		}
	})

	t.Run("stalled read is unblocked on shutdown", func(t *testing.T) {
		in := &stalledInput{closed: make(chan struct{})}
		rec := &recorder{}
		l, intr := newTestListener(t, in, &hotwordmock.Classifier{Hotwords: 1}, rec, false)

		errc := run(l)
		time.Sleep(10 * time.Millisecond)
		intr.Set()

		select {
		case err := <-errc:
			if err != nil {
				t.Errorf("Run() = %v", err)
			}
		case <-time.After(inputCloseGrace + 2*time.Second):
			t.Fatal("Run() did not return with a stalled device")
		}

		in.mu.Lock()
		defer in.mu.Unlock()
		if in.closes != 1 {
			t.Errorf("input closed %d times, want 1", in.closes)
		}
	})

	t.Run("idle loop stops on interrupt", func(t *testing.T) {
		in := &devicemock.Input{}
		rec := &recorder{}
		l, intr := newTestListener(t, in, &hotwordmock.Classifier{Hotwords: 1}, rec, false)

		errc := run(l)
		time.Sleep(10 * time.Millisecond)
		intr.Set()

		select {
		case err := <-errc:
			if err != nil {
				t.Errorf("Run() = %v", err)
			}
		case <-time.After(time.Second):
			t.Fatal("Run() did not return after interrupt")
		}
	})
}

func TestPairCallbacks(t *testing.T) {
	noop := func(int) {}

	tests := []struct {
		name      string
		callbacks []func(int)
		hotwords  int
		want      int
		wantErr   bool
	}{
		{name: "one per hotword", callbacks: []func(int){noop, noop}, hotwords: 2, want: 2},
		{name: "single callback is shared", callbacks: []func(int){noop}, hotwords: 3, want: 3},
		{name: "no callbacks", hotwords: 2, want: 2},
		{name: "mismatch", callbacks: []func(int){noop, noop}, hotwords: 3, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := pairCallbacks(tt.callbacks, tt.hotwords)
			if tt.wantErr {
				if !errors.Is(err, ErrCallbackMismatch) {
					t.Errorf("error = %v, want ErrCallbackMismatch", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != tt.want {
				t.Errorf("got %d callbacks, want %d", len(got), tt.want)
			}
		})
	}
}

func TestNew_CallbackMismatch(t *testing.T) {
	endpointer, _ := speech_extraction.New(nil)
	noop := func(int) {}

	_, err := New(&Config{
		Input:      &devicemock.Input{},
		Classifier: &hotwordmock.Classifier{Hotwords: 3},
		Endpointer: endpointer,
		Format:     audio.DefaultFormat,
		OnDetected: []func(int){noop, noop},
		OnRecorded: func(audio.Utterance) {},
		Interrupt:  interrupt.New(),
	})
	if !errors.Is(err, ErrCallbackMismatch) {
		t.Errorf("New() error = %v, want ErrCallbackMismatch", err)
	}
}
