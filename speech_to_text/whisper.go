package speech_to_text

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"opsdroid-audio/audio"
)

// modelLocks holds a one-slot semaphore per loaded model. whisper.cpp keeps
// the result of a run in the model's own state, so runs on one model must
// not overlap even when they use separate contexts.
var modelLocks sync.Map

func lockFor(model whisper.Model) chan struct{} {
	sem, _ := modelLocks.LoadOrStore(model, make(chan struct{}, 1))
	return sem.(chan struct{})
}

type whisperImpl struct {
	model    whisper.Model
	sem      chan struct{}
	language string
}

func (stt *whisperImpl) Recognize(ctx context.Context, pcm []byte, format audio.Format) (string, error) {
	if len(pcm) == 0 {
		return "", nil
	}

	if format.SampleRate != int(whisper.SampleRate) {
		return "", fmt.Errorf("speech_to_text: whisper needs %d Hz audio, got %d", whisper.SampleRate, format.SampleRate)
	}

	samples := audio.Float32(pcm, format.Channels)

	select {
	case stt.sem <- struct{}{}:
		defer func() { <-stt.sem }()
	case <-ctx.Done():
		return "", ctx.Err()
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	wctx, err := stt.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("speech_to_text: new context: %w", err)
	}

	if stt.language != "" {
		if err = wctx.SetLanguage(stt.language); err != nil {
			return "", fmt.Errorf("speech_to_text: set language %q: %w", stt.language, err)
		}
	}

	// whisper checks in before encoding, which is the only point a run can
	// be abandoned
	encoderBegin := func() bool {
		return ctx.Err() == nil
	}

	if err = wctx.Process(samples, encoderBegin, nil, nil); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("speech_to_text: process: %w", err)
	}

	var texts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return "", fmt.Errorf("speech_to_text: next segment: %w", err)
		}

		texts = append(texts, segment.Text)
	}

	return strings.Join(filterSegments(texts), " "), nil
}

// filterSegments drops annotations such as "[BLANK_AUDIO]" or "(music)" and
// repeated lines, which whisper tends to hallucinate on quiet input.
func filterSegments(texts []string) []string {
	seenText := make(map[string]bool)

	out := make([]string, 0, len(texts))

	for _, text := range texts {
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		if text[0] == '(' || text[0] == '[' || text[len(text)-1] == ')' || text[len(text)-1] == ']' {
			continue
		}

		if seenText[text] {
			continue
		}
		seenText[text] = true

		out = append(out, text)
	}

	return out
}
