package speech_to_text

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"opsdroid-audio/audio"
)

// serverImpl uploads utterances to a whisper.cpp server's /inference
// endpoint.
type serverImpl struct {
	baseURL    string
	language   string
	httpClient *http.Client
}

func (stt *serverImpl) Recognize(ctx context.Context, pcm []byte, format audio.Format) (string, error) {
	if len(pcm) == 0 {
		return "", nil
	}

	wav, err := audio.EncodeWAV(pcm, format)
	if err != nil {
		return "", fmt.Errorf("speech_to_text: %w", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "utterance.wav")
	if err != nil {
		return "", fmt.Errorf("speech_to_text: create form file: %w", err)
	}
	if _, err = fw.Write(wav); err != nil {
		return "", fmt.Errorf("speech_to_text: write wav: %w", err)
	}

	if err = mw.WriteField("response_format", "json"); err != nil {
		return "", fmt.Errorf("speech_to_text: write field: %w", err)
	}
	if stt.language != "" {
		if err = mw.WriteField("language", stt.language); err != nil {
			return "", fmt.Errorf("speech_to_text: write field: %w", err)
		}
	}

	if err = mw.Close(); err != nil {
		return "", fmt.Errorf("speech_to_text: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(stt.baseURL, "/")+"/inference", &body)
	if err != nil {
		return "", fmt.Errorf("speech_to_text: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := stt.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("speech_to_text: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("speech_to_text: server returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var result struct {
		Text string `json:"text"`
	}
	if err = json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("speech_to_text: decode response: %w", err)
	}

	return strings.Join(filterSegments(strings.Split(result.Text, "\n")), " "), nil
}
