// Package observe holds the OpenTelemetry instruments recorded by the audio
// pipeline and the Prometheus bridge that exposes them on /metrics.
//
// A nil *Metrics is valid: every Record method is a no-op on it, so loops
// can be built without metrics in tests.
package observe

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "opsdroid-audio"

type Metrics struct {
	// Detections counts hotword detections. Attribute: hotword (index).
	Detections metric.Int64Counter

	// Utterances counts utterances handed to recognition.
	Utterances metric.Int64Counter

	// UtterancesDropped counts utterances discarded before reaching the
	// backend. Attribute: reason.
	UtterancesDropped metric.Int64Counter

	// CaptureDroppedBytes counts audio overwritten in the rolling buffer
	// because the capture loop fell behind.
	CaptureDroppedBytes metric.Int64Counter

	RecognitionDuration metric.Float64Histogram
	SynthesisDuration   metric.Float64Histogram

	// BackendReconnects counts connection attempts after the first.
	BackendReconnects metric.Int64Counter

	// SpeechQueued counts texts queued for playback.
	SpeechQueued metric.Int64Counter
}

var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 16,
}

func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.Detections, err = m.Int64Counter("opsdroid_audio.detections",
		metric.WithDescription("Hotword detections by hotword index."),
	); err != nil {
		return nil, err
	}
	if met.Utterances, err = m.Int64Counter("opsdroid_audio.utterances",
		metric.WithDescription("Recorded utterances handed to recognition."),
	); err != nil {
		return nil, err
	}
	if met.UtterancesDropped, err = m.Int64Counter("opsdroid_audio.utterances.dropped",
		metric.WithDescription("Utterances dropped before reaching the backend, by reason."),
	); err != nil {
		return nil, err
	}
	if met.CaptureDroppedBytes, err = m.Int64Counter("opsdroid_audio.capture.dropped_bytes",
		metric.WithDescription("Captured audio overwritten before the capture loop read it."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if met.RecognitionDuration, err = m.Float64Histogram("opsdroid_audio.recognition.duration",
		metric.WithDescription("Latency of speech recognition."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SynthesisDuration, err = m.Float64Histogram("opsdroid_audio.synthesis.duration",
		metric.WithDescription("Latency of speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.BackendReconnects, err = m.Int64Counter("opsdroid_audio.backend.reconnects",
		metric.WithDescription("Backend connection attempts after a disconnect."),
	); err != nil {
		return nil, err
	}
	if met.SpeechQueued, err = m.Int64Counter("opsdroid_audio.speech.queued",
		metric.WithDescription("Texts queued for spoken playback."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

func (m *Metrics) RecordDetection(ctx context.Context, hotword int) {
	if m == nil {
		return
	}
	m.Detections.Add(ctx, 1, metric.WithAttributes(attribute.String("hotword", strconv.Itoa(hotword))))
}

func (m *Metrics) RecordUtterance(ctx context.Context) {
	if m == nil {
		return
	}
	m.Utterances.Add(ctx, 1)
}

// RecordDropped counts an utterance lost for reason, e.g. "empty",
// "recognition_error", "not_connected" or "shutdown".
func (m *Metrics) RecordDropped(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.UtterancesDropped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *Metrics) RecordCaptureDropped(ctx context.Context, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.CaptureDroppedBytes.Add(ctx, int64(n))
}

func (m *Metrics) RecordRecognition(ctx context.Context, d time.Duration) {
	if m == nil {
		return
	}
	m.RecognitionDuration.Record(ctx, d.Seconds())
}

func (m *Metrics) RecordSynthesis(ctx context.Context, d time.Duration) {
	if m == nil {
		return
	}
	m.SynthesisDuration.Record(ctx, d.Seconds())
}

func (m *Metrics) RecordReconnect(ctx context.Context) {
	if m == nil {
		return
	}
	m.BackendReconnects.Add(ctx, 1)
}

func (m *Metrics) RecordSpeechQueued(ctx context.Context) {
	if m == nil {
		return
	}
	m.SpeechQueued.Add(ctx, 1)
}
