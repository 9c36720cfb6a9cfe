// Package metrics exposes Prometheus counters for the translation pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics aggregates all pipeline instrumentation.
type Metrics struct {
	// Chat
	ChatMessages prometheus.Counter

	// Audio segmentation
	UtterancesEmitted prometheus.Counter

	// Transcription
	TranscriptionRequests prometheus.Counter
	TranscriptionFailures prometheus.Counter

	// Translation
	TranslationRequests *prometheus.CounterVec
	TranslationSkips    *prometheus.CounterVec
	TranslationFailures *prometheus.CounterVec
	TranslationDuration prometheus.Histogram

	// Viewers
	ConnectedViewers prometheus.GaugeFunc
}

// New registers all metrics with the default registry. viewerCount is
// polled on scrape.
func New(viewerCount func() float64) *Metrics {
	return &Metrics{
		ChatMessages: promauto.NewCounter(prometheus.CounterOpts{
			Name: "streamlens_chat_messages_total",
			Help: "Chat messages received from the active channel",
		}),
		UtterancesEmitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "streamlens_utterances_emitted_total",
			Help: "Utterances closed by the audio framer",
		}),
		TranscriptionRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "streamlens_transcription_requests_total",
			Help: "Speech-to-text requests submitted",
		}),
		TranscriptionFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "streamlens_transcription_failures_total",
			Help: "Speech-to-text requests that returned an error",
		}),
		TranslationRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "streamlens_translation_requests_total",
			Help: "Translation requests dispatched, by mode",
		}, []string{"mode"}),
		TranslationSkips: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "streamlens_translation_skips_total",
			Help: "Translations the model declined as unnecessary, by mode",
		}, []string{"mode"}),
		TranslationFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "streamlens_translation_failures_total",
			Help: "Translation requests that returned an error, by mode",
		}, []string{"mode"}),
		TranslationDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "streamlens_translation_duration_seconds",
			Help:    "Latency of translation model calls",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		ConnectedViewers: promauto.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "streamlens_connected_viewers",
			Help: "Currently connected viewer websockets",
		}, viewerCount),
	}
}
