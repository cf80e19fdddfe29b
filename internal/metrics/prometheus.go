package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the translation service.
// Every Record helper is safe on a nil receiver, which disables metrics.
type Metrics struct {
	// Audio ingest metrics
	ChunksReceived *prometheus.CounterVec
	ChunksDropped  *prometheus.CounterVec
	SequenceGaps   *prometheus.CounterVec

	// Segmentation metrics
	SegmentsFinalized *prometheus.CounterVec
	SegmentsDiscarded *prometheus.CounterVec
	SegmentDuration   *prometheus.HistogramVec

	// Preview metrics
	PreviewsDispatched *prometheus.CounterVec
	PreviewsCoalesced  *prometheus.CounterVec

	// Text filtering metrics
	Rejections    *prometheus.CounterVec
	LanguageSkips *prometheus.CounterVec

	// Transcription metrics
	TranscriptionRequests prometheus.Counter
	TranscriptionFailures prometheus.Counter
	TranscriptionDuration prometheus.Histogram

	// Translation metrics
	TranslationRequests prometheus.Counter
	TranslationFailures prometheus.Counter
	TranslationDuration prometheus.Histogram

	// Overlay metrics
	OverlayClients prometheus.Gauge

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		// Audio ingest metrics
		ChunksReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "translator_chunks_received_total",
			Help: "Total number of audio chunks received from sources",
		}, []string{"source"}),
		ChunksDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "translator_chunks_dropped_total",
			Help: "Total number of audio chunks dropped due to back-pressure",
		}, []string{"source"}),
		SequenceGaps: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "translator_sequence_gaps_total",
			Help: "Total number of gaps observed in datagram sequence numbers",
		}, []string{"source"}),

		// Segmentation metrics
		SegmentsFinalized: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "translator_segments_finalized_total",
			Help: "Total number of utterances finalized for transcription",
		}, []string{"source"}),
		SegmentsDiscarded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "translator_segments_discarded_total",
			Help: "Total number of buffered segments discarded as non-speech",
		}, []string{"source"}),
		SegmentDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "translator_segment_duration_seconds",
			Help:    "Audio duration of finalized utterances",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 8), // 0.5s to ~2 minutes
		}, []string{"source"}),

		// Preview metrics
		PreviewsDispatched: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "translator_previews_dispatched_total",
			Help: "Total number of preview transcriptions dispatched",
		}, []string{"source"}),
		PreviewsCoalesced: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "translator_previews_coalesced_total",
			Help: "Total number of previews skipped because one was in flight",
		}, []string{"source"}),

		// Text filtering metrics
		Rejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "translator_text_rejections_total",
			Help: "Total number of model outputs rejected by text filters",
		}, []string{"source", "reason"}),
		LanguageSkips: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "translator_language_skips_total",
			Help: "Total number of utterances skipped by the strict language filter",
		}, []string{"source"}),

		// Transcription metrics
		TranscriptionRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "translator_transcription_requests_total",
			Help: "Total number of transcription requests sent",
		}),
		TranscriptionFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "translator_transcription_failures_total",
			Help: "Total number of failed transcription requests",
		}),
		TranscriptionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "translator_transcription_duration_seconds",
			Help:    "Duration of transcription requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}),

		// Translation metrics
		TranslationRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "translator_translation_requests_total",
			Help: "Total number of translation requests sent",
		}),
		TranslationFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "translator_translation_failures_total",
			Help: "Total number of failed translation requests",
		}),
		TranslationDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "translator_translation_duration_seconds",
			Help:    "Duration of translation requests",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~1 minute
		}),

		// Overlay metrics
		OverlayClients: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "translator_overlay_clients",
			Help: "Current number of connected overlay websocket clients",
		}),

		// HTTP API metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "translator_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "translator_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}
}

// RecordChunkReceived increments the chunks received counter for a source.
func (m *Metrics) RecordChunkReceived(source string) {
	if m == nil {
		return
	}
	m.ChunksReceived.WithLabelValues(source).Inc()
}

// RecordChunkDropped increments the dropped chunks counter for a source.
func (m *Metrics) RecordChunkDropped(source string) {
	if m == nil {
		return
	}
	m.ChunksDropped.WithLabelValues(source).Inc()
}

// RecordSequenceGap increments the sequence gap counter for a source.
func (m *Metrics) RecordSequenceGap(source string) {
	if m == nil {
		return
	}
	m.SequenceGaps.WithLabelValues(source).Inc()
}

// RecordSegmentFinalized records a finalized utterance and its duration.
func (m *Metrics) RecordSegmentFinalized(source string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.SegmentsFinalized.WithLabelValues(source).Inc()
	m.SegmentDuration.WithLabelValues(source).Observe(durationSeconds)
}

// RecordSegmentDiscarded increments the discarded segments counter.
func (m *Metrics) RecordSegmentDiscarded(source string) {
	if m == nil {
		return
	}
	m.SegmentsDiscarded.WithLabelValues(source).Inc()
}

// RecordPreviewDispatched increments the previews dispatched counter.
func (m *Metrics) RecordPreviewDispatched(source string) {
	if m == nil {
		return
	}
	m.PreviewsDispatched.WithLabelValues(source).Inc()
}

// RecordPreviewCoalesced increments the coalesced previews counter.
func (m *Metrics) RecordPreviewCoalesced(source string) {
	if m == nil {
		return
	}
	m.PreviewsCoalesced.WithLabelValues(source).Inc()
}

// RecordRejection increments the text rejection counter for a reason.
func (m *Metrics) RecordRejection(source, reason string) {
	if m == nil {
		return
	}
	m.Rejections.WithLabelValues(source, reason).Inc()
}

// RecordLanguageSkip increments the strict language filter skip counter.
func (m *Metrics) RecordLanguageSkip(source string) {
	if m == nil {
		return
	}
	m.LanguageSkips.WithLabelValues(source).Inc()
}

// RecordTranscription records one transcription request outcome.
func (m *Metrics) RecordTranscription(success bool, durationSeconds float64) {
	if m == nil {
		return
	}
	m.TranscriptionRequests.Inc()
	if !success {
		m.TranscriptionFailures.Inc()
	}
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordTranslation records one translation request outcome.
func (m *Metrics) RecordTranslation(success bool, durationSeconds float64) {
	if m == nil {
		return
	}
	m.TranslationRequests.Inc()
	if !success {
		m.TranslationFailures.Inc()
	}
	m.TranslationDuration.Observe(durationSeconds)
}

// SetOverlayClients sets the connected overlay client gauge.
func (m *Metrics) SetOverlayClients(count int) {
	if m == nil {
		return
	}
	m.OverlayClients.Set(float64(count))
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}
