package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the transcription bot
type Metrics struct {
	// Webhook update metrics
	UpdatesReceived   prometheus.Counter
	UpdatesDuplicate  prometheus.Counter
	UpdateParseErrors prometheus.Counter

	// Admission metrics
	BusyRejections prometheus.Counter
	ActiveJobs     prometheus.Gauge

	// Job pipeline metrics
	JobsCompleted *prometheus.CounterVec
	JobDuration   prometheus.Histogram

	// Audio retrieval metrics
	Downloads       prometheus.Counter
	DownloadedBytes prometheus.Counter
	OversizedFiles  prometheus.Counter

	// Conversion metrics
	Conversions        prometheus.Counter
	ConversionFailures prometheus.Counter
	ConversionDuration prometheus.Histogram

	// Recognition metrics
	RecognitionRequests  prometheus.Counter
	RecognitionSuccesses prometheus.Counter
	RecognitionFailures  prometheus.Counter
	RecognitionDuration  prometheus.Histogram
	EmptyTranscripts     prometheus.Counter

	// Janitor metrics
	JanitorDeletions prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		// Webhook update metrics
		UpdatesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "asrbot_updates_received_total",
			Help: "Total number of webhook updates received",
		}),
		UpdatesDuplicate: promauto.NewCounter(prometheus.CounterOpts{
			Name: "asrbot_updates_duplicate_total",
			Help: "Total number of webhook updates rejected as duplicates",
		}),
		UpdateParseErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "asrbot_update_parse_errors_total",
			Help: "Total number of webhook payloads that failed to parse",
		}),

		// Admission metrics
		BusyRejections: promauto.NewCounter(prometheus.CounterOpts{
			Name: "asrbot_busy_rejections_total",
			Help: "Total number of audio messages rejected while a chat job was in flight",
		}),
		ActiveJobs: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "asrbot_active_jobs",
			Help: "Current number of transcription jobs in flight",
		}),

		// Job pipeline metrics
		JobsCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "asrbot_jobs_total",
			Help: "Total number of transcription jobs by outcome",
		}, []string{"outcome"}),
		JobDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "asrbot_job_duration_seconds",
			Help:    "End-to-end duration of transcription jobs",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~8.5 minutes
		}),

		// Audio retrieval metrics
		Downloads: promauto.NewCounter(prometheus.CounterOpts{
			Name: "asrbot_downloads_total",
			Help: "Total number of audio files downloaded from Telegram",
		}),
		DownloadedBytes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "asrbot_downloaded_bytes_total",
			Help: "Total bytes of audio downloaded from Telegram",
		}),
		OversizedFiles: promauto.NewCounter(prometheus.CounterOpts{
			Name: "asrbot_oversized_files_total",
			Help: "Total number of audio files rejected for exceeding the size cap",
		}),

		// Conversion metrics
		Conversions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "asrbot_conversions_total",
			Help: "Total number of successful audio conversions",
		}),
		ConversionFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "asrbot_conversion_failures_total",
			Help: "Total number of failed audio conversions",
		}),
		ConversionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "asrbot_conversion_duration_seconds",
			Help:    "Duration of ffmpeg conversions",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}),

		// Recognition metrics
		RecognitionRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "asrbot_recognition_requests_total",
			Help: "Total number of recognition requests sent",
		}),
		RecognitionSuccesses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "asrbot_recognition_successes_total",
			Help: "Total number of successful recognition requests",
		}),
		RecognitionFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "asrbot_recognition_failures_total",
			Help: "Total number of failed recognition requests",
		}),
		RecognitionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "asrbot_recognition_duration_seconds",
			Help:    "Duration of recognition requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}),
		EmptyTranscripts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "asrbot_empty_transcripts_total",
			Help: "Total number of recognitions that returned no speech",
		}),

		// Janitor metrics
		JanitorDeletions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "asrbot_janitor_deletions_total",
			Help: "Total number of stale staging files deleted by the janitor",
		}),

		// HTTP API metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "asrbot_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "asrbot_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}
}

// RecordUpdateReceived increments the updates received counter
func (m *Metrics) RecordUpdateReceived() {
	m.UpdatesReceived.Inc()
}

// RecordUpdateDuplicate increments the duplicate updates counter
func (m *Metrics) RecordUpdateDuplicate() {
	m.UpdatesDuplicate.Inc()
}

// RecordUpdateParseError increments the parse errors counter
func (m *Metrics) RecordUpdateParseError() {
	m.UpdateParseErrors.Inc()
}

// RecordBusyRejection increments the busy rejections counter
func (m *Metrics) RecordBusyRejection() {
	m.BusyRejections.Inc()
}

// RecordJobStarted increments the active jobs gauge
func (m *Metrics) RecordJobStarted() {
	m.ActiveJobs.Inc()
}

// RecordJobFinished decrements the active jobs gauge and records the outcome
func (m *Metrics) RecordJobFinished(outcome string, durationSeconds float64) {
	m.ActiveJobs.Dec()
	m.JobsCompleted.WithLabelValues(outcome).Inc()
	m.JobDuration.Observe(durationSeconds)
}

// RecordDownload records a completed audio download
func (m *Metrics) RecordDownload(sizeBytes int64) {
	m.Downloads.Inc()
	m.DownloadedBytes.Add(float64(sizeBytes))
}

// RecordOversizedFile increments the oversized files counter
func (m *Metrics) RecordOversizedFile() {
	m.OversizedFiles.Inc()
}

// RecordConversion records a successful conversion
func (m *Metrics) RecordConversion(durationSeconds float64) {
	m.Conversions.Inc()
	m.ConversionDuration.Observe(durationSeconds)
}

// RecordConversionFailure records a failed conversion
func (m *Metrics) RecordConversionFailure(durationSeconds float64) {
	m.ConversionFailures.Inc()
	m.ConversionDuration.Observe(durationSeconds)
}

// RecordRecognitionRequest increments the recognition requests counter
func (m *Metrics) RecordRecognitionRequest() {
	m.RecognitionRequests.Inc()
}

// RecordRecognitionSuccess records a successful recognition
func (m *Metrics) RecordRecognitionSuccess(durationSeconds float64, emptyTranscript bool) {
	m.RecognitionSuccesses.Inc()
	m.RecognitionDuration.Observe(durationSeconds)
	if emptyTranscript {
		m.EmptyTranscripts.Inc()
	}
}

// RecordRecognitionFailure records a failed recognition
func (m *Metrics) RecordRecognitionFailure(durationSeconds float64) {
	m.RecognitionFailures.Inc()
	m.RecognitionDuration.Observe(durationSeconds)
}

// RecordJanitorDeletion increments the janitor deletions counter
func (m *Metrics) RecordJanitorDeletion() {
	m.JanitorDeletions.Inc()
}

// RecordHTTPRequest records an HTTP request with its duration
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}
