// Package metrics exposes Prometheus instruments for compositing sessions,
// recordings and uploads. All methods are safe on a nil *Metrics, which
// disables collection.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chromakey"

// Metrics holds the registry and instruments for one process.
type Metrics struct {
	registry *prometheus.Registry

	framesComposited *prometheus.CounterVec
	framesSkipped    prometheus.Counter
	framesDropped    *prometheus.CounterVec
	tickErrors       *prometheus.CounterVec
	tickDuration     *prometheus.HistogramVec
	fallbacks        prometheus.Counter
	activeSessions   prometheus.Gauge
	recordingChunks  prometheus.Counter
	recordingBytes   prometheus.Counter
	recordings       *prometheus.CounterVec
	uploadAttempts   *prometheus.CounterVec
	uploads          *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
}

// New creates and registers all instruments on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		framesComposited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_composited_total",
			Help:      "Frames composited, by compositor strategy.",
		}, []string{"strategy"}),
		framesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_skipped_total",
			Help:      "Ticks skipped because no new frame was available.",
		}),
		framesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Frames dropped before compositing or encoding, by stage.",
		}, []string{"stage"}),
		tickErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tick_errors_total",
			Help:      "Composite ticks that failed, by compositor strategy.",
		}, []string{"strategy"}),
		tickDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Time spent compositing one frame.",
			Buckets:   []float64{0.001, 0.0025, 0.005, 0.01, 0.02, 0.033, 0.05, 0.1, 0.25},
		}, []string{"strategy"}),
		fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hardware_fallbacks_total",
			Help:      "Sessions that fell back from the hardware to the software compositor.",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Open compositing sessions.",
		}),
		recordingChunks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recording_chunks_total",
			Help:      "Encoded chunks assembled into artifacts.",
		}),
		recordingBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recording_bytes_total",
			Help:      "Bytes of finalized artifacts.",
		}),
		recordings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recordings_total",
			Help:      "Finished recordings by outcome.",
		}, []string{"outcome"}),
		uploadAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_attempts_total",
			Help:      "Upload attempts by HTTP status (0 for transport errors).",
		}, []string{"status"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Completed uploads by outcome (uploaded, fallback or local).",
		}, []string{"outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP API requests by status code.",
		}, []string{"code"}),
	}

	m.registry.MustRegister(
		m.framesComposited,
		m.framesSkipped,
		m.framesDropped,
		m.tickErrors,
		m.tickDuration,
		m.fallbacks,
		m.activeSessions,
		m.recordingChunks,
		m.recordingBytes,
		m.recordings,
		m.uploadAttempts,
		m.uploads,
		m.httpRequests,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveTick records one composite tick.
func (m *Metrics) ObserveTick(strategy string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.tickDuration.WithLabelValues(strategy).Observe(d.Seconds())
	if err != nil {
		m.tickErrors.WithLabelValues(strategy).Inc()
		return
	}
	m.framesComposited.WithLabelValues(strategy).Inc()
}

// IncSkipped counts a tick without a new frame.
func (m *Metrics) IncSkipped() {
	if m == nil {
		return
	}
	m.framesSkipped.Inc()
}

// AddDropped counts n frames dropped at stage, "capture" or "recording".
func (m *Metrics) AddDropped(stage string, n uint64) {
	if m == nil || n == 0 {
		return
	}
	m.framesDropped.WithLabelValues(stage).Add(float64(n))
}

// IncFallbacks counts a hardware to software fallback.
func (m *Metrics) IncFallbacks() {
	if m == nil {
		return
	}
	m.fallbacks.Inc()
}

// SetActiveSessions sets the open session gauge.
func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}

// ObserveRecording records a finished recording. A nil error counts as
// "finalized".
func (m *Metrics) ObserveRecording(chunks, size int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.recordings.WithLabelValues("failed").Inc()
		return
	}
	m.recordings.WithLabelValues("finalized").Inc()
	m.recordingChunks.Add(float64(chunks))
	m.recordingBytes.Add(float64(size))
}

// ObserveUploadAttempt counts one attempt by status code.
func (m *Metrics) ObserveUploadAttempt(status int) {
	if m == nil {
		return
	}
	m.uploadAttempts.WithLabelValues(strconv.Itoa(status)).Inc()
}

// Upload outcomes.
const (
	UploadUploaded = "uploaded"
	UploadFallback = "fallback"
	UploadLocal    = "local"
)

// ObserveUpload counts a completed upload by outcome.
func (m *Metrics) ObserveUpload(outcome string) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(outcome).Inc()
}

// ObserveRequest counts one API request.
func (m *Metrics) ObserveRequest(status int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(strconv.Itoa(status)).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
// updateGauges runs before each scrape.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m == nil {
			http.NotFound(w, r)
			return
		}
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
