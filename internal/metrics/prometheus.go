// Package metrics provides Prometheus instrumentation for the capture
// pipeline, the orchestrator, and the host boundary.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the speech-capture backend
type Metrics struct {
	// Capture metrics
	FramesCaptured  prometheus.Counter
	FramesDropped   prometheus.Counter
	SamplesIngested prometheus.Counter

	// Pipeline metrics
	WindowsEmitted   prometheus.Counter
	WindowsGated     prometheus.Counter
	WindowsAbandoned prometheus.Counter

	// Orchestrator metrics
	WakeWordsDetected prometheus.Counter
	ActivePhases      prometheus.Counter
	SessionDuration   prometheus.Histogram

	// Inference metrics
	InferenceCalls    prometheus.Counter
	InferenceFailures prometheus.Counter
	InferenceDuration prometheus.Histogram

	// Boundary metrics
	BoundaryRequests *prometheus.CounterVec
	BoundaryErrors   *prometheus.CounterVec
	BuffersAllocated prometheus.Counter
	BuffersFreed     prometheus.Counter
}

// NewMetrics creates and registers all metrics against the given registerer.
// Tests pass a fresh registry; the binary passes the default one.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		FramesCaptured: factory.NewCounter(prometheus.CounterOpts{
			Name: "virgil_frames_captured_total",
			Help: "Total number of audio frames delivered by the capture callback",
		}),
		FramesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "virgil_frames_dropped_total",
			Help: "Total number of frames dropped because the frame queue was full",
		}),
		SamplesIngested: factory.NewCounter(prometheus.CounterOpts{
			Name: "virgil_samples_ingested_total",
			Help: "Total number of normalized mono samples accepted by the accumulator",
		}),

		WindowsEmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "virgil_windows_emitted_total",
			Help: "Total number of fixed-size windows emitted by the accumulator",
		}),
		WindowsGated: factory.NewCounter(prometheus.CounterOpts{
			Name: "virgil_windows_gated_total",
			Help: "Total number of windows skipped by the energy gate",
		}),
		WindowsAbandoned: factory.NewCounter(prometheus.CounterOpts{
			Name: "virgil_windows_abandoned_total",
			Help: "Total number of partial active windows abandoned at the session deadline",
		}),

		WakeWordsDetected: factory.NewCounter(prometheus.CounterOpts{
			Name: "virgil_wake_words_detected_total",
			Help: "Total number of windows whose transcript matched a wake word",
		}),
		ActivePhases: factory.NewCounter(prometheus.CounterOpts{
			Name: "virgil_active_phases_total",
			Help: "Total number of active transcription phases completed",
		}),
		SessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "virgil_session_duration_seconds",
			Help:    "Duration of listening sessions in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~17 minutes
		}),

		InferenceCalls: factory.NewCounter(prometheus.CounterOpts{
			Name: "virgil_inference_calls_total",
			Help: "Total number of inference calls issued",
		}),
		InferenceFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "virgil_inference_failures_total",
			Help: "Total number of inference calls that failed",
		}),
		InferenceDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "virgil_inference_duration_seconds",
			Help:    "Time spent per inference call",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~51s
		}),

		BoundaryRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "virgil_boundary_requests_total",
			Help: "Total number of boundary messages handled",
		}, []string{"message_type"}),
		BoundaryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "virgil_boundary_errors_total",
			Help: "Total number of boundary messages answered with an error response",
		}, []string{"message_type"}),
		BuffersAllocated: factory.NewCounter(prometheus.CounterOpts{
			Name: "virgil_buffers_allocated_total",
			Help: "Total number of host-owned buffers handed across the boundary",
		}),
		BuffersFreed: factory.NewCounter(prometheus.CounterOpts{
			Name: "virgil_buffers_freed_total",
			Help: "Total number of host-owned buffers reclaimed by the free call",
		}),
	}
}

// RecordFrame increments the captured-frames counter, and the dropped-frames
// counter when the bounded queue rejected the frame.
func (m *Metrics) RecordFrame(dropped bool) {
	m.FramesCaptured.Inc()
	if dropped {
		m.FramesDropped.Inc()
	}
}

// RecordWindow records an emitted window and whether the energy gate skipped it.
func (m *Metrics) RecordWindow(gated bool) {
	m.WindowsEmitted.Inc()
	if gated {
		m.WindowsGated.Inc()
	}
}

// RecordInference records one inference call outcome.
func (m *Metrics) RecordInference(durationSeconds float64, err error) {
	m.InferenceCalls.Inc()
	m.InferenceDuration.Observe(durationSeconds)
	if err != nil {
		m.InferenceFailures.Inc()
	}
}

// RecordBoundaryRequest records a handled boundary message by type name.
func (m *Metrics) RecordBoundaryRequest(messageType string, isError bool) {
	m.BoundaryRequests.WithLabelValues(messageType).Inc()
	if isError {
		m.BoundaryErrors.WithLabelValues(messageType).Inc()
	}
}
