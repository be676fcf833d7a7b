package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the difficulty engine
type Metrics struct {
	// Engine metrics
	CompletionsTotal *prometheus.CounterVec
	ScoreDelta       *prometheus.HistogramVec
	BandSelections   *prometheus.CounterVec
	PlateauChanges   *prometheus.CounterVec
	ProfilesCreated  *prometheus.CounterVec

	// Store metrics
	VersionConflicts prometheus.Counter

	// Queue metrics
	MessagesConsumed *prometheus.CounterVec
	EventsPublished  *prometheus.CounterVec

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

var (
	metricsOnce   sync.Once
	sharedMetrics *Metrics
)

// NewMetrics creates and registers all Prometheus metrics. Repeated calls
// return the same instance.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		sharedMetrics = &Metrics{
			CompletionsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "codementor_completions_total",
					Help: "Completion events processed, by signal and result",
				},
				[]string{"signal", "result"},
			),
			ScoreDelta: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "codementor_score_delta",
					Help:    "Applied difficulty score change per completion",
					Buckets: prometheus.LinearBuckets(-1, 0.1, 21), // -1.0 to +1.0
				},
				[]string{"signal"},
			),
			BandSelections: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "codementor_band_selections_total",
					Help: "Band recommendations issued",
				},
				[]string{"band", "plateau"},
			),
			PlateauChanges: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "codementor_plateau_changes_total",
					Help: "Users entering or leaving a plateau, by direction",
				},
				[]string{"direction"},
			),
			ProfilesCreated: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "codementor_profiles_created_total",
					Help: "Difficulty profiles created, by onboarding skill level",
				},
				[]string{"skill_level"},
			),
			VersionConflicts: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "codementor_version_conflicts_total",
					Help: "Concurrent profile updates that had to be retried",
				},
			),
			MessagesConsumed: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "codementor_queue_messages_total",
					Help: "Queue messages handled, by queue and outcome",
				},
				[]string{"queue", "outcome"},
			),
			EventsPublished: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "codementor_events_published_total",
					Help: "Events published to the message broker",
				},
				[]string{"event_type", "success"},
			),
			HTTPRequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "codementor_http_requests_total",
					Help: "Total number of HTTP requests",
				},
				[]string{"method", "path", "status"},
			),
			HTTPRequestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "codementor_http_request_duration_seconds",
					Help:    "HTTP request duration in seconds",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"method", "path"},
			),
		}
	})

	return sharedMetrics
}

// RecordCompletion records a processed completion event
func (m *Metrics) RecordCompletion(signal, result string, delta float64) {
	m.CompletionsTotal.WithLabelValues(signal, result).Inc()
	if result == "applied" {
		m.ScoreDelta.WithLabelValues(signal).Observe(delta)
	}
}

// RecordBandSelection records a recommendation and counts plateau
// transitions. wasPlateau is the state before the completion. Users
// currently on a plateau are entered minus exited, or the analytics
// plateaued endpoint.
func (m *Metrics) RecordBandSelection(band string, plateau, wasPlateau bool) {
	m.BandSelections.WithLabelValues(band, strconv.FormatBool(plateau)).Inc()
	switch {
	case plateau && !wasPlateau:
		m.PlateauChanges.WithLabelValues("entered").Inc()
	case !plateau && wasPlateau:
		m.PlateauChanges.WithLabelValues("exited").Inc()
	}
}

// RecordPublish records an outbound event
func (m *Metrics) RecordPublish(eventType string, success bool) {
	m.EventsPublished.WithLabelValues(eventType, strconv.FormatBool(success)).Inc()
}

// RecordMessage records the outcome of a consumed queue message
func (m *Metrics) RecordMessage(queue, outcome string) {
	m.MessagesConsumed.WithLabelValues(queue, outcome).Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration float64) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}
