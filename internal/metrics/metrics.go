// Package metrics exposes Prometheus collectors for the service.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/workmusicalflow/FreelanceFlow-v1/internal/domain"
)

const namespace = "freelanceflow"

// Metrics holds every collector. All methods are safe on a nil receiver so
// components can take an optional *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	remoteCalls   *prometheus.CounterVec
	remoteLatency *prometheus.HistogramVec
	retryAttempts *prometheus.CounterVec
	runPolls      prometheus.Counter
	turns         *prometheus.CounterVec
	turnDuration  prometheus.Histogram
	missions      *prometheus.CounterVec
	notifications *prometheus.CounterVec
	wsConnections prometheus.Gauge
}

// New creates a Metrics instance backed by its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		remoteCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_calls_total",
			Help:      "Remote API calls by service, operation and outcome.",
		}, []string{"service", "op", "outcome"}),
		remoteLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "remote_call_duration_seconds",
			Help:      "Latency of remote API calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service", "op"}),
		retryAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retry_attempts_total",
			Help:      "Retries performed after a transient failure.",
		}, []string{"service"}),
		runPolls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "run_polls_total",
			Help:      "Run status polls issued against the assistant platform.",
		}),
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Conversation turns by outcome.",
		}, []string{"outcome"}),
		turnDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Wall time of a conversation turn.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}),
		missions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "missions_total",
			Help:      "Mission confirmations by result.",
		}, []string{"result"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Confirmation notifications by notifier and outcome.",
		}, []string{"notifier", "outcome"}),
		wsConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_connections",
			Help:      "Open WebSocket connections.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.remoteCalls,
		m.remoteLatency,
		m.retryAttempts,
		m.runPolls,
		m.turns,
		m.turnDuration,
		m.missions,
		m.notifications,
		m.wsConnections,
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

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRemoteCall records one remote call started at start.
func (m *Metrics) ObserveRemoteCall(service, op string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.remoteCalls.WithLabelValues(service, op, outcomeOf(err)).Inc()
	m.remoteLatency.WithLabelValues(service, op).Observe(time.Since(start).Seconds())
}

// IncRetry counts one retry against service.
func (m *Metrics) IncRetry(service string) {
	if m == nil {
		return
	}
	m.retryAttempts.WithLabelValues(service).Inc()
}

// IncRunPoll counts one run status poll.
func (m *Metrics) IncRunPoll() {
	if m == nil {
		return
	}
	m.runPolls.Inc()
}

// ObserveTurn records a finished turn.
func (m *Metrics) ObserveTurn(outcome domain.TurnOutcome, d time.Duration) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(string(outcome)).Inc()
	m.turnDuration.Observe(d.Seconds())
}

// IncMission counts a mission confirmation result.
func (m *Metrics) IncMission(result string) {
	if m == nil {
		return
	}
	m.missions.WithLabelValues(result).Inc()
}

// IncNotification counts a notification attempt.
func (m *Metrics) IncNotification(notifier string, err error) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(notifier, outcomeOf(err)).Inc()
}

// SetWSConnections sets the number of open WebSocket connections.
func (m *Metrics) SetWSConnections(n int) {
	if m == nil {
		return
	}
	m.wsConnections.Set(float64(n))
}

func outcomeOf(err error) string {
	if err == nil {
		return "ok"
	}
	var te *domain.TransientError
	if errors.As(err, &te) && te.StatusCode > 0 {
		return "transient_" + strconv.Itoa(te.StatusCode)
	}
	if domain.IsTransient(err) {
		return "transient"
	}
	var pe *domain.PermanentError
	if errors.As(err, &pe) {
		return "permanent"
	}
	return "error"
}
