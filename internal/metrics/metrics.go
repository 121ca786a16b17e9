// Package metrics records pipeline run statistics as Prometheus collectors and
// keeps a small health snapshot for the monitoring endpoint.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "spectrumpost"

// Metrics owns a private registry so independent instances do not collide.
type Metrics struct {
	registry *prometheus.Registry

	runsTotal           *prometheus.CounterVec
	candidatesTotal     *prometheus.CounterVec
	mediaRejectedTotal  *prometheus.CounterVec
	publishAttempts     *prometheus.CounterVec
	runDurationSeconds  prometheus.Histogram
	lastSuccessUnixtime prometheus.Gauge

	mu            sync.RWMutex
	lastRunTime   time.Time
	lastErrorTime time.Time
	lastError     string
	lastOutcome   string
	isHealthy     bool
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs, labeled by outcome.",
		}, []string{"outcome"}),
		candidatesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidates_total",
			Help:      "Candidates seen per pipeline stage.",
		}, []string{"stage"}),
		mediaRejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "media_rejected_total",
			Help:      "Media assets rejected by the validation pipeline, labeled by reason.",
		}, []string{"reason"}),
		publishAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_attempts_total",
			Help:      "Delivery attempts, labeled by delivery mode and result.",
		}, []string{"mode", "result"}),
		runDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of a pipeline run.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		lastSuccessUnixtime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last run that published a post.",
		}),
		isHealthy: true,
	}
	m.registry.MustRegister(
		m.runsTotal,
		m.candidatesTotal,
		m.mediaRejectedTotal,
		m.publishAttempts,
		m.runDurationSeconds,
		m.lastSuccessUnixtime,
	)
	return m
}

// Registry exposes the registry for tests and custom handlers.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveCandidates counts candidates at a stage such as "discovered",
// "fresh" or "unpublished".
func (m *Metrics) ObserveCandidates(stage string, n int) {
	m.candidatesTotal.WithLabelValues(stage).Add(float64(n))
}

func (m *Metrics) ObserveMediaRejected(reason string) {
	m.mediaRejectedTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObservePublishAttempt(mode, result string) {
	m.publishAttempts.WithLabelValues(mode, result).Inc()
}

// ObserveRun records a finished run. errText is empty for runs that did not
// fail.
func (m *Metrics) ObserveRun(outcome string, duration time.Duration, errText string) {
	m.runsTotal.WithLabelValues(outcome).Inc()
	m.runDurationSeconds.Observe(duration.Seconds())

	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastRunTime = now
	m.lastOutcome = outcome
	if errText != "" {
		m.lastError = errText
		m.lastErrorTime = now
		m.isHealthy = false
		return
	}
	m.isHealthy = true
	if outcome == "published" {
		m.lastSuccessUnixtime.Set(float64(now.Unix()))
	}
}

// Healthy reports whether the last run finished without failing.
func (m *Metrics) Healthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isHealthy
}

// GetStats returns the health snapshot served by /health.
func (m *Metrics) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := map[string]interface{}{
		"is_healthy":   m.isHealthy,
		"last_outcome": m.lastOutcome,
		"last_error":   m.lastError,
	}
	if !m.lastRunTime.IsZero() {
		stats["last_run_time"] = m.lastRunTime.Format(time.RFC3339)
	}
	if !m.lastErrorTime.IsZero() {
		stats["last_error_time"] = m.lastErrorTime.Format(time.RFC3339)
	}
	return stats
}

// Push sends the registry to a Pushgateway. An empty gatewayURL is a no-op.
func (m *Metrics) Push(ctx context.Context, gatewayURL, job string) error {
	if gatewayURL == "" {
		return nil
	}
	if job == "" {
		job = namespace
	}
	if err := push.New(gatewayURL, job).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", gatewayURL, err)
	}
	return nil
}
