package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Store holds the Prometheus metrics collectors.
type Store struct {
	Registry             *prometheus.Registry // Use a custom registry
	TaskRunning          prometheus.Gauge
	RunDuration          prometheus.Histogram
	AuthenticateDuration prometheus.Histogram
	FetchDuration        *prometheus.HistogramVec
	ReferencesDispatched prometheus.Counter
	SecretsPublished     prometheus.Counter
	ErrorsTotal          *prometheus.CounterVec
}

// NewMetricsStore creates and registers Prometheus metrics.
func NewMetricsStore() *Store {
	registry := prometheus.NewRegistry()

	return &Store{
		Registry: registry,
		TaskRunning: promauto.With(registry).NewGauge(prometheus.GaugeOpts{
			Name: "conjur_task_up",
			Help: "Indicates if the secret retrieval task is currently running (1 = running, 0 = not running).",
		}),
		RunDuration: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
			Name:    "conjur_task_run_duration_seconds",
			Help:    "Duration of the entire retrieval run.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		AuthenticateDuration: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
			Name:    "conjur_authenticate_duration_seconds",
			Help:    "Duration of the credential exchange.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		FetchDuration: promauto.With(registry).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "conjur_fetch_duration_seconds",
			Help:    "Duration histogram for fetching individual secrets.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"status"}), // success, failure
		ReferencesDispatched: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "conjur_references_dispatched_total",
			Help: "Total number of manifest references dispatched for fetching.",
		}),
		SecretsPublished: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "conjur_secrets_published_total",
			Help: "Total number of secrets published to the variable sink.",
		}),
		ErrorsTotal: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "conjur_errors_total",
			Help: "Total number of reported failures, labeled by kind.",
		}, []string{"kind"}), // unsupported_auth_scheme, malformed_manifest_line, remote_non_success_status, network_failure, task_failure
	}
}

// Push sends every collector of the store to a Pushgateway.
func (s *Store) Push(ctx context.Context, gatewayURL, job string) error {
	pusher := push.New(gatewayURL, job).Gatherer(s.Registry)
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("pushing metrics to %s: %w", gatewayURL, err)
	}
	return nil
}
