package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/docvault/internal/core/domain"
)

// Outcomes of a single queue delivery.
const (
	outcomeSuccess  = "success"
	outcomeFailed   = "failed"
	outcomeTimeout  = "timeout"
	outcomeNotFound = "not_found"
)

// WorkerMetrics serves the worker's own registry: the shared core collectors
// plus queue consumption and sweeper counters.
type WorkerMetrics struct {
	*coreCollectors

	registry *prometheus.Registry

	deliveries       *prometheus.CounterVec
	deliveryDuration *prometheus.HistogramVec
	inFlight         prometheus.Gauge
	queueLag         prometheus.Histogram
	sweepRequeued    prometheus.Counter
	sweepRuns        prometheus.Counter
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()
	labels := prometheus.Labels{"service": service}

	m := &WorkerMetrics{
		coreCollectors: newCoreCollectors(registry, service),
		registry:       registry,
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "worker",
			Name:        "deliveries_total",
			Help:        "Upload events consumed from the queue by outcome.",
			ConstLabels: labels,
		}, []string{"outcome"}),
		deliveryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "worker",
			Name:        "delivery_duration_seconds",
			Help:        "Time spent handling one upload event, by outcome.",
			Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			ConstLabels: labels,
		}, []string{"outcome"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "worker",
			Name:        "deliveries_in_flight",
			Help:        "Upload events currently being handled.",
			ConstLabels: labels,
		}),
		queueLag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "worker",
			Name:        "queue_lag_seconds",
			Help:        "Delay between the last document state change and the start of processing.",
			Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
			ConstLabels: labels,
		}),
		sweepRequeued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "sweeper",
			Name:        "documents_requeued_total",
			Help:        "Stale uploads re-published by the sweeper.",
			ConstLabels: labels,
		}),
		sweepRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "sweeper",
			Name:        "runs_total",
			Help:        "Completed sweeper runs.",
			ConstLabels: labels,
		}),
	}
	registry.MustRegister(m.deliveries, m.deliveryDuration, m.inFlight, m.queueLag, m.sweepRequeued, m.sweepRuns)
	return m
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartDocument() {
	m.inFlight.Inc()
}

// FinishDocument closes a StartDocument call. The outcome label is derived
// from err.
func (m *WorkerMetrics) FinishDocument(duration time.Duration, err error) {
	m.inFlight.Dec()
	outcome := deliveryOutcome(err)
	m.deliveries.WithLabelValues(outcome).Inc()
	m.deliveryDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func deliveryOutcome(err error) string {
	switch {
	case err == nil:
		return outcomeSuccess
	case errors.Is(err, context.DeadlineExceeded):
		return outcomeTimeout
	case domain.IsKind(err, domain.ErrDocumentNotFound):
		return outcomeNotFound
	default:
		return outcomeFailed
	}
}

func (m *WorkerMetrics) ObserveQueueLag(lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.Observe(lag.Seconds())
}

func (m *WorkerMetrics) RecordSweep(requeued int) {
	m.sweepRuns.Inc()
	if requeued > 0 {
		m.sweepRequeued.Add(float64(requeued))
	}
}
