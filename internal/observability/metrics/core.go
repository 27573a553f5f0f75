package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/docvault/internal/core/domain"
)

const namespace = "docvault"

// coreCollectors covers the document pipeline, rule engine, search and the
// circuit breakers. Both the API and the worker embed it into their registry.
type coreCollectors struct {
	service string

	pipelineTotal        *prometheus.CounterVec
	pipelineDuration     prometheus.Histogram
	pipelineDegradations *prometheus.CounterVec

	ruleEvaluations   prometheus.Counter
	ruleTriggers      prometheus.Counter
	ruleEvalDuration  prometheus.Histogram
	ruleActionsTotal  *prometheus.CounterVec
	searchTotal       *prometheus.CounterVec
	searchResults     *prometheus.HistogramVec
	searchDuration    *prometheus.HistogramVec
	breakerState      *prometheus.GaugeVec
	breakerStateNames []string
}

func newCoreCollectors(registry *prometheus.Registry, service string) *coreCollectors {
	labels := prometheus.Labels{"service": service}
	c := &coreCollectors{
		service: service,
		pipelineTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "pipeline",
			Name:        "documents_total",
			Help:        "Documents run through the processing pipeline by result status.",
			ConstLabels: labels,
		}, []string{"status"}),
		pipelineDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "pipeline",
			Name:        "duration_seconds",
			Help:        "Pipeline duration in seconds.",
			Buckets:     []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			ConstLabels: labels,
		}),
		pipelineDegradations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "pipeline",
			Name:        "degradations_total",
			Help:        "Degraded pipeline stages by kind.",
			ConstLabels: labels,
		}, []string{"kind"}),
		ruleEvaluations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "rules",
			Name:        "evaluations_total",
			Help:        "Documents evaluated against workflow rules.",
			ConstLabels: labels,
		}),
		ruleTriggers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "rules",
			Name:        "triggers_total",
			Help:        "Rules triggered across all evaluations.",
			ConstLabels: labels,
		}),
		ruleEvalDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "rules",
			Name:        "evaluation_duration_seconds",
			Help:        "Rule evaluation duration in seconds.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: labels,
		}),
		ruleActionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "rules",
			Name:        "actions_total",
			Help:        "Rule actions by type and outcome.",
			ConstLabels: labels,
		}, []string{"action", "status"}),
		searchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "search",
			Name:        "queries_total",
			Help:        "Search requests by kind.",
			ConstLabels: labels,
		}, []string{"kind"}),
		searchResults: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "search",
			Name:        "results",
			Help:        "Result count per search request.",
			Buckets:     []float64{0, 1, 2, 5, 10, 20, 50, 100, 500},
			ConstLabels: labels,
		}, []string{"kind"}),
		searchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "search",
			Name:        "duration_seconds",
			Help:        "Search duration in seconds.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: labels,
		}, []string{"kind"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "resilience",
			Name:        "breaker_state",
			Help:        "Circuit breaker state per operation (1 for the current state).",
			ConstLabels: labels,
		}, []string{"operation", "state"}),
		breakerStateNames: []string{
			gobreaker.StateClosed.String(),
			gobreaker.StateHalfOpen.String(),
			gobreaker.StateOpen.String(),
		},
	}
	registry.MustRegister(
		c.pipelineTotal,
		c.pipelineDuration,
		c.pipelineDegradations,
		c.ruleEvaluations,
		c.ruleTriggers,
		c.ruleEvalDuration,
		c.ruleActionsTotal,
		c.searchTotal,
		c.searchResults,
		c.searchDuration,
		c.breakerState,
	)
	return c
}

func (c *coreCollectors) ObservePipeline(status domain.DocumentStatus, degradations []string, duration time.Duration) {
	c.pipelineTotal.WithLabelValues(string(status)).Inc()
	c.pipelineDuration.Observe(duration.Seconds())
	for _, kind := range degradations {
		c.pipelineDegradations.WithLabelValues(kind).Inc()
	}
}

func (c *coreCollectors) ObserveEvaluation(triggered int, duration time.Duration) {
	c.ruleEvaluations.Inc()
	c.ruleEvalDuration.Observe(duration.Seconds())
	if triggered > 0 {
		c.ruleTriggers.Add(float64(triggered))
	}
}

func (c *coreCollectors) ObserveAction(action domain.ActionType, status string) {
	if action == "" {
		action = "unknown"
	}
	c.ruleActionsTotal.WithLabelValues(string(action), status).Inc()
}

func (c *coreCollectors) ObserveSearch(kind string, results int, duration time.Duration) {
	c.searchTotal.WithLabelValues(kind).Inc()
	c.searchResults.WithLabelValues(kind).Observe(float64(results))
	c.searchDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// ObserveBreakerState matches resilience.StateObserver.
func (c *coreCollectors) ObserveBreakerState(operation string, state gobreaker.State) {
	current := state.String()
	for _, name := range c.breakerStateNames {
		value := 0.0
		if name == current {
			value = 1
		}
		c.breakerState.WithLabelValues(operation, name).Set(value)
	}
}
