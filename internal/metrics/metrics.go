// Package metrics holds the Prometheus collectors for the redirect engine.
// All methods are safe to call on a nil *Metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "edgelink"

type Metrics struct {
	registry *prometheus.Registry

	Redirects          *prometheus.CounterVec
	RoutingTiers       *prometheus.CounterVec
	SlugAllocations    *prometheus.CounterVec
	ClickEvents        *prometheus.CounterVec
	SinkEmits          *prometheus.CounterVec
	RateLimitDecisions *prometheus.CounterVec
	ClickQueueDepth    prometheus.Gauge
}

// New registers every collector on a fresh registry, so tests can build as
// many instances as they like.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		Redirects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redirects_total",
			Help:      "Redirect requests by lifecycle outcome.",
		}, []string{"outcome"}),
		RoutingTiers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routing_tier_total",
			Help:      "Resolved redirects by the routing tier that matched.",
		}, []string{"tier"}),
		SlugAllocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slug_allocation_attempts_total",
			Help:      "Slug reservation attempts by result.",
		}, []string{"result"}),
		ClickEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "click_events_total",
			Help:      "Click events by accounting result.",
		}, []string{"result"}),
		SinkEmits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_emit_total",
			Help:      "Click event emissions per sink and result.",
		}, []string{"sink", "result"}),
		RateLimitDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ratelimit_decisions_total",
			Help:      "Rate limiter decisions per operation.",
		}, []string{"operation", "result"}),
		ClickQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "click_queue_depth",
			Help:      "Click events waiting in the accounting queue.",
		}),
	}

	reg.MustRegister(
		m.Redirects,
		m.RoutingTiers,
		m.SlugAllocations,
		m.ClickEvents,
		m.SinkEmits,
		m.RateLimitDecisions,
		m.ClickQueueDepth,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Redirect(outcome string) {
	if m != nil {
		m.Redirects.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) RoutingTier(tier string) {
	if m != nil {
		m.RoutingTiers.WithLabelValues(tier).Inc()
	}
}

func (m *Metrics) SlugAllocation(result string) {
	if m != nil {
		m.SlugAllocations.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) ClickEvent(result string) {
	if m != nil {
		m.ClickEvents.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) SinkEmit(sink, result string) {
	if m != nil {
		m.SinkEmits.WithLabelValues(sink, result).Inc()
	}
}

func (m *Metrics) RateLimit(operation, result string) {
	if m != nil {
		m.RateLimitDecisions.WithLabelValues(operation, result).Inc()
	}
}

func (m *Metrics) QueueDepth(n int) {
	if m != nil {
		m.ClickQueueDepth.Set(float64(n))
	}
}
