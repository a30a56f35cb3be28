package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the prometheus collectors for one process invocation.
// A fresh instance is created per process; cross-invocation state lives only
// in the persistent store.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	CacheHitsTotal  *prometheus.CounterVec
	RetriesTotal    *prometheus.CounterVec

	ItemsProcessed *prometheus.CounterVec
	RunsTotal      *prometheus.CounterVec
}

// New creates a metrics set registered against its own registry
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "casesync",
			Name:      "upstream_requests_total",
			Help:      "Upstream API calls by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "casesync",
			Name:      "upstream_request_duration_seconds",
			Help:      "Upstream API call latency by endpoint.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		CacheHitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "casesync",
			Name:      "cache_hits_total",
			Help:      "Cache hits by endpoint.",
		}, []string{"endpoint"}),
		RetriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "casesync",
			Name:      "upstream_retries_total",
			Help:      "Transport-level retries by endpoint.",
		}, []string{"endpoint"}),
		ItemsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "casesync",
			Name:      "sync_items_total",
			Help:      "Items processed by stage and result.",
		}, []string{"stage", "result"}),
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "casesync",
			Name:      "sync_runs_total",
			Help:      "Sync runs by final status.",
		}, []string{"status"}),
	}

	registry.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.CacheHitsTotal,
		m.RetriesTotal,
		m.ItemsProcessed,
		m.RunsTotal,
	)

	return m
}

// Registry returns the registry backing this metrics set, for /metrics export
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
