package transport

import "github.com/prometheus/client_golang/prometheus"

// Metrics is the set of Prometheus collectors a Transport updates while
// driving requests through the pipeline, grouped the way
// stats/proxy_stats.go and stats/target_stats.go group counter/latency
// trackers for a running aistore daemon.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	DeadMarksTotal  *prometheus.CounterVec
	ResurrectionsTotal prometheus.Counter
	SniffsTotal     *prometheus.CounterVec
	PingsTotal      *prometheus.CounterVec
	AttemptsPerRequest prometheus.Histogram
	RequestDuration    *prometheus.HistogramVec
}

// NewMetrics builds and registers a Metrics set against reg. Pass
// prometheus.NewRegistry() in tests to avoid colliding with the default
// global registry across parallel test binaries.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transport_requests_total",
			Help: "Total logical requests served by the pipeline, by outcome.",
		}, []string{"outcome"}),
		DeadMarksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transport_node_dead_marks_total",
			Help: "Total times a node was marked dead, by node.",
		}, []string{"node"}),
		ResurrectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "transport_resurrections_total",
			Help: "Total times a dead node was handed out as a resurrection probe.",
		}),
		SniffsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transport_sniffs_total",
			Help: "Total sniff attempts, by outcome.",
		}, []string{"outcome"}),
		PingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transport_pings_total",
			Help: "Total ping attempts, by outcome.",
		}, []string{"outcome"}),
		AttemptsPerRequest: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "transport_attempts_per_request",
			Help:    "Number of node attempts per logical request.",
			Buckets: prometheus.LinearBuckets(1, 1, 8),
		}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "transport_request_duration_seconds",
			Help:    "End-to-end duration of one logical request.",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.RequestsTotal, m.DeadMarksTotal, m.ResurrectionsTotal,
			m.SniffsTotal, m.PingsTotal, m.AttemptsPerRequest, m.RequestDuration)
	}
	return m
}
