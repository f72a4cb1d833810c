// Package metrics holds the Prometheus collectors for catalog searches.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "iipsearch"

// Metrics records recovered failures and search outcomes. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	FallbackQueriesTotal      *prometheus.CounterVec
	EmptyPagesTotal           *prometheus.CounterVec
	FacetUnavailableTotal     prometheus.Counter
	BiblioLookupFailuresTotal prometheus.Counter
	SearchesTotal             *prometheus.CounterVec
	SearchDuration            prometheus.Histogram
}

// New creates the collectors and registers them on reg. Use a fresh
// prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FallbackQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fallback_queries_total",
				Help:      "Queries rejected as malformed and replaced by the match-all query",
			},
			[]string{"query"}, // "main" / "facet"
		),
		EmptyPagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "empty_pages_total",
				Help:      "Page requests answered with the empty page",
			},
			[]string{"reason"}, // "out_of_range" / "no_results" / "fetch_failed"
		),
		FacetUnavailableTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "facet_unavailable_total",
				Help:      "Facet reads that found no facet data",
			},
		),
		BiblioLookupFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "biblio_lookup_failures_total",
				Help:      "Bibliography lookups that failed during enrichment",
			},
		),
		SearchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "searches_total",
				Help:      "Catalog searches by outcome",
			},
			[]string{"status"}, // "ok" / "error"
		),
		SearchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "search_duration_seconds",
				Help:      "Catalog search duration in seconds",
				Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		),
	}

	reg.MustRegister(
		m.FallbackQueriesTotal,
		m.EmptyPagesTotal,
		m.FacetUnavailableTotal,
		m.BiblioLookupFailuresTotal,
		m.SearchesTotal,
		m.SearchDuration,
	)
	return m
}

func (m *Metrics) FallbackQuery(query string) {
	if m == nil {
		return
	}
	m.FallbackQueriesTotal.WithLabelValues(query).Inc()
}

func (m *Metrics) EmptyPage(reason string) {
	if m == nil {
		return
	}
	m.EmptyPagesTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) FacetUnavailable() {
	if m == nil {
		return
	}
	m.FacetUnavailableTotal.Inc()
}

func (m *Metrics) BiblioLookupFailed() {
	if m == nil {
		return
	}
	m.BiblioLookupFailuresTotal.Inc()
}

// SearchFinished counts one search and observes its duration.
func (m *Metrics) SearchFinished(status string, took time.Duration) {
	if m == nil {
		return
	}
	m.SearchesTotal.WithLabelValues(status).Inc()
	m.SearchDuration.Observe(took.Seconds())
}
