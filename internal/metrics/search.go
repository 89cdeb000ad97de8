package metrics

import "github.com/prometheus/client_golang/prometheus"

// Search and embedding-job Prometheus metrics.
var (
	SearchSubqueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "calliope",
			Name:      "search_subqueries_total",
			Help:      "Per-type search sub-queries by kind and outcome",
		},
		[]string{"entity_type", "kind", "status"}, // kind: "vector" / "keyword"
	)

	SearchDegradedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "calliope",
			Name:      "search_degraded_total",
			Help:      "Searches that completed with reduced quality",
		},
		[]string{"reason"}, // "query_embed_failed" / "subquery_failed" / "type_timeout"
	)

	EmbedJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "calliope",
			Name:      "embed_jobs_total",
			Help:      "Embedding jobs by final outcome",
		},
		[]string{"status"}, // "success" / "failed" / "invalid"
	)
)

var searchMetricsRegistered bool

// RegisterSearchMetrics registers search metrics. Must be called once from main.
func RegisterSearchMetrics() {
	if searchMetricsRegistered {
		return
	}
	prometheus.MustRegister(SearchSubqueriesTotal)
	prometheus.MustRegister(SearchDegradedTotal)
	prometheus.MustRegister(EmbedJobsTotal)
	searchMetricsRegistered = true
}
