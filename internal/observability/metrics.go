package observability

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	JobTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrape_job_transitions_total",
			Help: "Scrape job state transitions by source and target step",
		},
		[]string{"from", "to"},
	)

	ComparisonPagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comparison_pages_total",
			Help: "Comparison page loads by outcome",
		},
		[]string{"outcome"},
	)

	ComparisonColumnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comparison_columns_total",
			Help: "Requested comparison columns by match result",
		},
		[]string{"result"},
	)

	LLMRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_request_duration_seconds",
			Help:    "Latency of completion requests by purpose",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
		},
		[]string{"purpose"},
	)

	LLMFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_failures_total",
			Help: "Failed completion requests by purpose",
		},
		[]string{"purpose"},
	)
)

var registerOnce sync.Once

// Register adds every collector to the default registry. Safe to call more
// than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			JobTransitionsTotal,
			ComparisonPagesTotal,
			ComparisonColumnsTotal,
			LLMRequestDuration,
			LLMFailuresTotal,
		)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
