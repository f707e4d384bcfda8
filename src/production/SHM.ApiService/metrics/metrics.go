package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shm_http_requests_total",
			Help: "Total number of HTTP requests by route and status",
		},
		[]string{"method", "path", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shm_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	LLMRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shm_llm_requests_total",
			Help: "Chat-completion calls by provider and outcome",
		},
		[]string{"provider", "outcome"}, // ok, error, breaker_open
	)

	LLMRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shm_llm_request_duration_seconds",
			Help:    "Chat-completion latency in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60},
		},
		[]string{"provider"},
	)

	NLPDispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shm_nlp_dispatch_total",
			Help: "Assistant replies by dispatch outcome",
		},
		[]string{"kind"}, // visualize, select, write, sql_error, suggestion, llm_error
	)

	SQLStatementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shm_sql_statements_total",
			Help: "Ad-hoc SQL statements executed for the console and the assistant",
		},
		[]string{"kind", "outcome"},
	)

	AnalysisReportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shm_analysis_reports_total",
			Help: "Analysis reports served by response format",
		},
		[]string{"report", "format"}, // png, table, error
	)
)

// RecordAPIRequest records one served HTTP request
func RecordAPIRequest(method, path, status string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, path, status).Inc()
	APIRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordLLMRequest records one chat-completion call
func RecordLLMRequest(provider, outcome string, duration time.Duration) {
	LLMRequestsTotal.WithLabelValues(provider, outcome).Inc()
	LLMRequestDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

func RecordDispatch(kind string) {
	NLPDispatchTotal.WithLabelValues(kind).Inc()
}

func RecordSQLStatement(kind string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	SQLStatementsTotal.WithLabelValues(kind, outcome).Inc()
}

func RecordReport(report, format string) {
	AnalysisReportsTotal.WithLabelValues(report, format).Inc()
}
