package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fastertasks_build_info",
			Help: "Build information of the fastertasks client",
		},
		[]string{"version", "commit", "date"},
	)

	MirrorRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fastertasks_mirror_refresh_total",
			Help: "Total number of ledger mirror refreshes",
		},
		[]string{"kind", "status"}, // kind: "tasks"/"balance", status: "success"/"error"/"discarded"
	)

	MirrorRefreshDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fastertasks_mirror_refresh_duration_seconds",
			Help:    "Duration of ledger mirror refreshes",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~41s
		},
		[]string{"kind"},
	)

	MirrorVisibleTasks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fastertasks_mirror_visible_tasks",
			Help: "Number of visible tasks in the latest mirror snapshot",
		},
	)

	ChainReadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fastertasks_chain_reads_total",
			Help: "Total number of contract reads",
		},
		[]string{"method", "status"},
	)

	TransactionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fastertasks_transactions_total",
			Help: "Total number of transaction state transitions",
		},
		[]string{"kind", "state"},
	)

	ChainEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fastertasks_chain_events_total",
			Help: "Total number of contract events received",
		},
		[]string{"event"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fastertasks_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fastertasks_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// RecordChainRead records the outcome of a single contract read.
func RecordChainRead(method string, err error) {
	ChainReadsTotal.WithLabelValues(method, status(err)).Inc()
}

// RecordRefresh records a mirror refresh that was applied or failed.
func RecordRefresh(kind string, duration time.Duration, err error) {
	MirrorRefreshTotal.WithLabelValues(kind, status(err)).Inc()
	MirrorRefreshDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordDiscardedRefresh records a refresh whose result was superseded by a
// newer one.
func RecordDiscardedRefresh(kind string) {
	MirrorRefreshTotal.WithLabelValues(kind, "discarded").Inc()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
