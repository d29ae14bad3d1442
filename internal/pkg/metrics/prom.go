package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Transfer outcomes used as label values.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeTransient = "transient"
)

var (
	registry = prometheus.NewRegistry()

	transfersTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "creatorpay",
		Subsystem: "gateway",
		Name:      "transfers_total",
		Help:      "Gateway transfer calls by outcome.",
	}, []string{"outcome"})

	transferDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "creatorpay",
		Subsystem: "gateway",
		Name:      "transfer_duration_seconds",
		Help:      "Latency of gateway transfer calls.",
		Buckets:   prometheus.DefBuckets,
	})

	itemsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "creatorpay",
		Subsystem: "payout",
		Name:      "items_total",
		Help:      "Payout items reaching a terminal or released state.",
	}, []string{"status"})

	queueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "creatorpay",
		Subsystem: "jobqueue",
		Name:      "depth",
		Help:      "Jobs waiting per queue list.",
	}, []string{"queue"})
)

func init() {
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		transfersTotal,
		transferDuration,
		itemsTotal,
		queueDepth,
	)
}

// ObserveTransfer records one gateway transfer call.
func ObserveTransfer(outcome string, duration time.Duration) {
	transfersTotal.WithLabelValues(outcome).Inc()
	transferDuration.Observe(duration.Seconds())
}

// CountItem records a payout item state change.
func CountItem(status string) {
	itemsTotal.WithLabelValues(status).Inc()
}

// SetQueueDepth publishes the current length of a queue list.
func SetQueueDepth(queue string, depth int64) {
	queueDepth.WithLabelValues(queue).Set(float64(depth))
}

// Handler returns the /metrics HTTP handler for the private registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
