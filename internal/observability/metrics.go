package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	dispatchRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "oraclectl",
			Subsystem: "dispatch",
			Name:      "requests_total",
			Help:      "Total invoke dispatches.",
		},
		[]string{"selector", "outcome"},
	)
	dispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "oraclectl",
			Subsystem: "dispatch",
			Name:      "request_duration_seconds",
			Help:      "Invoke dispatch duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"selector", "outcome"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(dispatchRequests, dispatchDuration)
	})
}

func RecordDispatch(selector, outcome string, duration time.Duration) {
	RegisterMetrics()
	dispatchRequests.WithLabelValues(selector, outcome).Inc()
	dispatchDuration.WithLabelValues(selector, outcome).Observe(duration.Seconds())
}
