package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	APILatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "riskpulse",
			Subsystem: "api",
			Name:      "latency_seconds",
			Help:      "Latency of report endpoints",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint", "format"},
	)

	APIErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "riskpulse",
			Subsystem: "api",
			Name:      "errors_total",
			Help:      "Errors by report endpoint and code",
		},
		[]string{"endpoint", "code"},
	)

	FeedClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "riskpulse",
			Subsystem: "feed",
			Name:      "clients",
			Help:      "Connected live-feed websocket clients",
		},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(APILatency, APIErrors, FeedClients)
	})
}
