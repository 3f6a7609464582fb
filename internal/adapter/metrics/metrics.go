package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RelayMetrics holds all Prometheus metrics for the relay service.
type RelayMetrics struct {
	EventsTotal        *prometheus.CounterVec
	PendingCacheHits   prometheus.Counter
	PendingCacheMisses prometheus.Counter
	DeliveryDuration   prometheus.Histogram
}

// NewRelayMetrics initializes and registers the Prometheus metrics.
func NewRelayMetrics() *RelayMetrics {
	return &RelayMetrics{
		EventsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "capi_relay",
			Subsystem: "pipeline",
			Name:      "events_total",
			Help:      "Total number of processed events by name and delivery status.",
		}, []string{"event_name", "status"}),
		PendingCacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "capi_relay",
			Subsystem: "dedup",
			Name:      "pending_cache_hits_total",
			Help:      "Total number of pending event-id cache hits.",
		}),
		PendingCacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "capi_relay",
			Subsystem: "dedup",
			Name:      "pending_cache_misses_total",
			Help:      "Total number of pending event-id cache misses.",
		}),
		DeliveryDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "capi_relay",
			Subsystem: "dispatch",
			Name:      "delivery_duration_seconds",
			Help:      "Latency of outbound Conversions API calls.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}
