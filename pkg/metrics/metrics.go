package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "wanzdb", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "wanzdb", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
	DocumentOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "wanzdb", Name: "document_operations_total", Help: "Document lifecycle operations by operation and outcome."},
		[]string{"op", "outcome"},
	)
	RegistryOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "wanzdb", Name: "registry_operations_total", Help: "Collection registry operations by operation and outcome."},
		[]string{"op", "outcome"},
	)
	StoreDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Namespace: "wanzdb", Name: "store_operation_seconds", Help: "Latency of backing store calls.", Buckets: prometheus.DefBuckets},
		[]string{"op"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(DocumentOperations)
	reg.MustRegister(RegistryOperations)
	reg.MustRegister(StoreDuration)
}
