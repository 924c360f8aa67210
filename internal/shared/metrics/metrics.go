package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	sharesCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "droplink_shares_created_total",
		Help: "Total shares created successfully",
	})

	unlocksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "droplink_unlocks_total",
		Help: "Total unlock attempts by outcome",
	}, []string{"outcome"})

	retrievalsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "droplink_retrievals_total",
		Help: "Total blob retrievals served through signed handles",
	})

	blobCleanupFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "droplink_blob_cleanup_failures_total",
		Help: "Total compensating blob deletes that failed, leaving an orphan",
	})
)

// IncShareCreated increments the created-shares counter.
func IncShareCreated() {
	sharesCreatedTotal.Inc()
}

// IncUnlock increments the unlock counter for an outcome such as
// "granted", "denied", "expired", or "not_found".
func IncUnlock(outcome string) {
	unlocksTotal.WithLabelValues(outcome).Inc()
}

// IncRetrieval increments the served-retrievals counter.
func IncRetrieval() {
	retrievalsTotal.Inc()
}

// IncBlobCleanupFailure increments the orphaned-blob counter.
func IncBlobCleanupFailure() {
	blobCleanupFailuresTotal.Inc()
}

// Handler exposes the Prometheus registry over HTTP.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
