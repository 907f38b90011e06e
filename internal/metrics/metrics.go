package metrics

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	JobsEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jobs_enqueued_total",
		Help: "The total number of jobs submitted to the bus",
	}, []string{"type"})

	JobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jobs_processed_total",
		Help: "The total number of dispatch outcomes",
	}, []string{"type", "outcome"}) // outcome: completed, retried, failed, skipped

	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "job_duration_seconds",
		Help:    "Duration of handler execution.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"type"})

	NotificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_sent_total",
		Help: "The total number of notifications dispatched by message type",
	}, []string{"message_type"})

	DependencyHealthy = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dependency_healthy",
		Help: "Whether the monitored dependency's last probe succeeded (1/0)",
	}, []string{"dependency"})
)

// StartServer runs an HTTP server exposing Prometheus metrics.
func StartServer(addr string, logger *slog.Logger) {
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("Metrics server failed", slog.Any("error", err))
		}
	}()
}
