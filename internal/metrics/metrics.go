package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ProviderRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rankwatch_provider_requests_total",
			Help: "Total number of requests sent to the search provider",
		},
		[]string{"status"},
	)

	ProviderDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rankwatch_provider_duration_seconds",
			Help:    "Duration of search provider requests in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30},
		},
	)

	ProviderRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rankwatch_provider_retries_total",
			Help: "Total number of retried provider requests",
		},
		[]string{"reason"},
	)

	KeywordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rankwatch_keywords_total",
			Help: "Total number of processed keywords by outcome",
		},
		[]string{"outcome"},
	)

	TargetRank = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rankwatch_target_rank",
			Help:    "Organic rank of the target domain for keywords where it was found",
			Buckets: []float64{1, 3, 5, 10, 20, 50, 100},
		},
	)
)

// RecordProviderRequest counts one provider round trip. status is the HTTP
// status code or "error" for transport failures.
func RecordProviderRequest(status string, d time.Duration) {
	ProviderRequestsTotal.WithLabelValues(status).Inc()
	ProviderDuration.Observe(d.Seconds())
}

// RecordRetry counts a scheduled retry.
func RecordRetry(reason string) {
	ProviderRetriesTotal.WithLabelValues(reason).Inc()
}

// RecordKeyword counts a finished keyword. rank is only observed when > 0.
func RecordKeyword(outcome string, rank int) {
	KeywordsTotal.WithLabelValues(outcome).Inc()
	if rank > 0 {
		TargetRank.Observe(float64(rank))
	}
}

// Handler exposes the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Server encapsulates an HTTP server for Prometheus metrics.
type Server struct {
	srv *http.Server
}

// Start begins listening on the specified port and exposes /metrics.
func Start(port int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		// Suppress the error from intentional shutdown
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", "err", err)
		}
	}()

	return &Server{srv: srv}
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s == nil || s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
