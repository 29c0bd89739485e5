// README: Prometheus metrics for the dispatch engine and HTTP layer.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OffersSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gocab", Name: "offers_sent_total",
		Help: "Ride offers pushed to drivers",
	})
	OfferEscalations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gocab", Name: "offer_escalations_total",
		Help: "Offers escalated to the next candidate after the wait window",
	})
	RidesExpired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gocab", Name: "rides_expired_total",
		Help: "Rides that exhausted the candidate queue",
	})
	RidesAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gocab", Name: "rides_accepted_total",
		Help: "Rides accepted by a driver",
	})
	DispatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "gocab", Name: "dispatch_duration_seconds",
		Help:    "Time to validate, price and queue a ride request",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})
	DriversOnline = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "gocab", Name: "drivers_online",
		Help: "Drivers currently on duty",
	})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "gocab", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gocab", Name: "http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)
