// Package metrics declares the Prometheus series exported at /metrics.
package metrics

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	WebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Inbound payment webhooks by provider and outcome",
		},
		[]string{"provider", "result"},
	)

	WithdrawalDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "withdrawal_decisions_total",
			Help: "Admin decisions applied to withdrawal requests",
		},
		[]string{"action"},
	)

	WithdrawalRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "withdrawal_requests_total",
			Help: "Withdrawal requests by outcome",
		},
		[]string{"outcome"},
	)

	GatewayDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "Latency of calls to payment gateways",
			Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10},
		},
		[]string{"provider", "op"},
	)
)

// ObserveGateway records the time since start for one gateway call.
func ObserveGateway(provider, op string, start time.Time) {
	GatewayDuration.WithLabelValues(provider, op).Observe(time.Since(start).Seconds())
}

// Handler serves the default registry through Fiber.
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
