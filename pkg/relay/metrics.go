package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_requests_total",
		Help: "Upstream attempts by outcome (success, timeout, error, disconnected)",
	}, []string{"outcome"})

	rateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_rate_limited_total",
		Help: "Requests rejected by admission control",
	})

	validationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_validation_failures_total",
		Help: "Requests rejected as malformed or too long",
	})

	tokensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_tokens_total",
		Help: "Total tokens accounted, by type (prompt, completion)",
	}, []string{"type"})

	costTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_cost_usd_total",
		Help: "Estimated upstream spend",
	})

	upstreamLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "relay_upstream_latency_seconds",
		Help:    "Time from upstream call start to the end of the response",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	})

	activeStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_active_streams",
		Help: "Streams currently being relayed",
	})

	streamFragments = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "relay_stream_fragments",
		Help:    "Fragments forwarded per streamed response",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})
)

const (
	outcomeSuccess      = "success"
	outcomeTimeout      = "timeout"
	outcomeError        = "error"
	outcomeDisconnected = "disconnected"
)
