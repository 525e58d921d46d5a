package upstream

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	circuitState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "relay_upstream_circuit_state",
		Help: "Upstream circuit breaker state (0 closed, 1 half-open, 2 open)",
	}, []string{"name"})
)
