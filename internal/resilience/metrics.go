package resilience

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Breaker and retry collectors. BreakerState reports the numeric State.
var (
	BreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Subsystem: "outbound",
		Name:      "breaker_state",
		Help:      "Breaker position per target (0 closed, 1 open, 2 half-open).",
	}, []string{"target"})

	BreakerTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "outbound",
		Name:      "breaker_transitions_total",
		Help:      "Breaker state changes per target.",
	}, []string{"target", "from", "to"})

	BreakerOpenedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "outbound",
		Name:      "breaker_opened_total",
		Help:      "Times a target's breaker tripped open.",
	}, []string{"target"})

	RetryAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "outbound",
		Name:      "retries_total",
		Help:      "Outbound attempts retried after a failure.",
	}, []string{"target"})
)

var registerOnce sync.Once

// MustRegisterMetrics registers the collectors on reg, or the default
// registerer when reg is nil. Later calls are no-ops.
func MustRegisterMetrics(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		reg.MustRegister(BreakerState, BreakerTransitions, BreakerOpenedTotal, RetryAttempts)
	})
}
