package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// TaxRateResolutions counts successful tax rate inferences by winning tier.
	TaxRateResolutions *prometheus.CounterVec
	// TaxRateCache counts effective tax rate lookups by cache result.
	TaxRateCache *prometheus.CounterVec
	// CheckoutTotal counts checkout attempts by outcome.
	CheckoutTotal *prometheus.CounterVec
	// OrderSyncTotal counts order pushes to the upstream store by outcome.
	OrderSyncTotal *prometheus.CounterVec
	// UpstreamLatency records WooCommerce request latency in milliseconds.
	UpstreamLatency *prometheus.HistogramVec
)

// MustRegisterDomainMetrics initialises and registers POS-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		TaxRateResolutions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tax_rate_resolutions_total",
			Help:      "Count of tax rate inferences by the tier that produced the rate.",
		}, []string{"tier"})
		TaxRateCache = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tax_rate_cache_total",
			Help:      "Count of effective tax rate lookups by cache result.",
		}, []string{"result"})
		CheckoutTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_total",
			Help:      "Count of checkout attempts by outcome.",
		}, []string{"result"})
		OrderSyncTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_sync_total",
			Help:      "Count of order pushes to WooCommerce by outcome.",
		}, []string{"result"})
		UpstreamLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_ms",
			Help:      "Latency of WooCommerce REST calls in milliseconds.",
			Buckets:   []float64{25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"endpoint", "result"})

		registerCounterVec(reg, &TaxRateResolutions)
		registerCounterVec(reg, &TaxRateCache)
		registerCounterVec(reg, &CheckoutTotal)
		registerCounterVec(reg, &OrderSyncTotal)
		mustRegisterCollector(reg, UpstreamLatency, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				UpstreamLatency = v
			}
		})
	})
}

func registerCounterVec(reg prometheus.Registerer, target **prometheus.CounterVec) {
	mustRegisterCollector(reg, *target, func(existing prometheus.Collector) {
		if v, ok := existing.(*prometheus.CounterVec); ok {
			*target = v
		}
	})
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
