package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// CartMutationsTotal counts cart operations by operation and outcome.
	CartMutationsTotal *prometheus.CounterVec
	// CartPersistTotal counts cart persistence writes by result.
	CartPersistTotal *prometheus.CounterVec
	// CheckoutTotal counts checkout submissions by result.
	CheckoutTotal *prometheus.CounterVec
	// CatalogCacheTotal counts catalog cache lookups by result.
	CatalogCacheTotal *prometheus.CounterVec
	// CommerceRequestDuration records upstream commerce API latency in milliseconds.
	CommerceRequestDuration *prometheus.HistogramVec
)

// MustRegisterDomainMetrics initialises and registers storefront collectors.
// Only the first call has an effect; later calls keep the original registry.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		CartMutationsTotal = registerCounterVec(reg, prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_mutations_total",
			Help:      "Cart operations by operation and outcome.",
		}, "op", "outcome")
		CartPersistTotal = registerCounterVec(reg, prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_persist_total",
			Help:      "Cart persistence writes by result.",
		}, "result")
		CheckoutTotal = registerCounterVec(reg, prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_total",
			Help:      "Checkout submissions by result.",
		}, "result")
		CatalogCacheTotal = registerCounterVec(reg, prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_cache_total",
			Help:      "Catalog cache lookups by result.",
		}, "resource", "result")

		hist := prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "commerce_request_duration_ms",
			Help:      "Latency of commerce API calls in milliseconds.",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"operation", "result"})
		CommerceRequestDuration = hist
		mustRegisterCollector(reg, hist, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				CommerceRequestDuration = v
			}
		})
	})
}

// IncCounter bumps vec when it has been registered.
func IncCounter(vec *prometheus.CounterVec, labels ...string) {
	if vec == nil {
		return
	}
	vec.WithLabelValues(labels...).Inc()
}

func registerCounterVec(reg prometheus.Registerer, opts prometheus.CounterOpts, labels ...string) *prometheus.CounterVec {
	vec := prometheus.NewCounterVec(opts, labels)
	mustRegisterCollector(reg, vec, func(existing prometheus.Collector) {
		if v, ok := existing.(*prometheus.CounterVec); ok {
			vec = v
		}
	})
	return vec
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
