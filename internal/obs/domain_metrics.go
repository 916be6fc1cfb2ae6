package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// DiscountCheckTotal counts discount validation outcomes per product type.
	DiscountCheckTotal *prometheus.CounterVec
	// DiscountStaleDropped counts validator responses discarded because newer
	// inputs superseded the request they answered.
	DiscountStaleDropped prometheus.Counter
	// DiscountRevalidations counts debounced revalidations actually fired.
	DiscountRevalidations prometheus.Counter
	// DiscountCheckLatency records validator round-trip latency in milliseconds.
	DiscountCheckLatency *prometheus.HistogramVec
	// BookingSubmitTotal counts order submission outcomes per product type.
	BookingSubmitTotal *prometheus.CounterVec
	// BookingSessionsActive tracks currently open booking sessions.
	BookingSessionsActive prometheus.Gauge
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		DiscountCheckTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discount_check_total",
			Help:      "Count of discount validation outcomes.",
		}, []string{"product_type", "result"})
		DiscountStaleDropped = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discount_stale_dropped_total",
			Help:      "Validator responses discarded under the stale-response protocol.",
		})
		DiscountRevalidations = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discount_revalidation_total",
			Help:      "Debounced discount revalidations issued after pricing input changes.",
		})
		DiscountCheckLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "discount_check_duration_ms",
			Help:      "Latency of discount validator calls in milliseconds.",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"result"})
		BookingSubmitTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_submit_total",
			Help:      "Count of booking submission outcomes.",
		}, []string{"product_type", "result"})
		BookingSessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "booking_sessions_active",
			Help:      "Number of open booking sessions held in memory.",
		})

		mustRegisterCollector(reg, DiscountCheckTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				DiscountCheckTotal = v
			}
		})
		mustRegisterCollector(reg, DiscountStaleDropped, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				DiscountStaleDropped = v
			}
		})
		mustRegisterCollector(reg, DiscountRevalidations, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				DiscountRevalidations = v
			}
		})
		mustRegisterCollector(reg, DiscountCheckLatency, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				DiscountCheckLatency = v
			}
		})
		mustRegisterCollector(reg, BookingSubmitTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				BookingSubmitTotal = v
			}
		})
		mustRegisterCollector(reg, BookingSessionsActive, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Gauge); ok {
				BookingSessionsActive = v
			}
		})
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
