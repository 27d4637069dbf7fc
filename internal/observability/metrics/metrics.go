// Package metrics exposes prometheus instruments for the credit engine.
package metrics

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts charge outcomes and admin adjustments.
type Metrics struct {
	chargesAuthorized prometheus.Counter
	chargesBypassed   prometheus.Counter
	chargesRejected   *prometheus.CounterVec
	adjustments       *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metrics     *Metrics
)

// Default returns the singleton metrics registry.
func Default() *Metrics {
	metricsOnce.Do(func() {
		metrics = New(prometheus.DefaultRegisterer)
	})
	return metrics
}

// ResetForTest resets the singleton for tests.
func ResetForTest() {
	metricsOnce = sync.Once{}
	metrics = nil
}

func New(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		chargesAuthorized: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "credit_charges_authorized_total",
			Help: "Charges that passed balance and cap checks.",
		}),
		chargesBypassed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "credit_charges_bypassed_total",
			Help: "Charges short-circuited by the admin bypass.",
		}),
		chargesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "credit_charges_rejected_total",
			Help: "Rejected charges by reason.",
		}, []string{"reason"}),
		adjustments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "credit_adjustments_total",
			Help: "Admin ledger adjustments by kind.",
		}, []string{"kind"}),
	}

	for _, c := range []prometheus.Collector{
		m.chargesAuthorized,
		m.chargesBypassed,
		m.chargesRejected,
		m.adjustments,
	} {
		if err := registerer.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				panic(err)
			}
		}
	}

	return m
}

func (m *Metrics) IncChargeAuthorized() {
	if m == nil {
		return
	}
	m.chargesAuthorized.Inc()
}

func (m *Metrics) IncChargeBypassed() {
	if m == nil {
		return
	}
	m.chargesBypassed.Inc()
}

func (m *Metrics) IncChargeRejected(reason string) {
	if m == nil {
		return
	}
	m.chargesRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncAdjustment(kind string) {
	if m == nil {
		return
	}
	m.adjustments.WithLabelValues(kind).Inc()
}
