package notify

import "github.com/prometheus/client_golang/prometheus"

var notificationsTotal *prometheus.CounterVec

func newCollectors() *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Notification outcomes (live, push, queued, flushed, expired, undeliverable)",
		},
		[]string{"outcome"},
	)
}

func init() {
	notificationsTotal = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers notification metrics on the provided
// registry. If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(notificationsTotal)
}

// ResetMetrics reinitializes collectors for tests.
func ResetMetrics(reg prometheus.Registerer) {
	notificationsTotal = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
