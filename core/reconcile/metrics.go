package reconcile

import "github.com/prometheus/client_golang/prometheus"

var (
	sweepsTotal   prometheus.Counter
	expiredTotal  prometheus.Counter
	healedTotal   prometheus.Counter
	sweepDuration prometheus.Histogram
)

func newCollectors() (prometheus.Counter, prometheus.Counter, prometheus.Counter, prometheus.Histogram) {
	sweeps := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reconcile_sweeps_total",
		Help: "Number of reconciliation sweeps",
	})
	expired := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reconcile_expired_total",
		Help: "Assignments expired by the sweep",
	})
	healed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reconcile_healed_total",
		Help: "Stalled bookings whose cascade was resumed",
	})
	dur := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "reconcile_sweep_duration_seconds",
		Help:    "Duration of a reconciliation sweep",
		Buckets: prometheus.DefBuckets,
	})
	return sweeps, expired, healed, dur
}

func init() {
	sweepsTotal, expiredTotal, healedTotal, sweepDuration = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers reconciler metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(sweepsTotal, expiredTotal, healedTotal, sweepDuration)
}

// ResetMetrics reinitializes collectors for tests.
func ResetMetrics(reg prometheus.Registerer) {
	sweepsTotal, expiredTotal, healedTotal, sweepDuration = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}

func observe(rep Report) {
	sweepsTotal.Inc()
	expiredTotal.Add(float64(rep.Expired))
	healedTotal.Add(float64(rep.Healed))
	sweepDuration.Observe(rep.Duration.Seconds())
}
