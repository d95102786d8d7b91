package presence

import "github.com/prometheus/client_golang/prometheus"

var (
	sessionsGauge prometheus.Gauge
	heartbeatRTT  prometheus.Histogram
)

func newCollectors() (prometheus.Gauge, prometheus.Histogram) {
	g := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "presence_sessions",
		Help: "Live transport sessions across all identities",
	})
	h := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "presence_heartbeat_rtt_seconds",
		Help:    "Heartbeat round trip time of live sessions",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
	})
	return g, h
}

func init() {
	sessionsGauge, heartbeatRTT = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers presence metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(sessionsGauge, heartbeatRTT)
}

// ResetMetrics reinitializes collectors for tests and registers them on reg
// if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	sessionsGauge, heartbeatRTT = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
