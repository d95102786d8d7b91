package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	assignmentsCreated  *prometheus.CounterVec
	transitions         *prometheus.CounterVec
	responseTime        *prometheus.HistogramVec
	cascades            *prometheus.CounterVec
	manualInterventions prometheus.Counter
)

// newCollectors creates new metric collectors.
func newCollectors() (*prometheus.CounterVec, *prometheus.CounterVec, *prometheus.HistogramVec, *prometheus.CounterVec, prometheus.Counter) {
	created := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_assignments_created_total",
			Help: "Assignments created, by method",
		},
		[]string{"method"},
	)
	trans := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_assignment_transitions_total",
			Help: "Assignment status transitions, by target status",
		},
		[]string{"status"},
	)
	resp := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dispatch_response_time_seconds",
			Help:    "Time between an offer and the provider's answer",
			Buckets: []float64{5, 15, 30, 60, 120, 240, 420},
		},
		[]string{"decision"},
	)
	casc := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_cascades_total",
			Help: "Cascade outcomes (promoted, exhausted, noop, error)",
		},
		[]string{"outcome"},
	)
	manual := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_manual_interventions_total",
			Help: "Bookings that exhausted every candidate",
		},
	)
	return created, trans, resp, casc, manual
}

func init() {
	assignmentsCreated, transitions, responseTime, cascades, manualInterventions = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers dispatch metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(assignmentsCreated, transitions, responseTime, cascades, manualInterventions)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	assignmentsCreated, transitions, responseTime, cascades, manualInterventions = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
