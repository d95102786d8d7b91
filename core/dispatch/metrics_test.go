package dispatch

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestMetricsRegistration(t *testing.T) {
	ResetMetrics(nil)
	t.Cleanup(func() { ResetMetrics(nil) })
	reg := prometheus.NewRegistry()
	MustRegisterMetrics(reg)
	// touch metrics so they are exported
	assignmentsCreated.WithLabelValues("automatic").Inc()
	transitions.WithLabelValues("accepted").Inc()
	responseTime.WithLabelValues("accept").Observe(30)
	cascades.WithLabelValues("promoted").Inc()
	manualInterventions.Inc()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	names := map[string]bool{}
	for _, mf := range mfs {
		names[*mf.Name] = true
	}
	expected := []string{
		"dispatch_assignments_created_total",
		"dispatch_assignment_transitions_total",
		"dispatch_response_time_seconds",
		"dispatch_cascades_total",
		"dispatch_manual_interventions_total",
	}
	for _, n := range expected {
		if !names[n] {
			t.Errorf("metric %s not registered", n)
		}
	}
}
