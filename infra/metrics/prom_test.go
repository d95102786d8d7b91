package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coremetrics "github.com/kilianp07/jobroute/core/metrics"
	"github.com/kilianp07/jobroute/core/model"
)

func TestPromSinkRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	s, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)

	require.NoError(t, s.RecordTransition(coremetrics.TransitionEvent{ProviderID: "p1", To: model.AssignmentPending}))
	require.NoError(t, s.RecordTransition(coremetrics.TransitionEvent{
		ProviderID: "p1", To: model.AssignmentAccepted, ResponseTime: 45 * time.Second,
	}))
	require.NoError(t, s.RecordOffer(coremetrics.OfferEvent{ProviderID: "p1", Method: model.MethodAutomatic, Score: 80}))
	require.NoError(t, s.RecordEscalation(coremetrics.EscalationEvent{BookingID: "b1"}))
	require.NoError(t, s.RecordConfirmation(coremetrics.ConfirmationEvent{BookingID: "b1"}))
	require.NoError(t, s.RecordPresence(coremetrics.PresenceSample{Role: "provider", Online: true}))
	require.NoError(t, s.RecordPresence(coremetrics.PresenceSample{Role: "provider", Online: true}))
	require.NoError(t, s.RecordPresence(coremetrics.PresenceSample{Role: "provider", Online: false}))
	require.NoError(t, s.RecordDeliveryFailure(coremetrics.DeliveryFailureEvent{Event: "new_job_assignment"}))

	assert.Equal(t, 1.0, testutil.ToFloat64(s.transitions.WithLabelValues("p1", "pending")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.transitions.WithLabelValues("p1", "accepted")))
	assert.Equal(t, 1, testutil.CollectAndCount(s.response))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.offers.WithLabelValues("p1", "automatic")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.escalations))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.confirmations))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.online.WithLabelValues("provider")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.undeliverable.WithLabelValues("new_job_assignment")))
}

func TestPromSinkReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)
	b, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)
	require.NoError(t, a.RecordEscalation(coremetrics.EscalationEvent{}))
	assert.Equal(t, 1.0, testutil.ToFloat64(b.escalations))
}
