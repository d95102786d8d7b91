package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/jobroute/core/metrics"
	"github.com/kilianp07/jobroute/core/model"
)

// PromSink records per-provider dispatch metrics in Prometheus. The core
// packages export aggregate counters on their own; this sink adds the
// provider and role breakdowns.
type PromSink struct {
	transitions   *prometheus.CounterVec
	response      *prometheus.HistogramVec
	offers        *prometheus.CounterVec
	offerScore    prometheus.Histogram
	escalations   prometheus.Counter
	confirmations prometheus.Counter
	online        *prometheus.GaugeVec
	undeliverable *prometheus.CounterVec
}

// NewPromSink registers dispatch metrics on the default Prometheus registerer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// register adds c to reg, reusing the existing collector when one with the
// same descriptor is already registered.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{}
	var err error
	if s.transitions, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "provider_assignment_transitions_total",
		Help: "Assignment transitions per provider and target status",
	}, []string{"provider_id", "status"})); err != nil {
		return nil, err
	}
	if s.response, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "provider_response_seconds",
		Help:    "Time between offer and provider decision",
		Buckets: []float64{5, 15, 30, 60, 120, 240, 420},
	}, []string{"provider_id", "decision"})); err != nil {
		return nil, err
	}
	if s.offers, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "provider_offers_total",
		Help: "Offers sent per provider and assignment method",
	}, []string{"provider_id", "method"})); err != nil {
		return nil, err
	}
	if s.offerScore, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "offer_composite_score",
		Help:    "Composite score of offered providers",
		Buckets: prometheus.LinearBuckets(0, 10, 11),
	})); err != nil {
		return nil, err
	}
	if s.escalations, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "booking_escalations_total",
		Help: "Bookings handed over to administrators",
	})); err != nil {
		return nil, err
	}
	if s.confirmations, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "booking_confirmations_total",
		Help: "Bookings confirmed to a provider",
	})); err != nil {
		return nil, err
	}
	if s.online, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "identities_online",
		Help: "Identities with at least one live session",
	}, []string{"role"})); err != nil {
		return nil, err
	}
	if s.undeliverable, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_undeliverable_total",
		Help: "Queued notifications dropped after their last attempt",
	}, []string{"event"})); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PromSink) RecordTransition(ev coremetrics.TransitionEvent) error {
	s.transitions.WithLabelValues(ev.ProviderID, string(ev.To)).Inc()
	switch ev.To {
	case model.AssignmentAccepted, model.AssignmentDeclined:
		if ev.ResponseTime > 0 {
			s.response.WithLabelValues(ev.ProviderID, string(ev.To)).Observe(ev.ResponseTime.Seconds())
		}
	}
	return nil
}

func (s *PromSink) RecordOffer(ev coremetrics.OfferEvent) error {
	s.offers.WithLabelValues(ev.ProviderID, string(ev.Method)).Inc()
	s.offerScore.Observe(ev.Score)
	return nil
}

func (s *PromSink) RecordEscalation(coremetrics.EscalationEvent) error {
	s.escalations.Inc()
	return nil
}

func (s *PromSink) RecordConfirmation(coremetrics.ConfirmationEvent) error {
	s.confirmations.Inc()
	return nil
}

func (s *PromSink) RecordPresence(ev coremetrics.PresenceSample) error {
	if ev.Online {
		s.online.WithLabelValues(ev.Role).Inc()
	} else {
		s.online.WithLabelValues(ev.Role).Dec()
	}
	return nil
}

func (s *PromSink) RecordDeliveryFailure(ev coremetrics.DeliveryFailureEvent) error {
	s.undeliverable.WithLabelValues(ev.Event).Inc()
	return nil
}
