package metrics

import "errors"

// MultiSink fans events out to several sinks. Every sink receives the event
// even when an earlier one fails; errors are joined.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

func forward[R any](sinks []MetricsSink, call func(R) error) error {
	var errs []error
	for _, s := range sinks {
		if r, ok := s.(R); ok {
			if err := call(r); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) RecordTransition(ev TransitionEvent) error {
	return forward(m.Sinks, func(r MetricsSink) error { return r.RecordTransition(ev) })
}

func (m *MultiSink) RecordOffer(ev OfferEvent) error {
	return forward(m.Sinks, func(r OfferRecorder) error { return r.RecordOffer(ev) })
}

func (m *MultiSink) RecordEscalation(ev EscalationEvent) error {
	return forward(m.Sinks, func(r EscalationRecorder) error { return r.RecordEscalation(ev) })
}

func (m *MultiSink) RecordConfirmation(ev ConfirmationEvent) error {
	return forward(m.Sinks, func(r ConfirmationRecorder) error { return r.RecordConfirmation(ev) })
}

func (m *MultiSink) RecordPresence(ev PresenceSample) error {
	return forward(m.Sinks, func(r PresenceRecorder) error { return r.RecordPresence(ev) })
}

func (m *MultiSink) RecordDeliveryFailure(ev DeliveryFailureEvent) error {
	return forward(m.Sinks, func(r DeliveryFailureRecorder) error { return r.RecordDeliveryFailure(ev) })
}
