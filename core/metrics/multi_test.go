package metrics

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordSink only understands transitions and escalations.
type recordSink struct {
	count int
	err   error
}

func (r *recordSink) RecordTransition(TransitionEvent) error {
	r.count++
	return r.err
}

func (r *recordSink) RecordEscalation(EscalationEvent) error {
	r.count++
	return r.err
}

func TestMultiSink(t *testing.T) {
	s1 := &recordSink{}
	s2 := &recordSink{}
	m := NewMultiSink(s1, s2)
	require.NoError(t, m.RecordTransition(TransitionEvent{}))
	require.NoError(t, m.RecordEscalation(EscalationEvent{}))
	require.NoError(t, m.RecordPresence(PresenceSample{}))
	assert.Equal(t, 2, s1.count)
	assert.Equal(t, 2, s2.count)
}

func TestMultiSinkKeepsGoingOnError(t *testing.T) {
	bad := &recordSink{err: errors.New("down")}
	good := &recordSink{}
	err := NewMultiSink(bad, good).RecordTransition(TransitionEvent{})
	assert.EqualError(t, err, "down")
	assert.Equal(t, 1, good.count)
}
