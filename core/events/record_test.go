package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/jobroute/core/model"
)

func TestNewRecord(t *testing.T) {
	now := time.Date(2025, 6, 1, 11, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	rec, err := NewRecord(OfferEvent{Assignment: model.Assignment{ID: "a1", BookingID: "b1"}}, now)
	require.NoError(t, err)
	assert.Equal(t, NameNewJobAssignment, rec.Event)
	assert.Equal(t, "b1", rec.Key)
	assert.Equal(t, time.UTC, rec.Time.Location())

	var back OfferEvent
	require.NoError(t, json.Unmarshal(rec.Data, &back))
	assert.Equal(t, "a1", back.Assignment.ID)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "p1", Key(PresenceEvent{Identity: "p1"}))
	assert.Equal(t, "c1", Key(UndeliverableEvent{Entry: model.QueueEntry{Identity: "c1"}}))
	assert.Equal(t, "b2", Key(ManualInterventionEvent{BookingID: "b2"}))
}
