package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/jobroute/core/events"
	"github.com/kilianp07/jobroute/core/logger"
	"github.com/kilianp07/jobroute/internal/eventbus"
)

var base = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func record(event, key string, at time.Time) events.Record {
	return events.Record{Event: event, Key: key, Time: at, Data: json.RawMessage(`{}`)}
}

func TestRotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	trail, err := New(Config{Path: path, MaxSizeMB: 1, MaxBackups: 5})
	require.NoError(t, err)
	defer func() { _ = trail.Close() }()

	big := events.Record{Event: "x", Time: base, Data: json.RawMessage(`"` + strings.Repeat("a", 200*1024) + `"`)}
	for i := 0; i < 8; i++ {
		require.NoError(t, trail.Append(big))
	}
	files, err := trail.files()
	require.NoError(t, err)
	assert.Greater(t, len(files), 1, "expected rotated files")
	assert.Equal(t, path, files[len(files)-1])

	out, err := trail.Query(Query{})
	require.NoError(t, err)
	assert.Len(t, out, 8)
}

func TestQueryFilters(t *testing.T) {
	trail, err := New(Config{Path: filepath.Join(t.TempDir(), "audit.jsonl")})
	require.NoError(t, err)
	defer func() { _ = trail.Close() }()

	require.NoError(t, trail.Append(record(events.NameNewJobAssignment, "b1", base)))
	require.NoError(t, trail.Append(record(events.NameStatusUpdate, "b1", base.Add(time.Minute))))
	require.NoError(t, trail.Append(record(events.NameStatusUpdate, "b2", base.Add(2*time.Minute))))

	out, err := trail.Query(Query{Key: "b1"})
	require.NoError(t, err)
	assert.Len(t, out, 2)

	out, err = trail.Query(Query{Event: events.NameStatusUpdate, Start: base.Add(90 * time.Second)})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "b2", out[0].Key)

	out, err = trail.Query(Query{End: base})
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestStartAppendsBusEvents(t *testing.T) {
	trail, err := New(Config{Path: filepath.Join(t.TempDir(), "audit.jsonl")})
	require.NoError(t, err)
	defer func() { _ = trail.Close() }()

	bus := eventbus.NewTyped[events.Event]()
	ctx, cancel := context.WithCancel(context.Background())
	done := trail.Start(ctx, bus, logger.NopLogger{})
	bus.Publish(events.ManualInterventionEvent{BookingID: "b9", Attempts: 3, At: base})

	require.Eventually(t, func() bool {
		out, _ := trail.Query(Query{Key: "b9"})
		return len(out) == 1
	}, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestValidate(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	at := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	err := WriteCSV(&buf, []events.Record{{Event: "booking_confirmed", Key: "b1", Time: at, Data: json.RawMessage(`{"a":1}`)}})
	require.NoError(t, err)
	assert.Equal(t, "time,event,key,data\n2025-06-01T09:00:00Z,booking_confirmed,b1,\"{\"\"a\"\":1}\"\n", buf.String())
}
