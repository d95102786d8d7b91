package monitoring

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordMonitor struct {
	errs   []error
	panics []any
	tags   []map[string]string
	flush  int
}

func (r *recordMonitor) CaptureException(err error, tags map[string]string) {
	r.errs = append(r.errs, err)
	r.tags = append(r.tags, tags)
}

func (r *recordMonitor) CapturePanic(v any, tags map[string]string) {
	r.panics = append(r.panics, v)
	r.tags = append(r.tags, tags)
}

func (r *recordMonitor) Flush(time.Duration) { r.flush++ }

func install(t *testing.T) *recordMonitor {
	t.Helper()
	rec := &recordMonitor{}
	Init(rec)
	t.Cleanup(func() { Init(nil) })
	return rec
}

func TestTags(t *testing.T) {
	tags := Tags("dispatch", "booking_id", "b1", "dangling")
	assert.Equal(t, map[string]string{"component": "dispatch", "booking_id": "b1"}, tags)
}

func TestCaptureException(t *testing.T) {
	rec := install(t)
	CaptureException(nil, nil)
	CaptureException(errors.New("boom"), Tags("reconciler"))
	require.Len(t, rec.errs, 1)
	assert.Equal(t, "reconciler", rec.tags[0]["component"])
}

func TestRecoverReportsAndRepanics(t *testing.T) {
	rec := install(t)
	assert.PanicsWithValue(t, "kaboom", func() {
		defer Recover("timers")
		panic("kaboom")
	})
	require.Equal(t, []any{"kaboom"}, rec.panics)
	assert.Equal(t, "timers", rec.tags[0]["component"])
	assert.Equal(t, 1, rec.flush)
}

func TestRecoverWithoutPanic(t *testing.T) {
	rec := install(t)
	func() {
		defer Recover("timers")
	}()
	assert.Empty(t, rec.panics)
	assert.Zero(t, rec.flush)
}
