package monitoring

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/jobroute/config"
	coremon "github.com/kilianp07/jobroute/core/monitoring"
)

func TestNewSentryMonitorWithoutDSN(t *testing.T) {
	m, err := NewSentryMonitor(config.SentryConfig{})
	require.NoError(t, err)
	assert.IsType(t, coremon.NopMonitor{}, m)
}

func TestNewSentryMonitorInvalidDSN(t *testing.T) {
	_, err := NewSentryMonitor(config.SentryConfig{DSN: "://not-a-dsn"})
	assert.Error(t, err)
}

func TestSentryMonitorCaptures(t *testing.T) {
	m, err := NewSentryMonitor(config.SentryConfig{DSN: "https://public@127.0.0.1:1/1", Environment: "test"})
	require.NoError(t, err)
	assert.NotPanics(t, func() {
		m.CaptureException(errors.New("boom"), coremon.Tags("dispatch", "booking_id", "b1"))
		m.CaptureException(nil, nil)
		m.CapturePanic("kaboom", coremon.Tags("timers"))
		m.Flush(10 * time.Millisecond)
	})
}
