package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZerologLoggerMethods(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	l := NewZerologLogger("test")
	if l == nil {
		t.Fatalf("nil logger")
	}
	l.Debugf("debug %d", 1)
	l.Debugw("debug", map[string]any{"k": 1})
	l.Infof("info %s", "test")
	l.Infow("info", map[string]any{"k": "v"})
	l.Warnf("warn")
	l.Errorf("error")
	l.Errorw("error", errors.New("boom"), nil)
}

func TestZerologStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewZerologWithWriter("dispatch", &buf)
	l.Errorw("transition failed", errors.New("db down"), map[string]any{"assignment_id": "a1"})

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "dispatch", line["component"])
	assert.Equal(t, "a1", line["assignment_id"])
	assert.Equal(t, "db down", line["error"])
	assert.Equal(t, "error", line["level"])
}

func TestZerologLevelFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")
	var buf bytes.Buffer
	l := NewZerologWithWriter("x", &buf)
	l.Infof("hidden")
	assert.Zero(t, buf.Len())
	l.Warnf("shown")
	assert.NotZero(t, buf.Len())
}

func TestConfigureLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	Configure("error", "json")
	t.Cleanup(func() { Configure("", "") })

	var buf bytes.Buffer
	l := NewZerologWithWriter("x", &buf)
	l.Warnf("hidden")
	assert.Zero(t, buf.Len())
	l.Errorf("shown")
	assert.NotZero(t, buf.Len())
}
