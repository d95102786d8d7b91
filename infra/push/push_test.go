package push

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/jobroute/core/presence"
)

func tokenServer(t *testing.T, issued *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := issued.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "token" + string(rune('0'+n)),
			"token_type":   "bearer",
			"expires_in":   3600,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDeliverPostsMessage(t *testing.T) {
	var got Message
	var auth string
	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer gw.Close()
	var issued atomic.Int32
	tok := tokenServer(t, &issued)

	c, err := New(Config{URL: gw.URL, ClientID: "id", ClientSecret: "secret", TokenURL: tok.URL})
	require.NoError(t, err)

	env, _ := presence.NewEnvelope("new_job_assignment", map[string]string{"assignment_id": "a1"})
	require.NoError(t, c.Deliver(context.Background(), "p1", env))
	require.NoError(t, c.Deliver(context.Background(), "p1", env))

	assert.Equal(t, "p1", got.Identity)
	assert.Equal(t, "new_job_assignment", got.Event)
	assert.JSONEq(t, `{"assignment_id":"a1"}`, string(got.Payload))
	assert.Equal(t, "Bearer token1", auth)
	assert.Equal(t, int32(1), issued.Load(), "token is cached")
}

func TestDeliverRefreshesTokenOnUnauthorized(t *testing.T) {
	var calls atomic.Int32
	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get("Authorization") == "Bearer token1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer gw.Close()
	var issued atomic.Int32
	tok := tokenServer(t, &issued)

	c, err := New(Config{URL: gw.URL, ClientID: "id", ClientSecret: "secret", TokenURL: tok.URL})
	require.NoError(t, err)
	require.NoError(t, c.Deliver(context.Background(), "p1", presence.Envelope{Event: "x"}))
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, int32(2), issued.Load())
}

func TestDeliverStatusError(t *testing.T) {
	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no device", http.StatusGone)
	}))
	defer gw.Close()

	c, err := New(Config{URL: gw.URL})
	require.NoError(t, err)
	err = c.Deliver(context.Background(), "p1", presence.Envelope{Event: "x"})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusGone, se.Code)
	assert.Equal(t, "no device", se.Body)
}

func TestConfigValidate(t *testing.T) {
	assert.Error(t, Config{}.Validate())
	assert.Error(t, Config{URL: "http://x", TokenURL: "http://t"}.Validate())
	assert.NoError(t, Config{URL: "http://x"}.Validate())
}
