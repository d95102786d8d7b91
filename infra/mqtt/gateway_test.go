package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/jobroute/core/dispatch"
	"github.com/kilianp07/jobroute/core/logger"
	"github.com/kilianp07/jobroute/core/model"
	coremon "github.com/kilianp07/jobroute/core/monitoring"
	"github.com/kilianp07/jobroute/core/presence"
)

type fakeResponder struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeResponder) Respond(_ context.Context, assignmentID, providerID string, decision model.Decision, _ string) (dispatch.AssignmentResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf("%s:%s:%s", assignmentID, providerID, decision))
	if f.err != nil {
		return dispatch.AssignmentResult{}, f.err
	}
	return dispatch.AssignmentResult{Status: dispatch.ResultAccepted}, nil
}

func newTestGateway(t *testing.T, resp Responder) (*Gateway, *mockClient, *presence.Registry) {
	t.Helper()
	mc := &mockClient{}
	useMock(t, mc)
	reg := presence.NewRegistry(logger.NopLogger{})
	t.Cleanup(reg.Close)
	g, err := NewGateway(Config{Broker: "tcp://localhost:1883", BackoffMS: 1, MaxRetries: 1}, reg, resp, logger.NopLogger{})
	require.NoError(t, err)
	return g, mc, reg
}

func announce(g *Gateway, role, identity, session, state string) {
	g.onPresence(nil, mockMessage{topic: fmt.Sprintf("jobroute/presence/%s/%s/%s", role, identity, session), p: []byte(state)})
}

func TestGatewaySubscribes(t *testing.T) {
	_, mc, _ := newTestGateway(t, nil)
	assert.Equal(t, map[string]byte{
		"jobroute/presence/+/+/+": 1,
		"jobroute/response/+":     1,
		"jobroute/pong/+/+":       0,
	}, mc.subscribed)
	assert.True(t, mc.opts.WillEnabled)
	assert.Equal(t, "jobroute/gateway/jobroute-gateway", mc.opts.WillTopic)
}

func TestPresenceTracksSessions(t *testing.T) {
	g, _, reg := newTestGateway(t, nil)
	announce(g, "provider", "p1", "s1", "online")
	announce(g, "provider", "p1", "s2", `{"state":"online"}`)
	assert.True(t, reg.IsOnline("p1"))
	assert.Equal(t, 2, reg.SessionCount("p1"))

	announce(g, "provider", "p1", "s1", "offline")
	assert.True(t, reg.IsOnline("p1"))
	announce(g, "provider", "p1", "s2", `"offline"`)
	assert.False(t, reg.IsOnline("p1"))
	assert.Zero(t, g.SessionCount())
}

func TestRegistrySendPublishesOnInbox(t *testing.T) {
	g, mc, reg := newTestGateway(t, nil)
	announce(g, "provider", "p1", "s1", "online")

	env, err := presence.NewEnvelope("new_job_assignment", map[string]string{"assignment_id": "a1"})
	require.NoError(t, err)
	n, err := reg.Send(context.Background(), "p1", env)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	msgs := mc.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "jobroute/inbox/p1/s1", msgs[0].topic)
	assert.Equal(t, byte(1), msgs[0].qos)
	var got presence.Envelope
	require.NoError(t, json.Unmarshal(msgs[0].payload, &got))
	assert.Equal(t, "new_job_assignment", got.Event)
	assert.JSONEq(t, `{"assignment_id":"a1"}`, string(got.Payload))
}

func TestResponseCallsResponder(t *testing.T) {
	resp := &fakeResponder{}
	g, mc, _ := newTestGateway(t, resp)
	announce(g, "provider", "p1", "s1", "online")

	g.onResponse(nil, mockMessage{topic: "jobroute/response/p1", p: []byte(`{"assignment_id":"a1","decision":"accept"}`)})
	assert.Equal(t, []string{"a1:p1:accept"}, resp.calls)

	msgs := mc.messages()
	require.Len(t, msgs, 1)
	var env presence.Envelope
	require.NoError(t, json.Unmarshal(msgs[0].payload, &env))
	assert.Equal(t, EventResponseResult, env.Event)
	var out ResponseResult
	require.NoError(t, json.Unmarshal(env.Payload, &out))
	require.NotNil(t, out.Result)
	assert.Equal(t, dispatch.ResultAccepted, out.Result.Status)
}

func TestResponseErrorCarriesKind(t *testing.T) {
	resp := &fakeResponder{err: fmt.Errorf("respond: %w", dispatch.ErrPermission)}
	g, mc, _ := newTestGateway(t, resp)
	announce(g, "provider", "p2", "s1", "online")

	g.onResponse(nil, mockMessage{topic: "jobroute/response/p2", p: []byte(`{"assignment_id":"a1","decision":"decline"}`)})
	msgs := mc.messages()
	require.Len(t, msgs, 1)
	var env presence.Envelope
	require.NoError(t, json.Unmarshal(msgs[0].payload, &env))
	var out ResponseResult
	require.NoError(t, json.Unmarshal(env.Payload, &out))
	assert.NotEmpty(t, out.Error)
}

func TestBadResponsePayloadIgnored(t *testing.T) {
	resp := &fakeResponder{}
	g, mc, _ := newTestGateway(t, resp)
	g.onResponse(nil, mockMessage{topic: "jobroute/response/p1", p: []byte(`not json`)})
	assert.Empty(t, resp.calls)
	assert.Empty(t, mc.messages())
}

func TestHeartbeatRecordsLatency(t *testing.T) {
	g, mc, reg := newTestGateway(t, nil)
	clock := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return clock }
	announce(g, "provider", "p1", "s1", "online")

	g.Heartbeat(context.Background())
	msgs := mc.messages()
	require.Len(t, msgs, 1)
	var env presence.Envelope
	require.NoError(t, json.Unmarshal(msgs[0].payload, &env))
	require.Equal(t, EventPing, env.Event)
	var p pingPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))

	clock = clock.Add(80 * time.Millisecond)
	pong, _ := json.Marshal(p)
	// A pong from another session is not accepted for this ping.
	g.onPong(nil, mockMessage{topic: "jobroute/pong/p1/other", p: pong})
	_, ok := reg.Latency("p1")
	assert.False(t, ok)

	g.onPong(nil, mockMessage{topic: "jobroute/pong/p1/s1", p: pong})
	rtt, ok := reg.Latency("p1")
	require.True(t, ok)
	assert.Equal(t, 80*time.Millisecond, rtt)
}

func TestHeartbeatDropsSilentSessions(t *testing.T) {
	g, _, reg := newTestGateway(t, nil)
	announce(g, "provider", "p1", "s1", "online")
	for i := 0; i < DefaultMaxMissedPings; i++ {
		g.Heartbeat(context.Background())
		require.True(t, reg.IsOnline("p1"))
	}
	g.Heartbeat(context.Background())
	assert.False(t, reg.IsOnline("p1"))
}

func TestPublishRetries(t *testing.T) {
	g, mc, reg := newTestGateway(t, nil)
	announce(g, "provider", "p1", "s1", "online")
	mc.publishErrs = []error{errors.New("net fail")}

	env, _ := presence.NewEnvelope("x", nil)
	_, err := reg.Send(context.Background(), "p1", env)
	require.NoError(t, err)
	assert.Len(t, mc.messages(), 2)
}

type recordMonitor struct {
	mu   sync.Mutex
	errs []error
	tags []map[string]string
}

func (r *recordMonitor) CaptureException(err error, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
	r.tags = append(r.tags, tags)
}
func (r *recordMonitor) CapturePanic(any, map[string]string) {}
func (r *recordMonitor) Flush(time.Duration)                 {}

func TestPublishFailureCaptured(t *testing.T) {
	mon := &recordMonitor{}
	coremon.Init(mon)
	t.Cleanup(func() { coremon.Init(nil) })

	g, mc, reg := newTestGateway(t, nil)
	announce(g, "provider", "p1", "s1", "online")
	mc.publishErrs = []error{errors.New("net fail"), errors.New("net fail")}

	env, _ := presence.NewEnvelope("x", nil)
	_, err := reg.Send(context.Background(), "p1", env)
	require.Error(t, err)
	require.Len(t, mon.errs, 1)
	assert.Equal(t, "mqtt", mon.tags[0]["component"])
	assert.Equal(t, "jobroute/inbox/p1/s1", mon.tags[0]["topic"])
}

func TestCloseDeregisters(t *testing.T) {
	g, mc, reg := newTestGateway(t, nil)
	announce(g, "customer", "c1", "s1", "online")
	g.Close()
	assert.False(t, reg.IsOnline("c1"))
	assert.False(t, mc.IsConnected())
}
