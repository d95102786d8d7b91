package presence

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/jobroute/core/events"
	"github.com/kilianp07/jobroute/core/logger"
	corepresence "github.com/kilianp07/jobroute/core/presence"
)

type fakeHashes struct {
	mu      sync.Mutex
	data    map[string]map[string]string
	expires map[string]time.Duration
	err     error
}

func newFakeHashes() *fakeHashes {
	return &fakeHashes{data: map[string]map[string]string{}, expires: map[string]time.Duration{}}
}

func (f *fakeHashes) HSet(_ context.Context, key string, values ...interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	h := f.data[key]
	if h == nil {
		h = map[string]string{}
		f.data[key] = h
	}
	for i := 0; i+1 < len(values); i += 2 {
		var v string
		switch x := values[i+1].(type) {
		case int64:
			v = strconv.FormatInt(x, 10)
		case string:
			v = x
		}
		h[values[i].(string)] = v
	}
	return redis.NewIntResult(int64(len(values)/2), nil)
}

func (f *fakeHashes) HDel(_ context.Context, key string, fields ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, fl := range fields {
		delete(f.data[key], fl)
	}
	return redis.NewIntResult(int64(len(fields)), nil)
}

func (f *fakeHashes) HGetAll(_ context.Context, key string) *redis.MapStringStringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewMapStringStringResult(nil, f.err)
	}
	out := map[string]string{}
	for k, v := range f.data[key] {
		out[k] = v
	}
	return redis.NewMapStringStringResult(out, nil)
}

func (f *fakeHashes) Expire(_ context.Context, key string, d time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expires[key] = d
	return redis.NewBoolResult(true, nil)
}

var base = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func testMirror(rdb *fakeHashes, instance string) *Mirror {
	cfg := Config{Addr: "x", InstanceID: instance}
	cfg.SetDefaults()
	m := newMirror(cfg, rdb, logger.NopLogger{})
	m.now = func() time.Time { return base }
	return m
}

func TestClaimsAreSeenByOtherInstances(t *testing.T) {
	ctx := context.Background()
	rdb := newFakeHashes()
	a := testMirror(rdb, "a")
	b := testMirror(rdb, "b")

	require.NoError(t, a.Apply(ctx, events.PresenceEvent{Identity: "p1", Online: true}))
	assert.Equal(t, 90*time.Second, rdb.expires["jobroute:presence:p1"])
	assert.True(t, b.OnlineElsewhere(ctx, "p1"))
	assert.False(t, a.OnlineElsewhere(ctx, "p1"), "own claim does not count")

	require.NoError(t, a.Apply(ctx, events.PresenceEvent{Identity: "p1", Online: false}))
	assert.False(t, b.OnlineElsewhere(ctx, "p1"))
}

func TestExpiredClaimIgnored(t *testing.T) {
	ctx := context.Background()
	rdb := newFakeHashes()
	a := testMirror(rdb, "a")
	b := testMirror(rdb, "b")
	require.NoError(t, a.Apply(ctx, events.PresenceEvent{Identity: "p1", Online: true}))

	b.now = func() time.Time { return base.Add(2 * time.Minute) }
	assert.False(t, b.OnlineElsewhere(ctx, "p1"))

	a.now = b.now
	require.NoError(t, a.Refresh(ctx))
	assert.True(t, b.OnlineElsewhere(ctx, "p1"))
}

func TestRedisErrorCountsAsOffline(t *testing.T) {
	rdb := newFakeHashes()
	rdb.err = errors.New("down")
	m := testMirror(rdb, "a")
	assert.False(t, m.OnlineElsewhere(context.Background(), "p1"))
	assert.Error(t, m.Apply(context.Background(), events.PresenceEvent{Identity: "p1", Online: true}))
}

func TestRelease(t *testing.T) {
	ctx := context.Background()
	rdb := newFakeHashes()
	a := testMirror(rdb, "a")
	b := testMirror(rdb, "b")
	require.NoError(t, a.Apply(ctx, events.PresenceEvent{Identity: "p1", Online: true}))
	require.NoError(t, a.Apply(ctx, events.PresenceEvent{Identity: "p2", Online: true}))
	require.NoError(t, a.Release(ctx))
	assert.False(t, b.OnlineElsewhere(ctx, "p1"))
	assert.False(t, b.OnlineElsewhere(ctx, "p2"))
}

type stubSession struct{ id string }

func (s stubSession) ID() string                                        { return s.id }
func (s stubSession) Send(context.Context, corepresence.Envelope) error { return nil }
func (s stubSession) Close() error                                      { return nil }

func TestStartFollowsRegistry(t *testing.T) {
	rdb := newFakeHashes()
	a := testMirror(rdb, "a")
	b := testMirror(rdb, "b")
	reg := corepresence.NewRegistry(logger.NopLogger{})
	defer reg.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := a.Start(ctx, reg)

	reg.Register("p1", "provider", stubSession{id: "s1"})
	require.Eventually(t, func() bool {
		return b.OnlineElsewhere(context.Background(), "p1")
	}, time.Second, 10*time.Millisecond)

	reg.Deregister("p1", "s1")
	require.Eventually(t, func() bool {
		return !b.OnlineElsewhere(context.Background(), "p1")
	}, time.Second, 10*time.Millisecond)
	cancel()
	<-done
}
