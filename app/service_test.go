package app

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/jobroute/config"
	"github.com/kilianp07/jobroute/core/dispatch"
	"github.com/kilianp07/jobroute/core/events"
	"github.com/kilianp07/jobroute/core/factory"
	"github.com/kilianp07/jobroute/core/model"
	"github.com/kilianp07/jobroute/core/presence"
	"github.com/kilianp07/jobroute/infra/audit"
	"github.com/kilianp07/jobroute/infra/fixtures"
	"github.com/kilianp07/jobroute/internal/eventbus"
)

const seed = `
providers:
  - id: p-ada
    service_types: [plumbing]
    coverage:
      - kind: radius
        center: {lat: 40.7580, lng: -73.9855}
        radius_miles: 15
bookings:
  - id: b-1
    customer_id: c-1
    service_type: plumbing
    location: {lat: 40.7505, lng: -73.9934, zip: "10001"}
`

func testConfig(t *testing.T) *config.Config {
	cfg := &config.Config{
		Store: factory.ModuleConfig{Type: "memory"},
		Audit: audit.Config{Path: filepath.Join(t.TempDir(), "audit.jsonl")},
	}
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestExecAssignReachesAuditTrail(t *testing.T) {
	cfg := testConfig(t)
	svc, err := New(cfg)
	require.NoError(t, err)
	defer svc.Close()

	set, err := fixtures.Parse([]byte(seed))
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, set.Apply(ctx, svc.Store, time.Now()))

	var res dispatch.AssignmentResult
	err = svc.Exec(ctx, func(ctx context.Context) error {
		var err error
		res, err = svc.Coordinator.Assign(ctx, "b-1", model.MethodAutomatic, "")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, dispatch.ResultOffered, res.Status)
	require.NotNil(t, res.Assignment)
	assert.Equal(t, "p-ada", res.Assignment.ProviderID)

	recs, err := svc.trail.Query(audit.Query{Event: events.NameNewJobAssignment})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "b-1", recs[0].Key)

	queued, err := svc.Store.Pending(ctx, "p-ada")
	require.NoError(t, err)
	assert.Len(t, queued, 1)
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	svc, err := New(cfg)
	require.NoError(t, err)
	defer svc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("service did not stop")
	}
}

func TestNewRejectsUnknownStore(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Type = "cassandra"
	_, err := New(cfg)
	assert.Error(t, err)
}

type stubSession struct{ id string }

func (s stubSession) ID() string                                    { return s.id }
func (s stubSession) Send(context.Context, presence.Envelope) error { return nil }
func (s stubSession) Close() error                                  { return nil }

type broadcasts struct {
	mu   sync.Mutex
	sent []string
}

func (b *broadcasts) Broadcast(_ context.Context, role string, env presence.Envelope) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, role+":"+env.Event)
	return 1
}

func (b *broadcasts) snapshot() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.sent...)
}

func TestBridgePresence(t *testing.T) {
	reg := presence.NewRegistry(nil)
	bus := eventbus.NewTyped[events.Event]()
	sub := bus.Subscribe()
	defer sub.Cancel()
	admins := &broadcasts{}

	ctx, cancel := context.WithCancel(context.Background())
	done := bridgePresence(ctx, reg, bus, admins, "admin")

	reg.Register("p1", "provider", stubSession{id: "s1"})
	reg.Register("c1", "customer", stubSession{id: "s2"})
	reg.Deregister("p1", "s1")

	var got []string
	for len(got) < 3 {
		select {
		case ev := <-sub.C:
			got = append(got, ev.(events.PresenceEvent).Identity+":"+ev.Name())
		case <-time.After(time.Second):
			t.Fatalf("only %d events bridged", len(got))
		}
	}
	assert.Equal(t, []string{"p1:provider_online", "c1:provider_online", "p1:provider_offline"}, got)
	assert.Eventually(t, func() bool { return len(admins.snapshot()) == 2 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"admin:provider_online", "admin:provider_offline"}, admins.snapshot())

	cancel()
	<-done
}
