package app

import (
	"context"
	"time"

	"github.com/kilianp07/jobroute/core/dispatch"
	"github.com/kilianp07/jobroute/core/events"
	coremon "github.com/kilianp07/jobroute/core/monitoring"
	"github.com/kilianp07/jobroute/core/presence"
	"github.com/kilianp07/jobroute/core/store"
	"github.com/kilianp07/jobroute/infra/logger"
	"github.com/kilianp07/jobroute/infra/mqtt"
	"github.com/kilianp07/jobroute/internal/eventbus"
)

// presenceSource is the registry side of the bridge.
type presenceSource interface {
	Subscribe() *eventbus.Subscription[events.PresenceEvent]
}

// bridgePresence republishes registry transitions on the dispatch bus and
// tells online administrators when a provider connects or disconnects.
func bridgePresence(ctx context.Context, src presenceSource, bus events.Publisher, admins dispatch.Broadcaster, adminRole string) <-chan struct{} {
	log := logger.New("presence-bridge")
	sub := src.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer sub.Cancel()
		defer coremon.Recover("presence-bridge")
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub.C:
				if !ok {
					return
				}
				bus.Publish(ev)
				if ev.Role != string(store.RoleProvider) {
					continue
				}
				env, err := presence.NewEnvelope(ev.Name(), ev)
				if err != nil {
					log.Errorf("presence envelope: %v", err)
					continue
				}
				bctx, cancel := context.WithTimeout(ctx, 5*time.Second)
				admins.Broadcast(bctx, adminRole, env)
				cancel()
			}
		}
	}()
	return done
}

var (
	_ presenceSource = (*presence.Registry)(nil)
	_ mqtt.Registrar = (*presence.Registry)(nil)
)
