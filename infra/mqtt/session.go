package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"

	"github.com/kilianp07/jobroute/core/presence"
)

var errSessionClosed = errors.New("session closed")

// session is one MQTT client connection of an identity. Missed pings are
// guarded by the gateway mutex.
type session struct {
	id       string
	identity string
	gw       *Gateway
	closed   atomic.Bool
	missed   int
}

var _ presence.Session = (*session)(nil)

func (s *session) ID() string { return s.id }

// Send publishes env on the session inbox.
func (s *session) Send(ctx context.Context, env presence.Envelope) error {
	if s.closed.Load() {
		return errSessionClosed
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return s.gw.publish(ctx, s.gw.cfg.inboxTopic(s.identity, s.id), s.gw.cfg.qos(kindInbox, 1), payload)
}

// Close stops deliveries to the session. The remote client is not
// disconnected; it will re-announce itself if still alive.
func (s *session) Close() error {
	s.markClosed()
	return nil
}

func (s *session) markClosed() { s.closed.Store(true) }
