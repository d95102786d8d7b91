// Package presence tracks the live transport sessions of every identity.
//
// The registry is per process and advisory in multi-instance deployments:
// durable delivery goes through the notification queue.
package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kilianp07/jobroute/core/events"
	"github.com/kilianp07/jobroute/core/logger"
	"github.com/kilianp07/jobroute/internal/eventbus"
)

// ErrOffline is returned by Send when the identity has no live session.
var ErrOffline = errors.New("identity offline")

// Envelope is a named event sent over a session.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// NewEnvelope marshals payload under the given event name.
func NewEnvelope(event string, payload any) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s: %w", event, err)
	}
	return Envelope{Event: event, Payload: b}, nil
}

// Session is one live connection of an identity.
type Session interface {
	ID() string
	Send(ctx context.Context, env Envelope) error
	Close() error
}

type entry struct {
	session Session
	rtt     time.Duration
}

type identityState struct {
	role     string
	sessions map[string]*entry
}

// Registry maps identities to their sessions.
type Registry struct {
	mu         sync.RWMutex
	identities map[string]*identityState
	bus        *eventbus.TypedBus[events.PresenceEvent]
	log        logger.Logger
	now        func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry(log logger.Logger) *Registry {
	return &Registry{
		identities: make(map[string]*identityState),
		bus:        eventbus.NewTyped[events.PresenceEvent](),
		log:        logger.OrNop(log),
		now:        time.Now,
	}
}

// Subscribe returns a subscription to online/offline transitions. Cancel the
// subscription to stop receiving them.
func (r *Registry) Subscribe() *eventbus.Subscription[events.PresenceEvent] {
	return r.bus.Subscribe()
}

// Register adds a session. It reports whether this is the identity's first
// session, in which case an online event is published.
func (r *Registry) Register(identity, role string, s Session) bool {
	r.mu.Lock()
	st, ok := r.identities[identity]
	if !ok {
		st = &identityState{role: role, sessions: make(map[string]*entry)}
		r.identities[identity] = st
	}
	if role != "" {
		st.role = role
	}
	old := st.sessions[s.ID()]
	st.sessions[s.ID()] = &entry{session: s}
	first := !ok
	role = st.role
	r.mu.Unlock()

	if old != nil && old.session != s {
		_ = old.session.Close()
	}
	sessionsGauge.Inc()
	if old != nil {
		sessionsGauge.Dec()
	}
	if first {
		r.log.Infow("identity online", map[string]any{"identity": identity, "role": role})
		r.bus.Publish(events.PresenceEvent{Identity: identity, Role: role, Online: true, At: r.now()})
	}
	return first
}

// Deregister removes a session. The offline event is published only when
// the last session of the identity goes away; the return value reports it.
func (r *Registry) Deregister(identity, sessionID string) bool {
	r.mu.Lock()
	st, ok := r.identities[identity]
	if !ok {
		r.mu.Unlock()
		return false
	}
	if _, ok := st.sessions[sessionID]; !ok {
		r.mu.Unlock()
		return false
	}
	delete(st.sessions, sessionID)
	last := len(st.sessions) == 0
	if last {
		delete(r.identities, identity)
	}
	role := st.role
	r.mu.Unlock()

	sessionsGauge.Dec()
	if last {
		r.log.Infow("identity offline", map[string]any{"identity": identity, "role": role})
		r.bus.Publish(events.PresenceEvent{Identity: identity, Role: role, Online: false, At: r.now()})
	}
	return last
}

// IsOnline reports whether identity has at least one session.
func (r *Registry) IsOnline(identity string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.identities[identity]
	return ok
}

// SessionCount returns the number of live sessions of identity.
func (r *Registry) SessionCount(identity string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if st, ok := r.identities[identity]; ok {
		return len(st.sessions)
	}
	return 0
}

// Online lists online identities of role, sorted. An empty role lists all.
func (r *Registry) Online(role string) []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.identities))
	for id, st := range r.identities {
		if role == "" || st.role == role {
			out = append(out, id)
		}
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

func (r *Registry) sessionsOf(identity string) []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.identities[identity]
	if !ok {
		return nil
	}
	out := make([]Session, 0, len(st.sessions))
	for _, e := range st.sessions {
		out = append(out, e.session)
	}
	return out
}

// Send fans env out to every session of identity. It succeeds when at least
// one session accepted the event and returns ErrOffline when there is none.
func (r *Registry) Send(ctx context.Context, identity string, env Envelope) (int, error) {
	sessions := r.sessionsOf(identity)
	if len(sessions) == 0 {
		return 0, ErrOffline
	}
	delivered := 0
	var errs []error
	for _, s := range sessions {
		if err := s.Send(ctx, env); err != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", s.ID(), err))
			continue
		}
		delivered++
	}
	if delivered == 0 {
		return 0, errors.Join(errs...)
	}
	if len(errs) > 0 {
		r.log.Warnf("partial delivery of %s to %s: %v", env.Event, identity, errors.Join(errs...))
	}
	return delivered, nil
}

// Broadcast sends env to every online identity of role and returns the
// number of identities reached.
func (r *Registry) Broadcast(ctx context.Context, role string, env Envelope) int {
	reached := 0
	for _, id := range r.Online(role) {
		if _, err := r.Send(ctx, id, env); err == nil {
			reached++
		}
	}
	return reached
}

// RecordLatency stores the last heartbeat round trip of a session.
func (r *Registry) RecordLatency(identity, sessionID string, rtt time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.identities[identity]
	if !ok {
		return
	}
	if e, ok := st.sessions[sessionID]; ok {
		e.rtt = rtt
		heartbeatRTT.Observe(rtt.Seconds())
	}
}

// Latency returns the mean round trip across sessions that reported one.
func (r *Registry) Latency(identity string) (time.Duration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.identities[identity]
	if !ok {
		return 0, false
	}
	var sum time.Duration
	n := 0
	for _, e := range st.sessions {
		if e.rtt > 0 {
			sum += e.rtt
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / time.Duration(n), true
}

// Close drops every session and the event bus.
func (r *Registry) Close() {
	r.mu.Lock()
	ids := r.identities
	r.identities = make(map[string]*identityState)
	r.mu.Unlock()
	for _, st := range ids {
		for _, e := range st.sessions {
			_ = e.session.Close()
			sessionsGauge.Dec()
		}
	}
	r.bus.Close()
}
