// Package presence mirrors the local connection registry into Redis so that
// other instances can tell whether an identity is connected elsewhere.
//
// Each identity has a hash presence:<identity> mapping instance IDs to the
// unix time their claim expires. Instances refresh their claims on a ticker
// and the whole key expires when nobody refreshes it.
package presence

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/kilianp07/jobroute/core/events"
	"github.com/kilianp07/jobroute/core/logger"
	coremon "github.com/kilianp07/jobroute/core/monitoring"
	"github.com/kilianp07/jobroute/core/notify"
	"github.com/kilianp07/jobroute/internal/eventbus"
)

// Config holds the Redis connection and claim settings.
type Config struct {
	Addr       string        `json:"addr"`
	Password   string        `json:"password"`
	DB         int           `json:"db"`
	KeyPrefix  string        `json:"key_prefix"`
	InstanceID string        `json:"instance_id"`
	TTL        time.Duration `json:"ttl"`
}

// SetDefaults fills the prefix, a random instance ID and a 90s TTL.
func (c *Config) SetDefaults() {
	if c.KeyPrefix == "" {
		c.KeyPrefix = "jobroute"
	}
	if c.InstanceID == "" {
		c.InstanceID = uuid.NewString()
	}
	if c.TTL <= 0 {
		c.TTL = 90 * time.Second
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("redis addr is required")
	}
	return nil
}

// Source is the subscribe side of the connection registry.
type Source interface {
	Subscribe() *eventbus.Subscription[events.PresenceEvent]
}

type hashStore interface {
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	HDel(ctx context.Context, key string, fields ...string) *redis.IntCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// Mirror publishes local presence to Redis and answers OnlineElsewhere.
type Mirror struct {
	cfg    Config
	rdb    hashStore
	closer func() error
	log    logger.Logger
	now    func() time.Time

	mu     sync.Mutex
	online map[string]struct{}
}

var _ notify.PresenceHint = (*Mirror)(nil)

// New connects to Redis.
func New(cfg Config, log logger.Logger) (*Mirror, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	m := newMirror(cfg, rdb, log)
	m.closer = rdb.Close
	return m, nil
}

func newMirror(cfg Config, rdb hashStore, log logger.Logger) *Mirror {
	return &Mirror{
		cfg:    cfg,
		rdb:    rdb,
		closer: func() error { return nil },
		log:    logger.OrNop(log),
		now:    time.Now,
		online: make(map[string]struct{}),
	}
}

func (m *Mirror) key(identity string) string {
	return m.cfg.KeyPrefix + ":presence:" + identity
}

// Start subscribes to src, then applies presence events and refreshes
// claims in the background until ctx is done or the subscription closes. The
// returned channel is closed once the mirror stopped.
func (m *Mirror) Start(ctx context.Context, src Source) <-chan struct{} {
	sub := src.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer sub.Cancel()
		defer coremon.Recover("presence_mirror")
		ticker := time.NewTicker(m.cfg.TTL / 3)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub.C:
				if !ok {
					return
				}
				if err := m.Apply(ctx, ev); err != nil {
					m.log.Warnf("mirror %s of %s: %v", ev.Name(), ev.Identity, err)
				}
			case <-ticker.C:
				if err := m.Refresh(ctx); err != nil {
					m.log.Warnf("refresh presence claims: %v", err)
				}
			}
		}
	}()
	return done
}

// Apply records one presence transition of this instance.
func (m *Mirror) Apply(ctx context.Context, ev events.PresenceEvent) error {
	m.mu.Lock()
	if ev.Online {
		m.online[ev.Identity] = struct{}{}
	} else {
		delete(m.online, ev.Identity)
	}
	m.mu.Unlock()
	if ev.Online {
		return m.claim(ctx, ev.Identity)
	}
	return m.rdb.HDel(ctx, m.key(ev.Identity), m.cfg.InstanceID).Err()
}

func (m *Mirror) claim(ctx context.Context, identity string) error {
	k := m.key(identity)
	until := m.now().Add(m.cfg.TTL).Unix()
	if err := m.rdb.HSet(ctx, k, m.cfg.InstanceID, until).Err(); err != nil {
		return fmt.Errorf("claim %s: %w", identity, err)
	}
	return m.rdb.Expire(ctx, k, m.cfg.TTL).Err()
}

// Refresh extends the claims of every identity online on this instance.
func (m *Mirror) Refresh(ctx context.Context) error {
	m.mu.Lock()
	ids := make([]string, 0, len(m.online))
	for id := range m.online {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	var errs []error
	for _, id := range ids {
		if err := m.claim(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OnlineElsewhere reports whether another instance holds a live claim for
// identity. Redis errors count as offline so the caller falls back to push.
func (m *Mirror) OnlineElsewhere(ctx context.Context, identity string) bool {
	claims, err := m.rdb.HGetAll(ctx, m.key(identity)).Result()
	if err != nil {
		m.log.Debugf("presence lookup of %s: %v", identity, err)
		return false
	}
	now := m.now().Unix()
	for instance, v := range claims {
		if instance == m.cfg.InstanceID {
			continue
		}
		until, err := strconv.ParseInt(v, 10, 64)
		if err == nil && until > now {
			return true
		}
	}
	return false
}

// Release drops every claim of this instance, typically on shutdown.
func (m *Mirror) Release(ctx context.Context) error {
	m.mu.Lock()
	ids := make([]string, 0, len(m.online))
	for id := range m.online {
		ids = append(ids, id)
	}
	m.online = make(map[string]struct{})
	m.mu.Unlock()
	var errs []error
	for _, id := range ids {
		if err := m.rdb.HDel(ctx, m.key(id), m.cfg.InstanceID).Err(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close releases the Redis connection.
func (m *Mirror) Close() error { return m.closer() }
