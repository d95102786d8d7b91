// Package relay forwards every dispatch bus event to an external broker so
// that downstream systems (billing, analytics, the admin dashboard) can
// follow the assignment lifecycle.
package relay

import (
	"context"
	"time"

	"github.com/kilianp07/jobroute/core/events"
	"github.com/kilianp07/jobroute/core/factory"
	"github.com/kilianp07/jobroute/core/logger"
	coremon "github.com/kilianp07/jobroute/core/monitoring"
	"github.com/kilianp07/jobroute/internal/eventbus"
)

// Publisher ships encoded events to a broker.
type Publisher interface {
	Publish(ctx context.Context, rec events.Record) error
	Close() error
}

// Source is the subscribe side of the dispatch bus.
type Source interface {
	Subscribe() *eventbus.Subscription[events.Event]
}

var registry = factory.NewRegistry[Publisher]()

func init() {
	registry.MustRegister("nop", func(map[string]any) (Publisher, error) { return NopPublisher{}, nil })
	registry.MustRegister("kafka", func(conf map[string]any) (Publisher, error) {
		var c KafkaConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewKafkaPublisher(c)
	})
	registry.MustRegister("amqp", func(conf map[string]any) (Publisher, error) {
		var c AMQPConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewAMQPPublisher(c)
	})
}

// New builds the publisher described by cfg. An empty type disables the relay.
func New(cfg factory.ModuleConfig) (Publisher, error) {
	if cfg.Type == "" {
		return NopPublisher{}, nil
	}
	return registry.Create(cfg)
}

// Types lists the supported publisher types.
func Types() []string { return registry.Names() }

// NopPublisher discards events.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, events.Record) error { return nil }
func (NopPublisher) Close() error                                 { return nil }

// Start subscribes to src and forwards each event to pub until ctx is done
// or the bus closes. Publish failures are logged and reported; the event is
// not retried.
func Start(ctx context.Context, src Source, pub Publisher, timeout time.Duration, log logger.Logger) <-chan struct{} {
	log = logger.OrNop(log)
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	sub := src.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer sub.Cancel()
		defer coremon.Recover("relay")
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub.C:
				if !ok {
					return
				}
				rec, err := events.NewRecord(ev, time.Now())
				if err != nil {
					log.Errorf("relay: %v", err)
					continue
				}
				pctx, cancel := context.WithTimeout(ctx, timeout)
				err = pub.Publish(pctx, rec)
				cancel()
				if err != nil {
					log.Errorw("relay publish failed", err, map[string]any{"event": rec.Event, "key": rec.Key})
					coremon.CaptureException(err, coremon.Tags("relay", "event", rec.Event))
				}
			}
		}
	}()
	return done
}
