package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/kilianp07/jobroute/api/assignments"
	"github.com/kilianp07/jobroute/config"
	"github.com/kilianp07/jobroute/core/dispatch"
	"github.com/kilianp07/jobroute/core/events"
	coremetrics "github.com/kilianp07/jobroute/core/metrics"
	coremon "github.com/kilianp07/jobroute/core/monitoring"
	"github.com/kilianp07/jobroute/core/notify"
	"github.com/kilianp07/jobroute/core/performance"
	"github.com/kilianp07/jobroute/core/presence"
	"github.com/kilianp07/jobroute/core/reconcile"
	corestore "github.com/kilianp07/jobroute/core/store"
	"github.com/kilianp07/jobroute/infra/audit"
	"github.com/kilianp07/jobroute/infra/logger"
	"github.com/kilianp07/jobroute/infra/metrics"
	inframon "github.com/kilianp07/jobroute/infra/monitoring"
	"github.com/kilianp07/jobroute/infra/mqtt"
	infrapresence "github.com/kilianp07/jobroute/infra/presence"
	"github.com/kilianp07/jobroute/infra/push"
	"github.com/kilianp07/jobroute/infra/relay"
	"github.com/kilianp07/jobroute/infra/store"
	"github.com/kilianp07/jobroute/internal/eventbus"
)

const drainTimeout = 5 * time.Second

// Service wires the dispatch core to its store, transports and sinks.
type Service struct {
	Store       corestore.Store
	Registry    *presence.Registry
	Notifier    *notify.Notifier
	Tracker     *performance.Tracker
	Coordinator *dispatch.Coordinator
	Reconciler  *reconcile.Reconciler
	// Auth is nil when no JWT secret is configured.
	Auth *assignments.Authenticator

	cfg     *config.Config
	bus     *eventbus.TypedBus[events.Event]
	timers  *notify.Timers
	mirror  *infrapresence.Mirror
	relay   relay.Publisher
	trail   *audit.Trail
	sink    coremetrics.MetricsSink
	gateway *mqtt.Gateway
	log     logger.Logger

	consumersOnce sync.Once
	consumers     []<-chan struct{}
	stopPresence  context.CancelFunc
}

// New builds the service from cfg. Nothing is started and no broker
// connection is made until Run.
func New(cfg *config.Config) (_ *Service, err error) {
	logger.Configure(cfg.Logging.Level, cfg.Logging.Format)
	log := logger.New("service")

	mon, err := inframon.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, err
	}
	coremon.Init(mon)

	s := &Service{cfg: cfg, log: log, bus: eventbus.NewTyped[events.Event](), timers: notify.NewTimers()}
	defer func() {
		if err != nil {
			_ = s.Close()
		}
	}()

	if s.Store, err = store.Open(cfg.Store); err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	s.Registry = presence.NewRegistry(logger.New("presence"))

	opts := []notify.Option{notify.WithPublisher(s.bus)}
	if cfg.Push.URL != "" {
		p, err := push.New(cfg.Push)
		if err != nil {
			return nil, fmt.Errorf("push: %w", err)
		}
		opts = append(opts, notify.WithPush(p))
	}
	if cfg.Redis.Addr != "" {
		if s.mirror, err = infrapresence.New(cfg.Redis, logger.New("presence-mirror")); err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		opts = append(opts, notify.WithPresenceHint(s.mirror))
	}
	s.Notifier = notify.New(cfg.Notify, s.Registry, s.Store, logger.New("notify"), opts...)
	s.Tracker = performance.NewTracker(s.Store, logger.New("performance"), cfg.Scoring.RescoreInterval)

	s.Coordinator, err = dispatch.NewCoordinator(cfg.Dispatch, dispatch.Deps{
		Store:    s.Store,
		Notifier: s.Notifier,
		Outcomes: s.Tracker,
		Admins:   s.Registry,
		Timers:   s.timers,
		Bus:      s.bus,
		Logger:   logger.New("dispatch"),
	})
	if err != nil {
		return nil, fmt.Errorf("dispatch: %w", err)
	}
	s.Reconciler = reconcile.New(cfg.Reconciler, s.Store, s.Coordinator, logger.New("reconciler"))

	if cfg.API.JWTSecret != "" {
		if s.Auth, err = assignments.NewAuthenticator(cfg.API.JWTSecret, cfg.API.Issuer); err != nil {
			return nil, fmt.Errorf("api: %w", err)
		}
	}
	if s.relay, err = relay.New(cfg.Relay); err != nil {
		return nil, fmt.Errorf("relay: %w", err)
	}
	if cfg.Audit.Path != "" {
		if s.trail, err = audit.New(cfg.Audit); err != nil {
			return nil, fmt.Errorf("audit: %w", err)
		}
	}
	if len(cfg.Metrics.Sinks) > 0 {
		if s.sink, err = coremetrics.NewMetricsSink(cfg.Metrics.Sinks); err != nil {
			return nil, fmt.Errorf("metrics: %w", err)
		}
	}
	return s, nil
}

// startConsumers attaches every bus consumer once. Bus consumers stop when
// ctx is done or the bus is closed, after draining what was already
// published. Registry followers stop with stopPresence.
func (s *Service) startConsumers(ctx context.Context) {
	s.consumersOnce.Do(func() {
		pctx, cancel := context.WithCancel(ctx)
		s.stopPresence = cancel
		s.consumers = append(s.consumers, bridgePresence(pctx, s.Registry, s.bus, s.Registry, s.Coordinator.Config().AdminRole))
		if s.mirror != nil {
			s.consumers = append(s.consumers, s.mirror.Start(pctx, s.Registry))
		}
		s.consumers = append(s.consumers, relay.Start(ctx, s.bus, s.relay, 0, logger.New("relay")))
		if s.trail != nil {
			s.consumers = append(s.consumers, s.trail.Start(ctx, s.bus, logger.New("audit")))
		}
		if s.sink != nil {
			s.consumers = append(s.consumers, metrics.StartEventCollector(ctx, s.bus, s.sink))
		}
	})
}

// Exec runs a one-shot operation with the bus consumers attached, then
// drains them so every event fn produced reaches the audit trail, the relay
// and the metrics sinks.
func (s *Service) Exec(ctx context.Context, fn func(context.Context) error) error {
	s.startConsumers(ctx)
	err := fn(ctx)
	s.drain()
	return err
}

func (s *Service) drain() {
	if s.stopPresence != nil {
		s.stopPresence()
	}
	s.bus.Close()
	timeout := time.After(drainTimeout)
	for _, done := range s.consumers {
		select {
		case <-done:
		case <-timeout:
			s.log.Warnf("bus consumers did not drain within %s", drainTimeout)
			return
		}
	}
}

// Run starts the transports and background loops and blocks until ctx is
// cancelled or one of them fails.
func (s *Service) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.startConsumers(ctx)

	if s.cfg.MQTT.Broker != "" {
		gw, err := mqtt.NewGateway(s.cfg.MQTT, s.Registry, s.Coordinator, logger.New("mqtt-gateway"))
		if err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
		s.gateway = gw
	}

	loops := map[string]func(context.Context) error{
		"reconciler":  s.Reconciler.Run,
		"notify":      s.Notifier.Run,
		"performance": s.Tracker.Run,
	}
	if s.gateway != nil {
		loops["mqtt"] = s.gateway.Run
	}
	if s.cfg.Metrics.Addr != "" {
		loops["metrics"] = func(ctx context.Context) error {
			return metrics.StartPromServer(ctx, s.cfg.Metrics.Addr, logger.New("metrics"))
		}
	}
	if s.cfg.API.Addr != "" {
		loops["api"] = s.serveAPI
	}

	errCh := make(chan error, len(loops))
	var wg sync.WaitGroup
	for name, run := range loops {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.log.Errorf("%s stopped: %v", name, err)
				errCh <- fmt.Errorf("%s: %w", name, err)
			}
		}()
	}
	s.log.Infof("jobroute running with %d loops", len(loops))

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}
	cancel()
	wg.Wait()
	s.drain()
	return runErr
}

func (s *Service) serveAPI(ctx context.Context) error {
	h := assignments.NewHandler(s.Coordinator, s.Store, s.Reconciler, s.Tracker, logger.New("api"))
	if s.trail != nil {
		h.WithAudit(s.trail)
	}
	srv := &http.Server{
		Addr:              s.cfg.API.Addr,
		Handler:           assignments.NewRouter(h, s.Auth),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warnf("api shutdown: %v", err)
		}
	}()
	s.log.Infof("api listening on %s", s.cfg.API.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	var errs []error
	if s.gateway != nil {
		s.gateway.Close()
	}
	if s.timers != nil {
		s.timers.Stop()
	}
	if s.Registry != nil {
		s.Registry.Close()
	}
	if s.bus != nil {
		s.bus.Close()
	}
	if s.relay != nil {
		errs = append(errs, s.relay.Close())
	}
	if s.trail != nil {
		errs = append(errs, s.trail.Close())
	}
	if s.mirror != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		errs = append(errs, s.mirror.Release(ctx), s.mirror.Close())
		cancel()
	}
	if c, ok := s.sink.(interface{ Close() }); ok {
		c.Close()
	}
	if s.Store != nil {
		errs = append(errs, s.Store.Close())
	}
	coremon.Flush(2 * time.Second)
	return errors.Join(errs...)
}
