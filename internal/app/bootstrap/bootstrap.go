package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	abtestengine "newsfinder/contexts/experimentation/abtest-engine"
	badgeradapter "newsfinder/contexts/experimentation/abtest-engine/adapters/badger"
	"newsfinder/contexts/experimentation/abtest-engine/adapters/memory"
	postgresadapter "newsfinder/contexts/experimentation/abtest-engine/adapters/postgres"
	"newsfinder/contexts/experimentation/abtest-engine/adapters/retrying"
	"newsfinder/contexts/experimentation/abtest-engine/application/policy"
	"newsfinder/contexts/experimentation/abtest-engine/application/workers"
	"newsfinder/contexts/experimentation/abtest-engine/domain/entities"
	"newsfinder/contexts/experimentation/abtest-engine/ports"
	"newsfinder/internal/platform/config"
	"newsfinder/internal/platform/db"
	"newsfinder/internal/platform/httpserver"
	"newsfinder/internal/platform/messaging"
	"newsfinder/internal/platform/metrics"
	"newsfinder/internal/platform/random"
	"newsfinder/internal/platform/seed"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

// Package bootstrap is the composition root.
// Keep construction/wiring here so module code stays framework-agnostic.

type APIApp struct {
	server  *httpserver.Server
	runtime *Runtime
	events  *eventPipeline
	config  config.Config
	logger  *slog.Logger
}

type WorkerApp struct {
	runtime *Runtime
	events  *eventPipeline
	config  config.Config
	logger  *slog.Logger
}

// eventPipeline relays the outbox onto the bus and audits what the bus
// delivers.
type eventPipeline struct {
	relay   workers.OutboxRelay
	auditor workers.EventAuditor
	sub     *messaging.Subscription
}

// Runtime is a fully wired experiment module plus the resources it holds.
type Runtime struct {
	Module  abtestengine.Module
	closers []func() error
}

func (r *Runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i]())
	}
	return errors.Join(errs...)
}

type stores struct {
	backend retrying.Backend
	outbox  interface {
		ports.OutboxWriter
		ports.OutboxRepository
	}
	clock  ports.Clock
	idGen  ports.IDGenerator
	closer func() error
}

func openStores(cfg config.Config, logger *slog.Logger) (stores, error) {
	switch cfg.Store {
	case config.StoreMemory:
		store := memory.NewStore(nil)
		return stores{backend: store, outbox: store, clock: store, idGen: store, closer: func() error { return nil }}, nil
	case config.StoreBadger:
		kv, err := db.OpenBadger(cfg.BadgerPath, logger)
		if err != nil {
			return stores{}, err
		}
		store := badgeradapter.NewStore(kv, logger)
		return stores{
			backend: store,
			outbox:  store,
			clock:   postgresadapter.SystemClock{},
			idGen:   postgresadapter.UUIDGenerator{},
			closer:  func() error { return db.CloseBadger(kv) },
		}, nil
	case config.StorePostgres:
		pg, err := db.Connect(cfg.PostgresDSN)
		if err != nil {
			return stores{}, err
		}
		if err := pg.Migrate(postgresadapter.AutoMigrate); err != nil {
			_ = pg.Close()
			return stores{}, err
		}
		repo := postgresadapter.NewRepository(pg.DB, logger)
		return stores{
			backend: repo,
			outbox:  repo,
			clock:   postgresadapter.SystemClock{},
			idGen:   postgresadapter.UUIDGenerator{},
			closer:  pg.Close,
		}, nil
	default:
		return stores{}, fmt.Errorf("unsupported store %q", cfg.Store)
	}
}

// LoadCampaigns reads the campaign file with the configured defaults.
func LoadCampaigns(cfg config.Config) ([]entities.Campaign, error) {
	defaultPolicy, err := policy.ParseName(cfg.DefaultPolicy)
	if err != nil {
		return nil, fmt.Errorf("default policy %q: %w", cfg.DefaultPolicy, err)
	}
	prior, err := entities.NewBetaModel(cfg.PriorAlpha, cfg.PriorBeta)
	if err != nil {
		return nil, err
	}
	return seed.LoadFile(cfg.CampaignsFile, seed.Defaults{Prior: prior, Policy: defaultPolicy})
}

// BuildRuntime opens the configured store, wraps it with retries and builds
// the experiment module on top of it.
func BuildRuntime(ctx context.Context, cfg config.Config, observer ports.Observer, logger *slog.Logger) (*Runtime, error) {
	campaigns, err := LoadCampaigns(cfg)
	if err != nil {
		return nil, err
	}
	source, err := random.NewSource()
	if err != nil {
		return nil, err
	}
	defaultPolicy, err := policy.ParseName(cfg.DefaultPolicy)
	if err != nil {
		return nil, err
	}

	opened, err := openStores(cfg, logger)
	if err != nil {
		return nil, err
	}
	runtime := &Runtime{closers: []func() error{opened.closer}}
	guarded := retrying.New(opened.backend, retrying.Config{
		MaxTries:        cfg.StoreRetryMaxTries,
		InitialInterval: cfg.StoreRetryInitialInterval,
	}, logger)

	module, err := abtestengine.NewModule(ctx, abtestengine.Dependencies{
		Campaigns:     campaigns,
		Assignments:   guarded,
		Models:        guarded,
		Outbox:        opened.outbox,
		OutboxReader:  opened.outbox,
		Observer:      observer,
		Clock:         opened.clock,
		IDGen:         opened.idGen,
		DefaultPolicy: defaultPolicy,
		Epsilon:       &cfg.EGreedyEpsilon,
		Random:        policy.NewRandom(source),
		FailSafe:      cfg.FailSafe,
		Logger:        logger,
	})
	if err != nil {
		_ = runtime.Close()
		return nil, err
	}
	runtime.Module = module
	logger.Info("abtest runtime ready",
		"event", "bootstrap_abtest_runtime_ready",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"store", cfg.Store,
		"campaigns", len(campaigns),
		"default_policy", string(defaultPolicy),
	)
	return runtime, nil
}

func BuildAPI(ctx context.Context) (*APIApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := slog.Default().With("service", cfg.ServiceName, "process", "api")

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	observer := metrics.NewExperimentMetrics(registry)

	runtime, err := BuildRuntime(ctx, cfg, observer, logger)
	if err != nil {
		return nil, err
	}
	app := &APIApp{
		server:  httpserver.New(runtime.Module, registry, logger, normalizeAddr(cfg.HTTPPort)),
		runtime: runtime,
		config:  cfg,
		logger:  logger,
	}

	// Embedded stores are owned by this process, so their outbox is relayed here.
	if cfg.Store != config.StorePostgres {
		app.events = buildEventPipeline(runtime, cfg, observer, logger)
	}
	return app, nil
}

func BuildWorker(ctx context.Context) (*WorkerApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := slog.Default().With("service", cfg.ServiceName, "process", "worker")
	if cfg.Store != config.StorePostgres {
		return nil, fmt.Errorf("worker requires ABTEST_STORE=%s; %s outboxes are relayed by the api process", config.StorePostgres, cfg.Store)
	}

	runtime, err := BuildRuntime(ctx, cfg, nil, logger)
	if err != nil {
		return nil, err
	}
	return &WorkerApp{
		runtime: runtime,
		events:  buildEventPipeline(runtime, cfg, nil, logger),
		config:  cfg,
		logger:  logger,
	}, nil
}

func buildEventPipeline(runtime *Runtime, cfg config.Config, deliveries ports.DeliveryObserver, logger *slog.Logger) *eventPipeline {
	bus := messaging.NewBus(cfg.KafkaBrokers, logger)
	relay := runtime.Module.Relay
	relay.Publisher = bus
	relay.BatchSize = 100
	relay.Logger = logger
	return &eventPipeline{
		relay: relay,
		auditor: workers.EventAuditor{
			Observer: deliveries,
			Clock:    relay.Clock,
			Logger:   logger,
		},
		sub: bus.Subscribe(256, workers.AuditedTopics...),
	}
}

// run relays and audits until ctx is cancelled.
func (p *eventPipeline) run(ctx context.Context, interval time.Duration) error {
	defer p.sub.Close()
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return p.auditor.Run(groupCtx, p.sub.C)
	})
	group.Go(func() error {
		return p.relay.Run(groupCtx, interval)
	})
	return group.Wait()
}

// Run serves HTTP and, for embedded stores, relays the outbox until ctx is
// cancelled or either loop fails.
func (a *APIApp) Run(ctx context.Context) error {
	a.logger.Info("api app started",
		"event", "bootstrap_api_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"store", a.config.Store,
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return a.server.Start(groupCtx)
	})
	if a.events != nil {
		group.Go(func() error {
			return a.events.run(groupCtx, a.config.OutboxPollInterval)
		})
	}
	return group.Wait()
}

func (a *APIApp) Close() error {
	if a.runtime != nil {
		return a.runtime.Close()
	}
	return nil
}

func (w *WorkerApp) Run(ctx context.Context) error {
	w.logger.Info("worker app started",
		"event", "bootstrap_worker_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"poll_interval", w.config.OutboxPollInterval.String(),
	)
	return w.events.run(ctx, w.config.OutboxPollInterval)
}

func (w *WorkerApp) Close() error {
	if w.runtime != nil {
		return w.runtime.Close()
	}
	return nil
}

func normalizeAddr(port string) string {
	value := strings.TrimSpace(port)
	if value == "" {
		return ":8080"
	}
	if strings.HasPrefix(value, ":") {
		return value
	}
	return ":" + value
}
