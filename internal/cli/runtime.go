package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/knpiano/knbatch/internal/config"
	"github.com/knpiano/knbatch/pkg/database/pool"
	"github.com/knpiano/knbatch/pkg/events"
	"github.com/knpiano/knbatch/pkg/handlers/health"
	"github.com/knpiano/knbatch/pkg/jobs"
	"github.com/knpiano/knbatch/pkg/logger"
	"github.com/knpiano/knbatch/pkg/metrics"
	"github.com/knpiano/knbatch/pkg/notify"
	"github.com/knpiano/knbatch/pkg/store"
	"github.com/knpiano/knbatch/pkg/tasks"
)

// CatalogueStore is what the service needs from the job catalogue: the
// definitions themselves and the per-job mail settings next to them
type CatalogueStore interface {
	jobs.DefinitionStore
	notify.MailConfigStore
}

// Catalogue is an opened CatalogueStore and how to release it
type Catalogue struct {
	Store CatalogueStore
	Close func()
}

// HandlerSet is a filled handler table and the resources behind it
type HandlerSet struct {
	Handlers *jobs.HandlerRegistry
	// Probe is checked by /health when set
	Probe health.Pinger
	Close func()
}

// CatalogueOpener opens the configured job catalogue
type CatalogueOpener func(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Catalogue, error)

// HandlerBuilder fills the handler table
type HandlerBuilder func(ctx context.Context, cfg *config.Config, loc *time.Location, log *logger.Logger) (*HandlerSet, error)

// Runtime is the wiring shared by one-shot runs and service mode
type Runtime struct {
	Config   *config.Config
	Location *time.Location
	Store    CatalogueStore
	Registry *jobs.Registry
	Executor *jobs.Executor
	Metrics  metrics.Sink
	// Gatherer is nil when metrics are disabled
	Gatherer prometheus.Gatherer
	Probes   map[string]health.Pinger

	closers []func()
}

// Close releases everything the runtime opened, newest first
func (r *Runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
	r.closers = nil
}

func (r *Runtime) onClose(fn func()) {
	if fn != nil {
		r.closers = append(r.closers, fn)
	}
}

// Bootstrap builds the runtime from cfg. Any failure is a configuration error;
// whatever was already opened is released before returning.
func Bootstrap(ctx context.Context, cfg *config.Config, openCatalogue CatalogueOpener, buildHandlers HandlerBuilder, log *logger.Logger) (_ *Runtime, err error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, configurationError(err)
	}

	rt := &Runtime{
		Config:   cfg,
		Location: loc,
		Probes:   map[string]health.Pinger{},
	}
	defer func() {
		if err != nil {
			rt.Close()
		}
	}()

	rt.Metrics, rt.Gatherer = newMetrics(cfg, log)

	catalogue, err := openCatalogue(ctx, cfg, log)
	if err != nil {
		return nil, configurationError(err)
	}
	rt.onClose(catalogue.Close)
	rt.Store = catalogue.Store
	if p, ok := catalogue.Store.(health.Pinger); ok {
		rt.Probes["catalogue"] = p
	}

	rt.Registry, err = jobs.LoadRegistry(ctx, rt.Store, log)
	if err != nil {
		return nil, err
	}
	rt.Metrics.RegisteredJobs(rt.Registry.Count())

	handlers, err := buildHandlers(ctx, cfg, loc, log)
	if err != nil {
		return nil, configurationError(err)
	}
	rt.onClose(handlers.Close)
	if handlers.Probe != nil {
		rt.Probes["handlers"] = handlers.Probe
	}

	reporter, err := newReporter(cfg, rt.Store, rt.Metrics, log)
	if err != nil {
		return nil, configurationError(err)
	}

	observers := []jobs.Observer{jobs.NewLogObserver(log)}
	if publisher := rt.connectEvents(cfg, log); publisher != nil {
		observers = append(observers, publisher)
	}

	rt.Executor, err = jobs.NewExecutor(jobs.ExecutorConfig{
		Registry:  rt.Registry,
		Store:     rt.Store,
		Handlers:  handlers.Handlers,
		Reporter:  reporter,
		Observers: observers,
		Metrics:   rt.Metrics,
		Logger:    log,
	})
	if err != nil {
		return nil, err
	}
	return rt, nil
}

// OpenCatalogue opens the store selected by catalogue.source
func OpenCatalogue(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Catalogue, error) {
	switch cfg.Catalogue.Source {
	case config.SourceFile:
		return &Catalogue{Store: store.NewFile(cfg.Catalogue.File, log)}, nil
	default:
		pg, err := store.OpenPostgres(ctx, cfg.DatabaseURL(), log)
		if err != nil {
			return nil, err
		}
		return &Catalogue{
			Store: pg,
			Close: func() {
				if err := pg.Close(); err != nil {
					log.Warn().Err(err).Msg("Failed to close catalogue database")
				}
			},
		}, nil
	}
}

// BuildHandlers connects the handler pool and registers the built-in tasks
func BuildHandlers(ctx context.Context, cfg *config.Config, loc *time.Location, log *logger.Logger) (*HandlerSet, error) {
	poolCfg := pool.DefaultConfig()
	if cfg.Database.MaxConns > 0 {
		poolCfg.MaxConns = cfg.Database.MaxConns
	}

	db, err := pool.New(ctx, cfg.DatabaseURL(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect handler database: %w", err)
	}

	handlers := jobs.NewHandlerRegistry()
	if err := tasks.Register(handlers, db, cfg.Tasks.Corrections, loc); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to register handlers: %w", err)
	}

	log.Info().
		Str("action", "handlers_registered").
		Strs("handlers", handlers.Refs()).
		Int32("max_conns", poolCfg.MaxConns).
		Msg("Handler table ready")

	return &HandlerSet{
		Handlers: handlers,
		Probe:    pool.NewMonitor(db),
		Close:    db.Close,
	}, nil
}

func newMetrics(cfg *config.Config, log *logger.Logger) (metrics.Sink, prometheus.Gatherer) {
	if !cfg.Metrics.Enabled {
		return metrics.NewNoopSink(), nil
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return metrics.NewPrometheusSink(reg, log), reg
}

func newReporter(cfg *config.Config, mailStore notify.MailConfigStore, sink metrics.Sink, log *logger.Logger) (jobs.Reporter, error) {
	if !cfg.Mail.Enabled {
		return notify.NewNopReporter(log), nil
	}

	sender, err := notify.NewSMTPSender(notify.SMTPConfig{
		Host:             cfg.Mail.SMTP.Host,
		Port:             cfg.Mail.SMTP.Port,
		Username:         cfg.Mail.SMTP.Username,
		Password:         cfg.Mail.SMTP.Password,
		TLS:              cfg.Mail.SMTP.TLS,
		Timeout:          cfg.Mail.SMTP.Timeout,
		FailureThreshold: cfg.Mail.SMTP.FailureThreshold,
		OpenTimeout:      cfg.Mail.SMTP.OpenTimeout,
	}, log)
	if err != nil {
		return nil, err
	}

	return notify.NewReporter(notify.Config{
		From:                  cfg.Mail.From,
		Maintainers:           cfg.Mail.Maintainers,
		SendOnSuccess:         cfg.Mail.SendOnSuccess,
		SendOnFailure:         cfg.Mail.SendOnFailure,
		Environment:           cfg.Environment,
		ProductionEnvironment: cfg.Mail.ProductionEnvironment,
	}, sender, mailStore, sink, log), nil
}

// connectEvents returns nil when NATS is not configured or unreachable; run
// events are optional and never block startup
func (r *Runtime) connectEvents(cfg *config.Config, log *logger.Logger) *events.Publisher {
	if cfg.NATS.URL == "" {
		return nil
	}

	nc, err := events.Connect(cfg.NATS.URL, cfg.NATS.Name)
	if err != nil {
		log.Warn().
			Err(err).
			Str("action", "nats_unavailable").
			Str("url", cfg.NATS.URL).
			Msg("Run events disabled")
		return nil
	}
	r.onClose(nc.Close)

	log.Info().Str("action", "nats_connected").Str("url", cfg.NATS.URL).Msg("Publishing run events")
	return events.NewPublisher(nc, log)
}
