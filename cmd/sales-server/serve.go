package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	eventsadapter "github.com/merliontechs/sales/framework/adapters/events"
	"github.com/merliontechs/sales/framework/adapters/transport"
	"github.com/merliontechs/sales/framework/core"
	"github.com/merliontechs/sales/framework/events"
	"github.com/merliontechs/sales/framework/logger"
	"github.com/merliontechs/sales/framework/metrics"
	"github.com/merliontechs/sales/framework/observability"
	"github.com/merliontechs/sales/framework/repository"
	"github.com/merliontechs/sales/internal/config"
	"github.com/merliontechs/sales/internal/sales"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg)
		},
	}
}

type stopper interface {
	Stop(ctx context.Context) error
}

func serve(ctx context.Context, cfg *config.Config) error {
	log, err := logger.Init(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	// остановка в обратном порядке запуска
	var stoppers []stopper
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		for i := len(stoppers) - 1; i >= 0; i-- {
			if err := stoppers[i].Stop(shutdownCtx); err != nil {
				log.Warn("shutdown failed", zap.Error(err))
			}
		}
	}()

	var opts []repository.Option
	opts = append(opts, repository.WithLogger(log))

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		provider, err := metrics.SetupMetrics(&cfg.Metrics)
		if err != nil {
			return fmt.Errorf("failed to setup metrics: %w", err)
		}
		defer func() { _ = metrics.ShutdownMetrics(context.Background(), provider) }()

		if m, err = metrics.NewMetrics(); err != nil {
			return fmt.Errorf("failed to create metrics: %w", err)
		}
		opts = append(opts, repository.WithMetrics(m))
	}

	if cfg.Tracing.ServiceVersion == "" {
		cfg.Tracing.ServiceVersion = version
	}
	tracing, err := observability.NewTracingManager(cfg.Tracing)
	if err != nil {
		return fmt.Errorf("failed to setup tracing: %w", err)
	}
	if err := tracing.Start(ctx); err != nil {
		return err
	}
	stoppers = append(stoppers, tracing)
	opts = append(opts, repository.WithTracer(tracing.Tracer()))

	bus := events.NewInMemoryEventBus()
	stoppers = append(stoppers, busStopper{bus})

	if cfg.Metrics.Enabled {
		cfg.Events.NATS.Metrics = m
		cfg.Events.Kafka.Metrics = m
	}
	switch cfg.Events.Type {
	case "", "none":
	default:
		publisher, err := eventsadapter.NewEventPublisherFactory(bus).CreateWithFallback(cfg.Events, bus)
		if err != nil {
			return fmt.Errorf("failed to create event publisher: %w", err)
		}
		if s, ok := publisher.(stopper); ok {
			stoppers = append(stoppers, s)
		}
		opts = append(opts, repository.WithEventPublisher(publisher))
	}

	store, err := sales.NewStoreFactory().Create(ctx, cfg.Storage.Backend, cfg.Storage.BackendConfig())
	if err != nil {
		return fmt.Errorf("failed to create %s store: %w", cfg.Storage.Backend, err)
	}
	if s, ok := store.(stopper); ok {
		stoppers = append(stoppers, s)
	}

	repo, err := sales.NewRepository(store, opts...)
	if err != nil {
		return err
	}

	health := observability.NewHealthRegistry(5 * time.Second)
	if hc, ok := store.(core.HealthCheckable); ok {
		health.Register("storage", hc)
	}

	gin.SetMode(gin.ReleaseMode)
	rest := transport.NewRESTAdapter(cfg.Server, m, log)
	rest.Router().GET("/health", health.Handler())
	if cfg.Metrics.Enabled && cfg.Metrics.ExporterType == "prometheus" {
		rest.Router().GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	resource := transport.NewResource[sales.Sales, int64](
		sales.EntityName, repo, sales.Identity, sales.ParseID,
		transport.WithValidator(sales.Validate),
	)
	resource.Register(rest.API())

	if err := rest.Start(ctx); err != nil {
		return err
	}
	stoppers = append(stoppers, rest)

	log.Info("sales server ready",
		zap.String("storage", cfg.Storage.Backend),
		zap.String("events", cfg.Events.Type),
		zap.Int("port", cfg.Server.Port),
	)

	<-ctx.Done()
	log.Info("shutting down")
	return nil
}

type busStopper struct {
	bus *events.InMemoryEventBus
}

func (b busStopper) Stop(ctx context.Context) error {
	return b.bus.Shutdown(ctx)
}
