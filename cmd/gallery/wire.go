package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"gallery/internal/catalog"
	"gallery/internal/chaos"
	"gallery/internal/clients"
	"gallery/internal/config"
	"gallery/internal/journal"
	"gallery/internal/observability"
	"gallery/internal/pages"
)

// app holds the wired components shared by every command.
type app struct {
	cfg     config.Config
	logger  *zap.Logger
	journal journal.Recorder
	memory  *journal.Memory
	loader  catalog.Service
	builder *pages.Builder

	closers []func(context.Context) error
}

func newApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := observability.NewLogger(cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	a := &app{cfg: cfg, logger: logger}

	shutdown, err := observability.InitTracing(ctx, cfg.Telemetry.OTLPEndpoint, cfg.Telemetry.ServiceName, logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, shutdown)

	meters, err := observability.InitMetrics(ctx, cfg.Telemetry.OTLPEndpoint, cfg.Telemetry.ServiceName, logger)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	a.closers = append(a.closers, meters.Shutdown)

	if err := a.openJournal(ctx); err != nil {
		_ = a.Close(ctx)
		return nil, err
	}

	opts := []clients.ClientOption{
		clients.WithHTTPClient(&http.Client{Timeout: cfg.Catalog.Timeout}),
		clients.WithRateLimit(cfg.Catalog.RateLimit, cfg.Catalog.Burst),
		clients.WithJournal(a.journal),
		clients.WithClientLogger(logger.Named("client")),
	}
	if cfg.Chaos.FailureRate > 0 || cfg.Chaos.Latency > 0 {
		logger.Warn("chaos injection enabled",
			zap.Float64("failure_rate", cfg.Chaos.FailureRate),
			zap.Duration("latency", cfg.Chaos.Latency),
		)
		opts = append(opts, clients.WithTransport(&chaos.Transport{
			FailureRate: cfg.Chaos.FailureRate,
			Latency:     cfg.Chaos.Latency,
		}))
	}
	client := clients.NewCatalogClient(cfg.Catalog.BaseURL, opts...)

	a.loader = catalog.NewService(client,
		catalog.WithFreshness(cfg.Loader.Freshness),
		catalog.WithPageSize(cfg.Loader.PageSize),
		catalog.WithMaxPageSize(cfg.Loader.MaxPageSize),
		catalog.WithLogger(logger.Named("loader")),
		catalog.WithMeter(meters.Meter("gallery/catalog")),
	)
	a.builder = pages.NewBuilder(a.loader, cfg.Catalog.ImageBase)
	return a, nil
}

func (a *app) openJournal(ctx context.Context) error {
	if a.cfg.Journal.DatabaseURL == "" {
		a.memory = journal.NewMemory()
		a.journal = a.memory
		return nil
	}

	db, err := sql.Open("postgres", a.cfg.Journal.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open journal database: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error { return db.Close() })
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping journal database: %w", err)
	}

	pg := journal.NewPostgres(db)
	if err := pg.EnsureSchema(ctx); err != nil {
		return err
	}
	a.journal = pg
	a.logger.Info("journal persisted to postgres")
	return nil
}

// calls returns the calls recorded during this process.
func (a *app) calls(ctx context.Context) ([]journal.Call, error) {
	if a.memory != nil {
		return a.memory.Calls(), nil
	}
	if pg, ok := a.journal.(*journal.Postgres); ok {
		return pg.Recent(ctx, 100)
	}
	return nil, nil
}

func (a *app) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	return errors.Join(errs...)
}
