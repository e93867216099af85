package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/arbmon/internal/detector"
	"github.com/alanyoungcy/arbmon/internal/matcher"
	"github.com/alanyoungcy/arbmon/internal/monitor"
	"github.com/alanyoungcy/arbmon/internal/server"
	"github.com/alanyoungcy/arbmon/internal/server/handler"
	"github.com/alanyoungcy/arbmon/internal/server/ws"
)

// buildMonitor constructs the similarity engine, detector, alert manager, and
// monitor shared by the monitor, once, and full modes.
func (a *App) buildMonitor(deps *Dependencies) (*monitor.Monitor, *matcher.Engine) {
	engine := matcher.NewEngine(a.cfg.Matching, deps.Embedder, a.logger)
	det := detector.NewDetector(a.cfg.Detection, a.logger)

	var alerts *monitor.AlertManager
	if deps.Notifier != nil {
		alerts = monitor.NewAlertManager(
			deps.Notifier,
			a.cfg.Monitor.MinProfitForAlert,
			a.cfg.Monitor.AlertCooldown.Duration,
			a.logger,
		)
	}

	mon := monitor.NewMonitor(
		a.cfg.Monitor,
		deps.Polymarket,
		deps.Kalshi,
		engine,
		det,
		monitor.Stores{
			Listings:      deps.ListingStore,
			Pairs:         deps.PairStore,
			Similarities:  deps.SimilarityStore,
			Opportunities: deps.OpportunityStore,
			CycleLogs:     deps.CycleLogStore,
			Audit:         deps.AuditStore,
		},
		deps.QuoteCache,
		deps.SignalBus,
		deps.LockManager,
		alerts,
		a.logger,
	)
	return mon, engine
}

// startJanitor runs retention passes on the configured cron schedule.
func (a *App) startJanitor(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if a.cfg.Monitor.RetentionDays <= 0 {
		a.logger.InfoContext(ctx, "retention disabled")
		return
	}

	janitor := monitor.NewJanitor(
		deps.Archiver,
		deps.OpportunityStore,
		deps.CycleLogStore,
		deps.AuditStore,
		a.cfg.Monitor,
		a.logger,
	)
	g.Go(func() error {
		return janitor.RunCron(ctx, a.cfg.Monitor.ArchiveCron)
	})
}

// startServer starts the HTTP API and the WebSocket hub.
func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, engine *matcher.Engine, mon *monitor.Monitor) {
	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error {
		if err := hub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	health := handler.NewHealthHandler(a.logger).
		WithDependency("postgres", deps.Postgres).
		WithDependency("redis", deps.Redis)
	if deps.S3 != nil {
		health = health.WithDependency("s3", deps.S3)
	}

	cycles := handler.NewCycleHandler(deps.CycleLogStore, a.logger)
	if mon != nil {
		cycles = cycles.WithTriggerChannel(mon.TriggerCh())
	}

	var archives *handler.ArchiveHandler
	if deps.BlobReader != nil {
		archives = handler.NewArchiveHandler(deps.BlobReader, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		Limiter:     deps.RateLimiter,
	}, server.Handlers{
		Health:        health,
		Listings:      handler.NewListingHandler(deps.ListingStore, a.logger),
		Pairs:         handler.NewPairHandler(deps.PairStore, engine.Registry(), a.logger).WithAuditStore(deps.AuditStore),
		Similarity:    handler.NewSimilarityHandler(deps.SimilarityStore, a.logger),
		Opportunities: handler.NewOpportunityHandler(deps.OpportunityStore, a.logger),
		Cycles:        cycles,
		Archives:      archives,
	}, hub, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// MonitorMode runs the detection loop and the retention janitor without the
// HTTP API.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	mon, _ := a.buildMonitor(deps)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := mon.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	a.startJanitor(ctx, g, deps)

	return g.Wait()
}

// OnceMode runs a single detection cycle and exits. Useful for cron-driven
// deployments and smoke tests.
func (a *App) OnceMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "running single cycle")

	mon, _ := a.buildMonitor(deps)
	log, err := mon.RunOnce(ctx)
	if err != nil {
		return err
	}

	a.logger.InfoContext(ctx, "cycle finished",
		slog.String("cycle_id", log.ID),
		slog.Int("opportunities", log.Opportunities),
		slog.Float64("best_net_profit", log.BestNetProfit),
	)
	return nil
}

// ServeMode runs only the HTTP API and WebSocket hub, serving data written
// by monitor instances elsewhere.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	// An engine is still needed for the pair registry behind the pair
	// management endpoints; it scores nothing in this mode.
	engine := matcher.NewEngine(a.cfg.Matching, deps.Embedder, a.logger)

	g, ctx := errgroup.WithContext(ctx)
	a.startServer(ctx, g, deps, engine, nil)

	return g.Wait()
}

// FullMode runs the detection loop, the retention janitor, and the HTTP API
// in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	mon, engine := a.buildMonitor(deps)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := mon.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	a.startJanitor(ctx, g, deps)
	if a.cfg.Server.Enabled {
		a.startServer(ctx, g, deps, engine, mon)
	}

	return g.Wait()
}
