package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/openwager/betpool/internal/crypto"
	"github.com/openwager/betpool/internal/notify"
	"github.com/openwager/betpool/internal/server"
	"github.com/openwager/betpool/internal/server/handler"
	"github.com/openwager/betpool/internal/server/ws"
	"github.com/openwager/betpool/internal/service"
)

// shutdownGrace is how long in-flight HTTP requests get to finish once the
// context is cancelled.
const shutdownGrace = 10 * time.Second

// services bundles the three bet services built on top of the wired stores.
type services struct {
	life   *service.LifecycleService
	settle *service.SettlementService
	disc   *service.DiscoveryService
}

// buildServices constructs the lifecycle, settlement, and discovery services
// sharing one in-process lock table.
func (a *App) buildServices(deps *Dependencies) *services {
	locks := service.NewBetLocks()
	return &services{
		life: service.NewLifecycleService(
			deps.Ledger, deps.Index, deps.Treasury, locks,
			deps.LockManager, deps.SignalBus, deps.Audit, deps.BetCache,
			a.logger,
		),
		settle: service.NewSettlementService(
			deps.Ledger, deps.Treasury, locks,
			deps.LockManager, deps.SignalBus, deps.Audit, deps.BetCache,
			a.logger,
		),
		disc: service.NewDiscoveryService(deps.Ledger, deps.Index, deps.BetCache, a.logger),
	}
}

// ServerMode runs the HTTP + WebSocket API. When archival is enabled the
// archive loop runs too, driven by its interval and the trigger endpoint.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	if err := a.startHTTPServer(ctx, g, deps); err != nil {
		return err
	}
	return g.Wait()
}

// ArchiveMode runs only the periodic archival loop, without the API surface.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode")

	if deps.Archiver == nil {
		return fmt.Errorf("app: archive mode requires archival to be enabled")
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.runArchiveLoop(ctx, deps, nil)
	})
	return g.Wait()
}

// FullMode runs the API server, the archive loop, and the notification
// bridge together.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	if err := a.startHTTPServer(ctx, g, deps); err != nil {
		return err
	}

	// Notification bridge: signal bus events out to Telegram/Discord.
	bridge := notify.NewBridge(deps.SignalBus, deps.Notifier, a.logger)
	g.Go(func() error {
		return bridge.Run(ctx)
	})

	return g.Wait()
}

// startHTTPServer wires the handlers, WebSocket hub, and, when archival is
// enabled, the archive loop with its trigger channel, then adds the server
// goroutines to the errgroup.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) error {
	svcs := a.buildServices(deps)

	apiKey, err := crypto.LoadSecret(crypto.SecretConfig{
		Raw:           a.cfg.Server.APIKey,
		EncryptedPath: a.cfg.Server.EncryptedAPIKeyPath,
		Password:      a.cfg.Server.KeyPassword,
	})
	if err != nil {
		return fmt.Errorf("app: load api key: %w", err)
	}

	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	handlers := server.Handlers{
		Health:     handler.NewHealthHandler(a.logger),
		Bets:       handler.NewBetHandler(svcs.life, svcs.disc, a.logger),
		Positions:  handler.NewPositionHandler(svcs.life, svcs.disc, a.logger),
		Settlement: handler.NewSettlementHandler(svcs.life, svcs.settle, a.logger),
		Balances:   handler.NewBalanceHandler(deps.Treasury, a.logger),
	}

	// Archive loop and trigger endpoint, only when archival is wired.
	if deps.Archiver != nil {
		triggerCh := make(chan struct{}, 1)
		handlers.Archive = handler.NewArchiveHandler(a.logger).WithTriggerChannel(triggerCh)
		g.Go(func() error {
			return a.runArchiveLoop(ctx, deps, triggerCh)
		})
	}

	srv := server.NewServer(server.Config{
		Port:               a.cfg.Server.Port,
		CORSOrigins:        a.cfg.Server.CORSOrigins,
		APIKey:             apiKey,
		RateLimitPerMinute: a.cfg.Server.RateLimitPerMinute,
		Limiter:            deps.RateLimiter,
	}, handlers, hub, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return nil
}

// runArchiveLoop periodically uploads settled bets and old audit entries to
// object storage. A send on triggerCh runs one extra cycle immediately.
func (a *App) runArchiveLoop(ctx context.Context, deps *Dependencies, triggerCh <-chan struct{}) error {
	interval := a.cfg.Archive.Interval.Duration
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	retention := time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour

	logger := a.logger.With(slog.String("component", "archive_loop"))
	logger.InfoContext(ctx, "archive loop started",
		slog.Duration("interval", interval),
		slog.Int("retention_days", a.cfg.Archive.RetentionDays),
	)

	run := func() {
		before := time.Now().UTC().Add(-retention)

		bets, err := deps.Archiver.ArchiveSettledBets(ctx, before)
		if err != nil {
			logger.ErrorContext(ctx, "archive settled bets failed",
				slog.String("error", err.Error()),
			)
		}
		entries, err := deps.Archiver.ArchiveAuditLog(ctx, before)
		if err != nil {
			logger.ErrorContext(ctx, "archive audit log failed",
				slog.String("error", err.Error()),
			)
		}
		logger.InfoContext(ctx, "archive cycle complete",
			slog.Int64("bets", bets),
			slog.Int64("audit_entries", entries),
		)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			run()
		case <-triggerCh:
			run()
		}
	}
}
