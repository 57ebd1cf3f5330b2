package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/hyperlocal/internal/agent"
	"github.com/alanyoungcy/hyperlocal/internal/crypto"
	"github.com/alanyoungcy/hyperlocal/internal/engine"
	"github.com/alanyoungcy/hyperlocal/internal/platform/oracle"
	"github.com/alanyoungcy/hyperlocal/internal/server"
	"github.com/alanyoungcy/hyperlocal/internal/server/handler"
	"github.com/alanyoungcy/hyperlocal/internal/server/ws"
	"github.com/alanyoungcy/hyperlocal/internal/service"
)

// runtime holds the components shared by every mode.
type runtime struct {
	deps      *Dependencies
	engine    *engine.Engine
	markets   *service.MarketService
	manifests *service.ManifestService
}

func (a *App) newRuntime(deps *Dependencies) *runtime {
	publisher := service.NewEventPublisher(deps.SignalBus, deps.Notifier, a.logger)
	eng := engine.New(deps.Store, publisher, engine.Config{
		LockOverrideAfterClaims: a.cfg.Engine.LockOverrideAfterClaims,
	}, a.logger, engine.WithMarketCache(deps.MarketCache))

	return &runtime{
		deps:      deps,
		engine:    eng,
		markets:   service.NewMarketService(deps.Store, deps.MarketCache, a.logger),
		manifests: service.NewManifestService(deps.BlobWriter, deps.BlobReader, deps.Bucket, a.logger),
	}
}

// ServerMode serves the HTTP API and the websocket event stream.
func (a *App) ServerMode(ctx context.Context, rt *runtime) error {
	a.logger.InfoContext(ctx, "starting server mode")
	g, ctx := errgroup.WithContext(ctx)
	a.startNotifier(ctx, g, rt)
	a.startHTTPServer(ctx, g, rt)
	return g.Wait()
}

// AgentMode runs the resolution agent only.
func (a *App) AgentMode(ctx context.Context, rt *runtime) error {
	a.logger.InfoContext(ctx, "starting agent mode")
	g, ctx := errgroup.WithContext(ctx)
	a.startNotifier(ctx, g, rt)
	if err := a.startAgent(ctx, g, rt); err != nil {
		return err
	}
	return g.Wait()
}

// FullMode runs the API server and the resolution agent in one process,
// sharing the ledger.
func (a *App) FullMode(ctx context.Context, rt *runtime) error {
	a.logger.InfoContext(ctx, "starting full mode")
	g, ctx := errgroup.WithContext(ctx)
	a.startNotifier(ctx, g, rt)
	if err := a.startAgent(ctx, g, rt); err != nil {
		return err
	}
	a.startHTTPServer(ctx, g, rt)
	return g.Wait()
}

func (a *App) startNotifier(ctx context.Context, g *errgroup.Group, rt *runtime) {
	if rt.deps.Notifier == nil {
		return
	}
	g.Go(func() error {
		if err := rt.deps.Notifier.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("notify: %w", err)
		}
		return nil
	})
}

func (a *App) startAgent(ctx context.Context, g *errgroup.Group, rt *runtime) error {
	key, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    a.cfg.Resolver.PrivateKey,
		EncryptedKeyPath: a.cfg.Resolver.EncryptedKeyPath,
		KeyPassword:      a.cfg.Resolver.KeyPassword,
	})
	if err != nil {
		return fmt.Errorf("app: resolver key: %w", err)
	}
	signer, err := crypto.NewSigner(key)
	if err != nil {
		return fmt.Errorf("app: resolver key: %w", err)
	}

	ac := a.cfg.Agent
	runner := agent.NewRunner(agent.Deps{
		Query:     rt.deps.Store,
		Engine:    rt.engine,
		Oracle:    oracle.NewClient(ac.OracleURL, ac.OracleAPIKey, ac.OracleTimeout.Duration),
		Manifests: rt.manifests,
		Evidence:  rt.deps.BlobWriter,
		Bucket:    rt.deps.Bucket,
		Locks:     rt.deps.LockManager,
		Archiver:  rt.deps.Archiver,
	}, signer.Principal(), agent.Config{
		PollInterval:       ac.PollInterval.Duration,
		Concurrency:        ac.Concurrency,
		MinConfidence:      ac.MinConfidence,
		EscalateUnsure:     ac.EscalateUnsure,
		LockTTL:            ac.LockTTL.Duration,
		ArchiveSettlements: ac.ArchiveSettlements,
	}, a.logger)

	a.logger.InfoContext(ctx, "resolution agent configured",
		slog.String("resolver_eth", signer.Address().Hex()),
		slog.String("oracle_url", ac.OracleURL),
	)
	g.Go(func() error {
		if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("agent: %w", err)
		}
		return nil
	})
	return nil
}

func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, rt *runtime) {
	hub := ws.NewHub(rt.deps.SignalBus, a.logger, ws.Config{
		Mode:           a.cfg.Mode,
		StartedAt:      time.Now().UTC(),
		AllowedOrigins: a.cfg.Server.CORSOrigins,
	})
	g.Go(func() error {
		if err := hub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("ws hub: %w", err)
		}
		return nil
	})

	sc := a.cfg.Server
	srv := server.NewServer(server.Config{
		Port:             sc.Port,
		CORSOrigins:      sc.CORSOrigins,
		RateLimit:        sc.RateLimit,
		RateWindow:       sc.RateWindow.Duration,
		SignatureMaxSkew: sc.SignatureMaxSkew.Duration,
		TrustedProxies:   sc.TrustedProxies,
	}, server.Handlers{
		Health:    handler.NewHealthHandler(rt.deps.Health, a.logger),
		Markets:   handler.NewMarketHandler(rt.markets, rt.engine, a.logger),
		Manifests: handler.NewManifestHandler(rt.manifests, a.logger),
		Audit:     handler.NewAuditHandler(rt.deps.Store, a.logger),
		Evidence:  handler.NewEvidenceHandler(rt.deps.BlobReader, rt.deps.Bucket, a.logger),
	}, rt.deps.RateLimiter, rt.deps.ReplayGuard, hub, a.logger)

	g.Go(func() error {
		a.logger.InfoContext(ctx, "HTTP server listening",
			slog.Int("port", sc.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", sc.Port)))
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
