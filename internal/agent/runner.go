// Package agent runs the automated resolution loop: it finds markets whose
// close time has passed, asks the oracle for a verdict and submits it to the
// engine as the designated resolver.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/hyperlocal/internal/domain"
	"github.com/alanyoungcy/hyperlocal/internal/engine"
	"github.com/alanyoungcy/hyperlocal/internal/platform/oracle"
)

// pageSize is the number of markets fetched per list call.
const pageSize = 200

// Resolver submits verdicts to the market engine.
type Resolver interface {
	AgentAttempt(ctx context.Context, p engine.AgentAttemptParams) (domain.Market, error)
}

// Oracle judges a market's manifest.
type Oracle interface {
	Evaluate(ctx context.Context, m domain.Manifest) (oracle.Verdict, error)
}

// ManifestFetcher loads and verifies a market's manifest.
type ManifestFetcher interface {
	Fetch(ctx context.Context, url string, expected domain.Hash) (domain.Manifest, error)
}

// Config holds agent policy.
type Config struct {
	PollInterval       time.Duration
	Concurrency        int
	MinConfidence      float64
	EscalateUnsure     bool
	LockTTL            time.Duration
	ArchiveSettlements bool
}

// Deps are the collaborators of a Runner. Locks and Archiver may be nil.
type Deps struct {
	Query     domain.MarketQuery
	Engine    Resolver
	Oracle    Oracle
	Manifests ManifestFetcher
	Evidence  domain.BlobWriter
	Bucket    string
	Locks     domain.LockManager
	Archiver  domain.SettlementArchiver
}

// Runner polls for markets to resolve.
type Runner struct {
	deps      Deps
	principal domain.Address
	cfg       Config
	now       func() time.Time
	logger    *slog.Logger

	mu       sync.Mutex
	archived map[domain.Address]bool
}

// NewRunner creates a Runner acting as principal.
func NewRunner(deps Deps, principal domain.Address, cfg Config, logger *slog.Logger) *Runner {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Minute
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * time.Minute
	}
	return &Runner{
		deps:      deps,
		principal: principal,
		cfg:       cfg,
		now:       time.Now,
		logger:    logger.With(slog.String("component", "agent")),
		archived:  make(map[domain.Address]bool),
	}
}

// Run ticks until ctx is cancelled. The first pass runs immediately.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("resolution agent starting",
		slog.String("resolver", r.principal.Hex()),
		slog.Duration("poll_interval", r.cfg.PollInterval),
		slog.Int("concurrency", r.cfg.Concurrency),
	)

	r.tick(ctx)

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("resolution agent stopped")
			return ctx.Err()
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Runner) tick(ctx context.Context) {
	if err := r.ResolvePending(ctx); err != nil && ctx.Err() == nil {
		r.logger.Error("resolution pass failed", slog.String("error", err.Error()))
	}
	if !r.cfg.ArchiveSettlements || r.deps.Archiver == nil {
		return
	}
	if err := r.ArchiveResolved(ctx); err != nil && ctx.Err() == nil {
		r.logger.Error("settlement archive pass failed", slog.String("error", err.Error()))
	}
}

// ResolvePending evaluates every closed, unresolved market this agent is the
// resolver of. Per-market failures are logged and do not stop the pass.
func (r *Runner) ResolvePending(ctx context.Context) error {
	markets, err := r.candidates(ctx)
	if err != nil {
		return err
	}
	if len(markets) == 0 {
		return nil
	}
	r.logger.DebugContext(ctx, "resolution pass", slog.Int("candidates", len(markets)))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for _, m := range markets {
		g.Go(func() error {
			if _, err := r.ResolveMarket(gctx, m); err != nil && !skippable(err) {
				r.logger.WarnContext(gctx, "market resolution failed",
					slog.String("market", m.Address.Hex()),
					slog.String("error", err.Error()),
				)
			}
			return nil
		})
	}
	return g.Wait()
}

// candidates lists markets with status Open or Disputed whose close time has
// passed and whose resolver is this agent.
func (r *Runner) candidates(ctx context.Context) ([]domain.Market, error) {
	now := r.now()
	var out []domain.Market
	for _, status := range []domain.MarketStatus{domain.StatusOpen, domain.StatusDisputed} {
		markets, err := r.listAll(ctx, domain.MarketFilter{Status: &status, ClosedBefore: &now})
		if err != nil {
			return nil, err
		}
		for _, m := range markets {
			if m.Resolver == r.principal {
				out = append(out, m)
			}
		}
	}
	return out, nil
}

func (r *Runner) listAll(ctx context.Context, f domain.MarketFilter) ([]domain.Market, error) {
	var out []domain.Market
	f.Limit = pageSize
	for {
		page, err := r.deps.Query.ListMarkets(ctx, f)
		if err != nil {
			return nil, fmt.Errorf("agent: list markets: %w", err)
		}
		out = append(out, page...)
		if len(page) < pageSize {
			return out, nil
		}
		f.Offset += pageSize
	}
}

// ArchiveResolved writes the settlement report of every resolved market not
// yet archived by this process.
func (r *Runner) ArchiveResolved(ctx context.Context) error {
	status := domain.StatusResolved
	markets, err := r.listAll(ctx, domain.MarketFilter{Status: &status})
	if err != nil {
		return err
	}
	for _, m := range markets {
		if r.isArchived(m.Address) {
			continue
		}
		path, err := r.deps.Archiver.ArchiveSettlement(ctx, m.Address)
		if err != nil {
			r.logger.WarnContext(ctx, "settlement archive failed",
				slog.String("market", m.Address.Hex()),
				slog.String("error", err.Error()),
			)
			continue
		}
		r.markArchived(m.Address)
		r.logger.DebugContext(ctx, "settlement archived",
			slog.String("market", m.Address.Hex()),
			slog.String("path", path),
		)
	}
	return nil
}

func (r *Runner) isArchived(addr domain.Address) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.archived[addr]
}

func (r *Runner) markArchived(addr domain.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.archived[addr] = true
}

// skippable reports errors that mean another actor got there first.
func skippable(err error) bool {
	return errors.Is(err, domain.ErrLockHeld) || errors.Is(err, domain.ErrAlreadyResolved)
}
