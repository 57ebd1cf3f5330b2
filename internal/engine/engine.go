// Package engine implements the state-mutating operations of a market:
// creation, order placement, the resolution state machine, settlement claims
// and the emergency drain. Every operation runs inside a single
// domain.Ledger unit; events are published only after the unit commits.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/hyperlocal/internal/domain"
)

// Config holds engine policy switches.
type Config struct {
	// LockOverrideAfterClaims rejects creator overrides once any payout has
	// been claimed from the market.
	LockOverrideAfterClaims bool
}

// Engine executes market operations against a ledger.
type Engine struct {
	ledger domain.Ledger
	events domain.EventPublisher
	cache  domain.MarketCache
	cfg    Config
	now    func() time.Time
	logger *slog.Logger
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock overrides the wall clock used for close-time checks and
// timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithMarketCache invalidates cached market views after each commit.
func WithMarketCache(c domain.MarketCache) Option {
	return func(e *Engine) { e.cache = c }
}

// New creates an Engine. events may be nil.
func New(ledger domain.Ledger, events domain.EventPublisher, cfg Config, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		ledger: ledger,
		events: events,
		cfg:    cfg,
		now:    time.Now,
		logger: logger.With(slog.String("component", "engine")),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// committed runs the post-commit side effects of a mutation on market.
func (e *Engine) committed(ctx context.Context, market domain.Address, ev domain.Event) {
	if e.cache != nil {
		if err := e.cache.Invalidate(ctx, market); err != nil {
			e.logger.WarnContext(ctx, "engine: cache invalidate failed",
				slog.String("market", market.Hex()),
				slog.String("error", err.Error()),
			)
		}
	}
	if ev != nil && e.events != nil {
		e.events.Publish(ctx, ev)
	}
}

// loadPosition returns the trader's position, or a fresh one when none has
// been created yet.
func loadPosition(ctx context.Context, tx domain.LedgerTx, market, trader domain.Address) (domain.Position, error) {
	p, err := tx.GetPosition(ctx, market, trader)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.NewPosition(market, trader), nil
	}
	return p, err
}

func checkURL(u string) error {
	if len(u) > domain.MaxURLLen {
		return fmt.Errorf("%w: %d bytes", domain.ErrURLTooLong, len(u))
	}
	return nil
}
