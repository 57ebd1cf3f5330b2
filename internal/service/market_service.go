package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/hyperlocal/internal/amm"
	"github.com/alanyoungcy/hyperlocal/internal/domain"
)

// MaxListLimit caps page sizes on the read side.
const MaxListLimit = 200

// MarketService serves market and position reads. Market views go through
// the cache; positions and accounts are read straight from the store.
type MarketService struct {
	query  domain.MarketQuery
	cache  domain.MarketCache
	logger *slog.Logger
}

// NewMarketService creates a MarketService. cache may be nil.
func NewMarketService(
	query domain.MarketQuery,
	cache domain.MarketCache,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		query:  query,
		cache:  cache,
		logger: logger,
	}
}

// GetMarket retrieves a market, checking the cache first and falling back to
// the persistent store on a miss.
func (s *MarketService) GetMarket(ctx context.Context, addr domain.Address) (domain.Market, error) {
	if s.cache != nil {
		m, err := s.cache.Get(ctx, addr)
		if err == nil {
			return m, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "market_service: cache get failed",
				slog.String("market", addr.Hex()),
				slog.String("error", err.Error()),
			)
		}
	}

	m, err := s.query.GetMarket(ctx, addr)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: get market %s: %w", addr, err)
	}

	// Back-fill cache; log but do not fail on cache write errors.
	if s.cache != nil {
		if cacheErr := s.cache.Set(ctx, m); cacheErr != nil {
			s.logger.WarnContext(ctx, "market_service: cache set failed",
				slog.String("market", addr.Hex()),
				slog.String("error", cacheErr.Error()),
			)
		}
	}
	return m, nil
}

// ListMarkets returns markets from the persistent store.
func (s *MarketService) ListMarkets(ctx context.Context, f domain.MarketFilter) ([]domain.Market, error) {
	f.ListOpts = clampList(f.ListOpts)
	markets, err := s.query.ListMarkets(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("market_service: list markets: %w", err)
	}
	return markets, nil
}

// GetPosition returns a trader's position in a market.
func (s *MarketService) GetPosition(ctx context.Context, market, trader domain.Address) (domain.Position, error) {
	p, err := s.query.GetPosition(ctx, market, trader)
	if err != nil {
		return domain.Position{}, fmt.Errorf("market_service: get position: %w", err)
	}
	return p, nil
}

// ListPositions returns the positions held in a market.
func (s *MarketService) ListPositions(ctx context.Context, market domain.Address, opts domain.ListOpts) ([]domain.Position, error) {
	if _, err := s.GetMarket(ctx, market); err != nil {
		return nil, err
	}
	positions, err := s.query.ListPositions(ctx, market, clampList(opts))
	if err != nil {
		return nil, fmt.Errorf("market_service: list positions: %w", err)
	}
	return positions, nil
}

// GetAccount returns a token account.
func (s *MarketService) GetAccount(ctx context.Context, id domain.Address) (domain.TokenAccount, error) {
	a, err := s.query.GetAccount(ctx, id)
	if err != nil {
		return domain.TokenAccount{}, fmt.Errorf("market_service: get account: %w", err)
	}
	return a, nil
}

// Quote previews an order against the current pools without mutating
// anything. It reads the store directly so the preview is never stale.
func (s *MarketService) Quote(ctx context.Context, market domain.Address, side domain.Outcome, amount uint64) (amm.Quote, error) {
	m, err := s.query.GetMarket(ctx, market)
	if err != nil {
		return amm.Quote{}, fmt.Errorf("market_service: quote: %w", err)
	}
	q, err := amm.QuoteOrder(m, side, amount)
	if err != nil {
		return amm.Quote{}, fmt.Errorf("market_service: quote: %w", err)
	}
	return q, nil
}

func clampList(opts domain.ListOpts) domain.ListOpts {
	if opts.Limit <= 0 || opts.Limit > MaxListLimit {
		opts.Limit = MaxListLimit
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	return opts
}
