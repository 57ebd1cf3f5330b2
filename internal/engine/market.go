package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/hyperlocal/internal/domain"
	"github.com/alanyoungcy/hyperlocal/internal/uint128"
)

// CreateMarketParams describes a new market.
type CreateMarketParams struct {
	Creator      domain.Address
	Region       domain.RegionID
	Question     string
	CloseTime    int64
	ManifestURL  string
	ManifestHash domain.Hash
	Asset        domain.Address
	Resolver     domain.Address
}

// CreateMarket allocates the market record at its derived address and opens
// its vault. Both pools start at the bootstrap prior of one share.
func (e *Engine) CreateMarket(ctx context.Context, p CreateMarketParams) (domain.Market, error) {
	if len(p.Question) > domain.MaxQuestionLen {
		return domain.Market{}, fmt.Errorf("engine: create market: %w", domain.ErrQuestionTooLong)
	}
	if err := checkURL(p.ManifestURL); err != nil {
		return domain.Market{}, fmt.Errorf("engine: create market: %w", err)
	}

	now := e.now().UTC()
	digest := domain.Digest([]byte(p.Question))
	addr := domain.MarketAddress(p.Creator, digest)
	m := domain.Market{
		Address:        addr,
		Region:         p.Region,
		Question:       p.Question,
		QuestionDigest: digest,
		CloseTime:      p.CloseTime,
		Outcome:        domain.OutcomeNone,
		Asset:          p.Asset,
		Vault:          domain.VaultAddress(addr, p.Asset),
		Resolver:       p.Resolver,
		Creator:        p.Creator,
		YesShares:      uint128.One,
		NoShares:       uint128.One,
		ManifestURL:    p.ManifestURL,
		ManifestHash:   p.ManifestHash,
		Status:         domain.StatusOpen,
		AgentOutcome:   domain.OutcomeNone,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := m.Validate(); err != nil {
		return domain.Market{}, fmt.Errorf("engine: create market: %w", err)
	}

	err := e.ledger.Atomic(ctx, func(tx domain.LedgerTx) error {
		if err := tx.InsertMarket(ctx, m); err != nil {
			return err
		}
		// The market address is the vault's signing capability.
		if _, err := tx.EnsureAccount(ctx, m.Vault, m.Address, m.Asset); err != nil {
			return err
		}
		return tx.Audit(ctx, domain.EventMarketCreated, map[string]any{
			"market":   m.Address.Hex(),
			"creator":  m.Creator.Hex(),
			"resolver": m.Resolver.Hex(),
			"region":   m.Region.Hex(),
		})
	})
	if err != nil {
		return domain.Market{}, fmt.Errorf("engine: create market: %w", err)
	}

	e.logger.InfoContext(ctx, "engine: market created",
		slog.String("market", m.Address.Hex()),
		slog.Int64("close_time", m.CloseTime),
	)
	e.committed(ctx, m.Address, domain.MarketCreated{
		Market:    m.Address,
		Creator:   m.Creator,
		Region:    m.Region,
		Question:  m.Question,
		CloseTime: m.CloseTime,
		Timestamp: now,
	})
	return m, nil
}
