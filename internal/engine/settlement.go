package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/hyperlocal/internal/amm"
	"github.com/alanyoungcy/hyperlocal/internal/domain"
	"github.com/alanyoungcy/hyperlocal/internal/uint128"
)

const (
	auditClaim             = "claim"
	auditEmergencyWithdraw = "emergency_withdraw"
)

// ClaimResult reports a settled position.
type ClaimResult struct {
	Position domain.Position `json:"position"`
	Payout   uint64          `json:"payout"`
}

// Claim pays the trader floor(shares × total_pool / winning_total) from the
// vault and marks the position claimed. A position holding no winning shares
// is marked claimed with a zero payout.
func (e *Engine) Claim(ctx context.Context, market, trader domain.Address) (ClaimResult, error) {
	now := e.now().UTC()
	var res ClaimResult
	err := e.ledger.Atomic(ctx, func(tx domain.LedgerTx) error {
		m, err := tx.GetMarket(ctx, market)
		if err != nil {
			return err
		}
		if !m.Resolved {
			return domain.ErrNotResolved
		}
		pos, err := tx.GetPosition(ctx, market, trader)
		if err != nil {
			return err
		}
		if pos.Claimed {
			return domain.ErrAlreadyClaimed
		}

		winning, err := m.WinningTotal()
		if err != nil {
			return err
		}
		if winning.IsZero() {
			return domain.ErrNoWinningLiquidity
		}
		shares, err := pos.SharesFor(m.Outcome)
		if err != nil {
			return err
		}
		payout, err := amm.Payout(shares, winning, m.TotalPool)
		if err != nil {
			return err
		}

		if payout > 0 {
			dest := domain.TokenAccountAddress(trader, m.Asset)
			if _, err := tx.EnsureAccount(ctx, dest, trader, m.Asset); err != nil {
				return err
			}
			if err := tx.Transfer(ctx, domain.Transfer{
				From:      m.Vault,
				To:        dest,
				Authority: m.Address,
				Amount:    payout,
			}); err != nil {
				return err
			}
		}

		pos.Claimed = true
		pos.Payout = payout
		pos.UpdatedAt = now
		if err := tx.PutPosition(ctx, pos); err != nil {
			return err
		}
		m.ClaimCount++
		m.UpdatedAt = now
		if err := tx.UpdateMarket(ctx, m); err != nil {
			return err
		}
		res = ClaimResult{Position: pos, Payout: payout}
		return tx.Audit(ctx, auditClaim, map[string]any{
			"market":  m.Address.Hex(),
			"trader":  trader.Hex(),
			"outcome": m.Outcome.String(),
			"shares":  shares.String(),
			"payout":  payout,
		})
	})
	if err != nil {
		return ClaimResult{}, fmt.Errorf("engine: claim: %w", err)
	}

	e.logger.InfoContext(ctx, "engine: payout claimed",
		slog.String("market", market.Hex()),
		slog.String("trader", trader.Hex()),
		slog.Uint64("payout", res.Payout),
	)
	e.committed(ctx, market, domain.PayoutClaimed{
		Market:    market,
		Trader:    trader,
		Payout:    res.Payout,
		Timestamp: now,
	})
	return res, nil
}

// EmergencyWithdraw drains the whole pool to the resolver when the winning
// side is backed only by the bootstrap prior, so no claimant can exist. An
// empty pool is a successful no-op. Returns the amount drained.
func (e *Engine) EmergencyWithdraw(ctx context.Context, market, caller domain.Address) (uint64, error) {
	now := e.now().UTC()
	var drained uint64
	err := e.ledger.Atomic(ctx, func(tx domain.LedgerTx) error {
		m, err := tx.GetMarket(ctx, market)
		if err != nil {
			return err
		}
		if !m.Resolved {
			return domain.ErrNotResolved
		}
		if caller != m.Resolver {
			return domain.ErrUnauthorized
		}
		winning, err := m.WinningTotal()
		if err != nil {
			return err
		}
		if uint128.One.Lt(winning) {
			return fmt.Errorf("%w: winning total %s", domain.ErrEmergencyNotAllowed, winning)
		}
		if m.TotalPool == 0 {
			return nil
		}

		dest := domain.TokenAccountAddress(m.Resolver, m.Asset)
		if _, err := tx.EnsureAccount(ctx, dest, m.Resolver, m.Asset); err != nil {
			return err
		}
		if err := tx.Transfer(ctx, domain.Transfer{
			From:      m.Vault,
			To:        dest,
			Authority: m.Address,
			Amount:    m.TotalPool,
		}); err != nil {
			return err
		}

		drained = m.TotalPool
		m.TotalPool = 0
		m.UpdatedAt = now
		if err := tx.UpdateMarket(ctx, m); err != nil {
			return err
		}
		return tx.Audit(ctx, auditEmergencyWithdraw, map[string]any{
			"market":   m.Address.Hex(),
			"resolver": caller.Hex(),
			"amount":   drained,
		})
	})
	if err != nil {
		return 0, fmt.Errorf("engine: emergency withdraw: %w", err)
	}
	if drained == 0 {
		return 0, nil
	}

	e.logger.WarnContext(ctx, "engine: emergency withdraw",
		slog.String("market", market.Hex()),
		slog.Uint64("amount", drained),
	)
	e.committed(ctx, market, domain.EmergencyWithdrawn{
		Market:    market,
		Resolver:  caller,
		Amount:    drained,
		Timestamp: now,
	})
	return drained, nil
}
