package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/hyperlocal/internal/amm"
	"github.com/alanyoungcy/hyperlocal/internal/domain"
	"github.com/alanyoungcy/hyperlocal/internal/uint128"
)

// OrderParams describes a deposit into one side of a market.
type OrderParams struct {
	Market       domain.Address
	Trader       domain.Address
	Side         domain.Outcome
	Amount       uint64
	MinSharesOut uint128.Uint128
}

// OrderResult reports a committed order.
type OrderResult struct {
	Market   domain.Market   `json:"market"`
	Position domain.Position `json:"position"`
	Minted   uint128.Uint128 `json:"minted"`
	Sequence uint64          `json:"sequence"`
}

// PlaceOrder transfers amount from the trader into the market vault and
// mints shares on the chosen side. Eligibility is checked before any
// mutation; a slippage failure rolls the transfer back with everything else.
func (e *Engine) PlaceOrder(ctx context.Context, p OrderParams) (OrderResult, error) {
	if !p.Side.IsSide() {
		return OrderResult{}, fmt.Errorf("engine: place order: %w", domain.ErrInvalidSide)
	}

	now := e.now().UTC()
	var res OrderResult
	err := e.ledger.Atomic(ctx, func(tx domain.LedgerTx) error {
		m, err := tx.GetMarket(ctx, p.Market)
		if err != nil {
			return err
		}

		cred, err := tx.GetCredential(ctx, p.Trader)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrLocationNotVerified
		}
		if err != nil {
			return err
		}
		if err := cred.Authorize(m.Region); err != nil {
			return err
		}
		if m.Resolved {
			return domain.ErrAlreadyResolved
		}
		if m.ClosedAt(now) {
			return domain.ErrMarketClosed
		}

		if err := tx.Transfer(ctx, domain.Transfer{
			From:      domain.TokenAccountAddress(p.Trader, m.Asset),
			To:        m.Vault,
			Authority: p.Trader,
			Amount:    p.Amount,
		}); err != nil {
			return err
		}

		next, minted, err := amm.Apply(m, p.Side, p.Amount)
		if err != nil {
			return err
		}
		if minted.Lt(p.MinSharesOut) {
			return fmt.Errorf("%w: minted %s < min %s", domain.ErrSlippageExceeded, minted, p.MinSharesOut)
		}

		next.UpdatedAt = now
		if err := tx.UpdateMarket(ctx, next); err != nil {
			return err
		}

		pos, err := loadPosition(ctx, tx, m.Address, p.Trader)
		if err != nil {
			return err
		}
		if err := pos.Credit(p.Side, minted); err != nil {
			return err
		}
		pos.UpdatedAt = now
		if err := tx.PutPosition(ctx, pos); err != nil {
			return err
		}

		seq, err := tx.NextSequence(ctx)
		if err != nil {
			return err
		}
		res = OrderResult{Market: next, Position: pos, Minted: minted, Sequence: seq}
		return nil
	})
	if err != nil {
		return OrderResult{}, fmt.Errorf("engine: place order: %w", err)
	}

	e.logger.DebugContext(ctx, "engine: order placed",
		slog.String("market", p.Market.Hex()),
		slog.String("trader", p.Trader.Hex()),
		slog.String("side", p.Side.String()),
		slog.Uint64("amount", p.Amount),
		slog.String("minted", res.Minted.String()),
		slog.Uint64("sequence", res.Sequence),
	)
	e.committed(ctx, p.Market, domain.OrderPlaced{
		Trader:    p.Trader,
		Market:    p.Market,
		Side:      p.Side,
		Amount:    p.Amount,
		Minted:    res.Minted,
		Sequence:  res.Sequence,
		Timestamp: now,
	})
	return res, nil
}
