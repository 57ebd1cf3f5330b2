package amm

import (
	"github.com/alanyoungcy/hyperlocal/internal/domain"
	"github.com/alanyoungcy/hyperlocal/internal/uint128"
)

// Apply prices a deposit against m and returns the updated market together
// with the number of shares minted. m is not modified.
func Apply(m domain.Market, side domain.Outcome, amount uint64) (domain.Market, uint128.Uint128, error) {
	var own, other uint128.Uint128
	switch side {
	case domain.OutcomeYes:
		own, other = m.YesShares, m.NoShares
	case domain.OutcomeNo:
		own, other = m.NoShares, m.YesShares
	default:
		return m, uint128.Zero, domain.ErrInvalidSide
	}

	is, err := Mint(m.TotalPool, amount, own, other)
	if err != nil {
		return m, uint128.Zero, err
	}

	m.TotalPool = is.PoolAfter
	if side == domain.OutcomeYes {
		m.YesShares = is.Shares
	} else {
		m.NoShares = is.Shares
	}
	return m, is.Minted, nil
}

// Quote previews an order. Price is the marginal collateral per share of
// the deposit, scaled by 1e6.
type Quote struct {
	Side      domain.Outcome  `json:"side"`
	Amount    uint64          `json:"amount"`
	Minted    uint128.Uint128 `json:"minted"`
	PoolAfter uint64          `json:"pool_after"`
	YesShares uint128.Uint128 `json:"yes_shares"`
	NoShares  uint128.Uint128 `json:"no_shares"`
	PriceE6   uint64          `json:"price_e6"`
}

// PriceScale is the fixed-point scale of Quote.PriceE6.
const PriceScale = 1_000_000

// QuoteOrder prices a deposit without committing it.
func QuoteOrder(m domain.Market, side domain.Outcome, amount uint64) (Quote, error) {
	next, minted, err := Apply(m, side, amount)
	if err != nil {
		return Quote{}, err
	}
	q := Quote{
		Side:      side,
		Amount:    amount,
		Minted:    minted,
		PoolAfter: next.TotalPool,
		YesShares: next.YesShares,
		NoShares:  next.NoShares,
	}
	if !minted.IsZero() {
		price, err := uint128.MulDiv(uint128.From64(amount), uint128.From64(PriceScale), minted)
		if err != nil {
			return Quote{}, mathErr(err)
		}
		if q.PriceE6, err = price.Uint64(); err != nil {
			return Quote{}, mathErr(err)
		}
	}
	return q, nil
}
