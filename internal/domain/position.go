package domain

import (
	"time"

	"github.com/alanyoungcy/hyperlocal/internal/uint128"
)

// Position is a trader's share ledger in one market. It is created lazily on
// the first order; shares only grow and Claimed flips once.
type Position struct {
	Market    Address         `json:"market"`
	Trader    Address         `json:"trader"`
	YesShares uint128.Uint128 `json:"yes_shares"`
	NoShares  uint128.Uint128 `json:"no_shares"`
	Claimed   bool            `json:"claimed"`
	Payout    uint64          `json:"payout"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// NewPosition returns an empty position for trader in market.
func NewPosition(market, trader Address) Position {
	return Position{Market: market, Trader: trader}
}

// Address returns the derived record address.
func (p Position) Address() Address { return PositionAddress(p.Market, p.Trader) }

// SharesFor returns the trader's shares on side.
func (p Position) SharesFor(side Outcome) (uint128.Uint128, error) {
	switch side {
	case OutcomeYes:
		return p.YesShares, nil
	case OutcomeNo:
		return p.NoShares, nil
	default:
		return uint128.Zero, ErrInvalidSide
	}
}

// Credit adds minted shares to side.
func (p *Position) Credit(side Outcome, minted uint128.Uint128) error {
	switch side {
	case OutcomeYes:
		v, err := p.YesShares.Add(minted)
		if err != nil {
			return ErrMathOverflow
		}
		p.YesShares = v
	case OutcomeNo:
		v, err := p.NoShares.Add(minted)
		if err != nil {
			return ErrMathOverflow
		}
		p.NoShares = v
	default:
		return ErrInvalidSide
	}
	return nil
}
