// Package amm implements the dynamic-parimutuel bonding curve that prices
// outcome shares, and the pro-rata settlement payout.
//
// A deposit of amount into side S sets S's share count to
//
//	isqrt(pool_after² − other²)
//
// where pool_after is the collateral pool after the deposit and other is the
// opposing share count floored to one. Early backers of a side therefore
// receive more shares per unit deposited; the price converges as the pool
// grows. All arithmetic is checked and fails closed.
package amm

import (
	"errors"

	"github.com/alanyoungcy/hyperlocal/internal/domain"
	"github.com/alanyoungcy/hyperlocal/internal/uint128"
)

// Issue is the result of pricing a deposit.
type Issue struct {
	// Shares is the new share count of the deposited side.
	Shares uint128.Uint128
	// Minted is Shares minus the previous count.
	Minted uint128.Uint128
	// PoolAfter is the collateral pool including the deposit.
	PoolAfter uint64
}

// Mint prices a deposit of amount into a side currently holding own shares
// while the opposing side holds other shares. A zero amount mints nothing.
func Mint(totalPool, amount uint64, own, other uint128.Uint128) (Issue, error) {
	if amount == 0 {
		return Issue{Shares: own, PoolAfter: totalPool}, nil
	}
	if totalPool > ^uint64(0)-amount {
		return Issue{}, domain.ErrMathOverflow
	}
	poolAfter := totalPool + amount

	p := uint128.From64(poolAfter)
	o := other.Max1()

	pSq, err := p.Mul(p)
	if err != nil {
		return Issue{}, mathErr(err)
	}
	oSq, err := o.Mul(o)
	if err != nil {
		return Issue{}, mathErr(err)
	}
	radicand, err := pSq.Sub(oSq)
	if err != nil {
		return Issue{}, mathErr(err)
	}
	shares := radicand.Sqrt()

	minted, err := shares.Sub(own)
	if err != nil {
		return Issue{}, mathErr(err)
	}
	return Issue{Shares: shares, Minted: minted, PoolAfter: poolAfter}, nil
}

// Payout returns floor(userShares × totalPool / winningTotal). The product
// is formed at 256 bits so it cannot overflow; the result must fit in 64
// bits. Floor rounding keeps the sum of all payouts at or below totalPool.
func Payout(userShares, winningTotal uint128.Uint128, totalPool uint64) (uint64, error) {
	if winningTotal.IsZero() {
		return 0, domain.ErrNoWinningLiquidity
	}
	q, err := uint128.MulDiv(userShares, uint128.From64(totalPool), winningTotal)
	if err != nil {
		return 0, mathErr(err)
	}
	out, err := q.Uint64()
	if err != nil {
		return 0, mathErr(err)
	}
	return out, nil
}

func mathErr(err error) error {
	switch {
	case errors.Is(err, uint128.ErrOverflow):
		return domain.ErrMathOverflow
	case errors.Is(err, uint128.ErrUnderflow):
		return domain.ErrMathUnderflow
	case errors.Is(err, uint128.ErrCastOverflow):
		return domain.ErrCastOverflow
	case errors.Is(err, uint128.ErrDivideByZero):
		return domain.ErrNoWinningLiquidity
	default:
		return err
	}
}
