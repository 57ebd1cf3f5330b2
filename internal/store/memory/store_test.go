package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hyperlocal/internal/domain"
	"github.com/alanyoungcy/hyperlocal/internal/uint128"
)

func TestAtomicRollsBackEverything(t *testing.T) {
	ctx := context.Background()
	s := New()
	asset := domain.Address{0xa5}
	alice := domain.Address{1}
	vaultOwner := domain.Address{2}
	from := s.Fund(alice, asset, 100)
	vault := domain.VaultAddress(vaultOwner, asset)

	boom := errors.New("boom")
	err := s.Atomic(ctx, func(tx domain.LedgerTx) error {
		_, err := tx.EnsureAccount(ctx, vault, vaultOwner, asset)
		require.NoError(t, err)
		require.NoError(t, tx.Transfer(ctx, domain.Transfer{From: from, To: vault, Authority: alice, Amount: 60}))
		require.NoError(t, tx.InsertMarket(ctx, domain.Market{Address: domain.Address{9}, YesShares: uint128.One, NoShares: uint128.One}))
		require.NoError(t, tx.Audit(ctx, "test", nil))
		_, err = tx.NextSequence(ctx)
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	acct, err := s.GetAccount(ctx, from)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), acct.Balance)

	_, err = s.GetAccount(ctx, vault)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = s.GetMarket(ctx, domain.Address{9})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	entries, err := s.List(ctx, domain.ListOpts{})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAtomicCommits(t *testing.T) {
	ctx := context.Background()
	s := New()
	m := domain.Market{Address: domain.Address{9}, YesShares: uint128.One, NoShares: uint128.One}

	var seq uint64
	err := s.Atomic(ctx, func(tx domain.LedgerTx) error {
		if err := tx.InsertMarket(ctx, m); err != nil {
			return err
		}
		got, err := tx.GetMarket(ctx, m.Address)
		require.NoError(t, err)
		assert.Equal(t, m, got)

		seq, err = tx.NextSequence(ctx)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq)

	err = s.Atomic(ctx, func(tx domain.LedgerTx) error {
		return tx.InsertMarket(ctx, m)
	})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	markets, err := s.ListMarkets(ctx, domain.MarketFilter{})
	require.NoError(t, err)
	assert.Len(t, markets, 1)
}

func TestListMarketsFilter(t *testing.T) {
	ctx := context.Background()
	s := New()
	resolved := domain.StatusResolved
	require.NoError(t, s.Atomic(ctx, func(tx domain.LedgerTx) error {
		for i, st := range []domain.MarketStatus{domain.StatusOpen, domain.StatusResolved, domain.StatusDisputed} {
			m := domain.Market{Address: domain.Address{byte(i + 1)}, Status: st, CloseTime: int64(100 * (i + 1))}
			if err := tx.InsertMarket(ctx, m); err != nil {
				return err
			}
		}
		return nil
	}))

	out, err := s.ListMarkets(ctx, domain.MarketFilter{Status: &resolved})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, domain.Address{2}, out[0].Address)

	out, err = s.ListMarkets(ctx, domain.MarketFilter{ListOpts: domain.ListOpts{Limit: 2}})
	require.NoError(t, err)
	assert.Len(t, out, 2)

	out, err = s.ListMarkets(ctx, domain.MarketFilter{ListOpts: domain.ListOpts{Offset: 5}})
	require.NoError(t, err)
	assert.Empty(t, out)
}
