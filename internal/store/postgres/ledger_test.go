package postgres

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hyperlocal/internal/domain"
	"github.com/alanyoungcy/hyperlocal/internal/engine"
	"github.com/alanyoungcy/hyperlocal/internal/uint128"
)

// testDSNEnv names a disposable database for the ledger tests. They are
// skipped when it is unset.
const testDSNEnv = "HYPERLOCAL_TEST_POSTGRES_DSN"

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv(testDSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", testDSNEnv)
	}
	ctx := context.Background()
	c, err := New(ctx, ClientConfig{DSN: dsn, MaxConns: 16})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	require.NoError(t, c.RunMigrations(ctx))
	return c.Store()
}

func TestConcurrentClaimsPayOnce(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng := engine.New(st, nil, engine.Config{}, logger)

	var (
		asset    = domain.Address{0xa5}
		creator  = domain.Address{0xc0}
		resolver = domain.Address{0xd0}
		alice    = domain.Address{0x01}
	)
	m, err := eng.CreateMarket(ctx, engine.CreateMarketParams{
		Creator:   creator,
		Region:    domain.RegionID{0x11},
		Question:  fmt.Sprintf("concurrent claims %d", time.Now().UnixNano()),
		CloseTime: time.Now().Add(time.Hour).Unix(),
		Asset:     asset,
		Resolver:  resolver,
	})
	require.NoError(t, err)

	// Seed a resolved market: alice holds 60 of 100 winning shares of a
	// 150 unit pool.
	require.NoError(t, st.Atomic(ctx, func(tx domain.LedgerTx) error {
		m.YesShares = uint128.From64(100)
		m.NoShares = uint128.From64(40)
		m.TotalPool = 150
		m.Outcome = domain.OutcomeYes
		m.Resolved = true
		m.Status = domain.StatusResolved
		if err := tx.UpdateMarket(ctx, m); err != nil {
			return err
		}
		vault, err := tx.EnsureAccount(ctx, m.Vault, m.Address, asset)
		if err != nil {
			return err
		}
		vault.Balance = 150
		if err := setBalance(ctx, tx.(*ledgerTx).tx, vault); err != nil {
			return err
		}
		pos := domain.NewPosition(m.Address, alice)
		pos.YesShares = uint128.From64(60)
		return tx.PutPosition(ctx, pos)
	}))

	const n = 32
	errs := make([]error, n)
	payouts := make([]uint64, n)
	gate := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-gate
			res, err := eng.Claim(ctx, m.Address, alice)
			errs[i], payouts[i] = err, res.Payout
		}(i)
	}
	close(gate)
	wg.Wait()

	var wins, dupes int
	var paid uint64
	for i, err := range errs {
		switch {
		case err == nil:
			wins++
			paid += payouts[i]
		case errors.Is(err, domain.ErrAlreadyClaimed):
			dupes++
		default:
			t.Fatalf("unexpected claim error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, n-1, dupes)
	assert.Equal(t, uint64(90), paid)

	vault, err := st.GetAccount(ctx, m.Vault)
	require.NoError(t, err)
	assert.Equal(t, uint64(60), vault.Balance)

	got, err := st.GetMarket(ctx, m.Address)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), got.ClaimCount)
}
