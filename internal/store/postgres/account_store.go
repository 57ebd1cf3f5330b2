package postgres

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/alanyoungcy/hyperlocal/internal/domain"
)

const accountCols = `id, asset, owner, balance::text`

func scanAccount(row pgx.Row) (domain.TokenAccount, error) {
	var a domain.TokenAccount
	err := row.Scan(
		bytes32{(*[32]byte)(&a.ID)}, bytes32{(*[32]byte)(&a.Asset)},
		bytes32{(*[32]byte)(&a.Owner)}, numeric64{&a.Balance},
	)
	if err != nil {
		return domain.TokenAccount{}, err
	}
	return a, nil
}

func getAccount(ctx context.Context, q querier, id domain.Address, forUpdate bool) (domain.TokenAccount, error) {
	query := `SELECT ` + accountCols + ` FROM token_accounts WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	a, err := scanAccount(q.QueryRow(ctx, query, id[:]))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.TokenAccount{}, fmt.Errorf("postgres: get account %s: %w", id, domain.ErrNotFound)
		}
		return domain.TokenAccount{}, fmt.Errorf("postgres: get account %s: %w", id, err)
	}
	return a, nil
}

func ensureAccount(ctx context.Context, q querier, id, owner, asset domain.Address) (domain.TokenAccount, error) {
	const query = `
		INSERT INTO token_accounts (id, asset, owner, balance)
		VALUES ($1, $2, $3, 0)
		ON CONFLICT (id) DO NOTHING`
	if _, err := q.Exec(ctx, query, id[:], asset[:], owner[:]); err != nil {
		return domain.TokenAccount{}, fmt.Errorf("postgres: ensure account %s: %w", id, err)
	}
	a, err := getAccount(ctx, q, id, true)
	if err != nil {
		return domain.TokenAccount{}, err
	}
	if a.Asset != asset {
		return domain.TokenAccount{}, fmt.Errorf("postgres: account %s: %w", id, domain.ErrAssetMismatch)
	}
	return a, nil
}

func setBalance(ctx context.Context, q querier, a domain.TokenAccount) error {
	const query = `
		UPDATE token_accounts SET balance = $2::text::numeric, updated_at = NOW()
		WHERE id = $1`
	if _, err := q.Exec(ctx, query, a.ID[:], u64(a.Balance)); err != nil {
		return fmt.Errorf("postgres: set balance %s: %w", a.ID, err)
	}
	return nil
}

// transfer locks both accounts in address order so concurrent transfers
// between the same pair cannot deadlock.
func transfer(ctx context.Context, q querier, t domain.Transfer) error {
	first, second := t.From, t.To
	if bytes.Compare(first[:], second[:]) > 0 {
		first, second = second, first
	}
	locked := make(map[domain.Address]domain.TokenAccount, 2)
	for _, id := range []domain.Address{first, second} {
		if _, ok := locked[id]; ok {
			continue
		}
		a, err := getAccount(ctx, q, id, true)
		if err != nil {
			return err
		}
		locked[id] = a
	}

	from, to, err := domain.ApplyTransfer(locked[t.From], locked[t.To], t)
	if err != nil {
		return fmt.Errorf("postgres: transfer %d: %w", t.Amount, err)
	}
	if t.Amount == 0 || t.From == t.To {
		return nil
	}
	if err := setBalance(ctx, q, from); err != nil {
		return err
	}
	return setBalance(ctx, q, to)
}

func getCredential(ctx context.Context, q querier, owner domain.Address) (domain.LocationCredential, error) {
	const query = `
		SELECT owner, is_verified, region, last_verified_seq::text, nullifier
		FROM location_credentials WHERE owner = $1`

	var c domain.LocationCredential
	err := q.QueryRow(ctx, query, owner[:]).Scan(
		bytes32{(*[32]byte)(&c.Owner)}, &c.IsVerified, bytes32{(*[32]byte)(&c.Region)},
		numeric64{&c.LastVerifiedSeq}, bytes32{(*[32]byte)(&c.Nullifier)},
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.LocationCredential{}, fmt.Errorf("postgres: get credential %s: %w", owner, domain.ErrNotFound)
		}
		return domain.LocationCredential{}, fmt.Errorf("postgres: get credential %s: %w", owner, err)
	}
	return c, nil
}

// GetAccount retrieves a token account by id.
func (s *Store) GetAccount(ctx context.Context, id domain.Address) (domain.TokenAccount, error) {
	return getAccount(ctx, s.pool, id, false)
}
