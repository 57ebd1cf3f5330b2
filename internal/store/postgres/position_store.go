package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/alanyoungcy/hyperlocal/internal/domain"
)

const positionCols = `market, trader, yes_shares::text, no_shares::text,
	claimed, payout::text, updated_at`

func scanPosition(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	err := row.Scan(
		bytes32{(*[32]byte)(&p.Market)}, bytes32{(*[32]byte)(&p.Trader)},
		numeric128{&p.YesShares}, numeric128{&p.NoShares},
		&p.Claimed, numeric64{&p.Payout}, &p.UpdatedAt,
	)
	if err != nil {
		return domain.Position{}, err
	}
	return p, nil
}

func getPosition(ctx context.Context, q querier, market, trader domain.Address, forUpdate bool) (domain.Position, error) {
	query := `SELECT ` + positionCols + ` FROM positions WHERE market = $1 AND trader = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	p, err := scanPosition(q.QueryRow(ctx, query, market[:], trader[:]))
	if err != nil {
		addr := domain.PositionAddress(market, trader)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, fmt.Errorf("postgres: get position %s: %w", addr, domain.ErrNotFound)
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %s: %w", addr, err)
	}
	return p, nil
}

// putPosition inserts the position or replaces its share counters.
func putPosition(ctx context.Context, q querier, p domain.Position) error {
	const query = `
		INSERT INTO positions (
			market, trader, address, yes_shares, no_shares, claimed, payout, updated_at
		) VALUES (
			$1, $2, $3, $4::text::numeric, $5::text::numeric, $6, $7::text::numeric, $8
		)
		ON CONFLICT (market, trader) DO UPDATE SET
			yes_shares = EXCLUDED.yes_shares,
			no_shares  = EXCLUDED.no_shares,
			claimed    = EXCLUDED.claimed,
			payout     = EXCLUDED.payout,
			updated_at = EXCLUDED.updated_at`

	addr := p.Address()
	_, err := q.Exec(ctx, query,
		p.Market[:], p.Trader[:], addr[:],
		p.YesShares.String(), p.NoShares.String(),
		p.Claimed, u64(p.Payout), p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: put position %s: %w", addr, err)
	}
	return nil
}

// GetPosition retrieves a trader's position in a market.
func (s *Store) GetPosition(ctx context.Context, market, trader domain.Address) (domain.Position, error) {
	return getPosition(ctx, s.pool, market, trader, false)
}

// ListPositions returns the positions held in a market ordered by trader.
func (s *Store) ListPositions(ctx context.Context, market domain.Address, opts domain.ListOpts) ([]domain.Position, error) {
	query := `SELECT ` + positionCols + ` FROM positions WHERE market = $1 ORDER BY trader ASC`
	args := []any{market[:]}
	argIdx := 2

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions: %w", err)
	}
	defer rows.Close()

	positions := make([]domain.Position, 0)
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan position: %w", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list positions rows: %w", err)
	}
	return positions, nil
}
