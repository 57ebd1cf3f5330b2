package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/alanyoungcy/hyperlocal/internal/domain"
)

const marketCols = `address, region, question, question_digest, close_time,
	resolved, outcome, asset, vault, resolver, creator,
	yes_shares::text, no_shares::text, total_pool::text,
	manifest_url, manifest_hash, evidence_url,
	status, agent_outcome, claim_count::text, created_at, updated_at`

// scanMarket scans a single market row into a domain.Market.
func scanMarket(row pgx.Row) (domain.Market, error) {
	var m domain.Market
	var outcome, status, agentOutcome int16
	err := row.Scan(
		bytes32{(*[32]byte)(&m.Address)}, bytes32{(*[32]byte)(&m.Region)},
		&m.Question, bytes32{(*[32]byte)(&m.QuestionDigest)}, &m.CloseTime,
		&m.Resolved, &outcome,
		bytes32{(*[32]byte)(&m.Asset)}, bytes32{(*[32]byte)(&m.Vault)},
		bytes32{(*[32]byte)(&m.Resolver)}, bytes32{(*[32]byte)(&m.Creator)},
		numeric128{&m.YesShares}, numeric128{&m.NoShares}, numeric64{&m.TotalPool},
		&m.ManifestURL, bytes32{(*[32]byte)(&m.ManifestHash)}, &m.EvidenceURL,
		&status, &agentOutcome, numeric64{&m.ClaimCount},
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	m.Outcome = domain.Outcome(outcome)
	m.Status = domain.MarketStatus(status)
	m.AgentOutcome = domain.Outcome(agentOutcome)
	return m, nil
}

func insertMarket(ctx context.Context, q querier, m domain.Market) error {
	const query = `
		INSERT INTO markets (
			address, region, question, question_digest, close_time,
			resolved, outcome, asset, vault, resolver, creator,
			yes_shares, no_shares, total_pool,
			manifest_url, manifest_hash, evidence_url,
			status, agent_outcome, claim_count, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10, $11,
			$12::text::numeric, $13::text::numeric, $14::text::numeric,
			$15, $16, $17,
			$18, $19, $20::text::numeric, $21, $22
		)`

	_, err := q.Exec(ctx, query,
		m.Address[:], m.Region[:], m.Question, m.QuestionDigest[:], m.CloseTime,
		m.Resolved, int16(m.Outcome), m.Asset[:], m.Vault[:], m.Resolver[:], m.Creator[:],
		m.YesShares.String(), m.NoShares.String(), u64(m.TotalPool),
		m.ManifestURL, m.ManifestHash[:], m.EvidenceURL,
		int16(m.Status), int16(m.AgentOutcome), u64(m.ClaimCount), m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("postgres: insert market %s: %w", m.Address, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("postgres: insert market %s: %w", m.Address, err)
	}
	return nil
}

// updateMarket rewrites the mutable columns. Identity, region, question and
// bindings never change after creation.
func updateMarket(ctx context.Context, q querier, m domain.Market) error {
	const query = `
		UPDATE markets SET
			resolved      = $2,
			outcome       = $3,
			yes_shares    = $4::text::numeric,
			no_shares     = $5::text::numeric,
			total_pool    = $6::text::numeric,
			evidence_url  = $7,
			status        = $8,
			agent_outcome = $9,
			claim_count   = $10::text::numeric,
			updated_at    = $11
		WHERE address = $1`

	tag, err := q.Exec(ctx, query,
		m.Address[:], m.Resolved, int16(m.Outcome),
		m.YesShares.String(), m.NoShares.String(), u64(m.TotalPool),
		m.EvidenceURL, int16(m.Status), int16(m.AgentOutcome),
		u64(m.ClaimCount), m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update market %s: %w", m.Address, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: update market %s: %w", m.Address, domain.ErrNotFound)
	}
	return nil
}

func getMarket(ctx context.Context, q querier, addr domain.Address, forUpdate bool) (domain.Market, error) {
	query := `SELECT ` + marketCols + ` FROM markets WHERE address = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	m, err := scanMarket(q.QueryRow(ctx, query, addr[:]))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", addr, domain.ErrNotFound)
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", addr, err)
	}
	return m, nil
}

// GetMarket retrieves a market by its address.
func (s *Store) GetMarket(ctx context.Context, addr domain.Address) (domain.Market, error) {
	return getMarket(ctx, s.pool, addr, false)
}

// ListMarkets returns markets newest first, optionally filtered by status
// and by close time.
func (s *Store) ListMarkets(ctx context.Context, f domain.MarketFilter) ([]domain.Market, error) {
	query := `SELECT ` + marketCols + ` FROM markets WHERE 1=1`
	args := []any{}
	argIdx := 1

	if f.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, int16(*f.Status))
		argIdx++
	}
	if f.ClosedBefore != nil {
		query += fmt.Sprintf(" AND close_time < $%d", argIdx)
		args = append(args, f.ClosedBefore.Unix())
		argIdx++
	}

	query += " ORDER BY created_at DESC, address ASC"

	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, f.Limit)
		argIdx++
	}
	if f.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, f.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	markets := make([]domain.Market, 0)
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list markets rows: %w", err)
	}
	return markets, nil
}
