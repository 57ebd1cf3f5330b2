package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/hyperlocal/internal/domain"
)

// Store implements domain.Store on PostgreSQL. Atomic units run in a single
// transaction and read rows with FOR UPDATE.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Atomic runs fn in a transaction, committing only when fn returns nil.
func (s *Store) Atomic(ctx context.Context, fn func(tx domain.LedgerTx) error) error {
	pgTx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = pgTx.Rollback(ctx) }()

	if err := fn(&ledgerTx{tx: pgTx}); err != nil {
		return err
	}
	if err := pgTx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

type ledgerTx struct {
	tx pgx.Tx
}

func (t *ledgerTx) InsertMarket(ctx context.Context, m domain.Market) error {
	return insertMarket(ctx, t.tx, m)
}

func (t *ledgerTx) GetMarket(ctx context.Context, addr domain.Address) (domain.Market, error) {
	return getMarket(ctx, t.tx, addr, true)
}

func (t *ledgerTx) UpdateMarket(ctx context.Context, m domain.Market) error {
	return updateMarket(ctx, t.tx, m)
}

func (t *ledgerTx) GetPosition(ctx context.Context, market, trader domain.Address) (domain.Position, error) {
	return getPosition(ctx, t.tx, market, trader, true)
}

func (t *ledgerTx) PutPosition(ctx context.Context, p domain.Position) error {
	return putPosition(ctx, t.tx, p)
}

func (t *ledgerTx) GetCredential(ctx context.Context, owner domain.Address) (domain.LocationCredential, error) {
	return getCredential(ctx, t.tx, owner)
}

func (t *ledgerTx) EnsureAccount(ctx context.Context, id, owner, asset domain.Address) (domain.TokenAccount, error) {
	return ensureAccount(ctx, t.tx, id, owner, asset)
}

func (t *ledgerTx) Transfer(ctx context.Context, tr domain.Transfer) error {
	return transfer(ctx, t.tx, tr)
}

func (t *ledgerTx) NextSequence(ctx context.Context) (uint64, error) {
	var v int64
	err := t.tx.QueryRow(ctx,
		`UPDATE ledger_sequence SET value = value + 1 WHERE id = 1 RETURNING value`,
	).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("postgres: next sequence: %w", err)
	}
	return uint64(v), nil
}

func (t *ledgerTx) Audit(ctx context.Context, event string, detail map[string]any) error {
	return logAudit(ctx, t.tx, event, detail)
}

var _ domain.Store = (*Store)(nil)
