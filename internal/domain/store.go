package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// MarketFilter narrows ListMarkets.
type MarketFilter struct {
	Status       *MarketStatus
	ClosedBefore *time.Time
	ListOpts
}

// Ledger runs state-mutating operations atomically. If fn returns an error
// every write made through the transaction, transfers included, is
// discarded.
type Ledger interface {
	Atomic(ctx context.Context, fn func(tx LedgerTx) error) error
}

// LedgerTx is the view of durable state inside one atomic unit. Reads lock
// the rows they return until the unit ends.
type LedgerTx interface {
	InsertMarket(ctx context.Context, m Market) error
	GetMarket(ctx context.Context, addr Address) (Market, error)
	UpdateMarket(ctx context.Context, m Market) error

	GetPosition(ctx context.Context, market, trader Address) (Position, error)
	PutPosition(ctx context.Context, p Position) error

	GetCredential(ctx context.Context, owner Address) (LocationCredential, error)

	// EnsureAccount returns the token account at id, opening it for owner
	// and asset with a zero balance when missing.
	EnsureAccount(ctx context.Context, id, owner, asset Address) (TokenAccount, error)
	Transfer(ctx context.Context, t Transfer) error

	NextSequence(ctx context.Context) (uint64, error)
	Audit(ctx context.Context, event string, detail map[string]any) error
}

// MarketQuery is the read side used outside transactions.
type MarketQuery interface {
	GetMarket(ctx context.Context, addr Address) (Market, error)
	ListMarkets(ctx context.Context, f MarketFilter) ([]Market, error)
	GetPosition(ctx context.Context, market, trader Address) (Position, error)
	ListPositions(ctx context.Context, market Address, opts ListOpts) ([]Position, error)
	GetAccount(ctx context.Context, id Address) (TokenAccount, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}

// Store is the full persistence surface.
type Store interface {
	Ledger
	MarketQuery
	AuditStore
}
