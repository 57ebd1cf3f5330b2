// Package memory provides an in-process implementation of domain.Store. It
// mirrors the Postgres ledger's semantics (atomic units, lazily created rows,
// append-only audit) and backs the memory storage backend and tests.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/hyperlocal/internal/domain"
)

type positionKey struct {
	market domain.Address
	trader domain.Address
}

// Store keeps every record in maps guarded by a single lock. Atomic units
// hold the write lock for their whole duration and stage writes in an
// overlay that is merged only when the unit succeeds.
type Store struct {
	mu sync.RWMutex

	markets     map[domain.Address]domain.Market
	positions   map[positionKey]domain.Position
	credentials map[domain.Address]domain.LocationCredential
	accounts    map[domain.Address]domain.TokenAccount
	audit       []domain.AuditEntry
	sequence    uint64
	now         func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		markets:     make(map[domain.Address]domain.Market),
		positions:   make(map[positionKey]domain.Position),
		credentials: make(map[domain.Address]domain.LocationCredential),
		accounts:    make(map[domain.Address]domain.TokenAccount),
		audit:       make([]domain.AuditEntry, 0, 256),
		now:         time.Now,
	}
}

// -------- Ledger --------

// Atomic runs fn against a staged view of the store.
func (s *Store) Atomic(ctx context.Context, fn func(tx domain.LedgerTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &tx{
		s:         s,
		markets:   make(map[domain.Address]domain.Market),
		positions: make(map[positionKey]domain.Position),
		accounts:  make(map[domain.Address]domain.TokenAccount),
		sequence:  s.sequence,
	}
	if err := fn(t); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for k, v := range t.markets {
		s.markets[k] = v
	}
	for k, v := range t.positions {
		s.positions[k] = v
	}
	for k, v := range t.accounts {
		s.accounts[k] = v
	}
	s.appendAudit(t.audit...)
	s.sequence = t.sequence
	return nil
}

func (s *Store) appendAudit(entries ...domain.AuditEntry) {
	for _, e := range entries {
		e.ID = int64(len(s.audit) + 1)
		s.audit = append(s.audit, e)
	}
}

type tx struct {
	s         *Store
	markets   map[domain.Address]domain.Market
	positions map[positionKey]domain.Position
	accounts  map[domain.Address]domain.TokenAccount
	audit     []domain.AuditEntry
	sequence  uint64
}

func (t *tx) market(addr domain.Address) (domain.Market, bool) {
	if m, ok := t.markets[addr]; ok {
		return m, true
	}
	m, ok := t.s.markets[addr]
	return m, ok
}

func (t *tx) InsertMarket(_ context.Context, m domain.Market) error {
	if _, ok := t.market(m.Address); ok {
		return fmt.Errorf("memory: insert market %s: %w", m.Address, domain.ErrAlreadyExists)
	}
	t.markets[m.Address] = m
	return nil
}

func (t *tx) GetMarket(_ context.Context, addr domain.Address) (domain.Market, error) {
	m, ok := t.market(addr)
	if !ok {
		return domain.Market{}, fmt.Errorf("memory: get market %s: %w", addr, domain.ErrNotFound)
	}
	return m, nil
}

func (t *tx) UpdateMarket(_ context.Context, m domain.Market) error {
	if _, ok := t.market(m.Address); !ok {
		return fmt.Errorf("memory: update market %s: %w", m.Address, domain.ErrNotFound)
	}
	t.markets[m.Address] = m
	return nil
}

func (t *tx) GetPosition(_ context.Context, market, trader domain.Address) (domain.Position, error) {
	k := positionKey{market, trader}
	if p, ok := t.positions[k]; ok {
		return p, nil
	}
	if p, ok := t.s.positions[k]; ok {
		return p, nil
	}
	return domain.Position{}, fmt.Errorf("memory: get position %s: %w", domain.PositionAddress(market, trader), domain.ErrNotFound)
}

func (t *tx) PutPosition(_ context.Context, p domain.Position) error {
	t.positions[positionKey{p.Market, p.Trader}] = p
	return nil
}

func (t *tx) GetCredential(_ context.Context, owner domain.Address) (domain.LocationCredential, error) {
	c, ok := t.s.credentials[owner]
	if !ok {
		return domain.LocationCredential{}, fmt.Errorf("memory: get credential %s: %w", owner, domain.ErrNotFound)
	}
	return c, nil
}

func (t *tx) account(id domain.Address) (domain.TokenAccount, bool) {
	if a, ok := t.accounts[id]; ok {
		return a, true
	}
	a, ok := t.s.accounts[id]
	return a, ok
}

func (t *tx) EnsureAccount(_ context.Context, id, owner, asset domain.Address) (domain.TokenAccount, error) {
	if a, ok := t.account(id); ok {
		if a.Asset != asset {
			return domain.TokenAccount{}, fmt.Errorf("memory: account %s: %w", id, domain.ErrAssetMismatch)
		}
		return a, nil
	}
	a := domain.TokenAccount{ID: id, Owner: owner, Asset: asset}
	t.accounts[id] = a
	return a, nil
}

func (t *tx) Transfer(_ context.Context, tr domain.Transfer) error {
	from, ok := t.account(tr.From)
	if !ok {
		return fmt.Errorf("memory: transfer from %s: %w", tr.From, domain.ErrNotFound)
	}
	to, ok := t.account(tr.To)
	if !ok {
		return fmt.Errorf("memory: transfer to %s: %w", tr.To, domain.ErrNotFound)
	}
	from, to, err := domain.ApplyTransfer(from, to, tr)
	if err != nil {
		return fmt.Errorf("memory: transfer %d: %w", tr.Amount, err)
	}
	t.accounts[from.ID] = from
	t.accounts[to.ID] = to
	return nil
}

func (t *tx) NextSequence(_ context.Context) (uint64, error) {
	t.sequence++
	return t.sequence, nil
}

func (t *tx) Audit(_ context.Context, event string, detail map[string]any) error {
	t.audit = append(t.audit, domain.AuditEntry{Event: event, Detail: detail, CreatedAt: t.s.now().UTC()})
	return nil
}

// -------- MarketQuery --------

func (s *Store) GetMarket(_ context.Context, addr domain.Address) (domain.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.markets[addr]
	if !ok {
		return domain.Market{}, fmt.Errorf("memory: get market %s: %w", addr, domain.ErrNotFound)
	}
	return m, nil
}

func (s *Store) ListMarkets(_ context.Context, f domain.MarketFilter) ([]domain.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Market, 0, len(s.markets))
	for _, m := range s.markets {
		if f.Status != nil && m.Status != *f.Status {
			continue
		}
		if f.ClosedBefore != nil && m.CloseTime >= f.ClosedBefore.Unix() {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return bytes.Compare(out[i].Address[:], out[j].Address[:]) < 0
	})
	return paginate(out, f.ListOpts), nil
}

func (s *Store) GetPosition(_ context.Context, market, trader domain.Address) (domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.positions[positionKey{market, trader}]
	if !ok {
		return domain.Position{}, fmt.Errorf("memory: get position %s: %w", domain.PositionAddress(market, trader), domain.ErrNotFound)
	}
	return p, nil
}

func (s *Store) ListPositions(_ context.Context, market domain.Address, opts domain.ListOpts) ([]domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Position, 0)
	for k, p := range s.positions {
		if k.market == market {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Trader[:], out[j].Trader[:]) < 0
	})
	return paginate(out, opts), nil
}

func (s *Store) GetAccount(_ context.Context, id domain.Address) (domain.TokenAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return domain.TokenAccount{}, fmt.Errorf("memory: get account %s: %w", id, domain.ErrNotFound)
	}
	return a, nil
}

// -------- AuditStore --------

func (s *Store) Log(_ context.Context, event string, detail map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendAudit(domain.AuditEntry{Event: event, Detail: detail, CreatedAt: s.now().UTC()})
	return nil
}

// List returns audit entries newest first.
func (s *Store) List(_ context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.AuditEntry, len(s.audit))
	for i, e := range s.audit {
		out[len(s.audit)-1-i] = e
	}
	return paginate(out, opts), nil
}

// -------- Verifier and custody hooks --------

// SetCredential records a location attestation as the verifier would.
func (s *Store) SetCredential(c domain.LocationCredential) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credentials[c.Owner] = c
}

// Fund credits amount to owner's default token account for asset, opening it
// when missing, and returns the account id.
func (s *Store) Fund(owner, asset domain.Address, amount uint64) domain.Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := domain.TokenAccountAddress(owner, asset)
	a, ok := s.accounts[id]
	if !ok {
		a = domain.TokenAccount{ID: id, Owner: owner, Asset: asset}
	}
	a.Balance += amount
	s.accounts[id] = a
	return id
}

func paginate[T any](items []T, opts domain.ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(items) {
			return []T{}
		}
		items = items[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(items) {
		items = items[:opts.Limit]
	}
	return items
}

var _ domain.Store = (*Store)(nil)
