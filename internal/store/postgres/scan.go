package postgres

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/alanyoungcy/hyperlocal/internal/uint128"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx so row helpers can
// run inside or outside an atomic unit.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// bytes32 scans a BYTEA column into a fixed 32-byte identifier.
type bytes32 struct{ dst *[32]byte }

func (b bytes32) Scan(src any) error {
	raw, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("bytes32: unexpected type %T", src)
	}
	if len(raw) != 32 {
		return fmt.Errorf("bytes32: want 32 bytes, got %d", len(raw))
	}
	copy(b.dst[:], raw)
	return nil
}

// numeric128 scans a NUMERIC(39,0) column selected as text.
type numeric128 struct{ dst *uint128.Uint128 }

func (n numeric128) Scan(src any) error {
	s, ok := src.(string)
	if !ok {
		return fmt.Errorf("numeric128: unexpected type %T", src)
	}
	v, err := uint128.Parse(s)
	if err != nil {
		return err
	}
	*n.dst = v
	return nil
}

// numeric64 scans a NUMERIC(20,0) column selected as text.
type numeric64 struct{ dst *uint64 }

func (n numeric64) Scan(src any) error {
	s, ok := src.(string)
	if !ok {
		return fmt.Errorf("numeric64: unexpected type %T", src)
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return err
	}
	*n.dst = v
	return nil
}

func u64(v uint64) string { return strconv.FormatUint(v, 10) }
