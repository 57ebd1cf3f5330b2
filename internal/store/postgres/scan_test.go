package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hyperlocal/internal/domain"
	"github.com/alanyoungcy/hyperlocal/internal/uint128"
)

func TestDSN(t *testing.T) {
	assert.Equal(t, "postgres://u:p@db:5432/hl?sslmode=disable", DSN(ClientConfig{
		Host: "db", Database: "hl", User: "u", Password: "p",
	}))
	assert.Equal(t, "postgres://x", DSN(ClientConfig{DSN: "postgres://x", Host: "ignored"}))
}

func TestBytes32Scan(t *testing.T) {
	var addr domain.Address
	raw := make([]byte, 32)
	raw[31] = 7
	require.NoError(t, bytes32{(*[32]byte)(&addr)}.Scan(raw))
	assert.Equal(t, byte(7), addr[31])

	assert.Error(t, bytes32{(*[32]byte)(&addr)}.Scan(raw[:20]))
	assert.Error(t, bytes32{(*[32]byte)(&addr)}.Scan("not bytes"))
}

func TestNumericScan(t *testing.T) {
	var v uint128.Uint128
	require.NoError(t, numeric128{&v}.Scan("340282366920938463463374607431768211455"))
	assert.True(t, v.Eq(uint128.Max))
	assert.Error(t, numeric128{&v}.Scan("340282366920938463463374607431768211456"))

	var n uint64
	require.NoError(t, numeric64{&n}.Scan("18446744073709551615"))
	assert.Equal(t, ^uint64(0), n)
	assert.Equal(t, "18446744073709551615", u64(n))
	assert.Error(t, numeric64{&n}.Scan(int64(3)))
}
