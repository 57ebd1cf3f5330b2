package domain

import (
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveAddressDeterministic(t *testing.T) {
	creator := Address{1}
	digest := Digest([]byte("Will it snow?"))

	a := MarketAddress(creator, digest)
	b := MarketAddress(creator, digest)
	assert.Equal(t, a, b)

	other := MarketAddress(Address{2}, digest)
	assert.NotEqual(t, a, other)

	// Tags separate namespaces for identical seeds.
	assert.NotEqual(t, DeriveAddress(TagPosition, a[:], creator[:]), DeriveAddress(TagVault, a[:], creator[:]))
}

func TestParseAddress(t *testing.T) {
	eth := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	p, err := ParseAddress(eth.Hex())
	require.NoError(t, err)
	assert.Equal(t, PrincipalFromEth(eth), p)
	assert.Equal(t, byte(0xaa), p[31])

	full, err := ParseAddress(p.Hex())
	require.NoError(t, err)
	assert.Equal(t, p, full)

	_, err = ParseAddress("0x1234")
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestAddressJSON(t *testing.T) {
	in := struct {
		A Address  `json:"a"`
		R RegionID `json:"r"`
	}{A: Address{0xde, 0xad}, R: RegionID{0x01}}

	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out struct {
		A Address  `json:"a"`
		R RegionID `json:"r"`
	}
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in.A, out.A)
	assert.Equal(t, in.R, out.R)
}

func TestClassOf(t *testing.T) {
	assert.Equal(t, ClassEconomic, ClassOf(ErrAlreadyClaimed))
	assert.Equal(t, ClassAuthorization, ClassOf(ErrWrongRegion))
	assert.Equal(t, ClassInternal, ClassOf(assert.AnError))
	assert.Equal(t, "slippage_exceeded", Code(ErrSlippageExceeded))
}
