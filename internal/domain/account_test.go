package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyTransfer(t *testing.T) {
	asset := Address{9}
	alice := TokenAccount{ID: Address{1}, Owner: Address{0xa}, Asset: asset, Balance: 100}
	vault := TokenAccount{ID: Address{2}, Owner: Address{0xb}, Asset: asset}

	from, to, err := ApplyTransfer(alice, vault, Transfer{From: alice.ID, To: vault.ID, Authority: alice.Owner, Amount: 40})
	require.NoError(t, err)
	assert.Equal(t, uint64(60), from.Balance)
	assert.Equal(t, uint64(40), to.Balance)

	_, _, err = ApplyTransfer(alice, vault, Transfer{Authority: vault.Owner, Amount: 1})
	assert.ErrorIs(t, err, ErrTransferUnauthorized)

	_, _, err = ApplyTransfer(alice, vault, Transfer{Authority: alice.Owner, Amount: 101})
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	other := vault
	other.Asset = Address{8}
	_, _, err = ApplyTransfer(alice, other, Transfer{Authority: alice.Owner, Amount: 1})
	assert.ErrorIs(t, err, ErrAssetMismatch)
}

func TestCredentialAuthorize(t *testing.T) {
	region := RegionID{7}
	assert.ErrorIs(t, LocationCredential{Region: region}.Authorize(region), ErrLocationNotVerified)
	assert.ErrorIs(t, LocationCredential{IsVerified: true, Region: RegionID{8}}.Authorize(region), ErrWrongRegion)
	assert.NoError(t, LocationCredential{IsVerified: true, Region: region}.Authorize(region))
}
