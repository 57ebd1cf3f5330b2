package crypto

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hyperlocal/internal/domain"
)

// Well-known development key (hardhat account #0).
const testKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func TestSignerAddress(t *testing.T) {
	s, err := NewSigner("0x" + testKey)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"), s.Address())
	assert.Equal(t, domain.PrincipalFromEth(s.Address()), s.Principal())

	_, err = NewSigner("zz")
	assert.Error(t, err)
}

func TestSignAndRecoverRequest(t *testing.T) {
	s, err := NewSigner(testKey)
	require.NoError(t, err)
	body := []byte(`{"side":"yes","amount":"100"}`)

	sig, err := s.SignRequest("post", "/api/markets/0x01/orders", 1_700_000_000, body)
	require.NoError(t, err)
	assert.Len(t, sig, 2+130)

	got, err := RecoverRequest("POST", "/api/markets/0x01/orders", 1_700_000_000, body, sig)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), got)
	require.NoError(t, VerifyRequest(s.Address(), "POST", "/api/markets/0x01/orders", 1_700_000_000, body, sig))

	// any bound field changing breaks verification
	assert.ErrorIs(t, VerifyRequest(s.Address(), "POST", "/api/markets/0x02/orders", 1_700_000_000, body, sig), ErrBadSignature)
	assert.ErrorIs(t, VerifyRequest(s.Address(), "POST", "/api/markets/0x01/orders", 1_700_000_001, body, sig), ErrBadSignature)
	assert.ErrorIs(t, VerifyRequest(s.Address(), "POST", "/api/markets/0x01/orders", 1_700_000_000, []byte(`{}`), sig), ErrBadSignature)
}

func TestRecoverRejectsMalformed(t *testing.T) {
	_, err := RecoverRequest("GET", "/", 1, nil, "0x1234")
	assert.ErrorIs(t, err, ErrBadSignature)

	bad := "0x" + string(make([]byte, 0)) + "zz"
	_, err = RecoverRequest("GET", "/", 1, nil, bad)
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestSignedHeaders(t *testing.T) {
	s, err := NewSigner(testKey)
	require.NoError(t, err)
	h, err := s.SignedHeaders("GET", "/api/markets", 42, nil)
	require.NoError(t, err)
	assert.Equal(t, s.Address().Hex(), h[HeaderAddress])
	assert.Equal(t, "42", h[HeaderTimestamp])
	assert.NotEmpty(t, h[HeaderSignature])
}

func TestReplayKey(t *testing.T) {
	a := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	b := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	body := []byte(`{"side":"yes"}`)

	k := ReplayKey(a, "POST", "/api/markets", 1_700_000_000, body)
	assert.Len(t, k, 64)
	assert.Equal(t, k, ReplayKey(a, "POST", "/api/markets", 1_700_000_000, body))
	assert.NotEqual(t, k, ReplayKey(b, "POST", "/api/markets", 1_700_000_000, body))
	assert.NotEqual(t, k, ReplayKey(a, "POST", "/api/markets", 1_700_000_001, body))
	assert.NotEqual(t, k, ReplayKey(a, "POST", "/api/markets", 1_700_000_000, []byte(`{}`)))
}

func TestEncryptDecryptKey(t *testing.T) {
	blob, err := EncryptKey("0x"+testKey, "hunter2")
	require.NoError(t, err)

	got, err := DecryptKey(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, testKey, got)

	_, err = DecryptKey(blob, "wrong")
	assert.Error(t, err)
	_, err = EncryptKey(testKey, "")
	assert.Error(t, err)
}

func TestLoadKey(t *testing.T) {
	got, err := LoadKey(KeyConfig{RawPrivateKey: "0x" + testKey})
	require.NoError(t, err)
	assert.Equal(t, testKey, got)

	blob, err := EncryptKey(testKey, "pw")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "resolver.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	got, err = LoadKey(KeyConfig{EncryptedKeyPath: path, KeyPassword: "pw"})
	require.NoError(t, err)
	assert.Equal(t, testKey, got)

	_, err = LoadKey(KeyConfig{})
	assert.Error(t, err)
}

func TestKeystoreBindsAddress(t *testing.T) {
	blob, err := EncryptKey(testKey, "pw")
	require.NoError(t, err)

	var kf keyFile
	require.NoError(t, json.Unmarshal(blob, &kf))
	assert.Equal(t, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", kf.Address)

	kf.Address = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
	forged, err := json.Marshal(kf)
	require.NoError(t, err)
	_, err = DecryptKey(forged, "pw")
	assert.Error(t, err)
}
