package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/hyperlocal/internal/domain"
)

// Request authentication headers.
const (
	HeaderAddress   = "X-Hyperlocal-Address"
	HeaderTimestamp = "X-Hyperlocal-Timestamp"
	HeaderSignature = "X-Hyperlocal-Signature"
)

// ErrBadSignature is returned when a signature is malformed or does not
// recover to the claimed address.
var ErrBadSignature = errors.New("crypto: bad signature")

// Signer signs API requests with a secp256k1 key.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewSigner creates a Signer from a hex-encoded secp256k1 private key.
func NewSigner(privateKeyHex string) (*Signer, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}
	return &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
	}, nil
}

// Address returns the Ethereum address derived from the signer's private key.
func (s *Signer) Address() common.Address {
	return s.address
}

// Principal returns the signer's market principal.
func (s *Signer) Principal() domain.Address {
	return domain.PrincipalFromEth(s.address)
}

// SignRequest returns the hex-encoded EIP-191 signature (65 bytes, v in
// {27,28}) over the request digest.
func (s *Signer) SignRequest(method, path string, timestamp int64, body []byte) (string, error) {
	digest := accounts.TextHash(RequestDigest(method, path, timestamp, body))
	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return "", fmt.Errorf("crypto/signer: signing: %w", err)
	}

	// go-ethereum returns v in {0,1}; wallets produce {27,28}.
	if sig[64] < 27 {
		sig[64] += 27
	}
	return "0x" + hex.EncodeToString(sig), nil
}

// SignedHeaders returns the authentication headers for a request.
func (s *Signer) SignedHeaders(method, path string, timestamp int64, body []byte) (map[string]string, error) {
	sig, err := s.SignRequest(method, path, timestamp, body)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		HeaderAddress:   s.address.Hex(),
		HeaderTimestamp: strconv.FormatInt(timestamp, 10),
		HeaderSignature: sig,
	}, nil
}

// RequestDigest binds a request's method, path, timestamp and body:
//
//	keccak256(method "\n" path "\n" timestamp "\n" keccak256(body))
func RequestDigest(method, path string, timestamp int64, body []byte) []byte {
	bodyHash := ethcrypto.Keccak256(body)
	msg := strings.ToUpper(method) + "\n" + path + "\n" + strconv.FormatInt(timestamp, 10) + "\n" + hex.EncodeToString(bodyHash)
	return ethcrypto.Keccak256([]byte(msg))
}

// ReplayKey fingerprints a signed request by signer and digest, so an
// alternate encoding of the same signature maps to the same key.
func ReplayKey(signer common.Address, method, path string, timestamp int64, body []byte) string {
	return hex.EncodeToString(ethcrypto.Keccak256(signer.Bytes(), RequestDigest(method, path, timestamp, body)))
}

// RecoverRequest returns the address that produced sigHex over the request.
func RecoverRequest(method, path string, timestamp int64, body []byte, sigHex string) (common.Address, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil || len(sig) != 65 {
		return common.Address{}, ErrBadSignature
	}
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	if sig[64] > 1 {
		return common.Address{}, ErrBadSignature
	}

	digest := accounts.TextHash(RequestDigest(method, path, timestamp, body))
	pub, err := ethcrypto.SigToPub(digest, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

// VerifyRequest checks that sigHex was produced by claimed.
func VerifyRequest(claimed common.Address, method, path string, timestamp int64, body []byte, sigHex string) error {
	got, err := RecoverRequest(method, path, timestamp, body, sigHex)
	if err != nil {
		return err
	}
	if got != claimed {
		return ErrBadSignature
	}
	return nil
}
