package domain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Address identifies a principal, a durable record, or a token account. All
// record addresses are derived deterministically from a tag and seeds.
type Address [32]byte

// RegionID is an opaque 32-byte region identifier.
type RegionID [32]byte

// Hash is a 32-byte keccak256 digest.
type Hash [32]byte

// Address derivation tags.
const (
	TagMarket       = "market"
	TagPosition     = "user-position"
	TagCredential   = "user-state"
	TagVault        = "vault"
	TagTokenAccount = "token-account"
)

// DeriveAddress returns keccak256(tag || seed_0 || ... || seed_n).
func DeriveAddress(tag string, seeds ...[]byte) Address {
	parts := make([][]byte, 0, len(seeds)+1)
	parts = append(parts, []byte(tag))
	parts = append(parts, seeds...)
	return Address(crypto.Keccak256Hash(parts...))
}

// Digest hashes arbitrary bytes with keccak256.
func Digest(data []byte) Hash {
	return Hash(crypto.Keccak256Hash(data))
}

// MarketAddress derives the market record address. It doubles as the
// market's signing capability over its vault.
func MarketAddress(creator Address, questionDigest Hash) Address {
	return DeriveAddress(TagMarket, creator[:], questionDigest[:])
}

// PositionAddress derives the position record address for a trader.
func PositionAddress(market, trader Address) Address {
	return DeriveAddress(TagPosition, market[:], trader[:])
}

// CredentialAddress derives the location credential address for a trader.
func CredentialAddress(trader Address) Address {
	return DeriveAddress(TagCredential, trader[:])
}

// VaultAddress derives the market's vault token account.
func VaultAddress(market, asset Address) Address {
	return DeriveAddress(TagVault, market[:], asset[:])
}

// TokenAccountAddress derives the default token account of owner for asset.
func TokenAccountAddress(owner, asset Address) Address {
	return DeriveAddress(TagTokenAccount, owner[:], asset[:])
}

// PrincipalFromEth left-pads a 20-byte account address into a principal.
func PrincipalFromEth(addr common.Address) Address {
	return Address(common.BytesToHash(addr.Bytes()))
}

// ParseAddress decodes a 0x-prefixed 32-byte hex string. A 20-byte account
// address is accepted and left-padded.
func ParseAddress(s string) (Address, error) {
	b, err := hexutil.Decode(s)
	if err != nil {
		return Address{}, err
	}
	switch len(b) {
	case 32:
		return Address(b), nil
	case common.AddressLength:
		return PrincipalFromEth(common.BytesToAddress(b)), nil
	default:
		return Address{}, ErrInvalidAddress
	}
}

// ParseRegion decodes a 0x-prefixed 32-byte hex region id.
func ParseRegion(s string) (RegionID, error) {
	var r RegionID
	err := r.UnmarshalText([]byte(s))
	return r, err
}

// ParseHash decodes a 0x-prefixed 32-byte hex digest.
func ParseHash(s string) (Hash, error) {
	var h Hash
	err := h.UnmarshalText([]byte(s))
	return h, err
}

func (a Address) Hex() string    { return hexutil.Encode(a[:]) }
func (a Address) String() string { return a.Hex() }
func (a Address) IsZero() bool   { return a == Address{} }

func (a Address) MarshalText() ([]byte, error) { return []byte(a.Hex()), nil }

func (a *Address) UnmarshalText(input []byte) error {
	return hexutil.UnmarshalFixedText("Address", input, a[:])
}

func (r RegionID) Hex() string    { return hexutil.Encode(r[:]) }
func (r RegionID) String() string { return r.Hex() }

func (r RegionID) MarshalText() ([]byte, error) { return []byte(r.Hex()), nil }

func (r *RegionID) UnmarshalText(input []byte) error {
	return hexutil.UnmarshalFixedText("RegionID", input, r[:])
}

func (h Hash) Hex() string    { return hexutil.Encode(h[:]) }
func (h Hash) String() string { return h.Hex() }
func (h Hash) IsZero() bool   { return h == Hash{} }

func (h Hash) MarshalText() ([]byte, error) { return []byte(h.Hex()), nil }

func (h *Hash) UnmarshalText(input []byte) error {
	return hexutil.UnmarshalFixedText("Hash", input, h[:])
}
