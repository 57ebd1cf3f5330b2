package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/hyperlocal/internal/uint128"
)

// Record layout bounds.
const (
	MaxQuestionLen = 128
	MaxURLLen      = 256
	MaxRecordSize  = 1000

	// fixedMarketSize covers the discriminator, six addresses, two digests,
	// two share pools, three 64-bit counters, four flag bytes and three
	// string length prefixes.
	fixedMarketSize = 8 + 32*6 + 32*2 + 16*2 + 8*3 + 1*4 + 4*3
)

// Outcome is the resolved result of a market. Encodings are fixed.
type Outcome uint8

const (
	OutcomeNone Outcome = 0
	OutcomeYes  Outcome = 1
	OutcomeNo   Outcome = 2
)

// IsSide reports whether o is Yes or No.
func (o Outcome) IsSide() bool { return o == OutcomeYes || o == OutcomeNo }

func (o Outcome) String() string {
	switch o {
	case OutcomeNone:
		return "NONE"
	case OutcomeYes:
		return "YES"
	case OutcomeNo:
		return "NO"
	default:
		return fmt.Sprintf("OUTCOME(%d)", uint8(o))
	}
}

// ParseOutcome accepts "yes"/"no"/"none" in any case, or the numeric codes.
func ParseOutcome(s string) (Outcome, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "0":
		return OutcomeNone, nil
	case "yes", "1":
		return OutcomeYes, nil
	case "no", "2":
		return OutcomeNo, nil
	default:
		return OutcomeNone, fmt.Errorf("%w: %q", ErrInvalidOutcome, s)
	}
}

// MarketStatus is the resolution lifecycle state. Encodings are fixed.
type MarketStatus uint8

const (
	StatusOpen     MarketStatus = 0
	StatusDisputed MarketStatus = 1
	StatusResolved MarketStatus = 2
)

func (s MarketStatus) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusDisputed:
		return "disputed"
	case StatusResolved:
		return "resolved"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// ParseStatus parses the lowercase status name.
func ParseStatus(s string) (MarketStatus, error) {
	switch strings.ToLower(s) {
	case "open":
		return StatusOpen, nil
	case "disputed":
		return StatusDisputed, nil
	case "resolved":
		return StatusResolved, nil
	default:
		return 0, fmt.Errorf("unknown market status %q", s)
	}
}

// Market is the durable per-question record.
type Market struct {
	Address        Address         `json:"address"`
	Region         RegionID        `json:"region"`
	Question       string          `json:"question"`
	QuestionDigest Hash            `json:"question_digest"`
	CloseTime      int64           `json:"close_time"`
	Resolved       bool            `json:"resolved"`
	Outcome        Outcome         `json:"outcome"`
	Asset          Address         `json:"asset"`
	Vault          Address         `json:"vault"`
	Resolver       Address         `json:"resolver"`
	Creator        Address         `json:"creator"`
	YesShares      uint128.Uint128 `json:"yes_shares"`
	NoShares       uint128.Uint128 `json:"no_shares"`
	TotalPool      uint64          `json:"total_pool"`
	ManifestURL    string          `json:"manifest_url"`
	ManifestHash   Hash            `json:"manifest_hash"`
	EvidenceURL    string          `json:"evidence_url"`
	Status         MarketStatus    `json:"status"`
	AgentOutcome   Outcome         `json:"agent_outcome"`
	ClaimCount     uint64          `json:"claim_count"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// ClosedAt reports whether trading has closed at now.
func (m Market) ClosedAt(now time.Time) bool {
	return now.Unix() >= m.CloseTime
}

// SharesFor returns the pool for side.
func (m Market) SharesFor(side Outcome) (uint128.Uint128, error) {
	switch side {
	case OutcomeYes:
		return m.YesShares, nil
	case OutcomeNo:
		return m.NoShares, nil
	default:
		return uint128.Zero, ErrInvalidSide
	}
}

// WinningTotal returns the share pool of the resolved outcome.
func (m Market) WinningTotal() (uint128.Uint128, error) {
	switch m.Outcome {
	case OutcomeYes:
		return m.YesShares, nil
	case OutcomeNo:
		return m.NoShares, nil
	default:
		return uint128.Zero, ErrNotResolved
	}
}

// Validate checks the invariants every persisted market must hold.
func (m Market) Validate() error {
	if len(m.Question) > MaxQuestionLen {
		return ErrQuestionTooLong
	}
	if len(m.ManifestURL) > MaxURLLen || len(m.EvidenceURL) > MaxURLLen {
		return ErrURLTooLong
	}
	if m.RecordSize() > MaxRecordSize {
		return ErrRecordTooLarge
	}
	if m.YesShares.IsZero() || m.NoShares.IsZero() {
		return fmt.Errorf("%w: share pool below bootstrap prior", ErrMathUnderflow)
	}
	if m.Outcome != OutcomeNone && !m.Resolved {
		return fmt.Errorf("%w: outcome set on unresolved market", ErrInvalidOutcome)
	}
	if m.Resolved != (m.Status == StatusResolved) {
		return fmt.Errorf("%w: resolved flag and status disagree", ErrInvalidOutcome)
	}
	return nil
}

// RecordSize returns the serialized size of the record.
func (m Market) RecordSize() int {
	return fixedMarketSize + len(m.Question) + len(m.ManifestURL) + len(m.EvidenceURL)
}
