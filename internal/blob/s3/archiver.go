package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/hyperlocal/internal/amm"
	"github.com/alanyoungcy/hyperlocal/internal/domain"
	"github.com/alanyoungcy/hyperlocal/internal/uint128"
)

// settlementPageSize bounds each ListPositions call while building a report.
const settlementPageSize = 500

// SettlementQuery is the read access the archiver needs.
type SettlementQuery interface {
	GetMarket(ctx context.Context, addr domain.Address) (domain.Market, error)
	ListPositions(ctx context.Context, market domain.Address, opts domain.ListOpts) ([]domain.Position, error)
}

// SettlementRow is one JSONL line of a settlement report. Entitlement is
// what the position is owed under the final outcome; Payout is what has
// actually been paid so far.
type SettlementRow struct {
	Market      domain.Address  `json:"market"`
	Trader      domain.Address  `json:"trader"`
	Outcome     string          `json:"outcome"`
	YesShares   uint128.Uint128 `json:"yes_shares"`
	NoShares    uint128.Uint128 `json:"no_shares"`
	Entitlement uint64          `json:"entitlement"`
	Claimed     bool            `json:"claimed"`
	Payout      uint64          `json:"payout"`
}

// Archiver implements domain.SettlementArchiver. Each resolved market is
// exported once to settlements/<market>.jsonl; an existing report is left
// untouched.
//
// Deletion of settled rows from the ledger is NOT performed here.
type Archiver struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	query  SettlementQuery
	audit  domain.AuditStore
	now    func() time.Time
}

// NewArchiver creates a new Archiver.
func NewArchiver(
	writer domain.BlobWriter,
	reader domain.BlobReader,
	query SettlementQuery,
	audit domain.AuditStore,
) *Archiver {
	return &Archiver{
		writer: writer,
		reader: reader,
		query:  query,
		audit:  audit,
		now:    time.Now,
	}
}

// ArchiveSettlement writes the settlement report for a resolved market and
// returns its object path. It returns domain.ErrNotResolved for markets that
// have not been finalized.
func (a *Archiver) ArchiveSettlement(ctx context.Context, market domain.Address) (string, error) {
	m, err := a.query.GetMarket(ctx, market)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive settlement: %w", err)
	}
	if !m.Resolved {
		return "", fmt.Errorf("s3blob: archive settlement %s: %w", market, domain.ErrNotResolved)
	}

	path := settlementPath(market)
	exists, err := a.reader.Exists(ctx, path)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive settlement: %w", err)
	}
	if exists {
		return path, nil
	}

	rows, err := a.settlementRows(ctx, m)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive settlement %s: %w", market, err)
	}

	buf, err := marshalJSONL(rows)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive settlement marshal: %w", err)
	}
	if err := a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), 0); err != nil {
		return "", fmt.Errorf("s3blob: archive settlement upload: %w", err)
	}

	if err := a.audit.Log(ctx, "archive.settlement", map[string]any{
		"market":    market.Hex(),
		"path":      path,
		"positions": len(rows),
		"outcome":   m.Outcome.String(),
		"at":        a.now().UTC().Format(time.RFC3339),
	}); err != nil {
		return path, fmt.Errorf("s3blob: archive settlement audit log: %w", err)
	}
	return path, nil
}

func (a *Archiver) settlementRows(ctx context.Context, m domain.Market) ([]SettlementRow, error) {
	winning, err := m.WinningTotal()
	if err != nil {
		return nil, err
	}

	var rows []SettlementRow
	for offset := 0; ; offset += settlementPageSize {
		page, err := a.query.ListPositions(ctx, m.Address, domain.ListOpts{
			Limit:  settlementPageSize,
			Offset: offset,
		})
		if err != nil {
			return nil, err
		}
		for _, p := range page {
			shares, err := p.SharesFor(m.Outcome)
			if err != nil {
				return nil, err
			}
			var owed uint64
			if !winning.IsZero() {
				if owed, err = amm.Payout(shares, winning, m.TotalPool); err != nil {
					return nil, err
				}
			}
			rows = append(rows, SettlementRow{
				Market:      m.Address,
				Trader:      p.Trader,
				Outcome:     m.Outcome.String(),
				YesShares:   p.YesShares,
				NoShares:    p.NoShares,
				Entitlement: owed,
				Claimed:     p.Claimed,
				Payout:      p.Payout,
			})
		}
		if len(page) < settlementPageSize {
			return rows, nil
		}
	}
}

// settlementPath builds the S3 key for a market's settlement report.
//
//	settlements/0x<market>.jsonl
func settlementPath(market domain.Address) string {
	return fmt.Sprintf("settlements/%s.jsonl", market.Hex())
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Compile-time interface check.
var _ domain.SettlementArchiver = (*Archiver)(nil)
