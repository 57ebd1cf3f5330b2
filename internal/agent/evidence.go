package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	s3blob "github.com/alanyoungcy/hyperlocal/internal/blob/s3"
	"github.com/alanyoungcy/hyperlocal/internal/cache/redis"
	"github.com/alanyoungcy/hyperlocal/internal/domain"
	"github.com/alanyoungcy/hyperlocal/internal/platform/oracle"
)

// EvidenceRecord is the archived form of an oracle verdict.
type EvidenceRecord struct {
	Market      domain.Address `json:"market"`
	Question    string         `json:"question"`
	ManifestURL string         `json:"manifest_url,omitempty"`
	Verdict     oracle.Verdict `json:"verdict"`
	Resolver    domain.Address `json:"resolver"`
	EvaluatedAt time.Time      `json:"evaluated_at"`
}

// archiveVerdict stores the verdict under evidence/<market>/<unix>.json and
// returns the evidence URL for the market record: the oracle's source when
// it fits, otherwise the archive URI.
func (r *Runner) archiveVerdict(ctx context.Context, m domain.Market, v oracle.Verdict) (string, error) {
	fallback := ""
	if len(v.EvidenceURL) <= domain.MaxURLLen {
		fallback = v.EvidenceURL
	}
	if r.deps.Evidence == nil {
		return fallback, nil
	}

	at := r.now().UTC()
	rec := EvidenceRecord{
		Market:      m.Address,
		Question:    m.Question,
		ManifestURL: m.ManifestURL,
		Verdict:     v,
		Resolver:    r.principal,
		EvaluatedAt: at,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fallback, fmt.Errorf("agent: marshal evidence: %w", err)
	}
	path := s3blob.EvidencePath(m.Address, at)
	if err := r.deps.Evidence.Put(ctx, path, bytes.NewReader(data), "application/json"); err != nil {
		return fallback, fmt.Errorf("agent: store evidence: %w", err)
	}

	if fallback != "" {
		return fallback, nil
	}
	uri := s3blob.URI(r.deps.Bucket, path)
	if len(uri) > domain.MaxURLLen {
		return "", nil
	}
	return uri, nil
}

func marketLockKey(market domain.Address) string {
	return redis.MarketLockKey(market)
}
