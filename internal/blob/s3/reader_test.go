package s3blob

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/hyperlocal/internal/domain"
)

func TestEvidencePath(t *testing.T) {
	market := domain.Address{0x42}
	p := EvidencePath(market, time.Unix(1_700_000_000, 0))
	assert.Equal(t, "evidence/"+market.Hex()+"/1700000000.json", p)
	assert.Contains(t, p, EvidencePrefix(market))
}

func TestCompareKeysOrdersNumericSuffixes(t *testing.T) {
	assert.Negative(t, compareKeys("evidence/x/999.json", "evidence/x/1000.json"))
	assert.Positive(t, compareKeys("evidence/x/1001.json", "evidence/x/1000.json"))
	assert.Zero(t, compareKeys("a", "a"))
}

func TestContentTypeFor(t *testing.T) {
	assert.Equal(t, "application/json", contentTypeFor("manifests/0xab.json"))
	assert.Equal(t, "application/x-ndjson", contentTypeFor("settlements/0xab.jsonl"))
	assert.Empty(t, contentTypeFor("other.bin"))
}

func TestNotFoundAsDomain(t *testing.T) {
	assert.ErrorIs(t, notFoundAsDomain(fmt.Errorf("op: %w", &types.NoSuchKey{})), domain.ErrNotFound)
	assert.ErrorIs(t, notFoundAsDomain(&types.NotFound{}), domain.ErrNotFound)

	other := errors.New("timeout")
	assert.Equal(t, other, notFoundAsDomain(other))
}
