package s3blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/alanyoungcy/hyperlocal/internal/domain"
)

// EvidencePrefix is the key prefix holding every archived oracle verdict of
// a market.
func EvidencePrefix(market domain.Address) string {
	return "evidence/" + market.Hex() + "/"
}

// EvidencePath is the key of one archived verdict.
//
//	evidence/0x<market>/<unix>.json
func EvidencePath(market domain.Address, at time.Time) string {
	return fmt.Sprintf("%s%d.json", EvidencePrefix(market), at.Unix())
}

// Reader fetches manifests, evidence and settlement reports.
type Reader struct {
	client *s3.Client
	bucket string
}

// NewReader returns a Reader over the client's bucket.
func NewReader(c *Client) *Reader {
	return &Reader{client: c.S3(), bucket: c.Bucket()}
}

// Get opens the object at path. The caller closes the body. A missing key
// maps to domain.ErrNotFound.
func (r *Reader) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		return nil, fmt.Errorf("s3blob: get %s: %w", path, notFoundAsDomain(err))
	}
	return out.Body, nil
}

// List returns every object under prefix ordered by key. Evidence keys end
// in a unix timestamp, so a market's verdicts come back oldest first.
func (r *Reader) List(ctx context.Context, prefix string) ([]domain.BlobInfo, error) {
	var infos []domain.BlobInfo
	pages := s3.NewListObjectsV2Paginator(r.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(r.bucket),
		Prefix: aws.String(prefix),
	})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3blob: list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			infos = append(infos, domain.BlobInfo{
				Path:         aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				ContentType:  contentTypeFor(aws.ToString(obj.Key)),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
	}
	slices.SortFunc(infos, func(a, b domain.BlobInfo) int {
		return compareKeys(a.Path, b.Path)
	})
	return infos, nil
}

// Exists reports whether path is present. Used to keep settlement reports
// write-once.
func (r *Reader) Exists(ctx context.Context, path string) (bool, error) {
	_, err := r.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(path),
	})
	if err == nil {
		return true, nil
	}
	if errors.Is(notFoundAsDomain(err), domain.ErrNotFound) {
		return false, nil
	}
	return false, fmt.Errorf("s3blob: exists %s: %w", path, err)
}

// compareKeys orders keys by length first so numeric suffixes sort
// numerically within one prefix.
func compareKeys(a, b string) int {
	if len(a) != len(b) {
		return len(a) - len(b)
	}
	return strings.Compare(a, b)
}

func contentTypeFor(key string) string {
	switch {
	case strings.HasSuffix(key, ".json"):
		return "application/json"
	case strings.HasSuffix(key, ".jsonl"):
		return "application/x-ndjson"
	default:
		return ""
	}
}

// notFoundAsDomain rewrites the SDK's missing-object errors to
// domain.ErrNotFound. GetObject reports NoSuchKey, HeadObject a bare 404.
func notFoundAsDomain(err error) error {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	var status interface{ HTTPStatusCode() int }
	switch {
	case errors.As(err, &nsk), errors.As(err, &nf):
		return domain.ErrNotFound
	case errors.As(err, &status) && status.HTTPStatusCode() == http.StatusNotFound:
		return domain.ErrNotFound
	}
	return err
}

var _ domain.BlobReader = (*Reader)(nil)
