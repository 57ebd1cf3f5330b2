package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	s3blob "github.com/alanyoungcy/hyperlocal/internal/blob/s3"
	"github.com/alanyoungcy/hyperlocal/internal/domain"
)

// MaxManifestSize bounds manifest bodies on upload and fetch.
const MaxManifestSize = 64 << 10

// ManifestRef points at a stored manifest. URL and Hash are what a market
// records as manifest_url and manifest_hash.
type ManifestRef struct {
	URL      string          `json:"url"`
	Hash     domain.Hash     `json:"hash"`
	Manifest domain.Manifest `json:"manifest"`
}

// ManifestService stores resolution manifests in object storage and loads
// them back for the resolution agent, checking integrity against the hash
// recorded on the market.
type ManifestService struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	bucket string
	client *http.Client
	now    func() time.Time
	logger *slog.Logger
}

// NewManifestService creates a ManifestService over the given bucket.
func NewManifestService(writer domain.BlobWriter, reader domain.BlobReader, bucket string, logger *slog.Logger) *ManifestService {
	return &ManifestService{
		writer: writer,
		reader: reader,
		bucket: bucket,
		client: &http.Client{Timeout: 15 * time.Second},
		now:    time.Now,
		logger: logger,
	}
}

// Upload validates a full or compact manifest, stores the expanded form
// under manifests/<hash>.json and returns its reference. Uploading the same
// manifest twice yields the same reference.
func (s *ManifestService) Upload(ctx context.Context, raw []byte) (ManifestRef, error) {
	if len(raw) > MaxManifestSize {
		return ManifestRef{}, fmt.Errorf("manifest_service: upload: %w: %d bytes", domain.ErrInvalidManifest, len(raw))
	}
	m, err := domain.ParseManifest(raw, s.now())
	if err != nil {
		return ManifestRef{}, fmt.Errorf("manifest_service: upload: %w", err)
	}
	body, err := json.Marshal(m)
	if err != nil {
		return ManifestRef{}, fmt.Errorf("manifest_service: marshal: %w", err)
	}

	hash := domain.Digest(body)
	path := manifestPath(hash)
	if err := s.writer.Put(ctx, path, bytes.NewReader(body), "application/json"); err != nil {
		return ManifestRef{}, fmt.Errorf("manifest_service: upload: %w", err)
	}

	ref := ManifestRef{URL: s3blob.URI(s.bucket, path), Hash: hash, Manifest: m}
	s.logger.InfoContext(ctx, "manifest_service: manifest stored",
		slog.String("url", ref.URL),
		slog.String("hash", hash.Hex()),
	)
	return ref, nil
}

// Fetch loads the manifest at url. When expected is non-zero the raw body
// must hash to it.
func (s *ManifestService) Fetch(ctx context.Context, url string, expected domain.Hash) (domain.Manifest, error) {
	body, err := s.load(ctx, url)
	if err != nil {
		return domain.Manifest{}, fmt.Errorf("manifest_service: fetch %s: %w", url, err)
	}
	if !expected.IsZero() {
		if got := domain.Digest(body); got != expected {
			return domain.Manifest{}, fmt.Errorf("manifest_service: fetch %s: %w: hash %s != %s",
				url, domain.ErrInvalidManifest, got, expected)
		}
	}
	m, err := domain.ParseManifest(body, s.now())
	if err != nil {
		return domain.Manifest{}, fmt.Errorf("manifest_service: fetch %s: %w", url, err)
	}
	return m, nil
}

func (s *ManifestService) load(ctx context.Context, url string) ([]byte, error) {
	switch {
	case strings.HasPrefix(url, "s3://"):
		bucket, path, err := s3blob.ParseURI(url)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidManifest, err)
		}
		if bucket != s.bucket {
			return nil, fmt.Errorf("%w: foreign bucket %q", domain.ErrInvalidManifest, bucket)
		}
		rc, err := s.reader.Get(ctx, path)
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return readLimited(rc)

	case strings.HasPrefix(url, "https://"), strings.HasPrefix(url, "http://"):
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		resp, err := s.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound {
			return nil, domain.ErrNotFound
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		return readLimited(resp.Body)

	default:
		return nil, fmt.Errorf("%w: unsupported manifest url scheme", domain.ErrInvalidManifest)
	}
}

func readLimited(r io.Reader) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, MaxManifestSize+1))
	if err != nil {
		return nil, err
	}
	if len(body) > MaxManifestSize {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", domain.ErrInvalidManifest, MaxManifestSize)
	}
	return body, nil
}

// manifestPath builds the object key for a manifest.
//
//	manifests/0x<keccak>.json
func manifestPath(h domain.Hash) string {
	return "manifests/" + h.Hex() + ".json"
}
