package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	s3blob "github.com/alanyoungcy/hyperlocal/internal/blob/s3"
	"github.com/alanyoungcy/hyperlocal/internal/domain"
)

// BlobLister lists archived objects under a key prefix.
type BlobLister interface {
	List(ctx context.Context, prefix string) ([]domain.BlobInfo, error)
}

// EvidenceHandler serves the archived oracle verdicts of a market.
type EvidenceHandler struct {
	blobs  BlobLister
	bucket string
	logger *slog.Logger
}

// NewEvidenceHandler creates an EvidenceHandler over bucket.
func NewEvidenceHandler(blobs BlobLister, bucket string, logger *slog.Logger) *EvidenceHandler {
	return &EvidenceHandler{blobs: blobs, bucket: bucket, logger: logHandler(logger, "evidence")}
}

type evidenceItem struct {
	URI          string    `json:"uri"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// List returns the market's verdict archive, oldest first.
// GET /api/markets/{market}/evidence
func (h *EvidenceHandler) List(w http.ResponseWriter, r *http.Request) {
	market, err := pathAddress(r, "market")
	if err != nil {
		badRequest(w, err)
		return
	}
	objs, err := h.blobs.List(r.Context(), s3blob.EvidencePrefix(market))
	if err != nil {
		writeDomainError(w, r, h.logger, "list evidence", err)
		return
	}
	items := make([]evidenceItem, 0, len(objs))
	for _, o := range objs {
		items = append(items, evidenceItem{
			URI:          s3blob.URI(h.bucket, o.Path),
			Size:         o.Size,
			LastModified: o.LastModified,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"market": market, "evidence": items})
}
