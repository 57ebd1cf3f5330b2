package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/hyperlocal/internal/service"
)

// ManifestStore uploads resolution manifests.
type ManifestStore interface {
	Upload(ctx context.Context, raw []byte) (service.ManifestRef, error)
}

// ManifestHandler serves manifest uploads.
type ManifestHandler struct {
	manifests ManifestStore
	logger    *slog.Logger
}

// NewManifestHandler creates a ManifestHandler.
func NewManifestHandler(manifests ManifestStore, logger *slog.Logger) *ManifestHandler {
	return &ManifestHandler{manifests: manifests, logger: logHandler(logger, "manifest")}
}

// Upload stores a full or compact manifest and returns its URL and hash for
// use in market creation.
// POST /api/manifests
func (h *ManifestHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if _, ok := caller(w, r); !ok {
		return
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, service.MaxManifestSize+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "unreadable body")
		return
	}
	if len(raw) > service.MaxManifestSize {
		writeError(w, http.StatusRequestEntityTooLarge, "bad_request", "manifest too large")
		return
	}

	ref, err := h.manifests.Upload(r.Context(), raw)
	if err != nil {
		writeDomainError(w, r, h.logger, "upload manifest", err)
		return
	}
	writeJSON(w, http.StatusCreated, ref)
}
