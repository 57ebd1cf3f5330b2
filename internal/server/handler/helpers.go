package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/hyperlocal/internal/domain"
	"github.com/alanyoungcy/hyperlocal/internal/server/middleware"
)

// maxBodySize bounds JSON request bodies.
const maxBodySize = 1 << 20

// errorResponse is the body of every non-2xx response.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

// statusFor maps an error class onto an HTTP status.
func statusFor(class domain.ErrorClass) int {
	switch class {
	case domain.ClassValidation, domain.ClassArithmetic:
		return http.StatusBadRequest
	case domain.ClassAuthorization:
		return http.StatusForbidden
	case domain.ClassTemporal, domain.ClassConflict:
		return http.StatusConflict
	case domain.ClassEconomic:
		return http.StatusUnprocessableEntity
	case domain.ClassNotFound:
		return http.StatusNotFound
	case domain.ClassRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// writeDomainError reports err to the client. Known domain errors keep their
// message; anything else is logged and hidden behind a generic 500.
func writeDomainError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, op string, err error) {
	class := domain.ClassOf(err)
	if class == domain.ClassInternal {
		logger.ErrorContext(r.Context(), "handler: "+op+" failed",
			slog.String("request_id", middleware.RequestID(r.Context())),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "internal", op+" failed")
		return
	}
	writeError(w, statusFor(class), domain.Code(err), err.Error())
}

// decodeBody decodes a JSON request body into v, rejecting unknown fields.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// parseListOpts extracts standard pagination parameters from the query string.
// Defaults: limit=50 (max 200), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 200 {
		limit = 200
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return domain.ListOpts{
		Limit:  limit,
		Offset: offset,
	}
}

// pathAddress parses the named path parameter as an address.
func pathAddress(r *http.Request, name string) (domain.Address, error) {
	a, err := domain.ParseAddress(r.PathValue(name))
	if err != nil {
		return domain.Address{}, fmt.Errorf("%w: %s", domain.ErrInvalidAddress, name)
	}
	return a, nil
}

// caller returns the authenticated principal or writes a 401.
func caller(w http.ResponseWriter, r *http.Request) (domain.Address, bool) {
	c, ok := middleware.Caller(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, domain.Code(domain.ErrUnauthorized), "request is not signed")
		return domain.Address{}, false
	}
	return c, true
}

// badRequest writes a 400 for a malformed input.
func badRequest(w http.ResponseWriter, err error) {
	code := domain.Code(err)
	if code == "internal" {
		code = "bad_request"
	}
	writeError(w, http.StatusBadRequest, code, err.Error())
}
