package middleware

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/hyperlocal/internal/crypto"
	"github.com/alanyoungcy/hyperlocal/internal/domain"
)

// maxSignedBody bounds the request body read for signature verification.
const maxSignedBody = 1 << 20

type callerKey struct{}

// Caller returns the authenticated principal attached by Signature.
func Caller(ctx context.Context) (domain.Address, bool) {
	a, ok := ctx.Value(callerKey{}).(domain.Address)
	return a, ok
}

// WithCaller attaches principal to ctx.
func WithCaller(ctx context.Context, principal domain.Address) context.Context {
	return context.WithValue(ctx, callerKey{}, principal)
}

// Signature returns middleware that authenticates state-changing requests.
// Each must carry the signer's address, a unix timestamp within maxSkew of
// now, and an EIP-191 signature over the method, path, timestamp and body.
// The recovered address becomes the request's caller principal. Safe
// methods pass through unauthenticated.
//
// A request stays inside the skew window for at most 2×maxSkew, so replay
// remembers each accepted fingerprint for that long and rejects a second
// use. A nil replay guard skips the check.
func Signature(maxSkew time.Duration, replay domain.ReplayGuard, now func() time.Time) func(http.Handler) http.Handler {
	if now == nil {
		now = time.Now
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			addrHex := r.Header.Get(crypto.HeaderAddress)
			tsRaw := r.Header.Get(crypto.HeaderTimestamp)
			sig := r.Header.Get(crypto.HeaderSignature)
			if addrHex == "" || tsRaw == "" || sig == "" {
				writeUnauthorized(w, "missing signature headers")
				return
			}
			if !common.IsHexAddress(addrHex) {
				writeUnauthorized(w, "invalid signer address")
				return
			}
			ts, err := strconv.ParseInt(tsRaw, 10, 64)
			if err != nil {
				writeUnauthorized(w, "invalid timestamp")
				return
			}
			if skew := now().Sub(time.Unix(ts, 0)); skew > maxSkew || skew < -maxSkew {
				writeUnauthorized(w, "timestamp outside allowed window")
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxSignedBody+1))
			if err != nil {
				writeUnauthorized(w, "unreadable body")
				return
			}
			if len(body) > maxSignedBody {
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusRequestEntityTooLarge)
				w.Write([]byte(`{"error":"request body too large"}`))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			signer := common.HexToAddress(addrHex)
			if err := crypto.VerifyRequest(signer, r.Method, r.URL.Path, ts, body, sig); err != nil {
				writeUnauthorized(w, "invalid signature")
				return
			}
			if replay != nil {
				key := crypto.ReplayKey(signer, r.Method, r.URL.Path, ts, body)
				fresh, err := replay.FirstUse(r.Context(), key, 2*maxSkew)
				if err != nil {
					w.Header().Set("Content-Type", "application/json; charset=utf-8")
					w.WriteHeader(http.StatusServiceUnavailable)
					w.Write([]byte(`{"error":"replay check unavailable","code":"unavailable"}`))
					return
				}
				if !fresh {
					writeUnauthorized(w, "request already used")
					return
				}
			}

			ctx := WithCaller(r.Context(), domain.PrincipalFromEth(signer))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// writeUnauthorized sends a 401 response with a JSON error body.
func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `","code":"unauthorized"}`))
}
