package middleware

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hyperlocal/internal/crypto"
)

const testKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var fixedNow = time.Unix(1_700_000_000, 0)

func echoCaller() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		caller, ok := Caller(r.Context())
		if ok {
			w.Header().Set("X-Caller", caller.Hex())
		}
		w.Write(body)
	})
}

func signedRequest(t *testing.T, method, path string, ts int64, body []byte) *http.Request {
	t.Helper()
	s, err := crypto.NewSigner(testKey)
	require.NoError(t, err)
	headers, err := s.SignedHeaders(method, path, ts, body)
	require.NoError(t, err)

	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req
}

func TestSignatureAcceptsValidRequest(t *testing.T) {
	h := Signature(5*time.Minute, nil, func() time.Time { return fixedNow })(echoCaller())
	body := []byte(`{"side":"yes"}`)
	req := signedRequest(t, http.MethodPost, "/api/markets/0x01/orders", fixedNow.Unix(), body)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(body), rec.Body.String(), "body is restored for the handler")

	s, _ := crypto.NewSigner(testKey)
	assert.Equal(t, s.Principal().Hex(), rec.Header().Get("X-Caller"))
}

func TestSignatureRejects(t *testing.T) {
	h := Signature(5*time.Minute, nil, func() time.Time { return fixedNow })(echoCaller())
	body := []byte(`{"side":"yes"}`)

	t.Run("missing headers", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/markets", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("stale timestamp", func(t *testing.T) {
		req := signedRequest(t, http.MethodPost, "/api/markets", fixedNow.Add(-time.Hour).Unix(), body)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "timestamp")
	})

	t.Run("tampered body", func(t *testing.T) {
		req := signedRequest(t, http.MethodPost, "/api/markets", fixedNow.Unix(), body)
		req.Body = io.NopCloser(bytes.NewReader([]byte(`{"side":"no"}`)))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong claimed address", func(t *testing.T) {
		req := signedRequest(t, http.MethodPost, "/api/markets", fixedNow.Unix(), body)
		req.Header.Set(crypto.HeaderAddress, "0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("bad timestamp", func(t *testing.T) {
		req := signedRequest(t, http.MethodPost, "/api/markets", fixedNow.Unix(), body)
		req.Header.Set(crypto.HeaderTimestamp, "soon")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

type memGuard struct {
	mu   sync.Mutex
	seen map[string]time.Duration
	err  error
}

func (g *memGuard) FirstUse(_ context.Context, key string, ttl time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return false, g.err
	}
	if g.seen == nil {
		g.seen = make(map[string]time.Duration)
	}
	if _, ok := g.seen[key]; ok {
		return false, nil
	}
	g.seen[key] = ttl
	return true, nil
}

func TestSignatureRejectsReplay(t *testing.T) {
	guard := &memGuard{}
	calls := 0
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	})
	now := fixedNow.Add(4 * time.Minute)
	h := Signature(5*time.Minute, guard, func() time.Time { return now })(inner)

	body := []byte(`{"side":"yes","amount":"100"}`)
	ts := fixedNow.Unix()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, signedRequest(t, http.MethodPost, "/api/markets/0x01/orders", ts, body))
	require.Equal(t, http.StatusOK, rec.Code)

	for i := 0; i < 2; i++ {
		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, signedRequest(t, http.MethodPost, "/api/markets/0x01/orders", ts, body))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "already used")
	}
	assert.Equal(t, 1, calls, "handler runs once")

	require.Len(t, guard.seen, 1)
	for _, ttl := range guard.seen {
		assert.Equal(t, 10*time.Minute, ttl)
	}

	// a different body is a different request
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, signedRequest(t, http.MethodPost, "/api/markets/0x01/orders", ts, []byte(`{"side":"no"}`)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, calls)
}

func TestSignatureReplayGuardDown(t *testing.T) {
	guard := &memGuard{err: errors.New("redis down")}
	h := Signature(5*time.Minute, guard, func() time.Time { return fixedNow })(echoCaller())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, signedRequest(t, http.MethodPost, "/api/markets", fixedNow.Unix(), []byte(`{}`)))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Caller"))
}

func TestSignatureSkipsSafeMethods(t *testing.T) {
	h := Signature(time.Minute, nil, nil)(echoCaller())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/markets", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Caller"))
}

type stubLimiter struct {
	allow bool
	err   error
	keys  []string
}

func (l *stubLimiter) Allow(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	l.keys = append(l.keys, key)
	return l.allow, l.err
}

func TestRateLimit(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	trusted := ParseTrustedProxies([]string{"10.0.0.0/8", "192.0.2.1"})

	denied := &stubLimiter{allow: false}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/markets", nil)
	req.RemoteAddr = "10.1.2.3:4567"
	req.Header.Set("X-Forwarded-For", "198.51.100.7, 203.0.113.9, 10.0.0.1")
	RateLimit(denied, 10, time.Minute, trusted)(ok).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, []string{"api:203.0.113.9"}, denied.keys, "rightmost untrusted hop")

	// limiter failures fail open
	broken := &stubLimiter{err: errors.New("redis down")}
	rec = httptest.NewRecorder()
	RateLimit(broken, 10, time.Minute, nil)(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	// disabled
	rec = httptest.NewRecorder()
	RateLimit(nil, 10, time.Minute, nil)(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitIgnoresSpoofedHeaders(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	limiter := &stubLimiter{allow: true}
	mw := RateLimit(limiter, 10, time.Minute, ParseTrustedProxies([]string{"10.0.0.0/8"}))(ok)

	req := httptest.NewRequest(http.MethodGet, "/api/markets", nil)
	req.RemoteAddr = "198.51.100.7:5555"
	req.Header.Set("X-Forwarded-For", "1.2.3.4")
	req.Header.Set("X-Real-IP", "5.6.7.8")
	mw.ServeHTTP(httptest.NewRecorder(), req)

	// no trusted proxies configured: headers never count
	req = httptest.NewRequest(http.MethodGet, "/api/markets", nil)
	req.Header.Set("X-Forwarded-For", "1.2.3.4")
	RateLimit(limiter, 10, time.Minute, nil)(ok).ServeHTTP(httptest.NewRecorder(), req)

	// trusted peer with only X-Real-IP
	req = httptest.NewRequest(http.MethodGet, "/api/markets", nil)
	req.RemoteAddr = "10.9.9.9:80"
	req.Header.Set("X-Real-IP", "203.0.113.50")
	mw.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, []string{"api:198.51.100.7", "api:192.0.2.1", "api:203.0.113.50"}, limiter.keys)
}

func TestParseTrustedProxies(t *testing.T) {
	got := ParseTrustedProxies([]string{"10.0.0.0/8", " 127.0.0.1 ", "::1", "bogus"})
	require.Len(t, got, 3)
	assert.Equal(t, "10.0.0.0/8", got[0].String())
	assert.Equal(t, "127.0.0.1/32", got[1].String())
	assert.Equal(t, "::1/128", got[2].String())
}

func TestLoggingAssignsRequestID(t *testing.T) {
	var seen string
	h := Logging(slog.New(slog.NewTextHandler(io.Discard, nil)))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Len(t, seen, 36)
	assert.Equal(t, seen, rec.Header().Get(HeaderRequestID))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "abc-123")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", seen)
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"http://localhost:3000"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodOptions, "/api/markets", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), crypto.HeaderSignature)

	req = httptest.NewRequest(http.MethodGet, "/api/markets", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
