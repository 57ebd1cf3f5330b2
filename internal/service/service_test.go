package service

import (
	"bytes"
	"context"
	"encoding/json"
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

	"github.com/alanyoungcy/hyperlocal/internal/domain"
	"github.com/alanyoungcy/hyperlocal/internal/notify"
	"github.com/alanyoungcy/hyperlocal/internal/store/memory"
	"github.com/alanyoungcy/hyperlocal/internal/uint128"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// -------- fakes --------

type fakeBus struct {
	mu        sync.Mutex
	published map[string][][]byte
	stream    [][]byte
	failPub   bool
}

func newFakeBus() *fakeBus { return &fakeBus{published: map[string][][]byte{}} }

func (b *fakeBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failPub {
		return errors.New("bus down")
	}
	b.published[channel] = append(b.published[channel], payload)
	return nil
}

func (b *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) { return nil, nil }

func (b *fakeBus) StreamAppend(_ context.Context, _ string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stream = append(b.stream, payload)
	return nil
}

func (b *fakeBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

type fakeNotifier struct {
	events []string
	full   bool
}

func (n *fakeNotifier) Enqueue(ev domain.Event) bool {
	if n.full {
		return false
	}
	n.events = append(n.events, ev.EventName())
	return true
}

type fakeCache struct {
	entries map[domain.Address]domain.Market
	gets    int
}

func (c *fakeCache) Set(_ context.Context, m domain.Market) error {
	c.entries[m.Address] = m
	return nil
}

func (c *fakeCache) Get(_ context.Context, a domain.Address) (domain.Market, error) {
	c.gets++
	m, ok := c.entries[a]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (c *fakeCache) Invalidate(_ context.Context, a domain.Address) error {
	delete(c.entries, a)
	return nil
}

type memBlobs struct{ objects map[string][]byte }

func (b *memBlobs) Put(_ context.Context, path string, data io.Reader, _ string) error {
	raw, err := io.ReadAll(data)
	b.objects[path] = raw
	return err
}

func (b *memBlobs) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return b.Put(ctx, path, data, "")
}

func (b *memBlobs) Get(_ context.Context, path string) (io.ReadCloser, error) {
	raw, ok := b.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (b *memBlobs) List(context.Context, string) ([]domain.BlobInfo, error) { return nil, nil }

func (b *memBlobs) Exists(_ context.Context, path string) (bool, error) {
	_, ok := b.objects[path]
	return ok, nil
}

// -------- EventPublisher --------

func TestEventPublisherFansOut(t *testing.T) {
	bus := newFakeBus()
	n := &fakeNotifier{}
	p := NewEventPublisher(bus, n, quietLogger())

	ev := domain.PayoutClaimed{Market: domain.Address{1}, Trader: domain.Address{2}, Payout: 9}
	p.Publish(context.Background(), ev)

	require.Len(t, bus.published[domain.ChannelClaim], 1)
	require.Len(t, bus.stream, 1)
	assert.Equal(t, []string{domain.EventPayoutClaimed}, n.events)

	var env domain.Envelope
	require.NoError(t, json.Unmarshal(bus.stream[0], &env))
	assert.Equal(t, domain.EventPayoutClaimed, env.Event)
	assert.Equal(t, domain.ChannelClaim, env.Channel)

	var got domain.PayoutClaimed
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, ev.Payout, got.Payout)
	assert.Equal(t, ev.Trader, got.Trader)
}

func TestEventPublisherSurvivesBusFailure(t *testing.T) {
	bus := newFakeBus()
	bus.failPub = true
	n := &fakeNotifier{}
	p := NewEventPublisher(bus, n, quietLogger())

	p.Publish(context.Background(), domain.MarketCreated{Question: "q"})
	assert.Len(t, bus.stream, 1)
	assert.Len(t, n.events, 1)
}

func TestEventPublisherDoesNotWaitOnSlowChannels(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)
	slow := &gatedSender{gate: gate}
	d := notify.NewDispatcher([]notify.Sender{slow}, nil, 1, quietLogger())
	p := NewEventPublisher(newFakeBus(), d, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = d.Run(ctx) }()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			p.Publish(context.Background(), domain.PayoutClaimed{Payout: uint64(i)})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a stalled notification channel")
	}
}

func TestEventPublisherDropsWhenQueueFull(t *testing.T) {
	bus := newFakeBus()
	n := &fakeNotifier{full: true}
	p := NewEventPublisher(bus, n, quietLogger())

	p.Publish(context.Background(), domain.MarketCreated{Question: "q"})
	assert.Len(t, bus.stream, 1, "bus delivery is unaffected")
	assert.Empty(t, n.events)
}

type gatedSender struct{ gate chan struct{} }

func (s *gatedSender) Send(ctx context.Context, _, _ string) error {
	select {
	case <-s.gate:
	case <-ctx.Done():
	}
	return nil
}

func (s *gatedSender) Name() string { return "gated" }

// -------- MarketService --------

func seedMarket(t *testing.T, st *memory.Store) domain.Market {
	t.Helper()
	m := domain.Market{
		Address:   domain.Address{7},
		YesShares: uint128.One,
		NoShares:  uint128.One,
		Status:    domain.StatusOpen,
	}
	require.NoError(t, st.Atomic(context.Background(), func(tx domain.LedgerTx) error {
		return tx.InsertMarket(context.Background(), m)
	}))
	return m
}

func TestMarketServiceCachesReads(t *testing.T) {
	st := memory.New()
	m := seedMarket(t, st)
	cache := &fakeCache{entries: map[domain.Address]domain.Market{}}
	svc := NewMarketService(st, cache, quietLogger())
	ctx := context.Background()

	got, err := svc.GetMarket(ctx, m.Address)
	require.NoError(t, err)
	assert.Equal(t, m.Address, got.Address)
	assert.Contains(t, cache.entries, m.Address)

	_, err = svc.GetMarket(ctx, m.Address)
	require.NoError(t, err)
	assert.Equal(t, 2, cache.gets)

	_, err = svc.GetMarket(ctx, domain.Address{9})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMarketServiceQuote(t *testing.T) {
	st := memory.New()
	m := seedMarket(t, st)
	svc := NewMarketService(st, nil, quietLogger())

	q, err := svc.Quote(context.Background(), m.Address, domain.OutcomeYes, 100)
	require.NoError(t, err)
	assert.Equal(t, "98", q.Minted.String())
	assert.Equal(t, uint64(100), q.PoolAfter)

	_, err = svc.Quote(context.Background(), m.Address, domain.OutcomeNone, 100)
	assert.ErrorIs(t, err, domain.ErrInvalidSide)
}

func TestMarketServiceListPositionsUnknownMarket(t *testing.T) {
	svc := NewMarketService(memory.New(), nil, quietLogger())
	_, err := svc.ListPositions(context.Background(), domain.Address{3}, domain.ListOpts{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestClampList(t *testing.T) {
	assert.Equal(t, MaxListLimit, clampList(domain.ListOpts{}).Limit)
	assert.Equal(t, MaxListLimit, clampList(domain.ListOpts{Limit: 10_000}).Limit)
	assert.Equal(t, 5, clampList(domain.ListOpts{Limit: 5, Offset: -2}).Limit)
	assert.Zero(t, clampList(domain.ListOpts{Offset: -2}).Offset)
}

// -------- ManifestService --------

func newManifestService() (*ManifestService, *memBlobs) {
	blobs := &memBlobs{objects: map[string][]byte{}}
	s := NewManifestService(blobs, blobs, "hyperlocal", quietLogger())
	s.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return s, blobs
}

func TestManifestUploadAndFetch(t *testing.T) {
	s, blobs := newManifestService()
	ctx := context.Background()

	ref, err := s.Upload(ctx, []byte(`{"q":"Will the pier reopen?","loc":"Santa Cruz","t":"event"}`))
	require.NoError(t, err)
	assert.Equal(t, "s3://hyperlocal/manifests/"+ref.Hash.Hex()+".json", ref.URL)
	assert.Equal(t, domain.ResolutionTypeWebGeneric, ref.Manifest.ResolutionType)
	assert.Equal(t, "2026-01-03T03:04:05Z", ref.Manifest.Deadline)
	assert.Len(t, blobs.objects, 1)

	m, err := s.Fetch(ctx, ref.URL, ref.Hash)
	require.NoError(t, err)
	assert.Equal(t, ref.Manifest, m)

	_, err = s.Fetch(ctx, ref.URL, domain.Hash{1})
	assert.ErrorIs(t, err, domain.ErrInvalidManifest)

	_, err = s.Fetch(ctx, "s3://other/manifests/x.json", domain.Hash{})
	assert.ErrorIs(t, err, domain.ErrInvalidManifest)

	_, err = s.Fetch(ctx, "ipfs://abc", domain.Hash{})
	assert.ErrorIs(t, err, domain.ErrInvalidManifest)
}

func TestManifestUploadRejectsInvalid(t *testing.T) {
	s, blobs := newManifestService()
	_, err := s.Upload(context.Background(), []byte(`{"title":"x","resolution_type":"MANUAL"}`))
	assert.ErrorIs(t, err, domain.ErrInvalidManifest)
	assert.Empty(t, blobs.objects)

	_, err = s.Upload(context.Background(), bytes.Repeat([]byte("a"), MaxManifestSize+1))
	assert.ErrorIs(t, err, domain.ErrInvalidManifest)
}

func TestManifestFetchHTTP(t *testing.T) {
	body := []byte(`{"title":"Rain","description":"d","deadline":"","resolution_type":"LLM_WEB_GENERIC","config":{"search_query":"rain","validation_rules":"YES if rain"}}`)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/m.json" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	s, _ := newManifestService()
	m, err := s.Fetch(context.Background(), srv.URL+"/m.json", domain.Digest(body))
	require.NoError(t, err)
	assert.Equal(t, "Rain", m.Title)

	_, err = s.Fetch(context.Background(), srv.URL+"/missing.json", domain.Hash{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
