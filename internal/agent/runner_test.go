package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	s3blob "github.com/alanyoungcy/hyperlocal/internal/blob/s3"
	"github.com/alanyoungcy/hyperlocal/internal/domain"
	"github.com/alanyoungcy/hyperlocal/internal/engine"
	"github.com/alanyoungcy/hyperlocal/internal/platform/oracle"
	"github.com/alanyoungcy/hyperlocal/internal/store/memory"
)

var (
	region   = domain.RegionID{0x11}
	asset    = domain.Address{0xa5}
	creator  = domain.Address{0xc0}
	resolver = domain.Address{0xd0}
	start    = time.Unix(1_700_000_000, 0).UTC()
)

type stubOracle struct {
	mu      sync.Mutex
	verdict oracle.Verdict
	err     error
	calls   int
}

func (o *stubOracle) Evaluate(context.Context, domain.Manifest) (oracle.Verdict, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	return o.verdict, o.err
}

type stubManifests struct{}

func (stubManifests) Fetch(context.Context, string, domain.Hash) (domain.Manifest, error) {
	return domain.Manifest{
		Title:          "bridge",
		ResolutionType: domain.ResolutionTypeWebGeneric,
		Config:         domain.ManifestConfig{SearchQuery: "bridge", ValidationRules: "open"},
	}, nil
}

type memBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (b *memBlobs) Put(_ context.Context, path string, data io.Reader, _ string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	b.objects[path] = raw
	return nil
}

func (b *memBlobs) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return b.Put(ctx, path, data, "")
}

type heldLocks struct{ held map[string]bool }

func (l heldLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	if l.held[key] {
		return nil, domain.ErrLockHeld
	}
	return func() {}, nil
}

type countingArchiver struct {
	mu    sync.Mutex
	calls map[domain.Address]int
}

func (a *countingArchiver) ArchiveSettlement(_ context.Context, m domain.Address) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls[m]++
	return "settlements/" + m.Hex() + ".jsonl", nil
}

type fixture struct {
	ctx      context.Context
	store    *memory.Store
	engine   *engine.Engine
	oracle   *stubOracle
	blobs    *memBlobs
	archiver *countingArchiver
	locks    heldLocks
	runner   *Runner
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{
		ctx:      context.Background(),
		store:    memory.New(),
		oracle:   &stubOracle{},
		blobs:    &memBlobs{objects: map[string][]byte{}},
		archiver: &countingArchiver{calls: map[domain.Address]int{}},
		locks:    heldLocks{held: map[string]bool{}},
	}
	f.engine = engine.New(f.store, nil, engine.Config{}, logger,
		engine.WithClock(func() time.Time { return start }))

	f.runner = NewRunner(Deps{
		Query:     f.store,
		Engine:    f.engine,
		Oracle:    f.oracle,
		Manifests: stubManifests{},
		Evidence:  f.blobs,
		Bucket:    "hyperlocal",
		Locks:     f.locks,
		Archiver:  f.archiver,
	}, resolver, cfg, logger)
	f.runner.now = func() time.Time { return start.Add(2 * time.Hour) }
	return f
}

func (f *fixture) createMarket(t *testing.T, question string, closeIn time.Duration, res domain.Address) domain.Market {
	t.Helper()
	m, err := f.engine.CreateMarket(f.ctx, engine.CreateMarketParams{
		Creator:     creator,
		Region:      region,
		Question:    question,
		CloseTime:   start.Add(closeIn).Unix(),
		ManifestURL: "s3://hyperlocal/manifests/x.json",
		Asset:       asset,
		Resolver:    res,
	})
	require.NoError(t, err)
	return m
}

func (f *fixture) market(t *testing.T, addr domain.Address) domain.Market {
	t.Helper()
	m, err := f.store.GetMarket(f.ctx, addr)
	require.NoError(t, err)
	return m
}

func TestResolveMarketYes(t *testing.T) {
	f := newFixture(t, Config{MinConfidence: 0.7})
	m := f.createMarket(t, "Will the bridge reopen?", time.Hour, resolver)
	f.oracle.verdict = oracle.Verdict{Outcome: oracle.OutcomeYes, Confidence: 0.9, Reason: "city notice", EvidenceURL: "https://city.example/notice"}

	action, err := f.runner.ResolveMarket(f.ctx, m)
	require.NoError(t, err)
	assert.Equal(t, ActionResolved, action)

	got := f.market(t, m.Address)
	assert.True(t, got.Resolved)
	assert.Equal(t, domain.OutcomeYes, got.Outcome)
	assert.Equal(t, domain.OutcomeYes, got.AgentOutcome)
	assert.Equal(t, "https://city.example/notice", got.EvidenceURL)

	path := s3blob.EvidencePath(m.Address, start.Add(2*time.Hour))
	require.Contains(t, f.blobs.objects, path)
	assert.Contains(t, string(f.blobs.objects[path]), `"city notice"`)
}

func TestResolveMarketLowConfidenceSkips(t *testing.T) {
	f := newFixture(t, Config{MinConfidence: 0.7})
	m := f.createMarket(t, "Will the bridge reopen?", time.Hour, resolver)
	f.oracle.verdict = oracle.Verdict{Outcome: oracle.OutcomeNo, Confidence: 0.4}

	action, err := f.runner.ResolveMarket(f.ctx, m)
	require.NoError(t, err)
	assert.Equal(t, ActionSkipped, action)
	assert.Equal(t, domain.StatusOpen, f.market(t, m.Address).Status)

	// nothing was submitted, so nothing is archived
	assert.Empty(t, f.blobs.objects)
}

func TestResolveMarketEscalatesUnsure(t *testing.T) {
	f := newFixture(t, Config{MinConfidence: 0.7, EscalateUnsure: true})
	m := f.createMarket(t, "Will the bridge reopen?", time.Hour, resolver)
	f.oracle.verdict = oracle.Verdict{Outcome: oracle.OutcomeUnsure, Reason: "no coverage"}

	action, err := f.runner.ResolveMarket(f.ctx, m)
	require.NoError(t, err)
	assert.Equal(t, ActionDisputed, action)

	got := f.market(t, m.Address)
	assert.Equal(t, domain.StatusDisputed, got.Status)
	assert.False(t, got.Resolved)
	assert.Len(t, f.blobs.objects, 1, "the escalation is archived")

	// already disputed: a second unsure verdict is not re-submitted or archived
	f.runner.now = func() time.Time { return start.Add(3 * time.Hour) }
	action, err = f.runner.ResolveMarket(f.ctx, got)
	require.NoError(t, err)
	assert.Equal(t, ActionSkipped, action)
	assert.Len(t, f.blobs.objects, 1)
}

func TestResolveMarketUnsureWithoutEscalationArchivesNothing(t *testing.T) {
	f := newFixture(t, Config{MinConfidence: 0.7})
	m := f.createMarket(t, "Will the bridge reopen?", time.Hour, resolver)
	f.oracle.verdict = oracle.Verdict{Outcome: oracle.OutcomeUnsure, Confidence: 0.9, Reason: "no coverage"}

	action, err := f.runner.ResolveMarket(f.ctx, m)
	require.NoError(t, err)
	assert.Equal(t, ActionSkipped, action)
	assert.Empty(t, f.blobs.objects)
}

func TestResolveMarketLongEvidenceUsesArchive(t *testing.T) {
	f := newFixture(t, Config{})
	m := f.createMarket(t, "Will the bridge reopen?", time.Hour, resolver)
	f.oracle.verdict = oracle.Verdict{
		Outcome:     oracle.OutcomeNo,
		Confidence:  1,
		EvidenceURL: "https://city.example/" + strings.Repeat("a", domain.MaxURLLen),
	}

	_, err := f.runner.ResolveMarket(f.ctx, m)
	require.NoError(t, err)

	got := f.market(t, m.Address)
	want := fmt.Sprintf("s3://hyperlocal/evidence/%s/%d.json", m.Address.Hex(), start.Add(2*time.Hour).Unix())
	assert.Equal(t, want, got.EvidenceURL)
}

func TestResolveMarketOracleError(t *testing.T) {
	f := newFixture(t, Config{})
	m := f.createMarket(t, "Will the bridge reopen?", time.Hour, resolver)
	f.oracle.err = errors.New("timeout")

	action, err := f.runner.ResolveMarket(f.ctx, m)
	require.Error(t, err)
	assert.Equal(t, ActionNoVerdict, action)
	assert.Equal(t, domain.StatusOpen, f.market(t, m.Address).Status)
}

func TestResolvePendingSelectsCandidates(t *testing.T) {
	f := newFixture(t, Config{Concurrency: 2})
	due := f.createMarket(t, "due", time.Hour, resolver)
	notClosed := f.createMarket(t, "later", 5*time.Hour, resolver)
	otherResolver := f.createMarket(t, "foreign", time.Hour, domain.Address{0xee})
	locked := f.createMarket(t, "locked", time.Hour, resolver)
	f.locks.held[marketLockKey(locked.Address)] = true
	f.oracle.verdict = oracle.Verdict{Outcome: oracle.OutcomeYes, Confidence: 1}

	require.NoError(t, f.runner.ResolvePending(f.ctx))

	assert.True(t, f.market(t, due.Address).Resolved)
	assert.False(t, f.market(t, notClosed.Address).Resolved)
	assert.False(t, f.market(t, otherResolver.Address).Resolved)
	assert.False(t, f.market(t, locked.Address).Resolved)
	assert.Equal(t, 1, f.oracle.calls)
}

func TestArchiveResolvedOnce(t *testing.T) {
	f := newFixture(t, Config{ArchiveSettlements: true})
	m := f.createMarket(t, "due", time.Hour, resolver)
	_, err := f.engine.Resolve(f.ctx, m.Address, resolver, domain.OutcomeNo)
	require.NoError(t, err)

	require.NoError(t, f.runner.ArchiveResolved(f.ctx))
	require.NoError(t, f.runner.ArchiveResolved(f.ctx))
	assert.Equal(t, 1, f.archiver.calls[m.Address])
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newFixture(t, Config{PollInterval: 10 * time.Millisecond})
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := f.runner.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEvidenceRecordJSON(t *testing.T) {
	f := newFixture(t, Config{})
	m := f.createMarket(t, "due", time.Hour, resolver)
	_, err := f.runner.archiveVerdict(f.ctx, m, oracle.Verdict{Outcome: oracle.OutcomeYes, Confidence: 1})
	require.NoError(t, err)
	for _, raw := range f.blobs.objects {
		assert.True(t, bytes.Contains(raw, []byte(resolver.Hex())))
	}
}
