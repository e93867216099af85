package monitor

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbmon/internal/config"
	"github.com/alanyoungcy/arbmon/internal/detector"
	"github.com/alanyoungcy/arbmon/internal/domain"
	"github.com/alanyoungcy/arbmon/internal/matcher"
	"github.com/alanyoungcy/arbmon/internal/notify"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ── fakes ──

type fakeProvider struct {
	platform domain.Platform
	listings []domain.MarketListing
	err      error
}

func (p *fakeProvider) Platform() domain.Platform { return p.platform }

func (p *fakeProvider) FetchListings(ctx context.Context) ([]domain.MarketListing, error) {
	return p.listings, p.err
}

type memStores struct {
	mu            sync.Mutex
	listings      []domain.MarketListing
	pairs         map[string]domain.MarketPair
	similarities  []domain.SimilarityRecord
	opportunities map[string]domain.ArbitrageOpportunity
	cycleLogs     []domain.CycleLog
	auditEvents   []string
}

func newMemStores() *memStores {
	return &memStores{
		pairs:         make(map[string]domain.MarketPair),
		opportunities: make(map[string]domain.ArbitrageOpportunity),
	}
}

func (s *memStores) asStores() Stores {
	return Stores{
		Listings:      (*memListingStore)(s),
		Pairs:         (*memPairStore)(s),
		Similarities:  (*memSimilarityStore)(s),
		Opportunities: (*memOpportunityStore)(s),
		CycleLogs:     (*memCycleLogStore)(s),
		Audit:         (*memAuditStore)(s),
	}
}

type memListingStore memStores

func (s *memListingStore) UpsertBatch(ctx context.Context, listings []domain.MarketListing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listings = append(s.listings, listings...)
	return nil
}

func (s *memListingStore) GetByID(ctx context.Context, platform domain.Platform, id string) (domain.MarketListing, error) {
	return domain.MarketListing{}, domain.ErrNotFound
}

func (s *memListingStore) ListActive(ctx context.Context, platform domain.Platform, opts domain.ListOpts) ([]domain.MarketListing, error) {
	return nil, nil
}

func (s *memListingStore) Count(ctx context.Context, platform domain.Platform) (int64, error) {
	return int64(len(s.listings)), nil
}

type memPairStore memStores

func (s *memPairStore) Upsert(ctx context.Context, pair domain.MarketPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pairs[pair.PairKey] = pair
	return nil
}

func (s *memPairStore) GetByKey(ctx context.Context, pairKey string) (domain.MarketPair, error) {
	p, ok := s.pairs[pairKey]
	if !ok {
		return domain.MarketPair{}, domain.ErrNotFound
	}
	return p, nil
}

func (s *memPairStore) Delete(ctx context.Context, pairKey string) error {
	delete(s.pairs, pairKey)
	return nil
}

func (s *memPairStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.MarketPair, error) {
	return nil, nil
}

func (s *memPairStore) ListManual(ctx context.Context) ([]domain.MarketPair, error) {
	var out []domain.MarketPair
	for _, p := range s.pairs {
		if p.Source == domain.MatchTypeManual {
			out = append(out, p)
		}
	}
	return out, nil
}

type memSimilarityStore memStores

func (s *memSimilarityStore) InsertBatch(ctx context.Context, records []domain.SimilarityRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.similarities = append(s.similarities, records...)
	return nil
}

func (s *memSimilarityStore) ListByPair(ctx context.Context, pairKey string, opts domain.ListOpts) ([]domain.SimilarityRecord, error) {
	return nil, nil
}

func (s *memSimilarityStore) ListMatches(ctx context.Context, opts domain.ListOpts) ([]domain.SimilarityRecord, error) {
	return nil, nil
}

func (s *memSimilarityStore) ListConsidered(ctx context.Context, opts domain.ListOpts) ([]domain.SimilarityRecord, error) {
	return nil, nil
}

type memOpportunityStore memStores

func (s *memOpportunityStore) Upsert(ctx context.Context, opp domain.ArbitrageOpportunity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opportunities[opp.ID] = opp
	return nil
}

func (s *memOpportunityStore) GetByID(ctx context.Context, id string) (domain.ArbitrageOpportunity, error) {
	o, ok := s.opportunities[id]
	if !ok {
		return domain.ArbitrageOpportunity{}, domain.ErrNotFound
	}
	return o, nil
}

func (s *memOpportunityStore) ListRecent(ctx context.Context, limit int) ([]domain.ArbitrageOpportunity, error) {
	return nil, nil
}

func (s *memOpportunityStore) ListByPair(ctx context.Context, pairKey string, opts domain.ListOpts) ([]domain.ArbitrageOpportunity, error) {
	return nil, nil
}

func (s *memOpportunityStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	return int64(len(s.opportunities)), nil
}

type memCycleLogStore memStores

func (s *memCycleLogStore) Insert(ctx context.Context, log domain.CycleLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycleLogs = append(s.cycleLogs, log)
	return nil
}

func (s *memCycleLogStore) ListRecent(ctx context.Context, limit int) ([]domain.CycleLog, error) {
	return s.cycleLogs, nil
}

func (s *memCycleLogStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	return int64(len(s.cycleLogs)), nil
}

type memAuditStore memStores

func (s *memAuditStore) Log(ctx context.Context, event string, detail map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auditEvents = append(s.auditEvents, event)
	return nil
}

func (s *memAuditStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func (s *memAuditStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

type fakeBus struct {
	mu        sync.Mutex
	published []domain.ArbitrageOpportunity
	appended  []domain.ArbitrageOpportunity
}

func (b *fakeBus) PublishOpportunity(ctx context.Context, o domain.ArbitrageOpportunity) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, o)
	return nil
}

func (b *fakeBus) SubscribeOpportunities(ctx context.Context) (<-chan domain.ArbitrageOpportunity, error) {
	return nil, nil
}

func (b *fakeBus) AppendOpportunity(ctx context.Context, o domain.ArbitrageOpportunity) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.appended = append(b.appended, o)
	return nil
}

func (b *fakeBus) ReplayOpportunities(ctx context.Context, afterID string, count int) ([]domain.FeedEntry, error) {
	return nil, nil
}

type fakeLocks struct {
	held     bool
	acquired int
}

func (l *fakeLocks) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if l.held {
		return nil, domain.ErrLockHeld
	}
	l.acquired++
	return func() {}, nil
}

type recordingSender struct {
	mu   sync.Mutex
	sent []string
}

func (r *recordingSender) Send(ctx context.Context, a notify.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, a.Title)
	return nil
}

func (r *recordingSender) Name() string { return "recording" }

// ── fixtures ──

func activeListing(platform domain.Platform, id, title string, yes float64) domain.MarketListing {
	return domain.MarketListing{
		ID:       id,
		Platform: platform,
		Title:    title,
		Status:   domain.ListingStatusActive,
		Quote: domain.Quote{
			YesPrice:  yes,
			NoPrice:   1 - yes,
			Volume24h: 50_000,
			UpdatedAt: time.Now().UTC(),
		},
	}
}

func newTestMonitor(t *testing.T, stores *memStores, bus *fakeBus, locks domain.LockManager, alerts *AlertManager) *Monitor {
	t.Helper()
	cfg := config.Defaults()

	// No embedder configured: the engine runs degraded on lexical + keyword.
	engine := matcher.NewEngine(cfg.Matching, nil, testLogger())
	det := detector.NewDetector(cfg.Detection, testLogger())

	poly := &fakeProvider{
		platform: domain.PlatformPolymarket,
		listings: []domain.MarketListing{
			activeListing(domain.PlatformPolymarket, "p1", "Will candidate X win the 2026 senate race", 0.45),
		},
	}
	kalshi := &fakeProvider{
		platform: domain.PlatformKalshi,
		listings: []domain.MarketListing{
			activeListing(domain.PlatformKalshi, "k1", "Will candidate X win the 2026 senate race", 0.52),
		},
	}

	var busIface domain.SignalBus
	if bus != nil {
		busIface = bus
	}
	return NewMonitor(cfg.Monitor, poly, kalshi, engine, det, stores.asStores(), nil, busIface, locks, alerts, testLogger())
}

func TestRunOnceDetectsAndPersists(t *testing.T) {
	stores := newMemStores()
	bus := &fakeBus{}
	sender := &recordingSender{}
	notifier := notify.NewNotifier([]notify.Sender{sender}, nil, testLogger())
	alerts := NewAlertManager(notifier, 0.01, 15*time.Minute, testLogger())

	m := newTestMonitor(t, stores, bus, nil, alerts)
	log, err := m.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, log.PolyListings)
	assert.Equal(t, 1, log.KalshiListings)
	assert.Equal(t, 1, log.MatchesFound)
	assert.True(t, log.Degraded)
	assert.Positive(t, log.Opportunities)
	assert.Equal(t, log.Opportunities, log.AlertsSent)
	assert.InDelta(t, 0.0351, log.BestNetProfit, 1e-9)

	assert.Len(t, stores.listings, 2)
	assert.NotEmpty(t, stores.similarities)
	assert.Len(t, stores.pairs, 1)
	assert.Len(t, stores.opportunities, log.Opportunities)
	require.Len(t, stores.cycleLogs, 1)
	assert.Equal(t, log.ID, stores.cycleLogs[0].ID)
	assert.Contains(t, stores.auditEvents, "cycle_completed")

	require.Len(t, bus.published, log.Opportunities)
	assert.Len(t, bus.appended, log.Opportunities)
	assert.InDelta(t, log.BestNetProfit, bus.published[0].NetProfit, 1e-9)
	assert.Len(t, sender.sent, log.AlertsSent)
}

func TestRunOnceSkipsWhenLockHeld(t *testing.T) {
	stores := newMemStores()
	locks := &fakeLocks{held: true}

	m := newTestMonitor(t, stores, nil, locks, nil)
	log, err := m.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Zero(t, log.MatchesFound)
	assert.Empty(t, stores.listings)
	assert.Empty(t, stores.opportunities)
}

func TestRunOnceAcquiresLock(t *testing.T) {
	stores := newMemStores()
	locks := &fakeLocks{}

	m := newTestMonitor(t, stores, nil, locks, nil)
	_, err := m.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, locks.acquired)
}

func TestAlertCooldownSuppressesRepeats(t *testing.T) {
	sender := &recordingSender{}
	notifier := notify.NewNotifier([]notify.Sender{sender}, nil, testLogger())
	alerts := NewAlertManager(notifier, 0.01, 15*time.Minute, testLogger())

	opp := domain.ArbitrageOpportunity{
		ID:        "o1",
		PairKey:   "polymarket:p1|kalshi:k1",
		Strategy:  domain.StrategyBuyPolySellKalshi,
		Outcome:   domain.OutcomeYes,
		NetProfit: 0.05,
	}

	now := time.Now().UTC()
	assert.Equal(t, 1, alerts.Send(context.Background(), []domain.ArbitrageOpportunity{opp}, now))
	assert.Equal(t, 0, alerts.Send(context.Background(), []domain.ArbitrageOpportunity{opp}, now.Add(time.Minute)))
	assert.Equal(t, 1, alerts.Send(context.Background(), []domain.ArbitrageOpportunity{opp}, now.Add(16*time.Minute)))
	assert.Len(t, sender.sent, 2)
}

func TestAlertProfitFloor(t *testing.T) {
	sender := &recordingSender{}
	notifier := notify.NewNotifier([]notify.Sender{sender}, nil, testLogger())
	alerts := NewAlertManager(notifier, 0.10, time.Minute, testLogger())

	opp := domain.ArbitrageOpportunity{
		ID:        "o1",
		PairKey:   "polymarket:p1|kalshi:k1",
		Strategy:  domain.StrategyBuyPolySellKalshi,
		Outcome:   domain.OutcomeYes,
		NetProfit: 0.05,
	}
	assert.Equal(t, 0, alerts.Send(context.Background(), []domain.ArbitrageOpportunity{opp}, time.Now().UTC()))
	assert.Empty(t, sender.sent)
}

func TestNextCronTimeDaily(t *testing.T) {
	after := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)
	next, err := nextCronTime("0 3 * * *", after)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 2, 3, 0, 0, 0, time.UTC), next)
}

func TestNextCronTimeRejectsBadExpression(t *testing.T) {
	_, err := nextCronTime("not a cron", time.Now())
	assert.Error(t, err)

	_, err = nextCronTime("0 3 * *", time.Now())
	assert.Error(t, err)
}

type fakeArchiver struct {
	opps, cycles int64
}

func (a *fakeArchiver) ArchiveOpportunities(ctx context.Context, before time.Time) (int64, error) {
	a.opps++
	return a.opps, nil
}

func (a *fakeArchiver) ArchiveCycleLogs(ctx context.Context, before time.Time) (int64, error) {
	a.cycles++
	return a.cycles, nil
}

func TestJanitorArchivesThenDeletes(t *testing.T) {
	stores := newMemStores()
	arch := &fakeArchiver{}
	cfg := config.Defaults().Monitor

	j := NewJanitor(arch, (*memOpportunityStore)(stores), (*memCycleLogStore)(stores), (*memAuditStore)(stores), cfg, testLogger())
	require.NoError(t, j.Run(context.Background()))

	assert.EqualValues(t, 1, arch.opps)
	assert.EqualValues(t, 1, arch.cycles)
	assert.Contains(t, stores.auditEvents, "retention_pass")
}

func TestJanitorRunsWithoutArchiver(t *testing.T) {
	stores := newMemStores()
	cfg := config.Defaults().Monitor

	j := NewJanitor(nil, (*memOpportunityStore)(stores), (*memCycleLogStore)(stores), (*memAuditStore)(stores), cfg, testLogger())
	require.NoError(t, j.Run(context.Background()))
	assert.Contains(t, stores.auditEvents, "retention_pass")
}
