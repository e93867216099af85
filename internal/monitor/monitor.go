// Package monitor drives the detection loop: fetch listings from both
// platforms, score cross-platform similarity, detect arbitrage opportunities,
// persist the results, and fan out alerts.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/arbmon/internal/config"
	"github.com/alanyoungcy/arbmon/internal/detector"
	"github.com/alanyoungcy/arbmon/internal/domain"
	"github.com/alanyoungcy/arbmon/internal/matcher"
)

// cycleLockKey guards the detection cycle so only one monitor instance runs
// it at a time.
const cycleLockKey = "arbmon:cycle"

// ListingProvider fetches the current active listings for one platform.
type ListingProvider interface {
	Platform() domain.Platform
	FetchListings(ctx context.Context) ([]domain.MarketListing, error)
}

// Stores bundles the persistence interfaces the monitor writes to.
type Stores struct {
	Listings      domain.ListingStore
	Pairs         domain.PairStore
	Similarities  domain.SimilarityStore
	Opportunities domain.OpportunityStore
	CycleLogs     domain.CycleLogStore
	Audit         domain.AuditStore
}

// Monitor runs detection cycles on a fixed interval. Each cycle is guarded by
// a distributed lock so horizontally scaled instances do not double-detect.
type Monitor struct {
	cfg      config.MonitorConfig
	poly     ListingProvider
	kalshi   ListingProvider
	engine   *matcher.Engine
	detector *detector.Detector
	stores   Stores
	quotes   domain.QuoteCache  // optional
	bus      domain.SignalBus   // optional
	locks    domain.LockManager // optional, single-instance when nil
	alerts   *AlertManager      // optional
	logger   *slog.Logger
	trigger  chan struct{}
}

// NewMonitor wires a Monitor. quotes, bus, locks and alerts may be nil; the
// corresponding step is skipped.
func NewMonitor(
	cfg config.MonitorConfig,
	poly, kalshi ListingProvider,
	engine *matcher.Engine,
	det *detector.Detector,
	stores Stores,
	quotes domain.QuoteCache,
	bus domain.SignalBus,
	locks domain.LockManager,
	alerts *AlertManager,
	logger *slog.Logger,
) *Monitor {
	return &Monitor{
		cfg:      cfg,
		poly:     poly,
		kalshi:   kalshi,
		engine:   engine,
		detector: det,
		stores:   stores,
		quotes:   quotes,
		bus:      bus,
		locks:    locks,
		alerts:   alerts,
		logger:   logger.With(slog.String("component", "monitor")),
		trigger:  make(chan struct{}, 1),
	}
}

// TriggerCh returns the channel used to request an immediate cycle, for
// example from the HTTP trigger endpoint. Sends should be non-blocking.
func (m *Monitor) TriggerCh() chan<- struct{} {
	return m.trigger
}

// Run executes cycles on the configured interval until ctx is cancelled. The
// first cycle runs immediately. A failed cycle is logged and the loop keeps
// going; only ctx cancellation stops it.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.InfoContext(ctx, "monitor loop starting",
		slog.Duration("interval", m.cfg.Interval.Duration),
	)

	if _, err := m.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
		m.logger.ErrorContext(ctx, "cycle failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(m.cfg.Interval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.InfoContext(ctx, "monitor loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := m.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				m.logger.ErrorContext(ctx, "cycle failed", slog.String("error", err.Error()))
			}
		case <-m.trigger:
			m.logger.InfoContext(ctx, "cycle triggered manually")
			if _, err := m.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				m.logger.ErrorContext(ctx, "cycle failed", slog.String("error", err.Error()))
			}
		}
	}
}

// RunOnce executes a single detection cycle and returns its telemetry. When
// another instance holds the cycle lock the cycle is skipped without error.
func (m *Monitor) RunOnce(ctx context.Context) (domain.CycleLog, error) {
	start := time.Now().UTC()
	log := domain.CycleLog{
		ID:        uuid.NewString(),
		StartedAt: start,
	}

	if m.locks != nil {
		unlock, err := m.locks.Acquire(ctx, cycleLockKey, m.cfg.LockTTL.Duration)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				m.logger.InfoContext(ctx, "cycle lock held by another instance, skipping")
				return log, nil
			}
			return log, fmt.Errorf("acquiring cycle lock: %w", err)
		}
		defer unlock()
	}

	opps, err := m.cycle(ctx, &log)
	log.Duration = time.Since(start)
	if err != nil {
		log.Error = err.Error()
	}

	if insErr := m.stores.CycleLogs.Insert(ctx, log); insErr != nil {
		m.logger.ErrorContext(ctx, "persisting cycle log failed",
			slog.String("error", insErr.Error()),
		)
	}

	if err != nil {
		return log, err
	}

	m.logger.InfoContext(ctx, "cycle complete",
		slog.String("cycle_id", log.ID),
		slog.Duration("duration", log.Duration),
		slog.Int("matches", log.MatchesFound),
		slog.Int("opportunities", len(opps)),
		slog.Int("alerts", log.AlertsSent),
	)
	return log, nil
}

func (m *Monitor) cycle(ctx context.Context, log *domain.CycleLog) ([]domain.ArbitrageOpportunity, error) {
	polys, kalshis, err := m.fetchListings(ctx)
	if err != nil {
		return nil, err
	}
	log.PolyListings = len(polys)
	log.KalshiListings = len(kalshis)
	log.PairsEvaluated = len(polys) * len(kalshis)

	if err := m.persistListings(ctx, polys, kalshis); err != nil {
		return nil, err
	}

	if err := m.syncManualPairs(ctx); err != nil {
		m.logger.WarnContext(ctx, "syncing manual pairs failed",
			slog.String("error", err.Error()),
		)
	}

	records, err := m.engine.Score(ctx, polys, kalshis)
	if err != nil {
		return nil, fmt.Errorf("scoring listings: %w", err)
	}
	for _, r := range records {
		if r.Degraded {
			log.Degraded = true
			break
		}
	}

	if persist := matcher.Considered(records, m.engine.ConsideredFloor()); len(persist) > 0 {
		if err := m.stores.Similarities.InsertBatch(ctx, persist); err != nil {
			return nil, fmt.Errorf("persisting similarity records: %w", err)
		}
	}

	matches := matcher.Matches(records)
	log.MatchesFound = len(matches)
	if err := m.persistPairs(ctx, matches); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	opps, excludedPairs := m.detector.Detect(ctx, matches, now)
	log.Opportunities = len(opps)
	for _, ex := range excludedPairs {
		m.logger.WarnContext(ctx, "pair excluded from detection",
			slog.String("pair_key", ex.PairKey),
			slog.String("reason", ex.Reason),
		)
	}

	for _, o := range opps {
		if err := m.stores.Opportunities.Upsert(ctx, o); err != nil {
			return nil, fmt.Errorf("persisting opportunity %s: %w", o.ID, err)
		}
		log.TotalNetProfit += o.TotalProfit
		if o.NetProfit > log.BestNetProfit {
			log.BestNetProfit = o.NetProfit
		}
	}

	m.publish(ctx, opps)

	if m.alerts != nil {
		log.AlertsSent = m.alerts.Send(ctx, opps, now)
	}

	if err := m.stores.Audit.Log(ctx, "cycle_completed", map[string]any{
		"cycle_id":       log.ID,
		"matches":        log.MatchesFound,
		"opportunities":  log.Opportunities,
		"pairs_excluded": len(excludedPairs),
		"degraded":       log.Degraded,
	}); err != nil {
		m.logger.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
	}

	return opps, nil
}

// fetchListings pulls both platforms concurrently.
func (m *Monitor) fetchListings(ctx context.Context) ([]domain.MarketListing, []domain.MarketListing, error) {
	var polys, kalshis []domain.MarketListing

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		polys, err = m.poly.FetchListings(gctx)
		if err != nil {
			return fmt.Errorf("fetching %s listings: %w", m.poly.Platform(), err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		kalshis, err = m.kalshi.FetchListings(gctx)
		if err != nil {
			return fmt.Errorf("fetching %s listings: %w", m.kalshi.Platform(), err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return polys, kalshis, nil
}

func (m *Monitor) persistListings(ctx context.Context, polys, kalshis []domain.MarketListing) error {
	all := make([]domain.MarketListing, 0, len(polys)+len(kalshis))
	all = append(all, polys...)
	all = append(all, kalshis...)
	if len(all) == 0 {
		return nil
	}
	if err := m.stores.Listings.UpsertBatch(ctx, all); err != nil {
		return fmt.Errorf("persisting listings: %w", err)
	}

	if m.quotes == nil {
		return nil
	}
	for _, l := range all {
		if !l.Quote.Valid() {
			continue
		}
		if err := m.quotes.SetQuote(ctx, l.Platform, l.ID, l.Quote); err != nil {
			m.logger.WarnContext(ctx, "caching quote failed",
				slog.String("platform", string(l.Platform)),
				slog.String("listing_id", l.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// syncManualPairs refreshes the engine registry from the pair store so
// operator confirmations made through the API take effect next cycle.
func (m *Monitor) syncManualPairs(ctx context.Context) error {
	pairs, err := m.stores.Pairs.ListManual(ctx)
	if err != nil {
		return err
	}
	reg := m.engine.Registry()
	for _, p := range pairs {
		reg.AddManual(p.PolyID, p.KalshiID)
	}
	return nil
}

// persistPairs upserts one MarketPair per confirmed match. Manual pairs keep
// their manual source; everything else is recorded as engine-scored.
func (m *Monitor) persistPairs(ctx context.Context, matches []domain.SimilarityRecord) error {
	now := time.Now().UTC()
	for _, rec := range matches {
		poly, kalshi := rec.ListingA, rec.ListingB
		if poly.Platform != domain.PlatformPolymarket {
			poly, kalshi = kalshi, poly
		}
		pair := domain.MarketPair{
			ID:         uuid.NewString(),
			PairKey:    rec.PairKey,
			PolyID:     poly.ID,
			KalshiID:   kalshi.ID,
			Source:     rec.MatchType,
			Confidence: rec.Score.Overall,
			UpdatedAt:  now,
		}
		if err := m.stores.Pairs.Upsert(ctx, pair); err != nil {
			return fmt.Errorf("persisting pair %s: %w", rec.PairKey, err)
		}
	}
	return nil
}

// publish fans each opportunity out over pub/sub and the durable stream.
// Delivery failures are logged, not fatal: persistence already succeeded.
func (m *Monitor) publish(ctx context.Context, opps []domain.ArbitrageOpportunity) {
	if m.bus == nil || len(opps) == 0 {
		return
	}
	for _, o := range opps {
		if err := m.bus.PublishOpportunity(ctx, o); err != nil {
			m.logger.WarnContext(ctx, "publishing opportunity failed",
				slog.String("opportunity_id", o.ID),
				slog.String("error", err.Error()),
			)
		}
		if err := m.bus.AppendOpportunity(ctx, o); err != nil {
			m.logger.WarnContext(ctx, "appending opportunity to stream failed",
				slog.String("opportunity_id", o.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}
