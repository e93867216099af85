package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/arbmon/internal/domain"
	"github.com/alanyoungcy/arbmon/internal/notify"
)

// AlertManager decides which opportunities are worth interrupting an operator
// for and rate-limits repeat alerts per pair, strategy and outcome.
type AlertManager struct {
	notifier  *notify.Notifier
	minProfit float64
	cooldown  time.Duration
	logger    *slog.Logger

	mu       sync.Mutex
	lastSent map[string]time.Time
}

// NewAlertManager creates an AlertManager. minProfit is the net profit per
// contract an opportunity must clear before any alert is sent; cooldown is the
// minimum gap between alerts for the same opportunity identity.
func NewAlertManager(notifier *notify.Notifier, minProfit float64, cooldown time.Duration, logger *slog.Logger) *AlertManager {
	return &AlertManager{
		notifier:  notifier,
		minProfit: minProfit,
		cooldown:  cooldown,
		logger:    logger.With(slog.String("component", "alerts")),
		lastSent:  make(map[string]time.Time),
	}
}

// Send alerts on every qualifying opportunity and returns how many alerts went
// out. Opportunities below the profit bar or inside their cooldown window are
// skipped silently.
func (a *AlertManager) Send(ctx context.Context, opps []domain.ArbitrageOpportunity, now time.Time) int {
	sent := 0
	for _, o := range opps {
		if o.NetProfit < a.minProfit {
			continue
		}
		if !a.claim(o, now) {
			a.logger.DebugContext(ctx, "alert suppressed by cooldown",
				slog.String("opportunity_id", o.ID),
			)
			continue
		}

		opp := o
		alert := notify.Alert{
			Kind:        notify.KindOpportunity,
			Title:       fmt.Sprintf("Arbitrage: %.1f%% net on %s", o.ProfitPct*100, o.Outcome),
			Body:        fmt.Sprintf("%s vs %s", o.BuyListing, o.SellListing),
			Opportunity: &opp,
		}
		if err := a.notifier.Announce(ctx, alert); err != nil {
			a.logger.ErrorContext(ctx, "alert delivery failed",
				slog.String("opportunity_id", o.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		sent++
	}
	return sent
}

// claim records an alert for the opportunity identity unless one was sent
// within the cooldown window.
func (a *AlertManager) claim(o domain.ArbitrageOpportunity, now time.Time) bool {
	key := fmt.Sprintf("%s|%s|%s", o.PairKey, o.Strategy, o.Outcome)

	a.mu.Lock()
	defer a.mu.Unlock()
	if last, ok := a.lastSent[key]; ok && now.Sub(last) < a.cooldown {
		return false
	}
	a.lastSent[key] = now
	return true
}
