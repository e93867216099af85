// Package notify delivers operator alerts about detected arbitrage
// opportunities and monitor lifecycle events. Alerts are dispatched to every
// registered sender (Telegram, Discord) and can be filtered by kind so
// operators receive only the event types they care about.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/arbmon/internal/domain"
)

// Kind classifies an alert so operators can opt in per event type.
type Kind string

const (
	// KindOpportunity announces a freshly detected arbitrage opportunity.
	KindOpportunity Kind = "opportunity"
	// KindCycleError reports a failed detection cycle.
	KindCycleError Kind = "cycle_error"
	// KindRetention reports the outcome of a retention pass.
	KindRetention Kind = "retention"
)

// Alert is a single operator notification. Opportunity is non-nil for
// KindOpportunity alerts so senders can render platform-native layouts
// instead of a plain text blob.
type Alert struct {
	Kind        Kind
	Title       string
	Body        string
	Opportunity *domain.ArbitrageOpportunity
}

// Sender is the interface each notification channel implements.
type Sender interface {
	// Send delivers one alert.
	Send(ctx context.Context, a Alert) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// Notifier dispatches alerts to one or more Senders, filtered by kind.
type Notifier struct {
	senders []Sender
	kinds   map[Kind]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier that delivers to the given senders. Only
// alerts whose kind appears in kinds are forwarded; an empty kinds slice
// allows every kind.
func NewNotifier(senders []Sender, kinds []string, logger *slog.Logger) *Notifier {
	allowed := make(map[Kind]bool, len(kinds))
	for _, k := range kinds {
		allowed[Kind(strings.TrimSpace(k))] = true
	}
	return &Notifier{
		senders: senders,
		kinds:   allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Announce delivers the alert to all senders unless its kind is filtered
// out. Errors from individual senders are collected and returned combined;
// one sender failing does not prevent delivery to the rest.
func (n *Notifier) Announce(ctx context.Context, a Alert) error {
	if len(n.kinds) > 0 && !n.kinds[a.Kind] {
		n.logger.DebugContext(ctx, "alert kind filtered out",
			slog.String("kind", string(a.Kind)),
		)
		return nil
	}
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, a); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("kind", string(a.Kind)),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		} else {
			n.logger.DebugContext(ctx, "alert sent",
				slog.String("sender", s.Name()),
				slog.String("kind", string(a.Kind)),
				slog.String("title", a.Title),
			)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
