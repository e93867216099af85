package kalshi

import (
	"time"

	"github.com/alanyoungcy/arbmon/internal/domain"
)

// Market represents a market as returned by the Kalshi REST API. Prices are
// in cents (1-99).
type Market struct {
	Ticker       string  `json:"ticker"`
	EventTicker  string  `json:"event_ticker"`
	Title        string  `json:"title"`
	Subtitle     string  `json:"subtitle"`
	Status       string  `json:"status"` // "active", "closed", "settled"
	YesBid       float64 `json:"yes_bid"`
	YesAsk       float64 `json:"yes_ask"`
	NoBid        float64 `json:"no_bid"`
	NoAsk        float64 `json:"no_ask"`
	LastPrice    float64 `json:"last_price"`
	Volume       int64   `json:"volume"`
	Volume24H    int64   `json:"volume_24h"`
	OpenInterest int64   `json:"open_interest"`
	Category     string  `json:"category"`
	Result       string  `json:"result"` // "yes", "no", "" (unsettled)
	OpenTime     string  `json:"open_time"`
	CloseTime    string  `json:"close_time"`
}

// ErrorResponse represents a Kalshi API error response.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ToListing converts a Kalshi market to a domain.MarketListing. Cent prices
// are normalized to probabilities: the yes and no quotes are each the bid/ask
// midpoint divided by 100, falling back to the last trade price when one side
// of the book is empty.
func (m *Market) ToListing(fetchedAt time.Time) domain.MarketListing {
	l := domain.MarketListing{
		ID:          m.Ticker,
		Platform:    domain.PlatformKalshi,
		Title:       m.Title,
		Description: m.Subtitle,
		EventSlug:   m.EventTicker,
		Status:      domain.ListingStatusClosed,
		FetchedAt:   fetchedAt,
	}
	if m.Status == "active" || m.Status == "open" {
		l.Status = domain.ListingStatusActive
	}

	yes := centMid(m.YesBid, m.YesAsk, m.LastPrice)
	no := centMid(m.NoBid, m.NoAsk, 100-m.LastPrice)
	if yes > 0 {
		if no <= 0 {
			no = 1 - yes
		}
		l.Quote = domain.Quote{
			YesPrice:  yes,
			NoPrice:   no,
			Volume24h: float64(m.Volume24H),
			UpdatedAt: fetchedAt,
		}
	}

	return l
}

// centMid returns the bid/ask midpoint as a probability in [0,1], falling
// back to the given last price when the book is one-sided or empty.
func centMid(bid, ask, last float64) float64 {
	switch {
	case bid > 0 && ask > 0:
		return (bid + ask) / 2 / 100
	case ask > 0:
		return ask / 100
	case bid > 0:
		return bid / 100
	default:
		return last / 100
	}
}
