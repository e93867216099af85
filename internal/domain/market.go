package domain

import "time"

// Platform identifies a prediction market venue.
type Platform string

const (
	PlatformPolymarket Platform = "polymarket"
	PlatformKalshi     Platform = "kalshi"
)

// ListingStatus represents the lifecycle state of a listing.
type ListingStatus string

const (
	ListingStatusActive ListingStatus = "active"
	ListingStatusClosed ListingStatus = "closed"
)

// Quote holds the latest binary outcome prices for a listing. Prices are
// normalized probabilities in (0, 1] regardless of the venue's native units.
type Quote struct {
	YesPrice  float64
	NoPrice   float64
	Volume24h float64
	UpdatedAt time.Time
}

// Valid reports whether the quote can be used for spread math. Both prices
// must lie in (0, 1] and yes+no must sum to roughly one; wider deviations
// indicate a stale or partially filled book.
func (q Quote) Valid() bool {
	if q.YesPrice <= 0 || q.YesPrice > 1 {
		return false
	}
	if q.NoPrice <= 0 || q.NoPrice > 1 {
		return false
	}
	sum := q.YesPrice + q.NoPrice
	return sum >= 0.95 && sum <= 1.05
}

// MarketListing is a binary market as seen on one platform, carrying the
// text used for cross-platform matching and the latest quote.
type MarketListing struct {
	ID          string
	Platform    Platform
	Title       string
	Description string
	EventSlug   string
	Status      ListingStatus
	Quote       Quote
	FetchedAt   time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Active reports whether the listing is open for trading.
func (l MarketListing) Active() bool {
	return l.Status == ListingStatusActive
}
