package polymarket

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/arbmon/internal/domain"
)

// flexBool unmarshals from JSON bool or string ("true"/"false") so Gamma API
// responses work whether "active" is sent as bool or string.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// flexFloat unmarshals from JSON number or numeric string. Gamma sends volume
// fields both ways depending on the endpoint.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexFloat(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexFloat(n)
	return nil
}

// APIMarket represents a market as returned by the Polymarket Gamma API.
type APIMarket struct {
	ID            string    `json:"id"`
	Question      string    `json:"question"`
	Description   string    `json:"description"`
	Slug          string    `json:"slug"`
	Active        flexBool  `json:"active"`
	Closed        bool      `json:"closed"`
	Outcomes      string    `json:"outcomes"`      // JSON-encoded: e.g. "[\"Yes\",\"No\"]"
	OutcomePrices string    `json:"outcomePrices"` // JSON-encoded: e.g. "[\"0.45\",\"0.55\"]"
	Volume24hr    flexFloat `json:"volume24hr"`
	EndDateISO    string    `json:"end_date_iso"`
	CreatedAt     string    `json:"created_at"`
	UpdatedAt     string    `json:"updated_at"`
	Events        []struct {
		Slug string `json:"slug"`
	} `json:"events"`
}

// ToListing converts a Gamma APIMarket to a domain.MarketListing. The
// outcomePrices field is a JSON-encoded string array; index 0 is the Yes
// price, index 1 the No price, both already in [0,1].
func (m *APIMarket) ToListing(fetchedAt time.Time) domain.MarketListing {
	l := domain.MarketListing{
		ID:          m.ID,
		Platform:    domain.PlatformPolymarket,
		Title:       m.Question,
		Description: m.Description,
		Status:      domain.ListingStatusActive,
		FetchedAt:   fetchedAt,
	}
	if m.Closed || !bool(m.Active) {
		l.Status = domain.ListingStatusClosed
	}
	if len(m.Events) > 0 {
		l.EventSlug = m.Events[0].Slug
	} else {
		l.EventSlug = m.Slug
	}

	yes, no, ok := parseOutcomePrices(m.OutcomePrices)
	if ok {
		l.Quote = domain.Quote{
			YesPrice:  yes,
			NoPrice:   no,
			Volume24h: float64(m.Volume24hr),
			UpdatedAt: fetchedAt,
		}
	}
	if t, err := time.Parse(time.RFC3339, m.UpdatedAt); err == nil {
		l.UpdatedAt = t
		if ok {
			l.Quote.UpdatedAt = t
		}
	}
	if t, err := time.Parse(time.RFC3339, m.CreatedAt); err == nil {
		l.CreatedAt = t
	}

	return l
}

// parseOutcomePrices decodes Gamma's doubly-encoded price array. Markets with
// more or fewer than two outcomes are not binary and report no quote.
func parseOutcomePrices(encoded string) (yes, no float64, ok bool) {
	if encoded == "" {
		return 0, 0, false
	}
	var prices []string
	if err := json.Unmarshal([]byte(encoded), &prices); err != nil {
		return 0, 0, false
	}
	if len(prices) != 2 {
		return 0, 0, false
	}
	yes, errY := strconv.ParseFloat(prices[0], 64)
	no, errN := strconv.ParseFloat(prices[1], 64)
	if errY != nil || errN != nil {
		return 0, 0, false
	}
	return yes, no, true
}
