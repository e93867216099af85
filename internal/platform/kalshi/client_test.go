package kalshi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbmon/internal/config"
	"github.com/alanyoungcy/arbmon/internal/domain"
)

func TestToListingNormalizesCentPrices(t *testing.T) {
	m := Market{
		Ticker:      "SENATE-X-26",
		EventTicker: "SENATE-26",
		Title:       "Will candidate X win the 2026 senate race?",
		Status:      "active",
		YesBid:      51,
		YesAsk:      53,
		NoBid:       47,
		NoAsk:       49,
		LastPrice:   52,
		Volume24H:   8_000,
	}
	l := m.ToListing(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	assert.Equal(t, "SENATE-X-26", l.ID)
	assert.Equal(t, domain.PlatformKalshi, l.Platform)
	assert.Equal(t, domain.ListingStatusActive, l.Status)
	assert.Equal(t, "SENATE-26", l.EventSlug)
	assert.InDelta(t, 0.52, l.Quote.YesPrice, 1e-9)
	assert.InDelta(t, 0.48, l.Quote.NoPrice, 1e-9)
	assert.InDelta(t, 8000, l.Quote.Volume24h, 1e-9)
	assert.True(t, l.Quote.Valid())
}

func TestToListingFallsBackToLastPrice(t *testing.T) {
	m := Market{
		Ticker:    "T1",
		Title:     "t",
		Status:    "active",
		LastPrice: 40,
		Volume24H: 100,
	}
	l := m.ToListing(time.Now().UTC())
	assert.InDelta(t, 0.40, l.Quote.YesPrice, 1e-9)
	assert.InDelta(t, 0.60, l.Quote.NoPrice, 1e-9)
}

func TestToListingSettledMarketIsInactive(t *testing.T) {
	m := Market{Ticker: "T1", Title: "t", Status: "settled", Result: "yes"}
	l := m.ToListing(time.Now().UTC())
	assert.False(t, l.Active())
}

func TestFetchListingsFollowsCursor(t *testing.T) {
	market := func(ticker string) Market {
		return Market{
			Ticker:    ticker,
			Title:     "t",
			Status:    "active",
			YesBid:    44,
			YesAsk:    46,
			NoBid:     54,
			NoAsk:     56,
			Volume24H: 500,
		}
	}

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "open", r.URL.Query().Get("status"))
		assert.Equal(t, "secret", r.Header.Get("KALSHI-ACCESS-KEY"))

		resp := map[string]any{}
		if r.URL.Query().Get("cursor") == "" {
			resp["markets"] = []Market{market("A"), market("B")}
			resp["cursor"] = "next"
		} else {
			assert.Equal(t, "next", r.URL.Query().Get("cursor"))
			resp["markets"] = []Market{market("C")}
			resp["cursor"] = ""
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	client := NewClient(config.KalshiConfig{
		BaseURL:  srv.URL,
		ApiKey:   "secret",
		PageSize: 2,
		MaxPages: 10,
	}, nil)

	listings, err := client.FetchListings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	require.Len(t, listings, 3)
	assert.Equal(t, "A", listings[0].ID)
	assert.Equal(t, domain.PlatformKalshi, client.Platform())
}

func TestGetMarketsMapsRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(ErrorResponse{Code: "rate_limited", Message: "slow down"})
	}))
	defer srv.Close()

	client := NewClient(config.KalshiConfig{BaseURL: srv.URL, PageSize: 10, MaxPages: 1}, nil)
	_, _, err := client.GetMarkets(context.Background(), 10, "")
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}
