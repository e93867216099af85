package polymarket

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

func TestToListingParsesOutcomePrices(t *testing.T) {
	raw := `{
		"id": "0x123",
		"question": "Will candidate X win the 2026 senate race?",
		"description": "Resolves Yes if X wins.",
		"slug": "candidate-x-senate",
		"active": "true",
		"closed": false,
		"outcomes": "[\"Yes\",\"No\"]",
		"outcomePrices": "[\"0.45\",\"0.55\"]",
		"volume24hr": "12345.67",
		"updated_at": "2025-06-01T12:00:00Z"
	}`
	var m APIMarket
	require.NoError(t, json.Unmarshal([]byte(raw), &m))

	l := m.ToListing(time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC))
	assert.Equal(t, "0x123", l.ID)
	assert.Equal(t, domain.PlatformPolymarket, l.Platform)
	assert.Equal(t, domain.ListingStatusActive, l.Status)
	assert.Equal(t, "candidate-x-senate", l.EventSlug)
	assert.InDelta(t, 0.45, l.Quote.YesPrice, 1e-9)
	assert.InDelta(t, 0.55, l.Quote.NoPrice, 1e-9)
	assert.InDelta(t, 12345.67, l.Quote.Volume24h, 1e-9)
	assert.Equal(t, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), l.Quote.UpdatedAt)
	assert.True(t, l.Quote.Valid())
}

func TestToListingNonBinaryMarketHasNoQuote(t *testing.T) {
	m := APIMarket{
		ID:            "m1",
		Question:      "Which party wins?",
		Active:        true,
		OutcomePrices: `["0.2","0.3","0.5"]`,
	}
	l := m.ToListing(time.Now().UTC())
	assert.False(t, l.Quote.Valid())
}

func TestToListingClosedMarket(t *testing.T) {
	m := APIMarket{ID: "m1", Question: "Done?", Closed: true}
	l := m.ToListing(time.Now().UTC())
	assert.Equal(t, domain.ListingStatusClosed, l.Status)
	assert.False(t, l.Active())
}

func TestFlexBoolAcceptsBoolAndString(t *testing.T) {
	var v struct {
		A flexBool `json:"a"`
		B flexBool `json:"b"`
		C flexBool `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":true,"b":"false","c":"1"}`), &v))
	assert.True(t, bool(v.A))
	assert.False(t, bool(v.B))
	assert.True(t, bool(v.C))
}

func TestFetchListingsPaginates(t *testing.T) {
	page := func(n int) []map[string]any {
		out := make([]map[string]any, n)
		for i := range out {
			out[i] = map[string]any{
				"id":            "m" + string(rune('a'+i)),
				"question":      "q",
				"active":        true,
				"closed":        false,
				"outcomePrices": `["0.50","0.50"]`,
				"volume24hr":    1000.0,
			}
		}
		return out
	}

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "true", r.URL.Query().Get("active"))
		if calls == 1 {
			json.NewEncoder(w).Encode(page(2))
			return
		}
		json.NewEncoder(w).Encode(page(1)) // short page ends pagination
	}))
	defer srv.Close()

	client := NewGammaClient(config.PolymarketConfig{
		GammaHost: srv.URL,
		PageSize:  2,
		MaxPages:  10,
	}, nil)

	listings, err := client.FetchListings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Len(t, listings, 3)
	assert.Equal(t, domain.PlatformPolymarket, client.Platform())
}

func TestGetMarketsMapsRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewGammaClient(config.PolymarketConfig{GammaHost: srv.URL, PageSize: 10, MaxPages: 1}, nil)
	_, err := client.GetMarkets(context.Background(), 10, 0)
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}
