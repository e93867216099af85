// Package kalshi provides the REST client for the Kalshi exchange API,
// reduced to the read-only market data the monitor needs. Market data
// endpoints are public; an API key is attached when configured.
package kalshi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/alanyoungcy/arbmon/internal/config"
	"github.com/alanyoungcy/arbmon/internal/domain"
)

// rateLimitKey is the limiter bucket shared by all Kalshi requests.
const rateLimitKey = "kalshi:markets"

// Client is the REST client for the Kalshi exchange API.
type Client struct {
	baseURL    string
	apiKey     string
	pageSize   int
	maxPages   int
	reqPerSec  int
	limiter    domain.RateLimiter // optional
	httpClient *http.Client
}

// NewClient creates a Kalshi REST client. limiter may be nil, in which case
// requests are not throttled.
func NewClient(cfg config.KalshiConfig, limiter domain.RateLimiter) *Client {
	rate := cfg.RequestsPerSec
	if rate <= 0 {
		rate = 10
	}
	return &Client{
		baseURL:   cfg.BaseURL,
		apiKey:    cfg.ApiKey,
		pageSize:  cfg.PageSize,
		maxPages:  cfg.MaxPages,
		reqPerSec: rate,
		limiter:   limiter,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Platform identifies this provider.
func (c *Client) Platform() domain.Platform { return domain.PlatformKalshi }

// FetchListings pages through open Kalshi markets via cursor pagination and
// converts them to listings.
func (c *Client) FetchListings(ctx context.Context) ([]domain.MarketListing, error) {
	fetchedAt := time.Now().UTC()
	var listings []domain.MarketListing

	cursor := ""
	for page := 0; page < c.maxPages; page++ {
		markets, next, err := c.GetMarkets(ctx, c.pageSize, cursor)
		if err != nil {
			return nil, err
		}

		for i := range markets {
			l := markets[i].ToListing(fetchedAt)
			if !l.Active() {
				continue
			}
			listings = append(listings, l)
		}

		if next == "" || len(markets) == 0 {
			break
		}
		cursor = next
	}

	return listings, nil
}

// GetMarkets returns one page of open markets and the cursor for the next
// page. An empty cursor means the last page was reached.
func (c *Client) GetMarkets(ctx context.Context, limit int, cursor string) ([]Market, string, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("status", "open")
	if cursor != "" {
		params.Set("cursor", cursor)
	}

	body, err := c.doGet(ctx, "/markets?"+params.Encode())
	if err != nil {
		return nil, "", fmt.Errorf("kalshi: get markets: %w", err)
	}

	var resp struct {
		Markets []Market `json:"markets"`
		Cursor  string   `json:"cursor"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, "", fmt.Errorf("kalshi: decode markets: %w", err)
	}
	return resp.Markets, resp.Cursor, nil
}

// GetMarket returns a single market by its ticker.
func (c *Client) GetMarket(ctx context.Context, ticker string) (Market, error) {
	body, err := c.doGet(ctx, "/markets/"+url.PathEscape(ticker))
	if err != nil {
		return Market{}, fmt.Errorf("kalshi: get market %s: %w", ticker, err)
	}

	var resp struct {
		Market Market `json:"market"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return Market{}, fmt.Errorf("kalshi: decode market: %w", err)
	}
	return resp.Market, nil
}

// doGet builds, sends, and reads a GET request against the Kalshi API.
func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, rateLimitKey, c.reqPerSec, time.Second); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("KALSHI-ACCESS-KEY", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := c.checkStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// checkStatus maps non-2xx HTTP status codes to appropriate errors.
func (c *Client) checkStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var apiErr ErrorResponse
	_ = json.Unmarshal(body, &apiErr)

	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("kalshi: %w: %s (%s)", domain.ErrNotFound, apiErr.Message, apiErr.Code)
	case http.StatusTooManyRequests:
		return fmt.Errorf("kalshi: %w: %s (%s)", domain.ErrRateLimited, apiErr.Message, apiErr.Code)
	default:
		return fmt.Errorf("kalshi: HTTP %d: %s (%s)", statusCode, apiErr.Message, apiErr.Code)
	}
}
