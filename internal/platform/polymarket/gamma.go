// Package polymarket provides the REST client for the Polymarket Gamma API,
// reduced to the read-only market discovery the monitor needs.
package polymarket

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

// rateLimitKey is the limiter bucket shared by all Gamma requests.
const rateLimitKey = "polymarket:gamma"

// GammaClient is the REST client for the Polymarket Gamma API.
type GammaClient struct {
	baseURL    string
	pageSize   int
	maxPages   int
	reqPerSec  int
	limiter    domain.RateLimiter // optional
	httpClient *http.Client
}

// NewGammaClient creates a Gamma API client. limiter may be nil, in which
// case requests are not throttled.
func NewGammaClient(cfg config.PolymarketConfig, limiter domain.RateLimiter) *GammaClient {
	rate := cfg.RequestsPerSec
	if rate <= 0 {
		rate = 10
	}
	return &GammaClient{
		baseURL:   cfg.GammaHost,
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
func (g *GammaClient) Platform() domain.Platform { return domain.PlatformPolymarket }

// FetchListings pages through active Gamma markets and converts them to
// listings. Pagination stops on a short page or after the configured maximum
// number of pages.
func (g *GammaClient) FetchListings(ctx context.Context) ([]domain.MarketListing, error) {
	fetchedAt := time.Now().UTC()
	var listings []domain.MarketListing

	for page := 0; page < g.maxPages; page++ {
		markets, err := g.GetMarkets(ctx, g.pageSize, page*g.pageSize)
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

		if len(markets) < g.pageSize {
			break
		}
	}

	return listings, nil
}

// GetMarkets returns one page of active markets.
func (g *GammaClient) GetMarkets(ctx context.Context, limit, offset int) ([]APIMarket, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(offset))
	params.Set("active", "true")
	params.Set("closed", "false")

	body, err := g.doGet(ctx, "/markets?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("polymarket/gamma: get markets: %w", err)
	}

	var markets []APIMarket
	if err := json.Unmarshal(body, &markets); err != nil {
		return nil, fmt.Errorf("polymarket/gamma: decode markets: %w", err)
	}
	return markets, nil
}

// GetMarket returns a single market by its ID.
func (g *GammaClient) GetMarket(ctx context.Context, id string) (APIMarket, error) {
	body, err := g.doGet(ctx, "/markets/"+url.PathEscape(id))
	if err != nil {
		return APIMarket{}, fmt.Errorf("polymarket/gamma: get market %s: %w", id, err)
	}

	var market APIMarket
	if err := json.Unmarshal(body, &market); err != nil {
		return APIMarket{}, fmt.Errorf("polymarket/gamma: decode market: %w", err)
	}
	return market, nil
}

// doGet sends an unauthenticated GET request to the Gamma API.
func (g *GammaClient) doGet(ctx context.Context, path string) ([]byte, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx, rateLimitKey, g.reqPerSec, time.Second); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

// checkHTTPStatus maps non-2xx HTTP status codes to appropriate errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
