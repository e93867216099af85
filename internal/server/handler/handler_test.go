package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbmon/internal/domain"
	"github.com/alanyoungcy/arbmon/internal/matcher"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeOppStore struct {
	opps []domain.ArbitrageOpportunity
	err  error
}

func (s *fakeOppStore) Upsert(context.Context, domain.ArbitrageOpportunity) error { return nil }

func (s *fakeOppStore) GetByID(_ context.Context, id string) (domain.ArbitrageOpportunity, error) {
	for _, o := range s.opps {
		if o.ID == id {
			return o, nil
		}
	}
	return domain.ArbitrageOpportunity{}, domain.ErrNotFound
}

func (s *fakeOppStore) ListRecent(context.Context, int) ([]domain.ArbitrageOpportunity, error) {
	return s.opps, s.err
}

func (s *fakeOppStore) ListByPair(_ context.Context, pairKey string, _ domain.ListOpts) ([]domain.ArbitrageOpportunity, error) {
	var out []domain.ArbitrageOpportunity
	for _, o := range s.opps {
		if o.PairKey == pairKey {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *fakeOppStore) DeleteBefore(context.Context, time.Time) (int64, error) { return 0, nil }

type fakePairStore struct {
	pairs map[string]domain.MarketPair
}

func newFakePairStore() *fakePairStore {
	return &fakePairStore{pairs: make(map[string]domain.MarketPair)}
}

func (s *fakePairStore) Upsert(_ context.Context, p domain.MarketPair) error {
	s.pairs[p.PairKey] = p
	return nil
}

func (s *fakePairStore) GetByKey(_ context.Context, key string) (domain.MarketPair, error) {
	p, ok := s.pairs[key]
	if !ok {
		return domain.MarketPair{}, domain.ErrNotFound
	}
	return p, nil
}

func (s *fakePairStore) Delete(_ context.Context, key string) error {
	if _, ok := s.pairs[key]; !ok {
		return domain.ErrNotFound
	}
	delete(s.pairs, key)
	return nil
}

func (s *fakePairStore) List(context.Context, domain.ListOpts) ([]domain.MarketPair, error) {
	var out []domain.MarketPair
	for _, p := range s.pairs {
		out = append(out, p)
	}
	return out, nil
}

func (s *fakePairStore) ListManual(ctx context.Context) ([]domain.MarketPair, error) {
	var out []domain.MarketPair
	for _, p := range s.pairs {
		if p.Source == domain.MatchTypeManual {
			out = append(out, p)
		}
	}
	return out, nil
}

func TestHealthCheckOK(t *testing.T) {
	h := NewHealthHandler(testLogger())
	rec := httptest.NewRecorder()

	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

func TestHealthCheckDegradedDependency(t *testing.T) {
	h := NewHealthHandler(testLogger()).WithDependency("postgres", failingPinger{})
	rec := httptest.NewRecorder()

	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body["status"])
}

func TestListRecentOpportunities(t *testing.T) {
	store := &fakeOppStore{opps: []domain.ArbitrageOpportunity{
		{ID: "opp-1", NetProfit: 0.04},
		{ID: "opp-2", NetProfit: 0.02},
	}}
	h := NewOpportunityHandler(store, testLogger())
	rec := httptest.NewRecorder()

	h.ListRecent(rec, httptest.NewRequest(http.MethodGet, "/api/opportunities?limit=10", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body listOpportunitiesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Opportunities, 2)
}

func TestListRecentOpportunitiesEmptyIsArray(t *testing.T) {
	h := NewOpportunityHandler(&fakeOppStore{}, testLogger())
	rec := httptest.NewRecorder()

	h.ListRecent(rec, httptest.NewRequest(http.MethodGet, "/api/opportunities", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"opportunities":[]`)
}

func TestGetOpportunityNotFound(t *testing.T) {
	h := NewOpportunityHandler(&fakeOppStore{}, testLogger())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/opportunities/{id}", h.Get)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/opportunities/missing", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOpportunitySummary(t *testing.T) {
	store := &fakeOppStore{opps: []domain.ArbitrageOpportunity{
		{ID: "a", Strategy: domain.StrategyBuyPolySellKalshi, Outcome: domain.OutcomeYes, NetProfit: 0.03, TotalProfit: 3},
		{ID: "b", Strategy: domain.StrategyBuyKalshiSellPoly, Outcome: domain.OutcomeNo, NetProfit: 0.01, TotalProfit: 1},
	}}
	h := NewOpportunityHandler(store, testLogger())
	rec := httptest.NewRecorder()

	h.Summary(rec, httptest.NewRequest(http.MethodGet, "/api/opportunities/summary", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body domain.OpportunitySummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
	require.NotNil(t, body.Best)
	assert.Equal(t, "a", body.Best.ID)
}

func newPairHandler(t *testing.T) (*PairHandler, *fakePairStore, *matcher.PairRegistry) {
	t.Helper()
	store := newFakePairStore()
	registry := matcher.NewPairRegistry(nil, nil)
	return NewPairHandler(store, registry, testLogger()), store, registry
}

func TestCreateManualPair(t *testing.T) {
	h, store, registry := newPairHandler(t)

	body := strings.NewReader(`{"poly_id":"0xabc","kalshi_id":"PRES-2028"}`)
	rec := httptest.NewRecorder()
	h.Create(rec, httptest.NewRequest(http.MethodPost, "/api/pairs", body))

	require.Equal(t, http.StatusCreated, rec.Code)

	var pair domain.MarketPair
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pair))
	assert.Equal(t, domain.MatchTypeManual, pair.Source)
	assert.Equal(t, 1.0, pair.Confidence)
	assert.True(t, registry.IsManual("0xabc", "PRES-2028"))

	_, err := store.GetByKey(context.Background(), pair.PairKey)
	assert.NoError(t, err)
}

func TestCreatePairRejectsMissingFields(t *testing.T) {
	h, _, _ := newPairHandler(t)

	rec := httptest.NewRecorder()
	h.Create(rec, httptest.NewRequest(http.MethodPost, "/api/pairs", strings.NewReader(`{"poly_id":""}`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteManualPairClearsRegistry(t *testing.T) {
	h, store, registry := newPairHandler(t)

	create := httptest.NewRecorder()
	h.Create(create, httptest.NewRequest(http.MethodPost, "/api/pairs",
		strings.NewReader(`{"poly_id":"0xabc","kalshi_id":"PRES-2028"}`)))
	require.Equal(t, http.StatusCreated, create.Code)

	var pair domain.MarketPair
	require.NoError(t, json.Unmarshal(create.Body.Bytes(), &pair))

	rec := httptest.NewRecorder()
	h.Delete(rec, httptest.NewRequest(http.MethodDelete, "/api/pairs?key="+pair.PairKey, nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, registry.IsManual("0xabc", "PRES-2028"))
	assert.Empty(t, store.pairs)
}

func TestExcludePair(t *testing.T) {
	h, _, registry := newPairHandler(t)

	rec := httptest.NewRecorder()
	h.Exclude(rec, httptest.NewRequest(http.MethodPost, "/api/pairs/exclude",
		strings.NewReader(`{"poly_id":"0xabc","kalshi_id":"PRES-2028"}`)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, registry.IsExcluded("0xabc", "PRES-2028"))
}

func TestCycleTriggerCoalesces(t *testing.T) {
	ch := make(chan struct{}, 1)
	h := NewCycleHandler(nil, testLogger()).WithTriggerChannel(ch)

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.Trigger(rec, httptest.NewRequest(http.MethodPost, "/api/cycles/trigger", nil))
		assert.Equal(t, http.StatusAccepted, rec.Code)
	}

	assert.Len(t, ch, 1)
}

func TestParseListOptsDefaultsAndClamp(t *testing.T) {
	opts := parseListOpts(httptest.NewRequest(http.MethodGet, "/api/pairs", nil))
	assert.Equal(t, 50, opts.Limit)
	assert.Zero(t, opts.Offset)

	opts = parseListOpts(httptest.NewRequest(http.MethodGet, "/api/pairs?limit=9999&offset=20", nil))
	assert.Equal(t, 500, opts.Limit)
	assert.Equal(t, 20, opts.Offset)
}

func TestParseListOptsTimeWindow(t *testing.T) {
	opts := parseListOpts(httptest.NewRequest(http.MethodGet,
		"/api/opportunities?since=2026-08-01T00:00:00Z&until=2026-08-15T12:00:00Z", nil))
	require.NotNil(t, opts.Since)
	require.NotNil(t, opts.Until)
	assert.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), *opts.Since)
	assert.Equal(t, time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC), *opts.Until)

	// Malformed timestamps are ignored rather than rejected.
	opts = parseListOpts(httptest.NewRequest(http.MethodGet, "/api/opportunities?since=yesterday", nil))
	assert.Nil(t, opts.Since)
}

func TestParsePlatform(t *testing.T) {
	p, ok := parsePlatform("polymarket")
	assert.True(t, ok)
	assert.Equal(t, domain.PlatformPolymarket, p)

	_, ok = parsePlatform("predictit")
	assert.False(t, ok)
}


type fakeBlobReader struct {
	objects map[string]string
}

func (r *fakeBlobReader) Get(_ context.Context, path string) (io.ReadCloser, error) {
	data, ok := r.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(strings.NewReader(data)), nil
}

func (r *fakeBlobReader) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	var infos []domain.BlobInfo
	for path, data := range r.objects {
		if strings.HasPrefix(path, prefix) {
			infos = append(infos, domain.BlobInfo{Path: path, Size: int64(len(data))})
		}
	}
	return infos, nil
}

func TestListArchives(t *testing.T) {
	reader := &fakeBlobReader{objects: map[string]string{
		"archive/opportunities/2026-07.jsonl": `{"id":"o1"}`,
		"archive/cycle_logs/2026-07.jsonl":    `{"id":"c1"}`,
	}}
	h := NewArchiveHandler(reader, testLogger())

	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/archives?prefix=opportunities/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Archives []domain.BlobInfo `json:"archives"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Archives, 1)
	assert.Equal(t, "archive/opportunities/2026-07.jsonl", resp.Archives[0].Path)
}

func TestDownloadArchiveStreamsObject(t *testing.T) {
	reader := &fakeBlobReader{objects: map[string]string{
		"archive/opportunities/2026-07.jsonl": `{"id":"o1"}`,
	}}
	h := NewArchiveHandler(reader, testLogger())

	rec := httptest.NewRecorder()
	h.Download(rec, httptest.NewRequest(http.MethodGet,
		"/api/archives/object?path=archive/opportunities/2026-07.jsonl", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))
	assert.Equal(t, `{"id":"o1"}`, rec.Body.String())
}

func TestDownloadArchiveRejectsOutsidePaths(t *testing.T) {
	h := NewArchiveHandler(&fakeBlobReader{}, testLogger())

	rec := httptest.NewRecorder()
	h.Download(rec, httptest.NewRequest(http.MethodGet,
		"/api/archives/object?path=secrets/creds.txt", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.Download(rec, httptest.NewRequest(http.MethodGet,
		"/api/archives/object?path=archive/../secrets", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDownloadArchiveNotFound(t *testing.T) {
	h := NewArchiveHandler(&fakeBlobReader{objects: map[string]string{}}, testLogger())

	rec := httptest.NewRecorder()
	h.Download(rec, httptest.NewRequest(http.MethodGet,
		"/api/archives/object?path=archive/opportunities/1999-01.jsonl", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
