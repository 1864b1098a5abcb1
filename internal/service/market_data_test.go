package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"market_pulse/internal/domain"
	"market_pulse/internal/infra"
	"market_pulse/internal/infra/provider"
	"market_pulse/internal/synth"

	"github.com/shopspring/decimal"
)

// fakeGateway returns canned series or a fixed error and counts calls.
type fakeGateway struct {
	mu     sync.Mutex
	calls  int
	err    error
	stocks domain.Series[domain.PricePoint]
	crypto domain.Series[domain.CryptoPoint]
	forex  domain.Series[domain.ForexPoint]
}

func (g *fakeGateway) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func (g *fakeGateway) hit() {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
}

func (g *fakeGateway) Stocks(_ context.Context, _ string, _ int) (domain.Series[domain.PricePoint], error) {
	g.hit()
	return g.stocks, g.err
}

func (g *fakeGateway) Crypto(_ context.Context, _ string, _ int) (domain.Series[domain.CryptoPoint], error) {
	g.hit()
	return g.crypto, g.err
}

func (g *fakeGateway) Forex(_ context.Context, _ string, _ int) (domain.Series[domain.ForexPoint], error) {
	g.hit()
	return g.forex, g.err
}

// mapCache is an in-memory SeriesCache that ignores TTL.
type mapCache struct {
	mu     sync.Mutex
	data   map[string][]byte
	getErr error
}

func newMapCache() *mapCache { return &mapCache{data: map[string][]byte{}} }

func (c *mapCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	b, ok := c.data[key]
	return b, ok, nil
}

func (c *mapCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *mapCache) Close() error { return nil }

var testNow = time.Date(2024, 10, 15, 12, 0, 0, 0, time.UTC)

func testGenerator() *synth.Generator {
	return synth.NewWithSource(rand.New(rand.NewPCG(99, 1)), func() time.Time { return testNow })
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(gw domain.MarketGateway, cache domain.SeriesCache, m *infra.Metrics) *MarketData {
	return NewMarketData(gw, testGenerator(), MarketDataOptions{
		Cache:   cache,
		TTL:     time.Minute,
		Metrics: m,
		Logger:  quietLogger(),
	})
}

func livePrices(n int) domain.Series[domain.PricePoint] {
	out := make(domain.Series[domain.PricePoint], n)
	for i := range out {
		v := decimal.NewFromInt(int64(100 + i))
		out[i] = domain.PricePoint{
			Date:   domain.NewDay(testNow.AddDate(0, 0, i-n)),
			Open:   v,
			High:   v,
			Low:    v,
			Close:  v,
			Volume: 1,
		}
	}
	return out
}

func TestFetchWithFallback_AllClassesFallBack(t *testing.T) {
	failures := map[string]error{
		"transport": &domain.ProviderError{Kind: domain.FailureTransport, Err: errors.New("dial tcp: refused")},
		"soft miss": &domain.ProviderError{Kind: domain.FailureSoftMiss, Err: domain.ErrMissingPayload},
	}

	for name, failure := range failures {
		t.Run(name, func(t *testing.T) {
			m := &infra.Metrics{}
			svc := newTestService(&fakeGateway{err: failure}, nil, m)
			ctx := context.Background()

			st := svc.Stocks(ctx, "AAPL", 30, true)
			cr := svc.Crypto(ctx, "BTC", 24, true)
			fx := svc.Forex(ctx, "EUR/USD", 7, true)

			if st.Source != SourceSynthetic || len(st.Series) != 30 {
				t.Errorf("stocks: source=%s len=%d", st.Source, len(st.Series))
			}
			if cr.Source != SourceSynthetic || len(cr.Series) != 24 {
				t.Errorf("crypto: source=%s len=%d", cr.Source, len(cr.Series))
			}
			if fx.Source != SourceSynthetic || len(fx.Series) != 7 {
				t.Errorf("forex: source=%s len=%d", fx.Source, len(fx.Series))
			}
			if !errors.Is(st.Reason, failure) {
				t.Errorf("Reason = %v, want %v", st.Reason, failure)
			}

			snap := m.Snapshot()
			if snap.ProviderFailures != 3 || snap.SyntheticFetches != 3 {
				t.Errorf("metrics = %+v", snap)
			}
		})
	}
}

func TestFetchWithFallback_LiveAndCached(t *testing.T) {
	gw := &fakeGateway{stocks: livePrices(40)}
	cache := newMapCache()
	m := &infra.Metrics{}
	svc := newTestService(gw, cache, m)
	ctx := context.Background()

	first := svc.Stocks(ctx, "IBM", 30, true)
	if first.Source != SourceLive {
		t.Fatalf("expected live, got %s", first.Source)
	}
	if len(first.Series) != 30 {
		t.Errorf("live series should be trimmed to the window, got %d", len(first.Series))
	}
	if !first.Series.Last().Close.Equal(decimal.NewFromInt(139)) {
		t.Errorf("expected most recent bars, last close = %s", first.Series.Last().Close)
	}

	second := svc.Stocks(ctx, "IBM", 30, true)
	if gw.count() != 1 {
		t.Errorf("second call should hit the cache, gateway calls = %d", gw.count())
	}
	if second.Source != SourceLive || len(second.Series) != 30 {
		t.Errorf("cached result = %s / %d", second.Source, len(second.Series))
	}
	if !second.Series.First().Date.Equal(first.Series.First().Date.Time) {
		t.Error("cached series differs from the original")
	}

	// a different window is a different key
	svc.Stocks(ctx, "IBM", 10, true)
	if gw.count() != 2 {
		t.Errorf("new window should call the provider, calls = %d", gw.count())
	}

	if snap := m.Snapshot(); snap.CacheHits != 1 || snap.CacheMisses != 2 {
		t.Errorf("cache metrics = %+v", snap)
	}
}

func TestFetchWithFallback_SyntheticNotCached(t *testing.T) {
	gw := &fakeGateway{err: &domain.ProviderError{Kind: domain.FailureTransport, Err: errors.New("timeout")}}
	cache := newMapCache()
	svc := newTestService(gw, cache, &infra.Metrics{})

	svc.Crypto(context.Background(), "ETH", 24, true)
	if len(cache.data) != 0 {
		t.Errorf("synthetic results must not be cached, cache has %d entries", len(cache.data))
	}
}

func TestFetchWithFallback_ForexRebuiltEachCall(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"base":"EUR","rates":{"USD":1.0850}}`)
	}))
	defer srv.Close()

	gen := testGenerator()
	fx := provider.NewExchangeRate(srv.URL, "", time.Second, gen)
	gw := provider.NewGateway(nil, nil, fx)
	cache := newMapCache()
	m := &infra.Metrics{}
	svc := NewMarketData(gw, gen, MarketDataOptions{
		Cache:   cache,
		TTL:     time.Minute,
		Metrics: m,
		Logger:  quietLogger(),
	})
	ctx := context.Background()

	first := svc.Forex(ctx, "EUR/USD", 5, true)
	second := svc.Forex(ctx, "EUR/USD", 5, true)
	if first.Source != SourceLive || second.Source != SourceLive {
		t.Fatalf("sources = %s / %s", first.Source, second.Source)
	}
	if n := hits.Load(); n != 2 {
		t.Errorf("each forex call should reach the provider, hits = %d", n)
	}
	if len(cache.data) != 0 {
		t.Errorf("forex series must not be cached, cache has %d entries", len(cache.data))
	}
	if snap := m.Snapshot(); snap.CacheHits != 0 || snap.CacheMisses != 0 {
		t.Errorf("forex should not touch the cache, metrics = %+v", snap)
	}

	same := true
	for i := range first.Series {
		if !first.Series[i].Rate.Equal(second.Series[i].Rate) {
			same = false
			break
		}
	}
	if same {
		t.Error("forex history should be re-drawn on every call")
	}
}

func TestFetchWithFallback_LiveDisabled(t *testing.T) {
	gw := &fakeGateway{stocks: livePrices(5)}
	cache := newMapCache()
	svc := newTestService(gw, cache, &infra.Metrics{})

	r := svc.Stocks(context.Background(), "AAPL", 5, false)
	if r.Source != SourceSynthetic || len(r.Series) != 5 {
		t.Errorf("live=false: source=%s len=%d", r.Source, len(r.Series))
	}
	if gw.count() != 0 {
		t.Errorf("live=false must not call the provider, calls = %d", gw.count())
	}
	if len(cache.data) != 0 {
		t.Error("live=false must bypass the cache")
	}
}

func TestFetchWithFallback_EmptyLiveIsSoftMiss(t *testing.T) {
	svc := newTestService(&fakeGateway{forex: domain.Series[domain.ForexPoint]{}}, nil, &infra.Metrics{})

	r := svc.Forex(context.Background(), "USD/JPY", 3, true)
	if r.Source != SourceSynthetic || len(r.Series) != 3 {
		t.Errorf("empty live series: source=%s len=%d", r.Source, len(r.Series))
	}
	if !errors.Is(r.Reason, domain.ErrEmptySeries) {
		t.Errorf("Reason = %v", r.Reason)
	}
}

func TestFetchWithFallback_ShortLiveAccepted(t *testing.T) {
	svc := newTestService(&fakeGateway{stocks: livePrices(3)}, nil, &infra.Metrics{})

	r := svc.Stocks(context.Background(), "AAPL", 30, true)
	if r.Source != SourceLive || len(r.Series) != 3 {
		t.Errorf("short live series: source=%s len=%d", r.Source, len(r.Series))
	}
}

func TestFetchWithFallback_CacheErrorIgnored(t *testing.T) {
	cache := newMapCache()
	cache.getErr = errors.New("redis: connection pool timeout")
	svc := newTestService(&fakeGateway{stocks: livePrices(5)}, cache, &infra.Metrics{})

	if r := svc.Stocks(context.Background(), "AAPL", 5, true); r.Source != SourceLive {
		t.Errorf("cache faults must not affect the result, source=%s", r.Source)
	}
}
