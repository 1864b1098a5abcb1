package api

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

	"market_pulse/internal/domain"
	"market_pulse/internal/infra"
	"market_pulse/internal/service"
	"market_pulse/internal/stream"
	"market_pulse/internal/synth"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type downGateway struct{}

func (downGateway) Stocks(context.Context, string, int) (domain.Series[domain.PricePoint], error) {
	return nil, &domain.ProviderError{Kind: domain.FailureTransport, Err: errors.New("offline")}
}

func (downGateway) Crypto(context.Context, string, int) (domain.Series[domain.CryptoPoint], error) {
	return nil, &domain.ProviderError{Kind: domain.FailureTransport, Err: errors.New("offline")}
}

func (downGateway) Forex(context.Context, string, int) (domain.Series[domain.ForexPoint], error) {
	return nil, &domain.ProviderError{Kind: domain.FailureSoftMiss, Err: domain.ErrMissingPayload}
}

type staticCatalog struct{ err error }

func (c staticCatalog) ListAssets(class domain.AssetClass) ([]domain.Asset, error) {
	if c.err != nil {
		return nil, c.err
	}
	if class == domain.ClassStock {
		return []domain.Asset{{Class: class, Symbol: "AAPL"}}, nil
	}
	return nil, nil
}

func (c staticCatalog) ProviderIDs(domain.AssetClass) (map[string]string, error) { return nil, c.err }

type fixture struct {
	server   *Server
	registry *stream.Registry
	metrics  *infra.Metrics
}

func newFixture(t *testing.T, catalog domain.AssetCatalog) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := &infra.Metrics{}
	gen := synth.New(7)

	data := service.NewMarketData(downGateway{}, gen, service.MarketDataOptions{Metrics: m, Logger: logger})
	q := service.NewQuery(data, gen, catalog, service.DefaultLimits)
	reg := stream.NewRegistry(stream.RegistryOptions{Metrics: m, Logger: logger})

	s := NewServer(q, reg, Options{
		Addr:        "127.0.0.1:0",
		CORSOrigins: []string{"*"},
		Gatherer:    infra.NewRegistry(m),
		Logger:      logger,
	})
	return &fixture{server: s, registry: reg, metrics: m}
}

func (f *fixture) get(t *testing.T, path string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	f := newFixture(t, staticCatalog{})
	rec := f.get(t, "/api/health")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	body := decode(t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestSeriesEndpoints(t *testing.T) {
	f := newFixture(t, staticCatalog{})

	for _, tc := range []struct {
		path, key, want string
		points          int
	}{
		{"/api/stocks/aapl?days=5", "symbol", "AAPL", 5},
		{"/api/stocks/MSFT", "symbol", "MSFT", 30},
		{"/api/crypto/btc?hours=12&real=false", "symbol", "BTC", 12},
		{"/api/forex/EUR/USD?days=3", "pair", "EUR/USD", 3},
		{"/api/forex/gbpusd", "pair", "GBP/USD", 30},
	} {
		t.Run(tc.path, func(t *testing.T) {
			rec := f.get(t, tc.path)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			body := decode(t, rec)
			assert.Equal(t, tc.want, body[tc.key])
			assert.Equal(t, "synthetic", body["source"])
			assert.Len(t, body["data"], tc.points)
			assert.Contains(t, body, "change")
			assert.Contains(t, body, "changePercent")
		})
	}
}

func TestBadInputIs400(t *testing.T) {
	f := newFixture(t, staticCatalog{})

	for _, path := range []string{
		"/api/stocks/AAPL?days=abc",
		"/api/stocks/AAPL?days=0",
		"/api/crypto/BTC?hours=99999",
		"/api/stocks/AAPL?real=maybe",
		"/api/forex/EURO",
		"/api/realtime/price/AAPL?type=bond",
	} {
		rec := f.get(t, path)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
		assert.NotEmpty(t, decode(t, rec)["error"], path)
	}
}

func TestRealtimePrice(t *testing.T) {
	f := newFixture(t, staticCatalog{})

	rec := f.get(t, "/api/realtime/price/eth?type=crypto")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "ETH", body["symbol"])
	assert.Equal(t, "crypto", body["type"])
	assert.Greater(t, body["price"].(float64), 0.0)
}

func TestAggregates(t *testing.T) {
	f := newFixture(t, staticCatalog{})

	body := decode(t, f.get(t, "/api/economic-indicators"))
	for _, k := range []string{"gdp", "unemployment", "inflation", "interestRate"} {
		assert.Contains(t, body, k)
	}

	rec := f.get(t, "/api/portfolio")
	require.Equal(t, http.StatusOK, rec.Code)
	var allocations []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &allocations))
	assert.NotEmpty(t, allocations)

	body = decode(t, f.get(t, "/api/market-overview"))
	assert.Contains(t, body, "indices")
	assert.Contains(t, body, "topGainers")
	assert.Contains(t, body, "topLosers")
}

func TestAvailableAssets(t *testing.T) {
	rec := newFixture(t, staticCatalog{}).get(t, "/api/available-assets")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, []any{"AAPL"}, body["stocks"])
	assert.Equal(t, []any{}, body["crypto"])

	rec = newFixture(t, staticCatalog{err: errors.New("disk I/O error")}).get(t, "/api/available-assets")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", decode(t, rec)["error"])
}

func TestNotFoundAndCORS(t *testing.T) {
	f := newFixture(t, staticCatalog{})

	rec := f.get(t, "/api/nothing-here")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.get(t, "/api/health", "Origin", "http://localhost:3000")
	assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, staticCatalog{})
	f.get(t, "/api/stocks/AAPL")

	rec := f.get(t, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "market_pulse_")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestWebSocketSession(t *testing.T) {
	f := newFixture(t, staticCatalog{})
	srv := httptest.NewServer(f.server.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	read := func() stream.Envelope {
		var env stream.Envelope
		require.NoError(t, conn.ReadJSON(&env))
		return env
	}

	assert.Equal(t, stream.EventConnectionResponse, read().Event)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"event": "subscribe",
		"data":  map[string]string{"symbol": "aapl", "type": "stock"},
	}))
	assert.Equal(t, stream.EventSubscriptionConfirmed, read().Event)

	require.NoError(t, conn.WriteJSON(map[string]any{"event": "dance"}))
	assert.Equal(t, stream.EventError, read().Event)

	topic := domain.Topic{Class: domain.ClassStock, Symbol: "AAPL"}
	assert.Eventually(t, func() bool {
		return len(f.registry.ActiveTopics()) == 1
	}, time.Second, 10*time.Millisecond)

	n, err := f.registry.PublishTopic(topic, stream.EventPriceUpdate, stream.PriceUpdate{Symbol: "AAPL", Type: "stock"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, stream.EventPriceUpdate, read().Event)

	conn.Close()
	assert.Eventually(t, func() bool { return f.registry.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.EqualValues(t, 0, f.metrics.Snapshot().ActiveConnections)
}
