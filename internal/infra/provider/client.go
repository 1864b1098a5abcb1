// Package provider contains the live market data gateways. Each gateway
// issues exactly one GET per call and reports every failure as a
// *domain.ProviderError.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"market_pulse/internal/domain"
	"market_pulse/internal/infra"
)

// DefaultTimeout bounds every outbound request.
const DefaultTimeout = 10 * time.Second

// maxBodyBytes caps how much of a provider response is read.
const maxBodyBytes = 8 << 20

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// getJSON performs a GET and decodes the body into out. All errors are
// *domain.NetworkError: transport and status failures are retriable,
// request construction and decode failures are not.
func getJSON(ctx context.Context, c *http.Client, rawURL string, header http.Header, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return domain.NewFatalNetworkError("request", err)
	}

	// Add browser-like User-Agent to avoid bot detection
	req.Header.Set("User-Agent", infra.DefaultUserAgent)
	req.Header.Set("Accept", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.Do(req)
	if err != nil {
		return domain.NewNetworkError("request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return domain.NewNetworkError("status", fmt.Errorf("unexpected status code: %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return domain.NewNetworkError("read", err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return domain.NewFatalNetworkError("decode", err)
	}
	return nil
}

func transportFailure(provider string, class domain.AssetClass, symbol string, err error) error {
	return &domain.ProviderError{Provider: provider, Class: class, Symbol: symbol, Kind: domain.FailureTransport, Err: err}
}

func softMiss(provider string, class domain.AssetClass, symbol string, reason string) error {
	err := domain.ErrMissingPayload
	if reason != "" {
		err = fmt.Errorf("%w: %s", domain.ErrMissingPayload, reason)
	}
	return &domain.ProviderError{Provider: provider, Class: class, Symbol: symbol, Kind: domain.FailureSoftMiss, Err: err}
}

func emptySeries(provider string, class domain.AssetClass, symbol string) error {
	return &domain.ProviderError{Provider: provider, Class: class, Symbol: symbol, Kind: domain.FailureSoftMiss, Err: domain.ErrEmptySeries}
}

func malformed(provider string, class domain.AssetClass, symbol string, err error) error {
	return &domain.ProviderError{Provider: provider, Class: class, Symbol: symbol, Kind: domain.FailureMalformed, Err: err}
}

// Gateway bundles the three per-class gateways behind domain.MarketGateway.
type Gateway struct {
	stocks *AlphaVantage
	crypto *CoinGecko
	forex  *ExchangeRate
}

// NewGateway creates a gateway from its per-class clients.
func NewGateway(stocks *AlphaVantage, crypto *CoinGecko, forex *ExchangeRate) *Gateway {
	return &Gateway{stocks: stocks, crypto: crypto, forex: forex}
}

func (g *Gateway) Stocks(ctx context.Context, symbol string, days int) (domain.Series[domain.PricePoint], error) {
	return g.stocks.Stocks(ctx, symbol, days)
}

func (g *Gateway) Crypto(ctx context.Context, symbol string, hours int) (domain.Series[domain.CryptoPoint], error) {
	return g.crypto.Crypto(ctx, symbol, hours)
}

func (g *Gateway) Forex(ctx context.Context, pair string, days int) (domain.Series[domain.ForexPoint], error) {
	return g.forex.Forex(ctx, pair, days)
}

// CoinGecko exposes the crypto client so its symbol vocabulary can be refreshed.
func (g *Gateway) CoinGecko() *CoinGecko {
	return g.crypto
}

var errNotConfigured = errors.New("provider not configured")
