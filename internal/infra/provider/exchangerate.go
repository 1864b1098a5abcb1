package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"market_pulse/internal/domain"
	"market_pulse/internal/synth"

	"github.com/shopspring/decimal"
)

const (
	exchangeRateName       = "exchangerate"
	DefaultExchangeRateURL = "https://api.exchangerate-api.com/v4/latest"

	// forexJitter is the daily deviation applied when a single live rate is
	// expanded into a series.
	forexJitter = 0.02
)

// exchangeRateResponse represents the exchangerate-api latest response
type exchangeRateResponse struct {
	Base  string             `json:"base"`
	Date  string             `json:"date"`
	Rates map[string]float64 `json:"rates"`
}

// Perturber draws a value around a base rate.
type Perturber interface {
	Jitter(base decimal.Decimal, maxMove float64) decimal.Decimal
}

// ExchangeRate fetches the current rate of a pair and expands it into a
// daily series around that rate. The provider only exposes the latest
// quote, so past points are re-drawn on every call.
type ExchangeRate struct {
	apiURL     string
	apiKey     string
	httpClient *http.Client
	perturb    Perturber
	now        func() time.Time
}

// NewExchangeRate creates a client with the given endpoint and credential.
func NewExchangeRate(apiURL, apiKey string, timeout time.Duration, perturb Perturber) *ExchangeRate {
	if apiURL == "" {
		apiURL = DefaultExchangeRateURL
	}
	if perturb == nil {
		perturb = synth.New(uint64(time.Now().UnixNano()))
	}
	return &ExchangeRate{
		apiURL:     strings.TrimRight(apiURL, "/"),
		apiKey:     apiKey,
		httpClient: newHTTPClient(timeout),
		perturb:    perturb,
		now:        time.Now,
	}
}

// Forex returns days daily quotes for a normalized "BASE/QUOTE" pair.
func (c *ExchangeRate) Forex(ctx context.Context, pair string, days int) (domain.Series[domain.ForexPoint], error) {
	rate, err := c.fetchRate(ctx, pair)
	if err != nil {
		return nil, err
	}

	today := domain.NewDay(c.now())
	out := make(domain.Series[domain.ForexPoint], 0, days)
	for i := 0; i < days; i++ {
		day := domain.Day{Time: today.AddDate(0, 0, i-days)}
		out = append(out, synth.ForexQuote(day, c.perturb.Jitter(rate, forexJitter)))
	}
	if len(out) == 0 {
		return nil, emptySeries(exchangeRateName, domain.ClassForex, pair)
	}
	return out, nil
}

// fetchRate returns the live rate of pair from the base-currency table.
func (c *ExchangeRate) fetchRate(ctx context.Context, pair string) (decimal.Decimal, error) {
	base, quote := domain.SplitPair(pair)

	header := http.Header{}
	if c.apiKey != "" {
		header.Set("Authorization", "Bearer "+c.apiKey)
	}

	var data exchangeRateResponse
	if err := getJSON(ctx, c.httpClient, c.apiURL+"/"+url.PathEscape(base), header, &data); err != nil {
		return decimal.Zero, transportFailure(exchangeRateName, domain.ClassForex, pair, err)
	}
	if data.Rates == nil {
		return decimal.Zero, softMiss(exchangeRateName, domain.ClassForex, pair, "rates")
	}

	raw, ok := data.Rates[quote]
	if !ok {
		return decimal.Zero, softMiss(exchangeRateName, domain.ClassForex, pair, "rates."+quote)
	}
	if raw <= 0 {
		return decimal.Zero, malformed(exchangeRateName, domain.ClassForex, pair, fmt.Errorf("non-positive rate %v", raw))
	}
	return decimal.NewFromFloat(raw), nil
}
