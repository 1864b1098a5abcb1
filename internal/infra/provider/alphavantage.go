package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"market_pulse/internal/domain"

	"github.com/shopspring/decimal"
)

const (
	alphaVantageName       = "alphavantage"
	DefaultAlphaVantageURL = "https://www.alphavantage.co/query"
)

// avBar mirrors one entry of "Time Series (Daily)". Alpha Vantage sends
// every field as a string.
type avBar struct {
	Open   string `json:"1. open"`
	High   string `json:"2. high"`
	Low    string `json:"3. low"`
	Close  string `json:"4. close"`
	Volume string `json:"5. volume"`
}

type avResponse struct {
	TimeSeries   map[string]avBar `json:"Time Series (Daily)"`
	Note         string           `json:"Note"`
	Information  string           `json:"Information"`
	ErrorMessage string           `json:"Error Message"`
}

// reason returns whatever explanation the API gave for an empty answer,
// usually a rate-limit notice.
func (r *avResponse) reason() string {
	switch {
	case r.ErrorMessage != "":
		return r.ErrorMessage
	case r.Note != "":
		return r.Note
	default:
		return r.Information
	}
}

// AlphaVantage fetches daily equity bars.
type AlphaVantage struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewAlphaVantage creates a client. An empty baseURL selects the public endpoint.
func NewAlphaVantage(baseURL, apiKey string, timeout time.Duration) *AlphaVantage {
	if baseURL == "" {
		baseURL = DefaultAlphaVantageURL
	}
	return &AlphaVantage{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: newHTTPClient(timeout),
	}
}

// Stocks returns up to days daily bars, oldest first.
func (a *AlphaVantage) Stocks(ctx context.Context, symbol string, days int) (domain.Series[domain.PricePoint], error) {
	if a.apiKey == "" {
		return nil, transportFailure(alphaVantageName, domain.ClassStock, symbol, errNotConfigured)
	}

	q := url.Values{}
	q.Set("function", "TIME_SERIES_DAILY")
	q.Set("symbol", symbol)
	q.Set("apikey", a.apiKey)
	q.Set("outputsize", "compact")

	var resp avResponse
	if err := getJSON(ctx, a.httpClient, a.baseURL+"?"+q.Encode(), nil, &resp); err != nil {
		return nil, transportFailure(alphaVantageName, domain.ClassStock, symbol, err)
	}
	if resp.TimeSeries == nil {
		return nil, softMiss(alphaVantageName, domain.ClassStock, symbol, resp.reason())
	}

	out := make(domain.Series[domain.PricePoint], 0, len(resp.TimeSeries))
	for date, bar := range resp.TimeSeries {
		p, err := bar.toPoint(date)
		if err != nil {
			return nil, malformed(alphaVantageName, domain.ClassStock, symbol, err)
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil, emptySeries(alphaVantageName, domain.ClassStock, symbol)
	}

	// Map keys are unique dates, so sorting is enough for strict order.
	sort.Slice(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date.Time)
	})
	return out.Tail(days), nil
}

func (b avBar) toPoint(date string) (domain.PricePoint, error) {
	day, err := domain.ParseDay(date)
	if err != nil {
		return domain.PricePoint{}, fmt.Errorf("date %q: %w", date, err)
	}

	var p domain.PricePoint
	p.Date = day
	fields := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"open", b.Open, &p.Open},
		{"high", b.High, &p.High},
		{"low", b.Low, &p.Low},
		{"close", b.Close, &p.Close},
	}
	for _, f := range fields {
		v, err := decimal.NewFromString(f.raw)
		if err != nil {
			return domain.PricePoint{}, fmt.Errorf("%s %s %q: %w", date, f.name, f.raw, err)
		}
		*f.dst = v.Round(2)
	}

	vol, err := strconv.ParseInt(b.Volume, 10, 64)
	if err != nil {
		return domain.PricePoint{}, fmt.Errorf("%s volume %q: %w", date, b.Volume, err)
	}
	p.Volume = vol
	return p, nil
}
