package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"market_pulse/internal/domain"
	"market_pulse/internal/synth"

	"github.com/shopspring/decimal"
)

// Limits are the default and maximum query windows.
type Limits struct {
	DefaultDays  int
	DefaultHours int
	MaxDays      int
	MaxHours     int
}

// DefaultLimits matches the shipped configuration.
var DefaultLimits = Limits{DefaultDays: 30, DefaultHours: 24, MaxDays: 1000, MaxHours: 2160}

// SeriesResponse is returned for stock and crypto queries.
type SeriesResponse[T domain.Point] struct {
	Symbol        string           `json:"symbol"`
	Data          domain.Series[T] `json:"data"`
	CurrentPrice  decimal.Decimal  `json:"currentPrice"`
	Change        decimal.Decimal  `json:"change"`
	ChangePercent *decimal.Decimal `json:"changePercent"`
	Source        Source           `json:"source"`
}

// ForexResponse is returned for currency pair queries.
type ForexResponse struct {
	Pair          string                          `json:"pair"`
	Data          domain.Series[domain.ForexPoint] `json:"data"`
	CurrentRate   decimal.Decimal                 `json:"currentRate"`
	Change        decimal.Decimal                 `json:"change"`
	ChangePercent *decimal.Decimal                `json:"changePercent"`
	Source        Source                          `json:"source"`
}

// RealtimeQuote is the latest value of a single instrument.
type RealtimeQuote struct {
	Symbol    string            `json:"symbol"`
	Type      domain.AssetClass `json:"type"`
	Price     decimal.Decimal   `json:"price"`
	Timestamp time.Time         `json:"timestamp"`
	Source    Source            `json:"source"`
}

// Health is the liveness payload.
type Health struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// Query serves the request/response surface. It holds no mutable state.
type Query struct {
	data    *MarketData
	gen     *synth.Generator
	catalog domain.AssetCatalog
	limits  Limits
	now     func() time.Time
}

// NewQuery creates the query service.
func NewQuery(data *MarketData, gen *synth.Generator, catalog domain.AssetCatalog, limits Limits) *Query {
	return &Query{data: data, gen: gen, catalog: catalog, limits: limits, now: time.Now}
}

// ParseWindow parses a day/hour count. Empty means def; anything that is not
// an integer in [1, max] is an input error.
func ParseWindow(param, raw string, def, max int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > max {
		return 0, domain.NewInputError(param, raw, domain.ErrInvalidWindow)
	}
	return n, nil
}

// ParseLive parses the real flag. Empty means true.
func ParseLive(raw string) (bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return true, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, domain.NewInputError("real", raw, domain.ErrInvalidParam)
	}
	return v, nil
}

// Stocks handles a stock series query.
func (q *Query) Stocks(ctx context.Context, symbol, daysRaw, realRaw string) (*SeriesResponse[domain.PricePoint], error) {
	sym, err := domain.NormalizeSymbol(domain.ClassStock, symbol)
	if err != nil {
		return nil, err
	}
	days, err := ParseWindow("days", daysRaw, q.limits.DefaultDays, q.limits.MaxDays)
	if err != nil {
		return nil, err
	}
	live, err := ParseLive(realRaw)
	if err != nil {
		return nil, err
	}

	return newSeriesResponse(sym, q.data.Stocks(ctx, sym, days, live)), nil
}

// Crypto handles a crypto series query.
func (q *Query) Crypto(ctx context.Context, symbol, hoursRaw, realRaw string) (*SeriesResponse[domain.CryptoPoint], error) {
	sym, err := domain.NormalizeSymbol(domain.ClassCrypto, symbol)
	if err != nil {
		return nil, err
	}
	hours, err := ParseWindow("hours", hoursRaw, q.limits.DefaultHours, q.limits.MaxHours)
	if err != nil {
		return nil, err
	}
	live, err := ParseLive(realRaw)
	if err != nil {
		return nil, err
	}

	return newSeriesResponse(sym, q.data.Crypto(ctx, sym, hours, live)), nil
}

func newSeriesResponse[T domain.Point](symbol string, r Result[T]) *SeriesResponse[T] {
	c := r.Series.Summarize(2)
	return &SeriesResponse[T]{
		Symbol:        symbol,
		Data:          r.Series,
		CurrentPrice:  c.Current,
		Change:        c.Change,
		ChangePercent: c.ChangePercent,
		Source:        r.Source,
	}
}

// Forex handles a currency pair query.
func (q *Query) Forex(ctx context.Context, pair, daysRaw, realRaw string) (*ForexResponse, error) {
	p, err := domain.NormalizePair(pair)
	if err != nil {
		return nil, err
	}
	days, err := ParseWindow("days", daysRaw, q.limits.DefaultDays, q.limits.MaxDays)
	if err != nil {
		return nil, err
	}
	live, err := ParseLive(realRaw)
	if err != nil {
		return nil, err
	}

	r := q.data.Forex(ctx, p, days, live)
	c := r.Series.Summarize(4)
	return &ForexResponse{
		Pair:          p,
		Data:          r.Series,
		CurrentRate:   c.Current,
		Change:        c.Change,
		ChangePercent: c.ChangePercent,
		Source:        r.Source,
	}, nil
}

// RealtimePrice returns the latest value of one instrument. typeRaw defaults to stock.
func (q *Query) RealtimePrice(ctx context.Context, symbol, typeRaw string) (*RealtimeQuote, error) {
	class := domain.ClassStock
	if strings.TrimSpace(typeRaw) != "" {
		c, err := domain.ParseAssetClass(typeRaw)
		if err != nil {
			return nil, err
		}
		class = c
	}
	sym, err := domain.NormalizeSymbol(class, symbol)
	if err != nil {
		return nil, err
	}

	quote := &RealtimeQuote{Symbol: sym, Type: class, Timestamp: q.now()}
	switch class {
	case domain.ClassCrypto:
		r := q.data.Crypto(ctx, sym, 1, true)
		quote.Price, quote.Source = r.Series.Last().Price, r.Source
	case domain.ClassForex:
		r := q.data.Forex(ctx, sym, 1, true)
		quote.Price, quote.Source = r.Series.Last().Rate, r.Source
	default:
		r := q.data.Stocks(ctx, sym, 1, true)
		quote.Price, quote.Source = r.Series.Last().Close, r.Source
	}
	return quote, nil
}

// EconomicIndicators returns illustrative macro readings.
func (q *Query) EconomicIndicators() domain.EconomicIndicators {
	return q.gen.EconomicIndicators()
}

// Portfolio returns an illustrative allocation.
func (q *Query) Portfolio() []domain.Allocation {
	return q.gen.Portfolio()
}

// MarketOverview returns index levels and movers.
func (q *Query) MarketOverview() domain.MarketOverview {
	return q.gen.MarketOverview()
}

// AvailableAssets lists the active catalog symbols per class.
func (q *Query) AvailableAssets() (map[string][]string, error) {
	out := map[string][]string{}
	keys := map[domain.AssetClass]string{
		domain.ClassStock:  "stocks",
		domain.ClassCrypto: "crypto",
		domain.ClassForex:  "forex",
	}
	for _, class := range domain.Classes {
		assets, err := q.catalog.ListAssets(class)
		if err != nil {
			return nil, err
		}
		symbols := make([]string, 0, len(assets))
		for _, a := range assets {
			symbols = append(symbols, a.Symbol)
		}
		out[keys[class]] = symbols
	}
	return out, nil
}

// Health reports liveness.
func (q *Query) Health() Health {
	return Health{Status: "healthy", Timestamp: q.now()}
}
