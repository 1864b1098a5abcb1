package synth

import (
	"market_pulse/internal/domain"

	"github.com/shopspring/decimal"
)

// Instrument is one entry of the broadcast universe: a base value and the
// maximum absolute deviation applied on each tick.
type Instrument struct {
	Symbol string
	Base   float64
	Spread float64
}

// Universe is the set of instruments included in every snapshot.
type Universe struct {
	Stocks  []Instrument
	Crypto  []Instrument
	Indices []Instrument
}

// DefaultUniverse is three equities, two crypto assets and three indices.
func DefaultUniverse() Universe {
	return Universe{
		Stocks: []Instrument{
			{Symbol: "AAPL", Base: 175, Spread: 5},
			{Symbol: "GOOGL", Base: 140, Spread: 3},
			{Symbol: "MSFT", Base: 380, Spread: 8},
		},
		Crypto: []Instrument{
			{Symbol: "BTC", Base: 45000, Spread: 500},
			{Symbol: "ETH", Base: 2500, Spread: 50},
		},
		Indices: []Instrument{
			{Symbol: "SP500", Base: 4500, Spread: 20},
			{Symbol: "DOW", Base: 35000, Spread: 100},
			{Symbol: "NASDAQ", Base: 14000, Spread: 50},
		},
	}
}

// Snapshot draws one value per instrument of u.
func (g *Generator) Snapshot(u Universe) domain.MarketSnapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	return domain.MarketSnapshot{
		Timestamp: g.now(),
		Stocks:    g.quotes(u.Stocks),
		Crypto:    g.quotes(u.Crypto),
		Indices:   g.quotes(u.Indices),
	}
}

func (g *Generator) quotes(list []Instrument) map[string]decimal.Decimal {
	m := make(map[string]decimal.Decimal, len(list))
	for _, in := range list {
		m[in.Symbol] = round(in.Base+g.uniform(-in.Spread, in.Spread), 2)
	}
	return m
}

// EconomicIndicators returns illustrative macro readings.
func (g *Generator) EconomicIndicators() domain.EconomicIndicators {
	g.mu.Lock()
	defer g.mu.Unlock()

	return domain.EconomicIndicators{
		GDP: domain.Indicator{
			Value:  round(g.uniform(20000, 25000), 2),
			Unit:   "billions USD",
			Change: round(g.uniform(-5, 5), 2),
			Period: "Q3 2024",
		},
		Unemployment: domain.Indicator{
			Value:  round(g.uniform(3, 6), 1),
			Unit:   "percent",
			Change: round(g.uniform(-0.5, 0.5), 1),
			Period: "September 2024",
		},
		Inflation: domain.Indicator{
			Value:  round(g.uniform(2, 5), 1),
			Unit:   "percent",
			Change: round(g.uniform(-1, 1), 1),
			Period: "September 2024",
		},
		InterestRate: domain.Indicator{
			Value:  round(g.uniform(4, 6), 2),
			Unit:   "percent",
			Change: round(g.uniform(-0.5, 0.5), 2),
			Period: "October 2024",
		},
	}
}

type allocationRange struct {
	asset          string
	minVal, maxVal int64
	minPct, maxPct int64
}

var portfolioRanges = []allocationRange{
	{"Stocks", 40000, 60000, 40, 50},
	{"Bonds", 20000, 30000, 20, 25},
	{"Real Estate", 15000, 25000, 15, 20},
	{"Crypto", 5000, 15000, 5, 10},
	{"Cash", 5000, 10000, 5, 8},
}

// Portfolio returns an illustrative allocation breakdown.
func (g *Generator) Portfolio() []domain.Allocation {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]domain.Allocation, 0, len(portfolioRanges))
	for _, r := range portfolioRanges {
		out = append(out, domain.Allocation{
			Asset:      r.asset,
			Value:      g.intBetween(r.minVal, r.maxVal),
			Percentage: int(g.intBetween(r.minPct, r.maxPct)),
		})
	}
	return out
}

var (
	topGainers = []domain.Mover{
		{Symbol: "AAPL", Price: decimal.RequireFromString("175.50"), Change: decimal.RequireFromString("5.2")},
		{Symbol: "TSLA", Price: decimal.RequireFromString("245.30"), Change: decimal.RequireFromString("4.8")},
		{Symbol: "NVDA", Price: decimal.RequireFromString("480.75"), Change: decimal.RequireFromString("3.9")},
	}
	topLosers = []domain.Mover{
		{Symbol: "META", Price: decimal.RequireFromString("310.20"), Change: decimal.RequireFromString("-3.5")},
		{Symbol: "AMZN", Price: decimal.RequireFromString("145.80"), Change: decimal.RequireFromString("-2.8")},
		{Symbol: "GOOGL", Price: decimal.RequireFromString("138.40"), Change: decimal.RequireFromString("-2.1")},
	}
	overviewIndices = []Instrument{
		{Symbol: "SP500", Base: 4500, Spread: 100},
		{Symbol: "DOW", Base: 35000, Spread: 500},
		{Symbol: "NASDAQ", Base: 14000, Spread: 300},
	}
)

// MarketOverview returns index levels with daily changes and the fixed
// movers lists.
func (g *Generator) MarketOverview() domain.MarketOverview {
	g.mu.Lock()
	defer g.mu.Unlock()

	indices := make(map[string]domain.IndexQuote, len(overviewIndices))
	for _, in := range overviewIndices {
		indices[in.Symbol] = domain.IndexQuote{
			Value:  round(in.Base+g.uniform(-in.Spread, in.Spread), 2),
			Change: round(g.uniform(-2, 2), 2),
		}
	}

	return domain.MarketOverview{
		Indices:    indices,
		TopGainers: append([]domain.Mover(nil), topGainers...),
		TopLosers:  append([]domain.Mover(nil), topLosers...),
		Timestamp:  g.now(),
	}
}
