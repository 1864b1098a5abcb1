package synth

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"market_pulse/internal/domain"

	"github.com/shopspring/decimal"
)

// Walk floors keep every generated value strictly positive.
const (
	stockFloor  = 1.0
	cryptoFloor = 0.01
	forexFloor  = 0.01
)

var (
	spreadBid = decimal.RequireFromString("0.999")
	spreadAsk = decimal.RequireFromString("1.001")
)

// Rand is the random source consumed by the generator.
// *rand.Rand from math/rand/v2 satisfies it.
type Rand interface {
	Float64() float64
	Int64N(n int64) int64
}

// Generator builds internally consistent synthetic series.
// It is safe for concurrent use.
type Generator struct {
	mu  sync.Mutex
	rnd Rand
	now func() time.Time
}

// New creates a generator seeded with seed. The same seed and clock produce
// the same series.
func New(seed uint64) *Generator {
	return NewWithSource(rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)), time.Now)
}

// NewWithSource creates a generator over an explicit random source and clock.
func NewWithSource(rnd Rand, now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{rnd: rnd, now: now}
}

// uniform returns a value in [lo, hi). Callers must hold g.mu.
func (g *Generator) uniform(lo, hi float64) float64 {
	return lo + (hi-lo)*g.rnd.Float64()
}

// intBetween returns a value in [lo, hi]. Callers must hold g.mu.
func (g *Generator) intBetween(lo, hi int64) int64 {
	return lo + g.rnd.Int64N(hi-lo+1)
}

func (g *Generator) step(value, maxMove, floor float64) float64 {
	value *= 1 + g.uniform(-maxMove, maxMove)
	return max(value, floor)
}

func round(v float64, places int32) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(places)
}

// ratePlaces is four decimal places, or enough to keep four significant
// digits for rates below 0.001.
func ratePlaces(v float64) int32 {
	if v <= 0 {
		return 4
	}
	return max(4, int32(3-math.Floor(math.Log10(v))))
}

// Stocks returns days daily bars ending yesterday. Open is the previous
// close, high/low bracket the candle body by one percent.
func (g *Generator) Stocks(symbol string, days int) domain.Series[domain.PricePoint] {
	if days <= 0 {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	today := domain.NewDay(g.now())
	price := g.uniform(50, 500)
	prevClose := price

	out := make(domain.Series[domain.PricePoint], 0, days)
	for i := 0; i < days; i++ {
		price = g.step(price, 0.05, stockFloor)
		open, closePrice := prevClose, price

		out = append(out, domain.PricePoint{
			Date:   domain.Day{Time: today.AddDate(0, 0, i-days)},
			Open:   round(open, 2),
			High:   round(max(open, closePrice)*1.01, 2),
			Low:    round(min(open, closePrice)*0.99, 2),
			Close:  round(closePrice, 2),
			Volume: g.intBetween(1_000_000, 10_000_000),
		})
		prevClose = closePrice
	}
	return out
}

// Crypto returns hours hourly samples ending one hour before the current
// whole hour. Market cap is price times a supply fixed for the series.
func (g *Generator) Crypto(symbol string, hours int) domain.Series[domain.CryptoPoint] {
	if hours <= 0 {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	top := g.now().UTC().Truncate(time.Hour)
	price := g.uniform(100, 50_000)
	supply := decimal.NewFromFloat(g.uniform(1e7, 1e9)).Round(0)

	out := make(domain.Series[domain.CryptoPoint], 0, hours)
	for i := 0; i < hours; i++ {
		price = g.step(price, 0.08, cryptoFloor)
		p := round(price, 2)

		out = append(out, domain.CryptoPoint{
			Timestamp: top.Add(time.Duration(i-hours) * time.Hour),
			Price:     p,
			Volume:    g.intBetween(100_000, 5_000_000),
			MarketCap: p.Mul(supply).Round(2),
		})
	}
	return out
}

// Forex returns days daily quotes ending yesterday with bid/ask at
// -0.1% / +0.1% around the rate.
func (g *Generator) Forex(pair string, days int) domain.Series[domain.ForexPoint] {
	if days <= 0 {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	today := domain.NewDay(g.now())
	rate := g.uniform(0.5, 2.0)

	out := make(domain.Series[domain.ForexPoint], 0, days)
	for i := 0; i < days; i++ {
		rate = g.step(rate, 0.02, forexFloor)
		out = append(out, ForexQuote(domain.Day{Time: today.AddDate(0, 0, i-days)}, round(rate, 4)))
	}
	return out
}

// ForexQuote derives bid and ask from a rate, keeping the rate's precision.
func ForexQuote(day domain.Day, rate decimal.Decimal) domain.ForexPoint {
	places := ratePlaces(rate.InexactFloat64())
	return domain.ForexPoint{
		Date: day,
		Rate: rate,
		Bid:  rate.Mul(spreadBid).Round(places),
		Ask:  rate.Mul(spreadAsk).Round(places),
	}
}

// Jitter returns base * (1 + U(-maxMove, maxMove)), never below one
// hundredth of base. The forex gateway uses it to expand a single live
// rate into a daily series.
func (g *Generator) Jitter(base decimal.Decimal, maxMove float64) decimal.Decimal {
	g.mu.Lock()
	defer g.mu.Unlock()

	b := base.InexactFloat64()
	f := max(b*(1+g.uniform(-maxMove, maxMove)), b/100)
	return round(f, ratePlaces(f))
}
