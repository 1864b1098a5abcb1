package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketSnapshot is the payload of one broadcast tick.
type MarketSnapshot struct {
	Timestamp time.Time                  `json:"timestamp"`
	Stocks    map[string]decimal.Decimal `json:"stocks"`
	Crypto    map[string]decimal.Decimal `json:"crypto"`
	Indices   map[string]decimal.Decimal `json:"indices"`
}

// Price looks up the snapshot value of a stock or crypto topic.
func (s *MarketSnapshot) Price(t Topic) (decimal.Decimal, bool) {
	var m map[string]decimal.Decimal
	switch t.Class {
	case ClassStock:
		m = s.Stocks
	case ClassCrypto:
		m = s.Crypto
	default:
		return decimal.Zero, false
	}
	v, ok := m[t.Symbol]
	return v, ok
}

// Indicator is a single macro-economic reading.
type Indicator struct {
	Value  decimal.Decimal `json:"value"`
	Unit   string          `json:"unit"`
	Change decimal.Decimal `json:"change"`
	Period string          `json:"period"`
}

// EconomicIndicators groups the headline macro readings.
type EconomicIndicators struct {
	GDP          Indicator `json:"gdp"`
	Unemployment Indicator `json:"unemployment"`
	Inflation    Indicator `json:"inflation"`
	InterestRate Indicator `json:"interestRate"`
}

// Allocation is one slice of the illustrative portfolio.
type Allocation struct {
	Asset      string `json:"asset"`
	Value      int64  `json:"value"`
	Percentage int    `json:"percentage"`
}

// IndexQuote is an index level with its daily change in percent.
type IndexQuote struct {
	Value  decimal.Decimal `json:"value"`
	Change decimal.Decimal `json:"change"`
}

// Mover is an entry of the top gainers/losers lists.
type Mover struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
	Change decimal.Decimal `json:"change"`
}

// MarketOverview is the dashboard summary.
type MarketOverview struct {
	Indices    map[string]IndexQuote `json:"indices"`
	TopGainers []Mover               `json:"topGainers"`
	TopLosers  []Mover               `json:"topLosers"`
	Timestamp  time.Time             `json:"timestamp"`
}
