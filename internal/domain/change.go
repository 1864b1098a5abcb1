package domain

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Change holds the derived fields returned with every series query.
type Change struct {
	Current       decimal.Decimal  `json:"current"`
	Change        decimal.Decimal  `json:"change"`
	ChangePercent *decimal.Decimal `json:"changePercent"`
}

// ComputeChange calculates last-first and 100 * (last - first) / first.
// ChangePercent is nil when the baseline is zero.
func ComputeChange(first, last decimal.Decimal, places int32) Change {
	diff := last.Sub(first)
	c := Change{
		Current: last,
		Change:  diff.Round(places),
	}
	if first.IsZero() {
		return c
	}

	pct := diff.Div(first).Mul(hundred).Round(2)
	c.ChangePercent = &pct
	return c
}
