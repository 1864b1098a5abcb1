package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Prices go over the wire as JSON numbers, not strings.
	decimal.MarshalJSONWithoutQuotes = true
}

const dayLayout = "2006-01-02"

// Day is a calendar day in UTC, encoded as "2006-01-02".
type Day struct {
	time.Time
}

// NewDay truncates t to its UTC calendar day.
func NewDay(t time.Time) Day {
	y, m, d := t.UTC().Date()
	return Day{time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// ParseDay parses a "2006-01-02" string.
func ParseDay(s string) (Day, error) {
	t, err := time.Parse(dayLayout, s)
	if err != nil {
		return Day{}, err
	}
	return Day{t}, nil
}

func (d Day) String() string {
	return d.Format(dayLayout)
}

func (d Day) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Day) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseDay(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// PricePoint is one daily bar of an equity.
type PricePoint struct {
	Date   Day             `json:"date"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume int64           `json:"volume"`
}

func (p PricePoint) Value() decimal.Decimal { return p.Close }

// CryptoPoint is one hourly sample of a crypto asset.
type CryptoPoint struct {
	Timestamp time.Time       `json:"timestamp"`
	Price     decimal.Decimal `json:"price"`
	Volume    int64           `json:"volume"`
	MarketCap decimal.Decimal `json:"marketCap"`
}

func (p CryptoPoint) Value() decimal.Decimal { return p.Price }

// ForexPoint is one daily quote of a currency pair. Bid <= Rate <= Ask.
type ForexPoint struct {
	Date Day             `json:"date"`
	Rate decimal.Decimal `json:"rate"`
	Bid  decimal.Decimal `json:"bid"`
	Ask  decimal.Decimal `json:"ask"`
}

func (p ForexPoint) Value() decimal.Decimal { return p.Rate }

// Point is any series element with a headline value.
type Point interface {
	PricePoint | CryptoPoint | ForexPoint
	Value() decimal.Decimal
}

// Series is an ordered sequence of points, oldest first. The last element is
// the current value and the first is the baseline for change computations.
type Series[T Point] []T

// First returns the baseline point. The series must not be empty.
func (s Series[T]) First() T { return s[0] }

// Last returns the current point. The series must not be empty.
func (s Series[T]) Last() T { return s[len(s)-1] }

// Tail returns the most recent n points, or the whole series if it is shorter.
func (s Series[T]) Tail(n int) Series[T] {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// Summarize computes the headline fields of a non-empty series.
// places controls the rounding of the absolute change.
func (s Series[T]) Summarize(places int32) Change {
	return ComputeChange(s.First().Value(), s.Last().Value(), places)
}
