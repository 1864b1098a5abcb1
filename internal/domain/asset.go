package domain

import (
	"regexp"
	"strings"
)

// AssetClass is one of the three supported market segments.
type AssetClass string

const (
	ClassStock  AssetClass = "stock"
	ClassCrypto AssetClass = "crypto"
	ClassForex  AssetClass = "forex"
)

// Classes lists every supported asset class in display order.
var Classes = []AssetClass{ClassStock, ClassCrypto, ClassForex}

var tickerPattern = regexp.MustCompile(`^[A-Z0-9.\-]{1,15}$`)

// Valid reports whether c is a known asset class.
func (c AssetClass) Valid() bool {
	switch c {
	case ClassStock, ClassCrypto, ClassForex:
		return true
	}
	return false
}

// ParseAssetClass accepts "stock", "crypto" or "forex" in any case.
func ParseAssetClass(raw string) (AssetClass, error) {
	c := AssetClass(strings.ToLower(strings.TrimSpace(raw)))
	if !c.Valid() {
		return "", NewInputError("type", raw, ErrInvalidParam)
	}
	return c, nil
}

// NormalizeSymbol returns the canonical form of a symbol for the given class.
// Stock and crypto tickers are upper-cased; forex pairs become "BASE/QUOTE".
func NormalizeSymbol(class AssetClass, raw string) (string, error) {
	if class == ClassForex {
		return NormalizePair(raw)
	}
	s := strings.ToUpper(strings.TrimSpace(raw))
	if !tickerPattern.MatchString(s) {
		return "", NewInputError("symbol", raw, ErrInvalidSymbol)
	}
	return s, nil
}

// NormalizePair accepts "EUR/USD", "eur/usd" or "EURUSD" and returns "EUR/USD".
func NormalizePair(raw string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))

	var base, quote string
	if b, q, ok := strings.Cut(s, "/"); ok {
		base, quote = b, q
	} else if len(s) == 6 {
		base, quote = s[:3], s[3:]
	}

	if !isCurrencyCode(base) || !isCurrencyCode(quote) {
		return "", NewInputError("pair", raw, ErrInvalidSymbol)
	}
	return base + "/" + quote, nil
}

// SplitPair returns the base and quote currency of a normalized pair.
func SplitPair(pair string) (base, quote string) {
	base, quote, _ = strings.Cut(pair, "/")
	return base, quote
}

func isCurrencyCode(s string) bool {
	if len(s) != 3 {
		return false
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// Topic identifies one instrument a stream consumer can follow.
type Topic struct {
	Class  AssetClass `json:"type"`
	Symbol string     `json:"symbol"`
}

// NewTopic validates the class and normalizes the symbol.
func NewTopic(class AssetClass, symbol string) (Topic, error) {
	if !class.Valid() {
		return Topic{}, NewInputError("type", string(class), ErrInvalidParam)
	}
	s, err := NormalizeSymbol(class, symbol)
	if err != nil {
		return Topic{}, err
	}
	return Topic{Class: class, Symbol: s}, nil
}

func (t Topic) String() string {
	return string(t.Class) + ":" + t.Symbol
}
