package provider

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"market_pulse/internal/domain"

	"github.com/shopspring/decimal"
)

const (
	coinGeckoName       = "coingecko"
	DefaultCoinGeckoURL = "https://api.coingecko.com/api/v3"
)

// DefaultCoinIDs maps ticker symbols to CoinGecko coin ids.
var DefaultCoinIDs = map[string]string{
	"BTC":   "bitcoin",
	"ETH":   "ethereum",
	"BNB":   "binancecoin",
	"SOL":   "solana",
	"ADA":   "cardano",
	"DOT":   "polkadot",
	"DOGE":  "dogecoin",
	"MATIC": "matic-network",
}

// cgChart is the market_chart payload. Each entry is [unix_ms, value].
// Prices is a pointer so a missing key can be told apart from an empty list.
type cgChart struct {
	Prices       *[][]float64 `json:"prices"`
	TotalVolumes [][]float64  `json:"total_volumes"`
	MarketCaps   [][]float64  `json:"market_caps"`
}

// CoinGecko fetches hourly crypto prices.
type CoinGecko struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client

	mu  sync.RWMutex
	ids map[string]string
}

// NewCoinGecko creates a client using DefaultCoinIDs until SetCoinIDs is called.
func NewCoinGecko(baseURL, apiKey string, timeout time.Duration) *CoinGecko {
	if baseURL == "" {
		baseURL = DefaultCoinGeckoURL
	}
	ids := make(map[string]string, len(DefaultCoinIDs))
	for k, v := range DefaultCoinIDs {
		ids[k] = v
	}
	return &CoinGecko{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: newHTTPClient(timeout),
		ids:        ids,
	}
}

// SetCoinIDs merges symbol → coin id entries into the vocabulary.
func (c *CoinGecko) SetCoinIDs(ids map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for sym, id := range ids {
		if id != "" {
			c.ids[strings.ToUpper(sym)] = id
		}
	}
}

// CoinID resolves a symbol. Unknown symbols pass through lower-cased.
func (c *CoinGecko) CoinID(symbol string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if id, ok := c.ids[strings.ToUpper(symbol)]; ok {
		return id
	}
	return strings.ToLower(symbol)
}

// Crypto returns up to hours hourly samples, oldest first.
func (c *CoinGecko) Crypto(ctx context.Context, symbol string, hours int) (domain.Series[domain.CryptoPoint], error) {
	days := strconv.FormatFloat(float64(hours)/24, 'f', -1, 64)
	endpoint := fmt.Sprintf("%s/coins/%s/market_chart?vs_currency=usd&days=%s&interval=hourly",
		c.baseURL, url.PathEscape(c.CoinID(symbol)), days)

	header := http.Header{}
	if c.apiKey != "" {
		header.Set("x-cg-demo-api-key", c.apiKey)
	}

	var chart cgChart
	if err := getJSON(ctx, c.httpClient, endpoint, header, &chart); err != nil {
		return nil, transportFailure(coinGeckoName, domain.ClassCrypto, symbol, err)
	}
	if chart.Prices == nil {
		return nil, softMiss(coinGeckoName, domain.ClassCrypto, symbol, "prices")
	}

	prices := *chart.Prices
	out := make(domain.Series[domain.CryptoPoint], 0, len(prices))
	for i, entry := range prices {
		if len(entry) < 2 {
			return nil, malformed(coinGeckoName, domain.ClassCrypto, symbol, fmt.Errorf("price entry %d has %d fields", i, len(entry)))
		}
		out = append(out, domain.CryptoPoint{
			Timestamp: time.UnixMilli(int64(entry[0])).UTC(),
			Price:     decimal.NewFromFloat(entry[1]).Round(2),
			Volume:    alignedVolume(chart.TotalVolumes, i),
			MarketCap: alignedValue(chart.MarketCaps, i),
		})
	}

	out = dedupeByTime(out)
	if len(out) == 0 {
		return nil, emptySeries(coinGeckoName, domain.ClassCrypto, symbol)
	}
	return out.Tail(hours), nil
}

// alignedValue returns the i-th value of a [ts, value] list, zero when absent.
func alignedValue(list [][]float64, i int) decimal.Decimal {
	if i >= len(list) || len(list[i]) < 2 {
		return decimal.Zero
	}
	return decimal.NewFromFloat(list[i][1]).Round(2)
}

// alignedVolume returns the i-th volume rounded to a whole unit, zero when
// absent or negative.
func alignedVolume(list [][]float64, i int) int64 {
	if i >= len(list) || len(list[i]) < 2 || list[i][1] < 0 {
		return 0
	}
	return int64(math.Round(list[i][1]))
}

// dedupeByTime sorts by timestamp and keeps the last sample of each instant.
func dedupeByTime(s domain.Series[domain.CryptoPoint]) domain.Series[domain.CryptoPoint] {
	sort.SliceStable(s, func(i, j int) bool {
		return s[i].Timestamp.Before(s[j].Timestamp)
	})
	out := s[:0]
	for _, p := range s {
		if n := len(out); n > 0 && out[n-1].Timestamp.Equal(p.Timestamp) {
			out[n-1] = p
			continue
		}
		out = append(out, p)
	}
	return out
}
