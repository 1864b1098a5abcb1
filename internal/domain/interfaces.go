package domain

import (
	"context"
	"time"
)

// MarketGateway fetches live series from external providers.
// Every failure is returned as a *ProviderError.
type MarketGateway interface {
	Stocks(ctx context.Context, symbol string, days int) (Series[PricePoint], error)
	Crypto(ctx context.Context, symbol string, hours int) (Series[CryptoPoint], error)
	Forex(ctx context.Context, pair string, days int) (Series[ForexPoint], error)
}

// SeriesGenerator produces synthetic series of exactly the requested length.
type SeriesGenerator interface {
	Stocks(symbol string, days int) Series[PricePoint]
	Crypto(symbol string, hours int) Series[CryptoPoint]
	Forex(pair string, days int) Series[ForexPoint]
}

// SeriesCache stores encoded live series under an explicit key and TTL.
type SeriesCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close() error
}

// AssetCatalog is the read side of the asset catalog.
type AssetCatalog interface {
	ListAssets(class AssetClass) ([]Asset, error)
	ProviderIDs(class AssetClass) (map[string]string, error)
}
