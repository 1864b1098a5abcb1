package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"market_pulse/internal/domain"
	"market_pulse/internal/infra"
)

// Source tells whether a series came from a provider or the generator.
type Source string

const (
	SourceLive      Source = "live"
	SourceSynthetic Source = "synthetic"
)

// Result is a series together with where it came from. Reason holds the
// provider failure that caused a synthetic fallback, if any.
type Result[T domain.Point] struct {
	Series domain.Series[T]
	Source Source
	Reason error
}

// MarketDataOptions configures caching and observability of MarketData.
type MarketDataOptions struct {
	Cache   domain.SeriesCache // nil disables caching
	TTL     time.Duration      // zero disables caching
	Metrics *infra.Metrics
	Logger  *slog.Logger
}

// MarketData acquires series with a synthetic fallback. Callers always get a
// series of the requested length unless the provider returned a shorter
// live one; provider errors never escape.
type MarketData struct {
	gateway domain.MarketGateway
	gen     domain.SeriesGenerator
	cache   domain.SeriesCache
	ttl     time.Duration
	metrics *infra.Metrics
	logger  *slog.Logger
}

// NewMarketData creates the fallback service.
func NewMarketData(gateway domain.MarketGateway, gen domain.SeriesGenerator, opts MarketDataOptions) *MarketData {
	if opts.Metrics == nil {
		opts.Metrics = infra.GlobalMetrics
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &MarketData{
		gateway: gateway,
		gen:     gen,
		cache:   opts.Cache,
		ttl:     opts.TTL,
		metrics: opts.Metrics,
		logger:  opts.Logger.With(slog.String("module", "market_data")),
	}
}

// Stocks returns days daily bars for symbol. live=false skips the provider.
func (s *MarketData) Stocks(ctx context.Context, symbol string, days int, live bool) Result[domain.PricePoint] {
	return fetch(ctx, s, domain.ClassStock, symbol, days, live,
		func(ctx context.Context) (domain.Series[domain.PricePoint], error) {
			return s.gateway.Stocks(ctx, symbol, days)
		},
		func() domain.Series[domain.PricePoint] {
			return s.gen.Stocks(symbol, days)
		})
}

// Crypto returns hours hourly samples for symbol. live=false skips the provider.
func (s *MarketData) Crypto(ctx context.Context, symbol string, hours int, live bool) Result[domain.CryptoPoint] {
	return fetch(ctx, s, domain.ClassCrypto, symbol, hours, live,
		func(ctx context.Context) (domain.Series[domain.CryptoPoint], error) {
			return s.gateway.Crypto(ctx, symbol, hours)
		},
		func() domain.Series[domain.CryptoPoint] {
			return s.gen.Crypto(symbol, hours)
		})
}

// Forex returns days daily quotes for pair. live=false skips the provider.
func (s *MarketData) Forex(ctx context.Context, pair string, days int, live bool) Result[domain.ForexPoint] {
	return fetch(ctx, s, domain.ClassForex, pair, days, live,
		func(ctx context.Context) (domain.Series[domain.ForexPoint], error) {
			return s.gateway.Forex(ctx, pair, days)
		},
		func() domain.Series[domain.ForexPoint] {
			return s.gen.Forex(pair, days)
		})
}

func cacheKey(class domain.AssetClass, symbol string, window int) string {
	return fmt.Sprintf("%s:%s:%d", class, symbol, window)
}

func fetch[T domain.Point](
	ctx context.Context,
	s *MarketData,
	class domain.AssetClass,
	symbol string,
	window int,
	live bool,
	call func(context.Context) (domain.Series[T], error),
	generate func() domain.Series[T],
) Result[T] {
	start := time.Now()
	if !live {
		s.metrics.RecordFetch(false, time.Since(start))
		return Result[T]{Series: generate(), Source: SourceSynthetic}
	}

	// forex history is re-drawn around the live rate on every call
	cacheable := class != domain.ClassForex
	key := cacheKey(class, symbol, window)
	if cacheable {
		if cached, ok := s.lookup(ctx, key); ok {
			var series domain.Series[T]
			if err := json.Unmarshal(cached, &series); err == nil && len(series) > 0 {
				s.metrics.RecordFetch(true, time.Since(start))
				return Result[T]{Series: series, Source: SourceLive}
			}
			s.logger.Warn("Discarding undecodable cache entry", slog.String("key", key))
		}
	}

	series, err := call(ctx)
	if err == nil && len(series) == 0 {
		err = &domain.ProviderError{Class: class, Symbol: symbol, Kind: domain.FailureSoftMiss, Err: domain.ErrEmptySeries}
	}
	if err != nil {
		s.metrics.RecordProviderFailure()
		s.metrics.RecordFetch(false, time.Since(start))
		s.logger.Warn("Provider unavailable, serving synthetic series",
			slog.String("class", string(class)),
			slog.String("symbol", symbol),
			slog.String("kind", string(failureKind(err))),
			slog.Any("error", err),
		)
		return Result[T]{Series: generate(), Source: SourceSynthetic, Reason: err}
	}

	series = series.Tail(window)
	if cacheable {
		s.store(ctx, key, series)
	}
	s.metrics.RecordFetch(true, time.Since(start))
	return Result[T]{Series: series, Source: SourceLive}
}

func failureKind(err error) domain.FailureKind {
	var pe *domain.ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return domain.FailureTransport
}

func (s *MarketData) lookup(ctx context.Context, key string) ([]byte, bool) {
	if s.cache == nil || s.ttl <= 0 {
		return nil, false
	}
	b, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("Cache lookup failed", slog.String("key", key), slog.Any("error", err))
		return nil, false
	}
	s.metrics.RecordCache(ok)
	return b, ok
}

func (s *MarketData) store(ctx context.Context, key string, series any) {
	if s.cache == nil || s.ttl <= 0 {
		return
	}
	b, err := json.Marshal(series)
	if err != nil {
		s.logger.Warn("Cache encode failed", slog.String("key", key), slog.Any("error", err))
		return
	}
	if err := s.cache.Set(ctx, key, b, s.ttl); err != nil {
		s.logger.Warn("Cache store failed", slog.String("key", key), slog.Any("error", err))
	}
}
