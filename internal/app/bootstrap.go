package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"market_pulse/internal/api"
	"market_pulse/internal/domain"
	"market_pulse/internal/infra"
	"market_pulse/internal/infra/cache"
	"market_pulse/internal/infra/provider"
	"market_pulse/internal/infra/storage"
	"market_pulse/internal/service"
	"market_pulse/internal/stream"
	"market_pulse/internal/synth"

	"github.com/prometheus/client_golang/prometheus"
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	ConfigPath string
	EnvPath    string

	// Config and Logger may be set before Initialize to skip loading them.
	Config *infra.Config
	Logger *slog.Logger

	Metrics     *infra.Metrics
	Prometheus  *prometheus.Registry
	Storage     *storage.Storage
	Cache       domain.SeriesCache
	Gateway     *provider.Gateway
	Generator   *synth.Generator
	MarketData  *service.MarketData
	Query       *service.Query
	Registry    *stream.Registry
	Broadcaster *stream.Broadcaster
	Server      *api.Server
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap(configPath string) *Bootstrap {
	if configPath == "" {
		configPath = infra.DefaultConfigPath
	}
	return &Bootstrap{ConfigPath: configPath, EnvPath: ".env"}
}

// Initialize builds every component. Nothing is started yet.
func (b *Bootstrap) Initialize(ctx context.Context) error {
	// 1. Load Config
	if b.Config == nil {
		if err := infra.LoadDotEnv(b.EnvPath); err != nil {
			return err
		}
		cfg, err := infra.LoadConfig(b.ConfigPath)
		if err != nil {
			return err
		}
		b.Config = cfg
	}
	cfg := b.Config

	// 2. Setup Logger
	if b.Logger == nil {
		b.Logger = infra.NewLogger(cfg)
		slog.SetDefault(b.Logger)
	}
	b.Logger.Info("🚀 Bootstrapping Market Pulse...", slog.String("version", cfg.App.Version))

	b.Metrics = infra.GlobalMetrics
	b.Prometheus = infra.NewRegistry(b.Metrics)

	// 3. Initialize Storage (asset catalog)
	store, err := storage.NewStorage(cfg.Catalog.DBPath)
	if err != nil {
		return err
	}
	b.Storage = store
	if err := b.SeedCatalog(ctx); err != nil {
		return fmt.Errorf("seed catalog: %w", err)
	}
	b.Logger.Info("✅ Asset catalog ready", slog.String("path", cfg.Catalog.DBPath))

	// 4. Series cache
	b.Cache = b.openCache(ctx)

	// 5. Provider gateways
	timeout := cfg.ProviderTimeout()
	b.Generator = synth.New(uint64(time.Now().UnixNano()))
	coingecko := provider.NewCoinGecko(cfg.Providers.CoinGecko.URL, cfg.Providers.CoinGecko.APIKey, timeout)
	ids, err := store.ProviderIDs(domain.ClassCrypto)
	if err != nil {
		return fmt.Errorf("load coin ids: %w", err)
	}
	coingecko.SetCoinIDs(ids)
	b.Gateway = provider.NewGateway(
		provider.NewAlphaVantage(cfg.Providers.AlphaVantage.URL, cfg.Providers.AlphaVantage.APIKey, timeout),
		coingecko,
		provider.NewExchangeRate(cfg.Providers.ExchangeRate.URL, cfg.Providers.ExchangeRate.APIKey, timeout, b.Generator),
	)
	if cfg.Providers.AlphaVantage.APIKey == "" {
		b.Logger.Warn("⚠️ Alpha Vantage key not set, stock queries will be synthetic")
	}

	// 6. Services
	b.MarketData = service.NewMarketData(b.Gateway, b.Generator, service.MarketDataOptions{
		Cache:   b.Cache,
		TTL:     cfg.CacheTTL(),
		Metrics: b.Metrics,
		Logger:  b.Logger,
	})
	b.Query = service.NewQuery(b.MarketData, b.Generator, store, service.Limits{
		DefaultDays:  cfg.Query.DefaultDays,
		DefaultHours: cfg.Query.DefaultHours,
		MaxDays:      cfg.Query.MaxDays,
		MaxHours:     cfg.Query.MaxHours,
	})

	// 7. Stream
	b.Registry = stream.NewRegistry(stream.RegistryOptions{
		QueueSize: cfg.Stream.QueueSize,
		Metrics:   b.Metrics,
		Logger:    b.Logger,
	})
	universe := Universe(cfg)
	b.Broadcaster = stream.NewBroadcaster(b.Registry, func() domain.MarketSnapshot {
		return b.Generator.Snapshot(universe)
	}, stream.BroadcasterOptions{
		Interval: cfg.StreamInterval(),
		Backoff:  cfg.StreamBackoff(),
		Metrics:  b.Metrics,
		Logger:   b.Logger,
	})

	// 8. HTTP
	b.Server = api.NewServer(b.Query, b.Registry, api.Options{
		Addr:        cfg.Server.Addr,
		CORSOrigins: cfg.Server.CORSOrigins,
		Gatherer:    b.Prometheus,
		Logger:      b.Logger,
	})

	return nil
}

func (b *Bootstrap) openCache(ctx context.Context) domain.SeriesCache {
	cfg := b.Config.Cache
	switch cfg.Backend {
	case "none":
		b.Logger.Info("Series cache disabled")
		return nil
	case "redis":
		r, err := cache.NewRedis(ctx, cache.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
		if err == nil {
			b.Logger.Info("✅ Redis cache connected", slog.String("addr", cfg.Redis.Addr))
			return r
		}
		b.Logger.Warn("Redis unavailable, using in-memory cache", slog.Any("error", err))
	}

	m, err := cache.NewMemory(cfg.MaxItems)
	if err != nil {
		b.Logger.Warn("In-memory cache unavailable, caching disabled", slog.Any("error", err))
		return nil
	}
	return m
}

// SeedCatalog upserts the configured assets. Existing rows keep their
// active flag.
func (b *Bootstrap) SeedCatalog(ctx context.Context) error {
	type seed struct {
		class domain.AssetClass
		conf  infra.AssetConfig
	}
	var seeds []seed
	for class, list := range map[domain.AssetClass][]infra.AssetConfig{
		domain.ClassStock:  b.Config.Catalog.Stocks,
		domain.ClassCrypto: b.Config.Catalog.Crypto,
		domain.ClassForex:  b.Config.Catalog.Forex,
	} {
		for _, a := range list {
			seeds = append(seeds, seed{class, a})
		}
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		errs      []error
		semaphore = make(chan struct{}, 4)
	)

	for _, s := range seeds {
		wg.Add(1)
		go func(s seed) {
			defer wg.Done()
			select {
			case <-ctx.Done():
				return
			case semaphore <- struct{}{}: // Acquire
			}
			defer func() { <-semaphore }() // Release

			symbol, err := domain.NormalizeSymbol(s.class, s.conf.Symbol)
			if err != nil {
				b.Logger.Warn("Skipping catalog entry", slog.String("symbol", s.conf.Symbol), slog.Any("error", err))
				return
			}
			name := s.conf.Name
			if name == "" {
				name = symbol
			}

			asset := &domain.Asset{
				Class:      s.class,
				Symbol:     symbol,
				Name:       name,
				ProviderID: s.conf.ProviderID,
				IsActive:   true,
			}
			if err := b.Storage.UpsertAsset(asset); err != nil {
				b.Logger.Error("Failed to upsert asset", slog.String("symbol", symbol), slog.Any("error", err))
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", symbol, err))
				mu.Unlock()
			}
		}(s)
	}

	wg.Wait()
	if err := ctx.Err(); err != nil {
		return err
	}
	return errors.Join(errs...)
}

// Run starts the broadcaster and serves HTTP until ctx is cancelled, then
// shuts both down.
func (b *Bootstrap) Run(ctx context.Context) error {
	if err := b.Broadcaster.Start(ctx); err != nil {
		return err
	}
	defer b.Broadcaster.Stop()

	errCh := make(chan error, 1)
	go func() { errCh <- b.Server.Start() }()

	b.Logger.Info("✨ Market Pulse fully operational. Press Ctrl+C to exit.")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	b.Logger.Info("👋 Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), b.Config.ShutdownTimeout())
	defer cancel()
	if err := b.Server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return <-errCh
}

// Close releases the cache and the catalog.
func (b *Bootstrap) Close() error {
	var errs []error
	if b.Broadcaster != nil {
		b.Broadcaster.Stop()
	}
	if b.Cache != nil {
		errs = append(errs, b.Cache.Close())
	}
	if b.Storage != nil {
		errs = append(errs, b.Storage.Close())
	}
	return errors.Join(errs...)
}

// Universe converts the configured broadcast instruments.
func Universe(cfg *infra.Config) synth.Universe {
	convert := func(list []infra.InstrumentConfig) []synth.Instrument {
		out := make([]synth.Instrument, 0, len(list))
		for _, i := range list {
			out = append(out, synth.Instrument{Symbol: i.Symbol, Base: i.Base, Spread: i.Spread})
		}
		return out
	}
	u := cfg.Stream.Universe
	return synth.Universe{
		Stocks:  convert(u.Stocks),
		Crypto:  convert(u.Crypto),
		Indices: convert(u.Indices),
	}
}
