package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"market_pulse/internal/domain"
	"market_pulse/internal/infra"
)

var ErrAlreadyRunning = errors.New("broadcaster already running")

// Clock abstracts time for the broadcast loop.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Publisher is the fan-out side of the Registry.
type Publisher interface {
	Publish(event string, data any) (int, error)
	PublishTopic(t domain.Topic, event string, data any) (int, error)
	ActiveTopics() []domain.Topic
}

// BroadcasterOptions configures a Broadcaster.
type BroadcasterOptions struct {
	Interval time.Duration
	Backoff  time.Duration
	Clock    Clock
	Metrics  *infra.Metrics
	Logger   *slog.Logger
}

// Broadcaster periodically pushes a market snapshot to every consumer.
type Broadcaster struct {
	pub      Publisher
	snapshot func() domain.MarketSnapshot

	interval time.Duration
	backoff  time.Duration
	clock    Clock
	metrics  *infra.Metrics
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewBroadcaster creates a stopped broadcaster. snapshot is called once per
// cycle.
func NewBroadcaster(pub Publisher, snapshot func() domain.MarketSnapshot, opts BroadcasterOptions) *Broadcaster {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 30 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	if opts.Metrics == nil {
		opts.Metrics = infra.GlobalMetrics
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Broadcaster{
		pub:      pub,
		snapshot: snapshot,
		interval: opts.Interval,
		backoff:  opts.Backoff,
		clock:    opts.Clock,
		metrics:  opts.Metrics,
		logger:   opts.Logger.With(slog.String("module", "broadcaster")),
	}
}

// Start launches the loop. The first snapshot goes out immediately.
func (b *Broadcaster) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return ErrAlreadyRunning
	}
	ctx, b.cancel = context.WithCancel(ctx)
	b.running = true

	b.wg.Add(1)
	go b.loop(ctx)

	b.logger.Info("📡 Broadcaster started",
		slog.Duration("interval", b.interval),
		slog.Duration("backoff", b.backoff),
	)
	return nil
}

// Stop cancels the loop and waits for it to exit.
func (b *Broadcaster) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.cancel()
	b.running = false
	b.mu.Unlock()

	b.wg.Wait()
	b.logger.Info("Broadcaster stopped")
}

// Running reports whether the loop is active.
func (b *Broadcaster) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

func (b *Broadcaster) loop(ctx context.Context) {
	defer b.wg.Done()

	for {
		wait := b.interval
		if err := b.cycle(); err != nil {
			b.metrics.RecordBroadcastFault()
			b.logger.Error("Broadcast cycle failed",
				slog.Any("error", err),
				slog.Duration("retry_in", b.backoff),
			)
			wait = b.backoff
		}

		select {
		case <-ctx.Done():
			return
		case <-b.clock.After(wait):
		}
	}
}

// cycle publishes one market_update and the price_update of every
// subscribed topic present in the snapshot. Panics are converted to errors.
func (b *Broadcaster) cycle() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	snap := b.snapshot()
	if _, err := b.pub.Publish(EventMarketUpdate, snap); err != nil {
		return err
	}
	b.metrics.RecordBroadcast()

	now := b.clock.Now()
	for _, t := range b.pub.ActiveTopics() {
		price, ok := snap.Price(t)
		if !ok {
			continue
		}
		update := PriceUpdate{Symbol: t.Symbol, Type: string(t.Class), Price: price, Timestamp: now}
		if _, err := b.pub.PublishTopic(t, EventPriceUpdate, update); err != nil {
			return err
		}
	}
	return nil
}
