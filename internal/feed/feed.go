package feed

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"coincap-trade-sim/internal/coincap"
	"coincap-trade-sim/internal/market"
	"coincap-trade-sim/internal/queue"
	"coincap-trade-sim/internal/scheduler"
	"go.uber.org/zap"
)

// State of a feed instance.
type State int32

const (
	Idle State = iota
	Fetching
)

func (s State) String() string {
	if s == Fetching {
		return "fetching"
	}
	return "idle"
}

// UnknownOwner is recorded against fetch failures when no account is logged in.
const UnknownOwner = "unknown_user"

// Observer is notified of every accepted sample after it is recorded.
type Observer interface {
	OnSample(ctx context.Context, sample market.Sample)
}

// ErrorSink durably records fetch failures.
type ErrorSink interface {
	Record(ctx context.Context, account, message string) error
}

// Option configures a Feed.
type Option func(*Feed)

// WithObserver registers an observer, e.g. the Redis mirror.
func WithObserver(o Observer) Option {
	return func(f *Feed) { f.observers = append(f.observers, o) }
}

// WithErrorSink sets where fetch failures are recorded.
func WithErrorSink(s ErrorSink) Option {
	return func(f *Feed) { f.sink = s }
}

// WithOwner sets the account name fetch failures are recorded against.
func WithOwner(owner string) Option {
	return func(f *Feed) {
		if owner != "" {
			f.owner = owner
		}
	}
}

// WithHistorySize overrides the per-asset history cap.
func WithHistorySize(n int) Option {
	return func(f *Feed) { f.historySize = n }
}

// Feed polls every catalog asset once per cycle and publishes the results.
type Feed struct {
	source    coincap.QuoteClient
	catalog   *market.Catalog
	events    *queue.Queue[Event]
	logger    *zap.Logger
	owner     string
	sink      ErrorSink
	observers []Observer

	historySize int
	state       atomic.Int32
	cycles      atomic.Int64
	skipped     atomic.Int64

	mu      sync.RWMutex
	history *market.History
	failing map[market.Asset]string
}

// New creates a feed. The history starts empty.
func New(source coincap.QuoteClient, catalog *market.Catalog, events *queue.Queue[Event], logger *zap.Logger, opts ...Option) *Feed {
	f := &Feed{
		source:      source,
		catalog:     catalog,
		events:      events,
		logger:      logger.Named("feed"),
		owner:       UnknownOwner,
		historySize: market.DefaultHistorySize,
		failing:     make(map[market.Asset]string),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.history = market.NewHistory(catalog, f.historySize)
	return f
}

// State reports whether a cycle is in flight.
func (f *Feed) State() State { return State(f.state.Load()) }

// Cycles returns the number of completed cycles.
func (f *Feed) Cycles() int64 { return f.cycles.Load() }

// Skipped returns the number of ticks dropped because a cycle was in flight.
func (f *Feed) Skipped() int64 { return f.skipped.Load() }

// Schedule runs a cycle on s every interval.
func (f *Feed) Schedule(s *scheduler.Scheduler, interval time.Duration) *scheduler.Handle {
	return s.Every("price-feed", interval, func(ctx context.Context) {
		f.RunCycle(ctx)
	})
}

// RunCycle fetches every asset once. It returns false without doing anything when
// another cycle is already in flight. Shutdown (ctx done) is checked before each
// asset; a fetch already in flight is allowed to finish but its result is discarded.
func (f *Feed) RunCycle(ctx context.Context) bool {
	if !f.state.CompareAndSwap(int32(Idle), int32(Fetching)) {
		f.skipped.Add(1)
		f.logger.Debug("Fetch cycle already in flight, skipping tick")
		return false
	}
	defer f.state.Store(int32(Idle))

	start := time.Now()
	var fetched, failed int
	assets := f.catalog.Assets()

	for _, asset := range assets {
		if ctx.Err() != nil {
			f.logger.Info("Shutdown observed, ending fetch cycle early", zap.String("next_asset", asset.String()))
			break
		}

		sample, err := f.source.Fetch(context.WithoutCancel(ctx), asset)
		if ctx.Err() != nil {
			f.logger.Debug("Discarding result fetched during shutdown", zap.String("asset", asset.String()))
			break
		}
		if err != nil {
			f.fail(ctx, asset, err)
			failed++
			continue
		}
		f.record(ctx, sample)
		fetched++
	}

	f.cycles.Add(1)
	logCycle := f.logger.Debug
	if failed > 0 {
		logCycle = f.logger.Info
	}
	logCycle("Fetch cycle complete",
		zap.Int("assets", len(assets)),
		zap.Int("fetched", fetched),
		zap.Int("errors", failed),
		zap.Duration("duration", time.Since(start)),
	)
	return true
}

func (f *Feed) record(ctx context.Context, sample market.Sample) {
	f.mu.Lock()
	prev, hasPrev := f.history.Last(sample.Asset)
	direction := sample.DirectionFrom(prev, hasPrev)
	err := f.history.Append(sample)
	if err == nil {
		delete(f.failing, sample.Asset)
	}
	f.mu.Unlock()

	if err != nil {
		f.logger.Error("Dropping sample", zap.String("asset", sample.Asset.String()), zap.Error(err))
		return
	}

	f.events.Push(Event{
		Kind:      EventUpdate,
		Asset:     sample.Asset,
		Text:      sample.Format(direction),
		Direction: direction,
		Sample:    sample,
		At:        sample.ObservedAt,
	})
	for _, o := range f.observers {
		o.OnSample(ctx, sample)
	}
}

func (f *Feed) fail(ctx context.Context, asset market.Asset, err error) {
	reason := err.Error()

	f.mu.Lock()
	f.failing[asset] = reason
	f.mu.Unlock()

	f.events.Push(Event{Kind: EventError, Asset: asset, Reason: reason, At: time.Now()})
	f.logger.Warn("Failed to fetch price", zap.String("asset", asset.String()), zap.Error(err))

	if f.sink == nil {
		return
	}
	if serr := f.sink.Record(context.WithoutCancel(ctx), f.owner, "Error fetching price: "+reason); serr != nil {
		f.logger.Error("Failed to record fetch failure", zap.String("asset", asset.String()), zap.Error(serr))
	}
}

// Quote returns the current price of asset. It is absent when nothing was fetched
// yet or the latest fetch for the asset failed.
func (f *Feed) Quote(asset market.Asset) (market.Sample, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if _, failing := f.failing[asset]; failing {
		return market.Sample{}, false
	}
	return f.history.Last(asset)
}

// Recent returns up to n samples for asset, oldest first.
func (f *Feed) Recent(asset market.Asset, n int) []market.Sample {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.history.Recent(asset, n)
}

// Candles builds OHLC bars over the last window samples of asset.
func (f *Feed) Candles(asset market.Asset, window, chunk int) []market.Candle {
	return market.Candles(f.Recent(asset, window), chunk)
}

// HistoryLen returns the number of samples kept for asset.
func (f *Feed) HistoryLen(asset market.Asset) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.history.Len(asset)
}
