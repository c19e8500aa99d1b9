package main

import (
	"context"
	"fmt"

	"coincap-trade-sim/internal/coincap"
	"coincap-trade-sim/internal/config"
	"coincap-trade-sim/internal/database"
	"coincap-trade-sim/internal/logger"
	"coincap-trade-sim/internal/market"
	"coincap-trade-sim/internal/pricecache"
	"coincap-trade-sim/internal/store"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// app bundles the pieces every command needs.
type app struct {
	cfg     config.Config
	log     *zap.Logger
	catalog *market.Catalog
	store   *store.GormStore
	redis   *redis.Client
	mirror  *pricecache.Mirror
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return nil, fmt.Errorf("could not load config: %w", err)
	}

	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format, cfg.Logger.Outputs...)
	if err != nil {
		return nil, fmt.Errorf("could not initialize logger: %w", err)
	}

	catalog, err := market.NewCatalog(cfg.Feed.Assets...)
	if err != nil {
		return nil, fmt.Errorf("invalid feed.assets: %w", err)
	}

	db, err := database.NewDatabase(&cfg.Database)
	if err != nil {
		return nil, err
	}
	log.Debug("Database connection successful and schema migrated", zap.String("driver", cfg.Database.Driver))

	st := store.NewGormStore(db)
	if err := st.SeedAccounts(ctx, cfg.Accounts, log); err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: log, catalog: catalog, store: st}
	if cfg.Redis.URL != "" {
		client, err := pricecache.Connect(ctx, &cfg.Redis)
		if err != nil {
			// the mirror is optional; keep going without it
			log.Warn("Redis unavailable, price mirror disabled", zap.Error(err))
		} else {
			a.redis = client
			a.mirror = pricecache.NewMirror(client, &cfg.Redis, log.Named("pricecache"))
		}
	}
	return a, nil
}

func (a *app) quoteClient() *coincap.Client {
	return coincap.NewClient(&a.cfg.CoinCap, a.log.Named("coincap"))
}

func (a *app) close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	_ = a.log.Sync()
}

// quoteFunc adapts a function to ledger.PriceLookup.
type quoteFunc func(asset market.Asset) (market.Sample, bool)

func (f quoteFunc) Quote(asset market.Asset) (market.Sample, bool) { return f(asset) }

// livePrices fetches each asset from the provider once and reuses the result.
func (a *app) livePrices(ctx context.Context, cached bool) quoteFunc {
	client := a.quoteClient()
	seen := make(map[market.Asset]market.Sample)
	return func(asset market.Asset) (market.Sample, bool) {
		if s, ok := seen[asset]; ok {
			return s, true
		}
		var (
			s   market.Sample
			err error
		)
		if cached && a.mirror != nil {
			v, ok, lerr := a.mirror.Latest(ctx, asset)
			if lerr != nil || !ok {
				return market.Sample{}, false
			}
			s, err = market.NewSample(asset, v, nowFunc())
		} else {
			s, err = client.Fetch(ctx, asset)
		}
		if err != nil {
			a.log.Warn("Price unavailable", zap.String("asset", asset.String()), zap.Error(err))
			return market.Sample{}, false
		}
		seen[asset] = s
		return s, true
	}
}
