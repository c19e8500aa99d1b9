package pricecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"coincap-trade-sim/internal/config"
	"coincap-trade-sim/internal/market"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const writeTimeout = 2 * time.Second

// Update is the message published for every accepted sample.
type Update struct {
	Asset      string    `json:"asset"`
	Price      string    `json:"price"`
	ObservedAt time.Time `json:"observed_at"`
}

// Connect initializes the Redis client and verifies it with a ping.
func Connect(ctx context.Context, cfg *config.Redis) (*redis.Client, error) {
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if opt.ReadTimeout == 0 {
		opt.ReadTimeout = 5 * time.Second
	}
	if opt.WriteTimeout == 0 {
		opt.WriteTimeout = 5 * time.Second
	}
	if opt.DialTimeout == 0 {
		opt.DialTimeout = 5 * time.Second
	}
	if opt.MaxRetries == 0 {
		opt.MaxRetries = 2
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Mirror copies accepted samples to Redis so other processes can read the
// latest prices without polling the provider.
type Mirror struct {
	client  *redis.Client
	prefix  string
	channel string
	logger  *zap.Logger
}

func NewMirror(client *redis.Client, cfg *config.Redis, logger *zap.Logger) *Mirror {
	return &Mirror{client: client, prefix: cfg.KeyPrefix, channel: cfg.Channel, logger: logger}
}

func (m *Mirror) key(asset market.Asset) string { return m.prefix + asset.String() }

// OnSample stores the sample as the asset's latest price and publishes it.
// Failures are logged; the feed keeps running without the mirror.
func (m *Mirror) OnSample(ctx context.Context, sample market.Sample) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	payload, err := json.Marshal(Update{
		Asset:      sample.Asset.String(),
		Price:      sample.Value.String(),
		ObservedAt: sample.ObservedAt.UTC(),
	})
	if err != nil {
		m.logger.Error("Failed to encode price update", zap.Error(err))
		return
	}

	_, err = m.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, m.key(sample.Asset), sample.Value.String(), 0)
		if m.channel != "" {
			pipe.Publish(ctx, m.channel, payload)
		}
		return nil
	})
	if err != nil {
		m.logger.Warn("Failed to mirror price", zap.String("asset", sample.Asset.String()), zap.Error(err))
	}
}

// Latest returns the last mirrored price of asset. The bool is false when no
// price has been mirrored yet.
func (m *Mirror) Latest(ctx context.Context, asset market.Asset) (decimal.Decimal, bool, error) {
	raw, err := m.client.Get(ctx, m.key(asset)).Result()
	if errors.Is(err, redis.Nil) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("get %s: %w", m.key(asset), err)
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("decode cached price for %s: %w", asset, err)
	}
	return v, true, nil
}

// Subscribe delivers published updates until ctx is done. The returned channel
// is closed when the subscription ends.
func (m *Mirror) Subscribe(ctx context.Context) (<-chan Update, error) {
	sub := m.client.Subscribe(ctx, m.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", m.channel, err)
	}

	out := make(chan Update)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var u Update
				if err := json.Unmarshal([]byte(msg.Payload), &u); err != nil {
					m.logger.Warn("Dropping malformed price update", zap.Error(err))
					continue
				}
				select {
				case out <- u:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
