// Package board holds the per-asset display state built from feed events.
package board

import (
	"context"
	"sync"
	"time"

	"coincap-trade-sim/internal/feed"
	"coincap-trade-sim/internal/market"
	"coincap-trade-sim/internal/queue"
	"coincap-trade-sim/internal/scheduler"
	"go.uber.org/zap"
)

const (
	placeholderText = "---"
	errorText       = "error"
)

// Row is what the price list shows for one asset.
type Row struct {
	Asset     market.Asset
	Text      string
	Direction market.Direction
	Failed    bool
	Reason    string
	UpdatedAt time.Time
}

// Board is the consumer side of the feed queue.
type Board struct {
	logger *zap.Logger

	mu      sync.RWMutex
	order   []market.Asset
	rows    map[market.Asset]*Row
	applied int64
	dropped int64
}

// New creates a board with a placeholder row per catalog asset.
func New(catalog *market.Catalog, logger *zap.Logger) *Board {
	b := &Board{
		logger: logger.Named("board"),
		order:  catalog.Assets(),
		rows:   make(map[market.Asset]*Row, catalog.Len()),
	}
	for _, a := range b.order {
		b.rows[a] = &Row{Asset: a, Text: placeholderText}
	}
	return b
}

// Apply updates the row the event refers to. Events for unknown assets are ignored.
func (b *Board) Apply(e feed.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	row, ok := b.rows[e.Asset]
	if !ok {
		b.logger.Warn("Ignoring event for unknown asset", zap.String("asset", e.Asset.String()))
		return
	}
	switch e.Kind {
	case feed.EventUpdate:
		row.Text = e.Text
		row.Direction = e.Direction
		row.Failed = false
		row.Reason = ""
	case feed.EventError:
		row.Text = errorText
		row.Direction = market.Neutral
		row.Failed = true
		row.Reason = e.Reason
	}
	row.UpdatedAt = e.At
	b.applied++
}

// Drain applies every queued event in order and returns how many were applied.
// Once ctx is done the remaining events are dropped instead.
func (b *Board) Drain(ctx context.Context, q *queue.Queue[feed.Event]) int {
	events := q.Drain()
	for i, e := range events {
		if ctx.Err() != nil {
			dropped := len(events) - i
			b.mu.Lock()
			b.dropped += int64(dropped)
			b.mu.Unlock()
			b.logger.Debug("Dropping events queued after shutdown", zap.Int("dropped", dropped))
			return i
		}
		b.Apply(e)
	}
	return len(events)
}

// Schedule drains q on s every interval.
func (b *Board) Schedule(s *scheduler.Scheduler, q *queue.Queue[feed.Event], interval time.Duration) *scheduler.Handle {
	return s.Every("queue-drain", interval, func(ctx context.Context) {
		b.Drain(ctx, q)
	})
}

// Rows returns a copy of every row in catalog order.
func (b *Board) Rows() []Row {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Row, 0, len(b.order))
	for _, a := range b.order {
		out = append(out, *b.rows[a])
	}
	return out
}

// Row returns the row of one asset.
func (b *Board) Row(asset market.Asset) (Row, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	r, ok := b.rows[asset]
	if !ok {
		return Row{}, false
	}
	return *r, true
}

// Counts returns how many events were applied and dropped.
func (b *Board) Counts() (applied, dropped int64) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.applied, b.dropped
}
