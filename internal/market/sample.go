package market

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ErrUnknownAsset is returned for slugs outside the catalog.
var ErrUnknownAsset = errors.New("unknown asset")

// Direction compares a sample with the one before it.
type Direction int

const (
	Neutral Direction = iota
	Up
	Down
)

func (d Direction) String() string {
	switch d {
	case Up:
		return "up"
	case Down:
		return "down"
	default:
		return "neutral"
	}
}

// Arrow is the suffix shown next to a formatted price.
func (d Direction) Arrow() string {
	switch d {
	case Up:
		return " ▲"
	case Down:
		return " ▼"
	default:
		return ""
	}
}

// Sample is one observed USD price.
type Sample struct {
	Asset      Asset
	Value      decimal.Decimal
	ObservedAt time.Time
}

// NewSample validates that value is strictly positive.
func NewSample(asset Asset, value decimal.Decimal, at time.Time) (Sample, error) {
	if !value.IsPositive() {
		return Sample{}, fmt.Errorf("price for %s must be positive, got %s", asset, value)
	}
	return Sample{Asset: asset, Value: value, ObservedAt: at}, nil
}

// DirectionFrom compares s with the previous sample, if any.
func (s Sample) DirectionFrom(prev Sample, hasPrev bool) Direction {
	if !hasPrev {
		return Neutral
	}
	switch s.Value.Cmp(prev.Value) {
	case 1:
		return Up
	case -1:
		return Down
	default:
		return Neutral
	}
}

// Format renders the price the way the board displays it.
func (s Sample) Format(d Direction) string {
	return "$" + s.Value.StringFixed(4) + " USDT" + d.Arrow()
}
