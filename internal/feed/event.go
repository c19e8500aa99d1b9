package feed

import (
	"time"

	"coincap-trade-sim/internal/market"
)

// EventKind distinguishes price updates from fetch errors.
type EventKind int

const (
	EventUpdate EventKind = iota
	EventError
)

func (k EventKind) String() string {
	if k == EventError {
		return "error"
	}
	return "update"
}

// Event is pushed by the feed for the consumer to apply.
type Event struct {
	Kind      EventKind
	Asset     market.Asset
	Text      string           // formatted price, updates only
	Direction market.Direction // updates only
	Sample    market.Sample    // updates only
	Reason    string           // errors only
	At        time.Time
}
