package ledger

import (
	"errors"
	"fmt"
	"strings"

	"coincap-trade-sim/internal/market"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInsufficientHoldings = errors.New("insufficient holdings")
	ErrPriceUnavailable     = errors.New("price unavailable")
	ErrPersistence          = errors.New("persistence failure")
	ErrAccountNotFound      = errors.New("account not found")
	ErrUnknownAsset         = market.ErrUnknownAsset
)

// TradeError reports why a buy or sell was rejected. It unwraps to one of the
// sentinel errors above and, for persistence failures, to the store error.
type TradeError struct {
	Op        Kind
	Account   string
	Asset     market.Asset
	Amount    string
	Available *decimal.Decimal // balance or holdings that conflicted with the request
	Err       error
	Cause     error
}

func (e *TradeError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s for %s: %v", e.Op, e.Amount, e.Asset, e.Account, e.Err)
	if e.Available != nil {
		fmt.Fprintf(&b, " (available %s)", e.Available.String())
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

func (e *TradeError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}
