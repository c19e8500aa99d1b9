package ledger

import (
	"context"
	"sort"
	"time"

	"coincap-trade-sim/internal/market"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Holding is one asset position valued at the current price.
type Holding struct {
	Asset    market.Asset
	Quantity decimal.Decimal
	Price    decimal.Decimal
	Value    decimal.Decimal
	Priced   bool
}

// Summary describes an account's standing.
type Summary struct {
	Username        string
	CreatedAt       time.Time
	StartingBalance decimal.Decimal
	CashBalance     decimal.Decimal
	Holdings        []Holding
	HoldingsValue   decimal.Decimal
	// ProfitPercent compares cash balance to starting balance, rounded to one digit.
	ProfitPercent decimal.Decimal
}

// ProfitPercent returns (now-start)/start*100 rounded to one fractional digit.
func ProfitPercent(start, now decimal.Decimal) decimal.Decimal {
	if start.IsZero() {
		return decimal.Zero
	}
	return now.Sub(start).Div(start).Mul(hundred).Round(1)
}

// Summary reports the account's balances and holdings. Holdings without a
// current price are listed unvalued.
func (e *Engine) Summary(ctx context.Context, username string) (*Summary, error) {
	account, err := e.store.GetAccount(ctx, username)
	if err != nil {
		return nil, err
	}
	wallet, err := e.store.GetWallet(ctx, username)
	if err != nil {
		return nil, err
	}

	sum := &Summary{
		Username:        account.Username,
		CreatedAt:       account.CreatedAt,
		StartingBalance: account.StartingBalance,
		CashBalance:     account.CashBalance,
		HoldingsValue:   decimal.Zero,
		ProfitPercent:   ProfitPercent(account.StartingBalance, account.CashBalance),
	}
	for asset, qty := range wallet {
		if !qty.IsPositive() {
			continue
		}
		h := Holding{Asset: asset, Quantity: qty}
		if quote, ok := e.prices.Quote(asset); ok {
			h.Price = quote.Value
			h.Value = qty.Mul(quote.Value).Round(Scale)
			h.Priced = true
			sum.HoldingsValue = sum.HoldingsValue.Add(h.Value)
		}
		sum.Holdings = append(sum.Holdings, h)
	}
	sort.Slice(sum.Holdings, func(i, j int) bool { return sum.Holdings[i].Asset < sum.Holdings[j].Asset })
	return sum, nil
}

// History returns the account's transactions, newest first.
func (e *Engine) History(ctx context.Context, username string) ([]Transaction, error) {
	if _, err := e.store.GetAccount(ctx, username); err != nil {
		return nil, err
	}
	txs, err := e.store.Transactions(ctx, username)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(txs)-1; i < j; i, j = i+1, j-1 {
		txs[i], txs[j] = txs[j], txs[i]
	}
	return txs, nil
}
