package ledger

import (
	"context"
	"time"

	"coincap-trade-sim/internal/market"
	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits kept for cash and quantities.
const Scale = 5

// Kind of a transaction.
type Kind string

const (
	Buy  Kind = "buy"
	Sell Kind = "sell"
)

// Account is a trader's cash position.
type Account struct {
	Username        string
	CashBalance     decimal.Decimal
	StartingBalance decimal.Decimal
	CreatedAt       time.Time
}

// Wallet maps assets to held quantities. Missing assets hold zero.
type Wallet map[market.Asset]decimal.Decimal

// Get returns the quantity held of asset.
func (w Wallet) Get(asset market.Asset) decimal.Decimal {
	if q, ok := w[asset]; ok {
		return q
	}
	return decimal.Zero
}

// Transaction is an immutable record of an applied trade.
type Transaction struct {
	ID         string
	Account    string
	Timestamp  time.Time
	Asset      market.Asset
	Kind       Kind
	UnitPrice  decimal.Decimal
	CashAmount decimal.Decimal
	Quantity   decimal.Decimal
}

// AccountStore reads and updates account balances.
type AccountStore interface {
	GetAccount(ctx context.Context, username string) (Account, error)
	UpdateBalance(ctx context.Context, username string, balance decimal.Decimal) error
}

// WalletStore reads and updates per-asset holdings.
type WalletStore interface {
	GetWallet(ctx context.Context, username string) (Wallet, error)
	SetHolding(ctx context.Context, username string, asset market.Asset, quantity decimal.Decimal) error
}

// HistoryLog is the append-only transaction record.
type HistoryLog interface {
	AppendTransaction(ctx context.Context, tx Transaction) error
	Transactions(ctx context.Context, username string) ([]Transaction, error)
}

// Store combines the ledger collaborators. Atomic runs fn so that every write
// made through the Store it receives is applied together or not at all.
type Store interface {
	AccountStore
	WalletStore
	HistoryLog
	Atomic(ctx context.Context, fn func(tx Store) error) error
}

// AuditLog is an append-only sink of failure records.
type AuditLog interface {
	Record(ctx context.Context, account, message string) error
}

// PriceLookup returns the current price of an asset, if there is one.
type PriceLookup interface {
	Quote(asset market.Asset) (market.Sample, bool)
}
