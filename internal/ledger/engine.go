package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"coincap-trade-sim/internal/market"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Phase of an account's trade pipeline.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseValidating
	PhaseApplying
)

func (p Phase) String() string {
	switch p {
	case PhaseValidating:
		return "validating"
	case PhaseApplying:
		return "applying"
	default:
		return "idle"
	}
}

// Receipt is returned for an applied trade.
type Receipt struct {
	Transaction Transaction
	Balance     decimal.Decimal
	Holding     decimal.Decimal
}

type slot struct {
	mu    sync.Mutex
	phase atomic.Int32
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithClock overrides the time source used to stamp transactions.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// Engine validates and applies trades. Trades for the same account are
// serialized; different accounts proceed independently.
type Engine struct {
	logger  *zap.Logger
	store   Store
	audit   AuditLog
	prices  PriceLookup
	catalog *market.Catalog
	now     func() time.Time

	mu    sync.Mutex
	slots map[string]*slot
}

func NewEngine(logger *zap.Logger, store Store, audit AuditLog, prices PriceLookup, catalog *market.Catalog, opts ...EngineOption) *Engine {
	e := &Engine{
		logger:  logger,
		store:   store,
		audit:   audit,
		prices:  prices,
		catalog: catalog,
		now:     time.Now,
		slots:   make(map[string]*slot),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Buy spends cashAmount of the account's balance on asset at the current price.
func (e *Engine) Buy(ctx context.Context, username, asset, cashAmount string) (*Receipt, error) {
	return e.execute(ctx, Buy, username, asset, cashAmount)
}

// Sell sells quantity units of asset at the current price.
func (e *Engine) Sell(ctx context.Context, username, asset, quantity string) (*Receipt, error) {
	return e.execute(ctx, Sell, username, asset, quantity)
}

// Phase reports where the account's pipeline currently is.
func (e *Engine) Phase(username string) Phase {
	return Phase(e.slot(username).phase.Load())
}

func (e *Engine) slot(username string) *slot {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.slots[username]
	if !ok {
		s = &slot{}
		e.slots[username] = s
	}
	return s
}

// ParseAmount parses a user-entered amount and rounds it to Scale digits.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	d = d.Round(Scale)
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %q must be positive", ErrInvalidAmount, s)
	}
	return d, nil
}

func (e *Engine) execute(ctx context.Context, op Kind, username, assetInput, amountInput string) (*Receipt, error) {
	s := e.slot(username)
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.phase.Store(int32(PhaseIdle))
	s.phase.Store(int32(PhaseValidating))

	reject := func(sentinel error, asset market.Asset, available *decimal.Decimal, cause error) *TradeError {
		return &TradeError{Op: op, Account: username, Asset: asset, Amount: amountInput, Available: available, Err: sentinel, Cause: cause}
	}

	asset, err := e.catalog.Parse(assetInput)
	if err != nil {
		return nil, e.fail(ctx, reject(ErrUnknownAsset, market.Asset(assetInput), nil, nil))
	}
	amount, err := ParseAmount(amountInput)
	if err != nil {
		return nil, e.fail(ctx, reject(ErrInvalidAmount, asset, nil, nil))
	}

	var receipt *Receipt
	err = e.store.Atomic(ctx, func(tx Store) error {
		account, err := tx.GetAccount(ctx, username)
		if err != nil {
			if errors.Is(err, ErrAccountNotFound) {
				return reject(ErrAccountNotFound, asset, nil, nil)
			}
			return reject(ErrPersistence, asset, nil, err)
		}
		wallet, err := tx.GetWallet(ctx, username)
		if err != nil {
			return reject(ErrPersistence, asset, nil, err)
		}
		held := wallet.Get(asset)

		switch op {
		case Buy:
			if amount.GreaterThan(account.CashBalance) {
				return reject(ErrInsufficientFunds, asset, &account.CashBalance, nil)
			}
		case Sell:
			if amount.GreaterThan(held) {
				return reject(ErrInsufficientHoldings, asset, &held, nil)
			}
		}

		quote, ok := e.prices.Quote(asset)
		if !ok || !quote.Value.IsPositive() {
			return reject(ErrPriceUnavailable, asset, nil, nil)
		}
		price := quote.Value

		t := Transaction{
			ID:        uuid.NewString(),
			Account:   username,
			Timestamp: e.now().UTC(),
			Asset:     asset,
			Kind:      op,
			UnitPrice: price,
		}
		var balance, holding decimal.Decimal
		switch op {
		case Buy:
			t.CashAmount = amount
			t.Quantity = amount.Div(price).Round(Scale)
			if !t.Quantity.IsPositive() {
				return reject(ErrInvalidAmount, asset, nil, fmt.Errorf("%s buys less than %s units", amount, decimal.New(1, -Scale)))
			}
			balance = account.CashBalance.Sub(amount).Round(Scale)
			holding = held.Add(t.Quantity)
		case Sell:
			t.Quantity = amount
			t.CashAmount = amount.Mul(price).Round(Scale)
			balance = account.CashBalance.Add(t.CashAmount).Round(Scale)
			holding = held.Sub(amount)
		}

		s.phase.Store(int32(PhaseApplying))
		if err := tx.UpdateBalance(ctx, username, balance); err != nil {
			return reject(ErrPersistence, asset, nil, err)
		}
		if err := tx.SetHolding(ctx, username, asset, holding); err != nil {
			return reject(ErrPersistence, asset, nil, err)
		}
		if err := tx.AppendTransaction(ctx, t); err != nil {
			return reject(ErrPersistence, asset, nil, err)
		}
		receipt = &Receipt{Transaction: t, Balance: balance, Holding: holding}
		return nil
	})
	if err != nil {
		var tradeErr *TradeError
		if !errors.As(err, &tradeErr) {
			// begin or commit failed
			tradeErr = reject(ErrPersistence, asset, nil, err)
		}
		return nil, e.fail(ctx, tradeErr)
	}

	e.logger.Info("Trade applied",
		zap.String("account", username),
		zap.String("kind", string(op)),
		zap.String("asset", asset.String()),
		zap.Stringer("price", receipt.Transaction.UnitPrice),
		zap.Stringer("cash", receipt.Transaction.CashAmount),
		zap.Stringer("quantity", receipt.Transaction.Quantity),
		zap.Stringer("balance", receipt.Balance))
	return receipt, nil
}

// fail logs and audits a rejected trade. Audit failures are logged and do not
// replace the trade error.
func (e *Engine) fail(ctx context.Context, err *TradeError) error {
	e.logger.Warn("Trade rejected",
		zap.String("account", err.Account),
		zap.String("kind", string(err.Op)),
		zap.String("asset", err.Asset.String()),
		zap.String("amount", err.Amount),
		zap.Error(err))
	if e.audit != nil {
		if aerr := e.audit.Record(context.WithoutCancel(ctx), err.Account, err.Error()); aerr != nil {
			e.logger.Error("Failed to record audit entry", zap.String("account", err.Account), zap.Error(aerr))
		}
	}
	return err
}
