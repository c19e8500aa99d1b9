package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"coincap-trade-sim/internal/config"
	"coincap-trade-sim/internal/database"
	"coincap-trade-sim/internal/ledger"
	"coincap-trade-sim/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *GormStore {
	t.Helper()
	db, err := database.NewDatabase(&config.Database{Driver: config.DriverSQLite, DSN: "file::memory:", LogLevel: "silent"})
	require.NoError(t, err)
	return NewGormStore(db)
}

func TestGormStore_AccountLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.GetAccount(ctx, "alice")
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)

	require.NoError(t, s.CreateAccount(ctx, "alice", decimal.NewFromInt(1000)))
	assert.ErrorIs(t, s.CreateAccount(ctx, "alice", decimal.NewFromInt(5)), ErrAccountExists)

	acct, err := s.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(1000).Equal(acct.CashBalance))
	assert.True(t, decimal.NewFromInt(1000).Equal(acct.StartingBalance))

	require.NoError(t, s.UpdateBalance(ctx, "alice", decimal.RequireFromString("499.12345")))
	acct, err = s.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "499.12345", acct.CashBalance.String())
	assert.True(t, decimal.NewFromInt(1000).Equal(acct.StartingBalance))

	assert.ErrorIs(t, s.UpdateBalance(ctx, "bob", decimal.NewFromInt(1)), ledger.ErrAccountNotFound)
}

func TestGormStore_SetHoldingUpserts(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	w, err := s.GetWallet(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, w.Get("bitcoin").IsZero())

	require.NoError(t, s.SetHolding(ctx, "alice", "bitcoin", decimal.RequireFromString("0.01")))
	require.NoError(t, s.SetHolding(ctx, "alice", "bitcoin", decimal.RequireFromString("0.03")))
	require.NoError(t, s.SetHolding(ctx, "alice", "solana", decimal.NewFromInt(2)))
	require.NoError(t, s.SetHolding(ctx, "bob", "bitcoin", decimal.NewFromInt(7)))

	w, err = s.GetWallet(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, w, 2)
	assert.Equal(t, "0.03", w.Get("bitcoin").String())
	assert.Equal(t, "2", w.Get("solana").String())
}

func TestGormStore_TransactionsInAppendOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	for i, kind := range []ledger.Kind{ledger.Buy, ledger.Sell, ledger.Buy} {
		require.NoError(t, s.AppendTransaction(ctx, ledger.Transaction{
			ID:         "tx-" + string(rune('a'+i)),
			Account:    "alice",
			Timestamp:  at, // same timestamp; order must come from append order
			Asset:      "bitcoin",
			Kind:       kind,
			UnitPrice:  decimal.NewFromInt(50000),
			CashAmount: decimal.NewFromInt(500),
			Quantity:   decimal.RequireFromString("0.01"),
		}))
	}

	txs, err := s.Transactions(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, txs, 3)
	assert.Equal(t, []string{"tx-a", "tx-b", "tx-c"}, []string{txs[0].ID, txs[1].ID, txs[2].ID})
	assert.Equal(t, ledger.Sell, txs[1].Kind)
	assert.Equal(t, "0.01", txs[0].Quantity.String())

	other, err := s.Transactions(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestGormStore_AtomicRollsBack(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.CreateAccount(ctx, "alice", decimal.NewFromInt(1000)))

	boom := errors.New("boom")
	err := s.Atomic(ctx, func(tx ledger.Store) error {
		require.NoError(t, tx.UpdateBalance(ctx, "alice", decimal.NewFromInt(1)))
		require.NoError(t, tx.SetHolding(ctx, "alice", "bitcoin", decimal.NewFromInt(1)))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	acct, err := s.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(1000).Equal(acct.CashBalance))
	w, err := s.GetWallet(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, w)
}

func TestGormStore_AtomicCommits(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.CreateAccount(ctx, "alice", decimal.NewFromInt(1000)))

	err := s.Atomic(ctx, func(tx ledger.Store) error {
		if err := tx.UpdateBalance(ctx, "alice", decimal.NewFromInt(500)); err != nil {
			return err
		}
		return tx.SetHolding(ctx, "alice", "bitcoin", decimal.RequireFromString("0.01"))
	})
	require.NoError(t, err)

	acct, err := s.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(500).Equal(acct.CashBalance))
}

func TestGormStore_AuditEntries(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Record(ctx, "alice", "buy 500 bitcoin for alice: insufficient funds"))
	require.NoError(t, s.Record(ctx, "unknown_user", "Error fetching price: timeout"))
	require.NoError(t, s.Record(ctx, "alice", "second"))

	entries, err := s.AuditEntries(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Contains(t, entries[0].Message, "insufficient funds")
	assert.Equal(t, "second", entries[1].Message)
	assert.False(t, entries[0].Timestamp.IsZero())
}

func TestGormStore_SeedAccounts(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	accounts := []config.Account{
		{Username: "alice", StartingBalance: "1000"},
		{Username: "bob", StartingBalance: "250.5"},
	}

	require.NoError(t, s.SeedAccounts(ctx, accounts, zap.NewNop()))
	require.NoError(t, s.UpdateBalance(ctx, "alice", decimal.NewFromInt(10)))

	// seeding again must not reset balances
	require.NoError(t, s.SeedAccounts(ctx, accounts, zap.NewNop()))

	alice, err := s.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(10).Equal(alice.CashBalance))
	bob, err := s.GetAccount(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "250.5", bob.StartingBalance.String())

	var count int64
	require.NoError(t, s.db.Model(&models.Account{}).Count(&count).Error)
	assert.EqualValues(t, 2, count)

	err = s.SeedAccounts(ctx, []config.Account{{Username: "carol", StartingBalance: "lots"}}, zap.NewNop())
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
}

func TestGormStore_DecimalsRoundTripExactly(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	values := []string{"1000.12345", "99999999999.99999", "1234567890123.00001", "0.00001"}
	for i, v := range values {
		user := fmt.Sprintf("user-%d", i)
		want := decimal.RequireFromString(v)

		require.NoError(t, s.CreateAccount(ctx, user, want))
		acct, err := s.GetAccount(ctx, user)
		require.NoError(t, err)
		assert.True(t, want.Equal(acct.CashBalance), "balance %s came back as %s", v, acct.CashBalance)
		assert.True(t, want.Equal(acct.StartingBalance), "starting balance %s came back as %s", v, acct.StartingBalance)

		require.NoError(t, s.UpdateBalance(ctx, user, want.Add(decimal.New(1, -5))))
		acct, err = s.GetAccount(ctx, user)
		require.NoError(t, err)
		assert.True(t, want.Add(decimal.New(1, -5)).Equal(acct.CashBalance), "updated balance came back as %s", acct.CashBalance)

		require.NoError(t, s.SetHolding(ctx, user, "bitcoin", want))
		w, err := s.GetWallet(ctx, user)
		require.NoError(t, err)
		assert.True(t, want.Equal(w.Get("bitcoin")), "holding %s came back as %s", v, w.Get("bitcoin"))
	}

	price := decimal.RequireFromString("98765432109876.54321")
	require.NoError(t, s.AppendTransaction(ctx, ledger.Transaction{
		ID:         "tx-precise",
		Account:    "user-0",
		Timestamp:  time.Now().UTC(),
		Asset:      "bitcoin",
		Kind:       ledger.Sell,
		UnitPrice:  price,
		CashAmount: decimal.RequireFromString("9876543210987.65432"),
		Quantity:   decimal.RequireFromString("0.1"),
	}))
	txs, err := s.Transactions(ctx, "user-0")
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "98765432109876.54321", txs[0].UnitPrice.String())
	assert.Equal(t, "9876543210987.65432", txs[0].CashAmount.String())
}
