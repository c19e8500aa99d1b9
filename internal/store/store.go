package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"coincap-trade-sim/internal/config"
	"coincap-trade-sim/internal/ledger"
	"coincap-trade-sim/internal/market"
	"coincap-trade-sim/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrAccountExists = errors.New("account already exists")

// GormStore persists accounts, wallets, transactions and audit entries.
type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

var _ ledger.Store = (*GormStore)(nil)
var _ ledger.AuditLog = (*GormStore)(nil)

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db, now: time.Now}
}

// Atomic runs fn inside a database transaction. Any error returned by fn rolls
// back every write made through the Store passed to it.
func (s *GormStore) Atomic(ctx context.Context, fn func(tx ledger.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx, now: s.now})
	})
}

func (s *GormStore) GetAccount(ctx context.Context, username string) (ledger.Account, error) {
	var m models.Account
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ledger.Account{}, fmt.Errorf("%w: %s", ledger.ErrAccountNotFound, username)
	}
	if err != nil {
		return ledger.Account{}, fmt.Errorf("failed to load account '%s': %w", username, err)
	}
	return ledger.Account{
		Username:        m.Username,
		CashBalance:     m.CashBalance,
		StartingBalance: m.StartingBalance,
		CreatedAt:       m.CreatedAt,
	}, nil
}

func (s *GormStore) UpdateBalance(ctx context.Context, username string, balance decimal.Decimal) error {
	res := s.db.WithContext(ctx).Model(&models.Account{}).
		Where("username = ?", username).
		Update("cash_balance", balance)
	if res.Error != nil {
		return fmt.Errorf("failed to update balance for '%s': %w", username, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ledger.ErrAccountNotFound, username)
	}
	return nil
}

func (s *GormStore) GetWallet(ctx context.Context, username string) (ledger.Wallet, error) {
	var rows []models.Holding
	if err := s.db.WithContext(ctx).Where("username = ?", username).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load wallet for '%s': %w", username, err)
	}
	w := make(ledger.Wallet, len(rows))
	for _, r := range rows {
		w[market.Asset(r.Asset)] = r.Quantity
	}
	return w, nil
}

func (s *GormStore) SetHolding(ctx context.Context, username string, asset market.Asset, quantity decimal.Decimal) error {
	row := models.Holding{Username: username, Asset: asset.String(), Quantity: quantity, UpdatedAt: s.now()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "username"}, {Name: "asset"}},
		DoUpdates: clause.AssignmentColumns([]string{"quantity", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to set %s holding for '%s': %w", asset, username, err)
	}
	return nil
}

func (s *GormStore) AppendTransaction(ctx context.Context, tx ledger.Transaction) error {
	row := models.Transaction{
		Ref:        tx.ID,
		Username:   tx.Account,
		Timestamp:  tx.Timestamp,
		Asset:      tx.Asset.String(),
		Kind:       string(tx.Kind),
		UnitPrice:  tx.UnitPrice,
		CashAmount: tx.CashAmount,
		Quantity:   tx.Quantity,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return nil
}

// Transactions returns the account's transactions in the order they were applied.
func (s *GormStore) Transactions(ctx context.Context, username string) ([]ledger.Transaction, error) {
	var rows []models.Transaction
	if err := s.db.WithContext(ctx).Where("username = ?", username).Order("id asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load transactions for '%s': %w", username, err)
	}
	out := make([]ledger.Transaction, 0, len(rows))
	for _, r := range rows {
		out = append(out, ledger.Transaction{
			ID:         r.Ref,
			Account:    r.Username,
			Timestamp:  r.Timestamp,
			Asset:      market.Asset(r.Asset),
			Kind:       ledger.Kind(r.Kind),
			UnitPrice:  r.UnitPrice,
			CashAmount: r.CashAmount,
			Quantity:   r.Quantity,
		})
	}
	return out, nil
}

// Record appends an audit entry. It also serves as the feed's error sink.
func (s *GormStore) Record(ctx context.Context, account, message string) error {
	entry := models.AuditEntry{Ref: uuid.NewString(), Timestamp: s.now().UTC(), Username: account, Message: message}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return fmt.Errorf("failed to record audit entry: %w", err)
	}
	return nil
}

// AuditEntries returns the audit entries recorded against account, oldest first.
func (s *GormStore) AuditEntries(ctx context.Context, account string) ([]models.AuditEntry, error) {
	var rows []models.AuditEntry
	err := s.db.WithContext(ctx).Where("username = ?", account).Order("id asc").Find(&rows).Error
	return rows, err
}

// CreateAccount opens an account with cash equal to its starting balance.
func (s *GormStore) CreateAccount(ctx context.Context, username string, starting decimal.Decimal) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Account{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("%w: %s", ErrAccountExists, username)
	}
	acct := models.Account{Username: username, CashBalance: starting, StartingBalance: starting}
	if err := s.db.WithContext(ctx).Create(&acct).Error; err != nil {
		return fmt.Errorf("failed to create account '%s': %w", username, err)
	}
	return nil
}

// SeedAccounts creates configured accounts that do not exist yet. Existing
// accounts keep their balances.
func (s *GormStore) SeedAccounts(ctx context.Context, accounts []config.Account, logger *zap.Logger) error {
	for _, a := range accounts {
		starting, err := ledger.ParseAmount(a.StartingBalance)
		if err != nil {
			return fmt.Errorf("account '%s': starting balance: %w", a.Username, err)
		}
		err = s.CreateAccount(ctx, a.Username, starting)
		if errors.Is(err, ErrAccountExists) {
			continue
		}
		if err != nil {
			return err
		}
		logger.Info("Seeded account", zap.String("username", a.Username), zap.String("balance", starting.String()))
	}
	return nil
}
