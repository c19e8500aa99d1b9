package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Account represents a simulated trader and their cash balance.
// Decimal columns are stored as text so every digit survives a round trip.
type Account struct {
	gorm.Model
	Username        string          `gorm:"uniqueIndex;not null"`
	CashBalance     decimal.Decimal `gorm:"type:varchar(64);not null"`
	StartingBalance decimal.Decimal `gorm:"type:varchar(64);not null"`
}

// Holding is the quantity of one asset in an account's wallet.
type Holding struct {
	ID        uint            `gorm:"primarykey"`
	Username  string          `gorm:"uniqueIndex:idx_holding_user_asset;not null"`
	Asset     string          `gorm:"uniqueIndex:idx_holding_user_asset;not null"`
	Quantity  decimal.Decimal `gorm:"type:varchar(64);not null"`
	UpdatedAt time.Time
}
