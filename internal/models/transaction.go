package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is an applied buy or sell. Rows are never updated.
type Transaction struct {
	ID         uint            `gorm:"primarykey"`
	Ref        string          `gorm:"uniqueIndex;size:36;not null"` // uuid
	Username   string          `gorm:"index;not null"`
	Timestamp  time.Time       `gorm:"not null"`
	Asset      string          `gorm:"not null"`
	Kind       string          `gorm:"size:4;not null"` // "buy" or "sell"
	UnitPrice  decimal.Decimal `gorm:"type:varchar(64);not null"`
	CashAmount decimal.Decimal `gorm:"type:varchar(64);not null"`
	Quantity   decimal.Decimal `gorm:"type:varchar(64);not null"`
}

// AuditEntry records a rejected trade or a failed price fetch.
type AuditEntry struct {
	ID        uint      `gorm:"primarykey"`
	Ref       string    `gorm:"uniqueIndex;size:36;not null"` // uuid
	Timestamp time.Time `gorm:"index;not null"`
	Username  string    `gorm:"index;not null"`
	Message   string    `gorm:"not null"`
}
