package database

import (
	"testing"

	"coincap-trade-sim/internal/config"
	"coincap-trade-sim/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gormLogger "gorm.io/gorm/logger"
)

func TestNewDatabase_SQLiteMigratesSchema(t *testing.T) {
	db, err := NewDatabase(&config.Database{Driver: config.DriverSQLite, DSN: "file::memory:", LogLevel: "silent"})
	require.NoError(t, err)

	m := db.Migrator()
	assert.True(t, m.HasTable(&models.Account{}))
	assert.True(t, m.HasTable(&models.Holding{}))
	assert.True(t, m.HasTable(&models.Transaction{}))
	assert.True(t, m.HasTable(&models.AuditEntry{}))
}

func TestAutoMigrate_KeepsExistingRows(t *testing.T) {
	db, err := NewDatabase(&config.Database{Driver: config.DriverSQLite, DSN: "file::memory:", LogLevel: "silent"})
	require.NoError(t, err)

	acct := models.Account{Username: "alice", CashBalance: decimal.NewFromInt(1000), StartingBalance: decimal.NewFromInt(1000)}
	require.NoError(t, db.Create(&acct).Error)

	require.NoError(t, AutoMigrate(db))

	var got models.Account
	require.NoError(t, db.Where("username = ?", "alice").First(&got).Error)
	assert.True(t, decimal.NewFromInt(1000).Equal(got.CashBalance))
}

func TestNewDatabase_UnsupportedDriver(t *testing.T) {
	_, err := NewDatabase(&config.Database{Driver: "mysql", DSN: "x"})
	assert.ErrorContains(t, err, "unsupported database driver")
}

func TestLogLevel(t *testing.T) {
	assert.Equal(t, gormLogger.Silent, logLevel("silent"))
	assert.Equal(t, gormLogger.Warn, logLevel("WARN"))
	assert.Equal(t, gormLogger.Info, logLevel("info"))
	assert.Equal(t, gormLogger.Error, logLevel(""))
}
