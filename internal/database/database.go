package database

import (
	"github.com/corvex/exchange-core/internal/ledger"
	"github.com/corvex/exchange-core/internal/orderbook"
	"github.com/corvex/exchange-core/internal/types"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase opens the sqlite store at the given path and migrates the
// schema. Use ":memory:" for throwaway databases in tests.
func NewDatabase(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	err = db.AutoMigrate(
		&types.Asset{},
		&types.Wallet{},
		&types.Market{},
		&types.Order{},
		&types.Trade{},
		&types.Bar{},
		&types.Checkpoint{},
		&ledger.BalanceEntry{},
		&orderbook.IdempotencyRecord{},
	)
	if err != nil {
		return nil, err
	}

	return db, nil
}
