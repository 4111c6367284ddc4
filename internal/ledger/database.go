package ledger

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) GetEntry(walletID, assetID uuid.UUID) (*BalanceEntry, error) {
	var entry BalanceEntry
	err := d.db.Where("wallet_id = ? AND asset_id = ?", walletID, assetID).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownEntry
		}
		return nil, err
	}
	return &entry, nil
}

func (d *Database) CreateEntry(entry *BalanceEntry) error {
	return d.db.Create(entry).Error
}

// moveConditional applies a guarded bucket transfer in a single UPDATE so
// interleaved callers observe either the pre- or post-state. The guard column
// must cover the debited bucket.
func (d *Database) moveConditional(walletID, assetID uuid.UUID, guard string, qty decimal.Decimal, updates map[string]interface{}) (bool, error) {
	updates["updated_at"] = time.Now()
	res := d.db.Model(&BalanceEntry{}).
		Where("wallet_id = ? AND asset_id = ? AND "+guard+" >= ?", walletID, assetID, qty).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Lock moves qty from available to locked.
func (d *Database) Lock(walletID, assetID uuid.UUID, qty decimal.Decimal) (bool, error) {
	return d.moveConditional(walletID, assetID, "available", qty, map[string]interface{}{
		"available": gorm.Expr("available - ?", qty),
		"locked":    gorm.Expr("locked + ?", qty),
	})
}

// Unlock moves qty from locked back to available.
func (d *Database) Unlock(walletID, assetID uuid.UUID, qty decimal.Decimal) (bool, error) {
	return d.moveConditional(walletID, assetID, "locked", qty, map[string]interface{}{
		"locked":    gorm.Expr("locked - ?", qty),
		"available": gorm.Expr("available + ?", qty),
	})
}

// Spend moves qty from locked to spent.
func (d *Database) Spend(walletID, assetID uuid.UUID, qty decimal.Decimal) (bool, error) {
	return d.moveConditional(walletID, assetID, "locked", qty, map[string]interface{}{
		"locked": gorm.Expr("locked - ?", qty),
		"spent":  gorm.Expr("spent + ?", qty),
	})
}

// Unspend moves qty from spent back to locked. Used by settlement
// compensation only.
func (d *Database) Unspend(walletID, assetID uuid.UUID, qty decimal.Decimal) (bool, error) {
	return d.moveConditional(walletID, assetID, "spent", qty, map[string]interface{}{
		"spent":  gorm.Expr("spent - ?", qty),
		"locked": gorm.Expr("locked + ?", qty),
	})
}

// DebitAvailable removes qty from available. Used by settlement compensation
// to take back value credited at match time.
func (d *Database) DebitAvailable(walletID, assetID uuid.UUID, qty decimal.Decimal) (bool, error) {
	return d.moveConditional(walletID, assetID, "available", qty, map[string]interface{}{
		"available": gorm.Expr("available - ?", qty),
	})
}

// CreditAvailable adds qty to available, creating the entry if absent.
func (d *Database) CreditAvailable(walletID, assetID uuid.UUID, qty decimal.Decimal) error {
	res := d.db.Model(&BalanceEntry{}).
		Where("wallet_id = ? AND asset_id = ?", walletID, assetID).
		Updates(map[string]interface{}{
			"available":  gorm.Expr("available + ?", qty),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return d.db.Create(&BalanceEntry{
			WalletID:  walletID,
			AssetID:   assetID,
			Available: qty,
			Locked:    decimal.Zero,
			Spent:     decimal.Zero,
		}).Error
	}
	return nil
}

func (d *Database) Summary() (*Summary, error) {
	var entries []BalanceEntry
	if err := d.db.Find(&entries).Error; err != nil {
		return nil, err
	}

	summary := &Summary{
		TotalAvailable: decimal.Zero,
		TotalLocked:    decimal.Zero,
		TotalSpent:     decimal.Zero,
	}
	for i := range entries {
		summary.TotalAvailable = summary.TotalAvailable.Add(entries[i].Available)
		summary.TotalLocked = summary.TotalLocked.Add(entries[i].Locked)
		summary.TotalSpent = summary.TotalSpent.Add(entries[i].Spent)
		summary.EntryCount++
	}
	return summary, nil
}

func (d *Database) EntriesForWallet(walletID uuid.UUID) ([]BalanceEntry, error) {
	var entries []BalanceEntry
	err := d.db.Where("wallet_id = ?", walletID).Find(&entries).Error
	return entries, err
}
