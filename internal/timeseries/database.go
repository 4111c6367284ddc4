package timeseries

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/corvex/exchange-core/internal/types"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// CheckpointKey builds the key tracking aggregation progress for one
// (market, asset, interval).
func CheckpointKey(marketID, assetID uuid.UUID, interval types.Interval) string {
	return fmt.Sprintf("aggregator:%s:%s:%s:last_processed", marketID, assetID, interval)
}

// AcquireCheckpoint loads or creates the checkpoint row and claims it for
// owner. A row claimed by a different owner fails with
// ErrCheckpointContention so two aggregator runs never interleave on a key.
func (d *Database) AcquireCheckpoint(key, owner string) (*types.Checkpoint, error) {
	var cp types.Checkpoint
	err := d.db.Where("key = ?", key).First(&cp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		cp = types.Checkpoint{Key: key, Owner: owner, UpdatedAt: time.Now()}
		if err := d.db.Create(&cp).Error; err != nil {
			return nil, err
		}
		return &cp, nil
	}
	if err != nil {
		return nil, err
	}

	if cp.Owner != "" && cp.Owner != owner {
		return nil, ErrCheckpointContention
	}

	res := d.db.Model(&types.Checkpoint{}).
		Where("key = ? AND (owner = ? OR owner = ?)", key, "", owner).
		Updates(map[string]interface{}{"owner": owner, "updated_at": time.Now()})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrCheckpointContention
	}
	cp.Owner = owner
	return &cp, nil
}

// ReleaseCheckpoint drops the owner claim.
func (d *Database) ReleaseCheckpoint(key, owner string) error {
	return d.db.Model(&types.Checkpoint{}).
		Where("key = ? AND owner = ?", key, owner).
		Updates(map[string]interface{}{"owner": "", "updated_at": time.Now()}).Error
}

// AdvanceCheckpoint records the end of the last processed window.
func (d *Database) AdvanceCheckpoint(key string, end time.Time) error {
	return d.db.Model(&types.Checkpoint{}).
		Where("key = ?", key).
		Updates(map[string]interface{}{"last_processed_end": end, "updated_at": time.Now()}).Error
}

// ClearCheckpoint resets progress so a backfill restarts from the first
// trade.
func (d *Database) ClearCheckpoint(key string) error {
	return d.db.Model(&types.Checkpoint{}).
		Where("key = ?", key).
		Updates(map[string]interface{}{"last_processed_end": time.Time{}, "updated_at": time.Now()}).Error
}

func (d *Database) GetCheckpoint(key string) (*types.Checkpoint, error) {
	var cp types.Checkpoint
	err := d.db.Where("key = ?", key).First(&cp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cp, nil
}

// UpsertBar writes a bar idempotently on its unique window key, so a re-run
// over the same window rewrites rather than duplicates.
func (d *Database) UpsertBar(bar *types.Bar) error {
	return d.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "market_id"}, {Name: "asset_id"}, {Name: "interval"},
			{Name: "start_time"}, {Name: "data_provider"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"end_time", "open", "high", "low", "close", "volume",
		}),
	}).Create(bar).Error
}

// Bars returns bars for the key ordered by window start.
func (d *Database) Bars(marketID, assetID uuid.UUID, interval types.Interval) ([]types.Bar, error) {
	var bars []types.Bar
	err := d.db.
		Where("market_id = ? AND asset_id = ? AND interval = ?", marketID, assetID, interval).
		Order("start_time asc").
		Find(&bars).Error
	return bars, err
}

// BarCount counts bars for the key.
func (d *Database) BarCount(marketID, assetID uuid.UUID, interval types.Interval) (int64, error) {
	var count int64
	err := d.db.Model(&types.Bar{}).
		Where("market_id = ? AND asset_id = ? AND interval = ?", marketID, assetID, interval).
		Count(&count).Error
	return count, err
}
