package journal

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/corvex/exchange-core/internal/types"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) GetTrade(tradeID uuid.UUID) (*types.Trade, error) {
	var trade types.Trade
	err := d.db.Where("id = ?", tradeID).First(&trade).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownTrade
		}
		return nil, err
	}
	return &trade, nil
}

// PairExists reports whether a trade already links the two orders, in either
// maker/taker orientation.
func (d *Database) PairExists(a, b uuid.UUID) (bool, error) {
	var count int64
	err := d.db.Model(&types.Trade{}).
		Where("pair_key = ?", types.OrderedPairKey(a, b)).
		Count(&count).Error
	return count > 0, err
}

func (d *Database) CreateTrade(trade *types.Trade) error {
	return d.db.Create(trade).Error
}

// PendingMatched returns trades still awaiting settlement, oldest first.
func (d *Database) PendingMatched(limit int) ([]types.Trade, error) {
	var trades []types.Trade
	err := d.db.
		Where("settlement_status = ?", types.SettlementMatched).
		Order("created_at asc").
		Limit(limit).
		Find(&trades).Error
	return trades, err
}

// MarkSettled transitions a matched trade to settled with its external
// transaction reference. Returns false when the trade was not matched.
func (d *Database) MarkSettled(tradeID uuid.UUID, txRef string, at time.Time) (bool, error) {
	res := d.db.Model(&types.Trade{}).
		Where("id = ? AND settlement_status = ?", tradeID, types.SettlementMatched).
		Updates(map[string]interface{}{
			"settlement_status": types.SettlementSettled,
			"settlement_tx":     txRef,
			"settled_at":        at,
		})
	return res.RowsAffected > 0, res.Error
}

// MarkFailed transitions a matched trade to failed. Returns false when the
// trade was not matched.
func (d *Database) MarkFailed(tradeID uuid.UUID) (bool, error) {
	res := d.db.Model(&types.Trade{}).
		Where("id = ? AND settlement_status = ?", tradeID, types.SettlementMatched).
		Update("settlement_status", types.SettlementFailed)
	return res.RowsAffected > 0, res.Error
}

// TradesForMarketWindow returns settled and matched trades whose taker order
// belongs to the market, executed in [start, end), oldest first. Failed
// trades never contribute to price history.
func (d *Database) TradesForMarketWindow(marketID uuid.UUID, start, end time.Time) ([]types.Trade, error) {
	var trades []types.Trade
	err := d.db.
		Joins("JOIN orders ON orders.id = trades.taker_order_id").
		Where("orders.market_id = ?", marketID).
		Where("trades.settlement_status <> ?", types.SettlementFailed).
		Where("trades.created_at >= ? AND trades.created_at < ?", start, end).
		Order("trades.created_at asc, trades.id asc").
		Find(&trades).Error
	return trades, err
}

// LatestTradeForMarket returns the most recent non-failed trade on the
// market, or nil when the market has never traded.
func (d *Database) LatestTradeForMarket(marketID uuid.UUID) (*types.Trade, error) {
	var trade types.Trade
	err := d.db.
		Joins("JOIN orders ON orders.id = trades.taker_order_id").
		Where("orders.market_id = ?", marketID).
		Where("trades.settlement_status <> ?", types.SettlementFailed).
		Order("trades.created_at desc, trades.id desc").
		First(&trade).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &trade, nil
}

// EarliestTradeTime returns the creation time of the market's first trade.
// The boolean is false when the market has never traded.
func (d *Database) EarliestTradeTime(marketID uuid.UUID) (time.Time, bool, error) {
	var trade types.Trade
	err := d.db.
		Joins("JOIN orders ON orders.id = trades.taker_order_id").
		Where("orders.market_id = ?", marketID).
		Order("trades.created_at asc, trades.id asc").
		First(&trade).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	return trade.CreatedAt, true, nil
}

func (d *Database) GetOrder(orderID uuid.UUID) (*types.Order, error) {
	var order types.Order
	if err := d.db.Where("id = ?", orderID).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}
