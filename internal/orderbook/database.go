package orderbook

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
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

func (d *Database) CreateOrder(order *types.Order) error {
	return d.db.Create(order).Error
}

func (d *Database) GetOrder(orderID uuid.UUID) (*types.Order, error) {
	var order types.Order
	err := d.db.Where("id = ?", orderID).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownOrder
		}
		return nil, err
	}
	return &order, nil
}

func (d *Database) OrdersForWallet(walletID uuid.UUID) ([]types.Order, error) {
	var orders []types.Order
	err := d.db.Where("wallet_id = ?", walletID).Order("created_at desc").Find(&orders).Error
	return orders, err
}

func (d *Database) OpenOrdersForMarket(marketID uuid.UUID) ([]types.Order, error) {
	var orders []types.Order
	err := d.db.
		Where("market_id = ? AND status = ?", marketID, types.OrderOpen).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	sortPriceTime(orders, false)
	return orders, nil
}

// sortPriceTime orders by price (highest first when bestFirst), then
// created_at, then id. Prices are compared as decimals in Go because sqlite's
// NUMERIC affinity compares at float64 precision, which misorders prices that
// only differ past the fifteenth significant digit.
func sortPriceTime(orders []types.Order, bestFirst bool) {
	sort.SliceStable(orders, func(i, j int) bool {
		if c := orders[i].Price.Cmp(orders[j].Price); c != 0 {
			if bestFirst {
				return c > 0
			}
			return c < 0
		}
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.Before(orders[j].CreatedAt)
		}
		return strings.Compare(orders[i].ID.String(), orders[j].ID.String()) < 0
	})
}

// UpdateFills increments both fill counters and closes the order once either
// side is exhausted. Residual bid zero means the order got everything it
// wanted; residual ask zero means it has nothing left to surrender.
func (d *Database) UpdateFills(orderID uuid.UUID, deltaBid, deltaAsk decimal.Decimal, now time.Time) error {
	var order types.Order
	if err := d.db.Where("id = ?", orderID).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUnknownOrder
		}
		return err
	}

	order.FilledBid = order.FilledBid.Add(deltaBid)
	order.FilledAsk = order.FilledAsk.Add(deltaAsk)
	if order.FilledBid.GreaterThan(order.BidAmount) || order.FilledAsk.GreaterThan(order.AskAmount) {
		return ErrInvalidOrder
	}
	if order.RemainingBid().IsZero() || order.RemainingAsk().IsZero() {
		order.Status = types.OrderClosed
		order.FilledAt = &now
	}
	return d.db.Save(&order).Error
}

// Cancel transitions an open order to cancelled. Returns false when the
// order was not open, so concurrent fill and cancel cannot both win.
func (d *Database) Cancel(orderID uuid.UUID, now time.Time) (bool, error) {
	res := d.db.Model(&types.Order{}).
		Where("id = ? AND status = ?", orderID, types.OrderOpen).
		Updates(map[string]interface{}{
			"status":       types.OrderCancelled,
			"cancelled_at": now,
		})
	return res.RowsAffected > 0, res.Error
}

// Complementary returns open orders on the opposite side of the book that
// would cross, in price-time priority. A maker's stored price is its ask per
// bid, so it crosses when that price is at least the taker's bid per ask:
// the maker gives at least as much per unit as the taker demands. Best price
// for the taker is therefore the highest stored price. A nil limit skips the
// price filter, which is how market orders scan. Orders from the excluded
// wallet and expired orders never match. The price filter and sort run in Go
// so crossing is decided at full decimal precision.
func (d *Database) Complementary(marketID, bidAsset, askAsset uuid.UUID, priceLimit *decimal.Decimal, excludeWallet uuid.UUID, now time.Time) ([]types.Order, error) {
	var orders []types.Order
	err := d.db.
		Where("market_id = ? AND bid_asset = ? AND ask_asset = ? AND status = ?",
			marketID, bidAsset, askAsset, types.OrderOpen).
		Where("wallet_id <> ?", excludeWallet).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}

	if priceLimit != nil {
		crossing := orders[:0]
		for _, order := range orders {
			if order.Price.GreaterThanOrEqual(*priceLimit) {
				crossing = append(crossing, order)
			}
		}
		orders = crossing
	}
	sortPriceTime(orders, true)
	return orders, nil
}

// BestOppositePrice returns the best resting price on the opposite side,
// used as the effective price of a market order for the band check.
func (d *Database) BestOppositePrice(marketID, bidAsset, askAsset uuid.UUID, now time.Time) (decimal.Decimal, bool, error) {
	orders, err := d.Complementary(marketID, bidAsset, askAsset, nil, uuid.Nil, now)
	if err != nil {
		return decimal.Zero, false, err
	}
	if len(orders) == 0 {
		return decimal.Zero, false, nil
	}
	return orders[0].Price, true, nil
}

// GetIdempotencyRecord retrieves an idempotency record by key. A missing key
// returns an empty record, matching how callers probe before placing.
func (d *Database) GetIdempotencyRecord(key string) (*IdempotencyRecord, error) {
	var record IdempotencyRecord
	if err := d.db.Where("idempotency_key = ?", key).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &record, nil
		}
		return nil, err
	}
	return &record, nil
}

// CreateIdempotencyRecord stores the key-to-order mapping. An expired record
// under the same key is replaced rather than treated as a conflict, so a
// retry after the retention window places cleanly.
func (d *Database) CreateIdempotencyRecord(key string, orderID uuid.UUID) error {
	return d.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "idempotency_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"resource_id", "resource_type", "expires_at", "updated_at"}),
	}).Create(&IdempotencyRecord{
		IdempotencyKey: key,
		ResourceID:     orderID.String(),
		ResourceType:   "placement",
		ExpiresAt:      time.Now().Add(24 * time.Hour),
	}).Error
}

// TradesForTaker lists the trades produced with the order as taker, oldest
// first. Used to rebuild a placement result for an idempotent retry.
func (d *Database) TradesForTaker(orderID uuid.UUID) ([]types.Trade, error) {
	var trades []types.Trade
	err := d.db.
		Where("taker_order_id = ?", orderID).
		Order("created_at asc, id asc").
		Find(&trades).Error
	return trades, err
}
