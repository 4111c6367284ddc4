package journal

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/corvex/exchange-core/internal/types"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&types.Trade{}, &types.Order{}, &types.Market{}))
	return NewService(db), db
}

func matchedTrade(maker, taker uuid.UUID, makerAmt, takerAmt int64) *types.Trade {
	return &types.Trade{
		MakerOrderID:      maker,
		TakerOrderID:      taker,
		MakerFilledAmount: decimal.NewFromInt(makerAmt),
		TakerFilledAmount: decimal.NewFromInt(takerAmt),
		CreatedAt:         time.Now(),
	}
}

func TestRecordRejectsDuplicatePair(t *testing.T) {
	svc, _ := newTestService(t)
	maker, taker := uuid.New(), uuid.New()

	require.NoError(t, svc.Record(matchedTrade(maker, taker, 10, 5)))

	// same pair, either orientation, is a duplicate
	assert.ErrorIs(t, svc.Record(matchedTrade(maker, taker, 10, 5)), ErrDuplicateMatch)
	assert.ErrorIs(t, svc.Record(matchedTrade(taker, maker, 5, 10)), ErrDuplicateMatch)
}

func TestSettlementTransitions(t *testing.T) {
	svc, _ := newTestService(t)

	trade := matchedTrade(uuid.New(), uuid.New(), 10, 5)
	require.NoError(t, svc.Record(trade))

	pending, err := svc.PendingMatched(10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, svc.MarkSettled(trade.ID, "tx-abc"))

	got, err := svc.Get(trade.ID)
	require.NoError(t, err)
	assert.Equal(t, types.SettlementSettled, got.SettlementStatus)
	require.NotNil(t, got.SettlementTx)
	assert.Equal(t, "tx-abc", *got.SettlementTx)
	assert.NotNil(t, got.SettledAt)

	// settled is terminal
	assert.ErrorIs(t, svc.MarkFailed(trade.ID), ErrNotPending)

	pending, err = svc.PendingMatched(10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestMarkFailedIsTerminal(t *testing.T) {
	svc, _ := newTestService(t)

	trade := matchedTrade(uuid.New(), uuid.New(), 10, 5)
	require.NoError(t, svc.Record(trade))
	require.NoError(t, svc.MarkFailed(trade.ID))

	assert.ErrorIs(t, svc.MarkSettled(trade.ID, "tx"), ErrNotPending)
}

func TestTransitionUnknownTrade(t *testing.T) {
	svc, _ := newTestService(t)
	assert.ErrorIs(t, svc.MarkSettled(uuid.New(), "tx"), ErrUnknownTrade)
}

func TestReferencePriceOrientation(t *testing.T) {
	svc, db := newTestService(t)

	assetOne, assetTwo := uuid.New(), uuid.New()
	market := &types.Market{ID: uuid.New(), AssetOne: assetOne, AssetTwo: assetTwo, Status: types.MarketActive}
	require.NoError(t, db.Create(market).Error)

	// maker sells asset two for asset one: 500 asset_two for 10 asset_one
	maker := &types.Order{
		ID: uuid.New(), MarketID: market.ID,
		BidAsset: assetOne, AskAsset: assetTwo,
		CreatedAt: time.Now(),
	}
	taker := &types.Order{
		ID: uuid.New(), MarketID: market.ID,
		BidAsset: assetTwo, AskAsset: assetOne,
		CreatedAt: time.Now(),
	}
	require.NoError(t, db.Create(maker).Error)
	require.NoError(t, db.Create(taker).Error)

	require.NoError(t, svc.Record(matchedTrade(maker.ID, taker.ID, 500, 10)))

	price, ok := svc.ReferencePrice(market.ID)
	require.True(t, ok)
	assert.True(t, price.Equal(decimal.NewFromInt(50)), "want 50, got %s", price)
}

func TestReferencePriceSilentWithoutTrades(t *testing.T) {
	svc, _ := newTestService(t)
	_, ok := svc.ReferencePrice(uuid.New())
	assert.False(t, ok)
}

func TestTradesForMarketWindowExcludesFailed(t *testing.T) {
	svc, db := newTestService(t)

	market := &types.Market{ID: uuid.New(), AssetOne: uuid.New(), AssetTwo: uuid.New()}
	require.NoError(t, db.Create(market).Error)

	base := time.Now().Add(-time.Hour)
	var failedID uuid.UUID
	for i := 0; i < 3; i++ {
		taker := &types.Order{ID: uuid.New(), MarketID: market.ID, CreatedAt: base}
		require.NoError(t, db.Create(taker).Error)

		trade := matchedTrade(uuid.New(), taker.ID, 10, 5)
		trade.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, svc.Record(trade))
		if i == 1 {
			failedID = trade.ID
		}
	}
	require.NoError(t, svc.MarkFailed(failedID))

	trades, err := svc.TradesForMarketWindow(market.ID, base, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, trades, 2)
}
