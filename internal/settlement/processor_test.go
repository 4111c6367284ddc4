package settlement

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/corvex/exchange-core/internal/journal"
	"github.com/corvex/exchange-core/internal/ledger"
	"github.com/corvex/exchange-core/internal/markets"
	"github.com/corvex/exchange-core/internal/orderbook"
	"github.com/corvex/exchange-core/internal/types"
)

// scriptedBridge settles or rejects according to a fixed script.
type scriptedBridge struct {
	verdicts map[uuid.UUID]bool
}

func (b *scriptedBridge) Submit(_ context.Context, trade *types.Trade) (*Result, error) {
	if b.verdicts[trade.ID] {
		return &Result{Settled: true, TxRef: "0xscripted"}, nil
	}
	return &Result{Settled: false, Reason: "scripted rejection"}, nil
}

type fixture struct {
	db        *gorm.DB
	ledger    *ledger.Service
	journal   *journal.Service
	registry  *markets.Service
	engine    *orderbook.Engine
	base      *types.Asset
	quote     *types.Asset
	market    *types.Market
	seller    *types.Wallet
	buyer     *types.Wallet
	tradeID   uuid.UUID
}

// newFixture produces one executed trade: seller gave 10 base for 20 quote.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&types.Asset{}, &types.Wallet{}, &types.Market{},
		&types.Order{}, &types.Trade{},
		&ledger.BalanceEntry{}, &orderbook.IdempotencyRecord{},
	))

	f := &fixture{
		db:       db,
		ledger:   ledger.NewService(db),
		journal:  journal.NewService(db),
		registry: markets.NewService(db),
	}
	f.base, err = f.registry.CreateAsset("TOKA", "Token A", 8, types.AssetTypeNative)
	require.NoError(t, err)
	f.quote, err = f.registry.CreateAsset("TOKB", "Token B", 8, types.AssetTypeNative)
	require.NoError(t, err)
	f.market, err = f.registry.CreateMarket("TOKA/TOKB", f.base.ID, f.quote.ID, types.MarketUnregulated, types.MarketSpot)
	require.NoError(t, err)

	f.engine = orderbook.NewEngine(db, f.ledger, f.journal, f.registry,
		markets.NewDiscipline(decimal.NewFromFloat(0.10), nil))

	f.seller, err = f.registry.CreateWallet(uuid.New(), "seller")
	require.NoError(t, err)
	f.buyer, err = f.registry.CreateWallet(uuid.New(), "buyer")
	require.NoError(t, err)
	require.NoError(t, f.ledger.SetBudget(f.seller.ID, f.base.ID, decimal.NewFromInt(10)))
	require.NoError(t, f.ledger.SetBudget(f.buyer.ID, f.quote.ID, decimal.NewFromInt(20)))

	_, err = f.engine.Place(orderbook.PlaceRequest{
		WalletID: f.seller.ID, MarketID: f.market.ID,
		BidAsset: f.quote.ID, AskAsset: f.base.ID,
		BidAmount: decimal.NewFromInt(20), AskAmount: decimal.NewFromInt(10),
		Mode: types.GoodTillCancel, OrderType: types.OrderTypeLimit,
	})
	require.NoError(t, err)

	res, err := f.engine.Place(orderbook.PlaceRequest{
		WalletID: f.buyer.ID, MarketID: f.market.ID,
		BidAsset: f.base.ID, AskAsset: f.quote.ID,
		BidAmount: decimal.NewFromInt(10), AskAmount: decimal.NewFromInt(20),
		Mode: types.GoodTillCancel, OrderType: types.OrderTypeLimit,
	})
	require.NoError(t, err)
	require.Len(t, res.TradeIDs, 1)
	f.tradeID = res.TradeIDs[0]
	return f
}

func TestProcessorSettlesTrade(t *testing.T) {
	f := newFixture(t)
	bridge := &scriptedBridge{verdicts: map[uuid.UUID]bool{f.tradeID: true}}
	p := NewProcessor(f.db, f.journal, f.ledger, bridge)

	require.NoError(t, p.ProcessPending(context.Background()))

	trade, err := f.journal.Get(f.tradeID)
	require.NoError(t, err)
	assert.Equal(t, types.SettlementSettled, trade.SettlementStatus)
	require.NotNil(t, trade.SettlementTx)
	assert.Equal(t, "0xscripted", *trade.SettlementTx)
	assert.NotNil(t, trade.SettledAt)

	// settled value stays where the match put it
	sellerBase, err := f.ledger.Entry(f.seller.ID, f.base.ID)
	require.NoError(t, err)
	assert.True(t, sellerBase.Spent.Equal(decimal.NewFromInt(10)))
}

func TestProcessorCompensatesFailedTrade(t *testing.T) {
	f := newFixture(t)
	bridge := &scriptedBridge{verdicts: map[uuid.UUID]bool{}}
	p := NewProcessor(f.db, f.journal, f.ledger, bridge)

	require.NoError(t, p.ProcessPending(context.Background()))

	trade, err := f.journal.Get(f.tradeID)
	require.NoError(t, err)
	assert.Equal(t, types.SettlementFailed, trade.SettlementStatus)

	// both sides return to their pre-trade balances
	sellerBase, err := f.ledger.Entry(f.seller.ID, f.base.ID)
	require.NoError(t, err)
	assert.True(t, sellerBase.Available.Equal(decimal.NewFromInt(10)), "got %s", sellerBase.Available)
	assert.True(t, sellerBase.Spent.IsZero())

	sellerQuote, err := f.ledger.Available(f.seller.ID, f.quote.ID)
	require.NoError(t, err)
	assert.True(t, sellerQuote.IsZero())

	buyerQuote, err := f.ledger.Entry(f.buyer.ID, f.quote.ID)
	require.NoError(t, err)
	assert.True(t, buyerQuote.Available.Equal(decimal.NewFromInt(20)))
	assert.True(t, buyerQuote.Spent.IsZero())

	buyerBase, err := f.ledger.Available(f.buyer.ID, f.base.ID)
	require.NoError(t, err)
	assert.True(t, buyerBase.IsZero())

	// order residuals are not re-opened: both orders stay closed
	orders, err := f.engine.OrdersForWallet(f.seller.ID)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, types.OrderClosed, orders[0].Status)
}

func TestProcessorLeavesTradeOnBridgeError(t *testing.T) {
	f := newFixture(t)
	p := NewProcessor(f.db, f.journal, f.ledger, errorBridge{})

	require.NoError(t, p.ProcessPending(context.Background()))

	trade, err := f.journal.Get(f.tradeID)
	require.NoError(t, err)
	assert.Equal(t, types.SettlementMatched, trade.SettlementStatus)
}

type errorBridge struct{}

func (errorBridge) Submit(context.Context, *types.Trade) (*Result, error) {
	return nil, context.DeadlineExceeded
}

func TestSimulatedBridgeDeterministicSeed(t *testing.T) {
	a := NewSimulatedBridge(0.5, 42)
	b := NewSimulatedBridge(0.5, 42)

	trade := &types.Trade{ID: uuid.New()}
	for i := 0; i < 20; i++ {
		ra, err := a.Submit(context.Background(), trade)
		require.NoError(t, err)
		rb, err := b.Submit(context.Background(), trade)
		require.NoError(t, err)
		assert.Equal(t, ra.Settled, rb.Settled)
	}
}

func TestSimulatedBridgeNeverFailsAtZeroRate(t *testing.T) {
	bridge := NewSimulatedBridge(0, 1)
	for i := 0; i < 10; i++ {
		res, err := bridge.Submit(context.Background(), &types.Trade{ID: uuid.New()})
		require.NoError(t, err)
		assert.True(t, res.Settled)
		assert.NotEmpty(t, res.TxRef)
	}
}
