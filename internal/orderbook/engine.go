package orderbook

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/corvex/exchange-core/internal/journal"
	"github.com/corvex/exchange-core/internal/ledger"
	"github.com/corvex/exchange-core/internal/markets"
	"github.com/corvex/exchange-core/internal/types"
)

// Engine serialises placements per market and drives the admission, walk and
// fill-mode pipeline inside one transaction per placement. Different markets
// proceed in parallel; reads are never blocked.
type Engine struct {
	db         *gorm.DB
	store      *Database
	ledger     *ledger.Service
	journal    *journal.Service
	registry   *markets.Service
	discipline *markets.Discipline

	mu       sync.Mutex
	marketMu map[uuid.UUID]*sync.Mutex
}

func NewEngine(gormDB *gorm.DB, ledgerSvc *ledger.Service, journalSvc *journal.Service, registry *markets.Service, discipline *markets.Discipline) *Engine {
	return &Engine{
		db:         gormDB,
		store:      NewDatabase(gormDB),
		ledger:     ledgerSvc,
		journal:    journalSvc,
		registry:   registry,
		discipline: discipline,
		marketMu:   make(map[uuid.UUID]*sync.Mutex),
	}
}

// marketLock returns the mutex serialising writes for one market.
func (e *Engine) marketLock(marketID uuid.UUID) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	if m, ok := e.marketMu[marketID]; ok {
		return m
	}
	m := &sync.Mutex{}
	e.marketMu[marketID] = m
	return m
}

// Place admits, matches and persists one order. The whole placement is
// atomic: a caller never observes a partially applied walk.
func (e *Engine) Place(req PlaceRequest) (*PlacementResult, error) {
	market, err := e.admit(&req)
	if err != nil {
		return nil, err
	}

	if req.IdempotencyKey != "" {
		record, err := e.store.GetIdempotencyRecord(req.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if record.ResourceID != "" && record.ExpiresAt.After(time.Now()) {
			orderID, err := uuid.Parse(record.ResourceID)
			if err != nil {
				return nil, err
			}
			log.Debug().
				Str("idempotency_key", req.IdempotencyKey).
				Str("order_id", record.ResourceID).
				Msg("returning recorded placement result")
			return e.rebuildResult(orderID)
		}
	}

	if err := e.checkBand(market, &req); err != nil {
		return nil, err
	}

	lock := e.marketLock(market.ID)
	lock.Lock()
	defer lock.Unlock()

	now := time.Now()
	order := &types.Order{
		ID:        uuid.New(),
		WalletID:  req.WalletID,
		MarketID:  market.ID,
		BidAsset:  req.BidAsset,
		AskAsset:  req.AskAsset,
		BidAmount: req.BidAmount,
		AskAmount: req.AskAmount,
		Price:     req.AskAmount.Div(req.BidAmount),
		FilledBid: decimal.Zero,
		FilledAsk: decimal.Zero,
		Mode:      req.Mode,
		OrderType: req.OrderType,
		Status:    types.OrderOpen,
		CreatedAt: now,
		ExpiresAt: req.ExpiresAt,
	}

	takerAsk, err := e.registry.GetAsset(req.AskAsset)
	if err != nil {
		return nil, err
	}
	makerAsk, err := e.registry.GetAsset(req.BidAsset)
	if err != nil {
		return nil, err
	}

	result := &PlacementResult{OrderID: order.ID, BidFilled: decimal.Zero, AskFilled: decimal.Zero}
	err = e.db.Transaction(func(tx *gorm.DB) error {
		return e.runPlacement(tx, order, takerAsk.Decimals, makerAsk.Decimals, req.IdempotencyKey, now, result)
	})
	if errors.Is(err, errFOKUnfilled) {
		return e.recordKilledPlacement(order, req.IdempotencyKey, now)
	}
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("order_id", order.ID.String()).
		Str("market_id", market.ID.String()).
		Str("status", string(result.Status)).
		Str("bid_filled", result.BidFilled.String()).
		Int("trades", len(result.TradeIDs)).
		Msg("placement complete")
	return result, nil
}

// admit validates the order shape against the market and wallet registry.
func (e *Engine) admit(req *PlaceRequest) (*types.Market, error) {
	if req.BidAsset == req.AskAsset {
		return nil, fmt.Errorf("%w: bid and ask asset must differ", ErrInvalidOrder)
	}
	if !req.BidAmount.IsPositive() || !req.AskAmount.IsPositive() {
		return nil, fmt.Errorf("%w: amounts must be positive", ErrInvalidOrder)
	}
	if req.Mode == "" {
		req.Mode = types.GoodTillCancel
	}
	if req.OrderType == "" {
		req.OrderType = types.OrderTypeLimit
	}

	market, err := e.registry.GetMarket(req.MarketID)
	if err != nil {
		return nil, err
	}
	if market.Status != types.MarketActive || market.MarketType != types.MarketSpot {
		return nil, ErrMarketClosed
	}
	pairMatches := (req.BidAsset == market.AssetOne && req.AskAsset == market.AssetTwo) ||
		(req.BidAsset == market.AssetTwo && req.AskAsset == market.AssetOne)
	if !pairMatches {
		return nil, fmt.Errorf("%w: assets do not belong to market", ErrInvalidOrder)
	}

	wallet, err := e.registry.GetWallet(req.WalletID)
	if err != nil {
		return nil, ErrWalletUnavailable
	}
	if wallet.Status != types.WalletActive {
		return nil, ErrWalletUnavailable
	}
	return market, nil
}

// checkBand runs the price discipline check with the order's price oriented
// to the market convention (asset two per asset one). A market order has no
// stated price, so the best resting opposite price stands in for it.
func (e *Engine) checkBand(market *types.Market, req *PlaceRequest) error {
	var price decimal.Decimal
	if req.OrderType == types.OrderTypeMarket {
		best, ok, err := e.store.BestOppositePrice(market.ID, req.AskAsset, req.BidAsset, time.Now())
		if err != nil {
			return err
		}
		if !ok {
			// empty opposite book: nothing to match against, nothing to check
			return nil
		}
		price = normalizePrice(best, req.BidAsset, market)
	} else {
		price = normalizePrice(req.AskAmount.Div(req.BidAmount), req.AskAsset, market)
	}
	return e.discipline.Check(market, price)
}

// normalizePrice converts a price stated as ask-per-bid from the giver's
// orientation into asset two per asset one.
func normalizePrice(price decimal.Decimal, askAsset uuid.UUID, market *types.Market) decimal.Decimal {
	if askAsset == market.AssetTwo {
		return price
	}
	if price.IsZero() {
		return decimal.Zero
	}
	return decimal.NewFromInt(1).Div(price)
}

// runPlacement is the transactional body of Place: lock, insert, walk,
// fill-mode post-processing, idempotency record.
func (e *Engine) runPlacement(tx *gorm.DB, order *types.Order, takerAskDecimals, makerAskDecimals int32, idempotencyKey string, now time.Time, result *PlacementResult) error {
	txStore := NewDatabase(tx)
	txLedger := e.ledger.WithTx(tx)

	if err := txLedger.Lock(order.WalletID, order.AskAsset, order.AskAmount); err != nil {
		return err
	}
	if err := txStore.CreateOrder(order); err != nil {
		return err
	}

	var priceLimit *decimal.Decimal
	if order.OrderType == types.OrderTypeLimit {
		limit := crossingLimit(order.BidAmount, order.AskAmount)
		priceLimit = &limit
	}
	candidates, err := txStore.Complementary(order.MarketID, order.AskAsset, order.BidAsset, priceLimit, order.WalletID, now)
	if err != nil {
		return err
	}

	remainingBid := order.RemainingBid()
	remainingAsk := order.RemainingAsk()
	for i := range candidates {
		if !remainingBid.IsPositive() || !remainingAsk.IsPositive() {
			break
		}
		step, ok := nextFill(&candidates[i], remainingBid, remainingAsk, takerAskDecimals, makerAskDecimals)
		if !ok {
			continue
		}
		stepErr := tx.Transaction(func(inner *gorm.DB) error {
			return e.applyFill(inner, order, step, now, result)
		})
		if stepErr != nil {
			// this candidate could not fill; the savepoint rolled it back and
			// its quantity stays on offer for the rest of the walk
			log.Warn().
				Str("taker_order_id", order.ID.String()).
				Str("maker_order_id", step.Maker.ID.String()).
				Err(stepErr).
				Msg("skipping maker candidate")
			continue
		}
		remainingBid = remainingBid.Sub(step.MakerDelta)
		remainingAsk = remainingAsk.Sub(step.TakerDelta)
	}

	remainingBid = order.BidAmount.Sub(result.BidFilled)
	if order.Mode == types.FillOrKill && remainingBid.IsPositive() {
		return errFOKUnfilled
	}

	immediate := order.Mode == types.ImmediateOrCancel || order.OrderType == types.OrderTypeMarket
	if immediate && remainingBid.IsPositive() {
		current, err := txStore.GetOrder(order.ID)
		if err != nil {
			return err
		}
		if current.Status == types.OrderOpen {
			if _, err := txStore.Cancel(order.ID, now); err != nil {
				return err
			}
			residualAsk := current.RemainingAsk()
			if residualAsk.IsPositive() {
				if err := txLedger.Unlock(order.WalletID, order.AskAsset, residualAsk); err != nil {
					return err
				}
			}
		}
		result.Status = PlacementCancelled
		if result.BidFilled.IsPositive() {
			result.Status = PlacementPartial
		}
	} else if remainingBid.IsPositive() {
		// GTC limit order rests with its residual ask still locked
		result.Status = PlacementPartial
	} else {
		result.Status = PlacementFilled
	}

	if idempotencyKey != "" {
		if err := txStore.CreateIdempotencyRecord(idempotencyKey, order.ID); err != nil {
			return err
		}
	}
	return nil
}

// applyFill executes one step of the walk: both spends, both credits, the
// trade insert and both fill updates. Runs inside a savepoint so a failing
// candidate leaves no trace.
func (e *Engine) applyFill(tx *gorm.DB, taker *types.Order, step fillStep, now time.Time, result *PlacementResult) error {
	txLedger := e.ledger.WithTx(tx)
	txJournal := e.journal.WithTx(tx)
	txStore := NewDatabase(tx)
	maker := step.Maker

	// each side's spend consumes its locked ask
	if err := txLedger.Spend(maker.WalletID, maker.AskAsset, step.MakerDelta); err != nil {
		return err
	}
	if err := txLedger.Spend(taker.WalletID, taker.AskAsset, step.TakerDelta); err != nil {
		return err
	}
	// each side receives the other's surrendered asset
	if err := txLedger.Credit(maker.WalletID, taker.AskAsset, step.TakerDelta); err != nil {
		return err
	}
	if err := txLedger.Credit(taker.WalletID, taker.BidAsset, step.MakerDelta); err != nil {
		return err
	}

	trade := &types.Trade{
		ID:                uuid.New(),
		MakerOrderID:      maker.ID,
		TakerOrderID:      taker.ID,
		MakerFilledAmount: step.MakerDelta,
		TakerFilledAmount: step.TakerDelta,
		SettlementStatus:  types.SettlementMatched,
		CreatedAt:         now,
	}
	if err := txJournal.Record(trade); err != nil {
		return err
	}

	if err := txStore.UpdateFills(maker.ID, step.TakerDelta, step.MakerDelta, now); err != nil {
		return err
	}
	if err := txStore.UpdateFills(taker.ID, step.MakerDelta, step.TakerDelta, now); err != nil {
		return err
	}

	result.BidFilled = result.BidFilled.Add(step.MakerDelta)
	result.AskFilled = result.AskFilled.Add(step.TakerDelta)
	result.TradeIDs = append(result.TradeIDs, trade.ID)
	return nil
}

// recordKilledPlacement writes the cancelled trace row for a fill-or-kill
// order whose walk was rolled back. The trace is the only state the
// placement leaves behind.
func (e *Engine) recordKilledPlacement(order *types.Order, idempotencyKey string, now time.Time) (*PlacementResult, error) {
	order.Status = types.OrderCancelled
	order.CancelledAt = &now
	order.FilledBid = decimal.Zero
	order.FilledAsk = decimal.Zero

	err := e.db.Transaction(func(tx *gorm.DB) error {
		txStore := NewDatabase(tx)
		if err := txStore.CreateOrder(order); err != nil {
			return err
		}
		if idempotencyKey != "" {
			return txStore.CreateIdempotencyRecord(idempotencyKey, order.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("order_id", order.ID.String()).
		Msg("fill-or-kill placement cancelled, insufficient liquidity")
	return &PlacementResult{
		OrderID:   order.ID,
		Status:    PlacementCancelled,
		BidFilled: decimal.Zero,
		AskFilled: decimal.Zero,
		Reason:    NoLiquidityReason,
	}, nil
}

// Cancel withdraws an open order and returns its residual ask to available.
// Only the owning wallet may cancel.
func (e *Engine) Cancel(orderID, walletID uuid.UUID) error {
	order, err := e.store.GetOrder(orderID)
	if err != nil {
		return err
	}
	if order.WalletID != walletID {
		return ErrNotOwner
	}

	lock := e.marketLock(order.MarketID)
	lock.Lock()
	defer lock.Unlock()

	now := time.Now()
	return e.db.Transaction(func(tx *gorm.DB) error {
		txStore := NewDatabase(tx)
		current, err := txStore.GetOrder(orderID)
		if err != nil {
			return err
		}

		ok, err := txStore.Cancel(orderID, now)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotOpen
		}

		residualAsk := current.RemainingAsk()
		if residualAsk.IsPositive() {
			return e.ledger.WithTx(tx).Unlock(order.WalletID, order.AskAsset, residualAsk)
		}
		return nil
	})
}

// GetOrder retrieves an order by its ID.
func (e *Engine) GetOrder(orderID uuid.UUID) (*types.Order, error) {
	return e.store.GetOrder(orderID)
}

// OrdersForWallet lists a wallet's orders, newest first.
func (e *Engine) OrdersForWallet(walletID uuid.UUID) ([]types.Order, error) {
	return e.store.OrdersForWallet(walletID)
}

// Book returns the market's open orders in price-time priority.
func (e *Engine) Book(marketID uuid.UUID) ([]types.Order, error) {
	return e.store.OpenOrdersForMarket(marketID)
}

// rebuildResult reconstructs the placement outcome from persisted state for
// an idempotent retry.
func (e *Engine) rebuildResult(orderID uuid.UUID) (*PlacementResult, error) {
	order, err := e.store.GetOrder(orderID)
	if err != nil {
		return nil, err
	}
	trades, err := e.store.TradesForTaker(orderID)
	if err != nil {
		return nil, err
	}

	result := &PlacementResult{
		OrderID:   order.ID,
		BidFilled: order.FilledBid,
		AskFilled: order.FilledAsk,
	}
	for i := range trades {
		result.TradeIDs = append(result.TradeIDs, trades[i].ID)
	}

	switch {
	case order.RemainingBid().IsZero():
		result.Status = PlacementFilled
	case order.Status == types.OrderCancelled && order.FilledBid.IsZero():
		result.Status = PlacementCancelled
		if order.Mode == types.FillOrKill {
			result.Reason = NoLiquidityReason
		}
	default:
		result.Status = PlacementPartial
	}
	return result, nil
}
