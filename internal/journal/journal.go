package journal

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/corvex/exchange-core/internal/types"
)

// Service is the append-mostly record of executed trades. Trades enter as
// matched and leave as settled or failed; nothing is ever deleted.
type Service struct {
	db *Database
}

func NewService(gormDB *gorm.DB) *Service {
	return &Service{db: NewDatabase(gormDB)}
}

// WithTx returns a service bound to the given transaction so trade inserts
// can join the matching walk's atomic unit.
func (s *Service) WithTx(tx *gorm.DB) *Service {
	return &Service{db: NewDatabase(tx)}
}

// Record persists a trade after checking the maker/taker pair has not been
// matched before. The duplicate check and the insert share the service's
// transaction when called through WithTx.
func (s *Service) Record(trade *types.Trade) error {
	exists, err := s.db.PairExists(trade.MakerOrderID, trade.TakerOrderID)
	if err != nil {
		return err
	}
	if exists {
		return ErrDuplicateMatch
	}

	if trade.ID == uuid.Nil {
		trade.ID = uuid.New()
	}
	trade.PairKey = types.OrderedPairKey(trade.MakerOrderID, trade.TakerOrderID)
	if trade.SettlementStatus == "" {
		trade.SettlementStatus = types.SettlementMatched
	}
	return s.db.CreateTrade(trade)
}

// Get retrieves a trade by its ID.
func (s *Service) Get(tradeID uuid.UUID) (*types.Trade, error) {
	return s.db.GetTrade(tradeID)
}

// PendingMatched returns up to limit trades awaiting settlement, oldest
// first.
func (s *Service) PendingMatched(limit int) ([]types.Trade, error) {
	return s.db.PendingMatched(limit)
}

// MarkSettled records a successful settlement with its transaction
// reference.
func (s *Service) MarkSettled(tradeID uuid.UUID, txRef string) error {
	ok, err := s.db.MarkSettled(tradeID, txRef, time.Now())
	if err != nil {
		return err
	}
	if !ok {
		return s.classifyTransitionFailure(tradeID)
	}
	return nil
}

// MarkFailed records a settlement failure. Balance compensation is the
// settlement processor's job, not the journal's.
func (s *Service) MarkFailed(tradeID uuid.UUID) error {
	ok, err := s.db.MarkFailed(tradeID)
	if err != nil {
		return err
	}
	if !ok {
		return s.classifyTransitionFailure(tradeID)
	}
	return nil
}

// classifyTransitionFailure distinguishes a missing trade from an already
// transitioned one after a conditional update touched no rows.
func (s *Service) classifyTransitionFailure(tradeID uuid.UUID) error {
	if _, err := s.db.GetTrade(tradeID); err != nil {
		return err
	}
	return ErrNotPending
}

// TradesForMarketWindow returns the market's trades in [start, end).
func (s *Service) TradesForMarketWindow(marketID uuid.UUID, start, end time.Time) ([]types.Trade, error) {
	return s.db.TradesForMarketWindow(marketID, start, end)
}

// EarliestTradeTime returns when the market first traded.
func (s *Service) EarliestTradeTime(marketID uuid.UUID) (time.Time, bool, error) {
	return s.db.EarliestTradeTime(marketID)
}

// Order fetches an order referenced by a trade.
func (s *Service) Order(orderID uuid.UUID) (*types.Order, error) {
	return s.db.GetOrder(orderID)
}

// ReferencePrice returns the market's last traded price expressed as asset
// two surrendered per unit of asset one. The boolean is false when the
// market has never traded, so the journal can serve as a fallback price
// source for the band check.
func (s *Service) ReferencePrice(marketID uuid.UUID) (decimal.Decimal, bool) {
	trade, err := s.db.LatestTradeForMarket(marketID)
	if err != nil || trade == nil {
		return decimal.Zero, false
	}

	var market types.Market
	if err := s.db.db.Where("id = ?", marketID).First(&market).Error; err != nil {
		return decimal.Zero, false
	}
	maker, err := s.db.GetOrder(trade.MakerOrderID)
	if err != nil {
		return decimal.Zero, false
	}

	price, ok := normalizedTradePrice(trade, maker, &market)
	if !ok {
		log.Warn().
			Str("trade_id", trade.ID.String()).
			Msg("cannot derive price from zero-amount trade")
	}
	return price, ok
}

// normalizedTradePrice orients a trade's two filled amounts into the
// market's canonical price: asset two per asset one.
func normalizedTradePrice(trade *types.Trade, maker *types.Order, market *types.Market) (decimal.Decimal, bool) {
	if trade.MakerFilledAmount.IsZero() || trade.TakerFilledAmount.IsZero() {
		return decimal.Zero, false
	}
	// MakerFilledAmount is denominated in the maker's ask asset.
	if maker.AskAsset == market.AssetTwo {
		return trade.MakerFilledAmount.Div(trade.TakerFilledAmount), true
	}
	return trade.TakerFilledAmount.Div(trade.MakerFilledAmount), true
}
