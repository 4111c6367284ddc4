package settlement

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/corvex/exchange-core/internal/journal"
	"github.com/corvex/exchange-core/internal/ledger"
	"github.com/corvex/exchange-core/internal/types"
)

// Processor drains matched trades through the bridge. Settled trades get
// their transaction reference recorded; failed trades are compensated by
// unwinding both sides' ledger movements. Order residuals are not re-opened
// on failure, the originator must re-place.
type Processor struct {
	db           *gorm.DB
	journal      *journal.Service
	ledger       *ledger.Service
	bridge       Bridge
	processDelay time.Duration
	batchSize    int
}

func NewProcessor(gormDB *gorm.DB, journalSvc *journal.Service, ledgerSvc *ledger.Service, bridge Bridge) *Processor {
	return &Processor{
		db:           gormDB,
		journal:      journalSvc,
		ledger:       ledgerSvc,
		bridge:       bridge,
		processDelay: 5 * time.Second,
		batchSize:    100,
	}
}

// WithInterval overrides the polling delay.
func (p *Processor) WithInterval(d time.Duration) *Processor {
	p.processDelay = d
	return p
}

// Start begins the settlement processing loop
func (p *Processor) Start(ctx context.Context) {
	logger := log.With().Str("component", "settlement_processor").Logger()
	logger.Info().Msg("starting settlement processor")

	ticker := time.NewTicker(p.processDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down settlement processor")
			return
		case <-ticker.C:
			if err := p.ProcessPending(ctx); err != nil {
				logger.Error().Err(err).Msg("failed to process pending trades")
			}
		}
	}
}

// ProcessPending submits one batch of matched trades to the bridge.
func (p *Processor) ProcessPending(ctx context.Context) error {
	logger := log.With().Str("component", "settlement_processor").Logger()

	trades, err := p.journal.PendingMatched(p.batchSize)
	if err != nil {
		return err
	}
	if len(trades) == 0 {
		return nil
	}
	logger.Info().Int("pending_count", len(trades)).Msg("processing matched trades")

	for i := range trades {
		trade := &trades[i]
		result, err := p.bridge.Submit(ctx, trade)
		if err != nil {
			// bridge unreachable: leave the trade matched for the next tick
			logger.Error().
				Err(err).
				Str("trade_id", trade.ID.String()).
				Msg("bridge submission failed")
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}

		if result.Settled {
			if err := p.journal.MarkSettled(trade.ID, result.TxRef); err != nil {
				logger.Error().Err(err).Str("trade_id", trade.ID.String()).Msg("failed to record settlement")
			}
			continue
		}

		logger.Warn().
			Str("trade_id", trade.ID.String()).
			Str("reason", result.Reason).
			Msg("trade rejected by bridge, compensating")
		if err := p.compensate(trade); err != nil {
			logger.Error().Err(err).Str("trade_id", trade.ID.String()).Msg("compensation failed")
		}
	}
	return nil
}

// compensate unwinds a failed trade: each side's spend returns through
// locked to available, and the value credited to the opposite side at match
// time is taken back. Runs in one transaction with the failed transition so
// the books never show a half-unwound trade.
func (p *Processor) compensate(trade *types.Trade) error {
	maker, err := p.journal.Order(trade.MakerOrderID)
	if err != nil {
		return err
	}
	taker, err := p.journal.Order(trade.TakerOrderID)
	if err != nil {
		return err
	}

	return p.db.Transaction(func(tx *gorm.DB) error {
		txLedger := p.ledger.WithTx(tx)
		txJournal := p.journal.WithTx(tx)

		// maker surrendered MakerFilledAmount and was credited TakerFilledAmount
		if err := unwindSide(txLedger, maker.WalletID, maker.AskAsset, maker.BidAsset,
			trade.MakerFilledAmount, trade.TakerFilledAmount); err != nil {
			return err
		}
		if err := unwindSide(txLedger, taker.WalletID, taker.AskAsset, taker.BidAsset,
			trade.TakerFilledAmount, trade.MakerFilledAmount); err != nil {
			return err
		}
		return txJournal.MarkFailed(trade.ID)
	})
}

// unwindSide reverses one side of a trade: spent back to locked, locked back
// to available, and the credited counter-asset debited.
func unwindSide(l *ledger.Service, wallet, askAsset, bidAsset uuid.UUID, spent, credited decimal.Decimal) error {
	if spent.IsPositive() {
		if err := l.Unspend(wallet, askAsset, spent); err != nil {
			return err
		}
		if err := l.Unlock(wallet, askAsset, spent); err != nil {
			return err
		}
	}
	if credited.IsPositive() {
		if err := l.Debit(wallet, bidAsset, credited); err != nil {
			return err
		}
	}
	return nil
}
