package timeseries

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/corvex/exchange-core/internal/journal"
	"github.com/corvex/exchange-core/internal/types"
)

// OrderBookProvider names the internal trade journal as a bar source.
const OrderBookProvider = "internal:order_book"

// Mode selects how a run chooses its windows.
type Mode string

const (
	// ModeBackfill clears the checkpoint and rebuilds from the first trade
	ModeBackfill Mode = "backfill"
	// ModeResume continues from the checkpoint
	ModeResume Mode = "resume"
	// ModeSingle processes exactly one window
	ModeSingle Mode = "single"
	// ModeRealtime catches up and then follows interval boundaries
	ModeRealtime Mode = "realtime"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeBackfill, ModeResume, ModeSingle, ModeRealtime:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

// RunOptions bounds a run. Start is required for single mode; End caps
// backfill and resume runs (zero means now minus one interval).
type RunOptions struct {
	Start time.Time
	End   time.Time
}

// RunStats reports what one run did.
type RunStats struct {
	WindowsProcessed int
	BarsWritten      int
	WindowsSkipped   int
}

// Aggregator folds the trade journal into OHLCV bars, one (market, asset,
// interval) series at a time. Progress is checkpointed per series so a
// killed run resumes where it stopped, and every window write is
// transactional with its checkpoint advance.
type Aggregator struct {
	db      *gorm.DB
	store   *Database
	journal *journal.Service
	owner   string
}

func NewAggregator(gormDB *gorm.DB, journalSvc *journal.Service) *Aggregator {
	return &Aggregator{
		db:      gormDB,
		store:   NewDatabase(gormDB),
		journal: journalSvc,
		owner:   uuid.New().String(),
	}
}

// Run executes one aggregation pass for the series.
func (a *Aggregator) Run(ctx context.Context, marketID, assetID uuid.UUID, interval types.Interval, mode Mode, opts RunOptions) (*RunStats, error) {
	key := CheckpointKey(marketID, assetID, interval)
	logger := log.With().
		Str("component", "aggregator").
		Str("market_id", marketID.String()).
		Str("asset_id", assetID.String()).
		Str("interval", string(interval)).
		Str("mode", string(mode)).
		Logger()

	stats := &RunStats{}

	// Single mode rebuilds exactly one window and leaves the checkpoint
	// alone, so it can repair an old bar without disturbing a resume.
	if mode == ModeSingle {
		if opts.Start.IsZero() {
			return nil, fmt.Errorf("%w: single mode needs a start time", ErrBadWindow)
		}
		start := AlignStart(opts.Start, interval)
		if err := a.processWindow(marketID, assetID, interval, "", start, stats); err != nil {
			return nil, err
		}
		logger.Info().Int("bars", stats.BarsWritten).Msg("single window complete")
		return stats, nil
	}

	cp, err := a.store.AcquireCheckpoint(key, a.owner)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := a.store.ReleaseCheckpoint(key, a.owner); err != nil {
			logger.Error().Err(err).Msg("failed to release checkpoint")
		}
	}()

	switch mode {
	case ModeBackfill:
		if err := a.store.ClearCheckpoint(key); err != nil {
			return nil, err
		}
		cp.LastProcessedEnd = time.Time{}
		fallthrough

	case ModeResume:
		if err := a.catchUp(ctx, marketID, assetID, interval, key, cp, opts, stats); err != nil {
			return nil, err
		}
		logger.Info().
			Int("windows", stats.WindowsProcessed).
			Int("bars", stats.BarsWritten).
			Msg("catch-up complete")
		return stats, nil

	case ModeRealtime:
		if err := a.catchUp(ctx, marketID, assetID, interval, key, cp, opts, stats); err != nil {
			return nil, err
		}
		return stats, a.follow(ctx, marketID, assetID, interval, key, stats, logger)
	}
	return nil, fmt.Errorf("unknown mode %q", mode)
}

// catchUp processes consecutive complete windows from the checkpoint (or
// the first trade) up to now, optionally capped by opts.End.
func (a *Aggregator) catchUp(ctx context.Context, marketID, assetID uuid.UUID, interval types.Interval, key string, cp *types.Checkpoint, opts RunOptions, stats *RunStats) error {
	width := IntervalDuration(interval)

	start := cp.LastProcessedEnd
	if start.IsZero() {
		earliest, ok, err := a.journal.EarliestTradeTime(marketID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNoTrades
		}
		start = AlignStart(earliest, interval)
	} else {
		start = AlignStart(start, interval)
	}

	endCap := opts.End
	if endCap.IsZero() || endCap.After(time.Now()) {
		endCap = time.Now()
	}

	for {
		end := start.Add(width)
		if end.After(endCap) {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := a.processWindow(marketID, assetID, interval, key, start, stats); err != nil {
			return err
		}
		start = end
	}
}

// follow emits one bar per interval boundary until cancelled. Cancellation
// is honoured at the sleep boundary, never mid-window.
func (a *Aggregator) follow(ctx context.Context, marketID, assetID uuid.UUID, interval types.Interval, key string, stats *RunStats, logger zerolog.Logger) error {
	width := IntervalDuration(interval)
	for {
		boundary := AlignStart(time.Now(), interval).Add(width)
		timer := time.NewTimer(time.Until(boundary))
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Info().Msg("realtime aggregation stopped")
			return nil
		case <-timer.C:
		}

		window := boundary.Add(-width)
		if err := a.processWindow(marketID, assetID, interval, key, window, stats); err != nil {
			logger.Error().Err(err).Time("window_start", window).Msg("window aggregation failed")
		}
	}
}

// processWindow writes the bar for [start, start+interval) and advances the
// checkpoint in the same transaction. Empty windows advance the checkpoint
// without writing a bar. An empty key skips the checkpoint entirely, which
// is how single mode stays isolated from resume progress.
func (a *Aggregator) processWindow(marketID, assetID uuid.UUID, interval types.Interval, key string, start time.Time, stats *RunStats) error {
	end := start.Add(IntervalDuration(interval))

	points, err := a.tradePoints(marketID, assetID, start, end)
	if err != nil {
		return err
	}

	return a.db.Transaction(func(tx *gorm.DB) error {
		txStore := NewDatabase(tx)
		stats.WindowsProcessed++

		ohlc, ok := ComputeOHLC(points)
		if !ok {
			stats.WindowsSkipped++
			if key == "" {
				return nil
			}
			return txStore.AdvanceCheckpoint(key, end)
		}

		bar := &types.Bar{
			ID:               uuid.New(),
			MarketID:         marketID,
			AssetID:          assetID,
			Interval:         interval,
			StartTime:        start,
			EndTime:          end,
			Open:             ohlc.Open,
			High:             ohlc.High,
			Low:              ohlc.Low,
			Close:            ohlc.Close,
			Volume:           ohlc.Volume,
			DataProvider:     OrderBookProvider,
			DataProviderType: types.ProviderOrderBook,
			CreatedAt:        time.Now(),
		}
		if err := txStore.UpsertBar(bar); err != nil {
			return err
		}
		stats.BarsWritten++
		if key == "" {
			return nil
		}
		return txStore.AdvanceCheckpoint(key, end)
	})
}

// tradePoints projects the window's trades onto the target asset series.
func (a *Aggregator) tradePoints(marketID, assetID uuid.UUID, start, end time.Time) ([]TradePoint, error) {
	trades, err := a.journal.TradesForMarketWindow(marketID, start, end)
	if err != nil {
		return nil, err
	}

	var points []TradePoint
	for i := range trades {
		trade := &trades[i]
		maker, err := a.journal.Order(trade.MakerOrderID)
		if err != nil {
			return nil, err
		}

		// the maker surrendered MakerFilledAmount of its ask asset, the
		// taker the counter amount
		var volume, counter = trade.MakerFilledAmount, trade.TakerFilledAmount
		if maker.AskAsset != assetID {
			volume, counter = trade.TakerFilledAmount, trade.MakerFilledAmount
		}
		if !volume.IsPositive() {
			continue
		}
		points = append(points, TradePoint{
			Price:  counter.Div(volume),
			Volume: volume,
			At:     trade.CreatedAt,
		})
	}
	return points, nil
}
