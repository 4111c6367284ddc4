package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/corvex/exchange-core/internal/database"
	"github.com/corvex/exchange-core/internal/journal"
	"github.com/corvex/exchange-core/internal/markets"
	"github.com/corvex/exchange-core/internal/timeseries"
	"github.com/corvex/exchange-core/internal/types"
)

func init() {
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// series is one (market, asset, interval) aggregation target.
type series struct {
	marketID uuid.UUID
	assetID  uuid.UUID
	interval types.Interval
}

func main() {
	os.Exit(run())
}

func run() int {
	var (
		dbPath      = flag.String("db", "exchange.db", "path to the exchange database")
		marketFlag  = flag.String("market", "", "market id; empty with -scope all covers every market")
		assetFlag   = flag.String("asset", "", "asset id the series prices; empty covers both legs")
		interval    = flag.String("interval", "1min", "bar interval, or 'all' for every supported interval")
		modeFlag    = flag.String("mode", "resume", "backfill, resume, single, realtime or list")
		scope       = flag.String("scope", "single", "single, market-all or all")
		startFlag   = flag.String("start", "", "window start for single mode (RFC3339)")
		endFlag     = flag.String("end", "", "upper bound for backfill/resume (RFC3339)")
		duration    = flag.String("duration", "", "lookback shortcut: 24h, 7d, 30d, 90d or all")
		confirmFlag = flag.Bool("confirm", false, "required for backfill, which discards checkpoints")
	)
	flag.Parse()

	if *modeFlag == "list" {
		for _, iv := range timeseries.Intervals() {
			fmt.Println(iv)
		}
		return 0
	}

	mode, err := timeseries.ParseMode(*modeFlag)
	if err != nil {
		zlog.Error().Err(err).Msg("invalid mode")
		return 1
	}
	if mode == timeseries.ModeBackfill && !*confirmFlag {
		zlog.Error().Msg("backfill discards checkpoints; rerun with -confirm")
		return 1
	}

	opts, err := parseBounds(*startFlag, *endFlag, *duration)
	if err != nil {
		zlog.Error().Err(err).Msg("invalid bounds")
		return 1
	}

	db, err := database.NewDatabase(*dbPath)
	if err != nil {
		zlog.Error().Err(err).Msg("failed to open database")
		return 1
	}
	registry := markets.NewService(db)
	journalService := journal.NewService(db)
	aggregator := timeseries.NewAggregator(db, journalService)

	targets, err := resolveSeries(registry, *scope, *marketFlag, *assetFlag, *interval)
	if err != nil {
		zlog.Error().Err(err).Msg("resolving series failed")
		return 1
	}
	if mode == timeseries.ModeRealtime && len(targets) != 1 {
		zlog.Error().Int("series", len(targets)).Msg("realtime mode follows exactly one series")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for _, t := range targets {
		stats, err := aggregator.Run(ctx, t.marketID, t.assetID, t.interval, mode, opts)
		if err != nil {
			zlog.Error().Err(err).
				Str("market_id", t.marketID.String()).
				Str("asset_id", t.assetID.String()).
				Str("interval", string(t.interval)).
				Msg("aggregation run failed")
			return 1
		}
		zlog.Info().
			Str("market_id", t.marketID.String()).
			Str("asset_id", t.assetID.String()).
			Str("interval", string(t.interval)).
			Int("windows", stats.WindowsProcessed).
			Int("bars", stats.BarsWritten).
			Int("skipped", stats.WindowsSkipped).
			Msg("series done")
	}
	return 0
}

func parseBounds(start, end, duration string) (timeseries.RunOptions, error) {
	var opts timeseries.RunOptions
	var err error

	if start != "" {
		if opts.Start, err = time.Parse(time.RFC3339, start); err != nil {
			return opts, fmt.Errorf("start: %w", err)
		}
	}
	if end != "" {
		if opts.End, err = time.Parse(time.RFC3339, end); err != nil {
			return opts, fmt.Errorf("end: %w", err)
		}
	}
	if duration != "" {
		if start != "" {
			return opts, fmt.Errorf("start and duration are mutually exclusive")
		}
		lookbacks := map[string]time.Duration{
			"24h": 24 * time.Hour,
			"7d":  7 * 24 * time.Hour,
			"30d": 30 * 24 * time.Hour,
			"90d": 90 * 24 * time.Hour,
		}
		if duration != "all" {
			d, ok := lookbacks[duration]
			if !ok {
				return opts, fmt.Errorf("unknown duration %q", duration)
			}
			opts.Start = time.Now().Add(-d).UTC()
		}
	}
	return opts, nil
}

// resolveSeries expands scope, asset and interval flags into the concrete
// series list a run will process.
func resolveSeries(registry *markets.Service, scope, marketFlag, assetFlag, intervalFlag string) ([]series, error) {
	var intervals []types.Interval
	if strings.EqualFold(intervalFlag, "all") {
		intervals = timeseries.Intervals()
	} else {
		iv, err := timeseries.ParseInterval(intervalFlag)
		if err != nil {
			return nil, err
		}
		intervals = []types.Interval{iv}
	}

	var targets []series
	addMarket := func(m *types.Market, only uuid.UUID) {
		for _, asset := range []uuid.UUID{m.AssetOne, m.AssetTwo} {
			if only != uuid.Nil && asset != only {
				continue
			}
			for _, iv := range intervals {
				targets = append(targets, series{marketID: m.ID, assetID: asset, interval: iv})
			}
		}
	}

	switch scope {
	case "all":
		marketList, err := registry.ListMarkets()
		if err != nil {
			return nil, err
		}
		for i := range marketList {
			addMarket(&marketList[i], uuid.Nil)
		}
	case "single", "market-all":
		if marketFlag == "" {
			return nil, fmt.Errorf("scope %q requires -market", scope)
		}
		marketID, err := uuid.Parse(marketFlag)
		if err != nil {
			return nil, fmt.Errorf("market: %w", err)
		}
		market, err := registry.GetMarket(marketID)
		if err != nil {
			return nil, err
		}
		only := uuid.Nil
		if scope == "single" {
			if assetFlag == "" {
				// default the series to the base asset
				only = market.AssetOne
			} else {
				if only, err = uuid.Parse(assetFlag); err != nil {
					return nil, fmt.Errorf("asset: %w", err)
				}
				if only != market.AssetOne && only != market.AssetTwo {
					return nil, fmt.Errorf("asset %s is not a leg of market %s", only, marketID)
				}
			}
		}
		addMarket(market, only)
	default:
		return nil, fmt.Errorf("unknown scope %q", scope)
	}

	if len(targets) == 0 {
		return nil, fmt.Errorf("no series matched the given flags")
	}
	return targets, nil
}
