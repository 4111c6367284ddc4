package main

import (
	"bufio"
	"context"
	"errors"
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
	"github.com/shopspring/decimal"

	"github.com/corvex/exchange-core/internal/database"
	"github.com/corvex/exchange-core/internal/journal"
	"github.com/corvex/exchange-core/internal/ledger"
	"github.com/corvex/exchange-core/internal/markets"
	"github.com/corvex/exchange-core/internal/orderbook"
	"github.com/corvex/exchange-core/internal/simulator"
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

func main() {
	os.Exit(run())
}

func run() int {
	var (
		dbPath           = flag.String("db", "exchange.db", "path to the exchange database")
		simulationID     = flag.String("simulation-id", "", "resume or name a run; empty generates one")
		accountFilter    = flag.String("account-filter", "sim-", "wallet name prefix to schedule")
		tradesPerAccount = flag.Int("trades-per-account", 10, "slots generated per wallet")
		minAmount        = flag.String("min-amount", "1", "minimum order size in market units")
		maxAmount        = flag.String("max-amount", "100", "maximum order size in market units")
		initialBudget    = flag.String("initial-budget", "10000", "budget granted per wallet per asset")
		bidOffset        = flag.String("bid-price-offset", "0.05", "fraction over reference paid by bids")
		askOffset        = flag.String("ask-price-offset", "0.05", "fraction under reference accepted by asks")
		stateDir         = flag.String("state-dir", "simulation-state", "directory for resumable run state")
		iterations       = flag.Int("iterations", 1, "full schedule passes to run")
		noAutoContinue   = flag.Bool("no-auto-continue", false, "prompt the operator on exhausted slots")
		seed             = flag.Int64("seed", 0, "schedule RNG seed; 0 uses the clock")
	)
	flag.Parse()

	cfg, err := parseConfig(*minAmount, *maxAmount, *bidOffset, *askOffset, *tradesPerAccount, *seed)
	if err != nil {
		zlog.Error().Err(err).Msg("invalid flags")
		return 1
	}
	budget, err := decimal.NewFromString(*initialBudget)
	if err != nil || !budget.IsPositive() {
		zlog.Error().Str("initial_budget", *initialBudget).Msg("initial budget must be a positive decimal")
		return 1
	}

	db, err := database.NewDatabase(*dbPath)
	if err != nil {
		zlog.Error().Err(err).Msg("failed to open database")
		return 1
	}

	registry := markets.NewService(db)
	ledgerService := ledger.NewService(db)
	journalService := journal.NewService(db)
	engine := orderbook.NewEngine(db, ledgerService, journalService, registry,
		markets.NewDiscipline(decimal.Zero, nil))

	wallets, err := registry.WalletsByPrefix(*accountFilter)
	if err != nil {
		zlog.Error().Err(err).Msg("wallet discovery failed")
		return 1
	}
	if len(wallets) == 0 {
		zlog.Error().Str("prefix", *accountFilter).Msg("no active wallets match the filter")
		return 1
	}
	marketList, err := registry.ListMarkets()
	if err != nil {
		zlog.Error().Err(err).Msg("market discovery failed")
		return 1
	}
	active := marketList[:0]
	for _, m := range marketList {
		if m.Status == types.MarketActive {
			active = append(active, m)
		}
	}
	if len(active) == 0 {
		zlog.Error().Msg("no active markets to trade")
		return 1
	}

	budgets := simulator.NewBudgetStore()
	if err := grantBudgets(ledgerService, budgets, wallets, active, budget); err != nil {
		zlog.Error().Err(err).Msg("granting budgets failed")
		return 1
	}
	for asset, total := range budgets.TotalGranted() {
		zlog.Info().
			Str("asset_id", asset.String()).
			Str("total", total.String()).
			Int("wallets", len(budgets.Wallets())).
			Msg("budget granted")
	}

	store, err := simulator.NewStateStore(*stateDir)
	if err != nil {
		zlog.Error().Err(err).Msg("state store init failed")
		return 1
	}

	var prompt simulator.PromptHandler = simulator.AutoContinue{}
	if *noAutoContinue {
		prompt = &stdinPrompt{in: bufio.NewReader(os.Stdin)}
	}
	runner := simulator.NewRunner(ledgerService, simulator.NewEngineExecutor(engine), store, prompt,
		simulator.NewRetryPolicy(time.Second, time.Now().UnixNano()))

	scheduler := simulator.NewScheduler(cfg, journalService)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for iter := 0; iter < *iterations; iter++ {
		state, err := loadOrGenerate(store, scheduler, wallets, active, *simulationID, iter)
		if err != nil {
			zlog.Error().Err(err).Msg("building schedule failed")
			return 1
		}

		err = runner.Run(ctx, state)
		if errors.Is(err, simulator.ErrInterrupted) {
			zlog.Info().Str("simulation_id", state.SimulationID).Msg("interrupted; rerun with -simulation-id to resume")
			return 2
		}
		if err != nil {
			zlog.Error().Err(err).Msg("simulation run failed")
			return 1
		}
	}
	return 0
}

func parseConfig(minAmount, maxAmount, bidOffset, askOffset string, trades int, seed int64) (simulator.SchedulerConfig, error) {
	var cfg simulator.SchedulerConfig
	var err error
	if cfg.MinAmount, err = decimal.NewFromString(minAmount); err != nil {
		return cfg, fmt.Errorf("min-amount: %w", err)
	}
	if cfg.MaxAmount, err = decimal.NewFromString(maxAmount); err != nil {
		return cfg, fmt.Errorf("max-amount: %w", err)
	}
	if cfg.BidPriceOffset, err = decimal.NewFromString(bidOffset); err != nil {
		return cfg, fmt.Errorf("bid-price-offset: %w", err)
	}
	if cfg.AskPriceOffset, err = decimal.NewFromString(askOffset); err != nil {
		return cfg, fmt.Errorf("ask-price-offset: %w", err)
	}
	cfg.TradesPerAccount = trades
	cfg.AlternateSides = true
	cfg.MarketDistribution = simulator.DistributionRoundRobin
	cfg.Seed = seed
	return cfg, nil
}

// grantBudgets funds every wallet in both legs of every market so either
// side of a slot can lock its ask.
func grantBudgets(ledgerService *ledger.Service, budgets *simulator.BudgetStore, wallets []types.Wallet, marketList []types.Market, amount decimal.Decimal) error {
	assets := make(map[uuid.UUID]struct{})
	for _, m := range marketList {
		assets[m.AssetOne] = struct{}{}
		assets[m.AssetTwo] = struct{}{}
	}
	for _, w := range wallets {
		for asset := range assets {
			err := ledgerService.SetBudget(w.ID, asset, amount)
			if errors.Is(err, ledger.ErrEntryExists) {
				// already funded on a previous run; keep the live balance
				continue
			}
			if err != nil {
				return err
			}
			budgets.Grant(w.ID, asset, amount)
		}
	}
	return nil
}

func loadOrGenerate(store *simulator.StateStore, scheduler *simulator.Scheduler, wallets []types.Wallet, marketList []types.Market, simulationID string, iter int) (*simulator.SimulationState, error) {
	if simulationID != "" && iter == 0 {
		state, err := store.Load(simulationID)
		if err != nil {
			return nil, err
		}
		if state != nil {
			return state, nil
		}
	}

	slots, err := scheduler.Generate(wallets, marketList)
	if err != nil {
		return nil, err
	}

	id := simulationID
	if id == "" || iter > 0 {
		id = fmt.Sprintf("sim-%s", uuid.New().String()[:8])
	}
	return &simulator.SimulationState{SimulationID: id, Slots: slots}, nil
}

// stdinPrompt asks the operator what to do with a slot that exhausted its
// retries.
type stdinPrompt struct {
	in *bufio.Reader
}

func (p *stdinPrompt) Prompt(slot *simulator.ActionSlot, lastErr error) simulator.PromptChoice {
	fmt.Fprintf(os.Stderr, "slot %d failed after %d attempts: %v\n", slot.Sequence, slot.Attempts, lastErr)
	for {
		fmt.Fprint(os.Stderr, "[r]etry / [s]kip / [c]ontinue / [q]uit: ")
		line, err := p.in.ReadString('\n')
		if err != nil {
			return simulator.PromptQuit
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "r", "retry":
			return simulator.PromptRetry
		case "s", "skip":
			return simulator.PromptSkip
		case "c", "continue", "":
			return simulator.PromptContinue
		case "q", "quit":
			return simulator.PromptQuit
		}
	}
}
