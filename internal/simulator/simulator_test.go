package simulator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/corvex/exchange-core/internal/ledger"
	"github.com/corvex/exchange-core/internal/markets"
	"github.com/corvex/exchange-core/internal/types"
)

func testMarkets(n int) []types.Market {
	out := make([]types.Market, n)
	for i := range out {
		out[i] = types.Market{
			ID: uuid.New(), AssetOne: uuid.New(), AssetTwo: uuid.New(),
			Status: types.MarketActive, MarketType: types.MarketSpot,
		}
	}
	return out
}

func testWallets(n int) []types.Wallet {
	out := make([]types.Wallet, n)
	for i := range out {
		out[i] = types.Wallet{ID: uuid.New(), Status: types.WalletActive}
	}
	return out
}

func fixedPrice(p int64) markets.PriceSource {
	return markets.PriceSourceFunc(func(uuid.UUID) (decimal.Decimal, bool) {
		return decimal.NewFromInt(p), true
	})
}

func defaultConfig() SchedulerConfig {
	return SchedulerConfig{
		MinAmount:          decimal.NewFromInt(1),
		MaxAmount:          decimal.NewFromInt(10),
		TradesPerAccount:   3,
		BidPriceOffset:     decimal.NewFromFloat(0.05),
		AskPriceOffset:     decimal.NewFromFloat(0.05),
		AlternateSides:     true,
		MarketDistribution: DistributionSameMarket,
		MaxRetries:         2,
		Seed:               7,
	}
}

func TestGeneratePairsSides(t *testing.T) {
	s := NewScheduler(defaultConfig(), fixedPrice(2))
	wallets := testWallets(4)

	slots, err := s.Generate(wallets, testMarkets(1))
	require.NoError(t, err)
	require.Len(t, slots, 12)

	// sequence-major: slot pairs sit adjacent and take opposite sides
	for i := 0; i < len(slots); i += 2 {
		assert.NotEqual(t, slots[i].Action.Side, slots[i+1].Action.Side)
		assert.Equal(t, StrategyMatchWith, slots[i].Action.MatchingStrategy)
		require.NotNil(t, slots[i].Action.MatchWithWallet)
		assert.Equal(t, slots[i+1].WalletID, *slots[i].Action.MatchWithWallet)
	}

	for i, slot := range slots {
		assert.Equal(t, i, slot.Sequence)
		assert.Equal(t, SlotPending, slot.State)
		assert.True(t, slot.Action.BidAmount.IsPositive())
		assert.True(t, slot.Action.AskAmount.IsPositive())
	}
}

func TestGenerateOffsetsCross(t *testing.T) {
	s := NewScheduler(defaultConfig(), fixedPrice(100))
	slots, err := s.Generate(testWallets(2), testMarkets(1))
	require.NoError(t, err)

	for _, slot := range slots {
		switch slot.Action.Side {
		case SideBid:
			assert.True(t, slot.Action.Price.Equal(decimal.NewFromInt(105)))
		case SideAsk:
			assert.True(t, slot.Action.Price.Equal(decimal.NewFromInt(95)))
		}
	}
}

func TestGenerateAmountRange(t *testing.T) {
	cfg := defaultConfig()
	cfg.TradesPerAccount = 50
	s := NewScheduler(cfg, fixedPrice(1))

	slots, err := s.Generate(testWallets(2), testMarkets(1))
	require.NoError(t, err)
	for _, slot := range slots {
		units := slot.Action.BidAmount
		if slot.Action.Side == SideAsk {
			units = slot.Action.AskAmount
		}
		assert.True(t, units.GreaterThanOrEqual(decimal.NewFromInt(1)), "units %s", units)
		assert.True(t, units.LessThanOrEqual(decimal.NewFromInt(10)), "units %s", units)
	}
}

func TestGenerateRejectsBadConfig(t *testing.T) {
	cfg := defaultConfig()
	cfg.MinAmount = decimal.NewFromInt(20)
	s := NewScheduler(cfg, nil)
	_, err := s.Generate(testWallets(2), testMarkets(1))
	assert.Error(t, err)
}

func TestRetryPolicyBackoff(t *testing.T) {
	p := NewRetryPolicy(time.Second, 1)

	for attempt, base := range map[int]time.Duration{
		1: time.Second,
		2: 2 * time.Second,
		3: 4 * time.Second,
	} {
		d := p.Delay(attempt)
		assert.InDelta(t, float64(base), float64(d), float64(base)*0.11, "attempt %d", attempt)
	}

	// cap at 30s even deep into the schedule
	assert.LessOrEqual(t, p.Delay(20), 30*time.Second)
}

func TestStateStoreRoundTrip(t *testing.T) {
	store, err := NewStateStore(t.TempDir())
	require.NoError(t, err)

	state := &SimulationState{
		SimulationID:     "sim-roundtrip",
		Slots:            []ActionSlot{{Sequence: 0, WalletID: uuid.New(), State: SlotPending}},
		CurrentSlotIndex: 0,
		StartedAt:        time.Now(),
	}
	require.NoError(t, store.Save(state))

	loaded, err := store.Load("sim-roundtrip")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, state.SimulationID, loaded.SimulationID)
	require.Len(t, loaded.Slots, 1)
	assert.Equal(t, state.Slots[0].WalletID, loaded.Slots[0].WalletID)

	missing, err := store.Load("never-ran")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

// scripted executor: each call consumes the next scripted error (nil means
// success).
type scriptedExecutor struct {
	script []error
	calls  int
}

func (e *scriptedExecutor) Execute(context.Context, *ActionSlot) (uuid.UUID, error) {
	var err error
	if e.calls < len(e.script) {
		err = e.script[e.calls]
	}
	e.calls++
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.New(), nil
}

type scriptedPrompt struct {
	choices []PromptChoice
	calls   int
}

func (p *scriptedPrompt) Prompt(*ActionSlot, error) PromptChoice {
	if p.calls >= len(p.choices) {
		return PromptContinue
	}
	c := p.choices[p.calls]
	p.calls++
	return c
}

func newRunnerFixture(t *testing.T, exec Executor, prompt PromptHandler) (*Runner, *ledger.Service, *StateStore) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&ledger.BalanceEntry{}))
	ledgerSvc := ledger.NewService(db)

	store, err := NewStateStore(t.TempDir())
	require.NoError(t, err)

	r := NewRunner(ledgerSvc, exec, store, prompt, NewRetryPolicy(time.Millisecond, 1))
	r.sleep = func(time.Duration) {}
	return r, ledgerSvc, store
}

func fundedSlots(t *testing.T, ledgerSvc *ledger.Service, n int, budget int64) []ActionSlot {
	t.Helper()
	wallet, asset := uuid.New(), uuid.New()
	require.NoError(t, ledgerSvc.SetBudget(wallet, asset, decimal.NewFromInt(budget)))

	slots := make([]ActionSlot, n)
	for i := range slots {
		slots[i] = ActionSlot{
			Sequence: i,
			WalletID: wallet,
			Action: OrderAction{
				MarketID:  uuid.New(),
				BidAsset:  uuid.New(),
				AskAsset:  asset,
				BidAmount: decimal.NewFromInt(10),
				AskAmount: decimal.NewFromInt(10),
				Side:      SideBid,
			},
			State:      SlotPending,
			MaxRetries: 2,
		}
	}
	return slots
}

func TestRunnerCompletesSchedule(t *testing.T) {
	exec := &scriptedExecutor{}
	r, ledgerSvc, store := newRunnerFixture(t, exec, nil)

	state := &SimulationState{
		SimulationID: "sim-complete",
		Slots:        fundedSlots(t, ledgerSvc, 3, 1000),
	}
	require.NoError(t, r.Run(context.Background(), state))

	assert.Equal(t, 3, state.Stats.Completed)
	assert.Equal(t, 3, state.CurrentSlotIndex)
	assert.NotNil(t, state.CompletedAt)
	for _, slot := range state.Slots {
		assert.Equal(t, SlotCompleted, slot.State)
		assert.NotNil(t, slot.OrderID)
	}

	// state file reflects completion
	loaded, err := store.Load("sim-complete")
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.CurrentSlotIndex)
}

func TestRunnerRetriesThenSucceeds(t *testing.T) {
	exec := &scriptedExecutor{script: []error{errors.New("transient"), nil}}
	r, ledgerSvc, _ := newRunnerFixture(t, exec, nil)

	state := &SimulationState{
		SimulationID: "sim-retry",
		Slots:        fundedSlots(t, ledgerSvc, 1, 1000),
	}
	require.NoError(t, r.Run(context.Background(), state))

	assert.Equal(t, 1, state.Stats.Completed)
	assert.Equal(t, SlotCompleted, state.Slots[0].State)
	assert.Equal(t, 2, state.Stats.TotalAttempts)
}

func TestRunnerPromptSkip(t *testing.T) {
	exec := &scriptedExecutor{script: []error{
		errors.New("down"), errors.New("down"), errors.New("down"),
	}}
	prompt := &scriptedPrompt{choices: []PromptChoice{PromptSkip}}
	r, ledgerSvc, _ := newRunnerFixture(t, exec, prompt)

	state := &SimulationState{
		SimulationID: "sim-skip",
		Slots:        fundedSlots(t, ledgerSvc, 1, 1000),
	}
	require.NoError(t, r.Run(context.Background(), state))

	assert.Equal(t, SlotSkipped, state.Slots[0].State)
	assert.Equal(t, 1, state.Stats.Skipped)
}

func TestRunnerPromptQuitSavesState(t *testing.T) {
	exec := &scriptedExecutor{script: []error{
		errors.New("down"), errors.New("down"),
	}}
	prompt := &scriptedPrompt{choices: []PromptChoice{PromptQuit}}
	r, ledgerSvc, store := newRunnerFixture(t, exec, prompt)

	state := &SimulationState{
		SimulationID: "sim-quit",
		Slots:        fundedSlots(t, ledgerSvc, 3, 1000),
	}
	err := r.Run(context.Background(), state)
	assert.ErrorIs(t, err, ErrInterrupted)

	loaded, err := store.Load("sim-quit")
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.CurrentSlotIndex)
	assert.Equal(t, SlotFailed, loaded.Slots[0].State)
	assert.Equal(t, SlotPending, loaded.Slots[1].State)
}

func TestRunnerResumesFromCheckpoint(t *testing.T) {
	exec := &scriptedExecutor{}
	r, ledgerSvc, _ := newRunnerFixture(t, exec, nil)

	slots := fundedSlots(t, ledgerSvc, 3, 1000)
	slots[0].State = SlotCompleted
	state := &SimulationState{
		SimulationID:     "sim-resume",
		Slots:            slots,
		CurrentSlotIndex: 1,
		Stats:            SimulationStats{Completed: 1},
	}
	require.NoError(t, r.Run(context.Background(), state))

	// only the remaining two slots ran
	assert.Equal(t, 2, exec.calls)
	assert.Equal(t, 3, state.Stats.Completed)
}

// budget depletion surfaces as InsufficientBudget and flows through the
// prompt loop instead of reaching the engine.
func TestRunnerBudgetDepletion(t *testing.T) {
	exec := &scriptedExecutor{}
	r, ledgerSvc, _ := newRunnerFixture(t, exec, nil)

	// budget covers one slot of 10, not two
	state := &SimulationState{
		SimulationID: "sim-depleted",
		Slots:        fundedSlots(t, ledgerSvc, 2, 15),
	}

	// drain the first slot's funds for real so the interlock sees it
	wallet, asset := state.Slots[0].WalletID, state.Slots[0].Action.AskAsset
	require.NoError(t, ledgerSvc.Lock(wallet, asset, decimal.NewFromInt(10)))

	require.NoError(t, r.Run(context.Background(), state))

	// both slots starve on the shared wallet and never reach the engine
	for _, slot := range state.Slots {
		assert.Equal(t, SlotFailed, slot.State)
		assert.Contains(t, slot.LastError, "budget")
	}
	assert.Equal(t, 0, exec.calls)
	assert.Equal(t, 2, state.Stats.Failed)
}

func TestRunnerInterruptCheckpointsAndStops(t *testing.T) {
	exec := &scriptedExecutor{}
	r, ledgerSvc, store := newRunnerFixture(t, exec, nil)

	state := &SimulationState{
		SimulationID: "sim-interrupt",
		Slots:        fundedSlots(t, ledgerSvc, 3, 1000),
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := r.Run(ctx, state)
	assert.ErrorIs(t, err, ErrInterrupted)

	loaded, err := store.Load("sim-interrupt")
	require.NoError(t, err)
	assert.Equal(t, 0, loaded.CurrentSlotIndex)
}
