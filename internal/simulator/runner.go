package simulator

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/corvex/exchange-core/internal/ledger"
	"github.com/corvex/exchange-core/internal/orderbook"
	"github.com/corvex/exchange-core/internal/types"
)

var (
	// ErrInsufficientBudget fails a slot fast before it reaches the engine
	ErrInsufficientBudget = errors.New("account budget cannot cover the slot")

	// ErrInterrupted reports a cooperative cancel: state was checkpointed
	// and the run can resume
	ErrInterrupted = errors.New("simulation interrupted")
)

// PromptChoice is the operator's answer after a slot exhausts its retries.
type PromptChoice int

const (
	PromptRetry PromptChoice = iota
	PromptSkip
	PromptContinue
	PromptQuit
)

// PromptHandler decides what happens to a slot that exhausted its retries.
type PromptHandler interface {
	Prompt(slot *ActionSlot, lastErr error) PromptChoice
}

// AutoContinue answers every prompt with continue, for headless runs.
type AutoContinue struct{}

func (AutoContinue) Prompt(*ActionSlot, error) PromptChoice { return PromptContinue }

// Executor places one slot's order against the live engine.
type Executor interface {
	Execute(ctx context.Context, slot *ActionSlot) (uuid.UUID, error)
}

// EngineExecutor runs slots against the matching engine.
type EngineExecutor struct {
	engine *orderbook.Engine
}

func NewEngineExecutor(engine *orderbook.Engine) *EngineExecutor {
	return &EngineExecutor{engine: engine}
}

func (e *EngineExecutor) Execute(_ context.Context, slot *ActionSlot) (uuid.UUID, error) {
	result, err := e.engine.Place(orderbook.PlaceRequest{
		WalletID:  slot.WalletID,
		MarketID:  slot.Action.MarketID,
		BidAsset:  slot.Action.BidAsset,
		AskAsset:  slot.Action.AskAsset,
		BidAmount: slot.Action.BidAmount,
		AskAmount: slot.Action.AskAmount,
		Mode:      types.GoodTillCancel,
		OrderType: types.OrderTypeLimit,
	})
	if err != nil {
		return uuid.Nil, err
	}
	return result.OrderID, nil
}

// Runner executes a schedule slot by slot, checkpointing after every slot
// that reaches a terminal state. An interrupt lets the in-flight slot finish
// and exits after the checkpoint.
type Runner struct {
	ledger *ledger.Service
	exec   Executor
	store  *StateStore
	prompt PromptHandler
	retry  *RetryPolicy

	// sleep is swapped in tests to avoid real backoff waits
	sleep func(time.Duration)
}

func NewRunner(ledgerSvc *ledger.Service, exec Executor, store *StateStore, prompt PromptHandler, retry *RetryPolicy) *Runner {
	if prompt == nil {
		prompt = AutoContinue{}
	}
	return &Runner{
		ledger: ledgerSvc,
		exec:   exec,
		store:  store,
		prompt: prompt,
		retry:  retry,
		sleep:  time.Sleep,
	}
}

// Run processes the schedule from state.CurrentSlotIndex. It returns
// ErrInterrupted on cooperative cancel and nil on completion; in both cases
// the state file reflects exactly how far the run got.
func (r *Runner) Run(ctx context.Context, state *SimulationState) error {
	logger := log.With().
		Str("component", "simulator").
		Str("simulation_id", state.SimulationID).
		Logger()

	if state.StartedAt.IsZero() {
		state.StartedAt = time.Now()
	}
	logger.Info().
		Int("slots", len(state.Slots)).
		Int("resume_from", state.CurrentSlotIndex).
		Msg("starting simulation run")

	for state.CurrentSlotIndex < len(state.Slots) {
		if err := ctx.Err(); err != nil {
			if saveErr := r.store.Save(state); saveErr != nil {
				return saveErr
			}
			logger.Info().Int("slot", state.CurrentSlotIndex).Msg("run interrupted, state saved")
			return ErrInterrupted
		}

		slot := &state.Slots[state.CurrentSlotIndex]
		quit, err := r.runSlot(ctx, slot, &state.Stats, logger)
		if err != nil {
			return err
		}

		state.CurrentSlotIndex++
		if err := r.store.Save(state); err != nil {
			return err
		}
		if quit {
			logger.Info().Msg("operator quit, state saved")
			return ErrInterrupted
		}
	}

	now := time.Now()
	state.CompletedAt = &now
	if err := r.store.Save(state); err != nil {
		return err
	}
	logger.Info().
		Int("completed", state.Stats.Completed).
		Int("failed", state.Stats.Failed).
		Int("skipped", state.Stats.Skipped).
		Msg("simulation run complete")
	return nil
}

// runSlot drives one slot to a terminal state. The boolean reports an
// operator quit.
func (r *Runner) runSlot(ctx context.Context, slot *ActionSlot, stats *SimulationStats, logger zerolog.Logger) (bool, error) {
	if slot.State == SlotCompleted || slot.State == SlotSkipped {
		return false, nil
	}
	slot.State = SlotInProgress

	for {
		err := r.attempt(ctx, slot)
		stats.TotalAttempts++
		if err == nil {
			now := time.Now()
			slot.State = SlotCompleted
			slot.ExecutedAt = &now
			slot.LastError = ""
			stats.Completed++
			stats.OrdersPlaced++
			return false, nil
		}

		slot.Attempts++
		slot.LastError = err.Error()
		logger.Warn().
			Int("sequence", slot.Sequence).
			Int("attempt", slot.Attempts).
			Err(err).
			Msg("slot attempt failed")

		// an empty budget will not refill by waiting; go straight to the
		// operator instead of burning retries
		if slot.Attempts < slot.MaxRetries && !errors.Is(err, ErrInsufficientBudget) {
			r.sleep(r.retry.Delay(slot.Attempts))
			continue
		}

		switch r.prompt.Prompt(slot, err) {
		case PromptRetry:
			slot.Attempts = 0
			continue
		case PromptSkip:
			slot.State = SlotSkipped
			stats.Skipped++
			return false, nil
		case PromptQuit:
			slot.State = SlotFailed
			stats.Failed++
			return true, nil
		default: // continue
			slot.State = SlotFailed
			stats.Failed++
			return false, nil
		}
	}
}

// attempt runs the budget interlock and then the executor.
func (r *Runner) attempt(ctx context.Context, slot *ActionSlot) error {
	available, err := r.ledger.Available(slot.WalletID, slot.Action.AskAsset)
	if err != nil {
		return err
	}
	if available.LessThan(slot.Action.AskAmount) {
		return ErrInsufficientBudget
	}

	orderID, err := r.exec.Execute(ctx, slot)
	if err != nil {
		return err
	}
	slot.OrderID = &orderID
	return nil
}
