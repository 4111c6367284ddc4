package simulator

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SlotState is the lifecycle of one scheduled action.
type SlotState string

const (
	SlotPending    SlotState = "pending"
	SlotInProgress SlotState = "in_progress"
	SlotCompleted  SlotState = "completed"
	SlotFailed     SlotState = "failed"
	SlotSkipped    SlotState = "skipped"
)

// Side says which leg of the market the account takes.
type Side string

const (
	SideBid Side = "bid"
	SideAsk Side = "ask"
)

// MatchingStrategy records how the generator intends a slot to cross.
type MatchingStrategy string

const (
	// StrategyMatchWith pairs the slot with a specific account's slot
	StrategyMatchWith MatchingStrategy = "match_with"
	// StrategySequentialNext crosses against the next slot in sequence
	StrategySequentialNext MatchingStrategy = "sequential_next"
	// StrategyAny crosses against whatever the book offers
	StrategyAny MatchingStrategy = "any"
)

// OrderAction is the placement a slot will perform.
type OrderAction struct {
	MarketID         uuid.UUID        `json:"market_id"`
	BidAsset         uuid.UUID        `json:"bid_asset"`
	AskAsset         uuid.UUID        `json:"ask_asset"`
	BidAmount        decimal.Decimal  `json:"bid_amount"`
	AskAmount        decimal.Decimal  `json:"ask_amount"`
	Price            decimal.Decimal  `json:"price"`
	Side             Side             `json:"side"`
	MatchingStrategy MatchingStrategy `json:"matching_strategy"`
	MatchWithWallet  *uuid.UUID       `json:"match_with_wallet,omitempty"`
}

// ActionSlot is one scheduled placement with its execution bookkeeping.
type ActionSlot struct {
	Sequence   int         `json:"sequence"`
	WalletID   uuid.UUID   `json:"wallet_id"`
	Action     OrderAction `json:"action"`
	State      SlotState   `json:"state"`
	Attempts   int         `json:"attempts"`
	MaxRetries int         `json:"max_retries"`
	LastError  string      `json:"last_error,omitempty"`
	OrderID    *uuid.UUID  `json:"order_id,omitempty"`
	ExecutedAt *time.Time  `json:"executed_at,omitempty"`
}
