package orderbook

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/corvex/exchange-core/internal/types"
)

// IdempotencyRecord maps a client-supplied key to the order it created, so a
// retried placement returns the recorded outcome instead of matching twice.
type IdempotencyRecord struct {
	gorm.Model
	IdempotencyKey string    `gorm:"uniqueIndex" json:"idempotency_key"`
	ResourceID     string    `json:"resource_id"`
	ResourceType   string    `json:"resource_type"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// PlacementStatus is the outcome class of one placement.
type PlacementStatus string

const (
	PlacementFilled    PlacementStatus = "filled"
	PlacementPartial   PlacementStatus = "partial"
	PlacementCancelled PlacementStatus = "cancelled"
)

// PlacementResult is what the engine hands back to the caller after the walk.
type PlacementResult struct {
	OrderID   uuid.UUID       `json:"order_id"`
	Status    PlacementStatus `json:"status"`
	BidFilled decimal.Decimal `json:"bid_filled"`
	AskFilled decimal.Decimal `json:"ask_filled"`
	TradeIDs  []uuid.UUID     `json:"trades"`
	Reason    string          `json:"reason,omitempty"`
}

// PlaceRequest carries everything the engine needs to admit one order.
type PlaceRequest struct {
	WalletID       uuid.UUID
	MarketID       uuid.UUID
	BidAsset       uuid.UUID
	AskAsset       uuid.UUID
	BidAmount      decimal.Decimal
	AskAmount      decimal.Decimal
	Mode           types.FillMode
	OrderType      types.OrderType
	ExpiresAt      *time.Time
	IdempotencyKey string
}
