package types

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AssetType classifies how an asset came to exist on the platform
type AssetType string

const (
	AssetTypeNative       AssetType = "native"
	AssetTypeBridged      AssetType = "bridged"
	AssetTypeStablecoin   AssetType = "stablecoin"
	AssetTypeYieldBearing AssetType = "yield_bearing"
	AssetTypeVolatile     AssetType = "volatile"
	AssetTypeChainNative  AssetType = "chain_native"
)

// WalletStatus is the lifecycle state of a wallet
type WalletStatus string

const (
	WalletActive    WalletStatus = "active"
	WalletInactive  WalletStatus = "inactive"
	WalletSuspended WalletStatus = "suspended"
)

type MarketStatus string

const (
	MarketActive    MarketStatus = "active"
	MarketInactive  MarketStatus = "inactive"
	MarketSuspended MarketStatus = "suspended"
)

type MarketType string

const (
	MarketSpot       MarketType = "spot"
	MarketDerivative MarketType = "derivative"
	MarketFutures    MarketType = "futures"
)

type MarketRegulation string

const (
	MarketRegulated   MarketRegulation = "regulated"
	MarketUnregulated MarketRegulation = "unregulated"
)

// FillMode controls what happens to the unfilled portion of an order
type FillMode string

const (
	FillOrKill        FillMode = "fill-or-kill"
	ImmediateOrCancel FillMode = "immediate-or-cancel"
	GoodTillCancel    FillMode = "good-till-cancel"
)

type OrderType string

const (
	OrderTypeLimit  OrderType = "limit"
	OrderTypeMarket OrderType = "market"
)

type OrderStatus string

const (
	OrderOpen      OrderStatus = "open"
	OrderClosed    OrderStatus = "closed"
	OrderCancelled OrderStatus = "cancelled"
)

// SettlementStatus is the state machine of a trade: matched -> settled | failed
type SettlementStatus string

const (
	SettlementMatched SettlementStatus = "matched"
	SettlementSettled SettlementStatus = "settled"
	SettlementFailed  SettlementStatus = "failed"
)

// Interval identifies an OHLCV bar width
type Interval string

const (
	Interval15s   Interval = "15s"
	Interval30s   Interval = "30s"
	Interval45s   Interval = "45s"
	Interval1Min  Interval = "1min"
	Interval5Min  Interval = "5min"
	Interval15Min Interval = "15min"
	Interval30Min Interval = "30min"
	Interval1Hr   Interval = "1hr"
	Interval4Hr   Interval = "4hr"
	Interval1Day  Interval = "1day"
	Interval1Week Interval = "1week"
)

type DataProviderType string

const (
	ProviderOrderBook  DataProviderType = "order_book"
	ProviderExchange   DataProviderType = "exchange"
	ProviderAggregated DataProviderType = "aggregated"
)

// Asset is a tradeable token. Decimals constrains the smallest representable
// quantum of the asset; the matching engine truncates to it.
type Asset struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Symbol    string    `gorm:"uniqueIndex" json:"symbol"`
	Name      string    `json:"name"`
	Decimals  int32     `json:"decimals"`
	AssetType AssetType `json:"asset_type"`
	CreatedAt time.Time `json:"created_at"`
}

// Wallet holds balances and owns orders. Name exists so synthetic simulation
// accounts can be discovered by prefix.
type Wallet struct {
	ID             uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerAccountID uuid.UUID    `gorm:"type:uuid;index" json:"owner_account_id"`
	Name           string       `gorm:"index" json:"name"`
	Status         WalletStatus `json:"status"`
	CreatedAt      time.Time    `json:"created_at"`
}

// Market pairs two distinct assets. Only active spot markets match.
type Market struct {
	ID         uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	Name       string           `json:"name"`
	AssetOne   uuid.UUID        `gorm:"type:uuid;index:idx_market_pair,unique" json:"asset_one"`
	AssetTwo   uuid.UUID        `gorm:"type:uuid;index:idx_market_pair,unique" json:"asset_two"`
	Status     MarketStatus     `json:"status"`
	Regulation MarketRegulation `json:"regulation"`
	MarketType MarketType       `json:"market_type"`
	CreatedAt  time.Time        `json:"created_at"`
}

// Order is a resting or incoming intention to trade. AskAsset/AskAmount is
// what the order giver surrenders, BidAsset/BidAmount what they want to
// receive. Price is AskAmount / BidAmount: the giver's unit cost per unit
// received.
type Order struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	WalletID    uuid.UUID       `gorm:"type:uuid;index" json:"wallet_id"`
	MarketID    uuid.UUID       `gorm:"type:uuid;index" json:"market_id"`
	BidAsset    uuid.UUID       `gorm:"type:uuid;index:idx_order_sides" json:"bid_asset"`
	AskAsset    uuid.UUID       `gorm:"type:uuid;index:idx_order_sides" json:"ask_asset"`
	BidAmount   decimal.Decimal `gorm:"type:decimal(38,18)" json:"bid_amount"`
	AskAmount   decimal.Decimal `gorm:"type:decimal(38,18)" json:"ask_amount"`
	Price       decimal.Decimal `gorm:"type:decimal(38,18)" json:"price"`
	FilledBid   decimal.Decimal `gorm:"type:decimal(38,18)" json:"filled_bid"`
	FilledAsk   decimal.Decimal `gorm:"type:decimal(38,18)" json:"filled_ask"`
	Mode        FillMode        `json:"mode"`
	OrderType   OrderType       `json:"order_type"`
	Status      OrderStatus     `gorm:"index" json:"status"`
	CreatedAt   time.Time       `gorm:"index" json:"created_at"`
	FilledAt    *time.Time      `json:"filled_at,omitempty"`
	CancelledAt *time.Time      `json:"cancelled_at,omitempty"`
	ExpiresAt   *time.Time      `json:"expires_at,omitempty"`
}

// RemainingBid is the quantity of the bid asset still wanted.
func (o *Order) RemainingBid() decimal.Decimal {
	return o.BidAmount.Sub(o.FilledBid)
}

// RemainingAsk is the quantity of the ask asset still on offer.
func (o *Order) RemainingAsk() decimal.Decimal {
	return o.AskAmount.Sub(o.FilledAsk)
}

// Trade links a maker order to a taker order. MakerFilledAmount is what the
// maker surrendered (their ask asset), TakerFilledAmount what the taker
// surrendered. PairKey is the lexicographically ordered (maker, taker) pair
// used to reject duplicate matches from a retried placement.
type Trade struct {
	ID                uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	MakerOrderID      uuid.UUID        `gorm:"type:uuid;index" json:"maker_order_id"`
	TakerOrderID      uuid.UUID        `gorm:"type:uuid;index" json:"taker_order_id"`
	PairKey           string           `gorm:"index" json:"-"`
	MakerFilledAmount decimal.Decimal  `gorm:"type:decimal(38,18)" json:"maker_filled_amount"`
	TakerFilledAmount decimal.Decimal  `gorm:"type:decimal(38,18)" json:"taker_filled_amount"`
	SettlementStatus  SettlementStatus `gorm:"index" json:"settlement_status"`
	SettlementTx      *string          `json:"settlement_tx,omitempty"`
	CreatedAt         time.Time        `gorm:"index" json:"created_at"`
	SettledAt         *time.Time       `json:"settled_at,omitempty"`
}

// OrderedPairKey builds the canonical key for the unordered (maker, taker)
// order pair.
func OrderedPairKey(a, b uuid.UUID) string {
	if a.String() < b.String() {
		return a.String() + ":" + b.String()
	}
	return b.String() + ":" + a.String()
}

// Bar is one OHLCV candle for (market, asset, interval, window). Bars are
// rewritten idempotently on the unique window key.
type Bar struct {
	ID               uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	MarketID         uuid.UUID        `gorm:"type:uuid;index:idx_bar_window,unique" json:"market_id"`
	AssetID          uuid.UUID        `gorm:"type:uuid;index:idx_bar_window,unique" json:"asset_id"`
	Interval         Interval         `gorm:"index:idx_bar_window,unique" json:"interval"`
	StartTime        time.Time        `gorm:"index:idx_bar_window,unique" json:"start_time"`
	DataProvider     string           `gorm:"index:idx_bar_window,unique" json:"data_provider"`
	EndTime          time.Time        `json:"end_time"`
	Open             decimal.Decimal  `gorm:"type:decimal(38,18)" json:"open"`
	High             decimal.Decimal  `gorm:"type:decimal(38,18)" json:"high"`
	Low              decimal.Decimal  `gorm:"type:decimal(38,18)" json:"low"`
	Close            decimal.Decimal  `gorm:"type:decimal(38,18)" json:"close"`
	Volume           decimal.Decimal  `gorm:"type:decimal(38,18)" json:"volume"`
	DataProviderType DataProviderType `json:"data_provider_type"`
	CreatedAt        time.Time        `json:"created_at"`
}

// Checkpoint is a single-row key/value record tracking aggregator progress
// for one (market, asset, interval). Owner doubles as a lock against
// concurrent aggregator runs on the same key.
type Checkpoint struct {
	Key              string    `gorm:"primaryKey" json:"key"`
	LastProcessedEnd time.Time `json:"last_processed_end"`
	Owner            string    `json:"owner"`
	UpdatedAt        time.Time `json:"updated_at"`
}
