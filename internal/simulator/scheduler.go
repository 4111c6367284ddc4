package simulator

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"github.com/corvex/exchange-core/internal/markets"
	"github.com/corvex/exchange-core/internal/types"
)

// MarketDistribution controls how slots spread over the available markets.
type MarketDistribution string

const (
	// DistributionRoundRobin rotates markets per account and sequence
	DistributionRoundRobin MarketDistribution = "round_robin"
	// DistributionSameMarket keeps every slot on the first market
	DistributionSameMarket MarketDistribution = "same_market"
	// DistributionSequential walks markets in sequence order
	DistributionSequential MarketDistribution = "sequential"
)

// SchedulerConfig shapes the generated schedule.
type SchedulerConfig struct {
	MinAmount          decimal.Decimal
	MaxAmount          decimal.Decimal
	TradesPerAccount   int
	BidPriceOffset     decimal.Decimal
	AskPriceOffset     decimal.Decimal
	AlternateSides     bool
	MarketDistribution MarketDistribution
	MaxRetries         int
	Seed               int64
}

// Scheduler pre-generates the ordered slot list a run will execute.
type Scheduler struct {
	cfg    SchedulerConfig
	source markets.PriceSource
	rng    *rand.Rand
}

func NewScheduler(cfg SchedulerConfig, source markets.PriceSource) *Scheduler {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if cfg.MarketDistribution == "" {
		cfg.MarketDistribution = DistributionRoundRobin
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &Scheduler{cfg: cfg, source: source, rng: rand.New(rand.NewSource(seed))}
}

// Generate builds trades_per_account slots per wallet, ordered so that
// paired sides of one sequence sit next to each other and cross when
// executed in order.
func (s *Scheduler) Generate(wallets []types.Wallet, marketList []types.Market) ([]ActionSlot, error) {
	if len(wallets) == 0 {
		return nil, fmt.Errorf("no wallets to schedule")
	}
	if len(marketList) == 0 {
		return nil, fmt.Errorf("no markets to schedule")
	}
	if s.cfg.TradesPerAccount <= 0 {
		return nil, fmt.Errorf("trades_per_account must be positive")
	}
	if s.cfg.MinAmount.GreaterThan(s.cfg.MaxAmount) || !s.cfg.MinAmount.IsPositive() {
		return nil, fmt.Errorf("amount range [%s, %s] is invalid", s.cfg.MinAmount, s.cfg.MaxAmount)
	}

	var slots []ActionSlot
	sequence := 0
	// sequence-major order: every account's j-th slot lands before any
	// account's j+1-th, so paired sides meet on the book
	for j := 0; j < s.cfg.TradesPerAccount; j++ {
		for i := range wallets {
			market := s.pickMarket(marketList, i, j)
			side := SideAsk
			if !s.cfg.AlternateSides || i%2 == 1 {
				side = SideBid
			}

			action, err := s.buildAction(market, side)
			if err != nil {
				return nil, err
			}
			if s.cfg.AlternateSides {
				if pair := i ^ 1; pair < len(wallets) {
					paired := wallets[pair].ID
					action.MatchingStrategy = StrategyMatchWith
					action.MatchWithWallet = &paired
				} else {
					// odd account out crosses whatever the book offers
					action.MatchingStrategy = StrategySequentialNext
				}
			} else {
				action.MatchingStrategy = StrategyAny
			}

			slots = append(slots, ActionSlot{
				Sequence:   sequence,
				WalletID:   wallets[i].ID,
				Action:     *action,
				State:      SlotPending,
				MaxRetries: s.cfg.MaxRetries,
			})
			sequence++
		}
	}
	return slots, nil
}

func (s *Scheduler) pickMarket(marketList []types.Market, account, seq int) *types.Market {
	switch s.cfg.MarketDistribution {
	case DistributionSameMarket:
		return &marketList[0]
	case DistributionSequential:
		return &marketList[seq%len(marketList)]
	default:
		return &marketList[(account+seq)%len(marketList)]
	}
}

// buildAction randomises the amount and derives the counter amount from the
// market's reference price shaded by the side's offset: bids pay slightly
// over the reference, asks accept slightly under, so paired slots cross.
func (s *Scheduler) buildAction(market *types.Market, side Side) (*OrderAction, error) {
	units := s.randomAmount()

	ref := decimal.NewFromInt(1)
	if s.source != nil {
		if price, ok := s.source.ReferencePrice(market.ID); ok && price.IsPositive() {
			ref = price
		}
	}

	var price decimal.Decimal
	action := &OrderAction{MarketID: market.ID, Side: side}
	switch side {
	case SideBid:
		price = ref.Mul(decimal.NewFromInt(1).Add(s.cfg.BidPriceOffset))
		action.BidAsset = market.AssetOne
		action.AskAsset = market.AssetTwo
		action.BidAmount = units
		action.AskAmount = units.Mul(price).Truncate(8)
	case SideAsk:
		price = ref.Mul(decimal.NewFromInt(1).Sub(s.cfg.AskPriceOffset))
		action.BidAsset = market.AssetTwo
		action.AskAsset = market.AssetOne
		action.BidAmount = units.Mul(price).Truncate(8)
		action.AskAmount = units
	default:
		return nil, fmt.Errorf("unknown side %q", side)
	}
	if !action.BidAmount.IsPositive() || !action.AskAmount.IsPositive() {
		return nil, fmt.Errorf("generated amounts collapsed to zero at price %s", price)
	}
	action.Price = price
	return action, nil
}

func (s *Scheduler) randomAmount() decimal.Decimal {
	span := s.cfg.MaxAmount.Sub(s.cfg.MinAmount)
	return s.cfg.MinAmount.Add(span.Mul(decimal.NewFromFloat(s.rng.Float64()))).Truncate(8)
}
