package markets

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/corvex/exchange-core/internal/types"
)

// PriceSource supplies a reference price for a market. The second return is
// false when the source has no opinion, which makes the discipline check a
// no-op for that order.
type PriceSource interface {
	ReferencePrice(marketID uuid.UUID) (decimal.Decimal, bool)
}

// PriceSourceFunc adapts a plain function to a PriceSource.
type PriceSourceFunc func(marketID uuid.UUID) (decimal.Decimal, bool)

func (f PriceSourceFunc) ReferencePrice(marketID uuid.UUID) (decimal.Decimal, bool) {
	return f(marketID)
}

// ChainSource queries sources in order and returns the first opinionated one.
// The usual chain is external oracle first, last traded price second.
type ChainSource []PriceSource

func (c ChainSource) ReferencePrice(marketID uuid.UUID) (decimal.Decimal, bool) {
	for _, src := range c {
		if price, ok := src.ReferencePrice(marketID); ok {
			return price, ok
		}
	}
	return decimal.Zero, false
}

// Discipline enforces the price band on regulated markets. Unregulated
// markets and markets with no reference price pass unchecked.
type Discipline struct {
	band   decimal.Decimal
	source PriceSource
}

// NewDiscipline builds a checker with the given band fraction. A band of
// 0.10 allows prices within ten percent either side of the reference.
func NewDiscipline(band decimal.Decimal, source PriceSource) *Discipline {
	return &Discipline{band: band, source: source}
}

// Check validates an order price against the market's reference price. It
// returns ErrPriceOutOfBand when a regulated market has a reference price and
// the order price falls outside [ref*(1-band), ref*(1+band)].
func (d *Discipline) Check(market *types.Market, price decimal.Decimal) error {
	if market.Regulation != types.MarketRegulated {
		return nil
	}
	if d.source == nil {
		return nil
	}

	ref, ok := d.source.ReferencePrice(market.ID)
	if !ok || !ref.IsPositive() {
		// No reference price yet means discipline cannot apply. The first
		// trades on a fresh market establish one.
		log.Warn().
			Str("market_id", market.ID.String()).
			Msg("no reference price available, skipping band check")
		return nil
	}

	spread := ref.Mul(d.band)
	lower := ref.Sub(spread)
	upper := ref.Add(spread)

	if price.LessThan(lower) || price.GreaterThan(upper) {
		log.Debug().
			Str("market_id", market.ID.String()).
			Str("price", price.String()).
			Str("reference", ref.String()).
			Str("lower", lower.String()).
			Str("upper", upper.String()).
			Msg("price rejected by band check")
		return ErrPriceOutOfBand
	}
	return nil
}
